package tspacer

import "fmt"

// Descriptor tags this decoder dispatches on (§4.4).
const (
	DescriptorTagCA                         = 9
	DescriptorTagISO639LanguageAndAudioType = 10
	DescriptorTagDVBService                 = 0x48
	DescriptorTagDVBStreamIdentifier        = 0x52
)

// opaqueDescriptorTags are descriptors whose payload the spec treats as
// skip-only (§4.4): read the length, skip that many bytes.
var opaqueDescriptorTags = map[uint8]bool{
	193: true,
	200: true,
	246: true,
	253: true,
}

// DescriptorCA represents a conditional-access descriptor. The CORE never
// acts on this beyond surfacing it (conditional-access decryption is a
// non-goal, §1); it exists so a PMT's descriptor loop round-trips.
type DescriptorCA struct {
	CASystemID uint16
	CAPID      uint16
	PrivateData []byte
}

// DescriptorLanguageEntry is one {language, audio type} pair in an ISO 639
// descriptor.
type DescriptorLanguageEntry struct {
	Language  string // 3-byte ISO 639-2 code.
	AudioType uint8
}

// DescriptorISO639LanguageAndAudioType represents descriptor tag 10:
// descriptor_length/4 entries of {3-byte language code, 1-byte audio type}.
type DescriptorISO639LanguageAndAudioType struct {
	Entries []DescriptorLanguageEntry
}

// DescriptorService represents a DVB service descriptor (tag 0x48).
type DescriptorService struct {
	ServiceType         uint8
	ProviderName        string
	Name                string
}

// DescriptorStreamIdentifier represents a DVB stream identifier descriptor
// (tag 0x52): a single component_tag byte.
type DescriptorStreamIdentifier struct {
	ComponentTag uint8
}

// Descriptor represents one descriptor in a PMT program-info or
// elementary-stream descriptor loop. TotalLength is descriptor_length + 2,
// per §4.4.
type Descriptor struct {
	Tag         uint8
	Length      uint8
	TotalLength int

	CA               *DescriptorCA
	ISO639           *DescriptorISO639LanguageAndAudioType
	Service          *DescriptorService
	StreamIdentifier *DescriptorStreamIdentifier
	// Opaque holds the raw payload for descriptors the decoder
	// deliberately treats as skip-only (CA private data aside, tags
	// {193,200,246,253}) and for unrecognized tags, which are always
	// skipped with a warning.
	Opaque []byte
}

// parseDescriptors walks a descriptor loop until endBit, per the
// program_info_length/ES_info_length bound passed in by the caller.
func parseDescriptors(r *BitReader, endBit int64) ([]Descriptor, error) {
	var out []Descriptor
	for r.BitOffset() < endBit {
		d, err := parseDescriptor(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

func parseDescriptor(r *BitReader) (*Descriptor, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	length, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	d := &Descriptor{Tag: tag, Length: length, TotalLength: int(length) + 2}
	endBit := r.BitOffset() + int64(length)*8

	switch {
	case tag == DescriptorTagCA:
		ca, err := parseDescriptorCA(r, endBit)
		if err != nil {
			return nil, fmt.Errorf("tspacer: parsing CA descriptor failed: %w", err)
		}
		d.CA = ca
	case tag == DescriptorTagISO639LanguageAndAudioType:
		iso, err := parseDescriptorISO639(r, length)
		if err != nil {
			return nil, fmt.Errorf("tspacer: parsing ISO639 descriptor failed: %w", err)
		}
		d.ISO639 = iso
	case tag == DescriptorTagDVBService:
		svc, err := parseDescriptorService(r)
		if err != nil {
			return nil, fmt.Errorf("tspacer: parsing DVB service descriptor failed: %w", err)
		}
		d.Service = svc
	case tag == DescriptorTagDVBStreamIdentifier:
		si, err := parseDescriptorStreamIdentifier(r)
		if err != nil {
			return nil, fmt.Errorf("tspacer: parsing stream identifier descriptor failed: %w", err)
		}
		d.StreamIdentifier = si
	case opaqueDescriptorTags[tag]:
		// fallthrough to the generic skip below.
	default:
		logger.Sugar().Warnw("tspacer: unsupported descriptor tag, skipping", "tag", tag, "length", length)
	}

	// Whatever the branch above consumed, always land exactly on endBit:
	// read-length-then-skip-that-many-bytes is the one uniformly correct
	// behavior across every descriptor, buggy sub-parsers included (§9b).
	if remaining := endBit - r.BitOffset(); remaining > 0 {
		opaque, err := r.ReadBytes(int(remaining / 8))
		if err != nil {
			return nil, err
		}
		if d.CA == nil && d.ISO639 == nil && d.Service == nil && d.StreamIdentifier == nil {
			d.Opaque = opaque
		}
	} else if remaining < 0 {
		return nil, fmt.Errorf("%w: descriptor tag %d overran its declared length", ErrInvalidStructural, tag)
	}

	return d, nil
}

func parseDescriptorCA(r *BitReader, endBit int64) (*DescriptorCA, error) {
	d := &DescriptorCA{}
	sysID, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	d.CASystemID = sysID
	b0, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	b1, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	d.CAPID = uint16(b0&0x1f)<<8 | uint16(b1)
	if remaining := endBit - r.BitOffset(); remaining > 0 {
		pd, err := r.ReadBytes(int(remaining / 8))
		if err != nil {
			return nil, err
		}
		d.PrivateData = pd
	}
	return d, nil
}

func parseDescriptorISO639(r *BitReader, length uint8) (*DescriptorISO639LanguageAndAudioType, error) {
	d := &DescriptorISO639LanguageAndAudioType{}
	n := int(length) / 4
	for i := 0; i < n; i++ {
		lang, err := r.ReadBytes(3)
		if err != nil {
			return nil, err
		}
		audioType, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		d.Entries = append(d.Entries, DescriptorLanguageEntry{Language: string(lang), AudioType: audioType})
	}
	return d, nil
}

// parseDescriptorService parses a DVB service descriptor. Per §9b, the
// length-prefixed provider/name strings are "read length byte, then read
// that many bytes", despite some shipped decoders reading the length field
// in the wrong order.
func parseDescriptorService(r *BitReader) (*DescriptorService, error) {
	d := &DescriptorService{}
	serviceType, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	d.ServiceType = serviceType

	providerLength, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if providerLength > 0 {
		bs, err := r.ReadBytes(int(providerLength))
		if err != nil {
			return nil, err
		}
		d.ProviderName = string(bs)
	}

	nameLength, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if nameLength > 0 {
		bs, err := r.ReadBytes(int(nameLength))
		if err != nil {
			return nil, err
		}
		d.Name = string(bs)
	}
	return d, nil
}

func parseDescriptorStreamIdentifier(r *BitReader) (*DescriptorStreamIdentifier, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return &DescriptorStreamIdentifier{ComponentTag: tag}, nil
}
