package tspacer

import "fmt"

// syncByte is the fixed TS packet sync byte.
const syncByte = 0x47

// mpegTSPacketSize is the fixed transport packet size this package
// supports (ISO/IEC 13818-1 does not define larger FEC-wrapped sizes here;
// that's a framer concern some broadcast capture cards add, out of scope).
const mpegTSPacketSize = 188

// Scrambling controls, per the transport_scrambling_control field.
const (
	ScramblingControlNotScrambled         = 0
	ScramblingControlReservedForFutureUse = 1
	ScramblingControlScrambledWithEvenKey = 2
	ScramblingControlScrambledWithOddKey  = 3
)

// Packet represents one 188-byte transport packet.
type Packet struct {
	Header          PacketHeader
	AdaptationField *AdaptationField
	Payload         []byte // borrowed view into the packet's backing buffer.
	Bytes           []byte // the whole 188-byte packet.
}

// PacketHeader represents the fixed 4-byte TS packet header.
type PacketHeader struct {
	TransportErrorIndicator    bool
	PayloadUnitStartIndicator  bool
	TransportPriority          bool
	PID                        uint16
	TransportScramblingControl uint8
	HasAdaptationField         bool
	HasPayload                 bool
	ContinuityCounter          uint8
}

// AdaptationField represents a packet adaptation field, per §3/§4.2.
type AdaptationField struct {
	Length                            int
	DiscontinuityIndicator            bool
	RandomAccessIndicator             bool
	ElementaryStreamPriorityIndicator bool
	HasPCR                            bool
	HasOPCR                           bool
	HasSplicingCountdown              bool
	HasTransportPrivateData           bool
	HasExtension                      bool
	PCR                               *ClockReference
	OPCR                              *ClockReference
	SpliceCountdown                   int8
	TransportPrivateData              []byte
	Extension                         *AdaptationExtensionField
}

// AdaptationExtensionField represents the adaptation field extension.
type AdaptationExtensionField struct {
	Length                 int
	HasLegalTimeWindow     bool
	HasPiecewiseRate       bool
	HasSeamlessSplice      bool
	LegalTimeWindowIsValid bool
	LegalTimeWindowOffset  uint16
	PiecewiseRate          uint32
	SpliceType             uint8
	DTSNextAccessUnit      *ClockReference
}

// parsePacket decodes one 188-byte transport packet. i must be exactly
// mpegTSPacketSize bytes and must start with the sync byte.
func parsePacket(i []byte) (*Packet, error) {
	if len(i) != mpegTSPacketSize {
		return nil, fmt.Errorf("tspacer: parsePacket: got %d bytes, want %d", len(i), mpegTSPacketSize)
	}
	if i[0] != syncByte {
		return nil, ErrPacketStartSyncByte
	}

	p := &Packet{Bytes: i}
	r := NewBitReader(i[1:])

	if err := parsePacketHeader(r, &p.Header); err != nil {
		return nil, fmt.Errorf("tspacer: parsing packet header failed: %w", err)
	}

	if p.Header.HasAdaptationField {
		af, err := parseAdaptationField(r)
		if err != nil {
			return nil, fmt.Errorf("tspacer: parsing adaptation field failed: %w", err)
		}
		p.AdaptationField = af
	}

	if p.Header.HasPayload {
		off := r.ByteOffset()
		p.Payload = i[1+off:]
	}
	return p, nil
}

func parsePacketHeader(r *BitReader, h *PacketHeader) error {
	b0, err := r.ReadByte()
	if err != nil {
		return err
	}
	b1, err := r.ReadByte()
	if err != nil {
		return err
	}
	b2, err := r.ReadByte()
	if err != nil {
		return err
	}

	h.TransportErrorIndicator = b0&0x80 > 0
	h.PayloadUnitStartIndicator = b0&0x40 > 0
	h.TransportPriority = b0&0x20 > 0
	h.PID = uint16(b0&0x1f)<<8 | uint16(b1)
	h.TransportScramblingControl = b2 >> 6 & 0x3
	h.HasAdaptationField = b2&0x20 > 0
	h.HasPayload = b2&0x10 > 0
	h.ContinuityCounter = b2 & 0xf
	return nil
}

func parseAdaptationField(r *BitReader) (*AdaptationField, error) {
	a := &AdaptationField{}

	length, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	a.Length = int(length)
	if a.Length == 0 {
		return a, nil
	}

	endBit := r.BitOffset() + int64(a.Length)*8

	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	a.DiscontinuityIndicator = flags&0x80 > 0
	a.RandomAccessIndicator = flags&0x40 > 0
	a.ElementaryStreamPriorityIndicator = flags&0x20 > 0
	a.HasPCR = flags&0x10 > 0
	a.HasOPCR = flags&0x08 > 0
	a.HasSplicingCountdown = flags&0x04 > 0
	a.HasTransportPrivateData = flags&0x02 > 0
	a.HasExtension = flags&0x01 > 0

	if a.HasPCR {
		pcr, err := readPCR(r)
		if err != nil {
			return nil, fmt.Errorf("PCR: %w", err)
		}
		a.PCR = pcr
	}

	if a.HasOPCR {
		opcr, err := readPCR(r)
		if err != nil {
			return nil, fmt.Errorf("OPCR: %w", err)
		}
		a.OPCR = opcr
	}

	if a.HasSplicingCountdown {
		v, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		a.SpliceCountdown = int8(v)
	}

	if a.HasTransportPrivateData {
		n, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			data, err := r.ReadBytes(int(n))
			if err != nil {
				return nil, err
			}
			a.TransportPrivateData = data
		}
	}

	if a.HasExtension {
		ext, err := parseAdaptationExtensionField(r)
		if err != nil {
			return nil, fmt.Errorf("extension: %w", err)
		}
		a.Extension = ext
	}

	// Stuffing: discard whatever remains of the declared length. Parsed
	// bytes never exceed adaptation_field_length (invariant, §3).
	if remaining := endBit - r.BitOffset(); remaining > 0 {
		if err := r.SkipBytes(int(remaining / 8)); err != nil {
			return nil, fmt.Errorf("stuffing: %w", err)
		}
	}

	return a, nil
}

func parseAdaptationExtensionField(r *BitReader) (*AdaptationExtensionField, error) {
	e := &AdaptationExtensionField{}
	length, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	e.Length = int(length)
	if e.Length == 0 {
		return e, nil
	}
	endBit := r.BitOffset() + int64(e.Length)*8

	flags, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	e.HasLegalTimeWindow = flags&0x80 > 0
	e.HasPiecewiseRate = flags&0x40 > 0
	e.HasSeamlessSplice = flags&0x20 > 0

	if e.HasLegalTimeWindow {
		b0, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		b1, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		e.LegalTimeWindowIsValid = b0&0x80 > 0
		e.LegalTimeWindowOffset = uint16(b0&0x7f)<<8 | uint16(b1)
	}

	if e.HasPiecewiseRate {
		b0, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		b1, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		b2, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		e.PiecewiseRate = uint32(b0&0x3f)<<16 | uint32(b1)<<8 | uint32(b2)
	}

	if e.HasSeamlessSplice {
		b0, err := r.GetCurrentByte()
		if err != nil {
			return nil, err
		}
		e.SpliceType = (b0 & 0xf0) >> 4
		dts, err := readPTSOrDTS(r)
		if err != nil {
			return nil, fmt.Errorf("DTSNextAccessUnit: %w", err)
		}
		e.DTSNextAccessUnit = dts
	}

	if remaining := endBit - r.BitOffset(); remaining > 0 {
		if err := r.SkipBytes(int(remaining / 8)); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// readPCR reads a 6-byte Program Clock Reference: 33-bit base, 6 reserved
// bits, 9-bit extension.
func readPCR(r *BitReader) (*ClockReference, error) {
	bs, err := r.ReadBytes(6)
	if err != nil {
		return nil, err
	}
	v := uint64(bs[0])<<40 | uint64(bs[1])<<32 | uint64(bs[2])<<24 | uint64(bs[3])<<16 | uint64(bs[4])<<8 | uint64(bs[5])
	return newClockReference(int64(v>>15), int64(v&0x1ff)), nil
}
