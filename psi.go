package tspacer

import "fmt"

// PSI table IDs this decoder understands. Anything else (CAT, NIT, SDT,
// EIT, ...) is DVB/broadcast-SI territory the spec scopes out: PAT/PMT only
// (§3, §4.4).
const (
	psiTableIDPAT = 0x00
	psiTableIDPMT = 0x02
)

// StreamKind classifies an elementary stream's media type.
type StreamKind int

// Stream kinds.
const (
	StreamKindUnknown StreamKind = iota
	StreamKindAudio
	StreamKindVideo
)

func (k StreamKind) String() string {
	switch k {
	case StreamKindAudio:
		return "audio"
	case StreamKindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// Stream types this decoder maps to a StreamKind (§3): 0x1B (H.264) is
// video, 0x0F (ADTS AAC) is audio. Everything else is ignored.
const (
	StreamTypeAVCVideo = 0x1B
	StreamTypeADTSAAC  = 0x0F
)

// PATProgram represents one program entry in a PAT section.
type PATProgram struct {
	ProgramNumber uint16
	// ProgramMapPID is the PMT PID for this program, or, when
	// ProgramNumber is 0, the network information PID instead.
	ProgramMapPID uint16
}

// PATData represents a decoded Program Association Table.
type PATData struct {
	TransportStreamID uint16
	Programs          []PATProgram
}

// PMTElementaryStream represents one elementary stream entry in a PMT.
type PMTElementaryStream struct {
	StreamType    uint8
	ElementaryPID uint16
	Descriptors   []Descriptor
}

// PMTData represents a decoded Program Map Table.
type PMTData struct {
	ProgramNumber      uint16
	PCRPID             uint16
	ProgramDescriptors []Descriptor
	ElementaryStreams  []PMTElementaryStream
}

// psiSectionHeader is the common leading fields of a PAT/PMT section.
type psiSectionHeader struct {
	tableID                uint8
	sectionSyntaxIndicator bool
	sectionLength          uint16
	tableIDExtension       uint16 // transport_stream_id (PAT) / program_number (PMT)
}

// parsePSISectionHeader reads the pointer_field, the 3-byte section header
// and, when section_syntax_indicator is set, the 5-byte syntax header. It
// returns the header, the bit offset the syntax data runs to and the CRC32
// starts at (dataEndBit = sectionEndBit - 32), and the bit offset the
// section ends at (sectionEndBit).
func parsePSISectionHeader(r *BitReader) (h psiSectionHeader, dataEndBit int64, sectionEndBit int64, err error) {
	pointerField, err := r.ReadByte()
	if err != nil {
		return h, 0, 0, err
	}
	if err := r.SkipBytes(int(pointerField)); err != nil {
		return h, 0, 0, err
	}

	h.tableID, err = r.ReadByte()
	if err != nil {
		return h, 0, 0, err
	}

	b1, err := r.ReadByte()
	if err != nil {
		return h, 0, 0, err
	}
	h.sectionSyntaxIndicator = b1&0x80 > 0
	bit0 := b1&0x40 > 0

	if !h.sectionSyntaxIndicator || bit0 {
		return h, 0, 0, fmt.Errorf("%w: section_syntax_indicator=%v bit0=%v", ErrInvalidStructural, h.sectionSyntaxIndicator, bit0)
	}

	b2, err := r.ReadByte()
	if err != nil {
		return h, 0, 0, err
	}
	h.sectionLength = uint16(b1&0x0f)<<8 | uint16(b2)
	if h.sectionLength > 1021 {
		return h, 0, 0, fmt.Errorf("%w: section_length=%d exceeds 1021", ErrInvalidStructural, h.sectionLength)
	}

	sectionEndBit = r.BitOffset() + int64(h.sectionLength)*8
	dataEndBit = sectionEndBit - 32 // trailing CRC32

	h.tableIDExtension, err = readUint16(r)
	if err != nil {
		return h, 0, 0, err
	}
	// version_number(5)/current_next_indicator(1) byte, then
	// section_number, last_section_number: PAT/PMT are always single
	// section (§4.4), we only validate and discard.
	if err := r.SkipBytes(1); err != nil {
		return h, 0, 0, err
	}
	sectionNumber, err := r.ReadByte()
	if err != nil {
		return h, 0, 0, err
	}
	lastSectionNumber, err := r.ReadByte()
	if err != nil {
		return h, 0, 0, err
	}
	if sectionNumber != 0 || lastSectionNumber != 0 {
		return h, 0, 0, fmt.Errorf("%w: PAT/PMT section_number/last_section_number must be 0, got %d/%d", ErrInvalidStructural, sectionNumber, lastSectionNumber)
	}

	return h, dataEndBit, sectionEndBit, nil
}

func readUint16(r *BitReader) (uint16, error) {
	bs, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return uint16(bs[0])<<8 | uint16(bs[1]), nil
}

// ParsePAT parses a PAT section out of a reassembled PSI payload.
func ParsePAT(payload []byte) (*PATData, error) {
	r := NewBitReader(payload)
	h, dataEndBit, sectionEndBit, err := parsePSISectionHeader(r)
	if err != nil {
		return nil, fmt.Errorf("tspacer: parsing PAT header failed: %w", err)
	}
	if h.tableID != psiTableIDPAT {
		return nil, fmt.Errorf("%w: table_id=%#x is not PAT", ErrInvalidStructural, h.tableID)
	}

	d := &PATData{TransportStreamID: h.tableIDExtension}
	for r.BitOffset() < dataEndBit {
		programNumber, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		b0, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		b1, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		pid := uint16(b0&0x1f)<<8 | uint16(b1)
		d.Programs = append(d.Programs, PATProgram{ProgramNumber: programNumber, ProgramMapPID: pid})
	}

	if err := skipToSectionEnd(r, sectionEndBit); err != nil {
		return nil, err
	}
	return d, nil
}

// ParsePMT parses a PMT section out of a reassembled PSI payload.
func ParsePMT(payload []byte) (*PMTData, error) {
	r := NewBitReader(payload)
	h, dataEndBit, sectionEndBit, err := parsePSISectionHeader(r)
	if err != nil {
		return nil, fmt.Errorf("tspacer: parsing PMT header failed: %w", err)
	}
	if h.tableID != psiTableIDPMT {
		return nil, fmt.Errorf("%w: table_id=%#x is not PMT", ErrInvalidStructural, h.tableID)
	}

	d := &PMTData{ProgramNumber: h.tableIDExtension}

	b0, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	b1, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	d.PCRPID = uint16(b0&0x1f)<<8 | uint16(b1)

	programInfoLength, err := readDescriptorLoopLength(r)
	if err != nil {
		return nil, err
	}
	descEndBit := r.BitOffset() + int64(programInfoLength)*8
	d.ProgramDescriptors, err = parseDescriptors(r, descEndBit)
	if err != nil {
		return nil, fmt.Errorf("tspacer: parsing PMT program descriptors failed: %w", err)
	}

	for r.BitOffset() < dataEndBit {
		streamType, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		eb0, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		eb1, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		es := PMTElementaryStream{
			StreamType:    streamType,
			ElementaryPID: uint16(eb0&0x1f)<<8 | uint16(eb1),
		}
		esInfoLength, err := readDescriptorLoopLength(r)
		if err != nil {
			return nil, err
		}
		esDescEndBit := r.BitOffset() + int64(esInfoLength)*8
		es.Descriptors, err = parseDescriptors(r, esDescEndBit)
		if err != nil {
			return nil, fmt.Errorf("tspacer: parsing elementary stream descriptors failed: %w", err)
		}
		d.ElementaryStreams = append(d.ElementaryStreams, es)
	}

	if err := skipToSectionEnd(r, sectionEndBit); err != nil {
		return nil, err
	}
	return d, nil
}

// readDescriptorLoopLength reads a 2-byte reserved(4)/length(12) field, as
// used for program_info_length and ES_info_length.
func readDescriptorLoopLength(r *BitReader) (uint16, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	b1, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	return uint16(b0&0x0f)<<8 | uint16(b1), nil
}

// skipToSectionEnd skips whatever is left of the section, the trailing
// CRC32 included, so the caller's bit offset always lands exactly on
// sectionEndBit. The CRC is not verified or kept (§4.4 allows but does not
// require verification; computeCRC32 is there for a caller that wants it).
func skipToSectionEnd(r *BitReader, sectionEndBit int64) error {
	if remaining := sectionEndBit - r.BitOffset(); remaining > 0 {
		return r.SkipBytes(int(remaining / 8))
	}
	return nil
}

// ProgramTable tracks the PAT→PMT PID binding, the set of known PMT PIDs,
// and the single audio/video elementary PID the spec's data model allows
// (§3: "the demuxer records at most one audio PID and at most one video
// PID"). It is the session-owned analogue of the teacher's programMap plus
// elementaryStreamMap, merged into one table since this spec tracks a
// single program rather than a map of concurrent programs.
type ProgramTable struct {
	pmtPIDs  map[uint16]bool
	audioPID *uint16
	videoPID *uint16
}

// NewProgramTable creates an empty table.
func NewProgramTable() *ProgramTable {
	return &ProgramTable{pmtPIDs: make(map[uint16]bool)}
}

// IsPMTPID reports whether pid is a known PMT PID.
func (t *ProgramTable) IsPMTPID(pid uint16) bool { return t.pmtPIDs[pid] }

// AudioPID returns the tracked audio PID, or (0, false).
func (t *ProgramTable) AudioPID() (uint16, bool) {
	if t.audioPID == nil {
		return 0, false
	}
	return *t.audioPID, true
}

// VideoPID returns the tracked video PID, or (0, false).
func (t *ProgramTable) VideoPID() (uint16, bool) {
	if t.videoPID == nil {
		return 0, false
	}
	return *t.videoPID, true
}

// ApplyPAT records every non-NIT program's map PID as a PMT PID to watch.
func (t *ProgramTable) ApplyPAT(pat *PATData) {
	for _, pgm := range pat.Programs {
		if pgm.ProgramNumber == 0 {
			continue // reserved for NIT
		}
		t.pmtPIDs[pgm.ProgramMapPID] = true
	}
}

// ApplyPMT records the PMT's video/audio elementary PIDs, per the
// stream_type → kind mapping in §3.
func (t *ProgramTable) ApplyPMT(pmt *PMTData) {
	for _, es := range pmt.ElementaryStreams {
		pid := es.ElementaryPID
		switch es.StreamType {
		case StreamTypeAVCVideo:
			t.videoPID = &pid
		case StreamTypeADTSAAC:
			t.audioPID = &pid
		}
	}
}

// KindOf classifies pid against the currently known audio/video PIDs.
func (t *ProgramTable) KindOf(pid uint16) StreamKind {
	if t.audioPID != nil && pid == *t.audioPID {
		return StreamKindAudio
	}
	if t.videoPID != nil && pid == *t.videoPID {
		return StreamKindVideo
	}
	return StreamKindUnknown
}
