package tspacer

import "fmt"

// maxUnboundedPESBytes caps, at 200KiB (§4.5), how many payload bytes the
// Reassembler accumulates for one in-progress unit; Reassembler.Feed drops
// a unit that would grow past it. This bounds an unbounded
// (PES_packet_length = 0) video PES whose closing PUSI never arrives.
const maxUnboundedPESBytes = 200 * 1024

// DSM trick mode controls, per the dsm_trick_mode_control field.
const (
	TrickModeControlFastForward  = 0
	TrickModeControlSlowMotion   = 1
	TrickModeControlFreezeFrame  = 2
	TrickModeControlFastReverse  = 3
	TrickModeControlSlowReverse  = 4
)

// PESOptionalHeader represents the optional PES header fields (table 2-21,
// ISO/IEC 13818-1), present whenever stream_id is not one of the few
// fixed-layout stream IDs (padding, program/private stream 2, ...).
type PESOptionalHeader struct {
	MarkerBits              uint8
	ScramblingControl       uint8
	Priority                bool
	DataAlignmentIndicator  bool
	Copyright               bool
	OriginalOrCopy          bool
	HasPTS                  bool
	HasDTS                  bool
	PTS                     *ClockReference
	DTS                     *ClockReference
	HasESCR                 bool
	ESCR                    *ClockReference
	HasESRate               bool
	ESRate                  uint32
	HasDSMTrickMode         bool
	DSMTrickMode            *DSMTrickMode
	HasAdditionalCopyInfo   bool
	AdditionalCopyInfo      uint8
	HasPESCRC               bool
	PESCRC                  uint16
	HasExtension            bool
	Extension               *PESExtension
	HeaderLength            uint8
}

// DSMTrickMode represents the dsm_trick_mode_control sub-fields, whose
// shape depends on the control value itself.
type DSMTrickMode struct {
	Control              uint8
	FieldID              uint8
	IntraSliceRefresh    bool
	FrequencyTruncation  uint8
	RepControl           uint8
}

// PESExtension represents the PES_extension fields.
type PESExtension struct {
	HasPrivateData                   bool
	PrivateData                      []byte
	HasPackHeaderField               bool
	PackField                        uint8
	HasProgramPacketSequenceCounter  bool
	ProgramPacketSequenceCounter     uint8
	MPEG1OrMPEG2ID                   uint8
	OriginalStuffLength              uint8
	HasPSTDBuffer                    bool
	PSTDBufferScale                  uint8
	PSTDBufferSize                   uint16
	HasExtension2                    bool
}

// PESData represents a fully decoded PES packet: header plus the access
// unit payload (§4.3).
type PESData struct {
	StreamID     uint8
	PacketLength uint16
	Header       *PESOptionalHeader
	Data         []byte
}

// classifyStreamID classifies a PES stream_id the way §4.5 does,
// independent of the PMT's PID→stream_type map: 0xE0-0xEF is video,
// 0xC0-0xDF is audio, anything else is unclassified and left for the
// scheduler to drop.
func classifyStreamID(streamID uint8) StreamKind {
	switch {
	case streamID&0xF0 == 0xE0:
		return StreamKindVideo
	case streamID&0xE0 == 0xC0:
		return StreamKindAudio
	default:
		return StreamKindUnknown
	}
}

// hasPESOptionalHeader reports whether stream_id carries the optional
// header, per table 2-18. Padding, private_stream_2, ECM, EMM, program
// stream directory, DSMCC, and ITU-T Rec. H.222.1 type E streams do not.
func hasPESOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xFF, 0xF2, 0xF8:
		return false
	default:
		return true
	}
}

// ParsePES decodes one PES packet out of a reassembled elementary-stream
// payload (the result of §4.3's reassembly).
func ParsePES(payload []byte) (*PESData, error) {
	r := NewBitReader(payload)

	prefix, err := r.ReadBytes(3)
	if err != nil {
		return nil, err
	}
	if prefix[0] != 0x00 || prefix[1] != 0x00 || prefix[2] != 0x01 {
		return nil, fmt.Errorf("%w: packet_start_code_prefix != 0x000001", ErrInvalidStructural)
	}

	streamID, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	packetLength, err := readUint16(r)
	if err != nil {
		return nil, err
	}

	d := &PESData{StreamID: streamID, PacketLength: packetLength}

	// PES_packet_length counts the bytes after the length field; 0 means
	// unbounded, and the data then runs to the end of the reassembled unit.
	end := r.Len()
	if declared := int(r.ByteOffset()) + int(packetLength); packetLength > 0 && declared < end {
		end = declared
	}

	if !hasPESOptionalHeader(streamID) {
		d.Data, err = r.ReadBytes(end - int(r.ByteOffset()))
		if err != nil {
			return nil, err
		}
		return d, nil
	}

	h, err := parsePESOptionalHeader(r)
	if err != nil {
		return nil, fmt.Errorf("tspacer: parsing PES optional header failed: %w", err)
	}
	d.Header = h

	if int(r.ByteOffset()) > end {
		return nil, fmt.Errorf("%w: PES header overruns PES_packet_length", ErrInvalidStructural)
	}
	d.Data, err = r.ReadBytes(end - int(r.ByteOffset()))
	if err != nil {
		return nil, err
	}
	return d, nil
}

func parsePESOptionalHeader(r *BitReader) (*PESOptionalHeader, error) {
	h := &PESOptionalHeader{}

	b0, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	h.MarkerBits = b0 >> 6
	h.ScramblingControl = (b0 >> 4) & 0x3
	h.Priority = b0&0x08 > 0
	h.DataAlignmentIndicator = b0&0x04 > 0
	h.Copyright = b0&0x02 > 0
	h.OriginalOrCopy = b0&0x01 > 0

	b1, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	ptsDTSFlags := b1 >> 6
	escrFlag := b1&0x20 > 0
	esRateFlag := b1&0x10 > 0
	dsmTrickModeFlag := b1&0x08 > 0
	additionalCopyInfoFlag := b1&0x04 > 0
	pesCRCFlag := b1&0x02 > 0
	pesExtensionFlag := b1&0x01 > 0

	headerLength, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	h.HeaderLength = headerLength
	headerEndByte := r.ByteOffset() + int64(headerLength)

	switch ptsDTSFlags {
	case 0x2: // PTS only
		pts, err := readPTSOrDTS(r)
		if err != nil {
			return nil, fmt.Errorf("PTS: %w", err)
		}
		h.HasPTS = true
		h.PTS = pts
	case 0x3: // PTS and DTS
		pts, err := readPTSOrDTS(r)
		if err != nil {
			return nil, fmt.Errorf("PTS: %w", err)
		}
		dts, err := readPTSOrDTS(r)
		if err != nil {
			return nil, fmt.Errorf("DTS: %w", err)
		}
		h.HasPTS, h.HasDTS = true, true
		h.PTS, h.DTS = pts, dts
	}

	if escrFlag {
		escr, err := readESCR(r)
		if err != nil {
			return nil, fmt.Errorf("ESCR: %w", err)
		}
		h.HasESCR = true
		h.ESCR = escr
	}

	if esRateFlag {
		bs, err := r.ReadBytes(3)
		if err != nil {
			return nil, err
		}
		v := uint32(bs[0])<<16 | uint32(bs[1])<<8 | uint32(bs[2])
		h.HasESRate = true
		h.ESRate = (v >> 1) & 0x3fffff
	}

	if dsmTrickModeFlag {
		tm, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		dm := &DSMTrickMode{Control: tm >> 5}
		switch dm.Control {
		case TrickModeControlFastForward, TrickModeControlFastReverse:
			dm.FieldID = (tm >> 3) & 0x3
			dm.IntraSliceRefresh = tm&0x04 > 0
			dm.FrequencyTruncation = tm & 0x3
		case TrickModeControlSlowMotion, TrickModeControlSlowReverse:
			dm.RepControl = tm & 0x1f
		case TrickModeControlFreezeFrame:
			dm.FieldID = (tm >> 3) & 0x3
		}
		h.HasDSMTrickMode = true
		h.DSMTrickMode = dm
	}

	if additionalCopyInfoFlag {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		h.HasAdditionalCopyInfo = true
		h.AdditionalCopyInfo = b & 0x7f
	}

	if pesCRCFlag {
		v, err := readUint16(r)
		if err != nil {
			return nil, err
		}
		h.HasPESCRC = true
		h.PESCRC = v
	}

	if pesExtensionFlag {
		ext, err := parsePESExtension(r)
		if err != nil {
			return nil, fmt.Errorf("PES_extension: %w", err)
		}
		h.HasExtension = true
		h.Extension = ext
	}

	// Stuffing bytes fill out PES_header_data_length; always land exactly
	// on headerEndByte regardless of which optional fields were present.
	if remaining := headerEndByte - r.ByteOffset(); remaining > 0 {
		if err := r.SkipBytes(int(remaining)); err != nil {
			return nil, fmt.Errorf("stuffing: %w", err)
		}
	}

	return h, nil
}

func parsePESExtension(r *BitReader) (*PESExtension, error) {
	e := &PESExtension{}
	b0, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	e.HasPrivateData = b0&0x80 > 0
	e.HasPackHeaderField = b0&0x40 > 0
	e.HasProgramPacketSequenceCounter = b0&0x20 > 0
	hasPSTDBuffer := b0&0x10 > 0
	e.HasExtension2 = b0&0x01 > 0

	if e.HasPrivateData {
		pd, err := r.ReadBytes(16)
		if err != nil {
			return nil, err
		}
		e.PrivateData = pd
	}

	if e.HasPackHeaderField {
		v, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		e.PackField = v
	}

	if e.HasProgramPacketSequenceCounter {
		b1, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		b2, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		e.ProgramPacketSequenceCounter = b1 & 0x7f
		e.MPEG1OrMPEG2ID = (b2 >> 6) & 0x1
		e.OriginalStuffLength = b2 & 0x3f
	}

	e.HasPSTDBuffer = hasPSTDBuffer
	if hasPSTDBuffer {
		b1, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		b2, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		e.PSTDBufferScale = (b1 >> 5) & 0x1
		e.PSTDBufferSize = uint16(b1&0x1f)<<8 | uint16(b2)
	}

	if e.HasExtension2 {
		// marker_bit(1) + PES_extension_field_length(7); the following
		// byte's top bit is stream_id_extension_flag.
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		length := int(b & 0x7f)
		if length > 0 {
			f, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			if f&0x80 > 0 {
				return nil, fmt.Errorf("%w: stream_id_extension_flag=1", ErrReservedValue)
			}
			length--
		}
		if err := r.SkipBytes(length); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// readPTSOrDTS reads a 5-byte 33-bit timestamp field of the shape
// bits(3)<<30 | marker | bits(15)<<15 | marker | bits(15) | marker, used
// for both PTS/DTS and the seamless-splice DTS_next_AU field. The marker
// bits are validated for shape (they occupy fixed positions) but their
// value is not otherwise enforced, per §4.5.
func readPTSOrDTS(r *BitReader) (*ClockReference, error) {
	bs, err := r.ReadBytes(5)
	if err != nil {
		return nil, err
	}
	v := int64(bs[0]&0x0e) << 29
	v |= int64(bs[1]) << 22
	v |= int64(bs[2]&0xfe) << 14
	v |= int64(bs[3]) << 7
	v |= int64(bs[4]&0xfe) >> 1
	return newClockReference(v, 0), nil
}

// readESCR reads a 6-byte Elementary Stream Clock Reference: the same
// 33-bit base + 9-bit extension shape as a PCR, but interleaved with
// marker bits instead of reserved bits.
func readESCR(r *BitReader) (*ClockReference, error) {
	bs, err := r.ReadBytes(6)
	if err != nil {
		return nil, err
	}
	base := int64(bs[0]&0x38) << 27
	base |= int64(bs[0]&0x03) << 28
	base |= int64(bs[1]) << 20
	base |= int64(bs[2]&0xf8) << 12
	base |= int64(bs[2]&0x03) << 13
	base |= int64(bs[3]) << 5
	base |= int64(bs[4]&0xf8) >> 3
	ext := int64(bs[4]&0x03) << 7
	ext |= int64(bs[5]) >> 1
	return newClockReference(base, ext), nil
}
