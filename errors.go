package tspacer

import "errors"

// Sentinel errors returned by the demuxer pipeline. Many call sites wrap
// them with additional context via fmt.Errorf("tspacer: ...: %w", ...) and
// others return them as-is, so callers should always compare with errors.Is.
var (
	// ErrSyncLost is returned once the framer has locked onto the 188-byte
	// grid and a later packet boundary byte is not 0x47. Fatal: streaming
	// is terminated.
	ErrSyncLost = errors.New("tspacer: sync byte lost after lock")

	// ErrReadPastEnd is returned when a read would cross the end of the
	// input buffer. Fatal for the packet/PES currently being decoded; the
	// producer loop treats it as EOF and lets queues drain.
	ErrReadPastEnd = errors.New("tspacer: read past end of buffer")

	// ErrInvalidStructural covers table_id mismatches, bad reserved bits,
	// out-of-range section lengths, a bad packet_start_code_prefix, or a
	// malformed PTS/DTS marker pattern.
	ErrInvalidStructural = errors.New("tspacer: invalid structural field")

	// ErrUnsupportedDescriptor names a descriptor tag the decoder does not
	// recognize. The descriptor parser used by ParsePMT does not return it:
	// it logs a warning and skips such descriptors.
	ErrUnsupportedDescriptor = errors.New("tspacer: unsupported descriptor tag")

	// ErrReservedValue is returned for stream_id_extension_flag=1 in a PES
	// extension-2 field.
	ErrReservedValue = errors.New("tspacer: reserved value encountered")

	// ErrMissingPTS is returned when an audio or video PES surfaces
	// without a PTS.
	ErrMissingPTS = errors.New("tspacer: audio/video PES missing PTS")

	// ErrNoAnchorYet is returned by GetTimeUntilDTS before the first DTS
	// has been observed.
	ErrNoAnchorYet = errors.New("tspacer: no DTS anchor yet")

	// ErrPacketStartSyncByte is returned when a buffer handed to
	// parsePacket does not begin with the sync byte.
	ErrPacketStartSyncByte = errors.New("tspacer: packet must start with a sync byte")

	// ErrNoAACEncoder is returned by NullAACEncoder, the default
	// AudioSpecificConfigEncoder, so callers notice a missing collaborator.
	ErrNoAACEncoder = errors.New("tspacer: no AudioSpecificConfig encoder configured")
)
