package tspacer

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

// buildTSPacketCC is buildTSPacket (packet_test.go) with an explicit
// continuity_counter, needed whenever a test feeds more than one packet for
// the same PID through the Reassembler.
func buildTSPacketCC(pusi bool, pid uint16, cc uint8, payload []byte) []byte {
	p := make([]byte, mpegTSPacketSize)
	p[0] = syncByte
	b0 := byte(0)
	if pusi {
		b0 |= 0x40
	}
	b0 |= byte(pid >> 8 & 0x1f)
	p[1] = b0
	p[2] = byte(pid)
	p[3] = 0x10 | (cc & 0x0f) // payload only
	copy(p[4:], payload)
	return p
}

func patPacket(cc uint8) []byte {
	return buildTSPacketCC(true, pidPAT, cc, patSectionBytes([]PATProgram{{ProgramNumber: 1, ProgramMapPID: 0x1000}}))
}

func pmtPacket(cc uint8) []byte {
	streams := []PMTElementaryStream{
		{StreamType: StreamTypeAVCVideo, ElementaryPID: 0x101},
		{StreamType: StreamTypeADTSAAC, ElementaryPID: 0x102},
	}
	return buildTSPacketCC(true, 0x1000, cc, pmtSectionBytes(0x101, streams))
}

// newSessionFromBuf bypasses Open's file I/O so tests can hand a Session an
// in-memory transport stream buffer directly.
func newSessionFromBuf(buf []byte, opts ...SessionOpt) *Session {
	s := &Session{
		buf:          buf,
		programTable: NewProgramTable(),
		aac:          NullAACEncoder{},
		metrics:      nopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.framer = NewFramer(s.buf, s.metrics)
	s.reassembler = NewReassembler(s.metrics)
	s.scheduler = NewScheduler(s.metrics)
	return s
}

func TestSessionPATThenPMTThenVideo(t *testing.T) {
	videoPES := buildPESWithPTSOnly(0xE0, 90000, []byte{1, 2, 3, 4})

	var buf []byte
	buf = append(buf, patPacket(0)...)
	buf = append(buf, pmtPacket(0)...)
	buf = append(buf, buildTSPacketCC(true, 0x101, 0, videoPES)...)

	s := newSessionFromBuf(buf)

	au, err := s.pull()
	assert.NoError(t, err)
	assert.Equal(t, StreamKindVideo, au.Kind)
	assert.Equal(t, int64(90000), au.PTS)
	assert.Equal(t, int64(90000), au.DTS)
	assert.Equal(t, []byte{1, 2, 3, 4}, au.Payload)

	_, err = s.pull()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSessionAudioBeforePMTIsDeferredThenDrained(t *testing.T) {
	audioPES := buildPESWithPTSOnly(0xC0, 45000, []byte{0xAA, 0xBB})

	var buf []byte
	// Audio PES arrives (PUSI) before the PMT has classified PID 0x102.
	buf = append(buf, buildTSPacketCC(true, 0x102, 0, audioPES)...)
	// A second, harmless PUSI on the same PID closes that fragment, so the
	// reassembler hands it to handleUnit while PID 0x102 is still
	// unclassified and it lands in the deferred list.
	buf = append(buf, buildTSPacketCC(true, 0x102, 1, buildPESWithPTSOnly(0xC0, 46000, []byte{0xCC}))...)
	buf = append(buf, patPacket(0)...)
	buf = append(buf, pmtPacket(0)...)

	s := newSessionFromBuf(buf)

	au, err := s.pull()
	assert.NoError(t, err)
	assert.Equal(t, StreamKindAudio, au.Kind)
	assert.Equal(t, int64(45000), au.PTS)
	assert.Equal(t, []byte{0xAA, 0xBB}, au.Payload)
}

func TestSessionUnboundedVideoSpansMultiplePackets(t *testing.T) {
	// PES_packet_length = 0 (unbounded): the decoder must keep reading
	// packets on this PID until the next PUSI closes the unit.
	ptsBytes := writePTSOrDTS(0b0010, 123456)
	headerLen := byte(len(ptsBytes))
	pesHeader := []byte{0x00, 0x00, 0x01, 0xE0, 0x00, 0x00, 0x80, 0x80, headerLen}
	pesHeader = append(pesHeader, ptsBytes...)

	// Pad the access unit's data out to an exact multiple of the 184-byte
	// per-packet payload capacity (3 packets, no TS stuffing needed) so the
	// test fixture doesn't have to model adaptation-field stuffing bytes.
	const payloadCap = 184
	const numPackets = 3
	dataLen := payloadCap*numPackets - len(pesHeader)

	full := make([]byte, 0, payloadCap*numPackets)
	full = append(full, pesHeader...)
	for i := 0; i < dataLen; i++ {
		full = append(full, byte(i))
	}

	var buf []byte
	buf = append(buf, patPacket(0)...)
	buf = append(buf, pmtPacket(0)...)

	// Split the PES across numPackets TS packets of this PID's payload
	// capacity (184 bytes of payload each).
	cc := uint8(0)
	for off := 0; off < len(full); off += payloadCap {
		end := off + payloadCap
		if end > len(full) {
			end = len(full)
		}
		buf = append(buf, buildTSPacketCC(off == 0, 0x101, cc, full[off:end])...)
		cc++
	}
	// Close the fragment with a trailing PUSI packet on the same PID.
	buf = append(buf, buildTSPacketCC(true, 0x101, cc, buildPESWithPTSOnly(0xE0, 200000, []byte{9}))...)

	s := newSessionFromBuf(buf)

	au, err := s.pull()
	assert.NoError(t, err)
	assert.Equal(t, StreamKindVideo, au.Kind)
	assert.Equal(t, int64(123456), au.PTS)
	assert.Equal(t, dataLen, len(au.Payload))
}

func TestSessionOnRejectsWrongListenerSignature(t *testing.T) {
	s := newSessionFromBuf(nil)
	err := s.On("audio", func() {})
	assert.Error(t, err)
	err = s.On("bogus", func(AccessUnit) {})
	assert.Error(t, err)
}
