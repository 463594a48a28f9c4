package tspacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func buildTSPacket(pusi bool, pid uint16, withAF bool, payload []byte) []byte {
	p := make([]byte, mpegTSPacketSize)
	p[0] = syncByte
	b0 := byte(0)
	if pusi {
		b0 |= 0x40
	}
	b0 |= byte(pid >> 8 & 0x1f)
	p[1] = b0
	p[2] = byte(pid)
	afc := byte(0x10) // payload only
	if withAF {
		afc |= 0x20
	}
	p[3] = afc | 0x0f // continuity counter 0xf, arbitrary
	off := 4
	if withAF {
		p[4] = 0 // adaptation_field_length = 0
		off = 5
	}
	copy(p[off:], payload)
	return p
}

func TestParsePacketHeader(t *testing.T) {
	raw := buildTSPacket(true, 0x101, false, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	p, err := parsePacket(raw)
	assert.NoError(t, err)
	assert.True(t, p.Header.PayloadUnitStartIndicator)
	assert.Equal(t, uint16(0x101), p.Header.PID)
	assert.True(t, p.Header.HasPayload)
	assert.False(t, p.Header.HasAdaptationField)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, p.Payload[:4])
}

func TestParsePacketRequiresSyncByte(t *testing.T) {
	raw := buildTSPacket(true, 0x101, false, nil)
	raw[0] = 0x00
	_, err := parsePacket(raw)
	assert.ErrorIs(t, err, ErrPacketStartSyncByte)
}

func TestParsePacketRejectsWrongLength(t *testing.T) {
	_, err := parsePacket([]byte{syncByte, 0x00})
	assert.Error(t, err)
}

func TestParseAdaptationFieldWithPCR(t *testing.T) {
	p := make([]byte, mpegTSPacketSize)
	p[0] = syncByte
	p[1] = 0x40 // PUSI
	p[2] = 0x01
	p[3] = 0x20 | 0x0f // adaptation field only present in header bits, but we also need payload bit; use AF+payload
	p[3] = 0x30 | 0x0f
	p[4] = 7 // adaptation_field_length: flags byte + 6-byte PCR
	p[5] = 0x10
	// 6-byte PCR: base=1, extension=0 -> value = 1<<15
	v := uint64(1) << 15
	p[6] = byte(v >> 40)
	p[7] = byte(v >> 32)
	p[8] = byte(v >> 24)
	p[9] = byte(v >> 16)
	p[10] = byte(v >> 8)
	p[11] = byte(v)

	pkt, err := parsePacket(p)
	assert.NoError(t, err)
	assert.NotNil(t, pkt.AdaptationField)
	assert.True(t, pkt.AdaptationField.HasPCR)
	assert.Equal(t, int64(1), pkt.AdaptationField.PCR.Base)
}
