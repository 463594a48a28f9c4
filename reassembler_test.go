package tspacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReassemblerClosesOnNextPUSI(t *testing.T) {
	re := NewReassembler(nil)

	p1, err := parsePacket(buildTSPacketCC(true, 0x101, 0, []byte{1, 2, 3}))
	assert.NoError(t, err)
	_, _, _, ready := re.Feed(p1)
	assert.False(t, ready)

	p2, err := parsePacket(buildTSPacketCC(false, 0x101, 1, []byte{4, 5, 6}))
	assert.NoError(t, err)
	_, _, _, ready = re.Feed(p2)
	assert.False(t, ready)

	p3, err := parsePacket(buildTSPacketCC(true, 0x101, 2, []byte{7, 8, 9}))
	assert.NoError(t, err)
	pid, payload, _, ready := re.Feed(p3)
	assert.True(t, ready)
	assert.Equal(t, uint16(0x101), pid)
	assert.True(t, len(payload) >= 6)
}

func TestReassemblerFlushIsAscendingPIDOrder(t *testing.T) {
	re := NewReassembler(nil)

	p1, _ := parsePacket(buildTSPacket(true, 0x200, false, []byte{1}))
	p2, _ := parsePacket(buildTSPacket(true, 0x100, false, []byte{2}))
	re.Feed(p1)
	re.Feed(p2)

	units := re.Flush()
	assert.Len(t, units, 2)
	assert.Equal(t, uint16(0x100), units[0].PID)
	assert.Equal(t, uint16(0x200), units[1].PID)
	assert.True(t, units[len(units)-1].IsLast)
}
