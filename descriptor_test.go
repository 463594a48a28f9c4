package tspacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDescriptorISO639(t *testing.T) {
	b := []byte{
		DescriptorTagISO639LanguageAndAudioType, 4,
		'e', 'n', 'g', 0x02,
	}
	r := NewBitReader(b)
	ds, err := parseDescriptors(r, r.BitOffset()+int64(len(b))*8)
	assert.NoError(t, err)
	assert.Len(t, ds, 1)
	assert.NotNil(t, ds[0].ISO639)
	assert.Equal(t, "eng", ds[0].ISO639.Entries[0].Language)
	assert.Equal(t, uint8(2), ds[0].ISO639.Entries[0].AudioType)
}

func TestParseDescriptorOpaqueTagSkipped(t *testing.T) {
	b := []byte{193, 3, 0xAA, 0xBB, 0xCC}
	r := NewBitReader(b)
	ds, err := parseDescriptors(r, r.BitOffset()+int64(len(b))*8)
	assert.NoError(t, err)
	assert.Len(t, ds, 1)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xCC}, ds[0].Opaque)
}

func TestParseDescriptorUnknownTagSkipsAndWarns(t *testing.T) {
	b := []byte{0x7F, 2, 0x01, 0x02}
	r := NewBitReader(b)
	ds, err := parseDescriptors(r, r.BitOffset()+int64(len(b))*8)
	assert.NoError(t, err)
	assert.Len(t, ds, 1)
	assert.Equal(t, uint8(0x7F), ds[0].Tag)
}

func TestParseDescriptorStreamIdentifier(t *testing.T) {
	b := []byte{DescriptorTagDVBStreamIdentifier, 1, 0x05}
	r := NewBitReader(b)
	ds, err := parseDescriptors(r, r.BitOffset()+int64(len(b))*8)
	assert.NoError(t, err)
	assert.Equal(t, uint8(5), ds[0].StreamIdentifier.ComponentTag)
}
