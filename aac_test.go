package tspacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNullAACEncoderFailsClosed(t *testing.T) {
	var enc AudioSpecificConfigEncoder = NullAACEncoder{}
	b, err := enc.EncodeAudioSpecificConfig(AudioSpecificConfig{
		ObjectType:        2,
		SamplingFrequency: 48000,
		Channels:          2,
		FrameLength:       1024,
	})
	assert.Nil(t, b)
	assert.ErrorIs(t, err, ErrNoAACEncoder)
}
