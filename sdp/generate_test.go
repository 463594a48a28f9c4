package sdp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsfeed/tspacer"
)

type fakeAACEncoder struct {
	blob []byte
	err  error
}

func (f fakeAACEncoder) EncodeAudioSpecificConfig(tspacer.AudioSpecificConfig) ([]byte, error) {
	return f.blob, f.err
}

func TestBuildRejectsMissingRequiredFields(t *testing.T) {
	_, err := Build(BuildOptions{}, nil)
	var missing *MissingOption
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, "username", missing.Name)
}

func TestBuildVideoRoundTrip(t *testing.T) {
	opts := BuildOptions{
		Username:                "-",
		SessionID:               "123456",
		SessionVersion:          "1",
		AddressType:             AddressTypeIP4,
		UnicastAddress:          "192.0.2.10",
		DurationSeconds:         "120.0",
		HasVideo:                true,
		VideoPayloadType:        96,
		VideoEncodingName:       "H264",
		VideoClockRate:          90000,
		VideoProfileLevelIDHex:  "42E01E",
		VideoSpropParameterSets: "Z0IACpZTBYmI,aMljiA==",
		VideoWidth:              1920,
		VideoHeight:             1080,
		VideoFrameRate:          "29.97",
	}

	doc, err := Build(opts, nil)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(doc, "\r\n"))
	assert.False(t, strings.Contains(strings.ReplaceAll(doc, "\r\n", ""), "\n"))

	parsed, err := Parse(doc)
	assert.NoError(t, err)
	assert.Len(t, parsed.MediaSections, 1)

	m := parsed.MediaSections[0]
	assert.Equal(t, "video", m.Media)
	assert.Equal(t, "96", m.Fmt)
	assert.Equal(t, 96, m.PayloadType)
	assert.Equal(t, 90000, m.ClockRate)
	assert.Equal(t, "1", m.FmtpParams["packetization-mode"])
	assert.Equal(t, "42E01E", m.FmtpParams["profile-level-id"])
	assert.Equal(t, "Z0IACpZTBYmI,aMljiA==", m.FmtpParams["sprop-parameter-sets"])
}

func TestBuildAudioWithExplicitConfigHex(t *testing.T) {
	opts := BuildOptions{
		Username:               "-",
		SessionID:              "1",
		SessionVersion:         "1",
		AddressType:            AddressTypeIP4,
		UnicastAddress:         "0.0.0.0",
		HasAudio:               true,
		AudioPayloadType:       97,
		AudioEncodingName:      "mpeg4-generic",
		AudioClockRate:         48000,
		AudioChannels:          2,
		AudioSpecificConfigHex: "1190",
	}

	doc, err := Build(opts, nil)
	assert.NoError(t, err)

	parsed, err := Parse(doc)
	assert.NoError(t, err)
	assert.Len(t, parsed.MediaSections, 1)
	m := parsed.MediaSections[0]
	assert.Equal(t, "audio", m.Media)
	assert.Equal(t, 97, m.PayloadType)
	assert.Equal(t, 48000, m.ClockRate)
	assert.Equal(t, 2, m.AudioChannels)
	assert.Equal(t, "1190", m.FmtpParams["config"])
	assert.Equal(t, "1", m.FmtpParams["profile-level-id"])
}

func TestBuildAudioCallsAACEncoderWhenHexAbsent(t *testing.T) {
	opts := BuildOptions{
		Username:          "-",
		SessionID:         "1",
		SessionVersion:    "1",
		AddressType:       AddressTypeIP4,
		UnicastAddress:    "0.0.0.0",
		HasAudio:          true,
		AudioPayloadType:  97,
		AudioEncodingName: "mpeg4-generic",
		AudioClockRate:    48000,
		AudioObjectType:   2,
		AudioSampleRate:   48000,
		AudioChannels:     2,
	}

	doc, err := Build(opts, fakeAACEncoder{blob: []byte{0x11, 0x90}})
	assert.NoError(t, err)
	assert.True(t, strings.Contains(doc, "config=1190"))
}

func TestBuildAudioWithoutEncoderFailsClosed(t *testing.T) {
	opts := BuildOptions{
		Username:          "-",
		SessionID:         "1",
		SessionVersion:    "1",
		AddressType:       AddressTypeIP4,
		UnicastAddress:    "0.0.0.0",
		HasAudio:          true,
		AudioPayloadType:  97,
		AudioEncodingName: "mpeg4-generic",
		AudioClockRate:    48000,
		AudioObjectType:   2,
	}

	_, err := Build(opts, tspacer.NullAACEncoder{})
	assert.ErrorIs(t, err, tspacer.ErrNoAACEncoder)
}
