package sdp

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tsfeed/tspacer"
)

// BuildOptions configures Build, per §4.7's generation rules. Zero values
// mean "absent" for every optional field; Go has no natural `undefined`,
// so callers leave numeric fields at 0 and string fields at "" to omit
// them, matching the options-object idiom the spec describes.
type BuildOptions struct {
	Username       string
	SessionID      string
	SessionVersion string
	AddressType    AddressType
	UnicastAddress string

	// DurationSeconds is embedded verbatim as npt=0.0-<duration>; leave it
	// empty to emit npt=0.0-.
	DurationSeconds string

	HasAudio          bool
	AudioPayloadType  int
	AudioEncodingName string
	AudioClockRate    int
	AudioChannels     int // 0 = omit the /<channels> rtpmap suffix
	AudioObjectType   uint8
	AudioSampleRate   uint32
	// AudioSpecificConfigHex, if set, is used (lower-cased) instead of
	// calling the AAC collaborator.
	AudioSpecificConfigHex string

	HasVideo               bool
	VideoPayloadType       int
	VideoEncodingName      string
	VideoClockRate         int
	VideoProfileLevelIDHex string
	VideoSpropParameterSets string
	VideoHeight            int
	VideoWidth             int
	VideoFrameRate         string
}

// Build generates an SDP document for opts, per §4.7. aac may be nil when
// neither HasAudio nor AudioSpecificConfigHex requires it; a nil aac used
// where it's needed surfaces as a wrapped ErrNoAACEncoder from the
// collaborator.
func Build(opts BuildOptions, aac tspacer.AudioSpecificConfigEncoder) (string, error) {
	if opts.Username == "" {
		return "", &MissingOption{"username"}
	}
	if opts.SessionID == "" {
		return "", &MissingOption{"session_id"}
	}
	if opts.SessionVersion == "" {
		return "", &MissingOption{"session_version"}
	}
	if opts.AddressType == "" {
		return "", &MissingOption{"address_type"}
	}
	if opts.UnicastAddress == "" {
		return "", &MissingOption{"unicast_address"}
	}
	if opts.HasAudio {
		if opts.AudioPayloadType == 0 {
			return "", &MissingOption{"audio_payload_type"}
		}
		if opts.AudioEncodingName == "" {
			return "", &MissingOption{"audio_encoding_name"}
		}
		if opts.AudioClockRate == 0 {
			return "", &MissingOption{"audio_clock_rate"}
		}
	}
	if opts.HasVideo {
		if opts.VideoPayloadType == 0 {
			return "", &MissingOption{"video_payload_type"}
		}
		if opts.VideoEncodingName == "" {
			return "", &MissingOption{"video_encoding_name"}
		}
		if opts.VideoClockRate == 0 {
			return "", &MissingOption{"video_clock_rate"}
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "v=0\n")
	fmt.Fprintf(&b, "o=%s %s %s IN %s %s\n", opts.Username, opts.SessionID, opts.SessionVersion, opts.AddressType, opts.UnicastAddress)
	fmt.Fprintf(&b, "s= \n")
	fmt.Fprintf(&b, "c=IN %s %s\n", opts.AddressType, opts.UnicastAddress)
	fmt.Fprintf(&b, "t=0 0\n")
	fmt.Fprintf(&b, "a=sdplang:en\n")
	fmt.Fprintf(&b, "a=range:npt=0.0-%s\n", opts.DurationSeconds)
	fmt.Fprintf(&b, "a=control:*\n")

	if opts.HasAudio {
		if err := writeAudio(&b, opts, aac); err != nil {
			return "", err
		}
	}
	if opts.HasVideo {
		writeVideo(&b, opts)
	}

	return strings.ReplaceAll(b.String(), "\n", "\r\n"), nil
}

func writeAudio(b *strings.Builder, opts BuildOptions, aac tspacer.AudioSpecificConfigEncoder) error {
	fmt.Fprintf(b, "m=audio 0 RTP/AVP %d\n", opts.AudioPayloadType)
	if opts.AudioChannels > 0 {
		fmt.Fprintf(b, "a=rtpmap:%d %s/%d/%d\n", opts.AudioPayloadType, opts.AudioEncodingName, opts.AudioClockRate, opts.AudioChannels)
	} else {
		fmt.Fprintf(b, "a=rtpmap:%d %s/%d\n", opts.AudioPayloadType, opts.AudioEncodingName, opts.AudioClockRate)
	}

	configHex := opts.AudioSpecificConfigHex
	if configHex == "" && opts.AudioObjectType != 0 {
		if aac == nil {
			return fmt.Errorf("sdp: building audio fmtp config failed: %w", tspacer.ErrNoAACEncoder)
		}
		blob, err := aac.EncodeAudioSpecificConfig(tspacer.AudioSpecificConfig{
			ObjectType:        opts.AudioObjectType,
			SamplingFrequency: opts.AudioSampleRate,
			Channels:          uint8(opts.AudioChannels),
			FrameLength:       1024,
		})
		if err != nil {
			return fmt.Errorf("sdp: building audio fmtp config failed: %w", err)
		}
		configHex = hex.EncodeToString(blob)
	}

	// Known limitation, §9(a): profile-level-id is pinned to 1 for audio
	// regardless of the actual AAC profile.
	fmtp := fmt.Sprintf("a=fmtp:%d profile-level-id=1;mode=AAC-hbr;sizeLength=13;indexLength=3;indexDeltaLength=3", opts.AudioPayloadType)
	if configHex != "" {
		fmtp += ";config=" + strings.ToLower(configHex)
	}
	fmt.Fprintf(b, "%s\n", fmtp)
	fmt.Fprintf(b, "a=control:trackID=1\n")
	return nil
}

func writeVideo(b *strings.Builder, opts BuildOptions) {
	fmt.Fprintf(b, "m=video 0 RTP/AVP %d\n", opts.VideoPayloadType)
	fmt.Fprintf(b, "a=rtpmap:%d %s/%d\n", opts.VideoPayloadType, opts.VideoEncodingName, opts.VideoClockRate)

	fmtp := fmt.Sprintf("a=fmtp:%d packetization-mode=1", opts.VideoPayloadType)
	if opts.VideoProfileLevelIDHex != "" {
		fmtp += ";profile-level-id=" + opts.VideoProfileLevelIDHex
	}
	if opts.VideoSpropParameterSets != "" {
		fmtp += ";sprop-parameter-sets=" + opts.VideoSpropParameterSets
	}
	fmt.Fprintf(b, "%s\n", fmtp)

	if opts.VideoWidth > 0 && opts.VideoHeight > 0 {
		fmt.Fprintf(b, "a=cliprect:0,0,%d,%d\n", opts.VideoHeight, opts.VideoWidth)
		fmt.Fprintf(b, "a=framesize:%d %d-%d\n", opts.VideoPayloadType, opts.VideoWidth, opts.VideoHeight)
	}
	if opts.VideoFrameRate != "" {
		fmt.Fprintf(b, "a=framerate:%s\n", opts.VideoFrameRate)
	}
	fmt.Fprintf(b, "a=control:trackID=2\n")
}
