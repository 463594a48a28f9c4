package tspacer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func patSectionBytes(programs []PATProgram) []byte {
	n := len(programs)
	sectionLength := 9 + 4*n
	b := []byte{
		0x00,                         // pointer_field
		psiTableIDPAT,                // table_id
		0x80 | byte(sectionLength>>8), // syntax indicator=1, bit0=0, length hi
		byte(sectionLength),
		0x00, 0x01, // transport_stream_id = 1
		0xC1, // version/current_next
		0x00, // section_number
		0x00, // last_section_number
	}
	for _, p := range programs {
		b = append(b, byte(p.ProgramNumber>>8), byte(p.ProgramNumber))
		b = append(b, 0xE0|byte(p.ProgramMapPID>>8), byte(p.ProgramMapPID))
	}
	b = append(b, 0, 0, 0, 0) // CRC32, unverified
	return b
}

func TestParsePAT(t *testing.T) {
	want := []PATProgram{{ProgramNumber: 1, ProgramMapPID: 0x1000}}
	pat, err := ParsePAT(patSectionBytes(want))
	assert.NoError(t, err)
	assert.Equal(t, uint16(1), pat.TransportStreamID)
	assert.Equal(t, want, pat.Programs)
}

func pmtSectionBytes(pcrPID uint16, streams []PMTElementaryStream) []byte {
	programInfoLength := 0
	esLoop := []byte{}
	for _, es := range streams {
		esLoop = append(esLoop, es.StreamType, 0xE0|byte(es.ElementaryPID>>8), byte(es.ElementaryPID), 0xF0, 0x00)
	}
	sectionLength := 9 + 4 + programInfoLength + len(esLoop)
	b := []byte{
		0x00,
		psiTableIDPMT,
		0x80 | byte(sectionLength>>8),
		byte(sectionLength),
		0x00, 0x01, // program_number = 1
		0xC1,
		0x00,
		0x00,
		0xE0 | byte(pcrPID>>8), byte(pcrPID),
		0xF0 | byte(programInfoLength>>8), byte(programInfoLength),
	}
	b = append(b, esLoop...)
	b = append(b, 0, 0, 0, 0)
	return b
}

func TestParsePMT(t *testing.T) {
	streams := []PMTElementaryStream{{StreamType: StreamTypeAVCVideo, ElementaryPID: 0x101}}
	pmt, err := ParsePMT(pmtSectionBytes(0x101, streams))
	assert.NoError(t, err)
	assert.Equal(t, uint16(1), pmt.ProgramNumber)
	assert.Equal(t, uint16(0x101), pmt.PCRPID)
	assert.Len(t, pmt.ElementaryStreams, 1)
	assert.Equal(t, uint8(StreamTypeAVCVideo), pmt.ElementaryStreams[0].StreamType)
	assert.Equal(t, uint16(0x101), pmt.ElementaryStreams[0].ElementaryPID)
}

func TestProgramTableTracksAudioAndVideoPID(t *testing.T) {
	pt := NewProgramTable()
	pt.ApplyPAT(&PATData{Programs: []PATProgram{{ProgramNumber: 1, ProgramMapPID: 0x1000}}})
	assert.True(t, pt.IsPMTPID(0x1000))

	pt.ApplyPMT(&PMTData{ElementaryStreams: []PMTElementaryStream{
		{StreamType: StreamTypeAVCVideo, ElementaryPID: 0x101},
		{StreamType: StreamTypeADTSAAC, ElementaryPID: 0x102},
	}})

	video, ok := pt.VideoPID()
	assert.True(t, ok)
	assert.Equal(t, uint16(0x101), video)

	audio, ok := pt.AudioPID()
	assert.True(t, ok)
	assert.Equal(t, uint16(0x102), audio)

	assert.Equal(t, StreamKindVideo, pt.KindOf(0x101))
	assert.Equal(t, StreamKindAudio, pt.KindOf(0x102))
	assert.Equal(t, StreamKindUnknown, pt.KindOf(0x999))
}
