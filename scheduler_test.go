package tspacer

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// scriptedPuller replays a fixed slice of access units, then returns io.EOF.
type scriptedPuller struct {
	units []AccessUnit
	i     int
}

func (p *scriptedPuller) pull() (*AccessUnit, error) {
	if p.i >= len(p.units) {
		return nil, io.EOF
	}
	au := p.units[p.i]
	p.i++
	return &au, nil
}

func TestSchedulerEmitsInDTSOrderAcrossKinds(t *testing.T) {
	s := NewScheduler(nil)
	s.StartStreaming(0)

	p := &scriptedPuller{units: []AccessUnit{
		{PID: 0x101, Kind: StreamKindVideo, DTS: 0},
		{PID: 0x102, Kind: StreamKindAudio, DTS: 1 * 90},
		{PID: 0x101, Kind: StreamKindVideo, DTS: 2 * 90},
		{PID: 0x102, Kind: StreamKindAudio, DTS: 3 * 90},
	}}

	var order []StreamKind
	s.OnVideo(func(au AccessUnit) { order = append(order, StreamKindVideo) })
	s.OnAudio(func(au AccessUnit) { order = append(order, StreamKindAudio) })

	done := make(chan struct{})
	s.OnEnd(func() { close(done) })

	go func() {
		_ = s.Run(p.pull)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not reach end of stream in time")
	}

	assert.Equal(t, []StreamKind{StreamKindVideo, StreamKindAudio, StreamKindVideo, StreamKindAudio}, order)
}

func TestSchedulerGetTimeUntilDTSBeforeAnchor(t *testing.T) {
	s := NewScheduler(nil)
	s.StartStreaming(0)
	_, err := s.GetTimeUntilDTS(90000)
	assert.ErrorIs(t, err, ErrNoAnchorYet)
}

func TestSchedulerCloseStopsRunWithoutEmittingEnd(t *testing.T) {
	s := NewScheduler(nil)
	s.StartStreaming(0)

	endFired := false
	s.OnEnd(func() { endFired = true })

	// A puller that blocks until Close is observed would hang Run forever;
	// instead feed an anchor unit (the first unit's DTS is the anchor, so it
	// is due at once) followed by a unit an hour later, so Run is waiting
	// on its timer when Close fires.
	p := &scriptedPuller{units: []AccessUnit{
		{PID: 0x101, Kind: StreamKindVideo, DTS: 0},
		{PID: 0x101, Kind: StreamKindVideo, DTS: 90000 * 3600},
	}}

	runDone := make(chan error, 1)
	go func() { runDone <- s.Run(p.pull) }()

	time.Sleep(50 * time.Millisecond)
	s.Close()

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	assert.False(t, endFired)
}

func TestSchedulerEmitsEndExactlyOnce(t *testing.T) {
	s := NewScheduler(nil)
	s.StartStreaming(0)

	count := 0
	s.OnEnd(func() { count++ })

	p := &scriptedPuller{}
	assert.NoError(t, s.Run(p.pull))
	s.emitEnd()

	assert.Equal(t, 1, count)
}
