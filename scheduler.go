package tspacer

import (
	"errors"
	"io"
	"sync"
	"time"
)

// advance is how far ahead of an access unit's due time the scheduler
// fires its timer, per §4.6.
const advance = 20 * time.Millisecond

// AccessUnit is one decoded, classified PES access unit ready for pacing.
type AccessUnit struct {
	PID             uint16
	Kind            StreamKind
	PTS             int64
	DTS             int64
	Payload         []byte
	AdaptationField *AdaptationField
}

// emitAtOffsetMs returns (dts-firstDTS)/90, the milliseconds this unit is
// due after streamingStartTime.
func (a AccessUnit) emitAtOffsetMs(firstDTS int64) int64 {
	return (a.DTS - firstDTS) / 90
}

// PullFunc produces the next classified access unit, or io.EOF when the
// input and every reassembly buffer are drained.
type PullFunc func() (*AccessUnit, error)

// AudioVideoListener receives audio/video emission events.
type AudioVideoListener func(AccessUnit)

// EndListener receives the end-of-stream event.
type EndListener func()

// Scheduler paces audio/video access unit emission against their DTS
// relative to a wall-clock anchor, per §4.6. It is the single-threaded
// cooperative state machine the spec's design notes call for: a producer
// loop that fills two bounded look-ahead queues, and a timer that drains
// them in DTS order.
type Scheduler struct {
	metrics *Metrics

	streamingStartTime time.Time
	firstDTS            *int64

	pendingVideo []AccessUnit
	pendingAudio []AccessUnit

	isEOF     bool
	stopCh    chan struct{}
	closeOnce sync.Once

	onAudio []AudioVideoListener
	onVideo []AudioVideoListener
	onEnd   []EndListener
	endFired bool
}

// NewScheduler creates a Scheduler. StartStreaming must be called before
// Run.
func NewScheduler(m *Metrics) *Scheduler {
	if m == nil {
		m = nopMetrics()
	}
	return &Scheduler{metrics: m, stopCh: make(chan struct{})}
}

// OnAudio registers a listener for audio emission events.
func (s *Scheduler) OnAudio(l AudioVideoListener) { s.onAudio = append(s.onAudio, l) }

// OnVideo registers a listener for video emission events.
func (s *Scheduler) OnVideo(l AudioVideoListener) { s.onVideo = append(s.onVideo, l) }

// OnEnd registers a listener for the end-of-stream event.
func (s *Scheduler) OnEnd(l EndListener) { s.onEnd = append(s.onEnd, l) }

// StartStreaming sets streaming_start_time = now() - initialSkip, per §4.6.
func (s *Scheduler) StartStreaming(initialSkip time.Duration) {
	s.streamingStartTime = time.Now().Add(-initialSkip)
}

// Close signals Run to stop. It only ever closes stopCh: the pending queues
// and every other field Run owns are mutated exclusively by Run's own
// goroutine (torn down there once it observes the close), so Close never
// touches them directly and needs no lock, per §5.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() { close(s.stopCh) })
}

// GetTimeUntilDTS returns how long until dts is due relative to the
// current anchor, failing with ErrNoAnchorYet before firstDTS is set.
func (s *Scheduler) GetTimeUntilDTS(dts int64) (time.Duration, error) {
	if s.firstDTS == nil {
		return 0, ErrNoAnchorYet
	}
	due := s.streamingStartTime.Add(time.Duration(dts-*s.firstDTS) * time.Millisecond / 90)
	return time.Until(due), nil
}

// Run drives the producer loop and the timer-based drain state machine
// until pull is exhausted and both queues empty, or Close is called.
func (s *Scheduler) Run(pull PullFunc) error {
	for {
		select {
		case <-s.stopCh:
			return s.teardown()
		default:
		}

		s.fill(pull)

		if s.isEOF && len(s.pendingVideo) == 0 && len(s.pendingAudio) == 0 {
			s.emitEnd()
			return nil
		}

		kind, head, ok := s.peekEarliest()
		if !ok {
			// Producer yielded nothing and we're not at EOF: nothing to
			// wait on yet, try again.
			continue
		}

		wait := s.dueTime(head.DTS).Add(-advance).Sub(time.Now())
		if wait > 0 {
			t := time.NewTimer(wait)
			select {
			case <-t.C:
			case <-s.stopCh:
				t.Stop()
				return s.teardown()
			}
		}

		s.dequeueAndEmit(kind)
	}
}

// teardown drops the pending queues on Run's own goroutine once it has
// observed stopCh closed. Every field it touches is otherwise only ever
// read or written from inside Run, so this never races with Close.
func (s *Scheduler) teardown() error {
	s.pendingVideo = nil
	s.pendingAudio = nil
	return nil
}

// fill pulls access units while BOTH queues have fewer than 2 entries,
// per §4.6's look-ahead rule.
func (s *Scheduler) fill(pull PullFunc) {
	for !s.isEOF && len(s.pendingVideo) < 2 && len(s.pendingAudio) < 2 {
		au, err := pull()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Sugar().Warnw("tspacer: producer loop terminated early", "error", err)
			}
			s.isEOF = true
			return
		}
		s.enqueue(*au)
	}
}

func (s *Scheduler) enqueue(au AccessUnit) {
	if s.firstDTS == nil {
		dts := au.DTS
		s.firstDTS = &dts
	}
	switch au.Kind {
	case StreamKindVideo:
		s.pendingVideo = append(s.pendingVideo, au)
		s.metrics.pendingQueueDepth.WithLabelValues("video").Set(float64(len(s.pendingVideo)))
	case StreamKindAudio:
		s.pendingAudio = append(s.pendingAudio, au)
		s.metrics.pendingQueueDepth.WithLabelValues("audio").Set(float64(len(s.pendingAudio)))
	}
}

func (s *Scheduler) dueTime(dts int64) time.Time {
	return s.streamingStartTime.Add(time.Duration(dts-*s.firstDTS) * time.Millisecond / 90)
}

// peekEarliest returns the queue head with the earliest due time.
func (s *Scheduler) peekEarliest() (StreamKind, *AccessUnit, bool) {
	var v, a *AccessUnit
	if len(s.pendingVideo) > 0 {
		v = &s.pendingVideo[0]
	}
	if len(s.pendingAudio) > 0 {
		a = &s.pendingAudio[0]
	}
	switch {
	case v == nil && a == nil:
		return StreamKindUnknown, nil, false
	case v == nil:
		return StreamKindAudio, a, true
	case a == nil:
		return StreamKindVideo, v, true
	case s.dueTime(v.DTS).Before(s.dueTime(a.DTS)):
		return StreamKindVideo, v, true
	default:
		return StreamKindAudio, a, true
	}
}

func (s *Scheduler) dequeueAndEmit(kind StreamKind) {
	var au AccessUnit
	switch kind {
	case StreamKindVideo:
		au, s.pendingVideo = s.pendingVideo[0], s.pendingVideo[1:]
		s.metrics.pendingQueueDepth.WithLabelValues("video").Set(float64(len(s.pendingVideo)))
	case StreamKindAudio:
		au, s.pendingAudio = s.pendingAudio[0], s.pendingAudio[1:]
		s.metrics.pendingQueueDepth.WithLabelValues("audio").Set(float64(len(s.pendingAudio)))
	default:
		return
	}

	s.metrics.emitLatencyMillis.Observe(float64(time.Since(s.dueTime(au.DTS)).Milliseconds()))

	switch kind {
	case StreamKindVideo:
		for _, l := range s.onVideo {
			l(au)
		}
	case StreamKindAudio:
		for _, l := range s.onAudio {
			l(au)
		}
	}
}

func (s *Scheduler) emitEnd() {
	if s.endFired {
		return
	}
	s.endFired = true
	for _, l := range s.onEnd {
		l()
	}
}
