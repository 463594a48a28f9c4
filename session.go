package tspacer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// pidPAT is the fixed well-known PAT PID, per ISO/IEC 13818-1 Table 2-3.
const pidPAT = 0x0000

// maxPreloadBytes caps how much of a TS file Open will read into memory,
// per §6.
const maxPreloadBytes = 1 << 30

// Session owns one demuxing/pacing run end to end: it replaces the
// process-wide globals the original implementation kept with a single
// value created by Open and torn down by Close, per the design notes (§9).
type Session struct {
	buf []byte

	framer       *Framer
	reassembler  *Reassembler
	programTable *ProgramTable
	scheduler    *Scheduler
	metrics      *Metrics
	aac          AudioSpecificConfigEncoder

	unparsedPES []ReassembledUnit
	readyQueue  []AccessUnit
	flushed     bool

	currentPTS int64
}

// SessionOpt configures a Session at construction, mirroring the teacher's
// functional-option pattern (DemuxerOptPacketSize, DemuxerOptPacketsParser).
type SessionOpt func(*Session)

// WithMetrics attaches a Metrics instance; without this option a Session
// uses a no-op Metrics.
func WithMetrics(m *Metrics) SessionOpt {
	return func(s *Session) { s.metrics = m }
}

// WithAudioSpecificConfigEncoder attaches the AAC collaborator used by the
// SDP codec; without this option a Session uses NullAACEncoder.
func WithAudioSpecificConfigEncoder(enc AudioSpecificConfigEncoder) SessionOpt {
	return func(s *Session) { s.aac = enc }
}

// Open preloads path into memory (capped at 1GiB) and returns a Session
// ready for StartStreaming, per §6's open(path) lifecycle call.
func Open(path string, opts ...SessionOpt) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tspacer: opening %q failed: %w", path, err)
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, maxPreloadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("tspacer: reading %q failed: %w", path, err)
	}
	if len(buf) > maxPreloadBytes {
		return nil, fmt.Errorf("tspacer: %q exceeds the %d byte preload cap", path, maxPreloadBytes)
	}

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
	return s, nil
}

// Close releases the preloaded buffer and cancels any pending emission.
func (s *Session) Close() {
	s.scheduler.Close()
	s.buf = nil
}

// Metrics returns the Session's metrics collector.
func (s *Session) Metrics() *Metrics { return s.metrics }

// PtsToMs converts a 90kHz timestamp to milliseconds.
func (s *Session) PtsToMs(pts int64) int64 { return ptsToMs(pts) }

// GetCurrentPts returns the PTS of the most recently decoded access unit.
func (s *Session) GetCurrentPts() int64 { return s.currentPTS }

// GetTimeUntilDTS reports how long until dts is due, failing with
// ErrNoAnchorYet before the first DTS anchor is established.
func (s *Session) GetTimeUntilDTS(dts int64) (time.Duration, error) {
	return s.scheduler.GetTimeUntilDTS(dts)
}

// On registers a listener for "audio", "video", or "end" events, per §6's
// observer registration API.
func (s *Session) On(event string, listener interface{}) error {
	switch event {
	case "audio":
		l, ok := listener.(func(AccessUnit))
		if !ok {
			return fmt.Errorf("tspacer: \"audio\" listener must be func(AccessUnit)")
		}
		s.scheduler.OnAudio(l)
	case "video":
		l, ok := listener.(func(AccessUnit))
		if !ok {
			return fmt.Errorf("tspacer: \"video\" listener must be func(AccessUnit)")
		}
		s.scheduler.OnVideo(l)
	case "end":
		l, ok := listener.(func())
		if !ok {
			return fmt.Errorf("tspacer: \"end\" listener must be func()")
		}
		s.scheduler.OnEnd(l)
	default:
		return fmt.Errorf("tspacer: unknown event %q", event)
	}
	return nil
}

// StartStreaming anchors the pacing scheduler and starts emission in the
// background; events arrive via listeners registered through On.
func (s *Session) StartStreaming(initialSkip time.Duration) {
	s.scheduler.StartStreaming(initialSkip)
	go func() {
		if err := s.scheduler.Run(s.pull); err != nil {
			logger.Sugar().Errorw("tspacer: scheduler run failed", "error", err)
		}
	}()
}

// pull is the producer loop's PullFunc: it advances the framer, feeds the
// reassembler, classifies each completed unit, and hands the scheduler the
// next classified access unit. Structural errors drop the offending unit
// and resume at the next PUSI, per §7's policy; a lost sync or a read past
// the end of the preloaded buffer marks EOF and lets the scheduler drain.
func (s *Session) pull() (*AccessUnit, error) {
	if au, ok := s.popReady(); ok {
		return &au, nil
	}

	for {
		p, err := s.framer.NextPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return s.pullFlushed()
			}
			logger.Sugar().Warnw("tspacer: framer terminated the producer loop", "error", err)
			return s.pullFlushed()
		}

		// PAT/PMT sections are small enough to always fit in a single TS
		// packet's payload in this pipeline's scope, so they're parsed the
		// instant their PUSI packet arrives rather than waiting on the
		// reassembler's next-PUSI-closes-the-unit rule, which exists for
		// PES units that may legitimately span many packets.
		if p.Header.PayloadUnitStartIndicator && (p.Header.PID == pidPAT || s.programTable.IsPMTPID(p.Header.PID)) {
			if err := s.handleUnit(p.Header.PID, p.Payload, p.AdaptationField); err != nil {
				logger.Sugar().Debugw("tspacer: dropping PSI unit", "pid", p.Header.PID, "error", err)
			}
			if au, ok := s.popReady(); ok {
				return &au, nil
			}
			continue
		}

		pid, payload, af, ready := s.reassembler.Feed(p)
		if !ready {
			continue
		}
		if err := s.handleUnit(pid, payload, af); err != nil {
			logger.Sugar().Debugw("tspacer: dropping unit", "pid", pid, "error", err)
		}
		if au, ok := s.popReady(); ok {
			return &au, nil
		}
	}
}

func (s *Session) pullFlushed() (*AccessUnit, error) {
	if au, ok := s.popReady(); ok {
		return &au, nil
	}
	if !s.flushed {
		s.flushed = true
		for _, u := range s.reassembler.Flush() {
			if err := s.handleUnit(u.PID, u.Payload, u.AdaptationField); err != nil {
				logger.Sugar().Debugw("tspacer: dropping flushed unit", "pid", u.PID, "error", err)
			}
		}
	}
	if au, ok := s.popReady(); ok {
		return &au, nil
	}
	return nil, io.EOF
}

func (s *Session) popReady() (AccessUnit, bool) {
	if len(s.readyQueue) == 0 {
		return AccessUnit{}, false
	}
	au := s.readyQueue[0]
	s.readyQueue = s.readyQueue[1:]
	return au, true
}

// handleUnit dispatches one reassembled PSI/PES unit by PID: PAT and known
// PMT PIDs update the program table, audio/video PIDs decode to an
// AccessUnit appended to readyQueue, and everything else is deferred until
// a PMT arrives, per §4.4's deferred-parse rule.
func (s *Session) handleUnit(pid uint16, payload []byte, af *AdaptationField) error {
	switch {
	case pid == pidPAT:
		pat, err := ParsePAT(payload)
		if err != nil {
			return err
		}
		s.programTable.ApplyPAT(pat)
		return nil
	case s.programTable.IsPMTPID(pid):
		pmt, err := ParsePMT(payload)
		if err != nil {
			return err
		}
		s.programTable.ApplyPMT(pmt)
		s.drainDeferred()
		return nil
	default:
		kind := s.programTable.KindOf(pid)
		if kind == StreamKindUnknown {
			s.unparsedPES = append(s.unparsedPES, ReassembledUnit{PID: pid, Payload: payload, AdaptationField: af})
			s.metrics.deferredPESGauge.Set(float64(len(s.unparsedPES)))
			return nil
		}
		au, err := s.decodePES(pid, kind, payload, af)
		if err != nil {
			return err
		}
		if au != nil {
			s.readyQueue = append(s.readyQueue, *au)
		}
		return nil
	}
}

// drainDeferred re-dispatches every entry in unparsedPES, in arrival
// order, now that the program table may classify them; entries that still
// match no known PID are dropped, per §4.4.
func (s *Session) drainDeferred() {
	pending := s.unparsedPES
	s.unparsedPES = nil
	s.metrics.deferredPESGauge.Set(0)
	for _, u := range pending {
		kind := s.programTable.KindOf(u.PID)
		if kind == StreamKindUnknown {
			continue
		}
		au, err := s.decodePES(u.PID, kind, u.Payload, u.AdaptationField)
		if err != nil {
			logger.Sugar().Debugw("tspacer: dropping deferred unit", "pid", u.PID, "error", err)
			continue
		}
		if au != nil {
			s.readyQueue = append(s.readyQueue, *au)
		}
	}
}

// decodePES parses a PES payload into an AccessUnit. DTS defaults to PTS
// when absent, per §3's invariant; a PES missing PTS entirely is a fatal
// ErrMissingPTS for that unit.
func (s *Session) decodePES(pid uint16, kind StreamKind, payload []byte, af *AdaptationField) (*AccessUnit, error) {
	pes, err := ParsePES(payload)
	if err != nil {
		return nil, fmt.Errorf("tspacer: parsing PES on PID %#x failed: %w", pid, err)
	}
	if pes.Header == nil || !pes.Header.HasPTS {
		return nil, ErrMissingPTS
	}

	pts := pes.Header.PTS.Base
	dts := pts
	if pes.Header.HasDTS {
		dts = pes.Header.DTS.Base
	}

	if sidKind := classifyStreamID(pes.StreamID); sidKind != StreamKindUnknown && sidKind != kind {
		logger.Sugar().Warnw("tspacer: PES stream_id disagrees with PMT stream type",
			"pid", pid, "stream_id", pes.StreamID, "pmt_kind", kind, "stream_id_kind", sidKind)
	}

	s.metrics.pesReassembledTotal.WithLabelValues(kind.String()).Inc()
	s.currentPTS = pts

	return &AccessUnit{
		PID:             pid,
		Kind:            kind,
		PTS:             pts,
		DTS:             dts,
		Payload:         pes.Data,
		AdaptationField: af,
	}, nil
}
