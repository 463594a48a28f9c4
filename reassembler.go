package tspacer

import "sort"

// pidFragment accumulates the transport packets of one in-progress PES (or
// PSI) unit for a single PID, mirroring the teacher's packetAccumulator
// (packet_pool.go). It keeps the packets themselves and concatenates their
// payloads into one byte slice (payload) when the unit is handed out, since
// PES/PSI decoding only ever needs the payload.
type pidFragment struct {
	packets    []*Packet
	startAF    *AdaptationField
	totalBytes int
}

func (f *pidFragment) hasDiscontinuity(p *Packet) bool {
	if p.Header.HasAdaptationField && p.AdaptationField.DiscontinuityIndicator {
		return true
	}
	if len(f.packets) == 0 {
		return false
	}
	last := f.packets[len(f.packets)-1]
	if p.Header.HasPayload && p.Header.ContinuityCounter != (last.Header.ContinuityCounter+1)%16 {
		return true
	}
	if !p.Header.HasPayload && p.Header.ContinuityCounter != last.Header.ContinuityCounter {
		return true
	}
	return false
}

func (f *pidFragment) isSameAsPrevious(p *Packet) bool {
	return len(f.packets) > 0 && p.Header.HasPayload && p.Header.ContinuityCounter == f.packets[len(f.packets)-1].Header.ContinuityCounter
}

func (f *pidFragment) payload() []byte {
	item := bytesPool.get(0)
	for _, p := range f.packets {
		item.s = append(item.s, p.Payload...)
	}
	out := make([]byte, len(item.s))
	copy(out, item.s)
	bytesPool.put(item)
	return out
}

// Reassembler groups transport packet payloads into complete PES/PSI units,
// per §4.3: a PUSI-marked packet closes whatever was buffered for that PID
// and starts a new unit.
type Reassembler struct {
	frags   map[uint16]*pidFragment
	metrics *Metrics
}

// NewReassembler creates an empty Reassembler.
func NewReassembler(m *Metrics) *Reassembler {
	if m == nil {
		m = nopMetrics()
	}
	return &Reassembler{frags: make(map[uint16]*pidFragment), metrics: m}
}

// Feed admits one transport packet. When p's PID had a complete unit
// buffered up (closed by this packet's PUSI), Feed returns that unit's
// payload and ready=true; the packet itself starts the PID's new unit.
// Packets with the error indicator set, or without a payload, never
// contribute to reassembly.
func (re *Reassembler) Feed(p *Packet) (pid uint16, payload []byte, af *AdaptationField, ready bool) {
	if p.Header.TransportErrorIndicator || !p.Header.HasPayload {
		return 0, nil, nil, false
	}

	pid = p.Header.PID
	f, ok := re.frags[pid]
	if !ok {
		f = &pidFragment{}
		re.frags[pid] = f
	}

	if f.hasDiscontinuity(p) {
		f.packets = nil
		f.totalBytes = 0
	}
	if f.isSameAsPrevious(p) {
		return pid, nil, nil, false
	}

	if p.Header.PayloadUnitStartIndicator {
		if len(f.packets) > 0 {
			payload = f.payload()
			af = f.startAF
			ready = true
		}
		f.packets = []*Packet{p}
		f.startAF = p.AdaptationField
		f.totalBytes = len(p.Payload)
	} else {
		if f.totalBytes+len(p.Payload) > maxUnboundedPESBytes {
			re.metrics.fragmentsDroppedTotal.Inc()
			logger.Sugar().Warnw("tspacer: dropping in-progress fragment past the unbounded-length cap",
				"pid", pid, "bytes", f.totalBytes)
			f.packets = nil
			f.totalBytes = 0
			return pid, nil, nil, false
		}
		f.packets = append(f.packets, p)
		f.totalBytes += len(p.Payload)
	}
	return pid, payload, af, ready
}

// ReassembledUnit is one flushed, possibly-incomplete unit produced by
// Flush at end of stream.
type ReassembledUnit struct {
	PID             uint16
	Payload         []byte
	AdaptationField *AdaptationField
	IsLast          bool
}

// Flush drains every PID's buffered fragment, in ascending PID order, and
// marks the final one IsLast. Called once at end of input (§4.3: "at EOF,
// flush all pending PIDs in ascending PID order").
func (re *Reassembler) Flush() []ReassembledUnit {
	var pids []int
	for pid, f := range re.frags {
		if len(f.packets) > 0 {
			pids = append(pids, int(pid))
		}
	}
	sort.Ints(pids)

	out := make([]ReassembledUnit, 0, len(pids))
	for _, ipid := range pids {
		pid := uint16(ipid)
		f := re.frags[pid]
		out = append(out, ReassembledUnit{PID: pid, Payload: f.payload(), AdaptationField: f.startAF})
		delete(re.frags, pid)
	}
	if len(out) > 0 {
		out[len(out)-1].IsLast = true
	}
	return out
}
