package tspacer

import "time"

// clockBaseHz is the 90 kHz clock PTS/DTS/PCR base values are ticked at.
const clockBaseHz = 90000

// ClockReference represents a 33-bit base / 9-bit extension MPEG clock
// value. PTS/DTS only ever carry a base (Extension stays 0); PCR/ESCR carry
// both, Extension ticking a 27 MHz clock.
type ClockReference struct {
	Base      int64 // 33 bits, 90 kHz.
	Extension int64 // 9 bits, 27 MHz.
}

// newClockReference builds a ClockReference, masking both fields to their
// wire width so a caller can't accidentally construct an out-of-range value.
func newClockReference(base, extension int64) *ClockReference {
	return &ClockReference{
		Base:      base & 0x1ffffffff,
		Extension: extension & 0x1ff,
	}
}

// Duration returns the clock reference as a time.Duration since zero, on
// the 27 MHz clock (Base*300 + Extension ticks).
func (c *ClockReference) Duration() time.Duration {
	ticks := c.Base*300 + c.Extension
	return time.Duration(ticks/27000000)*time.Second + time.Duration(ticks%27000000)*time.Second/27000000
}

// Time returns the clock reference as an absolute time.Time, treating it as
// an offset from the Unix epoch. Only meaningful for PCR/ESCR values taken
// from a stream whose clock happens to be epoch-anchored; callers pacing on
// PTS/DTS should use PTSMilliseconds instead.
func (c *ClockReference) Time() time.Time {
	return time.Unix(0, 0).Add(c.Duration())
}

// PTSMilliseconds converts a 90 kHz PTS/DTS base to milliseconds, per
// pts_to_ms(x) = x / 90.
func (c *ClockReference) PTSMilliseconds() int64 {
	return c.Base / 90
}

// ptsToMs converts a raw 90kHz timestamp to milliseconds.
func ptsToMs(pts int64) int64 {
	return pts / 90
}
