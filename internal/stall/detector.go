// Package stall decides when an active transfer has been slow for long enough
// to warrant a reconnect.
//
// A Detector keeps a sliding window of progress samples for one job. Samples
// arriving after a gap longer than MaxGap invalidate the window, because a
// pause or engine restart in between makes the byte delta meaningless.
package stall

import (
	"math"
	"sync"
	"time"
)

// Options tunes a Detector.
type Options struct {
	// Window is how much uninterrupted history must be observed before the
	// average speed is trusted.
	Window time.Duration
	// MaxGap is the largest tolerated spacing between consecutive samples.
	MaxGap time.Duration
	// Interval is the cadence at which samples are fed.
	Interval time.Duration
}

// DefaultOptions mirrors the default [monitor] configuration.
func DefaultOptions() Options {
	return Options{
		Window:   10 * time.Second,
		MaxGap:   time.Second,
		Interval: 250 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Window <= 0 {
		o.Window = def.Window
	}
	if o.MaxGap <= 0 {
		o.MaxGap = def.MaxGap
	}
	if o.Interval <= 0 {
		o.Interval = def.Interval
	}
	return o
}

// Sample is one observation of a job.
type Sample struct {
	Time      time.Time
	Speed     int64
	Completed int64
}

// Detector is safe for concurrent use.
type Detector struct {
	opts Options

	mu           sync.Mutex
	samples      []Sample
	reconnecting bool
}

// New returns an empty Detector.
func New(opts Options) *Detector {
	return &Detector{opts: opts.withDefaults()}
}

// Add appends a sample, discarding the window first when the sample follows
// a discontinuity. Samples are dropped while a reconnect is in flight.
func (d *Detector) Add(s Sample) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reconnecting {
		return
	}
	if n := len(d.samples); n > 0 {
		gap := s.Time.Sub(d.samples[n-1].Time)
		if gap > d.opts.MaxGap || gap < 0 {
			d.samples = d.samples[:0]
		}
	}
	d.samples = append(d.samples, s)
	d.pruneLocked()
}

func (d *Detector) pruneLocked() {
	latest := d.samples[len(d.samples)-1].Time
	drop := 0
	for drop < len(d.samples)-1 && latest.Sub(d.samples[drop].Time) > d.opts.Window {
		drop++
	}
	if drop > 0 {
		d.samples = append(d.samples[:0], d.samples[drop:]...)
	}
}

// HasEnoughSamples reports whether a full window has been observed. Each
// sample accounts for one Interval, so n samples cover n*Interval.
func (d *Detector) HasEnoughSamples() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hasEnoughLocked()
}

func (d *Detector) hasEnoughLocked() bool {
	if len(d.samples) == 0 {
		return false
	}
	span := d.samples[len(d.samples)-1].Time.Sub(d.samples[0].Time)
	return span+d.opts.Interval >= d.opts.Window
}

// AverageSpeed returns bytes per second across the window, or NaN when fewer
// than two samples span a non-zero duration.
func (d *Detector) AverageSpeed() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.averageLocked()
}

func (d *Detector) averageLocked() float64 {
	if len(d.samples) < 2 {
		return math.NaN()
	}
	first, last := d.samples[0], d.samples[len(d.samples)-1]
	elapsed := last.Time.Sub(first.Time).Seconds()
	if elapsed <= 0 {
		return math.NaN()
	}
	return float64(last.Completed-first.Completed) / elapsed
}

// Clear drops every sample.
func (d *Detector) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples = d.samples[:0]
}

// Len returns the number of retained samples.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples)
}

// Trip reports whether a full window averages below threshold bytes per
// second. On a stall it clears the window and marks the detector as
// reconnecting; further calls return false until Settle.
func (d *Detector) Trip(threshold float64) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.reconnecting || !d.hasEnoughLocked() {
		return 0, false
	}
	avg := d.averageLocked()
	if math.IsNaN(avg) || avg >= threshold {
		return 0, false
	}
	d.samples = d.samples[:0]
	d.reconnecting = true
	return avg, true
}

// Settle ends a reconnect started by Trip. Sampling restarts from an empty
// window.
func (d *Detector) Settle() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.samples = d.samples[:0]
	d.reconnecting = false
}

// Reconnecting reports whether a reconnect is in flight.
func (d *Detector) Reconnecting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reconnecting
}
