package uploadclient

import (
	"sync"
	"time"
)

// maxInFlightPercent is the ceiling reported until the server confirms the upload.
const maxInFlightPercent = 99

// tracker turns byte counts into monotonically non-decreasing progress reports.
type tracker struct {
	mu          sync.Mutex
	total       int64
	sent        int64
	started     time.Time
	now         func() time.Time
	lastPercent float64
	emit        func(Progress)
}

func newTracker(total int64, now func() time.Time, emit func(Progress)) *tracker {
	return &tracker{total: total, now: now, started: now(), emit: emit}
}

func (t *tracker) add(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent += n
	t.report(t.snapshot(false))
}

// complete reports 100% once the server has accepted the file.
func (t *tracker) complete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.report(t.snapshot(true))
}

// report runs the callback under t.mu so reports arrive in order.
func (t *tracker) report(p Progress) {
	if t.emit != nil {
		t.emit(p)
	}
}

// snapshot must be called with t.mu held.
func (t *tracker) snapshot(done bool) Progress {
	elapsed := t.now().Sub(t.started)
	percent := 100.0
	if !done {
		percent = 0
		if t.total > 0 {
			percent = float64(t.sent) / float64(t.total) * 100
		}
		if percent > maxInFlightPercent {
			percent = maxInFlightPercent
		}
	}
	if percent < t.lastPercent {
		percent = t.lastPercent
	}
	t.lastPercent = percent

	var rate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(t.sent) / secs
	}
	return Progress{
		BytesSent:      t.sent,
		TotalBytes:     t.total,
		Percent:        percent,
		BytesPerSecond: rate,
		Elapsed:        elapsed,
	}
}
