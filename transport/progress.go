package transport

import (
	"io"
	"sync"
)

// progressTracker turns raw byte counts from one or more concurrent physical
// transfers into a single monotonically non-decreasing 0-100 percentage.
type progressTracker struct {
	mu       sync.Mutex
	total    int64
	done     int64
	lastPct  int
	callback func(pct int)
}

func newProgressTracker(total int64, callback func(pct int)) *progressTracker {
	return &progressTracker{total: total, callback: callback}
}

// add accumulates transferred bytes. The callback runs while the lock is
// held so concurrent physical calls cannot deliver percentages out of order.
func (t *progressTracker) add(n int64) {
	if t.callback == nil || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done += n
	pct := 100
	if t.total > 0 {
		pct = int(t.done * 100 / t.total)
		if pct > 100 {
			pct = 100
		}
	}
	if pct > t.lastPct {
		t.lastPct = pct
		t.callback(pct)
	}
}

// finish forces the tracker to 100. Called once the endpoint has answered
// so coarse transports still report a terminal percentage.
func (t *progressTracker) finish() {
	if t.callback == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastPct < 100 {
		t.lastPct = 100
		t.callback(100)
	}
}

// countingReader reports bytes handed to the HTTP transport. Bytes are
// counted as the transport reads them, which precedes acknowledgement, so
// finish() still supplies the terminal 100 once the endpoint has answered.
type countingReader struct {
	r       io.Reader
	tracker *progressTracker
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.tracker.add(int64(n))
	return n, err
}
