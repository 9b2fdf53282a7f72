package download

import (
	"fmt"
	"sync"
	"time"

	"github.com/kestrad/modelgrab/internal/utils"
)

// ProgressFunc receives throttled progress updates. For byte-oriented
// downloads the third argument is a transfer rate ("1.25 MB/s"); for batch
// jobs it is a completion descriptor ("12/40"). Callbacks run synchronously
// on the transfer goroutine and must return promptly.
type ProgressFunc func(downloaded, total int64, speed string)

// reporter coalesces byte progress into at most one callback per interval,
// plus one unconditional callback at completion. Its mutex is also the
// single lock under which parallel chunk workers sum their counters, so a
// reader never observes a torn total.
type reporter struct {
	mu         sync.Mutex
	cb         ProgressFunc
	interval   time.Duration
	total      int64
	downloaded int64
	lastReport time.Time
	lastBytes  int64
	start      time.Time
}

func newReporter(cb ProgressFunc, total int64, interval time.Duration) *reporter {
	now := time.Now()
	return &reporter{
		cb:         cb,
		interval:   interval,
		total:      total,
		lastReport: now,
		start:      now,
	}
}

// seed sets the starting offset (resume position) without firing a callback.
func (r *reporter) seed(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloaded = n
	r.lastBytes = n
}

func (r *reporter) add(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.downloaded += n
	if r.cb == nil {
		return
	}
	now := time.Now()
	elapsed := now.Sub(r.lastReport)
	if elapsed < r.interval {
		return
	}
	speed := float64(r.downloaded-r.lastBytes) / elapsed.Seconds()
	r.cb(r.downloaded, r.total, utils.FormatSpeed(speed))
	r.lastReport = now
	r.lastBytes = r.downloaded
}

// count returns the bytes accumulated so far.
func (r *reporter) count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.downloaded
}

// finish always fires one final callback, even when the whole transfer fit
// inside a single throttle window.
func (r *reporter) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cb == nil {
		return
	}
	elapsed := time.Since(r.start).Seconds()
	if elapsed <= 0 {
		elapsed = 0.001
	}
	speed := float64(r.downloaded) / elapsed
	r.cb(r.downloaded, r.total, utils.FormatSpeed(speed))
}

// batchProgress reports completed-task counts for batch jobs: at most one
// update per interval on completions, a background timer that keeps the
// indicator alive while a slow item is in flight, and one guaranteed final
// update once every task has resolved.
type batchProgress struct {
	mu         sync.Mutex
	cb         ProgressFunc
	interval   time.Duration
	total      int
	done       int
	lastReport time.Time
	stopCh     chan struct{}
	stopped    bool
}

func newBatchProgress(cb ProgressFunc, total int, interval time.Duration) *batchProgress {
	if interval <= 0 {
		// time.NewTicker panics on a non-positive interval.
		interval = 100 * time.Millisecond
	}
	return &batchProgress{
		cb:         cb,
		interval:   interval,
		total:      total,
		lastReport: time.Now(),
		stopCh:     make(chan struct{}),
	}
}

func (b *batchProgress) start() {
	if b.cb == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-b.stopCh:
				return
			case <-ticker.C:
				b.mu.Lock()
				b.fire()
				b.mu.Unlock()
			}
		}
	}()
}

// complete records one resolved task (success or failure) and reports if
// the throttle window has elapsed.
func (b *batchProgress) complete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done++
	if b.cb == nil {
		return
	}
	if time.Since(b.lastReport) >= b.interval {
		b.fire()
	}
}

// finish stops the flush timer and emits the final update, which always
// reports done == total.
func (b *batchProgress) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.stopped {
		b.stopped = true
		close(b.stopCh)
	}
	if b.cb != nil {
		b.fire()
	}
}

// fire is called with b.mu held.
func (b *batchProgress) fire() {
	if b.cb == nil {
		return
	}
	b.cb(int64(b.done), int64(b.total), fmt.Sprintf("%d/%d", b.done, b.total))
	b.lastReport = time.Now()
}
