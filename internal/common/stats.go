package common

import (
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"
)

// Stats holds atomic counters for progress tracking of long runs: records
// parsed while loading and resampling iterations during significance tests.
type Stats struct {
	TotalRecords    uint64 // Records parsed
	TotalBytesRead  uint64 // Raw bytes read from station files
	TotalIterations uint64 // Resampling iterations completed
	TargetIteration uint64 // Planned iterations, 0 if unknown

	running  atomic.Bool
	stopCh   chan struct{}
	silent   bool
	out      io.Writer
	lastIter uint64
	lastTime time.Time

	// Moving average of iterations/sec
	rateWindow []float64
	rateIndex  int
}

// NewStats creates a new Stats instance reporting to stdout.
func NewStats() *Stats {
	return &Stats{
		stopCh:     make(chan struct{}),
		out:        os.Stdout,
		rateWindow: make([]float64, 10), // 10-sample moving average (5 seconds)
	}
}

// AddRecords atomically increments the parsed-record counter.
func (s *Stats) AddRecords(count uint64) {
	atomic.AddUint64(&s.TotalRecords, count)
}

// AddBytes atomically increments the bytes-read counter.
func (s *Stats) AddBytes(count uint64) {
	atomic.AddUint64(&s.TotalBytesRead, count)
}

// AddIterations atomically increments the iteration counter.
func (s *Stats) AddIterations(count uint64) {
	atomic.AddUint64(&s.TotalIterations, count)
}

// SetTarget records how many iterations the run will perform.
func (s *Stats) SetTarget(n uint64) {
	atomic.StoreUint64(&s.TargetIteration, n)
}

func (s *Stats) Records() uint64    { return atomic.LoadUint64(&s.TotalRecords) }
func (s *Stats) Bytes() uint64      { return atomic.LoadUint64(&s.TotalBytesRead) }
func (s *Stats) Iterations() uint64 { return atomic.LoadUint64(&s.TotalIterations) }

// SetSilent enables or disables silent mode.
func (s *Stats) SetSilent(silent bool) {
	s.silent = silent
}

// SetOutput redirects progress lines.
func (s *Stats) SetOutput(w io.Writer) {
	s.out = w
}

// StartReporter starts a background goroutine that prints progress every 500ms.
func (s *Stats) StartReporter() {
	if s.running.Load() {
		return
	}

	s.running.Store(true)
	s.lastTime = time.Now()
	s.lastIter = s.Iterations()

	go s.reporterLoop()
}

// StopReporter stops the background reporter goroutine.
func (s *Stats) StopReporter() {
	if !s.running.Load() {
		return
	}

	s.running.Store(false)
	close(s.stopCh)
}

func (s *Stats) reporterLoop() {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.printStatus(time.Now())
		}
	}
}

// printStatus uses newline-based output so it interleaves with log.Printf.
func (s *Stats) printStatus(now time.Time) {
	if s.silent {
		return
	}

	elapsed := now.Sub(s.lastTime).Seconds()
	if elapsed < 0.001 {
		return
	}

	iters := s.Iterations()
	rate := float64(iters-s.lastIter) / elapsed

	s.rateWindow[s.rateIndex] = rate
	s.rateIndex = (s.rateIndex + 1) % len(s.rateWindow)

	var sum float64
	var count int
	for _, r := range s.rateWindow {
		if r > 0 {
			sum += r
			count++
		}
	}
	smoothed := 0.0
	if count > 0 {
		smoothed = sum / float64(count)
	}

	progress := ""
	if target := atomic.LoadUint64(&s.TargetIteration); target > 0 {
		progress = fmt.Sprintf(" (%.1f%%)", 100*float64(iters)/float64(target))
	}

	fmt.Fprintf(s.out, "[Progress] Records: %d | Read: %.2f MiB | Iterations: %d%s | Rate: %.0f it/s (avg: %.0f)\n",
		s.Records(),
		float64(s.Bytes())/(1024*1024),
		iters,
		progress,
		rate,
		smoothed,
	)

	s.lastIter = iters
	s.lastTime = now
}

// Reset resets all counters.
func (s *Stats) Reset() {
	atomic.StoreUint64(&s.TotalRecords, 0)
	atomic.StoreUint64(&s.TotalBytesRead, 0)
	atomic.StoreUint64(&s.TotalIterations, 0)
	atomic.StoreUint64(&s.TargetIteration, 0)
	s.lastIter = 0
	s.lastTime = time.Now()

	for i := range s.rateWindow {
		s.rateWindow[i] = 0
	}
	s.rateIndex = 0
}
