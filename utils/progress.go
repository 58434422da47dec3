package utils

import (
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"
)

// fractionScale is the bar resolution used when the byte total is unknown
const fractionScale = 1000

// ProgressTracker renders task progress fractions as a terminal progress bar
type ProgressTracker struct {
	bar       *pb.ProgressBar
	quiet     bool
	out       io.Writer
	label     string
	startTime time.Time
	total     int64 // bytes, 0 when unknown
	fraction  float64
	mutex     sync.RWMutex
}

// TransferSummary contains final transfer statistics
type TransferSummary struct {
	Label        string
	TotalBytes   int64
	TotalTime    time.Duration
	AverageSpeed float64 // bytes per second
}

// NewProgressTracker creates a bar for one transfer. total is the expected
// byte count, or 0 if unknown, in which case the bar shows a percentage only.
func NewProgressTracker(label string, total int64, quiet bool) *ProgressTracker {
	return NewProgressTrackerTo(os.Stderr, label, total, quiet)
}

// NewProgressTrackerTo is NewProgressTracker writing to out
func NewProgressTrackerTo(out io.Writer, label string, total int64, quiet bool) *ProgressTracker {
	tracker := &ProgressTracker{
		quiet:     quiet,
		out:       out,
		label:     label,
		startTime: time.Now(),
		total:     total,
	}

	if !quiet {
		var bar *pb.ProgressBar
		if total > 0 {
			tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}`
			bar = pb.ProgressBarTemplate(tmpl).New(int(total))
			bar.Set(pb.Bytes, true)
			bar.Set(pb.SIBytesPrefix, true)
		} else {
			tmpl := `{{string . "prefix"}}{{bar . }} {{percent . }} {{etime . }}`
			bar = pb.ProgressBarTemplate(tmpl).New(fractionScale)
		}
		bar.Set("prefix", label+": ")
		bar.SetWriter(out)
		tracker.bar = bar.Start()
	}

	return tracker
}

// UpdateFraction moves the bar to fraction of the total. Values outside
// [0,1] are clamped.
func (p *ProgressTracker) UpdateFraction(fraction float64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	fraction = math.Max(0, math.Min(1, fraction))
	p.fraction = fraction

	if p.bar != nil {
		p.bar.SetCurrent(p.scaled(fraction))
	}
}

func (p *ProgressTracker) scaled(fraction float64) int64 {
	if p.total > 0 {
		return int64(fraction * float64(p.total))
	}
	return int64(fraction * fractionScale)
}

// Finish completes the progress bar and returns a transfer summary
func (p *ProgressTracker) Finish() *TransferSummary {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	totalTime := time.Since(p.startTime)
	if p.bar != nil {
		p.bar.Finish()
	}

	transferred := int64(p.fraction * float64(p.total))
	summary := &TransferSummary{
		Label:      p.label,
		TotalBytes: transferred,
		TotalTime:  totalTime,
	}
	if secs := totalTime.Seconds(); secs > 0 {
		summary.AverageSpeed = float64(transferred) / secs
	}
	return summary
}

// Fraction returns the last reported fraction
func (p *ProgressTracker) Fraction() float64 {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return p.fraction
}

// IsQuiet returns whether the tracker is in quiet mode
func (p *ProgressTracker) IsQuiet() bool {
	return p.quiet
}

// String renders the summary the way the CLI prints it
func (s *TransferSummary) String() string {
	if s.TotalBytes == 0 {
		return fmt.Sprintf("%s finished in %v", s.Label, s.TotalTime.Round(time.Millisecond))
	}
	return fmt.Sprintf("%s: %s in %v (%s/s)",
		s.Label,
		humanize.IBytes(uint64(s.TotalBytes)),
		s.TotalTime.Round(time.Millisecond),
		humanize.IBytes(uint64(s.AverageSpeed)))
}

// BatchTracker counts finished items of a batch, such as a page of thumbnails
type BatchTracker struct {
	bar    *pb.ProgressBar
	mutex  sync.Mutex
	done   int
	failed int
	total  int
}

// NewBatchTracker creates a counter bar for total items
func NewBatchTracker(out io.Writer, label string, total int, quiet bool) *BatchTracker {
	b := &BatchTracker{total: total}
	if !quiet {
		tmpl := `{{string . "prefix"}}{{counters . }} {{bar . }} {{string . "failed"}}`
		bar := pb.ProgressBarTemplate(tmpl).New(total)
		bar.Set("prefix", label+": ")
		bar.SetWriter(out)
		b.bar = bar.Start()
	}
	return b
}

// Done records one finished item
func (b *BatchTracker) Done(ok bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.done++
	if !ok {
		b.failed++
	}
	if b.bar != nil {
		b.bar.Increment()
		if b.failed > 0 {
			b.bar.Set("failed", fmt.Sprintf("(%d failed)", b.failed))
		}
	}
}

// Finish completes the bar and returns the done and failed counts
func (b *BatchTracker) Finish() (done, failed int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.bar != nil {
		b.bar.Finish()
	}
	return b.done, b.failed
}
