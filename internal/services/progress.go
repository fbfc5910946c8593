package services

import (
	"math"
	"sync"

	"github.com/kelsos/ledger-sync/internal/metrics"
	"github.com/kelsos/ledger-sync/internal/models"
)

// progressTracker maps completed work onto a slice of the 0-100 range. Increment and report
// happen under one lock so concurrent tasks never report a lower percentage after a higher one.
type progressTracker struct {
	mu      sync.Mutex
	phase   models.SyncPhase
	base    int
	span    int
	total   int
	done    int
	last    int
	report  func(models.SyncProgress)
	metrics *metrics.Metrics
}

func newProgressTracker(phase models.SyncPhase, base, span, total int, report func(models.SyncProgress), m *metrics.Metrics) *progressTracker {
	return &progressTracker{
		phase:   phase,
		base:    base,
		span:    span,
		total:   total,
		last:    base,
		report:  report,
		metrics: m,
	}
}

func percentage(base, span, done, total int) int {
	if total <= 0 {
		return base + span
	}
	return base + int(math.Round(float64(done)/float64(total)*float64(span)))
}

// tick records one finished unit of work and reports the new progress
func (t *progressTracker) tick() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done < t.total {
		t.done++
	}

	pct := percentage(t.base, t.span, t.done, t.total)
	if pct < t.last {
		pct = t.last
	}
	t.last = pct

	p := models.SyncProgress{
		Scanned:    t.done,
		Total:      t.total,
		Percentage: pct,
		Phase:      t.phase,
	}
	t.metrics.Progress(p)
	if t.report != nil {
		t.report(p)
	}
}
