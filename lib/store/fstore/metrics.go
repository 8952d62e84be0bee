package fstore

import (
	"io"

	"github.com/VictoriaMetrics/metrics"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Operation Counters
// --------------------------------------------------------------------------

// opStats holds the lifetime operation counters. The counters are striped
// (xsync), so hot-path increments never serialize on a shared cache line
// even though the callers already hold the store mutex today.
type opStats struct {
	creates  *xsync.Counter
	reads    *xsync.Counter
	deletes  *xsync.Counter
	batches  *xsync.Counter
	expired  *xsync.Counter
	persists *xsync.Counter
}

func newOpStats() opStats {
	return opStats{
		creates:  xsync.NewCounter(),
		reads:    xsync.NewCounter(),
		deletes:  xsync.NewCounter(),
		batches:  xsync.NewCounter(),
		expired:  xsync.NewCounter(),
		persists: xsync.NewCounter(),
	}
}

// --------------------------------------------------------------------------
// Prometheus Exposition
// --------------------------------------------------------------------------

// RegisterMetrics registers the store's gauges on the given metrics set.
// All gauges read live state when the set is scraped, they hold no copies.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) RegisterMetrics(set *metrics.Set) {
	set.NewGauge(`skv_keys`, func() float64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return float64(len(s.table))
	})
	set.NewGauge(`skv_file_size_bytes`, func() float64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return float64(s.fileSize)
	})

	// percentiles over the sizes of all values ever written (histogram
	// estimate, not an exact scan)
	set.NewGauge(`skv_value_size_p50_bytes`, func() float64 {
		return float64(s.sizes.GetPercentileEstimate(50))
	})
	set.NewGauge(`skv_value_size_p95_bytes`, func() float64 {
		return float64(s.sizes.GetPercentileEstimate(95))
	})

	set.NewGauge(`skv_creates_total`, func() float64 {
		return float64(s.stats.creates.Value())
	})
	set.NewGauge(`skv_reads_total`, func() float64 {
		return float64(s.stats.reads.Value())
	})
	set.NewGauge(`skv_deletes_total`, func() float64 {
		return float64(s.stats.deletes.Value())
	})
	set.NewGauge(`skv_batches_total`, func() float64 {
		return float64(s.stats.batches.Value())
	})
	set.NewGauge(`skv_expired_total`, func() float64 {
		return float64(s.stats.expired.Value())
	})
	set.NewGauge(`skv_persists_total`, func() float64 {
		return float64(s.stats.persists.Value())
	})
}

// WriteMetrics writes the store's metrics in Prometheus text exposition
// format to w.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (s *Store) WriteMetrics(w io.Writer) {
	set := metrics.NewSet()
	s.RegisterMetrics(set)
	set.WritePrometheus(w)
}
