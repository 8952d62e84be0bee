package util

import (
	"math"
	"testing"
)

func TestNewStats(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		stats := NewStats(nil)
		if stats.Min != 0 || stats.Max != 0 || stats.Mean != 0 || stats.StdDeviation != 0 {
			t.Errorf("expected zero stats for empty input, got %+v", stats)
		}
	})

	t.Run("Basic", func(t *testing.T) {
		stats := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})
		if stats.Min != 2 {
			t.Errorf("expected min 2, got %v", stats.Min)
		}
		if stats.Max != 9 {
			t.Errorf("expected max 9, got %v", stats.Max)
		}
		if stats.Mean != 5 {
			t.Errorf("expected mean 5, got %v", stats.Mean)
		}
		// population standard deviation of this classic sample is exactly 2
		if math.Abs(stats.StdDeviation-2) > 1e-9 {
			t.Errorf("expected std deviation 2, got %v", stats.StdDeviation)
		}
	})

	t.Run("SingleValue", func(t *testing.T) {
		stats := NewStats([]float64{42})
		if stats.Min != 42 || stats.Max != 42 || stats.Mean != 42 {
			t.Errorf("unexpected stats for single value: %+v", stats)
		}
		if stats.StdDeviation != 0 {
			t.Errorf("expected zero deviation for single value, got %v", stats.StdDeviation)
		}
	})
}

func TestSizeHistogram(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		h := NewSizeHistogram()
		if h.GetCount() != 0 {
			t.Errorf("expected zero count, got %d", h.GetCount())
		}
		if h.AverageSize() != 0 {
			t.Errorf("expected zero average, got %d", h.AverageSize())
		}
		if h.MedianEstimate() != 0 {
			t.Errorf("expected zero median, got %d", h.MedianEstimate())
		}
	})

	t.Run("CountAndAverage", func(t *testing.T) {
		h := NewSizeHistogram()
		for _, size := range []int{10, 20, 30, 40} {
			h.AddSample(size)
		}
		if h.GetCount() != 4 {
			t.Errorf("expected count 4, got %d", h.GetCount())
		}
		if h.AverageSize() != 25 {
			t.Errorf("expected average 25, got %d", h.AverageSize())
		}
	})

	t.Run("PercentileEstimate", func(t *testing.T) {
		h := NewSizeHistogram()
		// 90 small samples and 10 large ones: p50 must land in the
		// smallest bucket, p99 in the 64KB..256KB bucket
		for i := 0; i < 90; i++ {
			h.AddSample(8)
		}
		for i := 0; i < 10; i++ {
			h.AddSample(100_000)
		}
		if est := h.GetPercentileEstimate(50); est != 8 { // boundaries[0]/2
			t.Errorf("expected p50 estimate 8, got %d", est)
		}
		if est := h.GetPercentileEstimate(99); est < 65536 || est > 262144 {
			t.Errorf("expected p99 estimate in 64KB..256KB bucket, got %d", est)
		}
	})

	t.Run("OverflowBucket", func(t *testing.T) {
		h := NewSizeHistogram()
		h.AddSample(5 << 30) // above the last boundary
		if est := h.GetPercentileEstimate(100); est != 4294967296*2 {
			t.Errorf("expected overflow estimate, got %d", est)
		}
	})

	t.Run("Reset", func(t *testing.T) {
		h := NewSizeHistogram()
		h.AddSample(1024)
		h.Reset()
		if h.GetCount() != 0 || h.AverageSize() != 0 {
			t.Errorf("expected empty histogram after reset")
		}
	})
}
