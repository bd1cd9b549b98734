package mask

import "math"

// Stats summarizes a mask in one linear scan.
type Stats struct {
	Min           float32 `json:"min"`
	Max           float32 `json:"max"`
	PositiveCount int     `json:"positive_count"`
	Total         int     `json:"total"`
}

// Analyze computes the statistics of m.
func Analyze(m *Mask) Stats {
	if m == nil {
		return Stats{}
	}
	return AnalyzeValues(m.Data)
}

// AnalyzeValues computes min, max and the count of values greater than zero.
// An empty slice yields zero statistics.
func AnalyzeValues(values []float32) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	s := Stats{
		Min:   float32(math.Inf(1)),
		Max:   float32(math.Inf(-1)),
		Total: len(values),
	}

	for _, v := range values {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		if v > 0 {
			s.PositiveCount++
		}
	}

	return s
}

// Range returns Max - Min, or 1 when the range is degenerate.
func (s Stats) Range() float32 {
	r := s.Max - s.Min
	if r < minRange {
		return 1
	}
	return r
}

// Threshold returns the binarization cut Min + (Max-Min) * ThresholdFraction.
// A flat mask yields a cut equal to its single value, so no cell exceeds it.
func (s Stats) Threshold() float32 {
	return s.Min + (s.Max-s.Min)*ThresholdFraction
}

// Empty reports whether the statistics cover no cells.
func (s Stats) Empty() bool {
	return s.Total == 0
}
