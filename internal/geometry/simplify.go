package geometry

// DefaultTolerance is the minimum spacing, in normalized units, between kept points.
const DefaultTolerance = 0.02

// Simplify reduces c with a single greedy pass: the first point is kept, each
// following point is kept only when it lies farther than tolerance from the
// last kept point, and the final point is always kept.
// A non-positive tolerance selects DefaultTolerance. The input is not modified.
func Simplify(c Contour, tolerance float64) Contour {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if len(c) <= 2 {
		return append(Contour(nil), c...)
	}

	out := make(Contour, 0, len(c))
	out = append(out, c[0])
	last := c[0]

	for _, p := range c[1 : len(c)-1] {
		if Distance(p, last) > tolerance {
			out = append(out, p)
			last = p
		}
	}

	return append(out, c[len(c)-1])
}
