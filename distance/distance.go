package distance

import (
	"fmt"

	"github.com/viterin/vek/vek32"
)

// Dot calculates the dot product of two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Dot(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Dot(a, b)
}

// Euclidean calculates the Euclidean (L2) distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Euclidean(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.Distance(a, b)
}

// Manhattan calculates the L1 distance between two vectors.
// Assumes vectors are the same length (caller's responsibility).
func Manhattan(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	return vek32.ManhattanDistance(a, b)
}

// Cosine calculates the cosine similarity between two vectors.
// Returns 0 if either vector has zero norm.
func Cosine(a, b []float32) float32 {
	if len(a) == 0 {
		return 0
	}
	na := vek32.Norm(a)
	nb := vek32.Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return vek32.Dot(a, b) / (na * nb)
}

// Metric represents the distance metric used for vector comparison.
type Metric int

const (
	MetricCosine Metric = iota
	MetricEuclidean
	MetricDot
	MetricManhattan
)

// Name returns the exact engine name of the metric.
func (m Metric) Name() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricEuclidean:
		return "euclidean"
	case MetricDot:
		return "dot"
	case MetricManhattan:
		return "manhattan"
	default:
		return ""
	}
}

func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "Cosine"
	case MetricEuclidean:
		return "Euclidean"
	case MetricDot:
		return "Dot"
	case MetricManhattan:
		return "Manhattan"
	default:
		return fmt.Sprintf("Unknown(%d)", m)
	}
}

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	return m.Name() != ""
}

// Parse maps an exact engine name to its Metric.
func Parse(name string) (Metric, error) {
	switch name {
	case "cosine":
		return MetricCosine, nil
	case "euclidean":
		return MetricEuclidean, nil
	case "dot":
		return MetricDot, nil
	case "manhattan":
		return MetricManhattan, nil
	default:
		return 0, fmt.Errorf("unknown distance metric %q", name)
	}
}

// MustParse is like Parse but panics on an unknown name.
func MustParse(name string) Metric {
	m, err := Parse(name)
	if err != nil {
		panic(err)
	}
	return m
}

// MarshalText implements encoding.TextMarshaler using the engine name.
func (m Metric) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("invalid distance metric %d", int(m))
	}
	return []byte(m.Name()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Metric) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Func is a function type for distance calculation.
type Func func(a, b []float32) float32

// Provider returns the scoring function for the given metric.
func Provider(m Metric) (Func, error) {
	switch m {
	case MetricCosine:
		return Cosine, nil
	case MetricEuclidean:
		return Euclidean, nil
	case MetricDot:
		return Dot, nil
	case MetricManhattan:
		return Manhattan, nil
	default:
		return nil, fmt.Errorf("unsupported metric: %v", m)
	}
}

// Score computes the metric score of a and b.
// It panics on an invalid metric.
func (m Metric) Score(a, b []float32) float32 {
	fn, err := Provider(m)
	if err != nil {
		panic(err)
	}
	return fn(a, b)
}

// HigherIsBetter reports whether larger scores rank first.
// Similarities (cosine, dot) rank descending; distances ascending.
func (m Metric) HigherIsBetter() bool {
	return m == MetricCosine || m == MetricDot
}

// Better reports whether score a ranks before score b.
func (m Metric) Better(a, b float32) bool {
	if m.HigherIsBetter() {
		return a > b
	}
	return a < b
}
