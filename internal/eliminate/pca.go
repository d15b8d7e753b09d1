package eliminate

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrPCAFailed is returned when the decomposition does not converge.
var ErrPCAFailed = errors.New("principal component analysis failed")

// projection is a probe batch expressed in its first principal components.
type projection struct {
	// scores has one row per probe and one column per component.
	scores *mat.Dense
	// ratios is the share of the total variance explained by each kept
	// component. All zero when the probes are identical.
	ratios []float64
}

// explained sums the variance ratios of the kept components.
func (p projection) explained() float64 {
	return floats.Sum(p.ratios)
}

// project fits a PCA to rows (one flattened image each) and keeps
// components columns. components is capped by the rank bound min(n, d).
func project(rows [][]float64, components int) (projection, error) {
	n := len(rows)
	if n == 0 {
		return projection{}, ErrPCAFailed
	}
	d := len(rows[0])
	x := mat.NewDense(n, d, nil)
	for i, r := range rows {
		x.SetRow(i, r)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); !ok {
		return projection{}, ErrPCAFailed
	}
	vars := pc.VarsTo(nil)
	var vecs mat.Dense
	pc.VectorsTo(&vecs)

	k := min(components, len(vars))
	total := floats.Sum(vars)
	ratios := make([]float64, k)
	if total > 0 && !math.IsNaN(total) {
		for i := 0; i < k; i++ {
			ratios[i] = vars[i] / total
		}
	}

	// Center the rows before projecting, as the decomposition did.
	means := make([]float64, d)
	for _, r := range rows {
		floats.Add(means, r)
	}
	floats.Scale(1/float64(n), means)
	for i := 0; i < n; i++ {
		floats.Sub(x.RawRowView(i), means)
	}

	var scores mat.Dense
	scores.Mul(x, vecs.Slice(0, d, 0, k))
	return projection{scores: &scores, ratios: ratios}, nil
}

// distance is the variance weighted L1 distance between the component
// scores of probes a and b.
func (p projection) distance(a, b int) float64 {
	var sum float64
	for i, w := range p.ratios {
		sum += math.Abs(p.scores.At(a, i)-p.scores.At(b, i)) * w
	}
	return sum
}
