package sweep

import (
	"errors"
	"fmt"

	"github.com/banshee-data/nodesweep/internal/graph"
)

// Sample is one resolved assignment of the graph: the full value snapshot
// plus the normalized labels of the channels that were sampled for it.
type Sample struct {
	Index    int            `json:"index"`
	Snapshot graph.Snapshot `json:"snapshot"`
	Labels   []float64      `json:"labels"`
	// Columns names each label as "node/identifier[channel]", index-aligned
	// with Labels.
	Columns []string `json:"columns"`
}

func (s *Sample) addLabel(ref graph.Ref, ch int, label float64) {
	s.Labels = append(s.Labels, label)
	s.Columns = append(s.Columns, ColumnName(ref, ch))
}

// ColumnName formats the label column of one parameter channel. Scalar
// kinds omit the channel suffix.
func ColumnName(ref graph.Ref, ch int) string {
	if ref.Param != nil && !ref.Param.Kind.IsVector() {
		return ref.String()
	}
	return fmt.Sprintf("%s[%d]", ref, ch)
}

// Stepper produces the next sample of a run. Implementations mutate the
// graph in place and are not safe for concurrent use.
type Stepper interface {
	Step() (Sample, error)
	// Finish restores any parameter the stepper left away from its default.
	Finish()
}

// Strategy selects how a run walks the parameter space.
type Strategy string

const (
	// StrategyConsecutive sweeps one parameter at a time from min to max.
	StrategyConsecutive Strategy = "consecutive"
	// StrategyRandom redraws every enabled parameter for every sample.
	StrategyRandom Strategy = "random"
)

// ErrUnknownStrategy is returned for a strategy name with no stepper.
var ErrUnknownStrategy = errors.New("unknown sampling strategy")

// ParseStrategy accepts the strategy names and the legacy numeric codes
// "0" (consecutive) and "1" (random).
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case string(StrategyConsecutive), "0", "":
		return StrategyConsecutive, nil
	case string(StrategyRandom), "simultaneous", "1":
		return StrategyRandom, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

// NewStepper builds the stepper for strategy over n samples.
func NewStepper(strategy Strategy, g *graph.Graph, n int, sampler *Sampler) (Stepper, error) {
	switch strategy {
	case StrategyConsecutive:
		return NewConsecutive(g, n)
	case StrategyRandom:
		return &randomStepper{g: g, t: NewTransmuter(sampler)}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
}

type randomStepper struct {
	g *graph.Graph
	t *Transmuter
	i int
}

func (r *randomStepper) Step() (Sample, error) {
	s, err := r.t.Transmute(r.g)
	s.Index = r.i
	r.i++
	return s, err
}

func (r *randomStepper) Finish() {}
