package sweep

import (
	"errors"
	"fmt"

	"github.com/banshee-data/nodesweep/internal/graph"
)

// ColorRadius is the HSV half-width of the neighbourhood swept around a
// color parameter's current value.
const ColorRadius = 0.1

var (
	// ErrNoEnabledParameters is returned when a schedule has nothing to sweep.
	ErrNoEnabledParameters = errors.New("no enabled parameters")

	// ErrStateMismatch is returned when a saved schedule does not fit the
	// graph it is restored onto.
	ErrStateMismatch = errors.New("scheduler state does not match graph")
)

// SchedulerState is the resumable cursor of a consecutive schedule.
type SchedulerState struct {
	TotalSamples        int `json:"total_samples"`
	TotalParameters     int `json:"total_parameters"`
	SamplesPerParameter int `json:"samples_per_parameter"`
	Excess              int `json:"excess"`
	ExcessConsumed      int `json:"excess_consumed"`

	// Cursor indexes the flattened enabled (node, parameter) sequence.
	Cursor         int    `json:"cursor"`
	NodeIndex      int    `json:"current_node_index"`
	ParameterIndex int    `json:"current_parameter_index"`
	Node           string `json:"current_node"`
	Parameter      string `json:"current_parameter"`

	Steps     int `json:"steps_taken_on_current_parameter"`
	StepLimit int `json:"current_parameter_step_limit"`

	// Anchor is the HSV color a color parameter was holding when it
	// became active; its neighbourhood is swept.
	Anchor graph.Vec3 `json:"anchor"`

	Emitted int  `json:"emitted"`
	Done    bool `json:"done"`
}

// Consecutive sweeps one enabled parameter at a time. Across N samples and
// P parameters each parameter gets floor(N/P) steps and the first
// N mod P parameters in traversal order get one more.
type Consecutive struct {
	g     *graph.Graph
	refs  []graph.Ref
	state SchedulerState
}

// NewConsecutive plans n samples over the enabled parameters of g.
func NewConsecutive(g *graph.Graph, n int) (*Consecutive, error) {
	refs := g.Enabled()
	if len(refs) == 0 {
		return nil, ErrNoEnabledParameters
	}
	if n < 1 {
		return nil, fmt.Errorf("consecutive schedule needs at least one sample, got %d", n)
	}
	spp := n / len(refs)
	c := &Consecutive{
		g:    g,
		refs: refs,
		state: SchedulerState{
			TotalSamples:        n,
			TotalParameters:     len(refs),
			SamplesPerParameter: spp,
			Excess:              n - spp*len(refs),
		},
	}
	c.activate(0)
	return c, nil
}

// RestoreConsecutive resumes a schedule saved with State. The graph must
// expose the same enabled parameters in the same order, and the active
// parameter must hold the value it had when the state was saved.
func RestoreConsecutive(g *graph.Graph, st SchedulerState) (*Consecutive, error) {
	refs := g.Enabled()
	if len(refs) != st.TotalParameters {
		return nil, fmt.Errorf("%w: %d enabled parameters, state has %d", ErrStateMismatch, len(refs), st.TotalParameters)
	}
	if !st.Done {
		if st.Cursor < 0 || st.Cursor >= len(refs) {
			return nil, fmt.Errorf("%w: cursor %d out of range", ErrStateMismatch, st.Cursor)
		}
		ref := refs[st.Cursor]
		if ref.Node.Name != st.Node || ref.Param.ID != st.Parameter {
			return nil, fmt.Errorf("%w: cursor at %s, state has %s/%s", ErrStateMismatch, ref, st.Node, st.Parameter)
		}
	}
	return &Consecutive{g: g, refs: refs, state: st}, nil
}

// State returns a copy of the cursor for persistence.
func (c *Consecutive) State() SchedulerState {
	return c.state
}

// Active returns the parameter currently being swept. ok is false once the
// schedule is exhausted.
func (c *Consecutive) Active() (graph.Ref, bool) {
	if c.state.Done {
		return graph.Ref{}, false
	}
	return c.refs[c.state.Cursor], true
}

// Done reports whether every parameter has been swept.
func (c *Consecutive) Done() bool {
	return c.state.Done
}

// Step advances to the next sample. When the active parameter has used
// its step limit it is restored to its default and the next parameter
// becomes active. Once every parameter is exhausted Step returns the
// unchanged snapshot with no labels.
func (c *Consecutive) Step() (Sample, error) {
	st := &c.state
	for !st.Done && st.Steps >= st.StepLimit {
		c.refs[st.Cursor].Param.ResetToDefault()
		c.activate(st.Cursor + 1)
	}

	s := Sample{Index: st.Emitted}
	st.Emitted++
	if st.Done {
		s.Snapshot = c.g.Snapshot()
		return s, nil
	}

	ref := c.refs[st.Cursor]
	if err := c.assign(ref, st.Steps, &s); err != nil {
		return Sample{}, err
	}
	st.Steps++
	s.Snapshot = c.g.Snapshot()
	return s, nil
}

// Finish restores the active parameter to its default.
func (c *Consecutive) Finish() {
	if ref, ok := c.Active(); ok {
		ref.Param.ResetToDefault()
	}
}

// activate makes refs[i] the active parameter, granting it the bonus step
// while bonuses remain.
func (c *Consecutive) activate(i int) {
	st := &c.state
	if i >= len(c.refs) {
		st.Done = true
		st.Steps, st.StepLimit = 0, 0
		return
	}
	ref := c.refs[i]
	st.Cursor = i
	st.Steps = 0
	st.StepLimit = st.SamplesPerParameter
	if st.ExcessConsumed < st.Excess {
		st.StepLimit++
		st.ExcessConsumed++
	}
	st.Node, st.Parameter = ref.Node.Name, ref.Param.ID
	st.NodeIndex, st.ParameterIndex = indexOf(c.g, ref)
	st.Anchor = graph.Vec3{}
	if ref.Param.Kind == graph.KindColor {
		st.Anchor = ref.Param.HSV()
	}
}

// assign sets the value of step r on the active parameter and records a
// label per swept channel.
func (c *Consecutive) assign(ref graph.Ref, r int, s *Sample) error {
	p := ref.Param
	limit := c.state.StepLimit

	switch p.Kind {
	case graph.KindScalar, graph.KindInteger:
		v := lerp(p.Min[0], p.Max[0], r, limit)
		p.SetValue(graph.Vec3{v})
		s.addLabel(ref, 0, Normalize(p.Current[0], p.Min[0], p.Max[0]))

	case graph.KindVector3:
		next := p.Current
		for _, ch := range p.EnabledChannels() {
			next[ch] = lerp(p.Min[ch], p.Max[ch], r, limit)
		}
		p.SetValue(next)
		for _, ch := range p.EnabledChannels() {
			s.addLabel(ref, ch, Normalize(next[ch], p.Min[ch], p.Max[ch]))
		}

	case graph.KindColor:
		hsv := c.state.Anchor
		for _, ch := range p.EnabledChannels() {
			lo, hi := c.state.Anchor[ch]-ColorRadius, c.state.Anchor[ch]+ColorRadius
			hsv[ch] = ColorClamp(lerp(lo, hi, r, limit))
		}
		p.SetHSV(hsv)
		for _, ch := range p.EnabledChannels() {
			s.addLabel(ref, ch, Normalize(hsv[ch], p.Min[ch], p.Max[ch]))
		}

	default:
		return fmt.Errorf("sweep %s: %w: %s", ref, graph.ErrUnsupportedKind, p.Kind)
	}
	return nil
}

// lerp returns step r of limit evenly spaced values from lo to hi, landing
// exactly on hi at the last step. A single step yields lo.
func lerp(lo, hi float64, r, limit int) float64 {
	if limit <= 1 {
		return lo
	}
	if r >= limit-1 {
		return hi
	}
	return lo + float64(r)*(hi-lo)/float64(limit-1)
}

func indexOf(g *graph.Graph, ref graph.Ref) (node, param int) {
	for i, n := range g.Nodes {
		if n != ref.Node {
			continue
		}
		for j, p := range n.Parameters {
			if p == ref.Param {
				return i, j
			}
		}
		return i, -1
	}
	return -1, -1
}
