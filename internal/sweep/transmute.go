package sweep

import (
	"fmt"

	"github.com/banshee-data/nodesweep/internal/graph"
)

// Transmuter is the random pass: every enabled channel of every enabled
// parameter gets an independent fresh draw.
type Transmuter struct {
	Sampler *Sampler
}

// NewTransmuter returns a transmuter drawing from sampler.
func NewTransmuter(sampler *Sampler) *Transmuter {
	return &Transmuter{Sampler: sampler}
}

// Transmute redraws the enabled parameters of g and returns the snapshot
// and the labels in (node, parameter, channel) order.
func (t *Transmuter) Transmute(g *graph.Graph) (Sample, error) {
	return t.TransmuteExcept(g, graph.Ref{}, graph.AllChannels)
}

// TransmuteExcept behaves like Transmute but leaves one channel of skip
// untouched (all of it for graph.AllChannels). A zero Ref skips nothing.
func (t *Transmuter) TransmuteExcept(g *graph.Graph, skip graph.Ref, channel int) (Sample, error) {
	var s Sample
	for _, ref := range g.Enabled() {
		p := ref.Param
		for _, ch := range p.EnabledChannels() {
			if skip.Param == p && (channel == graph.AllChannels || channel == ch) {
				continue
			}
			drawCh := ch
			if !p.Kind.IsVector() {
				drawCh = graph.AllChannels
			}
			labels, err := t.Sampler.Draw(p, drawCh)
			if err != nil {
				return Sample{}, fmt.Errorf("sample %s: %w", ref, err)
			}
			for _, l := range labels {
				s.addLabel(ref, ch, l)
			}
		}
	}
	s.Snapshot = g.Snapshot()
	return s, nil
}
