package eliminate

import (
	"context"
	"fmt"

	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/render"
)

// Candidate is one parameter, or one channel of a vector or color, that
// elimination may disable. Channel is graph.AllChannels for scalar kinds.
type Candidate struct {
	Ref     graph.Ref
	Channel int
}

// String returns "node/identifier" or "node/identifier[channel]".
func (c Candidate) String() string {
	if c.Channel == graph.AllChannels {
		return c.Ref.String()
	}
	return fmt.Sprintf("%s[%d]", c.Ref, c.Channel)
}

// Candidates lists every enabled channel of every enabled parameter of every
// enabled node, in traversal order.
func Candidates(g *graph.Graph) []Candidate {
	var out []Candidate
	for _, ref := range g.Enabled() {
		if !ref.Param.Kind.IsVector() {
			out = append(out, Candidate{Ref: ref, Channel: graph.AllChannels})
			continue
		}
		for _, ch := range ref.Param.EnabledChannels() {
			out = append(out, Candidate{Ref: ref, Channel: ch})
		}
	}
	return out
}

// Decision is the verdict on one candidate.
type Decision struct {
	Node    string     `json:"node"`
	Input   string     `json:"input"`
	Name    string     `json:"name"`
	Kind    graph.Kind `json:"kind"`
	Channel int        `json:"channel"`
	Kept    bool       `json:"kept"`
	MaxNorm float64    `json:"max_norm"`
	// Loops is the number of loops run before the verdict.
	Loops int `json:"loops"`
	// Explained is the lowest explained variance ratio seen over the loops.
	Explained float64 `json:"explained"`
}

// Message formats the decision as a log line.
func (d Decision) Message() string {
	verb := "DISABLED"
	if d.Kept {
		verb = "Keeping"
	}
	if d.Channel == graph.AllChannels {
		return fmt.Sprintf("%s input %s of node %s (Max Norm: %.3f).", verb, d.Name, d.Node, d.MaxNorm)
	}
	return fmt.Sprintf("%s input %s index %d of node %s (Max Norm: %.3f).", verb, d.Name, d.Channel, d.Node, d.MaxNorm)
}

// Summary is the outcome of an elimination run.
type Summary struct {
	RunID     string
	Decisions []Decision
	// Disabled lists the decisions that disabled a candidate.
	Disabled []Decision
}

// Recorder persists elimination runs. *db.DB implements it.
type Recorder interface {
	StartRun(ctx context.Context, info render.RunInfo) error
	RecordDecision(ctx context.Context, runID string, d Decision) error
	FinishRun(ctx context.Context, runID string, out render.RunOutcome) error
}
