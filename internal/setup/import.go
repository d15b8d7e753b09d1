package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
)

// ErrDuplicateNode is returned when a host graph names two nodes the same.
var ErrDuplicateNode = errors.New("duplicate node name")

// Host node types and socket idnames with special handling.
const (
	NodeTypeOutputMaterial = "OUTPUT_MATERIAL"
	NodeTypeGroup          = "GROUP"
	NodeTypeFrame          = "FRAME"

	SocketVector = "NodeSocketVector"
	SocketShader = "NodeSocketShader"

	SubtypeFactor = "FACTOR"
)

// ColorStd is the initial per-channel HSV standard deviation of colors.
const ColorStd = 0.1

// HostGraph is the description of a material node tree exported by the
// host application.
type HostGraph struct {
	Material string     `json:"material"`
	Nodes    []HostNode `json:"nodes"`
}

// HostNode is one node of a host graph. Interface is only set for group
// nodes and lists the group's input bounds.
type HostNode struct {
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Inputs    []HostSocket    `json:"inputs"`
	Interface []HostInterface `json:"interface,omitempty"`
}

// HostSocket is one input socket.
type HostSocket struct {
	Identifier string   `json:"identifier"`
	Name       string   `json:"name"`
	Type       string   `json:"type"`
	IDName     string   `json:"idname"`
	Subtype    string   `json:"subtype,omitempty"`
	Enabled    *bool    `json:"enabled,omitempty"`
	Linked     bool     `json:"linked"`
	Default    any      `json:"default_value"`
	SoftMin    *float64 `json:"soft_min,omitempty"`
	SoftMax    *float64 `json:"soft_max,omitempty"`
}

// HostInterface holds the bounds a group exposes for one of its inputs.
type HostInterface struct {
	Identifier string  `json:"identifier"`
	Min        float64 `json:"min_value"`
	Max        float64 `json:"max_value"`
}

// DecodeHostGraph parses a host graph description.
func DecodeHostGraph(r io.Reader) (*HostGraph, error) {
	var h HostGraph
	if err := json.NewDecoder(io.LimitReader(r, MaxFileSize)).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode host graph: %w", err)
	}
	return &h, nil
}

// Import builds a graph from a host description.
//
// A node is enabled when it has at least one unlinked input and is not the
// material output. An input is enabled when its socket is enabled and
// unlinked, it is not a plain vector or shader socket, and its node is
// enabled. Frames are dropped, and sockets without a supported type are
// logged and skipped.
func Import(h *HostGraph) (*graph.Graph, error) {
	g := graph.New(h.Material)
	seen := make(map[string]bool, len(h.Nodes))
	for _, hn := range h.Nodes {
		if hn.Type == NodeTypeFrame {
			continue
		}
		if seen[hn.Name] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateNode, hn.Name)
		}
		seen[hn.Name] = true

		n := graph.NewNode(hn.Name)
		n.Type = hn.Type
		n.Enabled = nodeEnabled(hn)
		for _, s := range hn.Inputs {
			p, err := importSocket(hn, s)
			if err != nil {
				monitoring.Logf("Skipping input %s of node %s: %v", s.Identifier, hn.Name, err)
				continue
			}
			p.SetEnabled(n.Enabled && inputEnabled(s))
			n.Parameters = append(n.Parameters, p)
		}
		g.Nodes = append(g.Nodes, n)
	}
	return g, nil
}

func nodeEnabled(hn HostNode) bool {
	if hn.Type == NodeTypeOutputMaterial {
		return false
	}
	for _, s := range hn.Inputs {
		if !s.Linked {
			return true
		}
	}
	return false
}

func inputEnabled(s HostSocket) bool {
	if s.Enabled != nil && !*s.Enabled {
		return false
	}
	return !s.Linked && s.IDName != SocketVector && s.IDName != SocketShader
}

func importSocket(hn HostNode, s HostSocket) (*graph.Parameter, error) {
	kind, err := graph.ParseKind(s.Type)
	if err != nil {
		return nil, err
	}
	p := &graph.Parameter{ID: s.Identifier, Name: s.Name, Kind: kind, Linked: s.Linked}
	if p.Name == "" {
		p.Name = s.Identifier
	}
	v, order, err := p.DecodeValue(s.Default)
	if err != nil {
		return nil, err
	}
	p.SetValue(v)
	p.Default = p.Current
	p.Order = order

	switch kind {
	case graph.KindScalar:
		lo, hi := 0.0, 1.0
		if s.Subtype == SubtypeFactor {
			p.Bounds = &[2]float64{0, 1}
		}
		p.Min = graph.Vec3{math.Min(lo, p.Current[0])}
		p.Max = graph.Vec3{math.Max(hi, p.Current[0])}
	case graph.KindInteger:
		lo, hi := p.Current[0], p.Current[0]
		if s.SoftMin != nil {
			lo = math.Min(*s.SoftMin, lo)
		}
		if s.SoftMax != nil {
			hi = math.Max(*s.SoftMax, hi)
		}
		p.Min, p.Max = graph.Vec3{lo}, graph.Vec3{hi}
	case graph.KindVector3:
		p.Min, p.Max = graph.Vec3{0, 0, 0}, graph.Vec3{1, 1, 1}
	case graph.KindColor:
		p.Min = p.HSV()
		p.Max = graph.Vec3{ColorStd, ColorStd, ColorStd}
		p.Bounds = &[2]float64{0, 1}
	}

	if hn.Type == NodeTypeGroup && kind != graph.KindColor {
		applyInterface(hn, s, p)
	}
	return p, nil
}

// applyInterface narrows a group input to the group interface bounds,
// clamped to the socket's soft limits.
func applyInterface(hn HostNode, s HostSocket, p *graph.Parameter) {
	var iface *HostInterface
	for i := range hn.Interface {
		if hn.Interface[i].Identifier == s.Identifier {
			iface = &hn.Interface[i]
			break
		}
	}
	if iface == nil {
		return
	}
	lo, hi := iface.Min, iface.Max
	if s.SoftMin != nil && lo < *s.SoftMin {
		lo = *s.SoftMin
	}
	if s.SoftMax != nil && hi > *s.SoftMax {
		hi = *s.SoftMax
	}
	if err := p.SetRange(graph.Vec3{lo, lo, lo}, graph.Vec3{hi, hi, hi}); err != nil {
		monitoring.Logf("Could not assign min and max value for node %s, input %s: %v", hn.Name, s.Identifier, err)
	}
}
