// Package setup reads and writes parameter setup files: per node, the
// enabled flag, the current parameter values and the user ranges of every
// input. It also produces the min/max export used to denormalize labels and
// imports host graph descriptions into a graph.Graph.
package setup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/banshee-data/nodesweep/internal/fsutil"
	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
)

// MaxFileSize bounds setup and host description files.
const MaxFileSize = 16 * 1024 * 1024

// ErrBadExtension is returned for setup paths that are not .json files.
var ErrBadExtension = errors.New("setup file must have .json extension")

// File is a parameter setup keyed by node name.
type File map[string]NodeSetup

// NodeSetup is the saved state of one node.
type NodeSetup struct {
	Enabled       bool                  `json:"enabled"`
	UserParams    map[string]InputSetup `json:"user_params"`
	DefaultParams map[string]any        `json:"default_params"`
}

// InputSetup is the saved state of one input.
type InputSetup struct {
	Name       string    `json:"name"`
	UserParams UserRange `json:"user_params"`
}

// UserRange holds the enabled flag and range of an input. Enabled is a
// bool for scalar kinds and a 3-element array for vectors and colors; a
// bare bool is accepted for every kind on load. UserMin and UserMax are
// numbers or 3-element arrays.
type UserRange struct {
	Enabled any `json:"enabled"`
	UserMin any `json:"user_min,omitempty"`
	UserMax any `json:"user_max,omitempty"`
}

// Encode captures the setup of every node in g. Linked inputs are omitted.
func Encode(g *graph.Graph) File {
	f := make(File, len(g.Nodes))
	for _, n := range g.Nodes {
		ns := NodeSetup{
			Enabled:       n.Enabled,
			UserParams:    map[string]InputSetup{},
			DefaultParams: map[string]any{},
		}
		for _, p := range n.Parameters {
			if p.Linked {
				continue
			}
			v, err := p.JSONValue()
			if err != nil {
				monitoring.Logf("WARNING: node %s input %s not saved: %v", n.Name, p.ID, err)
				continue
			}
			ns.DefaultParams[p.ID] = v
			ns.UserParams[p.ID] = InputSetup{Name: p.Name, UserParams: encodeRange(p)}
		}
		f[n.Name] = ns
	}
	return f
}

func encodeRange(p *graph.Parameter) UserRange {
	if !p.Kind.IsVector() {
		return UserRange{Enabled: p.Enabled[0], UserMin: p.Min[0], UserMax: p.Max[0]}
	}
	return UserRange{
		Enabled: []bool{p.Enabled[0], p.Enabled[1], p.Enabled[2]},
		UserMin: []float64{p.Min[0], p.Min[1], p.Min[2]},
		UserMax: []float64{p.Max[0], p.Max[1], p.Max[2]},
	}
}

// Save writes the setup of g as JSON.
func Save(w io.Writer, g *graph.Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Encode(g)); err != nil {
		return fmt.Errorf("encode setup: %w", err)
	}
	return nil
}

// Decode parses a setup file.
func Decode(r io.Reader) (File, error) {
	var f File
	if err := json.NewDecoder(io.LimitReader(r, MaxFileSize)).Decode(&f); err != nil {
		return nil, fmt.Errorf("decode setup: %w", err)
	}
	return f, nil
}

// Load reads a setup and applies it to g. Only malformed JSON is an error:
// unknown nodes or inputs and rejected values are logged and skipped.
func Load(r io.Reader, g *graph.Graph) error {
	f, err := Decode(r)
	if err != nil {
		return err
	}
	f.Apply(g)
	return nil
}

// Apply assigns node flags, values, input flags and ranges from f to g.
func (f File) Apply(g *graph.Graph) {
	for _, name := range sortedKeys(f) {
		ns := f[name]
		n := g.Node(name)
		if n == nil {
			monitoring.Logf("WARNING: setup node %q not in graph %s, skipped", name, g.Name)
			continue
		}
		n.Enabled = ns.Enabled
		applyValues(n, ns.DefaultParams)

		for _, id := range sortedKeys(ns.UserParams) {
			in := ns.UserParams[id]
			p := n.Parameter(id)
			if p == nil || p.Linked {
				monitoring.Logf("WARNING: setup input %s of node %s not found, skipped", id, name)
				continue
			}
			if err := applyEnabled(p, in.UserParams.Enabled); err != nil {
				monitoring.Logf("WARNING: node %s input %s enabled flag: %v", name, id, err)
			}
			if in.UserParams.UserMin == nil && in.UserParams.UserMax == nil {
				continue
			}
			if err := applyRange(p, in.UserParams.UserMin, in.UserParams.UserMax); err != nil {
				monitoring.Logf("Could not assign min and max value for node %s, input %s: %v", name, id, err)
			}
		}
	}
}

// ApplyDefaults assigns only the saved parameter values from f to g,
// leaving flags and ranges untouched.
func (f File) ApplyDefaults(g *graph.Graph) {
	for _, name := range sortedKeys(f) {
		n := g.Node(name)
		if n == nil {
			monitoring.Logf("WARNING: setup node %q not in graph %s, skipped", name, g.Name)
			continue
		}
		applyValues(n, f[name].DefaultParams)
	}
}

// ApplyDefaults reads a setup and assigns only its parameter values to g.
func ApplyDefaults(r io.Reader, g *graph.Graph) error {
	f, err := Decode(r)
	if err != nil {
		return err
	}
	f.ApplyDefaults(g)
	return nil
}

func applyValues(n *graph.Node, values map[string]any) {
	for _, id := range sortedKeys(values) {
		p := n.Parameter(id)
		if p == nil || p.Linked {
			monitoring.Logf("WARNING: setup value %s of node %s not found, skipped", id, n.Name)
			continue
		}
		if err := p.SetJSONValue(values[id]); err != nil {
			monitoring.Logf("WARNING: node %s input %s value: %v", n.Name, id, err)
		}
	}
}

func applyEnabled(p *graph.Parameter, raw any) error {
	switch v := raw.(type) {
	case nil:
		return nil
	case bool:
		p.SetEnabled(v)
		return nil
	case []any:
		if !p.Kind.IsVector() || len(v) != 3 {
			return fmt.Errorf("%w: enabled %v for %s", graph.ErrRangeKindMismatch, v, p.Kind)
		}
		var flags [3]bool
		for i, e := range v {
			b, ok := e.(bool)
			if !ok {
				return fmt.Errorf("%w: enabled element %d is %T", graph.ErrRangeKindMismatch, i, e)
			}
			flags[i] = b
		}
		p.Enabled = flags
		return nil
	}
	return fmt.Errorf("%w: enabled is %T", graph.ErrRangeKindMismatch, raw)
}

func applyRange(p *graph.Parameter, rawMin, rawMax any) error {
	min, err := decodeVec(p, rawMin)
	if err != nil {
		return err
	}
	max, err := decodeVec(p, rawMax)
	if err != nil {
		return err
	}
	return p.SetRange(min, max)
}

func decodeVec(p *graph.Parameter, raw any) (graph.Vec3, error) {
	if !p.Kind.IsVector() {
		f, ok := raw.(float64)
		if !ok {
			return graph.Vec3{}, fmt.Errorf("%w: %s expects a number, got %T", graph.ErrRangeKindMismatch, p.ID, raw)
		}
		return graph.Vec3{f}, nil
	}
	list, ok := raw.([]any)
	if !ok || len(list) != 3 {
		return graph.Vec3{}, fmt.Errorf("%w: %s expects a 3-element array, got %v", graph.ErrRangeKindMismatch, p.ID, raw)
	}
	var v graph.Vec3
	for i, e := range list {
		f, ok := e.(float64)
		if !ok {
			return graph.Vec3{}, fmt.Errorf("%w: %s element %d is %T", graph.ErrRangeKindMismatch, p.ID, i, e)
		}
		v[i] = f
	}
	return v, nil
}

// ReadFile loads a .json file from fsys, refusing files over MaxFileSize.
func ReadFile(fsys fsutil.FileSystem, path string) ([]byte, error) {
	clean := filepath.Clean(path)
	if ext := filepath.Ext(clean); ext != ".json" {
		return nil, fmt.Errorf("%w, got %q", ErrBadExtension, ext)
	}
	data, err := fsys.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", clean, err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%s too large: %d bytes (max %d)", clean, len(data), MaxFileSize)
	}
	return data, nil
}

// LoadFile reads the setup at path and applies it to g.
func LoadFile(fsys fsutil.FileSystem, path string, g *graph.Graph) error {
	data, err := ReadFile(fsys, path)
	if err != nil {
		return err
	}
	return Load(bytes.NewReader(data), g)
}

// SaveFile writes the setup of g to path.
func SaveFile(fsys fsutil.FileSystem, path string, g *graph.Graph) error {
	if ext := filepath.Ext(path); ext != ".json" {
		return fmt.Errorf("%w, got %q", ErrBadExtension, ext)
	}
	var buf bytes.Buffer
	if err := Save(&buf, g); err != nil {
		return err
	}
	if err := fsys.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write setup %s: %w", path, err)
	}
	return nil
}
