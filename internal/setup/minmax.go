package setup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/sweep"
)

// ScalarSub is the i_sub value of records for single-channel parameters.
const ScalarSub = -1

// MinMaxRecord describes the range of one enabled channel. Labels written
// by a render run line up with these records in order.
type MinMaxRecord struct {
	NodeName   string     `json:"node_name"`
	Identifier string     `json:"identifier"`
	InputName  string     `json:"input_name"`
	Type       graph.Kind `json:"type"`
	UserMin    float64    `json:"user_min"`
	UserMax    float64    `json:"user_max"`
	ISub       int        `json:"i_sub"`
}

// Denormalize maps a label in [-1, 1] back to a parameter value.
func (r MinMaxRecord) Denormalize(label float64) float64 {
	return sweep.Denormalize(label, r.UserMin, r.UserMax)
}

// MinMax lists one record per enabled channel of every enabled parameter
// of every enabled node, in traversal order.
func MinMax(g *graph.Graph) []MinMaxRecord {
	var recs []MinMaxRecord
	for _, ref := range g.Enabled() {
		p := ref.Param
		for _, ch := range p.EnabledChannels() {
			sub := ch
			if !p.Kind.IsVector() {
				sub = ScalarSub
			}
			lo, hi := p.Range(ch)
			recs = append(recs, MinMaxRecord{
				NodeName:   ref.Node.Name,
				Identifier: p.ID,
				InputName:  p.Name,
				Type:       p.Kind,
				UserMin:    lo,
				UserMax:    hi,
				ISub:       sub,
			})
		}
	}
	return recs
}

// WriteMinMax writes recs as a JSON object keyed "0", "1", ... in order.
func WriteMinMax(w io.Writer, recs []MinMaxRecord) error {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range recs {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		fmt.Fprintf(&buf, "\n  %q: ", strconv.Itoa(i))
		buf.Write(b)
	}
	if len(recs) > 0 {
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// ReadMinMax parses a file written by WriteMinMax, returning the records
// ordered by numeric key.
func ReadMinMax(r io.Reader) ([]MinMaxRecord, error) {
	var raw map[string]MinMaxRecord
	if err := json.NewDecoder(io.LimitReader(r, MaxFileSize)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode min/max: %w", err)
	}
	type keyed struct {
		k int
		r MinMaxRecord
	}
	list := make([]keyed, 0, len(raw))
	for k, rec := range raw {
		i, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("decode min/max: key %q is not an integer", k)
		}
		list = append(list, keyed{i, rec})
	}
	sort.Slice(list, func(a, b int) bool { return list[a].k < list[b].k })
	out := make([]MinMaxRecord, len(list))
	for i, e := range list {
		out[i] = e.r
	}
	return out, nil
}

// DenormalizeRow maps one label row of a random run back to values using
// recs.
func DenormalizeRow(recs []MinMaxRecord, row []float64) ([]float64, error) {
	if len(row) > len(recs) {
		return nil, fmt.Errorf("label row has %d values, only %d records", len(row), len(recs))
	}
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = recs[i].Denormalize(v)
	}
	return out, nil
}
