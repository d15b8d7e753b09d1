package sweep

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/nodesweep/internal/graph"
	"github.com/banshee-data/nodesweep/internal/monitoring"
)

// RangeSpec is a user range for one parameter channel. For colors Min and
// Max carry the HSV mean and standard deviation.
type RangeSpec struct {
	Min float64
	Max float64
}

// ParseRangeSpec parses a "min:max" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max", s)
	}

	min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
	}

	max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return RangeSpec{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
	}

	return RangeSpec{Min: min, Max: max}, nil
}

// Override replaces the range of one parameter (or one channel of it).
type Override struct {
	Node    string
	Param   string
	Channel int
	Range   RangeSpec
}

// ParseOverride parses "node/identifier=min:max" or
// "node/identifier.channel=min:max". Without a channel suffix the range
// applies to every channel.
func ParseOverride(s string) (Override, error) {
	target, spec, ok := strings.Cut(s, "=")
	if !ok {
		return Override{}, fmt.Errorf("invalid override %q: expected node/identifier=min:max", s)
	}
	node, param, ok := strings.Cut(strings.TrimSpace(target), "/")
	if !ok || node == "" || param == "" {
		return Override{}, fmt.Errorf("invalid override target %q: expected node/identifier", target)
	}

	o := Override{Node: node, Param: param, Channel: graph.AllChannels}
	if i := strings.LastIndex(param, "."); i > 0 {
		ch, err := strconv.Atoi(param[i+1:])
		if err == nil {
			if ch < 0 || ch >= 3 {
				return Override{}, fmt.Errorf("%w: %d in %q", graph.ErrChannelOutOfRange, ch, s)
			}
			o.Param, o.Channel = param[:i], ch
		}
	}

	r, err := ParseRangeSpec(spec)
	if err != nil {
		return Override{}, err
	}
	o.Range = r
	return o, nil
}

// ApplyOverrides assigns each override to the graph. Unknown targets and
// rejected ranges are logged and skipped; the count of applied overrides is
// returned.
func ApplyOverrides(g *graph.Graph, overrides []Override) int {
	applied := 0
	for _, o := range overrides {
		ref, err := g.Lookup(o.Node, o.Param)
		if err != nil {
			monitoring.Logf("WARNING: range override skipped: %v", err)
			continue
		}
		p := ref.Param
		if err := p.CheckChannel(o.Channel); err != nil {
			monitoring.Logf("WARNING: range override for %s skipped: %v", ref, err)
			continue
		}
		min, max := p.Min, p.Max
		for _, ch := range channelList(o.Channel) {
			if ch >= p.Channels() {
				break
			}
			min[ch], max[ch] = o.Range.Min, o.Range.Max
		}
		if err := p.SetRange(min, max); err != nil {
			monitoring.Logf("WARNING: range override for %s skipped: %v", ref, err)
			continue
		}
		applied++
	}
	return applied
}
