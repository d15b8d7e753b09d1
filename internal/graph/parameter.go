package graph

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrChannelOutOfRange is returned for a sub-channel index other than
	// -1 (all channels) or 0..2. Only 3-component types are supported.
	ErrChannelOutOfRange = errors.New("channel index out of range")

	// ErrRangeKindMismatch is returned when a range or value does not fit
	// the parameter kind (e.g. a 3-vector assigned to a scalar).
	ErrRangeKindMismatch = errors.New("value does not match parameter kind")

	// ErrRangeOutOfBounds is returned when a range endpoint falls outside
	// the hard bounds of the socket.
	ErrRangeOutOfBounds = errors.New("range outside parameter bounds")
)

// AllChannels selects every channel of a vector or color parameter.
const AllChannels = -1

// Vec3 is a 3-component value. Scalar kinds only use element 0; colors are
// RGB in [0,1].
type Vec3 [3]float64

// Parameter is a tunable input socket on a node.
//
// For Color parameters Min and Max are the per-channel HSV mean and standard
// deviation of a clamped-normal draw, not literal bounds.
type Parameter struct {
	ID      string
	Name    string
	Kind    Kind
	Enabled [3]bool
	Min     Vec3
	Max     Vec3
	Current Vec3
	Default Vec3

	// Order is the Euler rotation order for rotation vectors ("XYZ", ...).
	// It is serialized as a 4th element when set.
	Order string

	// Linked sockets are fed by an upstream node. They are never sampled
	// and never serialized.
	Linked bool

	// Bounds are optional hard limits for range endpoints.
	Bounds *[2]float64
}

// NewScalar returns an enabled scalar parameter with value v and range [min, max].
func NewScalar(id string, v, min, max float64) *Parameter {
	return &Parameter{
		ID:      id,
		Name:    id,
		Kind:    KindScalar,
		Enabled: [3]bool{true},
		Min:     Vec3{min},
		Max:     Vec3{max},
		Current: Vec3{v},
		Default: Vec3{v},
	}
}

// NewInteger returns an enabled integer parameter.
func NewInteger(id string, v, min, max int) *Parameter {
	p := NewScalar(id, float64(v), float64(min), float64(max))
	p.Kind = KindInteger
	return p
}

// NewVector3 returns a vector parameter with every channel enabled.
func NewVector3(id string, v, min, max Vec3) *Parameter {
	return &Parameter{
		ID:      id,
		Name:    id,
		Kind:    KindVector3,
		Enabled: [3]bool{true, true, true},
		Min:     min,
		Max:     max,
		Current: v,
		Default: v,
	}
}

// NewColor returns a color parameter with RGB value rgb and per-channel HSV
// mean/std, every channel enabled and bounded to [0,1].
func NewColor(id string, rgb, mean, std Vec3) *Parameter {
	return &Parameter{
		ID:      id,
		Name:    id,
		Kind:    KindColor,
		Enabled: [3]bool{true, true, true},
		Min:     mean,
		Max:     std,
		Current: rgb,
		Default: rgb,
		Bounds:  &[2]float64{0, 1},
	}
}

// Channels returns 1 for scalar kinds and 3 for vectors and colors.
func (p *Parameter) Channels() int {
	return p.Kind.Channels()
}

// CheckChannel validates a channel index for this parameter. -1 means all.
func (p *Parameter) CheckChannel(ch int) error {
	if ch < AllChannels || ch >= 3 {
		return fmt.Errorf("%w: %d", ErrChannelOutOfRange, ch)
	}
	if !p.Kind.IsVector() && ch > 0 {
		return fmt.Errorf("%w: %d on %s parameter %s", ErrChannelOutOfRange, ch, p.Kind, p.ID)
	}
	return nil
}

// IsEnabled reports whether any channel of the parameter is enabled.
func (p *Parameter) IsEnabled() bool {
	if p.Linked {
		return false
	}
	for i := 0; i < p.Channels(); i++ {
		if p.Enabled[i] {
			return true
		}
	}
	return false
}

// ChannelEnabled reports whether channel ch is enabled. Scalars use channel 0.
func (p *Parameter) ChannelEnabled(ch int) bool {
	if ch < 0 || ch >= p.Channels() {
		return false
	}
	return !p.Linked && p.Enabled[ch]
}

// EnabledChannels lists the enabled channel indices in order.
func (p *Parameter) EnabledChannels() []int {
	var out []int
	for i := 0; i < p.Channels(); i++ {
		if p.ChannelEnabled(i) {
			out = append(out, i)
		}
	}
	return out
}

// SetEnabled toggles every channel.
func (p *Parameter) SetEnabled(on bool) {
	for i := 0; i < p.Channels(); i++ {
		p.Enabled[i] = on
	}
}

// SetChannelEnabled toggles a single channel, or all when ch is AllChannels.
func (p *Parameter) SetChannelEnabled(ch int, on bool) error {
	if err := p.CheckChannel(ch); err != nil {
		return err
	}
	if ch == AllChannels {
		p.SetEnabled(on)
		return nil
	}
	p.Enabled[ch] = on
	return nil
}

// Range returns the configured (min, max) for a channel.
func (p *Parameter) Range(ch int) (float64, float64) {
	if ch < 0 || ch >= p.Channels() {
		ch = 0
	}
	return p.Min[ch], p.Max[ch]
}

// SetRange assigns the user range. Endpoints outside Bounds are rejected and
// the previous range is kept.
func (p *Parameter) SetRange(min, max Vec3) error {
	if p.Bounds != nil {
		lo, hi := p.Bounds[0], p.Bounds[1]
		for i := 0; i < p.Channels(); i++ {
			for _, v := range []float64{min[i], max[i]} {
				if v < lo || v > hi {
					return fmt.Errorf("%w: %g not in [%g, %g] for %s", ErrRangeOutOfBounds, v, lo, hi, p.ID)
				}
			}
		}
	}
	if !p.Kind.IsVector() {
		min, max = Vec3{min[0]}, Vec3{max[0]}
	}
	p.Min, p.Max = min, max
	return nil
}

// Set assigns a single channel of the current value. Integer values are rounded.
func (p *Parameter) Set(ch int, v float64) error {
	if ch == AllChannels {
		ch = 0
		if p.Kind.IsVector() {
			p.SetValue(Vec3{v, v, v})
			return nil
		}
	}
	if err := p.CheckChannel(ch); err != nil {
		return err
	}
	next := p.Current
	next[ch] = v
	p.SetValue(next)
	return nil
}

// SetValue assigns the current value, rounding integer parameters.
func (p *Parameter) SetValue(v Vec3) {
	switch p.Kind {
	case KindInteger:
		v = Vec3{math.Round(v[0])}
	case KindScalar:
		v = Vec3{v[0]}
	}
	p.Current = v
}

// ResetToDefault restores the value captured at load time.
func (p *Parameter) ResetToDefault() {
	p.Current = p.Default
}

// AtDefault reports whether the current value equals the default.
func (p *Parameter) AtDefault() bool {
	return p.Current == p.Default
}

// Clone returns a deep copy of the parameter.
func (p *Parameter) Clone() *Parameter {
	c := *p
	if p.Bounds != nil {
		b := *p.Bounds
		c.Bounds = &b
	}
	return &c
}

// JSONValue returns the current value in its serialized form: a number for
// scalars, an integer for integers, [x, y, z(, order)] for vectors and
// [r, g, b, 1.0] for colors.
func (p *Parameter) JSONValue() (any, error) {
	return p.encodeValue(p.Current)
}

// DefaultJSONValue returns the default value in its serialized form.
func (p *Parameter) DefaultJSONValue() (any, error) {
	return p.encodeValue(p.Default)
}

func (p *Parameter) encodeValue(v Vec3) (any, error) {
	switch p.Kind {
	case KindScalar:
		return v[0], nil
	case KindInteger:
		return int(math.Round(v[0])), nil
	case KindVector3:
		out := []any{v[0], v[1], v[2]}
		if p.Order != "" {
			out = append(out, p.Order)
		}
		return out, nil
	case KindColor:
		return []any{v[0], v[1], v[2], 1.0}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, p.Kind)
}

// DecodeValue parses a serialized value (as produced by encoding/json into
// an any) for this parameter's kind. The 4th element of a vector is the
// Euler order; the 4th element of a color is alpha and is ignored.
func (p *Parameter) DecodeValue(raw any) (Vec3, string, error) {
	switch p.Kind {
	case KindScalar, KindInteger:
		f, ok := toFloat(raw)
		if !ok {
			return Vec3{}, "", fmt.Errorf("%w: %s expects a number, got %T", ErrRangeKindMismatch, p.ID, raw)
		}
		return Vec3{f}, "", nil
	case KindVector3, KindColor:
		list, ok := raw.([]any)
		if !ok || len(list) < 3 {
			return Vec3{}, "", fmt.Errorf("%w: %s expects a 3-element array, got %v", ErrRangeKindMismatch, p.ID, raw)
		}
		var v Vec3
		for i := 0; i < 3; i++ {
			f, ok := toFloat(list[i])
			if !ok {
				return Vec3{}, "", fmt.Errorf("%w: %s element %d is %T", ErrRangeKindMismatch, p.ID, i, list[i])
			}
			v[i] = f
		}
		order := ""
		if p.Kind == KindVector3 && len(list) > 3 {
			order, _ = list[3].(string)
		}
		return v, order, nil
	}
	return Vec3{}, "", fmt.Errorf("%w: %s", ErrUnsupportedKind, p.Kind)
}

// SetJSONValue decodes raw and assigns it as the current value.
func (p *Parameter) SetJSONValue(raw any) error {
	v, order, err := p.DecodeValue(raw)
	if err != nil {
		return err
	}
	p.SetValue(v)
	if order != "" {
		p.Order = order
	}
	return nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
