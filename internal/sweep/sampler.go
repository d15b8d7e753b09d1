package sweep

import (
	"fmt"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/nodesweep/internal/graph"
)

// Sampler draws random parameter values from a single seeded source, so a
// run with a fixed seed is reproducible.
type Sampler struct {
	src rand.Source
	rng *rand.Rand
}

// NewSampler returns a sampler seeded with seed. A zero seed is replaced
// by the current time.
func NewSampler(seed uint64) *Sampler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Sampler{src: src, rng: rand.New(src)}
}

// Scalar draws uniformly from [min, max].
func (s *Sampler) Scalar(min, max float64) float64 {
	if min == max {
		return min
	}
	if min > max {
		min, max = max, min
	}
	return distuv.Uniform{Min: min, Max: max, Src: s.src}.Rand()
}

// Integer draws uniformly from the integers in [min, max], both inclusive.
func (s *Sampler) Integer(min, max int) int {
	if min > max {
		min, max = max, min
	}
	return min + s.rng.IntN(max-min+1)
}

// Vector3 draws each axis independently from its own bounds.
func (s *Sampler) Vector3(min, max graph.Vec3) graph.Vec3 {
	var v graph.Vec3
	for i := range v {
		v[i] = s.Scalar(min[i], max[i])
	}
	return v
}

// Color redraws HSV channels of the current RGB color from a normal
// distribution with the given per-channel mean and standard deviation,
// wrap clamping each result. channel selects one HSV component or
// graph.AllChannels for all three. The new color is returned as HSV.
func (s *Sampler) Color(current, mean, std graph.Vec3, channel int) (graph.Vec3, error) {
	if channel < graph.AllChannels || channel >= 3 {
		return graph.Vec3{}, fmt.Errorf("%w: %d", graph.ErrChannelOutOfRange, channel)
	}
	hsv := graph.RGBToHSV(current)
	for _, ch := range channelList(channel) {
		hsv[ch] = ColorClamp(s.normal(mean[ch], std[ch]))
	}
	return hsv, nil
}

func (s *Sampler) normal(mu, sigma float64) float64 {
	if sigma <= 0 {
		return mu
	}
	return distuv.Normal{Mu: mu, Sigma: sigma, Src: s.src}.Rand()
}

// Draw assigns a fresh random value to one channel of p (or every channel
// for graph.AllChannels) and returns the normalized label of each drawn
// channel in channel order. Scalar kinds ignore channel.
func (s *Sampler) Draw(p *graph.Parameter, channel int) ([]float64, error) {
	switch p.Kind {
	case graph.KindScalar:
		v := s.Scalar(p.Min[0], p.Max[0])
		p.SetValue(graph.Vec3{v})
		return []float64{Normalize(v, p.Min[0], p.Max[0])}, nil

	case graph.KindInteger:
		v := float64(s.Integer(int(p.Min[0]), int(p.Max[0])))
		p.SetValue(graph.Vec3{v})
		return []float64{Normalize(v, p.Min[0], p.Max[0])}, nil

	case graph.KindVector3:
		if err := p.CheckChannel(channel); err != nil {
			return nil, err
		}
		next := p.Current
		var labels []float64
		for _, ch := range channelList(channel) {
			next[ch] = s.Scalar(p.Min[ch], p.Max[ch])
			labels = append(labels, Normalize(next[ch], p.Min[ch], p.Max[ch]))
		}
		p.SetValue(next)
		return labels, nil

	case graph.KindColor:
		hsv, err := s.Color(p.Current, p.Min, p.Max, channel)
		if err != nil {
			return nil, err
		}
		p.SetHSV(hsv)
		var labels []float64
		for _, ch := range channelList(channel) {
			labels = append(labels, Normalize(hsv[ch], p.Min[ch], p.Max[ch]))
		}
		return labels, nil
	}
	return nil, fmt.Errorf("%w: %s", graph.ErrUnsupportedKind, p.Kind)
}
