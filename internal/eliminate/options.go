// Package eliminate finds parameters whose changes barely show in the
// rendered image and disables them before a sweep.
//
// For each candidate the engine renders a batch of probe images across the
// candidate's range against a randomized background, projects the batch
// onto its principal components and measures how far each probe lands
// from the first one. A candidate that never moves the projection by at
// least NormThresh in any loop is disabled.
package eliminate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrInvalidOptions is returned by Options.Validate.
var ErrInvalidOptions = errors.New("invalid elimination options")

// Options configures an elimination run.
type Options struct {
	// Renders is the number of probe images per loop.
	Renders int
	// Loops is the maximum number of background randomizations per
	// candidate.
	Loops int
	// Components is the number of principal components compared.
	Components int
	// NormThresh is the distance at which a candidate is kept.
	NormThresh float64
	// ExplainedVarThresh triggers a warning when the compared components
	// explain less of the variance than this.
	ExplainedVarThresh float64
	// ScratchDir receives the probe images.
	ScratchDir string
	// MaxImageDim downscales probes whose larger side exceeds it. Zero
	// keeps full resolution.
	MaxImageDim int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Renders:            5,
		Loops:              4,
		Components:         3,
		NormThresh:         1.0,
		ExplainedVarThresh: 0.9,
		ScratchDir:         filepath.Join(os.TempDir(), "nodesweep-probes"),
	}
}

// Validate checks the options for consistency.
func (o Options) Validate() error {
	switch {
	case o.Renders < 2:
		return fmt.Errorf("%w: renders must be at least 2, got %d", ErrInvalidOptions, o.Renders)
	case o.Loops < 1:
		return fmt.Errorf("%w: loops must be at least 1, got %d", ErrInvalidOptions, o.Loops)
	case o.Components < 1 || o.Components > o.Renders:
		return fmt.Errorf("%w: components must be in [1, %d], got %d", ErrInvalidOptions, o.Renders, o.Components)
	case o.NormThresh < 0:
		return fmt.Errorf("%w: norm threshold must not be negative, got %g", ErrInvalidOptions, o.NormThresh)
	case o.ExplainedVarThresh < 0 || o.ExplainedVarThresh > 1:
		return fmt.Errorf("%w: explained variance threshold must be in [0, 1], got %g", ErrInvalidOptions, o.ExplainedVarThresh)
	case o.ScratchDir == "":
		return fmt.Errorf("%w: scratch directory not set", ErrInvalidOptions)
	case o.MaxImageDim < 0:
		return fmt.Errorf("%w: max image dimension must not be negative, got %d", ErrInvalidOptions, o.MaxImageDim)
	}
	return nil
}
