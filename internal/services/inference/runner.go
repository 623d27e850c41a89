// Package inference is the boundary to the opaque forecasting model: it
// carries the fixed tensor contract and the runners that execute it, either
// against the model sidecar over HTTP or against a deterministic in-process
// stub for demo mode.
package inference

import (
	"context"
	"fmt"
)

// Tensors is the model input for a single-series batch. Continuous tensors
// are [steps][channels]; the transport layer adds the batch dimension and the
// all-zero categorical tensors required by the model signature.
type Tensors struct {
	EncoderCont  [][]float32 // [L][C]
	DecoderCont  [][]float32 // [H][C]
	TargetCenter float64
	TargetScale  float64
}

// Step is one forecast step in the model's normalized target space.
type Step struct {
	Median float64
	Lower  float64
	Upper  float64
}

// Runner executes the forecasting model: assembled tensors in, raw quantile
// outputs out. Implementations must be safe for concurrent use.
type Runner interface {
	Run(ctx context.Context, t *Tensors) ([]Step, error)
}

// Validate checks the minimal shape requirements before a run.
func (t *Tensors) Validate() error {
	if t == nil || len(t.EncoderCont) == 0 || len(t.DecoderCont) == 0 {
		return fmt.Errorf("empty encoder or decoder tensor")
	}
	channels := len(t.EncoderCont[0])
	if channels == 0 {
		return fmt.Errorf("encoder tensor has no channels")
	}
	for i, row := range t.EncoderCont {
		if len(row) != channels {
			return fmt.Errorf("encoder step %d has %d channels, want %d", i, len(row), channels)
		}
	}
	for i, row := range t.DecoderCont {
		if len(row) != channels {
			return fmt.Errorf("decoder step %d has %d channels, want %d", i, len(row), channels)
		}
	}
	return nil
}
