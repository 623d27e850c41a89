package inference

import (
	"context"
	"fmt"
	"time"

	"CropCast/pkg/config"
	xhttp "CropCast/pkg/http"
	"CropCast/pkg/logger"
)

// HTTPRunner calls the model sidecar over HTTP. The sidecar owns the trained
// model; this side owns tensor assembly and shape validation.
type HTTPRunner struct {
	baseURL  string
	client   *xhttp.Client
	attempts int
	l        *logger.Logger
}

// NewHTTPRunner builds the sidecar client from config.
func NewHTTPRunner(cfg *config.Config, lgr *logger.Logger) *HTTPRunner {
	timeout := cfg.Inference.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	attempts := cfg.Inference.Retries
	if attempts <= 0 {
		attempts = 1
	}
	return &HTTPRunner{
		baseURL:  cfg.Inference.BaseURL,
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		attempts: attempts,
		l:        lgr,
	}
}

// Wire shapes follow the model signature exactly: encoder_cat [1,L,1] int64
// zeros, encoder_cont [1,L,C] f32, encoder_lengths [1], decoder_cat [1,H,1],
// decoder_cont [1,H,C], decoder_lengths [1], target_scale [1,2]. Output is
// predictions [1,H,3] (median, lower, upper).
type predictRequest struct {
	EncoderCat     [][][]int64   `json:"encoder_cat"`
	EncoderCont    [][][]float32 `json:"encoder_cont"`
	EncoderLengths []int64       `json:"encoder_lengths"`
	DecoderCat     [][][]int64   `json:"decoder_cat"`
	DecoderCont    [][][]float32 `json:"decoder_cont"`
	DecoderLengths []int64       `json:"decoder_lengths"`
	TargetScale    [][]float64   `json:"target_scale"`
}

type predictResponse struct {
	Predictions [][][]float64 `json:"predictions"`
}

func (r *HTTPRunner) Run(ctx context.Context, t *Tensors) ([]Step, error) {
	if r.client == nil || r.baseURL == "" {
		return nil, fmt.Errorf("inference http client not initialized")
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("inference input: %w", err)
	}

	req := buildWireRequest(t)

	var resp predictResponse
	var err error
	for i := 1; i <= r.attempts; i++ {
		err = r.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodPost,
			URL:    r.baseURL + "/predict",
			Headers: map[string]string{
				"Content-Type": "application/json",
			},
			Body: req,
		}, &resp)
		if err == nil {
			break
		}
		if i == r.attempts {
			return nil, fmt.Errorf("post /predict: %w", err)
		}
		r.l.Warn("inference call failed, retrying",
			logger.Int("attempt", i),
			logger.Error(err))
		select {
		case <-time.After(time.Duration(i) * 100 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	horizon := len(t.DecoderCont)
	if len(resp.Predictions) != 1 || len(resp.Predictions[0]) != horizon {
		return nil, fmt.Errorf("inference output shape [%d,%d], want [1,%d]",
			len(resp.Predictions), wireSteps(resp.Predictions), horizon)
	}

	steps := make([]Step, horizon)
	for i, row := range resp.Predictions[0] {
		if len(row) < 3 {
			return nil, fmt.Errorf("inference step %d has %d quantiles, want 3", i, len(row))
		}
		steps[i] = Step{Median: row[0], Lower: row[1], Upper: row[2]}
	}
	return steps, nil
}

func buildWireRequest(t *Tensors) *predictRequest {
	encLen := len(t.EncoderCont)
	decLen := len(t.DecoderCont)

	encCat := make([][]int64, encLen)
	for i := range encCat {
		encCat[i] = []int64{0}
	}
	decCat := make([][]int64, decLen)
	for i := range decCat {
		decCat[i] = []int64{0}
	}

	return &predictRequest{
		EncoderCat:     [][][]int64{encCat},
		EncoderCont:    [][][]float32{t.EncoderCont},
		EncoderLengths: []int64{int64(encLen)},
		DecoderCat:     [][][]int64{decCat},
		DecoderCont:    [][][]float32{t.DecoderCont},
		DecoderLengths: []int64{int64(decLen)},
		TargetScale:    [][]float64{{t.TargetCenter, t.TargetScale}},
	}
}

func wireSteps(preds [][][]float64) int {
	if len(preds) == 0 {
		return 0
	}
	return len(preds[0])
}
