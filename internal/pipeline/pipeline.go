package pipeline

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ZanzyTHEbar/posture-risk/internal/ergonomics"
	"github.com/ZanzyTHEbar/posture-risk/internal/pose"
)

// Result is the outcome of processing one tensor.
type Result struct {
	Success              bool                `json:"success"`
	Keypoints            []pose.Keypoint     `json:"keypoints"`
	Features             ergonomics.Features `json:"ergonomic_features"`
	NumKeypointsDetected int                 `json:"num_keypoints_detected"`
	Error                string              `json:"error,omitempty"`
}

// Failure builds the unsuccessful Result for err.
func Failure(err error) Result {
	return Result{
		Success:   false,
		Error:     err.Error(),
		Keypoints: []pose.Keypoint{},
	}
}

// Pipeline sequences keypoint decoding and feature extraction. It does not
// score; callers score the primary subject themselves.
type Pipeline struct {
	decoder *pose.Decoder
	extract func(pose.KeypointSet) ergonomics.Features
	workers int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds how many tensors ProcessBatch handles at once.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithExtractor replaces the feature extractor.
func WithExtractor(fn func(pose.KeypointSet) ergonomics.Features) Option {
	return func(p *Pipeline) {
		if fn != nil {
			p.extract = fn
		}
	}
}

func New(decoder *pose.Decoder, opts ...Option) *Pipeline {
	p := &Pipeline{
		decoder: decoder,
		extract: ergonomics.Extract,
		workers: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process decodes t and extracts features. It never panics; any failure is
// reported as an unsuccessful Result.
func (p *Pipeline) Process(t pose.Tensor) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failure(fmt.Errorf("processing tensor: %v", r))
		}
	}()

	ks := p.decoder.Decode(t)
	features := p.extract(ks)

	return Result{
		Success:              true,
		Keypoints:            ks.Keypoints(),
		Features:             features,
		NumKeypointsDetected: ks.Len(),
	}
}

// ProcessBatch processes each tensor independently, preserving input order.
// One failing input never affects the others.
func (p *Pipeline) ProcessBatch(tensors []pose.Tensor) []Result {
	results := make([]Result, len(tensors))

	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	for i, t := range tensors {
		g.Go(func() error {
			results[i] = p.Process(t)
			return nil
		})
	}
	_ = g.Wait()

	return results
}
