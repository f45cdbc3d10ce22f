// Package inference classifies one image per call with a cached model.
package inference

import (
	"math"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/recycle-api/internal/model"
	"github.com/Brownie44l1/recycle-api/internal/tensor"
)

// ModelProvider hands out the shared model, loading it on first use.
type ModelProvider interface {
	Get() (model.Model, error)
}

// Preparer turns encoded bytes into the model's input tensor.
type Preparer interface {
	Prepare(raw []byte) (*tensor.Tensor, error)
}

var outputShape = tensor.NewShape(1, model.NumCategories)

// Engine runs the whole pipeline. It is safe for concurrent use: the model
// is shared read-only and every tensor belongs to the call that made it.
type Engine struct {
	models  ModelProvider
	prep    Preparer
	tracker *tensor.Tracker
}

// NewEngine wires an engine. tracker should be the one the preparer and
// the model allocate from; it is only used for reporting.
func NewEngine(models ModelProvider, prep Preparer, tracker *tensor.Tracker) *Engine {
	return &Engine{models: models, prep: prep, tracker: tracker}
}

// Tracker returns the buffer accounting shared by the pipeline.
func (e *Engine) Tracker() *tensor.Tracker {
	return e.tracker
}

// Classify returns the category distribution for one encoded image. It
// makes a single attempt; every failure is a *model.PipelineError and no
// partial vector is ever returned.
func (e *Engine) Classify(raw []byte) (model.ProbabilityVector, error) {
	start := time.Now()

	m, err := e.models.Get()
	if err != nil {
		return model.ProbabilityVector{}, model.NewError(model.KindModelLoad, err)
	}

	in, err := e.prep.Prepare(raw)
	if err != nil {
		return model.ProbabilityVector{}, model.NewError(model.KindDecode, err)
	}
	defer in.Release()

	out, err := m.Predict(in)
	if out != nil {
		defer out.Release()
	}
	if err != nil {
		return model.ProbabilityVector{}, model.NewError(model.KindInference, err)
	}
	if out == nil {
		return model.ProbabilityVector{}, model.Errorf(model.KindInference, "model returned no output")
	}

	if shape := out.Shape(); !shape.Equal(outputShape) {
		return model.ProbabilityVector{}, model.Errorf(model.KindShape, "model output shape %v, want %v", shape, outputShape)
	}

	scores := append([]float32(nil), out.Data()...)
	if activationOf(m) == model.ActivationNone {
		softmax(scores)
	}

	vec, err := model.NewProbabilityVector(scores)
	if err != nil {
		return model.ProbabilityVector{}, model.NewError(model.KindInference, err)
	}

	top, score := vec.Top()
	log.WithFields(log.Fields{
		"class":      top.String(),
		"confidence": score,
		"elapsed":    time.Since(start).Round(time.Microsecond),
	}).Debug("[Inference] Classified image")
	return vec, nil
}

func activationOf(m model.Model) model.Activation {
	if d, ok := m.(model.Describer); ok {
		return d.Metadata().Activation
	}
	return model.ActivationSoftmax
}

// softmax normalizes logits in place.
func softmax(logits []float32) {
	if len(logits) == 0 {
		return
	}
	maxLogit := float64(logits[0])
	for _, v := range logits {
		maxLogit = math.Max(maxLogit, float64(v))
	}

	sum := 0.0
	exps := make([]float64, len(logits))
	for i, v := range logits {
		exps[i] = math.Exp(float64(v) - maxLogit)
		sum += exps[i]
	}
	for i := range logits {
		logits[i] = float32(exps[i] / sum)
	}
}
