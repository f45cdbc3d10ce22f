package model

import (
	"github.com/Brownie44l1/recycle-api/internal/tensor"
)

// Model runs a forward pass over a normalized image batch. Implementations
// are shared read-only between concurrent callers. The returned tensor is
// owned by the caller and must be released.
type Model interface {
	Predict(in *tensor.Tensor) (*tensor.Tensor, error)
}

// Activation describes what the model's final layer emits.
type Activation string

const (
	// ActivationSoftmax means scores already form a distribution.
	ActivationSoftmax Activation = "softmax"
	// ActivationNone means raw logits that still need a softmax.
	ActivationNone Activation = "none"
)

// Describer is implemented by models that carry their descriptor.
type Describer interface {
	Metadata() Metadata
}

// Metadata is the topology descriptor published next to the weights.
type Metadata struct {
	InputShape  []int64    `json:"input_shape"`
	OutputShape []int64    `json:"output_shape"`
	Classes     []string   `json:"classes"`
	ImageSize   int        `json:"image_size"`
	Activation  Activation `json:"activation,omitempty"`
	InputName   string     `json:"input_name,omitempty"`
	OutputName  string     `json:"output_name,omitempty"`
}

type PredictionResponse struct {
	Class       string            `json:"class"`
	Confidence  float32           `json:"confidence"`
	Predictions ProbabilityVector `json:"predictions"`
}

// NewPredictionResponse builds the wire response for a vector.
func NewPredictionResponse(v ProbabilityVector) PredictionResponse {
	top, score := v.Top()
	return PredictionResponse{
		Class:       top.String(),
		Confidence:  score,
		Predictions: v,
	}
}
