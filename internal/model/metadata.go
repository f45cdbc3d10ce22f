package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Brownie44l1/recycle-api/internal/tensor"
)

// ImageSize is the square edge, in pixels, the classifier was trained on.
const ImageSize = 120

// Input and output contracts. A negative dimension accepts any batch size.
var (
	InputContract  = tensor.NewShape(-1, ImageSize, ImageSize, 1)
	OutputContract = tensor.NewShape(-1, NumCategories)
)

const (
	defaultInputName  = "input"
	defaultOutputName = "output"
)

// ReadMetadata parses the descriptor at path and checks it against the
// classifier contract.
func ReadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata.withDefaults(), nil
}

// Validate checks shapes, class order and activation.
func (m Metadata) Validate() error {
	if !BatchShape(m.InputShape).Matches(InputContract) {
		return fmt.Errorf("model input shape %v does not satisfy %v", m.InputShape, InputContract)
	}
	if !BatchShape(m.OutputShape).Matches(OutputContract) {
		return fmt.Errorf("model output shape %v does not satisfy %v", m.OutputShape, OutputContract)
	}
	if m.ImageSize != 0 && m.ImageSize != ImageSize {
		return fmt.Errorf("model image size %d, want %d", m.ImageSize, ImageSize)
	}

	if len(m.Classes) != NumCategories {
		return fmt.Errorf("metadata lists %d classes, want %d", len(m.Classes), NumCategories)
	}
	for i, name := range m.Classes {
		if name != categoryNames[i] {
			return fmt.Errorf("class %d is %q, want %q", i, name, categoryNames[i])
		}
	}

	switch m.Activation {
	case "", ActivationSoftmax, ActivationNone:
	default:
		return fmt.Errorf("unknown activation %q", m.Activation)
	}
	return nil
}

func (m Metadata) withDefaults() Metadata {
	if m.Activation == "" {
		m.Activation = ActivationSoftmax
	}
	if m.ImageSize == 0 {
		m.ImageSize = ImageSize
	}
	if m.InputName == "" {
		m.InputName = defaultInputName
	}
	if m.OutputName == "" {
		m.OutputName = defaultOutputName
	}
	return m
}

// BatchShape treats a leading zero (as some exporters write for a dynamic
// batch) like -1.
func BatchShape(dims []int64) tensor.Shape {
	s := tensor.NewShape(dims...)
	if len(s) > 0 && s[0] == 0 {
		s = append(tensor.Shape{-1}, s[1:]...)
	}
	return s
}
