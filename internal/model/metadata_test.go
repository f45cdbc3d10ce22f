package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMetadata() Metadata {
	return Metadata{
		InputShape:  []int64{-1, 120, 120, 1},
		OutputShape: []int64{-1, 6},
		Classes:     CategoryNames(),
		ImageSize:   120,
	}
}

func writeMetadata(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model_metadata.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestReadMetadataAppliesDefaults(t *testing.T) {
	path := writeMetadata(t, `{
		"input_shape": [1, 120, 120, 1],
		"output_shape": [1, 6],
		"classes": ["Cardboard", "Glass", "Metal", "Paper", "Plastic", "Trash"]
	}`)

	m, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, ActivationSoftmax, m.Activation)
	assert.Equal(t, 120, m.ImageSize)
	assert.Equal(t, "input", m.InputName)
	assert.Equal(t, "output", m.OutputName)
}

func TestReadMetadataKeepsNames(t *testing.T) {
	path := writeMetadata(t, `{
		"input_shape": [0, 120, 120, 1],
		"output_shape": [-1, 6],
		"classes": ["Cardboard", "Glass", "Metal", "Paper", "Plastic", "Trash"],
		"activation": "none",
		"input_name": "conv2d_input",
		"output_name": "dense_1"
	}`)

	m, err := ReadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, ActivationNone, m.Activation)
	assert.Equal(t, "conv2d_input", m.InputName)
	assert.Equal(t, "dense_1", m.OutputName)
}

func TestReadMetadataErrors(t *testing.T) {
	_, err := ReadMetadata(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = ReadMetadata(writeMetadata(t, "{not json"))
	require.Error(t, err)
}

func TestMetadataValidate(t *testing.T) {
	tests := map[string]func(*Metadata){
		"rgb input":       func(m *Metadata) { m.InputShape = []int64{-1, 120, 120, 3} },
		"wrong size":      func(m *Metadata) { m.InputShape = []int64{-1, 224, 224, 1} },
		"rank 3 input":    func(m *Metadata) { m.InputShape = []int64{120, 120, 1} },
		"ten outputs":     func(m *Metadata) { m.OutputShape = []int64{-1, 10} },
		"image size":      func(m *Metadata) { m.ImageSize = 64 },
		"missing class":   func(m *Metadata) { m.Classes = m.Classes[:5] },
		"reordered class": func(m *Metadata) { m.Classes = []string{"Glass", "Cardboard", "Metal", "Paper", "Plastic", "Trash"} },
		"activation":      func(m *Metadata) { m.Activation = "sigmoid" },
	}

	require.NoError(t, validMetadata().Validate())
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			m := validMetadata()
			mutate(&m)
			assert.Error(t, m.Validate())
		})
	}
}
