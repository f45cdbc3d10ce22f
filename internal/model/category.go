package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Category is a waste class. Its value is the model output index.
type Category int

const (
	Cardboard Category = iota
	Glass
	Metal
	Paper
	Plastic
	Trash
)

// NumCategories is the width of the model's output.
const NumCategories = 6

var categoryNames = [NumCategories]string{"Cardboard", "Glass", "Metal", "Paper", "Plastic", "Trash"}

// Categories returns all categories in output-index order.
func Categories() []Category {
	return []Category{Cardboard, Glass, Metal, Paper, Plastic, Trash}
}

// CategoryNames returns the category names in output-index order.
func CategoryNames() []string {
	return append([]string(nil), categoryNames[:]...)
}

func (c Category) String() string {
	if c < 0 || int(c) >= NumCategories {
		return "Category(" + strconv.Itoa(int(c)) + ")"
	}
	return categoryNames[c]
}

// ProbabilityVector holds one score per category, indexed by Category.
type ProbabilityVector [NumCategories]float32

// scoreTolerance absorbs float32 rounding at the edges of [0,1].
const scoreTolerance = 1e-6

// NewProbabilityVector copies exactly NumCategories scores into a vector.
// Every score must be a number within [0,1].
func NewProbabilityVector(scores []float32) (ProbabilityVector, error) {
	var v ProbabilityVector
	if len(scores) != NumCategories {
		return v, fmt.Errorf("expected %d scores, got %d", NumCategories, len(scores))
	}
	for i, s := range scores {
		f := float64(s)
		if math.IsNaN(f) || f < -scoreTolerance || f > 1+scoreTolerance {
			return ProbabilityVector{}, fmt.Errorf("score %v for %s is outside [0,1]", s, Category(i))
		}
		v[i] = float32(math.Min(math.Max(f, 0), 1))
	}
	return v, nil
}

// Get returns the score for c.
func (v ProbabilityVector) Get(c Category) float32 {
	return v[c]
}

// Percent returns the score for c as a percentage.
func (v ProbabilityVector) Percent(c Category) float64 {
	return float64(v[c]) * 100
}

// Top returns the highest scoring category. Ties go to the lower index.
func (v ProbabilityVector) Top() (Category, float32) {
	best := Cardboard
	for i := 1; i < NumCategories; i++ {
		if v[i] > v[best] {
			best = Category(i)
		}
	}
	return best, v[best]
}

// Map returns the scores keyed by category name.
func (v ProbabilityVector) Map() map[string]float32 {
	m := make(map[string]float32, NumCategories)
	for i, s := range v {
		m[categoryNames[i]] = s
	}
	return m
}

// MarshalJSON encodes the vector as an object with keys in index order.
func (v ProbabilityVector) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, s := range v {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(categoryNames[i]))
		buf.WriteByte(':')
		buf.WriteString(strconv.FormatFloat(float64(s), 'g', -1, 32))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object keyed by category name. All six
// categories must be present.
func (v *ProbabilityVector) UnmarshalJSON(data []byte) error {
	var m map[string]float32
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	scores := make([]float32, NumCategories)
	for i, name := range categoryNames {
		s, ok := m[name]
		if !ok {
			return fmt.Errorf("missing score for %s", name)
		}
		scores[i] = s
	}
	parsed, err := NewProbabilityVector(scores)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
