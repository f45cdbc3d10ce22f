// Package onnx serves the classifier with ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/recycle-api/internal/artifact"
	"github.com/Brownie44l1/recycle-api/internal/model"
	"github.com/Brownie44l1/recycle-api/internal/tensor"
)

var runtimeMu sync.Mutex

// InitRuntime loads the ONNX Runtime shared library once per process.
// An empty libraryPath keeps the library's default lookup.
func InitRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return nil
}

// ShutdownRuntime tears the ONNX Runtime environment down. Sessions must
// be closed first.
func ShutdownRuntime() {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.WithError(err).Warn("[ONNX] Couldn't destroy environment")
		}
	}
}

// Model runs the classifier with ONNX Runtime. Native tensors are
// created per call and destroyed before Predict returns, so one session
// serves concurrent callers.
type Model struct {
	session  *ort.DynamicAdvancedSession
	metadata model.Metadata
	tracker  *tensor.Tracker
}

// NewModel opens modelPath and checks its inputs and outputs against
// metadata. Output tensors are allocated through tracker.
func NewModel(modelPath string, metadata model.Metadata, tracker *tensor.Tracker) (*Model, error) {
	if !ort.IsInitialized() {
		return nil, fmt.Errorf("ONNX environment is not initialized")
	}
	if err := checkModelIO(modelPath, metadata); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Model{
		session:  session,
		metadata: metadata,
		tracker:  tracker,
	}, nil
}

func checkModelIO(modelPath string, metadata model.Metadata) error {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("failed to inspect model: %w", err)
	}

	check := func(infos []ort.InputOutputInfo, name string, contract tensor.Shape) error {
		for _, info := range infos {
			if info.Name != name {
				continue
			}
			if info.DataType != ort.TensorElementDataTypeFloat {
				return fmt.Errorf("%s has element type %v, want float32", name, info.DataType)
			}
			if !model.BatchShape(info.Dimensions).Matches(contract) {
				return fmt.Errorf("%s has shape %v, want %v", name, info.Dimensions, contract)
			}
			return nil
		}
		return fmt.Errorf("model has no tensor named %q", name)
	}

	if err := check(inputs, metadata.InputName, model.InputContract); err != nil {
		return err
	}
	return check(outputs, metadata.OutputName, model.OutputContract)
}

func (m *Model) Metadata() model.Metadata {
	return m.metadata
}

func (m *Model) Predict(in *tensor.Tensor) (*tensor.Tensor, error) {
	shape := in.Shape()
	if !shape.Matches(model.InputContract) {
		return nil, model.Errorf(model.KindShape, "input shape %v does not satisfy %v", shape, model.InputContract)
	}
	data := in.Data()
	if data == nil {
		return nil, model.Errorf(model.KindInference, "input tensor already released")
	}

	input, err := ort.NewTensor(ort.NewShape(shape...), data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	batch := shape[0]
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(batch, model.NumCategories))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := m.session.Run([]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	scores := append([]float32(nil), output.GetData()...)
	return m.tracker.FromData(tensor.NewShape(batch, model.NumCategories), scores)
}

// Close destroys the session.
func (m *Model) Close() error {
	if m.session == nil {
		return nil
	}
	err := m.session.Destroy()
	m.session = nil
	return err
}

// Loader fetches an artifact and opens it as a Model.
type Loader struct {
	Source      artifact.Source
	LibraryPath string
	Tracker     *tensor.Tracker
}

func (l *Loader) Load(ctx context.Context) (model.Model, error) {
	log.WithField("source", l.Source.String()).Info("[ONNX] Fetching model artifact")

	bundle, err := l.Source.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", l.Source, err)
	}

	metadata, err := model.ReadMetadata(bundle.MetadataPath)
	if err != nil {
		l.evict()
		return nil, err
	}

	if err := InitRuntime(l.LibraryPath); err != nil {
		return nil, err
	}

	m, err := NewModel(bundle.ModelPath, metadata, l.Tracker)
	if err != nil {
		l.evict()
		return nil, err
	}

	log.WithFields(log.Fields{
		"model":      bundle.ModelPath,
		"classes":    metadata.Classes,
		"activation": metadata.Activation,
	}).Info("[ONNX] Model loaded")
	return m, nil
}

// evict drops a downloaded copy that failed to open, so the next attempt
// fetches it again instead of rereading the same bad files.
func (l *Loader) evict() {
	e, ok := l.Source.(artifact.Evicter)
	if !ok {
		return
	}
	if err := e.Evict(); err != nil {
		log.WithError(err).Warn("[ONNX] Couldn't evict cached artifact")
	}
}
