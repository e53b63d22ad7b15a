package model

import (
	"fmt"
	"slices"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/leaf-api/internal/preprocess"
)

var runtimeMu sync.Mutex

// initRuntime loads the ONNX Runtime shared library if it is not loaded.
// Sessions opened after ShutdownRuntime initialise it again.
func initRuntime(library string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if library != "" {
		ort.SetSharedLibraryPath(library)
	}
	return ort.InitializeEnvironment()
}

// ShutdownRuntime releases the ONNX Runtime environment. Call it once every
// session is closed.
func ShutdownRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Session is an ONNX Runtime session. Tensors are allocated per call, so
// Run is safe for concurrent use.
type Session struct {
	session     *ort.DynamicAdvancedSession
	inputName   string
	outputName  string
	inputShape  ort.Shape
	outputShape ort.Shape
}

// Opener returns a Loader that opens ONNX artifacts checked against sig.
func Opener(sig Signature, runtimeLibrary string) Loader {
	return func(path string) (Model, error) {
		return OpenSession(path, sig, runtimeLibrary)
	}
}

// OpenSession loads the artifact at path and checks its first input and
// output against sig.
func OpenSession(path string, sig Signature, runtimeLibrary string) (*Session, error) {
	if err := initRuntime(runtimeLibrary); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model signature: %w", err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, fmt.Errorf("model has %d inputs and %d outputs", len(inputs), len(outputs))
	}

	inputShape, err := checkInput(inputs[0], sig)
	if err != nil {
		return nil, err
	}
	outputShape, err := checkOutput(outputs[0], sig)
	if err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSession(path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Session{
		session:     session,
		inputName:   inputs[0].Name,
		outputName:  outputs[0].Name,
		inputShape:  inputShape,
		outputShape: outputShape,
	}, nil
}

// expectedInput is the concrete input shape for sig.
func expectedInput(sig Signature) ort.Shape {
	r := int64(sig.Resolution)
	if sig.Layout == preprocess.LayoutNCHW {
		return ort.NewShape(1, 3, r, r)
	}
	return ort.NewShape(1, r, r, 3)
}

func checkInput(info ort.InputOutputInfo, sig Signature) (ort.Shape, error) {
	if info.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("input %q has element type %v, want float32", info.Name, info.DataType)
	}
	want := expectedInput(sig)
	if len(info.Dimensions) != len(want) {
		return nil, fmt.Errorf("input %q has shape %v, want rank %d", info.Name, info.Dimensions, len(want))
	}
	// Dynamic dims (<= 0) accept any size.
	for i, d := range info.Dimensions {
		if d > 0 && d != want[i] {
			return nil, fmt.Errorf("input %q has shape %v, want %v (%s)", info.Name, info.Dimensions, want, sig.Layout)
		}
	}
	return want, nil
}

func checkOutput(info ort.InputOutputInfo, sig Signature) (ort.Shape, error) {
	dims := info.Dimensions
	if len(dims) == 0 {
		return nil, fmt.Errorf("output %q is a scalar", info.Name)
	}
	last := dims[len(dims)-1]
	if last > 0 && last != int64(sig.OutputSize) {
		return nil, fmt.Errorf("output %q has %d units, want %d", info.Name, last, sig.OutputSize)
	}

	shape := make(ort.Shape, len(dims))
	for i, d := range dims[:len(dims)-1] {
		if d > 1 {
			return nil, fmt.Errorf("output %q has shape %v, want a single row", info.Name, dims)
		}
		shape[i] = 1
	}
	shape[len(shape)-1] = int64(sig.OutputSize)
	return shape, nil
}

// Run executes one forward pass.
func (s *Session) Run(input *preprocess.Tensor) ([]float32, error) {
	if !slices.Equal(input.Shape, []int64(s.inputShape)) {
		return nil, fmt.Errorf("%w: got %v, model expects %v", ErrShapeMismatch, input.Shape, s.inputShape)
	}
	if len(input.Data) != int(s.inputShape.FlattenedSize()) {
		return nil, fmt.Errorf("%w: %d values for shape %v", ErrShapeMismatch, len(input.Data), s.inputShape)
	}

	in, err := ort.NewTensor(s.inputShape, input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](s.outputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	if err := s.session.Run([]ort.ArbitraryTensor{in}, []ort.ArbitraryTensor{out}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	return slices.Clone(out.GetData()), nil
}

// Close releases the session. The runtime environment stays up for the
// next session; see ShutdownRuntime.
func (s *Session) Close() error {
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}
