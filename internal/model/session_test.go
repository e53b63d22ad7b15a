package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/leaf-api/internal/preprocess"
)

func TestCheckInput(t *testing.T) {
	sig := Signature{Resolution: 224, Layout: preprocess.LayoutNHWC, OutputSize: 38}

	tests := []struct {
		name    string
		info    ort.InputOutputInfo
		wantErr bool
	}{
		{"fixed nhwc", ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(1, 224, 224, 3)}, false},
		{"dynamic batch", ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(-1, 224, 224, 3)}, false},
		{"wrong resolution", ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(1, 150, 150, 3)}, true},
		{"nchw export", ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(1, 3, 224, 224)}, true},
		{"wrong rank", ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(224, 224, 3)}, true},
		{"uint8 input", ort.InputOutputInfo{Name: "input", DataType: ort.TensorElementDataTypeUint8, Dimensions: ort.NewShape(1, 224, 224, 3)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shape, err := checkInput(tt.info, sig)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ort.NewShape(1, 224, 224, 3), shape)
		})
	}
}

func TestCheckInputNCHW(t *testing.T) {
	sig := Signature{Resolution: 150, Layout: preprocess.LayoutNCHW, OutputSize: 1}
	info := ort.InputOutputInfo{Name: "x", DataType: ort.TensorElementDataTypeFloat, Dimensions: ort.NewShape(-1, 3, -1, -1)}

	shape, err := checkInput(info, sig)
	require.NoError(t, err)
	assert.Equal(t, ort.NewShape(1, 3, 150, 150), shape)
}

func TestCheckOutput(t *testing.T) {
	sig := Signature{Resolution: 224, Layout: preprocess.LayoutNHWC, OutputSize: 38}

	shape, err := checkOutput(ort.InputOutputInfo{Name: "probs", Dimensions: ort.NewShape(-1, 38)}, sig)
	require.NoError(t, err)
	assert.Equal(t, ort.NewShape(1, 38), shape)

	shape, err = checkOutput(ort.InputOutputInfo{Name: "probs", Dimensions: ort.NewShape(38)}, sig)
	require.NoError(t, err)
	assert.Equal(t, ort.NewShape(38), shape)

	_, err = checkOutput(ort.InputOutputInfo{Name: "probs", Dimensions: ort.NewShape(1, 7)}, sig)
	assert.Error(t, err)

	_, err = checkOutput(ort.InputOutputInfo{Name: "probs", Dimensions: ort.NewShape(4, 38)}, sig)
	assert.Error(t, err)

	_, err = checkOutput(ort.InputOutputInfo{Name: "probs"}, sig)
	assert.Error(t, err)
}

func TestExpectedInput(t *testing.T) {
	assert.Equal(t, ort.NewShape(1, 150, 150, 3), expectedInput(Signature{Resolution: 150, Layout: preprocess.LayoutNHWC}))
	assert.Equal(t, ort.NewShape(1, 3, 150, 150), expectedInput(Signature{Resolution: 150, Layout: preprocess.LayoutNCHW}))
}

func TestRunArgumentsAcceptFloatTensors(t *testing.T) {
	var in, out ort.ArbitraryTensor = (*ort.Tensor[float32])(nil), (*ort.Tensor[float32])(nil)
	assert.Len(t, []ort.ArbitraryTensor{in, out}, 2)
}

func TestSessionCloseLeavesRuntime(t *testing.T) {
	s := &Session{}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	// Nothing initialised the environment, so there is nothing to tear down.
	assert.False(t, ort.IsInitialized())
	assert.NoError(t, ShutdownRuntime())
}
