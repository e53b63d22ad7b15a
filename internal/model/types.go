package model

import (
	"errors"
	"fmt"

	"github.com/Brownie44l1/leaf-api/internal/preprocess"
)

// Model is a loaded classifier. Implementations must allow concurrent Run.
type Model interface {
	Run(input *preprocess.Tensor) ([]float32, error)
	Close() error
}

// Signature is what the service expects of the artifact.
type Signature struct {
	Resolution int
	Layout     preprocess.Layout
	// OutputSize is the label count, or 1 for a sigmoid head.
	OutputSize int
}

// ErrShapeMismatch is returned by Run when the tensor does not fit the model.
var ErrShapeMismatch = errors.New("tensor shape does not match model input")

// Activation records how raw outputs became probabilities.
type Activation string

const (
	ActivationSoftmax Activation = "softmax" // output already a distribution
	ActivationLogits  Activation = "logits"  // softmax applied here
	ActivationSigmoid Activation = "sigmoid" // binary head
)

// Output declares what the artifact's head emits.
type Output string

const (
	// OutputAuto infers the head from the value range.
	OutputAuto          Output = "auto"
	OutputProbabilities Output = "probabilities"
	OutputLogits        Output = "logits"
)

// ParseOutput maps a config value to an Output. Empty means auto.
func ParseOutput(s string) (Output, error) {
	switch o := Output(s); o {
	case "":
		return OutputAuto, nil
	case OutputAuto, OutputProbabilities, OutputLogits:
		return o, nil
	}
	return "", fmt.Errorf("unknown model output %q (want auto, probabilities or logits)", s)
}

// Prediction holds probabilities aligned with the label set.
type Prediction struct {
	Probabilities []float64  `json:"probabilities"`
	Activation    Activation `json:"activation"`
	// Score is P(Diseased) for the binary variant.
	Score *float64 `json:"score,omitempty"`
}

// TensorRequest is the body of a raw tensor prediction.
type TensorRequest struct {
	Image []float32 `json:"image"`
}
