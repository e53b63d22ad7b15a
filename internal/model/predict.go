package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/Brownie44l1/leaf-api/internal/apperr"
	"github.com/Brownie44l1/leaf-api/internal/labels"
	"github.com/Brownie44l1/leaf-api/internal/preprocess"
)

// Predict runs one forward pass and returns probabilities aligned with set.
// out says whether the head emits probabilities or logits; OutputAuto
// decides from the values.
func Predict(m Model, t *preprocess.Tensor, set *labels.Set, out Output) (*Prediction, error) {
	if t == nil || len(t.Data) == 0 {
		return nil, apperr.Inference("The input tensor is empty.", nil)
	}
	if len(t.Data) != t.Size() {
		return nil, apperr.Inference(
			fmt.Sprintf("Expected %d values, got %d.", t.Size(), len(t.Data)), ErrShapeMismatch)
	}

	raw, err := m.Run(t)
	if err != nil {
		msg := "The model could not process this input."
		if errors.Is(err, ErrShapeMismatch) {
			msg = "The input does not match the model's expected shape."
		}
		return nil, apperr.Inference(msg, err)
	}

	for i, v := range raw {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, apperr.Inference("The model returned an invalid result.",
				fmt.Errorf("output %d is %v", i, v))
		}
	}

	if set.Binary() {
		if len(raw) != 1 {
			return nil, apperr.Inference("The model returned an unexpected result.",
				fmt.Errorf("binary model returned %d outputs, want 1", len(raw)))
		}
		score := float64(raw[0])
		switch {
		case out == OutputLogits:
			score = sigmoid(score)
		case out == OutputProbabilities:
			if score < 0 || score > 1 {
				return nil, apperr.Inference("The model returned an invalid result.",
					fmt.Errorf("probability %v is outside [0, 1]", score))
			}
		case score < 0 || score > 1:
			score = sigmoid(score)
		}
		return &Prediction{
			Probabilities: []float64{1 - score, score},
			Activation:    ActivationSigmoid,
			Score:         &score,
		}, nil
	}

	if len(raw) != set.Len() {
		return nil, apperr.Inference("The model returned an unexpected result.",
			fmt.Errorf("model returned %d outputs for %d labels", len(raw), set.Len()))
	}
	probs, act, err := normalise(raw, out)
	if err != nil {
		return nil, apperr.Inference("The model returned an invalid result.", err)
	}
	return &Prediction{Probabilities: probs, Activation: act}, nil
}

// normalise rescales an output that is already a distribution, and
// applies softmax to logits. In auto mode anything that is not a
// distribution counts as logits.
func normalise(raw []float32, mode Output) ([]float64, Activation, error) {
	out := make([]float64, len(raw))
	sum := 0.0
	distribution := true
	for i, v := range raw {
		out[i] = float64(v)
		if v < 0 {
			distribution = false
		}
		sum += out[i]
	}

	switch mode {
	case OutputLogits:
		return softmax(out), ActivationLogits, nil
	case OutputProbabilities:
		if !distribution || sum <= 0 {
			return nil, "", fmt.Errorf("output is not a distribution (sum %v)", sum)
		}
	default:
		if !distribution || math.Abs(sum-1) >= 1e-3 {
			return softmax(out), ActivationLogits, nil
		}
	}
	for i := range out {
		out[i] /= sum
	}
	return out, ActivationSoftmax, nil
}

func softmax(x []float64) []float64 {
	peak := math.Inf(-1)
	for _, v := range x {
		peak = math.Max(peak, v)
	}
	out := make([]float64, len(x))
	sum := 0.0
	for i, v := range x {
		out[i] = math.Exp(v - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
