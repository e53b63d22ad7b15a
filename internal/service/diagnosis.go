// Package service holds the request handling shared by every upload
// surface: decode, model access, preprocess, predict, present.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Brownie44l1/leaf-api/internal/apperr"
	"github.com/Brownie44l1/leaf-api/internal/labels"
	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/Brownie44l1/leaf-api/internal/preprocess"
	"github.com/Brownie44l1/leaf-api/internal/present"
)

// ModelProvider hands out the shared model handle.
type ModelProvider interface {
	Get(ctx context.Context) (model.Model, error)
	Loaded() bool
}

// Observer counts diagnosis outcomes.
type Observer interface {
	ObservePrediction(label string)
	ObserveError(kind string)
}

type Options struct {
	// Enhance is the default for requests that do not choose.
	Enhance bool
	// Output declares the model head. Empty infers it per prediction.
	Output model.Output
	TopK   int
	// Catalog enables disease text. Nil disables it.
	Catalog  *labels.Catalog
	Logger   *slog.Logger
	Observer Observer
}

type Request struct {
	ImageData []byte
	Filename  string
	Enhance   *bool
}

type Result struct {
	RequestID  string           `json:"request_id"`
	Filename   string           `json:"filename,omitempty"`
	Format     string           `json:"format,omitempty"`
	Width      int              `json:"width,omitempty"`
	Height     int              `json:"height,omitempty"`
	Enhanced   bool             `json:"enhanced"`
	Variant    labels.Variant   `json:"variant"`
	Activation model.Activation `json:"activation"`
	Score      *float64         `json:"score,omitempty"`
	Prediction *present.Ranked  `json:"result"`
	Elapsed    time.Duration    `json:"-"`
	ElapsedMS  float64          `json:"elapsed_ms"`
}

type DiagnosisService struct {
	models ModelProvider
	prep   *preprocess.Preprocessor
	set    *labels.Set
	opts   Options
	log    *slog.Logger
}

func NewDiagnosisService(models ModelProvider, prep *preprocess.Preprocessor, set *labels.Set, opts Options) *DiagnosisService {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &DiagnosisService{
		models: models,
		prep:   prep,
		set:    set,
		opts:   opts,
		log:    log.With("component", "diagnosis"),
	}
}

func (s *DiagnosisService) Labels() *labels.Set { return s.set }

func (s *DiagnosisService) Resolution() int { return s.prep.Resolution() }

func (s *DiagnosisService) ModelLoaded() bool { return s.models.Loaded() }

// InputSize is the number of values a raw tensor request must carry.
func (s *DiagnosisService) InputSize() int {
	r := s.prep.Resolution()
	return r * r * 3
}

// Diagnose classifies one uploaded image. Empty or undecodable uploads
// fail before the model is touched.
func (s *DiagnosisService) Diagnose(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res := &Result{
		RequestID: uuid.NewString(),
		Filename:  req.Filename,
		Variant:   s.set.Variant(),
		Enhanced:  s.opts.Enhance,
	}
	if req.Enhance != nil {
		res.Enhanced = *req.Enhance
	}
	log := s.log.With("request_id", res.RequestID)

	if len(req.ImageData) == 0 {
		return nil, s.fail(log, apperr.InvalidImage("The uploaded file is empty.", nil))
	}

	img, format, err := s.prep.Decode(req.ImageData)
	if err != nil {
		return nil, s.fail(log, err)
	}
	b := img.Bounds()
	res.Format, res.Width, res.Height = format, b.Dx(), b.Dy()

	m, err := s.models.Get(ctx)
	if err != nil {
		return nil, s.fail(log, err)
	}

	tensor, err := s.prep.Preprocess(img, res.Enhanced)
	if err != nil {
		return nil, s.fail(log, err)
	}

	if err := s.classify(m, tensor, res); err != nil {
		return nil, s.fail(log, err)
	}

	res.Elapsed = time.Since(start)
	res.ElapsedMS = float64(res.Elapsed.Microseconds()) / 1000
	log.Info("diagnosis complete",
		"filename", req.Filename,
		"format", format,
		"width", res.Width,
		"height", res.Height,
		"enhanced", res.Enhanced,
		"label", res.Prediction.Primary.Label,
		"confidence", res.Prediction.Confidence,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// PredictTensor classifies an already preprocessed flat tensor.
func (s *DiagnosisService) PredictTensor(ctx context.Context, data []float32) (*Result, error) {
	start := time.Now()
	res := &Result{RequestID: uuid.NewString(), Variant: s.set.Variant()}
	log := s.log.With("request_id", res.RequestID)

	tensor, err := preprocess.FromValues(s.prep.Layout(), s.prep.Resolution(), data)
	if err != nil {
		return nil, s.fail(log, apperr.InvalidImage(
			fmt.Sprintf("Expected %d values, got %d.", s.InputSize(), len(data)), err))
	}

	m, err := s.models.Get(ctx)
	if err != nil {
		return nil, s.fail(log, err)
	}

	if err := s.classify(m, tensor, res); err != nil {
		return nil, s.fail(log, err)
	}

	res.Elapsed = time.Since(start)
	res.ElapsedMS = float64(res.Elapsed.Microseconds()) / 1000
	log.Info("tensor prediction complete",
		"label", res.Prediction.Primary.Label,
		"confidence", res.Prediction.Confidence,
		"elapsed", res.Elapsed,
	)
	return res, nil
}

func (s *DiagnosisService) classify(m model.Model, tensor *preprocess.Tensor, res *Result) error {
	pred, err := model.Predict(m, tensor, s.set, s.opts.Output)
	if err != nil {
		return err
	}

	ranked, err := present.Present(pred.Probabilities, s.set, present.Options{
		TopK:    s.opts.TopK,
		Catalog: s.opts.Catalog,
	})
	if err != nil {
		return apperr.Inference("The model returned an unexpected result.", err)
	}

	res.Activation = pred.Activation
	res.Score = pred.Score
	res.Prediction = ranked
	if s.opts.Observer != nil {
		s.opts.Observer.ObservePrediction(ranked.Primary.Label)
	}
	return nil
}

func (s *DiagnosisService) fail(log *slog.Logger, err error) error {
	kind := apperr.KindOf(err)
	if s.opts.Observer != nil {
		s.opts.Observer.ObserveError(kind.String())
	}
	level := slog.LevelWarn
	if kind == apperr.KindModelUnavailable || kind == apperr.KindUnknown {
		level = slog.LevelError
	}
	log.Log(context.Background(), level, "diagnosis failed", "kind", kind.String(), "error", err)
	return err
}
