package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"html/template"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Brownie44l1/leaf-api/internal/apperr"
	"github.com/Brownie44l1/leaf-api/internal/labels"
	"github.com/Brownie44l1/leaf-api/internal/model"
	"github.com/Brownie44l1/leaf-api/internal/service"
)

// Diagnoser is the part of service.DiagnosisService the handlers use.
type Diagnoser interface {
	Diagnose(ctx context.Context, req service.Request) (*service.Result, error)
	PredictTensor(ctx context.Context, data []float32) (*service.Result, error)
	Labels() *labels.Set
	Resolution() int
	InputSize() int
	ModelLoaded() bool
}

type Handler struct {
	svc            Diagnoser
	maxUploadBytes int64
	enhance        bool
	log            *slog.Logger
}

func NewHandler(svc Diagnoser, maxUploadBytes int64, enhance bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
		enhance:        enhance,
		log:            logger.With("component", "http"),
	}
}

// multipartOverhead is the room left for boundaries, part headers and the
// small form fields on top of the file limit.
const multipartOverhead = 64 << 10

var (
	errNoFile  = apperr.InvalidImage("No image file provided. Use 'image' as the form field name.", nil)
	errTooLong = apperr.InvalidImage("The uploaded file is too large.", nil)
)

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"model_loaded": h.svc.ModelLoaded(),
		"variant":      h.svc.Labels().Variant(),
		"resolution":   h.svc.Resolution(),
		"input_size":   h.svc.InputSize(),
	})
}

func (h *Handler) Labels(c *gin.Context) {
	set := h.svc.Labels()
	c.JSON(http.StatusOK, gin.H{
		"variant": set.Variant(),
		"count":   set.Len(),
		"labels":  set.Names(),
	})
}

// Predict classifies a raw, already preprocessed tensor.
func (h *Handler) Predict(c *gin.Context) {
	var req model.TensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON", "details": err.Error()})
		return
	}

	result, err := h.svc.PredictTensor(c.Request.Context(), req.Image)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PredictFromImage classifies a multipart upload and answers with JSON.
func (h *Handler) PredictFromImage(c *gin.Context) {
	req, err := h.readUpload(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	result, err := h.svc.Diagnose(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", h.page(gin.H{}))
}

// Upload handles the HTML form and renders the result page.
func (h *Handler) Upload(c *gin.Context) {
	req, err := h.readUpload(c)
	if err != nil {
		h.renderError(c, err)
		return
	}
	// An unchecked box is absent from the form.
	if req.Enhance == nil {
		off := false
		req.Enhance = &off
	}

	result, err := h.svc.Diagnose(c.Request.Context(), req)
	if err != nil {
		h.renderError(c, err)
		return
	}

	c.HTML(http.StatusOK, "result.html", h.page(gin.H{
		"Result":  result,
		"Preview": preview(result.Format, req.ImageData),
	}))
}

func (h *Handler) readUpload(c *gin.Context) (service.Request, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return service.Request{}, errTooLong
		}
		return service.Request{}, errNoFile
	}
	if header.Size > h.maxUploadBytes {
		return service.Request{}, errTooLong
	}

	data, err := readFile(header)
	if err != nil {
		return service.Request{}, apperr.InvalidImage("The uploaded file could not be read.", err)
	}

	req := service.Request{ImageData: data, Filename: header.Filename}
	if v, ok := c.GetPostForm("enhance"); ok {
		enhance, _ := strconv.ParseBool(v)
		if v == "on" {
			enhance = true
		}
		req.Enhance = &enhance
	}

	h.log.Debug("received file", "filename", header.Filename, "size", header.Size)
	return req, nil
}

func readFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) writeError(c *gin.Context, err error) {
	c.JSON(apperr.HTTPStatus(err), gin.H{
		"error": apperr.UserMessage(err),
		"kind":  apperr.KindOf(err).String(),
	})
}

func (h *Handler) renderError(c *gin.Context, err error) {
	c.HTML(apperr.HTTPStatus(err), "index.html", h.page(gin.H{"Error": apperr.UserMessage(err)}))
}

func (h *Handler) page(data gin.H) gin.H {
	data["Variant"] = h.svc.Labels().Variant()
	data["Resolution"] = h.svc.Resolution()
	data["Enhance"] = h.enhance
	data["MaxUploadMB"] = h.maxUploadBytes >> 20
	return data
}

func preview(format string, data []byte) template.URL {
	mime := "image/png"
	if format == "jpeg" {
		mime = "image/jpeg"
	}
	return template.URL("data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data))
}
