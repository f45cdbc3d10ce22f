package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/recycle-api/internal/model"
)

const msgClassifyFailed = "could not classify image"

// Classifier is the pipeline entry point the handlers call.
type Classifier interface {
	Classify(raw []byte) (model.ProbabilityVector, error)
}

// Readiness reports whether the model has been loaded.
type Readiness interface {
	Loaded() bool
}

type Handler struct {
	classifier Classifier
	readiness  Readiness
	maxUpload  int64
}

func NewHandler(classifier Classifier, readiness Readiness, maxUpload int64) *Handler {
	return &Handler{
		classifier: classifier,
		readiness:  readiness,
		maxUpload:  maxUpload,
	}
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/ready", h.Ready)
	r.POST("/predict", h.Predict)
	r.POST("/predict/image", h.PredictFromImage)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) Ready(c *gin.Context) {
	if h.readiness == nil || !h.readiness.Loaded() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "loading"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// Predict classifies the encoded image sent as the raw request body.
func (h *Handler) Predict(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}
	if len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image provided"})
		return
	}

	h.classify(c, body)
}

// PredictFromImage classifies the file uploaded in the "image" form field.
func (h *Handler) PredictFromImage(c *gin.Context) {
	// Leave room for the multipart envelope around the file.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+1<<20)

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No image file provided. Use 'image' as the form field name"})
		return
	}
	if header.Size > h.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Image is too large"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return
	}

	log.WithFields(log.Fields{
		"request_id": c.GetString(requestIDKey),
		"filename":   header.Filename,
		"size":       header.Size,
	}).Debug("[Predict] Received file")

	h.classify(c, raw)
}

func (h *Handler) classify(c *gin.Context, raw []byte) {
	vec, err := h.classifier.Classify(raw)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"request_id": c.GetString(requestIDKey),
			"kind":       model.KindOf(err).String(),
		}).Warn("[Predict] Classification failed")
		c.JSON(statusFor(err), gin.H{"error": msgClassifyFailed})
		return
	}

	c.JSON(http.StatusOK, model.NewPredictionResponse(vec))
}

func statusFor(err error) int {
	switch model.KindOf(err) {
	case model.KindDecode:
		return http.StatusBadRequest
	case model.KindModelLoad:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
