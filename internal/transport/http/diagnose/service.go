// Package diagnose serves plant diagnosis over plain HTTP uploads.
package diagnose

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"plant-detector-go/internal/domain/diagnosis"
	"plant-detector-go/internal/domain/image"
	platformerrors "plant-detector-go/internal/platform/errors"
	httptransport "plant-detector-go/internal/transport/http"
	"plant-detector-go/internal/utils"
)

// maxMemory is how much of a multipart body is buffered in RAM; larger parts spill to temp files.
const maxMemory = 32 << 20

// Analyzer runs a diagnosis on an encoded image.
type Analyzer interface {
	Analyze(ctx context.Context, img image.EncodedImage) diagnosis.Outcome
}

// Service is the HTTP face of the diagnosis service.
type Service struct {
	analyzer Analyzer
	loader   *image.Loader
	logger   *utils.Logger
	model    string
}

// NewService builds the upload handler.
func NewService(analyzer Analyzer, loader *image.Loader, model string, logger *utils.Logger) (*Service, error) {
	if analyzer == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "diagnose.new", "analyzer is required")
	}
	if loader == nil {
		return nil, platformerrors.New(platformerrors.KindConfig, "diagnose.new", "image loader is required")
	}
	if logger == nil {
		logger = utils.DefaultLogger
	}
	return &Service{analyzer: analyzer, loader: loader, logger: logger, model: model}, nil
}

// Register mounts GET and POST /diagnose.
func (s *Service) Register(ctx context.Context, router *gin.RouterGroup) error {
	router.GET("/diagnose", s.handleGet)
	router.POST("/diagnose", s.handlePost)

	s.logger.InfoTag("HTTP", "diagnose routes registered")
	return nil
}

// StatusData is returned by GET /diagnose.
type StatusData struct {
	Model string `json:"model"`
	Field string `json:"field"`
}

func (s *Service) handleGet(c *gin.Context) {
	httptransport.RespondSuccess(c, http.StatusOK, StatusData{Model: s.model, Field: "file"},
		"POST a multipart form with the image in the file field")
}

// handlePost answers with the same JSON string the analyze_plant tool returns.
// Diagnosis failures are still 200: the body carries the error payload.
func (s *Service) handlePost(c *gin.Context) {
	img, err := s.readUpload(c)
	if err != nil {
		s.logger.WarnTag("HTTP", "diagnose upload rejected: %v", err)
		httptransport.RespondError(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	s.logger.DebugTag("HTTP", "diagnose upload from %s: name=%s bytes=%d subject=%q",
		c.ClientIP(), img.Path, img.Size, httptransport.SubjectFrom(c))

	outcome := s.analyzer.Analyze(c.Request.Context(), img)
	c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(outcome.JSON()))
}

func (s *Service) readUpload(c *gin.Context) (image.EncodedImage, error) {
	if err := c.Request.ParseMultipartForm(maxMemory); err != nil {
		return image.EncodedImage{}, platformerrors.Wrap(platformerrors.KindTransport, "diagnose.parse", "failed to parse multipart form", err)
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return image.EncodedImage{}, platformerrors.New(platformerrors.KindInput, "diagnose.parse", "file field is required")
		}
		return image.EncodedImage{}, platformerrors.Wrap(platformerrors.KindTransport, "diagnose.parse", "failed to read file field", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return image.EncodedImage{}, platformerrors.Wrap(platformerrors.KindTransport, "diagnose.parse", "failed to read upload", err)
	}
	if len(raw) == 0 {
		return image.EncodedImage{}, platformerrors.New(platformerrors.KindInput, "diagnose.parse", "uploaded file is empty")
	}

	return s.loader.Encode(fmt.Sprintf("upload:%s", header.Filename), raw), nil
}
