package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"

	"github.com/notesnap/notesnap-backend/internal/platform/logger"
)

// ImageOCR extracts text from photographed notes via Cloud Vision
// DOCUMENT_TEXT_DETECTION.
type ImageOCR interface {
	OCRImageBytes(ctx context.Context, img []byte) (string, error)
	Close() error
}

type imageOCR struct {
	log          *logger.Logger
	visionClient *vision.ImageAnnotatorClient
}

func NewImageOCR(log *logger.Logger) (ImageOCR, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.ImageOCR")

	ctx := context.Background()
	vClient, err := vision.NewImageAnnotatorClient(ctx, ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}

	slog.Info("Vision OCR initialized")

	return &imageOCR{log: slog, visionClient: vClient}, nil
}

func (s *imageOCR) Close() error {
	if s == nil || s.visionClient == nil {
		return nil
	}
	return s.visionClient.Close()
}

func (s *imageOCR) OCRImageBytes(ctx context.Context, img []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()

	if len(img) == 0 {
		return "", nil
	}

	annotation, err := s.visionClient.DetectDocumentText(ctx, &visionpb.Image{Content: img}, nil)
	if err != nil {
		return "", fmt.Errorf("vision DetectDocumentText: %w", err)
	}
	if annotation == nil {
		return "", nil
	}
	return strings.TrimSpace(annotation.GetText()), nil
}
