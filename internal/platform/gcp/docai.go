package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/notesnap/notesnap-backend/internal/platform/apierr"
	"github.com/notesnap/notesnap-backend/internal/platform/logger"
)

// DocumentOCR runs synchronous Document AI text extraction. Online
// processing caps the page count per call, which is why the OCR layer
// splits oversized PDFs before calling ProcessBytes.
type DocumentOCR interface {
	ProcessBytes(ctx context.Context, data []byte, mimeType string) (string, error)
	Close() error
}

type documentOCR struct {
	log       *logger.Logger
	docClient *documentai.DocumentProcessorClient

	projectID   string
	location    string
	processorID string
}

func NewDocumentOCR(log *logger.Logger) (DocumentOCR, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.DocumentOCR")

	projectID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID"))
	processorID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID"))
	if projectID == "" || processorID == "" {
		return nil, apierr.FailedPrecondition(fmt.Errorf("missing env var DOCUMENTAI_PROJECT_ID or DOCUMENTAI_PROCESSOR_ID"))
	}
	location := strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION"))
	if location == "" {
		location = "us"
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)

	ctx := context.Background()
	docOpts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(ctx, docOpts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	slog.Info("Document AI initialized", "endpoint", endpoint)

	return &documentOCR{
		log:         slog,
		docClient:   c,
		projectID:   projectID,
		location:    location,
		processorID: processorID,
	}, nil
}

func (s *documentOCR) Close() error {
	if s == nil || s.docClient == nil {
		return nil
	}
	return s.docClient.Close()
}

func (s *documentOCR) ProcessBytes(ctx context.Context, data []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	if len(data) == 0 {
		return "", nil
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", s.projectID, s.location, s.processorID)

	resp, err := s.docClient.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: name,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Document.Text), nil
}

// IsPageLimitError reports whether an OCR failure was caused by the
// service's per-call page cap. On a whole document this means it must be
// split first; on an already-split chunk it means the chunking itself is
// wrong and retrying cannot help.
func IsPageLimitError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	msg := strings.ToLower(err.Error())
	if ok && (st.Code() == codes.InvalidArgument || st.Code() == codes.ResourceExhausted) {
		msg = strings.ToLower(st.Message())
	}
	return strings.Contains(msg, "page") &&
		(strings.Contains(msg, "exceed") || strings.Contains(msg, "limit"))
}
