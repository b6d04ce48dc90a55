package gcp

import (
	"errors"
	"fmt"
	"testing"

	"github.com/notesnap/notesnap-backend/internal/platform/apierr"
	"github.com/notesnap/notesnap-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func TestNewBucketService_MissingBucketEnv(t *testing.T) {
	t.Setenv("UPLOAD_GCS_BUCKET_NAME", "")
	_, err := NewBucketService(testLogger(t))
	if err == nil {
		t.Fatalf("expected error without UPLOAD_GCS_BUCKET_NAME")
	}
	if apierr.CodeOf(err) != apierr.CodeFailedPrecondition {
		t.Fatalf("expected FAILED_PRECONDITION, got %s", apierr.CodeOf(err))
	}
}

func TestNewDocumentOCR_MissingEnv(t *testing.T) {
	t.Setenv("DOCUMENTAI_PROJECT_ID", "")
	t.Setenv("DOCUMENTAI_PROCESSOR_ID", "")
	_, err := NewDocumentOCR(testLogger(t))
	if err == nil {
		t.Fatalf("expected error without Document AI env vars")
	}
	if apierr.CodeOf(err) != apierr.CodeFailedPrecondition {
		t.Fatalf("expected FAILED_PRECONDITION, got %s", apierr.CodeOf(err))
	}
}

func TestIsPageLimitError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"page limit message", fmt.Errorf("request exceeds the page limit"), true},
		{"pages exceed message", fmt.Errorf("document pages exceed the maximum"), true},
		{"unrelated", errors.New("deadline exceeded"), false},
		{"limit without pages", errors.New("rate limit reached"), false},
	}
	for _, tc := range cases {
		if got := IsPageLimitError(tc.err); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}
