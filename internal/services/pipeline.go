package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/notesnap/notesnap-backend/internal/generate"
	"github.com/notesnap/notesnap-backend/internal/ocr"
	"github.com/notesnap/notesnap-backend/internal/platform/apierr"
	"github.com/notesnap/notesnap-backend/internal/platform/envutil"
	"github.com/notesnap/notesnap-backend/internal/platform/gcp"
	"github.com/notesnap/notesnap-backend/internal/platform/gemini"
	"github.com/notesnap/notesnap-backend/internal/platform/logger"
	"github.com/notesnap/notesnap-backend/internal/types"
)

const (
	// MaxDecodedFileBytes caps each uploaded file after base64 decoding.
	MaxDecodedFileBytes = 24 << 20

	// GenerationTimeout bounds one end-to-end generation run, staging
	// and OCR and model call included.
	GenerationTimeout = 9 * time.Minute

	fileSeparator = "\n\n"
)

var base64CharsetRE = regexp.MustCompile(`^[A-Za-z0-9+/=\r\n]+$`)

// TextExtractor pulls text out of staged note files.
type TextExtractor interface {
	ExtractPDF(ctx context.Context, path string) (string, error)
	ExtractImage(ctx context.Context, img []byte) (string, error)
}

// GenerationResult carries exactly one of the two entity kinds,
// discriminated by SelectionType.
type GenerationResult struct {
	SelectionType types.SelectionType `json:"selectionType"`
	FlashcardSet  *types.FlashcardSet `json:"flashcardSet,omitempty"`
	Quiz          *types.Quiz         `json:"quiz,omitempty"`
}

// GenerationService runs the full upload-to-saved-entity pipeline.
type GenerationService interface {
	Generate(ctx context.Context, userID string, req *types.GenerationRequest) (*GenerationResult, error)
}

type generationService struct {
	log         *logger.Logger
	bucket      gcp.BucketService
	extractor   TextExtractor
	gemini      gemini.Client
	studysets   StudySetService
	concurrency int
}

func NewGenerationService(log *logger.Logger, bucket gcp.BucketService, extractor TextExtractor, ai gemini.Client, studysets StudySetService) GenerationService {
	return &generationService{
		log:         log.With("service", "GenerationService"),
		bucket:      bucket,
		extractor:   extractor,
		gemini:      ai,
		studysets:   studysets,
		concurrency: envutil.Int("EXTRACT_CONCURRENCY", 3),
	}
}

func (s *generationService) Generate(ctx context.Context, userID string, req *types.GenerationRequest) (*GenerationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, GenerationTimeout)
	defer cancel()

	decoded, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	requestID := uuid.NewString()
	prefix := "generation/" + requestID + "/"
	log := s.log.With("request_id", requestID)
	log.Info("generation started",
		"user_id", userID,
		"selection_type", string(req.SelectionType),
		"file_count", len(req.Files))

	defer func() {
		// Staged objects are scratch space; losing a delete is harmless.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.bucket.DeletePrefix(cleanupCtx, prefix); err != nil {
			log.Warn("staged object cleanup failed", "prefix", prefix, "error", err)
		}
	}()

	staged, err := s.stageFiles(ctx, prefix, req.Files, decoded)
	if err != nil {
		return nil, err
	}

	combined, err := s.extractAll(ctx, log, req.Files, staged)
	if err != nil {
		return nil, err
	}

	switch req.SelectionType {
	case types.SelectionFlashcard:
		return s.generateFlashcards(ctx, log, userID, combined, req)
	case types.SelectionQuiz:
		return s.generateQuiz(ctx, log, userID, combined, req)
	default:
		return nil, apierr.Newf(apierr.CodeInvalidArgument, "unsupported selection type %q", req.SelectionType)
	}
}

// validateRequest checks the whole submission up front and decodes the
// file payloads, so nothing is staged for a request that can never run.
func validateRequest(req *types.GenerationRequest) ([][]byte, error) {
	if req == nil || len(req.Files) == 0 {
		return nil, apierr.Newf(apierr.CodeInvalidArgument, "at least one file is required")
	}
	if req.SelectionType != types.SelectionFlashcard && req.SelectionType != types.SelectionQuiz {
		return nil, apierr.Newf(apierr.CodeInvalidArgument, "invalid selection type %q", req.SelectionType)
	}
	if req.NumberOfItems < 1 {
		return nil, apierr.Newf(apierr.CodeInvalidArgument, "numberOfItems must be positive")
	}
	if req.SelectionType == types.SelectionQuiz {
		if len(req.QuizQuestionTypes) == 0 {
			return nil, apierr.Newf(apierr.CodeInvalidArgument, "quiz generation requires at least one question type")
		}
		for _, qt := range req.QuizQuestionTypes {
			if !types.QuestionType(qt).Valid() {
				return nil, apierr.Newf(apierr.CodeInvalidArgument, "unknown question type %q", qt)
			}
		}
	}

	decoded := make([][]byte, len(req.Files))
	for i, f := range req.Files {
		if strings.TrimSpace(f.Name) == "" {
			return nil, apierr.Newf(apierr.CodeInvalidArgument, "file %d is missing a name", i)
		}
		if !f.Type.Valid() {
			return nil, apierr.Newf(apierr.CodeInvalidArgument, "file %q has invalid type %q", f.Name, f.Type)
		}
		if f.Base64 == "" || !base64CharsetRE.MatchString(f.Base64) {
			return nil, apierr.Newf(apierr.CodeInvalidArgument, "file %q is not valid base64", f.Name)
		}
		cleaned := stripWhitespace(f.Base64)
		// Estimate the decoded size up front so an oversized payload is
		// rejected before we spend memory decoding it.
		if len(cleaned)/4*3 > MaxDecodedFileBytes {
			return nil, apierr.Newf(apierr.CodeInvalidArgument,
				"file %q exceeds the %dMB limit", f.Name, MaxDecodedFileBytes>>20)
		}
		data, err := base64.StdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, apierr.Newf(apierr.CodeInvalidArgument, "file %q is not valid base64", f.Name)
		}
		if len(data) == 0 {
			return nil, apierr.Newf(apierr.CodeInvalidArgument, "file %q is empty", f.Name)
		}
		if len(data) > MaxDecodedFileBytes {
			return nil, apierr.Newf(apierr.CodeInvalidArgument,
				"file %q exceeds the %dMB limit", f.Name, MaxDecodedFileBytes>>20)
		}
		decoded[i] = data
	}
	return decoded, nil
}

func stripWhitespace(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// stageFiles uploads every decoded payload under the request prefix and
// reads each one back, so extraction works from the stored copy.
func (s *generationService) stageFiles(ctx context.Context, prefix string, files []types.GenerationFile, decoded [][]byte) ([][]byte, error) {
	staged := make([][]byte, len(files))
	for i, f := range files {
		key := fmt.Sprintf("%s%02d_%s", prefix, i, filepath.Base(f.Name))
		if err := s.bucket.Upload(ctx, key, bytes.NewReader(decoded[i])); err != nil {
			return nil, apierr.Internal(fmt.Errorf("stage %q: %w", f.Name, err))
		}
		data, err := s.bucket.Download(ctx, key)
		if err != nil {
			return nil, apierr.Internal(fmt.Errorf("read back %q: %w", f.Name, err))
		}
		staged[i] = data
	}
	return staged, nil
}

// extractAll runs per-file extraction with bounded parallelism and joins
// the results in submission order. PDF failures abort the request; image
// OCR failures degrade to whatever the other files produced.
func (s *generationService) extractAll(ctx context.Context, log *logger.Logger, files []types.GenerationFile, staged [][]byte) (string, error) {
	tempDir, err := os.MkdirTemp("", "notesnap-extract-*")
	if err != nil {
		return "", apierr.Internal(fmt.Errorf("create temp dir: %w", err))
	}
	defer func() {
		if err := ocr.CleanupChunks(tempDir); err != nil {
			log.Warn("chunk cleanup failed", "dir", tempDir, "error", err)
		}
		if err := os.RemoveAll(tempDir); err != nil {
			log.Warn("temp dir cleanup failed", "dir", tempDir, "error", err)
		}
	}()

	texts := make([]string, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range files {
		g.Go(func() error {
			text, err := s.extractOne(gctx, log, files[i], staged[i], tempDir, i)
			if err != nil {
				return err
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var nonEmpty []string
	for _, t := range texts {
		if strings.TrimSpace(t) != "" {
			nonEmpty = append(nonEmpty, t)
		}
	}
	if len(nonEmpty) == 0 {
		return "", apierr.Newf(apierr.CodeInvalidArgument, "no text could be extracted from the uploaded files")
	}
	return strings.Join(nonEmpty, fileSeparator), nil
}

func (s *generationService) extractOne(ctx context.Context, log *logger.Logger, file types.GenerationFile, data []byte, tempDir string, index int) (string, error) {
	switch file.Type {
	case types.FileTypePDF:
		path := filepath.Join(tempDir, fmt.Sprintf("%02d_%s", index, filepath.Base(file.Name)))
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return "", apierr.Internal(fmt.Errorf("write temp pdf: %w", err))
		}
		text, err := s.extractor.ExtractPDF(ctx, path)
		if err != nil {
			return "", apierr.Internal(fmt.Errorf("extract %q: %w", file.Name, err))
		}
		if strings.TrimSpace(text) == "" {
			return "", apierr.Internal(fmt.Errorf("no text extracted from %q", file.Name))
		}
		return text, nil

	case types.FileTypeImage:
		text, err := s.extractor.ExtractImage(ctx, data)
		if err != nil {
			log.Warn("image ocr failed", "file", file.Name, "error", err)
			text = ""
		}
		if ocr.NeedsDiagramUnderstanding(file.Type, text) {
			described, err := s.gemini.DescribeDiagram(ctx, data, mimeTypeForImage(file.Name))
			if err != nil || strings.TrimSpace(described) == "" {
				if err != nil {
					log.Warn("diagram description failed", "file", file.Name, "error", err)
				}
				return text, nil
			}
			return described, nil
		}
		return text, nil

	default:
		return "", apierr.Newf(apierr.CodeInvalidArgument, "file %q has invalid type %q", file.Name, file.Type)
	}
}

func mimeTypeForImage(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}

func (s *generationService) generateFlashcards(ctx context.Context, log *logger.Logger, userID, sourceText string, req *types.GenerationRequest) (*GenerationResult, error) {
	raw, err := s.gemini.GenerateFlashcards(ctx, sourceText, req.NumberOfItems, req.Notes)
	if err != nil {
		return nil, wrapModelErr(ctx, err)
	}
	parsed, err := generate.ParseFlashcardResponse(raw)
	if err != nil {
		logParseFailure(log, "flashcards", err)
		return nil, apierr.Newf(apierr.CodeInternal, "the model returned an unusable response")
	}
	saved, err := s.studysets.SaveFlashcardSet(ctx, userID, parsed)
	if err != nil {
		return nil, err
	}
	log.Info("flashcard set generated", "user_id", userID, "card_count", len(saved.Cards))
	return &GenerationResult{SelectionType: types.SelectionFlashcard, FlashcardSet: saved}, nil
}

func (s *generationService) generateQuiz(ctx context.Context, log *logger.Logger, userID, sourceText string, req *types.GenerationRequest) (*GenerationResult, error) {
	raw, err := s.gemini.GenerateQuiz(ctx, sourceText, req.NumberOfItems, req.QuizQuestionTypes, req.Notes)
	if err != nil {
		return nil, wrapModelErr(ctx, err)
	}
	parsed, err := generate.ParseQuizResponse(raw)
	if err != nil {
		logParseFailure(log, "quiz", err)
		return nil, apierr.Newf(apierr.CodeInternal, "the model returned an unusable response")
	}
	saved, err := s.studysets.SaveQuiz(ctx, userID, parsed)
	if err != nil {
		return nil, err
	}
	log.Info("quiz generated", "user_id", userID, "question_count", len(saved.QuestionsList))
	return &GenerationResult{SelectionType: types.SelectionQuiz, Quiz: saved}, nil
}

func wrapModelErr(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded {
		return apierr.Newf(apierr.CodeDeadlineExceeded, "generation timed out")
	}
	return apierr.Internal(fmt.Errorf("model call: %w", err))
}

// logParseFailure keeps the raw model output server-side only.
func logParseFailure(log *logger.Logger, kind string, err error) {
	var pe *generate.ParseError
	if errors.As(err, &pe) {
		log.Error("model response rejected", "kind", kind, "reason", pe.Reason, "raw", pe.Raw)
		return
	}
	log.Error("model response rejected", "kind", kind, "error", err)
}
