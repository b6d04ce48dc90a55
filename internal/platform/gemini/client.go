package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/notesnap/notesnap-backend/internal/platform/apierr"
	"github.com/notesnap/notesnap-backend/internal/platform/logger"
)

// Client wraps the Gemini API for the three generation operations the
// pipeline needs: flashcard sets, quizzes, and diagram descriptions.
// Each returns the model's raw text; parsing and validation happen in
// the generate package.
type Client interface {
	GenerateFlashcards(ctx context.Context, sourceText string, count int, notes string) (string, error)
	GenerateQuiz(ctx context.Context, sourceText string, count int, questionTypes []string, notes string) (string, error)
	DescribeDiagram(ctx context.Context, img []byte, mimeType string) (string, error)
	Close() error
}

type client struct {
	log       *logger.Logger
	genClient *genai.Client

	// textModel is configured for JSON output; visionModel returns prose.
	textModel   *genai.GenerativeModel
	visionModel *genai.GenerativeModel
}

func New(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gemini.Client")

	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return nil, apierr.FailedPrecondition(fmt.Errorf("missing env var GEMINI_API_KEY"))
	}
	modelName := strings.TrimSpace(os.Getenv("GEMINI_MODEL"))
	if modelName == "" {
		modelName = "gemini-2.0-flash"
	}

	ctx := context.Background()
	gc, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	textModel := gc.GenerativeModel(modelName)
	textModel.SetTemperature(0.3)
	textModel.SetTopP(0.95)
	textModel.ResponseMIMEType = "application/json"

	visionModel := gc.GenerativeModel(modelName)
	visionModel.SetTemperature(0.2)

	slog.Info("Gemini client initialized", "model", modelName)

	return &client{
		log:         slog,
		genClient:   gc,
		textModel:   textModel,
		visionModel: visionModel,
	}, nil
}

func (c *client) Close() error {
	return c.genClient.Close()
}

func (c *client) GenerateFlashcards(ctx context.Context, sourceText string, count int, notes string) (string, error) {
	prompt := buildFlashcardPrompt(sourceText, count, notes)
	return c.generateText(ctx, prompt)
}

func (c *client) GenerateQuiz(ctx context.Context, sourceText string, count int, questionTypes []string, notes string) (string, error) {
	prompt := buildQuizPrompt(sourceText, count, questionTypes, notes)
	return c.generateText(ctx, prompt)
}

func (c *client) generateText(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	resp, err := c.textModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("Gemini API error: %w", err)
	}
	raw := extractText(resp)
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("Gemini returned empty response")
	}
	return raw, nil
}

func (c *client) DescribeDiagram(ctx context.Context, img []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if len(img) == 0 {
		return "", fmt.Errorf("empty image payload")
	}

	prompt := "Describe the educational content of this image in detail. " +
		"Transcribe any labels, captions, and values, and explain what the diagram, " +
		"chart, or figure conveys. Return plain text only, no markdown."

	resp, err := c.visionModel.GenerateContent(ctx,
		genai.Text(prompt),
		genai.ImageData(imageFormat(mimeType), img),
	)
	if err != nil {
		return "", fmt.Errorf("Gemini diagram description error: %w", err)
	}
	return strings.TrimSpace(extractText(resp)), nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text.WriteString(string(t))
			}
		}
	}
	return text.String()
}

// imageFormat converts a MIME type into the bare format label genai expects.
func imageFormat(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	mt = strings.TrimPrefix(mt, "image/")
	switch mt {
	case "jpg":
		return "jpeg"
	case "":
		return "png"
	default:
		return mt
	}
}
