package generate

import (
	"errors"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"no fence", `{"a":1}`, `{"a":1}`},
		{"surrounding whitespace", "  \n{\"a\":1}\n  ", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := StripCodeFence(tc.in); got != tc.want {
			t.Fatalf("%s: expected %q got %q", tc.name, tc.want, got)
		}
	}
}

func TestParseFlashcardResponse_Valid(t *testing.T) {
	raw := "```json\n" + `{
		"title": "Cell Biology",
		"tags": ["biology"],
		"cards": [
			{"question": "What is a mitochondrion?", "answer": "The powerhouse of the cell."},
			{"question": "What is a ribosome?", "answer": "Protein synthesis machinery."}
		]
	}` + "\n```"

	got, err := ParseFlashcardResponse(raw)
	if err != nil {
		t.Fatalf("ParseFlashcardResponse: %v", err)
	}
	if got.Title != "Cell Biology" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	if len(got.Cards) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(got.Cards))
	}
	if len(got.Tags) != 1 || got.Tags[0] != "biology" {
		t.Fatalf("unexpected tags %v", got.Tags)
	}
}

func TestParseFlashcardResponse_MissingCardsIsNotEmptyCards(t *testing.T) {
	if _, err := ParseFlashcardResponse(`{"title": "t"}`); err == nil {
		t.Fatalf("expected error for missing cards field")
	}
	got, err := ParseFlashcardResponse(`{"title": "t", "cards": []}`)
	if err != nil {
		t.Fatalf("expected empty cards list to parse: %v", err)
	}
	if len(got.Cards) != 0 {
		t.Fatalf("expected 0 cards, got %d", len(got.Cards))
	}
}

func TestParseFlashcardResponse_Rejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "here are your flashcards!"},
		{"empty title", `{"title": "", "cards": [{"question":"q","answer":"a"}]}`},
		{"empty question", `{"title": "t", "cards": [{"question":"","answer":"a"}]}`},
		{"empty answer", `{"title": "t", "cards": [{"question":"q","answer":" "}]}`},
		{"cards not a list", `{"title": "t", "cards": {"question":"q"}}`},
	}
	for _, tc := range cases {
		_, err := ParseFlashcardResponse(tc.raw)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("%s: expected *ParseError, got %T", tc.name, err)
		}
		if pe.Raw != tc.raw {
			t.Fatalf("%s: ParseError should carry the raw response", tc.name)
		}
	}
}

func TestParseFlashcardResponse_MistypedTagsDefaultToEmpty(t *testing.T) {
	got, err := ParseFlashcardResponse(`{"title": "t", "tags": "biology", "cards": [{"question":"q","answer":"a"}]}`)
	if err != nil {
		t.Fatalf("ParseFlashcardResponse: %v", err)
	}
	if got.Tags == nil || len(got.Tags) != 0 {
		t.Fatalf("expected empty tags, got %v", got.Tags)
	}
}

func TestParseQuizResponse_Valid(t *testing.T) {
	raw := `{
		"title": "Photosynthesis",
		"tags": [],
		"questionsList": [
			{"type": "multiple-choice", "question": "Where does it occur?", "answer": "chloroplast", "options": ["chloroplast", "nucleus", "ribosome"]},
			{"type": "multiple-selection", "question": "Pick the inputs.", "answer": ["water", "light"], "options": ["water", "light", "oxygen"]},
			{"type": "fill-in-the-blank", "question": "The green pigment is ___.", "answer": "chlorophyll"}
		]
	}`

	got, err := ParseQuizResponse(raw)
	if err != nil {
		t.Fatalf("ParseQuizResponse: %v", err)
	}
	if len(got.QuestionsList) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(got.QuestionsList))
	}
	if got.QuestionsList[0].Answer.IsList {
		t.Fatalf("multiple-choice answer should be scalar")
	}
	if !got.QuestionsList[1].Answer.IsList || len(got.QuestionsList[1].Answer.List) != 2 {
		t.Fatalf("multiple-selection answer should be a 2-item list, got %+v", got.QuestionsList[1].Answer)
	}
	if got.QuestionsList[2].Options == nil {
		t.Fatalf("options should default to empty, not nil")
	}
}

func TestParseQuizResponse_Rejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"unknown type", `{"title":"t","questionsList":[{"type":"essay","question":"q","answer":"a"}]}`},
		{"missing answer", `{"title":"t","questionsList":[{"type":"fill-in-the-blank","question":"q"}]}`},
		{"null answer", `{"title":"t","questionsList":[{"type":"fill-in-the-blank","question":"q","answer":null}]}`},
		{"choice with list answer", `{"title":"t","questionsList":[{"type":"multiple-choice","question":"q","answer":["a"],"options":["a","b"]}]}`},
		{"selection with scalar answer", `{"title":"t","questionsList":[{"type":"multiple-selection","question":"q","answer":"a","options":["a","b"]}]}`},
		{"choice with one option", `{"type":"x","title":"t","questionsList":[{"type":"multiple-choice","question":"q","answer":"a","options":["a"]}]}`},
		{"selection with no options", `{"title":"t","questionsList":[{"type":"multiple-selection","question":"q","answer":["a"]}]}`},
		{"blank with list answer", `{"title":"t","questionsList":[{"type":"fill-in-the-blank","question":"q","answer":["a"]}]}`},
		{"missing questionsList", `{"title":"t"}`},
	}
	for _, tc := range cases {
		if _, err := ParseQuizResponse(tc.raw); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
