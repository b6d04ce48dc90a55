package types

type FileType string

const (
	FileTypePDF   FileType = "pdf"
	FileTypeImage FileType = "image"
)

func (t FileType) Valid() bool {
	return t == FileTypePDF || t == FileTypeImage
}

// GenerationRequest is the client's submission: one or more note files
// plus what to generate from them.
type GenerationRequest struct {
	Files             []GenerationFile `json:"files"`
	SelectionType     SelectionType    `json:"selectionType"`
	NumberOfItems     int              `json:"numberOfItems"`
	QuizQuestionTypes []string         `json:"quizQuestionTypes,omitempty"`
	Notes             string           `json:"notes,omitempty"`
}

type GenerationFile struct {
	Name   string   `json:"name"`
	Type   FileType `json:"type"`
	Base64 string   `json:"base64"`
}
