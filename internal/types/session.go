package types

// SessionResult records one card outcome from a review session. Results
// are ephemeral: the client batches them into a single confidence update
// at session end.
type SessionResult struct {
	CardIndex          int  `json:"cardIndex"`
	WasCorrect         bool `json:"wasCorrect"`
	PreviousConfidence int  `json:"previousConfidence"`
	NewConfidence      int  `json:"newConfidence"`
}

type SessionStats struct {
	Know     int `json:"know"`
	Learning int `json:"learning"`
	Accuracy int `json:"accuracy"`
}
