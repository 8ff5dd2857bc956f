package generator

// Generation is the outcome of a description request. Fallback marks text that
// stands in for a failed call; it is still ordinary, editable text.
type Generation struct {
	Text     string
	Fallback bool
}

// Verdict is the moderation decision for one submission attempt.
type Verdict struct {
	Safe   bool   `json:"safe"`
	Reason string `json:"reason,omitempty"`
}

const (
	// FallbackUnavailable replaces the description when the backend call fails.
	FallbackUnavailable = "Unable to generate description at this time."
	// FallbackEmpty replaces the description when the backend answers with nothing.
	FallbackEmpty = "Failed to generate description."
)
