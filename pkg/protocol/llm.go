package protocol

// CompletionMessage is a single turn sent to an LLM provider.
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest holds parameters for a provider completion call.
type CompletionRequest struct {
	Model       string              `json:"model,omitempty"`
	System      string              `json:"system,omitempty"`
	Messages    []CompletionMessage `json:"messages"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Temperature float64             `json:"temperature,omitempty"`
}
