package protocol

// ActionType names a user interaction sent by a remote widget client.
type ActionType string

const (
	ActionToggle  ActionType = "toggle"
	ActionOpen    ActionType = "open"
	ActionClose   ActionType = "close"
	ActionSubmit  ActionType = "submit"
	ActionSend    ActionType = "send"
	ActionSuggest ActionType = "suggest"
)

// Action is one user interaction frame.
type Action struct {
	Type   ActionType        `json:"type"`
	Text   string            `json:"text,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
	Index  int               `json:"index,omitempty"`
}
