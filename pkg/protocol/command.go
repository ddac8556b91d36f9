package protocol

// Op names a rendering-surface command.
type Op string

const (
	OpMount             Op = "mount"
	OpShowPanel         Op = "show_panel"
	OpHidePanel         Op = "hide_panel"
	OpRenderGateForm    Op = "render_gate_form"
	OpMarkInvalidFields Op = "mark_invalid_fields"
	OpRenderChatShell   Op = "render_chat_shell"
	OpAppendBubble      Op = "append_bubble"
	OpShowTyping        Op = "show_typing_indicator"
	OpRemoveTyping      Op = "remove_typing_indicator"
	OpSetInputEnabled   Op = "set_input_enabled"
	OpScrollToBottom    Op = "scroll_to_bottom"
	// OpNotice is not a surface command; hosts use it to tell a remote
	// client that an action was rejected.
	OpNotice Op = "notice"
)

// Command is the serialisable form of a rendering-surface call.
type Command struct {
	Op      Op       `json:"op"`
	Header  *Header  `json:"header,omitempty"`
	Fields  []Field  `json:"fields,omitempty"`
	Invalid []string `json:"invalid,omitempty"`
	Shell   *Shell   `json:"shell,omitempty"`
	Sender  Sender   `json:"sender,omitempty"`
	Text    string   `json:"text,omitempty"`
	Enabled *bool    `json:"enabled,omitempty"`
}

// Header is the panel chrome drawn once when the widget mounts.
type Header struct {
	Name     string `json:"name"`
	LogoURL  string `json:"logoUrl,omitempty"`
	Position string `json:"position"`
}

// Field describes one registration form input.
type Field struct {
	Name        string `json:"name"`
	InputType   string `json:"inputType"`
	Placeholder string `json:"placeholder"`
}

// Shell is the chat view: welcome block plus suggested questions.
type Shell struct {
	WelcomeText        string   `json:"welcomeText"`
	ResponseTimeText   string   `json:"responseTimeText"`
	SuggestedQuestions []string `json:"suggestedQuestions,omitempty"`
}
