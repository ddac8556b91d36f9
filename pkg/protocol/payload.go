package protocol

// PayloadTypeRegistration marks a registration notification body.
const PayloadTypeRegistration = "registration"

// ChatPayload is the body the widget POSTs to the messaging endpoint for
// every user message.
type ChatPayload struct {
	Message        string            `json:"message"`
	ConversationID string            `json:"conversationId"`
	UserInfo       map[string]string `json:"userInfo"`
	Route          string            `json:"route"`
}

// RegistrationPayload is the fire-and-forget body sent once the visitor
// completes the registration form.
type RegistrationPayload struct {
	Type           string            `json:"type"`
	UserInfo       map[string]string `json:"userInfo"`
	ConversationID string            `json:"conversationId"`
	Route          string            `json:"route"`
}

// NewRegistrationPayload builds a RegistrationPayload with Type set.
func NewRegistrationPayload(conversationID, route string, userInfo map[string]string) RegistrationPayload {
	return RegistrationPayload{
		Type:           PayloadTypeRegistration,
		UserInfo:       userInfo,
		ConversationID: conversationID,
		Route:          route,
	}
}

// ChatReply is the decoded endpoint response. An empty Message means the
// endpoint answered without bot text.
type ChatReply struct {
	Message string `json:"message,omitempty"`
}

// HasText reports whether the reply carries bot text worth rendering.
func (r *ChatReply) HasText() bool {
	return r != nil && r.Message != ""
}

// EndpointRequest is the union of both payload shapes as seen by an
// endpoint implementation. Type is empty for chat messages.
type EndpointRequest struct {
	Type           string            `json:"type,omitempty"`
	Message        string            `json:"message,omitempty"`
	ConversationID string            `json:"conversationId"`
	UserInfo       map[string]string `json:"userInfo,omitempty"`
	Route          string            `json:"route,omitempty"`
}

// IsRegistration reports whether the request is a registration notification.
func (r EndpointRequest) IsRegistration() bool {
	return r.Type == PayloadTypeRegistration
}
