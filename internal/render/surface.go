// Package render projects widget state changes onto a rendering surface.
package render

import "github.com/h1v3-io/chatwidget/pkg/protocol"

// Surface is the capability a widget draws on. Implementations decide how
// commands become visible (terminal, browser over a socket, a recorder in
// tests); they only need to apply them in the order received.
type Surface interface {
	Mount(header protocol.Header)
	ShowPanel()
	HidePanel()
	RenderGateForm(fields []protocol.Field)
	MarkInvalidFields(fields []string)
	RenderChatShell(shell protocol.Shell)
	AppendBubble(sender protocol.Sender, text string)
	ShowTypingIndicator()
	RemoveTypingIndicator()
	SetInputEnabled(enabled bool)
	ScrollToBottom()
}
