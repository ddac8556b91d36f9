package widget

import "fmt"

// State is the view the widget is showing.
type State int

const (
	Closed State = iota
	OpenGate
	OpenChat
	OpenChatAwaiting
)

var stateNames = map[State]string{
	Closed:           "closed",
	OpenGate:         "open_gate",
	OpenChat:         "open_chat",
	OpenChatAwaiting: "open_chat_awaiting",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name in JSON snapshots.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for st, name := range stateNames {
		if name == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("widget: unknown state %q", b)
}

// RegistrationStatus tracks the registration gate for a session.
type RegistrationStatus int

const (
	RegistrationNotRequired RegistrationStatus = iota
	RegistrationPending
	RegistrationComplete
)

func (r RegistrationStatus) String() string {
	switch r {
	case RegistrationNotRequired:
		return "not_required"
	case RegistrationPending:
		return "pending"
	case RegistrationComplete:
		return "complete"
	}
	return fmt.Sprintf("registration(%d)", int(r))
}

func (r RegistrationStatus) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RegistrationStatus) UnmarshalText(b []byte) error {
	for _, st := range []RegistrationStatus{RegistrationNotRequired, RegistrationPending, RegistrationComplete} {
		if st.String() == string(b) {
			*r = st
			return nil
		}
	}
	return fmt.Errorf("widget: unknown registration status %q", b)
}
