package widget

import (
	"encoding/json"
	"testing"
)

func TestSnapshotStateNames(t *testing.T) {
	snap := Snapshot{
		State:   OpenChatAwaiting,
		Session: &Session{ID: "c1", Registration: RegistrationPending},
	}
	data, err := json.Marshal(snap)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	json.Unmarshal(data, &raw)
	if raw["state"] != "open_chat_awaiting" {
		t.Errorf("state = %v", raw["state"])
	}

	var back Snapshot
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.State != OpenChatAwaiting || back.Session.Registration != RegistrationPending {
		t.Errorf("decoded = %+v", back)
	}
}

func TestUnknownStateName(t *testing.T) {
	var s State
	if err := s.UnmarshalText([]byte("floating")); err == nil {
		t.Error("expected error for unknown state")
	}
	if Closed.String() != "closed" || State(9).String() != "state(9)" {
		t.Errorf("names = %s, %s", Closed, State(9))
	}
}
