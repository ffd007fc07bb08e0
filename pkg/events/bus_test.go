package events

import "testing"

func TestBus_SubscribeTypes(t *testing.T) {
	b := NewBus()
	var all, panels int
	b.Subscribe(func(Event) { all++ })
	id := b.SubscribeTypes(func(e Event) {
		if e.Type != EventPanelRequested {
			t.Errorf("filtered handler got %s", e.Type)
		}
		if e.Timestamp.IsZero() {
			t.Error("timestamp not set")
		}
		panels++
	}, EventPanelRequested)

	b.Emit(Event{Type: EventJointChanged, Payload: JointChanged{Joint: "base", Angle: 90}})
	b.Emit(Event{Type: EventPanelRequested})

	if all != 2 || panels != 1 {
		t.Errorf("all = %d, panels = %d, want 2 and 1", all, panels)
	}

	b.Unsubscribe(id)
	b.Emit(Event{Type: EventPanelRequested})
	if panels != 1 {
		t.Errorf("panels = %d after unsubscribe, want 1", panels)
	}
}

func TestBus_NilIsSafe(t *testing.T) {
	var b *Bus
	b.Emit(Event{Type: EventJointChanged})
}

func TestType_String(t *testing.T) {
	tests := []struct {
		typ  Type
		want string
	}{
		{EventJointChanged, "joint_changed"},
		{EventTransferStateChanged, "transfer_state_changed"},
		{EventQueueActionFailed, "queue_action_failed"},
		{Type(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("Type(%d).String() = %q, want %q", tt.typ, got, tt.want)
		}
	}
}
