package events

import "time"

// Type identifies the kind of event.
type Type int

const (
	// Robot state
	EventJointChanged Type = iota + 1
	EventHoldingChanged
	EventStationSignalChanged

	// Transfer protocol
	EventTransferStateChanged
	EventPoseTaught

	// Operator surface
	EventPanelRequested

	// Action queue
	EventQueueActionFailed
)

var typeNames = map[Type]string{
	EventJointChanged:         "joint_changed",
	EventHoldingChanged:       "holding_changed",
	EventStationSignalChanged: "station_signal_changed",
	EventTransferStateChanged: "transfer_state_changed",
	EventPoseTaught:           "pose_taught",
	EventPanelRequested:       "panel_requested",
	EventQueueActionFailed:    "queue_action_failed",
}

// String returns the wire name of the event type.
func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return "unknown"
}

// Event is the envelope passed to Bus handlers.
type Event struct {
	Type      Type
	Timestamp time.Time
	Payload   interface{}
}

// JointChanged is emitted whenever a joint angle is written.
type JointChanged struct {
	Joint string  `json:"joint"`
	Angle float64 `json:"angle"`
}

// HoldingChanged is emitted when an end-effector's wafer flag flips.
type HoldingChanged struct {
	Finger  string `json:"finger"`
	Holding bool   `json:"holding"`
}

// StationSignalChanged is emitted when the station presence signal is set.
type StationSignalChanged struct {
	Present bool `json:"present"`
}

// TransferStateChanged is emitted on every Pick/Place state transition.
type TransferStateChanged struct {
	OperationID string `json:"operation_id"`
	Operation   string `json:"operation"` // "pick" or "place"
	Finger      string `json:"finger"`
	Station     string `json:"station"`
	From        string `json:"from"`
	To          string `json:"to"`
	Error       string `json:"error,omitempty"`
}

// PoseTaught is emitted after a teach operation stored a pose.
type PoseTaught struct {
	Station string `json:"station"`
	Finger  string `json:"finger"`
}

// QueueActionFailed is emitted when a queued action errors or panics.
type QueueActionFailed struct {
	Error string `json:"error"`
}
