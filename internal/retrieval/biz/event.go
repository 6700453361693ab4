package biz

// EventKind tags one step outcome of a redemption attempt
type EventKind string

const (
	// EventAwaitPassword ends the attempt until the requester proves the
	// password.
	EventAwaitPassword EventKind = "await_password"
	// EventWrongPassword re-prompts; the pending link is kept.
	EventWrongPassword EventKind = "wrong_password"
	// EventFileDelivered is emitted per file once any of its copies served.
	EventFileDelivered EventKind = "file_delivered"
	// EventFileFailed is emitted once every copy of a file was tried.
	EventFileFailed EventKind = "file_failed"
	// EventCancelled is emitted when the requester stopped the batch.
	EventCancelled EventKind = "cancelled"
	// EventCompleted closes every attempt that reached delivery.
	EventCompleted EventKind = "completed"
)

// Event is one streamed step outcome. The transport renders these as chat
// messages.
type Event struct {
	Kind      EventKind
	LinkID    string
	FileIndex int
	FileName  string
	Delivered int
	Total     int
}

// DeliveredCopy identifies one requester-facing copy produced by delivery.
// It is what scheduled cleanup removes; source copies are never touched.
type DeliveredCopy struct {
	Channel  string `json:"channel"`
	Ref      string `json:"ref"`
	FileName string `json:"file_name"`
}
