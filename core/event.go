package core

// IEvent is anything the session loop reports to the presentation layer.
type IEvent interface {
	GetId() string // Returns the stable identifier of the event kind.
}
