package marker

import "errors"

// ErrLaneNotReady is returned by Lane implementations while the timeline
// widget is still initializing. The engine retries a bounded number of times
// and then gives up with a log line.
var ErrLaneNotReady = errors.New("marker lane not ready")

// Lane is the marker lane of the external timeline widget. Implementations
// must tolerate adding an id that is already present and removing one that
// is absent; both are no-ops, not errors.
type Lane interface {
	Ready() bool
	AddMarker(m Marker) (Handle, error)
	RemoveMarker(id string) error
	Markers() []Marker
	MarkerInFocus() (string, bool)
	FocusMarker(id string) error
}

// Handle is the engine's grip on a single widget marker object. OnChange
// delivers widget-originated edits (drags, typecode entry); the returned
// cancel tears the subscription down so a disposed marker is never acted on.
// Notifications must arrive asynchronously: an implementation may not invoke
// a subscriber from inside AddMarker or SetTimeObservation.
type Handle interface {
	ID() string
	TimeObservation() TimeObservation
	SetTimeObservation(t TimeObservation) error
	OnChange(fn func(t TimeObservation)) (cancel func())
}
