package transport

import "strings"

// Dispatcher maps the player's keyboard surface onto controller actions.
// The host intercepts key events at the capture phase and forwards them
// here; a true return means the key was handled and must not propagate to
// the embedded player's own shortcut handling.
type Dispatcher struct {
	ctrl *Controller
	// addMarker is invoked with the current playhead position.
	addMarker func(position float64)
}

func NewDispatcher(ctrl *Controller, addMarker func(position float64)) *Dispatcher {
	if addMarker == nil {
		addMarker = func(float64) {}
	}
	return &Dispatcher{ctrl: ctrl, addMarker: addMarker}
}

// Handle processes one key event. Keys are ignored while an input or
// textarea has focus so typing never drives the transport.
func (d *Dispatcher) Handle(key string, inputFocused bool) bool {
	if inputFocused {
		return false
	}

	switch normalizeKey(key) {
	case " ", "k":
		d.ctrl.TogglePlay()
	case "j":
		d.ctrl.Bump(-1)
	case "l":
		d.ctrl.Bump(+1)
	case "arrowleft":
		d.ctrl.SeekBy(-seekStep)
	case "arrowright":
		d.ctrl.SeekBy(seekStep)
	case "arrowup":
		d.ctrl.VolumeBy(volumeStep)
	case "arrowdown":
		d.ctrl.VolumeBy(-volumeStep)
	case ",":
		d.ctrl.StepFrame(-1)
	case ".":
		d.ctrl.StepFrame(+1)
	case "m":
		d.ctrl.ToggleMute()
	case "f":
		d.ctrl.ToggleFullscreen()
	case "i":
		d.addMarker(d.ctrl.player.Position())
	case "n":
		d.ctrl.NextMarker()
	case "p":
		d.ctrl.PreviousMarker()
	default:
		return false
	}
	return true
}

func normalizeKey(key string) string {
	if key == "Space" || key == "Spacebar" {
		return " "
	}
	return strings.ToLower(key)
}
