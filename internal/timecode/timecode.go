// Package timecode converts between seconds and SMPTE-style HH:MM:SS:FF
// display timecodes at a configurable frame rate.
package timecode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultFPS is used when an asset carries no usable frame-rate metadata.
const DefaultFPS = 25.0

// ErrInvalidTimecode is returned when a string matches none of the accepted
// timecode grammars. Callers log it and abandon the edit; it never panics
// through the engine.
var ErrInvalidTimecode = errors.New("invalid timecode")

// Format renders seconds as HH:MM:SS:FF with two-digit zero-padded fields.
// Decomposition is floor-based, so sub-frame precision is dropped.
func Format(seconds, fps float64) string {
	if fps <= 0 {
		fps = DefaultFPS
	}
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	total := int(math.Floor(seconds))
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	frames := int(math.Floor((seconds - math.Floor(seconds)) * fps))
	// Guard against float noise pushing the frame index to fps exactly.
	if frames >= int(math.Ceil(fps)) {
		frames = int(math.Ceil(fps)) - 1
	}
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, secs, frames)
}

// Parse accepts, in priority order: HH:MM:SS:FF, HH:MM:SS.mmm, MM:SS.mmm,
// SS.mmm, or a bare decimal number of seconds. A string that fits none of
// these returns ErrInvalidTimecode.
func Parse(text string, fps float64) (float64, error) {
	if fps <= 0 {
		fps = DefaultFPS
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrInvalidTimecode
	}

	parts := strings.Split(text, ":")
	switch len(parts) {
	case 4:
		return parseFrames(parts, fps)
	case 3:
		h, errH := parseField(parts[0])
		m, errM := parseField(parts[1])
		s, errS := strconv.ParseFloat(parts[2], 64)
		if errH != nil || errM != nil || errS != nil || s < 0 {
			return 0, ErrInvalidTimecode
		}
		return float64(h)*3600 + float64(m)*60 + s, nil
	case 2:
		m, errM := parseField(parts[0])
		s, errS := strconv.ParseFloat(parts[1], 64)
		if errM != nil || errS != nil || s < 0 {
			return 0, ErrInvalidTimecode
		}
		return float64(m)*60 + s, nil
	case 1:
		s, err := strconv.ParseFloat(parts[0], 64)
		if err != nil || s < 0 {
			return 0, ErrInvalidTimecode
		}
		return s, nil
	default:
		return 0, ErrInvalidTimecode
	}
}

func parseFrames(parts []string, fps float64) (float64, error) {
	h, errH := parseField(parts[0])
	m, errM := parseField(parts[1])
	s, errS := parseField(parts[2])
	f, errF := parseField(parts[3])
	if errH != nil || errM != nil || errS != nil || errF != nil {
		return 0, ErrInvalidTimecode
	}
	return float64(h)*3600 + float64(m)*60 + float64(s) + float64(f)/fps, nil
}

func parseField(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v < 0 {
		return 0, ErrInvalidTimecode
	}
	return v, nil
}
