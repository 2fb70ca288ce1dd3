// Package asset models catalogued media assets and their source clips.
package asset

import (
	"strconv"
	"strings"

	"github.com/reelpoint/reelpoint/internal/timecode"
)

type Asset struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	FileKey     string  `json:"-"`
	PosterKey   string  `json:"-"`
	ContentType string  `json:"contentType"`
	Duration    float64 `json:"duration"`
	// FrameRate is the embedded video stream's rate as probed, e.g. "25" or
	// "30000/1001". MetadataFrameRate is the container-level fallback.
	FrameRate         string `json:"frameRate,omitempty"`
	MetadataFrameRate string `json:"metadataFrameRate,omitempty"`
	Status            string `json:"status"`
	CreatedAt         string `json:"createdAt"`
}

// ParseFrameRate accepts a plain decimal ("29.97") or a rational ("30000/1001").
func ParseFrameRate(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN != nil || errD != nil || d == 0 || n <= 0 {
			return 0, false
		}
		return n / d, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// ResolveFrameRate picks the frame rate for timecode conversion: an explicit
// per-call value wins, then the video stream's probed rate, then the
// container metadata rate, then the hard default.
func ResolveFrameRate(explicit float64, a *Asset) float64 {
	if explicit > 0 {
		return explicit
	}
	if a != nil {
		if fps, ok := ParseFrameRate(a.FrameRate); ok {
			return fps
		}
		if fps, ok := ParseFrameRate(a.MetadataFrameRate); ok {
			return fps
		}
	}
	return timecode.DefaultFPS
}
