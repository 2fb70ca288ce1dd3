// Package marker keeps a media asset's time-interval annotations consistent
// across the in-memory working set, the timeline widget's marker lane, and
// the persisted store.
package marker

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"
)

type Origin string

const (
	OriginUser     Origin = "user"
	OriginSemantic Origin = "semantic"
)

// TimeObservation is a marker's interval in seconds. Start < End always.
type TimeObservation struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (t TimeObservation) Valid() bool {
	return t.Start < t.End
}

func (t TimeObservation) Duration() float64 {
	return t.End - t.Start
}

type Style struct {
	Color string `json:"color"`
}

type Marker struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Time      TimeObservation `json:"timeObservation"`
	Style     Style           `json:"style"`
	Origin    Origin          `json:"origin"`
	Score     *float64        `json:"score,omitempty"`
	CreatedAt time.Time       `json:"createdAt,omitzero"`
}

// Override is the persisted diff a user has made to a semantic marker.
// Absence of an id in the override map means "use the derived interval".
type Override struct {
	Time *TimeObservation `json:"timeObservation,omitempty"`
}

// RandomColor picks a display color for a new marker.
func RandomColor() string {
	return fmt.Sprintf("#%02x%02x%02x", rand.IntN(256), rand.IntN(256), rand.IntN(256))
}

// SortForDisplay orders user markers newest-first (id descending) and
// semantic markers highest-score-first, with user markers listed ahead of
// semantic ones.
func SortForDisplay(markers []Marker) {
	sort.SliceStable(markers, func(i, j int) bool {
		a, b := markers[i], markers[j]
		if a.Origin != b.Origin {
			return a.Origin == OriginUser
		}
		if a.Origin == OriginUser {
			return a.ID > b.ID
		}
		return score(a) > score(b)
	})
}

func score(m Marker) float64 {
	if m.Score == nil {
		return 0
	}
	return *m.Score
}
