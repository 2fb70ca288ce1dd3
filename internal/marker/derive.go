package marker

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/reelpoint/reelpoint/internal/timecode"
)

// Clip is one confidence-scored detection from the asset's source clip list.
// Timecodes take precedence over the numeric fields when both are present.
type Clip struct {
	StartTimecode string   `json:"start_timecode,omitempty"`
	EndTimecode   string   `json:"end_timecode,omitempty"`
	Start         *float64 `json:"start,omitempty"`
	End           *float64 `json:"end,omitempty"`
	Score         *float64 `json:"score,omitempty"`
	EmbeddingType string   `json:"embedding_type,omitempty"`
}

// DerivePolicy controls which clips become semantic markers. The duration
// cutoffs are a noise heuristic inherited from production behavior; they are
// policy, not derived from any stated requirement.
type DerivePolicy struct {
	// EligibleTypes are the embedding categories whose clips carry usable
	// confidence scores.
	EligibleTypes []string
	// MinDuration drops blink-length clips.
	MinDuration float64
	// Clips starting inside LeadingWindow are dropped when shorter than
	// LeadingMinDuration.
	LeadingWindow      float64
	LeadingMinDuration float64
	// Lane-readiness retry schedule for derivation.
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultDerivePolicy() DerivePolicy {
	return DerivePolicy{
		EligibleTypes:      []string{"clip", "shot"},
		MinDuration:        1.0,
		LeadingWindow:      2.0,
		LeadingMinDuration: 1.0,
		MaxRetries:         5,
		RetryDelay:         500 * time.Millisecond,
	}
}

func (p DerivePolicy) eligibleType(t string) bool {
	for _, e := range p.EligibleTypes {
		if e == t {
			return true
		}
	}
	return false
}

var errClipUnresolvable = errors.New("clip has no resolvable interval")

// ResolveInterval computes a clip's interval in seconds, preferring embedded
// timecode strings and falling back to the numeric fields.
func (c Clip) ResolveInterval(fps float64) (TimeObservation, error) {
	if c.StartTimecode != "" && c.EndTimecode != "" {
		start, errS := timecode.Parse(c.StartTimecode, fps)
		end, errE := timecode.Parse(c.EndTimecode, fps)
		if errS == nil && errE == nil {
			return TimeObservation{Start: start, End: end}, nil
		}
	}
	if c.Start != nil && c.End != nil {
		return TimeObservation{Start: *c.Start, End: *c.End}, nil
	}
	return TimeObservation{}, errClipUnresolvable
}

type candidate struct {
	clip  Clip
	time  TimeObservation
	score float64
}

// selectClips filters the source clip list down to marker candidates:
// eligible category, defined score, resolvable interval, past the noise
// policy. The result is sorted descending by score.
func selectClips(clips []Clip, policy DerivePolicy, fps float64) []candidate {
	var out []candidate
	for _, c := range clips {
		if !policy.eligibleType(c.EmbeddingType) || c.Score == nil {
			continue
		}
		t, err := c.ResolveInterval(fps)
		if err != nil || !t.Valid() {
			continue
		}
		if t.Duration() < policy.MinDuration {
			continue
		}
		if t.Start < policy.LeadingWindow && t.Duration() < policy.LeadingMinDuration {
			continue
		}
		out = append(out, candidate{clip: c, time: t, score: *c.Score})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// semanticID mixes the clip's timecodes with its ordinal index. Uniqueness
// across repeated derivation runs rests on the once-per-asset guard, not on
// this scheme.
func semanticID(t TimeObservation, fps float64, ordinal int) string {
	return fmt.Sprintf("sem:%s-%s:%d", timecode.Format(t.Start, fps), timecode.Format(t.End, fps), ordinal)
}
