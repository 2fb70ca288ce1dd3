package marker

import (
	"testing"
)

func clipWith(start, end, score float64, embeddingType string) Clip {
	s, e, sc := start, end, score
	return Clip{Start: &s, End: &e, Score: &sc, EmbeddingType: embeddingType}
}

func TestResolveInterval_TimecodesWin(t *testing.T) {
	start, end := 99.0, 100.0
	c := Clip{
		StartTimecode: "00:00:10:00",
		EndTimecode:   "00:00:15:00",
		Start:         &start,
		End:           &end,
	}
	got, err := c.ResolveInterval(25)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.Start != 10 || got.End != 15 {
		t.Errorf("expected timecode interval [10, 15], got [%v, %v]", got.Start, got.End)
	}
}

func TestResolveInterval_NumericFallback(t *testing.T) {
	c := clipWith(3.5, 8.25, 0.9, "clip")
	got, err := c.ResolveInterval(25)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.Start != 3.5 || got.End != 8.25 {
		t.Errorf("expected [3.5, 8.25], got [%v, %v]", got.Start, got.End)
	}

	// Unparseable timecodes fall through to the numeric fields too.
	c.StartTimecode = "garbage"
	c.EndTimecode = "also garbage"
	got, err = c.ResolveInterval(25)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if got.Start != 3.5 {
		t.Errorf("expected numeric fallback, got start %v", got.Start)
	}
}

func TestResolveInterval_Unresolvable(t *testing.T) {
	if _, err := (Clip{EmbeddingType: "clip"}).ResolveInterval(25); err == nil {
		t.Error("expected error for clip with no interval data")
	}
}

func TestSelectClips(t *testing.T) {
	noScore := Clip{EmbeddingType: "clip"}
	s, e := 10.0, 20.0
	noScore.Start, noScore.End = &s, &e

	clips := []Clip{
		clipWith(10, 15, 0.6, "clip"),       // kept
		clipWith(30, 40, 0.9, "shot"),       // kept, highest score
		clipWith(50, 50.4, 0.8, "clip"),     // dropped: under MinDuration
		clipWith(0.5, 1.2, 0.7, "clip"),     // dropped: short clip in the leading window
		clipWith(60, 70, 0.5, "transcript"), // dropped: ineligible category
		clipWith(80, 75, 0.5, "clip"),       // dropped: inverted interval
		noScore,                             // dropped: no score
	}

	got := selectClips(clips, DefaultDerivePolicy(), 25)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].score != 0.9 || got[1].score != 0.6 {
		t.Errorf("expected score-descending order, got %v then %v", got[0].score, got[1].score)
	}
	if got[0].time.Start != 30 || got[1].time.Start != 10 {
		t.Errorf("unexpected intervals: %+v", got)
	}
}

func TestSelectClips_LeadingWindow(t *testing.T) {
	policy := DefaultDerivePolicy()
	policy.LeadingMinDuration = 3

	clips := []Clip{
		clipWith(0, 2, 0.9, "clip"),   // in the window, too short
		clipWith(0, 6, 0.8, "clip"),   // in the window, long enough
		clipWith(10, 12, 0.7, "clip"), // past the window, ordinary cutoff applies
	}
	got := selectClips(clips, policy, 25)
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if got[0].time.End != 6 || got[1].time.End != 12 {
		t.Errorf("unexpected survivors: %+v", got)
	}
}
