package launch

import "testing"

func TestAttempts_RecordAndGet(t *testing.T) {
	a := NewAttempts()
	a.record("attempt-1", "recipe-a", "/logs/recipe-a_attempt-1.log")

	rec, ok := a.Get("attempt-1")
	if !ok {
		t.Fatalf("expected attempt to be found")
	}
	if rec.RecipeID != "recipe-a" || rec.LogFile != "/logs/recipe-a_attempt-1.log" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if _, ok := a.Get("missing"); ok {
		t.Fatalf("expected missing attempt to be absent")
	}
}

func TestAttempts_LatestReturnsMostRecent(t *testing.T) {
	a := NewAttempts()
	a.record("attempt-1", "recipe-a", "/logs/recipe-a_attempt-1.log")
	a.record("attempt-2", "recipe-a", "/logs/recipe-a_attempt-2.log")

	latest, ok := a.Latest("recipe-a")
	if !ok {
		t.Fatalf("expected a latest attempt")
	}
	if latest.ID != "attempt-2" {
		t.Fatalf("expected attempt-2 to be latest, got %s", latest.ID)
	}

	if _, ok := a.Latest("recipe-b"); ok {
		t.Fatalf("expected no history for unrelated recipe")
	}
}

func TestAttempts_HistoryCapEvictsOldest(t *testing.T) {
	a := NewAttempts()
	for i := 0; i < attemptHistoryCap+5; i++ {
		a.record(idFor(i), "recipe-a", "/logs/x.log")
	}

	if _, ok := a.Get(idFor(0)); ok {
		t.Fatalf("expected oldest attempt to be evicted once the cap is exceeded")
	}
	latest, ok := a.Latest("recipe-a")
	if !ok || latest.ID != idFor(attemptHistoryCap+4) {
		t.Fatalf("expected newest attempt to remain latest, got %+v ok=%v", latest, ok)
	}
}

func idFor(i int) string {
	return "attempt-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
