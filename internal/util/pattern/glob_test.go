package pattern

import "testing"

func TestMatchesGlobExactMatch(t *testing.T) {
	if !MatchesGlob("srv-prod-1", "srv-prod-1") {
		t.Fatal("expected an identical string to match")
	}
	if MatchesGlob("srv-prod-1", "srv-prod-2") {
		t.Fatal("expected a different string not to match")
	}
}

func TestMatchesGlobStar(t *testing.T) {
	if !MatchesGlob("anything", "*") {
		t.Fatal("expected bare '*' to match any string")
	}
}

func TestMatchesGlobPrefix(t *testing.T) {
	if !MatchesGlob("srv-prod-1", "srv-prod-*") {
		t.Fatal("expected prefix glob to match")
	}
	if MatchesGlob("srv-staging-1", "srv-prod-*") {
		t.Fatal("expected prefix glob not to match a different prefix")
	}
}

func TestMatchesGlobSuffix(t *testing.T) {
	if !MatchesGlob("srv-prod-1", "*-1") {
		t.Fatal("expected suffix glob to match")
	}
	if MatchesGlob("srv-prod-2", "*-1") {
		t.Fatal("expected suffix glob not to match a different suffix")
	}
}

func TestMatchesGlobContains(t *testing.T) {
	if !MatchesGlob("srv-prod-1", "*prod*") {
		t.Fatal("expected contains glob to match")
	}
	if MatchesGlob("srv-staging-1", "*prod*") {
		t.Fatal("expected contains glob not to match when the substring is absent")
	}
}

func TestMatchesGlobIsCaseInsensitive(t *testing.T) {
	if !MatchesGlob("SRV-PROD-1", "srv-prod-*") {
		t.Fatal("expected matching to be case-insensitive")
	}
}
