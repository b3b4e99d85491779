package util

import (
	"math"
	"testing"
)

func TestSafeInt64DiffNormalSubtraction(t *testing.T) {
	if got := SafeInt64Diff(10, 4); got != 6 {
		t.Fatalf("expected 6, got %d", got)
	}
}

func TestSafeInt64DiffAvoidsUnderflow(t *testing.T) {
	if got := SafeInt64Diff(4, 10); got != 0 {
		t.Fatalf("expected 0 for u1 < u2, got %d", got)
	}
}

func TestSafeInt64DiffAvoidsOverflow(t *testing.T) {
	if got := SafeInt64Diff(math.MaxUint64, 0); got != 0 {
		t.Fatalf("expected 0 when the difference exceeds MaxInt64, got %d", got)
	}
}

func TestSafeUint64ClampsNegativeToZero(t *testing.T) {
	if got := SafeUint64(-5); got != 0 {
		t.Fatalf("expected 0 for a negative input, got %d", got)
	}
	if got := SafeUint64(42); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestSafeInt32ClampsToRange(t *testing.T) {
	if got := SafeInt32(math.MaxInt64); got != math.MaxInt32 {
		t.Fatalf("expected clamp to MaxInt32, got %d", got)
	}
	if got := SafeInt32(math.MinInt64); got != math.MinInt32 {
		t.Fatalf("expected clamp to MinInt32, got %d", got)
	}
	if got := SafeInt32(100); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}
