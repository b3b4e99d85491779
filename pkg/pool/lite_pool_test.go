package pool

import "testing"

type resettableThing struct {
	value int
	reset bool
}

func (r *resettableThing) Reset() {
	r.value = 0
	r.reset = true
}

func TestGetReturnsNonNilInstance(t *testing.T) {
	p := NewLitePool(func() *resettableThing { return &resettableThing{} })

	got := p.Get()
	if got == nil {
		t.Fatal("expected Get() to return a non-nil instance")
	}
}

func TestPutResetsResettableBeforeReturningToPool(t *testing.T) {
	p := NewLitePool(func() *resettableThing { return &resettableThing{} })

	v := p.Get()
	v.value = 42
	p.Put(v)

	if !v.reset {
		t.Fatal("expected Put() to call Reset() on a Resettable value")
	}
	if v.value != 0 {
		t.Fatalf("expected Reset() to zero the value, got %d", v.value)
	}
}

func TestNewLitePoolPanicsOnNilConstructor(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected NewLitePool(nil) to panic")
		}
	}()
	NewLitePool[*resettableThing](nil)
}

func TestNewLitePoolPanicsWhenConstructorReturnsNil(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Get() to panic when the constructor returns a nil pointer")
		}
	}()
	p := NewLitePool(func() *resettableThing { return nil })
	p.Get()
}

func TestPoolWorksWithoutResettable(t *testing.T) {
	p := NewLitePool(func() *int { v := 0; return &v })

	v := p.Get()
	*v = 10
	p.Put(v) // *int does not implement Resettable; Put must not panic

	got := p.Get()
	if got == nil {
		t.Fatal("expected Get() to return a non-nil instance")
	}
}
