package search

import "testing"

func TestClampCursor(t *testing.T) {
	in := []any{float64(1 << 60), float64(-(1 << 60)), 42.0, "doc-9"}
	out := clampCursor(in)

	if out[0] != float64(maxSafeInteger) {
		t.Errorf("out[0] = %v, want %v", out[0], float64(maxSafeInteger))
	}
	if out[1] != float64(-maxSafeInteger) {
		t.Errorf("out[1] = %v, want %v", out[1], float64(-maxSafeInteger))
	}
	if out[2] != 42.0 {
		t.Errorf("out[2] = %v, want 42", out[2])
	}
	if out[3] != "doc-9" {
		t.Errorf("out[3] = %v, non-numeric values must pass through", out[3])
	}
}

func TestClampCursor_BoundIsFixedPoint(t *testing.T) {
	out := clampCursor([]any{float64(maxSafeInteger), float64(-maxSafeInteger)})
	if out[0] != float64(maxSafeInteger) || out[1] != float64(-maxSafeInteger) {
		t.Fatalf("bounds changed: %v", out)
	}
}
