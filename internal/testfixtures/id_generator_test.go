package testfixtures

import "testing"

func TestIDGenerator(t *testing.T) {
	t.Parallel()

	gen := NewIDGenerator("evt")
	if first, second := gen.Next(), gen.Next(); first != "evt-1" || second != "evt-2" {
		t.Fatalf("unexpected identifiers: %q, %q", first, second)
	}
	if gen.Issued() != 2 {
		t.Fatalf("expected 2 issued ids, got %d", gen.Issued())
	}
	if id := NewIDGenerator("").NextFunc()(); id != "id-1" {
		t.Fatalf("expected default prefix, got %q", id)
	}
}
