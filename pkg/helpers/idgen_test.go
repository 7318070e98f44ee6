package helpers

import "testing"

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID: %v", err)
		}
		if len(id) != 16 {
			t.Fatalf("len(id) = %d, want 16", len(id))
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewToken(t *testing.T) {
	tok, err := NewToken(32)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if tok == "" {
		t.Fatal("empty token")
	}
	// URL-safe alphabet only, tokens travel in query strings
	for _, r := range tok {
		ok := r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			t.Fatalf("token contains %q", r)
		}
	}
	other, err := NewToken(32)
	if err != nil {
		t.Fatalf("NewToken: %v", err)
	}
	if tok == other {
		t.Fatal("two tokens should not collide")
	}
}
