package idgen

import (
	"strings"
	"testing"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	// UUID format: 8-4-4-4-12
	if parts := strings.Split(id, "-"); len(parts) != 5 || len(id) != 36 {
		t.Fatalf("UUIDv7: malformed %q", id)
	}
}

func TestNew_PrefixAndUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 200)
	for i := 0; i < 200; i++ {
		id := New()
		if !strings.HasPrefix(id, RequestPrefix) {
			t.Fatalf("missing prefix: %q", id)
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate at iteration %d: %q", i, id)
		}
		seen[id] = struct{}{}
	}
}

func TestNew_PathSafe(t *testing.T) {
	id := New()
	if strings.ContainsAny(id, `/\.`) {
		t.Fatalf("id %q is not path safe", id)
	}
}
