package idgen

import (
	"strings"
	"testing"
)

func TestWithPrefix(t *testing.T) {
	id := WithPrefix("deal_")
	if !strings.HasPrefix(id, "deal_") {
		t.Fatalf("missing prefix: %q", id)
	}
	if len(id) != len("deal_")+24 {
		t.Fatalf("unexpected length %d for %q", len(id), id)
	}

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := WithPrefix("pay_")
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
