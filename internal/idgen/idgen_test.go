package idgen

import (
	"regexp"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	pattern := regexp.MustCompile(`^pl-[0-9a-zA-Z]{12}$`)
	seen := make(map[string]bool, 5000)
	for i := 0; i < 5000; i++ {
		id, err := New()
		if err != nil {
			t.Fatalf("New() error on iteration %d: %v", i, err)
		}
		if !pattern.MatchString(id) {
			t.Fatalf("New() = %q, does not match %s", id, pattern)
		}
		if seen[id] {
			t.Fatalf("duplicate ID after %d generations: %q", i, id)
		}
		seen[id] = true
	}
}

func TestWithPrefix(t *testing.T) {
	id, err := WithPrefix("ev-")
	if err != nil {
		t.Fatalf("WithPrefix: %v", err)
	}
	if !strings.HasPrefix(id, "ev-") || len(id) != len("ev-")+Size {
		t.Errorf("WithPrefix(ev-) = %q", id)
	}
}
