package store

import (
	"strings"
	"testing"
)

func TestGenerateOrderCode(t *testing.T) {
	seen := map[string]bool{}

	for i := 0; i < 200; i++ {
		code, err := GenerateOrderCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != codeLength {
			t.Fatalf("expected length %d, got %q", codeLength, code)
		}
		for _, r := range code {
			if !strings.ContainsRune(codeAlphabet, r) {
				t.Fatalf("code %q contains %q outside alphabet", code, r)
			}
		}
		if code != NormalizeOrderCode(code) {
			t.Errorf("generated code %q is not already normalized", code)
		}
		seen[code] = true
	}

	// 200 draws from 32^6 should essentially never collide.
	if len(seen) < 195 {
		t.Errorf("suspiciously many collisions: %d unique of 200", len(seen))
	}
}

func TestNormalizeOrderCode(t *testing.T) {
	cases := map[string]string{
		"  ab12cd ": "AB12CD",
		"XYZ789":    "XYZ789",
		"\tqq22\n":  "QQ22",
		"":          "",
		"   ":       "",
	}
	for in, want := range cases {
		if got := NormalizeOrderCode(in); got != want {
			t.Errorf("NormalizeOrderCode(%q) = %q, want %q", in, got, want)
		}
	}
}
