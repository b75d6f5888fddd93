package auth

import (
	"testing"

	"tracking-svr/internal/apperr"
)

func TestParseStaticTokens(t *testing.T) {
	tokens := ParseStaticTokens("tok1=D1:driver, tok2=A1:admin,,bad-pair,=x:y")
	if len(tokens) != 2 {
		t.Fatalf("got %d tokens, want 2: %+v", len(tokens), tokens)
	}
	if p := tokens["tok1"]; p.ID != "D1" || p.Role != RoleDriver {
		t.Errorf("tok1 = %+v", p)
	}
	if p := tokens["tok2"]; p.ID != "A1" || p.Role != RoleAdmin {
		t.Errorf("tok2 = %+v", p)
	}
}

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier(map[string]Principal{"tok": {ID: "D1", Role: RoleDriver}})
	p, err := v.Verify("tok")
	if err != nil || p.ID != "D1" {
		t.Fatalf("Verify = %+v, %v", p, err)
	}
	if _, err := v.Verify("nope"); !apperr.IsUnauthorized(err) {
		t.Fatalf("invalid token: err = %v, want UNAUTHORIZED", err)
	}
}

func TestCanSubmitFor(t *testing.T) {
	cases := []struct {
		name     string
		p        Principal
		driverID string
		want     bool
	}{
		{"driver for self", Principal{ID: "D1", Role: RoleDriver}, "D1", true},
		{"driver unattributed", Principal{ID: "D1", Role: RoleDriver}, "", true},
		{"driver for other", Principal{ID: "D1", Role: RoleDriver}, "D2", false},
		{"service for anyone", Principal{ID: "sim", Role: RoleService}, "D2", true},
		{"anonymous", Principal{}, "", false},
	}
	for _, c := range cases {
		if got := c.p.CanSubmitFor(c.driverID); got != c.want {
			t.Errorf("%s: CanSubmitFor = %v, want %v", c.name, got, c.want)
		}
	}
}
