package index

import (
	"testing"

	"github.com/DocentAI/docent-mvp/engine/domain"
)

func TestScopeForDocument(t *testing.T) {
	cases := []struct {
		name string
		doc  domain.Document
		want string
	}{
		{"public wins", domain.Document{IsPublic: true, OrgID: "o1", OwnerID: "u1"}, "public"},
		{"org before owner", domain.Document{OrgID: "o1", OwnerID: "u1"}, "org_o1"},
		{"owner fallback", domain.Document{OwnerID: "u1"}, "user_u1"},
	}
	for _, c := range cases {
		if got := ScopeForDocument(c.doc); got != c.want {
			t.Errorf("%s: got %q, want %q", c.name, got, c.want)
		}
	}
}
