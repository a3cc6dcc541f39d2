// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package models

import (
	"sort"
	"strings"
	"testing"
)

func TestEntityKindsAreSortedAndKnown(t *testing.T) {
	kinds := EntityKinds()
	if len(kinds) == 0 {
		t.Fatal("no entity kinds registered")
	}
	if !sort.StringsAreSorted(kinds) {
		t.Errorf("kinds not sorted: %v", kinds)
	}
	for _, kind := range kinds {
		if !KnownEntityKind(kind) {
			t.Errorf("kind %q enumerated but not known", kind)
		}
	}

	found := false
	for _, kind := range kinds {
		if kind == EntityKindHenkilo {
			found = true
		}
	}
	if !found {
		t.Errorf("kinds %v missing %q", kinds, EntityKindHenkilo)
	}
}

func TestTargetURLSegmentsAreNormalized(t *testing.T) {
	// Every registered kind must produce an ASCII path segment with no
	// spaces, whatever its verbose plural looks like.
	for _, kind := range EntityKinds() {
		url := TargetURL(kind, 42)
		if !strings.HasPrefix(url, "/api/v1/") || !strings.HasSuffix(url, "/42/") {
			t.Errorf("TargetURL(%q) = %q, want /api/v1/<plural>/42/", kind, url)
		}
		if strings.ContainsAny(url, " äö") {
			t.Errorf("TargetURL(%q) = %q carries unnormalized characters", kind, url)
		}
	}
}

func TestTargetURLSpotChecks(t *testing.T) {
	cases := []struct {
		kind string
		id   int64
		want string
	}{
		{"toimipaikka", 7, "/api/v1/toimipaikat/7/"},
		{"vakajarjestaja", 3, "/api/v1/vakajarjestajat/3/"},
		{"toiminnallinenpainotus", 9, "/api/v1/toiminnallisetpainotukset/9/"},
		{"tyontekija", 1, "/api/v1/tyontekijat/1/"},
		{"tuntematon", 5, "/api/v1/tuntematon/5/"},
	}
	for _, c := range cases {
		if got := TargetURL(c.kind, c.id); got != c.want {
			t.Errorf("TargetURL(%q, %d) = %q, want %q", c.kind, c.id, got, c.want)
		}
	}
}

func TestChangeStreamAndFeedNaming(t *testing.T) {
	if got := ChangeStream("lapsi"); got != "changed-lapsi" {
		t.Errorf("ChangeStream = %q", got)
	}
	if got := ChangeFeed("lapsi"); got != "AUDIT_LOG_AWS_LAST_UPDATE[LAPSI]" {
		t.Errorf("ChangeFeed = %q", got)
	}
}
