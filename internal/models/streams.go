// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

// Package models provides data structures for the Logship application.
//
// streams.go - Stream Names, Feed Keys and Entity Kinds
//
// Stream names are stable identifiers at the external log sink. Feed keys
// identify watermark rows in the store; one feed per shipper flow.
package models

import (
	"fmt"
	"sort"
	"strings"
)

// Fixed stream names.
const (
	StreamGet        = "get"
	StreamDataAccess = "data-access"
	StreamAlive      = "alive"
)

// Fixed feed keys.
const (
	FeedReadAccess = "AUDIT_LOG_AWS_LAST_UPDATE[READ]"
	FeedDataAccess = "DATA_ACCESS_LOG_AWS_LAST_UPDATE"

	// FeedNoAdmin marks, per organization, the moment the organization was
	// last seen without an admin-role user.
	FeedNoAdmin = "NO_PAAKAYTTAJA"
)

// ChangeStream returns the stream name for an entity kind's change history.
func ChangeStream(kind string) string {
	return "changed-" + kind
}

// ChangeFeed returns the watermark feed key for an entity kind's history.
func ChangeFeed(kind string) string {
	return fmt.Sprintf("AUDIT_LOG_AWS_LAST_UPDATE[%s]", strings.ToUpper(kind))
}

// EntityKindHenkilo gets special treatment in the change-history shipper:
// only create and delete entries are shipped, because person edits arrive
// from the identity upstream rather than from end users.
const EntityKindHenkilo = "henkilo"

// entityPlurals maps each auditable entity kind to its verbose plural.
// The plural, normalized, becomes the path segment of the target URL.
var entityPlurals = map[string]string{
	"henkilo":                "henkilöt",
	"lapsi":                  "lapset",
	"huoltajuussuhde":        "huoltajuussuhteet",
	"maksutieto":             "maksutiedot",
	"toimipaikka":            "toimipaikat",
	"kielipainotus":          "kielipainotukset",
	"toiminnallinenpainotus": "toiminnalliset painotukset",
	"varhaiskasvatuspaatos":  "varhaiskasvatuspäätökset",
	"varhaiskasvatussuhde":   "varhaiskasvatussuhteet",
	"vakajarjestaja":         "vakajärjestäjät",
	"tyontekija":             "työntekijät",
	"palvelussuhde":          "palvelussuhteet",
	"tyoskentelypaikka":      "työskentelypaikat",
	"pidempipoissaolo":       "pidemmät poissaolot",
	"taydennyskoulutus":      "täydennyskoulutukset",
	"tutkinto":               "tutkinnot",
}

// EntityKinds returns the auditable entity kinds in deterministic order.
func EntityKinds() []string {
	kinds := make([]string, 0, len(entityPlurals))
	for kind := range entityPlurals {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// KnownEntityKind reports whether kind has a registered plural.
func KnownEntityKind(kind string) bool {
	_, ok := entityPlurals[kind]
	return ok
}

// normalizePlural strips spaces and folds the Finnish umlauts the API
// route dialect does not carry: ö becomes o and ä becomes a.
func normalizePlural(plural string) string {
	r := strings.NewReplacer(" ", "", "ö", "o", "ä", "a")
	return r.Replace(plural)
}

// TargetURL derives the API URL shipped as the target of a history event.
// Unregistered kinds fall back to the kind itself as path segment.
func TargetURL(kind string, entityID int64) string {
	plural, ok := entityPlurals[kind]
	if !ok {
		plural = kind
	}
	return fmt.Sprintf("/api/v1/%s/%d/", normalizePlural(plural), entityID)
}
