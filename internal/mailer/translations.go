// Logship - Varda Audit Log Shipping and Operational Health Messaging
// Copyright 2026 Varda Ops
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/vardaops/logship

package mailer

import (
	"fmt"
	"html"
	"strings"

	"github.com/vardaops/logship/internal/models"
)

// DefaultLocale is used when a target has no recorded language or no
// translation exists for it.
const DefaultLocale = "fi"

type translation struct {
	subject string

	// body is a plain-text template; %s is the organization name.
	body string
}

// translations is the (class, locale) message catalog. Bodies are
// plain text; the HTML alternative is derived, not authored.
var translations = map[models.MessageClass]map[string]translation{
	models.MessageClassNoAdmin: {
		"fi": {
			subject: "Varda: organisaatiolta puuttuu pääkäyttäjä",
			body: "Organisaatiolla %s ei ole ollut Varda-pääkäyttäjää yli 30 päivään.\n" +
				"Nimetkää pääkäyttäjä opintopolun käyttöoikeuspalvelussa.\n" +
				"Tämä viesti on lähetetty automaattisesti.",
		},
		"sv": {
			subject: "Varda: organisationen saknar huvudanvändare",
			body: "Organisationen %s har saknat en Varda-huvudanvändare i över 30 dagar.\n" +
				"Utse en huvudanvändare i studieinfos rättighetstjänst.\n" +
				"Detta meddelande har skickats automatiskt.",
		},
		"en": {
			subject: "Varda: organization has no admin user",
			body: "The organization %s has had no Varda admin user for over 30 days.\n" +
				"Please designate an admin user in the Opintopolku access management service.\n" +
				"This message was sent automatically.",
		},
	},
	models.MessageClassIncompleteData: {
		"fi": {
			subject: "Varda: organisaation tiedoissa on puutteita",
			body: "Organisaation %s Varda-tiedoissa on havaittu virheitä tai puutteita.\n" +
				"Tarkistakaa virheraportti Vardan käyttöliittymästä.\n" +
				"Tämä viesti on lähetetty automaattisesti.",
		},
		"sv": {
			subject: "Varda: brister i organisationens uppgifter",
			body: "Fel eller brister har upptäckts i organisationens %s Varda-uppgifter.\n" +
				"Granska felrapporten i Vardas användargränssnitt.\n" +
				"Detta meddelande har skickats automatiskt.",
		},
		"en": {
			subject: "Varda: organization data is incomplete",
			body: "Errors or omissions were found in the Varda data of organization %s.\n" +
				"Please review the error report in the Varda user interface.\n" +
				"This message was sent automatically.",
		},
	},
	models.MessageClassNoTransfers: {
		"fi": {
			subject: "Varda: tiedonsiirrot ovat keskeytyneet",
			body: "Organisaatiolta %s ei ole vastaanotettu tiedonsiirtoja sallitun ajan kuluessa.\n" +
				"Tarkistakaa tiedonsiirtojen tila ja rajapintojen toiminta.\n" +
				"Tämä viesti on lähetetty automaattisesti.",
		},
		"sv": {
			subject: "Varda: dataöverföringarna har avbrutits",
			body: "Inga dataöverföringar har tagits emot från organisationen %s inom den tillåtna tiden.\n" +
				"Kontrollera överföringarnas status och gränssnittens funktion.\n" +
				"Detta meddelande har skickats automatiskt.",
		},
		"en": {
			subject: "Varda: data transfers have stopped",
			body: "No data transfers have been received from organization %s within the allowed period.\n" +
				"Please check the transfer status and the integration endpoints.\n" +
				"This message was sent automatically.",
		},
	},
}

// render resolves the (class, locale) pair, falling back to the default
// locale, and fills in the organization name. The HTML alternative is the
// escaped plain text with line breaks encoded as <br>.
func render(class models.MessageClass, locale, orgName string) (subject, text, htmlBody string) {
	byLocale := translations[class]
	tr, ok := byLocale[locale]
	if !ok {
		tr = byLocale[DefaultLocale]
	}

	subject = tr.subject
	text = fmt.Sprintf(tr.body, orgName)
	htmlBody = strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")
	return subject, text, htmlBody
}
