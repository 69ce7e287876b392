// Package handoff carries a converted visitor from the confirmation page
// into WhatsApp with a message pre-filled from their stated need.
package handoff

import (
	"fmt"
	"net/url"
	"strings"
)

// fallbackNeed is used when no service/symptom text was collected.
const fallbackNeed = "Medical service inquiry"

// BuildWhatsAppLink returns a wa.me deep link whose pre-filled message
// includes the visitor's collected symptoms or service selection.
func BuildWhatsAppLink(baseURL string, summary []string) string {
	need := fallbackNeed
	if len(summary) > 0 {
		need = strings.Join(summary, ", ")
	}
	message := fmt.Sprintf("Hi,\nI need a doctor home visit please.\n\nSymptoms: %s", need)
	return baseURL + "?text=" + url.QueryEscape(message)
}
