package ai

import (
	"strings"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

// TemplateReply is the static reply used when generation is unavailable
func TemplateReply(commenterName string) string {
	return "Thanks " + models.FirstName(commenterName) + "! Just sent you a connection request so I can share the details."
}

// RenderDMTemplate fills the name placeholders of an operator template.
// Supported: {name}, {first_name}, {firstName}, {full_name}.
func RenderDMTemplate(template, leadName string) string {
	first := models.FirstName(leadName)
	full := strings.TrimSpace(leadName)
	if full == "" {
		full = first
	}
	r := strings.NewReplacer(
		"{name}", first,
		"{first_name}", first,
		"{firstName}", first,
		"{full_name}", full,
	)
	return strings.TrimSpace(r.Replace(template))
}
