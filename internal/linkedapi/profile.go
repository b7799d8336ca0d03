package linkedapi

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/palma21/linkedin-outreach-bot/internal/models"
)

const profileBase = "https://www.linkedin.com/in/"

// PublicIdentifier extracts the vanity id from a profile URL such as
// https://uk.linkedin.com/in/jane-doe-1234/?trk=x or linkedin.com/in/jane-doe-1234
func PublicIdentifier(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty profile url: %w", models.ErrValidation)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("profile url %q: %v: %w", raw, err, models.ErrValidation)
	}
	if !strings.HasSuffix(strings.ToLower(u.Hostname()), "linkedin.com") {
		return "", fmt.Errorf("profile url %q is not a linkedin url: %w", raw, models.ErrValidation)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(segments); i++ {
		if segments[i] == "in" && segments[i+1] != "" {
			id, err := url.PathUnescape(segments[i+1])
			if err != nil {
				id = segments[i+1]
			}
			return strings.ToLower(id), nil
		}
	}
	return "", fmt.Errorf("profile url %q has no /in/ identifier: %w", raw, models.ErrValidation)
}

// NormalizeProfileURL returns the canonical https://www.linkedin.com/in/<id> form,
// so the same person found through different channels maps to one lead
func NormalizeProfileURL(raw string) (string, error) {
	id, err := PublicIdentifier(raw)
	if err != nil {
		return "", err
	}
	return profileBase + url.PathEscape(id), nil
}
