package webhook

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/google/uuid"
)

const secretPrefix = "whsec_"

// GenerateSecret returns a random signing secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return secretPrefix + hex.EncodeToString(buf), nil
}

func validateURL(raw string, verr *ValidationError) {
	if strings.TrimSpace(raw) == "" {
		verr.Add("url", "is required")
		return
	}
	u, err := url.Parse(raw)
	if err != nil {
		verr.Add("url", "is not a valid URL")
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		verr.Add("url", "must use http or https")
		return
	}
	if u.Host == "" || u.Hostname() == "" {
		verr.Add("url", "must include a host")
	}
}

// parseEvents validates event names against the catalog and drops duplicates,
// keeping first-seen order.
func parseEvents(raw []string, verr *ValidationError) []domain.EventType {
	if len(raw) == 0 {
		verr.Add("events", "at least one event is required")
		return nil
	}

	seen := make(map[domain.EventType]bool, len(raw))
	events := make([]domain.EventType, 0, len(raw))
	for _, name := range raw {
		event, err := domain.ParseEventType(strings.TrimSpace(name))
		if err != nil {
			verr.Add("events", err.Error())
			continue
		}
		if seen[event] {
			continue
		}
		seen[event] = true
		events = append(events, event)
	}
	return events
}

func (s *Service) validateLimits(sub *domain.Subscription, verr *ValidationError) {
	if sub.TimeoutSeconds < 1 || sub.TimeoutSeconds > s.cfg.MaxTimeoutSeconds {
		verr.Add("timeout_seconds", fmt.Sprintf("must be between 1 and %d", s.cfg.MaxTimeoutSeconds))
	}
	if sub.MaxRetryAttempts < 0 || sub.MaxRetryAttempts > s.cfg.MaxRetryAttemptsLimit {
		verr.Add("max_retry_attempts", fmt.Sprintf("must be between 0 and %d", s.cfg.MaxRetryAttemptsLimit))
	}
	if sub.RateLimitPerSecond < 0 {
		verr.Add("rate_limit_per_second", "must not be negative")
	}
}

func validateHeaders(headers map[string]string, verr *ValidationError) {
	for name, value := range headers {
		if !isToken(name) {
			verr.Add("headers", fmt.Sprintf("invalid header name %q", name))
			continue
		}
		if strings.ContainsAny(value, "\r\n") {
			verr.Add("headers", fmt.Sprintf("header %q has an invalid value", name))
		}
	}
}

// isToken reports whether s is a valid HTTP header field name.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case strings.ContainsRune("!#$%&'*+-.^_`|~", r):
		default:
			return false
		}
	}
	return true
}

// isID reports whether id can name a stored subscription or delivery attempt.
func isID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}
