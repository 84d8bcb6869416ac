// Package priority computes a deterministic urgency level for a thread from
// timing, content and sender signals.
package priority

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"sponsor_worker/core/domain"
)

// Config holds the vocabularies used by the content and sender signals.
type Config struct {
	UrgentWords      []string `yaml:"urgent_words"`
	MediumWords      []string `yaml:"medium_words"`
	ImportantDomains []string `yaml:"important_domains"`
	VIPWords         []string `yaml:"vip_words"`
}

// DefaultConfig returns the built-in vocabularies.
func DefaultConfig() Config {
	return Config{
		UrgentWords: []string{
			"urgent", "asap", "immediately", "deadline", "time sensitive",
			"expires", "limited time", "act fast", "closing soon",
			"final notice", "last chance",
		},
		MediumWords: []string{
			"soon", "quickly", "prompt", "timely", "follow up",
			"waiting", "response needed", "please respond",
		},
		ImportantDomains: []string{
			"foundation.org", "edu", "gov", "org", "corporation.com", "company.com",
		},
		VIPWords: []string{
			"ceo", "president", "director", "manager", "head",
			"chief", "founder", "partner", "executive",
		},
	}
}

// Signal is one scored factor.
type Signal struct {
	Level  domain.PriorityLevel
	Reason string
}

// Assessment is the combined result.
type Assessment struct {
	Level     domain.PriorityLevel
	Reasoning string
	Waiting   bool
}

// Calculator scores threads. It holds no mutable state.
type Calculator struct {
	cfg Config
	now func() time.Time
}

// NewCalculator creates a Calculator. A nil now uses time.Now.
func NewCalculator(cfg Config, now func() time.Time) *Calculator {
	if now == nil {
		now = time.Now
	}
	return &Calculator{cfg: lowerConfig(cfg), now: now}
}

func lowerConfig(cfg Config) Config {
	lower := func(in []string) []string {
		out := make([]string, 0, len(in))
		for _, s := range in {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return Config{
		UrgentWords:      lower(cfg.UrgentWords),
		MediumWords:      lower(cfg.MediumWords),
		ImportantDomains: lower(cfg.ImportantDomains),
		VIPWords:         lower(cfg.VIPWords),
	}
}

// Latest returns the message with the greatest ReceivedAt, or nil.
func Latest(messages []*domain.SponsorMessage) *domain.SponsorMessage {
	var latest *domain.SponsorMessage
	for _, m := range messages {
		if m == nil {
			continue
		}
		if latest == nil || m.ReceivedAt.After(latest.ReceivedAt) {
			latest = m
		}
	}
	return latest
}

// IsWaiting reports whether the latest message came from someone other than
// the owner.
func IsWaiting(messages []*domain.SponsorMessage) bool {
	latest := Latest(messages)
	return latest != nil && !latest.IsFromOwner
}

// TimeSignal scores the time since the last message.
func (c *Calculator) TimeSignal(lastMessageAt time.Time, waiting bool) Signal {
	elapsed := c.now().UTC().Sub(lastMessageAt.UTC())
	hours := elapsed.Hours()
	days := int(elapsed / (24 * time.Hour))

	if waiting {
		switch {
		case hours > 72:
			return Signal{domain.PriorityReplyNow, fmt.Sprintf("No response for %d days - urgent follow-up needed", days)}
		case hours > 48:
			return Signal{domain.PriorityReplyNow, fmt.Sprintf("No response for %d days - response overdue", days)}
		case hours > 24:
			return Signal{domain.PriorityReplyNow, fmt.Sprintf("Response needed - message received %d day(s) ago", days)}
		case hours > 4:
			return Signal{domain.PriorityNormal, fmt.Sprintf("Recent message received %d hours ago", int(hours))}
		default:
			return Signal{domain.PriorityNormal, "Very recent message received"}
		}
	}

	switch {
	case days > 14:
		return Signal{domain.PriorityReadNow, fmt.Sprintf("Sent message %d days ago - check for response or follow up", days)}
	case days > 7:
		return Signal{domain.PriorityNormal, fmt.Sprintf("Sent message %d days ago - may need follow-up", days)}
	case days > 3:
		return Signal{domain.PriorityNormal, fmt.Sprintf("Sent message %d days ago - waiting for response", days)}
	default:
		return Signal{domain.PriorityLow, fmt.Sprintf("Recently sent message %d day(s) ago", days)}
	}
}

// ContentSignal scans subjects and bodies for urgency language.
func (c *Calculator) ContentSignal(messages []*domain.SponsorMessage) Signal {
	if len(messages) == 0 {
		return Signal{domain.PriorityNormal, "No messages to analyze"}
	}

	var b strings.Builder
	for _, m := range messages {
		if m == nil {
			continue
		}
		b.WriteString(m.Subject)
		b.WriteByte(' ')
		b.WriteString(m.BodyText)
		b.WriteByte(' ')
	}
	content := strings.ToLower(b.String())

	if found := containsAny(content, c.cfg.UrgentWords); len(found) > 0 {
		return Signal{domain.PriorityReadNow, "Urgent language detected: " + strings.Join(found, ", ")}
	}
	if found := containsAny(content, c.cfg.MediumWords); len(found) > 0 {
		return Signal{domain.PriorityNormal, "Time-sensitive language detected: " + strings.Join(found, ", ")}
	}
	return Signal{domain.PriorityLow, "No urgency indicators in content"}
}

// SenderSignal looks for important domains or senior roles among external
// senders. Senders are checked in sorted order; the first hit wins.
func (c *Calculator) SenderSignal(messages []*domain.SponsorMessage) Signal {
	if len(messages) == 0 {
		return Signal{domain.PriorityNormal, "No messages to analyze"}
	}

	set := make(map[string]struct{})
	for _, m := range messages {
		if m == nil || m.IsFromOwner || m.SenderEmail == "" {
			continue
		}
		set[strings.ToLower(m.SenderEmail)] = struct{}{}
	}
	senders := make([]string, 0, len(set))
	for s := range set {
		senders = append(senders, s)
	}
	sort.Strings(senders)

	for _, sender := range senders {
		local, host, _ := strings.Cut(sender, "@")
		for _, d := range c.cfg.ImportantDomains {
			if matchesDomain(host, d) {
				return Signal{domain.PriorityNormal, "Important organization domain detected: " + d}
			}
		}
		for _, w := range c.cfg.VIPWords {
			if strings.Contains(local, w) {
				return Signal{domain.PriorityNormal, "Senior role detected in sender: " + w}
			}
		}
	}
	return Signal{domain.PriorityLow, "Standard sender priority"}
}

// matchesDomain reports whether host is d or a subdomain of it.
func matchesDomain(host, d string) bool {
	d = strings.TrimPrefix(strings.ToLower(d), ".")
	if host == "" || d == "" {
		return false
	}
	return host == d || strings.HasSuffix(host, "."+d)
}

// Calculate combines the three signals. The overall level is the highest
// ranked signal; reasoning lists every signal tied at that level.
func (c *Calculator) Calculate(messages []*domain.SponsorMessage) Assessment {
	latest := Latest(messages)
	if latest == nil {
		return Assessment{Level: domain.PriorityNormal, Reasoning: "No messages in thread"}
	}
	waiting := !latest.IsFromOwner

	signals := []struct {
		label string
		Signal
	}{
		{"Time", c.TimeSignal(latest.ReceivedAt, waiting)},
		{"Content", c.ContentSignal(messages)},
		{"Sender", c.SenderSignal(messages)},
	}

	best := signals[0].Level
	for _, s := range signals[1:] {
		if s.Level.Rank() > best.Rank() {
			best = s.Level
		}
	}

	var reasons []string
	for _, s := range signals {
		if s.Level == best {
			reasons = append(reasons, s.label+": "+s.Reason)
		}
	}

	return Assessment{Level: best, Reasoning: strings.Join(reasons, "; "), Waiting: waiting}
}

func containsAny(content string, words []string) []string {
	var found []string
	for _, w := range words {
		if strings.Contains(content, w) {
			found = append(found, w)
		}
	}
	return found
}
