package priority

import (
	"fmt"
	"time"

	"sponsor_worker/core/domain"
)

// RecommendedAction maps a level and response direction to a next step.
func RecommendedAction(level domain.PriorityLevel, waiting bool) (domain.NextActionStatus, string) {
	switch {
	case level.IsHigh() && waiting:
		return domain.ActionReply, "Urgent response needed"
	case level.IsHigh():
		return domain.ActionRead, "Check for response or follow up"
	case level == domain.PriorityNormal && waiting:
		return domain.ActionReply, "Response needed"
	case level == domain.PriorityNormal:
		return domain.ActionRead, "Monitor for response"
	default:
		return domain.ActionRead, "No immediate action required"
	}
}

// ActionSummary describes the latest message, e.g. "Jane replied 2 hours ago".
func (c *Calculator) ActionSummary(messages []*domain.SponsorMessage) string {
	latest := Latest(messages)
	if latest == nil {
		return "No messages in thread"
	}

	ago := formatAgo(c.now().UTC().Sub(latest.ReceivedAt.UTC()))
	if latest.IsFromOwner {
		return "Sent message " + ago
	}

	name := latest.SenderName
	if name == "" {
		name = latest.SenderEmail
	}
	return fmt.Sprintf("%s replied %s", name, ago)
}

func formatAgo(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	days := int(d / (24 * time.Hour))
	rest := d - time.Duration(days)*24*time.Hour

	switch {
	case days > 0:
		return fmt.Sprintf("%d days ago", days)
	case rest > time.Hour:
		return fmt.Sprintf("%d hours ago", int(rest/time.Hour))
	default:
		return fmt.Sprintf("%d minutes ago", int(rest/time.Minute))
	}
}
