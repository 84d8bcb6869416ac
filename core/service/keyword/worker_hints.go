package keyword

import (
	"regexp"
	"strings"

	"sponsor_worker/core/domain"
)

var orgPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\w+\s+(?:Inc|Corp|LLC|Ltd|Company|Organization|Foundation))\b`),
	regexp.MustCompile(`(?i)(\w+\s+(?:University|College|School))\b`),
	regexp.MustCompile(`(?i)(\w+\s+(?:Group|Team|Association|Society))\b`),
}

// OrganizationHints extracts candidate organization names such as
// "Acme Inc" or "Harvard University" from free text.
func OrganizationHints(text string) []string {
	var hints []string
	for _, p := range orgPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			hints = append(hints, m[1])
		}
	}
	return hints
}

// Ordered so the first matching category wins.
var valueTypeRules = []struct {
	valueType domain.ValueType
	words     []string
}{
	{domain.ValueMonetary, []string{"funding", "budget", "financial", "money", "$"}},
	{domain.ValueInKind, []string{"product", "service", "in-kind", "donation"}},
	{domain.ValueCatering, []string{"food", "catering", "meal", "lunch", "dinner", "refreshment"}},
	{domain.ValueEquipment, []string{"equipment", "technology", "hardware", "venue", "space"}},
}

// CategorizeSponsorshipType guesses the value type offered in text.
func CategorizeSponsorshipType(text string) domain.ValueType {
	lower := strings.ToLower(text)
	for _, rule := range valueTypeRules {
		for _, w := range rule.words {
			if strings.Contains(lower, w) {
				return rule.valueType
			}
		}
	}
	return domain.ValueOther
}
