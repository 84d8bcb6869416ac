// Package keyword scores text against the sponsorship vocabulary and screens
// out spam and automated mail.
package keyword

import (
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// Vocabulary
// =============================================================================

// Vocabulary configures the relevance filter.
type Vocabulary struct {
	// Base terms, searched as-is.
	Keywords []string `yaml:"keywords"`
	// Variations maps a base word to derived forms, all of which are terms.
	Variations map[string][]string `yaml:"variations"`
	// Primary terms weigh 1.0 in Score; other terms weigh 0.5.
	Primary []string `yaml:"primary"`
	// SpamPatterns and AutomationIndicators are substring matches.
	SpamPatterns         []string `yaml:"spam_patterns"`
	AutomationIndicators []string `yaml:"automation_indicators"`
}

// DefaultVocabulary returns the built-in sponsorship vocabulary.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Keywords: []string{
			"sponsorship", "partnership", "sponsor", "partnering",
			"collaboration", "brand partnership", "marketing partnership",
			"sponsoring", "partnership opportunity", "sponsor opportunity",
			"collaborative partnership", "business partnership",
		},
		Variations: map[string][]string{
			"sponsor":     {"sponsors", "sponsored", "sponsoring", "sponsorship"},
			"partner":     {"partners", "partnership", "partnering", "partnerships"},
			"collaborate": {"collaboration", "collaborative", "collaborating"},
			"marketing":   {"marketing opportunity", "brand partnership", "promotional"},
		},
		Primary: []string{"sponsorship", "partnership", "sponsor", "partner"},
		SpamPatterns: []string{
			"unsubscribe", "click here", "act now", "limited time", "free trial",
			"newsletter", "promotional", "noreply@", "do-not-reply@",
		},
		AutomationIndicators: []string{
			"automated", "auto-generated", "system notification", "donotreply",
		},
	}
}

// Terms returns every searchable term, lowercased, de-duplicated and sorted.
func (v Vocabulary) Terms() []string {
	set := make(map[string]struct{})
	add := func(s string) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			set[s] = struct{}{}
		}
	}
	for _, k := range v.Keywords {
		add(k)
	}
	for _, forms := range v.Variations {
		for _, f := range forms {
			add(f)
		}
	}

	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// =============================================================================
// Filter
// =============================================================================

const (
	primaryWeight   = 1.0
	secondaryWeight = 0.5
	subjectBonus    = 0.5
	maxScore        = 5.0
)

type term struct {
	text    string
	pattern *regexp.Regexp
}

// Filter decides sponsorship relevance. It is immutable after construction
// and safe for concurrent use.
type Filter struct {
	terms      []term
	primary    map[string]bool
	spam       []string
	automation []string
}

// NewFilter compiles a vocabulary into word-boundary matchers.
func NewFilter(v Vocabulary) *Filter {
	primary := make(map[string]bool, len(v.Primary))
	for _, p := range v.Primary {
		primary[strings.ToLower(strings.TrimSpace(p))] = true
	}

	f := &Filter{
		primary:    primary,
		spam:       lowerAll(v.SpamPatterns),
		automation: lowerAll(v.AutomationIndicators),
	}
	for _, t := range v.Terms() {
		f.terms = append(f.terms, term{
			text:    t,
			pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(t) + `\b`),
		})
	}
	return f
}

// FindKeywords returns the vocabulary terms present in text as whole words.
func (f *Filter) FindKeywords(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var found []string
	for _, t := range f.terms {
		if t.pattern.MatchString(lower) {
			found = append(found, t.text)
		}
	}
	return found
}

// IsSponsorshipRelated reports whether any term appears in subject, body or
// snippet.
func (f *Filter) IsSponsorshipRelated(subject, body, snippet string) bool {
	return len(f.FindKeywords(combine(subject, body, snippet))) > 0
}

// score ranks relevance: primary terms add 1.0, others 0.5, every term also
// found in the subject adds 0.5. The total is capped at 5.0.
func (f *Filter) score(found []string, subject string) float64 {
	if len(found) == 0 {
		return 0
	}

	score := 0.0
	for _, k := range found {
		if f.primary[k] {
			score += primaryWeight
		} else {
			score += secondaryWeight
		}
	}
	score += float64(len(f.FindKeywords(subject))) * subjectBonus

	if score > maxScore {
		return maxScore
	}
	return score
}

// PassesSpamFilter returns false when the combined subject, body and sender
// contain any spam pattern or automation indicator.
func (f *Filter) PassesSpamFilter(subject, body, sender string) bool {
	return f.spamHit(subject, body, sender) == ""
}

func (f *Filter) spamHit(subject, body, sender string) string {
	combined := strings.ToLower(combine(subject, body, sender))
	for _, p := range f.spam {
		if strings.Contains(combined, p) {
			return p
		}
	}
	for _, p := range f.automation {
		if strings.Contains(combined, p) {
			return p
		}
	}
	return ""
}

// Decision is the combined relevance and spam verdict for one message.
type Decision struct {
	Relevant    bool
	SpamPattern string
	Score       float64
	Matched     []string
}

// Accepted reports whether the message belongs in the sponsorship pipeline.
func (d Decision) Accepted() bool {
	return d.Relevant && d.SpamPattern == ""
}

// Evaluate applies relevance, scoring and the spam filter together.
func (f *Filter) Evaluate(subject, body, snippet, sender string) Decision {
	found := f.FindKeywords(combine(subject, body, snippet))
	return Decision{
		Relevant:    len(found) > 0,
		SpamPattern: f.spamHit(subject, body, sender),
		Score:       f.score(found, subject),
		Matched:     found,
	}
}

func combine(parts ...string) string {
	return strings.Join(parts, " ")
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
