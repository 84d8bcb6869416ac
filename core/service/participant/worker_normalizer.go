// Package participant canonicalizes email participants and builds the
// participant signature used to deduplicate threads.
package participant

import (
	"regexp"
	"sort"
	"strings"
)

// Owner identifies the mailbox owner, who is never a participant.
type Owner struct {
	Email string
	Name  string
}

// headerPattern matches `"Name" <email>`, `Name <email>`, `"" <email>` and `<email>`.
var headerPattern = regexp.MustCompile(`^"?([^"<]*?)"?\s*<([^>]+)>$`)

// Parse splits a raw address string into (name, email). The email is
// lowercased and empty when the input carries no address. Never fails.
func Parse(raw string) (name, email string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}

	if m := headerPattern.FindStringSubmatch(raw); m != nil {
		name, email = strings.TrimSpace(m[1]), strings.ToLower(strings.TrimSpace(m[2]))
		if name == "" {
			name, _, _ = strings.Cut(email, "@")
		}
		return name, email
	}

	if strings.Contains(raw, "@") {
		email = strings.Trim(strings.ToLower(raw), "<>")
		name, _, _ = strings.Cut(email, "@")
		return name, email
	}

	return raw, ""
}

// Key returns the canonical token for a participant: the lowercased email if
// present, otherwise the lowercased name. Key(Key(p)) == Key(p).
func Key(raw string) string {
	name, email := Parse(raw)
	if email != "" {
		return email
	}
	return strings.ToLower(name)
}

// SplitAddressList splits a header value such as `a <a@x>, "B, C" <b@y>` into
// individual address strings, keeping commas inside quotes or angle brackets.
func SplitAddressList(header string) []string {
	var (
		parts   []string
		current strings.Builder
		quoted  bool
		angle   int
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			parts = append(parts, s)
		}
		current.Reset()
	}

	for _, r := range header {
		switch {
		case r == '"':
			quoted = !quoted
		case r == '<' && !quoted:
			angle++
		case r == '>' && !quoted && angle > 0:
			angle--
		case r == ',' && !quoted && angle == 0:
			flush()
			continue
		}
		current.WriteRune(r)
	}
	flush()
	return parts
}

// =============================================================================
// Normalizer
// =============================================================================

// Normalizer turns raw participants into an owner-free identity set.
type Normalizer struct {
	ownerEmail string
	ownerName  string
}

// NewNormalizer creates a Normalizer for the given mailbox owner.
func NewNormalizer(owner Owner) *Normalizer {
	return &Normalizer{
		ownerEmail: strings.ToLower(strings.TrimSpace(owner.Email)),
		ownerName:  strings.ToLower(strings.TrimSpace(owner.Name)),
	}
}

// IsOwner reports whether a raw participant is the mailbox owner.
func (n *Normalizer) IsOwner(raw string) bool {
	name, email := Parse(raw)
	if email != "" {
		return n.ownerEmail != "" && email == n.ownerEmail
	}
	lower := strings.ToLower(name)
	return lower != "" && (lower == n.ownerName || lower == n.ownerEmail)
}

// IsOwnerEmail reports whether an address belongs to the owner.
func (n *Normalizer) IsOwnerEmail(email string) bool {
	return n.ownerEmail != "" && strings.EqualFold(strings.TrimSpace(email), n.ownerEmail)
}

// Filter drops owner entries, keeping the raw strings of everyone else.
func (n *Normalizer) Filter(raws []string) []string {
	kept := make([]string, 0, len(raws))
	for _, raw := range raws {
		if strings.TrimSpace(raw) == "" || n.IsOwner(raw) {
			continue
		}
		kept = append(kept, raw)
	}
	return kept
}

// NormalizeSet returns the sorted, de-duplicated keys of all non-owner
// participants.
func (n *Normalizer) NormalizeSet(raws []string) []string {
	set := make(map[string]struct{}, len(raws))
	for _, raw := range n.Filter(raws) {
		if key := Key(raw); key != "" {
			set[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnknownEmail is the PrimaryContact placeholder when no address is known.
const UnknownEmail = "unknown@example.com"

// PrimaryContact returns the first non-owner participant with an email, else
// the first non-owner participant, else ("Unknown", "unknown@example.com").
func (n *Normalizer) PrimaryContact(raws []string) (name, email string) {
	for _, raw := range raws {
		pName, pEmail := Parse(raw)
		if pEmail != "" && !n.IsOwnerEmail(pEmail) {
			if pName == "" {
				pName, _, _ = strings.Cut(pEmail, "@")
			}
			return pName, pEmail
		}
	}

	if kept := n.Filter(raws); len(kept) > 0 {
		pName, pEmail := Parse(kept[0])
		if pName == "" {
			pName = "Unknown"
		}
		if pEmail == "" {
			pEmail = UnknownEmail
		}
		return pName, pEmail
	}

	return "Unknown", UnknownEmail
}
