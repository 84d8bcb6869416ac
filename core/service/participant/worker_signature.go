package participant

import (
	"sort"
	"strings"
)

// SignatureDelimiter joins participant keys in a signature.
const SignatureDelimiter = "|"

// Signature builds the deduplication key for a participant set. Keys are
// re-normalized, de-duplicated and sorted, so input order never matters.
// Owner filtering must already have been applied. An empty set yields "".
func Signature(participants []string) string {
	set := make(map[string]struct{}, len(participants))
	for _, p := range participants {
		if key := Key(p); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return ""
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, SignatureDelimiter)
}

// SignatureFor filters the owner out of raw participants and signs the rest.
func (n *Normalizer) SignatureFor(raws []string) string {
	return Signature(n.NormalizeSet(raws))
}
