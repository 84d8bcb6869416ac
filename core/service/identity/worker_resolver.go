// Package identity turns a flat batch of provider messages into logical
// threads and classifies them against what is already stored.
package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sponsor_worker/core/domain"
	"sponsor_worker/core/port/out"
	"sponsor_worker/core/service/participant"

	"github.com/rs/zerolog"
)

const (
	DefaultSubject = "No Subject"

	// DefaultThreadURLFormat takes the account index and the provider thread id.
	DefaultThreadURLFormat = "https://mail.google.com/mail/u/%d/#all/%s"
)

// Snapshot is the stored identity state observed once at run start.
type Snapshot struct {
	ThreadIDs  map[string]struct{}
	Signatures map[string]struct{}
}

func (s Snapshot) hasThread(id string) bool {
	_, ok := s.ThreadIDs[id]
	return ok
}

func (s Snapshot) hasSignature(sig string) bool {
	if sig == "" {
		return false
	}
	_, ok := s.Signatures[sig]
	return ok
}

// ResolvedThread is a thread draft ready to be saved.
type ResolvedThread struct {
	Thread   *domain.SponsorThread
	Messages []*domain.SponsorMessage

	// KnownByID is set when the provider thread id was in the snapshot.
	KnownByID bool
	// SignatureKnown is set when a non-empty signature was in the snapshot,
	// so the store is expected to merge by signature.
	SignatureKnown bool
}

// DroppedThread records a thread skipped during resolution.
type DroppedThread struct {
	ThreadID string
	Reason   string
}

// Resolution is the outcome of resolving one batch.
type Resolution struct {
	New      []*ResolvedThread
	Existing []*ResolvedThread
	Dropped  []DroppedThread
}

// Count returns the number of threads that survived resolution.
func (r *Resolution) Count() int {
	return len(r.New) + len(r.Existing)
}

// All returns new threads followed by existing ones.
func (r *Resolution) All() []*ResolvedThread {
	all := make([]*ResolvedThread, 0, r.Count())
	all = append(all, r.New...)
	return append(all, r.Existing...)
}

// =============================================================================
// Resolver
// =============================================================================

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	AccountIndex int
	// URLFormat overrides DefaultThreadURLFormat.
	URLFormat string
	// Now overrides time.Now.
	Now func() time.Time
}

// Resolver groups messages into threads and classifies them.
type Resolver struct {
	source     out.MailSource
	normalizer *participant.Normalizer
	cfg        ResolverConfig
	log        zerolog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(source out.MailSource, normalizer *participant.Normalizer, cfg ResolverConfig, log zerolog.Logger) *Resolver {
	if cfg.URLFormat == "" {
		cfg.URLFormat = DefaultThreadURLFormat
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Resolver{
		source:     source,
		normalizer: normalizer,
		cfg:        cfg,
		log:        log,
	}
}

// GroupByThread groups messages by provider thread id, returning keys in
// first-seen order. Messages without a thread id are skipped.
func GroupByThread(messages []out.RawMessage) ([]string, map[string][]out.RawMessage) {
	order := make([]string, 0)
	groups := make(map[string][]out.RawMessage)
	for _, m := range messages {
		if m.ThreadID == "" {
			continue
		}
		if _, ok := groups[m.ThreadID]; !ok {
			order = append(order, m.ThreadID)
		}
		groups[m.ThreadID] = append(groups[m.ThreadID], m)
	}
	return order, groups
}

// Partition splits thread ids into those absent from and present in existing.
func Partition(ids []string, existing map[string]struct{}) (newIDs, existingIDs []string) {
	for _, id := range ids {
		if _, ok := existing[id]; ok {
			existingIDs = append(existingIDs, id)
		} else {
			newIDs = append(newIDs, id)
		}
	}
	return newIDs, existingIDs
}

// Resolve fetches the detail of every thread referenced by messages and
// builds thread drafts. Per-thread failures are recorded in Dropped.
func (r *Resolver) Resolve(ctx context.Context, messages []out.RawMessage, snap Snapshot) *Resolution {
	order, _ := GroupByThread(messages)
	newIDs, existingIDs := Partition(order, snap.ThreadIDs)

	res := &Resolution{}
	for _, id := range append(newIDs, existingIDs...) {
		if ctx.Err() != nil {
			res.Dropped = append(res.Dropped, DroppedThread{ThreadID: id, Reason: ctx.Err().Error()})
			continue
		}

		rt, err := r.ResolveThread(ctx, id)
		if err != nil {
			r.log.Warn().Err(err).Str("thread_id", id).Msg("dropping thread")
			res.Dropped = append(res.Dropped, DroppedThread{ThreadID: id, Reason: err.Error()})
			continue
		}

		rt.KnownByID = snap.hasThread(id)
		rt.SignatureKnown = snap.hasSignature(rt.Thread.ParticipantSignature)
		if rt.KnownByID {
			res.Existing = append(res.Existing, rt)
		} else {
			res.New = append(res.New, rt)
		}
	}
	return res
}

// ResolveThread fetches one thread and builds its draft.
func (r *Resolver) ResolveThread(ctx context.Context, threadID string) (*ResolvedThread, error) {
	raw, err := r.source.GetThreadDetail(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("get thread detail: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("thread %s not returned", threadID)
	}
	if raw.ID == "" {
		raw.ID = threadID
	}
	return r.BuildThread(raw)
}

// BuildThread converts provider thread detail into a thread draft with its
// messages. It fails when the thread has no usable messages.
func (r *Resolver) BuildThread(raw *out.RawThread) (*ResolvedThread, error) {
	now := r.cfg.Now().UTC()

	var (
		msgs         []*domain.SponsorMessage
		participants []string
		subject      string
		first, last  time.Time
		anyDate      bool
	)

	for i := range raw.Messages {
		m := &raw.Messages[i]
		if m.ID == "" {
			continue
		}

		for _, key := range []string{out.HeaderFrom, out.HeaderTo, out.HeaderCc} {
			participants = append(participants, participant.SplitAddressList(m.Header(key))...)
		}
		if subject == "" {
			subject = strings.TrimSpace(m.Header(out.HeaderSubject))
		}

		date := ParseMessageDate(m.Header(out.HeaderDate))
		if date.Valid {
			if !anyDate || date.Time.Before(first) {
				first = date.Time
			}
			if !anyDate || date.Time.After(last) {
				last = date.Time
			}
			anyDate = true
		}

		msgs = append(msgs, r.buildMessage(m, date.OrNow(now)))
	}

	if len(msgs) == 0 {
		return nil, fmt.Errorf("thread %s has no resolvable messages", raw.ID)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	if !anyDate {
		first, last = now, now
	}

	keys := r.normalizer.NormalizeSet(participants)
	thread := &domain.SponsorThread{
		ProviderThreadID:     raw.ID,
		Subject:              subject,
		Participants:         keys,
		ParticipantSignature: participant.Signature(keys),
		FirstMessageAt:       first,
		LastMessageAt:        last,
		MessageCount:         len(msgs),
		ThreadURL:            r.ThreadURL(raw.ID),
		Status:               domain.ThreadStatusNew,
	}

	return &ResolvedThread{Thread: thread, Messages: msgs}, nil
}

func (r *Resolver) buildMessage(m *out.RawMessage, receivedAt time.Time) *domain.SponsorMessage {
	senderName, senderEmail := participant.Parse(m.Header(out.HeaderFrom))

	var recipients []string
	for _, key := range []string{out.HeaderTo, out.HeaderCc} {
		recipients = append(recipients, participant.SplitAddressList(m.Header(key))...)
	}

	body := m.Body
	if body == "" {
		body = m.Snippet
	}

	return &domain.SponsorMessage{
		ProviderMessageID: m.ID,
		SenderEmail:       senderEmail,
		SenderName:        senderName,
		Recipients:        recipients,
		Subject:           m.Header(out.HeaderSubject),
		BodyText:          body,
		Snippet:           m.Snippet,
		ReceivedAt:        receivedAt,
		IsFromOwner:       r.normalizer.IsOwnerEmail(senderEmail),
	}
}

// ThreadURL returns the web link for a provider thread.
func (r *Resolver) ThreadURL(threadID string) string {
	return fmt.Sprintf(r.cfg.URLFormat, r.cfg.AccountIndex, threadID)
}

// =============================================================================
// Query
// =============================================================================

// BuildQuery builds a provider search query matching any keyword in the
// subject after start, e.g. `(subject:"sponsor" OR subject:"partner") after:2025/07/14`.
func BuildQuery(keywords []string, start time.Time) string {
	parts := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(strings.ReplaceAll(k, `"`, ""))
		if k == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf(`subject:"%s"`, k))
	}

	var q string
	if len(parts) > 0 {
		q = "(" + strings.Join(parts, " OR ") + ")"
	}
	if !start.IsZero() {
		if q != "" {
			q += " "
		}
		q += "after:" + start.Format("2006/01/02")
	}
	return q
}
