package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-imap/v2"
)

// DateWindow bounds a search to messages received on or after Since and
// before Before, per IMAP SINCE/BEFORE semantics.
type DateWindow struct {
	Since  time.Time
	Before time.Time
}

// Candidate is one message hit returned by Search. UID identity is scoped
// to this session's current folder selection; UIDs must not be cached
// across sessions.
type Candidate struct {
	UID     imap.UID
	Subject string
	From    string

	// Date is the message's envelope date, zero when the message
	// carried no parseable Date header.
	Date time.Time
}

const (
	// perQueryLimit caps how many hits a single query strategy
	// contributes.
	perQueryLimit = 10

	// searchLimit caps the merged result set of the whole cascade.
	searchLimit = 20
)

// searchHeaders are the query strategies, run in order: subject match,
// then sender match.
var searchHeaders = []string{"Subject", "From"}

// querier issues one UID SEARCH strategy against the selected folder.
// Session.uidSearch is the production implementation.
type querier func(headerKey, term string, window *DateWindow) ([]imap.UID, error)

// Search runs the multi-strategy search cascade for one phrase. The
// phrase is sanitized first (ErrNoSearchableTerm when nothing usable
// remains), then subject and sender queries run against the selected
// folder, each bounded by window when present. The merged cascade result
// is truncated to its most recent hits before the per-message header
// fetch; a fetch failure drops just that message.
func (s *Session) Search(ctx context.Context, phrase string, window *DateWindow, folder string) ([]Candidate, error) {
	term, err := SanitizeTerm(phrase)
	if err != nil {
		s.logger.Warn("could not build a safe search term", "phrase", phrase)
		return nil, err
	}

	if err := s.selectFolder(folder); err != nil {
		return nil, err
	}

	s.logger.Info("searching mailbox", "term", term, "phrase", phrase)

	uids, err := cascadeUIDs(ctx, s.logger, s.uidSearch, term, window)
	if err != nil {
		return nil, err
	}

	uids = tailUIDs(uids, searchLimit)
	s.logger.Info("search finished", "term", term, "hits", len(uids))

	return s.fetchCandidates(ctx, uids)
}

// cascadeUIDs runs the query strategies in order for one term.
// Per-strategy results are truncated to their most recent hits and
// merged, deduplicating by UID in first-seen order. A failing strategy
// is logged and contributes zero hits. A windowed cascade that comes up
// empty is retried once without the date bound to widen recall.
func cascadeUIDs(ctx context.Context, logger *slog.Logger, query querier, term string, window *DateWindow) ([]imap.UID, error) {
	var uids []imap.UID
	seen := make(map[imap.UID]bool)

	run := func(w *DateWindow) error {
		for _, header := range searchHeaders {
			if err := ctx.Err(); err != nil {
				return err
			}
			found, err := query(header, term, w)
			if err != nil {
				logger.Error("search query failed", "header", header, "term", term, "error", err)
				continue
			}
			for _, uid := range tailUIDs(found, perQueryLimit) {
				if !seen[uid] {
					seen[uid] = true
					uids = append(uids, uid)
				}
			}
		}
		return nil
	}

	if err := run(window); err != nil {
		return nil, err
	}

	// Recall widening: a date-bounded cascade with no hits may just have
	// an invoice dated outside the window, so retry unbounded.
	if len(uids) == 0 && window != nil {
		if err := run(nil); err != nil {
			return nil, err
		}
	}

	return uids, nil
}

// uidSearch issues a single UID SEARCH for term in the given header,
// date-bounded when window is non-nil.
func (s *Session) uidSearch(headerKey, term string, window *DateWindow) ([]imap.UID, error) {
	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: headerKey, Value: term}},
	}
	if window != nil {
		criteria.Since = window.Since
		criteria.Before = window.Before
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("%s search for %q: %w", headerKey, term, err)
	}
	return data.AllUIDs(), nil
}

// fetchCandidates fetches envelope data for each UID in order. A message
// that fails to fetch or parse is dropped, not propagated.
func (s *Session) fetchCandidates(ctx context.Context, uids []imap.UID) ([]Candidate, error) {
	candidates := make([]Candidate, 0, len(uids))
	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			return candidates, err
		}
		cand, err := s.fetchEnvelope(uid)
		if err != nil {
			s.logger.Error("fetching message headers", "uid", uid, "error", err)
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// fetchEnvelope fetches the decoded subject, sender, and date of one
// message.
func (s *Session) fetchEnvelope(uid imap.UID) (Candidate, error) {
	fetchCmd := s.client.Fetch(imap.UIDSetNum(uid), &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	})

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return Candidate{}, fmt.Errorf("message %d not found", uid)
	}

	buf, err := msg.Collect()
	if err != nil {
		_ = fetchCmd.Close()
		return Candidate{}, fmt.Errorf("collecting message %d: %w", uid, err)
	}

	cand := Candidate{UID: uid}
	if buf.Envelope != nil {
		cand.Subject = buf.Envelope.Subject
		cand.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			cand.From = formatAddress(buf.Envelope.From[0])
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return Candidate{}, fmt.Errorf("closing fetch for %d: %w", uid, err)
	}
	return cand, nil
}

// formatAddress renders an envelope address the way it appears in a From
// header, so substring matching sees both display name and address.
func formatAddress(addr imap.Address) string {
	if addr.Name != "" {
		return fmt.Sprintf("%s <%s>", addr.Name, addr.Addr())
	}
	return addr.Addr()
}

// tailUIDs returns the last n elements of uids. SEARCH returns ascending
// IDs, so the tail holds the most recent messages.
func tailUIDs(uids []imap.UID, n int) []imap.UID {
	if len(uids) <= n {
		return uids
	}
	return uids[len(uids)-n:]
}
