package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-imap/v2"

	"github.com/dnovak/invoice-finder/internal/mailbox"
	"github.com/dnovak/invoice-finder/internal/model"
)

// MaxBatchSize bounds how many transactions a single batch call will
// process; the rest are reported as skipped.
const MaxBatchSize = 15

const (
	maxSearchTerms      = 5
	maxDescriptionTerms = 3
	maxEnriched         = 5
	maxReported         = 3
	provenanceLimit     = 100
)

// Mailbox is the slice of session behavior the batcher needs. A
// *mailbox.Session satisfies it.
type Mailbox interface {
	Search(ctx context.Context, phrase string, window *mailbox.DateWindow, folder string) ([]mailbox.Candidate, error)
	ListAttachments(ctx context.Context, uid imap.UID, folder string) ([]mailbox.Attachment, error)
	Close()
}

// Dialer opens an authenticated mailbox session.
type Dialer func(ctx context.Context, creds mailbox.Credentials) (Mailbox, error)

// StatusStore receives the per-transaction status decisions the batcher
// makes.
type StatusStore interface {
	MarkFound(ctx context.Context, id string, confidence int, bestSubject string) error
	MarkManual(ctx context.Context, id string) error
}

// Options holds the user-tunable batch settings.
type Options struct {
	// DateRangeDays widens the search window around the transaction
	// date by this many days in each direction.
	DateRangeDays int

	// SearchAllFields derives extra search terms from the transaction
	// description.
	SearchAllFields bool

	// Folder is the mailbox folder to search; empty means INBOX.
	Folder string
}

// Result is the per-transaction outcome of a batch search.
type Result struct {
	TransactionID string
	Vendor        string
	Date          string

	// SearchTerms are the raw phrases actually queried.
	SearchTerms []string

	// Found is true when the best candidate reached FoundThreshold.
	Found      bool
	Confidence int

	// Candidates holds at most three top candidates, best first.
	Candidates []Candidate

	// TotalFound counts all PDF-bearing candidates before truncation.
	TotalFound int

	// Reason explains an empty outcome ("no searchable data", "search
	// failed"); empty when the search ran through.
	Reason string
}

// BatchReport aggregates one batch call.
type BatchReport struct {
	Results []Result
	Total   int
	Found   int
	Skipped int
}

// Batcher drives the matching pipeline over one shared mailbox session.
type Batcher struct {
	dial   Dialer
	store  StatusStore
	logger *slog.Logger
}

// NewBatcher creates a Batcher. A nil logger falls back to slog.Default.
func NewBatcher(dial Dialer, store StatusStore, logger *slog.Logger) *Batcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Batcher{dial: dial, store: store, logger: logger}
}

// MatchBatch matches each transaction against the mailbox, in input
// order, over exactly one session. A session-establishment failure is
// fatal for the whole call; everything past that degrades per
// transaction, so a result is emitted for every processed transaction.
// Context cancellation abandons the remaining transactions and returns
// the partial report alongside the context error.
func (b *Batcher) MatchBatch(ctx context.Context, creds mailbox.Credentials, transactions []model.Transaction, opts Options) (*BatchReport, error) {
	requested := len(transactions)
	if requested > MaxBatchSize {
		b.logger.Warn("batch truncated", "requested", requested, "max", MaxBatchSize)
		transactions = transactions[:MaxBatchSize]
	}

	session, err := b.dial(ctx, creds)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	report := &BatchReport{Skipped: requested - len(transactions)}
	for i := range transactions {
		if err := ctx.Err(); err != nil {
			report.Total = len(report.Results)
			return report, err
		}

		res, err := b.matchOne(ctx, session, &transactions[i], opts)
		if err != nil {
			report.Total = len(report.Results)
			return report, err
		}

		report.Results = append(report.Results, res)
		if res.Found {
			report.Found++
		}
	}

	report.Total = len(report.Results)
	return report, nil
}

// matchOne runs the pipeline for a single transaction. Errors other than
// context cancellation are folded into the result so one bad transaction
// never aborts the batch.
func (b *Batcher) matchOne(ctx context.Context, session Mailbox, tx *model.Transaction, opts Options) (Result, error) {
	res := Result{
		TransactionID: tx.ID,
		Vendor:        strings.TrimSpace(tx.Vendor),
		Date:          tx.DateText,
	}

	terms := buildSearchTerms(tx, opts.SearchAllFields)
	if len(terms) == 0 {
		res.Reason = "no searchable data"
		return res, nil
	}
	res.SearchTerms = terms

	if err := b.searchAndScore(ctx, session, tx, terms, opts, &res); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		b.logger.Error("transaction search failed", "transaction", tx.ID, "error", err)
		return Result{
			TransactionID: tx.ID,
			Vendor:        res.Vendor,
			Date:          tx.DateText,
			SearchTerms:   terms,
			Reason:        "search failed",
		}, nil
	}
	return res, nil
}

// searchAndScore performs steps: date window, cascade per term,
// attachment enrichment, PDF filter, scoring, and the status decision.
func (b *Batcher) searchAndScore(ctx context.Context, session Mailbox, tx *model.Transaction, terms []string, opts Options, res *Result) error {
	var window *mailbox.DateWindow
	txDate, hasDate := ParseTransactionDate(tx.DateText)
	if hasDate {
		window = &mailbox.DateWindow{
			Since:  txDate.AddDate(0, 0, -opts.DateRangeDays),
			Before: txDate.AddDate(0, 0, opts.DateRangeDays+1),
		}
	}

	// One cascade per term; merge across terms deduplicating by UID in
	// first-term-first order.
	var merged []mailbox.Candidate
	seen := make(map[imap.UID]bool)
	for _, term := range terms {
		hits, err := session.Search(ctx, term, window, opts.Folder)
		if err != nil {
			if errors.Is(err, mailbox.ErrNoSearchableTerm) {
				continue
			}
			return fmt.Errorf("searching for %q: %w", term, err)
		}
		for _, hit := range hits {
			if !seen[hit.UID] {
				seen[hit.UID] = true
				merged = append(merged, hit)
			}
		}
	}

	// Attachment listing is a full-message fetch, so only the first few
	// candidates are enriched.
	limit := len(merged)
	if limit > maxEnriched {
		limit = maxEnriched
	}

	var withPDF []Candidate
	for _, hit := range merged[:limit] {
		atts, err := session.ListAttachments(ctx, hit.UID, opts.Folder)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			b.logger.Error("listing attachments", "uid", hit.UID, "error", err)
			continue
		}

		cand := Candidate{Candidate: hit, Attachments: atts, HasPDF: hasPDF(atts)}
		if !cand.HasPDF {
			continue
		}
		cand.Confidence = Score(hit, res.Vendor, txDate)
		withPDF = append(withPDF, cand)
	}

	SortByConfidence(withPDF)
	res.TotalFound = len(withPDF)

	var best *Candidate
	if len(withPDF) > 0 {
		best = &withPDF[0]
		res.Confidence = best.Confidence
	}

	if best != nil && best.Confidence >= FoundThreshold {
		res.Found = true
		if err := b.store.MarkFound(ctx, tx.ID, best.Confidence, truncate(best.Subject, provenanceLimit)); err != nil {
			return fmt.Errorf("marking transaction %s found: %w", tx.ID, err)
		}
	} else {
		if err := b.store.MarkManual(ctx, tx.ID); err != nil {
			return fmt.Errorf("marking transaction %s manual: %w", tx.ID, err)
		}
	}

	if len(withPDF) > maxReported {
		withPDF = withPDF[:maxReported]
	}
	res.Candidates = withPDF
	return nil
}

// buildSearchTerms assembles up to five raw phrases for the cascade: the
// vendor name first, then up to three meaningful description words when
// searching all fields.
func buildSearchTerms(tx *model.Transaction, searchAllFields bool) []string {
	var terms []string

	vendor := strings.TrimSpace(tx.Vendor)
	if vendor != "" {
		terms = append(terms, vendor)
	}

	if searchAllFields {
		desc := strings.TrimSpace(tx.Description)
		if len(desc) > 3 {
			added := 0
			for _, word := range strings.Fields(desc) {
				if added == maxDescriptionTerms {
					break
				}
				if isMeaningfulWord(word) {
					terms = append(terms, word)
					added++
				}
			}
		}
	}

	if len(terms) > maxSearchTerms {
		terms = terms[:maxSearchTerms]
	}
	return terms
}

// isMeaningfulWord filters description tokens: short words and bare
// amounts like "1.234,56" make poor search terms.
func isMeaningfulWord(word string) bool {
	if utf8.RuneCountInString(word) <= 4 {
		return false
	}
	stripped := strings.NewReplacer(".", "", ",", "").Replace(word)
	return !isAllDigits(stripped)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func hasPDF(atts []mailbox.Attachment) bool {
	for _, a := range atts {
		if a.IsPDF {
			return true
		}
	}
	return false
}

// truncate limits s to n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
