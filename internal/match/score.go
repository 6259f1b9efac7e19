package match

import (
	"sort"
	"strings"
	"time"

	"github.com/dnovak/invoice-finder/internal/mailbox"
)

// Confidence bounds and scoring weights.
const (
	minConfidence  = 10
	maxConfidence  = 95
	baseConfidence = 50

	subjectBonus = 25
	senderBonus  = 15

	// FoundThreshold is the minimum confidence at which a transaction
	// is marked found automatically.
	FoundThreshold = 50
)

// transactionDateFormats are tried in order; the first successful parse
// wins. Day-first layouts precede the US month-first layout so ambiguous
// dates resolve day-first.
var transactionDateFormats = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"02-01-2006",
	"01/02/2006",
}

// ParseTransactionDate parses a statement date using the fixed format
// list. ok is false when no format matches.
func ParseTransactionDate(text string) (time.Time, bool) {
	text = strings.TrimSpace(text)
	for _, layout := range transactionDateFormats {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Candidate is a search hit enriched with attachment metadata and a
// confidence score.
type Candidate struct {
	mailbox.Candidate

	Attachments []mailbox.Attachment
	HasPDF      bool
	Confidence  int
}

// Score computes the match confidence of a candidate message for a
// transaction. Base 50, plus a bonus when the vendor text appears in the
// subject or sender, adjusted by how close the message date is to the
// transaction date. An unparseable date on either side contributes
// nothing. The result is clamped to [10, 95].
func Score(cand mailbox.Candidate, vendor string, txDate time.Time) int {
	confidence := baseConfidence

	vendorLower := strings.ToLower(vendor)
	if vendorMatches(strings.ToLower(cand.Subject), vendorLower) {
		confidence += subjectBonus
	}
	if vendorMatches(strings.ToLower(cand.From), vendorLower) {
		confidence += senderBonus
	}

	if !txDate.IsZero() && !cand.Date.IsZero() {
		confidence += dateProximityBonus(txDate, cand.Date)
	}

	return clampConfidence(confidence)
}

// vendorMatches reports whether the lowercased vendor name appears in
// text. Legal-form suffixes ("d.o.o.", "GmbH") rarely show up in
// subjects or sender addresses, so when the full name does not match,
// the first vendor word longer than two characters is tried instead.
func vendorMatches(text, vendor string) bool {
	if strings.Contains(text, vendor) {
		return true
	}
	for _, word := range strings.Fields(vendor) {
		if len(word) > 2 {
			return strings.Contains(text, word)
		}
	}
	return false
}

// dateProximityBonus rewards candidates dated near the transaction and
// penalizes ones more than five days away. Two to five days apart is
// neutral.
func dateProximityBonus(txDate, msgDate time.Time) int {
	diff := daysApart(txDate, msgDate)
	switch {
	case diff == 0:
		return 10
	case diff <= 1:
		return 5
	case diff > 5:
		return -10
	}
	return 0
}

// daysApart returns the absolute difference in calendar days, ignoring
// the time of day.
func daysApart(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)

	diff := int(da.Sub(db).Hours() / 24)
	if diff < 0 {
		diff = -diff
	}
	return diff
}

func clampConfidence(c int) int {
	if c > maxConfidence {
		return maxConfidence
	}
	if c < minConfidence {
		return minConfidence
	}
	return c
}

// SortByConfidence orders candidates by descending confidence. The sort
// is stable so ties keep their discovery order.
func SortByConfidence(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Confidence > cands[j].Confidence
	})
}
