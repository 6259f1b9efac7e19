package mailbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func equalUIDs(got, want []imap.UID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestCascadeUIDs_DedupesAcrossStrategies(t *testing.T) {
	query := func(header, term string, w *DateWindow) ([]imap.UID, error) {
		switch header {
		case "Subject":
			return []imap.UID{1, 2, 3}, nil
		case "From":
			return []imap.UID{2, 3, 4}, nil
		}
		return nil, nil
	}

	got, err := cascadeUIDs(context.Background(), discardLogger(), query, "acme", nil)
	if err != nil {
		t.Fatalf("cascadeUIDs error = %v", err)
	}
	// First-seen order: the subject hits come first, the sender strategy
	// only adds what the subject strategy missed.
	if want := []imap.UID{1, 2, 3, 4}; !equalUIDs(got, want) {
		t.Errorf("cascadeUIDs = %v, want %v", got, want)
	}
}

func TestCascadeUIDs_PerStrategyTail(t *testing.T) {
	var subject []imap.UID
	for i := 1; i <= 15; i++ {
		subject = append(subject, imap.UID(i))
	}
	query := func(header, term string, w *DateWindow) ([]imap.UID, error) {
		if header == "Subject" {
			return subject, nil
		}
		return nil, nil
	}

	got, err := cascadeUIDs(context.Background(), discardLogger(), query, "acme", nil)
	if err != nil {
		t.Fatalf("cascadeUIDs error = %v", err)
	}
	// Only the 10 most recent hits of the overlong strategy survive.
	if want := []imap.UID{6, 7, 8, 9, 10, 11, 12, 13, 14, 15}; !equalUIDs(got, want) {
		t.Errorf("cascadeUIDs = %v, want %v", got, want)
	}
}

func TestCascadeUIDs_EmptyWindowedRetriesUnbounded(t *testing.T) {
	window := &DateWindow{
		Since:  time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC),
		Before: time.Date(2025, time.January, 21, 0, 0, 0, 0, time.UTC),
	}

	var windows []*DateWindow
	query := func(header, term string, w *DateWindow) ([]imap.UID, error) {
		windows = append(windows, w)
		if w != nil {
			return nil, nil
		}
		return []imap.UID{9}, nil
	}

	got, err := cascadeUIDs(context.Background(), discardLogger(), query, "acme", window)
	if err != nil {
		t.Fatalf("cascadeUIDs error = %v", err)
	}
	if want := []imap.UID{9}; !equalUIDs(got, want) {
		t.Errorf("cascadeUIDs = %v, want %v", got, want)
	}

	// Both strategies run windowed first, then both again unbounded.
	if len(windows) != 4 {
		t.Fatalf("query ran %d times, want 4", len(windows))
	}
	for i, w := range windows[:2] {
		if w == nil {
			t.Errorf("query %d ran unbounded, want windowed", i)
		}
	}
	for i, w := range windows[2:] {
		if w != nil {
			t.Errorf("retry query %d still windowed", i)
		}
	}
}

func TestCascadeUIDs_NoRetryWhenWindowedHits(t *testing.T) {
	window := &DateWindow{
		Since:  time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC),
		Before: time.Date(2025, time.January, 21, 0, 0, 0, 0, time.UTC),
	}

	calls := 0
	query := func(header, term string, w *DateWindow) ([]imap.UID, error) {
		calls++
		return []imap.UID{5}, nil
	}

	if _, err := cascadeUIDs(context.Background(), discardLogger(), query, "acme", window); err != nil {
		t.Fatalf("cascadeUIDs error = %v", err)
	}
	if calls != 2 {
		t.Errorf("query ran %d times, want 2", calls)
	}
}

func TestCascadeUIDs_NoRetryWhenUnbounded(t *testing.T) {
	calls := 0
	query := func(header, term string, w *DateWindow) ([]imap.UID, error) {
		calls++
		return nil, nil
	}

	got, err := cascadeUIDs(context.Background(), discardLogger(), query, "acme", nil)
	if err != nil {
		t.Fatalf("cascadeUIDs error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("cascadeUIDs = %v, want no hits", got)
	}
	if calls != 2 {
		t.Errorf("query ran %d times, want 2", calls)
	}
}

func TestCascadeUIDs_FailedStrategyContributesNothing(t *testing.T) {
	query := func(header, term string, w *DateWindow) ([]imap.UID, error) {
		if header == "Subject" {
			return nil, errors.New("SEARCH failed")
		}
		return []imap.UID{7, 8}, nil
	}

	got, err := cascadeUIDs(context.Background(), discardLogger(), query, "acme", nil)
	if err != nil {
		t.Fatalf("cascadeUIDs error = %v", err)
	}
	if want := []imap.UID{7, 8}; !equalUIDs(got, want) {
		t.Errorf("cascadeUIDs = %v, want %v", got, want)
	}
}

func TestCascadeUIDs_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	query := func(header, term string, w *DateWindow) ([]imap.UID, error) {
		calls++
		return nil, nil
	}

	if _, err := cascadeUIDs(ctx, discardLogger(), query, "acme", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("cascadeUIDs error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("query ran %d times after cancellation", calls)
	}
}

func TestTailUIDs(t *testing.T) {
	tests := []struct {
		name string
		uids []imap.UID
		n    int
		want []imap.UID
	}{
		{name: "shorter than limit", uids: []imap.UID{1, 2, 3}, n: 10, want: []imap.UID{1, 2, 3}},
		{name: "exactly limit", uids: []imap.UID{1, 2, 3}, n: 3, want: []imap.UID{1, 2, 3}},
		{name: "truncated to tail", uids: []imap.UID{1, 2, 3, 4, 5}, n: 2, want: []imap.UID{4, 5}},
		{name: "empty", uids: nil, n: 5, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tailUIDs(tt.uids, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("tailUIDs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("tailUIDs() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestFormatAddress(t *testing.T) {
	withName := imap.Address{Name: "ACME Billing", Mailbox: "billing", Host: "acme.com"}
	if got := formatAddress(withName); got != "ACME Billing <billing@acme.com>" {
		t.Errorf("formatAddress with name = %q", got)
	}

	bare := imap.Address{Mailbox: "billing", Host: "acme.com"}
	if got := formatAddress(bare); got != "billing@acme.com" {
		t.Errorf("formatAddress without name = %q", got)
	}
}

func TestRegionOrder(t *testing.T) {
	tests := []struct {
		name      string
		preferred string
		wantFirst string
	}{
		{name: "default keeps fixed order", preferred: "", wantFirst: "pro"},
		{name: "preferred moves first", preferred: "eu", wantFirst: "eu"},
		{name: "unknown preferred keeps fixed order", preferred: "xx", wantFirst: "pro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ordered := regionOrder(tt.preferred)
			if len(ordered) != len(regions) {
				t.Fatalf("regionOrder(%q) has %d entries, want %d", tt.preferred, len(ordered), len(regions))
			}
			if ordered[0].code != tt.wantFirst {
				t.Errorf("regionOrder(%q)[0] = %s, want %s", tt.preferred, ordered[0].code, tt.wantFirst)
			}

			seen := make(map[string]bool)
			for _, r := range ordered {
				if seen[r.code] {
					t.Errorf("regionOrder(%q) repeats %s", tt.preferred, r.code)
				}
				seen[r.code] = true
			}
		})
	}
}
