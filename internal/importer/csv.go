package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dnovak/invoice-finder/internal/model"
	"github.com/dnovak/invoice-finder/internal/store"
)

// Column aliases seen across bank statement exports. The first matching
// header wins.
var (
	dateColumns = []string{
		"Datum izvršenja", "Datum izvrsenja",
		"Datum knjiženja", "Datum knjizenja",
		"Datum",
	}
	vendorColumns = []string{
		"Primatelj", "Naziv", "Naziv primatelja",
	}
	descriptionColumns = []string{
		"Opis transakcije", "Opis transa", "Opis", "Napomena",
	}
	amountColumns = []string{
		"Ukupan iznos", "Ukupan izn", "Iznos", "Iznos transakcije",
	}
)

// Summary reports the outcome of one statement import.
type Summary struct {
	BatchID          string
	TransactionCount int
}

// Importer reads bank-statement CSV exports into the transaction store.
type Importer struct {
	store  store.Store
	logger *slog.Logger
}

// New creates an Importer. A nil logger falls back to slog.Default.
func New(s store.Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: s, logger: logger}
}

// ImportCSV parses a statement export and stores its rows as pending
// transactions grouped under a new batch. Statement exports arrive in a
// mix of encodings; DecodeStatement handles the fallback. Rows with
// neither a vendor nor a description are skipped. Each row is matched
// against the stored vendors so known payees are linked immediately.
func (im *Importer) ImportCSV(ctx context.Context, r io.Reader, filename, month, year string) (*Summary, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}

	text, err := DecodeStatement(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header of %s: %w", filename, err)
	}
	im.logger.Info("importing statement", "file", filename, "columns", header)

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(name)] = i
	}
	field := func(record []string, aliases []string) string {
		for _, alias := range aliases {
			idx, ok := columns[alias]
			if !ok || idx >= len(record) {
				continue
			}
			if v := strings.TrimSpace(record[idx]); v != "" {
				return v
			}
		}
		return ""
	}

	vendors, err := im.store.GetVendors(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading vendors: %w", err)
	}

	batch := model.Batch{
		ID:        uuid.New().String(),
		Filename:  filename,
		Month:     month,
		Year:      year,
		CreatedAt: time.Now().UTC(),
	}

	var transactions []model.Transaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading row of %s: %w", filename, err)
		}

		vendor := field(record, vendorColumns)
		description := field(record, descriptionColumns)
		if vendor == "" && description == "" {
			continue
		}

		t := model.Transaction{
			ID:          uuid.New().String(),
			BatchID:     batch.ID,
			DateText:    field(record, dateColumns),
			Vendor:      vendor,
			Description: description,
			Amount:      field(record, amountColumns),
			Status:      model.StatusPending,
			CreatedAt:   time.Now().UTC(),
		}
		if matched := MatchVendor(vendor, description, vendors); matched != nil {
			t.VendorID = matched.ID
		}
		transactions = append(transactions, t)
	}

	batch.TransactionCount = len(transactions)
	if err := im.store.InsertBatch(ctx, batch, transactions); err != nil {
		return nil, err
	}

	im.logger.Info("statement imported", "batch", batch.ID, "transactions", len(transactions))
	return &Summary{BatchID: batch.ID, TransactionCount: len(transactions)}, nil
}
