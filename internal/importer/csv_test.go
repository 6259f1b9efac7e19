package importer_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dnovak/invoice-finder/internal/importer"
	"github.com/dnovak/invoice-finder/internal/model"
	"github.com/dnovak/invoice-finder/internal/store"
	"github.com/dnovak/invoice-finder/tests/testutil"
)

const statementCSV = `Datum izvršenja,Primatelj,Opis transakcije,Ukupan iznos
15.01.2025,ACME d.o.o.,hosting usluge,12.50
16.01.2025,Telekom,pretplata,25.00
,,,
17.01.2025,,uplata gotovine,100.00
`

func TestImportCSV(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	if err := s.CreateVendor(ctx, model.Vendor{
		ID:        "v-acme",
		Name:      "ACME d.o.o.",
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("CreateVendor: %v", err)
	}

	im := importer.New(s, nil)
	summary, err := im.ImportCSV(ctx, strings.NewReader(statementCSV), "statement.csv", "01", "2025")
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}

	// The all-empty row is dropped; the description-only row is kept.
	if summary.TransactionCount != 3 {
		t.Fatalf("TransactionCount = %d, want 3", summary.TransactionCount)
	}

	txs, err := s.GetTransactions(ctx, store.TransactionFilter{BatchID: &summary.BatchID})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("stored %d transactions, want 3", len(txs))
	}

	first := txs[0]
	if first.Vendor != "ACME d.o.o." || first.DateText != "15.01.2025" || first.Amount != "12.50" {
		t.Errorf("first transaction = %+v", first)
	}
	if first.Status != model.StatusPending {
		t.Errorf("first transaction status = %s, want pending", first.Status)
	}
	if first.VendorID != "v-acme" {
		t.Errorf("first transaction VendorID = %q, want v-acme", first.VendorID)
	}
	if txs[1].VendorID != "" {
		t.Errorf("unmatched vendor got VendorID %q", txs[1].VendorID)
	}

	last := txs[2]
	if last.Vendor != "" || last.Description != "uplata gotovine" {
		t.Errorf("description-only transaction = %+v", last)
	}

	batches, err := s.GetBatches(ctx)
	if err != nil {
		t.Fatalf("GetBatches: %v", err)
	}
	if len(batches) != 1 {
		t.Fatalf("got %d batches, want 1", len(batches))
	}
	b := batches[0]
	if b.Filename != "statement.csv" || b.Month != "01" || b.Year != "2025" {
		t.Errorf("batch = %+v", b)
	}
	if b.TransactionCount != 3 {
		t.Errorf("batch TransactionCount = %d, want 3", b.TransactionCount)
	}
}

func TestImportCSV_ColumnAliases(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	csvText := "Datum,Naziv,Opis,Iznos\n2025-02-01,Beta obrt,najam opreme,80.00\n"

	im := importer.New(s, nil)
	summary, err := im.ImportCSV(ctx, strings.NewReader(csvText), "alt.csv", "02", "2025")
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}
	if summary.TransactionCount != 1 {
		t.Fatalf("TransactionCount = %d, want 1", summary.TransactionCount)
	}

	txs, err := s.GetTransactions(ctx, store.TransactionFilter{BatchID: &summary.BatchID})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	tx := txs[0]
	if tx.DateText != "2025-02-01" || tx.Vendor != "Beta obrt" || tx.Description != "najam opreme" || tx.Amount != "80.00" {
		t.Errorf("transaction = %+v", tx)
	}
}

func TestImportCSV_Windows1250Statement(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	// "Primatelj" header plus a vendor containing š (0x9A) and č (0xE8)
	// in Windows-1250.
	raw := []byte("Datum,Primatelj,Opis,Iznos\n15.01.2025,")
	raw = append(raw, 'P', 'e', 0x9A, 0xE8, 'e', 'n', 'k', 'o')
	raw = append(raw, []byte(",usluge,10.00\n")...)

	im := importer.New(s, nil)
	summary, err := im.ImportCSV(ctx, strings.NewReader(string(raw)), "cp1250.csv", "01", "2025")
	if err != nil {
		t.Fatalf("ImportCSV: %v", err)
	}

	txs, err := s.GetTransactions(ctx, store.TransactionFilter{BatchID: &summary.BatchID})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("stored %d transactions, want 1", len(txs))
	}
	if txs[0].Vendor != "Peščenko" {
		t.Errorf("Vendor = %q, want %q", txs[0].Vendor, "Peščenko")
	}
}

func TestImportCSV_EmptyInput(t *testing.T) {
	s := testutil.NewTestStore(t)

	im := importer.New(s, nil)
	if _, err := im.ImportCSV(context.Background(), strings.NewReader(""), "empty.csv", "01", "2025"); err == nil {
		t.Error("importing an empty file should fail on the missing header")
	}
}
