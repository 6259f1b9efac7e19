package model

import "time"

// Transaction status lifecycle. A transaction starts as pending, moves to
// found or manual after a batch search, and to downloaded once its invoice
// attachment has been fetched and stored. A user override may set any
// transaction back to manual.
const (
	StatusPending    = "pending"
	StatusFound      = "found"
	StatusManual     = "manual"
	StatusDownloaded = "downloaded"
)

// Transaction is a single imported bank-statement row to be matched
// against mailbox messages.
type Transaction struct {
	// ID is the internal unique identifier for this transaction.
	ID string `db:"id" json:"id"`

	// BatchID groups transactions imported from the same statement file.
	BatchID string `db:"batch_id" json:"batch_id"`

	// DateText is the execution date exactly as it appeared in the
	// statement. It is kept as text because statements mix formats;
	// parsing happens at match time.
	DateText string `db:"date_text" json:"date_text"`

	// Vendor is the payee/recipient name from the statement.
	Vendor string `db:"vendor" json:"vendor"`

	// Description is the free-form transaction description.
	Description string `db:"description" json:"description"`

	// Amount is the transaction amount as text, unparsed.
	Amount string `db:"amount" json:"amount"`

	// Status is one of the Status* constants.
	Status string `db:"status" json:"status"`

	// Confidence is the match confidence recorded by the last batch
	// search, 0 when no qualifying match was found.
	Confidence int `db:"confidence" json:"confidence"`

	// BestSubject is the subject of the best-matching message, kept as
	// provenance for a found status.
	BestSubject string `db:"best_subject" json:"best_subject"`

	// InvoiceFilename and InvoicePath are set once an attachment has
	// been downloaded for this transaction.
	InvoiceFilename string `db:"invoice_filename" json:"invoice_filename"`
	InvoicePath     string `db:"invoice_path" json:"invoice_path"`

	// VendorID references a matched vendor record, empty when the
	// importer could not match one.
	VendorID string `db:"vendor_id" json:"vendor_id"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Vendor is a user-maintained payee the importer matches transactions
// against.
type Vendor struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`

	// Keywords are extra phrases that identify this vendor in a
	// transaction description. Stored as a JSON array.
	Keywords []string `db:"-" json:"keywords"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Batch records one imported statement file.
type Batch struct {
	ID               string    `db:"id" json:"id"`
	Filename         string    `db:"filename" json:"filename"`
	Month            string    `db:"month" json:"month"`
	Year             string    `db:"year" json:"year"`
	TransactionCount int       `db:"transaction_count" json:"transaction_count"`
	DownloadedCount  int       `db:"downloaded_count" json:"downloaded_count"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
