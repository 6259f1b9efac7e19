package store

import (
	"context"

	"github.com/dnovak/invoice-finder/internal/model"
)

// TransactionFilter controls filtering for transaction queries.
type TransactionFilter struct {
	BatchID *string
	Status  *string
	IDs     []string
	Limit   int
}

// Store defines the persistence interface for transactions, vendors, and
// import batches. The matching engine only depends on the status-update
// subset (match.StatusStore).
type Store interface {
	// === Batches ===

	InsertBatch(ctx context.Context, batch model.Batch, transactions []model.Transaction) error
	GetBatches(ctx context.Context) ([]model.Batch, error)
	DeleteBatch(ctx context.Context, id string) error

	// === Transactions ===

	GetTransactions(ctx context.Context, filter TransactionFilter) ([]model.Transaction, error)
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	// === Status transitions ===

	MarkFound(ctx context.Context, id string, confidence int, bestSubject string) error
	MarkManual(ctx context.Context, id string) error
	MarkDownloaded(ctx context.Context, id, filename, path string) error

	// === Vendors ===

	CreateVendor(ctx context.Context, v model.Vendor) error
	GetVendors(ctx context.Context) ([]model.Vendor, error)
	UpdateVendor(ctx context.Context, v model.Vendor) error
	DeleteVendor(ctx context.Context, id string) error
}
