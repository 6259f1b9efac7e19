package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/dnovak/invoice-finder/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// PRAGMA foreign_keys is per-connection and :memory: databases are
	// per-connection too, so keep the pool at a single connection.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// InsertBatch stores a batch record together with its transactions in a
// single database transaction.
func (s *SQLiteStore) InsertBatch(
	ctx context.Context,
	batch model.Batch,
	transactions []model.Transaction,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO batches (id, filename, month, year, transaction_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		batch.ID, batch.Filename, batch.Month, batch.Year,
		len(transactions), batch.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting batch %s: %w", batch.ID, err)
	}

	const query = `
		INSERT INTO transactions (
			id, batch_id, date_text, vendor, description, amount,
			status, confidence, best_subject,
			invoice_filename, invoice_path, vendor_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing transaction insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range transactions {
		status := t.Status
		if status == "" {
			status = model.StatusPending
		}
		_, err = stmt.ExecContext(ctx,
			t.ID, batch.ID, t.DateText, t.Vendor, t.Description, t.Amount,
			status, t.Confidence, t.BestSubject,
			t.InvoiceFilename, t.InvoicePath, t.VendorID, t.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("inserting transaction %s: %w", t.ID, err)
		}
	}

	return tx.Commit()
}

// GetBatches retrieves all import batches, newest first, with their
// downloaded counts.
func (s *SQLiteStore) GetBatches(ctx context.Context) ([]model.Batch, error) {
	const query = `
		SELECT b.id, b.filename, b.month, b.year, b.transaction_count, b.created_at,
			(SELECT COUNT(*) FROM transactions t
			 WHERE t.batch_id = b.id AND t.status = 'downloaded') AS downloaded_count
		FROM batches b
		ORDER BY b.created_at DESC`

	var batches []model.Batch
	if err := s.db.SelectContext(ctx, &batches, query); err != nil {
		return nil, fmt.Errorf("querying batches: %w", err)
	}
	return batches, nil
}

// DeleteBatch removes a batch; its transactions cascade.
func (s *SQLiteStore) DeleteBatch(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM batches WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting batch %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("batch %s not found", id)
	}
	return nil
}

// GetTransactions retrieves transactions matching the provided filter,
// in import order.
func (s *SQLiteStore) GetTransactions(
	ctx context.Context,
	filter TransactionFilter,
) ([]model.Transaction, error) {
	var conditions []string
	var args []interface{}

	if filter.BatchID != nil {
		conditions = append(conditions, "batch_id = ?")
		args = append(args, *filter.BatchID)
	}
	if filter.Status != nil {
		conditions = append(conditions, "status = ?")
		args = append(args, *filter.Status)
	}
	if len(filter.IDs) > 0 {
		conditions = append(conditions, "id IN (?)")
		args = append(args, filter.IDs)
	}

	query := "SELECT * FROM transactions"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	if len(filter.IDs) > 0 {
		expanded, expandedArgs, err := sqlx.In(query, args...)
		if err != nil {
			return nil, fmt.Errorf("expanding id list: %w", err)
		}
		query = expanded
		args = expandedArgs
	}

	var transactions []model.Transaction
	if err := s.db.SelectContext(ctx, &transactions, query, args...); err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	return transactions, nil
}

// GetTransactionByID retrieves a single transaction by ID.
func (s *SQLiteStore) GetTransactionByID(
	ctx context.Context,
	id string,
) (*model.Transaction, error) {
	var t model.Transaction
	err := s.db.GetContext(ctx, &t, "SELECT * FROM transactions WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transaction %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying transaction %s: %w", id, err)
	}
	return &t, nil
}

// DeleteTransaction removes a transaction by ID.
func (s *SQLiteStore) DeleteTransaction(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting transaction %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}
	return nil
}

// MarkFound records a qualifying batch-search match: the transaction
// moves to the found status with the match confidence and the subject of
// the best candidate as provenance.
func (s *SQLiteStore) MarkFound(
	ctx context.Context,
	id string,
	confidence int,
	bestSubject string,
) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, confidence = ?, best_subject = ?
		WHERE id = ?`,
		model.StatusFound, confidence, bestSubject, id,
	)
	if err != nil {
		return fmt.Errorf("marking transaction %s found: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}
	return nil
}

// MarkManual records that no qualifying match exists and the transaction
// needs manual attention.
func (s *SQLiteStore) MarkManual(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, confidence = 0
		WHERE id = ?`,
		model.StatusManual, id,
	)
	if err != nil {
		return fmt.Errorf("marking transaction %s manual: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}
	return nil
}

// MarkDownloaded records a successfully fetched invoice attachment.
func (s *SQLiteStore) MarkDownloaded(
	ctx context.Context,
	id, filename, path string,
) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, invoice_filename = ?, invoice_path = ?
		WHERE id = ?`,
		model.StatusDownloaded, filename, path, id,
	)
	if err != nil {
		return fmt.Errorf("marking transaction %s downloaded: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("transaction %s not found", id)
	}
	return nil
}

// vendorRow is the raw database shape of a vendor; keywords are stored
// as a JSON array.
type vendorRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Keywords  string    `db:"keywords"`
	CreatedAt time.Time `db:"created_at"`
}

// CreateVendor inserts a new vendor record.
func (s *SQLiteStore) CreateVendor(ctx context.Context, v model.Vendor) error {
	keywords, err := json.Marshal(v.Keywords)
	if err != nil {
		return fmt.Errorf("marshaling keywords for vendor %s: %w", v.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO vendors (id, name, keywords, created_at)
		VALUES (?, ?, ?, ?)`,
		v.ID, v.Name, string(keywords), v.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting vendor %s: %w", v.ID, err)
	}
	return nil
}

// GetVendors retrieves all vendors ordered by name.
func (s *SQLiteStore) GetVendors(ctx context.Context) ([]model.Vendor, error) {
	var rows []vendorRow
	err := s.db.SelectContext(ctx, &rows, "SELECT * FROM vendors ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying vendors: %w", err)
	}

	vendors := make([]model.Vendor, 0, len(rows))
	for _, r := range rows {
		v := model.Vendor{ID: r.ID, Name: r.Name, CreatedAt: r.CreatedAt}
		if err := json.Unmarshal([]byte(r.Keywords), &v.Keywords); err != nil {
			return nil, fmt.Errorf("parsing keywords for vendor %s: %w", r.ID, err)
		}
		vendors = append(vendors, v)
	}
	return vendors, nil
}

// UpdateVendor replaces a vendor's name and keywords.
func (s *SQLiteStore) UpdateVendor(ctx context.Context, v model.Vendor) error {
	keywords, err := json.Marshal(v.Keywords)
	if err != nil {
		return fmt.Errorf("marshaling keywords for vendor %s: %w", v.ID, err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE vendors
		SET name = ?, keywords = ?
		WHERE id = ?`,
		v.Name, string(keywords), v.ID,
	)
	if err != nil {
		return fmt.Errorf("updating vendor %s: %w", v.ID, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("vendor %s not found", v.ID)
	}
	return nil
}

// DeleteVendor removes a vendor by ID.
func (s *SQLiteStore) DeleteVendor(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM vendors WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting vendor %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("vendor %s not found", id)
	}
	return nil
}
