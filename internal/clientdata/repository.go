// Package clientdata provides persistent caching for market data client responses.
// Entries are msgpack blobs with expiration timestamps for cache-first behavior.
package clientdata

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/advisor/internal/database"
)

const (
	// TablePriceHistory holds one domain.PriceSeries per fund
	TablePriceHistory = "price_history"
	// TableFundMetadata holds display metadata per fund
	TableFundMetadata = "fund_metadata"
)

// AllTables lists all tables in the cache database for cleanup operations.
var AllTables = []string{
	TablePriceHistory,
	TableFundMetadata,
}

var validTables = func() map[string]bool {
	m := make(map[string]bool, len(AllTables))
	for _, t := range AllTables {
		m[t] = true
	}
	return m
}()

// Repository provides cache operations for client data.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new client data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// validateTable ensures the table name is in our allowed list.
// This prevents SQL injection through table names.
func validateTable(table string) error {
	if !validTables[table] {
		return fmt.Errorf("invalid table name: %s", table)
	}
	return nil
}

// Store saves data with expiration = now + ttl as a single upsert in a transaction,
// so readers see either the previous entry or the new one.
func (r *Repository) Store(table, key string, data interface{}, ttl time.Duration) error {
	if err := validateTable(table); err != nil {
		return err
	}

	blob, err := msgpack.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	now := r.now()
	query := fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (fund, data, fetched_at, expires_at) VALUES (?, ?, ?, ?)",
		table,
	)

	err = database.WithTransaction(r.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(query, key, blob, now.Unix(), now.Add(ttl).Unix())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to store data in %s: %w", table, err)
	}

	return nil
}

// GetIfFresh decodes the entry into out only if expires_at > now.
// Returns false, nil if the key doesn't exist or data is expired.
// Use Get() to retrieve stale data as a fallback when live fetches fail.
func (r *Repository) GetIfFresh(table, key string, out interface{}) (bool, error) {
	if err := validateTable(table); err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE fund = ? AND expires_at > ?", table)
	return r.load(table, query, out, key, r.now().Unix())
}

// Get decodes the entry into out regardless of expiration status.
// Returns false, nil if the key doesn't exist.
func (r *Repository) Get(table, key string, out interface{}) (bool, error) {
	if err := validateTable(table); err != nil {
		return false, err
	}

	query := fmt.Sprintf("SELECT data FROM %s WHERE fund = ?", table)
	return r.load(table, query, out, key)
}

func (r *Repository) load(table, query string, out interface{}, args ...interface{}) (bool, error) {
	var blob []byte
	err := r.db.QueryRow(query, args...).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get data from %s: %w", table, err)
	}

	if err := msgpack.Unmarshal(blob, out); err != nil {
		return false, fmt.Errorf("failed to decode cached entry in %s: %w", table, err)
	}
	return true, nil
}

// FetchedAt reports when the entry was stored; zero time if absent.
func (r *Repository) FetchedAt(table, key string) (time.Time, error) {
	if err := validateTable(table); err != nil {
		return time.Time{}, err
	}

	var ts int64
	err := r.db.QueryRow(fmt.Sprintf("SELECT fetched_at FROM %s WHERE fund = ?", table), key).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get fetched_at from %s: %w", table, err)
	}
	return time.Unix(ts, 0), nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(table, key string) error {
	if err := validateTable(table); err != nil {
		return err
	}

	if _, err := r.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE fund = ?", table), key); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}

	return nil
}

// DeleteExpired removes all rows where expires_at < now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired(table string) (int64, error) {
	if err := validateTable(table); err != nil {
		return 0, err
	}

	result, err := r.db.Exec(fmt.Sprintf("DELETE FROM %s WHERE expires_at < ?", table), r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired from %s: %w", table, err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for %s: %w", table, err)
	}

	return deleted, nil
}

// DeleteAllExpired removes all expired entries from all tables.
// Returns a map of table name to number of rows deleted.
func (r *Repository) DeleteAllExpired() (map[string]int64, error) {
	results := make(map[string]int64)

	for _, table := range AllTables {
		deleted, err := r.DeleteExpired(table)
		if err != nil {
			return results, err
		}
		results[table] = deleted
	}

	return results, nil
}

// TableStats counts the entries of one table
type TableStats struct {
	Entries int64 `json:"entries"`
	Fresh   int64 `json:"fresh"`
	Expired int64 `json:"expired"`
}

// Stats returns entry counts for every table
func (r *Repository) Stats() (map[string]TableStats, error) {
	now := r.now().Unix()
	out := make(map[string]TableStats, len(AllTables))

	for _, table := range AllTables {
		var s TableStats
		query := fmt.Sprintf("SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at > ? THEN 1 ELSE 0 END), 0) FROM %s", table)
		if err := r.db.QueryRow(query, now).Scan(&s.Entries, &s.Fresh); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		s.Expired = s.Entries - s.Fresh
		out[table] = s
	}

	return out, nil
}
