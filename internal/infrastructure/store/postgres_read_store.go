package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/example/ec-checkout/internal/readmodel"
)

const readCheckoutsSchema = `
CREATE TABLE IF NOT EXISTS read_checkouts (
	id          TEXT PRIMARY KEY,
	customer_id TEXT        NOT NULL,
	state       TEXT        NOT NULL,
	data        JSONB       NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresReadStore implements ReadStoreInterface for the checkout read model.
// Only CollectionCheckouts is persisted; other collections are ignored.
type PostgresReadStore struct {
	db *sql.DB
	mu sync.Mutex // serializes Update's read-modify-write
}

// NewPostgresReadStore creates a new PostgreSQL-based read store
func NewPostgresReadStore(db *sql.DB) *PostgresReadStore {
	return &PostgresReadStore{db: db}
}

// EnsureSchema creates the read_checkouts table when missing
func (rs *PostgresReadStore) EnsureSchema(ctx context.Context) error {
	if _, err := rs.db.ExecContext(ctx, readCheckoutsSchema); err != nil {
		return fmt.Errorf("create read_checkouts: %w", err)
	}
	return nil
}

// Set stores a read model
func (rs *PostgresReadStore) Set(collection, id string, data any) {
	if collection != CollectionCheckouts {
		return
	}
	c, ok := data.(*readmodel.CheckoutReadModel)
	if !ok {
		log.Printf("[PostgresReadStore] Unexpected type %T for %s", data, collection)
		return
	}
	if err := rs.setCheckout(c); err != nil {
		log.Printf("[PostgresReadStore] Error setting checkout %s: %v", id, err)
	}
}

// Get retrieves a read model by id
func (rs *PostgresReadStore) Get(collection, id string) (any, bool) {
	if collection != CollectionCheckouts {
		return nil, false
	}
	c, err := rs.getCheckout(id)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("[PostgresReadStore] Error getting checkout %s: %v", id, err)
		}
		return nil, false
	}
	return c, true
}

// GetAll retrieves all checkouts, newest first
func (rs *PostgresReadStore) GetAll(collection string) []any {
	if collection != CollectionCheckouts {
		return nil
	}
	rows, err := rs.db.Query(`SELECT data FROM read_checkouts ORDER BY created_at DESC`)
	if err != nil {
		log.Printf("[PostgresReadStore] Error listing checkouts: %v", err)
		return nil
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			log.Printf("[PostgresReadStore] Error scanning checkout: %v", err)
			continue
		}
		var c readmodel.CheckoutReadModel
		if err := json.Unmarshal(raw, &c); err != nil {
			log.Printf("[PostgresReadStore] Error decoding checkout: %v", err)
			continue
		}
		out = append(out, &c)
	}
	return out
}

// Delete removes a read model
func (rs *PostgresReadStore) Delete(collection, id string) {
	if collection != CollectionCheckouts {
		return
	}
	if _, err := rs.db.Exec(`DELETE FROM read_checkouts WHERE id = $1`, id); err != nil {
		log.Printf("[PostgresReadStore] Error deleting checkout %s: %v", id, err)
	}
}

// Update modifies a read model using an update function
func (rs *PostgresReadStore) Update(collection, id string, updateFn func(current any) any) bool {
	if collection != CollectionCheckouts {
		return false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	current, err := rs.getCheckout(id)
	if err != nil {
		if err != sql.ErrNoRows {
			log.Printf("[PostgresReadStore] Error loading checkout %s: %v", id, err)
		}
		return false
	}
	updated, ok := updateFn(current).(*readmodel.CheckoutReadModel)
	if !ok {
		return false
	}
	if err := rs.setCheckout(updated); err != nil {
		log.Printf("[PostgresReadStore] Error updating checkout %s: %v", id, err)
		return false
	}
	return true
}

func (rs *PostgresReadStore) setCheckout(c *readmodel.CheckoutReadModel) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = rs.db.Exec(`
		INSERT INTO read_checkouts (id, customer_id, state, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			customer_id = EXCLUDED.customer_id,
			state = EXCLUDED.state,
			data = EXCLUDED.data,
			created_at = EXCLUDED.created_at,
			updated_at = NOW()
	`, c.ID, c.CustomerID, c.State, data, c.CreatedAt)
	return err
}

func (rs *PostgresReadStore) getCheckout(id string) (*readmodel.CheckoutReadModel, error) {
	var raw []byte
	if err := rs.db.QueryRow(`SELECT data FROM read_checkouts WHERE id = $1`, id).Scan(&raw); err != nil {
		return nil, err
	}
	var c readmodel.CheckoutReadModel
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
