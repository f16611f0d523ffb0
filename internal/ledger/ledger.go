// Package ledger is the stock-ledger collaborator: the authoritative store
// of product stock levels and intake entries. It is the only durable side
// effect of the ingestion flow.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/tokokita/stock-intake/internal/intake"
)

const (
	productBucketName = "products"
	entryBucketName   = "entries"
)

// Product is one catalog entry, keyed by its normalized name
type Product struct {
	Name      string    `json:"name"`
	Unit      string    `json:"unit"`
	Stock     float64   `json:"stock"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is one recorded stock-intake line
type Entry struct {
	ID         uint64    `json:"id"`
	Product    string    `json:"product"`
	Quantity   float64   `json:"quantity"`
	UnitPrice  float64   `json:"unit_price"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store implements the stock ledger over BoltDB
type Store struct {
	db *bbolt.DB
}

// Open opens (or creates) the ledger database at the given path
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(productBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(entryBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// productKey normalizes a product name into its catalog key
func productKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RecordIntake records a batch of intake lines as one atomic transaction.
// Lines naming a product that is not in the catalog are rejected with a
// reason; accepted lines get an entry written and the product's stock level
// bumped. A returned error means nothing was recorded.
func (s *Store) RecordIntake(ctx context.Context, lines []intake.Line) ([]intake.LineResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]intake.LineResult, 0, len(lines))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		products := tx.Bucket([]byte(productBucketName))
		entries := tx.Bucket([]byte(entryBucketName))
		now := time.Now()

		for _, line := range lines {
			key := productKey(line.Name)

			data := products.Get([]byte(key))
			if data == nil {
				results = append(results, intake.LineResult{
					ItemID:   line.ItemID,
					Accepted: false,
					Reason:   fmt.Sprintf("unknown product %q", line.Name),
				})
				continue
			}

			var product Product
			if err := json.Unmarshal(data, &product); err != nil {
				return fmt.Errorf("unmarshaling product %q: %w", key, err)
			}

			seq, err := entries.NextSequence()
			if err != nil {
				return fmt.Errorf("allocating entry id: %w", err)
			}

			entry := Entry{
				ID:         seq,
				Product:    key,
				Quantity:   line.Quantity,
				UnitPrice:  line.UnitPrice,
				RecordedAt: now,
			}
			entryData, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("marshaling entry: %w", err)
			}
			if err := entries.Put(entryKey(seq), entryData); err != nil {
				return fmt.Errorf("writing entry: %w", err)
			}

			product.Stock += line.Quantity
			product.UpdatedAt = now
			productData, err := json.Marshal(product)
			if err != nil {
				return fmt.Errorf("marshaling product: %w", err)
			}
			if err := products.Put([]byte(key), productData); err != nil {
				return fmt.Errorf("writing product: %w", err)
			}

			results = append(results, intake.LineResult{ItemID: line.ItemID, Accepted: true})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

// PutProduct adds or replaces a catalog product
func (s *Store) PutProduct(product Product) error {
	key := productKey(product.Name)
	if key == "" {
		return fmt.Errorf("product name is required")
	}
	product.Name = strings.TrimSpace(product.Name)
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(productBucketName))
		data, err := json.Marshal(product)
		if err != nil {
			return fmt.Errorf("marshaling product: %w", err)
		}
		return bucket.Put([]byte(key), data)
	})
}

// GetProduct retrieves a catalog product by name
func (s *Store) GetProduct(name string) (*Product, error) {
	var product *Product
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(productBucketName))
		data := bucket.Get([]byte(productKey(name)))
		if data == nil {
			return fmt.Errorf("product not found: %s", name)
		}
		return json.Unmarshal(data, &product)
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// ListProducts returns all catalog products
func (s *Store) ListProducts() ([]*Product, error) {
	products := make([]*Product, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(productBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var product Product
			if err := json.Unmarshal(v, &product); err != nil {
				return fmt.Errorf("unmarshaling product: %w", err)
			}
			products = append(products, &product)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

// ListEntries returns all recorded intake entries
func (s *Store) ListEntries() ([]*Entry, error) {
	entries := make([]*Entry, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(entryBucketName))
		return bucket.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling entry: %w", err)
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func entryKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%016d", seq))
}
