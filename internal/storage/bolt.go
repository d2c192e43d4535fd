package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var sessionBucket = []byte("session")

// BoltGateway stores state in a single bbolt bucket.
type BoltGateway struct {
	db   *bolt.DB
	path string
}

// NewBoltGateway opens (creating if needed) the database at path.
func NewBoltGateway(path string) (*BoltGateway, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltGateway{db: db, path: path}, nil
}

// Path returns the database file path.
func (g *BoltGateway) Path() string { return g.path }

// Load implements Gateway.
func (g *BoltGateway) Load(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return State{}, err
	}
	var st State
	err := g.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucket)
		if b == nil {
			return nil
		}
		// Values are only valid for the life of the transaction; stateFrom copies.
		st = stateFrom(func(key string) ([]byte, bool) {
			v := b.Get([]byte(key))
			return v, v != nil
		})
		return nil
	})
	if err != nil {
		return State{}, fmt.Errorf("load session: %w", mapBoltErr(err))
	}
	return st, nil
}

// Save implements Gateway. All keys are written in one transaction.
func (g *BoltGateway) Save(ctx context.Context, st State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := g.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(sessionBucket)
		if err != nil {
			return err
		}
		for _, e := range st.entries() {
			if e.value == nil {
				if err := b.Delete([]byte(e.key)); err != nil {
					return err
				}
				continue
			}
			if err := b.Put([]byte(e.key), e.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", mapBoltErr(err))
	}
	return nil
}

// Close implements Gateway.
func (g *BoltGateway) Close() error {
	return g.db.Close()
}

func mapBoltErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return ErrClosed
	}
	return err
}
