package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/buntdb"
)

// Bunt keeps the snapshot in an embedded buntdb file. Path ":memory:" keeps
// it in memory only.
type Bunt struct {
	db  *buntdb.DB
	key string
}

func OpenBunt(path, key string) (*Bunt, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open buntdb %s: %w", path, err)
	}
	if key == "" {
		key = "tiling:rtree"
	}
	return &Bunt{db: db, key: key}, nil
}

func (b *Bunt) Name() string { return "buntdb" }

func (b *Bunt) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := b.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(b.key)
		if err != nil {
			return err
		}
		out = []byte(val)
		return nil
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("buntdb get %q: %w", b.key, err)
	}
	return out, nil
}

func (b *Bunt) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(b.key, string(data), nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("buntdb set %q: %w", b.key, err)
	}
	return nil
}

func (b *Bunt) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("buntdb close: %w", err)
	}
	return nil
}
