// Package bolt is an on-disk vector index kept in a single bbolt file.
// Queries are an exact cosine scan, which suits a documentation set of a few
// thousand chunks.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"opensim-assistant/internal/vector"

	"go.etcd.io/bbolt"
)

var (
	bucketRecords = []byte("records")
	bucketMeta    = []byte("meta")
	keyDims       = []byte("dims")
	keyCount      = []byte("count")
	keyBuilt      = []byte("built")
)

var (
	_ vector.Index       = (*Index)(nil)
	_ vector.BuildMarker = (*Index)(nil)
)

type Index struct {
	db   *bbolt.DB
	path string
}

// Open opens or creates the index file at path.
func Open(path string) (*Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		records, err := tx.CreateBucketIfNotExists(bucketRecords)
		if err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		// Files written before the count was tracked get it backfilled once.
		if meta.Get(keyCount) == nil {
			return meta.Put(keyCount, itob(uint64(records.Stats().KeyN)))
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init index buckets: %w", err)
	}

	return &Index{db: db, path: path}, nil
}

func (i *Index) Path() string { return i.path }

func (i *Index) Add(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return i.db.Update(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		dims, err := validateAgainst(meta, records)
		if err != nil {
			return err
		}
		if err := meta.Put(keyDims, itob(uint64(dims))); err != nil {
			return err
		}
		// Appending invalidates a previous build until it is marked again.
		if err := meta.Delete(keyBuilt); err != nil {
			return err
		}

		b := tx.Bucket(bucketRecords)
		for _, r := range records {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			if r.ID == "" {
				r.ID = strconv.FormatUint(seq, 10)
			}
			data, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encode record: %w", err)
			}
			if err := b.Put(itob(seq), data); err != nil {
				return err
			}
		}
		return meta.Put(keyCount, itob(readUint(meta, keyCount)+uint64(len(records))))
	})
}

// validateAgainst checks records against the dimensionality stored in meta.
func validateAgainst(meta *bbolt.Bucket, records []vector.Record) (int, error) {
	return vector.ValidateBatch(records, int(readUint(meta, keyDims)))
}

func readUint(meta *bbolt.Bucket, key []byte) uint64 {
	raw := meta.Get(key)
	if len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

func (i *Index) Query(ctx context.Context, vec []float32, k int) ([]vector.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	var hits []vector.Hit
	err := i.db.View(func(tx *bbolt.Tx) error {
		if raw := tx.Bucket(bucketMeta).Get(keyDims); raw != nil {
			if dims := int(binary.BigEndian.Uint64(raw)); dims != len(vec) {
				return fmt.Errorf("%w: query has %d, index has %d", vector.ErrDimensionMismatch, len(vec), dims)
			}
		}

		c := tx.Bucket(bucketRecords).Cursor()
		for key, val := c.First(); key != nil; key, val = c.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r vector.Record
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("decode record %d: %w", binary.BigEndian.Uint64(key), err)
			}
			hits = append(hits, vector.Hit{Record: r, Score: vector.Cosine(vec, r.Vector)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Stable sort keeps insertion order between equal scores.
	slices.SortStableFunc(hits, func(a, b vector.Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (i *Index) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var n int
	err := i.db.View(func(tx *bbolt.Tx) error {
		n = int(readUint(tx.Bucket(bucketMeta), keyCount))
		return nil
	})
	return n, err
}

// Exists is true once a build has been marked complete and nothing was
// appended or reset since.
func (i *Index) Exists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var built bool
	err := i.db.View(func(tx *bbolt.Tx) error {
		built = tx.Bucket(bucketMeta).Get(keyBuilt) != nil
		return nil
	})
	return built, err
}

// MarkBuilt records that the current records form a complete index.
func (i *Index) MarkBuilt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return i.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).Put(keyBuilt, itob(uint64(time.Now().Unix())))
	})
}

func (i *Index) Reset(ctx context.Context) error {
	return i.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketMeta} {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (i *Index) Close() error {
	return i.db.Close()
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
