package bolt_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"opensim-assistant/internal/adapter/bolt"
	"opensim-assistant/internal/vector"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(text string, vec ...float32) vector.Record {
	return vector.Record{
		Text:   text,
		Vector: vec,
		Meta:   vector.Meta{URL: "https://simtk.org/" + text, Title: text},
	}
}

func openIndex(t *testing.T) (*bolt.Index, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := bolt.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx, path
}

func TestIndex_AddQuery(t *testing.T) {
	ctx := context.Background()
	idx, _ := openIndex(t)

	require.NoError(t, idx.Add(ctx, []vector.Record{
		record("x-axis", 1, 0, 0),
		record("y-axis", 0, 1, 0),
		record("diagonal", 1, 1, 0),
	}))

	hits, err := idx.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "x-axis", hits[0].Text)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
	assert.Equal(t, "diagonal", hits[1].Text)
	assert.Equal(t, "https://simtk.org/x-axis", hits[0].Meta.URL)
	assert.NotEmpty(t, hits[0].ID)
}

func TestIndex_QueryBoundsAndOrder(t *testing.T) {
	ctx := context.Background()
	idx, _ := openIndex(t)

	var recs []vector.Record
	for i := range 10 {
		recs = append(recs, record(fmt.Sprintf("r%d", i), float32(i), float32(10-i)))
	}
	require.NoError(t, idx.Add(ctx, recs))

	for _, k := range []int{0, 1, 4, 10, 25} {
		hits, err := idx.Query(ctx, []float32{1, 0.5}, k)
		require.NoError(t, err)
		assert.Len(t, hits, min(k, 10))
		for i := 1; i < len(hits); i++ {
			assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
		}
	}
}

func TestIndex_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx, _ := openIndex(t)

	require.NoError(t, idx.Add(ctx, []vector.Record{
		record("first", 1, 0),
		record("second", 2, 0),
		record("third", 3, 0),
	}))

	hits, err := idx.Query(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, []string{hits[0].Text, hits[1].Text, hits[2].Text})
}

func TestIndex_DuplicateAdds(t *testing.T) {
	ctx := context.Background()
	idx, _ := openIndex(t)

	batch := []vector.Record{record("a", 1, 0), record("b", 0, 1)}
	require.NoError(t, idx.Add(ctx, batch))
	require.NoError(t, idx.Add(ctx, batch))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx, _ := openIndex(t)

	require.NoError(t, idx.Add(ctx, []vector.Record{record("a", 1, 0)}))

	err := idx.Add(ctx, []vector.Record{record("b", 1, 0, 0)})
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	_, err = idx.Query(ctx, []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	n, _ := idx.Count(ctx)
	assert.Equal(t, 1, n, "failed batch must not be partially written")
}

func TestIndex_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := bolt.Open(path)
	require.NoError(t, err)
	exists, err := idx.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, idx.Add(ctx, []vector.Record{record("a", 1, 0)}))
	require.NoError(t, idx.MarkBuilt(ctx))
	require.NoError(t, idx.Close())

	reopened, err := bolt.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	exists, err = reopened.Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	hits, err := reopened.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Text)
}

func TestIndex_Reset(t *testing.T) {
	ctx := context.Background()
	idx, _ := openIndex(t)

	require.NoError(t, idx.Add(ctx, []vector.Record{record("a", 1, 0)}))
	require.NoError(t, idx.Reset(ctx))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// dimensionality is forgotten after a reset
	require.NoError(t, idx.Add(ctx, []vector.Record{record("b", 1, 0, 0)}))
}

func TestIndex_EmptyQuery(t *testing.T) {
	idx, _ := openIndex(t)
	hits, err := idx.Query(context.Background(), []float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_EmptyFileIsNotBuilt(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	idx, err := bolt.Open(path)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	reopened, err := bolt.Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	exists, err := reopened.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIndex_BuiltMarker(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		steps func(t *testing.T, idx *bolt.Index)
		want  bool
	}{
		{
			name: "records without marker",
			steps: func(t *testing.T, idx *bolt.Index) {
				require.NoError(t, idx.Add(ctx, []vector.Record{record("a", 1, 0)}))
			},
			want: false,
		},
		{
			name: "marked after add",
			steps: func(t *testing.T, idx *bolt.Index) {
				require.NoError(t, idx.Add(ctx, []vector.Record{record("a", 1, 0)}))
				require.NoError(t, idx.MarkBuilt(ctx))
			},
			want: true,
		},
		{
			name: "add after marker",
			steps: func(t *testing.T, idx *bolt.Index) {
				require.NoError(t, idx.Add(ctx, []vector.Record{record("a", 1, 0)}))
				require.NoError(t, idx.MarkBuilt(ctx))
				require.NoError(t, idx.Add(ctx, []vector.Record{record("b", 0, 1)}))
			},
			want: false,
		},
		{
			name: "reset after marker",
			steps: func(t *testing.T, idx *bolt.Index) {
				require.NoError(t, idx.Add(ctx, []vector.Record{record("a", 1, 0)}))
				require.NoError(t, idx.MarkBuilt(ctx))
				require.NoError(t, idx.Reset(ctx))
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, _ := openIndex(t)
			tt.steps(t, idx)
			exists, err := idx.Exists(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, exists)
		})
	}
}

func TestIndex_CountTracksAddAndReset(t *testing.T) {
	ctx := context.Background()
	idx, _ := openIndex(t)

	require.NoError(t, idx.Add(ctx, []vector.Record{record("a", 1, 0), record("b", 0, 1)}))
	require.NoError(t, idx.Add(ctx, []vector.Record{record("c", 1, 1)}))
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, idx.Reset(ctx))
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = idx.Count(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}
