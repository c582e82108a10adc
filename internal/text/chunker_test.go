package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunker(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"Defaults", 1000, 200, false},
		{"No Overlap", 10, 0, false},
		{"Zero Size", 0, 0, true},
		{"Negative Overlap", 10, -1, true},
		{"Overlap Equals Size", 10, 10, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewChunker(tt.size, tt.overlap)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidChunkConfig)
				assert.Nil(t, c)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.size, c.Size())
		})
	}
}

func TestChunker_Split(t *testing.T) {
	t.Run("Empty Text", func(t *testing.T) {
		c := DefaultChunker()
		assert.Empty(t, c.Collect("u", ""))
	})

	t.Run("Shorter Than Size", func(t *testing.T) {
		c := DefaultChunker()
		chunks := c.Collect("https://simtk.org/a", "Inverse kinematics overview.")
		require.Len(t, chunks, 1)
		assert.Equal(t, "Inverse kinematics overview.", chunks[0].Text)
		assert.Equal(t, "https://simtk.org/a", chunks[0].DocumentURL)
		assert.Equal(t, 0, chunks[0].Offset)
	})

	t.Run("Exactly Size", func(t *testing.T) {
		c, _ := NewChunker(5, 2)
		chunks := c.Collect("u", "abcde")
		require.Len(t, chunks, 1)
		assert.Equal(t, "abcde", chunks[0].Text)
	})

	t.Run("Windows And Offsets", func(t *testing.T) {
		c, _ := NewChunker(4, 1)
		chunks := c.Collect("u", "abcdefghij")
		require.Len(t, chunks, 3)
		assert.Equal(t, "abcd", chunks[0].Text)
		assert.Equal(t, "defg", chunks[1].Text)
		assert.Equal(t, "ghij", chunks[2].Text)
		for i, ch := range chunks {
			assert.Equal(t, i, ch.Index)
			assert.Equal(t, i*3, ch.Offset)
		}
	})

	t.Run("Tail Shorter Than Size", func(t *testing.T) {
		c, _ := NewChunker(4, 1)
		chunks := c.Collect("u", "abcdefgh")
		require.Len(t, chunks, 3)
		assert.Equal(t, "gh", chunks[2].Text)
	})

	t.Run("Multibyte Runes", func(t *testing.T) {
		c, _ := NewChunker(3, 1)
		chunks := c.Collect("u", "μσκλετός")
		for _, ch := range chunks {
			assert.LessOrEqual(t, len([]rune(ch.Text)), 3)
		}
		assert.Equal(t, "μσκλετός", Join(chunks, 1))
	})

	t.Run("Restartable", func(t *testing.T) {
		c, _ := NewChunker(8, 3)
		seq := c.Split("u", strings.Repeat("muscle ", 20))
		var first, second []Chunk
		for ch := range seq {
			first = append(first, ch)
		}
		for ch := range seq {
			second = append(second, ch)
		}
		assert.Equal(t, first, second)
	})

	t.Run("Early Stop", func(t *testing.T) {
		c, _ := NewChunker(4, 0)
		count := 0
		for range c.Split("u", strings.Repeat("x", 100)) {
			count++
			if count == 2 {
				break
			}
		}
		assert.Equal(t, 2, count)
	})
}

func TestChunker_Reconstruction(t *testing.T) {
	inputs := []string{
		"",
		"a",
		"OpenSim is an open source software system for biomechanical modeling.",
		strings.Repeat("Static optimization resolves net joint moments into muscle forces. ", 50),
		"line one\n\nline two\n\n\nline three",
	}
	params := [][2]int{{1, 0}, {5, 2}, {7, 6}, {50, 10}, {1000, 200}}

	for _, in := range inputs {
		for _, p := range params {
			c, err := NewChunker(p[0], p[1])
			require.NoError(t, err)
			chunks := c.Collect("u", in)
			for _, ch := range chunks {
				assert.NotEmpty(t, ch.Text)
			}
			assert.Equal(t, in, Join(chunks, p[1]), "size=%d overlap=%d", p[0], p[1])
		}
	}
}

func TestChunker_Deterministic(t *testing.T) {
	c := DefaultChunker()
	doc := strings.Repeat("Computed muscle control tracks experimental kinematics. ", 80)
	assert.Equal(t, c.Collect("u", doc), c.Collect("u", doc))
}
