package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 10, NormalizeLimit(10))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
}

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{CreatedAt: time.Date(2026, time.February, 3, 8, 30, 0, 123, time.UTC), ID: uuid.New()}
	parsed, err := Parse(c.Encode())
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.True(t, c.CreatedAt.Equal(parsed.CreatedAt))
	assert.Equal(t, c.ID, parsed.ID)

	empty, err := Parse("  ")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, token := range []string{"***", "bm8tc2VwYXJhdG9y", "eHx5"} {
		_, err := Parse(token)
		assert.Error(t, err, token)
	}
}

func TestBuild(t *testing.T) {
	key := func(n int) Cursor { return Cursor{ID: uuid.NewSHA1(uuid.Nil, []byte{byte(n)})} }

	last := Build([]int{1, 2}, 2, key)
	assert.Equal(t, []int{1, 2}, last.Items)
	assert.Empty(t, last.NextCursor)

	more := Build([]int{1, 2, 3}, 2, key)
	assert.Equal(t, []int{1, 2}, more.Items)
	next, err := Parse(more.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, key(2).ID, next.ID)

	none := Build[int](nil, 5, key)
	assert.NotNil(t, none.Items)

	doubled := Map(more, func(n int) int { return n * 2 })
	assert.Equal(t, []int{2, 4}, doubled.Items)
	assert.Equal(t, more.NextCursor, doubled.NextCursor)
}
