package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 4, 5, 6, 7, 890, time.UTC), ID: uuid.New()}

	out, err := ParseCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.NotNil(t, out)
	require.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestParseCursorEmptyMeansFirstPage(t *testing.T) {
	out, err := ParseCursor("  ")
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	_, err := ParseCursor("not-a-cursor!")
	require.Error(t, err)
}

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, 8, LimitWithBuffer(7))
}

func TestTrimReturnsCursorOfLastKeptRow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []Cursor{
		{CreatedAt: base.Add(3 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(2 * time.Minute), ID: uuid.New()},
		{CreatedAt: base.Add(time.Minute), ID: uuid.New()},
	}

	kept, next := Trim(rows, 2, func(c Cursor) Cursor { return c })
	require.Len(t, kept, 2)
	require.NotNil(t, next)
	require.Equal(t, rows[1].ID, next.ID)

	kept, next = Trim(rows, 3, func(c Cursor) Cursor { return c })
	require.Len(t, kept, 3)
	require.Nil(t, next)
}
