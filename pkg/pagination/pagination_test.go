package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type row struct {
	ID        uuid.UUID `gorm:"type:text;primaryKey"`
	CreatedAt time.Time
}

func keyOf(r row) Cursor { return Cursor{CreatedAt: r.CreatedAt, ID: r.ID} }

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, NormalizeLimit(-3))
	require.Equal(t, 7, NormalizeLimit(7))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
}

func TestEncodeParse(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 5, 1, 9, 30, 0, 123456789, time.UTC), ID: uuid.New()}
	got, err := Parse(Encode(want))
	require.NoError(t, err)
	require.True(t, want.CreatedAt.Equal(got.CreatedAt))
	require.Equal(t, want.ID, got.ID)

	blank, err := Parse("  ")
	require.NoError(t, err)
	require.Nil(t, blank)

	for _, bad := range []string{"%%%", Encode(Cursor{})[:4], "bm8tc2VwYXJhdG9y"} {
		_, err := Parse(bad)
		require.ErrorIs(t, err, errMalformed, bad)
	}
}

func TestWalkingPagesVisitsEveryRowOnce(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&row{}))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seen := map[uuid.UUID]bool{}
	for i := 0; i < 7; i++ {
		// two rows share each timestamp so the id tiebreak matters
		require.NoError(t, conn.Create(&row{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i/2) * time.Minute)}).Error)
	}

	var cursor *Cursor
	pages := 0
	for {
		var rows []row
		require.NoError(t, Query(conn.Model(&row{}), cursor, 3).Find(&rows).Error)
		page, next := Page(rows, 3, keyOf)
		for _, r := range page {
			require.False(t, seen[r.ID], "row %s returned twice", r.ID)
			seen[r.ID] = true
		}
		pages++
		if next == nil {
			break
		}
		cursor, err = Parse(Encode(*next))
		require.NoError(t, err)
	}
	require.Len(t, seen, 7)
	require.Equal(t, 3, pages)
}

func TestPageWithoutLookAhead(t *testing.T) {
	rows := []row{{ID: uuid.New()}, {ID: uuid.New()}}
	page, next := Page(rows, 2, keyOf)
	require.Len(t, page, 2)
	require.Nil(t, next)
}
