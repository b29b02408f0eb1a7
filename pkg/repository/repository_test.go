package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"guarantee-controlplane/pkg/db/option"
	"guarantee-controlplane/pkg/db/pagination"
	"guarantee-controlplane/services/testutil"
)

type widget struct {
	ID        string `gorm:"primaryKey"`
	Kind      string
	Rank      int
	CreatedAt time.Time
}

func seedWidgets(t *testing.T, db *gorm.DB) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"w1", "w2", "w3"} {
		require.NoError(t, db.Create(&widget{ID: id, Kind: "a", Rank: i, CreatedAt: base.Add(time.Duration(i) * time.Minute)}).Error)
	}
	require.NoError(t, db.Create(&widget{ID: "w4", Kind: "b", Rank: 9, CreatedAt: base}).Error)
}

func TestFindWithOptions(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	seedWidgets(t, db)
	repo := ProvideStore[widget](db)
	ctx := context.Background()

	rows, err := repo.Find(ctx, &widget{Kind: "a"},
		option.WithSortBy(option.QuerySortBy{OrderBy: "desc"}),
		option.ApplyPagination(pagination.Pagination{Limit: 2}),
	)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "w3", rows[0].ID)

	rows, err = repo.Find(ctx, nil, option.ApplyOperator(option.Condition{Field: "rank", Operator: option.GT, Value: 1}))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	total, err := repo.Count(ctx, &widget{Kind: "a"})
	require.NoError(t, err)
	require.Equal(t, int64(3), total)
}

func TestFindOneMissingReturnsNil(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideStore[widget](db)

	got, err := repo.FindOne(context.Background(), &widget{ID: "nope"})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestUpdateAndDelete(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	seedWidgets(t, db)
	repo := ProvideStore[widget](db)
	ctx := context.Background()

	require.NoError(t, repo.Update(ctx, "w1", map[string]any{"kind": "z"}))
	got, err := repo.FindOne(ctx, &widget{ID: "w1"})
	require.NoError(t, err)
	require.Equal(t, "z", got.Kind)

	require.ErrorIs(t, repo.Update(ctx, "missing", map[string]any{"kind": "z"}), gorm.ErrRecordNotFound)

	require.NoError(t, repo.Delete(ctx, "w1"))
	got, err = repo.FindOne(ctx, &widget{ID: "w1"})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestWithTrxRollsBack(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	repo := ProvideStore[widget](db)
	ctx := context.Background()

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := repo.WithTrx(tx).BatchCreate(ctx, []*widget{{ID: "t1"}, {ID: "t2"}}); err != nil {
			return err
		}
		return gorm.ErrInvalidData
	})
	require.ErrorIs(t, err, gorm.ErrInvalidData)

	total, err := repo.Count(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, total)
}
