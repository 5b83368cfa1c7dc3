package repository_test

import (
	"context"
	"testing"

	"integrity-core/internal/testutil"
	"integrity-core/pkg/db/option"
	"integrity-core/pkg/repository"

	"github.com/stretchr/testify/require"
)

type widget struct {
	ID    string `gorm:"column:id;primaryKey"`
	Name  string `gorm:"column:name"`
	Count int64  `gorm:"column:count"`
}

func TestStoreCreateAndFindOne(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	store := repository.ProvideStore[widget](db)

	require.NoError(t, store.Create(context.Background(), &widget{ID: "w1", Name: "gadget", Count: 3}))

	got, err := store.FindOne(context.Background(), &widget{ID: "w1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "gadget", got.Name)
}

func TestStoreFindOneMissingReturnsNil(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	store := repository.ProvideStore[widget](db)

	got, err := store.FindOne(context.Background(), &widget{ID: "missing"})
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStoreUpdateAndCount(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	store := repository.ProvideStore[widget](db)

	require.NoError(t, store.Create(context.Background(), &widget{ID: "w1", Name: "gadget", Count: 3}))
	require.NoError(t, store.Update(context.Background(), "w1", map[string]any{"count": 9}))

	got, err := store.FindOne(context.Background(), &widget{ID: "w1"})
	require.NoError(t, err)
	require.Equal(t, int64(9), got.Count)

	count, err := store.Count(context.Background(), &widget{})
	require.NoError(t, err)
	require.Equal(t, int64(1), count)
}

func TestStoreBatchCreateAndFindWithCondition(t *testing.T) {
	db := testutil.NewTestDB(t, &widget{})
	store := repository.ProvideStore[widget](db)

	require.NoError(t, store.BatchCreate(context.Background(), []*widget{
		{ID: "a", Name: "a", Count: 1},
		{ID: "b", Name: "b", Count: 5},
	}))

	results, err := store.Find(context.Background(), &widget{}, option.ApplyOperator(option.Condition{
		Field: "count", Operator: option.GT, Value: 2,
	}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "b", results[0].ID)
}
