package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LinhDev610/LilaShop/pkg/database"
	apperrors "github.com/LinhDev610/LilaShop/pkg/errors"
)

func setupCategoryRepo(t *testing.T) (*CategoryRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewCategoryRepository(mock)
	return repo, mock
}

func categoryTestColumns() []string {
	return []string{"id", "name", "parent_id", "created_at", "updated_at"}
}

func TestCategoryRepository_GetByID_Success(t *testing.T) {
	repo, mock := setupCategoryRepo(t)
	defer mock.Close()

	parent := "clothing"
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT .+ FROM categories WHERE id").
		WithArgs("shirts").
		WillReturnRows(pgxmock.NewRows(categoryTestColumns()).
			AddRow("shirts", "Shirts", &parent, now, now))

	result, err := repo.GetByID(context.Background(), "shirts")
	require.NoError(t, err)
	assert.Equal(t, "shirts", result.ID)
	assert.Equal(t, "Shirts", result.Name)
	require.NotNil(t, result.ParentID)
	assert.Equal(t, "clothing", *result.ParentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_GetByID_NotFound(t *testing.T) {
	repo, mock := setupCategoryRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM categories WHERE id").
		WithArgs("nonexistent-id").
		WillReturnRows(pgxmock.NewRows(categoryTestColumns()))

	result, err := repo.GetByID(context.Background(), "nonexistent-id")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_ListChildren(t *testing.T) {
	repo, mock := setupCategoryRepo(t)
	defer mock.Close()

	parent := "clothing"
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows(categoryTestColumns()).
		AddRow("shirts", "Shirts", &parent, now, now).
		AddRow("trousers", "Trousers", &parent, now, now)

	mock.ExpectQuery("SELECT .+ FROM categories WHERE parent_id").
		WithArgs("clothing").
		WillReturnRows(rows)

	children, err := repo.ListChildren(context.Background(), "clothing")
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "shirts", children[0].ID)
	assert.Equal(t, "trousers", children[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryRepository_ListChildren_Leaf(t *testing.T) {
	repo, mock := setupCategoryRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM categories WHERE parent_id").
		WithArgs("shirts").
		WillReturnRows(pgxmock.NewRows(categoryTestColumns()))

	children, err := repo.ListChildren(context.Background(), "shirts")
	require.NoError(t, err)
	assert.NotNil(t, children) // should be [] not nil
	assert.Empty(t, children)
	assert.NoError(t, mock.ExpectationsWereMet())
}
