package mysql

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/shopcart/internal/catalog/domain"
	"github.com/wyfcoding/shopcart/pkg/db"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	d, err := db.Open(sqlite.Open("file::memory:"), db.Config{Driver: "sqlite", MaxOpenConns: 1})
	require.NoError(t, err)
	require.NoError(t, d.AutoMigrate(&domain.Product{}))
	require.NoError(t, d.Exec("CREATE TABLE cart_items (id INTEGER PRIMARY KEY, cart_id INTEGER, product_id INTEGER, quantity INTEGER)").Error)
	t.Cleanup(func() { _ = d.Close() })
	return d.DB
}

func seedProduct(t *testing.T, repo domain.ProductRepository, stock int, category domain.Category) *domain.Product {
	t.Helper()
	p, err := domain.NewProduct("Widget", "", decimal.RequireFromString("9.99"), stock, category)
	require.NoError(t, err)
	require.NoError(t, repo.Save(context.Background(), p))
	return p
}

func stockOf(t *testing.T, repo domain.ProductRepository, id uint) int {
	t.Helper()
	p, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.StockQuantity
}

func TestProductRepositoryCRUD(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewProductRepository(gdb)
	ctx := context.Background()

	p := seedProduct(t, repo, 4, domain.CategoryFood)
	seedProduct(t, repo, 1, domain.CategoryHealth)
	seedProduct(t, repo, 2, domain.CategoryFood)

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, domain.StatusActive, got.Status)

	_, err = repo.GetByID(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	list, total, err := repo.List(ctx, domain.ProductFilter{Category: domain.CategoryFood}, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 1)
	assert.Equal(t, p.ID, list[0].ID)

	require.NoError(t, repo.Delete(ctx, p.ID))
	assert.ErrorIs(t, repo.Delete(ctx, p.ID), domain.ErrProductNotFound)
}

func TestIsReferenced(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewProductRepository(gdb)
	ctx := context.Background()
	p := seedProduct(t, repo, 1, domain.CategoryFood)

	ref, err := repo.IsReferenced(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, ref)

	require.NoError(t, gdb.Exec("INSERT INTO cart_items (cart_id, product_id, quantity) VALUES (1, ?, 2)", p.ID).Error)
	ref, err = repo.IsReferenced(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, ref)
}

func TestStockLedgerReserveRelease(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewProductRepository(gdb)
	ledger := NewStockLedger(gdb)
	ctx := context.Background()
	p := seedProduct(t, repo, 5, domain.CategoryElectronics)

	require.NoError(t, ledger.Reserve(ctx, p.ID, 3))
	assert.Equal(t, 2, stockOf(t, repo, p.ID))

	assert.ErrorIs(t, ledger.Reserve(ctx, p.ID, 3), domain.ErrInsufficientStock)
	assert.Equal(t, 2, stockOf(t, repo, p.ID))

	require.NoError(t, ledger.Reserve(ctx, p.ID, 2))
	assert.Equal(t, 0, stockOf(t, repo, p.ID))

	require.NoError(t, ledger.Release(ctx, p.ID, 10))
	assert.Equal(t, 10, stockOf(t, repo, p.ID))

	assert.ErrorIs(t, ledger.Reserve(ctx, p.ID, 0), domain.ErrInvalidStockDelta)
	assert.ErrorIs(t, ledger.Release(ctx, p.ID, -1), domain.ErrInvalidStockDelta)
	assert.ErrorIs(t, ledger.Reserve(ctx, 999, 1), domain.ErrProductNotFound)
	assert.ErrorIs(t, ledger.Release(ctx, 999, 1), domain.ErrProductNotFound)
}

func TestStockLedgerLastUnitHasOneWinner(t *testing.T) {
	reserveConcurrently(t, newTestDB(t), 1, 8)
}

// reserveConcurrently 让 workers 个协程各扣一件，只有 stock 个能成功
func reserveConcurrently(t *testing.T, gdb *gorm.DB, stock, workers int) {
	t.Helper()
	repo := NewProductRepository(gdb)
	ledger := NewStockLedger(gdb)
	p := seedProduct(t, repo, stock, domain.CategoryElectronics)

	results := make([]error, workers)
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			results[i] = ledger.Reserve(context.Background(), p.ID, 1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	}
	assert.Equal(t, stock, wins)
	assert.Equal(t, 0, stockOf(t, repo, p.ID))
}

func TestGetForUpdateInsideTransaction(t *testing.T) {
	gdb := newTestDB(t)
	repo := NewProductRepository(gdb)
	tm := db.NewTransactionManager(gdb)
	p := seedProduct(t, repo, 3, domain.CategoryClothing)

	err := tm.Transaction(context.Background(), func(ctx context.Context) error {
		locked, err := repo.GetForUpdate(ctx, p.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 3, locked.StockQuantity)
		_, err = repo.GetForUpdate(ctx, 404)
		assert.ErrorIs(t, err, domain.ErrProductNotFound)
		return nil
	})
	require.NoError(t, err)
}
