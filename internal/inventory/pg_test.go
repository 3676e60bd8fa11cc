package inventory_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
	"github.com/MikeMC777/healthnet-pharmacy/internal/migrations"
)

// pgService runs against TEST_POSTGRES_DSN and skips when it is unset.
func pgService(t *testing.T) (*inventory.Service, *inventory.PGRepo, *pgxpool.Pool) {
	t.Helper()
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}
	log, _ := logtest.NewNullLogger()
	require.NoError(t, migrations.Up(dsn, log))

	pool, err := pgxpool.New(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := inventory.NewPGRepo(pool)
	return inventory.NewService(repo, 5, log), repo, pool
}

func TestPGConcurrentReserveSellsLastUnitOnce(t *testing.T) {
	svc, repo, pool := pgService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, inventory.CreateDrugRequest{Name: "Last unit " + uuid.NewString(), Price: "3.00", Stock: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM drugs WHERE id=$1`, d.ID) })

	const buyers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
		errs []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InTx(ctx, func(rows inventory.Rows) error {
				_, err := inventory.Reserve(ctx, rows, []inventory.Line{{DrugID: d.ID, Quantity: 1}})
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				sold++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sold)
	for _, err := range errs {
		assert.True(t, errors.Is(err, apperr.ErrUnavailable) || errors.Is(err, apperr.ErrInsufficientStock), err.Error())
	}
	got, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
	assert.Equal(t, inventory.StatusOutOfStock, got.Status)
}

func TestPGCatalogUpdateKeepsLedgerStatus(t *testing.T) {
	svc, repo, pool := pgService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, inventory.CreateDrugRequest{Name: "Edited " + uuid.NewString(), Price: "3.00", Stock: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _, _ = pool.Exec(context.Background(), `DELETE FROM drugs WHERE id=$1`, d.ID) })

	require.NoError(t, repo.InTx(ctx, func(rows inventory.Rows) error {
		_, err := inventory.DecrementStock(ctx, rows, d.ID, 1)
		return err
	}))
	d.Status = inventory.StatusActive
	d.Price = d.Price.Add(d.Price)
	require.NoError(t, repo.UpdateDrug(ctx, d))

	got, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusOutOfStock, got.Status)
	assert.Equal(t, "6.00", got.Price.StringFixed(2))
}
