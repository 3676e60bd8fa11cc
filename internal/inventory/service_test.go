package inventory_test

import (
	"bytes"
	"context"
	"sync"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/auth"
	"github.com/MikeMC777/healthnet-pharmacy/internal/inventory"
	"github.com/MikeMC777/healthnet-pharmacy/internal/memstore"
)

func newService(t *testing.T) (*inventory.Service, *memstore.InventoryRepo) {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	repo := memstore.New().Inventory()
	return inventory.NewService(repo, 5, log), repo
}

func mustCreate(t *testing.T, svc *inventory.Service, name, price string, stock int) *inventory.Drug {
	t.Helper()
	d, err := svc.Create(context.Background(), inventory.CreateDrugRequest{Name: name, Price: price, Stock: stock})
	require.NoError(t, err)
	return d
}

func TestCreateDrug(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	d := mustCreate(t, svc, "Paracetamol 500mg", "12.5", 40)
	assert.Equal(t, "paracetamol-500mg", d.Slug)
	assert.Equal(t, inventory.StatusActive, d.Status)
	assert.Equal(t, "12.50", d.Price.StringFixed(2))

	empty := mustCreate(t, svc, "Ibuprofen", "3", 0)
	assert.Equal(t, inventory.StatusOutOfStock, empty.Status)

	_, err := svc.Create(ctx, inventory.CreateDrugRequest{Name: "Paracetamol 500MG", Price: "1"})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	for _, req := range []inventory.CreateDrugRequest{
		{Name: " ", Price: "1"},
		{Name: "X", Price: "-1"},
		{Name: "X", Price: "abc"},
		{Name: "X", Price: "1", Stock: -1},
	} {
		_, err := svc.Create(ctx, req)
		assert.ErrorIs(t, err, apperr.ErrInvalidInput, "%+v", req)
	}
}

func TestDecrementStock(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	d := mustCreate(t, svc, "Amoxicillin", "20", 3)

	err := repo.InTx(ctx, func(rows inventory.Rows) error {
		_, err := inventory.DecrementStock(ctx, rows, d.ID, 4)
		return err
	})
	var item *apperr.ItemError
	require.ErrorAs(t, err, &item)
	assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
	assert.Equal(t, 4, item.Requested)
	assert.Equal(t, 3, item.Available)

	err = repo.InTx(ctx, func(rows inventory.Rows) error {
		_, err := inventory.DecrementStock(ctx, rows, d.ID, 0)
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	err = repo.InTx(ctx, func(rows inventory.Rows) error {
		got, err := inventory.DecrementStock(ctx, rows, d.ID, 3)
		if err == nil {
			assert.Equal(t, 0, got.Stock)
		}
		return err
	})
	require.NoError(t, err)
	after, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Stock)
	assert.Equal(t, inventory.StatusOutOfStock, after.Status)

	restocked, err := svc.Restock(ctx, d.ID, 2, auth.System)
	require.NoError(t, err)
	assert.Equal(t, 2, restocked.Stock)
	assert.Equal(t, inventory.StatusActive, restocked.Status)
}

func TestConcurrentDecrementNeverOversells(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	d := mustCreate(t, svc, "Insulin", "80", 5)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.InTx(ctx, func(rows inventory.Rows) error {
				_, err := inventory.DecrementStock(ctx, rows, d.ID, 1)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else {
				assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
				fail++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 7, fail)
	after, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Stock)
}

func TestReserveIsAllOrNothing(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "Vitamin C", "5", 10)
	b := mustCreate(t, svc, "Zinc", "7", 2)

	err := repo.InTx(ctx, func(rows inventory.Rows) error {
		_, err := inventory.Reserve(ctx, rows, []inventory.Line{
			{DrugID: a.ID, Quantity: 4},
			{DrugID: b.ID, Quantity: 2},
			{DrugID: b.ID, Quantity: 1},
		})
		return err
	})
	require.ErrorIs(t, err, apperr.ErrInsufficientStock)

	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock, "failed reservation left stock untouched")

	_, err = svc.SetStatus(ctx, a.ID, inventory.StatusInactive)
	require.NoError(t, err)
	err = repo.InTx(ctx, func(rows inventory.Rows) error {
		_, err := inventory.Reserve(ctx, rows, []inventory.Line{{DrugID: a.ID, Quantity: 1}})
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrUnavailable)

	err = repo.InTx(ctx, func(rows inventory.Rows) error {
		_, err := inventory.Reserve(ctx, rows, []inventory.Line{{DrugID: "missing", Quantity: 1}})
		return err
	})
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestSetStatusKeepsOutOfStock(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	d := mustCreate(t, svc, "Cough Syrup", "9", 0)

	got, err := svc.SetStatus(ctx, d.ID, inventory.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusOutOfStock, got.Status)

	_, err = svc.SetStatus(ctx, d.ID, inventory.StatusOutOfStock)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

// sellingRepo sells the remaining units after the service read the drug and
// before it writes the catalog change back.
type sellingRepo struct {
	*memstore.InventoryRepo
	sell func()
}

func (r sellingRepo) UpdateDrug(ctx context.Context, d *inventory.Drug) error {
	r.sell()
	return r.InventoryRepo.UpdateDrug(ctx, d)
}

func TestCatalogEditDoesNotReviveSoldOutDrug(t *testing.T) {
	base, repo := newService(t)
	ctx := context.Background()
	d := mustCreate(t, base, "Zinc Tablets", "5", 1)

	log, _ := logtest.NewNullLogger()
	svc := inventory.NewService(sellingRepo{InventoryRepo: repo, sell: func() {
		err := repo.InTx(ctx, func(rows inventory.Rows) error {
			_, err := inventory.DecrementStock(ctx, rows, d.ID, 1)
			return err
		})
		require.NoError(t, err)
	}}, 5, log)

	got, err := svc.Update(ctx, d.ID, inventory.UpdateDrugRequest{Price: "6"})
	require.NoError(t, err)
	assert.Equal(t, "6.00", got.Price.StringFixed(2))
	assert.Equal(t, 0, got.Stock)
	assert.Equal(t, inventory.StatusOutOfStock, got.Status)

	stored, err := base.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusOutOfStock, stored.Status)
	assert.Equal(t, "6.00", stored.Price.StringFixed(2))
}

func TestInactiveDrugStaysInactiveThroughStockMoves(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	d := mustCreate(t, svc, "Retired Syrup", "7", 3)

	_, err := svc.SetStatus(ctx, d.ID, inventory.StatusInactive)
	require.NoError(t, err)

	got, err := svc.SetStock(ctx, inventory.StockUpdate{DrugID: d.ID, Stock: 0}, auth.System)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusInactive, got.Status)

	got, err = svc.SetStock(ctx, inventory.StockUpdate{DrugID: d.ID, Stock: 8}, auth.System)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusInactive, got.Status)

	got, err = svc.Restock(ctx, d.ID, 2, auth.System)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)
	assert.Equal(t, inventory.StatusInactive, got.Status)

	got, err = svc.SetStatus(ctx, d.ID, inventory.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusActive, got.Status)
}

func TestMalformedDrugIDs(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()

	_, err := svc.Get(ctx, "abc")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Update(ctx, "abc", inventory.UpdateDrugRequest{Name: "X"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.SetStatus(ctx, "abc", inventory.StatusInactive)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Restock(ctx, "abc", 1, auth.System)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = repo.InTx(ctx, func(rows inventory.Rows) error {
		_, err := inventory.Reserve(ctx, rows, []inventory.Line{{DrugID: "abc", Quantity: 1}})
		return err
	})
	var item *apperr.ItemError
	require.ErrorAs(t, err, &item)
	assert.Equal(t, "abc", item.DrugID)
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
}

func TestBulkSetStockRollsBack(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "Aspirin", "2", 10)
	b := mustCreate(t, svc, "Loratadine", "4", 10)

	_, err := svc.BulkSetStock(ctx, []inventory.StockUpdate{
		{DrugID: a.ID, Stock: 1},
		{DrugID: b.ID, Stock: -3},
	}, auth.System)
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	got, err := svc.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)

	out, err := svc.BulkSetStock(ctx, []inventory.StockUpdate{
		{DrugID: a.ID, Stock: 0},
		{DrugID: b.ID, Stock: 25},
	}, auth.System)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, inventory.StatusOutOfStock, out[0].Status)
	assert.Equal(t, 25, out[1].Stock)
}

func TestStatisticsAndLowStock(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	mustCreate(t, svc, "A", "10", 3)
	mustCreate(t, svc, "B", "1", 50)
	mustCreate(t, svc, "C", "2", 0)

	low, err := svc.LowStockAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "A", low[0].Name)

	st, err := svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 1, st.OutOfStock)
	assert.Equal(t, 1, st.LowStock)
	assert.Equal(t, "80.00", st.TotalStockValue.StringFixed(2))
}

func TestReportXLSX(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	mustCreate(t, svc, "Bisacodyl", "3.20", 4)
	mustCreate(t, svc, "Antacid", "1.10", 30)

	rows, err := svc.Report(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Antacid", rows[0].Name)
	assert.Equal(t, "33.00", rows[0].StockValue.StringFixed(2))
	assert.True(t, rows[1].LowStock)

	var buf bytes.Buffer
	require.NoError(t, svc.WriteReportXLSX(ctx, &buf))
	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "Inventory", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Name", sheet.Rows[0].Cells[1].String())
	assert.Equal(t, "Antacid", sheet.Rows[1].Cells[1].String())
}
