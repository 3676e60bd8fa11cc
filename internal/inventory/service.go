package inventory

import (
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/tealeg/xlsx"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
	"github.com/MikeMC777/healthnet-pharmacy/internal/auth"
)

// Service is the admin surface of the ledger.
type Service struct {
	repo     Repository
	lowStock int
	log      logrus.FieldLogger
}

func NewService(repo Repository, lowStockThreshold int, log logrus.FieldLogger) *Service {
	if lowStockThreshold <= 0 {
		lowStockThreshold = 10
	}
	return &Service{repo: repo, lowStock: lowStockThreshold, log: log}
}

func (s *Service) LowStockThreshold() int { return s.lowStock }

func (s *Service) Get(ctx context.Context, id string) (*Drug, error) {
	if !ValidID(id) {
		return nil, errors.Wrapf(apperr.ErrNotFound, "drug %s", id)
	}
	return s.repo.GetDrug(ctx, id)
}

func (s *Service) List(ctx context.Context, q Query) ([]Drug, error) {
	return s.repo.ListDrugs(ctx, q, s.lowStock)
}

var slugStrip = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	return strings.Trim(slugStrip.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

func (s *Service) Create(ctx context.Context, req CreateDrugRequest) (*Drug, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Invalid("name is required")
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		return nil, apperr.Invalid("price must be a non-negative decimal")
	}
	if req.Stock < 0 {
		return nil, apperr.Invalid("stock must be non-negative")
	}
	slug := req.Slug
	if slug == "" {
		slug = slugify(name)
	}
	d := &Drug{
		ID:          uuid.NewString(),
		Name:        name,
		Slug:        slug,
		Description: req.Description,
		Price:       price.Round(2),
		Stock:       req.Stock,
		Status:      StatusActive,
		ExpiryDate:  req.ExpiryDate,
	}
	if d.Stock == 0 {
		d.Status = StatusOutOfStock
	}
	if err := s.repo.CreateDrug(ctx, d); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"drug_id": d.ID, "slug": d.Slug}).Info("drug created")
	return d, nil
}

// Update changes catalog fields. Existing order items keep their snapshot.
// Stock and status are left to the ledger.
func (s *Service) Update(ctx context.Context, id string, req UpdateDrugRequest) (*Drug, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(req.Name); v != "" {
		d.Name = v
	}
	if req.Description != "" {
		d.Description = req.Description
	}
	if req.Price != "" {
		p, err := decimal.NewFromString(req.Price)
		if err != nil || p.IsNegative() {
			return nil, apperr.Invalid("price must be a non-negative decimal")
		}
		d.Price = p.Round(2)
	}
	if req.ExpiryDate != nil {
		d.ExpiryDate = req.ExpiryDate
	}
	if err := s.repo.UpdateDrug(ctx, d); err != nil {
		return nil, err
	}
	return s.repo.GetDrug(ctx, id)
}

// SetStatus toggles a drug between active and inactive. Activating a drug
// without stock leaves it out_of_stock.
func (s *Service) SetStatus(ctx context.Context, id string, status Status) (*Drug, error) {
	if status != StatusActive && status != StatusInactive {
		return nil, apperr.Invalid("status must be active or inactive")
	}
	var out *Drug
	err := s.repo.InTx(ctx, func(rows Rows) error {
		d, err := lockOne(ctx, rows, id)
		if err != nil {
			return err
		}
		d.Status = status
		if status == StatusActive && d.Stock == 0 {
			d.Status = StatusOutOfStock
		}
		out = d
		return rows.SaveStock(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"drug_id": id, "status": out.Status}).Info("drug status changed")
	return out, nil
}

// Restock adds qty units.
func (s *Service) Restock(ctx context.Context, id string, qty int, actor auth.Actor) (*Drug, error) {
	var out *Drug
	err := s.repo.InTx(ctx, func(rows Rows) error {
		d, err := IncrementStock(ctx, rows, id, qty)
		out = d
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"drug_id": id, "qty": qty, "by": actor.UserID}).Info("drug restocked")
	return out, nil
}

// SetStock moves the stock to an absolute level through the ledger.
func (s *Service) SetStock(ctx context.Context, upd StockUpdate, actor auth.Actor) (*Drug, error) {
	var out *Drug
	err := s.repo.InTx(ctx, func(rows Rows) error {
		d, err := setStock(ctx, rows, upd)
		out = d
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"drug_id": upd.DrugID, "stock": upd.Stock, "reason": upd.Reason, "by": actor.UserID,
	}).Info("stock updated")
	return out, nil
}

// BulkSetStock applies all updates or none.
func (s *Service) BulkSetStock(ctx context.Context, updates []StockUpdate, actor auth.Actor) ([]Drug, error) {
	if len(updates) == 0 {
		return nil, apperr.Invalid("no updates")
	}
	var out []Drug
	err := s.repo.InTx(ctx, func(rows Rows) error {
		out = out[:0]
		for _, u := range updates {
			d, err := setStock(ctx, rows, u)
			if err != nil {
				return errors.Wrapf(err, "drug %s", u.DrugID)
			}
			out = append(out, *d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"count": len(out), "by": actor.UserID}).Info("bulk stock update")
	return out, nil
}

func setStock(ctx context.Context, rows Rows, upd StockUpdate) (*Drug, error) {
	if upd.Stock < 0 {
		return nil, apperr.Invalid("stock must be non-negative")
	}
	d, err := lockOne(ctx, rows, upd.DrugID)
	if err != nil {
		return nil, err
	}
	switch delta := upd.Stock - d.Stock; {
	case delta > 0:
		err = increment(d, delta)
	case delta < 0:
		err = decrement(d, -delta)
	default:
		return d, nil
	}
	if err != nil {
		return nil, err
	}
	return d, rows.SaveStock(ctx, d)
}

func (s *Service) Statistics(ctx context.Context) (Stats, error) {
	return s.repo.Statistics(ctx, s.lowStock)
}

func (s *Service) LowStockAlerts(ctx context.Context) ([]Drug, error) {
	return s.repo.ListDrugs(ctx, Query{LowStock: true, Sort: "stock", Limit: 100}, s.lowStock)
}

// Report returns one row per drug, ordered by name.
func (s *Service) Report(ctx context.Context) ([]ReportRow, error) {
	var out []ReportRow
	for offset := 0; ; offset += 100 {
		page, err := s.repo.ListDrugs(ctx, Query{Sort: "name", Limit: 100, Offset: offset}, s.lowStock)
		if err != nil {
			return nil, err
		}
		for i := range page {
			d := &page[i]
			out = append(out, ReportRow{
				ID:         d.ID,
				Name:       d.Name,
				Slug:       d.Slug,
				Price:      d.Price,
				Stock:      d.Stock,
				Status:     d.Status,
				StockValue: d.Price.Mul(decimal.NewFromInt(int64(d.Stock))),
				LowStock:   d.IsLowStock(s.lowStock),
				ExpiryDate: d.ExpiryDate,
			})
		}
		if len(page) < 100 {
			return out, nil
		}
	}
}

// WriteReportXLSX renders the report as a spreadsheet.
func (s *Service) WriteReportXLSX(ctx context.Context, w io.Writer) error {
	rows, err := s.Report(ctx)
	if err != nil {
		return err
	}
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("Inventory")
	if err != nil {
		return errors.Wrap(err, "add sheet")
	}
	header := sheet.AddRow()
	for _, h := range []string{"ID", "Name", "Slug", "Price", "Stock", "Status", "StockValue", "LowStock", "ExpiryDate"} {
		header.AddCell().SetValue(h)
	}
	for _, r := range rows {
		row := sheet.AddRow()
		row.AddCell().SetValue(r.ID)
		row.AddCell().SetValue(r.Name)
		row.AddCell().SetValue(r.Slug)
		row.AddCell().SetValue(r.Price.StringFixed(2))
		row.AddCell().SetValue(r.Stock)
		row.AddCell().SetValue(string(r.Status))
		row.AddCell().SetValue(r.StockValue.StringFixed(2))
		row.AddCell().SetValue(r.LowStock)
		expiry := ""
		if r.ExpiryDate != nil {
			expiry = r.ExpiryDate.Format("2006-01-02")
		}
		row.AddCell().SetValue(expiry)
	}
	return errors.Wrap(file.Write(w), "write xlsx")
}
