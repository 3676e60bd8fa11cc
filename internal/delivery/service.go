package delivery

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/MikeMC777/healthnet-pharmacy/internal/apperr"
)

type Service struct {
	repo    Repository
	pricing Pricing
	log     logrus.FieldLogger
}

func NewService(repo Repository, pricing Pricing, log logrus.FieldLogger) *Service {
	return &Service{repo: repo, pricing: pricing, log: log}
}

func (s *Service) Pricing() Pricing { return s.pricing }

// Lookup returns the area for code, or nil when it is not registered.
func (s *Service) Lookup(ctx context.Context, code string) (*Area, error) {
	if code == "" {
		return nil, nil
	}
	a, err := s.repo.GetArea(ctx, code)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func (s *Service) CalculateFee(ctx context.Context, code string, orderValue decimal.Decimal) (Quote, error) {
	if orderValue.IsNegative() {
		return Quote{}, apperr.Invalid("order value must not be negative")
	}
	area, err := s.Lookup(ctx, code)
	if err != nil {
		return Quote{}, err
	}
	fee, discount := s.pricing.FeeFor(area, orderValue)
	q := Quote{
		AreaCode:   code,
		KnownArea:  area != nil && area.IsActive,
		BaseFee:    s.pricing.BaseFee(area),
		Fee:        fee,
		OrderValue: orderValue,
		Discount:   discount,
	}
	if area != nil {
		q.AreaName = area.Name
	}
	return q, nil
}

func (s *Service) IsValid(ctx context.Context, code string) (bool, error) {
	a, err := s.Lookup(ctx, code)
	if err != nil {
		return false, err
	}
	return a != nil && a.IsActive, nil
}

func (s *Service) ListActive(ctx context.Context) ([]Area, error) {
	return s.repo.ListAreas(ctx, true)
}

func (s *Service) ListAll(ctx context.Context) ([]Area, error) {
	return s.repo.ListAreas(ctx, false)
}

var codePattern = regexp.MustCompile(`^[a-z0-9_]{2,50}$`)

func (s *Service) Create(ctx context.Context, req AreaRequest) (*Area, error) {
	a, err := areaFromRequest(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.CreateArea(ctx, a); err != nil {
		return nil, err
	}
	s.log.WithField("area", a.Code).Info("delivery area created")
	return a, nil
}

func (s *Service) Update(ctx context.Context, code string, req AreaRequest) (*Area, error) {
	a, err := s.repo.GetArea(ctx, code)
	if err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(req.Name); v != "" {
		a.Name = v
	}
	if req.Description != "" {
		a.Description = req.Description
	}
	if req.BaseFee != "" {
		fee, err := parseFee(req.BaseFee)
		if err != nil {
			return nil, err
		}
		a.BaseFee = fee
	}
	if req.IsActive != nil {
		a.IsActive = *req.IsActive
	}
	if req.SortOrder != 0 {
		a.SortOrder = req.SortOrder
	}
	if req.Landmarks != nil {
		a.Landmarks = req.Landmarks
	}
	if err := s.repo.UpdateArea(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) Toggle(ctx context.Context, code string) (*Area, error) {
	a, err := s.repo.GetArea(ctx, code)
	if err != nil {
		return nil, err
	}
	a.IsActive = !a.IsActive
	if err := s.repo.UpdateArea(ctx, a); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"area": code, "active": a.IsActive}).Info("delivery area toggled")
	return a, nil
}

func (s *Service) OrdersByArea(ctx context.Context, code string) ([]OpenOrder, error) {
	if code == "" {
		return nil, apperr.Invalid("area code is required")
	}
	return s.repo.OpenOrders(ctx, code)
}

func (s *Service) Statistics(ctx context.Context) (Stats, error) {
	byStatus, byArea, err := s.repo.OrderCounts(ctx)
	if err != nil {
		return Stats{}, err
	}
	areas, err := s.repo.ListAreas(ctx, false)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{ByStatus: byStatus, ByArea: byArea, Areas: len(areas)}
	for _, a := range areas {
		if a.IsActive {
			st.Active++
		}
	}
	return st, nil
}

// Routes groups open orders by active area, busiest area first.
func (s *Service) Routes(ctx context.Context) ([]Route, error) {
	areas, err := s.repo.ListAreas(ctx, true)
	if err != nil {
		return nil, err
	}
	open, err := s.repo.OpenOrders(ctx, "")
	if err != nil {
		return nil, err
	}
	byArea := map[string][]OpenOrder{}
	for _, o := range open {
		byArea[o.Area] = append(byArea[o.Area], o)
	}
	var routes []Route
	for _, a := range areas {
		orders := byArea[a.Code]
		if len(orders) == 0 {
			continue
		}
		routes = append(routes, Route{Area: a, OrderCount: len(orders), Orders: orders})
	}
	sort.SliceStable(routes, func(i, j int) bool { return routes[i].OrderCount > routes[j].OrderCount })
	return routes, nil
}

func areaFromRequest(req AreaRequest) (*Area, error) {
	if !codePattern.MatchString(req.Code) {
		return nil, apperr.Invalid("code must be 2-50 lowercase letters, digits or underscores")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperr.Invalid("name is required")
	}
	fee, err := parseFee(req.BaseFee)
	if err != nil {
		return nil, err
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	landmarks := req.Landmarks
	if landmarks == nil {
		landmarks = []string{}
	}
	return &Area{
		Code:        req.Code,
		Name:        name,
		Description: req.Description,
		BaseFee:     fee,
		IsActive:    active,
		SortOrder:   req.SortOrder,
		Landmarks:   landmarks,
	}, nil
}

func parseFee(v string) (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(v)
	if err != nil || fee.IsNegative() {
		return decimal.Zero, apperr.Invalid("base_fee must be a non-negative decimal")
	}
	return fee.Round(2), nil
}
