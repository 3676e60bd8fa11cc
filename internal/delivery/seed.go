package delivery

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Areas []seedArea `yaml:"areas"`
}

type seedArea struct {
	Code        string   `yaml:"code"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	BaseFee     string   `yaml:"base_fee"`
	IsActive    *bool    `yaml:"is_active"`
	SortOrder   int      `yaml:"sort_order"`
	Landmarks   []string `yaml:"landmarks"`
}

// ParseSeed reads a YAML list of areas.
func ParseSeed(r io.Reader) ([]Area, error) {
	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, errors.Wrap(err, "decode seed")
	}
	out := make([]Area, 0, len(f.Areas))
	for i, sa := range f.Areas {
		a, err := areaFromRequest(AreaRequest{
			Code:        sa.Code,
			Name:        sa.Name,
			Description: sa.Description,
			BaseFee:     sa.BaseFee,
			IsActive:    sa.IsActive,
			SortOrder:   sa.SortOrder,
			Landmarks:   sa.Landmarks,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "area #%d", i+1)
		}
		out = append(out, *a)
	}
	return out, nil
}

// Seed upserts every area from r by code.
func (s *Service) Seed(ctx context.Context, r io.Reader) (int, error) {
	areas, err := ParseSeed(r)
	if err != nil {
		return 0, err
	}
	for i := range areas {
		if err := s.repo.UpsertArea(ctx, &areas[i]); err != nil {
			return i, errors.Wrapf(err, "seed %s", areas[i].Code)
		}
	}
	s.log.WithField("count", len(areas)).Info("delivery areas seeded")
	return len(areas), nil
}
