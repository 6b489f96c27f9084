package app

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"tenant-gate/internal/domain"
)

//go:embed plans.yaml
var defaultPlans []byte

type planCatalog struct {
	Plans []domain.Plan `yaml:"plans"`
}

// LoadPlans reads a plan catalog. An empty path returns the embedded default
// catalog.
func LoadPlans(path string) ([]domain.Plan, error) {
	raw := defaultPlans
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read plan catalog: %w", err)
		}
		raw = b
	}
	return parsePlans(raw)
}

func parsePlans(raw []byte) ([]domain.Plan, error) {
	var cat planCatalog
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("parse plan catalog: %w", err)
	}
	if len(cat.Plans) == 0 {
		return nil, fmt.Errorf("plan catalog is empty")
	}
	seen := make(map[string]bool, len(cat.Plans))
	for i := range cat.Plans {
		p := &cat.Plans[i]
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("plan %d: %w", i, err)
		}
		if seen[p.Code] {
			return nil, fmt.Errorf("duplicate plan code %q", p.Code)
		}
		seen[p.Code] = true
	}
	return cat.Plans, nil
}

// SeedPlans upserts every plan of the catalog at path. It is idempotent.
func SeedPlans(ctx context.Context, repo domain.PlanRepository, path string, logger *slog.Logger) (int, error) {
	plans, err := LoadPlans(path)
	if err != nil {
		return 0, err
	}
	for i := range plans {
		if err := repo.Upsert(ctx, &plans[i]); err != nil {
			return 0, fmt.Errorf("upsert plan %s: %w", plans[i].Code, err)
		}
	}
	if logger != nil {
		logger.Info("plan catalog seeded", "plans", len(plans), "source", planSource(path))
	}
	return len(plans), nil
}

func planSource(path string) string {
	if path == "" {
		return "embedded"
	}
	return path
}
