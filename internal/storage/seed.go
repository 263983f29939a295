package storage

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is the archive content loaded at startup from a YAML file.
type Seed struct {
	Customers  []Customer  `yaml:"customers"`
	Promotions []Promotion `yaml:"promotions"`
}

func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed file: %w", err)
	}
	return seed, nil
}

// ApplySeed upserts every seeded customer and promotion. Applying the same
// seed twice leaves the archive unchanged.
func (s *SQLiteStore) ApplySeed(ctx context.Context, seed Seed) error {
	for _, c := range seed.Customers {
		if err := s.UpsertCustomer(ctx, c); err != nil {
			return err
		}
	}
	for _, p := range seed.Promotions {
		if _, err := s.SavePromotion(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
