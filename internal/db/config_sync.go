package db

import (
	"context"
	"fmt"

	"bookcore/internal/config"
	"bookcore/internal/model"
)

// SyncResult summarizes one application of resources.yaml.
type SyncResult struct {
	Upserted    int
	Deactivated int
	Policies    int // policies seeded for businesses that had none
}

// SyncResourcesFromConfig applies resources.yaml to the database. It upserts
// resources and marks resources that disappeared from the config inactive.
// Calendars and policies from the file only seed new rows; after that they
// are owned by the calendar and policy edit operations. Reservations are
// never touched.
func (db *DB) SyncResourcesFromConfig(ctx context.Context, cfg *config.ResourcesConfig) (SyncResult, error) {
	var result SyncResult
	if cfg == nil {
		return result, fmt.Errorf("resources config is nil")
	}

	seen := make(map[model.BusinessID]map[int64]struct{})

	for i := range cfg.Resources {
		rc := &cfg.Resources[i]
		res := &model.Resource{
			BusinessID: model.BusinessID(rc.BusinessID),
			Kind:       model.ResourceKind(rc.Kind),
			Name:       rc.Name,
			Active:     rc.IsActive,
			Capacity:   rc.Capacity,
			Calendar:   cfg.Calendar(rc),
		}
		if err := db.UpsertResource(ctx, res); err != nil {
			return result, fmt.Errorf("sync resource %q: %w", rc.Name, err)
		}
		if seen[res.BusinessID] == nil {
			seen[res.BusinessID] = make(map[int64]struct{})
		}
		seen[res.BusinessID][res.ID] = struct{}{}
		result.Upserted++
	}

	// Deactivate resources that disappeared from config.
	for business, keep := range seen {
		n, err := db.DeactivateResourcesExcept(ctx, business, keep)
		if err != nil {
			return result, err
		}
		result.Deactivated += n
	}

	for _, pc := range cfg.Policies {
		seeded, err := db.SeedPolicy(ctx, pc.BookingPolicy())
		if err != nil {
			return result, fmt.Errorf("sync policy of business %d: %w", pc.BusinessID, err)
		}
		if seeded {
			result.Policies++
		}
	}

	db.logger.Info().
		Int("upserted", result.Upserted).
		Int("deactivated", result.Deactivated).
		Int("policies", result.Policies).
		Msg("Resources config applied")
	return result, nil
}
