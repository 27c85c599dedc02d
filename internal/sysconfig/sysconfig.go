// Package sysconfig reads the singleton system configuration, creating the
// default record when none exists.
package sysconfig

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

// Load returns the first stored configuration. When none exists a remote-mode
// configuration with no pinned models is created and returned.
func Load(ctx context.Context, st store.ConfigStore) (*models.SystemConfiguration, error) {
	cfgs, err := st.ListSystemConfigurations(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing system configurations: %w", err)
	}
	if len(cfgs) > 0 {
		return cfgs[0], nil
	}

	now := time.Now().UTC()
	cfg := &models.SystemConfiguration{
		ID:              uuid.NewString(),
		ActiveModelType: models.InfraRemote,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := st.CreateSystemConfiguration(ctx, cfg); err != nil {
		return nil, fmt.Errorf("creating default system configuration: %w", err)
	}
	slog.Info("created default system configuration", "id", cfg.ID, "active_model_type", cfg.ActiveModelType)
	return cfg, nil
}
