// Package registry administers prediction models: registration, the
// active-infrastructure switch and per-category activation.
//
// Activation is a multi-step read-then-write sequence without transactions.
// Two concurrent activations can interleave and leave more than one model
// active in a category until the next toggle. Configure a Locker to
// serialize them across processes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardiotriage/internal/cache"
	"github.com/kiranshivaraju/cardiotriage/internal/inference"
	"github.com/kiranshivaraju/cardiotriage/internal/store"
	"github.com/kiranshivaraju/cardiotriage/internal/sysconfig"
	"github.com/kiranshivaraju/cardiotriage/pkg/models"
)

var (
	ErrNoLocalModels          = errors.New("cannot activate local model mode: upload at least one local model first")
	ErrInfrastructureMismatch = errors.New("model infrastructure does not match the active infrastructure")
	ErrInvalidInfrastructure  = errors.New("infrastructure must be local or remote")
	ErrActivationInProgress   = errors.New("another activation is in progress")
	ErrInvalidModel           = errors.New("invalid model")
)

// Store is the persistence the registry mutates.
type Store interface {
	store.ModelStore
	store.ConfigStore
}

// Locker serializes activation mutations. cache.Cache satisfies it.
type Locker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// Service implements the activation protocol and model administration.
type Service struct {
	store    Store
	resolver *inference.Resolver
	locker   Locker
	lockTTL  time.Duration
	now      func() time.Time
}

type Option func(*Service)

// WithLocker enables the activation lock. Without it concurrent activations
// are last-write-wins.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = l
		s.lockTTL = ttl
	}
}

func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store:    st,
		resolver: inference.NewResolver(st),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the current system configuration, creating it if absent.
func (s *Service) Settings(ctx context.Context) (*models.SystemConfiguration, error) {
	return sysconfig.Load(ctx, s.store)
}

// ListModels returns registered models, newest first. An empty infra lists
// both kinds.
func (s *Service) ListModels(ctx context.Context, infra models.Infrastructure) ([]*models.ModelRecord, error) {
	ms, err := s.store.FilterModels(ctx, store.ModelFilter{Infrastructure: infra})
	if err != nil {
		return nil, fmt.Errorf("listing models: %w", err)
	}
	return ms, nil
}

// SwitchInfrastructure makes newType the active infrastructure. Active models
// of the other kind are deactivated and the models pinned for newType are
// reactivated if they still exist.
func (s *Service) SwitchInfrastructure(ctx context.Context, newType models.Infrastructure) (*models.SystemConfiguration, error) {
	if newType != models.InfraLocal && newType != models.InfraRemote {
		return nil, ErrInvalidInfrastructure
	}

	var result *models.SystemConfiguration
	err := s.withLock(ctx, func() error {
		cfg, err := sysconfig.Load(ctx, s.store)
		if err != nil {
			return err
		}
		all, err := s.store.ListModels(ctx)
		if err != nil {
			return fmt.Errorf("listing models: %w", err)
		}

		if newType == models.InfraLocal && !anyLocal(all) {
			return ErrNoLocalModels
		}

		if err := s.store.UpdateSystemConfiguration(ctx, cfg.ID, store.WithActiveModelType(newType)); err != nil {
			return fmt.Errorf("updating active infrastructure: %w", err)
		}

		exists := make(map[string]bool, len(all))
		for _, m := range all {
			exists[m.ID] = true
			if m.IsActive && m.Infrastructure() != newType {
				if err := s.store.SetModelActive(ctx, m.ID, false); err != nil {
					return fmt.Errorf("deactivating model %s: %w", m.ID, err)
				}
			}
		}

		for _, id := range cfg.Pointers(newType) {
			if !exists[id] {
				slog.Warn("ignoring pinned model that no longer exists", "model_id", id, "infrastructure", newType)
				continue
			}
			if err := s.store.SetModelActive(ctx, id, true); err != nil {
				return fmt.Errorf("reactivating model %s: %w", id, err)
			}
		}

		cfg.ActiveModelType = newType
		result = cfg
		slog.Info("switched active infrastructure", "infrastructure", newType)
		return nil
	})
	return result, err
}

// ToggleModelActive flips a model's active flag. Activating first
// deactivates every other model in the same infrastructure and category, then
// pins the model in the configuration; deactivating clears the pin.
func (s *Service) ToggleModelActive(ctx context.Context, modelID string) (*models.ModelRecord, error) {
	var result *models.ModelRecord
	err := s.withLock(ctx, func() error {
		cfg, err := sysconfig.Load(ctx, s.store)
		if err != nil {
			return err
		}
		target, err := s.store.GetModel(ctx, modelID)
		if err != nil {
			return fmt.Errorf("getting model %s: %w", modelID, err)
		}

		infra := target.Infrastructure()
		if infra != cfg.ActiveModelType {
			return fmt.Errorf("%w: model is %s, active infrastructure is %s",
				ErrInfrastructureMismatch, infra, cfg.ActiveModelType)
		}

		activate := !target.IsActive
		category, bucketed := models.CategoryOf(target.ModelType)

		if activate && bucketed {
			peers, err := s.store.FilterModels(ctx, store.ModelFilter{Infrastructure: infra})
			if err != nil {
				return fmt.Errorf("listing peer models: %w", err)
			}
			for _, m := range peers {
				if m.ID == target.ID || !m.IsActive {
					continue
				}
				if c, ok := models.CategoryOf(m.ModelType); ok && c == category {
					if err := s.store.SetModelActive(ctx, m.ID, false); err != nil {
						return fmt.Errorf("deactivating peer %s: %w", m.ID, err)
					}
				}
			}
		}

		if err := s.store.SetModelActive(ctx, target.ID, activate); err != nil {
			return fmt.Errorf("setting model active: %w", err)
		}

		if bucketed {
			var pin *string
			if activate {
				pin = &target.ID
			}
			if err := s.store.UpdateSystemConfiguration(ctx, cfg.ID, store.WithModelPointer(infra, category, pin)); err != nil {
				return fmt.Errorf("updating model pointer: %w", err)
			}
		}

		target.IsActive = activate
		result = target
		slog.Info("toggled model", "model_id", target.ID, "active", activate, "infrastructure", infra)
		return nil
	})
	return result, err
}

// ActiveModelName returns the display name of the model serving
// analysisType: the pinned model, else the first active compatible model,
// else "Default InvokeLLM" in remote mode when no custom remote model of the
// category is active, else "None".
func (s *Service) ActiveModelName(ctx context.Context, analysisType string) (string, error) {
	cfg, err := sysconfig.Load(ctx, s.store)
	if err != nil {
		return "", err
	}
	infra := cfg.ActiveModelType

	if category, ok := models.CategoryForAnalysis(analysisType); ok {
		if id := cfg.PointerFor(infra, category); id != "" {
			m, err := s.store.GetModel(ctx, id)
			switch {
			case err == nil:
				return m.ModelName, nil
			case !errors.Is(err, store.ErrNotFound):
				return "", fmt.Errorf("getting pinned model: %w", err)
			}
		}
	}

	if m := s.resolver.FindCompatible(ctx, analysisType, infra); m != nil {
		return m.ModelName, nil
	}

	if infra == models.InfraRemote {
		active := true
		custom, err := s.store.FilterModels(ctx, store.ModelFilter{
			Active:         &active,
			Infrastructure: models.InfraRemote,
			ModelTypes:     models.CompatibleModelTypes(analysisType),
		})
		if err != nil {
			return "", fmt.Errorf("listing remote models: %w", err)
		}
		if len(custom) == 0 {
			return "Default InvokeLLM", nil
		}
	}
	return "None", nil
}

// ActiveModels returns the display name per analysis category.
func (s *Service) ActiveModels(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string, 2)
	for _, at := range []string{models.TypeHeartDisease, models.TypeImageClassification} {
		name, err := s.ActiveModelName(ctx, at)
		if err != nil {
			return nil, err
		}
		out[at] = name
	}
	return out, nil
}

func (s *Service) withLock(ctx context.Context, fn func() error) error {
	if s.locker == nil {
		return fn()
	}

	key := cache.ActivationLockKey()
	token := uuid.NewString()
	ok, err := s.locker.AcquireLock(ctx, key, token, s.lockTTL)
	if err != nil {
		return fmt.Errorf("acquiring activation lock: %w", err)
	}
	if !ok {
		return ErrActivationInProgress
	}
	defer func() {
		if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			slog.Warn("releasing activation lock", "error", err)
		}
	}()
	return fn()
}

func anyLocal(ms []*models.ModelRecord) bool {
	for _, m := range ms {
		if m.IsLocal() {
			return true
		}
	}
	return false
}
