package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/johniman211/payssd-sub003/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// SettingsRepo implements ports.SettingsRepository over the single
// platform_settings row.
type SettingsRepo struct {
	pool Pool
}

// NewSettingsRepo creates a new SettingsRepo.
func NewSettingsRepo(pool Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

// Get reads the settings row. A missing row yields the defaults.
func (r *SettingsRepo) Get(ctx context.Context) (*domain.PlatformSettings, error) {
	query := `SELECT admin_payment_notifications, updated_at FROM platform_settings WHERE id = 1`

	s := &domain.PlatformSettings{}
	err := r.pool.QueryRow(ctx, query).Scan(&s.AdminPaymentNotifications, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.PlatformSettings{}, nil
		}
		return nil, fmt.Errorf("get platform settings: %w", err)
	}
	return s, nil
}

// Update upserts the settings row.
func (r *SettingsRepo) Update(ctx context.Context, settings *domain.PlatformSettings) error {
	query := `INSERT INTO platform_settings (id, admin_payment_notifications, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE
		SET admin_payment_notifications = EXCLUDED.admin_payment_notifications, updated_at = NOW()`

	if _, err := r.pool.Exec(ctx, query, settings.AdminPaymentNotifications); err != nil {
		return fmt.Errorf("update platform settings: %w", err)
	}
	return nil
}
