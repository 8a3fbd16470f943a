package repository

import (
	"context"
	"database/sql"
)

type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db}
}

// GetSettings returns the raw app_settings rows keyed by setting key.
func (r *SettingsRepository) GetSettings(ctx context.Context) (map[string]string, error) {
	settings := map[string]string{}

	rows, err := r.db.QueryContext(ctx, `SELECT setting_key, setting_value FROM app_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

func (r *SettingsRepository) PutSetting(ctx context.Context, key, value string) error {
	query := `INSERT INTO app_settings (setting_key, setting_value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value)`
	_, err := r.db.ExecContext(ctx, query, key, value)
	return err
}
