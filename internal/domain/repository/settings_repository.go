package repository

import "context"

// SettingsRepository is the persisted key-value settings store.
// Callers read it fresh at the start of each job and each scheduler tick so
// a settings change takes effect on the next cycle without a restart.
type SettingsRepository interface {
	Get(ctx context.Context, key, fallback string) (string, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}
