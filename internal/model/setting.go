package model

import "time"

// Setting is a free-form key/value row managed by admins through the agent
// configuration endpoints.
type Setting struct {
	ID          int64     `json:"id" db:"id"`
	Key         string    `json:"key" db:"key"`
	Value       string    `json:"value" db:"value"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

const (
	MaxSettingKeyLen         = 100
	MaxSettingDescriptionLen = 300
)

// DefaultSettings are inserted by a seeded store when the keys are absent.
func DefaultSettings() []Setting {
	return []Setting{
		{Key: "crawler_interval", Value: "3600", Description: "Crawler run interval in seconds"},
		{Key: "max_data_rows", Value: "1000000", Description: "Maximum number of stored weather rows"},
		{Key: "enable_cache", Value: "true", Description: "Whether query caching is enabled"},
	}
}
