package toggl

import (
	"time"

	"github.com/shopspring/decimal"
)

// rawWorkspace mirrors GET workspaces/{id}.
type rawWorkspace struct {
	ID                int64               `json:"id"`
	DefaultHourlyRate decimal.NullDecimal `json:"default_hourly_rate"`
}

// rawClient mirrors GET workspaces/{wid}/clients/{id}.
type rawClient struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Archived bool   `json:"archived"`
}

// rawProject mirrors GET workspaces/{wid}/projects/{id}.
type rawProject struct {
	ID       int64               `json:"id"`
	Rate     decimal.NullDecimal `json:"rate"`
	ClientID *int64              `json:"client_id"`
}

// rawTimeEntry mirrors one element of GET me/time_entries.
type rawTimeEntry struct {
	ID              int64      `json:"id"`
	Billable        bool       `json:"billable"`
	Description     *string    `json:"description"`
	Start           time.Time  `json:"start"`
	Stop            *time.Time `json:"stop"`
	UserID          int64      `json:"user_id"`
	Duration        int64      `json:"duration"`
	ServerDeletedAt *time.Time `json:"server_deleted_at"`
	WorkspaceID     int64      `json:"workspace_id"`
	ProjectID       *int64     `json:"project_id"`
}
