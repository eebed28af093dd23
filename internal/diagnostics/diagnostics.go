// Package diagnostics builds a redacted, read-only projection of the
// runtime state for support exports. Credentials never appear
// unredacted in its output.
package diagnostics

import (
	"time"

	"fitconnect/internal/config"
	"fitconnect/internal/fitblocks"
	"fitconnect/internal/schedule"
)

// Redacted replaces credential fields in the export.
const Redacted = "**REDACTED**"

// Snapshot is the full diagnostics export.
type Snapshot struct {
	Config      ConfigInfo      `json:"config"`
	Schedule    ScheduleInfo    `json:"schedule"`
	Coordinator CoordinatorInfo `json:"coordinator"`
	Client      ClientInfo      `json:"client"`
}

// ConfigInfo is the configuration with credentials redacted.
type ConfigInfo struct {
	BaseURL         string `json:"base_url"`
	Box             string `json:"box"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	DisplayName     string `json:"display_name,omitempty"`
	Timezone        string `json:"timezone,omitempty"`
	RefreshInterval string `json:"refresh_interval"`
}

// ScheduleInfo summarizes the cached snapshot without leaking
// participant data wholesale.
type ScheduleInfo struct {
	EventsCount      *int `json:"events_count"`
	HasUserFirstName bool `json:"has_user_first_name"`
	LastKnownCredits *int `json:"last_known_credits"`
}

// CoordinatorInfo is the refresh-state summary.
type CoordinatorInfo struct {
	LastUpdateSuccess bool       `json:"last_update_success"`
	LastRefresh       *time.Time `json:"last_refresh"`
}

// ClientInfo is the session-client state summary.
type ClientInfo struct {
	BaseURL      string `json:"base_url"`
	Box          string `json:"box"`
	IsLoggedIn   bool   `json:"is_logged_in"`
	BrandingName string `json:"branding_name,omitempty"`
}

// Collect assembles the diagnostics snapshot.
func Collect(cfg *config.Config, coord *schedule.Coordinator, client *fitblocks.Client) *Snapshot {
	out := &Snapshot{
		Config: ConfigInfo{
			BaseURL:         cfg.BaseURL,
			Box:             cfg.Box,
			Username:        Redacted,
			Password:        Redacted,
			DisplayName:     cfg.DisplayName,
			Timezone:        cfg.Timezone,
			RefreshInterval: cfg.RefreshInterval.String(),
		},
		Client: ClientInfo{
			BaseURL:      client.BaseURL(),
			Box:          client.Box(),
			IsLoggedIn:   client.IsLoggedIn(),
			BrandingName: client.BrandingName(),
		},
	}

	if snap := coord.Snapshot(); snap != nil {
		count := len(snap.Events)
		out.Schedule = ScheduleInfo{
			EventsCount:      &count,
			HasUserFirstName: snap.UserFirstName != "",
			LastKnownCredits: snap.LastKnownCredits,
		}
	}

	out.Coordinator.LastUpdateSuccess = coord.LastUpdateSuccess()
	if last := coord.LastRefresh(); !last.IsZero() {
		out.Coordinator.LastRefresh = &last
	}
	return out
}
