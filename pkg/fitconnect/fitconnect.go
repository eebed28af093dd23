// Package fitconnect provides a public facade re-exporting core types
// for external consumers of this module.
package fitconnect

import (
	"fitconnect/internal/calendar"
	"fitconnect/internal/fitblocks"
	"fitconnect/internal/schedule"
	"fitconnect/internal/sensor"
)

// Re-export core types for external use.
type (
	// Client is the HTTP session client for the booking portal.
	Client = fitblocks.Client
	// ClientConfig holds the connection settings for one account.
	ClientConfig = fitblocks.Config
	// API is the upstream operation set, mockable in tests.
	API = fitblocks.API
	// AuthError indicates rejected credentials or an expired session.
	AuthError = fitblocks.AuthError
	// ConnectionError wraps transport-level failures.
	ConnectionError = fitblocks.ConnectionError
	// APIError carries an unexpected upstream HTTP status.
	APIError = fitblocks.APIError
	// ProtocolError indicates unexpected upstream response structure.
	ProtocolError = fitblocks.ProtocolError
	// Coordinator orchestrates the periodic schedule refresh.
	Coordinator = schedule.Coordinator
	// Event is one bookable class instance.
	Event = schedule.Event
	// Snapshot is the cached result of one refresh cycle.
	Snapshot = schedule.Snapshot
	// CalendarView projects snapshots into calendar events.
	CalendarView = calendar.View
	// CalendarEvent is a rendered calendar entry.
	CalendarEvent = calendar.Event
	// Lesson is one upcoming booked class with attributes.
	Lesson = sensor.Lesson
)

// NewClient creates a portal client; see fitblocks.NewClient.
var NewClient = fitblocks.NewClient

// NewCoordinator creates a schedule coordinator; see
// schedule.NewCoordinator.
var NewCoordinator = schedule.NewCoordinator

// ErrAuthRequired signals that the host should prompt for new
// credentials instead of retrying.
var ErrAuthRequired = schedule.ErrAuthRequired
