package schedule

import "time"

// Event is one bookable class instance in the coordinator's model.
// Start and End are UTC; they are zero when the upstream timestamp was
// unparseable, in which case consumers skip the event. The enrichment
// fields are populated only after a successful classTypeDetails fetch.
type Event struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	ClassTypeID string    `json:"class_type_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Subscribed  bool      `json:"subscribed"`

	CreditsRemaining           *int     `json:"credits_remaining,omitempty"`
	TotalRegistrations         *int     `json:"total_registrations,omitempty"`
	TotalPossibleRegistrations *int     `json:"total_possible_registrations,omitempty"`
	WaitingListCount           *int     `json:"total_users_on_waiting_list,omitempty"`
	IsFull                     *bool    `json:"is_full,omitempty"`
	Participants               []string `json:"participants,omitempty"`
	ScheduleRegistrationID     string   `json:"schedule_registration_id,omitempty"`
	UserFirstName              string   `json:"user_first_name,omitempty"`
}

// Enrolled reports whether the current user booked this event. The
// subscribed flag is the sole criterion throughout the system.
func (e *Event) Enrolled() bool {
	return e.Subscribed
}

// TimesKnown reports whether both timestamps parsed successfully.
func (e *Event) TimesKnown() bool {
	return !e.Start.IsZero() && !e.End.IsZero()
}

// UID returns the best available unique identifier for the event.
func (e *Event) UID() string {
	if e.ID != "" {
		return e.ID
	}
	if e.EventID != "" {
		return e.EventID
	}
	return e.ScheduleRegistrationID
}

// DisplayTitle returns the class name to show, falling back to the
// description when the schedule entry carries no title.
func (e *Event) DisplayTitle() string {
	if e.Title != "" {
		return e.Title
	}
	if e.Description != "" {
		return e.Description
	}
	return "Workout"
}

// Snapshot is the coordinator's cached result for one refresh cycle.
// It is replaced wholesale on every successful refresh; only
// LastKnownCredits survives a cycle that observed no credit values.
type Snapshot struct {
	Events           []*Event  `json:"events"`
	UserFirstName    string    `json:"user_first_name,omitempty"`
	LastKnownCredits *int      `json:"last_known_credits,omitempty"`
	FetchedAt        time.Time `json:"fetched_at"`
}
