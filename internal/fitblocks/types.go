package fitblocks

// Wire payloads returned by the Fitblocks endpoints. Every field is
// optional on the wire; consumers must check presence before use.

// Schedule is the response of /{box}/schedule/json.
type Schedule struct {
	Events []RawEvent `json:"events"`
}

// RawEvent is one schedule entry as returned by the upstream. The
// subscribed flag is the only indicator that the current user booked
// the event.
type RawEvent struct {
	ID          string `json:"id"`
	EventID     string `json:"eventId"`
	ClassTypeID string `json:"classTypeId"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Title       string `json:"title"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Subscribed  bool   `json:"subscribed"`
}

// Identifier returns the best available event identifier. Some
// deployments populate eventId, others only id.
func (e *RawEvent) Identifier() string {
	if e.EventID != "" {
		return e.EventID
	}
	return e.ID
}

// ClassTypeDetails is the response of /{box}/classTypeDetails for a
// single event. Numeric fields are pointers because the upstream omits
// them for some class types.
type ClassTypeDetails struct {
	Description                string       `json:"description"`
	CreditsRemaining           *int         `json:"creditsRemaining"`
	TotalPossibleRegistrations *int         `json:"totalPossibleRegistrations"`
	TotalRegistrations         *int         `json:"totalRegistrations"`
	TotalUsersOnWaitingList    *int         `json:"totalUsersOnWaitingList"`
	IsFull                     *bool        `json:"isFull"`
	ScheduleRegistrationID     string       `json:"scheduleRegistrationId"`
	SignedUpUsers              []RosterUser `json:"signedUpUsers"`
	Athletes                   []RosterUser `json:"athletes"`
}

// RosterUser is a participant entry in either the signedUpUsers or
// athletes list. The email field is absent on some deployments, which
// is why identity resolution also supports registration-id matching.
type RosterUser struct {
	FirstName              string `json:"first_name"`
	Surname                string `json:"surname"`
	Email                  string `json:"email"`
	ScheduleRegistrationID string `json:"schedule_registration_id"`
}

// enrollResponse is the loosely shaped body of subscribeToScheduleItem.
type enrollResponse struct {
	Status string `json:"status"`
}
