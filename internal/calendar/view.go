// Package calendar projects the coordinator's cached schedule into
// calendar-shaped events. It is a pure read-only view: nothing here
// triggers a fetch or mutates the snapshot.
package calendar

import (
	"fmt"
	"time"

	"fitconnect/internal/schedule"
)

// Event is a single rendered calendar entry.
type Event struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	UID         string    `json:"uid,omitempty"`
}

// View renders snapshots into calendar events. Location is typically
// the gym name; FallbackFirstName is used for event summaries until a
// refresh resolves the user's first name from a class roster.
type View struct {
	Location          string
	FallbackFirstName string
}

// Events returns one calendar event per booked class in the snapshot,
// in snapshot order. Only events with subscribed == true appear;
// events whose timestamps failed to parse are skipped.
func (v *View) Events(snap *schedule.Snapshot) []Event {
	if snap == nil {
		return nil
	}

	firstName := snap.UserFirstName
	if firstName == "" {
		firstName = v.FallbackFirstName
	}

	var events []Event
	for _, item := range snap.Events {
		if !item.Enrolled() || !item.TimesKnown() {
			continue
		}

		summary := item.DisplayTitle()
		name := item.UserFirstName
		if name == "" {
			name = firstName
		}
		if name != "" {
			summary = fmt.Sprintf("%s - %s", name, summary)
		}

		events = append(events, Event{
			Start:       item.Start,
			End:         item.End,
			Summary:     summary,
			Description: item.Description,
			Location:    v.Location,
			UID:         item.UID(),
		})
	}
	return events
}

// EventsBetween returns the booked events overlapping the half-open
// range [start, end): an event matches when its end is after the range
// start and its start is before the range end.
func (v *View) EventsBetween(snap *schedule.Snapshot, start, end time.Time) []Event {
	var matched []Event
	for _, ev := range v.Events(snap) {
		if ev.End.After(start) && ev.Start.Before(end) {
			matched = append(matched, ev)
		}
	}
	return matched
}

// CurrentOrNext returns the event to surface as "current": an event in
// progress at now wins, otherwise the earliest upcoming one. Nil when
// every booked event already ended.
func (v *View) CurrentOrNext(snap *schedule.Snapshot, now time.Time) *Event {
	events := v.Events(snap)

	var best *Event
	for i := range events {
		ev := &events[i]
		if !ev.Start.After(now) && now.Before(ev.End) {
			return ev
		}
		if ev.Start.Before(now) {
			continue
		}
		if best == nil || ev.Start.Before(best.Start) {
			best = ev
		}
	}
	return best
}
