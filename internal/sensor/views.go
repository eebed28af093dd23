// Package sensor projects the coordinator's cached schedule into
// sensor-shaped scalar values and lesson slots. Like the calendar
// view, everything here is a pure read of the snapshot.
package sensor

import (
	"fmt"
	"sort"
	"time"

	"fitconnect/internal/schedule"
)

// MaxLessonSlots is the number of "next lesson" slots exposed.
const MaxLessonSlots = 4

// Lesson describes one upcoming booked class with its enrichment
// attributes, for the Nth-lesson sensor slots.
type Lesson struct {
	Index                      int       `json:"index"`
	Workout                    string    `json:"workout"`
	Description                string    `json:"description,omitempty"`
	Start                      time.Time `json:"start"`
	End                        time.Time `json:"end,omitempty"`
	Occupancy                  string    `json:"occupancy,omitempty"`
	ParticipantsCount          *int      `json:"participants_count,omitempty"`
	CreditsRemaining           *int      `json:"credits_remaining,omitempty"`
	TotalRegistrations         *int      `json:"total_registrations,omitempty"`
	TotalPossibleRegistrations *int      `json:"total_possible_registrations,omitempty"`
	WaitingListCount           *int      `json:"total_users_on_waiting_list,omitempty"`
	ClassTypeID                string    `json:"class_type_id,omitempty"`
	EventID                    string    `json:"event_id,omitempty"`
	ScheduleRegistrationID     string    `json:"schedule_registration_id,omitempty"`
}

// upcomingEnrolled returns the booked events starting at or after now,
// sorted by start time.
func upcomingEnrolled(snap *schedule.Snapshot, now time.Time) []*schedule.Event {
	if snap == nil {
		return nil
	}
	var upcoming []*schedule.Event
	for _, ev := range snap.Events {
		if !ev.Enrolled() || !ev.TimesKnown() || ev.Start.Before(now) {
			continue
		}
		upcoming = append(upcoming, ev)
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].Start.Before(upcoming[j].Start)
	})
	return upcoming
}

// Credits returns the remaining-credits figure: the highest value
// across upcoming booked lessons, falling back to the sticky
// last-known value. Nil when no value has ever been observed.
func Credits(snap *schedule.Snapshot, now time.Time) *int {
	var best *int
	for _, ev := range upcomingEnrolled(snap, now) {
		if ev.CreditsRemaining == nil {
			continue
		}
		if best == nil || *ev.CreditsRemaining > *best {
			v := *ev.CreditsRemaining
			best = &v
		}
	}
	if best != nil {
		return best
	}
	if snap != nil && snap.LastKnownCredits != nil {
		v := *snap.LastKnownCredits
		return &v
	}
	return nil
}

// EnrolledCount returns the number of upcoming booked lessons.
func EnrolledCount(snap *schedule.Snapshot, now time.Time) int {
	return len(upcomingEnrolled(snap, now))
}

// UpcomingLessons returns up to MaxLessonSlots next booked lessons with
// their enrichment attributes attached.
func UpcomingLessons(snap *schedule.Snapshot, now time.Time) []Lesson {
	upcoming := upcomingEnrolled(snap, now)
	if len(upcoming) > MaxLessonSlots {
		upcoming = upcoming[:MaxLessonSlots]
	}

	lessons := make([]Lesson, 0, len(upcoming))
	for i, ev := range upcoming {
		lesson := Lesson{
			Index:                      i + 1,
			Workout:                    ev.DisplayTitle(),
			Description:                ev.Description,
			Start:                      ev.Start,
			End:                        ev.End,
			Occupancy:                  occupancy(ev),
			CreditsRemaining:           ev.CreditsRemaining,
			TotalRegistrations:         ev.TotalRegistrations,
			TotalPossibleRegistrations: ev.TotalPossibleRegistrations,
			WaitingListCount:           ev.WaitingListCount,
			ClassTypeID:                ev.ClassTypeID,
			EventID:                    ev.EventID,
			ScheduleRegistrationID:     ev.ScheduleRegistrationID,
		}
		if ev.Participants != nil {
			count := len(ev.Participants)
			lesson.ParticipantsCount = &count
		}
		lessons = append(lessons, lesson)
	}
	return lessons
}

// occupancy formats registrations as "12/14", appending the waiting
// list when it is non-empty, e.g. "14/14 (+2 waiting list)".
func occupancy(ev *schedule.Event) string {
	if ev.TotalRegistrations == nil || ev.TotalPossibleRegistrations == nil {
		return ""
	}
	s := fmt.Sprintf("%d/%d", *ev.TotalRegistrations, *ev.TotalPossibleRegistrations)
	if ev.WaitingListCount != nil && *ev.WaitingListCount > 0 {
		s = fmt.Sprintf("%s (+%d waiting list)", s, *ev.WaitingListCount)
	}
	return s
}
