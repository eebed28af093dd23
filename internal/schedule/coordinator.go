package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"fitconnect/internal/clock"
	"fitconnect/internal/fitblocks"
)

// MaxConcurrentDetailRequests bounds the classTypeDetails fan-out so a
// refresh cycle cannot overwhelm the upstream.
const MaxConcurrentDetailRequests = 4

// scheduleWindow is how far ahead each refresh cycle looks.
const scheduleWindow = 7 * 24 * time.Hour

// ErrAuthRequired signals that the upstream rejected the session and
// the host should prompt for new credentials instead of retrying.
var ErrAuthRequired = errors.New("reauthentication required")

// Coordinator orchestrates the periodic refresh: fetch the schedule
// window, fan out bounded-concurrency detail fetches for enrolled
// events, merge the results and publish a new Snapshot. It owns the
// cached snapshot exclusively; projections only read it.
type Coordinator struct {
	client   fitblocks.API
	clk      clock.Clock
	location *time.Location
	logger   *zap.Logger
	sem      *semaphore.Weighted

	// Serializes refresh cycles: on-demand refreshes after an enroll
	// action may race the periodic timer.
	refreshMu sync.Mutex

	mu               sync.RWMutex
	snapshot         *Snapshot
	lastKnownCredits *int
	lastRefresh      time.Time
	lastSuccess      bool

	listenersMu sync.Mutex
	listeners   []func(*Snapshot)
}

// NewCoordinator creates a coordinator. loc is the zone used to
// interpret timezone-naive upstream timestamps.
func NewCoordinator(client fitblocks.API, clk clock.Clock, loc *time.Location, logger *zap.Logger) *Coordinator {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Coordinator{
		client:   client,
		clk:      clk,
		location: loc,
		logger:   logger,
		sem:      semaphore.NewWeighted(MaxConcurrentDetailRequests),
	}
}

// Snapshot returns the last published schedule, or nil before the
// first successful refresh. Callers must not mutate it.
func (c *Coordinator) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

// LastRefresh returns when the last refresh cycle was attempted.
func (c *Coordinator) LastRefresh() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRefresh
}

// LastUpdateSuccess reports whether the most recent cycle succeeded.
func (c *Coordinator) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// Subscribe registers a callback invoked after every published
// snapshot. Callbacks run outside the coordinator's locks.
func (c *Coordinator) Subscribe(fn func(*Snapshot)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Coordinator) notify(snap *Snapshot) {
	c.listenersMu.Lock()
	listeners := make([]func(*Snapshot), len(c.listeners))
	copy(listeners, c.listeners)
	c.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// Refresh runs one full refresh cycle. An authentication failure is
// reported as ErrAuthRequired; every other failure, including a
// recovered panic, surfaces as a generic update error. Cycles are
// serialized, so an on-demand refresh never interleaves with the
// periodic one.
func (c *Coordinator) Refresh(ctx context.Context) (err error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Unexpected panic during schedule refresh", zap.Any("panic", r))
			c.recordFailure()
			err = fmt.Errorf("schedule update failed: %v", r)
		}
	}()

	now := c.clk.Now().UTC()
	end := now.Add(scheduleWindow)
	c.logger.Debug("Refreshing schedule",
		zap.Time("window_start", now),
		zap.Time("window_end", end))

	raw, err := c.client.GetSchedule(ctx, now, end)
	if err != nil {
		c.recordFailure()
		var authErr *fitblocks.AuthError
		if errors.As(err, &authErr) {
			return fmt.Errorf("%w: %v", ErrAuthRequired, err)
		}
		return fmt.Errorf("schedule update failed: %w", err)
	}

	events := c.buildEvents(raw)
	targets := c.selectEnrichmentTargets(events, now)

	var creditsValues []int
	if len(targets) > 0 {
		c.logger.Debug("Fetching class type details",
			zap.Int("events", len(targets)))
		results := c.fetchDetails(ctx, events, targets)
		creditsValues = c.mergeDetails(events, targets, results)
	}

	snap := &Snapshot{
		Events:        events,
		UserFirstName: promoteFirstName(events),
		FetchedAt:     now,
	}
	c.applyCredits(snap, creditsValues)

	c.mu.Lock()
	c.snapshot = snap
	c.lastRefresh = now
	c.lastSuccess = true
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

func (c *Coordinator) recordFailure() {
	now := c.clk.Now().UTC()
	c.mu.Lock()
	c.lastRefresh = now
	c.lastSuccess = false
	c.mu.Unlock()
}

// buildEvents converts the wire payload into the domain model,
// normalizing timestamps to UTC. Events with unparseable timestamps
// are kept but flagged by their zero Start/End.
func (c *Coordinator) buildEvents(raw *fitblocks.Schedule) []*Event {
	events := make([]*Event, 0, len(raw.Events))
	for i := range raw.Events {
		re := &raw.Events[i]
		ev := &Event{
			ID:          re.ID,
			EventID:     re.Identifier(),
			ClassTypeID: re.ClassTypeID,
			Title:       re.Title,
			Description: re.Description,
			Subscribed:  re.Subscribed,
		}
		if ev.Title == "" {
			ev.Title = re.Name
		}
		if start, ok := fitblocks.ParseUpstreamTime(re.Start, c.location); ok {
			if end, ok := fitblocks.ParseUpstreamTime(re.End, c.location); ok {
				ev.Start = start
				ev.End = end
			}
		}
		events = append(events, ev)
	}
	return events
}

// enrichable reports whether an event carries the complete
// identifier/time tuple a classTypeDetails call needs.
func enrichable(ev *Event) bool {
	return ev.ClassTypeID != "" && ev.EventID != "" && ev.TimesKnown()
}

// selectEnrichmentTargets returns indices of events to enrich: every
// enrolled event with a complete tuple, or, when the user has no
// bookings, the single soonest-starting future event. The fallback
// keeps the credits figure populated. No target means enrichment is
// skipped this cycle.
func (c *Coordinator) selectEnrichmentTargets(events []*Event, now time.Time) []int {
	var targets []int
	for i, ev := range events {
		if ev.Enrolled() && enrichable(ev) {
			targets = append(targets, i)
		}
	}
	if len(targets) > 0 {
		return targets
	}

	fallback := -1
	for i, ev := range events {
		if !enrichable(ev) || ev.Start.Before(now) {
			continue
		}
		if fallback == -1 || ev.Start.Before(events[fallback].Start) {
			fallback = i
		}
	}
	if fallback == -1 {
		return nil
	}
	return []int{fallback}
}

// fetchDetails executes the selected detail fetches with at most
// MaxConcurrentDetailRequests in flight. Results are collected
// positionally; an individual failure leaves a nil slot and never
// aborts the sibling fetches.
func (c *Coordinator) fetchDetails(ctx context.Context, events []*Event, targets []int) []*fitblocks.ClassTypeDetails {
	results := make([]*fitblocks.ClassTypeDetails, len(targets))
	var wg sync.WaitGroup

	for i, idx := range targets {
		wg.Add(1)
		go func(slot int, ev *Event) {
			defer wg.Done()
			if err := c.sem.Acquire(ctx, 1); err != nil {
				c.logger.Debug("Detail fetch cancelled",
					zap.String("event_id", ev.EventID), zap.Error(err))
				return
			}
			defer c.sem.Release(1)

			details, err := c.client.GetClassTypeDetails(
				ctx, ev.ClassTypeID, ev.EventID, ev.Start, ev.End)
			if err != nil {
				c.logger.Debug("Failed to fetch class type details",
					zap.String("event_id", ev.EventID),
					zap.String("class_type_id", ev.ClassTypeID),
					zap.Error(err))
				return
			}
			results[slot] = details
		}(i, events[idx])
	}

	wg.Wait()
	return results
}

// mergeDetails copies enrichment fields from each successful detail
// fetch onto its event and returns every credits value observed.
func (c *Coordinator) mergeDetails(events []*Event, targets []int, results []*fitblocks.ClassTypeDetails) []int {
	userEmail := strings.ToLower(c.client.UserEmail())

	var creditsValues []int
	for i, idx := range targets {
		details := results[i]
		if details == nil {
			continue
		}
		ev := events[idx]

		if details.Description != "" {
			ev.Description = details.Description
		}
		if details.CreditsRemaining != nil {
			ev.CreditsRemaining = intCopy(details.CreditsRemaining)
			creditsValues = append(creditsValues, *details.CreditsRemaining)
		}
		ev.TotalRegistrations = intCopy(details.TotalRegistrations)
		ev.TotalPossibleRegistrations = intCopy(details.TotalPossibleRegistrations)
		ev.WaitingListCount = intCopy(details.TotalUsersOnWaitingList)
		if details.IsFull != nil {
			v := *details.IsFull
			ev.IsFull = &v
		}
		if details.ScheduleRegistrationID != "" {
			ev.ScheduleRegistrationID = details.ScheduleRegistrationID
		}

		ev.Participants = participantNames(details.SignedUpUsers)
		ev.UserFirstName = resolveFirstName(details, userEmail, ev.ScheduleRegistrationID)
	}
	return creditsValues
}

func intCopy(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func participantNames(users []fitblocks.RosterUser) []string {
	var names []string
	for _, user := range users {
		full := strings.TrimSpace(
			strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.Surname))
		if full != "" {
			names = append(names, full)
		}
	}
	return names
}

// resolveFirstName finds the current user's first name in the detail
// payload's roster. The email path is preferred; some deployments omit
// emails entirely, in which case the registration id is matched
// against the signed-up list instead.
func resolveFirstName(details *fitblocks.ClassTypeDetails, userEmail, registrationID string) string {
	if userEmail != "" {
		for _, athlete := range details.Athletes {
			if strings.EqualFold(athlete.Email, userEmail) {
				return athlete.FirstName
			}
		}
		return ""
	}
	if registrationID != "" {
		for _, user := range details.SignedUpUsers {
			if user.ScheduleRegistrationID == registrationID {
				return user.FirstName
			}
		}
	}
	return ""
}

// promoteFirstName copies the first non-empty per-event first name
// onto the snapshot.
func promoteFirstName(events []*Event) string {
	for _, ev := range events {
		if ev.UserFirstName != "" {
			return ev.UserFirstName
		}
	}
	return ""
}

// applyCredits implements credits stickiness: the maximum observed
// value wins this cycle, and the previous value carries forward when a
// cycle observed none. A transient enrichment failure therefore never
// blanks a previously known figure.
func (c *Coordinator) applyCredits(snap *Snapshot, creditsValues []int) {
	if len(creditsValues) > 0 {
		best := creditsValues[0]
		for _, v := range creditsValues[1:] {
			if v > best {
				best = v
			}
		}
		snap.LastKnownCredits = &best
		c.mu.Lock()
		c.lastKnownCredits = intCopy(&best)
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastKnownCredits != nil {
		snap.LastKnownCredits = intCopy(c.lastKnownCredits)
	}
}
