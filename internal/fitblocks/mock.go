package fitblocks

import (
	"context"
	"sync"
	"time"
)

// MockAPI implements API for testing. Per-operation function hooks
// override the defaults; calls are recorded for assertions.
type MockAPI struct {
	mu sync.Mutex

	Email string

	LoginFunc        func(ctx context.Context) error
	GetScheduleFunc  func(ctx context.Context, start, end time.Time) (*Schedule, error)
	GetDetailsFunc   func(ctx context.Context, classTypeID, eventID string, start, end time.Time) (*ClassTypeDetails, error)
	EnrollFunc       func(ctx context.Context, start, end time.Time, classTypeID string) (string, error)
	UnenrollFunc     func(ctx context.Context, scheduleRegistrationID, classTypeID string) error
	BrandingFunc     func(ctx context.Context) (string, error)
	detailCalls      []DetailCall
	enrollCalls      int
	unenrollCalls    int
	scheduleRequests int
}

// DetailCall records one GetClassTypeDetails invocation.
type DetailCall struct {
	ClassTypeID string
	EventID     string
	Start       time.Time
	End         time.Time
}

// NewMockAPI creates a mock client with no configured responses.
func NewMockAPI() *MockAPI {
	return &MockAPI{}
}

func (m *MockAPI) Login(ctx context.Context) error {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx)
	}
	return nil
}

func (m *MockAPI) GetSchedule(ctx context.Context, start, end time.Time) (*Schedule, error) {
	m.mu.Lock()
	m.scheduleRequests++
	m.mu.Unlock()
	if m.GetScheduleFunc != nil {
		return m.GetScheduleFunc(ctx, start, end)
	}
	return &Schedule{}, nil
}

func (m *MockAPI) GetClassTypeDetails(ctx context.Context, classTypeID, eventID string, start, end time.Time) (*ClassTypeDetails, error) {
	m.mu.Lock()
	m.detailCalls = append(m.detailCalls, DetailCall{
		ClassTypeID: classTypeID,
		EventID:     eventID,
		Start:       start,
		End:         end,
	})
	m.mu.Unlock()
	if m.GetDetailsFunc != nil {
		return m.GetDetailsFunc(ctx, classTypeID, eventID, start, end)
	}
	return &ClassTypeDetails{}, nil
}

func (m *MockAPI) Enroll(ctx context.Context, start, end time.Time, classTypeID string) (string, error) {
	m.mu.Lock()
	m.enrollCalls++
	m.mu.Unlock()
	if m.EnrollFunc != nil {
		return m.EnrollFunc(ctx, start, end, classTypeID)
	}
	return "success", nil
}

func (m *MockAPI) Unenroll(ctx context.Context, scheduleRegistrationID, classTypeID string) error {
	m.mu.Lock()
	m.unenrollCalls++
	m.mu.Unlock()
	if m.UnenrollFunc != nil {
		return m.UnenrollFunc(ctx, scheduleRegistrationID, classTypeID)
	}
	return nil
}

func (m *MockAPI) FetchBranding(ctx context.Context) (string, error) {
	if m.BrandingFunc != nil {
		return m.BrandingFunc(ctx)
	}
	return "", nil
}

func (m *MockAPI) UserEmail() string {
	return m.Email
}

// DetailCalls returns a copy of the recorded detail fetches.
func (m *MockAPI) DetailCalls() []DetailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]DetailCall, len(m.detailCalls))
	copy(calls, m.detailCalls)
	return calls
}

// EnrollCalls returns the number of Enroll invocations.
func (m *MockAPI) EnrollCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enrollCalls
}

// UnenrollCalls returns the number of Unenroll invocations.
func (m *MockAPI) UnenrollCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unenrollCalls
}

// ScheduleRequests returns the number of GetSchedule invocations.
func (m *MockAPI) ScheduleRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scheduleRequests
}
