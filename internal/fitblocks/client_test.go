package fitblocks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testBox   = "physicsperformance"
	testToken = "tok-123"
)

const loginPage = `<html><head>
<meta name="csrf-token" content="` + testToken + `">
</head><body>login</body></html>`

// upstream is a configurable mock of the Fitblocks portal.
type upstream struct {
	mux *http.ServeMux
	srv *httptest.Server

	loginPosts    int
	schedulePage  func(w http.ResponseWriter, r *http.Request)
	scheduleJSON  func(w http.ResponseWriter, r *http.Request)
	detailsJSON   func(w http.ResponseWriter, r *http.Request)
	enrollFunc    func(w http.ResponseWriter, r *http.Request)
	unenrollFunc  func(w http.ResponseWriter, r *http.Request)
	brandingPage  func(w http.ResponseWriter, r *http.Request)
	loginPageFunc func(w http.ResponseWriter, r *http.Request)
	loginPostFunc func(w http.ResponseWriter, r *http.Request)
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{mux: http.NewServeMux()}

	u.mux.HandleFunc("/"+testBox+"/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if u.loginPageFunc != nil {
				u.loginPageFunc(w, r)
				return
			}
			fmt.Fprint(w, loginPage)
			return
		}
		u.loginPosts++
		if u.loginPostFunc != nil {
			u.loginPostFunc(w, r)
			return
		}
		require.NoError(t, r.ParseForm())
		assert.Equal(t, testToken, r.PostFormValue("_token"))
		assert.Equal(t, "1", r.PostFormValue("remember"))
		http.SetCookie(w, &http.Cookie{Name: "fitblocks_session", Value: "sess"})
		w.WriteHeader(http.StatusOK)
	})
	u.mux.HandleFunc("/"+testBox+"/schedule", func(w http.ResponseWriter, r *http.Request) {
		if u.schedulePage != nil {
			u.schedulePage(w, r)
			return
		}
		fmt.Fprint(w, loginPage)
	})
	u.mux.HandleFunc("/"+testBox+"/schedule/json", func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, u.scheduleJSON, "unexpected schedule/json call")
		u.scheduleJSON(w, r)
	})
	u.mux.HandleFunc("/"+testBox+"/classTypeDetails", func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, u.detailsJSON, "unexpected classTypeDetails call")
		u.detailsJSON(w, r)
	})
	u.mux.HandleFunc("/"+testBox+"/subscribeToScheduleItem", func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, u.enrollFunc, "unexpected subscribe call")
		u.enrollFunc(w, r)
	})
	u.mux.HandleFunc("/"+testBox+"/unsubscribeFromScheduleItem", func(w http.ResponseWriter, r *http.Request) {
		require.NotNil(t, u.unenrollFunc, "unexpected unsubscribe call")
		u.unenrollFunc(w, r)
	})
	u.mux.HandleFunc("/"+testBox+"/", func(w http.ResponseWriter, r *http.Request) {
		if u.brandingPage != nil {
			u.brandingPage(w, r)
			return
		}
		http.NotFound(w, r)
	})

	u.srv = httptest.NewServer(u.mux)
	t.Cleanup(u.srv.Close)
	return u
}

func (u *upstream) client() *Client {
	return NewClient(Config{
		BaseURL:  u.srv.URL,
		Box:      testBox,
		Username: "jane.doe@example.com",
		Password: "hunter2",
	}, time.UTC, zap.NewNop())
}

func requireCSRFHeaders(t *testing.T, r *http.Request) {
	t.Helper()
	assert.Equal(t, testToken, r.Header.Get("X-CSRF-TOKEN"))
	assert.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
}

func TestClient_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("successful login", func(t *testing.T) {
		u := newUpstream(t)
		c := u.client()

		err := c.Login(ctx)
		require.NoError(t, err)
		assert.True(t, c.IsLoggedIn())
		assert.Equal(t, 1, u.loginPosts)
	})

	t.Run("missing csrf meta tag", func(t *testing.T) {
		u := newUpstream(t)
		u.loginPageFunc = func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "<html><body>no token here</body></html>")
		}
		c := u.client()

		err := c.Login(ctx)
		var protoErr *ProtocolError
		require.ErrorAs(t, err, &protoErr)
		assert.False(t, c.IsLoggedIn())
	})

	t.Run("invalid credentials", func(t *testing.T) {
		u := newUpstream(t)
		u.loginPostFunc = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}
		c := u.client()

		err := c.Login(ctx)
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.False(t, c.IsLoggedIn())
	})

	t.Run("unexpected login status", func(t *testing.T) {
		u := newUpstream(t)
		u.loginPostFunc = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}
		c := u.client()

		err := c.Login(ctx)
		var protoErr *ProtocolError
		require.ErrorAs(t, err, &protoErr)
	})

	t.Run("csrf refresh failure is swallowed", func(t *testing.T) {
		u := newUpstream(t)
		u.schedulePage = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}
		c := u.client()

		err := c.Login(ctx)
		require.NoError(t, err)
		assert.True(t, c.IsLoggedIn())
	})

	t.Run("csrf token refreshed from schedule page", func(t *testing.T) {
		u := newUpstream(t)
		u.schedulePage = func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `<meta name="csrf-token" content="fresher-token">`)
		}
		c := u.client()

		require.NoError(t, c.Login(ctx))
		assert.Equal(t, "fresher-token", c.session.token())
	})
}

func TestClient_GetSchedule(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches with utc millisecond timestamps", func(t *testing.T) {
		u := newUpstream(t)
		u.scheduleJSON = func(w http.ResponseWriter, r *http.Request) {
			requireCSRFHeaders(t, r)
			assert.Equal(t, "2025-12-03T11:00:00.000Z", r.URL.Query().Get("start"))
			assert.Equal(t, "2025-12-10T11:00:00.000Z", r.URL.Query().Get("end"))
			fmt.Fprint(w, `{"events":[{"id":"e1","classTypeId":"ct1","start":"2025-12-03T11:00:00Z","end":"2025-12-03T12:00:00Z","title":"S&C","subscribed":true}]}`)
		}
		c := u.client()

		start := time.Date(2025, 12, 3, 11, 0, 0, 0, time.UTC)
		schedule, err := c.GetSchedule(ctx, start, start.AddDate(0, 0, 7))
		require.NoError(t, err)
		require.Len(t, schedule.Events, 1)
		assert.Equal(t, "e1", schedule.Events[0].ID)
		assert.True(t, schedule.Events[0].Subscribed)
		// Login ran implicitly before the first call.
		assert.Equal(t, 1, u.loginPosts)
	})

	t.Run("401 maps to AuthError and invalidates the session", func(t *testing.T) {
		u := newUpstream(t)
		u.scheduleJSON = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}
		c := u.client()
		require.NoError(t, c.Login(ctx))

		_, err := c.GetSchedule(ctx, time.Now(), time.Now().Add(time.Hour))
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.False(t, c.IsLoggedIn())
	})

	t.Run("other status maps to APIError with the code", func(t *testing.T) {
		u := newUpstream(t)
		u.scheduleJSON = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}
		c := u.client()

		_, err := c.GetSchedule(ctx, time.Now(), time.Now().Add(time.Hour))
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	})
}

func TestClient_GetClassTypeDetails(t *testing.T) {
	ctx := context.Background()

	t.Run("uses local naive timestamps", func(t *testing.T) {
		u := newUpstream(t)
		u.detailsJSON = func(w http.ResponseWriter, r *http.Request) {
			requireCSRFHeaders(t, r)
			q := r.URL.Query()
			assert.Equal(t, "ct1", q.Get("classTypeId"))
			assert.Equal(t, "e1", q.Get("eventId"))
			// One hour ahead of UTC, no zone suffix.
			assert.Equal(t, "2025-12-16T18:45:00", q.Get("eventDate"))
			assert.Equal(t, "2025-12-16T19:45:00", q.Get("eventEndDate"))
			fmt.Fprint(w, `{"creditsRemaining":7,"scheduleRegistrationId":"reg-1"}`)
		}

		c := NewClient(Config{
			BaseURL:  u.srv.URL,
			Box:      testBox,
			Username: "jane.doe@example.com",
			Password: "hunter2",
		}, time.FixedZone("CET", 3600), zap.NewNop())

		start := time.Date(2025, 12, 16, 17, 45, 0, 0, time.UTC)
		details, err := c.GetClassTypeDetails(ctx, "ct1", "e1", start, start.Add(time.Hour))
		require.NoError(t, err)
		require.NotNil(t, details.CreditsRemaining)
		assert.Equal(t, 7, *details.CreditsRemaining)
		assert.Equal(t, "reg-1", details.ScheduleRegistrationID)
	})
}

func TestClient_Enroll(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 12, 16, 17, 45, 0, 0, time.UTC)

	t.Run("returns body status when present", func(t *testing.T) {
		u := newUpstream(t)
		u.enrollFunc = func(w http.ResponseWriter, r *http.Request) {
			requireCSRFHeaders(t, r)
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "ct1", payload["classTypeId"])
			assert.Equal(t, "2025-12-16T17:45:00", payload["startDate"])
			fmt.Fprint(w, `{"status":"waiting_list"}`)
		}
		c := u.client()

		status, err := c.Enroll(ctx, start, start.Add(time.Hour), "ct1")
		require.NoError(t, err)
		assert.Equal(t, "waiting_list", status)
	})

	t.Run("falls back to success on statusless 200", func(t *testing.T) {
		u := newUpstream(t)
		u.enrollFunc = func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{}`)
		}
		c := u.client()

		status, err := c.Enroll(ctx, start, start.Add(time.Hour), "ct1")
		require.NoError(t, err)
		assert.Equal(t, "success", status)
	})

	t.Run("401 maps to AuthError", func(t *testing.T) {
		u := newUpstream(t)
		u.enrollFunc = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}
		c := u.client()

		_, err := c.Enroll(ctx, start, start.Add(time.Hour), "ct1")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
	})
}

func TestClient_Unenroll(t *testing.T) {
	ctx := context.Background()

	t.Run("http 200 is the sole success criterion", func(t *testing.T) {
		u := newUpstream(t)
		u.unenrollFunc = func(w http.ResponseWriter, r *http.Request) {
			requireCSRFHeaders(t, r)
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, "reg-1", payload["scheduleRegistrationId"])
			assert.Equal(t, "ct1", payload["classTypeId"])
			fmt.Fprint(w, "not even json")
		}
		c := u.client()

		require.NoError(t, c.Unenroll(ctx, "reg-1", "ct1"))
	})

	t.Run("non-200 maps to APIError", func(t *testing.T) {
		u := newUpstream(t)
		u.unenrollFunc = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}
		c := u.client()

		err := c.Unenroll(ctx, "reg-1", "ct1")
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	})
}

func TestClient_FetchBranding(t *testing.T) {
	ctx := context.Background()

	t.Run("extracts and normalizes the gym name", func(t *testing.T) {
		u := newUpstream(t)
		u.brandingPage = func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `<span class="header-visual-title">BAR&#39;S GYM</span>`)
		}
		c := u.client()

		name, err := c.FetchBranding(ctx)
		require.NoError(t, err)
		assert.Equal(t, "Bar's Gym", name)
		assert.Equal(t, "Bar's Gym", c.BrandingName())
	})

	t.Run("non-200 returns empty without error", func(t *testing.T) {
		u := newUpstream(t)
		u.brandingPage = func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		c := u.client()

		name, err := c.FetchBranding(ctx)
		require.NoError(t, err)
		assert.Empty(t, name)
	})
}

func TestClient_TransportErrors(t *testing.T) {
	u := newUpstream(t)
	c := u.client()
	u.srv.Close()

	err := c.Login(context.Background())
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.False(t, connErr.Certificate)
}

func TestNormalizeBrandName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"BAR'S GYM", "Bar's Gym"},
		{"BAR 'S GYM", "Bar's Gym"},
		{"  physics   performance  ", "Physics Performance"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeBrandName(tt.raw), "raw=%q", tt.raw)
	}
}
