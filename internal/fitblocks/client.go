package fitblocks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RequestTimeout bounds every individual HTTP call.
const RequestTimeout = 30 * time.Second

var (
	csrfMetaRe = regexp.MustCompile(
		`(?i)<meta\s+name=["']csrf-token["']\s+content=["']([^"']+)["']`)
	headerTitleRe = regexp.MustCompile(
		`(?is)<span[^>]*class=["']header-visual-title["'][^>]*>(.*?)</span>`)
	// Matches both "BAR'S" and "BAR 'S" after title-casing.
	aposFixRe    = regexp.MustCompile(`(?i)\s*'s\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// API is the set of upstream operations the rest of the system uses.
type API interface {
	Login(ctx context.Context) error
	GetSchedule(ctx context.Context, start, end time.Time) (*Schedule, error)
	GetClassTypeDetails(ctx context.Context, classTypeID, eventID string, start, end time.Time) (*ClassTypeDetails, error)
	Enroll(ctx context.Context, start, end time.Time, classTypeID string) (string, error)
	Unenroll(ctx context.Context, scheduleRegistrationID, classTypeID string) error
	FetchBranding(ctx context.Context) (string, error)
	UserEmail() string
}

// Config holds the connection settings for a single Fitblocks account.
type Config struct {
	BaseURL  string
	Box      string
	Username string
	Password string
}

// Client implements API against a Fitblocks deployment. It owns the
// session cookie (via the cookie jar) and the CSRF token, and re-runs
// the login flow transparently when the session is missing.
type Client struct {
	httpClient *http.Client
	baseURL    string
	box        string
	username   string
	password   string
	location   *time.Location
	logger     *zap.Logger

	session session
}

// NewClient creates a Fitblocks client. loc is the zone used for the
// timezone-naive timestamps some endpoints expect.
func NewClient(cfg Config, loc *time.Location, logger *zap.Logger) *Client {
	jar, _ := cookiejar.New(nil)
	if loc == nil {
		loc = time.Local
	}
	return &Client{
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: RequestTimeout,
		},
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		box:      strings.Trim(cfg.Box, "/"),
		username: cfg.Username,
		password: cfg.Password,
		location: loc,
		logger:   logger,
	}
}

// UserEmail returns the configured account email.
func (c *Client) UserEmail() string {
	return c.username
}

// BaseURL returns the configured base URL without trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Box returns the configured box slug.
func (c *Client) Box() string {
	return c.box
}

// IsLoggedIn reports whether the client completed the login flow.
func (c *Client) IsLoggedIn() bool {
	return c.session.isAuthenticated()
}

// BrandingName returns the gym name scraped by FetchBranding, if any.
func (c *Client) BrandingName() string {
	return c.session.brandingName()
}

func (c *Client) buildURL(endpoint string) string {
	endpoint = strings.TrimLeft(endpoint, "/")
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.box, endpoint)
}

// do executes a request and maps transport failures onto the error
// taxonomy. The caller owns the response body.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mapTransportError(err)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, rawURL string, params url.Values, headers map[string]string) (*http.Response, error) {
	if params != nil {
		rawURL = rawURL + "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, rawURL string, payload any, headers map[string]string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return c.do(req)
}

// formatISO8601Z renders a UTC timestamp with millisecond precision and
// a literal Z suffix, as schedule/json expects.
func formatISO8601Z(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// formatEventTime renders a local, timezone-naive timestamp at seconds
// precision. classTypeDetails and the subscribe endpoints expect this
// form, unlike schedule/json.
func (c *Client) formatEventTime(t time.Time) string {
	return t.In(c.location).Format("2006-01-02T15:04:05")
}

// Login runs the full login flow: scrape the CSRF token from the login
// page, POST the credentials, then best-effort refresh the token from
// the schedule page. The client counts as logged in once the POST
// succeeds, regardless of the refresh outcome.
func (c *Client) Login(ctx context.Context) error {
	loginURL := c.buildURL("login")

	c.logger.Debug("Fetching login page", zap.String("url", loginURL))
	resp, err := c.get(ctx, loginURL, nil, nil)
	if err != nil {
		return err
	}
	page, err := readBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &ProtocolError{
			Message: fmt.Sprintf("unexpected status %d for login page", resp.StatusCode),
		}
	}

	csrf := extractCSRFToken(page)
	if csrf == "" {
		return &ProtocolError{Message: "CSRF token not found on login page"}
	}
	c.session.setToken(csrf)

	form := url.Values{
		"_token":   {csrf},
		"email":    {c.username},
		"password": {c.password},
		"remember": {"1"},
	}
	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug("Posting login credentials")
	postResp, err := c.do(req)
	if err != nil {
		return err
	}
	defer postResp.Body.Close()
	io.Copy(io.Discard, postResp.Body)

	switch postResp.StatusCode {
	case http.StatusOK, http.StatusFound:
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{Message: "invalid credentials"}
	default:
		return &ProtocolError{
			Message: fmt.Sprintf("login failed with status %d", postResp.StatusCode),
		}
	}

	// A stale-but-valid token beats aborting a successful login, so
	// refresh failures are logged and swallowed.
	if err := c.refreshCSRFFromSchedule(ctx); err != nil {
		c.logger.Debug("Could not refresh CSRF token from schedule page", zap.Error(err))
	}

	c.session.setAuthenticated(true)
	c.logger.Debug("Login successful")
	return nil
}

// refreshCSRFFromSchedule fetches the schedule page and picks up a
// fresher CSRF token when one is present.
func (c *Client) refreshCSRFFromSchedule(ctx context.Context) error {
	scheduleURL := c.buildURL("schedule")
	resp, err := c.get(ctx, scheduleURL, nil, nil)
	if err != nil {
		return err
	}
	page, err := readBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("Schedule page not available for CSRF refresh",
			zap.Int("status", resp.StatusCode))
		return nil
	}
	if csrf := extractCSRFToken(page); csrf != "" {
		c.session.setToken(csrf)
		c.logger.Debug("Refreshed CSRF token from schedule page")
	}
	return nil
}

func extractCSRFToken(page string) string {
	match := csrfMetaRe.FindStringSubmatch(page)
	if match == nil {
		return ""
	}
	return match[1]
}

// ensureLoggedIn logs in when the session has no valid token yet. Each
// authenticated operation calls this once before the actual request.
func (c *Client) ensureLoggedIn(ctx context.Context) error {
	if c.session.isAuthenticated() && c.session.token() != "" {
		return nil
	}
	return c.Login(ctx)
}

// csrfHeaders returns the headers every authenticated call carries.
func (c *Client) csrfHeaders() (map[string]string, error) {
	token := c.session.token()
	if token == "" {
		return nil, &ProtocolError{Message: "CSRF token not available"}
	}
	return map[string]string{
		"X-CSRF-TOKEN":     token,
		"X-Requested-With": "XMLHttpRequest",
	}, nil
}

// checkAuthenticatedStatus maps response codes shared by all
// authenticated endpoints. A 401 invalidates the session so the next
// call retries the login flow once.
func (c *Client) checkAuthenticatedStatus(resp *http.Response, endpoint string) error {
	if resp.StatusCode == http.StatusUnauthorized {
		c.session.setAuthenticated(false)
		return &AuthError{Message: "unauthorized while calling " + endpoint}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode}
	}
	return nil
}

// GetSchedule fetches the schedule window via /{box}/schedule/json.
func (c *Client) GetSchedule(ctx context.Context, start, end time.Time) (*Schedule, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}
	headers, err := c.csrfHeaders()
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"start": {formatISO8601Z(start)},
		"end":   {formatISO8601Z(end)},
	}
	scheduleURL := c.buildURL("schedule/json")
	c.logger.Debug("Fetching schedule",
		zap.String("url", scheduleURL),
		zap.String("start", params.Get("start")),
		zap.String("end", params.Get("end")))

	resp, err := c.get(ctx, scheduleURL, params, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := c.checkAuthenticatedStatus(resp, "schedule/json"); err != nil {
		return nil, err
	}

	var schedule Schedule
	if err := json.NewDecoder(resp.Body).Decode(&schedule); err != nil {
		return nil, &ProtocolError{
			Message: fmt.Sprintf("invalid schedule/json response: %v", err),
		}
	}
	return &schedule, nil
}

// GetClassTypeDetails fetches per-event details via
// /{box}/classTypeDetails. Note the local naive timestamp format; this
// endpoint does not accept the Z-suffixed form schedule/json uses.
func (c *Client) GetClassTypeDetails(ctx context.Context, classTypeID, eventID string, start, end time.Time) (*ClassTypeDetails, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}
	headers, err := c.csrfHeaders()
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"classTypeId":  {classTypeID},
		"eventId":      {eventID},
		"eventDate":    {c.formatEventTime(start)},
		"eventEndDate": {c.formatEventTime(end)},
	}
	detailsURL := c.buildURL("classTypeDetails")
	c.logger.Debug("Fetching class type details",
		zap.String("classTypeId", classTypeID),
		zap.String("eventId", eventID))

	resp, err := c.get(ctx, detailsURL, params, headers)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := c.checkAuthenticatedStatus(resp, "classTypeDetails"); err != nil {
		return nil, err
	}

	var details ClassTypeDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, &ProtocolError{
			Message: fmt.Sprintf("invalid classTypeDetails response: %v", err),
		}
	}
	return &details, nil
}

// Enroll books the user into a class via subscribeToScheduleItem. The
// upstream signals success with HTTP 200; when the body carries a
// status string it is returned, otherwise "success".
func (c *Client) Enroll(ctx context.Context, start, end time.Time, classTypeID string) (string, error) {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return "", err
	}
	headers, err := c.csrfHeaders()
	if err != nil {
		return "", err
	}

	payload := map[string]string{
		"startDate":   c.formatEventTime(start),
		"endDate":     c.formatEventTime(end),
		"classTypeId": classTypeID,
	}
	enrollURL := c.buildURL("subscribeToScheduleItem")
	c.logger.Debug("Enrolling", zap.String("classTypeId", classTypeID))

	resp, err := c.postJSON(ctx, enrollURL, payload, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := c.checkAuthenticatedStatus(resp, "subscribeToScheduleItem"); err != nil {
		return "", err
	}

	var result enrollResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && result.Status != "" {
		return result.Status, nil
	}
	// Some deployments return no explicit status; HTTP 200 is enough.
	return "success", nil
}

// Unenroll cancels a booking via unsubscribeFromScheduleItem. Success
// is purely HTTP-200-based, the response body is ignored.
func (c *Client) Unenroll(ctx context.Context, scheduleRegistrationID, classTypeID string) error {
	if err := c.ensureLoggedIn(ctx); err != nil {
		return err
	}
	headers, err := c.csrfHeaders()
	if err != nil {
		return err
	}

	payload := map[string]string{
		"scheduleRegistrationId": scheduleRegistrationID,
		"classTypeId":            classTypeID,
	}
	unenrollURL := c.buildURL("unsubscribeFromScheduleItem")
	c.logger.Debug("Unenrolling",
		zap.String("scheduleRegistrationId", scheduleRegistrationID))

	resp, err := c.postJSON(ctx, unenrollURL, payload, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return c.checkAuthenticatedStatus(resp, "unsubscribeFromScheduleItem")
}

// FetchBranding loads the box root page and extracts the gym name.
// Returns an empty string instead of an error on non-200 responses.
func (c *Client) FetchBranding(ctx context.Context) (string, error) {
	brandingURL := c.buildURL("")
	c.logger.Debug("Fetching branding page", zap.String("url", brandingURL))

	resp, err := c.get(ctx, brandingURL, nil, nil)
	if err != nil {
		return "", err
	}
	page, err := readBody(resp)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Debug("Branding page not available", zap.Int("status", resp.StatusCode))
		return "", nil
	}

	name := extractBrandName(page)
	c.session.setBrandingName(name)
	c.logger.Debug("Branding extracted", zap.String("name", name))
	return name, nil
}

func extractBrandName(page string) string {
	match := headerTitleRe.FindStringSubmatch(page)
	if match == nil {
		return ""
	}
	return normalizeBrandName(match[1])
}

// normalizeBrandName turns raw scraped titles like "BAR'S GYM" or
// "BAR 'S GYM" into "Bar's Gym".
func normalizeBrandName(raw string) string {
	text := strings.TrimSpace(html.UnescapeString(raw))
	if text == "" {
		return ""
	}
	text = whitespaceRe.ReplaceAllString(text, " ")

	words := strings.Split(strings.ToLower(text), " ")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	titled := strings.Join(words, " ")

	return aposFixRe.ReplaceAllString(titled, "'s")
}

func readBody(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", mapTransportError(err)
	}
	return string(body), nil
}
