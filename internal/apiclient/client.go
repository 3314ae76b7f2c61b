package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plangrid/internal/preferences"
)

const (
	defaultTimeout         = 15 * time.Second
	organizationHeader     = "X-Organization-Uuid"
	maxErrorBodyBytes      = 4096
	schedulePreferencePath = "schedule-preference"
)

var (
	// ErrInvalidConfig indicates a client constructed without a usable base URL.
	ErrInvalidConfig = errors.New("apiclient: invalid config")
	// ErrMalformedResponse indicates a 2xx response whose body cannot be decoded.
	ErrMalformedResponse   = errors.New("apiclient: malformed response")
	errMissingPlanSettings = errors.New("plan settings uuid is required")
)

// StatusError reports a non-2xx response from the preference store.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("apiclient: %s %s returned status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("apiclient: %s %s returned status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Session carries the caller identity attached to every request.
type Session struct {
	Token            string
	OrganizationUUID string
	PlanSettingsUUID string
}

// Config configures the REST preference store client.
type Config struct {
	BaseURL    string
	Session    Session
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *zap.Logger
}

// Client talks to the REST preference store and satisfies preferences.Store.
type Client struct {
	baseURL    *url.URL
	session    Session
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

var _ preferences.Store = (*Client)(nil)

// New validates the configuration and returns a client.
func New(cfg Config) (*Client, error) {
	rawBase := strings.TrimSpace(cfg.BaseURL)
	if rawBase == "" {
		return nil, fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	}
	baseURL, err := url.Parse(strings.TrimRight(rawBase, "/"))
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidConfig, rawBase)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		baseURL:    baseURL,
		session:    cfg.Session,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger,
	}, nil
}

type createRequest struct {
	PeriodID        int64  `json:"periodId"`
	DayOfWeek       int    `json:"dayOfWeek"`
	PreferenceType  string `json:"preferenceType"`
	PreferenceValue bool   `json:"preferenceValue"`
}

// CreatePreference issues POST /{resource}/{entityUuid}/preferences.
func (c *Client) CreatePreference(ctx context.Context, entity preferences.Entity, periodID preferences.PeriodID, day preferences.DayOfWeek, preferenceType preferences.PreferenceType) (preferences.SchedulePreference, error) {
	payload := createRequest{
		PeriodID:        periodID.Int64(),
		DayOfWeek:       day.Int(),
		PreferenceType:  preferenceType.String(),
		PreferenceValue: true,
	}
	body, err := c.do(ctx, http.MethodPost, c.entityPath(entity), payload)
	if err != nil {
		return preferences.SchedulePreference{}, err
	}
	created, err := preferences.DecodePreference(entity.Adapter, body)
	if err != nil {
		return preferences.SchedulePreference{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return created, nil
}

// UpdatePreference issues PUT /{resource}/schedule-preference/{preferenceUuid}. The body
// carries the adapter's four flags with exactly the requested one set.
func (c *Client) UpdatePreference(ctx context.Context, entity preferences.Entity, preferenceUUID string, periodID preferences.PeriodID, day preferences.DayOfWeek, preferenceType preferences.PreferenceType) error {
	payload := make(map[string]any, 8)
	for name, value := range entity.Adapter.Flags.Encode(preferenceType) {
		payload[name] = value
	}
	payload["periodId"] = periodID.Int64()
	payload["dayOfWeek"] = day.Int()
	payload["preferenceType"] = preferenceType.String()
	payload["preferenceValue"] = true

	_, err := c.do(ctx, http.MethodPut, c.preferencePath(entity, preferenceUUID), payload)
	return err
}

// DeletePreference issues DELETE /{resource}/schedule-preference/{preferenceUuid}.
func (c *Client) DeletePreference(ctx context.Context, entity preferences.Entity, preferenceUUID string) error {
	_, err := c.do(ctx, http.MethodDelete, c.preferencePath(entity, preferenceUUID), nil)
	return err
}

// FetchPreferences issues GET /{resource}/{entityUuid}/preferences.
func (c *Client) FetchPreferences(ctx context.Context, entity preferences.Entity) ([]preferences.SchedulePreference, error) {
	body, err := c.do(ctx, http.MethodGet, c.entityPath(entity), nil)
	if err != nil {
		return nil, err
	}
	records, err := preferences.DecodeEntityPreferences(entity.Adapter, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return records, nil
}

type periodPayload struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type periodList struct {
	Periods []periodPayload `json:"periods"`
}

// ListPeriods issues GET /plan-settings/{planSettingsUuid}/periods for the session plan.
func (c *Client) ListPeriods(ctx context.Context) ([]preferences.Period, error) {
	planSettings := strings.TrimSpace(c.session.PlanSettingsUUID)
	if planSettings == "" {
		return nil, errMissingPlanSettings
	}
	body, err := c.do(ctx, http.MethodGet, "/plan-settings/"+url.PathEscape(planSettings)+"/periods", nil)
	if err != nil {
		return nil, err
	}

	var payloads []periodPayload
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &payloads)
	} else {
		var list periodList
		err = json.Unmarshal(trimmed, &list)
		payloads = list.Periods
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	periods := make([]preferences.Period, 0, len(payloads))
	for _, payload := range payloads {
		periodID, err := preferences.NewPeriodID(payload.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		periods = append(periods, preferences.Period{
			ID:       periodID,
			UUID:     payload.UUID,
			Name:     payload.Name,
			Position: payload.Position,
		})
	}
	return periods, nil
}

func (c *Client) entityPath(entity preferences.Entity) string {
	return "/" + entity.Adapter.ResourcePath + "/" + url.PathEscape(entity.UUID) + "/preferences"
}

func (c *Client) preferencePath(entity preferences.Entity, preferenceUUID string) string {
	return "/" + entity.Adapter.ResourcePath + "/" + schedulePreferencePath + "/" + url.PathEscape(preferenceUUID)
}

func (c *Client) do(ctx context.Context, method string, path string, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return nil, err
	}
	request.Header.Set("Accept", "application/json")
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if authorization := authorizationValue(c.session.Token); authorization != "" {
		request.Header.Set("Authorization", authorization)
	}
	if organization := strings.TrimSpace(c.session.OrganizationUUID); organization != "" {
		request.Header.Set(organizationHeader, organization)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Debug("preference store request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodyBytes))
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: response.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func authorizationValue(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return ""
	}
	if strings.Contains(trimmed, " ") {
		return trimmed
	}
	return "Bearer " + trimmed
}
