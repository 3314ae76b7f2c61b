package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/plangrid/internal/auth"
	"github.com/MarcoPoloResearchLab/plangrid/internal/preferences"
	"github.com/MarcoPoloResearchLab/plangrid/internal/records"
)

const (
	subjectContextKey        = "plangrid_subject"
	adapterContextKey        = "plangrid_adapter"
	accessTokenQueryKey      = "access_token"
	defaultHeartbeatInterval = 25 * time.Second
	auditTimeLayout          = time.RFC3339
)

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingRecords        = errors.New("records service dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// TokenValidator resolves a bearer token to its subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Dependencies wires the preference store HTTP surface.
type Dependencies struct {
	Tokens            TokenValidator
	Records           *records.Service
	Realtime          *RealtimeDispatcher
	Logger            *zap.Logger
	HeartbeatInterval time.Duration
}

// NewHTTPHandler builds the gin engine serving the preference store routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Tokens == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Records == nil {
		return nil, errMissingRecords
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	handler := &httpHandler{
		tokens:    deps.Tokens,
		records:   deps.Records,
		realtime:  realtime,
		logger:    logger,
		heartbeat: heartbeat,
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/plan-settings/:planSettingsUuid/periods", handler.handleListPeriods)
	for _, adapter := range preferences.Adapters() {
		resource := protected.Group("/" + adapter.ResourcePath)
		resource.Use(bindAdapter(adapter))
		resource.GET("/:entityUuid/preferences", handler.handleListPreferences)
		resource.POST("/:entityUuid/preferences", handler.handleCreatePreference)
		resource.GET("/:entityUuid/preferences/stream", handler.handlePreferenceStream)
		resource.PUT("/schedule-preference/:preferenceUuid", handler.handleUpdatePreference)
		resource.DELETE("/schedule-preference/:preferenceUuid", handler.handleDeletePreference)
	}

	return router, nil
}

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Organization-Uuid"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

func bindAdapter(adapter preferences.EntityAdapter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(adapterContextKey, adapter)
		c.Next()
	}
}

type httpHandler struct {
	tokens    TokenValidator
	records   *records.Service
	realtime  *RealtimeDispatcher
	logger    *zap.Logger
	heartbeat time.Duration
}

type periodPayload struct {
	ID       int64  `json:"id"`
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type periodListPayload struct {
	Periods []periodPayload `json:"periods"`
}

type entityPreferencesPayload struct {
	UUID                string           `json:"uuid"`
	SchedulePreferences []map[string]any `json:"schedulePreferences"`
}

type realtimeEventPayload struct {
	EntityKey   string   `json:"entityKey"`
	CellIndexes []string `json:"cellIndexes"`
	Timestamp   string   `json:"timestamp"`
	Source      string   `json:"source"`
}

func (h *httpHandler) handleListPeriods(c *gin.Context) {
	rows, err := h.records.ListPeriods(c.Request.Context(), c.Param("planSettingsUuid"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	response := periodListPayload{Periods: make([]periodPayload, 0, len(rows))}
	for _, row := range rows {
		response.Periods = append(response.Periods, periodPayload{
			ID:       row.ID,
			UUID:     row.UUID,
			Name:     row.Name,
			Position: row.Position,
		})
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleListPreferences(c *gin.Context) {
	adapter := adapterFromContext(c)
	entityUUID := c.Param("entityUuid")
	rows, err := h.records.ListPreferences(c.Request.Context(), adapter.Kind, entityUUID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	response := entityPreferencesPayload{
		UUID:                entityUUID,
		SchedulePreferences: make([]map[string]any, 0, len(rows)),
	}
	for _, row := range rows {
		response.SchedulePreferences = append(response.SchedulePreferences, encodePreference(adapter, row))
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleCreatePreference(c *gin.Context) {
	adapter := adapterFromContext(c)
	cell, ok := h.bindCell(c, adapter)
	if !ok {
		return
	}
	created, err := h.records.CreatePreference(c.Request.Context(), records.PreferenceInput{
		EntityKind: adapter.Kind,
		EntityUUID: c.Param("entityUuid"),
		PeriodID:   cell.PeriodID,
		DayOfWeek:  cell.DayOfWeek,
		Flags:      cell.Flags,
		Actor:      c.GetString(subjectContextKey),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishChange(adapter, created)
	c.JSON(http.StatusCreated, encodePreference(adapter, created))
}

func (h *httpHandler) handleUpdatePreference(c *gin.Context) {
	adapter := adapterFromContext(c)
	cell, ok := h.bindCell(c, adapter)
	if !ok {
		return
	}
	updated, err := h.records.UpdatePreference(c.Request.Context(), adapter.Kind, c.Param("preferenceUuid"), records.PreferenceInput{
		PeriodID:  cell.PeriodID,
		DayOfWeek: cell.DayOfWeek,
		Flags:     cell.Flags,
		Actor:     c.GetString(subjectContextKey),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishChange(adapter, updated)
	c.JSON(http.StatusOK, encodePreference(adapter, updated))
}

func (h *httpHandler) handleDeletePreference(c *gin.Context) {
	adapter := adapterFromContext(c)
	deleted, err := h.records.DeletePreference(c.Request.Context(), adapter.Kind, c.Param("preferenceUuid"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.publishChange(adapter, deleted)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handlePreferenceStream(c *gin.Context) {
	adapter := adapterFromContext(c)
	entity, err := preferences.NewEntity(adapter, c.Param("entityUuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_entity"})
		return
	}

	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), entity.Key())
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimeEventPayload{
				EntityKey:   message.EntityKey,
				CellIndexes: message.CellIndexes,
				Timestamp:   message.Timestamp.UTC().Format(time.RFC3339Nano),
				Source:      realtimeSourceBackend,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, gin.H{"timestamp": tick.UTC().Format(time.RFC3339Nano)})
			return true
		}
	})
}

func (h *httpHandler) bindCell(c *gin.Context, adapter preferences.EntityAdapter) (preferences.CellPayload, bool) {
	var raw json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return preferences.CellPayload{}, false
	}
	cell, err := preferences.DecodeCellPayload(adapter, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
		return preferences.CellPayload{}, false
	}
	return cell, true
}

func (h *httpHandler) publishChange(adapter preferences.EntityAdapter, rows ...records.Preference) {
	if len(rows) == 0 {
		return
	}
	entity, err := preferences.NewEntity(adapter, rows[0].EntityUUID)
	if err != nil {
		return
	}
	h.realtime.Publish(RealtimeMessage{
		EntityKey:   entity.Key(),
		EventType:   RealtimeEventPreferenceChanged,
		CellIndexes: collectCellIndexes(rows),
		Timestamp:   time.Now().UTC(),
	})
}

func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, records.ErrInvalidPreference), errors.Is(err, preferences.ErrInvalidEntityUUID):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
	case errors.Is(err, records.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, records.ErrPreferenceExists):
		c.JSON(http.StatusConflict, gin.H{"error": "preference_exists"})
	default:
		h.logger.Error("preference store request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		token = strings.TrimSpace(c.Query(accessTokenQueryKey))
	}
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}

func adapterFromContext(c *gin.Context) preferences.EntityAdapter {
	value, _ := c.Get(adapterContextKey)
	adapter, _ := value.(preferences.EntityAdapter)
	return adapter
}

// encodePreference renders a row in the wire shape, with the adapter's flag names.
func encodePreference(adapter preferences.EntityAdapter, row records.Preference) map[string]any {
	domain := row.ToDomain()
	payload := make(map[string]any, 13)
	for name, value := range adapter.Flags.Encode(domain.Type()) {
		payload[name] = value
	}
	payload["uuid"] = domain.UUID
	payload["periodId"] = domain.PeriodID.Int64()
	payload["dayOfWeek"] = domain.DayOfWeek.Int()
	payload["preferenceType"] = domain.Type().String()
	payload["createdBy"] = domain.CreatedBy
	payload["createdDate"] = domain.CreatedDate.Format(auditTimeLayout)
	payload["modifiedBy"] = domain.ModifiedBy
	payload["modifiedDate"] = domain.ModifiedDate.Format(auditTimeLayout)
	return payload
}

// collectCellIndexes returns the distinct, sorted cell keys touched by the rows.
func collectCellIndexes(rows []records.Preference) []string {
	if len(rows) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(rows))
	indexes := make([]string, 0, len(rows))
	for _, row := range rows {
		key := row.ToDomain().CellIndex().String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		indexes = append(indexes, key)
	}
	sort.Strings(indexes)
	return indexes
}
