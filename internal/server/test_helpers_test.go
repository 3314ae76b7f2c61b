package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/plangrid/internal/auth"
	"github.com/MarcoPoloResearchLab/plangrid/internal/records"
)

type testStore struct {
	server   *httptest.Server
	records  *records.Service
	realtime *RealtimeDispatcher
	token    string
	periods  []records.Period
	planUUID string
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	dsn := fmt.Sprintf("file:plangrid_server_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&records.Period{}, &records.Preference{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	service, err := records.NewService(records.ServiceConfig{Database: db, IDProvider: records.NewUUIDProvider()})
	if err != nil {
		t.Fatalf("failed to construct records service: %v", err)
	}
	periods, err := service.SeedPeriods(context.Background(), "plan-1", []string{"First", "Second", "Third", "Fourth"})
	if err != nil {
		t.Fatalf("failed to seed periods: %v", err)
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-signing-secret"),
		Issuer:        "plangrid-auth",
		Audience:      "plangrid-api",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("failed to construct token issuer: %v", err)
	}
	token, _, err := tokenIssuer.IssueToken(context.Background(), "planner-1")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	dispatcher := NewRealtimeDispatcher()
	handler, err := NewHTTPHandler(Dependencies{
		Tokens:            tokenIssuer,
		Records:           service,
		Realtime:          dispatcher,
		Logger:            zap.NewNop(),
		HeartbeatInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return &testStore{
		server:   server,
		records:  service,
		realtime: dispatcher,
		token:    token,
		periods:  periods,
		planUUID: "plan-1",
	}
}

func (s *testStore) do(t *testing.T, method string, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Authorization", "Bearer "+s.token)
	request.Header.Set("Content-Type", "application/json")
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer response.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(response.Body).Decode(&decoded)
	return response, decoded
}
