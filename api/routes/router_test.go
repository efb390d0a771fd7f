package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dormhousing-backend/internal/applications"
	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/internal/catalog"
	pkgAuth "github.com/angelmondragon/dormhousing-backend/pkg/auth"
	"github.com/angelmondragon/dormhousing-backend/pkg/config"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
	"github.com/angelmondragon/dormhousing-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type memoryRedis struct {
	mu       sync.Mutex
	values   map[string]string
	counters map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value.(string)
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

func (m *memoryRedis) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[key]++
	return m.counters[key], nil
}

type stubBooking struct {
	mu       sync.Mutex
	reserves int
}

func (s *stubBooking) Reserve(_ context.Context, input booking.ReserveInput) (*models.RoomApplication, error) {
	s.mu.Lock()
	s.reserves++
	s.mu.Unlock()
	return &models.RoomApplication{ID: uuid.New(), StudentID: input.StudentID, BedID: input.BedID, Status: enums.ApplicationStatusPending}, nil
}

func (s *stubBooking) Approve(_ context.Context, input booking.ApproveInput) (*booking.ApprovalResult, error) {
	return &booking.ApprovalResult{Application: &models.RoomApplication{ID: input.ApplicationID}}, nil
}

func (s *stubBooking) Reject(_ context.Context, input booking.RejectInput) (*models.RoomApplication, error) {
	return &models.RoomApplication{ID: input.ApplicationID}, nil
}

func (s *stubBooking) DirectCheckIn(context.Context, booking.DirectCheckInInput) (*booking.CheckInResult, error) {
	return &booking.CheckInResult{}, nil
}

func (s *stubBooking) CheckOut(context.Context, booking.CheckOutInput) (*booking.CheckOutResult, error) {
	return &booking.CheckOutResult{}, nil
}

func (s *stubBooking) ReconcileOccupancy(context.Context) (*booking.ReconcileReport, error) {
	return &booking.ReconcileReport{}, nil
}

type stubQueue struct{}

func (stubQueue) ListPending(context.Context, pagination.Params) (*applications.PendingList, error) {
	return &applications.PendingList{}, nil
}

func (stubQueue) CountPending(context.Context) (int64, error) { return 0, nil }

type stubReports struct{}

func (stubReports) RoomOccupancy(_ context.Context, roomID uuid.UUID) (*catalog.OccupancyReport, error) {
	return &catalog.OccupancyReport{RoomID: roomID}, nil
}

type stubNotifier struct{}

func (stubNotifier) ApplicationApproved(context.Context, *booking.ApprovalResult, *outbox.ActorRef) error {
	return nil
}

func (stubNotifier) ApplicationRejected(context.Context, *models.RoomApplication, *outbox.ActorRef) error {
	return nil
}

func (stubNotifier) StudentCheckedIn(context.Context, *booking.CheckInResult, *outbox.ActorRef) error {
	return nil
}

func (stubNotifier) StudentCheckedOut(context.Context, *booking.CheckOutResult, *outbox.ActorRef) error {
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Env: "test", CORSOrigins: []string{"http://localhost:3000"}},
		JWT:       config.JWTConfig{Secret: "router-secret", Issuer: "dormhousing-test"},
		RateLimit: config.RateLimitConfig{ReserveWindow: time.Minute, ReserveLimit: 2},
	}
}

func newTestRouter(t *testing.T) (http.Handler, *stubBooking) {
	t.Helper()
	engine := &stubBooking{}
	router := NewRouter(testConfig(), logger.New(logger.Options{ServiceName: "test", Output: io.Discard}), Dependencies{
		DB:           stubPinger{},
		Redis:        newMemoryRedis(),
		Booking:      engine,
		Applications: stubQueue{},
		Reports:      stubReports{},
		Notifier:     stubNotifier{},
	})
	return router, engine
}

func bearer(t *testing.T, role enums.Role) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(testConfig().JWT, time.Now(), time.Hour, pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   role,
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	for _, path := range []string{"/health/live", "/health/ready", "/metrics"} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, resp.Code, path)
	}
}

func TestAPIRequiresToken(t *testing.T) {
	router, _ := newTestRouter(t)

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/applications/pending", nil))
	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestRoleGates(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []struct {
		name   string
		role   enums.Role
		method string
		path   string
		want   int
	}{
		{"student cannot list queue", enums.RoleStudent, http.MethodGet, "/api/v1/applications/pending", http.StatusForbidden},
		{"manager lists queue", enums.RoleManager, http.MethodGet, "/api/v1/applications/pending", http.StatusOK},
		{"admin counts queue", enums.RoleAdmin, http.MethodGet, "/api/v1/applications/pending/count", http.StatusOK},
		{"manager cannot reconcile", enums.RoleManager, http.MethodPost, "/api/v1/admin/reconcile-occupancy", http.StatusForbidden},
		{"manager cannot reserve", enums.RoleManager, http.MethodPost, "/api/v1/reservations", http.StatusForbidden},
		{"manager reads room", enums.RoleManager, http.MethodGet, "/api/v1/rooms/" + uuid.NewString() + "/occupancy", http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", bearer(t, tc.role))
			req.Header.Set("Idempotency-Key", uuid.NewString())
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)
			require.Equal(t, tc.want, resp.Code)
		})
	}
}

func TestReserveReplaysIdempotentRequest(t *testing.T) {
	router, engine := newTestRouter(t)
	auth := bearer(t, enums.RoleStudent)
	body := `{"bed_id":"` + uuid.NewString() + `"}`
	key := uuid.NewString()

	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(body))
		req.Header.Set("Authorization", auth)
		req.Header.Set("Idempotency-Key", key)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		bodies = append(bodies, resp.Body.String())
	}

	require.Equal(t, 1, engine.reserves)
	require.Equal(t, bodies[0], bodies[1])
}

func TestReserveRequiresIdempotencyKey(t *testing.T) {
	router, engine := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(`{"bed_id":"`+uuid.NewString()+`"}`))
	req.Header.Set("Authorization", bearer(t, enums.RoleStudent))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Zero(t, engine.reserves)
}

func TestReserveIsRateLimited(t *testing.T) {
	router, _ := newTestRouter(t)
	auth := bearer(t, enums.RoleStudent)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(`{"bed_id":"`+uuid.NewString()+`"}`))
		req.Header.Set("Authorization", auth)
		req.Header.Set("Idempotency-Key", uuid.NewString())
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		codes = append(codes, resp.Code)
	}

	require.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, codes)
}
