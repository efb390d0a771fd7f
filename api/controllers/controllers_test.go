package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dormhousing-backend/api/middleware"
	"github.com/angelmondragon/dormhousing-backend/internal/applications"
	"github.com/angelmondragon/dormhousing-backend/internal/booking"
	"github.com/angelmondragon/dormhousing-backend/internal/catalog"
	"github.com/angelmondragon/dormhousing-backend/pkg/config"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/outbox"
	"github.com/angelmondragon/dormhousing-backend/pkg/pagination"
)

type fakeEngine struct {
	reserveFn   func(ctx context.Context, input booking.ReserveInput) (*models.RoomApplication, error)
	approveFn   func(ctx context.Context, input booking.ApproveInput) (*booking.ApprovalResult, error)
	rejectFn    func(ctx context.Context, input booking.RejectInput) (*models.RoomApplication, error)
	checkInFn   func(ctx context.Context, input booking.DirectCheckInInput) (*booking.CheckInResult, error)
	checkOutFn  func(ctx context.Context, input booking.CheckOutInput) (*booking.CheckOutResult, error)
	reconcileFn func(ctx context.Context) (*booking.ReconcileReport, error)
}

func (f *fakeEngine) Reserve(ctx context.Context, input booking.ReserveInput) (*models.RoomApplication, error) {
	return f.reserveFn(ctx, input)
}

func (f *fakeEngine) Approve(ctx context.Context, input booking.ApproveInput) (*booking.ApprovalResult, error) {
	return f.approveFn(ctx, input)
}

func (f *fakeEngine) Reject(ctx context.Context, input booking.RejectInput) (*models.RoomApplication, error) {
	return f.rejectFn(ctx, input)
}

func (f *fakeEngine) DirectCheckIn(ctx context.Context, input booking.DirectCheckInInput) (*booking.CheckInResult, error) {
	return f.checkInFn(ctx, input)
}

func (f *fakeEngine) CheckOut(ctx context.Context, input booking.CheckOutInput) (*booking.CheckOutResult, error) {
	return f.checkOutFn(ctx, input)
}

func (f *fakeEngine) ReconcileOccupancy(ctx context.Context) (*booking.ReconcileReport, error) {
	return f.reconcileFn(ctx)
}

type fakeNotifier struct {
	err    error
	events []string
	actors []*outbox.ActorRef
}

func (f *fakeNotifier) record(name string, actor *outbox.ActorRef) error {
	f.events = append(f.events, name)
	f.actors = append(f.actors, actor)
	return f.err
}

func (f *fakeNotifier) ApplicationApproved(_ context.Context, _ *booking.ApprovalResult, actor *outbox.ActorRef) error {
	return f.record("approved", actor)
}

func (f *fakeNotifier) ApplicationRejected(_ context.Context, _ *models.RoomApplication, actor *outbox.ActorRef) error {
	return f.record("rejected", actor)
}

func (f *fakeNotifier) StudentCheckedIn(_ context.Context, _ *booking.CheckInResult, actor *outbox.ActorRef) error {
	return f.record("checked_in", actor)
}

func (f *fakeNotifier) StudentCheckedOut(_ context.Context, _ *booking.CheckOutResult, actor *outbox.ActorRef) error {
	return f.record("checked_out", actor)
}

type fakeQueue struct {
	params pagination.Params
	count  int64
}

func (f *fakeQueue) ListPending(_ context.Context, params pagination.Params) (*applications.PendingList, error) {
	f.params = params
	return &applications.PendingList{Items: []applications.PendingView{{ApplicationID: uuid.New()}}}, nil
}

func (f *fakeQueue) CountPending(context.Context) (int64, error) {
	return f.count, nil
}

type reporterFunc func(ctx context.Context, roomID uuid.UUID) (*catalog.OccupancyReport, error)

func (f reporterFunc) RoomOccupancy(ctx context.Context, roomID uuid.UUID) (*catalog.OccupancyReport, error) {
	return f(ctx, roomID)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func asUser(req *http.Request, id uuid.UUID, role enums.Role) *http.Request {
	ctx := middleware.WithUserID(req.Context(), id.String())
	ctx = middleware.WithRole(ctx, role)
	return req.WithContext(ctx)
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env
}

func TestReserveUsesCallerAsStudent(t *testing.T) {
	studentID := uuid.New()
	bedID := uuid.New()
	engine := &fakeEngine{reserveFn: func(_ context.Context, input booking.ReserveInput) (*models.RoomApplication, error) {
		require.Equal(t, studentID, input.StudentID)
		require.Equal(t, bedID, input.BedID)
		return &models.RoomApplication{ID: uuid.New(), StudentID: input.StudentID, BedID: input.BedID, Status: enums.ApplicationStatusPending}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(`{"bed_id":"`+bedID.String()+`"}`))
	req = asUser(req, studentID, enums.RoleStudent)
	resp := httptest.NewRecorder()
	Reserve(engine, testLogger())(resp, req)

	require.Equal(t, http.StatusCreated, resp.Code)
	var envelope struct {
		Data models.RoomApplication `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, enums.ApplicationStatusPending, envelope.Data.Status)
}

func TestReserveRequiresIdentity(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(`{"bed_id":"`+uuid.NewString()+`"}`))
	resp := httptest.NewRecorder()
	Reserve(&fakeEngine{}, testLogger())(resp, req)

	require.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestReserveRejectsMalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(`{"bed_id":"nope"}`))
	req = asUser(req, uuid.New(), enums.RoleStudent)
	resp := httptest.NewRecorder()
	Reserve(&fakeEngine{}, testLogger())(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.Equal(t, string(pkgerrors.CodeValidation), decodeError(t, resp).Error.Code)
}

func TestReserveSurfacesBookingConflict(t *testing.T) {
	engine := &fakeEngine{reserveFn: func(context.Context, booking.ReserveInput) (*models.RoomApplication, error) {
		return nil, pkgerrors.New(pkgerrors.CodeBedNotAvailable, "bed is not available")
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/reservations", strings.NewReader(`{"bed_id":"`+uuid.NewString()+`"}`))
	req = asUser(req, uuid.New(), enums.RoleStudent)
	resp := httptest.NewRecorder()
	Reserve(engine, testLogger())(resp, req)

	require.Equal(t, http.StatusConflict, resp.Code)
	env := decodeError(t, resp)
	require.Equal(t, string(pkgerrors.CodeBedNotAvailable), env.Error.Code)
	require.Equal(t, "bed is not available", env.Error.Message)
}

func TestApproveNotifiesAfterSuccess(t *testing.T) {
	managerID := uuid.New()
	applicationID := uuid.New()
	engine := &fakeEngine{approveFn: func(_ context.Context, input booking.ApproveInput) (*booking.ApprovalResult, error) {
		require.Equal(t, applicationID, input.ApplicationID)
		require.NotNil(t, input.ApproverID)
		require.Equal(t, managerID, *input.ApproverID)
		return &booking.ApprovalResult{Application: &models.RoomApplication{ID: applicationID}}, nil
	}}
	notifier := &fakeNotifier{}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/"+applicationID.String()+"/approve", nil)
	req = withURLParam(asUser(req, managerID, enums.RoleManager), "applicationId", applicationID.String())
	resp := httptest.NewRecorder()
	ApproveApplication(engine, notifier, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, []string{"approved"}, notifier.events)
	require.Equal(t, managerID, notifier.actors[0].UserID)
	require.Equal(t, string(enums.RoleManager), notifier.actors[0].Role)
}

func TestApproveSkipsNotificationOnFailure(t *testing.T) {
	engine := &fakeEngine{approveFn: func(context.Context, booking.ApproveInput) (*booking.ApprovalResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeAlreadyProcessed, "application already processed")
	}}
	notifier := &fakeNotifier{}
	id := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/"+id.String()+"/approve", nil)
	req = withURLParam(asUser(req, uuid.New(), enums.RoleManager), "applicationId", id.String())
	resp := httptest.NewRecorder()
	ApproveApplication(engine, notifier, testLogger())(resp, req)

	require.Equal(t, http.StatusConflict, resp.Code)
	require.Empty(t, notifier.events)
}

func TestApproveRejectsBadApplicationID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/abc/approve", nil)
	req = withURLParam(req, "applicationId", "abc")
	resp := httptest.NewRecorder()
	ApproveApplication(&fakeEngine{}, nil, testLogger())(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestRejectAllowsEmptyBody(t *testing.T) {
	id := uuid.New()
	var got booking.RejectInput
	engine := &fakeEngine{rejectFn: func(_ context.Context, input booking.RejectInput) (*models.RoomApplication, error) {
		got = input
		return &models.RoomApplication{ID: id, Status: enums.ApplicationStatusRejected}, nil
	}}
	notifier := &fakeNotifier{err: errors.New("outbox down")}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/"+id.String()+"/reject", nil)
	req = withURLParam(asUser(req, uuid.New(), enums.RoleAdmin), "applicationId", id.String())
	resp := httptest.NewRecorder()
	RejectApplication(engine, notifier, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "", got.Reason)
	require.Equal(t, []string{"rejected"}, notifier.events)
}

func TestRejectTrimsReason(t *testing.T) {
	id := uuid.New()
	var got booking.RejectInput
	engine := &fakeEngine{rejectFn: func(_ context.Context, input booking.RejectInput) (*models.RoomApplication, error) {
		got = input
		return &models.RoomApplication{ID: id}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications/"+id.String()+"/reject", strings.NewReader(`{"reason":"  room closed for repairs  "}`))
	req = withURLParam(asUser(req, uuid.New(), enums.RoleManager), "applicationId", id.String())
	resp := httptest.NewRecorder()
	RejectApplication(engine, nil, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "room closed for repairs", got.Reason)
}

func TestListPendingParsesPaging(t *testing.T) {
	queue := &fakeQueue{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/applications/pending?limit=5", nil)
	resp := httptest.NewRecorder()
	ListPendingApplications(queue, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, 5, queue.params.Limit)
	require.Equal(t, "", queue.params.Cursor)
}

func TestListPendingRejectsBadInput(t *testing.T) {
	for _, query := range []string{"limit=0", "limit=abc", "cursor=%25%25%25"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/applications/pending?"+query, nil)
		resp := httptest.NewRecorder()
		ListPendingApplications(&fakeQueue{}, testLogger())(resp, req)
		require.Equal(t, http.StatusBadRequest, resp.Code, query)
	}
}

func TestCountPending(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/applications/pending/count", nil)
	resp := httptest.NewRecorder()
	CountPendingApplications(&fakeQueue{count: 3}, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, int64(3), envelope.Data["pending"])
}

func TestCheckInAndCheckOut(t *testing.T) {
	studentID := uuid.New()
	bedID := uuid.New()
	engine := &fakeEngine{
		checkInFn: func(_ context.Context, input booking.DirectCheckInInput) (*booking.CheckInResult, error) {
			require.Equal(t, studentID, input.StudentID)
			require.Equal(t, bedID, input.BedID)
			return &booking.CheckInResult{Record: &models.OccupancyRecord{StudentID: studentID, BedID: bedID}}, nil
		},
		checkOutFn: func(_ context.Context, input booking.CheckOutInput) (*booking.CheckOutResult, error) {
			require.Equal(t, studentID, input.StudentID)
			return &booking.CheckOutResult{Record: &models.OccupancyRecord{StudentID: studentID, BedID: bedID}}, nil
		},
	}
	notifier := &fakeNotifier{}
	logg := testLogger()

	body := `{"student_id":"` + studentID.String() + `","bed_id":"` + bedID.String() + `"}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/v1/check-ins", strings.NewReader(body)), uuid.New(), enums.RoleManager)
	resp := httptest.NewRecorder()
	CheckIn(engine, notifier, logg)(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code)

	req = asUser(httptest.NewRequest(http.MethodPost, "/api/v1/check-outs", strings.NewReader(`{"student_id":"`+studentID.String()+`"}`)), uuid.New(), enums.RoleManager)
	resp = httptest.NewRecorder()
	CheckOut(engine, notifier, logg)(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)

	require.Equal(t, []string{"checked_in", "checked_out"}, notifier.events)
}

func TestCheckInRequiresBed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/check-ins", strings.NewReader(`{"student_id":"`+uuid.NewString()+`"}`))
	resp := httptest.NewRecorder()
	CheckIn(&fakeEngine{}, nil, testLogger())(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCheckOutSurfacesNotCheckedIn(t *testing.T) {
	engine := &fakeEngine{checkOutFn: func(context.Context, booking.CheckOutInput) (*booking.CheckOutResult, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotCheckedIn, "student is not checked in")
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/check-outs", strings.NewReader(`{"student_id":"`+uuid.NewString()+`"}`))
	resp := httptest.NewRecorder()
	CheckOut(engine, &fakeNotifier{}, testLogger())(resp, req)

	require.Equal(t, http.StatusConflict, resp.Code)
	require.Equal(t, string(pkgerrors.CodeNotCheckedIn), decodeError(t, resp).Error.Code)
}

func TestRoomOccupancyNotFound(t *testing.T) {
	reporter := reporterFunc(func(context.Context, uuid.UUID) (*catalog.OccupancyReport, error) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "room not found")
	})
	id := uuid.New()
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/rooms/"+id.String()+"/occupancy", nil), "roomId", id.String())
	resp := httptest.NewRecorder()
	RoomOccupancy(reporter, testLogger())(resp, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestAdminReconcileReturnsReport(t *testing.T) {
	engine := &fakeEngine{reconcileFn: func(context.Context) (*booking.ReconcileReport, error) {
		return &booking.ReconcileReport{
			RoomsChecked: 4,
			Corrections:  []booking.RoomCorrection{{RoomID: uuid.New(), Previous: 2, Actual: 1}},
		}, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/reconcile-occupancy", nil)
	resp := httptest.NewRecorder()
	AdminReconcileOccupancy(engine, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data booking.ReconcileReport `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	require.Equal(t, 4, envelope.Data.RoomsChecked)
	require.Len(t, envelope.Data.Corrections, 1)
}

func TestHealthReadyReportsDependencyFailure(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	resp := httptest.NewRecorder()
	HealthReady(cfg, testLogger(), ok, ok)(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	require.Equal(t, "test", resp.Header().Get(envHeader))

	resp = httptest.NewRecorder()
	HealthReady(cfg, testLogger(), ok, down)(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, resp.Code)
	require.Equal(t, string(pkgerrors.CodeDependency), decodeError(t, resp).Error.Code)
}
