package booking

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/internal/applications"
	"github.com/angelmondragon/dormhousing-backend/internal/audit"
	"github.com/angelmondragon/dormhousing-backend/internal/beds"
	"github.com/angelmondragon/dormhousing-backend/internal/catalog"
	"github.com/angelmondragon/dormhousing-backend/internal/occupancy"
	"github.com/angelmondragon/dormhousing-backend/internal/students"
	"github.com/angelmondragon/dormhousing-backend/pkg/db"
	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dormhousing-backend/pkg/errors"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/metrics"
)

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (f *fakeAudit) Record(_ context.Context, entry audit.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entry)
}

func (f *fakeAudit) snapshot() []audit.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]audit.Entry(nil), f.entries...)
}

type harness struct {
	db       *gorm.DB
	svc      Service
	audit    *fakeAudit
	registry *prometheus.Registry
	catalog  catalog.Repository
	apps     applications.Repository
	occ      occupancy.Repository
	students students.Repository
	beds     beds.Repository
	building *models.Building
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithTx(t, nil)
}

// newHarnessWithTx builds an engine over a single-connection sqlite database
// so concurrent transactions are serialized by the pool. wrap, when set,
// decorates the transaction runner.
func newHarnessWithTx(t *testing.T, wrap func(txRunner) txRunner) *harness {
	t.Helper()
	dsn := "file:booking_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var runner txRunner = db.NewWithConn(conn)
	if wrap != nil {
		runner = wrap(runner)
	}

	h := &harness{
		db:       conn,
		audit:    &fakeAudit{},
		registry: prometheus.NewRegistry(),
		catalog:  catalog.NewRepository(conn),
		apps:     applications.NewRepository(conn),
		occ:      occupancy.NewRepository(conn),
		students: students.NewRepository(conn),
		beds:     beds.NewRepository(conn),
	}
	svc, err := NewService(Deps{
		Tx:           runner,
		Beds:         h.beds,
		Catalog:      h.catalog,
		Applications: h.apps,
		Occupancy:    h.occ,
		Students:     h.students,
		Audit:        h.audit,
		Metrics:      metrics.NewBookingMetrics(h.registry),
		Logger:       logger.New(logger.Options{Output: io.Discard}),
	}, Options{
		TxTimeout:      5 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: time.Millisecond,
	})
	require.NoError(t, err)
	h.svc = svc

	h.building = &models.Building{Name: "North Hall"}
	require.NoError(t, h.catalog.CreateBuilding(context.Background(), h.building))
	return h
}

func (h *harness) room(t *testing.T, label string, capacity int) (*models.Room, []models.Bed) {
	t.Helper()
	room := &models.Room{BuildingID: h.building.ID, Label: label, Capacity: capacity}
	created, err := h.catalog.CreateRoomWithBeds(context.Background(), room)
	require.NoError(t, err)
	return room, created
}

func (h *harness) student(t *testing.T, number string) *models.Student {
	t.Helper()
	student := &models.Student{StudentNumber: number, Name: "Student " + number}
	require.NoError(t, h.students.Create(context.Background(), student))
	return student
}

func (h *harness) reloadBed(t *testing.T, bedID uuid.UUID) *models.Bed {
	t.Helper()
	bed, err := h.beds.FindByID(context.Background(), bedID)
	require.NoError(t, err)
	return bed
}

func (h *harness) reloadRoom(t *testing.T, roomID uuid.UUID) *models.Room {
	t.Helper()
	room, err := h.catalog.FindRoom(context.Background(), roomID)
	require.NoError(t, err)
	return room
}

func (h *harness) reloadApplication(t *testing.T, id uuid.UUID) *models.RoomApplication {
	t.Helper()
	application, err := h.apps.FindByID(context.Background(), id)
	require.NoError(t, err)
	return application
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error %s, got %v", code, err)
	}
	require.Equal(t, code, typed.Code(), "error: %v", err)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matches(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matches(pairs []*dto.LabelPair, want map[string]string) bool {
	found := 0
	for _, pair := range pairs {
		if value, ok := want[pair.GetName()]; ok && value == pair.GetValue() {
			found++
		}
	}
	return found == len(want)
}
