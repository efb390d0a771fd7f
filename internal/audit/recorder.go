package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/pkg/db/models"
	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
)

// Entry describes one audited booking operation.
type Entry struct {
	Action     enums.AuditAction
	EntityType enums.AuditEntityType
	EntityID   uuid.UUID
	ActorID    *uuid.UUID
	Detail     string
	IPAddress  string
}

// Recorder writes audit rows from a bounded queue on a background worker.
// Record never blocks and never fails the caller; a full queue drops the entry.
type Recorder struct {
	db      *gorm.DB
	logg    *logger.Logger
	queue   chan models.AuditLog
	dropped atomic.Uint64

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	start  sync.Once
}

// NewRecorder builds a recorder. Call Start to begin draining the queue.
func NewRecorder(db *gorm.DB, logg *logger.Logger, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Recorder{
		db:    db,
		logg:  logg,
		queue: make(chan models.AuditLog, queueSize),
	}
}

// Start launches the writer goroutine. It is safe to call more than once.
func (r *Recorder) Start() {
	r.start.Do(func() {
		r.wg.Add(1)
		go r.run()
	})
}

// Record enqueues an entry. The caller IP falls back to the one carried on ctx.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil {
		return
	}
	row := models.AuditLog{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID,
		Detail:     entry.Detail,
		CreatedAt:  time.Now().UTC(),
	}
	ip := entry.IPAddress
	if ip == "" {
		ip = IPAddressFromContext(ctx)
	}
	if ip != "" {
		row.IPAddress = &ip
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.queue <- row:
	default:
		r.dropped.Add(1)
		if r.logg != nil {
			r.logg.Warn(ctx, "audit queue full, entry dropped")
		}
	}
}

// Dropped returns how many entries were discarded.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close stops accepting entries and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.Start()
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for row := range r.queue {
		r.write(row)
	}
}

func (r *Recorder) write(row models.AuditLog) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil && r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"audit_action": row.Action,
			"entity_id":    row.EntityID.String(),
		})
		r.logg.Error(logCtx, "audit write failed", err)
	}
}

type ipKey struct{}

// WithIPAddress stores the caller IP on ctx for later audit entries.
func WithIPAddress(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

// IPAddressFromContext returns the caller IP set by WithIPAddress, or "".
func IPAddressFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(ipKey{}).(string)
	return ip
}
