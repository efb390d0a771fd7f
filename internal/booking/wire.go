package booking

import (
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/internal/applications"
	"github.com/angelmondragon/dormhousing-backend/internal/beds"
	"github.com/angelmondragon/dormhousing-backend/internal/catalog"
	"github.com/angelmondragon/dormhousing-backend/internal/occupancy"
	"github.com/angelmondragon/dormhousing-backend/internal/students"
	"github.com/angelmondragon/dormhousing-backend/pkg/config"
	"github.com/angelmondragon/dormhousing-backend/pkg/logger"
	"github.com/angelmondragon/dormhousing-backend/pkg/metrics"
)

// OptionsFromConfig maps the booking env block onto engine options.
func OptionsFromConfig(cfg config.BookingConfig) Options {
	return Options{
		TxTimeout:      cfg.TxTimeout,
		RetryAttempts:  cfg.RetryAttempts,
		RetryBaseDelay: cfg.RetryBaseDelay,
	}
}

// NewForDB builds the engine on the gorm-backed repositories.
func NewForDB(tx txRunner, conn *gorm.DB, recorder auditRecorder, m *metrics.BookingMetrics, logg *logger.Logger, opts Options) (Service, error) {
	return NewService(Deps{
		Tx:           tx,
		Beds:         beds.NewRepository(conn),
		Catalog:      catalog.NewRepository(conn),
		Applications: applications.NewRepository(conn),
		Occupancy:    occupancy.NewRepository(conn),
		Students:     students.NewRepository(conn),
		Audit:        recorder,
		Metrics:      m,
		Logger:       logg,
	}, opts)
}
