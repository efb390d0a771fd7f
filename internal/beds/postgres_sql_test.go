package beds

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormhousing-backend/pkg/enums"
)

// sqlite drops row-locking clauses, so the statements postgres receives are
// checked against a mocked connection.
func newPostgresRepo(t *testing.T) (Repository, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	conn, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	return NewRepository(conn), mock
}

func bedRows(roomID uuid.UUID, ids ...uuid.UUID) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "room_id", "label", "status", "version"})
	for i, id := range ids {
		rows.AddRow(id.String(), roomID.String(), string(rune('A'+i)), string(enums.BedStatusAvailable), 0)
	}
	return rows
}

func TestLockForUpdateTakesRowLock(t *testing.T) {
	repo, mock := newPostgresRepo(t)
	bedID, roomID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "beds" WHERE id = \$1 ORDER BY "beds"\."id" LIMIT \S+ FOR UPDATE OF "beds"`).
		WillReturnRows(bedRows(roomID, bedID))

	bed, err := repo.LockForUpdate(context.Background(), bedID)
	require.NoError(t, err)
	require.Equal(t, bedID, bed.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLockByRoomTakesRowLocks(t *testing.T) {
	repo, mock := newPostgresRepo(t)
	roomID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "beds" WHERE room_id = \$1 ORDER BY id ASC FOR UPDATE OF "beds"`).
		WillReturnRows(bedRows(roomID, uuid.New(), uuid.New()))

	beds, err := repo.LockByRoom(context.Background(), roomID)
	require.NoError(t, err)
	require.Len(t, beds, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTryTransitionGuardsOnStatus(t *testing.T) {
	repo, mock := newPostgresRepo(t)

	mock.ExpectExec(`UPDATE "beds" SET .*"version"=version \+ 1 WHERE id = \$\d+ AND status = \$\d+$`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "beds" SET .* WHERE id = \$\d+ AND status = \$\d+$`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.TryTransition(context.Background(), uuid.New(), enums.BedStatusAvailable, enums.BedStatusReserved)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.TryTransition(context.Background(), uuid.New(), enums.BedStatusAvailable, enums.BedStatusReserved)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
