package state

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banana-dao/banana-vaults/internal/types"
)

var snapshotTime = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return NewDB(conn), mock
}

func TestNilDBIsNotInitialized(t *testing.T) {
	var db *DB

	_, err := db.GetRecentSnapshots(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, db.SaveReceipt(context.Background(), types.InstructionReceipt{}), ErrNotInitialized)
	assert.ErrorIs(t, db.EnsureSchema(context.Background()), ErrNotInitialized)
	db.Close()
}

func TestEnsureSchema(t *testing.T) {
	// ARRANGE
	db, mock := newMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS nav_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))

	// ACT
	err := db.EnsureSchema(context.Background())

	// ASSERT
	require.NoError(t, err)
}

func TestDropSchemaError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec("DROP TABLE IF EXISTS nav_snapshots").WillReturnError(errors.New("permission denied"))

	err := db.DropSchema(context.Background())

	assert.ErrorContains(t, err, "permission denied")
}

func TestIncrementCycleNumber(t *testing.T) {
	// ARRANGE
	db, mock := newMockDB(t)
	mock.ExpectQuery("UPDATE snapshot_counter").WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(8))

	// ACT
	cycle, err := db.IncrementCycleNumber(context.Background())

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, 8, cycle)
}

func TestGetCurrentCycleNumberWithoutRow(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT current_cycle FROM snapshot_counter").WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}))

	cycle, err := db.GetCurrentCycleNumber(context.Background())

	require.NoError(t, err)
	assert.Zero(t, cycle)
}

func TestResetCycleNumber(t *testing.T) {
	db, mock := newMockDB(t)
	assert.Error(t, db.ResetCycleNumber(context.Background(), -1))

	mock.ExpectExec("UPDATE snapshot_counter").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorContains(t, db.ResetCycleNumber(context.Background(), 3), "no rows updated")

	mock.ExpectExec("UPDATE snapshot_counter").WithArgs(3).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, db.ResetCycleNumber(context.Background(), 3))
}

func TestSaveNAVSnapshot(t *testing.T) {
	// ARRANGE
	db, mock := newMockDB(t)
	snapshot := types.NAVSnapshot{
		CycleID:     "6f1c2d2e-4a55-4c7e-9a43-3b1f0c0e8d11",
		CycleNumber: 4,
		Timestamp:   snapshotTime,
		BlockHeight: 120,
		NAV:         "1800",
		TotalShares: "1500",
		SharePrice:  1.2,
		Components: []types.AssetValue{
			{Denom: "uusdc", Amount: sdkmath.NewInt(1200), Price: sdkmath.LegacyOneDec(), Value: sdkmath.NewInt(1200)},
		},
		Status: types.VaultStatus{Lifecycle: types.StatusOpen},
	}
	mock.ExpectQuery("INSERT INTO nav_snapshots").
		WithArgs(snapshot.CycleID, 4, snapshotTime, int64(120), "1800", "1500", 1.2, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_id"}).AddRow(int64(17)))

	// ACT
	id, err := db.SaveNAVSnapshot(context.Background(), snapshot)

	// ASSERT
	require.NoError(t, err)
	assert.Equal(t, int64(17), id)
}

func TestSaveReceipt(t *testing.T) {
	// ARRANGE
	db, mock := newMockDB(t)
	receipt := types.InstructionReceipt{
		ID:          "b1f5e3a0-0d7e-4f43-8f5e-0c9a4b0d1e22",
		Instruction: "Withdraw",
		Caller:      "alice",
		ErrorKind:   types.KindAccounting,
		Message:     "insufficient shares",
		BlockHeight: 9,
		BlockTime:   snapshotTime,
		Duration:    1500 * time.Microsecond,
	}
	mock.ExpectExec("INSERT INTO instruction_receipts").
		WithArgs(receipt.ID, "Withdraw", "alice", false, "ACCOUNTING", "insufficient shares", int64(9), snapshotTime, int64(1500), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	// ACT
	err := db.SaveReceipt(context.Background(), receipt)

	// ASSERT
	require.NoError(t, err)
}

func TestGetRecentSnapshots(t *testing.T) {
	// ARRANGE
	db, mock := newMockDB(t)
	columns := []string{"snapshot_id", "cycle_id", "cycle_number", "snapshot_timestamp", "block_height",
		"nav", "total_shares", "share_price", "components", "status"}
	rows := sqlmock.NewRows(columns).
		AddRow(int64(2), "c2", 2, snapshotTime.Add(time.Minute), int64(20), "1800", "1500", 1.2,
			[]byte(`[{"denom":"uatom","amount":"300","price":"2.000000000000000000","value":"600"}]`),
			[]byte(`{"lifecycle":"OPEN","halted":false,"cap_reached":false,"last_manager_activity":"2026-01-01T12:00:00Z"}`)).
		AddRow(int64(1), "c1", 1, snapshotTime, int64(10), "1500", "1500", 1.0, []byte(`not json`), nil)
	mock.ExpectQuery("FROM nav_snapshots").WithArgs(10).WillReturnRows(rows)

	// ACT
	snapshots, err := db.GetRecentSnapshots(context.Background(), 0)

	// ASSERT
	require.NoError(t, err)
	require.Len(t, snapshots, 1, "the malformed row is skipped")
	assert.Equal(t, int64(2), snapshots[0].SnapshotID)
	require.Len(t, snapshots[0].Components, 1)
	assert.Equal(t, "600", snapshots[0].Components[0].Value.String())
	assert.Equal(t, types.StatusOpen, snapshots[0].Status.Lifecycle)
}

func TestGetSnapshotByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("FROM nav_snapshots WHERE snapshot_id").WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_id"}))

	_, err := db.GetSnapshotByID(context.Background(), 99)

	assert.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestGetRecentReceipts(t *testing.T) {
	// ARRANGE
	db, mock := newMockDB(t)
	columns := []string{"receipt_id", "instruction_id", "instruction", "caller", "success", "error_kind",
		"message", "block_height", "block_time", "duration_us", "detail"}
	mock.ExpectQuery("FROM instruction_receipts").
		WithArgs(5, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(int64(3), "id-3", "Deposit", "alice", true, "", "", int64(7), snapshotTime, int64(250), []byte(`{"shares_minted":"1000"}`)).
			AddRow(int64(2), "id-2", "Deposit", "bob", false, "VALUATION", "stale price", int64(6), snapshotTime, int64(90), nil))

	// ACT
	receipts, err := db.GetRecentReceipts(context.Background(), 5, []string{"Deposit"})

	// ASSERT
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.True(t, receipts[0].Success)
	assert.Equal(t, 250*time.Microsecond, receipts[0].Duration)
	assert.NotNil(t, receipts[0].Detail)
	assert.Equal(t, types.KindValuation, receipts[1].ErrorKind)
	assert.Nil(t, receipts[1].Detail)
}

func TestGetVaultSummaryEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("SELECT nav, total_shares, share_price, snapshot_timestamp").
		WillReturnRows(sqlmock.NewRows([]string{"nav", "total_shares", "share_price", "snapshot_timestamp"}))
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	summary, err := db.GetVaultSummary(context.Background())

	require.NoError(t, err)
	assert.Empty(t, summary.LastUpdated)
	assert.Zero(t, summary.TotalSnapshots)
}

func TestGetPerformanceMetrics(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery("FROM instruction_receipts WHERE error_kind").WithArgs("INVARIANT").
		WillReturnRows(sqlmock.NewRows([]string{"first", "last", "snapshots", "instructions", "failed", "breaches"}).
			AddRow(1.0, 1.25, 12, 40, 3, 0))

	m, err := db.GetPerformanceMetrics(context.Background())

	require.NoError(t, err)
	assert.InDelta(t, 0.25, m.SharePriceReturn, 1e-9)
	assert.Equal(t, 3, m.FailedInstructions)
}

func TestRecorderWritesQueuedReceipts(t *testing.T) {
	// ARRANGE
	db, mock := newMockDB(t)
	recorder := NewRecorder(db, 2)
	mock.ExpectExec("INSERT INTO instruction_receipts").WithArgs("r1", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO instruction_receipts").WithArgs("r2", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
		sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	// ACT
	recorder.ObserveInstruction(types.InstructionReceipt{ID: "r1", Instruction: "Deposit", Success: true, BlockTime: snapshotTime})
	recorder.ObserveInstruction(types.InstructionReceipt{ID: "r2", Instruction: "Deposit", BlockTime: snapshotTime})
	recorder.ObserveInstruction(types.InstructionReceipt{ID: "r3", Instruction: "Deposit", BlockTime: snapshotTime}) // dropped

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	recorder.Run(ctx)

	// ASSERT
	assert.Empty(t, recorder.queue)
}
