package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// ErrSnapshotNotFound is returned by GetSnapshotByID for an unknown id.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// VaultSummary represents high-level vault statistics from the latest snapshot.
type VaultSummary struct {
	NAV            string  `json:"nav"`
	TotalShares    string  `json:"total_shares"`
	SharePrice     float64 `json:"share_price"`
	TotalSnapshots int     `json:"total_snapshots"`
	LastUpdated    string  `json:"last_updated"`
}

// PerformanceMetrics represents aggregated performance data.
type PerformanceMetrics struct {
	FirstSharePrice    float64 `json:"first_share_price"`
	LastSharePrice     float64 `json:"last_share_price"`
	SharePriceReturn   float64 `json:"share_price_return"` // Fractional change between first and last snapshot
	TotalSnapshots     int     `json:"total_snapshots"`
	TotalInstructions  int     `json:"total_instructions"`
	FailedInstructions int     `json:"failed_instructions"`
	InvariantBreaches  int     `json:"invariant_breaches"`
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 10 // Default limit
	}
	return limit
}

const snapshotColumns = `
	snapshot_id, cycle_id, cycle_number, snapshot_timestamp, block_height,
	nav, total_shares, share_price, components, status`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (types.NAVSnapshot, error) {
	var s types.NAVSnapshot
	var componentsJSON, statusJSON []byte
	if err := row.Scan(
		&s.SnapshotID, &s.CycleID, &s.CycleNumber, &s.Timestamp, &s.BlockHeight,
		&s.NAV, &s.TotalShares, &s.SharePrice, &componentsJSON, &statusJSON,
	); err != nil {
		return types.NAVSnapshot{}, err
	}
	if len(componentsJSON) > 0 {
		if err := json.Unmarshal(componentsJSON, &s.Components); err != nil {
			return types.NAVSnapshot{}, fmt.Errorf("failed to unmarshal components: %w", err)
		}
	}
	if len(statusJSON) > 0 {
		if err := json.Unmarshal(statusJSON, &s.Status); err != nil {
			return types.NAVSnapshot{}, fmt.Errorf("failed to unmarshal status: %w", err)
		}
	}
	return s, nil
}

// GetRecentSnapshots retrieves the most recent NAV snapshots, newest first.
func (d *DB) GetRecentSnapshots(ctx context.Context, limit int) ([]types.NAVSnapshot, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	query := `SELECT ` + snapshotColumns + `
		FROM nav_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT $1`

	rows, err := d.conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []types.NAVSnapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan snapshot row")
			continue // Skip this row and continue with others
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(snapshots)).Int("limit", limit).Msg("Retrieved recent snapshots")
	return snapshots, nil
}

// GetSnapshotByID retrieves a specific snapshot.
func (d *DB) GetSnapshotByID(ctx context.Context, snapshotID int64) (types.NAVSnapshot, error) {
	if err := d.ready(); err != nil {
		return types.NAVSnapshot{}, err
	}

	query := `SELECT ` + snapshotColumns + ` FROM nav_snapshots WHERE snapshot_id = $1`
	s, err := scanSnapshot(d.conn.QueryRowContext(ctx, query, snapshotID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.NAVSnapshot{}, fmt.Errorf("%w: id %d", ErrSnapshotNotFound, snapshotID)
		}
		return types.NAVSnapshot{}, fmt.Errorf("failed to query snapshot by ID: %w", err)
	}
	return s, nil
}

// GetRecentReceipts retrieves the most recent instruction receipts, newest first. When instructions is
// non-empty only those instruction names are returned.
func (d *DB) GetRecentReceipts(ctx context.Context, limit int, instructions []string) ([]types.InstructionReceipt, error) {
	if err := d.ready(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit)

	query := `
		SELECT receipt_id, instruction_id, instruction, caller, success, COALESCE(error_kind, ''),
			COALESCE(message, ''), block_height, block_time, duration_us, detail
		FROM instruction_receipts
		WHERE cardinality($2::text[]) = 0 OR instruction = ANY($2)
		ORDER BY block_time DESC, receipt_id DESC
		LIMIT $1`

	if instructions == nil {
		instructions = []string{}
	}
	rows, err := d.conn.QueryContext(ctx, query, limit, pq.Array(instructions))
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	receipts := []types.InstructionReceipt{}
	for rows.Next() {
		var r types.InstructionReceipt
		var kind string
		var durationUS int64
		var detailJSON []byte
		if err := rows.Scan(&r.ReceiptID, &r.ID, &r.Instruction, &r.Caller, &r.Success, &kind,
			&r.Message, &r.BlockHeight, &r.BlockTime, &durationUS, &detailJSON); err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue
		}
		r.ErrorKind = types.ErrorKind(kind)
		r.Duration = time.Duration(durationUS) * time.Microsecond
		if len(detailJSON) > 0 {
			r.Detail = json.RawMessage(detailJSON)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return receipts, nil
}

// GetVaultSummary retrieves the latest snapshot values and the snapshot count.
func (d *DB) GetVaultSummary(ctx context.Context) (VaultSummary, error) {
	if err := d.ready(); err != nil {
		return VaultSummary{}, err
	}

	summary := VaultSummary{}
	query := `
		SELECT nav, total_shares, share_price, snapshot_timestamp
		FROM nav_snapshots
		ORDER BY snapshot_timestamp DESC
		LIMIT 1`

	var lastUpdated sql.NullTime
	err := d.conn.QueryRowContext(ctx, query).Scan(&summary.NAV, &summary.TotalShares, &summary.SharePrice, &lastUpdated)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return VaultSummary{}, fmt.Errorf("failed to get latest snapshot: %w", err)
	}
	if lastUpdated.Valid {
		summary.LastUpdated = lastUpdated.Time.UTC().Format(time.RFC3339)
	}

	if err := d.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM nav_snapshots`).Scan(&summary.TotalSnapshots); err != nil {
		return VaultSummary{}, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return summary, nil
}

// GetPerformanceMetrics aggregates share price movement and instruction outcomes.
func (d *DB) GetPerformanceMetrics(ctx context.Context) (PerformanceMetrics, error) {
	if err := d.ready(); err != nil {
		return PerformanceMetrics{}, err
	}

	query := `
		SELECT
			COALESCE((SELECT share_price FROM nav_snapshots ORDER BY snapshot_timestamp ASC LIMIT 1), 0),
			COALESCE((SELECT share_price FROM nav_snapshots ORDER BY snapshot_timestamp DESC LIMIT 1), 0),
			(SELECT COUNT(*) FROM nav_snapshots),
			(SELECT COUNT(*) FROM instruction_receipts),
			(SELECT COUNT(*) FROM instruction_receipts WHERE NOT success),
			(SELECT COUNT(*) FROM instruction_receipts WHERE error_kind = $1)`

	m := PerformanceMetrics{}
	err := d.conn.QueryRowContext(ctx, query, string(types.KindInvariant)).Scan(
		&m.FirstSharePrice, &m.LastSharePrice, &m.TotalSnapshots,
		&m.TotalInstructions, &m.FailedInstructions, &m.InvariantBreaches,
	)
	if err != nil {
		return PerformanceMetrics{}, fmt.Errorf("failed to get performance metrics: %w", err)
	}
	if m.FirstSharePrice > 0 {
		m.SharePriceReturn = m.LastSharePrice/m.FirstSharePrice - 1
	}
	return m, nil
}
