// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/banana-dao/banana-vaults/internal/types"
)

// SaveNAVSnapshot saves a NAV snapshot and returns its id.
func (d *DB) SaveNAVSnapshot(ctx context.Context, snapshot types.NAVSnapshot) (int64, error) {
	if err := d.ready(); err != nil {
		return 0, err
	}

	componentsJSON, err := json.Marshal(snapshot.Components)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal components: %w", err)
	}
	statusJSON, err := json.Marshal(snapshot.Status)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal status: %w", err)
	}

	query := `
		INSERT INTO nav_snapshots (
			cycle_id, cycle_number, snapshot_timestamp, block_height,
			nav, total_shares, share_price, components, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = d.conn.QueryRowContext(ctx, query,
		snapshot.CycleID, snapshot.CycleNumber, snapshot.Timestamp, snapshot.BlockHeight,
		snapshot.NAV, snapshot.TotalShares, snapshot.SharePrice, componentsJSON, statusJSON,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save NAV snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("nav", snapshot.NAV).
		Msg("NAV snapshot saved to database")

	return snapshotID, nil
}

// SaveReceipt stores an instruction receipt. A receipt whose id is already stored is ignored.
func (d *DB) SaveReceipt(ctx context.Context, receipt types.InstructionReceipt) error {
	if err := d.ready(); err != nil {
		return err
	}

	var detail any
	if receipt.Detail != nil {
		detailJSON, err := json.Marshal(receipt.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal receipt detail: %w", err)
		}
		detail = detailJSON
	}

	query := `
		INSERT INTO instruction_receipts (
			instruction_id, instruction, caller, success, error_kind, message,
			block_height, block_time, duration_us, detail
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (instruction_id) DO NOTHING;
	`
	_, err := d.conn.ExecContext(ctx, query,
		receipt.ID, receipt.Instruction, receipt.Caller, receipt.Success, string(receipt.ErrorKind), receipt.Message,
		receipt.BlockHeight, receipt.BlockTime, receipt.Duration.Microseconds(), detail,
	)
	if err != nil {
		return fmt.Errorf("failed to save receipt %s: %w", receipt.ID, err)
	}
	return nil
}
