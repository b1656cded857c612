/*

Records produced outside the ledger: per-instruction receipts and periodic NAV snapshots. They feed
the audit database and metrics and never influence vault state.

*/

package types

import (
	"time"
)

type InstructionReceipt struct {
	ReceiptID   int64         `json:"receipt_id,omitempty"` // Auto-incremented by DB
	ID          string        `json:"id"`                   // uuid assigned at admission
	Instruction string        `json:"instruction"`
	Caller      string        `json:"caller"`
	Success     bool          `json:"success"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
	Message     string        `json:"message,omitempty"`
	BlockHeight int64         `json:"block_height"`
	BlockTime   time.Time     `json:"block_time"`
	Duration    time.Duration `json:"duration"`
	Detail      any           `json:"detail,omitempty"` // Instruction result on success
}

type NAVSnapshot struct {
	SnapshotID  int64     `json:"snapshot_id,omitempty"`
	CycleID     string    `json:"cycle_id"`
	CycleNumber int       `json:"cycle_number"`
	Timestamp   time.Time `json:"timestamp"`
	BlockHeight int64     `json:"block_height"`

	NAV         string       `json:"nav"`          // Decimal string, reference base units
	TotalShares string       `json:"total_shares"` // Decimal string
	SharePrice  float64      `json:"share_price"`  // Display only
	Components  []AssetValue `json:"components"`
	Status      VaultStatus  `json:"status"`
}
