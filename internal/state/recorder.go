package state

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/banana-dao/banana-vaults/internal/types"
)

const receiptWriteTimeout = 5 * time.Second

// Recorder persists instruction receipts off the instruction path. Receipts are queued and written by
// Run; when the queue is full the receipt is dropped with a warning.
type Recorder struct {
	db    *DB
	queue chan types.InstructionReceipt
}

// NewRecorder creates a recorder with room for buffer pending receipts.
func NewRecorder(db *DB, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &Recorder{db: db, queue: make(chan types.InstructionReceipt, buffer)}
}

// ObserveInstruction queues receipt for writing.
func (r *Recorder) ObserveInstruction(receipt types.InstructionReceipt) {
	select {
	case r.queue <- receipt:
	default:
		log.Warn().Str("id", receipt.ID).Str("instruction", receipt.Instruction).Msg("Receipt queue full, dropping receipt")
	}
}

// Run writes queued receipts until ctx is cancelled, then flushes what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case receipt := <-r.queue:
			r.save(receipt)
		case <-ctx.Done():
			r.flush()
			return
		}
	}
}

func (r *Recorder) flush() {
	for {
		select {
		case receipt := <-r.queue:
			r.save(receipt)
		default:
			return
		}
	}
}

// save is bounded by receiptWriteTimeout rather than the Run context so a flush on shutdown still writes.
func (r *Recorder) save(receipt types.InstructionReceipt) {
	ctx, cancel := context.WithTimeout(context.Background(), receiptWriteTimeout)
	defer cancel()
	if err := r.db.SaveReceipt(ctx, receipt); err != nil {
		log.Error().Err(err).Str("id", receipt.ID).Msg("Failed to record instruction receipt")
	}
}
