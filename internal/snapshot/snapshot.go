/*
Package snapshot periodically values the vault and publishes the result to metrics and, when configured,
the audit database. A snapshot reads through the query path only, so it can never change vault state,
and a failed valuation (stale price, missing feed) is recorded and retried on the next tick.
*/
package snapshot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/banana-dao/banana-vaults/internal/logger"
	"github.com/banana-dao/banana-vaults/internal/types"
	"github.com/banana-dao/banana-vaults/internal/utils"
)

// Querier is the read side of the vault service.
type Querier interface {
	VaultInfo() (types.VaultInfo, error)
	NAV() (types.NAVResponse, error)
}

// Store persists snapshots and numbers them across restarts.
type Store interface {
	IncrementCycleNumber(ctx context.Context) (int, error)
	SaveNAVSnapshot(ctx context.Context, snapshot types.NAVSnapshot) (int64, error)
}

// Sink receives every valuation and every failure.
type Sink interface {
	ObserveNAV(resp types.NAVResponse, referenceDecimals int)
	ObserveSnapshotFailure(err error)
}

// Snapshotter runs the snapshot loop.
type Snapshotter struct {
	logger zerolog.Logger
	vault  Querier
	store  Store // Optional
	sink   Sink  // Optional
	height func() int64

	mu         sync.RWMutex
	cycleCount int
	latest     *types.NAVSnapshot
}

// Config holds the dependencies of a Snapshotter.
type Config struct {
	Vault  Querier
	Store  Store
	Sink   Sink
	Height func() int64 // Last committed block height
}

// New creates a Snapshotter with dependency injection.
func New(cfg Config) (*Snapshotter, error) {
	if cfg.Vault == nil {
		return nil, fmt.Errorf("snapshot configuration validation failed: vault querier cannot be nil")
	}
	height := cfg.Height
	if height == nil {
		height = func() int64 { return 0 }
	}
	s := &Snapshotter{
		logger: logger.GetForComponent("snapshot"),
		vault:  cfg.Vault,
		store:  cfg.Store,
		sink:   cfg.Sink,
		height: height,
	}
	s.logger.Info().Bool("persistent", cfg.Store != nil).Bool("metrics", cfg.Sink != nil).Msg("Snapshotter created")
	return s, nil
}

// RunLoop takes a snapshot immediately and then every interval until ctx is cancelled.
func (s *Snapshotter) RunLoop(ctx context.Context, interval time.Duration) {
	s.logger.Info().Dur("interval", interval).Msg("Starting snapshot loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Snapshot loop stopped due to context cancellation")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Snapshotter) runLogged(ctx context.Context) {
	if _, err := s.RunCycle(ctx); err != nil {
		s.logger.Warn().Err(err).Bool("retryable", types.IsRetryable(err)).Msg("Snapshot cycle failed")
	}
}

// RunCycle values the vault once and publishes the snapshot.
func (s *Snapshotter) RunCycle(ctx context.Context) (types.NAVSnapshot, error) {
	start := time.Now()

	// Unique cycle ID for tracing logs across the cycle
	cycleID := uuid.New().String()
	cycleLogger := s.logger.With().Str("cycle_id", cycleID).Logger()

	info, err := s.vault.VaultInfo()
	if err != nil {
		s.fail(err)
		if types.IsInvariantBreach(err) {
			cycleLogger.Error().Err(err).Bool("invariant_breach", true).Msg("Share accounting hit an invariant breach")
		}
		return types.NAVSnapshot{}, fmt.Errorf("vault info: %w", err)
	}
	resp, err := s.vault.NAV()
	if err != nil {
		s.fail(err)
		if types.IsInvariantBreach(err) {
			cycleLogger.Error().Err(err).Bool("invariant_breach", true).Msg("Valuation hit an invariant breach")
		}
		return types.NAVSnapshot{}, fmt.Errorf("NAV: %w", err)
	}

	decimals := 0
	if asset, ok := info.Config.Asset(info.Config.ReferenceDenom); ok {
		decimals = int(asset.Decimals)
	}
	if s.sink != nil {
		s.sink.ObserveNAV(resp, decimals)
	}

	cycle := s.nextCycle(ctx)
	sharePrice, _ := utils.DecToFloat64(resp.SharePrice)
	snapshot := types.NAVSnapshot{
		CycleID:     cycleID,
		CycleNumber: cycle,
		Timestamp:   resp.NAV.Timestamp,
		BlockHeight: s.height(),
		NAV:         resp.NAV.Total.String(),
		TotalShares: resp.TotalShares.String(),
		SharePrice:  sharePrice,
		Components:  resp.NAV.Components,
		Status:      info.Status,
	}

	if s.store != nil {
		id, err := s.store.SaveNAVSnapshot(ctx, snapshot)
		if err != nil {
			// metrics already carry this valuation
			cycleLogger.Error().Err(err).Int("cycle", cycle).Msg("Failed to save NAV snapshot")
		} else {
			snapshot.SnapshotID = id
		}
	}

	s.mu.Lock()
	s.latest = &snapshot
	s.mu.Unlock()

	cycleLogger.Info().
		Int("cycle", cycle).
		Str("nav", snapshot.NAV).
		Str("total_shares", snapshot.TotalShares).
		Float64("share_price", snapshot.SharePrice).
		Dur("duration", time.Since(start)).
		Msg("NAV snapshot taken")
	return snapshot, nil
}

// Latest returns the most recent successful snapshot.
func (s *Snapshotter) Latest() (types.NAVSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return types.NAVSnapshot{}, false
	}
	return *s.latest, true
}

func (s *Snapshotter) nextCycle(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.store != nil {
		cycle, err := s.store.IncrementCycleNumber(ctx)
		if err == nil {
			s.cycleCount = cycle
			return cycle
		}
		s.logger.Warn().Err(err).Msg("Failed to increment persistent cycle counter, using local count")
	}
	s.cycleCount++
	return s.cycleCount
}

func (s *Snapshotter) fail(err error) {
	if s.sink != nil {
		s.sink.ObserveSnapshotFailure(err)
	}
}
