/*
Package node hosts the vault store. It owns a cosmos-db database and an IAVL commit multistore with a
single KV store, produces one block header per instruction, and serialises all writers.
*/

package node

import (
	"errors"
	"fmt"
	"sync"
	"time"

	corestore "cosmossdk.io/core/store"
	sdklog "cosmossdk.io/log"
	"cosmossdk.io/store"
	storemetrics "cosmossdk.io/store/metrics"
	storetypes "cosmossdk.io/store/types"
	cmtproto "github.com/cometbft/cometbft/proto/tendermint/types"
	dbm "github.com/cosmos/cosmos-db"
	"github.com/cosmos/cosmos-sdk/runtime"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/banana-dao/banana-vaults/internal/logger"
	"github.com/banana-dao/banana-vaults/internal/types"
)

var nodeLogger = logger.GetForComponent("node")

// Error definitions
var (
	ErrInvalidConfig = errors.New("node configuration is invalid")
	ErrClosed        = errors.New("node is closed")
)

// Config holds the configuration for creating a Node.
type Config struct {
	ChainID string
	HomeDir string // Ignored when DB is set
	Backend string // cosmos-db backend, e.g. "goleveldb" or "memdb"
	DB      dbm.DB // Optional pre-opened database
	Clock   func() time.Time
}

// Node is a single-writer host for the vault store.
type Node struct {
	mu sync.Mutex

	db      dbm.DB
	cms     storetypes.CommitMultiStore
	key     *storetypes.KVStoreKey
	chainID string
	logger  sdklog.Logger
	clock   func() time.Time

	lastTime time.Time
	closed   bool
}

// New opens or creates the store described by cfg and loads its latest version.
func New(cfg Config) (*Node, error) {
	if cfg.ChainID == "" {
		return nil, fmt.Errorf("%w: chain id cannot be empty", ErrInvalidConfig)
	}
	db := cfg.DB
	if db == nil {
		if cfg.Backend == "" {
			return nil, fmt.Errorf("%w: a database or backend is required", ErrInvalidConfig)
		}
		var err error
		db, err = dbm.NewDB("bvault", dbm.BackendType(cfg.Backend), cfg.HomeDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s database in %s: %w", cfg.Backend, cfg.HomeDir, err)
		}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	sdkLogger := logger.SDKLogger("store")
	key := storetypes.NewKVStoreKey(types.StoreKey)
	cms := store.NewCommitMultiStore(db, sdkLogger, storemetrics.NewNoOpMetrics())
	cms.MountStoreWithDB(key, storetypes.StoreTypeIAVL, nil)
	if err := cms.LoadLatestVersion(); err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	n := &Node{
		db:      db,
		cms:     cms,
		key:     key,
		chainID: cfg.ChainID,
		logger:  sdkLogger,
		clock:   clock,
	}
	nodeLogger.Info().Str("chain_id", cfg.ChainID).Int64("height", n.Height()).Msg("Store loaded")
	return n, nil
}

// StoreService returns the KV store service every keeper is built on.
func (n *Node) StoreService() corestore.KVStoreService {
	return runtime.NewKVStoreService(n.key)
}

// Height returns the last committed height.
func (n *Node) Height() int64 {
	return n.cms.LastCommitID().Version
}

// header returns the next block header. Block time never goes backwards.
func (n *Node) header(height int64) cmtproto.Header {
	now := n.clock().UTC()
	if now.Before(n.lastTime) {
		now = n.lastTime
	}
	return cmtproto.Header{ChainID: n.chainID, Height: height, Time: now}
}

// Execute runs fn in a new block and commits it when fn succeeds. A failing fn leaves the store untouched.
func (n *Node) Execute(fn func(ctx sdk.Context) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}

	header := n.header(n.Height() + 1)
	branch := n.cms.CacheMultiStore()
	ctx := sdk.NewContext(branch, header, false, n.logger)
	if err := fn(ctx); err != nil {
		return err
	}

	branch.Write()
	id := n.cms.Commit()
	n.lastTime = header.Time
	nodeLogger.Debug().Int64("height", id.Version).Msg("Block committed")
	return nil
}

// Query runs fn against a throwaway branch of the latest state.
func (n *Node) Query(fn func(ctx sdk.Context) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrClosed
	}

	header := n.header(n.Height())
	ctx := sdk.NewContext(n.cms.CacheMultiStore(), header, false, n.logger)
	return fn(ctx)
}

// Close releases the database.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil
	}
	n.closed = true
	return n.db.Close()
}
