package main

import (
	"context"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog/log"

	"github.com/banana-dao/banana-vaults/internal/bank"
	"github.com/banana-dao/banana-vaults/internal/config"
	"github.com/banana-dao/banana-vaults/internal/ledger"
	"github.com/banana-dao/banana-vaults/internal/node"
	"github.com/banana-dao/banana-vaults/internal/oracle"
	"github.com/banana-dao/banana-vaults/internal/types"
	"github.com/banana-dao/banana-vaults/internal/valuation"
	"github.com/banana-dao/banana-vaults/internal/vault"
	"github.com/banana-dao/banana-vaults/internal/venue"
)

// app is the wired vault stack on top of one local node.
type app struct {
	node       *node.Node
	ledger     *ledger.Store
	bank       *bank.Keeper
	amm        *venue.AMM
	static     *oracle.StaticSource // Set when ORACLE_SOURCE=static
	controller *vault.Controller
	service    *vault.LocalService
}

// buildApp opens the node in config.HomeDir and wires the vault on top of it. pending is the config
// about to be instantiated, used to derive feed decimal shifts when the store holds none yet.
func buildApp(pending *types.VaultConfig) (*app, error) {
	n, err := node.New(node.Config{
		ChainID: config.ChainID,
		HomeDir: config.HomeDir,
		Backend: config.DBBackend,
	})
	if err != nil {
		return nil, err
	}
	a := &app{node: n}
	if err := a.wire(pending); err != nil {
		n.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(pending *types.VaultConfig) error {
	var err error
	svc := a.node.StoreService()
	if a.ledger, err = ledger.NewStore(svc); err != nil {
		return err
	}
	if a.bank, err = bank.NewKeeper(svc); err != nil {
		return err
	}
	if a.amm, err = venue.NewAMM(svc, a.bank); err != nil {
		return err
	}

	cfg, instantiated, err := a.storedConfig()
	if err != nil {
		return err
	}
	if !instantiated && pending != nil {
		cfg = *pending
	}

	base, err := a.priceSource(feedShifts(cfg))
	if err != nil {
		return err
	}
	prices := venue.NewLPPriceSource(base, a.amm, a.ledger)

	engine, err := valuation.NewEngine(a.ledger, prices, a.bank, config.VaultAccount)
	if err != nil {
		return err
	}
	adapter, err := venue.NewAdapter(a.amm, a.ledger, config.VaultAccount)
	if err != nil {
		return err
	}
	a.controller, err = vault.NewController(vault.Config{
		Ledger:  a.ledger,
		Engine:  engine,
		Adapter: adapter,
		Custody: a.bank,
		Account: config.VaultAccount,
	})
	if err != nil {
		return err
	}
	a.service = vault.NewLocalService(a.node, a.controller)
	return nil
}

func (a *app) storedConfig() (types.VaultConfig, bool, error) {
	var (
		cfg          types.VaultConfig
		instantiated bool
	)
	err := a.node.Query(func(ctx sdk.Context) error {
		var err error
		if instantiated, err = a.ledger.IsInstantiated(ctx); err != nil || !instantiated {
			return err
		}
		cfg, err = a.ledger.GetConfig(ctx)
		return err
	})
	return cfg, instantiated, err
}

// priceSource builds the ORACLE_SOURCE implementation. Remote sources are cached for PriceCacheTTL.
func (a *app) priceSource(shifts map[string]int32) (oracle.PriceSource, error) {
	ttl := time.Duration(config.PriceCacheTTL) * time.Second
	switch config.OracleSource {
	case config.OracleBinance:
		client := binance.NewClient("", "")
		if config.BinanceBaseURL != "" {
			client.BaseURL = config.BinanceBaseURL
		}
		return oracle.NewCachedSource(oracle.NewBinanceSource(client, nil, shifts), ttl), nil
	case config.OracleCryptoCompare:
		source, err := oracle.NewCryptoCompareSource(config.CryptoCompareBaseURL, config.CryptoCompareAPIKey, nil, shifts)
		if err != nil {
			return nil, err
		}
		return oracle.NewCachedSource(source, ttl), nil
	case config.OracleStatic:
		a.static = oracle.NewStaticSource()
		a.publishStaticPrices()
		return a.static, nil
	default:
		return nil, fmt.Errorf("unsupported oracle source %q", config.OracleSource)
	}
}

// publishStaticPrices restamps the configured static prices with the current time.
func (a *app) publishStaticPrices() {
	if a.static == nil {
		return
	}
	now := time.Now()
	for feed, price := range config.StaticPrices {
		a.static.Set(feed, price, now)
	}
}

// refreshStaticPrices keeps static quotes inside the vault's staleness window until ctx is cancelled.
func (a *app) refreshStaticPrices(ctx context.Context, interval time.Duration) {
	if a.static == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.publishStaticPrices()
		}
	}
}

func (a *app) close() {
	if err := a.node.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close node")
	}
}

// feedShifts maps every remote feed of cfg to the decimal shift between the asset and the reference denom.
func feedShifts(cfg types.VaultConfig) map[string]int32 {
	shifts := make(map[string]int32)
	ref, ok := cfg.Asset(cfg.ReferenceDenom)
	if !ok {
		return shifts
	}
	for _, asset := range cfg.Assets {
		if asset.FeedID == "" {
			continue
		}
		if _, lp := types.ParseLPDenom(asset.Denom); lp {
			continue
		}
		shifts[asset.FeedID] = oracle.DecimalShift(ref.Decimals, asset.Decimals)
	}
	return shifts
}
