package valuation

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/banana-dao/banana-vaults/internal/bank"
	"github.com/banana-dao/banana-vaults/internal/ledger"
	"github.com/banana-dao/banana-vaults/internal/oracle"
	"github.com/banana-dao/banana-vaults/internal/testutil"
	"github.com/banana-dao/banana-vaults/internal/types"
)

type EngineTestSuite struct {
	suite.Suite

	ctx    sdk.Context
	store  *ledger.Store
	bank   *bank.Keeper
	prices *oracle.StaticSource
	engine *Engine
	cfg    types.VaultConfig
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func (s *EngineTestSuite) SetupTest() {
	ctx, svc := testutil.NewContext(s.T())
	store, err := ledger.NewStore(svc)
	s.Require().NoError(err)
	bk, err := bank.NewKeeper(svc)
	s.Require().NoError(err)

	s.ctx, s.store, s.bank = ctx, store, bk
	s.prices = oracle.NewStaticSource()
	s.cfg = testutil.DefaultConfig()
	s.Require().NoError(store.Config.Set(ctx, s.cfg))

	s.engine, err = NewEngine(store, s.prices, bk, testutil.VaultAcc)
	s.Require().NoError(err)
}

func (s *EngineTestSuite) hold(coins ...sdk.Coin) {
	for _, c := range coins {
		s.Require().NoError(s.store.AddHolding(s.ctx, c))
		s.Require().NoError(s.bank.MintCoins(s.ctx, testutil.VaultAcc, sdk.NewCoins(c)))
	}
}

func (s *EngineTestSuite) TestEmptyVault() {
	nav, err := s.engine.ComputeNAV(s.ctx)
	s.Require().NoError(err)
	s.True(nav.Total.IsZero())
	s.Empty(nav.Components)
}

func (s *EngineTestSuite) TestReferenceOnlyNeedsNoQuote() {
	s.hold(testutil.Coin(testutil.RefDenom, 1200))

	nav, err := s.engine.ComputeNAV(s.ctx)

	s.Require().NoError(err)
	s.Equal("1200", nav.Total.String())
}

func (s *EngineTestSuite) TestMixedHoldings() {
	s.hold(testutil.Coin(testutil.RefDenom, 1200), testutil.Coin(testutil.AtomDenom, 300))
	s.prices.Set(testutil.AtomFeed, sdkmath.LegacyNewDec(2), testutil.GenesisTime)

	nav, err := s.engine.ComputeNAV(s.ctx)

	s.Require().NoError(err)
	s.Equal("1800", nav.Total.String())
	s.Require().Len(nav.Components, 2)
	s.Equal(testutil.AtomDenom, nav.Components[0].Denom)
	s.Equal("600", nav.Components[0].Value.String())
	s.Equal(testutil.GenesisTime, nav.Timestamp)
}

func (s *EngineTestSuite) TestFractionalPriceFloors() {
	s.hold(testutil.Coin(testutil.AtomDenom, 3))
	s.prices.Set(testutil.AtomFeed, sdkmath.LegacyMustNewDecFromStr("0.5"), testutil.GenesisTime)

	nav, err := s.engine.ComputeNAV(s.ctx)

	s.Require().NoError(err)
	s.Equal("1", nav.Total.String())
}

func (s *EngineTestSuite) TestStalePrice() {
	s.hold(testutil.Coin(testutil.AtomDenom, 10))
	s.prices.Set(testutil.AtomFeed, sdkmath.LegacyOneDec(), testutil.GenesisTime.Add(-2*time.Minute))

	_, err := s.engine.ComputeNAV(s.ctx)

	s.ErrorIs(err, types.ErrStalePrice)
	s.Equal(types.KindValuation, types.KindOf(err))
}

func (s *EngineTestSuite) TestFuturePriceBeyondSkew() {
	s.hold(testutil.Coin(testutil.AtomDenom, 10))
	s.prices.Set(testutil.AtomFeed, sdkmath.LegacyOneDec(), testutil.GenesisTime.Add(time.Minute))

	_, err := s.engine.ComputeNAV(s.ctx)

	s.ErrorIs(err, types.ErrStalePrice)
}

func (s *EngineTestSuite) TestMissingFeed() {
	s.hold(testutil.Coin(testutil.AtomDenom, 10))

	_, err := s.engine.ComputeNAV(s.ctx)

	s.ErrorIs(err, types.ErrMissingFeed)
}

func (s *EngineTestSuite) TestNonPositivePrice() {
	s.hold(testutil.Coin(testutil.AtomDenom, 10))
	s.prices.Set(testutil.AtomFeed, sdkmath.LegacyZeroDec(), testutil.GenesisTime)

	_, err := s.engine.ComputeNAV(s.ctx)

	s.ErrorIs(err, types.ErrMissingFeed)
}

func (s *EngineTestSuite) TestLowConfidence() {
	cfg := s.cfg
	cfg.MaxConfidenceBps = 100
	s.prices.SetQuote(types.PriceQuote{
		FeedID:      testutil.AtomFeed,
		Price:       sdkmath.LegacyNewDec(10),
		Confidence:  sdkmath.LegacyMustNewDecFromStr("0.2"),
		PublishTime: testutil.GenesisTime,
	})

	_, err := s.engine.Value(s.ctx, cfg, sdk.NewCoins(testutil.Coin(testutil.AtomDenom, 1)), testutil.GenesisTime)

	s.ErrorIs(err, types.ErrLowConfidence)
}

func (s *EngineTestSuite) TestOverflow() {
	huge := sdkmath.NewInt(1).MulRaw(1 << 62).MulRaw(1 << 62).MulRaw(1 << 62).MulRaw(1 << 60)
	s.hold(sdk.NewCoin(testutil.AtomDenom, huge))
	s.prices.Set(testutil.AtomFeed, sdkmath.LegacyNewDec(1000), testutil.GenesisTime)

	_, err := s.engine.ComputeNAV(s.ctx)

	s.ErrorIs(err, types.ErrOverflow)
}

func (s *EngineTestSuite) TestHoldingsMismatch() {
	s.Require().NoError(s.store.AddHolding(s.ctx, testutil.Coin(testutil.RefDenom, 100)))

	_, err := s.engine.ComputeNAV(s.ctx)

	s.ErrorIs(err, types.ErrHoldingsMismatch)
	s.True(types.IsInvariantBreach(err))
}

func (s *EngineTestSuite) TestDonationIgnored() {
	s.hold(testutil.Coin(testutil.RefDenom, 100))
	s.Require().NoError(s.bank.MintCoins(s.ctx, testutil.VaultAcc, sdk.NewCoins(testutil.Coin(testutil.RefDenom, 5000))))

	nav, err := s.engine.ComputeNAV(s.ctx)

	s.Require().NoError(err)
	s.Equal("100", nav.Total.String())
}

func (s *EngineTestSuite) TestIdempotent() {
	s.hold(testutil.Coin(testutil.RefDenom, 1200), testutil.Coin(testutil.AtomDenom, 300), testutil.Coin(testutil.OsmoDenom, 77))
	s.prices.Set(testutil.AtomFeed, sdkmath.LegacyMustNewDecFromStr("2.333"), testutil.GenesisTime)
	s.prices.Set(testutil.OsmoFeed, sdkmath.LegacyMustNewDecFromStr("0.1"), testutil.GenesisTime)

	first, err := s.engine.ComputeNAV(s.ctx)
	s.Require().NoError(err)
	second, err := s.engine.ComputeNAV(s.ctx)
	s.Require().NoError(err)

	s.Equal(first.Total.String(), second.Total.String())
}

func TestValueIgnoresInputOrder(t *testing.T) {
	prices := oracle.NewStaticSource()
	prices.Set(testutil.AtomFeed, sdkmath.LegacyMustNewDecFromStr("1.5"), testutil.GenesisTime)
	prices.Set(testutil.OsmoFeed, sdkmath.LegacyMustNewDecFromStr("0.3"), testutil.GenesisTime)
	engine, err := NewEngine(nopLedger{}, prices, nil, "")
	require.NoError(t, err)
	cfg := testutil.DefaultConfig()

	a := sdk.Coins{testutil.Coin(testutil.OsmoDenom, 11), testutil.Coin(testutil.AtomDenom, 7), testutil.Coin(testutil.RefDenom, 5)}
	b := sdk.Coins{testutil.Coin(testutil.RefDenom, 5), testutil.Coin(testutil.AtomDenom, 7), testutil.Coin(testutil.OsmoDenom, 11)}

	navA, err := engine.Value(context.Background(), cfg, a, testutil.GenesisTime)
	require.NoError(t, err)
	navB, err := engine.Value(context.Background(), cfg, b, testutil.GenesisTime)
	require.NoError(t, err)

	assert.Equal(t, navA.Total.String(), navB.Total.String())
	assert.Equal(t, navA.Components, navB.Components)
}

func TestMulPrice(t *testing.T) {
	v, err := MulPrice(sdkmath.NewInt(10), sdkmath.LegacyMustNewDecFromStr("0.15"))
	require.NoError(t, err)
	assert.Equal(t, "1", v.String())
}

func TestNewEngineValidation(t *testing.T) {
	_, err := NewEngine(nil, oracle.NewStaticSource(), nil, "")
	assert.Error(t, err)
	_, err = NewEngine(nopLedger{}, nil, nil, "")
	assert.Error(t, err)
	_, err = NewEngine(nopLedger{}, oracle.NewStaticSource(), &bank.Keeper{}, "")
	assert.Error(t, err)
}

type nopLedger struct{}

func (nopLedger) GetConfig(context.Context) (types.VaultConfig, error) { return types.VaultConfig{}, nil }
func (nopLedger) GetHoldings(context.Context) (sdk.Coins, error)      { return nil, nil }
