package venue

import (
	"context"
	"math/big"
	"testing"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/banana-dao/banana-vaults/internal/bank"
	"github.com/banana-dao/banana-vaults/internal/ledger"
	"github.com/banana-dao/banana-vaults/internal/oracle"
	"github.com/banana-dao/banana-vaults/internal/testutil"
	"github.com/banana-dao/banana-vaults/internal/types"
)

const lp1 = "amm/pool/1"

type VenueTestSuite struct {
	suite.Suite

	ctx     sdk.Context
	store   *ledger.Store
	bank    *bank.Keeper
	amm     *AMM
	adapter *Adapter
	cfg     types.VaultConfig
}

func TestVenueTestSuite(t *testing.T) {
	suite.Run(t, new(VenueTestSuite))
}

func (s *VenueTestSuite) SetupTest() {
	ctx, svc := testutil.NewContext(s.T())
	var err error
	s.ctx = ctx
	s.store, err = ledger.NewStore(svc)
	s.Require().NoError(err)
	s.bank, err = bank.NewKeeper(svc)
	s.Require().NoError(err)
	s.amm, err = NewAMM(svc, s.bank)
	s.Require().NoError(err)
	s.adapter, err = NewAdapter(s.amm, s.store, testutil.VaultAcc)
	s.Require().NoError(err)

	s.cfg = testutil.DefaultConfig()
	s.cfg.Assets = append(s.cfg.Assets, types.Asset{Denom: lp1, FeedID: lp1, MinDeposit: sdkmath.ZeroInt()})
	s.Require().NoError(s.store.Config.Set(ctx, s.cfg))

	// pool 1: 10_000 uatom / 20_000 uusdc, no fee
	s.fund("lp", testutil.Coin(testutil.AtomDenom, 10_000), testutil.Coin(testutil.RefDenom, 20_000))
	pool, err := s.amm.CreatePool(ctx, "lp", testutil.Coin(testutil.RefDenom, 20_000), testutil.Coin(testutil.AtomDenom, 10_000), 0)
	s.Require().NoError(err)
	s.Equal(types.PoolID(1), pool.ID)
	s.Equal(testutil.AtomDenom, pool.DenomA)

	s.holdVault(testutil.Coin(testutil.RefDenom, 5_000), testutil.Coin(testutil.AtomDenom, 1_000))
}

func (s *VenueTestSuite) fund(addr string, coins ...sdk.Coin) {
	s.Require().NoError(s.bank.MintCoins(s.ctx, addr, sdk.NewCoins(coins...)))
}

func (s *VenueTestSuite) holdVault(coins ...sdk.Coin) {
	s.fund(testutil.VaultAcc, coins...)
	for _, c := range coins {
		s.Require().NoError(s.store.AddHolding(s.ctx, c))
	}
}

func (s *VenueTestSuite) holding(denom string) string {
	amount, err := s.store.GetHolding(s.ctx, denom)
	s.Require().NoError(err)
	return amount.String()
}

func (s *VenueTestSuite) swapRoute() types.Route {
	return types.Route{Kind: types.TradeSwap, PoolID: 1, DenomIn: testutil.RefDenom, DenomOut: testutil.AtomDenom}
}

func (s *VenueTestSuite) TestCreatePoolIssuesGeometricMeanShares() {
	pool, err := s.amm.Pool(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal("14142", pool.TotalShares.String())

	lpBalance, err := s.bank.GetBalance(s.ctx, "lp", lp1)
	s.Require().NoError(err)
	s.Equal("14142", lpBalance.String())

	pools, err := s.amm.AllPools(s.ctx)
	s.Require().NoError(err)
	s.Len(pools, 1)
}

func (s *VenueTestSuite) TestCreatePoolValidation() {
	_, err := s.amm.CreatePool(s.ctx, "lp", testutil.Coin("uatom", 1), testutil.Coin("uatom", 1), 0)
	s.ErrorIs(err, ErrInvalidPool)
	_, err = s.amm.CreatePool(s.ctx, "lp", testutil.Coin("uatom", 1), testutil.Coin("uusdc", 1), types.BasisPoints)
	s.ErrorIs(err, ErrInvalidPool)
}

func (s *VenueTestSuite) TestSimulateSwap() {
	est, err := s.amm.SimulateSwap(s.ctx, 1, testutil.Coin(testutil.RefDenom, 2_000), testutil.AtomDenom)
	s.Require().NoError(err)
	// 10000 * 2000 / 22000
	s.Equal("909", est.TokenOutAmount.String())
	s.True(est.PriceImpact.IsPositive())

	pool, _ := s.amm.Pool(s.ctx, 1)
	s.Equal("20000", pool.ReserveB.String(), "simulation must not mutate reserves")
}

func (s *VenueTestSuite) TestSwapReconcilesFromSettlement() {
	settlement, err := s.adapter.ExecuteTrade(s.ctx, s.cfg, s.swapRoute(), sdkmath.NewInt(2_000), sdkmath.NewInt(900))

	s.Require().NoError(err)
	s.Equal("2000uusdc", settlement.Spent.String())
	s.Equal("909uatom", settlement.Received.String())
	s.Equal("3000", s.holding(testutil.RefDenom))
	s.Equal("1909", s.holding(testutil.AtomDenom))

	custody, err := s.bank.GetAllBalances(s.ctx, testutil.VaultAcc)
	s.Require().NoError(err)
	s.Equal("1909uatom,3000uusdc", custody.String())

	pool, _ := s.amm.Pool(s.ctx, 1)
	s.Equal("9091", pool.ReserveA.String())
	s.Equal("22000", pool.ReserveB.String())
}

func (s *VenueTestSuite) TestSwapFee() {
	s.fund("lp", testutil.Coin(testutil.AtomDenom, 1_000), testutil.Coin(testutil.OsmoDenom, 1_000))
	_, err := s.amm.CreatePool(s.ctx, "lp", testutil.Coin(testutil.AtomDenom, 1_000), testutil.Coin(testutil.OsmoDenom, 1_000), 100)
	s.Require().NoError(err)

	est, err := s.amm.SimulateSwap(s.ctx, 2, testutil.Coin(testutil.AtomDenom, 100), testutil.OsmoDenom)
	s.Require().NoError(err)
	// in after fee 99, out = 1000*99/1099
	s.Equal("90", est.TokenOutAmount.String())
}

func (s *VenueTestSuite) TestMinOutRejected() {
	_, err := s.adapter.ExecuteTrade(s.ctx, s.cfg, s.swapRoute(), sdkmath.NewInt(2_000), sdkmath.NewInt(1_000))

	s.ErrorIs(err, types.ErrVenueRejected)
	s.ErrorContains(err, ErrMinOutNotMet.Error())
}

func (s *VenueTestSuite) TestAmountAboveLiquidHolding() {
	_, err := s.adapter.ExecuteTrade(s.ctx, s.cfg, s.swapRoute(), sdkmath.NewInt(5_001), sdkmath.ZeroInt())
	s.ErrorIs(err, types.ErrInsufficientHoldings)
}

func (s *VenueTestSuite) TestRouteValidation() {
	route := s.swapRoute()
	route.DenomOut = "ujuno"
	_, err := s.adapter.ExecuteTrade(s.ctx, s.cfg, route, sdkmath.NewInt(1), sdkmath.ZeroInt())
	s.ErrorIs(err, types.ErrInvalidDenom)

	route = s.swapRoute()
	route.Kind = "BRIDGE"
	_, err = s.adapter.ExecuteTrade(s.ctx, s.cfg, route, sdkmath.NewInt(1), sdkmath.ZeroInt())
	s.ErrorIs(err, types.ErrInvalidRoute)

	_, err = s.adapter.ExecuteTrade(s.ctx, s.cfg, s.swapRoute(), sdkmath.ZeroInt(), sdkmath.ZeroInt())
	s.ErrorIs(err, types.ErrInvalidAmount)
}

func (s *VenueTestSuite) TestUnknownPool() {
	route := s.swapRoute()
	route.PoolID = 9
	_, err := s.adapter.ExecuteTrade(s.ctx, s.cfg, route, sdkmath.NewInt(10), sdkmath.ZeroInt())
	s.ErrorIs(err, types.ErrVenueRejected)
}

func (s *VenueTestSuite) TestJoinAndExit() {
	// ACT: join with 500 uatom, the matching 1000 uusdc leg is pulled too
	join := types.Route{Kind: types.TradeJoinPool, PoolID: 1, DenomIn: testutil.AtomDenom, DenomOut: lp1}
	settlement, err := s.adapter.ExecuteTrade(s.ctx, s.cfg, join, sdkmath.NewInt(500), sdkmath.NewInt(1))

	// ASSERT
	s.Require().NoError(err)
	s.Equal("500uatom,1000uusdc", settlement.Spent.String())
	s.Equal("707"+lp1, settlement.Received.String())
	s.Equal("500", s.holding(testutil.AtomDenom))
	s.Equal("4000", s.holding(testutil.RefDenom))
	s.Equal("707", s.holding(lp1))

	exit := types.Route{Kind: types.TradeExitPool, PoolID: 1, DenomIn: lp1, DenomOut: testutil.RefDenom}
	settlement, err = s.adapter.ExecuteTrade(s.ctx, s.cfg, exit, sdkmath.NewInt(707), sdkmath.NewInt(990))

	s.Require().NoError(err)
	s.Equal("707"+lp1, settlement.Spent.String())
	s.Equal("0", s.holding(lp1))
	s.True(settlement.Received.AmountOf(testutil.RefDenom).GTE(sdkmath.NewInt(990)))
	s.True(settlement.Received.AmountOf(testutil.AtomDenom).GTE(sdkmath.NewInt(495)))
}

func (s *VenueTestSuite) TestJoinOtherLegShortfall() {
	s.Require().NoError(s.store.SubHolding(s.ctx, testutil.Coin(testutil.RefDenom, 4_500)))
	s.Require().NoError(s.bank.BurnCoins(s.ctx, testutil.VaultAcc, sdk.NewCoins(testutil.Coin(testutil.RefDenom, 4_500))))

	join := types.Route{Kind: types.TradeJoinPool, PoolID: 1, DenomIn: testutil.AtomDenom, DenomOut: lp1}
	_, err := s.adapter.ExecuteTrade(s.ctx, s.cfg, join, sdkmath.NewInt(500), sdkmath.ZeroInt())

	s.ErrorIs(err, types.ErrVenueRejected)
}

func (s *VenueTestSuite) TestLPPriceSource() {
	prices := oracle.NewStaticSource()
	prices.Set(testutil.AtomFeed, sdkmath.LegacyNewDec(2), testutil.GenesisTime)
	src := NewLPPriceSource(prices, s.amm, s.store)

	q, err := src.Quote(s.ctx, lp1)

	s.Require().NoError(err)
	// (10000*2 + 20000) / 14142
	s.Equal("2.828454249752510253", q.Price.String())
	s.Equal(testutil.GenesisTime, q.PublishTime)
	s.True(src.ValidFeed(lp1))

	passthrough, err := src.Quote(s.ctx, testutil.AtomFeed)
	s.Require().NoError(err)
	s.Equal("2.000000000000000000", passthrough.Price.String())
}

func (s *VenueTestSuite) TestLPPriceSourceMissingLeg() {
	src := NewLPPriceSource(oracle.NewStaticSource(), s.amm, s.store)
	_, err := src.Quote(s.ctx, lp1)
	s.ErrorIs(err, oracle.ErrNoQuote)

	_, err = src.Quote(s.ctx, "amm/pool/7")
	s.ErrorIs(err, oracle.ErrNoQuote)
}

type mockVenue struct {
	mock.Mock
}

func (m *mockVenue) Execute(ctx context.Context, trader string, route types.Route, amountIn, minOut sdkmath.Int) (types.Settlement, error) {
	args := m.Called(ctx, trader, route, amountIn, minOut)
	return args.Get(0).(types.Settlement), args.Error(1)
}

func (s *VenueTestSuite) TestSettlementWithForeignDenomRejected() {
	venue := new(mockVenue)
	venue.On("Execute", mock.Anything, testutil.VaultAcc, s.swapRoute(), mock.Anything, mock.Anything).
		Return(types.Settlement{
			Spent:    sdk.NewCoins(testutil.Coin(testutil.RefDenom, 10)),
			Received: sdk.NewCoins(testutil.Coin(testutil.AtomDenom, 5), testutil.Coin("ujuno", 1)),
		}, nil)
	adapter, err := NewAdapter(venue, s.store, testutil.VaultAcc)
	s.Require().NoError(err)

	_, err = adapter.ExecuteTrade(s.ctx, s.cfg, s.swapRoute(), sdkmath.NewInt(10), sdkmath.ZeroInt())

	s.ErrorIs(err, types.ErrVenueRejected)
	s.Equal("5000", s.holding(testutil.RefDenom))
	venue.AssertExpectations(s.T())
}

func (s *VenueTestSuite) TestSettlementOverspendRejected() {
	venue := new(mockVenue)
	venue.On("Execute", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(types.Settlement{Spent: sdk.NewCoins(testutil.Coin(testutil.RefDenom, 11))}, nil)
	adapter, err := NewAdapter(venue, s.store, testutil.VaultAcc)
	s.Require().NoError(err)

	_, err = adapter.ExecuteTrade(s.ctx, s.cfg, s.swapRoute(), sdkmath.NewInt(10), sdkmath.ZeroInt())

	s.ErrorIs(err, types.ErrVenueRejected)
}

func (s *VenueTestSuite) TestReentrancyPassesThrough() {
	venue := new(mockVenue)
	venue.On("Execute", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(types.Settlement{}, types.ErrReentrancyRejected)
	adapter, err := NewAdapter(venue, s.store, testutil.VaultAcc)
	s.Require().NoError(err)

	_, err = adapter.ExecuteTrade(s.ctx, s.cfg, s.swapRoute(), sdkmath.NewInt(10), sdkmath.ZeroInt())

	s.ErrorIs(err, types.ErrReentrancyRejected)
	s.NotErrorIs(err, types.ErrVenueRejected)
}

func (s *VenueTestSuite) TestNewAdapterValidation() {
	_, err := NewAdapter(nil, nil, "")
	s.ErrorContains(err, "venue cannot be nil")
	s.ErrorContains(err, "vault account is required")
}

func (s *VenueTestSuite) TestOverflowIsInsufficientLiquidity() {
	huge := sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 127))
	s.fund("whale", sdk.NewCoin(testutil.AtomDenom, huge), sdk.NewCoin(testutil.OsmoDenom, huge))
	pool, err := s.amm.CreatePool(s.ctx, "whale", sdk.NewCoin(testutil.AtomDenom, huge), sdk.NewCoin(testutil.OsmoDenom, huge), 0)
	s.Require().NoError(err)
	amountIn := sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 200))

	_, err = s.amm.SimulateSwap(s.ctx, pool.ID, sdk.NewCoin(testutil.AtomDenom, amountIn), testutil.OsmoDenom)
	s.ErrorIs(err, ErrInsufficientLiquidity)

	join := types.Route{Kind: types.TradeJoinPool, PoolID: pool.ID, DenomIn: testutil.AtomDenom}
	s.NotPanics(func() {
		_, err = s.amm.Execute(s.ctx, "whale", join, amountIn, sdkmath.ZeroInt())
	})
	s.ErrorIs(err, ErrInsufficientLiquidity)

	swap := types.Route{Kind: types.TradeSwap, PoolID: pool.ID, DenomIn: testutil.AtomDenom, DenomOut: testutil.OsmoDenom}
	s.NotPanics(func() {
		_, err = s.amm.Execute(s.ctx, "whale", swap, amountIn, sdkmath.ZeroInt())
	})
	s.ErrorIs(err, ErrInsufficientLiquidity)
}
