package core

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OlendLabs/olend-risk/config"
	"github.com/OlendLabs/olend-risk/core/events"
	"github.com/OlendLabs/olend-risk/native/breaker"
	"github.com/OlendLabs/olend-risk/native/common"
	"github.com/OlendLabs/olend-risk/native/oracle"
	"github.com/OlendLabs/olend-risk/native/risk"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(ev events.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingEmitter) byType(eventType string) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []events.Event
	for _, ev := range r.events {
		if ev.EventType() == eventType {
			matched = append(matched, ev)
		}
	}
	return matched
}

func testConfig() *config.Config {
	return &config.Config{
		Feeds: map[string]config.FeedSection{
			"ATOM": {FeedID: "atom-usd", HeartbeatSeconds: 60, MaxDeviationBps: 1000, MaxConfidenceRatioBps: 200},
			"USD":  {FeedID: "usd-usd", HeartbeatSeconds: 60, MaxDeviationBps: 1000, MaxConfidenceRatioBps: 200},
		},
		Policy: config.PolicySection{
			BaseCapBps:   map[string]uint64{"bluechip": 9500},
			TierBonusBps: map[string]uint64{"gold": 300},
		},
		Distribution: config.DistributionSection{
			LiquidatorBps: 5000,
			PlatformBps:   3000,
			InsuranceBps:  2000,
		},
	}
}

func newTestCore(t *testing.T) (*RiskCore, common.Capability, *recordingEmitter, *time.Time) {
	t.Helper()
	emitter := &recordingEmitter{}
	core, adminCap, err := New(testConfig(), emitter)
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	core.SetClock(func() time.Time { return now })
	return core, adminCap, emitter, &now
}

func TestGetValidatedPriceHappyPath(t *testing.T) {
	core, _, emitter, now := newTestCore(t)

	info, err := core.GetValidatedPrice("atom", 100, 0, *now)
	require.NoError(t, err)
	require.True(t, info.IsValid)
	require.Equal(t, "ATOM", info.Asset)
	require.Equal(t, uint8(100), info.ValidationScore)
	require.Empty(t, emitter.byType(events.TypePriceRejected))
}

func TestGetValidatedPriceRejectsStale(t *testing.T) {
	core, _, emitter, now := newTestCore(t)

	_, err := core.GetValidatedPrice("atom", 100, 0, now.Add(-2*time.Minute))
	require.ErrorIs(t, err, oracle.ErrStalePrice)

	rejected := emitter.byType(events.TypePriceRejected)
	require.Len(t, rejected, 1)
	require.Equal(t, "stale_price", rejected[0].(events.PriceRejected).Reason)
	require.Equal(t, uint32(1), core.BreakerState(breaker.Key(OpPriceUpdate, "ATOM")).Failures)
}

func TestGetValidatedPriceManipulationTripsBreakers(t *testing.T) {
	core, _, emitter, now := newTestCore(t)

	_, err := core.GetValidatedPrice("atom", 100, 0, *now)
	require.NoError(t, err)

	// 30% jump against a 10% envelope.
	info, err := core.GetValidatedPrice("atom", 130, 0, now.Add(time.Second))
	require.ErrorIs(t, err, oracle.ErrManipulationDetected)
	require.False(t, info.IsValid)
	require.GreaterOrEqual(t, info.ManipulationRisk, oracle.ManipulationThreshold)

	flagged := emitter.byType(events.TypeManipulationFlagged)
	require.Len(t, flagged, 1)
	require.Equal(t, uint64(100), flagged[0].(events.ManipulationFlagged).PrevPrice)

	// Every operation depending on the asset's price is halted.
	for _, op := range []string{OpPriceUpdate, OpBorrow, OpWithdraw, OpLiquidate} {
		require.False(t, core.IsOperationOpen(breaker.Key(op, "ATOM")), op)
	}

	// The open price breaker now rejects further updates outright.
	_, err = core.GetValidatedPrice("atom", 101, 0, now.Add(2*time.Second))
	require.ErrorIs(t, err, breaker.ErrCircuitOpen)
}

func TestComputePositionLTVAndWarning(t *testing.T) {
	core, _, emitter, now := newTestCore(t)

	_, err := core.GetValidatedPrice("atom", 100, 0, *now)
	require.NoError(t, err)
	_, err = core.GetValidatedPrice("usd", 1, 0, *now)
	require.NoError(t, err)

	position := risk.Position{
		Borrower:       "borrower-1",
		Collateral:     map[string]uint64{"ATOM": 1_000},
		BorrowedAmount: 85_000,
		BorrowedAsset:  "USD",
	}
	ltv, tier, err := core.ComputePositionLTV(position)
	require.NoError(t, err)
	require.Equal(t, uint64(8_500), ltv)
	require.Equal(t, risk.TierWarning, tier)

	warnings := emitter.byType(events.TypePositionWarning)
	require.Len(t, warnings, 1)
	require.Equal(t, uint64(8_000), warnings[0].(events.PositionWarning).WarnBps)
}

func TestComputePositionLTVRequiresValidatedPrices(t *testing.T) {
	core, _, _, _ := newTestCore(t)
	position := risk.Position{
		Collateral:     map[string]uint64{"ATOM": 1_000},
		BorrowedAmount: 100,
		BorrowedAsset:  "USD",
	}
	_, _, err := core.ComputePositionLTV(position)
	require.ErrorIs(t, err, oracle.ErrNoValidatedPrice)
}

func TestCheckLiquidation(t *testing.T) {
	core, _, emitter, now := newTestCore(t)

	_, err := core.GetValidatedPrice("atom", 100, 0, *now)
	require.NoError(t, err)
	_, err = core.GetValidatedPrice("usd", 1, 0, *now)
	require.NoError(t, err)

	healthy := risk.Position{
		Collateral:     map[string]uint64{"ATOM": 1_000},
		BorrowedAmount: 50_000,
		BorrowedAsset:  "USD",
	}
	decision, err := core.CheckLiquidation(healthy)
	require.NoError(t, err)
	require.Equal(t, OutcomeNone, decision.Outcome)

	underwater := healthy
	underwater.BorrowedAmount = 95_000
	decision, err = core.CheckLiquidation(underwater)
	require.NoError(t, err)
	require.Equal(t, OutcomeLiquidatable, decision.Outcome)
	require.Equal(t, uint64(9_500), decision.LTVBps)
	// Calm market, default envelope: the base rate applies.
	require.Equal(t, uint64(500), decision.PenaltyRateBps)

	eligible := emitter.byType(events.TypeLiquidationEligible)
	require.Len(t, eligible, 1)
}

func TestApproveOrigination(t *testing.T) {
	core, _, _, now := newTestCore(t)

	_, err := core.GetValidatedPrice("atom", 100, 0, *now)
	require.NoError(t, err)
	_, err = core.GetValidatedPrice("usd", 1, 0, *now)
	require.NoError(t, err)

	position := risk.Position{
		Collateral:     map[string]uint64{"ATOM": 1_000},
		BorrowedAmount: 90_000,
		BorrowedAsset:  "USD",
	}
	require.NoError(t, core.ApproveOrigination(position, "bluechip", "gold"))

	position.BorrowedAmount = 99_000
	err = core.ApproveOrigination(position, "bluechip", "gold")
	require.ErrorIs(t, err, risk.ErrExceedsMaxLTV)
}

func TestDistributePenalty(t *testing.T) {
	core, _, emitter, _ := newTestCore(t)

	dist, err := core.DistributePenalty(225)
	require.NoError(t, err)
	require.Equal(t, uint64(112), dist.Liquidator)
	require.Equal(t, uint64(68), dist.Platform)
	require.Equal(t, uint64(45), dist.Insurance)
	require.Equal(t, uint64(225), dist.Total())

	require.Len(t, emitter.byType(events.TypePenaltyDistributed), 1)
}

func TestAdminOperationsRequireCapability(t *testing.T) {
	core, adminCap, _, _ := newTestCore(t)
	forged := common.NewCapability()

	err := core.SetGlobalEmergency(forged, true)
	require.ErrorIs(t, err, common.ErrUnauthorized)
	require.True(t, core.IsOperationOpen(breaker.Key(OpBorrow, "ATOM")))

	require.NoError(t, core.SetGlobalEmergency(adminCap, true))
	require.False(t, core.IsOperationOpen(breaker.Key(OpBorrow, "ATOM")))
	require.NoError(t, core.SetGlobalEmergency(adminCap, false))

	err = core.UpdateCollateralPolicy(forged, risk.CollateralPolicy{})
	require.ErrorIs(t, err, common.ErrUnauthorized)

	require.NoError(t, core.UpdateFeedConfig(adminCap, "OSMO", oracle.FeedConfig{FeedID: "osmo-usd"}))
	now := time.Unix(1_700_000_000, 0)
	_, err = core.GetValidatedPrice("osmo", 50, 0, now)
	require.NoError(t, err)
}

func TestRecordOperationFeedsBreaker(t *testing.T) {
	core, adminCap, _, _ := newTestCore(t)
	key := breaker.Key(OpBorrow, "ATOM")
	require.NoError(t, core.UpdateThresholds(adminCap, key, breaker.Thresholds{FailureThreshold: 1}))

	core.RecordOperation(key, false, 0)
	require.True(t, core.IsOperationOpen(key))
	core.RecordOperation(key, false, 0)
	require.False(t, core.IsOperationOpen(key))
}
