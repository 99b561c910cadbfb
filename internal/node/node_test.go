package node

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/rovshanmuradov/tokenmill/internal/config"
	"github.com/rovshanmuradov/tokenmill/internal/events"
	"github.com/rovshanmuradov/tokenmill/internal/market/migration"
	"github.com/rovshanmuradov/tokenmill/internal/market/reflection"
)

func testConfig() *config.Config {
	return &config.Config{
		ProgramID:       config.DefaultProgramID,
		Storage:         config.StorageConfig{Driver: config.DriverMemory},
		ReflectionScale: reflection.DefaultScale,
		Migration: config.MigrationConfig{
			ThresholdLamports:    migration.DefaultThreshold,
			CreatorBonusLamports: migration.DefaultCreatorBonus,
		},
		Protocol: config.ProtocolConfig{
			ProtocolFeeShare:     config.DefaultProtocolFeeShare,
			ReferralFeeShare:     config.DefaultReferralFeeShare,
			CreatorFeeShare:      config.DefaultCreatorFeeShare,
			MaxForwardedAccounts: config.DefaultMaxForwardedAccounts,
		},
	}
}

func TestSimulateScenario(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)
	cfg := testConfig()

	runner := NewRunner(cfg, logger, WithJournal())
	require.NoError(t, runner.Initialize(ctx))

	sc := DefaultScenario()
	report, err := Simulate(ctx, runner.Engine(), runner.Runtime(), cfg.Protocol, sc, logger)
	require.NoError(t, err)
	// drains the bus into the journal
	require.NoError(t, runner.Shutdown(ctx))

	require.Len(t, report.Purchases, sc.Buyers)
	var sold uint64
	for i, p := range report.Purchases {
		assert.Positive(t, p.BaseAmount)
		if i == 0 {
			assert.Equal(t, "referral_account", p.ReferralRoute)
		} else {
			assert.Equal(t, "referrer", p.ReferralRoute)
		}
		sold += p.BaseAmount
	}

	snap := report.Snapshot
	assert.Equal(t, sold+snap.Buyback.TotalBuybackTokens, snap.Market.TotalSupply)
	assert.Equal(t, migration.Migrated, snap.State)
	assert.Equal(t, 2*sc.BuybackLamports, snap.Buyback.TotalBuybackLamports)
	assert.Positive(t, report.Reflection)
	assert.LessOrEqual(t, report.Reflection, sc.BuybackLamports/sc.BasePrice)
	assert.Positive(t, report.Migration.CreatorPaid)

	journal := runner.Journal()
	assert.Len(t, journal.OfType(events.SwapExecuted), sc.Buyers)
	assert.Len(t, journal.OfType(events.PaymentReceived), sc.Buyers)
	assert.Len(t, journal.OfType(events.BuybackExecuted), 2)
	assert.Len(t, journal.OfType(events.MarketMigrated), 1)
	assert.Len(t, journal.OfType(events.ReferralFeesClaimed), 1)
}

func TestRunnerWithoutJournal(t *testing.T) {
	ctx := context.Background()
	runner := NewRunner(testConfig(), zaptest.NewLogger(t))
	require.NoError(t, runner.Initialize(ctx))

	assert.Nil(t, runner.Journal())
	_, err := Simulate(ctx, runner.Engine(), runner.Runtime(), testConfig().Protocol, DefaultScenario(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, runner.Shutdown(ctx))
}

func TestShutdownOrderAndIdempotence(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop(), time.Second)

	var order []string
	for _, name := range []string{"store", "bus", "server"} {
		sh.AddCloser(name, func() error {
			order = append(order, name)
			return nil
		})
	}

	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Equal(t, []string{"server", "bus", "store"}, order)

	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownCollectsErrors(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop(), 50*time.Millisecond)
	boom := errors.New("boom")

	sh.Add("stuck", func(ctx context.Context) error {
		time.Sleep(time.Second)
		return nil
	})
	sh.AddCloser("broken", func() error { return boom })

	err := sh.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
