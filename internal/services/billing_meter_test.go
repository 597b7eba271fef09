package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/yourastro/backend/internal/config"
)

func meterTestConfig() *config.SessionConfig {
	return &config.SessionConfig{
		TickInterval:        time.Second,
		BillingIntervalSecs: 60,
		LowBalanceThreshold: 100,
	}
}

func TestBillingMeter_ChargesPerMinuteAndSettlesPartial(t *testing.T) {
	ledger := &fakeLedger{balance: 10000}
	meter := NewBillingMeter("s1", "user1", 50, ledger, meterTestConfig(), MeterEvents{})

	// 125 seconds: two full minutes billed live, third settled on Stop.
	for i := 0; i < 125; i++ {
		meter.tick()
	}

	assert.Equal(t, 2, ledger.debitCount())
	assert.Equal(t, int64(100), ledger.totalDebited())
	assert.Equal(t, 125, meter.Elapsed())

	result := meter.Stop(context.Background())

	assert.Equal(t, 125, result.ElapsedSeconds)
	assert.Equal(t, 3, result.MinutesBilled)
	assert.Equal(t, int64(150), result.AmountCharged)
	assert.Equal(t, 3, ledger.debitCount())
	assert.Equal(t, int64(150), ledger.totalDebited())
}

func TestBillingMeter_PartialMinuteChargedOnStop(t *testing.T) {
	ledger := &fakeLedger{balance: 10000}
	meter := NewBillingMeter("s1", "user1", 50, ledger, meterTestConfig(), MeterEvents{})

	// 45 seconds never crosses a billing boundary.
	for i := 0; i < 45; i++ {
		meter.tick()
	}
	assert.Equal(t, 0, ledger.debitCount())

	result := meter.Stop(context.Background())

	assert.Equal(t, 45, result.ElapsedSeconds)
	assert.Equal(t, 1, result.MinutesBilled)
	assert.Equal(t, int64(50), result.AmountCharged)
	assert.Equal(t, 1, ledger.debitCount())
}

func TestBillingMeter_ZeroElapsedChargesNothing(t *testing.T) {
	ledger := &fakeLedger{balance: 10000}
	meter := NewBillingMeter("s1", "user1", 50, ledger, meterTestConfig(), MeterEvents{})

	result := meter.Stop(context.Background())

	assert.Equal(t, 0, result.ElapsedSeconds)
	assert.Equal(t, 0, result.MinutesBilled)
	assert.Equal(t, int64(0), result.AmountCharged)
	assert.Equal(t, 0, ledger.debitCount())
}

func TestBillingMeter_LowBalanceWarnsOncePerCrossing(t *testing.T) {
	ledger := &fakeLedger{balance: 130}
	warnings := []int64{}
	meter := NewBillingMeter("s1", "user1", 50, ledger, meterTestConfig(), MeterEvents{
		OnLowBalance: func(balance int64) {
			warnings = append(warnings, balance)
		},
	})

	// First minute: 130 -> 80, crosses below 100, one warning.
	for i := 0; i < 60; i++ {
		meter.tick()
	}
	assert.Equal(t, []int64{80}, warnings)

	// Second minute: 80 -> 30, still below threshold, no repeat.
	for i := 0; i < 60; i++ {
		meter.tick()
	}
	assert.Equal(t, []int64{80}, warnings)
}

func TestBillingMeter_LowBalanceWarnsAgainAfterRecovery(t *testing.T) {
	ledger := &fakeLedger{balance: 130}
	warnings := 0
	meter := NewBillingMeter("s1", "user1", 50, ledger, meterTestConfig(), MeterEvents{
		OnLowBalance: func(int64) { warnings++ },
	})

	for i := 0; i < 60; i++ {
		meter.tick()
	}
	assert.Equal(t, 1, warnings)

	// A top-up lifts the balance back above the threshold; the next
	// crossing warns again.
	ledger.Credit(context.Background(), "user1", 500, "top-up")
	for i := 0; i < 60; i++ {
		meter.tick()
	}
	assert.Equal(t, 1, warnings) // 580 -> 530, above threshold

	ledger.mu.Lock()
	ledger.balance = 120
	ledger.mu.Unlock()
	for i := 0; i < 60; i++ {
		meter.tick()
	}
	assert.Equal(t, 2, warnings) // 120 -> 70, second crossing
}

func TestBillingMeter_ExhaustedWalletRaisesEvent(t *testing.T) {
	ledger := &fakeLedger{balance: 30}
	exhausted := make(chan struct{}, 1)
	meter := NewBillingMeter("s1", "user1", 50, ledger, meterTestConfig(), MeterEvents{
		OnExhausted: func() { exhausted <- struct{}{} },
	})

	for i := 0; i < 60; i++ {
		meter.tick()
	}

	select {
	case <-exhausted:
	case <-time.After(time.Second):
		t.Fatal("expected OnExhausted to fire")
	}
	assert.Equal(t, 0, ledger.debitCount())
}

func TestBillingMeter_StopIsIdempotent(t *testing.T) {
	ledger := &fakeLedger{balance: 10000}
	meter := NewBillingMeter("s1", "user1", 50, ledger, meterTestConfig(), MeterEvents{})

	for i := 0; i < 70; i++ {
		meter.tick()
	}

	first := meter.Stop(context.Background())
	second := meter.Stop(context.Background())

	assert.Equal(t, first, second)
	assert.Equal(t, int64(100), ledger.totalDebited())
	assert.Equal(t, 2, ledger.debitCount())
}

func TestBillingMeter_NoDebitAfterStop(t *testing.T) {
	ledger := &fakeLedger{balance: 10000}
	meter := NewBillingMeter("s1", "user1", 50, ledger, meterTestConfig(), MeterEvents{})

	for i := 0; i < 59; i++ {
		meter.tick()
	}
	result := meter.Stop(context.Background())
	assert.Equal(t, int64(50), result.AmountCharged)

	// A tick racing past Stop must not land another charge.
	for i := 0; i < 120; i++ {
		meter.tick()
	}

	assert.Equal(t, 1, ledger.debitCount())
	assert.Equal(t, 59, meter.Elapsed())
}

func TestBillingMeter_TickerLoopStops(t *testing.T) {
	ledger := &fakeLedger{balance: 10000}
	cfg := meterTestConfig()
	cfg.TickInterval = time.Millisecond
	meter := NewBillingMeter("s1", "user1", 50, ledger, cfg, MeterEvents{})

	meter.Start()
	time.Sleep(20 * time.Millisecond)
	meter.Stop(context.Background())

	select {
	case <-meter.done:
	case <-time.After(time.Second):
		t.Fatal("expected tick loop to exit after Stop")
	}
}
