package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/yourastro/backend/internal/config"
	"github.com/yourastro/backend/internal/metrics"
)

// walletLedger is the billing-side view of the wallet service.
type walletLedger interface {
	Balance(ctx context.Context, ownerID string) (int64, error)
	Debit(ctx context.Context, ownerID string, amount int64, description string) (int64, error)
	Credit(ctx context.Context, ownerID string, amount int64, description string) (int64, error)
}

// MeterResult is the frozen outcome of a stopped meter.
type MeterResult struct {
	ElapsedSeconds int
	MinutesBilled  int
	AmountCharged  int64
}

// MeterEvents are raised from the meter's tick goroutine.
type MeterEvents struct {
	// OnLowBalance fires once per threshold crossing after a debit.
	OnLowBalance func(balance int64)
	// OnExhausted fires when a debit is refused for insufficient funds.
	// The session must be ended; the meter itself keeps counting until
	// Stop is called.
	OnExhausted func()
}

// BillingMeter meters one active session. A 1-second tick increments
// elapsed time; every full billing interval issues exactly one debit of
// the session rate. Stop settles the trailing partial minute so the
// total charge equals ceil(elapsed/interval) * rate, and guarantees
// synchronously that no debit lands after it returns.
type BillingMeter struct {
	sessionID string
	ownerID   string
	rate      int64
	ledger    walletLedger
	cfg       *config.SessionConfig
	events    MeterEvents

	mu            sync.Mutex
	elapsed       int
	minutesBilled int
	charged       int64
	warned        bool
	stopped       bool
	result        MeterResult

	stop chan struct{}
	done chan struct{}
}

func NewBillingMeter(sessionID, ownerID string, ratePerMinute int64, ledger walletLedger, cfg *config.SessionConfig, events MeterEvents) *BillingMeter {
	return &BillingMeter{
		sessionID: sessionID,
		ownerID:   ownerID,
		rate:      ratePerMinute,
		ledger:    ledger,
		cfg:       cfg,
		events:    events,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the tick loop. Call at most once.
func (m *BillingMeter) Start() {
	go m.run()
}

func (m *BillingMeter) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

// tick advances elapsed time by one second and issues the per-minute
// debit when a billing boundary is crossed. The stopped check under the
// mutex is what discards a tick racing with Stop.
func (m *BillingMeter) tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	m.elapsed++
	if m.elapsed%m.cfg.BillingIntervalSecs != 0 {
		return
	}

	minute := m.minutesBilled + 1
	balance, err := m.ledger.Debit(context.Background(), m.ownerID, m.rate,
		fmt.Sprintf("Consultation %s, minute %d", m.sessionID, minute))
	if err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			log.Printf("[BILLING] Session %s exhausted wallet at %ds", m.sessionID, m.elapsed)
			if m.events.OnExhausted != nil {
				// End runs Stop, which needs the mutex held here.
				go m.events.OnExhausted()
			}
			return
		}
		// The missed minute is settled by the final ceil charge on Stop.
		log.Printf("[BILLING] Debit failed for session %s minute %d: %v", m.sessionID, minute, err)
		return
	}

	m.minutesBilled = minute
	m.charged += m.rate
	metrics.BillingDebitsTotal.Inc()

	if balance < m.cfg.LowBalanceThreshold {
		if !m.warned {
			m.warned = true
			metrics.LowBalanceWarningsTotal.Inc()
			if m.events.OnLowBalance != nil {
				m.events.OnLowBalance(balance)
			}
		}
	} else {
		m.warned = false
	}
}

// Elapsed returns the current elapsed seconds.
func (m *BillingMeter) Elapsed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return m.result.ElapsedSeconds
	}
	return m.elapsed
}

// Stop freezes the meter and settles the trailing partial minute so the
// total charge equals ceil(elapsed/interval) * rate. Idempotent: a
// second Stop returns the same result without issuing further debits.
// The mutex is held across the settlement, so once Stop returns no
// debit for this session can still be in flight.
func (m *BillingMeter) Stop(ctx context.Context) MeterResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return m.result
	}
	m.stopped = true
	close(m.stop)

	interval := m.cfg.BillingIntervalSecs
	totalMinutes := (m.elapsed + interval - 1) / interval
	if final := int64(totalMinutes)*m.rate - m.charged; final > 0 {
		_, err := m.ledger.Debit(ctx, m.ownerID, final,
			fmt.Sprintf("Consultation %s, final charge", m.sessionID))
		if err != nil {
			// Best effort: an unpaid remainder is reconciled out of
			// band, never re-debited by this meter.
			log.Printf("[BILLING] Final charge failed for session %s: %v", m.sessionID, err)
		} else {
			m.charged += final
			m.minutesBilled = totalMinutes
			metrics.BillingDebitsTotal.Inc()
		}
	}

	m.result = MeterResult{
		ElapsedSeconds: m.elapsed,
		MinutesBilled:  m.minutesBilled,
		AmountCharged:  m.charged,
	}
	return m.result
}
