package services

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/yourastro/backend/internal/models"
	"github.com/yourastro/backend/internal/realtime"
)

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) Balance(ctx context.Context, ownerID string) (int64, error) {
	args := m.Called(ctx, ownerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) Debit(ctx context.Context, ownerID string, amount int64, description string) (int64, error) {
	args := m.Called(ctx, ownerID, amount, description)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedger) Credit(ctx context.Context, ownerID string, amount int64, description string) (int64, error) {
	args := m.Called(ctx, ownerID, amount, description)
	return args.Get(0).(int64), args.Error(1)
}

// fakeLedger is a thread-safe in-memory wallet for billing tests where
// mock call counting is less useful than a running balance.
type fakeLedger struct {
	mu      sync.Mutex
	balance int64
	debits  []int64
}

func (f *fakeLedger) Balance(ctx context.Context, ownerID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, nil
}

func (f *fakeLedger) Debit(ctx context.Context, ownerID string, amount int64, description string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance < amount {
		return 0, ErrInsufficientFunds
	}
	f.balance -= amount
	f.debits = append(f.debits, amount)
	return f.balance, nil
}

func (f *fakeLedger) Credit(ctx context.Context, ownerID string, amount int64, description string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance += amount
	return f.balance, nil
}

func (f *fakeLedger) debitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.debits)
}

func (f *fakeLedger) totalDebited() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var total int64
	for _, d := range f.debits {
		total += d
	}
	return total
}

type MockBridge struct {
	mock.Mock
}

func (m *MockBridge) Subscribe(ctx context.Context, sessionID string, h realtime.Handlers) error {
	args := m.Called(ctx, sessionID, h)
	return args.Error(0)
}

func (m *MockBridge) Unsubscribe(sessionID string) error {
	args := m.Called(sessionID)
	return args.Error(0)
}

func (m *MockBridge) PublishMessage(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockBridge) PublishEnded(ctx context.Context, sessionID, reason string) error {
	args := m.Called(ctx, sessionID, reason)
	return args.Error(0)
}

func (m *MockBridge) PublishLowBalance(ctx context.Context, sessionID string, balance int64) error {
	args := m.Called(ctx, sessionID, balance)
	return args.Error(0)
}

func (m *MockBridge) Join(ctx context.Context, sessionID, peerID string) error {
	args := m.Called(ctx, sessionID, peerID)
	return args.Error(0)
}

func (m *MockBridge) Heartbeat(ctx context.Context, sessionID, peerID string) error {
	args := m.Called(ctx, sessionID, peerID)
	return args.Error(0)
}

func (m *MockBridge) Leave(ctx context.Context, sessionID, peerID string) error {
	args := m.Called(ctx, sessionID, peerID)
	return args.Error(0)
}
