package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/yourastro/backend/internal/config"
	"github.com/yourastro/backend/internal/models"
	"github.com/yourastro/backend/internal/realtime"
)

func sessionTestConfig() *config.SessionConfig {
	return &config.SessionConfig{
		// A tick interval this long keeps the meter idle during tests.
		TickInterval:        time.Hour,
		BillingIntervalSecs: 60,
		LowBalanceThreshold: 100,
		WaitingTimeout:      50 * time.Millisecond,
		PeerLeaveGrace:      50 * time.Millisecond,
		PresenceTTL:         30 * time.Second,
		MaxMessageLength:    2000,
	}
}

func expectAstrologerLookup(dbMock sqlmock.Sqlmock, rate int64, online bool) {
	dbMock.ExpectQuery("SELECT price_per_min, is_online FROM astrologer_profiles").
		WithArgs("astro1").
		WillReturnRows(sqlmock.NewRows([]string{"price_per_min", "is_online"}).AddRow(rate, online))
}

func TestSessionService_StartChatSessionActivatesImmediately(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	bridge := new(MockBridge)
	bridge.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	bridge.On("Join", mock.Anything, mock.Anything, "user1").Return(nil)

	expectAstrologerLookup(dbMock, 50, true)
	dbMock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE sessions SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, bridge, sessionTestConfig())

	session, err := service.StartSession(context.Background(), "user1", "astro1", models.KindChat)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusActive, session.Status)
	assert.Equal(t, int64(50), session.RatePerMinute)
	assert.NotNil(t, session.StartTime)
	assert.NoError(t, dbMock.ExpectationsWereMet())
	bridge.AssertExpectations(t)
}

func TestSessionService_StartRejectsOfflineAstrologer(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	expectAstrologerLookup(dbMock, 50, false)

	service := NewSessionService(db, &fakeLedger{balance: 1000}, new(MockBridge), sessionTestConfig())

	_, err = service.StartSession(context.Background(), "user1", "astro1", models.KindChat)
	assert.ErrorIs(t, err, ErrAstrologerOffline)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestSessionService_StartRejectsUnknownKind(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewSessionService(db, &fakeLedger{balance: 1000}, new(MockBridge), sessionTestConfig())

	_, err = service.StartSession(context.Background(), "user1", "astro1", "video")
	assert.ErrorIs(t, err, ErrSessionCreate)
}

func TestSessionService_SubscribeFailureRollsBackSession(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	bridge := new(MockBridge)
	bridge.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)

	expectAstrologerLookup(dbMock, 50, true)
	dbMock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("DELETE FROM sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, bridge, sessionTestConfig())

	_, err = service.StartSession(context.Background(), "user1", "astro1", models.KindChat)
	assert.ErrorIs(t, err, ErrSessionCreate)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestSessionService_EndSessionIsIdempotent(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	bridge := new(MockBridge)
	bridge.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	bridge.On("Join", mock.Anything, mock.Anything, "user1").Return(nil)
	bridge.On("PublishEnded", mock.Anything, mock.Anything, "user_ended").Return(nil).Once()
	bridge.On("Unsubscribe", mock.Anything).Return(nil).Once()

	expectAstrologerLookup(dbMock, 50, true)
	dbMock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE sessions SET status").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	// The second end finds the session already terminal in the store.
	dbMock.ExpectQuery("SELECT status FROM sessions").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("ended"))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, bridge, sessionTestConfig())

	session, err := service.StartSession(context.Background(), "user1", "astro1", models.KindChat)
	assert.NoError(t, err)

	assert.NoError(t, service.EndSession(context.Background(), session.ID, "user_ended"))
	assert.NoError(t, service.EndSession(context.Background(), session.ID, "user_ended"))

	assert.NoError(t, dbMock.ExpectationsWereMet())
	bridge.AssertExpectations(t)
}

func TestSessionService_EndUnknownSession(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	dbMock.ExpectQuery("SELECT status FROM sessions").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, new(MockBridge), sessionTestConfig())

	err = service.EndSession(context.Background(), "nope", "user_ended")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionService_VoiceSessionMissedWhenAstrologerNeverJoins(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	missed := make(chan struct{})
	bridge := new(MockBridge)
	bridge.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	bridge.On("Join", mock.Anything, mock.Anything, "user1").Return(nil)
	bridge.On("PublishEnded", mock.Anything, mock.Anything, "missed").Return(nil).Once()
	bridge.On("Unsubscribe", mock.Anything).Return(nil).Once().
		Run(func(mock.Arguments) { close(missed) })

	expectAstrologerLookup(dbMock, 50, true)
	dbMock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE sessions SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, bridge, sessionTestConfig())

	session, err := service.StartSession(context.Background(), "user1", "astro1", models.KindVoice)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, session.Status)

	select {
	case <-missed:
	case <-time.After(time.Second):
		t.Fatal("expected waiting voice session to be marked missed")
	}

	assert.NoError(t, dbMock.ExpectationsWereMet())
	bridge.AssertExpectations(t)
}

func TestSessionService_SendMessage(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	bridge := new(MockBridge)
	bridge.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	bridge.On("Join", mock.Anything, mock.Anything, "user1").Return(nil)
	bridge.On("PublishMessage", mock.Anything, mock.Anything).Return(nil).Once()

	expectAstrologerLookup(dbMock, 50, true)
	dbMock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE sessions SET status").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, bridge, sessionTestConfig())

	session, err := service.StartSession(context.Background(), "user1", "astro1", models.KindChat)
	assert.NoError(t, err)

	msg, err := service.SendMessage(context.Background(), session.ID, "user1", "  What does my chart say?  ")
	assert.NoError(t, err)
	assert.Equal(t, "What does my chart say?", msg.Content)
	assert.Equal(t, session.ID, msg.SessionID)
	assert.Equal(t, "user1", msg.SenderID)

	assert.NoError(t, dbMock.ExpectationsWereMet())
	bridge.AssertExpectations(t)
}

func TestSessionService_SendMessageValidation(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	bridge := new(MockBridge)
	bridge.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	bridge.On("Join", mock.Anything, mock.Anything, "user1").Return(nil)

	expectAstrologerLookup(dbMock, 50, true)
	dbMock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE sessions SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, bridge, sessionTestConfig())

	session, err := service.StartSession(context.Background(), "user1", "astro1", models.KindChat)
	assert.NoError(t, err)

	_, err = service.SendMessage(context.Background(), session.ID, "user1", "   ")
	assert.ErrorIs(t, err, ErrMessageSend)

	_, err = service.SendMessage(context.Background(), session.ID, "user1", strings.Repeat("a", 2001))
	assert.ErrorIs(t, err, ErrMessageSend)

	_, err = service.SendMessage(context.Background(), "unknown", "user1", "hello")
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestSessionService_SendMessageRejectedOnVoiceSession(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	bridge := new(MockBridge)
	bridge.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	bridge.On("Join", mock.Anything, mock.Anything, "user1").Return(nil)
	bridge.On("PublishEnded", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	bridge.On("Unsubscribe", mock.Anything).Return(nil).Maybe()

	cfg := sessionTestConfig()
	cfg.WaitingTimeout = time.Hour

	expectAstrologerLookup(dbMock, 50, true)
	dbMock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, bridge, cfg)

	session, err := service.StartSession(context.Background(), "user1", "astro1", models.KindVoice)
	assert.NoError(t, err)

	// Still waiting, so no chat either way.
	_, err = service.SendMessage(context.Background(), session.ID, "user1", "hello")
	assert.ErrorIs(t, err, ErrSessionNotActive)
}

func TestSessionService_GetSessionReportsLiveElapsed(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	bridge := new(MockBridge)
	bridge.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	bridge.On("Join", mock.Anything, mock.Anything, "user1").Return(nil)

	expectAstrologerLookup(dbMock, 50, true)
	dbMock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE sessions SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, bridge, sessionTestConfig())

	session, err := service.StartSession(context.Background(), "user1", "astro1", models.KindChat)
	assert.NoError(t, err)

	// Drive the live meter directly.
	service.mu.Lock()
	meter := service.live[session.ID].meter
	service.mu.Unlock()
	for i := 0; i < 42; i++ {
		meter.tick()
	}

	got, err := service.GetSession(context.Background(), session.ID)
	assert.NoError(t, err)
	assert.Equal(t, 42, got.DurationSeconds)
	assert.Equal(t, models.StatusActive, got.Status)
}

func TestSessionService_GetSessionFallsBackToStore(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	now := time.Now()
	dbMock.ExpectQuery("SELECT id, kind, user_id").
		WithArgs("s1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "kind", "user_id", "astrologer_id", "status", "rate_per_minute",
			"start_time", "end_time", "duration_seconds", "amount_charged", "created_at",
		}).AddRow("s1", "chat", "user1", "astro1", "ended", 50, now, now, 125, 150, now))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, new(MockBridge), sessionTestConfig())

	got, err := service.GetSession(context.Background(), "s1")
	assert.NoError(t, err)
	assert.Equal(t, models.StatusEnded, got.Status)
	assert.Equal(t, int64(150), got.AmountCharged)

	dbMock.ExpectQuery("SELECT id, kind, user_id").
		WithArgs("s2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = service.GetSession(context.Background(), "s2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

// captureHandlers records the presence callbacks handed to Subscribe so
// tests can drive them the way bridge events would.
func captureHandlers(bridge *MockBridge, handlers *realtime.Handlers) {
	bridge.On("Subscribe", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).
		Run(func(args mock.Arguments) { *handlers = args.Get(2).(realtime.Handlers) })
}

func TestSessionService_PeerDisconnectEndsAfterGrace(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	var handlers realtime.Handlers
	ended := make(chan struct{})
	bridge := new(MockBridge)
	captureHandlers(bridge, &handlers)
	bridge.On("Join", mock.Anything, mock.Anything, "user1").Return(nil)
	bridge.On("PublishEnded", mock.Anything, mock.Anything, "peer_disconnected").Return(nil).Once()
	bridge.On("Unsubscribe", mock.Anything).Return(nil).Once().
		Run(func(mock.Arguments) { close(ended) })

	expectAstrologerLookup(dbMock, 50, true)
	dbMock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE sessions SET status").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	ledger := &fakeLedger{balance: 1000}
	service := NewSessionService(db, ledger, bridge, sessionTestConfig())

	session, err := service.StartSession(context.Background(), "user1", "astro1", models.KindChat)
	assert.NoError(t, err)

	// 45 seconds into the session the astrologer's presence drops.
	service.mu.Lock()
	meter := service.live[session.ID].meter
	service.mu.Unlock()
	for i := 0; i < 45; i++ {
		meter.tick()
	}
	handlers.OnPeerLeave("astro1")

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("expected session to end after the disconnect grace period")
	}

	// 45s is one started minute: a single debit of the full rate.
	assert.Equal(t, 1, ledger.debitCount())
	assert.Equal(t, int64(50), ledger.totalDebited())
	assert.NoError(t, dbMock.ExpectationsWereMet())
	bridge.AssertExpectations(t)
}

func TestSessionService_PeerRejoinWithinGraceKeepsSessionAlive(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	var handlers realtime.Handlers
	bridge := new(MockBridge)
	captureHandlers(bridge, &handlers)
	bridge.On("Join", mock.Anything, mock.Anything, "user1").Return(nil)

	expectAstrologerLookup(dbMock, 50, true)
	dbMock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE sessions SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, bridge, sessionTestConfig())

	session, err := service.StartSession(context.Background(), "user1", "astro1", models.KindChat)
	assert.NoError(t, err)

	handlers.OnPeerLeave("astro1")
	handlers.OnPeerJoin("astro1")

	// Well past the grace period the session must still be live; any
	// PublishEnded here would be an unexpected mock call.
	time.Sleep(150 * time.Millisecond)

	got, err := service.GetSession(context.Background(), session.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	bridge.AssertExpectations(t)
}

func TestSessionService_AstrologerJoinActivatesWaitingVoiceSession(t *testing.T) {
	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	var handlers realtime.Handlers
	bridge := new(MockBridge)
	captureHandlers(bridge, &handlers)
	bridge.On("Join", mock.Anything, mock.Anything, "user1").Return(nil)

	cfg := sessionTestConfig()
	cfg.WaitingTimeout = time.Hour

	expectAstrologerLookup(dbMock, 50, true)
	dbMock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))
	dbMock.ExpectExec("UPDATE sessions SET status").WillReturnResult(sqlmock.NewResult(1, 1))

	service := NewSessionService(db, &fakeLedger{balance: 1000}, bridge, cfg)

	session, err := service.StartSession(context.Background(), "user1", "astro1", models.KindVoice)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, session.Status)

	// The caller's own join does not activate a voice session.
	handlers.OnPeerJoin("user1")
	got, err := service.GetSession(context.Background(), session.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, got.Status)

	handlers.OnPeerJoin("astro1")
	got, err = service.GetSession(context.Background(), session.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
	assert.NotNil(t, got.StartTime)

	assert.NoError(t, dbMock.ExpectationsWereMet())
	bridge.AssertExpectations(t)
}
