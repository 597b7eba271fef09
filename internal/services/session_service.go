package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/yourastro/backend/internal/config"
	"github.com/yourastro/backend/internal/metrics"
	"github.com/yourastro/backend/internal/models"
	"github.com/yourastro/backend/internal/realtime"
)

// sessionBridge is the controller-side view of the realtime bridge.
type sessionBridge interface {
	Subscribe(ctx context.Context, sessionID string, h realtime.Handlers) error
	Unsubscribe(sessionID string) error
	PublishMessage(ctx context.Context, msg models.Message) error
	PublishEnded(ctx context.Context, sessionID, reason string) error
	PublishLowBalance(ctx context.Context, sessionID string, balance int64) error
	Join(ctx context.Context, sessionID, peerID string) error
	Heartbeat(ctx context.Context, sessionID, peerID string) error
	Leave(ctx context.Context, sessionID, peerID string) error
}

// liveSession is the in-memory side of one non-terminal session.
type liveSession struct {
	session    models.Session
	meter      *BillingMeter
	waitTimer  *time.Timer
	graceTimer *time.Timer
}

// SessionService drives consultations through their state machine
// (waiting -> active -> ended, or waiting -> missed) and coordinates
// the billing meter, the wallet ledger and the realtime bridge.
type SessionService struct {
	db        *sql.DB
	ledger    walletLedger
	bridge    sessionBridge
	cfg       *config.SessionConfig
	validator *ValidationHelper

	mu   sync.Mutex
	live map[string]*liveSession
}

func NewSessionService(db *sql.DB, ledger walletLedger, bridge sessionBridge, cfg *config.SessionConfig) *SessionService {
	return &SessionService{
		db:        db,
		ledger:    ledger,
		bridge:    bridge,
		cfg:       cfg,
		validator: NewValidationHelper(),
		live:      make(map[string]*liveSession),
	}
}

// StartSession creates a session in waiting state, opens the realtime
// subscription and, for chat sessions, activates immediately. Voice
// sessions activate when the astrologer joins, or become missed after
// the waiting timeout. No state survives a failed store write.
func (ss *SessionService) StartSession(ctx context.Context, userID, astrologerID string, kind models.SessionKind) (*models.Session, error) {
	if kind != models.KindChat && kind != models.KindVoice {
		return nil, fmt.Errorf("%w: unknown session kind %q", ErrSessionCreate, kind)
	}

	var rate int64
	var online bool
	err := ss.db.QueryRowContext(ctx, `
		SELECT price_per_min, is_online FROM astrologer_profiles WHERE id = $1
	`, astrologerID).Scan(&rate, &online)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: astrologer not found", ErrSessionCreate)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreate, err)
	}
	if !online {
		return nil, ErrAstrologerOffline
	}

	session := models.Session{
		ID:            uuid.NewString(),
		Kind:          kind,
		UserID:        userID,
		AstrologerID:  astrologerID,
		Status:        models.StatusWaiting,
		RatePerMinute: rate,
		CreatedAt:     time.Now(),
	}

	_, err = ss.db.ExecContext(ctx, `
		INSERT INTO sessions (id, kind, user_id, astrologer_id, status, rate_per_minute, duration_seconds, amount_charged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7)
	`, session.ID, session.Kind, session.UserID, session.AstrologerID, session.Status, session.RatePerMinute, session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreate, err)
	}

	handlers := realtime.Handlers{
		OnPeerJoin:  func(peerID string) { ss.onPeerJoin(session.ID, peerID) },
		OnPeerLeave: func(peerID string) { ss.onPeerLeave(session.ID, peerID) },
	}
	if err := ss.bridge.Subscribe(ctx, session.ID, handlers); err != nil {
		// Roll the record back so a retried start is a clean slate.
		if _, delErr := ss.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, session.ID); delErr != nil {
			log.Printf("[SESSION] Failed to roll back session %s: %v", session.ID, delErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrSessionCreate, err)
	}

	ls := &liveSession{session: session}
	ss.mu.Lock()
	ss.live[session.ID] = ls
	if kind == models.KindVoice {
		ls.waitTimer = time.AfterFunc(ss.cfg.WaitingTimeout, func() { ss.markMissed(session.ID) })
	}
	ss.mu.Unlock()

	if err := ss.bridge.Join(ctx, session.ID, userID); err != nil {
		log.Printf("[SESSION] Presence join failed for %s: %v", session.ID, err)
	}

	if kind == models.KindChat {
		ss.activate(session.ID)
	}

	ss.mu.Lock()
	snapshot := ls.session
	ss.mu.Unlock()
	log.Printf("[SESSION] Started %s session %s (user %s, astrologer %s, rate %d/min)",
		kind, session.ID, userID, astrologerID, rate)
	return &snapshot, nil
}

// activate moves a waiting session to active, records the start time
// once, and starts the billing meter.
func (ss *SessionService) activate(sessionID string) {
	ss.mu.Lock()
	ls, ok := ss.live[sessionID]
	if !ok || ls.session.Status != models.StatusWaiting {
		ss.mu.Unlock()
		return
	}
	if ls.waitTimer != nil {
		ls.waitTimer.Stop()
		ls.waitTimer = nil
	}

	now := time.Now()
	ls.session.Status = models.StatusActive
	ls.session.StartTime = &now

	ls.meter = NewBillingMeter(sessionID, ls.session.UserID, ls.session.RatePerMinute, ss.ledger, ss.cfg, MeterEvents{
		OnLowBalance: func(balance int64) {
			log.Printf("[SESSION] Low balance (%d) during session %s", balance, sessionID)
			if err := ss.bridge.PublishLowBalance(context.Background(), sessionID, balance); err != nil {
				log.Printf("[SESSION] Low balance publish failed for %s: %v", sessionID, err)
			}
		},
		OnExhausted: func() {
			if err := ss.EndSession(context.Background(), sessionID, "insufficient_funds"); err != nil {
				log.Printf("[SESSION] Forced end failed for %s: %v", sessionID, err)
			}
		},
	})
	kind := ls.session.Kind
	ss.mu.Unlock()

	if _, err := ss.db.Exec(`
		UPDATE sessions SET status = $1, start_time = $2 WHERE id = $3 AND status = $4
	`, models.StatusActive, now, sessionID, models.StatusWaiting); err != nil {
		log.Printf("[SESSION] Failed to persist activation of %s: %v", sessionID, err)
	}

	ls.meter.Start()
	metrics.RecordSessionStart(string(kind))
	log.Printf("[SESSION] Session %s active", sessionID)
}

func (ss *SessionService) onPeerJoin(sessionID, peerID string) {
	ss.mu.Lock()
	ls, ok := ss.live[sessionID]
	if !ok {
		ss.mu.Unlock()
		return
	}
	// A returning peer cancels the disconnect grace timer.
	if ls.graceTimer != nil {
		ls.graceTimer.Stop()
		ls.graceTimer = nil
		log.Printf("[SESSION] Peer %s rejoined session %s within grace", peerID, sessionID)
	}
	waiting := ls.session.Status == models.StatusWaiting
	astrologerID := ls.session.AstrologerID
	ss.mu.Unlock()

	if waiting && peerID == astrologerID {
		ss.activate(sessionID)
	}
}

// onPeerLeave arms the grace timer; the session only ends if the peer
// does not come back. A deliberate hangup bypasses this via Hangup.
func (ss *SessionService) onPeerLeave(sessionID, peerID string) {
	ss.mu.Lock()
	ls, ok := ss.live[sessionID]
	if !ok || ls.session.Status != models.StatusActive || ls.graceTimer != nil {
		ss.mu.Unlock()
		return
	}
	log.Printf("[SESSION] Peer %s lost on session %s, grace %s", peerID, sessionID, ss.cfg.PeerLeaveGrace)
	ls.graceTimer = time.AfterFunc(ss.cfg.PeerLeaveGrace, func() {
		if err := ss.EndSession(context.Background(), sessionID, "peer_disconnected"); err != nil {
			log.Printf("[SESSION] Disconnect end failed for %s: %v", sessionID, err)
		}
	})
	ss.mu.Unlock()
}

// markMissed resolves a voice session whose astrologer never joined.
func (ss *SessionService) markMissed(sessionID string) {
	ss.mu.Lock()
	ls, ok := ss.live[sessionID]
	if !ok || ls.session.Status != models.StatusWaiting {
		ss.mu.Unlock()
		return
	}
	delete(ss.live, sessionID)
	kind := ls.session.Kind
	ss.mu.Unlock()

	now := time.Now()
	if _, err := ss.db.Exec(`
		UPDATE sessions SET status = $1, end_time = $2 WHERE id = $3 AND status = $4
	`, models.StatusMissed, now, sessionID, models.StatusWaiting); err != nil {
		log.Printf("[SESSION] Failed to persist missed session %s: %v", sessionID, err)
	}

	if err := ss.bridge.PublishEnded(context.Background(), sessionID, "missed"); err != nil {
		log.Printf("[SESSION] Missed publish failed for %s: %v", sessionID, err)
	}
	if err := ss.bridge.Unsubscribe(sessionID); err != nil {
		log.Printf("[SESSION] Unsubscribe failed for %s: %v", sessionID, err)
	}

	metrics.SessionsTotal.WithLabelValues(string(kind), string(models.StatusMissed)).Inc()
	log.Printf("[SESSION] Session %s missed", sessionID)
}

// EndSession stops billing, settles the final charge, persists the
// terminal state and tears the subscription down. Idempotent: ending a
// session that already reached a terminal state is a no-op.
func (ss *SessionService) EndSession(ctx context.Context, sessionID, reason string) error {
	ss.mu.Lock()
	ls, ok := ss.live[sessionID]
	if !ok {
		ss.mu.Unlock()
		// Already terminal, or never existed.
		var status models.SessionStatus
		err := ss.db.QueryRowContext(ctx, `SELECT status FROM sessions WHERE id = $1`, sessionID).Scan(&status)
		if err == sql.ErrNoRows {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		return nil
	}
	delete(ss.live, sessionID)
	if ls.waitTimer != nil {
		ls.waitTimer.Stop()
	}
	if ls.graceTimer != nil {
		ls.graceTimer.Stop()
	}
	wasActive := ls.session.Status == models.StatusActive
	meter := ls.meter
	kind := ls.session.Kind
	ss.mu.Unlock()

	var result MeterResult
	if meter != nil {
		result = meter.Stop(ctx)
	}

	now := time.Now()
	// Best effort: a failed final persist is reconciled out of band,
	// the in-memory session is gone either way.
	if _, err := ss.db.ExecContext(ctx, `
		UPDATE sessions
		SET status = $1, end_time = $2, duration_seconds = $3, amount_charged = $4
		WHERE id = $5 AND status IN ($6, $7)
	`, models.StatusEnded, now, result.ElapsedSeconds, result.AmountCharged,
		sessionID, models.StatusWaiting, models.StatusActive); err != nil {
		log.Printf("[SESSION] Failed to persist end of %s: %v", sessionID, err)
	}

	if err := ss.bridge.PublishEnded(ctx, sessionID, reason); err != nil {
		log.Printf("[SESSION] End publish failed for %s: %v", sessionID, err)
	}
	if err := ss.bridge.Unsubscribe(sessionID); err != nil {
		log.Printf("[SESSION] Unsubscribe failed for %s: %v", sessionID, err)
	}

	if wasActive {
		metrics.RecordSessionEnd(string(kind), string(models.StatusEnded))
	} else {
		metrics.SessionsTotal.WithLabelValues(string(kind), string(models.StatusEnded)).Inc()
	}

	log.Printf("[SESSION] Ended session %s (%s): %ds, charged %d",
		sessionID, reason, result.ElapsedSeconds, result.AmountCharged)
	return nil
}

// SendMessage appends a chat message and fans it out over the bridge.
// The stored row is the durable record; delivery to the peer happens
// through the realtime channel, not local echo.
func (ss *SessionService) SendMessage(ctx context.Context, sessionID, senderID, content string) (*models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: empty message", ErrMessageSend)
	}
	if len(content) > ss.cfg.MaxMessageLength {
		return nil, fmt.Errorf("%w: message too long", ErrMessageSend)
	}

	ss.mu.Lock()
	ls, ok := ss.live[sessionID]
	if !ok || ls.session.Status != models.StatusActive {
		ss.mu.Unlock()
		return nil, ErrSessionNotActive
	}
	if ls.session.Kind != models.KindChat {
		ss.mu.Unlock()
		return nil, fmt.Errorf("%w: not a chat session", ErrMessageSend)
	}
	ss.mu.Unlock()

	msg := models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		SenderID:  senderID,
		Content:   content,
		CreatedAt: time.Now(),
	}

	_, err := ss.db.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, msg.ID, msg.SessionID, msg.SenderID, msg.Content, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMessageSend, err)
	}

	if err := ss.bridge.PublishMessage(ctx, msg); err != nil {
		// The row is durable; the peer catches up from history.
		log.Printf("[SESSION] Message publish failed for %s: %v", sessionID, err)
	}

	metrics.MessagesTotal.Inc()
	return &msg, nil
}

// ListMessages returns a session's messages in insertion order.
func (ss *SessionService) ListMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT id, session_id, sender_id, content, created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.SenderID, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// GetSession returns the current view of a session. Live sessions are
// reported from memory so elapsed time is current; terminal sessions
// come from the store.
func (ss *SessionService) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	ss.mu.Lock()
	if ls, ok := ss.live[sessionID]; ok {
		snapshot := ls.session
		if ls.meter != nil {
			snapshot.DurationSeconds = ls.meter.Elapsed()
		}
		ss.mu.Unlock()
		return &snapshot, nil
	}
	ss.mu.Unlock()

	var s models.Session
	err := ss.db.QueryRowContext(ctx, `
		SELECT id, kind, user_id, astrologer_id, status, rate_per_minute,
		       start_time, end_time, duration_seconds, amount_charged, created_at
		FROM sessions WHERE id = $1
	`, sessionID).Scan(&s.ID, &s.Kind, &s.UserID, &s.AstrologerID, &s.Status,
		&s.RatePerMinute, &s.StartTime, &s.EndTime, &s.DurationSeconds, &s.AmountCharged, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (ss *SessionService) fetchHistory(ctx context.Context, userID string, limit int) ([]models.Session, error) {
	rows, err := ss.db.QueryContext(ctx, `
		SELECT id, kind, user_id, astrologer_id, status, rate_per_minute,
		       start_time, end_time, duration_seconds, amount_charged, created_at
		FROM sessions
		WHERE user_id = $1 OR astrologer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.Kind, &s.UserID, &s.AstrologerID, &s.Status,
			&s.RatePerMinute, &s.StartTime, &s.EndTime, &s.DurationSeconds, &s.AmountCharged, &s.CreatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

// isParticipant reports whether the caller belongs to the session.
func (ss *SessionService) isParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	s, err := ss.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return s.UserID == userID || s.AstrologerID == userID, nil
}

// Shutdown ends every live session, used during graceful shutdown so
// no meter keeps debiting a wallet after the process stops serving.
func (ss *SessionService) Shutdown(ctx context.Context) {
	ss.mu.Lock()
	ids := make([]string, 0, len(ss.live))
	for id := range ss.live {
		ids = append(ids, id)
	}
	ss.mu.Unlock()

	for _, id := range ids {
		if err := ss.EndSession(ctx, id, "server_shutdown"); err != nil {
			log.Printf("[SESSION] Shutdown end failed for %s: %v", id, err)
		}
	}
}

// HTTP surface

// Start creates a new consultation session
// @Summary Start a consultation session
// @Description Create a chat or voice session with an astrologer and begin billing
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{astrologerId=string,kind=string} true "Session request"
// @Success 201 {object} models.Session
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /sessions [post]
func (ss *SessionService) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		AstrologerID string `json:"astrologerId" validate:"required,uuid4"`
		Kind         string `json:"kind" validate:"required,oneof=chat voice"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ss.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	session, err := ss.StartSession(r.Context(), userID, req.AstrologerID, models.SessionKind(req.Kind))
	if err != nil {
		log.Printf("[SESSION] Start failed for user %s: %v", userID, err)
		switch {
		case errors.Is(err, ErrAstrologerOffline):
			SendErrorResponse(w, "Astrologer is offline", http.StatusConflict, nil)
		case errors.Is(err, ErrSessionCreate):
			SendErrorResponse(w, "Could not start session", http.StatusInternalServerError, nil)
		default:
			SendErrorResponse(w, "Could not start session", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

// End terminates a session
// @Summary End a session
// @Description Stop billing and close the session; idempotent
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{sessionId}/end [post]
func (ss *SessionService) End(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	if allowed, err := ss.isParticipant(r.Context(), sessionID, userID); err != nil || !allowed {
		SendErrorResponse(w, "Session not found", http.StatusNotFound, nil)
		return
	}

	if err := ss.EndSession(r.Context(), sessionID, "user_ended"); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			SendErrorResponse(w, "Session not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to end session", http.StatusInternalServerError, nil)
		return
	}

	session, err := ss.GetSession(r.Context(), sessionID)
	if err != nil {
		SendErrorResponse(w, "Session not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// Get returns one session
// @Summary Get session
// @Description Retrieve a session the caller participates in
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{sessionId} [get]
func (ss *SessionService) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	session, err := ss.GetSession(r.Context(), sessionID)
	if err != nil || (session.UserID != userID && session.AstrologerID != userID) {
		SendErrorResponse(w, "Session not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(session)
}

// List returns the caller's session history
// @Summary List sessions
// @Description List the caller's sessions, newest first
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of sessions to return (default: 20, max: 100)"
// @Success 200 {object} object{sessions=[]models.Session,count=int}
// @Failure 401 {object} ErrorResponse
// @Router /sessions [get]
func (ss *SessionService) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit, err := ParseLimit(r, 20, 100)
	if err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	sessions, err := ss.fetchHistory(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[SESSION] History fetch failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch sessions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// PostMessage appends a chat message
// @Summary Send a chat message
// @Description Append a message to an active chat session
// @Tags sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Param request body object{content=string} true "Message content"
// @Success 201 {object} models.Message
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{sessionId}/messages [post]
func (ss *SessionService) PostMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	if allowed, err := ss.isParticipant(r.Context(), sessionID, userID); err != nil || !allowed {
		SendErrorResponse(w, "Session not found", http.StatusNotFound, nil)
		return
	}

	var req struct {
		Content string `json:"content" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := ss.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	msg, err := ss.SendMessage(r.Context(), sessionID, userID, req.Content)
	if err != nil {
		if errors.Is(err, ErrSessionNotActive) {
			SendErrorResponse(w, "Session is not active", http.StatusConflict, nil)
			return
		}
		log.Printf("[SESSION] Message send failed on %s: %v", sessionID, err)
		SendErrorResponse(w, "Failed to send message", http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(msg)
}

// GetMessages lists a session's messages
// @Summary List chat messages
// @Description List a session's messages ordered by creation time
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Success 200 {object} object{messages=[]models.Message,count=int}
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{sessionId}/messages [get]
func (ss *SessionService) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	if allowed, err := ss.isParticipant(r.Context(), sessionID, userID); err != nil || !allowed {
		SendErrorResponse(w, "Session not found", http.StatusNotFound, nil)
		return
	}

	messages, err := ss.ListMessages(r.Context(), sessionID)
	if err != nil {
		log.Printf("[SESSION] Message list failed on %s: %v", sessionID, err)
		SendErrorResponse(w, "Failed to fetch messages", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

// Presence registers or refreshes the caller's presence on a session
// @Summary Session presence heartbeat
// @Description Join a session's presence channel and keep it alive
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{sessionId}/presence [post]
func (ss *SessionService) Presence(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	if allowed, err := ss.isParticipant(r.Context(), sessionID, userID); err != nil || !allowed {
		SendErrorResponse(w, "Session not found", http.StatusNotFound, nil)
		return
	}

	if err := ss.bridge.Join(r.Context(), sessionID, userID); err != nil {
		log.Printf("[SESSION] Presence join failed for %s: %v", sessionID, err)
		SendErrorResponse(w, "Failed to register presence", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// Hangup deliberately leaves a session, ending it immediately
// @Summary Hang up
// @Description Leave the session; an explicit hangup ends it without a grace period
// @Tags sessions
// @Produce json
// @Security BearerAuth
// @Param sessionId path string true "Session ID"
// @Success 200 {object} object{success=bool}
// @Failure 404 {object} ErrorResponse
// @Router /sessions/{sessionId}/hangup [post]
func (ss *SessionService) Hangup(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	if allowed, err := ss.isParticipant(r.Context(), sessionID, userID); err != nil || !allowed {
		SendErrorResponse(w, "Session not found", http.StatusNotFound, nil)
		return
	}

	if err := ss.bridge.Leave(r.Context(), sessionID, userID); err != nil {
		log.Printf("[SESSION] Leave failed for %s: %v", sessionID, err)
	}

	if err := ss.EndSession(r.Context(), sessionID, "hangup"); err != nil && !errors.Is(err, ErrSessionNotFound) {
		SendErrorResponse(w, "Failed to end session", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}
