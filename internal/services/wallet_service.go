package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yourastro/backend/internal/metrics"
	"github.com/yourastro/backend/internal/models"
)

// WalletService is the only component that reads or mutates wallet
// balances and the wallet_transactions ledger. Every balance change is
// a single conditional UPDATE at the store, never a read-modify-write
// of a cached balance, and appends exactly one completed transaction
// row in the same database transaction.
type WalletService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewWalletService(db *sql.DB) *WalletService {
	return &WalletService{
		db:        db,
		validator: NewValidationHelper(),
	}
}

// Balance returns the authoritative balance for reconciliation.
func (ws *WalletService) Balance(ctx context.Context, ownerID string) (int64, error) {
	var balance int64
	err := ws.db.QueryRowContext(ctx,
		`SELECT wallet_balance FROM profiles WHERE id = $1`, ownerID).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	return balance, nil
}

// Debit atomically decreases the balance and appends a completed debit
// row. The conditional UPDATE enforces a hard floor at zero: a debit
// that would drive the balance negative fails with ErrInsufficientFunds
// and leaves no trace.
func (ws *WalletService) Debit(ctx context.Context, ownerID string, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: debit amount must be positive", ErrLedgerWrite)
	}

	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE profiles
		SET wallet_balance = wallet_balance - $1, updated_at = NOW()
		WHERE id = $2 AND wallet_balance >= $1
		RETURNING wallet_balance
	`, amount, ownerID).Scan(&balance)

	if err == sql.ErrNoRows {
		return 0, ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}

	if err := appendTransaction(ctx, tx, ownerID, amount, models.TxDebit, description); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}

	return balance, nil
}

// Credit atomically increases the balance and appends a completed
// credit row. Used for top-ups.
func (ws *WalletService) Credit(ctx context.Context, ownerID string, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit amount must be positive", ErrLedgerWrite)
	}

	tx, err := ws.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	defer tx.Rollback()

	var balance int64
	err = tx.QueryRowContext(ctx, `
		UPDATE profiles
		SET wallet_balance = wallet_balance + $1, updated_at = NOW()
		WHERE id = $2
		RETURNING wallet_balance
	`, amount, ownerID).Scan(&balance)

	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}

	if err := appendTransaction(ctx, tx, ownerID, amount, models.TxCredit, description); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}

	return balance, nil
}

func appendTransaction(ctx context.Context, tx *sql.Tx, ownerID string, amount int64, txType, description string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, user_id, amount, type, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), ownerID, amount, txType, description, models.TxCompleted, time.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	return nil
}

func (ws *WalletService) fetchTransactions(ctx context.Context, ownerID string, limit int) ([]models.WalletTransaction, error) {
	rows, err := ws.db.QueryContext(ctx, `
		SELECT id, user_id, amount, type, description, status, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	transactions := []models.WalletTransaction{}
	for rows.Next() {
		var t models.WalletTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}

	return transactions, rows.Err()
}

// GetBalance returns the caller's wallet balance
// @Summary Get wallet balance
// @Description Retrieve the authenticated user's wallet balance
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{balance=int64}
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /wallet/balance [get]
func (ws *WalletService) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	balance, err := ws.Balance(r.Context(), userID)
	if err != nil {
		log.Printf("[WALLET] Balance fetch failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"balance": balance})
}

// ListTransactions returns recent wallet transactions
// @Summary List wallet transactions
// @Description Get the authenticated user's recent wallet transactions
// @Tags wallet
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of transactions to return (default: 20, max: 100)"
// @Success 200 {object} object{transactions=[]models.WalletTransaction,count=int}
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /wallet/transactions [get]
func (ws *WalletService) ListTransactions(w http.ResponseWriter, r *http.Request) {
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

	transactions, err := ws.fetchTransactions(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[WALLET] Transaction list failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// TopUp credits the caller's wallet
// @Summary Add funds to wallet
// @Description Credit the authenticated user's wallet balance
// @Tags wallet
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64} true "Top-up request"
// @Success 200 {object} object{success=bool,balance=int64}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /wallet/topup [post]
func (ws *WalletService) TopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount int64 `json:"amount" validate:"required,gt=0,lte=100000"`
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

	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	balance, err := ws.Credit(r.Context(), userID, req.Amount, "Added funds to wallet")
	if err != nil {
		log.Printf("[WALLET] Top-up failed for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to add funds", http.StatusInternalServerError, nil)
		return
	}

	metrics.WalletTopUpsTotal.Inc()
	log.Printf("[WALLET] Top-up of %d for user %s, new balance %d", req.Amount, userID, balance)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"balance": balance,
	})
}
