package services

import "errors"

// Error taxonomy shared by the session, billing and wallet services.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrLedgerWrite       = errors.New("ledger write failed")
	ErrSessionCreate     = errors.New("session create failed")
	ErrMessageSend       = errors.New("message send failed")
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionNotActive  = errors.New("session not active")
	ErrAstrologerOffline = errors.New("astrologer not available")
)
