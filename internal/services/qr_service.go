package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// topUpVoucher is the payload encoded in a top-up QR code. The voucher
// lives in Redis for its validity window and is consumed on redeem, so
// a scanned code credits a wallet at most once.
type topUpVoucher struct {
	UserID   string `json:"userId"`
	Amount   int64  `json:"amount"`
	IssuedAt int64  `json:"issuedAt"`
	Nonce    string `json:"nonce"`
}

const voucherTTL = 5 * time.Minute

// QRService issues and redeems wallet top-up vouchers as QR codes.
type QRService struct {
	ledger walletLedger
	redis  *redis.Client
}

func NewQRService(ledger walletLedger, redis *redis.Client) *QRService {
	return &QRService{
		ledger: ledger,
		redis:  redis,
	}
}

// GenerateTopUpCode creates a single-use voucher crediting the given
// amount to the user's wallet, returning the opaque code and a base64
// PNG rendering of it.
func (s *QRService) GenerateTopUpCode(ctx context.Context, userID string, amount int64) (string, string, error) {
	voucher := topUpVoucher{
		UserID:   userID,
		Amount:   amount,
		IssuedAt: time.Now().Unix(),
		Nonce:    generateNonce(),
	}

	jsonData, err := json.Marshal(voucher)
	if err != nil {
		return "", "", err
	}

	code := base64.URLEncoding.EncodeToString(jsonData)

	key := fmt.Sprintf("topup:%s", code)
	if err := s.redis.Set(ctx, key, jsonData, voucherTTL).Err(); err != nil {
		return "", "", err
	}

	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", "", err
	}

	image := base64.StdEncoding.EncodeToString(buf.Bytes())

	log.Printf("[QR] Issued top-up voucher for user %s, amount %d", userID, amount)
	return code, image, nil
}

// RedeemTopUpCode consumes a voucher and credits the wallet it names.
// The Redis delete before the credit is what makes double scans fail.
func (s *QRService) RedeemTopUpCode(ctx context.Context, code string) (string, int64, int64, error) {
	key := fmt.Sprintf("topup:%s", code)

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return "", 0, 0, fmt.Errorf("invalid or expired top-up code")
	}
	if err != nil {
		return "", 0, 0, err
	}

	deleted, err := s.redis.Del(ctx, key).Result()
	if err != nil {
		return "", 0, 0, err
	}
	if deleted == 0 {
		return "", 0, 0, fmt.Errorf("top-up code already redeemed")
	}

	var voucher topUpVoucher
	if err := json.Unmarshal(data, &voucher); err != nil {
		return "", 0, 0, err
	}

	balance, err := s.ledger.Credit(ctx, voucher.UserID, voucher.Amount, "Wallet top-up via QR voucher")
	if err != nil {
		return "", 0, 0, err
	}

	log.Printf("[QR] Redeemed top-up voucher for user %s, amount %d", voucher.UserID, voucher.Amount)
	return voucher.UserID, voucher.Amount, balance, nil
}

func generateNonce() string {
	b := make([]byte, 16)
	rand.Read(b)
	return base64.URLEncoding.EncodeToString(b)
}
