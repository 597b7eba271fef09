package models

import "time"

// Profile is a marketplace account, either a seeker or an astrologer.
// Wallet balance lives here and is only mutated through the wallet service.
type Profile struct {
	ID            string    `json:"id" db:"id"`
	FullName      string    `json:"fullName" db:"full_name"`
	Email         string    `json:"email" db:"email"`
	Phone         string    `json:"phone,omitempty" db:"phone"`
	Role          string    `json:"role" db:"role"` // user or astrologer
	WalletBalance int64     `json:"walletBalance" db:"wallet_balance"`
	AvatarURL     string    `json:"avatarUrl,omitempty" db:"avatar_url"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}

// AstrologerProfile is the public directory view of an astrologer:
// profile identity joined with consultation metadata.
type AstrologerProfile struct {
	ID                 string   `json:"id" db:"id"`
	FullName           string   `json:"fullName" db:"full_name"`
	AvatarURL          string   `json:"avatarUrl,omitempty" db:"avatar_url"`
	Experience         int      `json:"experienceYears" db:"experience_years"`
	Specialties        []string `json:"specialties" db:"specialties"`
	Languages          []string `json:"languages" db:"languages"`
	Bio                string   `json:"bio,omitempty" db:"bio"`
	PricePerMin        int64    `json:"pricePerMin" db:"price_per_min"`
	IsVerified         bool     `json:"isVerified" db:"is_verified"`
	IsOnline           bool     `json:"isOnline" db:"is_online"`
	Rating             float64  `json:"rating" db:"rating"`
	TotalConsultations int      `json:"totalConsultations" db:"total_consultations"`
}
