package config

import (
	"os"
	"strconv"
	"time"
)

type SessionConfig struct {
	TickInterval        time.Duration
	BillingIntervalSecs int
	LowBalanceThreshold int64
	WaitingTimeout      time.Duration
	PeerLeaveGrace      time.Duration
	PresenceTTL         time.Duration
	MaxMessageLength    int
	Currency            string
}

func LoadSessionConfig() *SessionConfig {
	return &SessionConfig{
		TickInterval:        getEnvAsDuration("SESSION_TICK_INTERVAL", time.Second),
		BillingIntervalSecs: getEnvAsInt("SESSION_BILLING_INTERVAL_SECS", 60),
		LowBalanceThreshold: int64(getEnvAsInt("SESSION_LOW_BALANCE_THRESHOLD", 100)),
		WaitingTimeout:      getEnvAsDuration("SESSION_WAITING_TIMEOUT", 60*time.Second),
		PeerLeaveGrace:      getEnvAsDuration("SESSION_PEER_LEAVE_GRACE", 10*time.Second),
		PresenceTTL:         getEnvAsDuration("SESSION_PRESENCE_TTL", 30*time.Second),
		MaxMessageLength:    getEnvAsInt("SESSION_MAX_MESSAGE_LENGTH", 2000),
		Currency:            getEnv("SESSION_CURRENCY", "INR"),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
