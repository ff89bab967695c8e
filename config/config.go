package config

import (
	"os"
	"strconv"
)

// Config is loaded once from the environment at startup.
type Config struct {
	// HTTP
	ListenAddr string

	// Database
	DatabaseDSN string

	// Chain
	ChainRPCURL         string
	ContractAddress     string
	SystemWalletKey     string // hex private key of the wallet submitting tickets
	SystemWalletAddress string // f-address when the node holds the key instead
	ChainID             int64

	// Ticket issuance
	IssuerURL           string
	TicketKeyID         string
	TicketPrivateKey    string // PEM, RS256
	TicketPublicKey     string // PEM
	MinCreditPerTicket  string // FIL, human unit
	MaxTicketsPerLedger int
	DailyRedeemLimit    int

	// Deposit windows
	LockDays int

	// Verification job
	VerifyBatchSize   int
	VerifyMinSpacing  int // milliseconds between chain calls
	MaxVerifyAttempts int
}

// Load reads configuration from the environment with development defaults.
func Load() *Config {
	return &Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8080"),
		DatabaseDSN: getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=filpass_credits port=5432 sslmode=disable"),

		ChainRPCURL:         getEnv("CHAIN_RPC_URL", "https://api.calibration.node.glif.io/rpc/v1"),
		ContractAddress:     getEnv("CONTRACT_ADDRESS", ""),
		SystemWalletKey:     getEnv("SYSTEM_WALLET_PRIVATE_KEY", ""),
		SystemWalletAddress: getEnv("SYSTEM_WALLET_ADDRESS", ""),
		ChainID:             int64(getEnvInt("CHAIN_ID", 314159)),

		IssuerURL:           getEnv("ISSUER_URL", "http://localhost:8080"),
		TicketKeyID:         getEnv("TICKET_KEY_ID", "1"),
		TicketPrivateKey:    getEnv("TICKET_PRIVATE_KEY", ""),
		TicketPublicKey:     getEnv("TICKET_PUBLIC_KEY", ""),
		MinCreditPerTicket:  getEnv("MIN_CREDIT_PER_TICKET", "0.00000001"),
		MaxTicketsPerLedger: getEnvInt("MAX_TICKETS_PER_LEDGER", 10),
		DailyRedeemLimit:    getEnvInt("DAILY_REDEEM_LIMIT", 10),

		LockDays: getEnvInt("LOCK_DAYS", 1),

		VerifyBatchSize:   getEnvInt("VERIFY_BATCH_SIZE", 720),
		VerifyMinSpacing:  getEnvInt("VERIFY_MIN_SPACING_MS", 333),
		MaxVerifyAttempts: getEnvInt("MAX_VERIFY_ATTEMPTS", 10),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
