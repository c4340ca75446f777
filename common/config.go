package common

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	logger "github.com/kthomas/go-logger"
)

const defaultLedgerConfirmationTimeout = time.Minute * 5
const defaultLedgerPollInterval = time.Second * 2
const defaultLedgerMinConfirmations = uint64(1)

// LedgerProviderLocal is the in-process ledger provider
const LedgerProviderLocal = "local"

// LedgerProviderEthereum is the go-ethereum rpc ledger provider
const LedgerProviderEthereum = "ethereum"

var (
	// Log is the configured logger
	Log *logger.Logger

	// ConsumeNATSStreamingSubscriptions is true when the NATS consumers should be started
	ConsumeNATSStreamingSubscriptions bool

	// StoreProvider is the configured record store provider; one of database or memory
	StoreProvider string

	// LedgerProvider is the configured ledger provider; one of local or ethereum
	LedgerProvider string

	// LedgerRPCURL is the json-rpc endpoint used by the ethereum ledger provider
	LedgerRPCURL string

	// LedgerAnchorAddress is the contract (or account) artifacts are anchored to
	LedgerAnchorAddress string

	// LedgerAnchorABI is the optional json abi of the anchor contract
	LedgerAnchorABI string

	// LedgerAccountPrivateKey is the hex-encoded key which signs anchor transactions
	LedgerAccountPrivateKey string

	// LedgerMinConfirmations is the confirmation depth required before a transaction is confirmed
	LedgerMinConfirmations uint64

	// LedgerConfirmationTimeout bounds the wait for a terminal transaction status
	LedgerConfirmationTimeout time.Duration

	// LedgerPollInterval is the interval between transaction status checks
	LedgerPollInterval time.Duration

	// LedgerBlockInterval is the interval at which the local ledger seals blocks; zero seals on publish
	LedgerBlockInterval time.Duration

	// ListenPort is the port the API listens on
	ListenPort string
)

func init() {
	godotenv.Load()

	requireLogger()
	requireNATSConfig()
	requireLedgerConfig()

	StoreProvider = strings.ToLower(os.Getenv("STORE_PROVIDER"))
	if StoreProvider == "" {
		StoreProvider = "database"
	}

	ListenPort = os.Getenv("PORT")
	if ListenPort == "" {
		ListenPort = "8080"
	}
}

func requireLogger() {
	lvl := os.Getenv("LOG_LEVEL")
	if lvl == "" {
		lvl = "INFO"
	}

	var endpoint *string
	if os.Getenv("SYSLOG_ENDPOINT") != "" {
		endpt := os.Getenv("SYSLOG_ENDPOINT")
		endpoint = &endpt
	}

	Log = logger.NewLogger("attestation", lvl, endpoint)
}

func requireNATSConfig() {
	ConsumeNATSStreamingSubscriptions = strings.ToLower(os.Getenv("CONSUME_NATS_STREAMING_SUBSCRIPTIONS")) == "true"
}

func requireLedgerConfig() {
	LedgerProvider = strings.ToLower(os.Getenv("LEDGER_PROVIDER"))
	if LedgerProvider == "" {
		LedgerProvider = LedgerProviderLocal
	}

	LedgerRPCURL = os.Getenv("LEDGER_RPC_URL")
	LedgerAnchorAddress = os.Getenv("LEDGER_ANCHOR_ADDRESS")
	LedgerAnchorABI = os.Getenv("LEDGER_ANCHOR_ABI")
	LedgerAccountPrivateKey = os.Getenv("LEDGER_ACCOUNT_PRIVATE_KEY")

	LedgerMinConfirmations = defaultLedgerMinConfirmations
	if os.Getenv("LEDGER_MIN_CONFIRMATIONS") != "" {
		confirmations, err := strconv.ParseUint(os.Getenv("LEDGER_MIN_CONFIRMATIONS"), 10, 64)
		if err != nil {
			Log.Panicf("failed to parse LEDGER_MIN_CONFIRMATIONS; %s", err.Error())
		}
		LedgerMinConfirmations = confirmations
	}

	LedgerConfirmationTimeout = durationFromEnv("LEDGER_CONFIRMATION_TIMEOUT", defaultLedgerConfirmationTimeout)
	LedgerPollInterval = durationFromEnv("LEDGER_POLL_INTERVAL", defaultLedgerPollInterval)
	LedgerBlockInterval = durationFromEnv("LEDGER_BLOCK_INTERVAL", 0)
}

// durationFromEnv parses a duration (i.e., 30s, 5m) from the named environment variable
func durationFromEnv(name string, fallback time.Duration) time.Duration {
	val := os.Getenv(name)
	if val == "" {
		return fallback
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		Log.Panicf("failed to parse %s; %s", name, err.Error())
	}

	return duration
}
