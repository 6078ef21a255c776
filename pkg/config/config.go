package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the core runtime configuration for a service instance.
// It supports environment-based initialization, with sensible defaults.
type Config struct {
	ServiceName string // e.g. "market-maker"
	Env         string // e.g. "dev", "uat", "prod"
	LogLevel    string // "debug", "info", etc.
	Port        int    // service HTTP / metrics port

	// Venue connectivity. Environment selects the Paradigm deployment
	// (TEST, NIGHTLY, STAGE); explicit WS_URL / HTTP_URL override the
	// derived endpoints.
	Environment string
	WSURL       string
	HTTPURL     string

	// Credentials. Resolved from AWS Secrets Manager when AWSSecretName is
	// set, otherwise from the environment. See internal/secrets.
	AccountName   string
	AccessKey     string
	SecretKey     string
	AWSRegion     string
	AWSSecretName string

	// Eventing.
	NATSURL         string
	OutboundSubject string

	// Reference data.
	InstrumentRefreshInterval time.Duration

	// Maker order tunables.
	OrderPriceWorseThanMark  bool
	OrderPricingTickMultiple int
	OrderRefreshWindowLower  float64 // seconds
	OrderRefreshWindowUpper  float64 // seconds
	OrderNumberPerSide       int

	// Taker order tunables.
	TakerWindow        time.Duration
	TakerOpsPerWindow  int
	TakerDeliberation  time.Duration
	RFQCreateInterval  time.Duration
	RFQCreateEnabled   bool
}

// Load loads configuration from environment variables and .env file if present.
// credentialPrefix scopes the credential variables, e.g. "MAKER" reads
// MAKER_ACCOUNT_NAME / MAKER_ACCESS_KEY / MAKER_SECRET_KEY.
func Load(service, credentialPrefix string) *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	environment := strings.ToLower(GetEnv("ENVIRONMENT", "testnet"))

	cfg := &Config{
		ServiceName: GetEnv("SERVICE_NAME", service),
		Env:         GetEnv("ENV", "dev"),
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		Port:        GetEnvInt("PORT", 9030),

		Environment: environment,
		WSURL: GetEnv("WS_URL",
			fmt.Sprintf("wss://ws.api.%s.paradigm.trade/v2/drfq", environment)),
		HTTPURL: GetEnv("HTTP_URL",
			fmt.Sprintf("https://api.%s.paradigm.trade", environment)),

		AccountName:   GetEnv(credentialPrefix+"_ACCOUNT_NAME", ""),
		AccessKey:     GetEnv(credentialPrefix+"_ACCESS_KEY", ""),
		SecretKey:     GetEnv(credentialPrefix+"_SECRET_KEY", ""),
		AWSRegion:     GetEnv("AWS_REGION", "us-east-2"),
		AWSSecretName: GetEnv("AWS_SECRET_NAME", ""),

		NATSURL:         GetEnv("NATS_URL", ""),
		OutboundSubject: GetEnv("OUTBOUND_SUBJECT", "evt.rfq.lifecycle.v1"),

		InstrumentRefreshInterval: GetEnvDuration("INSTRUMENT_REFRESH_INTERVAL", 600*time.Second),

		OrderPriceWorseThanMark:  GetEnvBool("ORDER_PRICE_WORSE_THAN_MARK_FLAG", true),
		OrderPricingTickMultiple: GetEnvInt("ORDER_PRICING_TICK_MULTIPLE", 10),
		OrderRefreshWindowLower:  GetEnvFloat("ORDER_REFRESH_WINDOW_LOWER_BOUNDARY", 2),
		OrderRefreshWindowUpper:  GetEnvFloat("ORDER_REFRESH_WINDOW_UPPER_BOUNDARY", 5),
		OrderNumberPerSide:       GetEnvInt("ORDER_NUMBER_PER_SIDE", 1),

		TakerWindow:       GetEnvDuration("TAKER_WINDOW", 5*time.Second),
		TakerOpsPerWindow: GetEnvInt("TAKER_OPS_PER_WINDOW", 2),
		TakerDeliberation: GetEnvDuration("TAKER_DELIBERATION", 10*time.Second),
		RFQCreateInterval: GetEnvDuration("RFQ_CREATE_INTERVAL", 10*time.Second),
		RFQCreateEnabled:  GetEnvBool("RFQ_CREATE_ENABLED", true),
	}

	return cfg
}
