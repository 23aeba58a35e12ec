package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	liveWSURL      = "wss://ws.bitmex.com/realtime"
	liveRestURL    = "https://www.bitmex.com/api/v1"
	testnetWSURL   = "wss://ws.testnet.bitmex.com/realtime"
	testnetRestURL = "https://testnet.bitmex.com/api/v1"
)

// Config is passed explicitly to every component of the bridge.
type Config struct {
	Testnet   bool
	Symbol    string
	WSURL     string
	RestURL   string
	APIKey    string
	APISecret string

	PipeEnabled   bool
	PricePipePath string
	OrderPipePath string

	MaxTableLen     int
	ConnectTimeout  time.Duration
	SnapshotTimeout time.Duration

	HistoryBars       int
	HistoryMarginBars int

	ForwardRetryDelay time.Duration
	SupportedCommands []string

	LivenessInterval time.Duration
	MetricsAddr      string
	GRPCAddr         string
	LogLevel         string
}

// Load reads the optional env files (".env" when none given) and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	p := &parser{}

	c := &Config{
		Testnet:   p.bool("BITMEX_TESTNET", true),
		Symbol:    strings.ToUpper(p.string("BITMEX_SYMBOL", "XBTUSD")),
		APIKey:    p.string("BITMEX_API_KEY", ""),
		APISecret: p.string("BITMEX_API_SECRET", ""),

		PipeEnabled:   p.bool("PIPE_ENABLED", true),
		PricePipePath: p.string("PIPE_PRICE_PATH", "/tmp/Bitmex.Pipe.ServerPrice"),
		OrderPipePath: p.string("PIPE_ORDER_PATH", "/tmp/Bitmex.Pipe.ServerOrder"),

		MaxTableLen:     p.int("MAX_TABLE_LEN", 200),
		ConnectTimeout:  p.duration("CONNECT_TIMEOUT", 5*time.Second),
		SnapshotTimeout: p.duration("SNAPSHOT_TIMEOUT", 30*time.Second),

		HistoryBars:       p.int("HISTORY_BARS", 750),
		HistoryMarginBars: p.int("HISTORY_MARGIN_BARS", 100),

		ForwardRetryDelay: p.duration("FORWARD_RETRY_DELAY", 500*time.Millisecond),
		SupportedCommands: strings.Split(p.string("SUPPORTED_COMMANDS", "order"), ","),

		LivenessInterval: p.duration("LIVENESS_INTERVAL", 300*time.Second),
		MetricsAddr:      p.string("METRICS_ADDR", ":8080"),
		GRPCAddr:         p.string("GRPC_ADDR", ":50051"),
		LogLevel:         p.string("LOG_LEVEL", "info"),
	}

	wsURL, restURL := liveWSURL, liveRestURL
	if c.Testnet {
		wsURL, restURL = testnetWSURL, testnetRestURL
	}
	c.WSURL = p.string("BITMEX_WS_URL", wsURL)
	c.RestURL = p.string("BITMEX_REST_URL", restURL)

	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	if c.APIKey != "" && c.APISecret == "" {
		return errors.New("BITMEX_API_SECRET is required if BITMEX_API_KEY is provided")
	}
	if c.APIKey == "" && c.APISecret != "" {
		return errors.New("BITMEX_API_KEY is required if BITMEX_API_SECRET is provided")
	}
	if c.HistoryMarginBars >= c.HistoryBars {
		return fmt.Errorf("HISTORY_MARGIN_BARS (%d) must be less than HISTORY_BARS (%d)", c.HistoryMarginBars, c.HistoryBars)
	}
	if c.ConnectTimeout <= 0 || c.SnapshotTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	if c.LivenessInterval <= 0 {
		return errors.New("LIVENESS_INTERVAL must be positive")
	}
	return nil
}

// Authenticated reports whether private tables and order submission are available.
func (c *Config) Authenticated() bool {
	return c.APIKey != ""
}

type parser struct {
	errs []error
}

func (p *parser) string(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func (p *parser) bool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) int(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return i
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
