package utils

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

const (
	DefaultConfigFile = "config/config.yaml"
	defaultFeedURL    = "wss://api.zeep.kz/api/v1/orders/ws"
)

// DefaultConfig returns the configuration used when neither file nor
// environment set a value.
func DefaultConfig() model.Config {
	return model.Config{
		App: model.AppConfig{
			Name:       "Zeep Print Agent",
			FormFactor: model.FormFactorDesktop,
			LogLevel:   "info",
			LogFormat:  "text",
		},
		Feed: model.FeedConfig{
			URL:            defaultFeedURL,
			ReconnectDelay: 5 * time.Second,
			PingInterval:   30 * time.Second,
		},
		Agent: model.AgentConfig{ListenAddr: "127.0.0.1:42999"},
		Printer: model.Printer{
			Name:        "Labels",
			Mode:        model.PrinterModeNetwork,
			Port:        9100,
			SpoolDir:    "spool",
			Format:          "pdf",
			SettleDelay:     500 * time.Millisecond,
			DocumentTimeout: time.Minute,
		},
		Store: model.StoreConfig{SQLitePath: "data/agent.db"},
		POS: model.POSConfig{
			AgentURL:     "http://localhost:42999",
			DevicePort:   "8080",
			DeviceProto:  "https",
			Timeout:      60 * time.Second,
			PollInterval: time.Second,
			InsecureTLS:  true,
		},
		Outcomes: model.OutcomeConfig{Topic: "print-agent.outcomes"},
		Receipts: model.ReceiptsConfig{
			WidthPx: 384,
			Printer: model.Printer{
				Name:            "Receipts",
				Mode:            model.PrinterModeNetwork,
				Port:            9100,
				SpoolDir:        "spool/receipts",
				SettleDelay:     500 * time.Millisecond,
				DocumentTimeout: time.Minute,
			},
		},
	}
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error.
func LoadConfig(path string) (model.Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return model.Config{}, fmt.Errorf("parse config file: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return model.Config{}, fmt.Errorf("read config file: %w", err)
	}

	applyEnv(&cfg, os.Getenv)
	if err := ValidateConfig(cfg); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *model.Config, getenv func(string) string) {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("ZEEP_FEED_URL", &cfg.Feed.URL)
	str("ZEEP_API_KEY", &cfg.Feed.APIKey)
	str("ZEEP_LOG_LEVEL", &cfg.App.LogLevel)
	str("ZEEP_LOG_FORMAT", &cfg.App.LogFormat)
	str("ZEEP_AGENT_ADDR", &cfg.Agent.ListenAddr)
	str("ZEEP_PRINTER_IP", &cfg.Printer.IP)
	str("ZEEP_PRINTER_FORMAT", &cfg.Printer.Format)
	str("ZEEP_CUPS_QUEUE", &cfg.Printer.CUPSQueue)
	str("ZEEP_SPOOL_DIR", &cfg.Printer.SpoolDir)
	str("ZEEP_SQLITE_PATH", &cfg.Store.SQLitePath)
	str("REDIS_URL", &cfg.Store.RedisURL)
	str("ZEEP_POS_AGENT_URL", &cfg.POS.AgentURL)
	str("ZEEP_POS_IP", &cfg.POS.DeviceIP)
	str("ZEEP_POS_PORT", &cfg.POS.DevicePort)
	str("ZEEP_OUTCOMES_TOPIC", &cfg.Outcomes.Topic)
	str("ZEEP_CHROME_PATH", &cfg.Receipts.ChromePath)
	str("ZEEP_RECEIPT_PRINTER_IP", &cfg.Receipts.Printer.IP)
	str("ZEEP_RECEIPT_CUPS_QUEUE", &cfg.Receipts.Printer.CUPSQueue)

	if v := strings.TrimSpace(getenv("ZEEP_FORM_FACTOR")); v != "" {
		cfg.App.FormFactor = model.FormFactor(strings.ToLower(v))
	}
	if v := strings.TrimSpace(getenv("ZEEP_PRINTER_MODE")); v != "" {
		cfg.Printer.Mode = model.PrinterMode(strings.ToLower(v))
	}
	if v := strings.TrimSpace(getenv("ZEEP_RECEIPT_PRINTER_MODE")); v != "" {
		cfg.Receipts.Printer.Mode = model.PrinterMode(strings.ToLower(v))
	}
	if v := strings.TrimSpace(getenv("ZEEP_PRINT_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Printer.DocumentTimeout = d
			cfg.Receipts.Printer.DocumentTimeout = d
		}
	}
	if v := strings.TrimSpace(getenv("ZEEP_PRINTER_PORT")); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Printer.Port = port
		}
	}
	if v := strings.TrimSpace(getenv("ZEEP_SAVE_INSTEAD_OF_PRINT")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Printer.SaveInsteadOfPrint = b
		}
	}
	if v := strings.TrimSpace(getenv("ZEEP_RECEIPTS")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Receipts.Enabled = b
		}
	}
	if v := strings.TrimSpace(getenv("KAFKA_BROKERS")); v != "" {
		cfg.Outcomes.KafkaBrokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.Outcomes.KafkaBrokers = append(cfg.Outcomes.KafkaBrokers, b)
			}
		}
	}
}

// ValidateConfig rejects values the agent cannot start with.
func ValidateConfig(cfg model.Config) error {
	switch cfg.App.FormFactor {
	case model.FormFactorDesktop, model.FormFactorKiosk, model.FormFactorTablet:
	default:
		return fmt.Errorf("invalid form factor %q", cfg.App.FormFactor)
	}
	switch cfg.Printer.Mode {
	case model.PrinterModeNetwork, model.PrinterModeCUPS, model.PrinterModeSave:
	default:
		return fmt.Errorf("invalid printer mode %q", cfg.Printer.Mode)
	}
	switch cfg.Printer.Format {
	case "pdf", "zpl":
	default:
		return fmt.Errorf("invalid printer format %q", cfg.Printer.Format)
	}
	if cfg.Printer.Port < 0 || cfg.Printer.Port > 65535 {
		return fmt.Errorf("invalid printer port %d", cfg.Printer.Port)
	}
	if cfg.Printer.DocumentTimeout < 0 {
		return fmt.Errorf("invalid printer document timeout %s", cfg.Printer.DocumentTimeout)
	}
	if !cfg.Receipts.Enabled {
		return nil
	}
	rp := cfg.Receipts.Printer
	switch rp.Mode {
	case model.PrinterModeNetwork:
		if rp.IP == "" {
			return errors.New("receipts enabled but receipts.printer.ip is empty")
		}
	case model.PrinterModeCUPS:
		if rp.CUPSQueue == "" {
			return errors.New("receipts enabled but receipts.printer.cups_queue is empty")
		}
	case model.PrinterModeSave:
	default:
		return fmt.Errorf("invalid receipt printer mode %q", rp.Mode)
	}
	if rp.Port < 0 || rp.Port > 65535 {
		return fmt.Errorf("invalid receipt printer port %d", rp.Port)
	}
	return nil
}

func SaveConfig(path string, cfg model.Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// SetupConfig asks for the station settings on out, reading answers from in,
// and writes the result to path. Empty answers keep the defaults.
func SetupConfig(in io.Reader, out io.Writer, path string) (model.Config, error) {
	cfg := DefaultConfig()
	reader := bufio.NewReader(in)

	ask := func(prompt, def string) string {
		if def != "" {
			fmt.Fprintf(out, "%s (default: %s): ", prompt, def)
		} else {
			fmt.Fprintf(out, "%s: ", prompt)
		}
		answer, _ := reader.ReadString('\n')
		answer = strings.TrimSpace(answer)
		if answer == "" {
			return def
		}
		return answer
	}

	fmt.Fprintln(out, "--- Initial Setup ---")
	cfg.Feed.URL = ask("Enter order feed WebSocket URL", cfg.Feed.URL)
	cfg.Feed.APIKey = ask("Enter Server API Key", "")
	cfg.App.FormFactor = model.FormFactor(ask("Station type (desktop/kiosk/tablet)", string(cfg.App.FormFactor)))
	cfg.Printer.Mode = model.PrinterMode(ask("Printer connection (network/cups/save)", string(cfg.Printer.Mode)))
	switch cfg.Printer.Mode {
	case model.PrinterModeNetwork:
		cfg.Printer.IP = ask("Printer IP", "")
	case model.PrinterModeCUPS:
		cfg.Printer.CUPSQueue = ask("CUPS queue name", "")
	}
	cfg.Printer.Format = ask("Label format (pdf/zpl)", cfg.Printer.Format)
	cfg.POS.DeviceIP = ask("Kaspi terminal IP (empty to skip)", "")

	if err := ValidateConfig(cfg); err != nil {
		return model.Config{}, err
	}
	if err := SaveConfig(path, cfg); err != nil {
		return model.Config{}, err
	}
	fmt.Fprintln(out, "Configuration saved.")
	return cfg, nil
}
