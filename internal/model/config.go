package model

import "time"

// --- Configuration Structures ---

type FormFactor string

const (
	FormFactorDesktop FormFactor = "desktop"
	FormFactorKiosk   FormFactor = "kiosk"
	FormFactorTablet  FormFactor = "tablet"
)

type PrinterMode string

const (
	PrinterModeNetwork PrinterMode = "network"
	PrinterModeCUPS    PrinterMode = "cups"
	PrinterModeSave    PrinterMode = "save"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Feed     FeedConfig     `yaml:"feed"`
	Agent    AgentConfig    `yaml:"agent"`
	Printer  Printer        `yaml:"printer"`
	Store    StoreConfig    `yaml:"store"`
	POS      POSConfig      `yaml:"pos"`
	Outcomes OutcomeConfig  `yaml:"outcomes"`
	Receipts ReceiptsConfig `yaml:"receipts"`
}

type AppConfig struct {
	Name       string     `yaml:"name"`
	FormFactor FormFactor `yaml:"form_factor"`
	LogLevel   string     `yaml:"log_level"`
	LogFormat  string     `yaml:"log_format"`
}

type FeedConfig struct {
	URL            string        `yaml:"url"`
	APIKey         string        `yaml:"api_key"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type AgentConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

type Printer struct {
	Name        string        `yaml:"name"`
	Mode        PrinterMode   `yaml:"mode"`
	IP          string        `yaml:"ip"`
	Port        int           `yaml:"port"`
	CUPSQueue   string        `yaml:"cups_queue"`
	SpoolDir    string        `yaml:"spool_dir"`
	Format      string        `yaml:"format"` // "pdf" or "zpl"
	SettleDelay time.Duration `yaml:"settle_delay"`
	// DocumentTimeout bounds the delivery of one document to the printer.
	DocumentTimeout time.Duration `yaml:"document_timeout"`
	// SaveInsteadOfPrint routes order labels to the spool directory even when a printer is configured.
	SaveInsteadOfPrint bool `yaml:"save_instead_of_print"`
}

type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	RedisURL   string `yaml:"redis_url"`
}

type POSConfig struct {
	AgentURL     string        `yaml:"agent_url"`
	DeviceIP     string        `yaml:"device_ip"`
	DevicePort   string        `yaml:"device_port"`
	DeviceProto  string        `yaml:"device_proto"`
	Timeout      time.Duration `yaml:"timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	InsecureTLS  bool          `yaml:"insecure_tls"`
}

type OutcomeConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers"`
	Topic        string   `yaml:"topic"`
}

// ReceiptsConfig drives the ESC/POS receipt printer, a separate device from
// the label printer.
type ReceiptsConfig struct {
	Enabled    bool    `yaml:"enabled"`
	ChromePath string  `yaml:"chrome_path"`
	WidthPx    int     `yaml:"width_px"`
	Printer    Printer `yaml:"printer"`
}
