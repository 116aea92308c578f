package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Table     TableConfig     `yaml:"table" mapstructure:"table"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Vision    VisionConfig    `yaml:"vision" mapstructure:"vision"`
	Evidence  EvidenceConfig  `yaml:"evidence" mapstructure:"evidence"`
	Ownership OwnershipConfig `yaml:"ownership" mapstructure:"ownership"`
	Reports   ReportsConfig   `yaml:"reports" mapstructure:"reports"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini" mapstructure:"gemini"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ExtractConfig configures keyword search, year preference and strategy policy.
type ExtractConfig struct {
	Keywords          []string `yaml:"keywords" mapstructure:"keywords"`
	ContextKeywords   []string `yaml:"context_keywords" mapstructure:"context_keywords"`
	Years             []int    `yaml:"years" mapstructure:"years"`
	YearScores        []int    `yaml:"year_scores" mapstructure:"year_scores"`
	Currency          string   `yaml:"currency" mapstructure:"currency"`
	Priority          []string `yaml:"priority" mapstructure:"priority"`
	VisionCorroborate bool     `yaml:"vision_corroborate" mapstructure:"vision_corroborate"`
	Annotate          bool     `yaml:"annotate" mapstructure:"annotate"`
	ProfilePath       string   `yaml:"profile_path" mapstructure:"profile_path"`
	InputDir          string   `yaml:"input_dir" mapstructure:"input_dir"`
	OutputPath        string   `yaml:"output_path" mapstructure:"output_path"`
}

// TableConfig configures the table strategy backends.
type TableConfig struct {
	Backends    []string `yaml:"backends" mapstructure:"backends"`
	TimeoutSecs int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// OCRConfig configures the poppler tools and text recognition.
type OCRConfig struct {
	Enabled        bool   `yaml:"enabled" mapstructure:"enabled"`
	PdfToTextPath  string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PdfToPPMPath   string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
	Language       string `yaml:"language" mapstructure:"language"`
	TessdataPrefix string `yaml:"tessdata_prefix" mapstructure:"tessdata_prefix"`
	DPI            int    `yaml:"dpi" mapstructure:"dpi"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// VisionConfig configures the vision strategy.
type VisionConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	DPI              int     `yaml:"dpi" mapstructure:"dpi"`
	Question         string  `yaml:"question" mapstructure:"question"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	BreakerThreshold int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// EvidenceConfig configures evidence screenshots.
type EvidenceConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Dir          string `yaml:"dir" mapstructure:"dir"`
	DPI          int    `yaml:"dpi" mapstructure:"dpi"`
	MetadataFile string `yaml:"metadata_file" mapstructure:"metadata_file"`
	Verify       bool   `yaml:"verify" mapstructure:"verify"`
}

// OwnershipConfig configures the foreign ownership provider.
type OwnershipConfig struct {
	Source      string `yaml:"source" mapstructure:"source"`
	URL         string `yaml:"url" mapstructure:"url"`
	CSVPath     string `yaml:"csv_path" mapstructure:"csv_path"`
	Basis       string `yaml:"basis" mapstructure:"basis"`
	DelayMs     int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ReportsConfig configures the annual report downloader. ProfileURL holds a
// single %s for the company symbol.
type ReportsConfig struct {
	ProfileURL  string `yaml:"profile_url" mapstructure:"profile_url"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
	DelayMs     int    `yaml:"delay_ms" mapstructure:"delay_ms"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI-compatible API settings.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Google Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	Limit       int `yaml:"limit" mapstructure:"limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultKeywords are the value labels searched for in English and Arabic reports.
var DefaultKeywords = []string{
	"Retained earnings",
	"Accumulated earnings",
	"Undistributed profits",
	"الأرباح المبقاة",
	"الأرباح المحتجزة",
}

// DefaultContextKeywords mark blocks from the equity section.
var DefaultContextKeywords = []string{
	"statement of changes in equity",
	"financial position",
	"shareholders' equity",
	"equity",
	"reserves",
}

// DefaultQuestion is the instruction sent with a rendered page.
const DefaultQuestion = "What is the value of 'Retained earnings' in this table? Return only the numeric value, digits only, with no words, currency or punctuation."

// DefaultYears returns the four fiscal years before now's year, most recent first.
func DefaultYears(now time.Time) []int {
	y := now.Year()
	return []int{y - 1, y - 2, y - 3, y - 4}
}

// Load reads configuration from .env, the config file and the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		zap.L().Debug("config: .env not loaded", zap.Error(err))
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REINVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Extract.ProfilePath != "" {
		p, err := LoadProfile(cfg.Extract.ProfilePath)
		if err != nil {
			return nil, err
		}
		cfg.Apply(p)
	}
	if len(cfg.Extract.Years) == 0 {
		cfg.Extract.Years = DefaultYears(time.Now())
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Keys without a meaningful default still need registering so that
	// AutomaticEnv picks them up during Unmarshal.
	for _, key := range []string{
		"extract.profile_path", "ocr.tessdata_prefix", "ownership.csv_path",
		"anthropic.key", "anthropic.base_url", "openai.key", "openai.base_url", "gemini.key", "gemini.base_url",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("extract.years", []int{})
	v.SetDefault("extract.vision_corroborate", false)
	v.SetDefault("extract.annotate", false)
	v.SetDefault("evidence.verify", false)
	v.SetDefault("batch.limit", 0)

	v.SetDefault("extract.keywords", DefaultKeywords)
	v.SetDefault("extract.context_keywords", DefaultContextKeywords)
	v.SetDefault("extract.year_scores", []int{100, 50, 25, 10})
	v.SetDefault("extract.currency", "SAR")
	v.SetDefault("extract.priority", []string{"table", "vision", "regex"})
	v.SetDefault("extract.input_dir", "pdfs")
	v.SetDefault("extract.output_path", "retained_earnings_results.json")
	v.SetDefault("table.backends", []string{"layout", "words"})
	v.SetDefault("table.timeout_secs", 30)
	v.SetDefault("ocr.enabled", true)
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.pdftoppm_path", "pdftoppm")
	v.SetDefault("ocr.language", "eng+ara")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.timeout_secs", 60)
	v.SetDefault("vision.provider", "none")
	v.SetDefault("vision.dpi", 200)
	v.SetDefault("vision.question", DefaultQuestion)
	v.SetDefault("vision.timeout_secs", 60)
	v.SetDefault("vision.max_retries", 2)
	v.SetDefault("vision.rate_per_sec", 1.0)
	v.SetDefault("vision.burst", 1)
	v.SetDefault("vision.breaker_threshold", 5)
	v.SetDefault("vision.breaker_reset_secs", 60)
	v.SetDefault("evidence.enabled", true)
	v.SetDefault("evidence.dir", "evidence")
	v.SetDefault("evidence.dpi", 150)
	v.SetDefault("evidence.metadata_file", "evidence/evidence_metadata.json")
	v.SetDefault("ownership.source", "tadawul")
	v.SetDefault("ownership.url", "https://www.saudiexchange.sa/wps/portal/saudiexchange/newsandreports/reports-publications/foreign-ownership?locale=ar")
	v.SetDefault("ownership.basis", "foreign_ownership")
	v.SetDefault("ownership.delay_ms", 1000)
	v.SetDefault("ownership.user_agent", "Mozilla/5.0 (compatible; reinvest-cli/1.0)")
	v.SetDefault("ownership.timeout_secs", 30)
	v.SetDefault("reports.profile_url", "https://www.saudiexchange.sa/wps/portal/saudiexchange/companies/company-profile-main/?companySymbol=%s&locale=en")
	v.SetDefault("reports.dir", "pdfs")
	v.SetDefault("reports.delay_ms", 3000)
	v.SetDefault("reports.max_retries", 3)
	v.SetDefault("reports.concurrency", 1)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reinvest.db")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the settings a command mode depends on. Modes: extract,
// ownership, reports, calculate, export.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "extract":
		if len(c.Extract.Keywords) == 0 {
			errs = append(errs, "extract.keywords must not be empty")
		}
		for _, p := range c.Extract.Priority {
			if p != "table" && p != "vision" && p != "regex" {
				errs = append(errs, fmt.Sprintf("extract.priority has unknown method %q", p))
			}
		}
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 32 {
			errs = append(errs, "batch.concurrency must be between 1 and 32")
		}
		switch c.Vision.Provider {
		case "", "none":
		case "anthropic":
			if c.Anthropic.Key == "" {
				errs = append(errs, "anthropic.key is required for vision.provider anthropic")
			}
		case "openai":
			if c.OpenAI.Key == "" {
				errs = append(errs, "openai.key is required for vision.provider openai")
			}
		case "gemini":
			if c.Gemini.Key == "" {
				errs = append(errs, "gemini.key is required for vision.provider gemini")
			}
		default:
			errs = append(errs, fmt.Sprintf("vision.provider %q is unknown", c.Vision.Provider))
		}
	case "ownership":
		if c.Ownership.Source == "tadawul" && c.Ownership.URL == "" {
			errs = append(errs, "ownership.url is required for source tadawul")
		}
		if c.Ownership.DelayMs < 0 {
			errs = append(errs, "ownership.delay_ms must be >= 0")
		}
	case "reports":
		if strings.Count(c.Reports.ProfileURL, "%s") != 1 {
			errs = append(errs, "reports.profile_url must contain exactly one %s")
		}
		if c.Reports.Dir == "" {
			errs = append(errs, "reports.dir is required")
		}
		if c.Reports.DelayMs < 0 {
			errs = append(errs, "reports.delay_ms must be >= 0")
		}
		if c.Reports.Concurrency < 1 || c.Reports.Concurrency > 8 {
			errs = append(errs, "reports.concurrency must be between 1 and 8")
		}
	case "calculate", "export":
		switch c.Ownership.Basis {
		case "foreign_ownership", "max_allowed", "investor_limit":
		default:
			errs = append(errs, fmt.Sprintf("ownership.basis %q is unknown", c.Ownership.Basis))
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
