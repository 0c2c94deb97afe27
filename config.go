package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"alexaudit/internal/audit"
)

type Config struct {
	SessionPath         string `yaml:"session_path"`
	DBPath              string `yaml:"db_path"`
	ReportOutputDir     string `yaml:"report_output_dir"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`

	// Classification knobs. Revisions of the audit disagreed on each of
	// these, so they are all configurable; the defaults are the refined
	// behavior.
	ShortWordMax           int      `yaml:"short_word_max"`
	CountWakeWord          bool     `yaml:"count_wake_word"`
	ShortIncludesSR        bool     `yaml:"short_includes_sr"`
	DuplicateWindowSeconds int      `yaml:"duplicate_window_seconds"`
	WakeWords              []string `yaml:"wake_words"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	ReportChannelID string `yaml:"report_channel_id"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	LLMModel        string `yaml:"llm_model"`

	WatchSchedule string `yaml:"watch_schedule"`
	WatchDays     int    `yaml:"watch_days"`
	Timezone      string `yaml:"timezone"`

	Location *time.Location `yaml:"-"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.SessionPath, "SESSION_PATH")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ReportOutputDir, "REPORT_OUTPUT_DIR")
	envOverrideInt(&cfg.FetchTimeoutSeconds, "FETCH_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.ShortWordMax, "SHORT_WORD_MAX")
	envOverrideBool(&cfg.CountWakeWord, "COUNT_WAKE_WORD")
	envOverrideBool(&cfg.ShortIncludesSR, "SHORT_INCLUDES_SR")
	envOverrideInt(&cfg.DuplicateWindowSeconds, "DUPLICATE_WINDOW_SECONDS")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.ReportChannelID, "REPORT_CHANNEL_ID")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.WatchSchedule, "WATCH_SCHEDULE")
	envOverrideInt(&cfg.WatchDays, "WATCH_DAYS")
	envOverride(&cfg.Timezone, "TIMEZONE")

	if words := os.Getenv("WAKE_WORDS"); words != "" {
		cfg.WakeWords = nil
		for _, w := range strings.Split(words, ",") {
			w = strings.TrimSpace(w)
			if w != "" {
				cfg.WakeWords = append(cfg.WakeWords, w)
			}
		}
	}

	// Defaults
	if cfg.DBPath == "" {
		cfg.DBPath = "./alexaudit.db"
	}
	if cfg.ReportOutputDir == "" {
		cfg.ReportOutputDir = "./reports"
	}
	if cfg.FetchTimeoutSeconds == 0 {
		cfg.FetchTimeoutSeconds = 30
	}
	if cfg.ShortWordMax == 0 {
		cfg.ShortWordMax = 1
	}
	if len(cfg.WakeWords) == 0 {
		cfg.WakeWords = audit.DefaultWakeWords()
	}
	if cfg.WatchDays == 0 {
		cfg.WatchDays = 7
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "Local"
	}

	// Validate
	if cfg.ShortWordMax < 1 {
		log.Fatalf("invalid short_word_max '%d': must be >= 1", cfg.ShortWordMax)
	}
	if cfg.DuplicateWindowSeconds < 0 {
		log.Fatalf("invalid duplicate_window_seconds '%d': must be >= 0", cfg.DuplicateWindowSeconds)
	}
	if cfg.FetchTimeoutSeconds < 1 {
		log.Fatalf("invalid fetch_timeout_seconds '%d': must be >= 1", cfg.FetchTimeoutSeconds)
	}
	if cfg.WatchDays < 1 {
		log.Fatalf("invalid watch_days '%d': must be >= 1", cfg.WatchDays)
	}

	if strings.EqualFold(cfg.Timezone, "Local") {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			log.Fatalf("invalid timezone '%s': %v", cfg.Timezone, err)
		}
		cfg.Location = loc
	}

	return cfg
}

// Rules maps the config knobs onto the classifier's rule set.
func (c Config) Rules() audit.Rules {
	return audit.Rules{
		WakeWords:          c.WakeWords,
		ShortWordMax:       c.ShortWordMax,
		CountWakeWord:      c.CountWakeWord,
		EvaluateShortForSR: c.ShortIncludesSR,
		DuplicateWindow:    time.Duration(c.DuplicateWindowSeconds) * time.Second,
	}
}

func (c Config) SlackConfigured() bool {
	return c.SlackBotToken != "" && c.ReportChannelID != ""
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}

func envOverrideBool(field *bool, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
