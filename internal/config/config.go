// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DatajudConfig holds settings for the judicial-records API.
type DatajudConfig struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	PageSize       int
	MaxSystems     int
	FallbackCourts []string
}

// MonitorConfig holds the thresholds used by the sweeps.
type MonitorConfig struct {
	TerminalStatuses   []string
	CriticalStaleDays  int
	StalledAlertDays   int
	StalledProcessDays int
	DeadlineWindowDays int
	MaxEventsPerCase   int
	MaxOwnerResults    int
	Concurrency        int
}

// ScheduleConfig holds cron expressions for the server's built-in triggers.
// An empty expression disables that trigger.
type ScheduleConfig struct {
	AutoAssign string
	Alerts     string
}

// Config holds all configuration for the monitoring engine.
type Config struct {
	DatabaseURL string

	// Redis
	RedisURL    string
	AlertsQueue string

	Datajud  DatajudConfig
	Monitor  MonitorConfig
	Schedule ScheduleConfig

	// Server (job triggers, health, metrics)
	Port int
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	DatabaseURL string `yaml:"database_url"`
	Redis       struct {
		URL    string `yaml:"url"`
		Queues struct {
			Alerts string `yaml:"alerts"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Datajud struct {
		BaseURL        string   `yaml:"base_url"`
		APIKey         string   `yaml:"api_key"`
		Timeout        string   `yaml:"timeout"`
		PageSize       int      `yaml:"page_size"`
		MaxSystems     int      `yaml:"max_systems"`
		FallbackCourts []string `yaml:"fallback_courts"`
	} `yaml:"datajud"`
	Monitor struct {
		TerminalStatuses   []string `yaml:"terminal_statuses"`
		CriticalStaleDays  int      `yaml:"critical_stale_days"`
		StalledAlertDays   int      `yaml:"stalled_alert_days"`
		StalledProcessDays int      `yaml:"stalled_process_days"`
		DeadlineWindowDays int      `yaml:"deadline_window_days"`
		MaxEventsPerCase   int      `yaml:"max_events_per_case"`
		MaxOwnerResults    int      `yaml:"max_owner_results"`
		Concurrency        int      `yaml:"concurrency"`
	} `yaml:"monitor"`
	Schedule struct {
		AutoAssign *string `yaml:"auto_assign"`
		Alerts     *string `yaml:"alerts"`
	} `yaml:"schedule"`
	Port int `yaml:"port"`
}

// Defaults applied when neither YAML nor environment sets a value.
var (
	DefaultTerminalStatuses = []string{"archived", "cancelled", "closed"}
	DefaultFallbackCourts   = []string{"tjsp", "tjrj", "tjmg", "trf3", "trt2"}
)

const (
	defaultDatajudURL = "https://api-publica.datajud.cnj.jus.br"
	defaultSchedule   = "0 */6 * * *"
	defaultAlerts     = "0 7 * * *"
)

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. A missing config file is
// not an error: everything can come from the environment.
func Load() (*Config, error) {
	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err) && os.Getenv("CONFIG_PATH") == "":
		// No file at the default location; env only.
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	return fromRaw(raw)
}

// fromRaw merges the YAML values with environment overrides and defaults.
func fromRaw(raw rawConfig) (*Config, error) {
	timeout := envOrDefaultDuration("DATAJUD_TIMEOUT", 15*time.Second)
	if raw.Datajud.Timeout != "" {
		d, err := time.ParseDuration(raw.Datajud.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parse datajud.timeout %q: %w", raw.Datajud.Timeout, err)
		}
		timeout = d
	}

	cfg := &Config{
		DatabaseURL: firstNonEmpty(raw.DatabaseURL, os.Getenv("DATABASE_URL")),
		RedisURL:    firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		AlertsQueue: firstNonEmpty(raw.Redis.Queues.Alerts, envOrDefault("ALERTS_QUEUE", "alerts")),
		Datajud: DatajudConfig{
			BaseURL:        firstNonEmpty(raw.Datajud.BaseURL, envOrDefault("DATAJUD_BASE_URL", defaultDatajudURL)),
			APIKey:         firstNonEmpty(raw.Datajud.APIKey, os.Getenv("DATAJUD_API_KEY")),
			Timeout:        timeout,
			PageSize:       firstPositive(raw.Datajud.PageSize, envOrDefaultInt("DATAJUD_PAGE_SIZE", 100)),
			MaxSystems:     firstPositive(raw.Datajud.MaxSystems, envOrDefaultInt("DATAJUD_MAX_SYSTEMS", 4)),
			FallbackCourts: firstNonEmptyList(raw.Datajud.FallbackCourts, envList("DATAJUD_FALLBACK_COURTS"), DefaultFallbackCourts),
		},
		Monitor: MonitorConfig{
			TerminalStatuses:   firstNonEmptyList(raw.Monitor.TerminalStatuses, envList("TERMINAL_STATUSES"), DefaultTerminalStatuses),
			CriticalStaleDays:  firstPositive(raw.Monitor.CriticalStaleDays, envOrDefaultInt("CRITICAL_STALE_DAYS", 60)),
			StalledAlertDays:   firstPositive(raw.Monitor.StalledAlertDays, envOrDefaultInt("STALLED_ALERT_DAYS", 15)),
			StalledProcessDays: firstPositive(raw.Monitor.StalledProcessDays, envOrDefaultInt("STALLED_PROCESS_DAYS", 30)),
			DeadlineWindowDays: firstPositive(raw.Monitor.DeadlineWindowDays, envOrDefaultInt("DEADLINE_WINDOW_DAYS", 3)),
			MaxEventsPerCase:   firstPositive(raw.Monitor.MaxEventsPerCase, envOrDefaultInt("MAX_EVENTS_PER_CASE", 50)),
			MaxOwnerResults:    firstPositive(raw.Monitor.MaxOwnerResults, envOrDefaultInt("MAX_OWNER_RESULTS", 20)),
			Concurrency:        firstPositive(raw.Monitor.Concurrency, envOrDefaultInt("SWEEP_CONCURRENCY", 4)),
		},
		Schedule: ScheduleConfig{
			AutoAssign: scheduleOrDefault(raw.Schedule.AutoAssign, "SCHEDULE_AUTO_ASSIGN", defaultSchedule),
			Alerts:     scheduleOrDefault(raw.Schedule.Alerts, "SCHEDULE_ALERTS", defaultAlerts),
		},
		Port: firstPositive(raw.Port, envOrDefaultInt("PORT", 8080)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database_url is required: set it in config.yaml or DATABASE_URL")
	}
	if cfg.Datajud.PageSize > 10000 {
		return nil, fmt.Errorf("datajud.page_size %d exceeds the upstream maximum of 10000", cfg.Datajud.PageSize)
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// envList splits a comma-separated environment variable.
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// scheduleOrDefault distinguishes an explicitly empty YAML value (disabled)
// from an absent one.
func scheduleOrDefault(yamlValue *string, envKey, fallback string) string {
	if yamlValue != nil {
		return strings.TrimSpace(*yamlValue)
	}
	if v, ok := os.LookupEnv(envKey); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyList(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

func firstPositive(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
