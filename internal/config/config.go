// Package config loads the exchange's configuration record. Values are read
// once at startup from an optional YAML file and then overridden by
// environment variables; nothing downstream reads the environment directly
// (spec.md §9 design note: "global mutable state ... is a configuration
// record constructed at startup").
package config

import (
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// Config is the full set of knobs spec.md §6 names, plus the ambient
// additions SPEC_FULL.md §4.1/§6 call for.
type Config struct {
	Port                   int     `yaml:"port"`
	SpectatorPort          int     `yaml:"spectator_port"`
	WorkerStakePct         float64 `yaml:"worker_stake_pct"`
	WorkerSlashPct         float64 `yaml:"worker_slash_pct"`
	NegotiationMaxRounds   int     `yaml:"negotiation_max_rounds"`
	DatabaseURL            string  `yaml:"database_url"`
	RedisURL               string  `yaml:"redis_url"`
	GithubWebhookSecret    string  `yaml:"github_webhook_secret"`
	GHPayOn                string  `yaml:"gh_pay_on"`
	StartingCredits        int64   `yaml:"starting_credits"`
	AuthTimeoutSeconds     int     `yaml:"auth_timeout_seconds"`
	DefaultDeadlineSeconds int64   `yaml:"default_deadline_seconds"`
	AuditGRPCAddr          string  `yaml:"audit_grpc_addr"`
	ProtocolVersion        int     `yaml:"protocol_version"`
}

// Default returns the configuration with every spec.md §6 default applied.
func Default() *Config {
	return &Config{
		Port:                   8787,
		SpectatorPort:          8790,
		WorkerStakePct:         0.05,
		WorkerSlashPct:         0.5,
		NegotiationMaxRounds:   3,
		DatabaseURL:            "",
		RedisURL:               "",
		GithubWebhookSecret:    "",
		GHPayOn:                "checks_success",
		StartingCredits:        1000,
		AuthTimeoutSeconds:     30,
		DefaultDeadlineSeconds: 900,
		AuditGRPCAddr:          "",
		ProtocolVersion:        1,
	}
}

// Load builds the effective config: defaults, then an optional YAML file at
// path (if non-empty and present), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, err
			}
			slog.Info("loaded config file", "path", path)
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Port = getEnvInt("SYNAPSE_PORT", c.Port)
	c.SpectatorPort = getEnvInt("SYNAPSE_SPECTATOR_PORT", c.SpectatorPort)
	c.WorkerStakePct = getEnvFloat("SYNAPSE_WORKER_STAKE_PCT", c.WorkerStakePct)
	c.WorkerSlashPct = getEnvFloat("SYNAPSE_WORKER_SLASH_PCT", c.WorkerSlashPct)
	c.NegotiationMaxRounds = getEnvInt("SYNAPSE_NEGOTIATION_MAX_ROUNDS", c.NegotiationMaxRounds)
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.GithubWebhookSecret = getEnv("GITHUB_WEBHOOK_SECRET", c.GithubWebhookSecret)
	c.GHPayOn = getEnv("SYNAPSE_GH_PAY_ON", c.GHPayOn)
	c.StartingCredits = int64(getEnvInt("SYNAPSE_STARTING_CREDITS", int(c.StartingCredits)))
	c.AuthTimeoutSeconds = getEnvInt("SYNAPSE_AUTH_TIMEOUT_SECONDS", c.AuthTimeoutSeconds)
	c.DefaultDeadlineSeconds = int64(getEnvInt("SYNAPSE_DEFAULT_DEADLINE_SECONDS", int(c.DefaultDeadlineSeconds)))
	c.AuditGRPCAddr = getEnv("SYNAPSE_AUDIT_GRPC_ADDR", c.AuditGRPCAddr)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
