package config

import (
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/trancheworks/pool-engine/internal/pool"
)

const secondsPerYear = 365 * 24 * 60 * 60

type Config struct {
	LogLevel string `yaml:"log_level"`

	Engine   EngineConfig   `yaml:"engine"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Telegram TelegramConfig `yaml:"telegram"`

	Pools []PoolConfig `yaml:"pools"`
}

type EngineConfig struct {
	// ChallengeBlocks is the number of blocks a winning submission
	// stays challengeable before the epoch may be executed.
	ChallengeBlocks uint64 `yaml:"challenge_blocks"`
	// BlockTime maps wall-clock time onto block numbers.
	BlockTime time.Duration `yaml:"block_time"`
}

type ScheduleConfig struct {
	CloseCron   string `yaml:"close_cron"`
	ExecuteCron string `yaml:"execute_cron"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type PoolConfig struct {
	ID           uint64          `yaml:"id"`
	MaxReserve   uint64          `yaml:"max_reserve"`
	MinEpochTime time.Duration   `yaml:"min_epoch_time"`
	MaxNAVAge    time.Duration   `yaml:"max_nav_age"`
	Tranches     []TrancheConfig `yaml:"tranches"`
}

type TrancheConfig struct {
	// Type is "residual" or "non_residual".
	Type string `yaml:"type"`
	// APR is the yearly interest rate of a non-residual tranche,
	// e.g. 0.10 for ten percent.
	APR float64 `yaml:"apr"`
	// MinRiskBuffer is the minimum subordination ratio, in [0,1].
	MinRiskBuffer float64 `yaml:"min_risk_buffer"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Engine: EngineConfig{
			ChallengeBlocks: 30,
			BlockTime:       12 * time.Second,
		},
		Schedule: ScheduleConfig{
			CloseCron:   "0 * * * * *",
			ExecuteCron: "30 * * * * *",
		},
		API: APIConfig{
			Enabled: true,
			Addr:    ":8080",
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("POOLD_LOG_LEVEL")); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("POOLD_API_ADDR")); v != "" {
		c.API.Addr = v
	}
	if v := os.Getenv("POOLD_API_ENABLED"); v != "" {
		c.API.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := strings.TrimSpace(os.Getenv("POOLD_DB_PATH")); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("POOLD_TG_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("POOLD_TG_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
}

// Parameters converts the pool timing settings to engine units.
func (p PoolConfig) Parameters() pool.PoolParameters {
	return pool.PoolParameters{
		MinEpochTime: uint64(p.MinEpochTime / time.Second),
		MaxNAVAge:    uint64(p.MaxNAVAge / time.Second),
	}
}

// TrancheInputs converts the configured tranches to engine inputs.
// Yearly rates become simple per-second rates over a 365 day year.
func (p PoolConfig) TrancheInputs() []pool.TrancheInput {
	inputs := make([]pool.TrancheInput, 0, len(p.Tranches))
	for _, t := range p.Tranches {
		in := pool.TrancheInput{Type: pool.Residual}
		if t.Type == "non_residual" {
			in.Type = pool.NonResidual
			in.InterestRatePerSec = decimal.NewFromInt(1).Add(
				decimal.NewFromFloat(t.APR).DivRound(decimal.NewFromInt(secondsPerYear), 27))
			in.MinRiskBuffer = decimal.NewFromFloat(t.MinRiskBuffer)
		}
		inputs = append(inputs, in)
	}
	return inputs
}
