package config

import (
	"fmt"
	"strings"
)

// Validate checks high-impact runtime configuration constraints.
func (c Config) Validate() error {
	level := strings.ToLower(strings.TrimSpace(c.LogLevel))
	switch level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}

	if c.Engine.BlockTime <= 0 {
		return fmt.Errorf("engine.block_time must be > 0, got %s", c.Engine.BlockTime)
	}
	if c.Schedule.CloseCron == "" {
		return fmt.Errorf("schedule.close_cron must be set")
	}
	if c.Schedule.ExecuteCron == "" {
		return fmt.Errorf("schedule.execute_cron must be set")
	}

	seen := make(map[uint64]bool, len(c.Pools))
	for i, p := range c.Pools {
		if seen[p.ID] {
			return fmt.Errorf("pools[%d]: duplicate pool id %d", i, p.ID)
		}
		seen[p.ID] = true
		if p.MinEpochTime < 0 || p.MaxNAVAge < 0 {
			return fmt.Errorf("pools[%d]: negative durations are not allowed", i)
		}
		if len(p.Tranches) == 0 {
			return fmt.Errorf("pools[%d]: at least one tranche is required", i)
		}
		for j, t := range p.Tranches {
			switch t.Type {
			case "residual", "non_residual":
			default:
				return fmt.Errorf("pools[%d].tranches[%d]: type must be residual or non_residual, got %q", i, j, t.Type)
			}
			if t.APR < 0 {
				return fmt.Errorf("pools[%d].tranches[%d]: apr must be >= 0, got %f", i, j, t.APR)
			}
			if t.MinRiskBuffer < 0 || t.MinRiskBuffer > 1 {
				return fmt.Errorf("pools[%d].tranches[%d]: min_risk_buffer must be within [0,1], got %f", i, j, t.MinRiskBuffer)
			}
		}
	}
	return nil
}
