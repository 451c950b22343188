// Package config loads the engine's tunable constants from a TOML file.
//
// Configuration loading is a named out-of-scope collaborator (spec.md §1):
// this package intentionally does no hot-reload, no remote config source,
// and no schema beyond the flat set of constants the engine needs.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Engine holds every implementation-chosen constant spec.md §6 leaves open,
// plus the standard RRC timer durations.
type Engine struct {
	// MaxFoundPLMNs bounds PLMN-search accumulation (spec.md §4.9).
	MaxFoundPLMNs int `toml:"max_found_plmns"`
	// MaxNeighbours bounds the neighbour set size (spec.md §3).
	MaxNeighbours int `toml:"max_neighbours"`

	// CellSelectionRSRPThreshold is the TS 36.304 §5.2 S-criterion RSRP
	// gate cell-selection and cell-reselection apply (spec.md §4.8's
	// cell_selection_criteria).
	CellSelectionRSRPThreshold float64 `toml:"cell_selection_rsrp_threshold_dbm"`

	// SIBSearchTimeoutMS is the overall si_acq_timeout (spec.md §4.6).
	SIBSearchTimeoutMS int `toml:"sib_search_timeout_ms"`
	// CellReselectionPeriodMS paces the self-rearming reselector (spec.md §4.13).
	CellReselectionPeriodMS int `toml:"cell_reselection_period_ms"`
	// RLCFlushTimeoutMS bounds go-idle's wait for SRB flush (spec.md §4.12).
	RLCFlushTimeoutMS int `toml:"rlc_flush_timeout_ms"`

	// T300MS through T311MS are the standard RRC timers (spec.md GLOSSARY).
	T300MS int `toml:"t300_ms"`
	T301MS int `toml:"t301_ms"`
	T304MS int `toml:"t304_ms"`
	T310MS int `toml:"t310_ms"`
	T311MS int `toml:"t311_ms"`
}

// Default returns the engine's built-in defaults, used when a config file
// omits a field or is absent entirely.
func Default() Engine {
	return Engine{
		MaxFoundPLMNs:              16,
		MaxNeighbours:              8,
		CellSelectionRSRPThreshold: -110.0,
		SIBSearchTimeoutMS:         20000,
		CellReselectionPeriodMS: 1000,
		RLCFlushTimeoutMS:       2000,
		T300MS:                  1000,
		T301MS:                  1000,
		T304MS:                  1000,
		T310MS:                  1000,
		T311MS:                  10000,
	}
}

// Load reads and validates an Engine config from a TOML file at path,
// filling any zero-valued field from Default.
func Load(path string) (Engine, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Engine{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return Engine{}, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Engine) {
	d := Default()
	if cfg.MaxFoundPLMNs == 0 {
		cfg.MaxFoundPLMNs = d.MaxFoundPLMNs
	}
	if cfg.MaxNeighbours == 0 {
		cfg.MaxNeighbours = d.MaxNeighbours
	}
	if cfg.CellSelectionRSRPThreshold == 0 {
		cfg.CellSelectionRSRPThreshold = d.CellSelectionRSRPThreshold
	}
	if cfg.SIBSearchTimeoutMS == 0 {
		cfg.SIBSearchTimeoutMS = d.SIBSearchTimeoutMS
	}
	if cfg.CellReselectionPeriodMS == 0 {
		cfg.CellReselectionPeriodMS = d.CellReselectionPeriodMS
	}
	if cfg.RLCFlushTimeoutMS == 0 {
		cfg.RLCFlushTimeoutMS = d.RLCFlushTimeoutMS
	}
	if cfg.T300MS == 0 {
		cfg.T300MS = d.T300MS
	}
	if cfg.T301MS == 0 {
		cfg.T301MS = d.T301MS
	}
	if cfg.T304MS == 0 {
		cfg.T304MS = d.T304MS
	}
	if cfg.T310MS == 0 {
		cfg.T310MS = d.T310MS
	}
	if cfg.T311MS == 0 {
		cfg.T311MS = d.T311MS
	}
}

// Validate rejects non-positive constants that would make procedures never
// time out, or SI windows that could never be scheduled.
func Validate(cfg Engine) error {
	if cfg.MaxFoundPLMNs <= 0 {
		return fmt.Errorf("max_found_plmns must be positive")
	}
	if cfg.MaxNeighbours <= 0 {
		return fmt.Errorf("max_neighbours must be positive")
	}
	if cfg.SIBSearchTimeoutMS <= 0 {
		return fmt.Errorf("sib_search_timeout_ms must be positive")
	}
	for name, v := range map[string]int{
		"t300_ms": cfg.T300MS, "t301_ms": cfg.T301MS, "t304_ms": cfg.T304MS,
		"t310_ms": cfg.T310MS, "t311_ms": cfg.T311MS,
		"cell_reselection_period_ms": cfg.CellReselectionPeriodMS,
		"rlc_flush_timeout_ms":       cfg.RLCFlushTimeoutMS,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func (c Engine) T300() time.Duration { return time.Duration(c.T300MS) * time.Millisecond }
func (c Engine) T301() time.Duration { return time.Duration(c.T301MS) * time.Millisecond }
func (c Engine) T304() time.Duration { return time.Duration(c.T304MS) * time.Millisecond }
func (c Engine) T310() time.Duration { return time.Duration(c.T310MS) * time.Millisecond }
func (c Engine) T311() time.Duration { return time.Duration(c.T311MS) * time.Millisecond }
