package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	// ChooserBest keeps the single largest discount per item and lane.
	ChooserBest = "best"
	// ChooserAll stacks every discount computed for an item in a lane.
	ChooserAll = "all"
)

// EngineConfig tunes the promotion engine at runtime.
type EngineConfig struct {
	DiscountChooser        string `mapstructure:"discountChooser"`
	RestartCheckoutOnDrift bool   `mapstructure:"restartCheckoutOnDrift"`
	CodeBatchJoin          string `mapstructure:"codeBatchJoin"`
	CodeBatchLength        int    `mapstructure:"codeBatchLength"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		DiscountChooser:        ChooserBest,
		RestartCheckoutOnDrift: true,
		CodeBatchJoin:          "_",
		CodeBatchLength:        6,
	}
}

type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

// NewStaticEngineConfigHolder wraps a fixed config, used by tests and tools.
func NewStaticEngineConfigHolder(cfg EngineConfig) *EngineConfigHolder {
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewEngineConfigHolder() (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("promotions")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/promotions")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PROMOTIONS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	v.SetDefault("engine.discountChooser", defaults.DiscountChooser)
	v.SetDefault("engine.restartCheckoutOnDrift", defaults.RestartCheckoutOnDrift)
	v.SetDefault("engine.codeBatchJoin", defaults.CodeBatchJoin)
	v.SetDefault("engine.codeBatchLength", defaults.CodeBatchLength)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg := normalizeEngineConfig(readEngineConfig(v))
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticEngineConfigHolder(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated := normalizeEngineConfig(readEngineConfig(v))
			if err := validateEngineConfig(updated); err != nil {
				log.Printf("[engine-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[engine-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

// readEngineConfig reads key by key so defaults and env overrides apply to
// every setting a partial file leaves out.
func readEngineConfig(v *viper.Viper) EngineConfig {
	return EngineConfig{
		DiscountChooser:        v.GetString("engine.discountChooser"),
		RestartCheckoutOnDrift: v.GetBool("engine.restartCheckoutOnDrift"),
		CodeBatchJoin:          v.GetString("engine.codeBatchJoin"),
		CodeBatchLength:        v.GetInt("engine.codeBatchLength"),
	}
}

func (h *EngineConfigHolder) Get() EngineConfig {
	if h == nil {
		return DefaultEngineConfig()
	}
	cfg, ok := h.current.Load().(EngineConfig)
	if !ok {
		return DefaultEngineConfig()
	}
	return cfg
}

func normalizeEngineConfig(cfg EngineConfig) EngineConfig {
	cfg.DiscountChooser = strings.ToLower(strings.TrimSpace(cfg.DiscountChooser))
	if cfg.DiscountChooser == "" {
		cfg.DiscountChooser = ChooserBest
	}
	if cfg.CodeBatchLength == 0 {
		cfg.CodeBatchLength = DefaultEngineConfig().CodeBatchLength
	}
	return cfg
}

func validateEngineConfig(cfg EngineConfig) error {
	switch cfg.DiscountChooser {
	case ChooserBest, ChooserAll:
	default:
		return errors.New("engine.discountChooser must be one of best, all")
	}
	if cfg.CodeBatchLength < 4 || cfg.CodeBatchLength > 32 {
		return errors.New("engine.codeBatchLength must be between 4 and 32")
	}
	return nil
}
