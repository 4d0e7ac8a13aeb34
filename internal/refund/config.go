package refund

import "time"

// Config controls the refund worker loop.
type Config struct {
	PopTimeout       time.Duration
	StandardPriceKey string
	VideoPriceKey    string
	ErrorBackoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		PopTimeout:       10 * time.Second,
		StandardPriceKey: "keyword_unit_price",
		VideoPriceKey:    "video_keyword_unit_price",
		ErrorBackoff:     time.Second,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.PopTimeout <= 0 {
		c.PopTimeout = defaults.PopTimeout
	}
	if c.StandardPriceKey == "" {
		c.StandardPriceKey = defaults.StandardPriceKey
	}
	if c.VideoPriceKey == "" {
		c.VideoPriceKey = defaults.VideoPriceKey
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = defaults.ErrorBackoff
	}
	return c
}
