package exchange

import (
	"time"

	"github.com/shopspring/decimal"

	"riskguard/pkg/utils"
)

// Config - параметры выбора и создания клиента биржи
type Config struct {
	BaseURL     string
	APIVersion  string
	Timeout     time.Duration // ReadTimeout HTTP клиента
	RateLimit   float64
	RateBurst   float64
	DemoMode    bool
	DemoBalance decimal.Decimal
}

// NewClient создаёт клиента по конфигурации: Demo в демо-режиме, иначе Kraken
func NewClient(cfg Config, logger *utils.Logger) Client {
	if cfg.DemoMode {
		return NewDemo(cfg.DemoBalance, logger)
	}

	httpCfg := DefaultHTTPClientConfig()
	if cfg.Timeout > 0 {
		httpCfg.ReadTimeout = cfg.Timeout
	}

	return NewKraken(KrakenConfig{
		BaseURL:    cfg.BaseURL,
		APIVersion: cfg.APIVersion,
		RateLimit:  cfg.RateLimit,
		RateBurst:  cfg.RateBurst,
	}, NewHTTPClient(httpCfg), logger)
}
