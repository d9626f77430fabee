package service

import (
	"context"
	"fmt"
	"time"

	"riskguard/internal/exchange"
	"riskguard/internal/models"
)

// DefaultExchangeTimeout - предел одного вызова биржи под мьютексом аккаунта
const DefaultExchangeTimeout = 10 * time.Second

// decryptCredentials расшифровывает ключи аккаунта для вызова биржи
func decryptCredentials(cipher CredentialCipher, acc *models.Account) (exchange.Credentials, error) {
	apiKey, err := cipher.Decrypt(acc.APIKey)
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("decrypt api key: %w", err)
	}

	privateKey, err := cipher.Decrypt(acc.PrivateKey)
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("decrypt private key: %w", err)
	}

	return exchange.Credentials{APIKey: apiKey, PrivateKey: privateKey}, nil
}

// exchangeContext ограничивает вызов биржи по времени
func exchangeContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultExchangeTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
