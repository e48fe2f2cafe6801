package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"openclaw/hub/pkg/providers"
	"openclaw/hub/pkg/providers/anthropic"
	"openclaw/hub/pkg/providers/ollama"
	"openclaw/hub/pkg/providers/openai"
	"openclaw/hub/pkg/routing"
	"openclaw/hub/pkg/storage"
	"openclaw/hub/pkg/vault"
)

// Factory binds connections to provider adapters. The decrypted credential
// lives only inside the adapter's request-preparation closure; it is never
// stored on a struct field or logged.
type Factory struct {
	vault     *vault.Vault
	store     *storage.Store
	ollamaURL string
	logger    *slog.Logger
}

// NewFactory creates a factory. ollamaURL is the default local endpoint
// used when a connection carries no base URL of its own.
func NewFactory(v *vault.Vault, store *storage.Store, ollamaURL string, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{vault: v, store: store, ollamaURL: ollamaURL, logger: logger}
}

// Bind builds the adapter for one connection, decrypting its credential
// and scoping cost lookups to the connection.
func (f *Factory) Bind(conn *storage.Connection) (providers.Provider, error) {
	key, err := f.decrypt(conn)
	if err != nil {
		return nil, err
	}
	cost := providers.NewCostModel(f.rateLookup(conn.ID), f.logger)

	switch conn.Service {
	case routing.FamilyOpenAI:
		return openai.New(conn.Name, conn.BaseURL, key, cost), nil
	case routing.FamilyAnthropic:
		return anthropic.New(conn.Name, conn.BaseURL, key, cost), nil
	case routing.FamilyOllama:
		baseURL := conn.BaseURL
		if baseURL == "" {
			baseURL = f.ollamaURL
		}
		return ollama.New(conn.Name, baseURL), nil
	default:
		return nil, fmt.Errorf("unknown provider service %q on connection %d", conn.Service, conn.ID)
	}
}

func (f *Factory) decrypt(conn *storage.Connection) (string, error) {
	if conn.APIKeyEncrypted == "" {
		return "", nil
	}
	key, err := f.vault.Decrypt(conn.APIKeyEncrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential for connection %d: %w", conn.ID, err)
	}
	return key, nil
}

// rateLookup scopes CostRate to a connection: connection-specific rates
// win over the shared defaults.
func (f *Factory) rateLookup(connectionID int64) providers.RateLookup {
	return func(ctx context.Context, model string) (float64, float64, bool, error) {
		return f.store.CostRate(ctx, connectionID, model)
	}
}
