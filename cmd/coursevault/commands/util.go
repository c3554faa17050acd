package commands

import (
	"fmt"

	"github.com/coursevault/coursevault/internal/logger"
	"github.com/coursevault/coursevault/pkg/config"
	"github.com/coursevault/coursevault/pkg/engine"
	"github.com/coursevault/coursevault/pkg/lifecycle"
	"github.com/coursevault/coursevault/pkg/lock"
	"github.com/coursevault/coursevault/pkg/session"
	"github.com/coursevault/coursevault/pkg/store"
	"github.com/coursevault/coursevault/pkg/transport"
)

// loadConfig loads the configuration and applies its logging settings.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	return cfg, nil
}

// openStore opens the state store from the configuration.
func openStore(cfg *config.Config) (*store.GORMStore, error) {
	st, err := store.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}
	return st, nil
}

// buildManager wires the full transfer stack. The caller owns the returned
// store and must close it.
func buildManager(cfg *config.Config) (*lifecycle.Manager, *store.GORMStore, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	client, err := transport.New(cfg.Vault.URL, transport.Options{
		ProxyURL: cfg.Vault.ProxyURL,
		Events:   st,
	})
	if err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("create vault client: %w", err)
	}

	auth := session.New(client, st, st, cfg.Vault.CredentialHash,
		cfg.Transfer.TransportRetries, cfg.Transfer.RequestTimeout)

	runLock := lock.New(st, st, cfg.Transfer.LockStaleness)

	manager := lifecycle.New(st, auth, engine.New(auth), runLock, lifecycle.Config{
		MaxAttempts:            cfg.Transfer.MaxAttempts,
		TransportRetries:       cfg.Transfer.TransportRetries,
		RequestTimeout:         cfg.Transfer.RequestTimeout,
		CompletionTimeout:      cfg.Transfer.CompletionTimeout,
		RunBudget:              cfg.Transfer.RunBudget,
		DeleteLocalAfterUpload: cfg.Transfer.DeleteLocalAfterUpload,
	})

	return manager, st, nil
}
