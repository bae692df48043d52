package main

import (
	"fmt"

	"go.uber.org/zap"

	"mei-diagnostic/internal/gateway"
	"mei-diagnostic/internal/usecase"
)

// newEngine wires the engine from the loaded configuration. The returned
// function closes the snapshot database.
func newEngine() (*usecase.DiagnosticUseCase, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	estimator, err := cfg.Estimator.Build()
	if err != nil {
		return nil, nil, err
	}
	strategies, err := cfg.Upstream.BuildStrategies(gateway.NewHTTPClient(cfg.Upstream.Timeout))
	if err != nil {
		return nil, nil, err
	}

	repo, err := gateway.NewSQLiteSnapshotRepository(cfg.Store.Path)
	if err != nil {
		return nil, nil, err
	}

	transport := usecase.NewTransport(logger, strategies...)
	store := usecase.NewSnapshotStore(repo, logger)
	engine := usecase.NewDiagnosticUseCase(usecase.DiagnosticConfig{
		WebhookURL:    cfg.Upstream.WebhookURL,
		HeaderName:    cfg.Upstream.HeaderName,
		IdentityField: cfg.Upstream.IdentityField,
		Estimator:     estimator,
	}, transport, store, logger)

	closeFn := func() {
		if err := repo.Close(); err != nil {
			logger.Warn("could not close snapshot database", zap.Error(err))
		}
	}
	return engine, closeFn, nil
}
