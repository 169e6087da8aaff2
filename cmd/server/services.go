package main

import (
	"codeberg.org/modelrelay/relay/internal/backend"
	"codeberg.org/modelrelay/relay/internal/config"
	"codeberg.org/modelrelay/relay/internal/core"
	"codeberg.org/modelrelay/relay/internal/logger"
	"codeberg.org/modelrelay/relay/internal/secrets"
)

// InitializeClients wires a client for every registry entry with a
// resolvable credential. Entries left unwired stay routable; dispatch
// records them as transient failures so the chain moves on.
func InitializeClients(cfg *config.Config, registry *core.Registry, creds secrets.Provider) map[string]backend.Client {
	clients := make(map[string]backend.Client, registry.Len())

	for _, desc := range registry.All() {
		credential, err := creds.Credential(desc)
		if err != nil {
			logger.Warn("backend left unwired, credential unavailable",
				"backend_id", desc.ID,
				"provider", desc.Provider,
				"error", err,
			)

			continue
		}

		client, err := backend.New(desc, credential, backend.Options{
			CallTimeout: cfg.Limits.BackendTimeout,
		})
		if err != nil {
			logger.Warn("backend left unwired",
				"backend_id", desc.ID,
				"provider", desc.Provider,
				"error", err,
			)

			continue
		}

		clients[desc.ID] = client

		logger.Info("backend client wired",
			"backend_id", desc.ID,
			"provider", desc.Provider,
			"model", desc.Model,
		)
	}

	return clients
}
