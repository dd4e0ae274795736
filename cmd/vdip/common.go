package main

import (
	"database/sql"
	"fmt"

	"github.com/intentlab/vdip/internal/config"
	"github.com/intentlab/vdip/internal/db"
	"github.com/intentlab/vdip/internal/llm"
	"github.com/intentlab/vdip/internal/pipeline"
	"github.com/intentlab/vdip/internal/registry"
	"github.com/intentlab/vdip/internal/sandbox"
	"github.com/intentlab/vdip/internal/topology"
	"github.com/intentlab/vdip/internal/translate"
	"github.com/intentlab/vdip/internal/verify"
)

func openStore(cfg config.Config) (*registry.Store, func(), error) {
	database, err := db.Open(cfg.Registry.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open registry: %w", err)
	}
	closeFn := func() { closeDB(database) }
	return registry.NewStore(database), closeFn, nil
}

func closeDB(database *sql.DB) {
	_ = database.Close()
}

// buildManager assembles the full pipeline: store, sandbox pool, translation
// engine over the configured completion service, and the session manager.
func buildManager(cfg config.Config) (*pipeline.Manager, func(), error) {
	store, closeStore, err := openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	completer, err := llm.NewClient(llm.Config{
		Model:     cfg.LLM.Model,
		BaseURL:   cfg.LLM.BaseURL,
		APIKeyEnv: cfg.LLM.APIKeyEnv,
		Timeout:   cfg.LLM.Timeout(),
	}, nil)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	resolver := topology.NewResolver(cfg.Sandbox.TopologyDir)
	pool := sandbox.NewPool(resolver, cfg.Sandbox.PoolSize, cfg.Sandbox.AcquireTimeout())
	engine := translate.NewEngine(completer, cfg.Budgets.SchemaRetries, cfg.LLM.Timeout())
	orch := pipeline.NewOrchestrator(engine, verify.NewEngine(), store)
	manager := pipeline.NewManager(orch, pool, resolver, store, cfg.Verify, cfg.Budgets)

	closeFn := func() {
		manager.Close()
		closeStore()
	}
	return manager, closeFn, nil
}
