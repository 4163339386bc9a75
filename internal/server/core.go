// Package server wires every core component into the single bundled
// state value the CLI and any future transport layer build on (spec §9
// "Global state"). It owns nothing of its own beyond construction order
// and shutdown.
package server

import (
	"context"
	"fmt"

	"github.com/entanglement/entanglement/internal/changebus"
	"github.com/entanglement/entanglement/internal/chunkindex"
	"github.com/entanglement/entanglement/internal/conflict"
	"github.com/entanglement/entanglement/internal/config"
	"github.com/entanglement/entanglement/internal/gc"
	"github.com/entanglement/entanglement/internal/observability"
	"github.com/entanglement/entanglement/internal/packstore"
	"github.com/entanglement/entanglement/internal/selective"
	"github.com/entanglement/entanglement/internal/sharetoken"
	"github.com/entanglement/entanglement/internal/store"
	"github.com/entanglement/entanglement/internal/syncengine"
	"github.com/entanglement/entanglement/internal/versiongraph"
)

// Core bundles every component Upload, Download, GC, and share-link
// handling need. A transport layer (HTTP, gRPC, CLI) is built on top of
// this, never the other way around.
type Core struct {
	Options *config.Options
	Log     *observability.Logger
	Metrics *observability.Metrics

	DB       *store.DB
	Pack     *packstore.Store
	Chunks   *chunkindex.Index
	Graph    *versiongraph.Graph
	Bus      *changebus.Bus
	Conflict *conflict.Detector
	Selective *selective.Store
	Shares   *sharetoken.Registry
	GC       *gc.Collector
	Sync     *syncengine.Engine
}

// New constructs a Core from validated options. visible controls which
// principal sees which change-bus event; pass nil to deliver every event
// to every subscriber (single-tenant deployments).
func New(opts *config.Options, visible changebus.VisibilityFunc) (*Core, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("validate options: %w", err)
	}

	log := observability.NewLogger("entanglementd", "dev", nil)
	metrics := observability.NewMetrics()

	db, err := store.Open(opts.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pack, err := packstore.NewWithSealThreshold(opts.StorageBase, db, opts.ContainerSealBytes)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open packstore: %w", err)
	}

	chunks := chunkindex.New(db, pack, opts.ChunkCacheCapacity)
	graph := versiongraph.New(db, chunks)
	bus := changebus.New(opts.ChangeBusBuffer, visible)
	conflicts := conflict.New(db, graph)
	sel := selective.NewStore(db)
	shares := sharetoken.New(db)
	collector := gc.NewWithOptions(db, pack, opts.GCThreshold, opts.GCBatchSize)
	engine := syncengine.New(db, graph, chunks, bus, sel, conflicts)

	return &Core{
		Options:   opts,
		Log:       log,
		Metrics:   metrics,
		DB:        db,
		Pack:      pack,
		Chunks:    chunks,
		Graph:     graph,
		Bus:       bus,
		Conflict:  conflicts,
		Selective: sel,
		Shares:    shares,
		GC:        collector,
		Sync:      engine,
	}, nil
}

// Close releases the database and packfile handles. It does not stop any
// in-flight change-bus subscriptions; callers should cancel those first.
func (c *Core) Close() error {
	if err := c.Pack.Close(); err != nil {
		return fmt.Errorf("close packstore: %w", err)
	}
	if err := c.DB.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// RunGC executes one garbage collection pass and records its outcome in
// the metrics (spec §4.12).
func (c *Core) RunGC(ctx context.Context) (gc.Result, error) {
	res, err := c.GC.Run(ctx)
	if err != nil {
		return res, err
	}
	c.Metrics.GCChunksReclaimedTotal.Add(float64(res.ChunksReclaimed))
	c.Metrics.GCContainersCompactedTotal.Add(float64(res.ContainersCompacted))
	return res, nil
}
