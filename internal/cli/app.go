package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/soyeahso/hotline/internal/agent"
	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/domain"
	"github.com/soyeahso/hotline/internal/extract"
	"github.com/soyeahso/hotline/internal/hooks"
	"github.com/soyeahso/hotline/internal/knowledge"
	"github.com/soyeahso/hotline/internal/llm"
	"github.com/soyeahso/hotline/internal/logging"
	"github.com/soyeahso/hotline/internal/plugin"
	"github.com/soyeahso/hotline/internal/plugin/notify"
	"github.com/soyeahso/hotline/internal/routing"
	"github.com/soyeahso/hotline/internal/store"
)

// app holds the wired components a command works with. Only the parts a
// command asks for are built.
type app struct {
	cfg config.Config
	log *logging.Logger

	db            *store.DB
	checkpoints   domain.CheckpointStore
	cases         domain.CaseStore
	notifications *store.NotificationStore
	approvals     *notify.Approvals
	reports       *store.TriageReportStore
	hooks         *hooks.Manager
	plugins       *plugin.Registry

	library *knowledge.Library
	service *agent.Service
	router  *routing.Router

	closers []func() error
}

// appOptions selects what openApp builds beyond the stores.
type appOptions struct {
	// Engines builds the generation client and the domain engines.
	Engines bool

	// Knowledge builds the per-domain retrieval indexes.
	Knowledge bool
}

// openApp wires stores, hooks and plugins, and optionally the conversation
// engines. The caller must call close.
func openApp(ctx context.Context, cfg config.Config, dbPath string, log *logging.Logger, opts appOptions) (*app, error) {
	a := &app{cfg: cfg, log: log, hooks: hooks.NewManager(log)}
	if err := a.open(ctx, dbPath, opts); err != nil {
		_ = a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context, dbPath string, opts appOptions) error {
	var err error
	cfg, log := a.cfg, a.log

	a.db, err = store.Open(dbPath, log)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.closers = append(a.closers, a.db.Close)

	a.checkpoints, err = store.OpenCheckpointStore(ctx, cfg.Checkpoint, a.db)
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	a.addCloser(a.checkpoints)

	a.cases, err = store.OpenCaseStore(ctx, cfg.Cases, a.db)
	if err != nil {
		return fmt.Errorf("opening case store: %w", err)
	}
	a.addCloser(a.cases)

	a.notifications = store.NewNotificationStore(a.db)
	a.approvals = notify.NewApprovals(a.notifications, a.cases, a.hooks, log)
	a.reports = store.NewTriageReportStore(a.db)

	a.plugins = plugin.NewRegistry(a.hooks, a.cases, log)
	if err := a.plugins.Register(notify.New(a.notifications)); err != nil {
		return err
	}
	if err := a.plugins.InitAll(ctx); err != nil {
		return fmt.Errorf("initializing plugins: %w", err)
	}
	a.closers = append(a.closers, func() error { a.plugins.CloseAll(); return nil })

	log.Debug().
		Str("checkpoints", backendName(cfg.Checkpoint.Backend)).
		Str("cases", backendName(cfg.Cases.Backend)).
		Msg("stores ready")

	if opts.Knowledge {
		if err := a.buildKnowledge(ctx); err != nil {
			return err
		}
	}
	if opts.Engines {
		a.buildEngines()
	}
	return nil
}

// addCloser registers the store's Close method, if it has one.
func (a *app) addCloser(v any) {
	switch c := v.(type) {
	case io.Closer:
		a.closers = append(a.closers, c.Close)
	case interface{ Close(context.Context) error }:
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return c.Close(ctx)
		})
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// buildKnowledge indexes the configured documents. Embeddings are cached in
// the database unless disabled. A missing embedder leaves retrieval
// unavailable; the retrieval tool reports that per call.
func (a *app) buildKnowledge(ctx context.Context) error {
	embedder, err := knowledge.NewEmbedder(ctx, a.cfg.Embedding)
	if err != nil {
		a.log.Warn().Err(err).Msg("no embedder available, knowledge retrieval disabled")
		return nil
	}
	if a.cfg.Knowledge.CacheEnabled() {
		embedder = knowledge.NewCachedEmbedder(embedder, store.NewEmbeddingCache(a.db))
	}
	lib := knowledge.NewLibraryFromConfig(embedder, a.cfg.Knowledge, a.log)
	if err := lib.BuildAll(ctx, paths.DataDir(a.cfg.Knowledge), a.cfg.Knowledge); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Warn().Err(err).Msg("some knowledge indexes failed to build")
	}
	a.library = lib
	return nil
}

// errNoProvider is returned when no LLM provider has credentials.
var errNoProvider = errors.New("no LLM provider configured (set llm.provider and its api key)")

// newLLMClient builds the generation client: the configured provider with
// its fallbacks behind it. Tests replace it.
var newLLMClient = func(cfg config.Config, log *logging.Logger) (llm.Client, error) {
	registry := llm.NewRegistryFromConfig(cfg.LLM, log)
	if len(registry.List()) == 0 {
		return nil, errNoProvider
	}
	return agent.NewFailoverClient(registry, cfg.LLM.Provider, cfg.LLM.Fallbacks, log), nil
}

// buildEngines creates one engine per domain over a shared client.
// Without any usable provider the service stays nil.
func (a *app) buildEngines() {
	client, err := newLLMClient(a.cfg, a.log)
	if err != nil {
		a.log.Warn().Err(err).Msg("conversations are disabled")
		return
	}
	extractor := extract.New(client, a.cfg.LLM.Model, a.log)
	opts := agent.OptionsFromConfig(a.cfg)

	var retriever agent.Retriever
	if a.library != nil {
		retriever = a.library
	}

	engines := []*agent.Engine{
		agent.NewEngine(agent.TriageConfig(), opts, client, a.checkpoints, a.hooks, a.log),
		agent.NewEngine(agent.FollowupConfig(a.cases), opts, client, a.checkpoints, a.hooks, a.log),
	}
	for _, d := range domain.Specialists {
		dc, err := agent.SpecialistConfig(d, retriever, extractor, a.cases)
		if err != nil {
			a.log.Error().Err(err).Str("domain", d.Slug()).Msg("skipping domain")
			continue
		}
		engines = append(engines, agent.NewEngine(dc, opts, client, a.checkpoints, a.hooks, a.log))
	}

	a.service = agent.NewService(a.cases, a.log, engines...)
	a.router = routing.NewRouter(a.service, a.reports, a.log)
	a.log.Info().
		Str("client", client.Name()).
		Int("engines", len(engines)).
		Msg("conversation engines ready")
}

// requireService returns the service or an error explaining why there is none.
func (a *app) requireService() (*agent.Service, error) {
	if a.service == nil {
		return nil, errNoProvider
	}
	return a.service, nil
}

func backendName(b string) string {
	if b == "" {
		return "sqlite"
	}
	return b
}
