package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/kb-harvester/internal/config"
	"github.com/sells-group/kb-harvester/internal/harvest"
	"github.com/sells-group/kb-harvester/internal/kb"
	"github.com/sells-group/kb-harvester/internal/scorer"
	"github.com/sells-group/kb-harvester/internal/search"
	"github.com/sells-group/kb-harvester/internal/sector"
	"github.com/sells-group/kb-harvester/internal/store"
	"github.com/sells-group/kb-harvester/pkg/brave"
)

// kbEnv holds the store and rule table shared by every command.
type kbEnv struct {
	Store      store.Store
	Classifier *sector.Classifier
}

// Close releases the store.
func (e *kbEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the config for mode, opens and migrates the store, and
// loads the sector rules. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*kbEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	classifier, err := sector.Load(cfg.Harvest.RulesPath)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	zap.L().Debug("environment ready",
		zap.String("mode", mode),
		zap.String("driver", cfg.Store.Driver),
		zap.Int("sectors", len(classifier.Sectors())),
	)
	return &kbEnv{Store: st, Classifier: classifier}, nil
}

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		dsn := sc.DatabaseURL
		if dsn == "" {
			dsn = "kb.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, sc.MaxConns)
	case "badger":
		return store.NewBadger(sc.DatabaseURL)
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

func loadOpts() kb.LoadOpts {
	return kb.LoadOpts{PageSize: cfg.Harvest.LoadPageSize, MaxPages: cfg.Harvest.LoadMaxPages}
}

// initHarvester wires the search provider, throttle and scorer into a
// Harvester. One throttle is shared by every run of the process.
func initHarvester(env *kbEnv) (*harvest.Harvester, error) {
	scoring := cfg.Scorer
	if len(scoring.OfferingKeywords) == 0 {
		scoring.OfferingKeywords = scorer.DefaultScorerConfig().OfferingKeywords
	}
	if err := scorer.ValidateConfig(scoring); err != nil {
		return nil, err
	}

	var opts []brave.Option
	if cfg.Search.BaseURL != "" {
		opts = append(opts, brave.WithBaseURL(cfg.Search.BaseURL))
	}
	if cfg.Search.TimeoutSecs > 0 {
		opts = append(opts, brave.WithTimeout(time.Duration(cfg.Search.TimeoutSecs)*time.Second))
	}
	client := brave.NewClient(cfg.Search.Key, opts...)
	adapter := search.NewAdapter(client, search.NewThrottle(cfg.Search.RateLimit), search.Config{
		Country:    cfg.Search.Country,
		SearchLang: cfg.Search.SearchLang,
		MaxRetries: cfg.Search.MaxRetries,
	})
	sc := scorer.New(env.Classifier, scoring)
	return harvest.New(adapter, env.Store, env.Classifier, sc, cfg.Harvest, cfg.Search.Count), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(v), "encode output")
}
