package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/batch"
	"github.com/sells-group/enrich-cli/internal/config"
	"github.com/sells-group/enrich-cli/internal/extract"
	"github.com/sells-group/enrich-cli/internal/fetcher"
	"github.com/sells-group/enrich-cli/internal/resilience"
	"github.com/sells-group/enrich-cli/internal/scrape"
	"github.com/sells-group/enrich-cli/internal/search"
	"github.com/sells-group/enrich-cli/internal/store"
	"github.com/sells-group/enrich-cli/internal/table"
	anthropicpkg "github.com/sells-group/enrich-cli/pkg/anthropic"
	"github.com/sells-group/enrich-cli/pkg/jina"
	"github.com/sells-group/enrich-cli/pkg/notion"
	openrouterpkg "github.com/sells-group/enrich-cli/pkg/openrouter"
	"github.com/sells-group/enrich-cli/pkg/serpapi"
	"github.com/sells-group/enrich-cli/pkg/sheets"
)

// maxSourceBytes caps remote CSV downloads.
const maxSourceBytes = 50 << 20

// pipelineEnv holds the initialized clients and the orchestrator needed by
// the run and serve commands.
type pipelineEnv struct {
	Store        store.Store // may be nil
	Tables       table.Deps
	Orchestrator *batch.Orchestrator
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config, opens the run store and builds the search
// client, extraction engine and orchestrator. Callers should defer
// env.Close().
func initPipeline(ctx context.Context, opts ...batch.Option) (*pipelineEnv, error) {
	if err := cfg.Validate("run"); err != nil {
		return nil, err
	}

	tables, err := initTables()
	if err != nil {
		return nil, err
	}

	searcher, err := initSearch(cfg)
	if err != nil {
		return nil, err
	}

	engine, err := initExtract(cfg)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	batchOpts := []batch.Option{
		batch.WithConcurrency(cfg.Batch.Concurrency),
		batch.WithCancelGrace(time.Duration(cfg.Batch.CancelGraceSecs) * time.Second),
	}
	if cfg.Fetch.Enabled {
		batchOpts = append(batchOpts, batch.WithFetch(cfg.Fetch.TopN, cfg.Fetch.TopN))
	}
	batchOpts = append(batchOpts, opts...)

	return &pipelineEnv{
		Store:        st,
		Tables:       tables,
		Orchestrator: batch.New(searcher, engine, batchOpts...),
	}, nil
}

// initStore opens the configured run history store. It returns nil when
// history is disabled.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	return st, nil
}

// initTables builds the dependencies table locations need: remote
// download, Google Sheets and Notion clients. Sheets and Notion are only
// wired when credentials are configured.
func initTables() (table.Deps, error) {
	deps := table.Deps{
		Remote: fetcher.NewRemote(
			fetcher.HTTPOptions{UserAgent: "enrich-cli/1.0", Timeout: 60 * time.Second, MaxAttempts: 3},
			fetcher.FTPOptions{},
		),
		Stdin:            os.Stdin,
		Stdout:           os.Stdout,
		MaxDownloadBytes: maxSourceBytes,
	}

	if cfg.Sheets.CredentialsFile != "" {
		key, err := sheets.LoadServiceAccountKey(cfg.Sheets.CredentialsFile)
		if err != nil {
			return table.Deps{}, eris.Wrap(err, "init sheets")
		}
		tokens := sheets.NewServiceAccountTokenSource(key, cfg.Sheets.TokenURL, nil)
		deps.Sheets = sheets.NewClient(tokens, sheets.WithBaseURL(cfg.Sheets.BaseURL))
	} else {
		zap.L().Debug("sheets.credentials_file not set, spreadsheet locations disabled")
	}

	if cfg.Notion.Token != "" {
		deps.Notion = notion.NewClient(cfg.Notion.Token, notion.WithRateLimit(cfg.Notion.RateLimit))
	}
	return deps, nil
}

// initSearch builds the rate-limited search client for c.
func initSearch(c *config.Config) (*search.Client, error) {
	var serp serpapi.Client
	if c.SerpAPI.Key != "" {
		serp = serpapi.NewClient(c.SerpAPI.Key, serpapi.WithBaseURL(c.SerpAPI.BaseURL))
	}
	jinaClient := newJina(c)

	provider, err := search.NewProvider(c.Search.Provider, serp, jinaClient)
	if err != nil {
		return nil, eris.Wrap(err, "init search")
	}

	opts := []search.Option{
		search.WithMinInterval(time.Duration(c.Search.MinIntervalMs) * time.Millisecond),
		search.WithRetry(resilience.FromSearchConfig(c.Search)),
		search.WithBreaker(resilience.NewCircuitBreaker(c.Search.Provider,
			resilience.FromCircuitConfig(c.Search.BreakerThreshold, c.Search.BreakerResetSecs))),
		search.WithTimeout(time.Duration(c.Search.TimeoutSecs) * time.Second),
		search.WithMaxResults(c.Search.MaxResults),
	}
	if c.Fetch.Enabled {
		opts = append(opts, search.WithPageReader(newPageReader(c, jinaClient)))
	}
	return search.New(provider, opts...), nil
}

// newJina returns a Jina client when a key is configured.
func newJina(c *config.Config) jina.Client {
	if c.Jina.Key == "" {
		return nil
	}
	opts := []jina.Option{jina.WithBaseURL(c.Jina.BaseURL)}
	if c.Jina.SearchBaseURL != "" {
		opts = append(opts, jina.WithSearchBaseURL(c.Jina.SearchBaseURL))
	}
	return jina.NewClient(c.Jina.Key, opts...)
}

// newPageReader builds the page fetch chain: local HTTP first, then Jina
// Reader when enabled.
func newPageReader(c *config.Config, jc jina.Client) *scrape.Chain {
	scrapers := []scrape.Scraper{scrape.NewLocalScraper(time.Duration(c.Fetch.TimeoutSecs) * time.Second)}
	if c.Fetch.UseJina && jc != nil {
		scrapers = append(scrapers, scrape.NewJinaAdapter(jc))
	}
	matcher := scrape.NewPathMatcher(c.Fetch.ExcludePaths)
	zap.L().Debug("page fetch enabled",
		zap.Int("scrapers", len(scrapers)),
		zap.Strings("exclude", matcher.Patterns()),
	)
	return scrape.NewChain(matcher, scrapers...).WithMaxChars(c.Fetch.MaxChars)
}

// initExtract builds the extraction engine for the configured LLM provider.
func initExtract(c *config.Config) (*extract.Engine, error) {
	var (
		ac anthropicpkg.Client
		oc openrouterpkg.Client
	)
	if c.Anthropic.Key != "" {
		ac = anthropicpkg.NewClient(c.Anthropic.Key)
	}
	if c.OpenRouter.Key != "" {
		oc = openrouterpkg.NewClient(c.OpenRouter.Key, openrouterpkg.WithBaseURL(c.OpenRouter.BaseURL))
	}

	llm, err := extract.NewLLM(c.LLM.Provider, c.LLM.Model, ac, oc)
	if err != nil {
		return nil, eris.Wrap(err, "init llm")
	}
	scorer, err := extract.NewScorer(c.Extract.Confidence)
	if err != nil {
		return nil, eris.Wrap(err, "init scorer")
	}

	return extract.New(llm,
		extract.WithScorer(scorer),
		extract.WithRetry(resilience.FromLLMConfig(c.LLM)),
		extract.WithTimeout(time.Duration(c.LLM.TimeoutSecs)*time.Second),
		extract.WithGeneration(int(c.LLM.MaxTokens), c.LLM.Temperature),
		extract.WithContextLimits(c.Extract.MaxCharsPerResult, c.Extract.MaxContextChars),
		extract.WithVerify(c.Extract.Verify),
	), nil
}
