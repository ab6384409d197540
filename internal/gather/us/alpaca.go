package us

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/12Lemon123456/vene-quant/internal/config"
	"github.com/12Lemon123456/vene-quant/internal/domain"
	"github.com/12Lemon123456/vene-quant/internal/gather"
	"github.com/12Lemon123456/vene-quant/internal/store"
	"github.com/12Lemon123456/vene-quant/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ gather.Gatherer = (*DailyBarGatherer)(nil)
var _ BarFetcher = (*alpacaFetcher)(nil)

// BarFetcher downloads daily bars for one symbol.
type BarFetcher interface {
	FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// ---------------------------------------------------------------------------
// DailyBarGatherer
// ---------------------------------------------------------------------------

// DailyBarGatherer downloads split- and dividend-adjusted daily bars for a
// configured symbol list and writes them to a BarStore. Progress is tracked
// per symbol so reruns only fetch what is missing.
type DailyBarGatherer struct {
	fetcher     BarFetcher
	store       store.BarStore
	symbols     []string
	startDate   string
	maxAttempts int
	workers     int
	limiter     *util.RateLimiter
	progressDir string
	refresh     bool

	apiKey    string
	apiSecret string
	baseURL   string // trading API for the calendar; empty falls back to weekdays

	end        time.Time // fixed end date; zero resolves it at run time
	retryDelay time.Duration
	log        *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer for the given Alpaca
// account and job settings. progressDir holds the resume state.
func NewDailyBarGatherer(ac config.Alpaca, job config.GatherJobConfig, s store.BarStore, progressDir string) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    ac.APIKey,
		APISecret: ac.APISecret,
	}
	if ac.DataURL != "" {
		opts.BaseURL = ac.DataURL
	}
	feed := ac.Feed
	if feed == "" {
		feed = "iex"
	}

	return &DailyBarGatherer{
		fetcher:     &alpacaFetcher{client: marketdata.NewClient(opts), feed: feed},
		store:       s,
		symbols:     normalizeSymbols(job.Symbols),
		startDate:   job.StartDate,
		maxAttempts: max(job.MaxAttempts, 1),
		workers:     max(job.Workers, 1),
		limiter:     util.NewRateLimiter(job.RateLimitPerMin),
		progressDir: progressDir,
		refresh:     job.Refresh,
		apiKey:      ac.APIKey,
		apiSecret:   ac.APISecret,
		baseURL:     ac.BaseURL,
		retryDelay:  time.Second,
		log:         slog.Default().With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches bars for every configured symbol up to the latest finished
// trading day. A symbol that fails after all retries is logged and skipped;
// the joined failures are returned once every symbol has been tried.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("us-daily: no symbols configured")
	}
	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}

	end := g.resolveEnd()
	endStr := end.Format("2006-01-02")
	if end.Before(start) {
		return fmt.Errorf("us-daily: end %s before start %s", endStr, g.startDate)
	}

	tracker, err := newProgressTracker(g.progressDir)
	if err != nil {
		return fmt.Errorf("creating progress tracker: %w", err)
	}

	var remaining []string
	for _, sym := range g.symbols {
		if g.refresh || !tracker.IsDone(sym, endStr) {
			remaining = append(remaining, sym)
		}
	}

	g.log.Info("starting us-daily",
		"endDate", endStr,
		"total", len(g.symbols),
		"remaining", len(remaining),
		"refresh", g.refresh,
	)
	if len(remaining) == 0 {
		return nil
	}

	symCh := make(chan string, len(remaining))
	for _, sym := range remaining {
		symCh <- sym
	}
	close(symCh)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		failures  []error
		totalBars atomic.Int64
		runStart  = time.Now()
	)

	workers := min(g.workers, len(remaining))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symCh {
				if ctx.Err() != nil {
					return
				}

				from := start
				if last := tracker.LastDate(sym); last != "" && !g.refresh {
					if t, err := time.Parse("2006-01-02", last); err == nil && t.After(start) {
						from = t.AddDate(0, 0, 1)
					}
				}

				n, err := g.gatherSymbol(ctx, sym, gather.DateRange{Start: from, End: end})
				if err != nil {
					g.log.Error("symbol failed", "symbol", sym, "err", err)
					mu.Lock()
					failures = append(failures, fmt.Errorf("%s: %w", sym, err))
					mu.Unlock()
					continue
				}
				if err := tracker.MarkDone(sym, endStr); err != nil {
					g.log.Error("marking progress failed", "symbol", sym, "err", err)
				}
				totalBars.Add(int64(n))

				g.log.Info("symbol done",
					"symbol", sym,
					"bars", n,
					"from", from.Format("2006-01-02"),
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	g.log.Info("complete",
		"bars", totalBars.Load(),
		"failed", len(failures),
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return errors.Join(failures...)
}

// gatherSymbol fetches one symbol with rate limiting and retries, then
// writes whatever came back. It returns the number of bars written.
func (g *DailyBarGatherer) gatherSymbol(ctx context.Context, sym string, r gather.DateRange) (int, error) {
	var bars []domain.Bar
	err := util.Retry(ctx, g.maxAttempts, g.retryDelay, func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return util.Permanent(err)
		}
		var ferr error
		bars, ferr = g.fetcher.FetchDailyBars(ctx, sym, r.Start, r.End)
		return ferr
	})
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		g.log.Warn("no bars returned", "symbol", sym, "days", r.Days())
		return 0, nil
	}
	if err := g.store.WriteBars(ctx, bars); err != nil {
		return 0, fmt.Errorf("writing bars: %w", err)
	}
	return len(bars), nil
}

// resolveEnd picks the fixed end date, the calendar's latest finished
// session, or the previous weekday, in that order.
func (g *DailyBarGatherer) resolveEnd() time.Time {
	if !g.end.IsZero() {
		return g.end
	}
	if g.baseURL != "" && g.apiKey != "" {
		end, err := LatestFinishedTradingDay(g.apiKey, g.apiSecret, g.baseURL)
		if err == nil {
			return end
		}
		g.log.Warn("calendar lookup failed, using previous weekday", "err", err)
	}
	return PreviousWeekday(time.Now())
}

func normalizeSymbols(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ---------------------------------------------------------------------------
// Alpaca fetcher
// ---------------------------------------------------------------------------

type alpacaFetcher struct {
	client *marketdata.Client
	feed   string
}

// FetchDailyBars fetches adjusted daily bars for a single symbol.
func (f *alpacaFetcher) FetchDailyBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	alpacaBars, err := f.client.GetBars(symbol, marketdata.GetBarsRequest{
		TimeFrame:  marketdata.OneDay,
		Start:      start,
		End:        end.AddDate(0, 0, 1),
		Feed:       marketdata.Feed(f.feed),
		Adjustment: marketdata.All,
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars: %w", err)
	}

	bars := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		bars = append(bars, domain.Bar{
			Symbol:     strings.ToUpper(symbol),
			Timestamp:  ab.Timestamp.UTC(),
			Open:       ab.Open,
			High:       ab.High,
			Low:        ab.Low,
			Close:      ab.Close,
			Volume:     int64(ab.Volume),
			TradeCount: int64(ab.TradeCount),
			VWAP:       ab.VWAP,
		})
	}
	return bars, nil
}
