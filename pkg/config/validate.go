package config

import (
	"fmt"
	"net/url"
	"time"

	"websearch/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.UserAgent == "" {
		c.UserAgent = "Mozilla/5.0 (compatible; websearch/1.0)"
	}
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './state'")
		c.StateDir = "./state"
	}

	w, crawlErr := c.Crawl.validate()
	warnings = append(warnings, w...)
	if crawlErr != nil {
		return warnings, crawlErr
	}

	w, indexErr := c.Index.validate()
	warnings = append(warnings, w...)
	if indexErr != nil {
		return warnings, indexErr
	}

	warnings = append(warnings, c.Search.validate()...)
	return warnings, nil
}

func (c *CrawlConfig) validate() (warnings []string, err error) {
	if len(c.Seeds) == 0 {
		return warnings, fmt.Errorf("%w: crawl.seeds must not be empty", utils.ErrConfigValidation)
	}
	for _, seed := range c.Seeds {
		parsed, parseErr := url.ParseRequestURI(seed)
		if parseErr != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return warnings, fmt.Errorf("%w: invalid seed URL %q", utils.ErrConfigValidation, seed)
		}
	}

	if c.MaxGlobalWorkers <= 0 {
		warnings = append(warnings, "crawl.max_global_workers should be > 0, defaulting to 20")
		c.MaxGlobalWorkers = 20
	}
	if c.MaxTotalURLs <= 0 {
		warnings = append(warnings, "crawl.max_total_urls should be > 0, defaulting to 1000")
		c.MaxTotalURLs = 1000
	}
	if c.SaveChunkSize <= 0 {
		warnings = append(warnings, "crawl.save_chunk_size should be > 0, defaulting to 20")
		c.SaveChunkSize = 20
	}
	if c.MaxConcurrentPerHost <= 0 {
		warnings = append(warnings, "crawl.max_concurrent_per_host should be > 0, defaulting to 2")
		c.MaxConcurrentPerHost = 2
	}
	if c.DelayBetweenRequests < 0 {
		warnings = append(warnings, "crawl.delay_between_requests cannot be negative, setting to 0")
		c.DelayBetweenRequests = 0
	}
	if c.RequestTimeout <= 0 {
		warnings = append(warnings, "crawl.request_timeout should be > 0, defaulting to 15s")
		c.RequestTimeout = 15 * time.Second
	}
	if c.MaxRetries < 0 {
		warnings = append(warnings, "crawl.max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.RecordsFile == "" {
		c.RecordsFile = "scraped_data.jsonl"
	}
	return warnings, nil
}

func (c *IndexConfig) validate() (warnings []string, err error) {
	if c.Limit < 0 {
		return warnings, fmt.Errorf("%w: index.limit cannot be negative", utils.ErrConfigValidation)
	}
	if c.RecordsFile == "" {
		c.RecordsFile = "scraped_data.jsonl"
	}
	if c.IndexFile == "" {
		c.IndexFile = "index.jsonl"
	}
	if c.StatsFile == "" {
		c.StatsFile = "index_stats.json"
	}
	if c.SaveChunkSize <= 0 {
		warnings = append(warnings, "index.save_chunk_size should be > 0, defaulting to 100")
		c.SaveChunkSize = 100
	}
	if c.TextPreviewMaxChars <= 0 {
		c.TextPreviewMaxChars = 1500
	}
	if c.ThemeKeywords <= 0 {
		c.ThemeKeywords = 8
	}

	if c.PageRank.Damping <= 0 || c.PageRank.Damping >= 1 {
		if c.PageRank.Damping != 0 {
			warnings = append(warnings, "index.pagerank.damping must be in (0,1), defaulting to 0.85")
		}
		c.PageRank.Damping = 0.85
	}
	if c.PageRank.MaxIterations <= 0 {
		c.PageRank.MaxIterations = 25
	}
	if c.PageRank.Epsilon <= 0 {
		c.PageRank.Epsilon = 1e-6
	}

	if c.WeightPageRank == 0 && c.WeightFactors == 0 {
		c.WeightPageRank = 0.45
		c.WeightFactors = 0.55
	}

	c.Factors.applyDefaults()
	return warnings, nil
}

// applyDefaults fills zero-valued factor knobs with the stock scoring table.
func (f *FactorsConfig) applyDefaults() {
	if f.URLLength.Points == 0 {
		f.URLLength = RangeFactorConfig{Enabled: true, Points: 10, Min: 25, Max: 120, Mode: "prefer_short"}
	}
	if f.URLLength.Mode == "" {
		f.URLLength.Mode = "prefer_short"
	}
	if f.ContentLength.Points == 0 {
		f.ContentLength = RangeFactorConfig{Enabled: true, Points: 15, Min: 120, Max: 3000, Mode: "range"}
	}
	if f.ContentLength.Mode == "" {
		f.ContentLength.Mode = "range"
	}
	if f.TLD.Points == 0 {
		f.TLD = TLDFactorConfig{Enabled: true, Points: 10, Suffixes: []string{".gov", ".edu", ".org"}}
	}
	if f.Authority.Points == 0 {
		f.Authority = AuthorityFactorConfig{
			Enabled: true,
			Points:  10,
			Domains: []string{"wikipedia.org", "bbc.com", "reuters.com"},
			MinHits: 1,
		}
	}
	if f.Authority.MinHits <= 0 {
		f.Authority.MinHits = 1
	}
	if f.Language.Points == 0 {
		f.Language = LanguageFactorConfig{Enabled: true, Points: 10, Languages: []string{"en", "pt", "pt-br", "es"}}
	}
}

func (c *SearchConfig) validate() (warnings []string) {
	if c.IndexFile == "" {
		c.IndexFile = "index.jsonl"
	}
	if c.StatsFile == "" {
		c.StatsFile = "index_stats.json"
	}
	if c.ResultsLimit <= 0 {
		c.ResultsLimit = 10
	}
	switch c.Order {
	case "asc", "desc":
	case "":
		c.Order = "desc"
	default:
		warnings = append(warnings, fmt.Sprintf("search.order %q is not asc/desc, defaulting to desc", c.Order))
		c.Order = "desc"
	}
	if c.PreviewLength <= 0 {
		c.PreviewLength = 260
	}
	if c.WeightBM25 == 0 && c.WeightIndexScore == 0 && c.WeightPageRank == 0 {
		c.WeightBM25 = 0.60
		c.WeightIndexScore = 0.35
		c.WeightPageRank = 0.05
	}
	if c.LangPenalty <= 0 || c.LangPenalty > 1 {
		c.LangPenalty = 0.85
	}
	return warnings
}
