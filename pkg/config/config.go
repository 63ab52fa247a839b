package config

import "time"

// AppConfig holds the global application configuration
type AppConfig struct {
	UserAgent          string           `yaml:"user_agent,omitempty"`
	StateDir           string           `yaml:"state_dir"`
	Crawl              CrawlConfig      `yaml:"crawl"`
	Index              IndexConfig      `yaml:"index"`
	Search             SearchConfig     `yaml:"search"`
	HTTPClientSettings HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// CrawlConfig holds every knob of the crawl scheduler. All limits are
// explicit; Validate fills unset values with documented defaults.
type CrawlConfig struct {
	Seeds                []string      `yaml:"seeds"`
	MaxGlobalWorkers     int           `yaml:"max_global_workers"`
	MaxTotalURLs         int           `yaml:"max_total_urls"` // soft bound, see coordinator docs
	SaveChunkSize        int           `yaml:"save_chunk_size"`
	MaxConcurrentPerHost int           `yaml:"max_concurrent_per_host"`
	DelayBetweenRequests time.Duration `yaml:"delay_between_requests"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	MaxRetries           int           `yaml:"max_retries"`
	RetryBackoff         time.Duration `yaml:"retry_backoff"` // wait before attempt n is n*RetryBackoff (linear)
	RespectRobots        *bool         `yaml:"respect_robots,omitempty"`
	RecordsFile          string        `yaml:"records_file"`
}

// RespectsRobots resolves the tri-state robots flag (default true).
func (c *CrawlConfig) RespectsRobots() bool {
	if c.RespectRobots == nil {
		return true
	}
	return *c.RespectRobots
}

// PageRankConfig controls the link-graph score computation.
type PageRankConfig struct {
	Damping       float64 `yaml:"damping"`
	MaxIterations int     `yaml:"max_iterations"`
	Epsilon       float64 `yaml:"epsilon"` // convergence threshold on max per-node delta
}

// RangeFactorConfig configures a length-based factor scored over [Min, Max].
// Mode is "range" (grow with length), "prefer_short", or "prefer_long".
type RangeFactorConfig struct {
	Enabled bool    `yaml:"enabled"`
	Points  float64 `yaml:"points"`
	Min     int     `yaml:"min"`
	Max     int     `yaml:"max"`
	Mode    string  `yaml:"mode,omitempty"`
}

// TLDFactorConfig awards a flat bonus when the document's domain ends
// with one of the configured suffixes.
type TLDFactorConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Points   float64  `yaml:"points"`
	Suffixes []string `yaml:"suffixes"`
}

// AuthorityFactorConfig awards a bonus when a document links out to at
// least MinHits of the configured authority domains.
type AuthorityFactorConfig struct {
	Enabled bool     `yaml:"enabled"`
	Points  float64  `yaml:"points"`
	Domains []string `yaml:"domains"`
	MinHits int      `yaml:"min_hits"`
}

// LanguageFactorConfig awards a bonus when the document's detected
// language (or a language hint in its URL) is in the preferred set.
type LanguageFactorConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Points    float64  `yaml:"points"`
	Languages []string `yaml:"languages"`
}

// FactorsConfig groups the per-document ranking factor knobs.
type FactorsConfig struct {
	URLLength     RangeFactorConfig     `yaml:"url_length"`
	ContentLength RangeFactorConfig     `yaml:"content_length"`
	TLD           TLDFactorConfig       `yaml:"tld"`
	Authority     AuthorityFactorConfig `yaml:"authority"`
	Language      LanguageFactorConfig  `yaml:"language"`
}

// IndexConfig holds the ranking-engine configuration.
type IndexConfig struct {
	RecordsFile         string         `yaml:"records_file"`
	IndexFile           string         `yaml:"index_file"`
	StatsFile           string         `yaml:"stats_file"`
	Limit               int            `yaml:"limit"` // 0 = index every record
	SaveChunkSize       int            `yaml:"save_chunk_size"`
	TextPreviewMaxChars int            `yaml:"text_preview_max_chars"`
	ThemeKeywords       int            `yaml:"theme_keywords"`
	PageRank            PageRankConfig `yaml:"pagerank"`
	WeightPageRank      float64        `yaml:"weight_pagerank"`
	WeightFactors       float64        `yaml:"weight_factors"`
	Factors             FactorsConfig  `yaml:"factors"`
}

// SearchConfig holds the query-engine configuration.
type SearchConfig struct {
	IndexFile        string   `yaml:"index_file"`
	StatsFile        string   `yaml:"stats_file"`
	ResultsLimit     int      `yaml:"results_limit"`
	Order            string   `yaml:"order"` // "desc" (best first) or "asc"
	PreviewLength    int      `yaml:"preview_length"`
	WeightBM25       float64  `yaml:"weight_bm25"`
	WeightIndexScore float64  `yaml:"weight_index_score"`
	WeightPageRank   float64  `yaml:"weight_pagerank"`
	LangPriority     []string `yaml:"lang_priority,omitempty"`
	LangPenalty      float64  `yaml:"lang_penalty,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"`
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`
}
