package models

import "time"

// WorkItem represents a discovered URL waiting in the frontier.
type WorkItem struct {
	URL          string    // normalized absolute URL
	Host         string    // hostname, used for per-host queueing
	Depth        int       // link distance from the seed set
	DiscoveredAt time.Time // when the outlink was extracted
}

// CrawlRecord is the immutable result of one successful fetch.
// Records are appended to the document store in checkpoint chunks and
// never mutated afterwards.
type CrawlRecord struct {
	URL          string    `json:"url"`
	Title        string    `json:"title"`
	Text         string    `json:"text"`
	Language     string    `json:"language"`
	PublishDate  string    `json:"publish_date,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
	Outlinks     []string  `json:"outlinks"`
	OutlinkCount int       `json:"outlink_count"`
}

// FactorScore holds one ranking factor's contribution for a document.
type FactorScore struct {
	Score   float64 `json:"score"`
	Enabled bool    `json:"enabled"`
	Match   bool    `json:"match,omitempty"`
	Detail  string  `json:"detail,omitempty"`
}

// IndexEntry is the persisted unit consumed by the query engine.
// TermFreqs and DocLen are the per-document BM25 corpus references;
// corpus-level stats (N, df, avgdl) live in the sidecar CorpusStats.
type IndexEntry struct {
	DocID         int                    `json:"doc_id"`
	URL           string                 `json:"url"`
	Title         string                 `json:"title"`
	Language      string                 `json:"language"`
	PublishDate   string                 `json:"publish_date,omitempty"`
	LinksCount    int                    `json:"links_count"`
	Preview       string                 `json:"preview"`
	TermFreqs     map[string]int         `json:"term_freqs"`
	DocLen        int                    `json:"doc_len"`
	PageRank      float64                `json:"pagerank"`
	FactorsRaw    float64                `json:"factors_raw"`
	FactorsNorm   float64                `json:"factors_norm"`
	FinalScore    float64                `json:"final_score"`
	ThemeKeywords []string               `json:"theme_keywords,omitempty"`
	Factors       map[string]FactorScore `json:"factors_breakdown,omitempty"`
	FetchedAt     time.Time              `json:"fetched_at,omitempty"`
}

// CorpusStats holds index-wide BM25 normalization data, written once
// per index build as a sidecar to the entry file.
type CorpusStats struct {
	DocCount  int            `json:"doc_count"`
	AvgDocLen float64        `json:"avg_doc_len"`
	DocFreq   map[string]int `json:"doc_freq"`
}

// CrawlStats aggregates terminal outcomes for one crawl session.
type CrawlStats struct {
	SessionID  string        `json:"session_id"`
	Fetched    int64         `json:"fetched"`
	Failed     int64         `json:"failed"`
	Skipped    int64         `json:"skipped"`
	Retries    int64         `json:"retries"`
	ChunksSent int64         `json:"chunks_flushed"`
	Duration   time.Duration `json:"duration"`
}

// PageDBEntry stores the crawl outcome for a URL in the visited store.
type PageDBEntry struct {
	State       FetchState `json:"state"`
	ErrorType   string     `json:"error_type,omitempty"`
	Attempts    int        `json:"attempts"`
	Depth       int        `json:"depth"`
	LastAttempt time.Time  `json:"last_attempt"`
	ProcessedAt time.Time  `json:"processed_at,omitempty"`
}
