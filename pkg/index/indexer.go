package index

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"websearch/pkg/config"
	"websearch/pkg/models"
	"websearch/pkg/storage"
)

// Indexer builds the ranked index from the crawl record store: corpus
// statistics for BM25, the link graph and PageRank, per-document
// factor scores, and the composite final score, persisted through the
// index store.
type Indexer struct {
	cfg     *config.IndexConfig
	records *storage.RecordStore
	store   *storage.IndexStore
	log     *logrus.Entry
}

// BuildResult summarizes one index build.
type BuildResult struct {
	Indexed    int
	SkippedBad int
	Terms      int
	Duration   time.Duration
}

// NewIndexer wires an Indexer.
func NewIndexer(cfg *config.IndexConfig, records *storage.RecordStore, store *storage.IndexStore, log *logrus.Entry) *Indexer {
	return &Indexer{cfg: cfg, records: records, store: store, log: log}
}

// Build runs the full pipeline and persists entries plus corpus stats.
// Malformed records are skipped and counted, never fatal. With a
// positive Limit only the first Limit well-formed records are indexed.
func (ix *Indexer) Build() (*BuildResult, error) {
	start := time.Now()

	recs, skippedBad, err := ix.loadRecords()
	if err != nil {
		return nil, err
	}
	ix.log.Infof("Indexing %d record(s) (%d malformed skipped).", len(recs), skippedBad)
	if len(recs) == 0 {
		if err := ix.store.WriteEntries(nil, ix.cfg.SaveChunkSize); err != nil {
			return nil, err
		}
		if err := ix.store.WriteStats(&models.CorpusStats{DocFreq: map[string]int{}}); err != nil {
			return nil, err
		}
		return &BuildResult{SkippedBad: skippedBad, Duration: time.Since(start)}, nil
	}

	// Link graph over the corpus, then PageRank.
	urls := make([]string, len(recs))
	for i := range recs {
		urls[i] = recs[i].URL
	}
	graph := NewLinkGraph(urls)
	for i := range recs {
		graph.AddOutlinks(recs[i].URL, recs[i].Outlinks)
	}
	prRaw := PageRank(graph, ix.cfg.PageRank, ix.log)
	prNorm := NormalizeScores(prRaw)

	// Per-document terms and factors.
	entries := make([]models.IndexEntry, len(recs))
	factorsRaw := make([]float64, len(recs))
	stats := &models.CorpusStats{DocCount: len(recs), DocFreq: make(map[string]int)}
	totalLen := 0

	for i := range recs {
		rec := &recs[i]
		tokens := Tokenize(rec.Title + " " + rec.Text)
		freqs := TermFrequencies(tokens)
		for term := range freqs {
			stats.DocFreq[term]++
		}
		totalLen += len(tokens)

		breakdown, raw := ComputeFactors(rec, ix.cfg.Factors)
		factorsRaw[i] = raw

		entries[i] = models.IndexEntry{
			DocID:       i,
			URL:         rec.URL,
			Title:       rec.Title,
			Language:    rec.Language,
			PublishDate: rec.PublishDate,
			LinksCount:  rec.OutlinkCount,
			Preview:     previewOf(rec.Text, ix.cfg.TextPreviewMaxChars),
			TermFreqs:   freqs,
			DocLen:      len(tokens),
			PageRank:    prRaw[i],
			FactorsRaw:  raw,
			Factors:     breakdown,
			FetchedAt:   rec.FetchedAt,
		}
	}
	stats.AvgDocLen = float64(totalLen) / float64(len(recs))

	// Composite score: normalized PageRank and normalized factor sum,
	// weighted and scaled to [0, 100].
	factorsNorm := NormalizeScores(factorsRaw)
	for i := range entries {
		entries[i].FactorsNorm = factorsNorm[i]
		score := (ix.cfg.WeightPageRank*prNorm[i] + ix.cfg.WeightFactors*factorsNorm[i]) * 100
		entries[i].FinalScore = clamp(score, 0, 100)
		entries[i].ThemeKeywords = themeKeywords(entries[i].TermFreqs, stats, ix.cfg.ThemeKeywords)
	}

	if err := ix.store.WriteEntries(entries, ix.cfg.SaveChunkSize); err != nil {
		return nil, err
	}
	if err := ix.store.WriteStats(stats); err != nil {
		return nil, err
	}

	result := &BuildResult{
		Indexed:    len(entries),
		SkippedBad: skippedBad,
		Terms:      len(stats.DocFreq),
		Duration:   time.Since(start),
	}
	ix.log.Infof("Index build complete: %d entries, %d terms, in %v.", result.Indexed, result.Terms, result.Duration)
	return result, nil
}

// loadRecords streams the record store, deduplicating by URL (last
// write wins so a re-crawled page replaces its older record) and
// honoring the configured limit.
func (ix *Indexer) loadRecords() ([]models.CrawlRecord, int, error) {
	byURL := make(map[string]int)
	var recs []models.CrawlRecord
	skippedBad := 0

	err := ix.records.Iterate(func(rec models.CrawlRecord) error {
		if idx, seen := byURL[rec.URL]; seen {
			recs[idx] = rec
			return nil
		}
		if ix.cfg.Limit > 0 && len(recs) >= ix.cfg.Limit {
			return nil
		}
		byURL[rec.URL] = len(recs)
		recs = append(recs, rec)
		return nil
	}, func(line int, err error) {
		skippedBad++
	})
	if err != nil {
		return nil, 0, fmt.Errorf("reading crawl records: %w", err)
	}
	return recs, skippedBad, nil
}

// themeKeywords picks the top-k terms by tf * (1 + idf).
func themeKeywords(freqs map[string]int, stats *models.CorpusStats, k int) []string {
	if k <= 0 || len(freqs) == 0 {
		return nil
	}

	type scored struct {
		term  string
		score float64
	}
	ranked := make([]scored, 0, len(freqs))
	for term, tf := range freqs {
		df := stats.DocFreq[term]
		if df == 0 {
			df = 1
		}
		idf := math.Log(float64(stats.DocCount) / float64(df))
		ranked = append(ranked, scored{term, float64(tf) * (1 + idf)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].term < ranked[j].term
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	keywords := make([]string, k)
	for i := 0; i < k; i++ {
		keywords[i] = ranked[i].term
	}
	return keywords
}

func previewOf(text string, maxChars int) string {
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars])
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
