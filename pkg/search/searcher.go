package search

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"websearch/pkg/config"
	"websearch/pkg/index"
	"websearch/pkg/models"
	"websearch/pkg/storage"
)

// BM25 shape parameters. Standard values; the corpus-dependent inputs
// (df, avgdl) come from the index sidecar stats.
const (
	bm25K1 = 1.5
	bm25B  = 0.75
)

// Result is one ranked hit.
type Result struct {
	Rank       int     `json:"rank"`
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	Language   string  `json:"language"`
	Preview    string  `json:"preview"`
	Score      float64 `json:"score"`
	BM25       float64 `json:"bm25"`
	IndexScore float64 `json:"index_score"`
	PageRank   float64 `json:"pagerank"`
}

// Searcher answers queries against a loaded index. The whole index is
// held in memory; postings are rebuilt from the per-document term
// frequencies at load time.
type Searcher struct {
	cfg      *config.SearchConfig
	entries  []models.IndexEntry
	stats    *models.CorpusStats
	postings map[string][]int // term -> entry positions
	log      *logrus.Entry
}

// NewSearcher loads the index and stats from store and builds the
// in-memory postings lists.
func NewSearcher(cfg *config.SearchConfig, store *storage.IndexStore, log *logrus.Entry) (*Searcher, error) {
	entries, err := store.LoadEntries()
	if err != nil {
		return nil, fmt.Errorf("loading index entries: %w", err)
	}
	stats, err := store.LoadStats()
	if err != nil {
		return nil, fmt.Errorf("loading corpus stats: %w", err)
	}

	postings := make(map[string][]int)
	for i := range entries {
		for term := range entries[i].TermFreqs {
			postings[term] = append(postings[term], i)
		}
	}

	log.Infof("Search index loaded: %d entries, %d terms.", len(entries), len(postings))
	return &Searcher{cfg: cfg, entries: entries, stats: stats, postings: postings, log: log}, nil
}

// DocCount returns the number of loaded index entries.
func (s *Searcher) DocCount() int { return len(s.entries) }

// Search tokenizes the query, scores every document sharing at least
// one term, and returns up to ResultsLimit hits in the configured
// order. An empty or all-stopword query returns no results.
func (s *Searcher) Search(query string) []Result {
	terms := index.Tokenize(query)
	if len(terms) == 0 {
		s.log.Debugf("Query %q produced no searchable terms.", query)
		return nil
	}

	// Candidate set: union of postings for the query terms.
	candidates := make(map[int]struct{})
	for _, term := range terms {
		for _, pos := range s.postings[term] {
			candidates[pos] = struct{}{}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	// BM25 per candidate, then normalize by the best candidate so the
	// lexical signal composes with the index-time signals on [0, 1].
	bm25 := make(map[int]float64, len(candidates))
	maxBM25 := 0.0
	for pos := range candidates {
		score := s.bm25(&s.entries[pos], terms)
		bm25[pos] = score
		if score > maxBM25 {
			maxBM25 = score
		}
	}

	results := make([]Result, 0, len(candidates))
	for pos := range candidates {
		entry := &s.entries[pos]

		bm25Norm := 0.0
		if maxBM25 > 0 {
			bm25Norm = bm25[pos] / maxBM25
		}
		composite := s.cfg.WeightBM25*bm25Norm +
			s.cfg.WeightIndexScore*(entry.FinalScore/100) +
			s.cfg.WeightPageRank*entry.PageRank
		composite *= s.langMultiplier(entry.Language)

		results = append(results, Result{
			URL:        entry.URL,
			Title:      entry.Title,
			Language:   entry.Language,
			Preview:    BuildPreview(entry.Preview, terms, s.cfg.PreviewLength),
			Score:      composite,
			BM25:       bm25[pos],
			IndexScore: entry.FinalScore,
			PageRank:   entry.PageRank,
		})
	}

	asc := strings.EqualFold(s.cfg.Order, "asc")
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			if asc {
				return results[i].Score < results[j].Score
			}
			return results[i].Score > results[j].Score
		}
		return results[i].URL < results[j].URL
	})

	if s.cfg.ResultsLimit > 0 && len(results) > s.cfg.ResultsLimit {
		results = results[:s.cfg.ResultsLimit]
	}
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// bm25 scores one document against the query terms using the Robertson
// idf variant, which stays positive for very common terms.
func (s *Searcher) bm25(entry *models.IndexEntry, terms []string) float64 {
	n := float64(s.stats.DocCount)
	avgdl := s.stats.AvgDocLen
	if avgdl <= 0 {
		avgdl = 1
	}
	dl := float64(entry.DocLen)

	score := 0.0
	for _, term := range terms {
		tf := float64(entry.TermFreqs[term])
		if tf == 0 {
			continue
		}
		df := float64(s.stats.DocFreq[term])
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)
		score += idf * tf * (bm25K1 + 1) / (tf + bm25K1*(1-bm25B+bm25B*dl/avgdl))
	}
	return score
}

// langMultiplier boosts documents in a prioritized language and
// penalizes the rest. Priority position matters: the first language
// gets the largest boost. With no priority list the multiplier is 1.
func (s *Searcher) langMultiplier(lang string) float64 {
	if len(s.cfg.LangPriority) == 0 {
		return 1.0
	}
	for rank, preferred := range s.cfg.LangPriority {
		if strings.EqualFold(lang, preferred) {
			return 1.0 + 0.08*(1.0/float64(1+rank))
		}
	}
	penalty := s.cfg.LangPenalty
	if penalty <= 0 || penalty > 1 {
		penalty = 0.85
	}
	return penalty
}
