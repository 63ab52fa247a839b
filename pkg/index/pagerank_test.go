package index

import (
	"io"
	"math"
	"testing"

	"github.com/sirupsen/logrus"

	"websearch/pkg/config"
)

func prLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func prConfig() config.PageRankConfig {
	return config.PageRankConfig{Damping: 0.85, MaxIterations: 25, Epsilon: 1e-9}
}

func sum(vals []float64) float64 {
	s := 0.0
	for _, v := range vals {
		s += v
	}
	return s
}

func TestPageRank_MassConservedWithoutDangling(t *testing.T) {
	// Three-node cycle: no dangling nodes, perfect symmetry.
	g := NewLinkGraph([]string{"a", "b", "c"})
	g.AddOutlinks("a", []string{"b"})
	g.AddOutlinks("b", []string{"c"})
	g.AddOutlinks("c", []string{"a"})

	ranks := PageRank(g, prConfig(), prLogger())
	if math.Abs(sum(ranks)-1.0) > 1e-9 {
		t.Errorf("rank mass = %v, want 1.0", sum(ranks))
	}
	for i, r := range ranks {
		if math.Abs(r-1.0/3.0) > 1e-6 {
			t.Errorf("node %d rank = %v, want 1/3 by symmetry", i, r)
		}
	}
}

func TestPageRank_MassConservedWithDangling(t *testing.T) {
	// c has no outlinks; its mass must be redistributed, not lost.
	g := NewLinkGraph([]string{"a", "b", "c"})
	g.AddOutlinks("a", []string{"b", "c"})
	g.AddOutlinks("b", []string{"c"})

	ranks := PageRank(g, prConfig(), prLogger())
	if math.Abs(sum(ranks)-1.0) > 1e-9 {
		t.Errorf("rank mass = %v, want 1.0 with dangling redistribution", sum(ranks))
	}
}

func TestPageRank_DanglingNodeScoresPositive(t *testing.T) {
	g := NewLinkGraph([]string{"hub", "leaf"})
	g.AddOutlinks("hub", []string{"leaf"})

	ranks := PageRank(g, prConfig(), prLogger())
	for i, r := range ranks {
		if r <= 0 {
			t.Errorf("node %d rank = %v, want > 0", i, r)
		}
	}
	// The leaf receives everything the hub sends; it must outrank it.
	if ranks[1] <= ranks[0] {
		t.Errorf("leaf rank %v should exceed hub rank %v", ranks[1], ranks[0])
	}
}

func TestPageRank_MoreInlinksMeansHigherRank(t *testing.T) {
	g := NewLinkGraph([]string{"popular", "a", "b", "c"})
	g.AddOutlinks("a", []string{"popular"})
	g.AddOutlinks("b", []string{"popular"})
	g.AddOutlinks("c", []string{"a"})

	ranks := PageRank(g, prConfig(), prLogger())
	if ranks[0] <= ranks[1] || ranks[0] <= ranks[2] || ranks[0] <= ranks[3] {
		t.Errorf("popular node should have the highest rank, got %v", ranks)
	}
}

func TestPageRank_EmptyGraph(t *testing.T) {
	g := NewLinkGraph(nil)
	if ranks := PageRank(g, prConfig(), prLogger()); ranks != nil {
		t.Errorf("empty graph ranks = %v, want nil", ranks)
	}
}

func TestPageRank_OutOfCorpusLinksIgnored(t *testing.T) {
	g := NewLinkGraph([]string{"a", "b"})
	g.AddOutlinks("a", []string{"b", "https://elsewhere.test/x", "a"})

	if got := g.OutDegree(0); got != 1 {
		t.Errorf("OutDegree = %d, want 1 (external and self links dropped)", got)
	}
}

func TestNormalizeScores(t *testing.T) {
	norm := NormalizeScores([]float64{0.2, 0.5, 0.8})
	if norm[0] != 0 || norm[2] != 1 {
		t.Errorf("NormalizeScores endpoints = %v, want [0 .. 1]", norm)
	}
	if math.Abs(norm[1]-0.5) > 1e-9 {
		t.Errorf("midpoint = %v, want 0.5", norm[1])
	}

	flat := NormalizeScores([]float64{0.4, 0.4})
	if flat[0] != 1 || flat[1] != 1 {
		t.Errorf("flat distribution = %v, want all 1", flat)
	}
}
