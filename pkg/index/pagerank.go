package index

import (
	"math"

	"github.com/sirupsen/logrus"

	"websearch/pkg/config"
)

// PageRank runs the damped power iteration over g and returns one raw
// score per node. Dangling nodes (no in-corpus outlinks) redistribute
// their mass uniformly each round, so the scores always sum to 1.
// Iteration stops at cfg.MaxIterations or when the largest per-node
// delta drops below cfg.Epsilon.
func PageRank(g *LinkGraph, cfg config.PageRankConfig, log *logrus.Entry) []float64 {
	n := g.Size()
	if n == 0 {
		return nil
	}

	ranks := make([]float64, n)
	next := make([]float64, n)
	for i := range ranks {
		ranks[i] = 1.0 / float64(n)
	}

	d := cfg.Damping
	base := (1.0 - d) / float64(n)

	iterations := 0
	for iter := 0; iter < cfg.MaxIterations; iter++ {
		iterations = iter + 1

		danglingMass := 0.0
		for i := 0; i < n; i++ {
			if g.OutDegree(i) == 0 {
				danglingMass += ranks[i]
			}
		}
		danglingShare := d * danglingMass / float64(n)

		maxDelta := 0.0
		for i := 0; i < n; i++ {
			incoming := 0.0
			for _, src := range g.Sources(i) {
				incoming += ranks[src] / float64(g.OutDegree(src))
			}
			next[i] = base + danglingShare + d*incoming
			if delta := math.Abs(next[i] - ranks[i]); delta > maxDelta {
				maxDelta = delta
			}
		}

		ranks, next = next, ranks
		if maxDelta < cfg.Epsilon {
			break
		}
	}

	log.Debugf("PageRank converged after %d iteration(s) over %d node(s)", iterations, n)
	return ranks
}

// NormalizeScores min-max scales raw scores to [0, 1] for composition
// with other signals. A flat distribution maps every node to 1.
func NormalizeScores(raw []float64) []float64 {
	if len(raw) == 0 {
		return nil
	}
	lo, hi := raw[0], raw[0]
	for _, v := range raw[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}

	norm := make([]float64, len(raw))
	if hi == lo {
		for i := range norm {
			norm[i] = 1.0
		}
		return norm
	}
	for i, v := range raw {
		norm[i] = (v - lo) / (hi - lo)
	}
	return norm
}
