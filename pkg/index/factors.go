package index

import (
	"fmt"
	"net/url"
	"strings"

	"websearch/pkg/config"
	"websearch/pkg/models"
)

// Reserved factor names kept in every breakdown as disabled slots, so
// downstream consumers see a stable schema when new signals land.
var reservedFactorSlots = []string{"freshness", "https_only", "media_richness"}

// ComputeFactors scores one document against the configured ranking
// factors and returns the per-factor breakdown plus the raw sum.
// Disabled factors stay in the breakdown with a zero score.
func ComputeFactors(rec *models.CrawlRecord, cfg config.FactorsConfig) (map[string]models.FactorScore, float64) {
	breakdown := make(map[string]models.FactorScore, 8)
	total := 0.0

	add := func(name string, fs models.FactorScore) {
		breakdown[name] = fs
		total += fs.Score
	}

	add("url_length", scoreRange(cfg.URLLength, len(rec.URL), "chars"))
	add("content_length", scoreRange(cfg.ContentLength, len([]rune(rec.Text)), "chars"))
	add("tld", scoreTLD(cfg.TLD, rec.URL))
	add("authority", scoreAuthority(cfg.Authority, rec.Outlinks))
	add("language", scoreLanguage(cfg.Language, rec))

	for _, name := range reservedFactorSlots {
		breakdown[name] = models.FactorScore{Enabled: false}
	}

	return breakdown, total
}

// scoreRange maps a length v onto [0, Points] according to Mode:
// "range" awards full points inside [Min, Max] and nothing outside;
// "prefer_short" decays linearly from full at Min to zero at Max;
// "prefer_long" is the mirror image.
func scoreRange(cfg config.RangeFactorConfig, v int, unit string) models.FactorScore {
	if !cfg.Enabled {
		return models.FactorScore{Enabled: false}
	}

	fs := models.FactorScore{Enabled: true, Detail: fmt.Sprintf("%d %s", v, unit)}
	span := float64(cfg.Max - cfg.Min)

	switch cfg.Mode {
	case "prefer_short":
		switch {
		case v <= cfg.Min:
			fs.Score = cfg.Points
		case v >= cfg.Max || span <= 0:
			fs.Score = 0
		default:
			fs.Score = cfg.Points * (1 - float64(v-cfg.Min)/span)
		}
	case "prefer_long":
		switch {
		case v >= cfg.Max:
			fs.Score = cfg.Points
		case v <= cfg.Min || span <= 0:
			fs.Score = 0
		default:
			fs.Score = cfg.Points * float64(v-cfg.Min) / span
		}
	default: // "range"
		if v >= cfg.Min && v <= cfg.Max {
			fs.Score = cfg.Points
		}
	}

	fs.Match = fs.Score > 0
	return fs
}

func scoreTLD(cfg config.TLDFactorConfig, rawURL string) models.FactorScore {
	if !cfg.Enabled {
		return models.FactorScore{Enabled: false}
	}
	fs := models.FactorScore{Enabled: true}

	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Hostname())
	}
	for _, suffix := range cfg.Suffixes {
		suffix = strings.ToLower(strings.TrimPrefix(suffix, "."))
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			fs.Score = cfg.Points
			fs.Match = true
			fs.Detail = suffix
			break
		}
	}
	return fs
}

// scoreAuthority awards points when the document links out to at least
// MinHits distinct authority domains.
func scoreAuthority(cfg config.AuthorityFactorConfig, outlinks []string) models.FactorScore {
	if !cfg.Enabled {
		return models.FactorScore{Enabled: false}
	}
	fs := models.FactorScore{Enabled: true}

	minHits := cfg.MinHits
	if minHits <= 0 {
		minHits = 1
	}

	hits := 0
	matched := make(map[string]struct{})
	for _, link := range outlinks {
		u, err := url.Parse(link)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		for _, domain := range cfg.Domains {
			domain = strings.ToLower(domain)
			if host != domain && !strings.HasSuffix(host, "."+domain) {
				continue
			}
			if _, seen := matched[domain]; !seen {
				matched[domain] = struct{}{}
				hits++
			}
		}
	}

	fs.Detail = fmt.Sprintf("%d authority hit(s)", hits)
	if hits >= minHits {
		fs.Score = cfg.Points
		fs.Match = true
	}
	return fs
}

// scoreLanguage awards points when the detected language, or a
// language path hint in the URL, is in the preferred set.
func scoreLanguage(cfg config.LanguageFactorConfig, rec *models.CrawlRecord) models.FactorScore {
	if !cfg.Enabled {
		return models.FactorScore{Enabled: false}
	}
	fs := models.FactorScore{Enabled: true, Detail: rec.Language}

	lowerURL := strings.ToLower(rec.URL)
	for _, lang := range cfg.Languages {
		lang = strings.ToLower(lang)
		if rec.Language == lang ||
			strings.Contains(lowerURL, "/"+lang+"/") ||
			strings.HasSuffix(lowerURL, "/"+lang) {
			fs.Score = cfg.Points
			fs.Match = true
			break
		}
	}
	return fs
}
