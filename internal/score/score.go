// Package score ranks validated sources and removes near-duplicates.
package score

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/FranksOps/grounder/internal/model"
)

// Weights are the relative contributions of each score component.
type Weights struct {
	Relevance  float64 `mapstructure:"relevance"`
	Recency    float64 `mapstructure:"recency"`
	Confidence float64 `mapstructure:"confidence"`
}

// Config controls scoring.
type Config struct {
	Weights         Weights
	RecencyHalfLife time.Duration
	// UndatedRecency is the recency component for sources without a date.
	UndatedRecency float64
	// RetryPenalty is subtracted from confidence per retry consumed.
	RetryPenalty float64
	Now          func() time.Time
}

// DefaultConfig returns the standard weighting.
func DefaultConfig() Config {
	return Config{
		Weights:         Weights{Relevance: 0.6, Recency: 0.2, Confidence: 0.2},
		RecencyHalfLife: 365 * 24 * time.Hour,
		UndatedRecency:  0.5,
		RetryPenalty:    0.05,
		Now:             time.Now,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Weights.Relevance < 0 || c.Weights.Recency < 0 || c.Weights.Confidence < 0 ||
		c.Weights.Relevance+c.Weights.Recency+c.Weights.Confidence == 0 {
		c.Weights = def.Weights
	}
	if c.RecencyHalfLife <= 0 {
		c.RecencyHalfLife = def.RecencyHalfLife
	}
	if c.UndatedRecency <= 0 {
		c.UndatedRecency = def.UndatedRecency
	}
	if c.RetryPenalty <= 0 {
		c.RetryPenalty = def.RetryPenalty
	}
	if c.Now == nil {
		c.Now = def.Now
	}
	return c
}

// Tokens lower-cases text and splits it on whitespace.
func Tokens(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Jaccard is |A∩B| / |A∪B| over the token sets of a and b. Two empty sets
// have similarity 0.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	set := make(map[string]uint8, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}

// Similarity is the Jaccard similarity of two texts.
func Similarity(a, b string) float64 {
	return Jaccard(Tokens(a), Tokens(b))
}

// Scorer computes composite scores.
type Scorer struct {
	cfg Config
}

// New fills zero-valued cfg fields from DefaultConfig.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg.withDefaults()}
}

// Relevance is the Jaccard similarity between the query terms and the
// source's extracted content.
func Relevance(query string, s *model.Source) float64 {
	return Jaccard(Tokens(query), Tokens(s.ExtractedContent))
}

// Recency decays by half every RecencyHalfLife. Future dates count as now.
func (sc *Scorer) Recency(date *time.Time) float64 {
	if date == nil {
		return sc.cfg.UndatedRecency
	}
	age := sc.cfg.Now().Sub(*date)
	if age < 0 {
		age = 0
	}
	return math.Pow(0.5, float64(age)/float64(sc.cfg.RecencyHalfLife))
}

// Confidence drops with every retry the source needed.
func (sc *Scorer) Confidence(retries int) float64 {
	return math.Max(0, 1-sc.cfg.RetryPenalty*float64(retries))
}

// Score sets s.Relevance and s.Score. The score is the weighted mean of the
// components and is therefore in [0, 1].
func (sc *Scorer) Score(query string, s *model.Source) {
	w := sc.cfg.Weights
	s.Relevance = Relevance(query, s)
	total := w.Relevance*s.Relevance + w.Recency*sc.Recency(s.Date) + w.Confidence*sc.Confidence(s.Retries)
	s.Score = total / (w.Relevance + w.Recency + w.Confidence)
}

// Rank sorts sources by score descending, ties broken by discovery index.
func Rank(sources []*model.Source) {
	sort.SliceStable(sources, func(i, j int) bool {
		if sources[i].Score != sources[j].Score {
			return sources[i].Score > sources[j].Score
		}
		return sources[i].Index < sources[j].Index
	})
}

// Dedupe keeps the highest-ranked source of every group whose content
// similarity exceeds threshold. The result is in rank order.
func Dedupe(sources []*model.Source, threshold float64) []*model.Source {
	ranked := append([]*model.Source(nil), sources...)
	Rank(ranked)

	kept := make([]*model.Source, 0, len(ranked))
	keptTokens := make([][]string, 0, len(ranked))
	for _, s := range ranked {
		toks := Tokens(s.ExtractedContent)
		dup := false
		for _, kt := range keptTokens {
			if Jaccard(toks, kt) > threshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, s)
			keptTokens = append(keptTokens, toks)
		}
	}
	return kept
}

// Options controls Finalize.
type Options struct {
	FilterDuplicates    bool
	SimilarityThreshold float64
	SortResults         bool
	MaxResults          int
}

// Finalize applies dedup, sort and truncation in that order. Without
// SortResults the discovery order is kept.
func Finalize(sources []*model.Source, opts Options) []*model.Source {
	out := append([]*model.Source(nil), sources...)
	if opts.FilterDuplicates {
		out = Dedupe(out, opts.SimilarityThreshold)
	}
	if opts.SortResults {
		Rank(out)
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	}
	if opts.MaxResults > 0 && len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	return out
}
