// Command exportvocab builds serve-time vocabularies from an exported
// catalog snapshot and writes the model sidecar skeleton the trainer fills
// in. It can also write randomly initialized weights for local development.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/platefeed/recsys/internal/catalog"
	"github.com/platefeed/recsys/internal/feature"
	"github.com/platefeed/recsys/internal/observability"
	"github.com/platefeed/recsys/internal/tower"
	"github.com/platefeed/recsys/internal/vocab"
)

func main() {
	var (
		dataDir      = flag.String("data", "data", "catalog snapshot directory")
		outPath      = flag.String("out", "models/model_info.json", "sidecar output path")
		weightsPath  = flag.String("weights", "", "also write random-init weights to this path (dev only)")
		dim          = flag.Int("dim", 64, "embedding dimension (multiple of 8)")
		modelVersion = flag.String("version", "", "model version (default: vocab-<date>)")
		labelRule    = flag.String("label-rule", "", "positive-label rule: order_or_rating, order_only, any_interaction")
		seed         = flag.Int64("seed", 1, "seed for random-init weights")
	)
	flag.Parse()

	logger := observability.NewLogger("info")
	slog.SetDefault(logger)

	if err := run(*dataDir, *outPath, *weightsPath, *modelVersion, *labelRule, *dim, *seed, logger); err != nil {
		slog.Error("Export failed", "error", err)
		os.Exit(1)
	}
}

func run(dataDir, outPath, weightsPath, modelVersion, labelRule string, dim int, seed int64, logger *slog.Logger) error {
	rule, err := catalog.ParseLabelRule(labelRule)
	if err != nil {
		return err
	}

	c, err := catalog.LoadDir(dataDir, logger)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	interactions, err := catalog.LoadInteractions(dataDir, logger)
	if err != nil {
		return fmt.Errorf("load interactions: %w", err)
	}

	set := vocab.Build(c)
	pop := popularityStats(c, interactions, rule)

	if modelVersion == "" {
		modelVersion = "vocab-" + time.Now().UTC().Format("20060102")
	}

	sc := tower.SidecarFor(modelVersion, dim, set, pop)
	if err := sc.Validate(); err != nil {
		return err
	}
	if err := tower.WriteSidecar(outPath, sc); err != nil {
		return err
	}

	slog.Info("Wrote sidecar",
		"path", outPath,
		"model_version", modelVersion,
		"dishes", len(c.Dishes),
		"users", len(c.Users),
		"label_rule", rule,
		"popularity_mean", pop.Mean,
		"popularity_std", pop.Std,
	)

	if weightsPath == "" {
		return nil
	}

	w, err := tower.Random(sc, seed)
	if err != nil {
		return err
	}
	if err := tower.WriteWeights(weightsPath, w); err != nil {
		return err
	}

	slog.Info("Wrote random-init weights", "path", weightsPath, "dim", dim, "seed", seed)
	return nil
}

// popularityStats standardizes per-dish positive interaction counts the way
// the trainer does, so dev sidecars scale popularity identically.
func popularityStats(c *catalog.Catalog, interactions []catalog.Interaction, rule catalog.LabelRule) feature.PopularityStats {
	counts := make(map[string]int, len(c.Dishes))
	for _, it := range interactions {
		if rule.Positive(it) {
			counts[it.DishID]++
		}
	}

	if len(c.Dishes) == 0 {
		return feature.PopularityStats{Mean: 0, Std: 1}
	}

	var sum float64
	for _, d := range c.Dishes {
		sum += float64(counts[d.ID])
	}
	mean := sum / float64(len(c.Dishes))

	var sq float64
	for _, d := range c.Dishes {
		diff := float64(counts[d.ID]) - mean
		sq += diff * diff
	}
	std := math.Sqrt(sq / float64(len(c.Dishes)))
	if std == 0 {
		std = 1
	}

	return feature.PopularityStats{Mean: mean, Std: std}
}
