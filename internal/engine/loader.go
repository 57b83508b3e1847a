package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/platefeed/recsys/internal/catalog"
	"github.com/platefeed/recsys/internal/tower"
)

// Inputs is everything one snapshot build needs: the exported catalog plus
// the trained weights and their sidecar. Loaders produce them as a unit so
// vocabulary and weights can never be mixed across model versions.
type Inputs struct {
	Catalog *catalog.Catalog
	Sidecar *tower.Sidecar
	Weights *tower.Weights
}

// Loader fetches fresh inputs for a snapshot build.
type Loader interface {
	Load(ctx context.Context) (*Inputs, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context) (*Inputs, error)

func (f LoaderFunc) Load(ctx context.Context) (*Inputs, error) {
	return f(ctx)
}

// FileLoader reads the catalog CSV directory and the model artifacts from
// local paths. This is the production loader; the export pipeline drops
// fresh files in place and an admin reload picks them up.
type FileLoader struct {
	DataDir     string
	SidecarPath string
	WeightsPath string
	Logger      *slog.Logger
}

func (l *FileLoader) Load(ctx context.Context) (*Inputs, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := catalog.LoadDir(l.DataDir, l.Logger)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	sc, err := tower.LoadSidecar(l.SidecarPath)
	if err != nil {
		return nil, err
	}

	w, err := tower.ReadWeights(l.WeightsPath, sc)
	if err != nil {
		return nil, err
	}

	return &Inputs{Catalog: c, Sidecar: sc, Weights: w}, nil
}
