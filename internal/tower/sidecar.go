package tower

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/platefeed/recsys/internal/feature"
	"github.com/platefeed/recsys/internal/recerrors"
	"github.com/platefeed/recsys/internal/vocab"
)

// Sidecar is the model_info.json written next to the weights file by the
// training export. It is the source of truth for the serve-time
// vocabularies: vocab and weights always swap together as one unit.
type Sidecar struct {
	ModelVersion string                  `json:"model_version"`
	EmbeddingDim int                     `json:"embedding_dim"`
	VocabSizes   map[string]int          `json:"vocab_sizes"`
	Vocab        map[string][]string     `json:"vocab"`
	Popularity   feature.PopularityStats `json:"popularity"`
}

// LoadSidecar reads and validates a model sidecar file.
func LoadSidecar(path string) (*Sidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, recerrors.NewModelLoadError(path, fmt.Sprintf("read sidecar: %v", err))
	}

	var sc Sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, recerrors.NewModelLoadError(path, fmt.Sprintf("parse sidecar: %v", err))
	}

	if err := sc.Validate(); err != nil {
		return nil, recerrors.NewModelLoadError(path, err.Error())
	}

	return &sc, nil
}

// WriteSidecar writes a sidecar as indented JSON, the format the training
// export produces.
func WriteSidecar(path string, sc *Sidecar) error {
	raw, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}

	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}

	return nil
}

// Validate checks internal consistency: a positive width divisible by 8
// (the tower slices it into quarters and eighths) and vocabulary lists
// whose recorded sizes match their contents.
func (sc *Sidecar) Validate() error {
	if sc.EmbeddingDim <= 0 || sc.EmbeddingDim%8 != 0 {
		return fmt.Errorf("embedding_dim %d must be a positive multiple of 8", sc.EmbeddingDim)
	}

	for _, key := range []string{"user", "dish", "store", "category", "tag"} {
		values, ok := sc.Vocab[key]
		if !ok {
			return fmt.Errorf("vocab %q missing", key)
		}

		if size, recorded := sc.VocabSizes[key]; recorded && size != len(values)+1 {
			return fmt.Errorf("vocab_sizes[%q]=%d disagrees with %d values", key, size, len(values))
		}
	}

	return nil
}

// Vocabularies materializes the sidecar's value lists as a vocabulary set.
func (sc *Sidecar) Vocabularies() (*vocab.Set, error) {
	return vocab.FromValueLists(sc.Vocab)
}

// vocabSizes returns table row counts derived from the value lists, never
// the recorded sizes (Validate already proved they agree when present).
func (sc *Sidecar) vocabSizes() map[string]int {
	sizes := make(map[string]int, len(sc.Vocab))
	for key, values := range sc.Vocab {
		sizes[key] = len(values) + 1
	}

	return sizes
}

// SidecarFor builds a sidecar describing freshly-built vocabularies, used
// by the vocabulary export tool and by tests.
func SidecarFor(version string, dim int, set *vocab.Set, pop feature.PopularityStats) *Sidecar {
	return &Sidecar{
		ModelVersion: version,
		EmbeddingDim: dim,
		VocabSizes:   set.Sizes(),
		Vocab:        set.ValueLists(),
		Popularity:   pop,
	}
}
