package catalog

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Interaction is one exported user/dish interaction row (order items plus
// their optional ratings).
type Interaction struct {
	UserID    string
	DishID    string
	StoreID   string
	OrderID   string
	Rating    float64 // 0 when the order item was never rated
	Status    string
	Timestamp time.Time
}

// LabelRule decides which interactions count as positive training labels.
// The platform changed this policy between model versions, so it is
// configuration rather than code.
type LabelRule string

// Supported labeling rules.
const (
	// LabelOrderOrRating marks completed orders and any rated row positive.
	LabelOrderOrRating LabelRule = "order_or_rating"
	// LabelOrderOnly marks only completed orders positive.
	LabelOrderOnly LabelRule = "order_only"
	// LabelAnyInteraction marks every row positive.
	LabelAnyInteraction LabelRule = "any_interaction"
)

// ParseLabelRule validates a configured rule name. Empty defaults to
// LabelOrderOrRating.
func ParseLabelRule(s string) (LabelRule, error) {
	switch LabelRule(s) {
	case "":
		return LabelOrderOrRating, nil
	case LabelOrderOrRating, LabelOrderOnly, LabelAnyInteraction:
		return LabelRule(s), nil
	default:
		return "", fmt.Errorf("unknown label rule %q", s)
	}
}

// Positive reports whether the interaction counts as an engaged example
// under the rule.
func (r LabelRule) Positive(it Interaction) bool {
	completed := strings.EqualFold(it.Status, "completed") || strings.EqualFold(it.Status, "delivered")

	switch r {
	case LabelOrderOnly:
		return completed
	case LabelAnyInteraction:
		return true
	default:
		return completed || it.Rating > 0
	}
}

// LoadInteractions reads interaction.csv from dir. The file is optional
// (serving does not need it); callers that require it treat an empty result
// as an error themselves.
func LoadInteractions(dir string, logger *slog.Logger) ([]Interaction, error) {
	rows, err := readTable(filepath.Join(dir, interactionsFile))
	if err != nil {
		return nil, err
	}

	out := make([]Interaction, 0, len(rows))

	for _, row := range rows {
		it := Interaction{
			UserID:  row["user_id"],
			DishID:  row["dish_id"],
			StoreID: row["store_id"],
			OrderID: row["order_id"],
			Rating:  parseFloatOr(row["rating_value"], 0),
			Status:  row["status"],
		}

		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(row["timestamp"])); err == nil {
			it.Timestamp = ts
		} else if logger != nil {
			logger.Warn("unparseable interaction timestamp", "value", row["timestamp"])
		}

		out = append(out, it)
	}

	return out, nil
}
