package catalog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/platefeed/recsys/internal/models"
)

// File names produced by the export pipeline.
const (
	usersFile        = "users.csv"
	dishesFile       = "dishes.csv"
	storesFile       = "stores.csv"
	interactionsFile = "interaction.csv"
)

var tagFiles = map[models.Namespace]string{
	models.NamespaceFood:    "food_tags.csv",
	models.NamespaceTaste:   "taste_tags.csv",
	models.NamespaceCooking: "cooking_method_tags.csv",
	models.NamespaceCulture: "culture_tags.csv",
}

// LoadDir reads a full export snapshot from dir. Missing required files are
// an error; malformed rows degrade to defaults and are logged, never fatal,
// so serving survives dirty catalog data.
func LoadDir(dir string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var tags []models.Tag

	for _, ns := range models.Namespaces {
		nsTags, err := loadTags(filepath.Join(dir, tagFiles[ns]), ns)
		if err != nil {
			return nil, fmt.Errorf("load %s tags: %w", ns, err)
		}

		tags = append(tags, nsTags...)
	}

	users, err := loadUsers(filepath.Join(dir, usersFile), logger)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	dishes, err := loadDishes(filepath.Join(dir, dishesFile), logger)
	if err != nil {
		return nil, fmt.Errorf("load dishes: %w", err)
	}

	stores, err := loadStores(filepath.Join(dir, storesFile), logger)
	if err != nil {
		return nil, fmt.Errorf("load stores: %w", err)
	}

	logger.Info("catalog loaded",
		"users", len(users), "dishes", len(dishes), "stores", len(stores), "tags", len(tags))

	return New(users, dishes, stores, tags), nil
}

// readTable reads a headered CSV into column-name → value maps.
func readTable(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // tolerate ragged rows; missing cells degrade to defaults

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	var rows []map[string]string

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}

		rows = append(rows, row)
	}

	return rows, nil
}

func loadTags(path string, ns models.Namespace) ([]models.Tag, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}

	tags := make([]models.Tag, 0, len(rows))

	for _, row := range rows {
		name := strings.TrimSpace(row["name"])
		if name == "" {
			continue
		}

		tags = append(tags, models.Tag{ID: row["id"], Name: name, Namespace: ns})
	}

	return tags, nil
}

func loadUsers(path string, logger *slog.Logger) ([]*models.User, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, len(rows))

	for _, row := range rows {
		id := strings.TrimSpace(row["id"])
		if id == "" {
			continue
		}

		users = append(users, &models.User{
			ID:           id,
			Name:         row["name"],
			Age:          parseFloatCell(row["age"]),
			Gender:       row["gender"],
			LikedTags:    ParseListCell(row["liked_tags"], logger),
			DislikedTags: ParseListCell(row["disliked_tags"], logger),
			AllergyTags:  ParseListCell(row["allergy_tags"], logger),
		})
	}

	return users, nil
}

func loadDishes(path string, logger *slog.Logger) ([]*models.Dish, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}

	dishes := make([]*models.Dish, 0, len(rows))

	for _, row := range rows {
		id := strings.TrimSpace(row["id"])
		if id == "" {
			continue
		}

		dishes = append(dishes, &models.Dish{
			ID:          id,
			StoreID:     row["store_id"],
			Name:        row["name"],
			Category:    row["category"],
			Price:       parseFloatCell(row["price"]),
			Rating:      parseFloatCell(row["rating"]),
			OrderCount:  int(parseFloatOr(row["order_times"], 0)),
			FoodTags:    ParseListCell(row["food_tags"], logger),
			TasteTags:   ParseListCell(row["taste_tags"], logger),
			CookingTags: ParseListCell(row["cooking_method_tags"], logger),
			CultureTags: ParseListCell(row["culture_tags"], logger),
		})
	}

	return dishes, nil
}

func loadStores(path string, logger *slog.Logger) ([]*models.Store, error) {
	rows, err := readTable(path)
	if err != nil {
		return nil, err
	}

	stores := make([]*models.Store, 0, len(rows))

	for _, row := range rows {
		id := strings.TrimSpace(row["id"])
		if id == "" {
			continue
		}

		stores = append(stores, &models.Store{
			ID:         id,
			Name:       row["name"],
			PriceRange: row["price_range"],
			Rating:     parseFloatOr(row["rating"], 0),
		})
	}

	return stores, nil
}

// ParseListCell parses a serialized tag-list cell. The export writes
// Python-style lists with single quotes (e.g. "['Phở', 'Cay']"); plain JSON
// arrays are accepted too. Malformed input degrades to an empty list with a
// warning rather than failing the row.
func ParseListCell(cell string, logger *slog.Logger) []string {
	cell = strings.TrimSpace(cell)
	if cell == "" || cell == "[]" {
		return nil
	}

	if !strings.HasPrefix(cell, "[") {
		if logger != nil {
			logger.Warn("malformed list cell, using empty list", "cell", cell)
		}

		return nil
	}

	var out []string
	if err := json.Unmarshal([]byte(cell), &out); err == nil {
		return dedupe(out)
	}

	// Python repr: swap single quotes for double quotes and retry. Names
	// containing apostrophes will fail this pass and degrade to empty.
	if err := json.Unmarshal([]byte(strings.ReplaceAll(cell, "'", `"`)), &out); err == nil {
		return dedupe(out)
	}

	if logger != nil {
		logger.Warn("malformed list cell, using empty list", "cell", cell)
	}

	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		if _, dup := seen[v]; dup {
			continue
		}

		seen[v] = struct{}{}
		out = append(out, v)
	}

	if len(out) == 0 {
		return nil
	}

	return out
}

// parseFloatCell parses a numeric cell, returning NaN for empty or
// malformed values so the feature encoder can substitute its defaults.
func parseFloatCell(cell string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return math.NaN()
	}

	return v
}

func parseFloatOr(cell string, fallback float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return fallback
	}

	return v
}
