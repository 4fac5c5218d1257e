package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	"github.com/jarednorman/solidus-friendly-promotions/internal/promotion/engine"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Pack is a yaml fixture of promotion categories and promotions.
type Pack struct {
	Categories []Category  `yaml:"categories"`
	Promotions []Promotion `yaml:"promotions"`
}

type Category struct {
	Name string `yaml:"name"`
	Code string `yaml:"code"`
}

type Promotion struct {
	Name               string     `yaml:"name"`
	Description        string     `yaml:"description"`
	CustomerLabel      string     `yaml:"customer_label"`
	Path               string     `yaml:"path"`
	Category           string     `yaml:"category"`
	Lane               string     `yaml:"lane"`
	MatchPolicy        string     `yaml:"match_policy"`
	UsageLimit         *int       `yaml:"usage_limit"`
	PerCodeUsageLimit  *int       `yaml:"per_code_usage_limit"`
	StartsAt           *time.Time `yaml:"starts_at"`
	ExpiresAt          *time.Time `yaml:"expires_at"`
	ApplyAutomatically bool       `yaml:"apply_automatically"`
	Advertise          bool       `yaml:"advertise"`
	Rules              []Rule     `yaml:"rules"`
	Actions            []Action   `yaml:"actions"`
	Codes              []string   `yaml:"codes"`
}

type Rule struct {
	Type        string         `yaml:"type"`
	Preferences map[string]any `yaml:"preferences"`
}

type Action struct {
	Type       string     `yaml:"type"`
	Calculator Calculator `yaml:"calculator"`
}

type Calculator struct {
	Type        string         `yaml:"type"`
	Preferences map[string]any `yaml:"preferences"`
}

// Summary counts what Apply wrote.
type Summary struct {
	Categories int
	Promotions int
	Skipped    int
	Codes      int
}

func LoadPack(path string) (Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Pack{}, err
	}
	return ParsePack(data)
}

func ParsePack(data []byte) (Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return Pack{}, fmt.Errorf("parse seed pack: %w", err)
	}
	return pack, nil
}

// Apply writes the pack in one transaction. Categories are matched by code and
// promotions by name, so running a pack twice writes nothing the second time.
func Apply(ctx context.Context, db *gorm.DB, node *snowflake.Node, repo promodomain.Repository, pack Pack, log *zap.Logger) (Summary, error) {
	if db == nil {
		return Summary{}, errors.New("seed database handle is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("seed")

	var summary Summary
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		categories, err := ensureCategories(ctx, tx, node, repo, pack.Categories, &summary)
		if err != nil {
			return err
		}
		for _, p := range pack.Promotions {
			created, codes, err := ensurePromotion(ctx, tx, node, repo, p, categories)
			if err != nil {
				return fmt.Errorf("seed promotion %q: %w", p.Name, err)
			}
			if !created {
				summary.Skipped++
				log.Debug("promotion already seeded", zap.String("name", p.Name))
				continue
			}
			summary.Promotions++
			summary.Codes += codes
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	log.Info("seed pack applied",
		zap.Int("categories", summary.Categories),
		zap.Int("promotions", summary.Promotions),
		zap.Int("skipped", summary.Skipped),
		zap.Int("codes", summary.Codes),
	)
	return summary, nil
}

func ensureCategories(ctx context.Context, tx *gorm.DB, node *snowflake.Node, repo promodomain.Repository, seeds []Category, summary *Summary) (map[string]snowflake.ID, error) {
	out := make(map[string]snowflake.ID, len(seeds))
	for _, c := range seeds {
		code := strings.TrimSpace(c.Code)
		if code == "" {
			return nil, fmt.Errorf("category %q has no code", c.Name)
		}
		var existing []promodomain.PromotionCategory
		if err := tx.WithContext(ctx).Where("code = ?", code).Limit(1).Find(&existing).Error; err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			out[code] = existing[0].ID
			continue
		}
		now := time.Now().UTC()
		category := &promodomain.PromotionCategory{
			ID:        node.Generate(),
			Name:      strings.TrimSpace(c.Name),
			Code:      code,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repo.InsertCategory(ctx, tx, category); err != nil {
			return nil, err
		}
		out[code] = category.ID
		summary.Categories++
	}
	return out, nil
}

func ensurePromotion(ctx context.Context, tx *gorm.DB, node *snowflake.Node, repo promodomain.Repository, seed Promotion, categories map[string]snowflake.ID) (bool, int, error) {
	var count int64
	if err := tx.WithContext(ctx).Model(&promodomain.Promotion{}).Where("name = ?", strings.TrimSpace(seed.Name)).Count(&count).Error; err != nil {
		return false, 0, err
	}
	if count > 0 {
		return false, 0, nil
	}

	now := time.Now().UTC()
	promo := &promodomain.Promotion{
		ID:                 node.Generate(),
		Name:               seed.Name,
		CustomerLabel:      seed.CustomerLabel,
		Lane:               promodomain.Lane(seed.Lane),
		MatchPolicy:        promodomain.MatchPolicy(seed.MatchPolicy),
		UsageLimit:         seed.UsageLimit,
		PerCodeUsageLimit:  seed.PerCodeUsageLimit,
		StartsAt:           seed.StartsAt,
		ExpiresAt:          seed.ExpiresAt,
		ApplyAutomatically: seed.ApplyAutomatically,
		Advertise:          seed.Advertise,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if seed.Description != "" {
		promo.Description = &seed.Description
	}
	if seed.Path != "" {
		promo.Path = &seed.Path
	}
	if seed.Category != "" {
		id, ok := categories[seed.Category]
		if !ok {
			return false, 0, fmt.Errorf("unknown category %q", seed.Category)
		}
		promo.CategoryID = &id
	}
	promo.Normalize()
	if err := promo.Validate(); err != nil {
		return false, 0, err
	}
	if len(seed.Codes) > 0 {
		if err := promo.ValidateCodable(); err != nil {
			return false, 0, err
		}
	}

	for _, r := range seed.Rules {
		prefs, err := preferences(r.Preferences)
		if err != nil {
			return false, 0, err
		}
		promo.Rules = append(promo.Rules, &promodomain.PromotionRule{
			ID:          node.Generate(),
			PromotionID: promo.ID,
			Type:        r.Type,
			Preferences: prefs,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	for _, a := range seed.Actions {
		prefs, err := preferences(a.Calculator.Preferences)
		if err != nil {
			return false, 0, err
		}
		promotionID := promo.ID
		promo.Actions = append(promo.Actions, &promodomain.PromotionAction{
			ID:                    node.Generate(),
			PromotionID:           &promotionID,
			Type:                  a.Type,
			CalculatorType:        a.Calculator.Type,
			CalculatorPreferences: prefs,
			CreatedAt:             now,
			UpdatedAt:             now,
		})
	}
	// building fails fast on unknown types and bad preferences
	if _, err := engine.Build(promo); err != nil {
		return false, 0, err
	}
	if err := repo.Insert(ctx, tx, promo); err != nil {
		return false, 0, err
	}

	codes := make([]*promodomain.PromotionCode, 0, len(seed.Codes))
	for _, value := range seed.Codes {
		codes = append(codes, &promodomain.PromotionCode{
			ID:          node.Generate(),
			PromotionID: promo.ID,
			Value:       promodomain.NormalizeCode(value),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	if len(codes) > 0 {
		if err := repo.InsertCodes(ctx, tx, codes); err != nil {
			return false, 0, err
		}
	}
	return true, len(codes), nil
}

func preferences(values map[string]any) (datatypes.JSON, error) {
	if len(values) == 0 {
		return datatypes.JSON("{}"), nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", promodomain.ErrInvalidPreferences, err)
	}
	return datatypes.JSON(raw), nil
}
