package seed

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/jarednorman/solidus-friendly-promotions/internal/migration"
	promodomain "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/domain"
	promorepository "github.com/jarednorman/solidus-friendly-promotions/internal/promotion/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*gorm.DB, *snowflake.Node, promodomain.Repository) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return conn, node, promorepository.Provide()
}

func TestLoadPack(t *testing.T) {
	pack, err := LoadPack("testdata/promotions.yml")
	require.NoError(t, err)
	require.Len(t, pack.Categories, 1)
	require.Len(t, pack.Promotions, 2)

	spring := pack.Promotions[0]
	assert.Equal(t, "seasonal", spring.Category)
	assert.True(t, spring.ApplyAutomatically)
	require.Len(t, spring.Rules, 1)
	assert.Equal(t, "gte", spring.Rules[0].Preferences["operator"])
	assert.Equal(t, "percent", spring.Actions[0].Calculator.Type)

	shipping := pack.Promotions[1]
	require.NotNil(t, shipping.PerCodeUsageLimit)
	assert.Equal(t, 100, *shipping.PerCodeUsageLimit)
	assert.Equal(t, []string{"SHIPFREE", "ShipFree2026"}, shipping.Codes)
}

func TestApplyIsRepeatable(t *testing.T) {
	db, node, repo := setup(t)
	ctx := context.Background()
	pack, err := LoadPack("testdata/promotions.yml")
	require.NoError(t, err)

	summary, err := Apply(ctx, db, node, repo, pack, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, Summary{Categories: 1, Promotions: 2, Codes: 2}, summary)

	code, err := repo.FindCode(ctx, db, "SHIPFREE")
	require.NoError(t, err)
	require.NotNil(t, code)
	promo, err := repo.Load(ctx, db, code.PromotionID)
	require.NoError(t, err)
	require.NotNil(t, promo)
	require.NotNil(t, promo.Path)
	assert.Equal(t, "free-shipping", *promo.Path)
	require.Len(t, promo.Actions, 1)
	assert.Equal(t, "free_shipping", promo.Actions[0].CalculatorType)

	summary, err = Apply(ctx, db, node, repo, pack, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, Summary{Skipped: 2}, summary)
}

func TestApplyRejectsInvalidPack(t *testing.T) {
	db, node, repo := setup(t)
	pack, err := ParsePack([]byte(`
promotions:
  - name: Broken
    customer_label: Broken
    actions:
      - type: adjust_line_item
        calculator:
          type: percent
          preferences:
            percent: 150
`))
	require.NoError(t, err)

	_, err = Apply(context.Background(), db, node, repo, pack, nil)
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&promodomain.Promotion{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestApplyRejectsCodesOnAutomaticPromotion(t *testing.T) {
	db, node, repo := setup(t)
	pack, err := ParsePack([]byte(`
promotions:
  - name: Auto
    customer_label: Auto
    apply_automatically: true
    actions:
      - type: adjust_line_item
        calculator:
          type: percent
          preferences:
            percent: 10
    codes:
      - AUTO10
`))
	require.NoError(t, err)

	_, err = Apply(context.Background(), db, node, repo, pack, nil)
	var verrs promodomain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.True(t, verrs.Has("disallowed_with_code"))

	var count int64
	require.NoError(t, db.Model(&promodomain.Promotion{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestParsePackRejectsMalformedYAML(t *testing.T) {
	_, err := ParsePack([]byte("promotions: ["))
	assert.Error(t, err)
}
