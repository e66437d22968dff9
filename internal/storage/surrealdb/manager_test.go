package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/models"
	tcommon "github.com/bobmcallan/accrue/tests/common"
)

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	sc := tcommon.StartSurrealDB(t)

	return &common.Config{
		Environment: "test",
		Storage: common.StorageConfig{
			Backend:   "surrealdb",
			Address:   sc.Address(),
			Namespace: "accrue_test",
			Database:  fmt.Sprintf("mgr_%s_%d", strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()), time.Now().UnixNano()%100000),
			Username:  "root",
			Password:  "root",
		},
	}
}

func TestNewManager(t *testing.T) {
	cfg := testConfig(t)

	mgr, err := NewManager(common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	defer mgr.Close()

	assert.NotNil(t, mgr.PlanStore())
	assert.NotNil(t, mgr.RateOverrideStore())
	assert.NotNil(t, mgr.InvestmentStore())
	assert.NotNil(t, mgr.PayoutStore())
	assert.NotNil(t, mgr.RateChangeStore())
	assert.NotNil(t, mgr.RunStore())
}

func TestNewManagerBadAddress(t *testing.T) {
	cfg := &common.Config{Storage: common.StorageConfig{Address: "ws://127.0.0.1:1/rpc"}}
	_, err := NewManager(common.NewSilentLogger(), cfg)
	assert.Error(t, err)
}

func TestManagerQueriesEmptyTables(t *testing.T) {
	cfg := testConfig(t)
	mgr, err := NewManager(common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	defer mgr.Close()

	ctx := context.Background()
	plans, err := mgr.PlanStore().ListPlans(ctx, false)
	require.NoError(t, err)
	assert.Empty(t, plans)

	list, err := mgr.InvestmentStore().ListByStatus(ctx, models.StatusActive)
	require.NoError(t, err)
	assert.Empty(t, list)

	runs, err := mgr.RunStore().Recent(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestManagerReopenKeepsData(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	first, err := NewManager(common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	require.NoError(t, first.PlanStore().SavePlan(ctx, &models.InvestmentPlan{
		ID: "plan-1", Name: "Term Deposit", BaseRate: decimal.NewFromFloat(5.5), Active: true,
	}))
	first.Close()

	second, err := NewManager(common.NewSilentLogger(), cfg)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.PlanStore().GetPlan(ctx, "plan-1")
	require.NoError(t, err)
	assert.Equal(t, "5.5", got.BaseRate.String())
}
