package surrealdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

var _ interfaces.InvestmentStore = (*InvestmentStore)(nil)

// InvestmentStore writes an investment together with its payout records and
// rate changes in one SurrealDB transaction, guarded by the stored version.
type InvestmentStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewInvestmentStore(db *surrealdb.DB, logger *common.Logger) *InvestmentStore {
	return &InvestmentStore{db: db, logger: logger}
}

// Markers thrown from inside the commit transaction.
const (
	throwNotFound = "investment_not_found"
	throwConflict = "investment_version_conflict"
)

func (s *InvestmentStore) Get(ctx context.Context, id string) (*models.Investment, error) {
	row, err := surrealdb.Select[investmentRow](ctx, s.db, surrealmodels.NewRecordID(tableInvestment, id))
	if err != nil {
		if isNotFoundError(err) {
			return nil, models.ErrInvestmentNotFound
		}
		return nil, fmt.Errorf("failed to select investment: %w", err)
	}
	if row == nil || row.InvestmentID == "" {
		return nil, models.ErrInvestmentNotFound
	}
	return row.model(), nil
}

func (s *InvestmentStore) Create(ctx context.Context, u *interfaces.InvestmentUpdate) error {
	row := toInvestmentRow(u.Investment)
	row.Version = 1

	var sb strings.Builder
	vars := map[string]any{
		"rid": surrealmodels.NewRecordID(tableInvestment, u.Investment.ID),
		"inv": row,
	}
	sb.WriteString("BEGIN TRANSACTION;\n")
	sb.WriteString("CREATE $rid CONTENT $inv;\n")
	writeChildren(&sb, vars, u)
	sb.WriteString("COMMIT TRANSACTION;")

	if _, err := surrealdb.Query[any](ctx, s.db, sb.String(), vars); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return models.ErrVersionConflict
		}
		return fmt.Errorf("failed to create investment: %w", err)
	}
	u.Investment.Version = 1
	return nil
}

func (s *InvestmentStore) Commit(ctx context.Context, u *interfaces.InvestmentUpdate) error {
	expected := u.Investment.Version
	row := toInvestmentRow(u.Investment)
	row.Version = expected + 1

	var sb strings.Builder
	vars := map[string]any{
		"rid":      surrealmodels.NewRecordID(tableInvestment, u.Investment.ID),
		"inv":      row,
		"expected": expected,
	}
	sb.WriteString("BEGIN TRANSACTION;\n")
	sb.WriteString("LET $current = (SELECT VALUE version FROM $rid)[0];\n")
	fmt.Fprintf(&sb, "IF $current = NONE { THROW %q };\n", throwNotFound)
	fmt.Fprintf(&sb, "IF $current != $expected { THROW %q };\n", throwConflict)
	sb.WriteString("UPSERT $rid CONTENT $inv;\n")
	writeChildren(&sb, vars, u)
	sb.WriteString("COMMIT TRANSACTION;")

	if _, err := surrealdb.Query[any](ctx, s.db, sb.String(), vars); err != nil {
		msg := err.Error()
		switch {
		case strings.Contains(msg, throwConflict):
			return models.ErrVersionConflict
		case strings.Contains(msg, throwNotFound):
			return models.ErrInvestmentNotFound
		case isConflictError(err):
			return models.ErrVersionConflict
		}
		return fmt.Errorf("failed to commit investment: %w", err)
	}
	u.Investment.Version = expected + 1
	return nil
}

// writeChildren appends the payout and rate change writes of u.
func writeChildren(sb *strings.Builder, vars map[string]any, u *interfaces.InvestmentUpdate) {
	for i, rec := range u.Payouts {
		rid, body := fmt.Sprintf("p%d", i), fmt.Sprintf("p%d_row", i)
		vars[rid] = surrealmodels.NewRecordID(tablePayout, payoutKey(rec))
		vars[body] = toPayoutRow(rec)
		fmt.Fprintf(sb, "UPSERT $%s CONTENT $%s;\n", rid, body)
	}
	for i, rc := range u.RateChanges {
		rid, body := fmt.Sprintf("rc%d", i), fmt.Sprintf("rc%d_row", i)
		vars[rid] = surrealmodels.NewRecordID(tableRateChange, rc.ID)
		vars[body] = toRateChangeRow(rc)
		fmt.Fprintf(sb, "CREATE $%s CONTENT $%s;\n", rid, body)
	}
}

func (s *InvestmentStore) ListByUser(ctx context.Context, userID string) ([]*models.Investment, error) {
	return s.list(ctx, "SELECT * FROM investment WHERE user_id = $value ORDER BY created_at ASC", userID)
}

func (s *InvestmentStore) ListByStatus(ctx context.Context, status models.InvestmentStatus) ([]*models.Investment, error) {
	return s.list(ctx, "SELECT * FROM investment WHERE status = $value ORDER BY created_at ASC", string(status))
}

func (s *InvestmentStore) list(ctx context.Context, sql, value string) ([]*models.Investment, error) {
	res, err := surrealdb.Query[[]investmentRow](ctx, s.db, sql, map[string]any{"value": value})
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	var out []*models.Investment
	for _, r := range rows(res) {
		out = append(out, r.model())
	}
	return out, nil
}
