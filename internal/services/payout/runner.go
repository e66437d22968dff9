package payout

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/metrics"
	"github.com/bobmcallan/accrue/internal/models"
)

// maxCatchUp bounds how many overdue periods one investment pays in a single run.
const maxCatchUp = 240

// Compile-time interface check
var _ interfaces.PayoutRunner = (*Runner)(nil)

// Runner pays every due investment through a bounded worker pool.
// Only one run may be in flight at a time.
type Runner struct {
	lifecycle     interfaces.LifecycleService
	storage       interfaces.StorageManager
	metrics       *metrics.Metrics
	logger        *common.Logger
	maxConcurrent int

	running atomic.Bool
}

// NewRunner creates a payout runner. maxConcurrent <= 0 means 4 workers.
func NewRunner(lifecycle interfaces.LifecycleService, storage interfaces.StorageManager, m *metrics.Metrics, logger *common.Logger, maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Runner{
		lifecycle:     lifecycle,
		storage:       storage,
		metrics:       m,
		logger:        logger,
		maxConcurrent: maxConcurrent,
	}
}

// Run is BatchProcessDuePayouts: it pays every active investment whose next
// payout is due at or before now and matures those past their maturity date.
// A failure on one investment is logged and skipped; because its last payout
// date was not advanced it is retried on the next run.
func (r *Runner) Run(ctx context.Context, now time.Time) (*models.BatchResult, error) {
	if !r.running.CompareAndSwap(false, true) {
		r.metrics.BatchRejected()
		return nil, models.ErrRunInProgress
	}
	defer r.running.Store(false)

	result := &models.BatchResult{
		RunID:     uuid.New().String(),
		AsOf:      now,
		StartedAt: time.Now(),
		TotalPaid: decimal.Zero,
	}

	active, err := r.storage.InvestmentStore().ListByStatus(ctx, models.StatusActive)
	if err != nil {
		r.metrics.BatchFailed(time.Since(result.StartedAt))
		return nil, fmt.Errorf("failed to list active investments: %w", err)
	}
	result.Scanned = len(active)

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan *models.Investment)
	)

	record := func(inv *models.Investment, outcome string, paid decimal.Decimal, itemErr error) {
		mu.Lock()
		defer mu.Unlock()
		result.TotalPaid = result.TotalPaid.Add(paid)
		switch outcome {
		case models.ItemPaid:
			result.Paid++
		case models.ItemMatured:
			result.Matured++
		case models.ItemFailed:
			result.Failed++
			result.Errors = append(result.Errors, models.BatchItemError{InvestmentID: inv.ID, Error: itemErr.Error()})
		default:
			result.Skipped++
		}
	}

	for i := 0; i < r.maxConcurrent; i++ {
		name := fmt.Sprintf("payout-worker-%d", i)
		r.safeGo(&wg, name, func() {
			for inv := range jobs {
				outcome, paid, itemErr := r.processSafely(ctx, inv, now)
				if itemErr != nil {
					r.logger.Warn().
						Str("run_id", result.RunID).
						Str("investment_id", inv.ID).
						Err(itemErr).
						Msg("Payout batch item failed")
				}
				record(inv, outcome, paid, itemErr)
			}
		})
	}

feed:
	for _, inv := range active {
		select {
		case jobs <- inv:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	result.FinishedAt = time.Now()
	result.DurationMS = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
	r.metrics.ObserveBatch(result)
	r.metrics.Paid(result.TotalPaid.InexactFloat64())

	if err := r.storage.RunStore().Record(ctx, result); err != nil {
		r.logger.Warn().Err(err).Str("run_id", result.RunID).Msg("Failed to record payout run")
	}

	r.logger.Info().
		Str("run_id", result.RunID).
		Int("scanned", result.Scanned).
		Int("paid", result.Paid).
		Int("matured", result.Matured).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Str("total_paid", result.TotalPaid.String()).
		Int64("duration_ms", result.DurationMS).
		Msg("Payout batch complete")

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// processItem pays every period of inv due by now, then matures it when the
// final payout has been made and the maturity date has passed.
func (r *Runner) processItem(ctx context.Context, inv *models.Investment, now time.Time) (string, decimal.Decimal, error) {
	outcome := models.ItemSkipped
	paid := decimal.Zero

	for i := 0; i < maxCatchUp; i++ {
		if ctx.Err() != nil {
			return models.ItemFailed, paid, ctx.Err()
		}
		due, err := NextPayoutDate(inv)
		if errors.Is(err, models.ErrNoPayoutDue) {
			break
		}
		if err != nil {
			return models.ItemFailed, paid, err
		}
		if due.After(now) {
			break
		}

		rec, err := r.lifecycle.ProcessPayout(ctx, inv.ID)
		if errors.Is(err, models.ErrPayoutNotDue) {
			break
		}
		if err != nil {
			return models.ItemFailed, paid, err
		}
		paid = paid.Add(rec.Amount)
		outcome = models.ItemPaid

		if inv, err = r.lifecycle.Get(ctx, inv.ID); err != nil {
			return models.ItemFailed, paid, err
		}
		if inv.Status != models.StatusActive {
			return outcome, paid, nil
		}
	}

	if PaidThroughMaturity(inv) && !now.Before(inv.MaturityDate) {
		if _, err := r.lifecycle.Mature(ctx, inv.ID); err != nil {
			return models.ItemFailed, paid, fmt.Errorf("mature: %w", err)
		}
		return models.ItemMatured, paid, nil
	}
	return outcome, paid, nil
}

// processSafely turns a panic while handling one investment into an item
// failure so the worker keeps draining the queue.
func (r *Runner) processSafely(ctx context.Context, inv *models.Investment, now time.Time) (outcome string, paid decimal.Decimal, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("investment_id", inv.ID).
				Str("panic", fmt.Sprintf("%v", rec)).
				Str("stack", string(debug.Stack())).
				Msg("Recovered from panic processing payout")
			outcome, paid, err = models.ItemFailed, decimal.Zero, fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.processItem(ctx, inv, now)
}

// safeGo launches a worker with panic recovery and logging.
func (r *Runner) safeGo(wg *sync.WaitGroup, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error().
					Str("goroutine", name).
					Str("panic", fmt.Sprintf("%v", rec)).
					Str("stack", string(debug.Stack())).
					Msg("Recovered from panic in payout worker")
			}
		}()
		fn()
	}()
}
