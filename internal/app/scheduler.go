package app

import (
	"context"
	"errors"
	"time"

	"github.com/bobmcallan/accrue/internal/common"
	"github.com/bobmcallan/accrue/internal/interfaces"
	"github.com/bobmcallan/accrue/internal/models"
)

// StartPayoutScheduler launches the background payout loop. It is a no-op
// when payouts are disabled or the loop is already running.
func (a *App) StartPayoutScheduler() {
	if !a.Config.Payouts.Enabled || a.schedulerCancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel
	a.schedulerDone = make(chan struct{})

	go func() {
		defer close(a.schedulerDone)
		startPayoutScheduler(ctx, a.PayoutRunner, a.Clock, a.Logger,
			a.Config.Payouts.GetInterval(), a.Config.Payouts.GetRunTimeout())
	}()
}

// StopPayoutScheduler cancels the loop and waits for an in-flight run to stop.
func (a *App) StopPayoutScheduler() {
	if a.schedulerCancel == nil {
		return
	}
	a.schedulerCancel()
	<-a.schedulerDone
	a.schedulerCancel = nil
	a.schedulerDone = nil
}

// RunPayouts performs one payout batch now, bounded by the configured run timeout.
func (a *App) RunPayouts(ctx context.Context) (*models.BatchResult, error) {
	return runPayouts(ctx, a.PayoutRunner, a.Clock, a.Logger, a.Config.Payouts.GetRunTimeout())
}

// startPayoutScheduler runs a payout batch on a fixed interval until ctx ends.
func startPayoutScheduler(ctx context.Context, runner interfaces.PayoutRunner, clock interfaces.Clock, logger *common.Logger, interval, runTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Msg("Payout scheduler: started")

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Payout scheduler: stopped")
			return
		case <-ticker.C:
			runPayouts(ctx, runner, clock, logger, runTimeout)
		}
	}
}

func runPayouts(ctx context.Context, runner interfaces.PayoutRunner, clock interfaces.Clock, logger *common.Logger, runTimeout time.Duration) (*models.BatchResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	result, err := runner.Run(runCtx, clock.Now())
	if err != nil {
		if errors.Is(err, models.ErrRunInProgress) {
			logger.Info().Msg("Payout run skipped, previous run still in progress")
		} else {
			logger.Warn().Err(err).Msg("Payout run failed")
		}
		return nil, err
	}
	return result, nil
}
