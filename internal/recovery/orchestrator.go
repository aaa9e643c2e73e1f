// Package recovery detects process crashes through a persisted
// heartbeat and drives the post-crash reconciliation run.
package recovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockTradeBot/internal/domain"
	"stockTradeBot/internal/ports"
	"stockTradeBot/internal/reconcile"
)

// orphanScanWindow bounds how far back the orphaned-trade scan looks.
const orphanScanWindow = 24 * time.Hour

// Report is the operator-facing outcome of one recovery run.
type Report struct {
	FirstRun           bool
	CrashDetected      bool
	HeartbeatGap       time.Duration
	ReconcileSkipped   bool
	DiscrepanciesFound int
	MajorDiscrepancy   bool
	OrphanedTrades     []int64
	Actions            []string
	RanAt              time.Time
}

// Orchestrator owns the heartbeat record and the recovery flow. The
// heartbeat is one logical row, continuously overwritten; recovery
// mutates shared trade state and must not run concurrently with a
// reconciliation pass it did not start.
type Orchestrator struct {
	system     ports.SystemStateRepository
	trades     ports.TradeRepository
	orders     ports.OrderRepository
	broker     ports.BrokerGateway
	reconciler *reconcile.Reconciler
	notifier   ports.Notifier
	logger     ports.Logger

	crashTimeout   time.Duration
	majorThreshold float64
}

// Config wires a recovery orchestrator.
type Config struct {
	System     ports.SystemStateRepository
	Trades     ports.TradeRepository
	Orders     ports.OrderRepository
	Broker     ports.BrokerGateway
	Reconciler *reconcile.Reconciler
	Notifier   ports.Notifier
	Logger     ports.Logger

	CrashTimeout   time.Duration
	MajorThreshold float64
}

// NewOrchestrator creates a recovery orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.CrashTimeout <= 0 {
		cfg.CrashTimeout = 5 * time.Minute
	}
	if cfg.MajorThreshold <= 0 {
		cfg.MajorThreshold = 100.0
	}
	return &Orchestrator{
		system:         cfg.System,
		trades:         cfg.Trades,
		orders:         cfg.Orders,
		broker:         cfg.Broker,
		reconciler:     cfg.Reconciler,
		notifier:       cfg.Notifier,
		logger:         cfg.Logger,
		crashTimeout:   cfg.CrashTimeout,
		majorThreshold: cfg.MajorThreshold,
	}
}

// Heartbeat records liveness. Called periodically while the process runs.
func (o *Orchestrator) Heartbeat(ctx context.Context) error {
	if err := o.system.UpdateHeartbeat(ctx, domain.HeartbeatRunning); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// MarkStopping records a clean shutdown so the next start is not
// misread as a crash recovery with a stale gap.
func (o *Orchestrator) MarkStopping(ctx context.Context) error {
	if err := o.system.UpdateHeartbeat(ctx, domain.HeartbeatStopping); err != nil {
		return fmt.Errorf("failed to record shutdown heartbeat: %w", err)
	}
	return nil
}

// DetectCrash reports whether the last heartbeat is stale enough to
// indicate the previous process died without a clean shutdown. A
// missing heartbeat is a first run and a stale heartbeat labelled
// stopping is a planned shutdown; neither is a crash.
func (o *Orchestrator) DetectCrash(ctx context.Context) (bool, time.Duration, error) {
	last, err := o.system.LastHeartbeat(ctx)
	if err != nil {
		return false, 0, fmt.Errorf("failed to load last heartbeat: %w", err)
	}
	if last == nil {
		return false, 0, nil
	}
	gap := time.Since(last.LastHeartbeat)
	crashed := gap > o.crashTimeout && last.Status != domain.HeartbeatStopping
	return crashed, gap, nil
}

// RunRecovery executes the full recovery flow: crash detection,
// reconciliation (when the broker is reachable), an orphaned-trade
// scan, a fresh heartbeat, and an audit event. A failure at any step
// still writes a RecoveryEvent before the error is returned — recovery
// failure must be loud, never silent.
func (o *Orchestrator) RunRecovery(ctx context.Context) (*Report, error) {
	report := &Report{RanAt: time.Now().UTC()}

	last, err := o.system.LastHeartbeat(ctx)
	if err != nil {
		return nil, o.failRecovery(ctx, report, fmt.Errorf("failed to load last heartbeat: %w", err))
	}
	if last == nil {
		report.FirstRun = true
		report.Actions = append(report.Actions, "first run, no prior heartbeat")
	} else {
		report.HeartbeatGap = time.Since(last.LastHeartbeat)
		report.CrashDetected = report.HeartbeatGap > o.crashTimeout && last.Status != domain.HeartbeatStopping
		if report.CrashDetected {
			report.Actions = append(report.Actions,
				fmt.Sprintf("crash detected, heartbeat gap %s exceeds %s", report.HeartbeatGap.Round(time.Second), o.crashTimeout))
		}
	}

	if o.broker.IsConnected() {
		recReport, err := o.reconciler.Reconcile(ctx)
		if err != nil {
			return nil, o.failRecovery(ctx, report, fmt.Errorf("reconciliation failed during recovery: %w", err))
		}
		report.DiscrepanciesFound = len(recReport.Discrepancies)
		report.MajorDiscrepancy = reconcile.IsMajor(recReport.TotalAbsoluteValue, o.majorThreshold)
		if report.DiscrepanciesFound > 0 {
			report.Actions = append(report.Actions,
				fmt.Sprintf("%d position discrepancies found, total $%s", report.DiscrepanciesFound, recReport.TotalAbsoluteValue.StringFixed(2)))
		}
		if report.MajorDiscrepancy {
			report.Actions = append(report.Actions,
				fmt.Sprintf("total discrepancy exceeds $%.2f, operator review required", o.majorThreshold))
		}
	} else {
		report.ReconcileSkipped = true
		report.Actions = append(report.Actions, "reconciliation skipped, broker not connected")
	}

	orphans, err := o.scanOrphanedTrades(ctx)
	if err != nil {
		return nil, o.failRecovery(ctx, report, err)
	}
	report.OrphanedTrades = orphans
	if len(orphans) > 0 {
		report.Actions = append(report.Actions,
			fmt.Sprintf("%d recent trades have no broker order reference", len(orphans)))
	}

	if err := o.system.UpdateHeartbeat(ctx, domain.HeartbeatRunning); err != nil {
		return nil, o.failRecovery(ctx, report, fmt.Errorf("failed to write post-recovery heartbeat: %w", err))
	}

	if _, err := o.system.AppendRecoveryEvent(ctx, &domain.RecoveryEvent{
		OccurredAt:         report.RanAt,
		Success:            true,
		DiscrepanciesFound: report.DiscrepanciesFound,
		Message:            recoveryMessage(report),
		ActionsTaken:       strings.Join(report.Actions, "; "),
	}); err != nil {
		return nil, fmt.Errorf("failed to append recovery event: %w", err)
	}

	o.notifyReport(ctx, report)
	o.logger.Info(ctx, "Recovery run complete", map[string]interface{}{
		"firstRun":       report.FirstRun,
		"crashDetected":  report.CrashDetected,
		"discrepancies":  report.DiscrepanciesFound,
		"orphanedTrades": len(report.OrphanedTrades),
	})
	return report, nil
}

// failRecovery persists a failure event before propagating the error.
func (o *Orchestrator) failRecovery(ctx context.Context, report *Report, cause error) error {
	o.logger.Error(ctx, cause, "Recovery run failed")
	if _, err := o.system.AppendRecoveryEvent(ctx, &domain.RecoveryEvent{
		OccurredAt:         report.RanAt,
		Success:            false,
		DiscrepanciesFound: report.DiscrepanciesFound,
		Message:            fmt.Sprintf("recovery failed: %v", cause),
		ActionsTaken:       strings.Join(report.Actions, "; "),
	}); err != nil {
		o.logger.Error(ctx, err, "Failed to persist recovery failure event")
	}
	return cause
}

// scanOrphanedTrades finds recent trades with no linked orders. Such a
// trade means the process died between fill confirmation and protective
// order persistence, so its exits may be missing at the broker.
func (o *Orchestrator) scanOrphanedTrades(ctx context.Context) ([]int64, error) {
	cutoff := time.Now().UTC().Add(-orphanScanWindow)
	recent, err := o.trades.FindTradesCreatedSince(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to scan recent trades: %w", err)
	}

	var orphans []int64
	for _, t := range recent {
		orders, err := o.orders.FindOrdersByTrade(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load orders for trade %d: %w", t.ID, err)
		}
		if len(orders) == 0 {
			orphans = append(orphans, t.ID)
			o.logger.Warn(ctx, "Orphaned trade has no broker order reference", map[string]interface{}{"tradeID": t.ID})
		}
	}
	return orphans, nil
}

func recoveryMessage(report *Report) string {
	switch {
	case report.FirstRun:
		return "first run, state initialized"
	case report.CrashDetected:
		return "recovered from detected crash"
	default:
		return "routine recovery check"
	}
}

// notifyReport emits the operator-facing summary. Notification failure
// is logged, not propagated: the recovery itself succeeded.
func (o *Orchestrator) notifyReport(ctx context.Context, report *Report) {
	severity := ports.SeverityInfo
	if report.CrashDetected || report.MajorDiscrepancy {
		severity = ports.SeverityCritical
	} else if report.DiscrepanciesFound > 0 || len(report.OrphanedTrades) > 0 {
		severity = ports.SeverityWarning
	}

	subject := "Recovery run complete"
	if report.CrashDetected {
		subject = "Recovered from crash"
	}
	body := recoveryMessage(report)
	if len(report.Actions) > 0 {
		body += "\n- " + strings.Join(report.Actions, "\n- ")
	}
	if err := o.notifier.Notify(ctx, severity, subject, body); err != nil {
		o.logger.Error(ctx, err, "Failed to send recovery report")
	}
}
