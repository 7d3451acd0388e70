package usage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/promptability/Website-sub002/pkg/db/models"
	"github.com/promptability/Website-sub002/pkg/enums"
	pkgerrors "github.com/promptability/Website-sub002/pkg/errors"
	"github.com/promptability/Website-sub002/pkg/logger"
	"github.com/promptability/Website-sub002/pkg/metrics"
	"github.com/promptability/Website-sub002/pkg/pagination"
	"gorm.io/gorm"
)

// maxCASAttempts bounds the reload/re-evaluate loop on version conflicts.
const maxCASAttempts = 5

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LedgerParams wires the ledger's collaborators.
type LedgerParams struct {
	Repo              Repository
	TransactionRunner txRunner
	Location          *time.Location
	Clock             func() time.Time
	Metrics           *metrics.EntitlementMetrics
	Logger            *logger.Logger
}

// Ledger owns the per-user usage counters and applies rollover lazily on read.
type Ledger struct {
	repo     Repository
	txRunner txRunner
	loc      *time.Location
	now      func() time.Time
	metrics  *metrics.EntitlementMetrics
	logg     *logger.Logger
}

// NewLedger validates params and returns a ledger.
func NewLedger(params LedgerParams) (*Ledger, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "usage repository required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{
		repo:     params.Repo,
		txRunner: params.TransactionRunner,
		loc:      loc,
		now:      clock,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// WithTx returns a ledger whose reads and writes join tx.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	if tx == nil {
		return l
	}
	clone := *l
	clone.repo = l.repo.WithTx(tx)
	clone.txRunner = inlineTx{tx: tx}
	return &clone
}

// Location is the reference timezone for daily rollover.
func (l *Ledger) Location() *time.Location {
	return l.loc
}

// GetOrCreate returns the user's ledger with rollover applied, creating a free
// ledger on first access.
func (l *Ledger) GetOrCreate(ctx context.Context, userID string) (*models.UsageLedger, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		now := l.clock()
		current, err := l.repo.FindByUserID(ctx, userID)
		if err != nil {
			return nil, storageError(err, "load usage ledger")
		}
		if current == nil {
			fresh := newLedger(userID, enums.PlanTierFree, now)
			created, err := l.repo.InsertIfAbsent(ctx, fresh)
			if err != nil {
				return nil, storageError(err, "create usage ledger")
			}
			if created {
				return fresh, nil
			}
			// another request created it first; reload theirs
			continue
		}

		next, updates := rollover(*current, now, l.loc)
		if len(updates) == 0 {
			return current, nil
		}
		swapped, err := l.repo.CompareAndSwap(ctx, userID, current.Version, updates)
		if err != nil {
			return nil, storageError(err, "apply usage rollover")
		}
		if swapped {
			next.Version = current.Version + 1
			return &next, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeConflict, "usage ledger is being updated concurrently")
}

// Stats returns the ledger as it reads now without writing anything: due
// rollovers are applied in memory and users without a ledger get free-tier
// defaults.
func (l *Ledger) Stats(ctx context.Context, userID string) (*models.UsageLedger, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	now := l.clock()
	current, err := l.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, storageError(err, "load usage ledger")
	}
	if current == nil {
		return newLedger(userID, enums.PlanTierFree, now), nil
	}
	view, _ := rollover(*current, now, l.loc)
	return &view, nil
}

// History pages through the user's metered actions, newest first.
func (l *Ledger) History(ctx context.Context, userID string, params pagination.Params) ([]models.UsageLog, string, error) {
	if userID == "" {
		return nil, "", pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	logs, next, err := l.repo.ListLogs(ctx, userID, params)
	if err != nil {
		return nil, "", storageError(err, "list usage log")
	}
	return logs, next, nil
}

// Increment records one metered action. Callers must have loaded the ledger
// through GetOrCreate in the same request so rollover is already applied.
func (l *Ledger) Increment(ctx context.Context, userID string, action enums.UsageAction, metadata map[string]any) error {
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !action.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown usage action")
	}
	meta := "{}"
	if len(metadata) > 0 {
		raw, err := json.Marshal(metadata)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode usage metadata")
		}
		meta = string(raw)
	}

	now := l.clock()
	err := l.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := l.repo.WithTx(tx)
		found, err := repo.Increment(ctx, userID, now)
		if err != nil {
			return storageError(err, "increment usage")
		}
		if !found {
			return pkgerrors.New(pkgerrors.CodeNotFound, "usage ledger not found")
		}
		entry := &models.UsageLog{
			UserID:    userID,
			Action:    action,
			Metadata:  meta,
			CreatedAt: now,
		}
		if err := repo.CreateLog(ctx, entry); err != nil {
			return storageError(err, "append usage log")
		}
		return nil
	})
	if err != nil {
		return storageError(err, "increment usage")
	}
	l.metrics.IncUsage(action.String())
	return nil
}

// SetPlan assigns plan and opens a fresh monthly window starting now. Lifetime
// and daily counters are kept.
func (l *Ledger) SetPlan(ctx context.Context, userID string, plan enums.PlanTier) error {
	if !plan.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown plan tier")
	}
	return l.mutate(ctx, userID, plan, func(_ models.UsageLedger, now time.Time) map[string]any {
		return map[string]any{
			"plan_tier":       plan,
			"plan_expires_at": nil,
			"monthly_usage":   int64(0),
			"period_start":    now,
			"period_end":      nextPeriodEnd(now),
		}
	})
}

// SchedulePlanExpiry keeps the current plan until at, after which the next
// read reverts the ledger to free.
func (l *Ledger) SchedulePlanExpiry(ctx context.Context, userID string, at time.Time) error {
	at = at.UTC()
	return l.mutate(ctx, userID, enums.PlanTierFree, func(current models.UsageLedger, _ time.Time) map[string]any {
		if current.PlanTier == enums.PlanTierFree {
			return nil
		}
		return map[string]any{"plan_expires_at": at}
	})
}

// RevertToFree drops the ledger back to the free tier immediately. The
// monthly window is left as is.
func (l *Ledger) RevertToFree(ctx context.Context, userID string) error {
	return l.mutate(ctx, userID, enums.PlanTierFree, func(current models.UsageLedger, _ time.Time) map[string]any {
		if current.PlanTier == enums.PlanTierFree && current.PlanExpiresAt == nil {
			return nil
		}
		return map[string]any{
			"plan_tier":       enums.PlanTierFree,
			"plan_expires_at": nil,
		}
	})
}

// mutate runs a CAS update built by change against the rolled-over ledger.
// A missing ledger is created on plan createPlan with a fresh window.
func (l *Ledger) mutate(ctx context.Context, userID string, createPlan enums.PlanTier, change func(models.UsageLedger, time.Time) map[string]any) error {
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		now := l.clock()
		current, err := l.repo.FindByUserID(ctx, userID)
		if err != nil {
			return storageError(err, "load usage ledger")
		}
		if current == nil {
			created, err := l.repo.InsertIfAbsent(ctx, newLedger(userID, createPlan, now))
			if err != nil {
				return storageError(err, "create usage ledger")
			}
			if created {
				return nil
			}
			continue
		}

		next, updates := rollover(*current, now, l.loc)
		for k, v := range change(next, now) {
			updates[k] = v
		}
		if len(updates) == 0 {
			return nil
		}
		swapped, err := l.repo.CompareAndSwap(ctx, userID, current.Version, updates)
		if err != nil {
			return storageError(err, "update usage ledger")
		}
		if swapped {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "usage ledger is being updated concurrently")
}

func (l *Ledger) clock() time.Time {
	return l.now().UTC()
}

func storageError(err error, message string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

// inlineTx runs fn on an already open transaction.
type inlineTx struct {
	tx *gorm.DB
}

func (i inlineTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(i.tx)
}
