// Package suspension places and lifts service holds. Life-safety services
// (E911) are never suspended: E911-registered lines are restricted instead
// and verified reachable before a hold is accepted.
package suspension

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/hashicorp/go-multierror"
	"github.com/qmuntal/stateless"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/accountlock"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CollectFox/internal/pkg/retry"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
)

const triggerResolve = "resolve"

// holdLockTTL covers provisioning and reachability checks of a large account.
const holdLockTTL = 5 * time.Minute

// DocumentGenerator produces the suspension notice.
type DocumentGenerator interface {
	GenerateDocument(ctx context.Context, scope tenant.Scope, accountID uint, docType string) (*models.ComplianceDocument, error)
}

type SuspendOptions struct {
	HoldType string   `json:"hold_type"`
	Services []string `json:"services"`
	// Preserve lists line identifiers that stay untouched.
	Preserve []string `json:"preserve"`
}

var holdTypes = map[string]bool{
	models.HoldTypeVoIPSuspension: true,
	models.HoldTypeFullSuspension: true,
	models.HoldTypeCreditHold:     true,
}

var suspendableClasses = map[string]bool{
	models.ServiceClassVoIP:     true,
	models.ServiceClassInternet: true,
	models.ServiceClassHosting:  true,
	models.ServiceClassEmail:    true,
}

type Controller struct {
	repos       *repository.Repositories
	provisioner Provisioner
	docs        DocumentGenerator
	locks       *accountlock.Locker
	metrics     *metrics.CollectionMetrics
	policy      retry.Policy
	now         func() time.Time
}

func NewController(repos *repository.Repositories, provisioner Provisioner, docs DocumentGenerator) *Controller {
	return &Controller{
		repos:       repos,
		provisioner: provisioner,
		docs:        docs,
		locks:       accountlock.New(repos.Claim, holdLockTTL),
		policy:      retry.DefaultPolicy,
		now:         time.Now,
	}
}

func (c *Controller) WithMetrics(m *metrics.CollectionMetrics) *Controller {
	c.metrics = m
	return c
}

func (c *Controller) WithRetryPolicy(p retry.Policy) *Controller {
	c.policy = p
	return c
}

func (c *Controller) WithClock(now func() time.Time) *Controller {
	c.now = now
	return c
}

// Suspend places a hold on the account. An existing active hold is returned
// together with a conflict error.
func (c *Controller) Suspend(ctx context.Context, scope tenant.Scope, accountID uint, reason string, opts SuspendOptions) (*models.AccountHold, error) {
	const op = "suspension.suspend"
	if err := scope.Validate(); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	if reason == "" {
		return nil, apperr.Validation(op, "a reason is required")
	}
	if opts.HoldType == "" {
		opts.HoldType = models.HoldTypeVoIPSuspension
	}
	if !holdTypes[opts.HoldType] {
		return nil, apperr.Validation(op, "unknown hold type %q", opts.HoldType)
	}
	for _, s := range opts.Services {
		if models.IsLifeSafety(s) {
			return nil, apperr.Integrity(op, "service class %s is life-safety and cannot be suspended", s)
		}
		if !suspendableClasses[s] {
			return nil, apperr.Validation(op, "unknown service class %q", s)
		}
	}

	if _, err := c.repos.Account.GetByID(scope, accountID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "account %d not found", accountID)
		}
		return nil, apperr.Internal(op, err)
	}

	release, err := c.lockAccount(ctx, op, scope, accountID)
	if err != nil {
		return nil, err
	}
	defer release()

	active, err := c.repos.Hold.FindActive(scope, accountID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	if active != nil {
		c.metrics.HoldEvent("conflict")
		return active, apperr.Conflict(op, "account %d already has active hold %d", accountID, active.ID)
	}

	lines, err := c.repos.ServiceLine.ListByAccount(scope, accountID)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	services := opts.Services
	if len(services) == 0 {
		services = defaultServices(opts.HoldType, lines)
	}

	keep := make(map[string]bool, len(opts.Preserve))
	for _, id := range opts.Preserve {
		keep[id] = true
	}
	wanted := make(map[string]bool, len(services))
	for _, s := range services {
		wanted[s] = true
	}

	hold := &models.AccountHold{
		AccountID:         accountID,
		HoldType:          opts.HoldType,
		Reason:            reason,
		Status:            models.HoldStatusActive,
		SuspendedServices: services,
		PreservedServices: append([]string(nil), models.LifeSafetyClasses...),
	}
	var targets []models.ServiceLine
	for _, line := range lines {
		if line.E911Registered {
			hold.PreservedServices = appendUnique(hold.PreservedServices, line.PreservedKey())
		}
		switch {
		case line.Status != models.LineStatusActive || !wanted[line.ServiceClass]:
			continue
		case keep[line.Identifier]:
			hold.PreservedServices = appendUnique(hold.PreservedServices, line.Identifier)
			continue
		}
		targets = append(targets, line)
		hold.ChangedLineIDs = append(hold.ChangedLineIDs, line.ID)
	}

	if err := c.repos.Hold.Create(scope, hold); err != nil {
		return nil, apperr.Internal(op, err)
	}

	var changed []models.ServiceLine
	for _, line := range targets {
		if err := ctx.Err(); err != nil {
			c.rollback(scope, hold, changed)
			return nil, err
		}
		status := models.LineStatusSuspended
		call := c.provisioner.Suspend
		if line.E911Registered {
			status = models.LineStatusRestricted
			call = c.provisioner.Restrict
		}
		err := retry.Do(ctx, c.policy, func(ctx context.Context) error { return call(ctx, line) })
		if err != nil {
			c.rollback(scope, hold, changed)
			return nil, fmt.Errorf("%s %s: %w", status, line.Identifier, err)
		}
		changed = append(changed, line)
		if err := c.repos.ServiceLine.UpdateStatus(scope, line.ID, status); err != nil {
			c.rollback(scope, hold, changed)
			return nil, apperr.Internal(op, err)
		}
	}

	if err := c.verifyEmergencyReachability(ctx, targets); err != nil {
		c.rollback(scope, hold, changed)
		return nil, err
	}

	c.metrics.HoldEvent("created")
	log.Infof("[Suspension] Hold %d placed on account %d (tenant %d), %d lines changed, preserved %v",
		hold.ID, accountID, scope.TenantID, len(changed), hold.PreservedServices)

	if c.docs != nil {
		if _, err := c.docs.GenerateDocument(ctx, scope, accountID, models.DocumentSuspensionNotice); err != nil {
			log.Errorf("[Suspension] Suspension notice for hold %d could not be generated: %v", hold.ID, err)
		}
	}
	return hold, nil
}

// lockAccount serializes hold changes of one account across requests and instances.
func (c *Controller) lockAccount(ctx context.Context, op string, scope tenant.Scope, accountID uint) (func(), error) {
	release, err := c.locks.Acquire(ctx, fmt.Sprintf("suspension:hold:%d:%d", scope.TenantID, accountID))
	if errors.Is(err, accountlock.ErrBusy) {
		c.metrics.HoldEvent("conflict")
		return nil, apperr.Conflict(op, "a hold change for account %d is in progress", accountID)
	}
	return release, err
}

// verifyEmergencyReachability checks every restricted line still reaches
// emergency services.
func (c *Controller) verifyEmergencyReachability(ctx context.Context, lines []models.ServiceLine) error {
	const op = "suspension.verify_e911"
	for _, line := range lines {
		if !line.E911Registered {
			continue
		}
		var reachable bool
		err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
			var err error
			reachable, err = c.provisioner.VerifyReachable(ctx, line)
			return err
		})
		if err != nil {
			return apperr.Integrity(op, "E911 reachability of %s could not be verified: %v", line.Identifier, err)
		}
		if !reachable {
			return apperr.Integrity(op, "E911 is not reachable on %s after restriction", line.Identifier)
		}
	}
	return nil
}

// rollback undoes provisioning changes and removes the hold. It runs on a
// fresh context so a cancelled request still restores service.
func (c *Controller) rollback(scope tenant.Scope, hold *models.AccountHold, changed []models.ServiceLine) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var result *multierror.Error
	for i := len(changed) - 1; i >= 0; i-- {
		line := changed[i]
		err := retry.Do(ctx, c.policy, func(ctx context.Context) error { return c.provisioner.Reactivate(ctx, line) })
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("reactivate %s: %w", line.Identifier, err))
			continue
		}
		if err := c.repos.ServiceLine.UpdateStatus(scope, line.ID, models.LineStatusActive); err != nil {
			result = multierror.Append(result, fmt.Errorf("line %d status: %w", line.ID, err))
		}
	}
	if err := c.repos.Hold.Delete(scope, hold.ID); err != nil {
		result = multierror.Append(result, fmt.Errorf("delete hold %d: %w", hold.ID, err))
	}
	c.metrics.HoldEvent("rolled_back")

	if err := result.ErrorOrNil(); err != nil {
		log.Errorf("[Suspension] Rollback of hold %d for account %d incomplete: %v", hold.ID, hold.AccountID, err)
		return
	}
	log.Warnf("[Suspension] Hold %d for account %d rolled back", hold.ID, hold.AccountID)
}

// Restore resolves an active hold and reactivates the lines the hold changed.
// It returns false when the hold was already resolved.
func (c *Controller) Restore(ctx context.Context, scope tenant.Scope, holdID uint, reason string) (bool, error) {
	const op = "suspension.restore"
	if err := scope.Validate(); err != nil {
		return false, apperr.Validation(op, "%v", err)
	}

	hold, err := c.repos.Hold.GetByID(scope, holdID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, apperr.NotFound(op, "hold %d not found", holdID)
	}
	if err != nil {
		return false, apperr.Internal(op, err)
	}

	release, err := c.lockAccount(ctx, op, scope, hold.AccountID)
	if err != nil {
		return false, err
	}
	defer release()

	// re-read under the lock, a concurrent restore may have won
	if hold, err = c.repos.Hold.GetByID(scope, holdID); err != nil {
		return false, apperr.Internal(op, err)
	}

	machine := holdMachine(hold.Status)
	machine.Configure(models.HoldStatusResolved).
		OnEntry(func(ctx context.Context, _ ...any) error {
			return c.reactivateLines(ctx, scope, hold)
		})

	if ok, _ := machine.CanFire(triggerResolve); !ok {
		return false, nil
	}
	if err := machine.FireCtx(ctx, triggerResolve); err != nil {
		return false, err
	}

	resolvedAt := c.now()
	hold.Status = machine.MustState().(string)
	hold.ResolvedAt = &resolvedAt
	hold.ResolutionReason = reason
	if err := c.repos.Hold.Update(scope, hold); err != nil {
		return false, apperr.Internal(op, err)
	}

	c.metrics.HoldEvent("resolved")
	log.Infof("[Suspension] Hold %d on account %d resolved: %s", hold.ID, hold.AccountID, reason)
	return true, nil
}

func (c *Controller) reactivateLines(ctx context.Context, scope tenant.Scope, hold *models.AccountHold) error {
	if len(hold.ChangedLineIDs) == 0 {
		return nil
	}
	lines, err := c.repos.ServiceLine.ListByAccount(scope, hold.AccountID)
	if err != nil {
		return apperr.Internal("suspension.restore", err)
	}
	for _, line := range lines {
		if line.Status == models.LineStatusActive || !hold.Changed(line.ID) {
			continue
		}
		if err := retry.Do(ctx, c.policy, func(ctx context.Context) error { return c.provisioner.Reactivate(ctx, line) }); err != nil {
			return fmt.Errorf("reactivate %s: %w", line.Identifier, err)
		}
		if err := c.repos.ServiceLine.UpdateStatus(scope, line.ID, models.LineStatusActive); err != nil {
			return apperr.Internal("suspension.restore", err)
		}
	}
	return nil
}

// holdMachine models the one-way hold lifecycle. A resolved hold accepts no triggers.
func holdMachine(status string) *stateless.StateMachine {
	machine := stateless.NewStateMachine(status)
	machine.Configure(models.HoldStatusActive).
		Permit(triggerResolve, models.HoldStatusResolved)
	machine.Configure(models.HoldStatusResolved)
	return machine
}

func defaultServices(holdType string, lines []models.ServiceLine) []string {
	switch holdType {
	case models.HoldTypeVoIPSuspension:
		return []string{models.ServiceClassVoIP}
	case models.HoldTypeFullSuspension:
		var out []string
		for _, l := range lines {
			if suspendableClasses[l.ServiceClass] {
				out = appendUnique(out, l.ServiceClass)
			}
		}
		return out
	default:
		return nil
	}
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
