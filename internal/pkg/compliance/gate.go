// Package compliance evaluates collection actions against jurisdictional
// rules and generates the documents those rules require.
package compliance

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/app/repository"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/metrics"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
)

// Archiver stores rendered documents outside the database.
type Archiver interface {
	PutDocument(ctx context.Context, key string, body []byte, contentType string) error
}

// Gate is the compliance gate every collection action passes through.
type Gate struct {
	repos    *repository.Repositories
	registry *Registry
	renderer *Renderer
	archive  Archiver
	now      func() time.Time
	metrics  *metrics.CollectionMetrics
}

func NewGate(repos *repository.Repositories, registry *Registry, renderer *Renderer) *Gate {
	return &Gate{repos: repos, registry: registry, renderer: renderer, now: time.Now}
}

func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// WithArchive enables copying generated documents to the archive.
func (g *Gate) WithArchive(a Archiver) *Gate {
	g.archive = a
	return g
}

func (g *Gate) WithMetrics(m *metrics.CollectionMetrics) *Gate {
	g.metrics = m
	return g
}

// Registry returns the regulations the gate evaluates.
func (g *Gate) Registry() *Registry {
	return g.registry
}

// Check evaluates every channel-independent rule for the account.
func (g *Gate) Check(ctx context.Context, scope tenant.Scope, accountID uint) (*Report, error) {
	snap, err := g.Snapshot(ctx, scope, accountID)
	if err != nil {
		return nil, err
	}
	report := Evaluate(g.registry, snap, "", g.now())
	return &report, nil
}

// Approve evaluates the account for a contact on channel. A non-compliant
// report is returned together with a compliance_blocked error.
func (g *Gate) Approve(ctx context.Context, scope tenant.Scope, accountID uint, channel string) (*Report, error) {
	const op = "compliance.approve"
	if !knownChannels[channel] {
		return nil, apperr.Validation(op, "unknown channel %q", channel)
	}
	snap, err := g.Snapshot(ctx, scope, accountID)
	if err != nil {
		return nil, err
	}
	report := Evaluate(g.registry, snap, channel, g.now())
	if !report.Overall {
		for _, name := range report.FailedRegulations() {
			g.metrics.ComplianceBlocked(name)
		}
		return &report, apperr.Blocked(op, "%s contact for account %d violates %s",
			channel, accountID, strings.Join(report.Failed(), ", "))
	}
	return &report, nil
}

// Snapshot loads the state evaluation needs.
func (g *Gate) Snapshot(ctx context.Context, scope tenant.Scope, accountID uint) (Snapshot, error) {
	const op = "compliance.snapshot"
	if err := scope.Validate(); err != nil {
		return Snapshot{}, apperr.Validation(op, "%v", err)
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	account, err := g.loadAccount(op, scope, accountID)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Account: *account}
	if window := g.registry.MaxWindow(); window > 0 {
		actions, err := g.repos.Action.ListSentSince(scope, accountID, g.now().Add(-window))
		if err != nil {
			return Snapshot{}, apperr.Internal(op, err)
		}
		for _, a := range actions {
			snap.Contacts = append(snap.Contacts, Contact{Channel: a.Channel, At: a.CreatedAt})
		}
	}
	snap.Documents, err = g.repos.Document.DocTypes(scope, accountID)
	if err != nil {
		return Snapshot{}, apperr.Internal(op, err)
	}
	return snap, nil
}

// EnsureDisclosures generates every required disclosure the account does
// not have yet and returns the new documents.
func (g *Gate) EnsureDisclosures(ctx context.Context, scope tenant.Scope, accountID uint) ([]models.ComplianceDocument, error) {
	account, err := g.loadAccount("compliance.disclosures", scope, accountID)
	if err != nil {
		return nil, err
	}
	have, err := g.repos.Document.DocTypes(scope, accountID)
	if err != nil {
		return nil, apperr.Internal("compliance.disclosures", err)
	}
	present := make(map[string]bool, len(have))
	for _, d := range have {
		present[d] = true
	}

	var created []models.ComplianceDocument
	for _, reg := range g.registry.For(account.Jurisdiction) {
		for _, rule := range reg.Rules.rules {
			d, ok := rule.(RequiredDisclosure)
			if !ok || present[d.DocumentType] {
				continue
			}
			doc, err := g.generate(ctx, scope, account, d.DocumentType)
			if err != nil {
				return created, err
			}
			present[d.DocumentType] = true
			created = append(created, *doc)
		}
	}
	return created, nil
}

// GenerateDocument renders, stores and optionally archives a document.
func (g *Gate) GenerateDocument(ctx context.Context, scope tenant.Scope, accountID uint, docType string) (*models.ComplianceDocument, error) {
	const op = "compliance.document"
	if !knownDocuments[docType] {
		return nil, apperr.Validation(op, "unknown document type %q", docType)
	}
	if err := scope.Validate(); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	account, err := g.loadAccount(op, scope, accountID)
	if err != nil {
		return nil, err
	}
	return g.generate(ctx, scope, account, docType)
}

func (g *Gate) generate(ctx context.Context, scope tenant.Scope, account *models.Account, docType string) (*models.ComplianceDocument, error) {
	const op = "compliance.document"
	now := g.now()

	data, err := g.documentData(scope, account, docType, now)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	body, err := g.renderer.Render(docType, data)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}

	sum := sha256.Sum256(body)
	doc := &models.ComplianceDocument{
		AccountID:    account.ID,
		DocType:      docType,
		Jurisdiction: account.Jurisdiction,
		Body:         string(body),
		Checksum:     hex.EncodeToString(sum[:]),
		GeneratedAt:  now,
	}

	if g.archive != nil {
		key := fmt.Sprintf("documents/%d/%d/%s/%s.html", scope.TenantID, account.ID, docType, uuid.NewString())
		if err := g.archive.PutDocument(ctx, key, body, "text/html; charset=utf-8"); err != nil {
			log.Warnf("[Compliance] Archiving %s for account %d failed: %v", docType, account.ID, err)
		} else {
			doc.StorageKey = key
		}
	}

	if err := g.repos.Document.Create(scope, doc); err != nil {
		return nil, apperr.Internal(op, err)
	}
	log.Infof("[Compliance] Generated %s for account %d (tenant %d)", docType, account.ID, scope.TenantID)
	return doc, nil
}

func (g *Gate) documentData(scope tenant.Scope, account *models.Account, docType string, now time.Time) (DocumentData, error) {
	data := DocumentData{
		DocType:          docType,
		Account:          *account,
		Outstanding:      decimal.Zero,
		GeneratedAt:      now,
		ResponseDeadline: now.AddDate(0, 0, 30),
	}

	invoices, err := g.repos.Invoice.ListUnpaid(scope, account.ID)
	if err != nil {
		return data, err
	}
	data.Invoices = invoices
	for i := range invoices {
		data.Outstanding = data.Outstanding.Add(invoices[i].Outstanding())
	}

	for _, reg := range g.registry.For(account.Jurisdiction) {
		if reg.Disclosure != "" {
			data.Disclosures = append(data.Disclosures, reg.Disclosure)
		}
	}

	switch docType {
	case models.DocumentPaymentPlanAgreement:
		plans, err := g.repos.PaymentPlan.ListByAccount(scope, account.ID)
		if err != nil {
			return data, err
		}
		if len(plans) > 0 {
			data.Plan, err = g.repos.PaymentPlan.GetByID(scope, plans[len(plans)-1].ID)
			if err != nil {
				return data, err
			}
		}
	case models.DocumentSuspensionNotice:
		data.Hold, err = g.repos.Hold.FindActive(scope, account.ID)
		if err != nil {
			return data, err
		}
	}
	return data, nil
}

func (g *Gate) loadAccount(op string, scope tenant.Scope, accountID uint) (*models.Account, error) {
	account, err := g.repos.Account.GetByID(scope, accountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(op, "account %d not found", accountID)
	}
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return account, nil
}
