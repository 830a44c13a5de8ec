package repository

import (
	"context"
	"time"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Every tenant-owned method takes an explicit tenant.Scope and filters on it.
// There is no implicit query scope anywhere in this package.

// TenantRepository resolves tenants; it is the only unscoped repository.
type TenantRepository interface {
	Create(t *models.Tenant) error
	GetByID(id uint) (*models.Tenant, error)
	GetByAPIKeyHash(hash string) (*models.Tenant, error)
}

// AccountRepository defines the interface for customer account operations
type AccountRepository interface {
	Create(scope tenant.Scope, account *models.Account) error
	GetByID(scope tenant.Scope, id uint) (*models.Account, error)
	List(scope tenant.Scope, offset, limit int) ([]models.Account, error)
}

// InvoiceRepository reads invoices and records the few mutable transitions
// (payment application, plan assignment, overdue marking).
type InvoiceRepository interface {
	Create(scope tenant.Scope, invoice *models.Invoice) error
	ListByAccount(scope tenant.Scope, accountID uint) ([]models.Invoice, error)
	ListByIDs(scope tenant.Scope, accountID uint, ids []uint) ([]models.Invoice, error)
	ListUnpaid(scope tenant.Scope, accountID uint) ([]models.Invoice, error)
	LockUnpaid(scope tenant.Scope, accountID uint, ids []uint) ([]models.Invoice, error)
	ListCollectible(scope tenant.Scope, dueBefore time.Time) ([]models.Invoice, error)
	ApplyPayment(scope tenant.Scope, invoice *models.Invoice, amount decimal.Decimal) error
	AssignPlan(scope tenant.Scope, accountID uint, ids []uint, planID uint) (int64, error)
	MarkOverdue(scope tenant.Scope, now time.Time) (int64, error)
}

// PaymentRepository defines the interface for payment records
type PaymentRepository interface {
	Create(scope tenant.Scope, payment *models.Payment) error
	ListByAccount(scope tenant.Scope, accountID uint) ([]models.Payment, error)
	HasCompletedSince(scope tenant.Scope, accountID uint, since time.Time) (bool, error)
}

// CampaignRepository defines the interface for dunning campaign definitions
type CampaignRepository interface {
	Create(scope tenant.Scope, campaign *models.DunningCampaign) error
	GetByID(scope tenant.Scope, id uint) (*models.DunningCampaign, error)
	ListActive(scope tenant.Scope) ([]models.DunningCampaign, error)
	// ListAllActive is used by the scheduler, which derives a scope per row.
	ListAllActive() ([]models.DunningCampaign, error)
}

// ActionRepository is the append-only dunning action log.
type ActionRepository interface {
	Create(scope tenant.Scope, action *models.DunningAction) error
	ListByAccount(scope tenant.Scope, accountID uint) ([]models.DunningAction, error)
	LastSentForStep(scope tenant.Scope, accountID, campaignID, stepID uint) (*models.DunningAction, error)
	LastSentForCampaign(scope tenant.Scope, accountID, campaignID uint) (*models.DunningAction, error)
	ListSentSince(scope tenant.Scope, accountID uint, since time.Time) ([]models.DunningAction, error)
}

// PaymentPlanRepository defines the interface for payment plans
type PaymentPlanRepository interface {
	Create(scope tenant.Scope, plan *models.PaymentPlan) error
	GetByID(scope tenant.Scope, id uint) (*models.PaymentPlan, error)
	ListByAccount(scope tenant.Scope, accountID uint) ([]models.PaymentPlan, error)
}

// HoldRepository defines the interface for account holds
type HoldRepository interface {
	Create(scope tenant.Scope, hold *models.AccountHold) error
	GetByID(scope tenant.Scope, id uint) (*models.AccountHold, error)
	FindActive(scope tenant.Scope, accountID uint) (*models.AccountHold, error)
	Update(scope tenant.Scope, hold *models.AccountHold) error
	Delete(scope tenant.Scope, id uint) error
}

// ServiceLineRepository defines the interface for provisioned service lines
type ServiceLineRepository interface {
	Create(scope tenant.Scope, line *models.ServiceLine) error
	ListByAccount(scope tenant.Scope, accountID uint) ([]models.ServiceLine, error)
	UpdateStatus(scope tenant.Scope, id uint, status string) error
}

// NoteRepository defines the interface for collection notes
type NoteRepository interface {
	Create(scope tenant.Scope, note *models.CollectionNote) error
	ListByAccount(scope tenant.Scope, accountID uint, limit int) ([]models.CollectionNote, error)
}

// DocumentRepository defines the interface for generated compliance documents
type DocumentRepository interface {
	Create(scope tenant.Scope, doc *models.ComplianceDocument) error
	ListByAccount(scope tenant.Scope, accountID uint) ([]models.ComplianceDocument, error)
	DocTypes(scope tenant.Scope, accountID uint) ([]string, error)
}

// NotificationRepository stores portal and letter deliveries.
type NotificationRepository interface {
	Create(scope tenant.Scope, n *models.Notification) error
	ListByAccount(scope tenant.Scope, accountID uint) ([]models.Notification, error)
}

// ClaimRepository holds short-lived exclusive claims in Redis.
type ClaimRepository interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	db *gorm.DB

	Tenant       TenantRepository
	Account      AccountRepository
	Invoice      InvoiceRepository
	Payment      PaymentRepository
	Campaign     CampaignRepository
	Action       ActionRepository
	PaymentPlan  PaymentPlanRepository
	Hold         HoldRepository
	ServiceLine  ServiceLineRepository
	Note         NoteRepository
	Document     DocumentRepository
	Notification NotificationRepository
	Claim        ClaimRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:           db,
		Tenant:       NewTenantRepository(db),
		Account:      NewAccountRepository(db),
		Invoice:      NewInvoiceRepository(db),
		Payment:      NewPaymentRepository(db),
		Campaign:     NewCampaignRepository(db),
		Action:       NewActionRepository(db),
		PaymentPlan:  NewPaymentPlanRepository(db),
		Hold:         NewHoldRepository(db),
		ServiceLine:  NewServiceLineRepository(db),
		Note:         NewNoteRepository(db),
		Document:     NewDocumentRepository(db),
		Notification: NewNotificationRepository(db),
		Claim:        NewClaimRepository(),
	}
}

// Transaction runs fn with repositories bound to a single database transaction.
// The claim repository is shared; Redis is not part of the transaction.
func (r *Repositories) Transaction(fn func(tx *Repositories) error) error {
	return r.db.Transaction(func(db *gorm.DB) error {
		txRepos := NewRepositories(db)
		txRepos.Claim = r.Claim
		return fn(txRepos)
	})
}
