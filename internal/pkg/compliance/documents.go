package compliance

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/gofiber/template/html/v2"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFS embed.FS

// DocumentData is the binding passed to every document template.
type DocumentData struct {
	DocType          string
	Account          models.Account
	Invoices         []models.Invoice
	Outstanding      decimal.Decimal
	Plan             *models.PaymentPlan
	Hold             *models.AccountHold
	Disclosures      []string
	GeneratedAt      time.Time
	ResponseDeadline time.Time
}

// Renderer turns document data into HTML using the embedded templates.
type Renderer struct {
	engine *html.Engine
}

func NewRenderer() (*Renderer, error) {
	sub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, err
	}
	engine := html.NewFileSystem(http.FS(sub), ".html")
	if err := engine.Load(); err != nil {
		return nil, fmt.Errorf("load document templates: %w", err)
	}
	return &Renderer{engine: engine}, nil
}

// DocumentTypes lists the document types a renderer can produce.
func DocumentTypes() []string {
	return []string{
		models.DocumentValidationNotice,
		models.DocumentPaymentPlanAgreement,
		models.DocumentSuspensionNotice,
		models.DocumentFinalDemand,
	}
}

func (r *Renderer) Render(docType string, data DocumentData) ([]byte, error) {
	if !knownDocuments[docType] {
		return nil, fmt.Errorf("unknown document type %q", docType)
	}
	var buf bytes.Buffer
	if err := r.engine.Render(&buf, docType, data); err != nil {
		return nil, fmt.Errorf("render %s: %w", docType, err)
	}
	return buf.Bytes(), nil
}
