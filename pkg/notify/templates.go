package notify

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"gorm.io/gorm"
)

var defaultTemplates = map[string]models.EmailTemplate{
	KindOrderPlaced: {
		Key:     KindOrderPlaced,
		Subject: "Order {{.orderNumber}} confirmed",
		Body: `Hi {{.name}},

Thank you for your order {{.orderNumber}}.

{{range .items}}{{.quantity}} x {{.name}}  {{.total}}
{{end}}
Subtotal: {{.subtotal}}
Discount: {{.discount}}
Tax: {{.tax}}
Shipping: {{.shipping}}
Total: {{.total}} {{.currency}}

Payment: {{.paymentMethod}}
`,
	},
	KindOrderStatusChanged: {
		Key:     KindOrderStatusChanged,
		Subject: "Order {{.orderNumber}} is now {{.status}}",
		Body: `Hi {{.name}},

The status of your order {{.orderNumber}} changed from {{.previousStatus}} to {{.status}}.
`,
	},
	KindPaymentStatusChanged: {
		Key:     KindPaymentStatusChanged,
		Subject: "Payment update for order {{.orderNumber}}",
		Body: `Hi {{.name}},

The payment status of your order {{.orderNumber}} is now {{.paymentStatus}}.
`,
	},
}

// Templates resolves email templates, preferring rows stored by admins over
// the built-in defaults.
type Templates struct {
	db *gorm.DB
}

func NewTemplates(db *gorm.DB) *Templates {
	return &Templates{db: db}
}

// Render produces the subject and body for kind.
func (t *Templates) Render(ctx context.Context, kind string, data map[string]interface{}) (string, string, error) {
	tpl, err := t.Get(ctx, kind)
	if err != nil {
		return "", "", err
	}
	subject, err := execute(kind+".subject", tpl.Subject, data)
	if err != nil {
		return "", "", err
	}
	body, err := execute(kind+".body", tpl.Body, data)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(subject), body, nil
}

func (t *Templates) Get(ctx context.Context, key string) (*models.EmailTemplate, error) {
	var tpl models.EmailTemplate
	err := t.db.WithContext(ctx).Where(map[string]interface{}{"key": key}).First(&tpl).Error
	if err == nil {
		return &tpl, nil
	}
	if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}
	def, ok := defaultTemplates[key]
	if !ok {
		return nil, apperr.NotFound("template not found")
	}
	return &def, nil
}

// List returns every known template with stored overrides applied.
func (t *Templates) List(ctx context.Context) ([]models.EmailTemplate, error) {
	var stored []models.EmailTemplate
	if err := t.db.WithContext(ctx).Find(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	byKey := make(map[string]models.EmailTemplate, len(defaultTemplates))
	for k, v := range defaultTemplates {
		byKey[k] = v
	}
	for _, s := range stored {
		byKey[s.Key] = s
	}

	out := make([]models.EmailTemplate, 0, len(byKey))
	for _, v := range byKey {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Save stores an override for a known key after checking both parts parse.
func (t *Templates) Save(ctx context.Context, key, subject, body string) (*models.EmailTemplate, error) {
	if _, ok := defaultTemplates[key]; !ok {
		return nil, apperr.NotFound("template not found")
	}
	fields := map[string]string{}
	if _, err := template.New("subject").Parse(subject); err != nil || strings.TrimSpace(subject) == "" {
		fields["subject"] = "invalid template"
	}
	if _, err := template.New("body").Parse(body); err != nil || strings.TrimSpace(body) == "" {
		fields["body"] = "invalid template"
	}
	if len(fields) > 0 {
		return nil, apperr.Validation("template does not parse", fields)
	}

	tpl := &models.EmailTemplate{Key: key, Subject: subject, Body: body}
	if err := t.db.WithContext(ctx).Save(tpl).Error; err != nil {
		return nil, fmt.Errorf("failed to save template: %w", err)
	}
	return tpl, nil
}

// Reset drops the stored override so the default applies again.
func (t *Templates) Reset(ctx context.Context, key string) error {
	if _, ok := defaultTemplates[key]; !ok {
		return apperr.NotFound("template not found")
	}
	return t.db.WithContext(ctx).Where(map[string]interface{}{"key": key}).Delete(&models.EmailTemplate{}).Error
}

func execute(name, text string, data map[string]interface{}) (string, error) {
	tpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}
