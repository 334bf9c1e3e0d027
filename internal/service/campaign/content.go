package campaign

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/crm-automation/internal/criteria"
	"github.com/ignite/crm-automation/internal/domain"
	"github.com/ignite/crm-automation/internal/pkg/logger"
)

var (
	linkRe        = regexp.MustCompile(`href=["'](https?://[^"']+)["']`)
	placeholderRe = regexp.MustCompile(`\{(\w+)\}`)
)

// Renderer turns a step into the subject and HTML body sent to one
// recipient.
type Renderer struct {
	trackingBase string
	engine       *liquid.Engine
	templates    sync.Map // template text -> *liquid.Template
}

// NewRenderer builds a renderer whose tracking links point at
// trackingBaseURL. With liquidEnabled, subject and body are rendered as
// Liquid templates before placeholder substitution.
func NewRenderer(trackingBaseURL string, liquidEnabled bool) *Renderer {
	r := &Renderer{trackingBase: strings.TrimRight(trackingBaseURL, "/")}
	if liquidEnabled {
		r.engine = liquid.NewEngine()
		r.engine.RegisterFilter("default", func(value interface{}, fallback string) interface{} {
			if value == nil || fmt.Sprint(value) == "" {
				return fallback
			}
			return value
		})
	}
	return r
}

// Render produces the personalized subject and tracked HTML body for one
// recipient of step.
func (r *Renderer) Render(step *domain.CampaignStep, c *domain.Contact, recipientID string) (subject, body string) {
	content := step.HTMLContent
	if strings.TrimSpace(content) == "" {
		content = step.PlainTextContent
	}

	subject = Personalize(r.liquid(step.Subject, c), c)
	body = Personalize(r.liquid(content, c), c)
	body = r.InjectTracking(body, recipientID, step.ID)
	return subject, body
}

// Personalize replaces {FieldName} placeholders with contact attributes.
// The common names are replaced directly; the attribute registry is only
// consulted when braces remain. Unknown names are left as written.
func Personalize(text string, c *domain.Contact) string {
	if c == nil || !strings.Contains(text, "{") {
		return text
	}
	text = strings.NewReplacer(
		"{FirstName}", c.FirstName,
		"{LastName}", c.LastName,
		"{Email}", c.Email,
		"{FullName}", c.FullName(),
	).Replace(text)

	if !strings.Contains(text, "{") || !strings.Contains(text, "}") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		if !criteria.IsContactAttribute(name) {
			return m
		}
		v, _ := criteria.ContactAttribute(c, name)
		return v
	})
}

// liquid renders text as a Liquid template. Errors are logged and the text
// is returned unchanged.
func (r *Renderer) liquid(text string, c *domain.Contact) string {
	if r.engine == nil || !strings.Contains(text, "{{") && !strings.Contains(text, "{%") {
		return text
	}
	var tpl *liquid.Template
	if cached, ok := r.templates.Load(text); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(text)
		if err != nil {
			logger.Warn("[campaign] liquid parse failed", "error", err)
			return text
		}
		r.templates.Store(text, parsed)
		tpl = parsed
	}
	out, err := tpl.RenderString(liquidBindings(c))
	if err != nil {
		logger.Warn("[campaign] liquid render failed", "error", err)
		return text
	}
	return out
}

func liquidBindings(c *domain.Contact) liquid.Bindings {
	if c == nil {
		return liquid.Bindings{}
	}
	return liquid.Bindings{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"full_name":  c.FullName(),
		"email":      c.Email,
		"phone":      c.Phone,
		"company":    c.Company,
		"job_title":  c.JobTitle,
		"city":       c.City,
		"state":      c.State,
		"country":    c.Country,
		"source":     c.Source,
		"status":     string(c.Status),
		"lead_score": c.LeadScore,
	}
}

// InjectTracking rewrites absolute links through the click tracker and adds
// the open pixel before the last </body>, or at the end when there is none.
func (r *Renderer) InjectTracking(html, recipientID, stepID string) string {
	trackingPrefix := r.trackingBase + "/tracking/"
	html = linkRe.ReplaceAllStringFunc(html, func(match string) string {
		parts := linkRe.FindStringSubmatch(match)
		if len(parts) < 2 || strings.HasPrefix(parts[1], trackingPrefix) {
			return match
		}
		return `href="` + r.ClickURL(recipientID, stepID, parts[1]) + `"`
	})

	pixel := `<img src="` + r.OpenURL(recipientID, stepID) + `" width="1" height="1" alt="" style="display:none" />`
	if idx := strings.LastIndex(strings.ToLower(html), "</body>"); idx >= 0 {
		return html[:idx] + pixel + html[idx:]
	}
	return html + pixel
}

// ClickURL is the redirect URL recording a click on original.
func (r *Renderer) ClickURL(recipientID, stepID, original string) string {
	return r.trackingBase + "/tracking/click/" + url.PathEscape(recipientID) +
		"?url=" + url.QueryEscape(original) + "&stepId=" + url.QueryEscape(stepID)
}

// OpenURL is the pixel URL recording an open.
func (r *Renderer) OpenURL(recipientID, stepID string) string {
	return r.trackingBase + "/tracking/open/" + url.PathEscape(recipientID) +
		"?stepId=" + url.QueryEscape(stepID)
}
