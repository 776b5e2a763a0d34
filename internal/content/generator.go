// Package content is the producer boundary. The publisher treats generated
// text as opaque; the only contract is a non-empty string.
package content

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"

	"finpost-workers/internal/market"
	"finpost-workers/internal/queue"
)

// Generator produces post text for a content type and platform.
type Generator interface {
	Generate(ctx context.Context, contentType market.ContentType, platform queue.Platform) (string, error)
}

// TemplateGenerator is the default in-process generator. Real deployments
// swap in the LLM-backed service; this one keeps the worker runnable and the
// tests hermetic.
type TemplateGenerator struct {
	templates map[market.ContentType]*template.Template
	now       func() time.Time
}

var defaultTemplates = map[market.ContentType]string{
	market.ContentOpeningBell:    "🔔 *Opening Bell* — markets are open for {{.Date}}. Watch this space for session updates.",
	market.ContentMarketUpdate:   "📊 *Market Update* ({{.Time}}) — indices tracking mid-session. Full numbers on the dashboard.",
	market.ContentNewsAlert:      "📰 *News Alert* — {{.Headline}}",
	market.ContentClosingSummary: "🔔 *Closing Summary* — trading closed for {{.Date}}. Recap follows shortly.",
	market.ContentPreMarketBrief: "🌅 *Pre-market Brief* for {{.Date}} — key levels and overnight moves.",
}

func NewTemplateGenerator() (*TemplateGenerator, error) {
	g := &TemplateGenerator{
		templates: make(map[market.ContentType]*template.Template, len(defaultTemplates)),
		now:       time.Now,
	}
	for ct, raw := range defaultTemplates {
		tmpl, err := template.New(string(ct)).Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", ct, err)
		}
		g.templates[ct] = tmpl
	}
	return g, nil
}

func (g *TemplateGenerator) Generate(ctx context.Context, contentType market.ContentType, platform queue.Platform) (string, error) {
	tmpl, ok := g.templates[contentType]
	if !ok {
		return "", fmt.Errorf("no template for content type %q", contentType)
	}

	now := g.now()
	data := map[string]string{
		"Date":     now.Format("Mon, 02 Jan 2006"),
		"Time":     now.Format("15:04"),
		"Headline": "market-moving headline pending",
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", contentType, err)
	}
	if buf.Len() == 0 {
		return "", fmt.Errorf("empty content for %s", contentType)
	}
	return buf.String(), nil
}
