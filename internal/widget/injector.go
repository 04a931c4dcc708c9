// Package widget puts the Turnstile challenge in front of the user: it injects
// the script and widget container into the signup page and models the
// browser-side bridge that renders the widget and forwards its token.
package widget

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"signupgate/internal/settings"
)

const (
	ScriptID       = "turnstile-script"
	ScriptURL      = "https://challenges.cloudflare.com/turnstile/v0/api.js"
	ContainerID    = "turnstile-widget-container"
	WidgetID       = "turnstile-widget"
	WidgetSelector = "#" + WidgetID

	formSelector   = `.signup-form, form[name="form"]`
	submitSelector = `input[type="submit"], button[type="submit"]`
)

const containerHTML = `<div id="` + ContainerID + `" class="turnstile-widget-container">` +
	`<div class="form-group"><label>Security Verification</label>` +
	`<div id="` + WidgetID + `" class="cf-turnstile"></div>` +
	`</div></div>`

const scriptHTML = `<script id="` + ScriptID + `" src="` + ScriptURL + `" async defer></script>`

// Injector rewrites signup pages so they carry the Turnstile widget.
type Injector struct {
	logger *slog.Logger
}

type InjectorOption func(*Injector)

func WithInjectorLogger(logger *slog.Logger) InjectorOption {
	return func(i *Injector) {
		i.logger = logger
	}
}

func NewInjector(opts ...InjectorOption) *Injector {
	i := &Injector{logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Inject adds the script to <head> and the widget container to the signup
// form. The page is returned unchanged when the widget is inactive or no
// signup form exists. Inject is idempotent.
func (i *Injector) Inject(page string, public settings.PublicSettings) (string, error) {
	if !public.WidgetActive() {
		return page, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return page, fmt.Errorf("parse signup page: %w", err)
	}

	form := doc.Find(formSelector).First()
	if form.Length() == 0 {
		i.logger.Warn("registration form not found, widget not injected")
		return page, nil
	}

	if doc.Find("#"+ScriptID).Length() == 0 {
		doc.Find("head").First().AppendHtml(scriptHTML)
	}

	if doc.Find("#"+ContainerID+", "+WidgetSelector).Length() == 0 {
		if submit := form.Find(submitSelector).First(); submit.Length() > 0 {
			submit.BeforeHtml(containerHTML)
		} else {
			form.AppendHtml(containerHTML)
		}
		doc.Find(WidgetSelector).SetAttr("data-sitekey", public.SiteKey)
	}

	out, err := goquery.OuterHtml(doc.Selection)
	if err != nil {
		return page, fmt.Errorf("render signup page: %w", err)
	}
	return out, nil
}
