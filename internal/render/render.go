package render

import (
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/joelkehle/lucidra-engine/internal/assessment"
)

//go:embed style.css
var styleCSS string

// ErrNoChrome is returned by PDF when no Chrome binary can be found.
var ErrNoChrome = errors.New("no chrome or chromium binary found")

const defaultPDFTimeout = 30 * time.Second

// Renderer turns assessment envelopes into HTML and, through headless
// Chrome, into PDF.
type Renderer struct {
	chromePath string
	timeout    time.Duration
}

type Option func(*Renderer)

// WithChromePath overrides the detected browser binary.
func WithChromePath(path string) Option {
	return func(r *Renderer) {
		if strings.TrimSpace(path) != "" {
			r.chromePath = path
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(r *Renderer) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func New(opts ...Option) *Renderer {
	r := &Renderer{chromePath: detectChromePath(), timeout: defaultPDFTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Renderer) ChromePath() string { return r.chromePath }

// HTML renders the envelope's markdown as a standalone page. An envelope
// without markdown is rebuilt from its stage outputs first.
func (r *Renderer) HTML(env assessment.ResponseEnvelope) (string, error) {
	if strings.TrimSpace(env.ReportMarkdown) == "" {
		rebuilt, err := assessment.RebuildResponseFromEnvelope(env)
		if err != nil {
			return "", err
		}
		env = rebuilt
	}
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(env.ReportMarkdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}

	var b strings.Builder
	b.WriteString("<!doctype html><html><head><meta charset='utf-8'><title>")
	b.WriteString(html.EscapeString(pageTitle(env)))
	b.WriteString("</title><style>")
	b.WriteString(styleCSS)
	b.WriteString("</style></head><body><div class='report-wrap'><div class='report-header'>")
	b.WriteString("<div class='report-meta'>" + metaHTML(env) + "</div>")
	b.WriteString("<div class='report-badges'>" + badgeHTML(env) + "</div>")
	b.WriteString("</div><div class='report-html'>")
	b.WriteString(layoutHooks(content.String()))
	b.WriteString("</div></div></body></html>")
	return b.String(), nil
}

// PDF prints the HTML rendering to an A4 PDF.
func (r *Renderer) PDF(ctx context.Context, env assessment.ResponseEnvelope) ([]byte, error) {
	if r.chromePath == "" {
		return nil, ErrNoChrome
	}
	doc, err := r.HTML(env)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.ExecPath(r.chromePath),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(doc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

var disclaimerHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*Disclaimer\s*</h2>`)

// layoutHooks starts the disclaimer on its own printed page.
func layoutHooks(contentHTML string) string {
	return disclaimerHeading.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">Disclaimer</h2>`)
}

func pageTitle(env assessment.ResponseEnvelope) string {
	if env.SessionID == "" {
		return "Strategic Assessment"
	}
	return "Strategic Assessment " + env.SessionID
}

func metaHTML(env assessment.ResponseEnvelope) string {
	var out strings.Builder
	if env.SessionID != "" {
		out.WriteString("<div><strong>Session:</strong> " + html.EscapeString(env.SessionID) + "</div>")
	}
	out.WriteString("<div><strong>Completion:</strong> " + strconv.Itoa(env.Completion) + "%</div>")
	if ts := env.Metadata.CompletedAt; !ts.IsZero() {
		out.WriteString("<div><strong>Date:</strong> " + html.EscapeString(ts.UTC().Format("January 2, 2006 at 15:04 UTC")) + "</div>")
	}
	return out.String()
}

func badgeHTML(env assessment.ResponseEnvelope) string {
	var out strings.Builder
	if env.ReportMode == assessment.ReportModeDegraded {
		out.WriteString("<span class='report-badge degraded'>Degraded</span>")
	}
	if env.Attractiveness != nil {
		out.WriteString("<span class='report-badge'>Attractiveness " + strconv.FormatFloat(*env.Attractiveness, 'f', 1, 64) + "/10</span>")
	}
	return out.String()
}

// detectChromePath checks the environment override first, then the usual
// install locations.
func detectChromePath() string {
	if p := strings.TrimSpace(os.Getenv("LUCIDRA_CHROME_PATH")); p != "" {
		return p
	}
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
