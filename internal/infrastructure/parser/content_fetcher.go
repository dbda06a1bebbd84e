package parser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"Meridiano/internal/domain"
	"Meridiano/internal/ports"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:137.0) Gecko/20100101 Firefox/137.0"
	maxPageBytes     = 10 << 20
)

// HTMLFetcher downloads article pages and extracts paragraphs, og:image and title.
type HTMLFetcher struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

var _ ports.ContentFetcher = (*HTMLFetcher)(nil)

// NewHTMLFetcher builds a fetcher. A nil client gets a 20s timeout.
func NewHTMLFetcher(client *http.Client, userAgent string, logger *slog.Logger) *HTMLFetcher {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTMLFetcher{client: client, userAgent: userAgent, logger: logger}
}

// Fetch returns the page text. domain.ErrNoContent means the page had no paragraphs.
func (f *HTMLFetcher) Fetch(ctx context.Context, pageURL string) (domain.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.Page{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Cache-Control", "max-age=0")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.Page{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Page{}, fmt.Errorf("fetch %s: unexpected status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return domain.Page{}, fmt.Errorf("parse html %s: %w", pageURL, err)
	}

	page := domain.Page{
		ImageURL: resolveURL(pageURL, metaContent(doc, "og:image")),
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if page.Title == "" {
		page.Title = metaContent(doc, "og:title")
	}

	doc.Find("script, style, noscript, nav, header, footer, aside, form").Remove()
	page.Text = extractText(doc)
	if page.Text == "" {
		return page, fmt.Errorf("extract %s: %w", pageURL, domain.ErrNoContent)
	}

	f.logger.Debug("page fetched", "url", pageURL, "chars", len(page.Text), "has_image", page.ImageURL != "")
	return page, nil
}

func extractText(doc *goquery.Document) string {
	for _, selector := range []string{"article p", "main p", "body p"} {
		var parts []string
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
				parts = append(parts, text)
			}
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n\n")
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, property string) string {
	sel := doc.Find(fmt.Sprintf(`meta[property=%q], meta[name=%q]`, property, property)).First()
	content, _ := sel.Attr("content")
	return strings.TrimSpace(content)
}

func resolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
