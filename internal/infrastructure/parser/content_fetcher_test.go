package parser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Meridiano/internal/domain"
)

const articlePage = `<html>
<head>
  <title>  Ship Lands On Mars </title>
  <meta property="og:image" content="/img/lander.png">
  <script>var tracking = "p should not leak";</script>
</head>
<body>
  <header><p>Site header</p></header>
  <nav><p>Menu</p></nav>
  <article>
    <p>The lander touched down at dawn.</p>
    <p>  Engineers   cheered.  </p>
    <aside><p>Related: other stories</p></aside>
  </article>
  <footer><p>Copyright</p></footer>
</body>
</html>`

func TestHTMLFetcherExtractsArticle(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(articlePage))
	}))
	t.Cleanup(srv.Close)

	page, err := NewHTMLFetcher(srv.Client(), "", nil).Fetch(context.Background(), srv.URL+"/news/mars")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if page.Text != "The lander touched down at dawn.\n\nEngineers cheered." {
		t.Fatalf("unexpected text %q", page.Text)
	}
	if page.ImageURL != srv.URL+"/img/lander.png" {
		t.Fatalf("og:image not resolved: %q", page.ImageURL)
	}
	if page.Title != "Ship Lands On Mars" {
		t.Fatalf("unexpected title %q", page.Title)
	}
	if !strings.Contains(gotUA, "Mozilla/5.0") {
		t.Fatalf("browser user agent not sent: %q", gotUA)
	}
}

func TestHTMLFetcherFallsBackToBodyParagraphs(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><head><meta property="og:title" content="OG title"></head>
<body><div><p>Plain paragraph.</p></div></body></html>`))
	}))
	t.Cleanup(srv.Close)

	page, err := NewHTMLFetcher(srv.Client(), "", nil).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if page.Text != "Plain paragraph." || page.Title != "OG title" || page.ImageURL != "" {
		t.Fatalf("unexpected page %+v", page)
	}
}

func TestHTMLFetcherNoContent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div>no paragraphs</div></body></html>`))
	}))
	t.Cleanup(srv.Close)

	_, err := NewHTMLFetcher(srv.Client(), "", nil).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, domain.ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestHTMLFetcherHTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	t.Cleanup(srv.Close)

	if _, err := NewHTMLFetcher(srv.Client(), "", nil).Fetch(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected status error")
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	cases := []struct{ base, ref, want string }{
		{"https://a.example/x/y", "/img.png", "https://a.example/img.png"},
		{"https://a.example/x/y", "img.png", "https://a.example/x/img.png"},
		{"https://a.example/x", "https://cdn.example/z.png", "https://cdn.example/z.png"},
		{"https://a.example/x", "", ""},
	}
	for _, tc := range cases {
		if got := resolveURL(tc.base, tc.ref); got != tc.want {
			t.Fatalf("resolveURL(%q, %q) = %q, want %q", tc.base, tc.ref, got, tc.want)
		}
	}
}
