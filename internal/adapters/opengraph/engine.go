// Package opengraph is a lightweight extraction engine for pages that
// publish their media through og:* meta tags.
package opengraph

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gabriel-vasile/mimetype"

	"mediagate/internal/core/domain"
	"mediagate/internal/core/ports"
	"mediagate/internal/credentials"
)

// Engine implements ports.Engine over a page's OpenGraph tags.
type Engine struct {
	dl     ports.Downloader
	logger *log.Logger
}

// New creates an Engine that fetches pages and media through dl.
func New(dl ports.Downloader, logger *log.Logger) *Engine {
	return &Engine{dl: dl, logger: logger}
}

// Extract reads the og:* tags of the page at rawURL.
func (e *Engine) Extract(ctx context.Context, rawURL string, opts ports.EngineOptions) (*domain.ExtractionResult, error) {
	doc, err := e.fetchDocument(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(rawURL)
	res := parseDocument(doc, base)
	if res.ItemCount == 0 {
		return nil, domain.UnsupportedFormat("the page has no downloadable media", nil)
	}
	return res, nil
}

// Fetch downloads the items found by Extract into dest.
func (e *Engine) Fetch(ctx context.Context, rawURL string, opts ports.EngineOptions, dest string) ([]domain.LocalFile, error) {
	switch opts.Format {
	case "", "best", "worst":
	default:
		return nil, domain.UnsupportedFormat(fmt.Sprintf("format %q is not supported for this source", opts.Format), nil)
	}

	res, err := e.Extract(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	items := res.Items
	if opts.ItemIndex > 0 {
		if opts.ItemIndex > len(items) {
			return nil, domain.InvalidInput(fmt.Sprintf("itemIndex %d is out of range (1-%d)", opts.ItemIndex, len(items)), nil)
		}
		items = items[opts.ItemIndex-1 : opts.ItemIndex]
	}

	var files []domain.LocalFile
	for _, item := range items {
		f, err := e.fetchItem(ctx, item, opts, dest)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, nil
}

func (e *Engine) fetchItem(ctx context.Context, item domain.MediaItem, opts ports.EngineOptions, dest string) (*domain.LocalFile, error) {
	body, err := e.dl.Download(ctx, item.URL, requestHeaders(item.URL, opts))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	stem := fmt.Sprintf("%03d-%s", item.Position, item.ID)
	p := filepath.Join(dest, stem+".part")
	out, err := os.Create(p)
	if err != nil {
		return nil, domain.StorageFailure("could not write to the download workspace", err)
	}
	// Reading one byte past the cap is enough for the size filter to drop it.
	var src io.Reader = body
	if opts.MaxBytes > 0 {
		src = io.LimitReader(body, opts.MaxBytes+1)
	}
	n, err := io.Copy(out, src)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, domain.ExtractionFailure("the media download was interrupted", err)
	}

	ext := item.Ext
	if ext == "" {
		ext = sniffExt(p)
	} else {
		ext = "." + ext
	}
	name := stem + ext
	final := filepath.Join(dest, name)
	if err := os.Rename(p, final); err != nil {
		return nil, domain.StorageFailure("could not finalize the downloaded file", err)
	}
	e.logger.Printf("opengraph: fetched %s (%d bytes)", name, n)
	return &domain.LocalFile{
		Name:     name,
		Path:     final,
		Size:     n,
		Kind:     domain.KindForName(name),
		Position: item.Position,
	}, nil
}

func (e *Engine) fetchDocument(ctx context.Context, rawURL string, opts ports.EngineOptions) (*goquery.Document, error) {
	body, err := e.dl.Download(ctx, rawURL, requestHeaders(rawURL, opts))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(body, 5<<20))
	if err != nil {
		return nil, domain.ExtractionFailure("the page could not be parsed", err)
	}
	return doc, nil
}

func requestHeaders(rawURL string, opts ports.EngineOptions) map[string]string {
	headers := map[string]string{}
	for k, v := range opts.Headers {
		headers[k] = v
	}
	if opts.CookieFile != "" {
		if cookie, err := credentials.CookieHeader(opts.CookieFile, rawURL); err == nil && cookie != "" {
			headers["Cookie"] = cookie
		}
	}
	return headers
}

func parseDocument(doc *goquery.Document, base *url.URL) *domain.ExtractionResult {
	meta := func(names ...string) string {
		for _, n := range names {
			sel := fmt.Sprintf(`meta[property="%s"], meta[name="%s"]`, n, n)
			if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}

	res := &domain.ExtractionResult{
		Title:       meta("og:title", "twitter:title"),
		Uploader:    meta("article:author", "og:site_name", "twitter:creator"),
		Description: meta("og:description", "description"),
		UploadDate:  dateOnly(meta("article:published_time", "og:updated_time")),
	}
	if res.Title == "" {
		res.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	var videos, images []string
	seen := map[string]bool{}
	doc.Find("meta[property], meta[name]").Each(func(_ int, s *goquery.Selection) {
		key, ok := s.Attr("property")
		if !ok {
			key, _ = s.Attr("name")
		}
		content, _ := s.Attr("content")
		abs := resolve(base, strings.TrimSpace(content))
		if abs == "" || seen[abs] {
			return
		}
		switch key {
		case "og:video", "og:video:url", "og:video:secure_url", "twitter:player:stream":
			seen[abs] = true
			videos = append(videos, abs)
		case "og:image", "og:image:url", "og:image:secure_url", "twitter:image":
			seen[abs] = true
			images = append(images, abs)
		}
	})

	if len(images) > 0 {
		res.Thumbnail = images[0]
	}
	// A video page lists its poster frame as og:image.
	urls, isVideo := images, false
	if len(videos) > 0 {
		urls, isVideo = videos, true
	}
	for i, u := range urls {
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(pathOf(u))), ".")
		if _, known := domain.MIMEForName("x." + ext); !known {
			ext = ""
		}
		res.Items = append(res.Items, domain.MediaItem{
			ID:        fmt.Sprintf("item%d", i+1),
			Title:     res.Title,
			Thumbnail: res.Thumbnail,
			URL:       u,
			Position:  i + 1,
			IsVideo:   isVideo,
			Ext:       ext,
		})
	}
	res.ItemCount = len(res.Items)
	res.IsMultiItem = res.ItemCount > 1
	return res
}

func resolve(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func pathOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Path
}

func dateOnly(s string) string {
	if len(s) >= 10 && s[4] == '-' && s[7] == '-' {
		return s[:10]
	}
	return s
}

// sniffExt inspects the file content when the URL carries no usable
// extension.
func sniffExt(p string) string {
	m, err := mimetype.DetectFile(p)
	if err != nil {
		return ".bin"
	}
	if ext := m.Extension(); ext != "" {
		return ext
	}
	return ".bin"
}
