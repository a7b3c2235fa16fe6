// Package worker hosts the station's background machinery: the caching
// gateway the line terminals browse through, and the runtime that reacts to
// broker messages and runs scheduled maintenance.
package worker

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/solarfab/linesync/internal/cache"
	"github.com/solarfab/linesync/types/config"
)

const cacheHeader = "X-Linesync-Cache"

type requestKind int

const (
	kindPassthrough requestKind = iota
	kindAPI
	kindStatic
	kindImage
	kindNavigation
)

var staticExtensions = map[string]bool{
	".css": true, ".js": true, ".mjs": true, ".map": true,
	".woff": true, ".woff2": true, ".ttf": true, ".ico": true,
	".json": true, ".webmanifest": true,
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".svg": true, ".webp": true, ".avif": true,
}

// Gateway is a reverse proxy in front of the central web app. Each request
// class gets its own answer strategy, so the terminals keep working when the
// uplink is down: API reads fall back to the last good response, static
// assets come straight from cache, and navigations degrade to the offline
// page.
type Gateway struct {
	upstream   string
	client     *http.Client
	store      cache.Store
	version    string
	apiTimeout time.Duration
	navTimeout time.Duration
	offline    []byte
	prefetch   []string
}

func NewGateway(store cache.Store, cfg config.GatewayConfig) *Gateway {
	return &Gateway{
		upstream:   strings.TrimRight(cfg.UpstreamURL, "/"),
		client:     &http.Client{},
		store:      store,
		version:    cfg.CacheVersion,
		apiTimeout: cfg.APITimeout,
		navTimeout: cfg.NavTimeout,
		offline:    []byte(cfg.OfflinePage),
		prefetch:   cfg.PrefetchRoutes,
	}
}

func (g *Gateway) bucket(kind string) string {
	return kind + "-" + g.version
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch classify(r) {
	case kindAPI:
		g.networkFirst(w, r, g.bucket("api"), g.apiTimeout, nil)
	case kindStatic:
		g.cacheFirst(w, r, g.bucket("static"))
	case kindImage:
		g.staleWhileRevalidate(w, r, g.bucket("images"))
	case kindNavigation:
		g.networkFirst(w, r, g.bucket("pages"), g.navTimeout, g.offline)
	default:
		g.passthrough(w, r)
	}
}

func classify(r *http.Request) requestKind {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		if r.Method != http.MethodGet {
			return kindPassthrough
		}
		return kindAPI
	}
	if r.Method != http.MethodGet {
		return kindPassthrough
	}

	ext := strings.ToLower(path.Ext(r.URL.Path))
	if imageExtensions[ext] {
		return kindImage
	}
	if staticExtensions[ext] {
		return kindStatic
	}
	if ext == "" || ext == ".html" {
		if strings.Contains(r.Header.Get("Accept"), "text/html") || ext == ".html" {
			return kindNavigation
		}
	}
	return kindPassthrough
}

// networkFirst tries the upstream within the timeout, caching a good answer.
// On failure it serves the cached copy, then the fallback page if one is
// configured.
func (g *Gateway) networkFirst(w http.ResponseWriter, r *http.Request, bucket string, timeout time.Duration, fallback []byte) {
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	entry, err := g.fetch(ctx, r)
	if err == nil {
		g.store.Put(r.Context(), bucket, cacheKey(r), entry)
		writeEntry(w, entry, "miss")
		return
	}

	cached, cacheErr := g.store.Get(r.Context(), bucket, cacheKey(r))
	if cacheErr == nil {
		writeEntry(w, cached, "hit")
		return
	}

	if fallback != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set(cacheHeader, "offline-fallback")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write(fallback)
		return
	}

	log.Printf("[gateway] upstream unavailable and no cache for %s: %v", r.URL.Path, err)
	http.Error(w, "upstream unavailable", http.StatusBadGateway)
}

// cacheFirst answers from cache when possible and only reaches upstream on a
// miss. Hashed asset filenames make revalidation pointless.
func (g *Gateway) cacheFirst(w http.ResponseWriter, r *http.Request, bucket string) {
	cached, err := g.store.Get(r.Context(), bucket, cacheKey(r))
	if err == nil {
		writeEntry(w, cached, "hit")
		return
	}

	entry, err := g.fetch(r.Context(), r)
	if err != nil {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	g.store.Put(r.Context(), bucket, cacheKey(r), entry)
	writeEntry(w, entry, "miss")
}

// staleWhileRevalidate serves the cached copy immediately and refreshes it
// in the background, so image-heavy screens stay snappy on a slow uplink.
func (g *Gateway) staleWhileRevalidate(w http.ResponseWriter, r *http.Request, bucket string) {
	cached, err := g.store.Get(r.Context(), bucket, cacheKey(r))
	if err == nil {
		writeEntry(w, cached, "hit")

		refresh := r.Clone(context.Background())
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), g.apiTimeout)
			defer cancel()
			if entry, err := g.fetch(ctx, refresh); err == nil {
				g.store.Put(ctx, bucket, cacheKey(refresh), entry)
			}
		}()
		return
	}

	entry, err := g.fetch(r.Context(), r)
	if err != nil {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	g.store.Put(r.Context(), bucket, cacheKey(r), entry)
	writeEntry(w, entry, "miss")
}

func (g *Gateway) passthrough(w http.ResponseWriter, r *http.Request) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, g.upstream+r.URL.RequestURI(), r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.Header = r.Header.Clone()

	resp, err := g.client.Do(req)
	if err != nil {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func (g *Gateway) fetch(ctx context.Context, r *http.Request) (*cache.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.upstream+r.URL.RequestURI(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", r.Header.Get("Accept"))

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &upstreamError{status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &cache.Entry{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// Precache warms the shell routes so a cold station still renders after the
// first uplink drop.
func (g *Gateway) Precache(ctx context.Context) {
	for _, route := range g.prefetch {
		u, err := url.Parse(route)
		if err != nil {
			continue
		}
		req := &http.Request{Method: http.MethodGet, URL: u, Header: http.Header{"Accept": {"text/html"}}}

		entry, err := g.fetch(ctx, req)
		if err != nil {
			log.Printf("[gateway] precache of %s failed: %v", route, err)
			continue
		}
		bucket := g.bucket("pages")
		if strings.HasPrefix(route, "/api/") {
			bucket = g.bucket("api")
		}
		g.store.Put(ctx, bucket, route, entry)
	}
}

// PurgeStale drops every cache bucket that belongs to an older version.
func (g *Gateway) PurgeStale(ctx context.Context) (int, error) {
	buckets, err := g.store.Buckets(ctx)
	if err != nil {
		return 0, err
	}

	purged := 0
	for _, bucket := range buckets {
		if !strings.HasSuffix(bucket, "-"+g.version) {
			if err := g.store.PurgeBucket(ctx, bucket); err != nil {
				return purged, err
			}
			log.Printf("[gateway] purged stale cache bucket %s", bucket)
			purged++
		}
	}
	return purged, nil
}

func cacheKey(r *http.Request) string {
	return r.URL.RequestURI()
}

func writeEntry(w http.ResponseWriter, entry *cache.Entry, verdict string) {
	if entry.ContentType != "" {
		w.Header().Set("Content-Type", entry.ContentType)
	}
	w.Header().Set(cacheHeader, verdict)
	status := entry.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	w.Write(bytes.Clone(entry.Body))
}

type upstreamError struct {
	status int
}

func (e *upstreamError) Error() string {
	return http.StatusText(e.status)
}
