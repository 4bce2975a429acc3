package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/nft-market-sync/internal/config"
	"github.com/bimakw/nft-market-sync/internal/domain/entities"
	"github.com/bimakw/nft-market-sync/internal/infrastructure/cache"
)

// MetadataCache is the read-through store used by MetadataFetcher
type MetadataCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
}

// MetadataFetcher resolves token and collection URIs through the backend proxy
type MetadataFetcher struct {
	baseURL    string
	httpClient *http.Client
	cache      MetadataCache
	workers    int
	logger     *zap.Logger
}

// NewMetadataFetcher creates a metadata fetcher. cache may be nil.
func NewMetadataFetcher(cfg config.BackendConfig, store MetadataCache, logger *zap.Logger) *MetadataFetcher {
	workers := cfg.MetadataWorkers
	if workers <= 0 {
		workers = 1
	}
	return &MetadataFetcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		cache:      store,
		workers:    workers,
		logger:     logger,
	}
}

// FetchMetadata resolves one URI. Every failure wraps ErrMetadataUnavailable.
func (f *MetadataFetcher) FetchMetadata(ctx context.Context, uri string) (*entities.Metadata, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("%w: empty uri", entities.ErrMetadataUnavailable)
	}

	if f.cache != nil {
		var cached entities.Metadata
		err := f.cache.Get(ctx, uri, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			f.logger.Warn("Metadata cache read failed", zap.String("uri", uri), zap.Error(err))
		}
	}

	meta, err := f.fetch(ctx, uri)
	if err != nil {
		return nil, err
	}

	if f.cache != nil {
		if err := f.cache.Set(ctx, uri, meta); err != nil {
			f.logger.Warn("Metadata cache write failed", zap.String("uri", uri), zap.Error(err))
		}
	}

	return meta, nil
}

func (f *MetadataFetcher) fetch(ctx context.Context, uri string) (*entities.Metadata, error) {
	target := f.baseURL + "/api/metadata?" + url.Values{"uri": {uri}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrMetadataUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrMetadataUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", entities.ErrMetadataUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entities.ErrMetadataUnavailable, err)
	}

	var meta entities.Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: malformed document: %v", entities.ErrMetadataUnavailable, err)
	}

	return &meta, nil
}

// MetadataResult is the outcome of resolving one URI in a batch
type MetadataResult struct {
	URI      string
	Metadata *entities.Metadata
	Err      error
}

// FetchMetadataBatch resolves uris concurrently. Results keep the input order
// and a failure only affects its own slot.
func (f *MetadataFetcher) FetchMetadataBatch(ctx context.Context, uris []string) []MetadataResult {
	results := make([]MetadataResult, len(uris))

	var g errgroup.Group
	g.SetLimit(f.workers)

	for i, uri := range uris {
		i, uri := i, uri
		g.Go(func() error {
			meta, err := f.FetchMetadata(ctx, uri)
			results[i] = MetadataResult{URI: uri, Metadata: meta, Err: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// Enrich returns a copy of nfts with resolved metadata filled in where it was
// still missing. NFTs whose URI cannot be resolved are returned unchanged.
func (f *MetadataFetcher) Enrich(ctx context.Context, nfts []entities.NFT) []entities.NFT {
	out := make([]entities.NFT, len(nfts))
	copy(out, nfts)

	idx := make([]int, 0)
	uris := make([]string, 0)
	for i, n := range out {
		if n.NeedsMetadata() {
			idx = append(idx, i)
			uris = append(uris, n.TokenURI)
		}
	}
	if len(uris) == 0 {
		return out
	}

	start := time.Now()
	failed := 0
	for j, res := range f.FetchMetadataBatch(ctx, uris) {
		if res.Err != nil {
			failed++
			continue
		}
		out[idx[j]].ApplyMetadata(*res.Metadata)
	}

	f.logger.Debug("Enriched NFTs",
		zap.Int("requested", len(uris)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)
	return out
}

// EnrichCollections fills description and image of collections from their metadata URI
func (f *MetadataFetcher) EnrichCollections(ctx context.Context, cols []entities.Collection) []entities.Collection {
	out := make([]entities.Collection, len(cols))
	copy(out, cols)

	idx := make([]int, 0)
	uris := make([]string, 0)
	for i, c := range out {
		if c.NeedsMetadata() {
			idx = append(idx, i)
			uris = append(uris, c.MetadataURI)
		}
	}
	if len(uris) == 0 {
		return out
	}

	for j, res := range f.FetchMetadataBatch(ctx, uris) {
		if res.Err != nil {
			f.logger.Debug("Collection metadata unavailable", zap.String("uri", res.URI), zap.Error(res.Err))
			continue
		}
		out[idx[j]].Description = res.Metadata.Description
		out[idx[j]].Image = res.Metadata.Image
	}
	return out
}
