// Package persisted resolves operations sent by hash instead of by text.
//
// Clients put {"persistedQuery": {"version": 1, "sha256Hash": "<hex>"}} in the
// request extensions. A request carrying both the hash and the query registers
// the query; later requests may omit the query.
package persisted

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	lru "github.com/hashicorp/golang-lru"

	gqlerrors "github.com/hanpama/gqlhttp/internal/gqlerrors"
	plugin "github.com/hanpama/gqlhttp/internal/plugin"
)

// Store maps query hashes to query text.
type Store interface {
	Get(ctx context.Context, hash string) (query string, ok bool, err error)
	Put(ctx context.Context, hash, query string) error
}

// LRUStore is an in-process Store bounded by entry count.
type LRUStore struct {
	cache *lru.Cache
}

// NewLRUStore returns a store keeping the size most recently used queries.
func NewLRUStore(size int) (*LRUStore, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("persisted: %w", err)
	}
	return &LRUStore{cache: c}, nil
}

func (s *LRUStore) Get(_ context.Context, hash string) (string, bool, error) {
	v, ok := s.cache.Get(hash)
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (s *LRUStore) Put(_ context.Context, hash, query string) error {
	s.cache.Add(hash, query)
	return nil
}

// Hash returns the key under which query is stored.
func Hash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// Plugin resolves persisted queries during the params stage.
type Plugin struct {
	Store Store
	// Only rejects operations that are not sent by hash.
	Only bool
}

// New returns a plugin backed by store.
func New(store Store, only bool) *Plugin { return &Plugin{Store: store, Only: only} }

func (p *Plugin) OnParams(ctx context.Context, ev *plugin.Event) (*plugin.Response, error) {
	rp := ev.Op.Params
	hash := hashOf(rp.Extensions)
	if hash == "" {
		if p.Only {
			return nil, gqlerrors.WithCode(
				gqlerrors.New("PersistedQueryOnly", http.StatusBadRequest, nil), "PERSISTED_QUERY_ONLY")
		}
		return nil, nil
	}

	// In persisted-only mode the stored text is authoritative, so a client
	// cannot register new operations by sending them along with their hash.
	if rp.Query == "" || p.Only {
		query, ok, err := p.Store.Get(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("persisted query lookup: %w", err)
		}
		if !ok {
			return nil, gqlerrors.WithCode(
				gqlerrors.New("PersistedQueryNotFound", http.StatusNotFound, nil), "PERSISTED_QUERY_NOT_FOUND")
		}
		rp.Query = query
		return nil, nil
	}

	if Hash(rp.Query) != hash {
		return nil, gqlerrors.WithCode(
			gqlerrors.New("PersistedQueryMismatch", http.StatusBadRequest, nil), "PERSISTED_QUERY_MISMATCH")
	}
	if err := p.Store.Put(ctx, hash, rp.Query); err != nil {
		return nil, fmt.Errorf("persisted query store: %w", err)
	}
	return nil, nil
}

func hashOf(ext map[string]any) string {
	pq, _ := ext["persistedQuery"].(map[string]any)
	h, _ := pq["sha256Hash"].(string)
	return h
}
