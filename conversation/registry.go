package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/BaSui01/landau/reference"
)

// Registry keeps live sessions in memory. Idle sessions expire after the TTL.
type Registry struct {
	cache   *cache.Cache
	catalog *Catalog
	lang    reference.Language
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewRegistry creates a registry whose sessions expire after ttl of inactivity;
// expired sessions are purged every cleanup interval.
func NewRegistry(ttl, cleanup time.Duration, catalog *Catalog, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		cache:   cache.New(ttl, cleanup),
		catalog: catalog,
		logger:  logger.With(zap.String("component", "session_registry")),
	}
	r.cache.OnEvicted(func(id string, _ any) {
		r.logger.Debug("session expired", zap.String("session_id", id))
	})
	return r
}

// WithDefaultLanguage sets the language of newly created sessions.
func (r *Registry) WithDefaultLanguage(lang reference.Language) (*Registry, error) {
	if err := NewSession("", r.catalog).SetLanguage(lang); err != nil {
		return nil, err
	}
	r.lang = lang
	return r, nil
}

func (r *Registry) newSession(id string) *Session {
	s := NewSession(id, r.catalog)
	if r.lang != "" {
		_ = s.SetLanguage(r.lang)
	}
	return s
}

// Create starts a new session with a random id.
func (r *Registry) Create() *Session {
	s := r.newSession(uuid.NewString())
	r.cache.Set(s.ID, s, cache.DefaultExpiration)
	return s
}

// Get returns a live session and refreshes its expiry.
func (r *Registry) Get(id string) (*Session, bool) {
	x, found := r.cache.Get(id)
	if !found {
		return nil, false
	}
	s := x.(*Session)
	r.cache.Set(id, s, cache.DefaultExpiration)
	return s, true
}

// GetOrCreate returns the session with id, creating it when unknown or expired.
// An empty id always creates a fresh session.
func (r *Registry) GetOrCreate(id string) *Session {
	if id == "" {
		return r.Create()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.Get(id); ok {
		return s
	}
	s := r.newSession(id)
	r.cache.Set(id, s, cache.DefaultExpiration)
	return s
}

func (r *Registry) Delete(id string) {
	r.cache.Delete(id)
}

// Count 当前存活的会话数（可能包含尚未清理的过期会话）。
func (r *Registry) Count() int {
	return r.cache.ItemCount()
}
