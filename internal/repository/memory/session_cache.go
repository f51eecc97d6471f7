package memory

import (
	"time"

	"classlive-be/internal/entity"

	"github.com/patrickmn/go-cache"
)

// SessionCache is a bounded-staleness read cache for session documents,
// injected explicitly so tests can substitute the no-op variant. Staleness
// bound is the TTL: a cached session may lag the store by at most that long.
type SessionCache interface {
	Get(sessionId string) (*entity.Session, bool)
	Put(session *entity.Session)
	Invalidate(sessionId string)
}

type sessionCache struct {
	cache *cache.Cache
}

func NewSessionCache(ttl time.Duration) SessionCache {
	c := cache.New(ttl, 10*time.Minute)
	return &sessionCache{cache: c}
}

func (r *sessionCache) Get(sessionId string) (*entity.Session, bool) {
	if x, found := r.cache.Get(sessionId); found {
		return x.(*entity.Session), true
	}
	return nil, false
}

func (r *sessionCache) Put(session *entity.Session) {
	r.cache.Set(session.Id, session, cache.DefaultExpiration)
}

func (r *sessionCache) Invalidate(sessionId string) {
	r.cache.Delete(sessionId)
}

// NopSessionCache never stores anything. Tests use it to keep every read
// hitting the store.
type NopSessionCache struct{}

func (NopSessionCache) Get(string) (*entity.Session, bool) { return nil, false }
func (NopSessionCache) Put(*entity.Session)                {}
func (NopSessionCache) Invalidate(string)                  {}
