package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"classlive-be/internal/config"
	"classlive-be/internal/dto"
	"classlive-be/internal/entity"
	"classlive-be/internal/pkg/logger"
	"classlive-be/internal/repository/contract"
	"classlive-be/internal/repository/implementation"
	"classlive-be/internal/repository/memory"
	memstore "classlive-be/pkg/docstore/memory"
	"classlive-be/pkg/events"

	"github.com/stretchr/testify/require"
)

// capturingPublisher records every published event in order.
type capturingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturingPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

func (p *capturingPublisher) has(eventType string) bool {
	for _, t := range p.types() {
		if t == eventType {
			return true
		}
	}
	return false
}

func testPolicy() config.SessionPolicy {
	return config.SessionPolicy{
		InactivityTimeout:    5 * time.Minute,
		MaxDuration:          4 * time.Hour,
		StudentListStaleness: 10 * time.Minute,
		HeartbeatInterval:    30 * time.Second,
		CacheTTL:             time.Minute,
		ListenerMaxAttempts:  3,
		ListenerBaseBackoff:  time.Millisecond,
	}
}

type testEnv struct {
	repo       contract.SessionRepository
	pub        *capturingPublisher
	sessions   ISessionService
	membership IMembershipService
	presence   IPresenceService
	reaper     IReaperService
	watch      IWatchService
}

// newTestEnv wires the full service stack onto an in-memory store. The
// no-op cache keeps every read hitting the store, which matters for tests
// that backdate fields through the repository directly.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memstore.NewStore()
	repo := implementation.NewSessionRepository(store)
	presenceRepo := implementation.NewPresenceRepository(store)
	pub := &capturingPublisher{}
	nop := logger.NewNopLogger()
	policy := testPolicy()

	presence := NewPresenceService(presenceRepo, nop)
	sessions := NewSessionService(repo, memory.NopSessionCache{}, pub, nil, nil, nop)
	membership := NewMembershipService(repo, memory.NopSessionCache{}, presence, pub, nop)
	reaper := NewReaperService(repo, sessions, pub, policy, nop)
	watch := NewWatchService(repo, reaper, policy, nop)

	return &testEnv{
		repo:       repo,
		pub:        pub,
		sessions:   sessions,
		membership: membership,
		presence:   presence,
		reaper:     reaper,
		watch:      watch,
	}
}

func (e *testEnv) createSession(t *testing.T, teacherId string) *entity.Session {
	t.Helper()
	session, err := e.sessions.Create(context.Background(), &dto.CreateSessionRequest{
		TeacherId: teacherId,
		ClassId:   "class-1",
		LessonId:  "lesson-1",
	})
	require.NoError(t, err)
	return session
}

// backdate rewrites temporal fields through the repository, bypassing the
// services, to simulate the passage of time.
func (e *testEnv) backdate(t *testing.T, sessionId string, fields map[string]interface{}) {
	t.Helper()
	require.NoError(t, e.repo.UpdateFields(context.Background(), sessionId, fields))
}
