package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/intentlab/vdip/internal/config"
	"github.com/intentlab/vdip/internal/contract"
	"github.com/intentlab/vdip/internal/model"
	"github.com/intentlab/vdip/internal/registry"
	"github.com/intentlab/vdip/internal/sandbox"
	"github.com/intentlab/vdip/internal/topology"
)

// Manager runs sessions concurrently, one goroutine per intent, and exposes
// the inbound interface: submit, get, abort.
type Manager struct {
	orch     *Orchestrator
	pool     *sandbox.Pool
	resolver *topology.Resolver
	store    *registry.Store
	verify   config.VerifyConfig
	budgets  config.Budgets

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	done    map[string]chan struct{}
	wg      sync.WaitGroup
}

// NewManager constructs the session manager.
func NewManager(orch *Orchestrator, pool *sandbox.Pool, resolver *topology.Resolver, store *registry.Store, verifyCfg config.VerifyConfig, budgets config.Budgets) *Manager {
	return &Manager{
		orch:     orch,
		pool:     pool,
		resolver: resolver,
		store:    store,
		verify:   verifyCfg,
		budgets:  budgets,
		cancels:  make(map[string]context.CancelFunc),
		done:     make(map[string]chan struct{}),
	}
}

// Submit validates the intent, checks out a sandbox, creates the session,
// and starts its attempt loop. When the pool is exhausted it returns
// ErrCapacityExceeded and no session is created. maxAttempts <= 0 selects
// the configured default budget.
func (m *Manager) Submit(ctx context.Context, text, topologyRef string, maxAttempts int) (string, error) {
	if text == "" {
		return "", fmt.Errorf("intent text is required")
	}
	if maxAttempts <= 0 {
		maxAttempts = m.budgets.MaxAttempts
	}

	topo, err := m.resolver.Resolve(topologyRef)
	if err != nil {
		return "", err
	}
	behaviorContract, err := contract.Derive(text, topo, m.verify)
	if err != nil {
		return "", err
	}

	// Checkout happens before the session exists: capacity exhaustion is a
	// submission-time condition the caller retries, never a session verdict.
	handle, err := m.pool.Acquire(ctx, topologyRef)
	if err != nil {
		return "", err
	}

	sess := model.Session{
		ID: uuid.NewString(),
		Intent: model.Intent{
			ID:          uuid.NewString(),
			Text:        text,
			TopologyRef: topologyRef,
			CreatedAt:   time.Now().UTC(),
		},
		State:       model.SessionRunning,
		MaxAttempts: maxAttempts,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		handle.Release()
		return "", err
	}

	// The session loop outlives the submit request.
	sessCtx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	m.mu.Lock()
	m.cancels[sess.ID] = cancel
	m.done[sess.ID] = doneCh
	m.mu.Unlock()

	log.Info().
		Str("session_id", sess.ID).
		Str("topology_ref", topologyRef).
		Int("max_attempts", maxAttempts).
		Msg("session started")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(doneCh)
		defer func() {
			cancel()
			m.mu.Lock()
			delete(m.cancels, sess.ID)
			m.mu.Unlock()
		}()
		if err := m.orch.RunSession(sessCtx, sess, topo, behaviorContract, handle); err != nil && !errors.Is(err, model.ErrSessionAborted) {
			log.Error().Err(err).Str("session_id", sess.ID).Msg("session loop failed")
		}
	}()

	return sess.ID, nil
}

// Wait blocks until the session reaches a terminal state (or ctx ends) and
// returns it.
func (m *Manager) Wait(ctx context.Context, sessionID string) (model.Session, error) {
	m.mu.Lock()
	doneCh, ok := m.done[sessionID]
	m.mu.Unlock()
	if ok {
		select {
		case <-doneCh:
		case <-ctx.Done():
			return model.Session{}, ctx.Err()
		}
	}
	return m.store.GetSession(ctx, sessionID)
}

// Get returns the session with its full attempt history.
func (m *Manager) Get(ctx context.Context, sessionID string) (model.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// List returns session summaries, newest first.
func (m *Manager) List(ctx context.Context) ([]registry.SessionSummary, error) {
	return m.store.ListSessions(ctx)
}

// Events returns the session's audit timeline.
func (m *Manager) Events(ctx context.Context, sessionID string) ([]registry.Event, error) {
	return m.store.Events(ctx, sessionID)
}

// Abort cancels a running session. The abort is observed at the loop's next
// suspension-point boundary; the sandbox is reset and released before the
// session reports ABORTED.
func (m *Manager) Abort(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	cancel, running := m.cancels[sessionID]
	m.mu.Unlock()
	if running {
		cancel()
		log.Info().Str("session_id", sessionID).Msg("session abort requested")
		return nil
	}

	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.State.Terminal() {
		return model.ErrSessionClosed
	}
	// A RUNNING record without a live loop can only be a crash leftover;
	// close it out so the caller is not left waiting forever.
	return m.store.CloseSession(ctx, sessionID, model.SessionAborted, nil)
}

// Close aborts all running sessions and waits for their loops to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}
