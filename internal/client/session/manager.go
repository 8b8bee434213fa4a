// Package session tracks who is signed in and which member row belongs to them.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/internal/client/gateway"
	"github.com/angelmondragon/studiopass/internal/client/signup"
	"github.com/angelmondragon/studiopass/pkg/logger"
)

// principalWait bounds how long signup waits for its own signed_in event.
const principalWait = 5 * time.Second

var (
	ErrAlreadyInitialized = errors.New("session manager already initialized")
	ErrNotInitialized     = errors.New("session manager not initialized")
	ErrClosed             = errors.New("session manager closed")
)

// Linkage describes whether the signed-in principal has a member row.
type Linkage string

const (
	LinkageNone    Linkage = "none"
	LinkagePending Linkage = "pending"
	LinkageLoaded  Linkage = "loaded"
	LinkageMissing Linkage = "missing"
)

// State is an immutable snapshot of the manager.
type State struct {
	Session             *gateway.Session
	Principal           *gateway.Principal
	Member              *gateway.Member
	Initializing        bool
	OperationInProgress bool
	Linkage             Linkage
}

type fetchRequest struct {
	principalID uuid.UUID
	done        chan struct{}
}

// update is one unit of work for the event loop.
type update struct {
	event *gateway.AuthEvent
	fetch *fetchRequest
}

type Params struct {
	Identity gateway.Identity
	Members  gateway.Members
	Signup   *signup.Flow
	Logger   *logger.Logger
}

// Manager serializes identity events and member lookups through one goroutine,
// which is the only writer of the session, principal and member fields.
type Manager struct {
	identity gateway.Identity
	members  gateway.Members
	flow     *signup.Flow
	logg     *logger.Logger

	mu         sync.RWMutex
	state      State
	fetched    bool
	operations int

	updates chan update
	ready   chan struct{}
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	initMu      sync.Mutex
	initialized bool
	sub         gateway.Subscription
	closeOnce   sync.Once

	watchMu  sync.Mutex
	watchers map[int]chan State
	nextID   int
}

func NewManager(p Params) (*Manager, error) {
	if p.Identity == nil {
		return nil, errors.New("identity gateway required")
	}
	if p.Members == nil {
		return nil, errors.New("members gateway required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		identity: p.Identity,
		members:  p.Members,
		flow:     p.Signup,
		logg:     p.Logger,
		state:    State{Initializing: true, Linkage: LinkageNone},
		updates:  make(chan update),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		watchers: make(map[int]chan State),
	}, nil
}

// Initialize subscribes to identity events and feeds the persisted session
// through the event loop as the initial event.
func (m *Manager) Initialize(ctx context.Context) error {
	m.initMu.Lock()
	defer m.initMu.Unlock()
	if m.initialized {
		return ErrAlreadyInitialized
	}
	if m.closed() {
		return ErrClosed
	}
	m.initialized = true

	m.sub = m.identity.Subscribe()
	m.wg.Add(2)
	go m.loop()
	go m.forward(m.sub)

	session, err := m.identity.GetSession(ctx)
	if err != nil {
		m.logg.Error(ctx, "session.initial_lookup_failed", err)
		session = nil
	}
	m.enqueue(update{event: &gateway.AuthEvent{Kind: gateway.EventInitialSession, Session: session}})
	return nil
}

// WaitReady blocks until the initial session has been processed.
func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current snapshot.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() State {
	st := m.state
	st.OperationInProgress = m.operations > 0
	switch {
	case st.Principal == nil:
		st.Linkage = LinkageNone
	case st.Member != nil:
		st.Linkage = LinkageLoaded
	case m.fetched:
		st.Linkage = LinkageMissing
	default:
		st.Linkage = LinkagePending
	}
	return st
}

// FetchMember loads the member row for principalID inside the event loop. A
// failed lookup leaves Member nil and is only logged.
func (m *Manager) FetchMember(ctx context.Context, principalID uuid.UUID) error {
	m.initMu.Lock()
	initialized := m.initialized
	m.initMu.Unlock()
	if !initialized {
		return ErrNotInitialized
	}

	req := &fetchRequest{principalID: principalID, done: make(chan struct{})}
	if !m.enqueue(update{fetch: req}) {
		return ErrClosed
	}
	select {
	case <-req.done:
		return nil
	case <-m.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RefreshMember re-fetches the member of the current principal, if any.
func (m *Manager) RefreshMember(ctx context.Context) error {
	st := m.State()
	if st.Principal == nil {
		return nil
	}
	return m.FetchMember(ctx, st.Principal.ID)
}

// SignInWithEmail asks the identity service for a session. State changes
// arrive later through the signed_in event.
func (m *Manager) SignInWithEmail(ctx context.Context, email, password string) error {
	if m.closed() {
		return ErrClosed
	}
	m.beginOperation()
	defer m.endOperation()

	if _, err := m.identity.SignInWithPassword(ctx, email, password); err != nil {
		failure := gateway.Classify(err)
		m.logg.Info(m.logg.WithField(ctx, "reason", failure.Reason), "session.sign_in_failed")
		return failure
	}
	return nil
}

// SignUpWithEmail runs the signup flow and refreshes the member once the row
// exists and again after its credential image is attached.
func (m *Manager) SignUpWithEmail(ctx context.Context, email, password string, profile signup.Profile) signup.Result {
	if m.closed() {
		return signup.Result{Stage: signup.StageFailed, FailedStep: signup.StepIdentity, Err: ErrClosed}
	}
	if m.flow == nil {
		return signup.Result{
			Stage:      signup.StageFailed,
			FailedStep: signup.StepIdentity,
			Err:        errors.New("signup flow not configured"),
		}
	}
	m.beginOperation()
	defer m.endOperation()

	res := m.flow.Run(ctx, signup.Request{Email: email, Password: password, Profile: profile}, func(stage signup.Stage, principalID uuid.UUID) {
		if stage == signup.StageMemberProvisioned {
			m.refetchQuietly(ctx, principalID)
		}
	})
	if res.Succeeded() && res.CredentialImage.OK() {
		m.refetchQuietly(ctx, res.PrincipalID)
	}
	return res
}

// refetchQuietly waits until the principal's sign-in has been applied, then
// reloads its member row.
func (m *Manager) refetchQuietly(ctx context.Context, principalID uuid.UUID) {
	if !m.awaitPrincipal(ctx, principalID) {
		m.logg.Warn(ctx, "session.member_refetch_skipped")
		return
	}
	if err := m.FetchMember(ctx, principalID); err != nil {
		m.logg.Warn(m.logg.WithField(ctx, "error", err.Error()), "session.member_refetch_skipped")
	}
}

func (m *Manager) awaitPrincipal(ctx context.Context, principalID uuid.UUID) bool {
	ctx, cancel := context.WithTimeout(ctx, principalWait)
	defer cancel()

	states, stop := m.Watch()
	defer stop()
	for {
		select {
		case st, ok := <-states:
			if !ok {
				return false
			}
			if st.Principal != nil && st.Principal.ID == principalID {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}

// SignOut asks the identity service to end the session. The state is cleared
// when the signed_out event is processed.
func (m *Manager) SignOut(ctx context.Context) error {
	if m.closed() {
		return ErrClosed
	}
	m.beginOperation()
	defer m.endOperation()

	if err := m.identity.SignOut(ctx); err != nil {
		failure := gateway.Classify(err)
		m.logg.Warn(m.logg.WithField(ctx, "reason", failure.Reason), "session.sign_out_failed")
		return failure
	}
	return nil
}

// Watch returns a channel that always holds the most recent snapshot, and a
// func to stop watching.
func (m *Manager) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)
	ch <- m.State()

	m.watchMu.Lock()
	select {
	case <-m.done:
		m.watchMu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	id := m.nextID
	m.nextID++
	m.watchers[id] = ch
	m.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.watchMu.Lock()
			if _, ok := m.watchers[id]; ok {
				delete(m.watchers, id)
				close(ch)
			}
			m.watchMu.Unlock()
		})
	}
}

// Close releases the identity subscription and stops the event loop.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.initMu.Lock()
		sub := m.sub
		m.initMu.Unlock()

		close(m.done)
		m.cancel()
		if sub != nil {
			sub.Unsubscribe()
		}
		m.wg.Wait()

		m.watchMu.Lock()
		for id, ch := range m.watchers {
			close(ch)
			delete(m.watchers, id)
		}
		m.watchMu.Unlock()
	})
}

func (m *Manager) closed() bool {
	select {
	case <-m.done:
		return true
	default:
		return false
	}
}

func (m *Manager) beginOperation() {
	m.mu.Lock()
	m.operations++
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) endOperation() {
	m.mu.Lock()
	m.operations--
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) enqueue(u update) bool {
	select {
	case m.updates <- u:
		return true
	case <-m.done:
		return false
	}
}

func (m *Manager) forward(sub gateway.Subscription) {
	defer m.wg.Done()
	for ev := range sub.Events() {
		event := ev
		if !m.enqueue(update{event: &event}) {
			return
		}
	}
}

func (m *Manager) loop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case u := <-m.updates:
			switch {
			case u.event != nil:
				m.applyEvent(*u.event)
			case u.fetch != nil:
				m.fetchMember(u.fetch.principalID)
				close(u.fetch.done)
			}
		}
	}
}

func (m *Manager) applyEvent(ev gateway.AuthEvent) {
	ctx := m.logg.WithField(m.ctx, "event", string(ev.Kind))

	var principal *gateway.Principal
	if ev.Session != nil {
		p := ev.Session.Principal
		principal = &p
	}

	m.mu.Lock()
	previous := m.state.Principal
	m.state.Session = ev.Session
	m.state.Principal = principal
	samePrincipal := previous != nil && principal != nil && previous.ID == principal.ID
	if !samePrincipal {
		m.state.Member = nil
		m.fetched = false
	}
	needsFetch := principal != nil && (!samePrincipal || ev.Kind != gateway.EventTokenRefreshed || m.state.Member == nil)
	m.mu.Unlock()

	m.logg.Debug(ctx, "session.event")
	if needsFetch {
		m.fetchMember(principal.ID)
	}

	if ev.Kind == gateway.EventInitialSession {
		m.mu.Lock()
		wasInitializing := m.state.Initializing
		m.state.Initializing = false
		m.mu.Unlock()
		if wasInitializing {
			close(m.ready)
		}
	}
	m.publish()
}

// fetchMember runs on the loop goroutine. The result is dropped when the
// principal changed while the lookup was in flight.
func (m *Manager) fetchMember(principalID uuid.UUID) {
	ctx := m.logg.WithPrincipalID(m.ctx, principalID.String())

	member, err := m.members.Get(ctx, principalID)
	if err != nil {
		if gateway.IsNotFound(err) {
			m.logg.Warn(ctx, "session.member_missing")
		} else {
			m.logg.Error(ctx, "session.member_fetch_failed", err)
		}
		member = nil
	}

	m.mu.Lock()
	current := m.state.Principal
	if current == nil || current.ID != principalID {
		m.mu.Unlock()
		m.logg.Debug(ctx, "session.member_fetch_stale")
		return
	}
	m.state.Member = member
	m.fetched = true
	m.mu.Unlock()
	m.publish()
}

func (m *Manager) publish() {
	st := m.State()
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	for _, ch := range m.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- st:
		default:
		}
	}
}
