package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/studiopass/internal/client/gateway"
	"github.com/angelmondragon/studiopass/internal/client/gateway/gatewaytest"
	"github.com/angelmondragon/studiopass/internal/client/signup"
	"github.com/angelmondragon/studiopass/pkg/enums"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
	"github.com/angelmondragon/studiopass/pkg/logger"
)

const waitFor = 2 * time.Second

func testLogger() *logger.Logger {
	return logger.Discard()
}

func newTestManager(t *testing.T, backend *gatewaytest.Backend, identity gateway.Identity) *Manager {
	t.Helper()
	gw := backend.Gateway()
	if identity == nil {
		identity = gw.Identity
	}
	flow, err := signup.NewFlow(signup.Params{
		Identity:  identity,
		Members:   gw.Members,
		Functions: gw.Functions,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	m, err := NewManager(Params{Identity: identity, Members: gw.Members, Signup: flow, Logger: testLogger()})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func startManager(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, m.Initialize(ctx))
	require.NoError(t, m.WaitReady(ctx))
}

func seedMember(backend *gatewaytest.Backend, id uuid.UUID) {
	backend.PutMember(gateway.Member{
		ID:         id,
		MemberCode: "ZE-12345678",
		FullName:   "Ana Anić",
		Status:     enums.MemberStatusActive,
		Role:       enums.MemberRoleMember,
	})
}

func TestInitializeWithoutSession(t *testing.T) {
	m := newTestManager(t, gatewaytest.New(), nil)
	assert.True(t, m.State().Initializing)

	startManager(t, m)

	st := m.State()
	assert.False(t, st.Initializing)
	assert.Nil(t, st.Session)
	assert.Nil(t, st.Principal)
	assert.Nil(t, st.Member)
	assert.Equal(t, LinkageNone, st.Linkage)
}

func TestInitializeRestoresSessionAndMember(t *testing.T) {
	backend := gatewaytest.New()
	sess := backend.SeedSession("ana@example.com", "secret1")
	seedMember(backend, sess.Principal.ID)
	m := newTestManager(t, backend, nil)

	startManager(t, m)

	st := m.State()
	require.NotNil(t, st.Principal)
	assert.Equal(t, sess.Principal.ID, st.Principal.ID)
	require.NotNil(t, st.Member)
	assert.Equal(t, st.Principal.ID, st.Member.ID)
	assert.Equal(t, LinkageLoaded, st.Linkage)
}

func TestInitializeTwice(t *testing.T) {
	m := newTestManager(t, gatewaytest.New(), nil)
	startManager(t, m)
	assert.ErrorIs(t, m.Initialize(context.Background()), ErrAlreadyInitialized)
}

func TestInitializeSessionLookupFailure(t *testing.T) {
	backend := gatewaytest.New()
	backend.SeedSession("ana@example.com", "secret1")
	backend.GetSessionErr = errors.New("disk unreadable")
	m := newTestManager(t, backend, nil)

	startManager(t, m)

	st := m.State()
	assert.False(t, st.Initializing)
	assert.Nil(t, st.Session)
}

func TestSignInLoadsMember(t *testing.T) {
	backend := gatewaytest.New()
	id := backend.SeedAccount("ana@example.com", "secret1")
	seedMember(backend, id)
	m := newTestManager(t, backend, nil)
	startManager(t, m)

	require.NoError(t, m.SignInWithEmail(context.Background(), "ana@example.com", "secret1"))

	assert.Eventually(t, func() bool {
		st := m.State()
		return st.Linkage == LinkageLoaded && st.Member.ID == id && st.Session != nil
	}, waitFor, 10*time.Millisecond)
	assert.False(t, m.State().OperationInProgress)
}

func TestSignInInvalidCredentials(t *testing.T) {
	backend := gatewaytest.New()
	backend.SeedAccount("ana@example.com", "secret1")
	m := newTestManager(t, backend, nil)
	startManager(t, m)

	err := m.SignInWithEmail(context.Background(), "ana@example.com", "wrong")

	var failure *gateway.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, gateway.ReasonInvalidCredentials, failure.Reason)
	assert.Nil(t, m.State().Session)
}

func TestSignInWithoutMemberRowIsMissing(t *testing.T) {
	backend := gatewaytest.New()
	backend.SeedAccount("ana@example.com", "secret1")
	m := newTestManager(t, backend, nil)
	startManager(t, m)

	require.NoError(t, m.SignInWithEmail(context.Background(), "ana@example.com", "secret1"))

	assert.Eventually(t, func() bool {
		return m.State().Linkage == LinkageMissing
	}, waitFor, 10*time.Millisecond)
	assert.Nil(t, m.State().Member)
	assert.NotNil(t, m.State().Principal)
}

func TestSignOutClearsAfterEvent(t *testing.T) {
	backend := gatewaytest.New()
	sess := backend.SeedSession("ana@example.com", "secret1")
	seedMember(backend, sess.Principal.ID)
	m := newTestManager(t, backend, nil)
	startManager(t, m)
	require.NotNil(t, m.State().Member)

	require.NoError(t, m.SignOut(context.Background()))

	assert.Eventually(t, func() bool {
		st := m.State()
		return st.Session == nil && st.Principal == nil && st.Member == nil
	}, waitFor, 10*time.Millisecond)
	assert.Equal(t, LinkageNone, m.State().Linkage)
}

func TestSignOutFailureKeepsState(t *testing.T) {
	backend := gatewaytest.New()
	sess := backend.SeedSession("ana@example.com", "secret1")
	seedMember(backend, sess.Principal.ID)
	backend.SignOutErr = pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable")
	m := newTestManager(t, backend, nil)
	startManager(t, m)

	err := m.SignOut(context.Background())
	assert.Equal(t, gateway.ReasonService, gateway.Classify(err).Reason)
	assert.NotNil(t, m.State().Member)
}

func TestServerSideSignOutClearsState(t *testing.T) {
	backend := gatewaytest.New()
	sess := backend.SeedSession("ana@example.com", "secret1")
	seedMember(backend, sess.Principal.ID)
	m := newTestManager(t, backend, nil)
	startManager(t, m)

	backend.ExpireSession()

	assert.Eventually(t, func() bool {
		return m.State().Session == nil && m.State().Member == nil
	}, waitFor, 10*time.Millisecond)
	assert.False(t, m.State().Initializing)
}

func TestSignUpRoundTrip(t *testing.T) {
	backend := gatewaytest.New()
	m := newTestManager(t, backend, nil)
	startManager(t, m)

	res := m.SignUpWithEmail(context.Background(), "ana@example.com", "secret1", signup.Profile{FullName: "Ana Anić", Phone: "061 123 456"})
	require.True(t, res.Succeeded(), "signup error: %v", res.Err)

	st := m.State()
	require.NotNil(t, st.Member)
	require.NotNil(t, st.Principal)
	assert.Equal(t, st.Principal.ID, st.Member.ID)
	assert.Equal(t, res.PrincipalID, st.Member.ID)
	assert.Regexp(t, `^ZE-[0-9]{8}$`, st.Member.MemberCode)
	assert.Equal(t, enums.MemberStatusActive, st.Member.Status)
	assert.Equal(t, enums.MemberRoleMember, st.Member.Role)
	require.NotNil(t, st.Member.BarcodeImageURL)
	assert.Equal(t, res.CredentialImageURL, *st.Member.BarcodeImageURL)
	assert.Equal(t, LinkageLoaded, st.Linkage)
	assert.False(t, st.OperationInProgress)
}

func TestSignUpMemberFailureLeavesOrphan(t *testing.T) {
	backend := gatewaytest.New()
	backend.UpsertErr = pkgerrors.New(pkgerrors.CodeDependency, "dependency unavailable")
	m := newTestManager(t, backend, nil)
	startManager(t, m)

	res := m.SignUpWithEmail(context.Background(), "ana@example.com", "secret1", signup.Profile{FullName: "Ana"})

	assert.Equal(t, signup.StageFailed, res.Stage)
	assert.True(t, res.Orphaned())
	assert.True(t, pkgerrors.IsCode(res.Err, pkgerrors.CodeMemberProvisioning))

	assert.Eventually(t, func() bool {
		st := m.State()
		return st.Principal != nil && st.Principal.ID == res.PrincipalID && st.Linkage == LinkageMissing
	}, waitFor, 10*time.Millisecond)
	require.NoError(t, m.FetchMember(context.Background(), res.PrincipalID))
	assert.Nil(t, m.State().Member)
}

func TestFetchMemberNotFoundSetsNil(t *testing.T) {
	backend := gatewaytest.New()
	sess := backend.SeedSession("ana@example.com", "secret1")
	seedMember(backend, sess.Principal.ID)
	m := newTestManager(t, backend, nil)
	startManager(t, m)
	require.NotNil(t, m.State().Member)

	backend.MemberGetErr = pkgerrors.New(pkgerrors.CodeNotFound, "member not found")
	require.NoError(t, m.RefreshMember(context.Background()))
	assert.Nil(t, m.State().Member)
	assert.Equal(t, LinkageMissing, m.State().Linkage)
}

func TestFetchMemberForOtherPrincipalIsIgnored(t *testing.T) {
	backend := gatewaytest.New()
	sess := backend.SeedSession("ana@example.com", "secret1")
	seedMember(backend, sess.Principal.ID)
	other := uuid.New()
	seedMember(backend, other)
	m := newTestManager(t, backend, nil)
	startManager(t, m)

	require.NoError(t, m.FetchMember(context.Background(), other))
	assert.Equal(t, sess.Principal.ID, m.State().Member.ID)
}

func TestFetchMemberBeforeInitialize(t *testing.T) {
	m := newTestManager(t, gatewaytest.New(), nil)
	assert.ErrorIs(t, m.FetchMember(context.Background(), uuid.New()), ErrNotInitialized)
	assert.NoError(t, m.RefreshMember(context.Background()))
}

type blockingIdentity struct {
	gateway.Identity
	entered chan struct{}
	release chan struct{}
}

func (b *blockingIdentity) SignInWithPassword(ctx context.Context, email, password string) (*gateway.Session, error) {
	close(b.entered)
	<-b.release
	return b.Identity.SignInWithPassword(ctx, email, password)
}

func TestOperationInProgressDuringSignIn(t *testing.T) {
	backend := gatewaytest.New()
	backend.SeedAccount("ana@example.com", "secret1")
	identity := &blockingIdentity{
		Identity: backend.Gateway().Identity,
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	m := newTestManager(t, backend, identity)
	startManager(t, m)

	errc := make(chan error, 1)
	go func() { errc <- m.SignInWithEmail(context.Background(), "ana@example.com", "secret1") }()

	<-identity.entered
	assert.True(t, m.State().OperationInProgress)
	close(identity.release)
	require.NoError(t, <-errc)
	assert.False(t, m.State().OperationInProgress)
}

func TestWatchDeliversLatestState(t *testing.T) {
	backend := gatewaytest.New()
	id := backend.SeedAccount("ana@example.com", "secret1")
	seedMember(backend, id)
	m := newTestManager(t, backend, nil)
	startManager(t, m)

	states, cancel := m.Watch()
	defer cancel()

	require.NoError(t, m.SignInWithEmail(context.Background(), "ana@example.com", "secret1"))

	deadline := time.After(waitFor)
	for {
		select {
		case st := <-states:
			if st.Linkage == LinkageLoaded {
				return
			}
		case <-deadline:
			t.Fatal("watch never reported the loaded member")
		}
	}
}

func TestCloseStopsUpdates(t *testing.T) {
	backend := gatewaytest.New()
	backend.SeedAccount("ana@example.com", "secret1")
	m := newTestManager(t, backend, nil)
	startManager(t, m)
	states, _ := m.Watch()

	m.Close()
	m.Close()

	for range states {
	}
	assert.ErrorIs(t, m.SignInWithEmail(context.Background(), "ana@example.com", "secret1"), ErrClosed)
	assert.ErrorIs(t, m.SignOut(context.Background()), ErrClosed)
	assert.ErrorIs(t, m.FetchMember(context.Background(), uuid.New()), ErrClosed)
	assert.Nil(t, m.State().Session)
}
