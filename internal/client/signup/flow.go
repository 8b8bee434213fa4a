// Package signup creates an identity principal together with its member row.
package signup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/studiopass/internal/client/gateway"
	"github.com/angelmondragon/studiopass/pkg/enums"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
	"github.com/angelmondragon/studiopass/pkg/logger"
)

// ErrOrphanedIdentity reports a principal that was created but has no member row.
var ErrOrphanedIdentity = errors.New("identity created without member profile")

type Stage string

const (
	StageIdentityPending   Stage = "identity_pending"
	StageIdentityCreated   Stage = "identity_created"
	StageMemberProvisioned Stage = "member_provisioned"
	StageCredentialIssuing Stage = "credential_issuing"
	StageComplete          Stage = "complete"
	StageFailed            Stage = "failed"
)

// Step names the unit of work a StageResult belongs to.
type Step string

const (
	StepIdentity   Step = "identity"
	StepMember     Step = "member"
	StepCredential Step = "credential"
)

// StageResult is the outcome of one step. A step that never ran has Ran false.
type StageResult struct {
	Ran bool
	Err error
}

func (r StageResult) OK() bool {
	return r.Ran && r.Err == nil
}

// Profile is what the member enters on the registration form.
type Profile struct {
	FullName string
	Phone    string
}

type Request struct {
	Email    string
	Password string
	Profile  Profile
}

// Result is the full outcome of a signup attempt.
type Result struct {
	Stage              Stage
	FailedStep         Step
	PrincipalID        uuid.UUID
	Session            *gateway.Session
	Member             *gateway.Member
	Credential         Credential
	CredentialImageURL string

	Identity        StageResult
	MemberRow       StageResult
	CredentialImage StageResult

	// Err is a *gateway.Failure for identity failures, and wraps
	// ErrOrphanedIdentity for member failures.
	Err error
}

func (r Result) Succeeded() bool {
	return r.Stage == StageComplete
}

// Orphaned reports whether the identity exists without a member row.
func (r Result) Orphaned() bool {
	return errors.Is(r.Err, ErrOrphanedIdentity)
}

// StageFunc observes stage transitions while a flow runs.
type StageFunc func(stage Stage, principalID uuid.UUID)

type Params struct {
	Identity  gateway.Identity
	Members   gateway.Members
	Functions gateway.Functions
	Issuer    CodeIssuer
	Logger    *logger.Logger
}

// Flow runs the signup stages in order; it never retries.
type Flow struct {
	identity  gateway.Identity
	members   gateway.Members
	functions gateway.Functions
	issuer    CodeIssuer
	logg      *logger.Logger
}

func NewFlow(p Params) (*Flow, error) {
	if p.Identity == nil {
		return nil, fmt.Errorf("identity gateway required")
	}
	if p.Members == nil {
		return nil, fmt.Errorf("members gateway required")
	}
	if p.Functions == nil {
		return nil, fmt.Errorf("functions gateway required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	issuer := p.Issuer
	if issuer == nil {
		issuer = NumericIssuer{}
	}
	return &Flow{
		identity:  p.Identity,
		members:   p.Members,
		functions: p.Functions,
		issuer:    issuer,
		logg:      p.Logger,
	}, nil
}

// Run executes identity, member and credential stages. onStage may be nil.
func (f *Flow) Run(ctx context.Context, req Request, onStage StageFunc) Result {
	notify := func(stage Stage, principalID uuid.UUID) {
		if onStage != nil {
			onStage(stage, principalID)
		}
	}

	res := Result{Stage: StageIdentityPending}
	email := strings.TrimSpace(req.Email)

	session, err := f.identity.SignUp(ctx, email, req.Password)
	if err == nil && session == nil {
		err = pkgerrors.New(pkgerrors.CodeDependency, "identity service issued no session")
	}
	res.Identity = StageResult{Ran: true, Err: err}
	if err != nil {
		failure := gateway.Classify(err)
		f.logg.Info(f.logg.WithField(ctx, "reason", failure.Reason), "signup.identity_failed")
		return res.fail(StepIdentity, failure, notify)
	}

	res.Session = session
	res.PrincipalID = session.Principal.ID
	res.Stage = StageIdentityCreated
	ctx = f.logg.WithPrincipalID(ctx, res.PrincipalID.String())
	notify(StageIdentityCreated, res.PrincipalID)

	member, err := f.provision(ctx, &res, email, req.Profile)
	res.MemberRow = StageResult{Ran: true, Err: err}
	if err != nil {
		f.logg.Error(ctx, "signup.member_failed", err)
		wrapped := pkgerrors.Wrap(
			pkgerrors.CodeMemberProvisioning,
			fmt.Errorf("%w: %w", ErrOrphanedIdentity, err),
			"member profile could not be created",
		).WithDetails(map[string]any{"principal_id": res.PrincipalID})
		return res.fail(StepMember, wrapped, notify)
	}
	res.Member = member
	res.Stage = StageMemberProvisioned
	notify(StageMemberProvisioned, res.PrincipalID)

	res.Stage = StageCredentialIssuing
	notify(StageCredentialIssuing, res.PrincipalID)
	img, err := f.functions.GenerateMemberBarcode(ctx, res.PrincipalID, res.Credential.Value)
	res.CredentialImage = StageResult{Ran: true, Err: err}
	if err != nil {
		f.logg.Warn(f.logg.WithField(ctx, "error", err.Error()), "signup.credential_image_failed")
	} else if img != nil {
		res.CredentialImageURL = img.URL
	}

	res.Stage = StageComplete
	notify(StageComplete, res.PrincipalID)
	f.logg.Info(ctx, "signup.complete")
	return res
}

func (f *Flow) provision(ctx context.Context, res *Result, email string, profile Profile) (*gateway.Member, error) {
	credential, err := f.issuer.Issue()
	if err != nil {
		return nil, err
	}
	res.Credential = credential

	value := credential.Value
	in := gateway.MemberUpsert{
		MemberCode:   credential.MemberCode,
		FullName:     strings.TrimSpace(profile.FullName),
		Phone:        blankToNil(profile.Phone),
		Email:        blankToNil(email),
		Status:       enums.MemberStatusActive,
		Role:         enums.MemberRoleMember,
		BarcodeValue: &value,
	}
	return f.members.Upsert(ctx, res.PrincipalID, in)
}

func (r Result) fail(step Step, err error, notify func(Stage, uuid.UUID)) Result {
	r.Stage = StageFailed
	r.FailedStep = step
	r.Err = err
	notify(StageFailed, r.PrincipalID)
	return r
}

func blankToNil(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
