package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/angelmondragon/studiopass/internal/client/gateway"
	"github.com/angelmondragon/studiopass/internal/client/session"
	"github.com/angelmondragon/studiopass/internal/client/signup"
)

const orphanMessage = "Your account exists but no member profile is linked to it. " +
	"Contact the studio with your email address so staff can finish your registration."

type registrationForm struct {
	FullName string `validate:"required,max=200"`
	Phone    string `validate:"omitempty,max=40"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
	Confirm  string `validate:"required,eqfield=Password"`
}

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

var fieldLabels = map[string]string{
	"FullName": "Full name",
	"Phone":    "Phone",
	"Email":    "Email",
	"Password": "Password",
	"Confirm":  "Password confirmation",
}

// formError turns the first validation failure into a user-facing message.
func formError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	label := fieldLabels[fe.Field()]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", label)
	case "email":
		return errors.New("enter a valid email address")
	case "min":
		return fmt.Errorf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Errorf("%s must be at most %s characters", label, fe.Param())
	case "eqfield":
		return errors.New("passwords do not match")
	default:
		return fmt.Errorf("%s is invalid", label)
	}
}

// describeFailure is the message shown for a failed remote call.
func describeFailure(err error) error {
	f := gateway.Classify(err)
	if f == nil {
		return nil
	}
	switch f.Reason {
	case gateway.ReasonInvalidCredentials:
		return errors.New("invalid email or password")
	case gateway.ReasonAccountInactive:
		return errors.New("this account is not active; contact the studio")
	case gateway.ReasonRateLimited:
		return errors.New("too many attempts; try again later")
	case gateway.ReasonNetwork:
		return errors.New("cannot reach the studio server; check your connection")
	case gateway.ReasonConflict:
		return errors.New("an account with this email already exists")
	case gateway.ReasonValidation:
		return fmt.Errorf("invalid input: %s", f.Message)
	default:
		return fmt.Errorf("something went wrong: %s", f.Message)
	}
}

func (a *App) Register(ctx context.Context) error {
	var form registrationForm
	var err error
	if form.FullName, err = GetSimpleText(a.reader, "Full name", a.out); err != nil {
		return err
	}
	if form.Phone, err = GetSimpleText(a.reader, "Phone (optional)", a.out); err != nil {
		return err
	}
	if form.Email, err = GetSimpleText(a.reader, "Email", a.out); err != nil {
		return err
	}
	if form.Password, err = GetPassword(a.out, a.passwordFd, "Password"); err != nil {
		return err
	}
	if form.Confirm, err = GetPassword(a.out, a.passwordFd, "Confirm password"); err != nil {
		return err
	}
	if err := a.validate.Struct(form); err != nil {
		return formError(err)
	}

	res := a.sessions.SignUpWithEmail(ctx, form.Email, form.Password, signup.Profile{
		FullName: form.FullName,
		Phone:    form.Phone,
	})
	switch {
	case res.Succeeded():
	case res.Orphaned():
		a.logg.Warn(a.logg.WithPrincipalID(ctx, res.PrincipalID.String()), "cli.register_orphaned")
		return errors.New(orphanMessage)
	default:
		return describeFailure(res.Err)
	}

	a.printf("Welcome, %s!\n", form.FullName)
	if res.Member != nil {
		a.printf("Your member code is %s.\n", res.Member.MemberCode)
	}
	if !res.CredentialImage.OK() {
		a.printf("Your barcode image is not ready yet; `studiopass barcode` still shows your check-in code.\n")
	}
	return nil
}

func (a *App) Login(ctx context.Context) error {
	var form loginForm
	var err error
	if form.Email, err = GetSimpleText(a.reader, "Email", a.out); err != nil {
		return err
	}
	if form.Password, err = GetPassword(a.out, a.passwordFd, "Password"); err != nil {
		return err
	}
	if err := a.validate.Struct(form); err != nil {
		return formError(err)
	}

	if err := a.sessions.SignInWithEmail(ctx, form.Email, form.Password); err != nil {
		return describeFailure(err)
	}

	st, err := a.waitFor(ctx, settled)
	if err != nil {
		return fmt.Errorf("signed in, but the session did not load: %w", err)
	}
	a.printStatus(st)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if a.sessions.State().Principal == nil {
		a.printf("Not signed in.\n")
		return nil
	}
	if err := a.sessions.SignOut(ctx); err != nil {
		return describeFailure(err)
	}
	if _, err := a.waitFor(ctx, func(st session.State) bool { return st.Principal == nil }); err != nil {
		return fmt.Errorf("sign-out did not complete: %w", err)
	}
	a.printf("Signed out.\n")
	return nil
}
