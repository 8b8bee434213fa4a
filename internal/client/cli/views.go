package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/angelmondragon/studiopass/internal/client/dashboard"
	"github.com/angelmondragon/studiopass/internal/client/session"
	"github.com/angelmondragon/studiopass/pkg/barcode"
)

const (
	defaultBarcodeColumns = 80
	barcodeRows           = 4
)

func (a *App) Status(ctx context.Context) error {
	st, err := a.waitFor(ctx, func(st session.State) bool {
		return !st.Initializing && st.Linkage != session.LinkagePending
	})
	if err != nil {
		return err
	}
	a.printStatus(st)
	return nil
}

func (a *App) printStatus(st session.State) {
	if st.Principal == nil {
		a.printf("Not signed in.\n")
		return
	}
	a.printf("Signed in as %s\n", st.Principal.Email)
	switch st.Linkage {
	case session.LinkageLoaded:
		a.printf("Member: %s (%s)\n", st.Member.FullName, st.Member.MemberCode)
	case session.LinkageMissing:
		a.printf("%s\n", orphanMessage)
	}
}

func (a *App) Profile(ctx context.Context) error {
	st, err := a.requireMember(ctx)
	if err != nil {
		return err
	}

	profile, err := a.dashboard.Profile(ctx, st.Member)
	if profile == nil {
		return err
	}
	if err != nil {
		a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "cli.profile_partial")
	}

	m := profile.Member
	a.printf("%s\n", m.FullName)
	a.printf("Member code:  %s\n", m.MemberCode)
	if m.Email != nil {
		a.printf("Email:        %s\n", *m.Email)
	}
	if m.Phone != nil {
		a.printf("Phone:        %s\n", *m.Phone)
	}
	a.printf("Member since: %s\n", dashboard.FormatDate(profile.MemberSince))
	a.printMembership(profile.Membership)
	a.printf("Visits:       %d\n", profile.Visits)
	if err != nil {
		a.printf("(some details could not be loaded)\n")
	}
	return nil
}

func (a *App) printMembership(v dashboard.MembershipView) {
	if v.Membership == nil {
		a.printf("Membership:   %s\n", v.ExpiryText())
		return
	}
	a.printf("Membership:   %s (%s)\n", v.Title(), dashboard.StatusLabel(v.Membership.Status))
	line := v.ExpiryText()
	if left := v.DaysLeft(a.now()); left != nil {
		line = fmt.Sprintf("%s, %d days left", line, *left)
	}
	a.printf("              %s\n", line)
}

func (a *App) Feed(ctx context.Context) error {
	st, err := a.requireMember(ctx)
	if err != nil {
		return err
	}

	home, err := a.dashboard.Home(ctx, st.Member, st.Principal)
	if home == nil {
		return err
	}
	if err != nil {
		a.logg.Warn(a.logg.WithField(ctx, "error", err.Error()), "cli.feed_partial")
	}

	a.printMembership(home.Membership)
	a.printf("\n")
	if len(home.Posts) == 0 {
		a.printf("No announcements.\n")
	}
	for _, p := range home.Posts {
		a.printf("[%s] %s\n", dashboard.FormatDate(p.CreatedAt), p.Title)
		if body := strings.TrimSpace(p.Content); body != "" {
			a.printf("  %s\n", strings.ReplaceAll(body, "\n", "\n  "))
		}
	}
	if err != nil {
		a.printf("(some sections could not be loaded)\n")
	}
	return nil
}

func (a *App) Barcode(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("barcode", flag.ContinueOnError)
	fs.SetOutput(a.out)
	pngPath := fs.String("png", "", "write the barcode as a PNG image to this file")
	width := fs.Int("width", defaultBarcodeColumns, "maximum terminal columns")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	if *width <= 0 {
		return errors.New("width must be positive")
	}

	st, err := a.requireMember(ctx)
	if err != nil {
		return err
	}
	value := dashboard.CheckInValue(st.Member, st.Principal)

	if *pngPath != "" {
		if err := writePNG(*pngPath, value); err != nil {
			return err
		}
		a.printf("Wrote %s\n", *pngPath)
	} else {
		a.printf("%s", barcode.Text(barcode.Pattern(value), *width, barcodeRows))
	}
	a.printf("%s\n", value)
	if st.Member.BarcodeImageURL != nil {
		a.printf("Image: %s\n", *st.Member.BarcodeImageURL)
	}
	return nil
}

func writePNG(path, value string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return renderPNG(f, value)
}

func renderPNG(w io.Writer, value string) error {
	return barcode.WritePNG(w, value, barcode.ImageOptions{
		ModuleWidth: barcode.DefaultModuleWidth,
		Height:      80,
		MaxWidth:    600,
		Margin:      barcode.QuietZoneWidth,
	})
}
