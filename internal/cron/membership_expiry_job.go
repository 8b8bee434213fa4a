package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/studiopass/pkg/logger"
)

// MembershipExpiryJobName identifies the expiry job in logs and metrics.
const MembershipExpiryJobName = "membership-expiry"

type membershipExpirer interface {
	ExpireEnded(ctx context.Context, now time.Time) (int64, error)
}

type itemsRecorder interface {
	SetItems(job string, n int)
}

// MembershipExpiryJobParams configures the expiry job.
type MembershipExpiryJobParams struct {
	Logger      *logger.Logger
	Memberships membershipExpirer
	Metrics     itemsRecorder
}

type membershipExpiryJob struct {
	logg        *logger.Logger
	memberships membershipExpirer
	metrics     itemsRecorder
	now         func() time.Time
}

// NewMembershipExpiryJob flips ended active memberships to expired.
func NewMembershipExpiryJob(params MembershipExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Memberships == nil {
		return nil, fmt.Errorf("membership service required")
	}
	return &membershipExpiryJob{
		logg:        params.Logger,
		memberships: params.Memberships,
		metrics:     params.Metrics,
		now:         time.Now,
	}, nil
}

func (j *membershipExpiryJob) Name() string { return MembershipExpiryJobName }

func (j *membershipExpiryJob) Run(ctx context.Context) error {
	count, err := j.memberships.ExpireEnded(ctx, j.now())
	if err != nil {
		return fmt.Errorf("expire memberships: %w", err)
	}
	if j.metrics != nil {
		j.metrics.SetItems(j.Name(), int(count))
	}
	j.logg.Info(j.logg.WithField(ctx, "expired", count), "memberships expired")
	return nil
}
