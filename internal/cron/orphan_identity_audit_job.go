package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/studiopass/pkg/db/models"
	pkgerrors "github.com/angelmondragon/studiopass/pkg/errors"
	"github.com/angelmondragon/studiopass/pkg/logger"
)

// OrphanIdentityAuditJobName identifies the audit job in logs and metrics.
const OrphanIdentityAuditJobName = "orphan-identity-audit"

const (
	defaultOrphanGrace = 15 * time.Minute
	defaultOrphanLimit = 500
)

type orphanLister interface {
	ListOrphanPrincipals(ctx context.Context, olderThan time.Time, limit int) ([]models.Principal, error)
}

// OrphanIdentityAuditJobParams configures the audit job.
type OrphanIdentityAuditJobParams struct {
	Logger      *logger.Logger
	Members     orphanLister
	GracePeriod time.Duration
	Limit       int
	Metrics     itemsRecorder
}

type orphanIdentityAuditJob struct {
	logg    *logger.Logger
	members orphanLister
	grace   time.Duration
	limit   int
	metrics itemsRecorder
	now     func() time.Time
}

// NewOrphanIdentityAuditJob reports principals left without a member row. It
// never repairs them.
func NewOrphanIdentityAuditJob(params OrphanIdentityAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Members == nil {
		return nil, fmt.Errorf("member repository required")
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = defaultOrphanGrace
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultOrphanLimit
	}
	return &orphanIdentityAuditJob{
		logg:    params.Logger,
		members: params.Members,
		grace:   grace,
		limit:   limit,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

func (j *orphanIdentityAuditJob) Name() string { return OrphanIdentityAuditJobName }

func (j *orphanIdentityAuditJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.grace)
	orphans, err := j.members.ListOrphanPrincipals(ctx, cutoff, j.limit)
	if err != nil {
		return fmt.Errorf("list orphan principals: %w", err)
	}

	for _, principal := range orphans {
		orphanCtx := j.logg.WithPrincipalID(ctx, principal.ID.String())
		orphanCtx = j.logg.WithFields(orphanCtx, map[string]any{
			"email":      principal.Email,
			"created_at": principal.CreatedAt,
			"code":       string(pkgerrors.CodeMemberProvisioning),
		})
		j.logg.Warn(orphanCtx, "identity has no member profile")
	}

	if j.metrics != nil {
		j.metrics.SetItems(j.Name(), len(orphans))
	}
	j.logg.Info(j.logg.WithField(ctx, "orphans", len(orphans)), "orphan identity audit finished")
	return nil
}
