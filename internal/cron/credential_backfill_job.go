package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/studiopass/pkg/db/models"
	"github.com/angelmondragon/studiopass/pkg/logger"
)

// CredentialBackfillJobName identifies the backfill job in logs and metrics.
const CredentialBackfillJobName = "credential-backfill"

const defaultBackfillBatch = 100

type missingImageLister interface {
	ListMissingBarcodeImage(ctx context.Context, limit int) ([]models.Member, error)
}

type credentialReissuer interface {
	Reissue(ctx context.Context, member *models.Member) (string, error)
}

// CredentialBackfillJobParams configures the backfill job.
type CredentialBackfillJobParams struct {
	Logger      *logger.Logger
	Members     missingImageLister
	Credentials credentialReissuer
	BatchSize   int
	Metrics     itemsRecorder
}

type credentialBackfillJob struct {
	logg        *logger.Logger
	members     missingImageLister
	credentials credentialReissuer
	batchSize   int
	metrics     itemsRecorder
}

// NewCredentialBackfillJob renders images for members whose signup skipped the
// best-effort credential stage.
func NewCredentialBackfillJob(params CredentialBackfillJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Members == nil {
		return nil, fmt.Errorf("member repository required")
	}
	if params.Credentials == nil {
		return nil, fmt.Errorf("credential service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBackfillBatch
	}
	return &credentialBackfillJob{
		logg:        params.Logger,
		members:     params.Members,
		credentials: params.Credentials,
		batchSize:   batch,
		metrics:     params.Metrics,
	}, nil
}

func (j *credentialBackfillJob) Name() string { return CredentialBackfillJobName }

func (j *credentialBackfillJob) Run(ctx context.Context) error {
	rows, err := j.members.ListMissingBarcodeImage(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("list members without barcode image: %w", err)
	}

	var errs error
	issued := 0
	for i := range rows {
		member := &rows[i]
		memberCtx := j.logg.WithMemberID(ctx, member.ID.String())
		if _, err := j.credentials.Reissue(memberCtx, member); err != nil {
			j.logg.Warn(j.logg.WithField(memberCtx, "error", err.Error()), "credential backfill failed")
			errs = multierr.Append(errs, fmt.Errorf("member %s: %w", member.ID, err))
			continue
		}
		issued++
	}

	if j.metrics != nil {
		j.metrics.SetItems(j.Name(), issued)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(rows),
		"issued":     issued,
	}), "credential backfill finished")
	return errs
}
