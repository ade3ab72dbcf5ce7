package scheduler

import (
	"context"
	"time"

	"github.com/driftwatch/deltasync/internal/domain"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
)

// TombstonePruneJob physically removes soft-deleted entities older than the
// retention window. Tombstones must outlive the slowest client's sync
// interval, otherwise that client never learns about the deletion.
type TombstonePruneJob struct {
	Name          string
	Log           zerolog.Logger
	Repo          domain.EntityRepo
	RetentionDays int
}

func (j *TombstonePruneJob) Run() {
	j.Log.Info().Msg("Starting tombstone pruning job")
	ctx := context.Background()

	cutoff := time.Now().UTC().Add(-time.Duration(j.RetentionDays) * 24 * time.Hour)

	pruned, err := j.Repo.DeleteTombstonesBefore(ctx, cutoff)
	if err != nil {
		j.Log.Error().Err(err).Msg("Failed to prune tombstones")
		return
	}

	if pruned == 0 {
		j.Log.Info().Msg("No tombstones old enough to prune.")
		return
	}

	j.Log.Info().Msgf("Tombstone pruning job finished. Removed: %s", humanize.Comma(pruned))
}
