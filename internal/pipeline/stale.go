package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RescheduleStale schedules again every photo that has been PROCESSING for
// longer than olderThan. Jobs lost between a queue commit and the end of
// derivation are recovered this way; a photo that is still being derived
// elsewhere is settled by Derive's ownership rules. It returns how many
// photos were scheduled.
func RescheduleStale(ctx context.Context, dir Directory, scheduler Scheduler, olderThan time.Duration, logger zerolog.Logger) (int, error) {
	const op = "pipeline.RescheduleStale"

	ids, err := dir.FindStalePhotos(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	scheduled := 0
	for _, id := range ids {
		if err := scheduler.Schedule(ctx, id); err != nil {
			return scheduled, fmt.Errorf("%s: %s: %w", op, id, err)
		}
		scheduled++
		rescheduledTotal.Inc()
	}
	if scheduled > 0 {
		logger.Info().Int("photos", scheduled).Dur("older_than", olderThan).Msg("Rescheduled stale photos")
	}
	return scheduled, nil
}
