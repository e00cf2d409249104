package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"raisu/svc/util"
)

const (
	checkpointInterval = 5 * time.Minute
	truncateLogPages   = 1000
)

// RunWALMaintenance checkpoints the WAL every interval until ctx ends, then
// runs one final checkpoint.
func RunWALMaintenance(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = checkpointInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := Checkpoint(ctx, db); err != nil {
				util.Error().Err(err).Msg("WAL checkpoint failed")
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := Checkpoint(final, db); err != nil {
				util.Error().Err(err).Msg("final WAL checkpoint failed")
			}
			cancel()
			return
		}
	}
}

// Checkpoint runs a PASSIVE checkpoint and escalates to TRUNCATE when the
// log is large or readers held pages back.
func Checkpoint(ctx context.Context, db *sql.DB) error {
	start := time.Now()
	busy, logPages, done, err := checkpoint(ctx, db, "PASSIVE")
	if err != nil {
		return err
	}
	util.Debug().Int("busy", busy).Int("log", logPages).Int("checkpointed", done).Msg("PASSIVE checkpoint")
	if logPages > truncateLogPages || busy > 0 {
		if busy, logPages, done, err = checkpoint(ctx, db, "TRUNCATE"); err != nil {
			return err
		}
		util.Info().Int("busy", busy).Int("log", logPages).Int("checkpointed", done).Msg("TRUNCATE checkpoint")
	}
	if err := verifyIntegrity(ctx, db); err != nil {
		return err
	}
	util.Debug().Dur("duration", time.Since(start)).Msg("WAL checkpoint completed")
	return nil
}

func checkpoint(ctx context.Context, db *sql.DB, mode string) (busy, logPages, done int, err error) {
	err = db.QueryRowContext(ctx, "PRAGMA wal_checkpoint("+mode+")").Scan(&busy, &logPages, &done)
	return busy, logPages, done, errors.Wrapf(err, "%s checkpoint", mode)
}

func verifyIntegrity(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return errors.Wrap(err, "quick_check")
	}
	if result != "ok" {
		return errors.Errorf("quick_check returned: %s", result)
	}
	return nil
}
