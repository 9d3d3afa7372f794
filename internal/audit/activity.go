package audit

import (
	"context"
	"time"
)

// writeTimeout bounds a single Record call made on behalf of a mutation.
const writeTimeout = 2 * time.Second

// pruneInterval is how often Retain deletes expired entries.
const pruneInterval = time.Hour

// Logger is the logging surface audit helpers need.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Log records e and logs, rather than returns, any failure. A nil repo is a no-op.
func Log(ctx context.Context, repo Repository, logger Logger, e Entry) {
	if repo == nil {
		return
	}
	if logger == nil {
		logger = noopLogger{}
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := repo.Record(ctx, &e); err != nil {
		logger.Warn("failed to record activity",
			"action", e.Action,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
			"error", err,
		)
	}
}

// Commander sends device commands. *backend.Client satisfies it.
type Commander interface {
	SendCommand(ctx context.Context, deviceID string, target float64) error
}

type recordingCommander struct {
	next   Commander
	repo   Repository
	source string
	logger Logger
}

// RecordCommands wraps next so every accepted command is logged under source.
// Rejected commands are not recorded.
func RecordCommands(next Commander, repo Repository, source string, logger Logger) Commander {
	if repo == nil {
		return next
	}
	return &recordingCommander{next: next, repo: repo, source: source, logger: logger}
}

func (c *recordingCommander) SendCommand(ctx context.Context, deviceID string, target float64) error {
	if err := c.next.SendCommand(ctx, deviceID, target); err != nil {
		return err
	}
	Log(ctx, c.repo, c.logger, Entry{
		Action:     ActionCommand,
		EntityType: EntityDevice,
		EntityID:   deviceID,
		Source:     c.source,
		Details:    map[string]any{"target_value": target},
	})
	return nil
}

// Retain prunes entries older than keep once at start and then hourly until
// ctx is cancelled. keep <= 0 disables pruning and returns immediately.
func Retain(ctx context.Context, repo Repository, keep time.Duration, logger Logger) error {
	if keep <= 0 {
		return nil
	}
	if logger == nil {
		logger = noopLogger{}
	}

	prune := func() {
		n, err := repo.Prune(ctx, time.Now().Add(-keep))
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Warn("activity log pruning failed", "error", err)
		case n > 0:
			logger.Info("activity log pruned", "removed", n)
		}
	}

	prune()
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			prune()
		}
	}
}
