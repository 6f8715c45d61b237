package composetest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"vawter.tech/stopper"
)

// LogEvent is one chunk of new log output from a followed service
type LogEvent struct {
	// Line is one log line, without its trailing newline
	Line string
	// Err is set when fetching logs failed; the stream ends after an error
	Err error
}

// FollowCleanupFunc stops a log follower and releases its resources
type FollowCleanupFunc func() error

// DefaultFollowInterval is the delay between log polls while following
const DefaultFollowInterval = 250 * time.Millisecond

// FollowLogs streams the named service's log output as it grows. It polls
// the same append-only log stream the readiness wait reads, emitting each
// line not seen by a previous poll. The returned cleanup function stops
// the follower; the channel is closed once it has stopped.
//
// Following is a diagnostic aid while a test runs; it plays no part in
// readiness detection.
func (c *Compose) FollowLogs(ctx context.Context, name string) (<-chan LogEvent, FollowCleanupFunc, error) {
	if _, ok := c.services[name]; !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}

	ch := make(chan LogEvent, 16)

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		close(ch)
	})

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}

	sctx.Go(func(sctx *stopper.Context) error {
		var linesSeen int
		for !sctx.IsStopping() {
			logText, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "logs", name)
			if err != nil {
				select {
				case ch <- LogEvent{Err: err}:
				case <-sctx.Stopping():
				}
				return nil
			}

			lines := splitLogLines(logText)
			if linesSeen > len(lines) {
				// Shorter than last poll means the runtime replaced the
				// log stream (container recreated); start over.
				linesSeen = 0
			}
			for _, line := range lines[linesSeen:] {
				select {
				case ch <- LogEvent{Line: line}:
				case <-sctx.Stopping():
					return nil
				}
			}
			linesSeen = len(lines)

			select {
			case <-sctx.Stopping():
				return nil
			case <-time.After(DefaultFollowInterval):
			}
		}
		return nil
	})

	return ch, cleanup, nil
}

func splitLogLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
