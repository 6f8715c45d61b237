package composetest

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// failureStates are container states that indicate a service died while the
// environment was still coming up. Seeing any of them ends the wait
// immediately instead of burning the rest of the timeout.
var failureStates = []string{"exited", "dead", "removing"}

// waitForReady blocks until every service's readiness pattern has matched
// one more time than that service has already consumed, then increments
// every service's consumed count by one.
//
// One poll round serves all participating services, so the overall budget
// is the maximum of their individual timeouts. There is no inter-round
// delay beyond pollInterval (zero by default): the cost of the log queries
// themselves paces the loop.
func (c *Compose) waitForReady(ctx context.Context, services []*service) error {
	if len(services) == 0 {
		return contractErrorf("no services to wait for")
	}

	timeout := services[0].timeout
	for _, svc := range services[1:] {
		if svc.timeout > timeout {
			timeout = svc.timeout
		}
	}

	// ps --status is version-gated; probe the help output once per wait.
	// Without it the fail-fast check is skipped and only the timeout
	// bounds the wait.
	psHelp, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "ps", "--help")
	if err != nil {
		return err
	}
	canUseStatusFlag := strings.Contains(psHelp, "--status")

	start := time.Now()
	for {
		ready := true
		for _, svc := range services {
			logText, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "logs", svc.name)
			if err != nil {
				return err
			}
			if len(svc.pattern.FindAllStringIndex(logText, -1)) <= svc.logsSeen {
				ready = false
				break
			}
		}
		if ready {
			for _, svc := range services {
				svc.logsSeen++
			}
			log.Printf("composetest: all services ready in %v", time.Since(start))
			return nil
		}

		allLogs, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "logs")
		if err != nil {
			return err
		}

		if canUseStatusFlag {
			for _, state := range failureStates {
				if err := c.checkNoContainersWithStatus(ctx, state, allLogs); err != nil {
					return err
				}
			}
		}

		if time.Since(start) > timeout {
			return c.timeoutError(ctx, services, timeout, allLogs)
		}

		if c.pollInterval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.pollInterval):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
	}
}

// checkNoContainersWithStatus fails if any container in the environment is
// in the given state. The ps output has one heading line; any further line
// is a container in that state.
func (c *Compose) checkNoContainersWithStatus(ctx context.Context, state, allLogs string) error {
	containers, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "ps", "--status", state)
	if err != nil {
		return err
	}
	if strings.Count(containers, "\n") > 1 {
		return fmt.Errorf("%w\n%s\nFull log:\n%s", ErrContainerFailed, containers, allLogs)
	}
	return nil
}

// timeoutError builds the per-service found/missing report included in a
// readiness timeout failure. The timeout is the failure being reported; a
// log fetch failing at this point must not replace it, so that service's
// line carries the fetch error instead of a found/missing verdict.
func (c *Compose) timeoutError(ctx context.Context, services []*service, timeout time.Duration, allLogs string) error {
	var report strings.Builder
	for _, svc := range services {
		logText, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "logs", svc.name)
		if err != nil {
			fmt.Fprintf(&report, "*    Service %s, searched for '%s', logs unavailable: %v\n", svc.name, svc.pattern, err)
			continue
		}
		found := "Missing"
		if svc.pattern.MatchString(logText) {
			found = "Found"
		}
		fmt.Fprintf(&report, "*    Service %s, searched for '%s', was %s\n", svc.name, svc.pattern, found)
	}
	return fmt.Errorf("%w after %v. Results:\n%s\nLogs:\n%s", ErrWaitTimeout, timeout, report.String(), allLogs)
}
