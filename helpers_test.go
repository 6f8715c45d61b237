package composetest

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"testing"
)

// RequireTool skips the test if the tool is not available in PATH.
// This should be used for any test that depends on external binaries.
func RequireTool(t *testing.T, toolName string) {
	t.Helper()
	if _, err := exec.LookPath(toolName); err != nil {
		t.Skipf("%s not found in PATH, skipping test (install it to run this test)", toolName)
	}
}

// fakeRuntime is an in-process stand-in for the docker CLI. It records
// every invocation, serves canned log and status output, and can be
// scripted to fail specific sub-commands or to grow a service's log after
// a number of polls.
type fakeRuntime struct {
	mu sync.Mutex

	// psHelp is returned for `ps --help`; include "--status" to enable
	// the fail-fast check
	psHelp string
	// logs holds per-service log text
	logs map[string]string
	// statuses maps a container state to ps table rows below the heading
	statuses map[string][]string
	// failures maps a joined argument suffix (e.g. "stop db") to a rule
	// that fails matching invocations, optionally letting some through
	failures map[string]*failureRule
	// pending holds log text appended to a service after N more polls of
	// that service's logs
	pending map[string][]*pendingLog

	calls []string
}

type pendingLog struct {
	polls int
	text  string
}

type failureRule struct {
	// after is how many matching invocations still succeed before the
	// rule starts failing them
	after int
	err   error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		psHelp:   "Usage: docker compose ps [OPTIONS]\n  --status strings\n",
		logs:     make(map[string]string),
		statuses: make(map[string][]string),
		failures: make(map[string]*failureRule),
		pending:  make(map[string][]*pendingLog),
	}
}

func (f *fakeRuntime) appendLog(service, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[service] += text
}

// appendLogAfter schedules text to be appended to service's log after that
// log has been polled polls more times.
func (f *fakeRuntime) appendLogAfter(service string, polls int, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[service] = append(f.pending[service], &pendingLog{polls: polls, text: text})
}

func (f *fakeRuntime) setStatus(state string, rows ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[state] = rows
}

func (f *fakeRuntime) failOn(suffix string, err error) {
	f.failOnAfter(suffix, 0, err)
}

// failOnAfter makes invocations ending with suffix fail once calls more of
// them have succeeded.
func (f *fakeRuntime) failOnAfter(suffix string, calls int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[suffix] = &failureRule{after: calls, err: err}
}

// callCount reports how many recorded invocations end with suffix.
func (f *fakeRuntime) callCount(suffix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if strings.HasSuffix(call, suffix) {
			n++
		}
	}
	return n
}

// callIndex reports the position of the first recorded invocation ending
// with suffix, or -1.
func (f *fakeRuntime) callIndex(suffix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, call := range f.calls {
		if strings.HasSuffix(call, suffix) {
			return i
		}
	}
	return -1
}

func (f *fakeRuntime) Run(_ context.Context, command string, args ...string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := command + " " + strings.Join(args, " ")
	f.calls = append(f.calls, call)

	for suffix, rule := range f.failures {
		if strings.HasSuffix(call, suffix) {
			if rule.after <= 0 {
				return "", rule.err
			}
			rule.after--
		}
	}

	// bare `docker compose` probe
	if len(args) == 1 && args[0] == "compose" {
		return "Usage: docker compose [OPTIONS] COMMAND\n", nil
	}

	if len(args) < 4 || args[0] != "compose" || args[1] != "-f" {
		return "", fmt.Errorf("fakeRuntime: unexpected command %q", call)
	}
	rest := args[3:]

	switch {
	case len(rest) == 2 && rest[0] == "ps" && rest[1] == "--help":
		return f.psHelp, nil
	case len(rest) == 3 && rest[0] == "ps" && rest[1] == "--status":
		out := "NAME    IMAGE    COMMAND    SERVICE    CREATED    STATUS    PORTS\n"
		for _, row := range f.statuses[rest[2]] {
			out += row + "\n"
		}
		return out, nil
	case len(rest) == 1 && rest[0] == "logs":
		names := make([]string, 0, len(f.logs))
		for name := range f.logs {
			names = append(names, name)
		}
		sort.Strings(names)
		var all strings.Builder
		for _, name := range names {
			all.WriteString(f.logs[name])
		}
		return all.String(), nil
	case len(rest) == 2 && rest[0] == "logs":
		name := rest[1]
		kept := f.pending[name][:0]
		for _, p := range f.pending[name] {
			if p.polls <= 0 {
				f.logs[name] += p.text
			} else {
				p.polls--
				kept = append(kept, p)
			}
		}
		f.pending[name] = kept
		return f.logs[name], nil
	case len(rest) == 2 && rest[0] == "up" && rest[1] == "-d":
		return "", nil
	case len(rest) == 2 && rest[0] == "down" && rest[1] == "-v":
		return "", nil
	case len(rest) == 1 && rest[0] == "kill":
		return "", nil
	case len(rest) == 2 && (rest[0] == "stop" || rest[0] == "kill" || rest[0] == "start"):
		return "", nil
	}
	return "", fmt.Errorf("fakeRuntime: unexpected command %q", call)
}

// writeManifest renders a single-service manifest into dir and returns its
// path.
func writeManifest(t *testing.T, dir string, services map[string]string) string {
	t.Helper()
	b := NewManifestBuilder(dir + "/docker-compose.yaml")
	for name, image := range services {
		b.WithService(NewServiceSpec(name, image))
	}
	if err := b.Write(); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	return b.Path
}
