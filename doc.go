// Package composetest brings up a docker compose environment for the
// duration of a test, blocks until every service is observably ready, and
// guarantees the environment is torn down again.
//
// Readiness is detected by matching a per-image regular expression against
// each service's log output. The caller supplies a catalog mapping every
// image referenced by the manifest to its readiness pattern and timeout:
//
//	images := []composetest.Image{{
//	    Name:       "bitnami/redis:6.2.13-debian-11-r73",
//	    LogPattern: `Ready to accept connections`,
//	    Timeout:    120 * time.Second,
//	}}
//
//	env, err := composetest.Up(ctx, images, nil, "testdata/docker-compose.yaml")
//	if err != nil {
//	    t.Fatal(err)
//	}
//	defer env.Close()
//
// Close is idempotent and never panics, so deferring it is safe even when
// the test fails by panicking: teardown still runs, and a secondary teardown
// failure is only logged so it cannot mask the original failure.
//
// # Lifecycle
//
// The returned handle controls individual services mid-test:
//
//	err = env.StopService(ctx, "redis")
//	err = env.KillService(ctx, "redis")
//	err = env.StartService(ctx, "redis") // blocks until ready again
//
// StartService waits for a new occurrence of the readiness pattern rather
// than accepting the one already present from before the restart: each
// service tracks how many occurrences have been consumed, and "ready again"
// means one more than before.
//
// # Design Philosophy
//
// This library prioritizes:
//
//   - One external collaborator (the docker CLI), reached through a single
//     Runner seam so tests of this library need no docker at all
//   - Fail fast: a container that dies during startup is reported with its
//     logs immediately, not after the readiness timeout expires
//   - Full diagnostics on every failure (command, arguments, exit status,
//     combined output) because there are no retries to hide behind
//   - Guaranteed teardown on every exit path, normal or panicking
//
// It is purpose-built for bringing a fixed declarative topology up and down
// around one test. It is not a process supervisor and it does not interpret
// the compose schema beyond the service-to-image mapping; everything else in
// the manifest is docker compose's business.
package composetest
