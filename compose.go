package composetest

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"
)

// Default configuration values
const (
	// DefaultDockerPath is the docker binary invoked for every operation
	DefaultDockerPath = "docker"

	// DefaultPollInterval is the delay between readiness poll rounds. Zero
	// means the cost of the log queries themselves paces the loop.
	DefaultPollInterval = 0 * time.Second
)

// BuildFunc is invoked with the distinct image names the manifest depends
// on, before any service is started, so the caller can build images on
// demand. A nil BuildFunc skips the step.
type BuildFunc func(images []string) error

// Compose is a handle to a running compose environment. It is created by
// Up and owns every container the manifest declares until Close is called.
// One handle is used by one logical owner at a time; parallel tests should
// use distinct manifest paths, since the runtime keys environment state by
// manifest-derived project identity.
type Compose struct {
	path         string
	dockerPath   string
	pollInterval time.Duration
	runner       Runner
	services     map[string]*service

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Compose environment
type Option func(*Compose)

// WithRunner replaces the command runner. Tests use this to substitute a
// scripted runner and avoid docker entirely.
func WithRunner(r Runner) Option {
	return func(c *Compose) {
		c.runner = r
	}
}

// WithDockerPath sets the docker binary to invoke
func WithDockerPath(path string) Option {
	return func(c *Compose) {
		c.dockerPath = path
	}
}

// WithPollInterval sets the delay between readiness poll rounds
func WithPollInterval(d time.Duration) Option {
	return func(c *Compose) {
		c.pollInterval = d
	}
}

// Up starts the compose environment described by the manifest at path and
// blocks until every service's readiness pattern has matched.
//
// images must cover every image the manifest references; a manifest image
// with no catalog entry is a contract violation reported before any
// container is left running. buildImages, if non-nil, is called with the
// distinct image names before startup.
//
// On any failure after containers may have started, the environment is
// torn back down before the error is returned: a failed Up never leaks
// containers.
func Up(ctx context.Context, images []Image, buildImages BuildFunc, path string, opts ...Option) (*Compose, error) {
	c := &Compose{
		path:         path,
		dockerPath:   DefaultDockerPath,
		pollInterval: DefaultPollInterval,
		runner:       execRunner{},
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.probeRuntime(ctx); err != nil {
		return nil, err
	}

	// The pre-clean must run before everything else: it removes any stale
	// environment left at this manifest path, and the compose commands it
	// issues double as validation of the manifest with much better
	// diagnostics than extractServiceImages.
	if err := c.cleanUp(ctx); err != nil {
		return nil, err
	}

	serviceImages, err := extractServiceImages(path)
	if err != nil {
		return nil, err
	}

	// Resolve the catalog before anything starts: a missing entry is a
	// caller-contract violation and must not leave containers behind.
	c.services, err = buildServices(images, serviceImages)
	if err != nil {
		return nil, err
	}

	if buildImages != nil {
		if err := buildImages(distinctImages(serviceImages)); err != nil {
			return nil, fmt.Errorf("composetest: building images: %w", err)
		}
	}

	if _, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", path, "up", "-d"); err != nil {
		// A partial up can leave some services running (one image pull
		// failing after others started); reap them.
		c.teardownAfter(err)
		return nil, err
	}

	all := make([]*service, 0, len(c.services))
	for _, svc := range c.services {
		all = append(all, svc)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].name < all[j].name })

	if err := c.waitForReady(ctx, all); err != nil {
		c.teardownAfter(err)
		return nil, err
	}

	return c, nil
}

// MustUp is like Up but panics on error. It is the abort-the-test path for
// callers that treat any startup failure as fatal.
func MustUp(ctx context.Context, images []Image, buildImages BuildFunc, path string, opts ...Option) *Compose {
	c, err := Up(ctx, images, buildImages, path, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// probeRuntime verifies the docker binary and its compose sub-command are
// usable, distinguishing a missing binary from a broken one.
func (c *Compose) probeRuntime(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, c.dockerPath, "compose"); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return ErrRuntimeNotFound
		}
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return fmt.Errorf("%w: %v", ErrRuntimeBroken, err)
		}
		return fmt.Errorf("composetest: error running %s: %w", c.dockerPath, err)
	}
	return nil
}

// buildServices resolves each manifest service's image against the catalog.
func buildServices(images []Image, serviceImages map[string]string) (map[string]*service, error) {
	catalog := make(map[string]Image, len(images))
	for _, img := range images {
		catalog[img.Name] = img
	}

	services := make(map[string]*service, len(serviceImages))
	for name, imageName := range serviceImages {
		img, ok := catalog[imageName]
		if !ok {
			return nil, contractErrorf(
				"the image catalog given to Up does not include the image %s, please add it", imageName)
		}
		svc, err := newService(name, img)
		if err != nil {
			return nil, err
		}
		services[name] = svc
	}
	return services, nil
}

func distinctImages(serviceImages map[string]string) []string {
	seen := make(map[string]struct{}, len(serviceImages))
	var images []string
	for _, image := range serviceImages {
		if _, ok := seen[image]; ok {
			continue
		}
		seen[image] = struct{}{}
		images = append(images, image)
	}
	sort.Strings(images)
	return images
}

// StopService stops the container for the named service. The service is
// expected to be down afterwards, so no readiness check runs.
func (c *Compose) StopService(ctx context.Context, name string) error {
	if _, ok := c.services[name]; !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	_, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "stop", name)
	return err
}

// KillService kills the container for the named service
func (c *Compose) KillService(ctx context.Context, name string) error {
	if _, ok := c.services[name]; !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	_, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "kill", name)
	return err
}

// StartService starts a previously stopped or killed service and blocks
// until its readiness pattern matches again. The service's consumed
// occurrence count carries over from before the restart, so only a fresh
// occurrence of the pattern satisfies the wait.
func (c *Compose) StartService(ctx context.Context, name string) error {
	svc, ok := c.services[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	if _, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "start", name); err != nil {
		return err
	}
	return c.waitForReady(ctx, []*service{svc})
}

// LogsSeen reports how many times the named service's readiness pattern
// has been consumed over the service's lifetime. It is zero (and ok is
// false) for unknown services.
func (c *Compose) LogsSeen(name string) (int, bool) {
	svc, ok := c.services[name]
	if !ok {
		return 0, false
	}
	return svc.logsSeen, true
}

// Services returns the names of the services in this environment, sorted.
func (c *Compose) Services() []string {
	names := make([]string, 0, len(c.services))
	for name := range c.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Logs returns the named service's log output so far.
func (c *Compose) Logs(ctx context.Context, name string) (string, error) {
	if _, ok := c.services[name]; !ok {
		return "", fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "logs", name)
}

// AllLogs returns the combined log output of every service.
func (c *Compose) AllLogs(ctx context.Context) (string, error) {
	return c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "logs")
}

// Down tears the environment down and reports any failure. Unlike Close it
// does not log; callers that want teardown failures to fail the test use
// Down, deferred callers use Close.
func (c *Compose) Down(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closeErr = c.cleanUp(ctx)
	})
	return c.closeErr
}

// Close tears the environment down. It is idempotent and never panics, so
// it is safe in a deferred call even while the test is unwinding from a
// panic: a teardown failure at that point is only logged, because a
// secondary failure must not mask the original one.
func (c *Compose) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.cleanUp(context.Background())
		if c.closeErr != nil {
			log.Printf("composetest: failed to bring down compose environment: %v", c.closeErr)
		}
	})
	return c.closeErr
}

// teardownAfter cleans up after a failed Up. The construction error is
// what the caller needs to see; a further teardown failure is only logged.
func (c *Compose) teardownAfter(cause error) {
	if err := c.cleanUp(context.Background()); err != nil {
		log.Printf("composetest: failed to bring down compose environment while handling %q: %v", cause, err)
	}
}

// cleanUp shuts the environment down and removes its containers and
// volumes. Safe to call when nothing is running.
func (c *Compose) cleanUp(ctx context.Context) error {
	log.Printf("composetest: bringing down compose environment %s", c.path)

	if _, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "kill"); err != nil {
		return err
	}
	if _, err := c.runner.Run(ctx, c.dockerPath, "compose", "-f", c.path, "down", "-v"); err != nil {
		return err
	}
	return nil
}
