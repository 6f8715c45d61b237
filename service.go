package composetest

import (
	"regexp"
	"time"
)

// Image is one entry in the caller-supplied readiness catalog. Every image
// referenced by the manifest must have a matching entry; a manifest image
// without one is a contract violation reported at construction time.
type Image struct {
	// Name is the image reference exactly as it appears in the manifest
	Name string
	// LogPattern is a regular expression whose appearance in a container's
	// log output signals that the container has finished starting
	LogPattern string
	// Timeout bounds how long a service running this image may take to
	// emit LogPattern
	Timeout time.Duration
}

// service holds the readiness state for one running service.
//
// logsSeen counts how many occurrences of the readiness pattern have
// already been consumed. A service's compose log history is append-only
// and cumulative, so after a restart "ready again" means one more
// occurrence than before, not "pattern present anywhere". The counter only
// ever increases. This assumes the runtime never truncates or rotates the
// log stream between polls.
type service struct {
	name     string
	pattern  *regexp.Regexp
	logsSeen int
	timeout  time.Duration
}

func newService(name string, img Image) (*service, error) {
	pattern, err := regexp.Compile(img.LogPattern)
	if err != nil {
		return nil, &ContractError{
			Msg: "image " + img.Name + " has an invalid log pattern " + img.LogPattern,
			Err: err,
		}
	}
	return &service{
		name:    name,
		pattern: pattern,
		timeout: img.Timeout,
	}, nil
}
