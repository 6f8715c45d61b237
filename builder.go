package composetest

import (
	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// ManifestBuilder provides a fluent interface for generating throwaway
// compose manifests, for tests that synthesize their topology instead of
// checking a manifest file in.
type ManifestBuilder struct {
	// Path is where the manifest will be written
	Path string
	// Services are the declared services, in declaration order
	Services []*ServiceSpec
}

// ServiceSpec describes one service in a generated manifest
type ServiceSpec struct {
	// Name is the service name
	Name string
	// Image is the container image reference
	Image string
	// Command overrides the image's default command
	Command []string
	// Env contains environment variables for the container
	Env map[string]string
	// Ports are port mappings in compose "host:container" form
	Ports []string
	// Volumes are volume mappings in compose form
	Volumes []string
	// DependsOn lists services that must be started first
	DependsOn []string
}

// NewManifestBuilder creates a ManifestBuilder writing to path
func NewManifestBuilder(path string) *ManifestBuilder {
	return &ManifestBuilder{Path: path}
}

// NewServiceSpec creates a ServiceSpec for the given service and image
func NewServiceSpec(name, image string) *ServiceSpec {
	return &ServiceSpec{
		Name:  name,
		Image: image,
		Env:   make(map[string]string),
	}
}

// WithCommand overrides the image's default command
func (s *ServiceSpec) WithCommand(cmd ...string) *ServiceSpec {
	s.Command = cmd
	return s
}

// WithEnv adds an environment variable
func (s *ServiceSpec) WithEnv(key, value string) *ServiceSpec {
	s.Env[key] = value
	return s
}

// WithPorts adds port mappings
func (s *ServiceSpec) WithPorts(ports ...string) *ServiceSpec {
	s.Ports = append(s.Ports, ports...)
	return s
}

// WithVolume adds a volume mapping
func (s *ServiceSpec) WithVolume(volume string) *ServiceSpec {
	s.Volumes = append(s.Volumes, volume)
	return s
}

// WithDependsOn declares startup ordering on other services
func (s *ServiceSpec) WithDependsOn(services ...string) *ServiceSpec {
	s.DependsOn = append(s.DependsOn, services...)
	return s
}

// WithService adds a service to the manifest
func (b *ManifestBuilder) WithService(spec *ServiceSpec) *ManifestBuilder {
	b.Services = append(b.Services, spec)
	return b
}

// Write renders the manifest and writes it atomically, so a concurrently
// started runtime never observes a partially written file.
func (b *ManifestBuilder) Write() error {
	if len(b.Services) == 0 {
		return contractErrorf("manifest builder for %s has no services", b.Path)
	}

	services := make(map[string]any, len(b.Services))
	for _, spec := range b.Services {
		if spec.Name == "" || spec.Image == "" {
			return contractErrorf("manifest builder for %s: every service needs a name and an image", b.Path)
		}
		entry := map[string]any{"image": spec.Image}
		if len(spec.Command) > 0 {
			entry["command"] = spec.Command
		}
		if len(spec.Env) > 0 {
			entry["environment"] = spec.Env
		}
		if len(spec.Ports) > 0 {
			entry["ports"] = spec.Ports
		}
		if len(spec.Volumes) > 0 {
			entry["volumes"] = spec.Volumes
		}
		if len(spec.DependsOn) > 0 {
			entry["depends_on"] = spec.DependsOn
		}
		services[spec.Name] = entry
	}

	data, err := yaml.Marshal(map[string]any{"services": services})
	if err != nil {
		return err
	}
	return renameio.WriteFile(b.Path, data, 0o644)
}
