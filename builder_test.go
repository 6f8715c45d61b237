package composetest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManifestBuilderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docker-compose.yaml")

	err := NewManifestBuilder(path).
		WithService(NewServiceSpec("db", "postgres:16").
			WithEnv("POSTGRES_PASSWORD", "secret").
			WithPorts("5432:5432").
			WithVolume("dbdata:/var/lib/postgresql/data")).
		WithService(NewServiceSpec("app", "example/app:dev").
			WithCommand("/app", "--listen", ":8080").
			WithDependsOn("db")).
		Write()
	if err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	images, err := extractServiceImages(path)
	if err != nil {
		t.Fatalf("re-reading generated manifest: %v", err)
	}
	if images["db"] != "postgres:16" || images["app"] != "example/app:dev" {
		t.Errorf("unexpected service images: %v", images)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading manifest: %v", err)
	}
	for _, want := range []string{"POSTGRES_PASSWORD", "5432:5432", "depends_on", "--listen"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("generated manifest missing %q:\n%s", want, data)
		}
	}
}

func TestManifestBuilderEmpty(t *testing.T) {
	err := NewManifestBuilder(filepath.Join(t.TempDir(), "empty.yaml")).Write()
	if err == nil {
		t.Fatal("expected an error for a builder with no services")
	}
}

func TestManifestBuilderUnnamedService(t *testing.T) {
	err := NewManifestBuilder(filepath.Join(t.TempDir(), "bad.yaml")).
		WithService(NewServiceSpec("db", "")).
		Write()
	if err == nil {
		t.Fatal("expected an error for a service without an image")
	}
}
