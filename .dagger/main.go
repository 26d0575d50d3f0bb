// Recall CI
//
// Package main provides reproducible builds and tests for recall, locally
// and in CI.
package main

import (
	"context"

	"dagger/recall/internal/dagger"
)

// Recall is the CI module for the recall pipeline.
type Recall struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", "build", "tmp", "_examples"]
	source *dagger.Directory,
) *Recall {
	return &Recall{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm Go container with CGO enabled for
// go-sqlite3 and the project source mounted.
func (r *Recall) goContainer() *dagger.Container {
	return r.platformContainer("")
}

// platformContainer is goContainer for an explicit platform such as
// "linux/arm64". An empty platform uses the engine's native one.
func (r *Recall) platformContainer(platform dagger.Platform) *dagger.Container {
	return dag.Container(dagger.ContainerOpts{Platform: platform}).
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", r.Source)
}

// Test runs the unit tests with the race detector.
func (r *Recall) Test(ctx context.Context) (string, error) {
	return r.goContainer().
		WithExec([]string{"go", "test", "-race", "./..."}).
		Stdout(ctx)
}

// Vet runs "go vet" over every package.
//
// +check
func (r *Recall) Vet(ctx context.Context) (string, error) {
	return r.goContainer().
		WithExec([]string{"go", "vet", "./..."}).
		Stdout(ctx)
}
