// Package docker runs throwaway backend containers for integration tests.
// Images are built from Dockerfiles at the repository root.
package docker

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// Container describes one test dependency.
type Container struct {
	Dockerfile    string
	Image         string
	Name          string
	HostPort      string
	ContainerPort string
	// Ready is polled until it returns nil or ReadyTimeout elapses.
	Ready        func() error
	ReadyTimeout time.Duration

	mu       sync.Mutex
	started  bool
	setupErr error
}

// Addr returns the host:port tests should dial.
func (c *Container) Addr() string { return "127.0.0.1:" + c.HostPort }

// Setup builds the image, runs the container and waits for Ready. The result
// is memoised until Teardown.
func (c *Container) Setup() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return c.setupErr
	}
	c.started = true
	c.setupErr = c.setup()
	return c.setupErr
}

func (c *Container) setup() error {
	if _, err := exec.LookPath("docker"); err != nil {
		return fmt.Errorf("docker executable not found: %w", err)
	}
	_ = c.stop()
	root := RepoRoot()
	if err := run("build", "-f", filepath.Join(root, c.Dockerfile), "-t", c.Image, root); err != nil {
		return err
	}
	if err := run("run", "-d", "--rm",
		"--name", c.Name,
		"-p", fmt.Sprintf("%s:%s", c.HostPort, c.ContainerPort),
		c.Image,
	); err != nil {
		return err
	}
	return c.waitReady()
}

// Teardown stops the container if Setup started it.
func (c *Container) Teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setupErr != nil {
		return c.setupErr
	}
	if err := c.stop(); err != nil {
		return err
	}
	c.started = false
	return nil
}

func (c *Container) waitReady() error {
	if c.Ready == nil {
		return nil
	}
	timeout := c.ReadyTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	deadline := time.Now().Add(timeout)
	var last error
	for time.Now().Before(deadline) {
		if last = c.Ready(); last == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.Join(fmt.Errorf("%s container did not become ready in %s", c.Name, timeout), last)
}

func (c *Container) stop() error {
	cmd := exec.Command("docker", "stop", c.Name)
	cmd.Dir = RepoRoot()
	output, err := cmd.CombinedOutput()
	if err != nil {
		if strings.Contains(string(output), "No such container") {
			return nil
		}
		return fmt.Errorf("docker stop failed: %w: %s", err, output)
	}
	return nil
}

func run(args ...string) error {
	cmd := exec.Command("docker", args...)
	cmd.Dir = RepoRoot()
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("docker %s failed: %w: %s", args[0], err, output)
	}
	return nil
}

// RepoRoot returns the module root, resolved from this file's location.
func RepoRoot() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", "..", ".."))
}
