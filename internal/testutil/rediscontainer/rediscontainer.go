package rediscontainer

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/adeilh/skvdb/internal/testutil/docker"
)

var container = &docker.Container{
	Dockerfile:    "Dockerfile.redis.test",
	Image:         "skvdb-redis-test",
	Name:          "skvdb-redis-test",
	HostPort:      "6390",
	ContainerPort: "6379",
	ReadyTimeout:  5 * time.Second,
}

func init() { container.Ready = ping }

// Addr exposes the Redis host:port combination used by integration tests.
func Addr() string { return container.Addr() }

// Setup builds the Redis test image, runs the container, and waits until it
// answers RESP PING/PONG exchanges.
func Setup() error { return container.Setup() }

// Teardown stops the Redis container if it is running.
func Teardown() error { return container.Teardown() }

func ping() error {
	conn, err := net.DialTimeout("tcp", Addr(), 200*time.Millisecond)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("*1\r\n$4\r\nPING\r\n")); err != nil {
		return err
	}
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return err
	}
	if !strings.Contains(line, "PONG") {
		return errors.New("unexpected reply " + strings.TrimSpace(line))
	}
	return nil
}
