package common

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	rabbitOnce      sync.Once
	rabbitContainer *RabbitMQContainer
	rabbitError     error
)

// RabbitMQContainer wraps a testcontainers RabbitMQ broker.
type RabbitMQContainer struct {
	container testcontainers.Container
	host      string
	port      string
}

// StartRabbitMQ starts a shared RabbitMQ container for the test run.
func StartRabbitMQ(t *testing.T) *RabbitMQContainer {
	t.Helper()

	if testing.Short() {
		t.Skip("RabbitMQ integration test skipped in short mode")
	}

	rabbitOnce.Do(func() {
		ctx := context.Background()

		req := testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort("5672/tcp"),
				wait.ForLog("Server startup complete"),
			).WithDeadline(90 * time.Second),
		}

		container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			rabbitError = fmt.Errorf("start RabbitMQ container: %w", err)
			return
		}

		host, err := container.Host(ctx)
		if err != nil {
			container.Terminate(ctx)
			rabbitError = fmt.Errorf("get RabbitMQ host: %w", err)
			return
		}

		mappedPort, err := container.MappedPort(ctx, "5672/tcp")
		if err != nil {
			container.Terminate(ctx)
			rabbitError = fmt.Errorf("get RabbitMQ port: %w", err)
			return
		}

		rabbitContainer = &RabbitMQContainer{container: container, host: host, port: mappedPort.Port()}
	})

	if rabbitError != nil {
		t.Fatalf("RabbitMQ container failed: %v", rabbitError)
	}

	return rabbitContainer
}

// URL returns the AMQP URL for the default guest account.
func (c *RabbitMQContainer) URL() string {
	return fmt.Sprintf("amqp://guest:guest@%s:%s/", c.host, c.port)
}
