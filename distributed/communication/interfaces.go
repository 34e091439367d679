package communication

import "context"

// ExchangeService is the endpoint every node exposes: it executes task
// fragments assigned to the node and accepts row batches other nodes
// publish for it.
type ExchangeService interface {
	// ExecuteTask runs one scheduled fragment and scatters its output.
	ExecuteTask(ctx context.Context, req *TaskRequest) (*TaskResponse, error)

	// Publish delivers one row batch into this node's exchange inbox.
	Publish(ctx context.Context, envelope *BatchEnvelope) error

	// Status returns the node's health snapshot.
	Status(ctx context.Context) (*NodeStatus, error)
}

// ExchangeClient talks to a remote node's exchange service.
type ExchangeClient interface {
	ExecuteTask(ctx context.Context, req *TaskRequest) (*TaskResponse, error)
	Publish(ctx context.Context, envelope *BatchEnvelope) error
	Status(ctx context.Context) (*NodeStatus, error)

	// Close releases the client connection.
	Close() error
}

// Transport abstracts how exchange services reach each other: in-memory
// for tests and development, HTTP for real clusters.
type Transport interface {
	// NewExchangeClient creates a client for the service at address.
	NewExchangeClient(address string) (ExchangeClient, error)

	// StartExchangeServer exposes a service at address.
	StartExchangeServer(address string, service ExchangeService) error

	// Stop stops the transport.
	Stop() error
}
