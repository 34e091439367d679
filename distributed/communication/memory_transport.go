package communication

import (
	"context"
	"fmt"
	"sync"
)

// MemoryTransport implements Transport for in-process clusters. It is the
// default for tests and development.
type MemoryTransport struct {
	mutex    sync.RWMutex
	services map[string]ExchangeService
}

// NewMemoryTransport creates a new in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{services: make(map[string]ExchangeService)}
}

// NewExchangeClient creates a client for the service registered at address.
func (mt *MemoryTransport) NewExchangeClient(address string) (ExchangeClient, error) {
	mt.mutex.RLock()
	service, exists := mt.services[address]
	mt.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no exchange service at address: %s", address)
	}
	return &memoryExchangeClient{service: service}, nil
}

// StartExchangeServer registers a service at address.
func (mt *MemoryTransport) StartExchangeServer(address string, service ExchangeService) error {
	mt.mutex.Lock()
	defer mt.mutex.Unlock()

	if _, exists := mt.services[address]; exists {
		return fmt.Errorf("exchange service already running at address: %s", address)
	}
	mt.services[address] = service
	return nil
}

// Stop clears all registrations. Services are shut down by their owners.
func (mt *MemoryTransport) Stop() error {
	mt.mutex.Lock()
	defer mt.mutex.Unlock()
	mt.services = make(map[string]ExchangeService)
	return nil
}

// memoryExchangeClient dispatches directly to the registered service.
type memoryExchangeClient struct {
	service ExchangeService
}

func (c *memoryExchangeClient) ExecuteTask(ctx context.Context, req *TaskRequest) (*TaskResponse, error) {
	return c.service.ExecuteTask(ctx, req)
}

func (c *memoryExchangeClient) Publish(ctx context.Context, envelope *BatchEnvelope) error {
	return c.service.Publish(ctx, envelope)
}

func (c *memoryExchangeClient) Status(ctx context.Context) (*NodeStatus, error) {
	return c.service.Status(ctx)
}

func (c *memoryExchangeClient) Close() error {
	// Nothing to close for in-memory transport.
	return nil
}
