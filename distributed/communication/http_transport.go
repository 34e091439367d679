package communication

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gridsql/core"
)

// HTTPTransport implements Transport over HTTP, one exchange endpoint per
// node. Used when nodes run as separate processes.
type HTTPTransport struct {
	mutex   sync.Mutex
	servers map[string]*http.Server
	client  *http.Client
}

// NewHTTPTransport creates an HTTP transport.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		servers: make(map[string]*http.Server),
		client:  &http.Client{},
	}
}

// NewExchangeClient creates a client for the exchange service at address.
func (ht *HTTPTransport) NewExchangeClient(address string) (ExchangeClient, error) {
	return &httpExchangeClient{baseURL: "http://" + address, client: ht.client}, nil
}

// StartExchangeServer serves an exchange service at address. It returns
// once the listener is running; serving continues in the background.
func (ht *HTTPTransport) StartExchangeServer(address string, service ExchangeService) error {
	ht.mutex.Lock()
	defer ht.mutex.Unlock()

	if _, exists := ht.servers[address]; exists {
		return fmt.Errorf("exchange service already running at address: %s", address)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Post("/exchange/task", handleJSON(func(ctx context.Context, req *TaskRequest) (*TaskResponse, error) {
		return service.ExecuteTask(ctx, req)
	}))
	router.Post("/exchange/publish", handleJSON(func(ctx context.Context, envelope *BatchEnvelope) (*struct{}, error) {
		return &struct{}{}, service.Publish(ctx, envelope)
	}))
	router.Get("/exchange/status", func(w http.ResponseWriter, r *http.Request) {
		status, err := service.Status(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, status)
	})

	server := &http.Server{Addr: address, Handler: router}
	ht.servers[address] = server

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			core.GetTracer().Error(core.TraceComponentExchange, "Exchange server stopped", core.TraceContext(
				"address", address,
				"error", err.Error(),
			))
		}
	}()
	return nil
}

// Stop shuts down every server started by this transport.
func (ht *HTTPTransport) Stop() error {
	ht.mutex.Lock()
	defer ht.mutex.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var firstErr error
	for address, server := range ht.servers {
		if err := server.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to stop server at %s: %w", address, err)
		}
	}
	ht.servers = make(map[string]*http.Server)
	return firstErr
}

// handleJSON adapts a typed request/response function to an HTTP handler.
func handleJSON[Req any, Resp any](fn func(context.Context, *Req) (*Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		resp, err := fn(r.Context(), &req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, resp)
	}
}

func writeJSON(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		core.GetTracer().Error(core.TraceComponentExchange, "Failed to write response", core.TraceContext(
			"error", err.Error(),
		))
	}
}

// httpExchangeClient talks JSON over HTTP to a remote exchange endpoint.
type httpExchangeClient struct {
	baseURL string
	client  *http.Client
}

func (c *httpExchangeClient) ExecuteTask(ctx context.Context, req *TaskRequest) (*TaskResponse, error) {
	var resp TaskResponse
	if err := c.post(ctx, "/exchange/task", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *httpExchangeClient) Publish(ctx context.Context, envelope *BatchEnvelope) error {
	return c.post(ctx, "/exchange/publish", envelope, &struct{}{})
}

func (c *httpExchangeClient) Status(ctx context.Context) (*NodeStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/exchange/status", nil)
	if err != nil {
		return nil, err
	}
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed: %s", httpResp.Status)
	}
	var status NodeStatus
	if err := json.NewDecoder(httpResp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *httpExchangeClient) Close() error {
	return nil
}

func (c *httpExchangeClient) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s failed: %s", path, httpResp.Status)
	}
	return json.NewDecoder(httpResp.Body).Decode(out)
}
