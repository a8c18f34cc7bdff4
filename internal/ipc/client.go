package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Req, Resp any](c *Client, method string, req Req) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(serviceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start requests the daemon to start processing.
func (c *Client) Start() (*StartResponse, error) {
	return call[StartRequest, StartResponse](c, "Start", StartRequest{})
}

// Stop requests the daemon to stop processing.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopRequest, StopResponse](c, "Stop", StopRequest{})
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusRequest, StatusResponse](c, "Status", StatusRequest{})
}

// Submit enqueues a generation request.
func (c *Client) Submit(req SubmitRequest) (*SubmitResponse, error) {
	return call[SubmitRequest, SubmitResponse](c, "Submit", req)
}

// JobList returns jobs optionally filtered by statuses.
func (c *Client) JobList(statuses []string) (*JobListResponse, error) {
	return call[JobListRequest, JobListResponse](c, "JobList", JobListRequest{Statuses: statuses})
}

// JobShow returns a single job.
func (c *Client) JobShow(id string) (*JobShowResponse, error) {
	return call[JobShowRequest, JobShowResponse](c, "JobShow", JobShowRequest{ID: id})
}

// JobCancel cancels a pending or processing job.
func (c *Client) JobCancel(id string) (*JobCancelResponse, error) {
	return call[JobCancelRequest, JobCancelResponse](c, "JobCancel", JobCancelRequest{ID: id})
}

// JobRetry retries failed jobs.
func (c *Client) JobRetry(ids []string) (*JobRetryResponse, error) {
	return call[JobRetryRequest, JobRetryResponse](c, "JobRetry", JobRetryRequest{IDs: ids})
}

// JobClear removes completed and failed jobs.
func (c *Client) JobClear() (*JobClearResponse, error) {
	return call[JobClearRequest, JobClearResponse](c, "JobClear", JobClearRequest{})
}

// Providers lists registered providers.
func (c *Client) Providers() (*ProvidersResponse, error) {
	return call[ProvidersRequest, ProvidersResponse](c, "Providers", ProvidersRequest{})
}

// ProvidersReload rediscovers external manifests.
func (c *Client) ProvidersReload() (*ProvidersReloadResponse, error) {
	return call[ProvidersReloadRequest, ProvidersReloadResponse](c, "ProvidersReload", ProvidersReloadRequest{})
}

// ActorsRegister registers actors with a provider.
func (c *Client) ActorsRegister(req ActorsRegisterRequest) (*ActorsRegisterResponse, error) {
	return call[ActorsRegisterRequest, ActorsRegisterResponse](c, "ActorsRegister", req)
}

// ActorsList lists actors for a provider.
func (c *Client) ActorsList(providerID string) (*ActorsListResponse, error) {
	return call[ActorsListRequest, ActorsListResponse](c, "ActorsList", ActorsListRequest{Provider: providerID})
}

// ActorsDelete deletes an actor.
func (c *Client) ActorsDelete(providerID, id string) (*ActorsDeleteResponse, error) {
	return call[ActorsDeleteRequest, ActorsDeleteResponse](c, "ActorsDelete", ActorsDeleteRequest{Provider: providerID, ID: id})
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	return call[TestNotificationRequest, TestNotificationResponse](c, "TestNotification", TestNotificationRequest{})
}
