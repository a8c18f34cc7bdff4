package gateway

import (
	"context"

	"kiln/internal/provider"
	"kiln/internal/services"
)

// Doer executes request specs. *Client is the production implementation.
type Doer interface {
	Execute(ctx context.Context, spec provider.RequestSpec, credential string) (Response, error)
}

var _ Doer = (*Client)(nil)

// Dispatch runs spec through the adapter's own executor when it has one and
// through d otherwise. It returns the decoded response payload.
func Dispatch(ctx context.Context, d Doer, adapter provider.Adapter, spec provider.RequestSpec, credential string) (any, error) {
	if exec, ok := adapter.(provider.Executor); ok {
		return exec.Execute(ctx, spec)
	}
	if d == nil {
		return nil, services.Wrap(services.ErrConfiguration, "gateway", "dispatch", "no gateway configured", nil)
	}
	resp, err := d.Execute(ctx, spec, credential)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
