package actor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kiln/internal/config"
	"kiln/internal/gateway"
	"kiln/internal/logging"
	"kiln/internal/metrics"
	"kiln/internal/notifications"
	"kiln/internal/provider"
	"kiln/internal/registry"
	"kiln/internal/services"
)

// Pipeline registers, lists, and deletes actors.
type Pipeline struct {
	cfg      *config.Config
	registry *registry.Registry
	gateway  gateway.Doer
	encoder  *Encoder
	store    BlobStore
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithGateway overrides the provider gateway.
func WithGateway(d gateway.Doer) Option {
	return func(p *Pipeline) { p.gateway = d }
}

// WithBlobStore overrides the configured blob store.
func WithBlobStore(store BlobStore) Option {
	return func(p *Pipeline) { p.store = store }
}

// WithEncoder overrides the ffmpeg encoder.
func WithEncoder(encoder *Encoder) Option {
	return func(p *Pipeline) { p.encoder = encoder }
}

// WithNotifier attaches a notification service.
func WithNotifier(n notifications.Service) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// NewPipeline builds a pipeline from cfg. The blob store follows
// actor.upload_backend unless WithBlobStore is given.
func NewPipeline(cfg *config.Config, reg *registry.Registry, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg, registry: reg}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "actor")
	if p.gateway == nil {
		p.gateway = gateway.New(gateway.Options{Logger: p.logger})
	}
	if p.encoder == nil {
		p.encoder = NewEncoder(cfg.Actor.FFmpegBinary, filepath.Join(cfg.Paths.StateDir, "encoder.lock"))
	}
	if p.store == nil {
		store, err := NewBlobStore(cfg, p.logger)
		if err != nil {
			return nil, err
		}
		p.store = store
	}
	return p, nil
}

// Register processes items concurrently and reports one Result per item in
// input order. A provider without actor support is rejected before any item
// is touched.
func (p *Pipeline) Register(ctx context.Context, providerID string, items []Item) ([]Result, error) {
	adapter, base := p.resolve(providerID)
	actors, err := provider.ActorsFor(adapter)
	if err != nil {
		return nil, err
	}

	clip := float64(p.cfg.Actor.ClipSeconds)
	results := make([]Result, len(items))
	pending := make([]int, 0, len(items))
	for i, item := range items {
		results[i].Item = item
		if err := Validate(item, clip); err != nil {
			results[i].Err = err
			continue
		}
		pending = append(pending, i)
	}

	var g errgroup.Group
	g.SetLimit(max(p.cfg.Actor.MaxParallel, 1))
	for _, i := range pending {
		g.Go(func() error {
			results[i] = p.registerOne(ctx, actors, base, items[i], clip)
			return nil
		})
	}
	_ = g.Wait()

	for _, result := range results {
		p.metrics.ActorRegistered(adapter.Descriptor().ID, result.OK())
	}
	return results, nil
}

func (p *Pipeline) registerOne(ctx context.Context, actors provider.ActorAdapter, base provider.GenerationRequest, item Item, clip float64) Result {
	result := Result{Item: item}
	logger := p.logger.With(logging.String("actor", item.Name))

	if p.store == nil {
		result.Err = services.Wrap(services.ErrConfiguration, "actor", "upload",
			"actor.upload_backend is none; configure minio or http to register actors", nil)
		return result
	}

	clipPath := filepath.Join(p.cfg.Paths.WorkDir, "actors", uuid.NewString()+".mp4")
	defer os.Remove(clipPath)
	if err := p.encoder.Encode(ctx, item.ImagePath, clipPath, clip); err != nil {
		result.Err = services.Wrap(services.ErrProvider, "actor", "encode", "could not convert image to video", err)
		return result
	}

	videoURL, err := p.store.Put(ctx, clipPath)
	if err != nil {
		result.Err = services.Wrap(services.ErrProvider, "actor", "upload", "could not upload actor clip", err)
		return result
	}
	result.VideoURL = videoURL

	spec, err := actors.BuildCreateActorRequest(provider.ActorRequest{
		Credential: base.Credential,
		BaseURL:    base.BaseURL,
		Name:       strings.TrimSpace(item.Name),
		VideoURL:   videoURL,
		Start:      item.Start,
		End:        item.End,
	})
	if err != nil {
		result.Err = err
		return result
	}
	raw, err := gateway.Dispatch(ctx, p.gateway, actors, spec, base.Credential)
	if err != nil {
		result.Err = services.Wrap(services.ErrProvider, "actor", "register", services.FailureMessage(err), err)
		return result
	}
	created, err := actors.ParseCreateActorResponse(raw)
	if err != nil {
		result.Err = err
		return result
	}
	result.Actor = created

	logger.Info("actor registered", logging.String("actor_id", created.ID), logging.String("username", created.Username))
	p.publish(ctx, created)
	return result
}

// List returns the actors registered with providerID.
func (p *Pipeline) List(ctx context.Context, providerID string) ([]provider.Actor, error) {
	adapter, base := p.resolve(providerID)
	actors, err := provider.ActorsFor(adapter)
	if err != nil {
		return nil, err
	}
	spec, err := actors.BuildListActorsRequest(base)
	if err != nil {
		return nil, err
	}
	raw, err := gateway.Dispatch(ctx, p.gateway, actors, spec, base.Credential)
	if err != nil {
		return nil, services.Wrap(services.ErrProvider, "actor", "list", services.FailureMessage(err), err)
	}
	return actors.ParseListActorsResponse(raw), nil
}

// Delete removes actorID from providerID.
func (p *Pipeline) Delete(ctx context.Context, providerID, actorID string) error {
	adapter, base := p.resolve(providerID)
	actors, err := provider.ActorsFor(adapter)
	if err != nil {
		return err
	}
	spec, err := actors.BuildDeleteActorRequest(actorID, base)
	if err != nil {
		return err
	}
	if _, err := gateway.Dispatch(ctx, p.gateway, actors, spec, base.Credential); err != nil {
		var statusErr *gateway.StatusError
		if errors.As(err, &statusErr) && statusErr.Status == 404 {
			return services.Wrap(services.ErrNotFound, "actor", "delete", fmt.Sprintf("actor %s not found", actorID), err)
		}
		return services.Wrap(services.ErrProvider, "actor", "delete", services.FailureMessage(err), err)
	}
	p.logger.Info("actor deleted", logging.Provider(adapter.Descriptor().ID), logging.String("actor_id", actorID))
	return nil
}

// resolve returns the adapter for providerID and the credential and base
// URL to use with it.
func (p *Pipeline) resolve(providerID string) (provider.Adapter, provider.GenerationRequest) {
	if strings.TrimSpace(providerID) == "" {
		providerID = p.cfg.Generation.ProviderID
	}
	adapter := p.registry.Get(providerID)
	req := provider.GenerationRequest{Credential: p.cfg.Generation.APIKey}
	if adapter.Descriptor().ID == p.cfg.Generation.ProviderID {
		req.BaseURL = p.cfg.Generation.BaseURL
	}
	req.BaseURL = provider.EffectiveBaseURL(req, adapter.Descriptor())
	return adapter, req
}

func (p *Pipeline) publish(ctx context.Context, created provider.Actor) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Publish(context.WithoutCancel(ctx), notifications.EventActorCreated, notifications.Payload{
		"name":     created.Name,
		"username": created.Username,
	}); err != nil {
		p.logger.Debug("actor notification failed", logging.Error(err))
	}
}
