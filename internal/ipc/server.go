package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"kiln/internal/api"
	"kiln/internal/daemon"
	"kiln/internal/logging"
	"kiln/internal/services"
)

// serviceName prefixes every RPC method ("Kiln.Status").
const serviceName = "Kiln"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// rpcError flattens err to its user-facing message; net/rpc only carries strings.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(services.FailureMessage(err))
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.logger.Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC",
		logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC",
		logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = daemon.ToAPIStatus(s.daemon.Status())
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	jobs, err := s.daemon.Submit(req)
	if err != nil {
		return rpcError(err)
	}
	resp.Jobs = api.FromJobs(jobs)
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	jobs, err := s.daemon.ListJobs(req.Statuses)
	if err != nil {
		return rpcError(err)
	}
	resp.Jobs = api.FromJobs(jobs)
	return nil
}

func (s *service) JobShow(req JobShowRequest, resp *JobShowResponse) error {
	job, err := s.daemon.Job(req.ID)
	if err != nil {
		return rpcError(err)
	}
	resp.Job = api.FromJob(job)
	return nil
}

func (s *service) JobCancel(req JobCancelRequest, resp *JobCancelResponse) error {
	job, err := s.daemon.CancelJob(req.ID)
	if err != nil {
		return rpcError(err)
	}
	resp.Job = api.FromJob(job)
	return nil
}

func (s *service) JobRetry(req JobRetryRequest, resp *JobRetryResponse) error {
	jobs, err := s.daemon.RetryJobs(req.IDs)
	if err != nil {
		return rpcError(err)
	}
	resp.Jobs = api.FromJobs(jobs)
	return nil
}

func (s *service) JobClear(_ JobClearRequest, resp *JobClearResponse) error {
	resp.Removed = s.daemon.ClearFinished()
	return nil
}

func (s *service) Providers(_ ProvidersRequest, resp *ProvidersResponse) error {
	resp.Providers = api.FromRegistry(s.daemon.Registry(), s.daemon.DefaultProvider())
	return nil
}

func (s *service) ProvidersReload(_ ProvidersReloadRequest, resp *ProvidersReloadResponse) error {
	report, err := s.daemon.ReloadProviders(s.ctx)
	if err != nil {
		return rpcError(err)
	}
	*resp = api.FromReloadReport(report)
	return nil
}

func (s *service) ActorsRegister(req ActorsRegisterRequest, resp *ActorsRegisterResponse) error {
	results, err := s.daemon.RegisterActors(s.ctx, req.Provider, req.Items)
	if err != nil {
		return rpcError(err)
	}
	resp.Results = api.FromActorResults(results)
	return nil
}

func (s *service) ActorsList(req ActorsListRequest, resp *ActorsListResponse) error {
	actors, err := s.daemon.ListActors(s.ctx, req.Provider)
	if err != nil {
		return rpcError(err)
	}
	resp.Actors = api.FromActors(actors)
	return nil
}

func (s *service) ActorsDelete(req ActorsDeleteRequest, resp *ActorsDeleteResponse) error {
	if err := s.daemon.DeleteActor(s.ctx, req.Provider, req.ID); err != nil {
		return rpcError(err)
	}
	resp.Deleted = true
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	sent, message, err := s.daemon.TestNotification(s.ctx)
	if err != nil {
		return rpcError(err)
	}
	resp.Sent = sent
	resp.Message = message
	return nil
}
