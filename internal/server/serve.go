package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/rileyhilliard/agentdeploy/internal/errors"
	"github.com/rileyhilliard/agentdeploy/internal/logger"
)

// shutdownGrace bounds how long in-flight requests get after ctx ends.
const shutdownGrace = 30 * time.Second

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, log logger.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Couldn't listen on "+addr,
			"Pick a free address with server.listen or --listen")
	}
	return Serve(ctx, ln, handler, log)
}

// Serve is ListenAndServe over an existing listener.
func Serve(ctx context.Context, ln net.Listener, handler http.Handler, log logger.Logger) error {
	if log == nil {
		log = logger.Default()
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening on %s", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
