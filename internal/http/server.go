package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/identsync/internal/observability/logger"
)

// Serve levanta el servidor y lo apaga limpio cuando el contexto se cancela.
// Shutdown espera hasta 10s a que terminen los requests en vuelo.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.L().Info("http server listening", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh // ListenAndServe retorna ErrServerClosed tras Shutdown
		return nil
	}
}
