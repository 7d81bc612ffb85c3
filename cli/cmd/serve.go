package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/BDNK1/lowflow/runtime"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured flows over HTTP",
	Long: `Serve exposes the configured flows:

  GET  /health               liveness and flow count
  GET  /flows                registered flows
  POST /flows/:flowID/run    run one flow
  POST /trigger              run the flow bound to an event and component
`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	l := newLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flows, err := loadFlows(cfg.Flows)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, l, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	handler, err := runtime.NewHttpHandler(l, cfg.Engine, store, cfg.Project, flows)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: handler.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info(fmt.Sprintf("Serving %d flow(s) of project %s on %s", len(flows), cfg.Project, srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	l.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
