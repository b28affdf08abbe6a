package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/courier/internal/mockbackend"
	"mercator-hq/courier/pkg/cli"
)

var mockBackendFlags struct {
	listenAddress string
	chunkDelay    time.Duration
}

var mockBackendCmd = &cobra.Command{
	Use:   "mock-backend",
	Short: "Run a local OpenAI-compatible backend that generates lorem ipsum",
	Long: `Run a chat-completions server that answers every request with generated
text, streamed or not, and reports token usage. Point backend.base_url at it
to try the proxy without a real provider.

Examples:
  courier mock-backend --listen 127.0.0.1:9090
  OPENAI_BASE_URL=http://127.0.0.1:9090 OPENAI_API_KEY=sk-mock courier run`,
	RunE: runMockBackend,
}

func init() {
	rootCmd.AddCommand(mockBackendCmd)

	mockBackendCmd.Flags().StringVarP(&mockBackendFlags.listenAddress, "listen", "l", "127.0.0.1:9090", "listen address")
	mockBackendCmd.Flags().DurationVar(&mockBackendFlags.chunkDelay, "chunk-delay", 20*time.Millisecond, "delay between streamed chunks")
}

func runMockBackend(cmd *cobra.Command, args []string) error {
	ln, err := net.Listen("tcp", mockBackendFlags.listenAddress)
	if err != nil {
		return cli.NewCommandError("mock-backend", err)
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Mock backend listening on http://%s\n", ln.Addr())
	if err := serveMockBackend(ctx, ln, mockBackendFlags.chunkDelay); err != nil {
		return cli.NewCommandError("mock-backend", err)
	}
	return nil
}

// serveMockBackend serves a generating backend on ln until ctx is done.
func serveMockBackend(ctx context.Context, ln net.Listener, chunkDelay time.Duration) error {
	backend := mockbackend.New()
	backend.SetChunkDelay(chunkDelay)

	srv := &http.Server{
		Handler:           backend,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
	}

	slog.Info("stopping mock backend", "requests", backend.RequestCount())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
