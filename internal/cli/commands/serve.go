package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/perry-go/perry/internal/cli/config"
	"github.com/perry-go/perry/internal/fixture"
)

var (
	serveData     string
	serveRESTAddr string
	serveRPCAddr  string
	serveNoREST   bool
	serveNoRPC    bool
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a JSON dataset over REST and JSON-RPC",
		Long: `Serve the collections of a JSON dataset file as fixture services that
speak the restful_http and rpc transport protocols. Point models at them to
develop against perry without the real services.

The dataset maps collection names to rows:

  {"people": [{"id": 1, "name": "Ada"}], "teams": [{"id": 1, "label": "Core"}]}`,
		Example: `  perry serve --data fixtures.json
  perry serve --data fixtures.json --rest-addr :8080 --no-rpc`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().StringVarP(&serveData, "data", "d", "", "Dataset file (default: serve.data from perry.yaml)")
	cmd.Flags().StringVar(&serveRESTAddr, "rest-addr", "", "REST listen address (default: serve.rest_addr)")
	cmd.Flags().StringVar(&serveRPCAddr, "rpc-addr", "", "JSON-RPC listen address (default: serve.rpc_addr)")
	cmd.Flags().BoolVar(&serveNoREST, "no-rest", false, "Do not start the REST service")
	cmd.Flags().BoolVar(&serveNoRPC, "no-rpc", false, "Do not start the JSON-RPC service")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	opts := cfg.Serve
	if serveData != "" {
		opts.Data = serveData
	}
	if serveRESTAddr != "" {
		opts.RESTAddr = serveRESTAddr
	}
	if serveRPCAddr != "" {
		opts.RPCAddr = serveRPCAddr
	}
	if serveNoREST {
		opts.RESTAddr = ""
	}
	if serveNoRPC {
		opts.RPCAddr = ""
	}

	data := fixture.NewDataset()
	if opts.Data != "" {
		if err := data.LoadFile(opts.Data); err != nil {
			return err
		}
	}

	if err := applyRules(cfg, data); err != nil {
		return err
	}

	ln, err := listen(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serveFixtures(ctx, cmd.OutOrStdout(), data, ln, opts, logger)
}

// applyRules makes each service collection enforce the validations of the
// models stored in it
func applyRules(cfg *config.Config, data *fixture.Dataset) error {
	for _, mc := range cfg.Models {
		if mc.Adapter.Service == "" {
			continue
		}
		set, err := config.Rules(mc)
		if err != nil {
			return err
		}
		if set != nil {
			data.Validate(mc.Adapter.Service, set.Row)
		}
	}
	return nil
}

type listeners struct {
	rest net.Listener
	rpc  net.Listener
}

// listen opens the configured addresses; an empty address is skipped
func listen(opts config.ServeConfig) (listeners, error) {
	var ln listeners
	var err error
	if opts.RESTAddr != "" {
		if ln.rest, err = net.Listen("tcp", opts.RESTAddr); err != nil {
			return ln, fmt.Errorf("failed to listen on %s: %w", opts.RESTAddr, err)
		}
	}
	if opts.RPCAddr != "" {
		if ln.rpc, err = net.Listen("tcp", opts.RPCAddr); err != nil {
			if ln.rest != nil {
				ln.rest.Close()
			}
			return ln, fmt.Errorf("failed to listen on %s: %w", opts.RPCAddr, err)
		}
	}
	if ln.rest == nil && ln.rpc == nil {
		return ln, errors.New("nothing to serve: both REST and JSON-RPC are disabled")
	}
	return ln, nil
}

// serveFixtures runs the fixture services on the open listeners until ctx
// is done
func serveFixtures(ctx context.Context, out io.Writer, data *fixture.Dataset, ln listeners, opts config.ServeConfig, logger *zap.Logger) error {
	infoColor := color.New(color.FgCyan)
	successColor := color.New(color.FgGreen, color.Bold)
	if noColorFlag {
		infoColor.DisableColor()
		successColor.DisableColor()
	}

	g, ctx := errgroup.WithContext(ctx)

	if ln.rest != nil {
		srv := &http.Server{
			Handler: fixture.NewRESTHandler(data, fixture.RESTOptions{
				Format:          opts.Format,
				PostBodyWrapper: opts.PostBodyWrapper,
				Logger:          logger.Named("rest"),
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			if err := srv.Serve(ln.rest); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		infoColor.Fprintf(out, "REST     http://%s/<collection>%s\n", ln.rest.Addr(), opts.Format)
	}

	if ln.rpc != nil {
		handler := fixture.RPCHandler(data, logger.Named("rpc"))
		g.Go(func() error {
			return fixture.ServeRPC(ctx, ln.rpc, handler)
		})
		infoColor.Fprintf(out, "JSON-RPC %s <collection>.<read|write|delete>\n", ln.rpc.Addr())
	}

	successColor.Fprintf(out, "Serving %d collections, press Ctrl+C to stop\n", len(data.Collections()))
	return g.Wait()
}
