package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/higorocha/dibau-app-leiturista-sub000/internal/api"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/config"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/models"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/observability"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/repository"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/server"
	"github.com/higorocha/dibau-app-leiturista-sub000/internal/services"
	syncengine "github.com/higorocha/dibau-app-leiturista-sub000/internal/sync"
)

var version = "dev"

var (
	flagConfig string
	flagUser   string
	flagDevice string
)

// staticIdentity stamps authored records with the agent and device from the
// command line.
type staticIdentity struct {
	user   string
	device string
}

func (i staticIdentity) CurrentUser() string { return i.user }
func (i staticIdentity) DeviceID() string    { return i.device }

// app bundles everything a command needs after wiring.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *repository.Store
	engine    *syncengine.Engine
	telemetry *observability.Telemetry
}

func (a *app) close(ctx context.Context) {
	if a.telemetry != nil {
		a.telemetry.Shutdown(ctx)
	}
	if a.store != nil {
		a.store.Close()
	}
	if a.log != nil {
		a.log.Sync()
	}
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	log, err := observability.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	telemetry, err := observability.Initialize(ctx, observability.NewConfig("leiturista", version), log)
	if err != nil {
		log.Warn("telemetry initialization failed", zap.Error(err))
	}

	metrics, err := observability.NewSyncMetrics()
	if err != nil {
		log.Warn("metrics initialization failed", zap.Error(err))
	}

	store, err := repository.Open(cfg.Database.Path)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	assets, err := services.NewAssetStore(
		cfg.Assets.BasePath,
		cfg.Assets.MaxDimension,
		cfg.Assets.JPEGQuality,
		cfg.Assets.MaxFileSizeMB,
	)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening asset store: %w", err)
	}

	token := cfg.API.Token
	client := api.NewHTTPClient(cfg.API.BaseURL, cfg.API.Timeout, func() string { return token })

	device := flagDevice
	if device == "" {
		device, _ = os.Hostname()
	}
	identity := staticIdentity{user: flagUser, device: device}

	engine := syncengine.NewEngine(store, client, assets, identity, log, metrics, syncengine.Options{
		MinPullInterval: cfg.Sync.MinPullInterval,
	})

	return &app{
		cfg:       cfg,
		log:       log,
		store:     store,
		engine:    engine,
		telemetry: telemetry,
	}, nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func parsePeriods(keys []string) ([]models.Period, error) {
	var periods []models.Period
	for _, key := range keys {
		p, err := models.ParsePeriod(key)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "leiturista",
		Short:   "Offline-first meter reading sync for irrigation district field agents",
		Version: version,
		Long: `leiturista keeps a field agent's meter readings, captured photos and lot
observations in a local store and synchronizes them with the district server
when connectivity allows. Local edits always survive; nothing dirty is ever
overwritten by a download.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&flagUser, "user", "", "agent identity stamped on authored records")
	root.PersistentFlags().StringVar(&flagDevice, "device", "", "device id for diagnostics (default: hostname)")

	root.AddCommand(newPullCmd())
	root.AddCommand(newUploadCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newAgentCmd())
	return root
}

func newPullCmd() *cobra.Command {
	var force bool
	var periodKeys []string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download periods from the district server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			periods, err := parsePeriods(periodKeys)
			if err != nil {
				return err
			}

			report, err := a.engine.Pull(ctx, syncengine.PullOptions{Force: force, Periods: periods})
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "bypass the pull throttle")
	cmd.Flags().StringSliceVar(&periodKeys, "period", nil, "restrict to periods like 2026-08 (repeatable)")
	return cmd
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload",
		Short: "Upload dirty readings, images, observations and logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			report, err := a.engine.UploadAll(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(report); err != nil {
				return err
			}
			if report.TotalFailed() > 0 {
				return fmt.Errorf("%d of %d records failed to upload", report.TotalFailed(), report.TotalAttempted())
			}
			return nil
		},
	}
}

func newSyncCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Upload everything dirty, then pull",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			upload, err := a.engine.UploadAll(ctx)
			if err != nil {
				return err
			}
			if err := printJSON(upload); err != nil {
				return err
			}
			if upload.TotalFailed() > 0 {
				return fmt.Errorf("%d records failed to upload; pull skipped", upload.TotalFailed())
			}

			pull, err := a.engine.Pull(ctx, syncengine.PullOptions{Force: force})
			if err != nil {
				return err
			}
			return printJSON(pull)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "bypass the pull throttle")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state and pending counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			report, err := a.engine.Status(ctx)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}
}

func newAgentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agent",
		Short: "Run in the background: periodic sync plus the local status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := buildApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			hub := server.NewHub(a.log)
			go hub.Run()

			scheduler := syncengine.NewScheduler(a.engine, a.cfg.Scheduler.Spec, a.cfg.Scheduler.Timeout, a.log, hub.Broadcast)
			if a.cfg.Scheduler.Enabled {
				if err := scheduler.Start(); err != nil {
					return err
				}
				defer scheduler.Stop()
			}

			srv := server.New(a.cfg.Server.Address, a.engine, hub, a.log)
			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case sig := <-quit:
				a.log.Info("shutting down", zap.String("signal", sig.String()))
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
