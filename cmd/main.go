package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Global-Optima/zeep-print-agent/internal/kvstore"
	"github.com/Global-Optima/zeep-print-agent/internal/label"
	"github.com/Global-Optima/zeep-print-agent/internal/model"
	"github.com/Global-Optima/zeep-print-agent/internal/printqueue"
	"github.com/Global-Optima/zeep-print-agent/internal/reconciler"
	"github.com/Global-Optima/zeep-print-agent/internal/services"
	"github.com/Global-Optima/zeep-print-agent/internal/utils"
)

const appVersion = "1.0.0"

type rootOptions struct {
	configFile string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "zeep-print-agent",
		Short:         "Prints order labels for Zeep stores",
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", utils.DefaultConfigFile, "path to the config file")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newInitCommand(opts))
	cmd.AddCommand(newDoctorCommand(opts))
	cmd.AddCommand(newDiscoverCommand(opts))
	cmd.AddCommand(newPrintTestCommand(opts))
	cmd.AddCommand(newPOSCommand(opts))
	return cmd
}

func newLogger(app model.AppConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(app.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(app.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stdout, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, handlerOpts)
	}
	return slog.New(handler).With("app", app.Name, "version", appVersion)
}

func loadConfig(opts *rootOptions) (model.Config, *slog.Logger, error) {
	cfg, err := utils.LoadConfig(opts.configFile)
	if err != nil {
		return model.Config{}, nil, fmt.Errorf("config error: %w", err)
	}
	logger := newLogger(cfg.App)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// station bundles everything that prints: storage, the queue and the dispatcher.
type station struct {
	store        kvstore.Store
	queue        *printqueue.Queue
	receiptQueue *printqueue.Queue
	dispatcher   *services.Dispatcher
	closers      []func() error
}

func newStation(ctx context.Context, cfg model.Config, logger *slog.Logger) (*station, error) {
	store, err := kvstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	st := &station{store: store, closers: []func() error{store.Close}}

	facility, err := services.NewFacility(cfg.Printer, logger)
	if err != nil {
		st.close()
		return nil, err
	}
	st.queue = printqueue.New(facility, services.SpoolSaver{Dir: cfg.Printer.SpoolDir}, printqueue.Config{
		FormFactor:      cfg.App.FormFactor,
		DocumentTimeout: cfg.Printer.DocumentTimeout,
		Logger:          logger.With("printer", cfg.Printer.Name),
	})

	renderer, err := label.NewRenderer()
	if err != nil {
		st.close()
		return nil, err
	}

	var receipts services.OrderRenderer
	if cfg.Receipts.Enabled {
		rr, err := label.NewReceiptRenderer(label.ChromeRasterizer{ExecPath: cfg.Receipts.ChromePath}, cfg.Receipts.WidthPx)
		if err != nil {
			st.close()
			return nil, err
		}
		receipts = rr

		rp := cfg.Receipts.Printer
		receiptFacility, err := services.NewFacility(rp, logger)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("receipt printer: %w", err)
		}
		st.receiptQueue = printqueue.New(receiptFacility, services.SpoolSaver{Dir: rp.SpoolDir}, printqueue.Config{
			FormFactor:      cfg.App.FormFactor,
			DocumentTimeout: rp.DocumentTimeout,
			Logger:          logger.With("printer", rp.Name),
		})
	}

	reporters := services.MultiReporter{services.NewLogReporter(logger)}
	if len(cfg.Outcomes.KafkaBrokers) > 0 {
		kafka, err := services.NewKafkaReporter(cfg.Outcomes.KafkaBrokers, cfg.Outcomes.Topic)
		if err != nil {
			st.close()
			return nil, err
		}
		reporters = append(reporters, kafka)
		st.closers = append(st.closers, kafka.Close)
	}

	dcfg := services.DispatcherConfig{
		Labels:             renderer,
		Receipts:           receipts,
		Queue:              st.queue,
		Store:              store,
		Reporter:           reporters,
		Kind:               services.DocumentKind(cfg.Printer.Format),
		SaveInsteadOfPrint: cfg.Printer.SaveInsteadOfPrint || cfg.Printer.Mode == model.PrinterModeSave,
		SaveReceipts:       cfg.Receipts.Printer.Mode == model.PrinterModeSave,
		Logger:             logger,
	}
	if st.receiptQueue != nil {
		dcfg.ReceiptQueue = st.receiptQueue
	}
	st.dispatcher = services.NewDispatcher(dcfg)
	return st, nil
}

// shutdown lets queued jobs finish, waits for their outcomes and releases resources.
func (s *station) shutdown(timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.queue.Close(ctx); err != nil {
		slog.Warn("print queue did not drain", "error", err)
	}
	if s.receiptQueue != nil {
		if err := s.receiptQueue.Close(ctx); err != nil {
			slog.Warn("receipt queue did not drain", "error", err)
		}
	}
	s.dispatcher.Wait()
	s.close()
}

func (s *station) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("failed to close resource", "error", err)
		}
	}
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Mirror the order feed and print labels for new orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := newStation(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.shutdown(30 * time.Second)

			filter := make([]model.OrderStatus, 0, len(statuses))
			for _, s := range statuses {
				filter = append(filter, model.OrderStatus(strings.ToUpper(s)))
			}
			rec := reconciler.New(reconciler.Options{
				Filter:    filter,
				OnCreated: st.dispatcher.OnOrderCreated,
				Logger:    logger,
			})
			feed := services.NewFeed(cfg.Feed, rec, logger)
			agent := services.NewAgentServer(rec, st.queue, st.store, logger)

			agentErr := make(chan error, 1)
			go func() {
				err := agent.ListenAndServe(ctx, cfg.Agent.ListenAddr)
				if err != nil {
					logger.Error("local agent stopped", "error", err)
				}
				agentErr <- err
			}()

			logger.Info("--- System Running ---", "form_factor", cfg.App.FormFactor, "printer", cfg.Printer.Name, "mode", cfg.Printer.Mode)
			feedErr := feed.Run(ctx)
			stop()

			<-agentErr
			logger.Info("shutting down")
			if errors.Is(feedErr, context.Canceled) {
				return nil
			}
			return feedErr
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "order statuses served by /orders (default: all)")
	return cmd
}
