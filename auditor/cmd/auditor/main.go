// Command auditor classifies restaurant food-waste events and routes the
// escalated ones to chefs.
//
//	auditor run   --branch "LA - Downtown" --year 2025 --month February
//	auditor serve --config config.yaml
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/auditor/internal/db"
	"github.com/wasteaudit/wasteaudit/auditor/internal/metrics"
	"github.com/wasteaudit/wasteaudit/auditor/internal/narrative"
	"github.com/wasteaudit/wasteaudit/auditor/internal/notify"
	"github.com/wasteaudit/wasteaudit/auditor/internal/store"
	"github.com/wasteaudit/wasteaudit/auditor/internal/workflow"
)

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:           "auditor",
	Short:         "Food-waste audit engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files loaded before the config (default .env)")
	rootCmd.AddCommand(runCmd, serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("auditor failed", "err", err)
		os.Exit(1)
	}
}

// loadConfig reads the dotenv files and the config, then installs the JSON
// slog handler at the configured level.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnv(envFiles...); err != nil {
		return nil, err
	}
	cfg := config.Default()
	if configPath != "" {
		c, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	}

	level := slog.LevelInfo
	if cfg.Log.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("config loaded",
		"config", configPath,
		"source", cfg.Source.Backend,
		"store", cfg.Store.Backend,
		"narrative", cfg.Narrative.Backend,
		"senders", len(cfg.Notify.Senders),
		"async_notify", cfg.Pipeline.AsyncNotify,
	)
	return cfg, nil
}

// openPool connects once when either the source or the store is postgres.
// The source DSN wins when both are set.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if cfg.Source.Backend != "postgres" && cfg.Store.Backend != "postgres" {
		return nil, nil
	}
	dsn := cfg.Source.DSN()
	if dsn == "" {
		dsn = cfg.Store.DSN()
	}
	return db.Connect(ctx, dsn)
}

// deps holds the collaborators shared by run and serve.
type deps struct {
	senders    notify.Multi
	sender     notify.Sender // what the router delivers through; nil disables delivery
	dispatcher *notify.Dispatcher
	stop       context.CancelFunc
	stopped    chan struct{}
	router     *workflow.Router
	metrics    *metrics.Registry
	compose    notify.ComposeOptions
}

// buildDeps wires narrative generation and notification. results may be nil;
// when set it receives asynchronous delivery outcomes.
func buildDeps(cfg *config.Config, results *store.Memory) (*deps, error) {
	senders, err := notify.New(cfg.Notify.Senders)
	if err != nil {
		return nil, err
	}

	d := &deps{
		senders: senders,
		metrics: metrics.New(),
		compose: notify.ComposeOptions{
			DefaultRecipient: cfg.Notify.DefaultRecipient,
			Signature:        cfg.Notify.Signature,
		},
	}

	if len(senders) > 0 {
		if cfg.Pipeline.AsyncNotify {
			d.dispatcher = notify.NewDispatcher(senders, cfg.Pipeline.QueueSize, cfg.Pipeline.NotifyTimeout,
				func(m notify.Message, err error) { d.delivered(results, m, err) })
			d.metrics.QueuePending = d.dispatcher.Pending
			d.sender = d.dispatcher
		} else {
			d.sender = notify.Observed{
				Sender: senders,
				Done:   func(m notify.Message, err error) { d.delivered(nil, m, err) },
			}
		}
	}

	gen := narrative.New(cfg.Narrative)
	slog.Info("narrative generator ready", "generator", gen.Name())

	d.router = workflow.NewRouter(gen, d.sender, workflow.Options{
		FeedbackTimeout: cfg.Pipeline.FeedbackTimeout,
		NotifyTimeout:   cfg.Pipeline.NotifyTimeout,
		Compose:         d.compose,
	})
	return d, nil
}

// delivered records one delivery outcome. Inline sends already land on the
// event, so results is only passed for the async path.
func (d *deps) delivered(results *store.Memory, m notify.Message, err error) {
	outcome := metrics.OutcomeSent
	switch {
	case errors.Is(err, notify.ErrDropped):
		outcome = metrics.OutcomeDropped
	case err != nil:
		outcome = metrics.OutcomeFailed
	}
	d.metrics.ObserveNotification(outcome)

	if err != nil {
		slog.Warn("notification not delivered", "event", m.EventID, "to", m.To, "err", err)
	}
	if results == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	if serr := results.SetNotifyError(m.EventID, msg); serr != nil {
		slog.Debug("delivery outcome for unknown result", "event", m.EventID, "err", serr)
	}
}

// start runs the async dispatcher, if any, until close. Its lifetime is
// independent of request contexts so late escalations still drain.
func (d *deps) start() {
	d.stopped = make(chan struct{})
	if d.dispatcher == nil {
		close(d.stopped)
		return
	}
	ctx, stop := context.WithCancel(context.Background())
	d.stop = stop
	go func() {
		defer close(d.stopped)
		d.dispatcher.Run(ctx)
	}()
}

// close stops the dispatcher, waits for it to flush its queue, then
// releases senders.
func (d *deps) close() {
	if d.stop != nil {
		d.stop()
	}
	if d.stopped != nil {
		<-d.stopped
	}
	d.senders.Close()
}
