package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/RobotChat/internal/api"
	"github.com/BTreeMap/RobotChat/internal/config"
	"github.com/BTreeMap/RobotChat/internal/flow"
	"github.com/BTreeMap/RobotChat/internal/genai"
	"github.com/BTreeMap/RobotChat/internal/lockfile"
	"github.com/BTreeMap/RobotChat/internal/store"
	"github.com/BTreeMap/RobotChat/internal/submission"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the chat relay, the contact-form wizard and the contact submission
endpoints until interrupted.`,
	RunE: runServe,
}

// registerServeFlags binds the serve flags, with environment values as defaults.
func registerServeFlags(cmd *cobra.Command, c *Config) {
	cmd.Flags().StringVar(&c.APIAddr, "addr", c.APIAddr, "API server address (overrides $API_ADDR)")
	cmd.Flags().StringSliceVar(&c.CORSOrigins, "cors-origin", c.CORSOrigins, "allowed CORS origins (overrides $CORS_ORIGINS)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	contact, err := config.Load(cfg.ContactConfig)
	if err != nil {
		return err
	}
	fields, err := contact.FieldSpecs()
	if err != nil {
		return fmt.Errorf("invalid contact fields: %w", err)
	}
	notifyFields := contact.NotifyFields()

	st, err := store.Open(ctx, buildStoreOptions(cfg, contact)...)
	if err != nil {
		return fmt.Errorf("failed to open submission store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("failed to close submission store", "error", err)
		}
	}()

	sinkOpts := []submission.SinkOption{submission.WithStore(st)}
	mailer, err := buildMailer(cfg, contact, notifyFields)
	if err != nil {
		return fmt.Errorf("failed to configure mailer: %w", err)
	}
	if mailer != nil {
		sinkOpts = append(sinkOpts, submission.WithMailer(mailer))
	}
	if sms := buildSMSNotifier(notifyFields); sms != nil {
		sinkOpts = append(sinkOpts, submission.WithSMS(sms))
	}
	sink := submission.NewSink(sinkOpts...)

	var completer genai.Completer
	wizardOpts := []flow.WizardOption{
		flow.WithMessages(contact.Messages()),
		flow.WithSystemPrompt(contact.Bot.SystemPrompt),
		flow.WithCallOptions(contact.CallOptions()),
	}
	client, err := genai.NewClient(buildGenAIOptions(cfg)...)
	if err != nil {
		slog.Warn("chat model not configured: chat relay disabled, contact form uses static texts", "error", err)
	} else {
		completer = client
		wizardOpts = append(wizardOpts, flow.WithSender(genai.NewSender(client)))
	}

	sessions := flow.NewMemorySessionStore()
	wizard, err := flow.NewWizard(fields, sessions, sink, wizardOpts...)
	if err != nil {
		return fmt.Errorf("failed to create contact wizard: %w", err)
	}
	srv, err := api.NewServer(completer, wizard, sink, buildAPIOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	reaper := flow.NewReaper(sessions, flow.DefaultSweepInterval, flow.DefaultSessionIdle)

	slog.Info("Bootstrapping RobotChat", "addr", cfg.APIAddr, "state_dir", cfg.StateDir,
		"fields", len(fields), "chat_enabled", completer != nil, "email_enabled", mailer != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		reaper.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("RobotChat exited successfully")
	return nil
}
