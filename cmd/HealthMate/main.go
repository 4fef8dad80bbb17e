package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/HealthMate/internal/api"
	"github.com/BTreeMap/HealthMate/internal/flow"
	"github.com/BTreeMap/HealthMate/internal/lockfile"
	"github.com/BTreeMap/HealthMate/internal/messaging"
	"github.com/BTreeMap/HealthMate/internal/predictor"
	"github.com/BTreeMap/HealthMate/internal/scheduler"
	"github.com/BTreeMap/HealthMate/internal/store"
	"github.com/BTreeMap/HealthMate/internal/twiliowhatsapp"
	"github.com/BTreeMap/HealthMate/internal/util"
	"github.com/BTreeMap/HealthMate/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for HealthMate state data
	DefaultStateDir = "/var/lib/healthmate"
	// DefaultDBFileName is the default SQLite record database filename
	DefaultDBFileName = "healthmate.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultSessionIdleTTL is how long an unfinished interview may sit idle
	DefaultSessionIdleTTL = 24 * time.Hour

	MessengerWhatsApp = "whatsapp"
	MessengerTwilio   = "twilio"
)

func main() {
	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	initializeLogger(flags.logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping HealthMate", "messenger", flags.messenger, "state_dir", flags.stateDir, "api_addr", flags.apiAddr)
	if err := run(ctx, flags); err != nil {
		slog.Error("HealthMate failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("HealthMate exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir          string
	DatabaseURL       string
	Messenger         string
	WhatsAppDSN       string
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioFromNumber  string
	TwilioValidateSig bool
	TwilioWebhookURL  string
	PredictorURL      string
	PredictorTimeout  time.Duration
	DashboardURL      string
	ReminderInterval  time.Duration
	SessionIdleTTL    time.Duration
	SweepSchedule     string
	APIAddr           string
	LogLevel          string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput          string
	numeric           bool
	stateDir          string
	dbDSN             string
	messenger         string
	waDSN             string
	twilioSID         string
	twilioToken       string
	twilioFrom        string
	twilioValidateSig bool
	twilioWebhookURL  string
	predictorURL      string
	predictorTimeout  time.Duration
	dashboardURL      string
	reminderInterval  time.Duration
	sessionIdleTTL    time.Duration
	sweepSchedule     string
	apiAddr           string
	logLevel          string
}

// initializeLogger sets up structured logging on stdout at the given level
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:          util.GetEnvOrDefault("HEALTHMATE_STATE_DIR", DefaultStateDir),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		Messenger:         strings.ToLower(util.GetEnvOrDefault("MESSENGER", MessengerWhatsApp)),
		WhatsAppDSN:       os.Getenv("WHATSAPP_DB_DSN"),
		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:  os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioValidateSig: util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", true),
		TwilioWebhookURL:  os.Getenv("TWILIO_WEBHOOK_URL"),
		PredictorURL:      os.Getenv("PREDICTOR_URL"),
		PredictorTimeout:  util.ParseDurationEnv("PREDICTOR_TIMEOUT", predictor.DefaultTimeout),
		DashboardURL:      util.GetEnvOrDefault("DASHBOARD_URL", flow.DefaultDashboardURL),
		ReminderInterval:  util.ParseDurationEnv("REMINDER_INTERVAL", flow.DefaultReminderInterval),
		SessionIdleTTL:    util.ParseDurationEnv("SESSION_IDLE_TTL", DefaultSessionIdleTTL),
		SweepSchedule:     util.GetEnvOrDefault("SESSION_SWEEP_CRON", scheduler.DefaultSweepSchedule),
		APIAddr:           util.GetEnvOrDefault("API_ADDR", api.DefaultServerAddr),
		LogLevel:          util.GetEnvOrDefault("LOG_LEVEL", "info"),
	}

	slog.Debug("environment variables loaded",
		"HEALTHMATE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"MESSENGER", config.Messenger,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"PREDICTOR_URL", config.PredictorURL,
		"REMINDER_INTERVAL", config.ReminderInterval,
		"SESSION_IDLE_TTL", config.SessionIdleTTL,
		"API_ADDR", config.APIAddr)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	var f Flags
	fs.StringVar(&f.qrOutput, "qr-output", "", "path to write the WhatsApp login QR code")
	fs.BoolVar(&f.numeric, "numeric-code", false, "print the raw WhatsApp login code instead of a QR code")
	fs.StringVar(&f.stateDir, "state-dir", config.StateDir, "state directory for HealthMate data (overrides $HEALTHMATE_STATE_DIR)")
	fs.StringVar(&f.dbDSN, "db-dsn", config.DatabaseURL, "record database DSN, Postgres or SQLite path (overrides $DATABASE_URL)")
	fs.StringVar(&f.messenger, "messenger", config.Messenger, "chat transport: whatsapp or twilio (overrides $MESSENGER)")
	fs.StringVar(&f.waDSN, "whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow device database DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&f.twilioSID, "twilio-account-sid", config.TwilioAccountSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)")
	fs.StringVar(&f.twilioToken, "twilio-auth-token", config.TwilioAuthToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)")
	fs.StringVar(&f.twilioFrom, "twilio-from", config.TwilioFromNumber, "Twilio WhatsApp sender number (overrides $TWILIO_FROM_NUMBER)")
	fs.BoolVar(&f.twilioValidateSig, "twilio-validate-signature", config.TwilioValidateSig, "verify X-Twilio-Signature on webhooks (overrides $TWILIO_VALIDATE_SIGNATURE)")
	fs.StringVar(&f.twilioWebhookURL, "twilio-webhook-url", config.TwilioWebhookURL, "public webhook URL Twilio signs (overrides $TWILIO_WEBHOOK_URL)")
	fs.StringVar(&f.predictorURL, "predictor-url", config.PredictorURL, "risk model endpoint (overrides $PREDICTOR_URL)")
	fs.DurationVar(&f.predictorTimeout, "predictor-timeout", config.PredictorTimeout, "risk model request timeout (overrides $PREDICTOR_TIMEOUT)")
	fs.StringVar(&f.dashboardURL, "dashboard-url", config.DashboardURL, "dashboard base URL sent with results (overrides $DASHBOARD_URL)")
	fs.DurationVar(&f.reminderInterval, "reminder-interval", config.ReminderInterval, "wellness reminder interval (overrides $REMINDER_INTERVAL)")
	fs.DurationVar(&f.sessionIdleTTL, "session-idle-ttl", config.SessionIdleTTL, "drop unfinished interviews idle this long (overrides $SESSION_IDLE_TTL)")
	fs.StringVar(&f.sweepSchedule, "session-sweep-cron", config.SweepSchedule, "cron schedule of the idle session sweep (overrides $SESSION_SWEEP_CRON)")
	fs.StringVar(&f.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.logLevel, "log-level", config.LogLevel, "log level: debug, info, warn, error (overrides $LOG_LEVEL)")

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	f.messenger = strings.ToLower(strings.TrimSpace(f.messenger))

	// File databases follow the state directory unless set explicitly.
	if f.dbDSN == "" {
		f.dbDSN = filepath.Join(f.stateDir, DefaultDBFileName)
	}
	if f.waDSN == "" {
		f.waDSN = "file:" + filepath.Join(f.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	return f, f.validate()
}

func (f Flags) validate() error {
	var errs []error
	switch f.messenger {
	case MessengerWhatsApp:
	case MessengerTwilio:
		if f.twilioSID == "" || f.twilioToken == "" || f.twilioFrom == "" {
			errs = append(errs, errors.New("twilio messenger requires account SID, auth token and sender number"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown messenger %q (want %s or %s)", f.messenger, MessengerWhatsApp, MessengerTwilio))
	}
	if f.predictorURL == "" {
		errs = append(errs, errors.New("predictor URL is required (-predictor-url or $PREDICTOR_URL)"))
	}
	if f.reminderInterval <= 0 {
		errs = append(errs, fmt.Errorf("reminder interval must be positive, got %s", f.reminderInterval))
	}
	return errors.Join(errs...)
}

// buildMessenger connects the configured chat transport. The returned
// options mount its inbound webhook on the API server when it has one.
func buildMessenger(ctx context.Context, f Flags) (messaging.Service, []api.Option, func(), error) {
	switch f.messenger {
	case MessengerTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(f.twilioSID),
			twiliowhatsapp.WithAuthToken(f.twilioToken),
			twiliowhatsapp.WithFromWhats(f.twilioFrom),
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		apiOpts := []api.Option{api.WithTwilioWebhook(svc.HandleWebhook)}
		if f.twilioValidateSig {
			apiOpts = append(apiOpts,
				api.WithSignatureValidator(twiliowhatsapp.NewSignatureValidator(f.twilioToken)),
				api.WithPublicWebhookURL(f.twilioWebhookURL))
		} else {
			slog.Warn("Twilio webhook signature validation disabled")
		}
		return svc, apiOpts, func() {}, nil
	default:
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(f.waDSN), whatsapp.WithLogLevel(strings.ToUpper(f.logLevel))}
		if f.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(f.qrOutput))
		}
		if f.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create WhatsApp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), nil, client.Disconnect, nil
	}
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, f Flags) error {
	lock, err := lockfile.AcquireLock(f.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	records, err := store.Open(f.dbDSN)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer records.Close()

	model, err := predictor.NewClient(predictor.WithBaseURL(f.predictorURL), predictor.WithTimeout(f.predictorTimeout))
	if err != nil {
		return fmt.Errorf("failed to create predictor client: %w", err)
	}

	msgService, apiOpts, disconnect, err := buildMessenger(ctx, f)
	if err != nil {
		return err
	}
	defer disconnect()

	sessions := flow.NewSessionStore()
	defer sessions.Close()
	reminders := flow.NewReminderScheduler(sessions, msgService)
	defer reminders.Stop()

	finalizer := flow.NewFinalizer(sessions, model, records, reminders, msgService,
		flow.WithDashboardURL(f.dashboardURL),
		flow.WithReminderInterval(f.reminderInterval),
	)
	engine := flow.NewEngine(sessions, msgService, finalizer, reminders)

	respHandler := messaging.NewResponseHandler(msgService, func(ctx context.Context, from, text string, _ int64) error {
		return engine.HandleMessage(ctx, from, text)
	}, messaging.WithDeduper(records))

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.AddSweep(f.sweepSchedule, sessions, f.sessionIdleTTL); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	if err := sched.AddPurge(scheduler.DefaultPurgeSchedule, records, scheduler.DefaultInboundRetention); err != nil {
		return fmt.Errorf("failed to schedule inbound purge: %w", err)
	}

	if err := msgService.Start(ctx); err != nil {
		return fmt.Errorf("failed to start messaging service: %w", err)
	}
	respHandler.Start(ctx)

	server := api.NewServer(records, append(apiOpts, api.WithAddr(f.apiAddr))...)
	serverErr := server.Run(ctx)

	// Stop intake first, then let queued messages finish before tearing down.
	if err := msgService.Stop(); err != nil {
		slog.Warn("failed to stop messaging service", "error", err)
	}
	respHandler.Wait()
	return serverErr
}
