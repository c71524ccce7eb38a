package buildCFG

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"

	"regflow/internal/gateway"
	"regflow/internal/mailer"
	"regflow/internal/service"
)

type ServerConfig struct {
	Port string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

type ReconcilerConfig struct {
	Interval time.Duration
}

type PassConfig struct {
	Secret string
	Issuer string
}

type CoordinatorConfig struct {
	ReturnURL string
	FailURL   string
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, defaulting to 8080")
	}
	return ServerConfig{Port: port}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("database.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, fmt.Errorf("database.master_dsn is required")
	}

	opts := &dbpg.Options{
		MaxOpenConns: cfg.GetInt("database.max_open_conns"),
		MaxIdleConns: cfg.GetInt("database.max_idle_conns"),
	}
	if opts.MaxOpenConns == 0 {
		opts.MaxOpenConns = 10
	}
	if opts.MaxIdleConns == 0 {
		opts.MaxIdleConns = 5
	}

	log.Info().Int("max_open_conns", opts.MaxOpenConns).Msg("DB config loaded")
	return masterDSN, nil, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Url == "" {
		return rc, fmt.Errorf("rabbit.url is required")
	}
	if rc.Exchange == "" {
		rc.Exchange = "notifications"
	}
	if rc.Queue == "" {
		rc.Queue = "notification_intents"
	}
	log.Info().Str("exchange", rc.Exchange).Str("queue", rc.Queue).Msg("Rabbit config loaded")
	return rc, nil
}

func BuildGatewayConfig(cfg *config.Config) gateway.Config {
	timeout := time.Duration(cfg.GetInt("gateway.timeout_seconds")) * time.Second
	return gateway.Config{
		CardBaseURL: cfg.GetString("gateway.card.base_url"),
		CardAPIKey:  cfg.GetString("gateway.card.api_key"),
		BankBaseURL: cfg.GetString("gateway.bank.base_url"),
		BankUser:    cfg.GetString("gateway.bank.user"),
		BankPass:    cfg.GetString("gateway.bank.pass"),
		Timeout:     timeout,
	}
}

func BuildReconcilerConfig(cfg *config.Config) ReconcilerConfig {
	interval := time.Duration(cfg.GetInt("reconciler.interval_seconds")) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return ReconcilerConfig{Interval: interval}
}

func BuildMailerConfig(cfg *config.Config) mailer.Config {
	return mailer.Config{
		Host: cfg.GetString("mailer.host"),
		Port: cfg.GetString("mailer.port"),
		From: cfg.GetString("mailer.from"),
		Pass: cfg.GetString("mailer.pass"),
	}
}

func BuildAdminConfig(cfg *config.Config, log *zerolog.Logger) service.AdminConfig {
	token := cfg.GetString("admin.token")
	if token == "" {
		log.Warn().Msg("admin.token not set, admin routes disabled")
	}
	return service.AdminConfig{Token: token}
}

func BuildPassConfig(cfg *config.Config) (PassConfig, error) {
	pc := PassConfig{
		Secret: cfg.GetString("pass.secret"),
		Issuer: cfg.GetString("pass.issuer"),
	}
	if pc.Secret == "" {
		return pc, fmt.Errorf("pass.secret is required")
	}
	if pc.Issuer == "" {
		pc.Issuer = "regflow"
	}
	return pc, nil
}

func BuildCoordinatorConfig(cfg *config.Config) CoordinatorConfig {
	return CoordinatorConfig{
		ReturnURL: cfg.GetString("payments.return_url"),
		FailURL:   cfg.GetString("payments.fail_url"),
	}
}
