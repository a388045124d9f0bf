package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/pcasign/cmd/cli/internal/commands"
	"github.com/wolfeidau/pcasign/internal/logger"
	"github.com/wolfeidau/pcasign/internal/telemetry"
)

var (
	version = "dev"
	cli     struct {
		Provision commands.ProvisionCmd `cmd:"" default:"withargs" help:"Provision a root CA and KMS key, then issue a code signing certificate"`
		List      commands.ListCmd      `cmd:"" help:"List certificates recorded in the issuance ledger"`
		Inspect   commands.InspectCmd   `cmd:"" help:"Inspect a code signing certificate"`
		Token     commands.TokenCmd     `cmd:"" help:"Sign an OAuth2 client assertion with a KMS key"`
		Debug     bool                  `help:"Enable debug mode."`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("pcasign"),
		kong.Description("Issue code signing certificates from AWS Private CA for AWS KMS keys."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)

	shutdown := func(context.Context) error { return nil }
	if telemetry.Enabled() {
		var err error
		if shutdown, err = telemetry.InitTelemetry(ctx, "pcasign", version); err != nil {
			log.Warn().Err(err).Msg("Failed to initialise telemetry")
			shutdown = func(context.Context) error { return nil }
		}
	}

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	if err != nil {
		log.Error().Err(err).Msg("Command failed")
	}

	// FatalIfErrorf exits, so flush first
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if serr := shutdown(shutdownCtx); serr != nil {
		log.Warn().Err(serr).Msg("Failed to flush telemetry")
	}
	cancel()

	cmd.FatalIfErrorf(err)
}
