package main

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/adapters/remote"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/app"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/buildinfo"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/config"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/telemetry"
)

// cli porte l'état partagé entre la commande racine et les sous-commandes.
type cli struct {
	v          *viper.Viper
	configFile string
	cfg        config.Config
	logger     zerolog.Logger
	session    app.Session
	shutdown   telemetry.Shutdown
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New(), stdout: os.Stdout, stderr: os.Stderr}
	def := config.Default()
	// La CLI reste silencieuse par défaut, la progression s'affiche à part.
	c.v.SetDefault("log_level", "warn")

	root := &cobra.Command{
		Use:           "predict",
		Short:         "Soumet des requêtes au service de prédiction et suit leur exécution",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.shutdown == nil {
				return nil
			}
			return c.shutdown(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configFile, "config", "", "Fichier de configuration (yaml/json/toml)")
	pf.String("server-url", def.ServerURL, "URL du service de prédiction")
	pf.String("client-id", "", "Identifiant client (généré si vide)")
	pf.Duration("http-timeout", def.HTTPTimeout, "Timeout HTTP par requête")
	pf.Duration("poll-interval", 0, "Cadence du polling (0 = défaut)")
	pf.Duration("estimated-duration", 0, "Durée estimée d'un job (0 = défaut)")
	pf.Float64("progress-cap", 0, "Plafond de progression avant achèvement (0 = défaut)")
	pf.String("log-level", "warn", "Niveau de log (trace, debug, info, warn, error)")
	pf.Bool("trace", false, "Exporter les spans otel sur stderr")

	root.AddCommand(
		newSubmitCmd(c),
		newStatusCmd(c),
		newQuotaCmd(c),
		newHealthCmd(c),
		newAgentsCmd(c),
		newVersionCmd(c),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	c.stdout = cmd.OutOrStdout()
	c.stderr = cmd.ErrOrStderr()
	if err := config.BindFlags(c.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(c.v, c.configFile)
	if err != nil {
		return err
	}
	c.cfg = cfg

	c.logger = zerolog.New(zerolog.ConsoleWriter{Out: c.stderr, TimeFormat: time.Kitchen}).
		Level(cfg.Level()).With().Timestamp().Logger()
	c.session = app.NewSession(cfg.ClientID, buildinfo.UserAgent())

	shutdown, err := telemetry.Init("predict", cfg.Trace, c.stderr)
	if err != nil {
		return err
	}
	c.shutdown = shutdown
	return nil
}

// client construit un client distant sans limiteur: la CLI ne soumet qu'une fois.
func (c *cli) client() (*remote.Client, error) {
	return remote.New(c.logger, c.session, remote.Options{
		BaseURL:         c.cfg.ServerURL,
		Timeout:         c.cfg.HTTPTimeout,
		BreakerFailures: c.cfg.BreakerFailures,
	})
}
