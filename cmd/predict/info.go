package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/app"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/buildinfo"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Interroge une fois le statut d'un job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			report, err := client.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(c.stdout, report)
		},
	}
}

func newQuotaCmd(c *cli) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Affiche le quota restant et s'il couvre le mode demandé",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := domain.ExecutionMode(mode)
			if !m.Valid() {
				return errors.Newf("invalid mode %q", mode)
			}
			client, err := c.client()
			if err != nil {
				return err
			}
			q, err := app.NewQuotaGate(client).Check(cmd.Context(), m.Units())
			if err != nil && !errors.Is(err, app.ErrQuotaExhausted) {
				return err
			}
			if err := printJSON(c.stdout, q); err != nil {
				return err
			}
			if err != nil {
				fmt.Fprintf(c.stderr, "%s (%s: %d unités)\n", app.Classify(err).Message, m, m.Units())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(domain.ModeChampion), "Mode dont on vérifie le coût (champion, council, selected)")
	return cmd
}

func newHealthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Vérifie que le service distant répond",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			q, err := client.Quota(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(c.stdout, q)
		},
	}
}

func newAgentsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "Liste le classement des agents distants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := c.client()
			if err != nil {
				return err
			}
			agents, err := client.Agents(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(c.stdout, agents)
		},
	}
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Affiche la version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printJSON(c.stdout, buildinfo.Current())
		},
	}
}
