package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/adapters/memorybus"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/app"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
	"github.com/Guilhem-Bonnet/prediction-runner/internal/ports"
)

const progressRefresh = 500 * time.Millisecond

type submitFlags struct {
	mode       string
	target     string
	payload    string
	file       string
	skipQuota  bool
	noProgress bool
}

func newSubmitCmd(c *cli) *cobra.Command {
	var f submitFlags
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Soumet une requête et attend le résultat (Ctrl-C annule)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.submit(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.mode, "mode", string(domain.ModeChampion), "Mode d'exécution (champion, council, selected)")
	cmd.Flags().StringVar(&f.target, "target", "", "miner_uid de l'agent ciblé en mode selected")
	cmd.Flags().StringVar(&f.payload, "payload", "", "Payload JSON")
	cmd.Flags().StringVar(&f.file, "file", "", "Fichier contenant le payload JSON (- = stdin)")
	cmd.Flags().BoolVar(&f.skipQuota, "skip-quota", false, "Ne pas lire le quota (GET /health) avant la soumission")
	cmd.Flags().BoolVar(&f.noProgress, "no-progress", false, "Ne pas afficher la progression")
	return cmd
}

// readPayload renvoie le payload depuis --payload ou --file, validé comme JSON.
func readPayload(f submitFlags, stdin io.Reader) (json.RawMessage, error) {
	var raw []byte
	switch {
	case f.payload != "" && f.file != "":
		return nil, errors.New("--payload and --file are mutually exclusive")
	case f.payload != "":
		raw = []byte(f.payload)
	case f.file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, errors.Wrap(err, "reading payload from stdin")
		}
		raw = b
	case f.file != "":
		b, err := os.ReadFile(f.file)
		if err != nil {
			return nil, errors.Wrapf(err, "reading payload file %q", f.file)
		}
		raw = b
	default:
		return nil, errors.New("missing payload: use --payload or --file")
	}
	if !json.Valid(raw) {
		return nil, errors.New("payload is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func (c *cli) submit(parent context.Context, f submitFlags) error {
	req := domain.WorkRequest{Mode: domain.ExecutionMode(f.mode), TargetID: strings.TrimSpace(f.target)}
	if err := req.Validate(); err != nil {
		return err
	}
	payload, err := readPayload(f, os.Stdin)
	if err != nil {
		return err
	}
	req.Payload = payload
	client, err := c.client()
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !f.skipQuota {
		if _, err := app.NewQuotaGate(client).Check(ctx, req.Mode.Units()); err != nil {
			if errors.Is(err, app.ErrQuotaExhausted) {
				return err
			}
			c.logger.Warn().Err(err).Msg("quota check failed, submitting anyway")
		}
	}

	settings := c.cfg.Overlay(domain.DefaultSettings())
	bus := memorybus.New()
	defer bus.Close()
	orch := app.NewOrchestrator(context.Background(), c.logger, c.session, client, bus, app.OptionsFromSettings(settings))

	if !f.noProgress {
		events, cancel := bus.Subscribe("submission.polling", "job.status")
		defer cancel()
		go c.renderProgress(orch, events)
	}

	snap, err := orch.Submit(ctx, req)
	if !f.noProgress {
		fmt.Fprintln(c.stderr)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(c.stderr, "Soumission annulée.")
		return nil
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap.Result)
}

// renderProgress rafraîchit une ligne de progression sur stderr jusqu'à la fermeture du bus.
func (c *cli) renderProgress(orch *app.Orchestrator, events <-chan ports.Event) {
	ticker := time.NewTicker(progressRefresh)
	defer ticker.Stop()
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-ticker.C:
		}
		snap := orch.Snapshot()
		if !snap.State.IsActive() {
			continue
		}
		fmt.Fprintf(c.stderr, "\r%s", progressLine(snap))
	}
}

func progressLine(snap app.Snapshot) string {
	const width = 30
	filled := int(snap.Progress * width)
	if filled > width {
		filled = width
	}
	status := string(snap.State)
	if snap.Job != nil {
		status = string(snap.Job.Status)
	}
	return fmt.Sprintf("[%s%s] %3.0f%% %4ds %s",
		strings.Repeat("#", filled), strings.Repeat(".", width-filled),
		snap.Progress*100, snap.ElapsedSeconds, status)
}
