package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long: `Start the background worker: command intake from Azure Service Bus,
search projections, and the periodic anchoring, publishing and chain
verification jobs.`,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Starting worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.withAnchorer(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	if a.azure != nil {
		processor := a.messageProcessor()
		g.Go(func() error {
			log.Info().Str("queue", cfg.Azure.CommandsQueueName).Msg("Starting Azure Service Bus consumer")
			return a.azure.StartConsumers(ctx, cfg.Azure.CommandsQueueName, processor)
		})
	}

	projector, err := a.eventProcessor(ctx)
	if err != nil {
		return err
	}
	if projector != nil {
		g.Go(func() error {
			return projector.Run(ctx)
		})
	}

	g.Go(func() error {
		return runScheduler(ctx, a)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}

	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

// runScheduler runs the integrity jobs until ctx is cancelled
func runScheduler(ctx context.Context, a *app) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, "failed to create scheduler")
	}

	jobs := []struct {
		name  string
		every gocron.JobDefinition
		run   func(ctx context.Context, txn *newrelic.Transaction) error
	}{
		{
			name:  "anchor",
			every: gocron.DurationJob(cfg.Integrity.AnchorInterval),
			run: func(ctx context.Context, txn *newrelic.Transaction) error {
				span := a.tracer.StartSpan(ctx, "CreateAnchor")
				anchor, err := a.anchorer.CreateAnchor(ctx)
				span.End()
				if err != nil {
					return errors.Wrap(err, "failed to create anchor")
				}
				if anchor == nil {
					log.Debug().Msg("Nothing to anchor")
				} else {
					a.tracer.AddAttribute(txn, "anchorId", anchor.AnchorID)
					a.tracer.AddAttribute(txn, "entries", anchor.EntryCount)
				}

				span = a.tracer.StartSpan(ctx, "PublishAnchors")
				published, err := a.anchorer.PublishAnchors(ctx)
				span.End()
				a.tracer.AddAttribute(txn, "published", published)
				return errors.Wrap(err, "failed to publish anchors")
			},
		},
		{
			name:  "verify",
			every: gocron.DurationJob(cfg.Integrity.VerifyInterval),
			run: func(ctx context.Context, txn *newrelic.Transaction) error {
				report, err := a.chain.VerifyChain(ctx, 0, 0)
				if err != nil {
					return errors.Wrap(err, "failed to verify ledger chain")
				}
				a.metrics.SetHealth("ledger_chain", report.Intact)
				a.tracer.AddAttribute(txn, "checked", report.Checked)
				a.tracer.AddAttribute(txn, "intact", report.Intact)
				if !report.Intact {
					return errors.Errorf("ledger chain broken at sequence %d: %s", report.BrokenAt, report.Reason)
				}
				return nil
			},
		},
	}

	for _, job := range jobs {
		if _, err := scheduler.NewJob(
			job.every,
			gocron.NewTask(traced(ctx, a, job.name, job.run)),
			gocron.WithName(job.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			return errors.Wrapf(err, "failed to schedule %s job", job.name)
		}
	}

	scheduler.Start()
	log.Info().
		Dur("anchorInterval", cfg.Integrity.AnchorInterval).
		Dur("verifyInterval", cfg.Integrity.VerifyInterval).
		Msg("Integrity jobs scheduled")

	<-ctx.Done()

	return scheduler.Shutdown()
}

// traced runs one job inside its own background transaction
func traced(ctx context.Context, a *app, name string, run func(context.Context, *newrelic.Transaction) error) func() {
	return func() {
		ctx, txn := a.tracer.StartTransaction(ctx, "worker/"+name)
		defer a.tracer.EndTransaction(txn)

		if err := run(ctx, txn); err != nil {
			a.tracer.RecordError(txn, err)
			log.Error().Err(err).Str("job", name).Msg("Integrity job failed")
		}
	}
}
