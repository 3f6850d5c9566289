package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/varuny677/RequirementGath-feature2.1/internal/logger"
	"github.com/varuny677/RequirementGath-feature2.1/internal/temporalx"
	"github.com/varuny677/RequirementGath-feature2.1/internal/temporalx/analysisrun"
	"github.com/varuny677/RequirementGath-feature2.1/internal/utils"
)

type Runner struct {
	log *logger.Logger

	tc   temporalsdkclient.Client
	acts *analysisrun.Activities
}

func NewRunner(log *logger.Logger, tc temporalsdkclient.Client, acts *analysisrun.Activities) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if acts == nil || acts.Catalog == nil || acts.Predictor == nil || acts.Contexts == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	return &Runner{log: log, tc: tc, acts: acts}, nil
}

func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}

	cfg := temporalx.LoadConfig()
	if r.log != nil {
		r.log.Info("Starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)
	}

	// Local/self-hosted convenience: ensure namespace exists before polling.
	if temporalx.EnvTrue("TEMPORAL_AUTO_REGISTER_NAMESPACE", false) {
		baseCtx := ctx
		if baseCtx == nil {
			baseCtx = context.Background()
		}
		if err := temporalx.EnsureNamespace(baseCtx, r.tc, cfg.Namespace, r.log); err != nil && r.log != nil {
			r.log.Warn("Temporal namespace ensure failed; worker will retry on start", "namespace", cfg.Namespace, "error", err)
		}
	}

	maxWaitSec := utils.GetEnvAsInt("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60, r.log)
	backoff := 250 * time.Millisecond
	backoffMax := 5 * time.Second

	deadline := time.Now().Add(time.Duration(maxWaitSec) * time.Second)

	for attempt := 1; ; attempt++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			if ctx != nil {
				go func() {
					<-ctx.Done()
					w.Stop()
				}()
			}
			if r.log != nil {
				r.log.Info("Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempts", attempt)
			}
			return nil
		}

		// Defensive: ensure worker goroutines are stopped before we retry.
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) && temporalx.EnvTrue("TEMPORAL_AUTO_REGISTER_NAMESPACE", false) {
			baseCtx := ctx
			if baseCtx == nil {
				baseCtx = context.Background()
			}
			_ = temporalx.EnsureNamespace(baseCtx, r.tc, cfg.Namespace, r.log)
		}

		if maxWaitSec <= 0 || time.Now().After(deadline) {
			var nfe2 *serviceerror.NamespaceNotFound
			if errors.As(startErr, &nfe2) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, startErr)
			}
			return startErr
		}

		if r.log != nil {
			r.log.Warn("Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempt", attempt, "error", startErr)
		}

		sleep := temporalx.ClampBackoff(backoff, backoffMax, attempt)
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	cfg := temporalx.LoadConfig()

	concurrency := utils.GetEnvAsInt("WORKER_CONCURRENCY", 4, r.log)
	if concurrency < 1 {
		concurrency = 1
	}

	w := worker.New(r.tc, cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})
	RegisterAll(w, r.acts)
	return w
}

// RegisterAll wires the analysis workflows and activities onto a worker.
func RegisterAll(w worker.Worker, acts *analysisrun.Activities) {
	w.RegisterWorkflowWithOptions(analysisrun.QuestionnaireWorkflow, workflow.RegisterOptions{Name: analysisrun.QuestionnaireWorkflowName})
	w.RegisterWorkflowWithOptions(analysisrun.SectionWorkflow, workflow.RegisterOptions{Name: analysisrun.SectionWorkflowName})

	w.RegisterActivityWithOptions(acts.ParseSectionStructure, activity.RegisterOptions{Name: analysisrun.ActivityParseSectionStructure})
	w.RegisterActivityWithOptions(acts.RetrieveSectionChunks, activity.RegisterOptions{Name: analysisrun.ActivityRetrieveSectionChunks})
	w.RegisterActivityWithOptions(acts.PredictQuestionBatch, activity.RegisterOptions{Name: analysisrun.ActivityPredictQuestionBatch})
	w.RegisterActivityWithOptions(acts.ResolveNextQuestions, activity.RegisterOptions{Name: analysisrun.ActivityResolveNextQuestions})
	w.RegisterActivityWithOptions(acts.AppendWaveContext, activity.RegisterOptions{Name: analysisrun.ActivityAppendWaveContext})
	w.RegisterActivityWithOptions(acts.FinalizeSectionContext, activity.RegisterOptions{Name: analysisrun.ActivityFinalizeSectionContext})
	w.RegisterActivityWithOptions(acts.SendProgressUpdate, activity.RegisterOptions{Name: analysisrun.ActivitySendProgressUpdate})
	w.RegisterActivityWithOptions(acts.SaveResults, activity.RegisterOptions{Name: analysisrun.ActivitySaveResults})
	w.RegisterActivityWithOptions(acts.DiscardRunContext, activity.RegisterOptions{Name: analysisrun.ActivityDiscardRunContext})
}
