package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/yoockh/mockinterview/internal/cache"
	"github.com/yoockh/mockinterview/internal/jobs"
	"github.com/yoockh/mockinterview/internal/providers/llm"
	pgrepo "github.com/yoockh/mockinterview/internal/repositories/postgres"
	"github.com/yoockh/mockinterview/internal/services"
	"github.com/yoockh/mockinterview/internal/workers"
)

func newWorkerCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the interviewer prompt generation workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx, *configFile, true)
			if err != nil {
				return err
			}
			defer rt.close()

			cfg := rt.cfg
			project := cfg.VertexProject
			if project == "" {
				project = os.Getenv("GOOGLE_CLOUD_PROJECT")
			}
			if project == "" {
				return errors.New("VERTEX_PROJECT (or GOOGLE_CLOUD_PROJECT) environment variable is not set")
			}
			gemini, err := llm.NewVertexGemini(ctx, project, cfg.VertexLocation, cfg.VertexModel)
			if err != nil {
				return err
			}
			defer gemini.Close()

			refs := services.NewReferenceService(pgrepo.NewReferenceRepo(rt.db), cache.NewRedisCache(rt.rdb), cfg.StoreTimeout, rt.log)
			pool := &workers.PromptWorkerPool{
				Redis:          rt.rdb,
				Interviews:     pgrepo.NewInterviewRepo(rt.db),
				Refs:           refs,
				LLM:            gemini,
				Notifier:       jobs.NewRedisNotifier(rt.rdb),
				Metrics:        rt.metrics,
				NumWorkers:     cfg.WorkerCount,
				StoreTimeout:   cfg.StoreTimeout,
				Logger:         rt.log,
				ConsumerPrefix: consumerPrefix(),
			}
			if err := pool.Start(ctx); err != nil {
				return err
			}

			<-ctx.Done()
			rt.log.Info("worker shutting down")
			return nil
		},
	}
}

func consumerPrefix() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "worker"
}
