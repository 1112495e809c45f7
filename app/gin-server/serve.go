package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/yoockh/mockinterview/config"
	"github.com/yoockh/mockinterview/internal/api/handlers"
	"github.com/yoockh/mockinterview/internal/api/middleware"
	"github.com/yoockh/mockinterview/internal/api/routes"
	"github.com/yoockh/mockinterview/internal/cache"
	"github.com/yoockh/mockinterview/internal/jobs"
	"github.com/yoockh/mockinterview/internal/providers/tavus"
	pgrepo "github.com/yoockh/mockinterview/internal/repositories/postgres"
	"github.com/yoockh/mockinterview/internal/services"
)

func newServeCmd(configFile *string) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := bootstrap(ctx, *configFile, true)
			if err != nil {
				return err
			}
			defer rt.close()
			if err := rt.cfg.RequireServe(); err != nil {
				return err
			}

			if migrate {
				if err := pgrepo.Migrate(ctx, rt.db); err != nil {
					return err
				}
			}
			return serve(ctx, rt)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "run migrations before serving")
	return cmd
}

func serve(ctx context.Context, rt *app) error {
	cfg, log := rt.cfg, rt.log

	// Repos
	tx := pgrepo.NewTransactor(rt.db)
	quotaRepo := pgrepo.NewQuotaRepo(rt.db)
	interviewRepo := pgrepo.NewInterviewRepo(rt.db)
	refRepo := pgrepo.NewReferenceRepo(rt.db)

	// Infra
	rc := cache.NewRedisCache(rt.rdb)
	queue := jobs.NewRedisQueue(rt.rdb)
	notifier := jobs.NewRedisNotifier(rt.rdb)

	tv := tavus.NewClient(cfg.TavusBaseURL, cfg.TavusAPIKey, cfg.TavusTimeout, tavus.WithMetrics(rt.metrics))
	if !tv.Configured() {
		log.Warn("TAVUS_API_KEY is not set; session start and end will fail")
	}

	// Services
	quotaSvc := services.NewQuotaService(quotaRepo, cfg.DefaultQuotaMinutes, cfg.StoreTimeout, rt.metrics, log)
	refSvc := services.NewReferenceService(refRepo, rc, cfg.StoreTimeout, log)
	interviewSvc := services.NewInterviewService(services.InterviewDeps{
		Tx:         tx,
		Interviews: interviewRepo,
		Quota:      quotaSvc,
		Refs:       refSvc,
		Jobs:       queue,
		Notifier:   notifier,
		Cache:      rc,
		Log:        log,
		Timeout:    cfg.StoreTimeout,
	})
	sessionSvc := services.NewSessionService(services.SessionDeps{
		Provider:   tv,
		Interviews: interviewRepo,
		Refs:       refSvc,
		Cache:      rc,
		Locker:     rc,
		Notifier:   notifier,
		Metrics:    rt.metrics,
		Log:        log,
		Settings: services.SessionSettings{
			Personas:        personas(cfg.Replicas),
			MaxCallDuration: cfg.TavusMaxCallDuration,
			StoreTimeout:    cfg.StoreTimeout,
		},
	})
	feedbackSvc := services.NewFeedbackService(interviewRepo, queue, notifier, rt.metrics, log, cfg.StoreTimeout)

	// Router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Auth: middleware.JWTSettings{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
		Reference: handlers.NewReferenceHandler(refSvc),
		Quota:     handlers.NewQuotaHandler(quotaSvc),
		Interview: handlers.NewInterviewHandler(interviewSvc),
		Session:   handlers.NewSessionHandler(sessionSvc),
		Feedback:  handlers.NewFeedbackHandler(feedbackSvc),
		WS:        handlers.NewWSHandler(interviewSvc, rt.rdb, cfg.AllowedOrigins),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func personas(replicas map[string]config.Replica) map[string]services.PersonaMapping {
	out := make(map[string]services.PersonaMapping, len(replicas))
	for t, r := range replicas {
		out[t] = services.PersonaMapping{ReplicaID: r.ReplicaID, PersonaID: r.PersonaID}
	}
	return out
}
