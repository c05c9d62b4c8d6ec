package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humaecho"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/artifacts"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/configstore"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/datasets"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/orchestrator"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/server/api/handlers"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
)

type RouterConfig struct {
	Svc       *orchestrator.Service
	Store     store.Store
	Artifacts *artifacts.Area
	Configs   *configstore.Store
	Datasets  *datasets.Store
}

func SetupRouter(e *echo.Echo, cfg RouterConfig) {
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
	}))
	e.Use(echomw.RateLimiter(echomw.NewRateLimiterMemoryStore(20)))

	e.GET("/health", func(c echo.Context) error {
		if err := cfg.Store.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	group := e.Group("/api")
	config := huma.DefaultConfig("OPEVA Backend API", "1.0.0")
	config.Servers = []*huma.Server{{URL: "/api"}}
	config.Info.Description = "Simulation job orchestration for the OPEVA platform"

	api := humaecho.NewWithGroup(e, group, config)

	jobsHandler := handlers.NewJobsHandler(cfg.Svc)
	huma.Register(api, huma.Operation{
		OperationID:   "run-simulation",
		Method:        http.MethodPost,
		Path:          "/run-simulation",
		Summary:       "Launch a simulation job",
		Tags:          []string{"Jobs"},
		DefaultStatus: http.StatusCreated,
	}, jobsHandler.RunSimulation)

	huma.Register(api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/status/{job_id}",
		Summary:     "Get job status",
		Tags:        []string{"Jobs"},
	}, jobsHandler.Status)

	huma.Register(api, huma.Operation{
		OperationID: "get-job-info",
		Method:      http.MethodGet,
		Path:        "/job-info/{job_id}",
		Summary:     "Get the full job record",
		Tags:        []string{"Jobs"},
	}, jobsHandler.JobInfo)

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List all jobs",
		Tags:        []string{"Jobs"},
	}, jobsHandler.List)

	huma.Register(api, huma.Operation{
		OperationID: "list-queue",
		Method:      http.MethodGet,
		Path:        "/queue",
		Summary:     "List queued jobs in dispatch order",
		Tags:        []string{"Jobs"},
	}, jobsHandler.Queue)

	huma.Register(api, huma.Operation{
		OperationID: "list-hosts",
		Method:      http.MethodGet,
		Path:        "/hosts",
		Summary:     "List known worker hosts",
		Tags:        []string{"Hosts"},
	}, jobsHandler.Hosts)

	huma.Register(api, huma.Operation{
		OperationID: "stop-job",
		Method:      http.MethodPost,
		Path:        "/stop/{job_id}",
		Summary:     "Request a job stop",
		Tags:        []string{"Jobs"},
	}, jobsHandler.Stop)

	huma.Register(api, huma.Operation{
		OperationID: "delete-job",
		Method:      http.MethodDelete,
		Path:        "/job/{job_id}",
		Summary:     "Delete a terminal job and its artifacts",
		Tags:        []string{"Jobs"},
	}, jobsHandler.Delete)

	opsHandler := handlers.NewOpsHandler(cfg.Svc)
	huma.Register(api, huma.Operation{
		OperationID: "ops-requeue",
		Method:      http.MethodPost,
		Path:        "/ops/requeue/{job_id}",
		Summary:     "Requeue a job",
		Tags:        []string{"Ops"},
	}, opsHandler.Requeue)

	huma.Register(api, huma.Operation{
		OperationID: "ops-fail",
		Method:      http.MethodPost,
		Path:        "/ops/fail/{job_id}",
		Summary:     "Mark a job failed",
		Tags:        []string{"Ops"},
	}, opsHandler.Fail)

	huma.Register(api, huma.Operation{
		OperationID: "ops-cancel",
		Method:      http.MethodPost,
		Path:        "/ops/cancel/{job_id}",
		Summary:     "Cancel a job",
		Tags:        []string{"Ops"},
	}, opsHandler.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "ops-cleanup",
		Method:      http.MethodPost,
		Path:        "/ops/cleanup",
		Summary:     "Remove orphaned queue entries",
		Tags:        []string{"Ops"},
	}, opsHandler.Cleanup)

	artifactsHandler := handlers.NewArtifactsHandler(cfg.Artifacts)
	huma.Register(api, huma.Operation{
		OperationID: "get-result",
		Method:      http.MethodGet,
		Path:        "/result/{job_id}",
		Summary:     "Get the job result document",
		Tags:        []string{"Artifacts"},
	}, artifactsHandler.Result)

	huma.Register(api, huma.Operation{
		OperationID: "get-progress",
		Method:      http.MethodGet,
		Path:        "/progress/{job_id}",
		Summary:     "Get the job progress document",
		Tags:        []string{"Artifacts"},
	}, artifactsHandler.Progress)

	huma.Register(api, huma.Operation{
		OperationID: "get-logs",
		Method:      http.MethodGet,
		Path:        "/logs/{job_id}",
		Summary:     "Get the tail of the job log",
		Tags:        []string{"Artifacts"},
	}, artifactsHandler.Logs)

	configsHandler := handlers.NewConfigsHandler(cfg.Configs)
	huma.Register(api, huma.Operation{
		OperationID:   "create-config",
		Method:        http.MethodPost,
		Path:          "/configs",
		Summary:       "Save a simulation config",
		Tags:          []string{"Configs"},
		DefaultStatus: http.StatusCreated,
	}, configsHandler.Create)

	huma.Register(api, huma.Operation{
		OperationID: "list-configs",
		Method:      http.MethodGet,
		Path:        "/configs",
		Summary:     "List saved configs",
		Tags:        []string{"Configs"},
	}, configsHandler.List)

	huma.Register(api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/configs/{name}",
		Summary:     "Get a saved config",
		Tags:        []string{"Configs"},
	}, configsHandler.Get)

	huma.Register(api, huma.Operation{
		OperationID: "delete-config",
		Method:      http.MethodDelete,
		Path:        "/configs/{name}",
		Summary:     "Delete a saved config",
		Tags:        []string{"Configs"},
	}, configsHandler.Delete)

	datasetsHandler := handlers.NewDatasetsHandler(cfg.Datasets)
	huma.Register(api, huma.Operation{
		OperationID:   "create-dataset",
		Method:        http.MethodPost,
		Path:          "/datasets",
		Summary:       "Create a dataset from base64 files",
		Tags:          []string{"Datasets"},
		DefaultStatus: http.StatusCreated,
	}, datasetsHandler.Create)

	huma.Register(api, huma.Operation{
		OperationID: "list-datasets",
		Method:      http.MethodGet,
		Path:        "/datasets",
		Summary:     "List datasets",
		Tags:        []string{"Datasets"},
	}, datasetsHandler.List)

	// Agent protocol and raw log streaming stay on plain echo routes,
	// outside the OpenAPI surface.
	agentHandler := handlers.NewAgentHandler(cfg.Svc)
	ag := e.Group("/api/agent")
	ag.POST("/next-job", agentHandler.NextJob)
	ag.POST("/job-status", agentHandler.JobStatus)
	ag.POST("/heartbeat", agentHandler.Heartbeat)

	e.GET("/api/file-logs/:job_id", artifactsHandler.StreamLogs)
}
