// FILE: shogi/internal/server/http/handler.go
package http

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"shogi/internal/server/core"
	"shogi/internal/server/processor"
	"shogi/internal/server/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

const rateLimitRate = 10 // req/sec

// HTTPHandler handles HTTP requests and routes them to the processor
type HTTPHandler struct {
	proc *processor.Processor
	svc  *service.Service
}

func NewHTTPHandler(proc *processor.Processor, svc *service.Service) *HTTPHandler {
	return &HTTPHandler{proc: proc, svc: svc}
}

// AppConfig tunes the API surface
type AppConfig struct {
	DevMode      bool   // doubles the request rate limit
	AllowOrigins string // comma separated CORS origins, "*" when empty
}

func NewFiberApp(proc *processor.Processor, svc *service.Service, cfg AppConfig) *fiber.App {
	h := NewHTTPHandler(proc, svc)

	origins := cfg.AllowOrigins
	if origins == "" {
		origins = "*"
	}

	// WriteTimeout is left unset: analysis streams outlive any fixed bound
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	})

	// Global middleware (order matters)
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check (no rate limit)
	app.Get("/health", h.Health)

	api := app.Group("/api/v1")
	validateToken := svc.ValidateToken

	// Auth routes with specific rate limiting
	auth := api.Group("/auth")
	auth.Post("/register", perMinute(5, "registrations"), h.RegisterHandler)
	auth.Post("/login", perMinute(10, "login attempts"), h.LoginHandler)
	auth.Get("/me", AuthRequired(validateToken), h.ProfileHandler)

	// Engine routes with standard rate limiting
	maxReq := rateLimitRate
	if cfg.DevMode {
		maxReq = rateLimitRate * 2
	}
	api.Use(limiter.New(limiter.Config{
		Max:        maxReq,
		Expiration: 1 * time.Second,
		KeyGenerator: func(c *fiber.Ctx) string {
			if xff := c.Get("X-Forwarded-For"); xff != "" {
				if idx := strings.Index(xff, ","); idx != -1 {
					return strings.TrimSpace(xff[:idx])
				}
				return xff
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: fmt.Sprintf("%d requests per second allowed", maxReq),
			})
		},
	}))

	api.Use(AuthIfEnabled(svc.AuthEnabled(), validateToken))
	api.Use(contentTypeValidator)
	api.Use(validationMiddleware)

	api.Post("/analyze", h.Analyze)
	api.Get("/analysis/stream", h.AnalysisStream)
	api.Post("/analysis/batch", h.BatchAnalysis)
	api.Post("/analysis/cancel", h.CancelAnalysis)
	api.Post("/tsume/play", h.PlayTsume)
	api.Post("/engine/reload", h.ReloadEngine)
	api.Get("/engine/status", h.EngineStatus)
	api.Post("/analyses", h.SubmitAnalysis)
	api.Get("/analyses", h.ListAnalyses)
	api.Get("/analyses/:analysisId", h.GetAnalysis)

	return app
}

// perMinute limits an endpoint per client IP
func perMinute(max int, what string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(core.ErrorResponse{
				Error:   "rate limit exceeded",
				Code:    core.ErrRateLimitExceeded,
				Details: fmt.Sprintf("%d %s per minute allowed", max, what),
			})
		},
	})
}

// customErrorHandler provides consistent error responses
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	response := core.ErrorResponse{
		Error: "internal server error",
		Code:  core.ErrInternalError,
	}

	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
		response.Error = e.Message

		switch code {
		case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
			response.Code = core.ErrNotFound
		case fiber.StatusBadRequest:
			response.Code = core.ErrInvalidRequest
		case fiber.StatusTooManyRequests:
			response.Code = core.ErrRateLimitExceeded
		}
	}

	return c.Status(code).JSON(response)
}

// respond writes a processor response with the status its error code maps to
func respond(c *fiber.Ctx, resp processor.ProcessorResponse) error {
	if !resp.Success {
		return c.Status(processor.StatusCode(resp.Error.Code)).JSON(resp.Error)
	}
	if resp.Pending {
		return c.Status(fiber.StatusAccepted).JSON(resp.Data)
	}
	if resp.Data == nil {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(resp.Data)
}

func validationBypass(c *fiber.Ctx) error {
	return c.Status(fiber.StatusInternalServerError).JSON(core.ErrorResponse{
		Error: "validation bypass detected",
		Code:  core.ErrInternalError,
	})
}

// Health check endpoint with storage and engine status
func (h *HTTPHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"time":    time.Now().Unix(),
		"storage": h.svc.GetStorageHealth(),
		"engines": h.proc.Engines(),
	})
}

// Analyze runs one depth-limited search
func (h *HTTPHandler) Analyze(c *fiber.Ctx) error {
	req, ok := validatedBody[core.AnalyzeRequest](c)
	if !ok {
		return validationBypass(c)
	}
	userID, _ := c.Locals("userID").(string)

	resp := h.proc.Execute(c.UserContext(), processor.NewAnalyzeCommand(userID, *req))
	return respond(c, resp)
}

// PlayTsume grades the attacker's latest move of a checkmate puzzle
func (h *HTTPHandler) PlayTsume(c *fiber.Ctx) error {
	req, ok := validatedBody[core.TsumeRequest](c)
	if !ok {
		return validationBypass(c)
	}
	userID, _ := c.Locals("userID").(string)

	resp := h.proc.Execute(c.UserContext(), processor.NewSolveTsumeCommand(userID, *req))
	return respond(c, resp)
}

// ReloadEngine restarts one or both engines
func (h *HTTPHandler) ReloadEngine(c *fiber.Ctx) error {
	req, ok := validatedBody[core.ReloadRequest](c)
	if !ok {
		return validationBypass(c)
	}

	resp := h.proc.Execute(c.UserContext(), processor.NewReloadEngineCommand(*req))
	return respond(c, resp)
}

// CancelAnalysis stops the running stream or batch of an engine
func (h *HTTPHandler) CancelAnalysis(c *fiber.Ctx) error {
	req, ok := validatedBody[core.CancelRequest](c)
	if !ok {
		return validationBypass(c)
	}

	resp := h.proc.Execute(c.UserContext(), processor.NewCancelCommand(*req))
	return respond(c, resp)
}

func (h *HTTPHandler) EngineStatus(c *fiber.Ctx) error {
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewEngineStatusCommand()))
}

// SubmitAnalysis queues a batch run whose plies are read back with GetAnalysis
func (h *HTTPHandler) SubmitAnalysis(c *fiber.Ctx) error {
	req, ok := validatedBody[core.BatchRequest](c)
	if !ok {
		return validationBypass(c)
	}
	userID, _ := c.Locals("userID").(string)

	resp := h.proc.Execute(c.UserContext(), processor.NewSubmitAnalysisCommand(userID, *req))
	return respond(c, resp)
}

// GetAnalysis returns a stored batch run with its plies
func (h *HTTPHandler) GetAnalysis(c *fiber.Ctx) error {
	analysisID := c.Params("analysisId")

	if !isValidUUID(analysisID) {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid analysis ID format",
			Code:    core.ErrInvalidRequest,
			Details: "analysis ID must be a valid UUID",
		})
	}

	userID, _ := c.Locals("userID").(string)
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewGetAnalysisCommand(userID, analysisID)))
}

// ListAnalyses returns the caller's newest batch runs
func (h *HTTPHandler) ListAnalyses(c *fiber.Ctx) error {
	userID, _ := c.Locals("userID").(string)
	return respond(c, h.proc.Execute(c.UserContext(), processor.NewListAnalysesCommand(userID)))
}
