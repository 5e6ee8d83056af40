// FILE: shogi/internal/server/http/stream.go
package http

import (
	"bufio"
	"context"
	"encoding/json"
	"strings"

	"shogi/internal/server/core"
	"shogi/internal/server/engine"
	"shogi/internal/server/processor"
	"shogi/internal/server/usi"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// written after every batch frame so buffering proxies pass it on
var framePadding = strings.Repeat(" ", 4096)

// batchDone is the last frame of a batch stream
type batchDone struct {
	Status string `json:"status"`
	processor.BatchOutcome
}

// AnalysisStream runs a live analysis as server-sent events:
// info lines as "multipv_update", then "bestmove", or "error".
// Comment lines keep idle connections open while the engine thinks.
func (h *HTTPHandler) AnalysisStream(c *fiber.Ctx) error {
	var req core.StreamRequest
	if err := c.QueryParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "invalid query",
			Code:    core.ErrInvalidRequest,
			Details: err.Error(),
		})
	}
	if err := validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error:   "validation failed",
			Code:    core.ErrInvalidRequest,
			Details: validationDetails(err),
		})
	}

	pos, err := usi.ParsePosition(req.Position)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error: err.Error(),
			Code:  core.ErrInvalidPosition,
		})
	}

	logger := log.With().Str("rid", requestID(c)).Str("ip", c.IP()).Logger()

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		logger.Info().Str("position", pos.String()).Msg("stream start")
		err := h.proc.Stream(context.Background(), pos, req.Depth, req.MultiPV, func(ev engine.Event) error {
			if err := writeEvent(w, ev); err != nil {
				return err
			}
			return w.Flush()
		})
		if err != nil {
			logger.Warn().Err(err).Msg("stream failed")
		}
		logger.Info().Msg("stream end")
	})
	return nil
}

func writeEvent(w *bufio.Writer, ev engine.Event) error {
	var payload any
	switch ev.Kind {
	case engine.EventKeepalive:
		_, err := w.WriteString(": keepalive\n\n")
		return err
	case engine.EventInfo:
		payload = map[string]usi.InfoLine{"multipv_update": ev.Info}
	case engine.EventBestmove:
		payload = map[string]string{"bestmove": ev.Bestmove}
	default:
		payload = map[string]string{"error": ev.Err}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.WriteString("data: "); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.WriteString("\n\n")
	return err
}

// BatchAnalysis analyses every ply of a game as newline-delimited JSON:
// a start frame, one frame per ply with sente-relative scores, then a done
// frame, or an error frame when the engine fails.
func (h *HTTPHandler) BatchAnalysis(c *fiber.Ctx) error {
	req, ok := validatedBody[core.BatchRequest](c)
	if !ok {
		return validationBypass(c)
	}
	userID, _ := c.Locals("userID").(string)

	job, err := processor.NewAnalysisJob(userID, *req)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(core.ErrorResponse{
			Error: err.Error(),
			Code:  core.ErrInvalidPosition,
		})
	}

	logger := log.With().
		Str("rid", requestID(c)).
		Str("ip", c.IP()).
		Str("analysis_id", job.AnalysisID).
		Logger()

	c.Set(fiber.HeaderContentType, "application/x-ndjson")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		logger.Info().Int("moves", len(job.Game.Moves)).Msg("batch start")
		defer logger.Info().Msg("batch end")

		send := func(v any) error {
			if err := writeFrame(w, v); err != nil {
				return err
			}
			return w.Flush()
		}

		out, err := h.proc.RunBatch(context.Background(), job,
			func(id string) error {
				return send(map[string]string{"status": "start", "analysis_id": id})
			},
			func(ply processor.Ply) error { return send(ply) },
		)
		if err != nil {
			logger.Warn().Err(err).Msg("batch failed")
			_ = send(map[string]string{"error": engine.ErrorText(err)})
			return
		}
		_ = send(batchDone{Status: "done", BatchOutcome: out})
	})
	return nil
}

func writeFrame(w *bufio.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if _, err := w.WriteString(framePadding); err != nil {
		return err
	}
	return w.WriteByte('\n')
}

// requestID returns the caller's request_id or a fresh short id
func requestID(c *fiber.Ctx) string {
	if rid := c.Query("request_id"); rid != "" && len(rid) <= 64 && processor.IsInputSafe(rid) {
		return rid
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
