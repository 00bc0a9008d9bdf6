package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/pavelanni/interviewer/internal/i18n"
	"github.com/pavelanni/interviewer/internal/interview"
	"github.com/pavelanni/interviewer/internal/metrics"
)

func newUpgrader(allowed []string) websocket.Upgrader {
	return websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			return slices.ContainsFunc(allowed, func(a string) bool {
				return strings.EqualFold(a, origin) || strings.EqualFold(a, u.Host)
			})
		},
	}
}

// handleWS runs one interview connection. Events are handled in arrival order; answer
// evaluations run on their own goroutine so that end_interview can cancel them.
func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := newConn(ws)
	ws.SetReadLimit(maxMessageSize)

	// The request context carries the localizer chosen for this connection. ctx is
	// cancelled on disconnect so that evaluations and report builds stop with it.
	ctx, cancel := context.WithCancel(r.Context())
	slog.Debug("client connected", "conn_id", c.id, "remote", r.RemoteAddr)

	var limiter *rate.Limiter
	if h.config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.config.RateLimit), max(1, h.config.RateBurst))
	}

	defer func() {
		h.engine.Disconnect(c.id)
		cancel()
		c.close()
		c.wait()
		slog.Debug("client disconnected", "conn_id", c.id)
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", "conn_id", c.id, "error", err)
			}
			return
		}

		if limiter != nil && !limiter.Allow() {
			h.sendError(ctx, c, codeRateLimited, nil)
			continue
		}

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(ctx, c, codeBadRequest, nil)
			continue
		}
		h.dispatch(ctx, c, msg)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *conn, msg inbound) {
	switch msg.Event {
	case eventStartInterview:
		var req startRequest
		if err := decodeData(msg.Data, &req); err != nil {
			h.sendError(ctx, c, codeBadRequest, nil)
			return
		}
		h.start(ctx, c, req)

	case eventSubmitResponse:
		var req submitRequest
		if err := decodeData(msg.Data, &req); err != nil {
			h.sendError(ctx, c, codeBadRequest, nil)
			return
		}
		h.submit(ctx, c, req.Response)

	case eventSkipQuestion:
		h.submit(ctx, c, skippedAnswer)

	case eventEndInterview:
		h.end(ctx, c)

	default:
		h.sendError(ctx, c, codeUnknownEvent, map[string]any{"Event": msg.Event})
	}
}

func (h *Handler) start(ctx context.Context, c *conn, req startRequest) {
	if c.busy() {
		// A finished interview may still be building its report; deliver it first.
		if s, ok := h.engine.Session(c.id); !ok || s.State() != interview.StateActive {
			c.wait()
		}
	}
	started, err := h.engine.Start(ctx, c.id, req.Name, req.SkillLevel)
	if err != nil {
		h.sendSessionError(ctx, c, err)
		return
	}

	msg := i18n.Td(ctx, "Welcome", map[string]any{
		"Name":      started.CandidateName,
		"Questions": i18n.Tp(ctx, "QuestionCount", started.TotalQuestions),
		"Level":     started.SkillLevel,
		"Question":  started.First.Text,
	})
	h.emit(c, eventInterviewStarted, interviewStarted{
		Message:        msg,
		Question:       started.First.Text,
		QuestionNumber: 1,
		TotalQuestions: started.TotalQuestions,
		SessionID:      started.SessionID,
	})
}

func (h *Handler) submit(ctx context.Context, c *conn, answer string) {
	run, err := h.engine.PrepareSubmit(ctx, c.id, answer)
	if err != nil {
		h.sendSessionError(ctx, c, err)
		return
	}

	c.goAsync(func() {
		out, err := run()
		if errors.Is(err, interview.ErrSessionClosed) {
			slog.Debug("discarded evaluation of a finished session", "conn_id", c.id)
			return
		}
		if err != nil {
			h.sendSessionError(ctx, c, err)
			return
		}
		h.sendOutcome(ctx, c, out)
	})
}

func (h *Handler) end(ctx context.Context, c *conn) {
	out, err := h.engine.End(ctx, c.id)
	if err != nil {
		h.sendSessionError(ctx, c, err)
		return
	}
	h.sendOutcome(ctx, c, out)
}

func (h *Handler) sendOutcome(ctx context.Context, c *conn, out interview.Outcome) {
	switch out.Kind {
	case interview.OutcomeNextQuestion:
		h.emit(c, eventNextQuestion, nextQuestion{
			Question:       out.Next.Text,
			QuestionNumber: out.QuestionNumber,
			TotalQuestions: out.TotalQuestions,
			Feedback:       out.Evaluation.Feedback,
			Score:          out.Evaluation.RawScore,
		})
	case interview.OutcomeComplete:
		msgID := "InterviewComplete"
		if out.Report.EndedEarly {
			msgID = "InterviewEndedEarly"
		}
		h.emit(c, eventInterviewComplete, interviewComplete{
			Report:  out.Report,
			Message: i18n.T(ctx, msgID),
		})
	case interview.OutcomeEndedEmpty:
		h.emit(c, eventInterviewEnded, messageOnly{Message: i18n.T(ctx, "InterviewEndedEmpty")})
	case interview.OutcomeNoop:
		slog.Debug("end requested for a finished interview", "conn_id", c.id)
	}
}

func (h *Handler) sendSessionError(ctx context.Context, c *conn, err error) {
	code := interview.ErrorCode(err)
	if code == "internal" {
		slog.Error("interview operation failed", "conn_id", c.id, "error", err)
	}
	h.sendError(ctx, c, code, nil)
}

func (h *Handler) sendError(ctx context.Context, c *conn, code string, data map[string]any) {
	metrics.ProtocolErrors.WithLabelValues(code).Inc()
	msgID, ok := errorMessageIDs[code]
	if !ok {
		msgID = errorMessageIDs["internal"]
	}
	h.emit(c, eventError, errorEvent{Code: code, Message: i18n.Td(ctx, msgID, data)})
}

func (h *Handler) emit(c *conn, event string, data any) {
	if err := c.send(event, data); err != nil {
		slog.Debug("dropping event", "conn_id", c.id, "event", event, "error", err)
	}
}
