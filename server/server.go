// Package server exposes the concierge pipeline over HTTP: the channel and
// payment webhooks, the synchronous per-role dispatch API, and the
// go-command backed directory management API. The handler is plain net/http
// so consumers can mount it under their own server.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-concierge/command"
	"github.com/goliatone/go-concierge/core"
	"github.com/goliatone/go-concierge/directory"
	"github.com/goliatone/go-concierge/dispatch"
	"github.com/goliatone/go-concierge/query"
	"github.com/goliatone/go-concierge/ratelimit"
	"github.com/goliatone/go-concierge/webhooks"
)

// Payment event kinds the pipeline turns into customer envelopes. Everything
// else is acknowledged and dropped.
const PaymentEventCreated = "payment.created"

const maxBodyBytes = 1 << 20

type Server struct {
	logger      core.Logger
	verifyToken string
	channel     webhooks.Verifier
	payments    webhooks.Verifier

	dispatcher *dispatch.Dispatcher
	scheduler  *dispatch.Scheduler
	resolver   *directory.Resolver
	limiter    RateLimiter

	grant     *command.GrantAccessCommand
	revoke    *command.RevokeAccessCommand
	setActive *command.SetAccessActiveCommand

	resolveRole *query.ResolveRoleQuery
	checkAccess *query.CheckAccessQuery
	listGrants  *query.ListGrantsQuery

	mux *http.ServeMux
}

// RateLimiter bounds per-sender inbound traffic at the webhook edge.
type RateLimiter interface {
	Allow(sender string) error
}

type Option func(*Server)

// WithRateLimiter throttles channel webhook senders. Nil means unlimited.
func WithRateLimiter(limiter RateLimiter) Option {
	return func(s *Server) {
		s.limiter = limiter
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVerifiers overrides the webhook verifiers built from config. Tests use
// this to install a permissive verifier.
func WithVerifiers(channel, payments webhooks.Verifier) Option {
	return func(s *Server) {
		if channel != nil {
			s.channel = channel
		}
		if payments != nil {
			s.payments = payments
		}
	}
}

func New(
	cfg core.Config,
	dispatcher *dispatch.Dispatcher,
	scheduler *dispatch.Scheduler,
	dir *directory.Directory,
	resolver *directory.Resolver,
	options ...Option,
) (*Server, error) {
	if dispatcher == nil {
		return nil, fmt.Errorf("server: dispatcher is required")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("server: scheduler is required")
	}
	if dir == nil {
		return nil, fmt.Errorf("server: directory is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("server: role resolver is required")
	}

	s := &Server{
		logger:      glog.Nop(),
		verifyToken: strings.TrimSpace(cfg.Channel.VerifyToken),
		channel:     webhooks.NewChannelTemplate(cfg.Channel.AppSecret).Verifier,
		payments:    webhooks.NewPaymentsTemplate(cfg.Payments.SigningSecret).Verifier,
		dispatcher:  dispatcher,
		scheduler:   scheduler,
		resolver:    resolver,
		grant:       command.NewGrantAccessCommand(dir),
		revoke:      command.NewRevokeAccessCommand(dir),
		setActive:   command.NewSetAccessActiveCommand(dir),
		resolveRole: query.NewResolveRoleQuery(resolver),
		checkAccess: query.NewCheckAccessQuery(dir),
		listGrants:  query.NewListGrantsQuery(dir),
	}
	for _, option := range options {
		if option != nil {
			option(s)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /webhook/channel", s.handleChannelHandshake)
	mux.HandleFunc("POST /webhook/channel", s.handleChannelWebhook)
	mux.HandleFunc("POST /webhook/payments", s.handlePaymentsWebhook)
	mux.HandleFunc("POST /agent/{role}", s.handleAgentDispatch)
	mux.HandleFunc("POST /directory/grants", s.handleGrantAccess)
	mux.HandleFunc("DELETE /directory/grants/{sender}", s.handleRevokeAccess)
	mux.HandleFunc("PATCH /directory/grants/{sender}", s.handleSetAccessActive)
	mux.HandleFunc("GET /directory/grants/{sender}", s.handleListGrants)
	mux.HandleFunc("GET /directory/roles/{sender}", s.handleResolveRole)
	mux.HandleFunc("GET /directory/access/{sender}/{role}", s.handleCheckAccess)
	s.mux = mux

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Handler returns the routed handler for embedding under a prefix.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// handleChannelHandshake answers the channel's subscription challenge. The
// token comparison is exact; a blank configured token rejects everything.
func (s *Server) handleChannelHandshake(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	mode := query.Get("hub.mode")
	token := query.Get("hub.verify_token")
	challenge := query.Get("hub.challenge")

	if mode != "subscribe" || s.verifyToken == "" || token != s.verifyToken {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, challenge)
}

func (s *Server) handleChannelWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	err = s.channel.Verify(r.Context(), webhooks.Request{
		Transport: webhooks.TransportChannel,
		Headers:   flattenHeaders(r.Header),
		Body:      body,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	env, ok := webhooks.DecodeChannelMessage(body)
	if !ok {
		s.writeError(w, undecodableEnvelopeError("payload carries no decodable message"))
		return
	}

	if s.limiter != nil {
		if err := s.limiter.Allow(env.Sender); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				s.writeError(w, throttled.ToConciergeError())
				return
			}
			s.writeError(w, err)
			return
		}
	}

	role := s.resolver.Resolve(r.Context(), env.Sender)
	if !s.scheduler.Enqueue(role, env) {
		s.logger.Warn("dispatch queue rejected envelope", "sender", env.Sender)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success": false,
			"message": "processing queue is full",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"status": "received"})
}

func (s *Server) handlePaymentsWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	err = s.payments.Verify(r.Context(), webhooks.Request{
		Transport: webhooks.TransportPayments,
		Headers:   flattenHeaders(r.Header),
		Body:      body,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	kind, data, ok := webhooks.ClassifyPaymentEvent(body)
	if !ok {
		s.writeError(w, undecodableEnvelopeError("payment payload carries no event type"))
		return
	}
	if kind != PaymentEventCreated {
		s.logger.Debug("ignoring payment event", "kind", kind)
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	phone, _ := data["customer_phone"].(string)
	sender := core.NormalizeSenderID(phone)
	if sender == "" {
		s.logger.Warn("payment event without customer phone", "kind", kind)
		s.writeJSON(w, http.StatusOK, map[string]any{"status": "ignored"})
		return
	}

	env := core.Envelope{
		Sender:     sender,
		Body:       "payment event: " + kind,
		ReceivedAt: time.Now().UTC(),
	}
	if !s.scheduler.Enqueue(core.DefaultRole, env) {
		s.logger.Warn("dispatch queue rejected payment envelope", "sender", sender)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "received"})
}

type agentRequest struct {
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	MediaURL  string `json:"media_url"`
	Timestamp int64  `json:"timestamp"`
}

func (s *Server) handleAgentDispatch(w http.ResponseWriter, r *http.Request) {
	role, err := core.ParseRole(r.PathValue("role"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req agentRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sender := core.NormalizeSenderID(req.Sender)
	if sender == "" {
		s.writeError(w, fmt.Errorf("server: sender is required"))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		s.writeError(w, fmt.Errorf("server: message is required"))
		return
	}

	receivedAt := time.Now().UTC()
	if req.Timestamp > 0 {
		receivedAt = time.Unix(req.Timestamp, 0).UTC()
	}

	response, err := s.dispatcher.Dispatch(r.Context(), role, core.Envelope{
		Sender:     sender,
		Body:       req.Message,
		MediaURL:   strings.TrimSpace(req.MediaURL),
		ReceivedAt: receivedAt,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"reply":   response.Reply,
			"actions": response.Actions,
		},
	})
}

type grantRequest struct {
	Sender    string `json:"sender"`
	Role      string `json:"role"`
	GrantedBy string `json:"granted_by"`
}

func (s *Server) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	msg := command.GrantAccessMessage{
		Sender:    req.Sender,
		Role:      req.Role,
		GrantedBy: req.GrantedBy,
	}
	if err := msg.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	collector := gocmd.NewResult[core.AuthorizationRecord]()
	ctx := gocmd.ContextWithResult(r.Context(), collector)
	if err := s.grant.Execute(ctx, msg); err != nil {
		s.writeError(w, err)
		return
	}

	record, _ := collector.Load()
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"data": map[string]any{
			"id":         record.ID,
			"sender":     record.Sender,
			"role":       string(record.Role),
			"active":     record.Active,
			"granted_by": record.GrantedBy,
		},
	})
}

func (s *Server) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	msg := command.RevokeAccessMessage{Sender: r.PathValue("sender")}
	if err := msg.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.revoke.Execute(r.Context(), msg); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

type setActiveRequest struct {
	Active bool `json:"active"`
}

func (s *Server) handleSetAccessActive(w http.ResponseWriter, r *http.Request) {
	var req setActiveRequest
	if err := decodeJSONBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	msg := command.SetAccessActiveMessage{
		Sender: r.PathValue("sender"),
		Active: req.Active,
	}
	if err := msg.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.setActive.Execute(r.Context(), msg); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	msg := query.ListGrantsMessage{Sender: r.PathValue("sender")}
	if err := msg.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	records, err := s.listGrants.Query(r.Context(), msg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	grants := make([]map[string]any, 0, len(records))
	for _, record := range records {
		grants = append(grants, map[string]any{
			"id":         record.ID,
			"sender":     record.Sender,
			"role":       string(record.Role),
			"active":     record.Active,
			"granted_by": record.GrantedBy,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"grants": grants},
	})
}

func (s *Server) handleResolveRole(w http.ResponseWriter, r *http.Request) {
	msg := query.ResolveRoleMessage{Sender: r.PathValue("sender")}
	if err := msg.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	role, err := s.resolveRole.Query(r.Context(), msg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"role": string(role)},
	})
}

func (s *Server) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	msg := query.CheckAccessMessage{
		Sender: r.PathValue("sender"),
		Role:   r.PathValue("role"),
	}
	if err := msg.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	authorized, err := s.checkAccess.Query(r.Context(), msg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    map[string]any{"authorized": authorized},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response failed", "error", err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	rich := core.MapError(err)
	s.writeJSON(w, rich.Code, map[string]any{
		"success": false,
		"message": rich.Message,
		"code":    rich.TextCode,
	})
}

func undecodableEnvelopeError(message string) error {
	return goerrors.New("server: "+message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ConciergeErrorUndecodableEnvelope)
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("server: invalid request body: %w", err)
	}
	return body, nil
}

func decodeJSONBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("server: invalid request body: %w", err)
	}
	return nil
}

func flattenHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			continue
		}
		out[key] = values[0]
	}
	return out
}

var _ http.Handler = (*Server)(nil)
