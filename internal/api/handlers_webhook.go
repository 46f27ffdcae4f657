package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/shohag/coinhook/internal/config"
	"github.com/shohag/coinhook/internal/metrics"
	"github.com/shohag/coinhook/internal/models"
	"github.com/shohag/coinhook/internal/signing"
	"github.com/shohag/coinhook/internal/webhook"
)

const defaultMaxBodySize = 256 * 1024 // 256KB

type WebhookHandler struct {
	cfg        config.WebhookConfig
	dispatcher *webhook.Dispatcher
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

func NewWebhookHandler(cfg config.WebhookConfig, dispatcher *webhook.Dispatcher, m *metrics.Metrics, log zerolog.Logger) *WebhookHandler {
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = "X-Coinbase-Signature"
	}
	return &WebhookHandler{
		cfg:        cfg,
		dispatcher: dispatcher,
		metrics:    m,
		log:        log,
	}
}

// Receive verifies and dispatches one Coinbase notification. The signature is
// checked against the body bytes exactly as read, before any parsing.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := h.log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
	log.Info().Msg("received webhook event")

	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxBodySize+1))
	if err != nil {
		log.Error().Err(err).Msg("failed to read webhook body")
		writeError(w, http.StatusBadRequest, msgReadFailed)
		return
	}
	if int64(len(body)) > h.cfg.MaxBodySize {
		log.Warn().Int64("limit", h.cfg.MaxBodySize).Msg("webhook body too large")
		h.metrics.ObserveRejection(metrics.ReasonBodyTooLarge)
		writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		return
	}

	if h.cfg.VerificationEnabled {
		ok, verr := signing.VerifyDetailed(r.Header.Get(h.cfg.SignatureHeader), body, h.cfg.Secret)
		if verr != nil {
			log.Error().Err(verr).Msg("error verifying signature")
		}
		if !ok {
			log.Error().Msg("invalid webhook signature")
			h.metrics.ObserveRejection(metrics.ReasonSignature)
			writeError(w, http.StatusUnauthorized, msgInvalidSignature)
			return
		}
		log.Info().Msg("webhook signature verified")
	} else {
		log.Warn().Msg("no webhook secret configured, signature verification skipped")
		h.metrics.WebhookVerificationSkipped.Inc()
	}

	evt, err := models.ParseEvent(body)
	if err != nil {
		log.Warn().Err(err).Msg("malformed webhook body")
		h.metrics.ObserveRejection(metrics.ReasonMalformed)
		writeError(w, http.StatusBadRequest, msgInvalidBody)
		return
	}

	log = log.With().
		Str("receipt_id", evt.ReceiptID).
		Str("event_type", evt.Type).
		Logger()
	log.Info().RawJSON("event", body).Msg("event received")

	label := metrics.OtherEventType
	if h.dispatcher.Handles(evt.Type) {
		label = evt.Type
	}

	handled, err := h.dispatcher.Dispatch(r.Context(), log, evt)
	if err != nil {
		log.Error().Err(err).Msg("event handler failed")
		h.metrics.ObserveEvent(label, metrics.OutcomeFailed)
		writeError(w, http.StatusInternalServerError, msgProcessFailed)
		return
	}

	outcome := metrics.OutcomeHandled
	if !handled {
		outcome = metrics.OutcomeUnhandled
	}
	h.metrics.ObserveEvent(label, outcome)

	writeReceived(w)
}
