package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/skcetlabs/portal/pkg/httputil"
	"github.com/skcetlabs/portal/pkg/observability"
	"github.com/skcetlabs/portal/pkg/rbac"
	"github.com/skcetlabs/portal/pkg/users"
)

// Lifecycle event types delivered by the identity provider
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

const maxBodySize = 1 << 20 // 1 MiB

// UserMirror is the slice of the user store the handler writes to
type UserMirror interface {
	Upsert(ctx context.Context, user users.UserRecord) error
	Update(ctx context.Context, user users.UserRecord) error
	Delete(ctx context.Context, externalID string) error
}

// event is the provider's delivery envelope
type event struct {
	Type string    `json:"type"`
	Data eventData `json:"data"`
}

type eventData struct {
	ID             string `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	UnsafeMetadata struct {
		Role string `json:"role"`
	} `json:"unsafe_metadata"`
	PublicMetadata struct {
		Role string `json:"role"`
	} `json:"public_metadata"`
}

func (d eventData) record() users.UserRecord {
	email := ""
	if len(d.EmailAddresses) > 0 {
		email = d.EmailAddresses[0].EmailAddress
	}
	role := d.UnsafeMetadata.Role
	if role == "" {
		role = d.PublicMetadata.Role
	}
	return users.UserRecord{
		ExternalID: d.ID,
		Email:      email,
		FirstName:  d.FirstName,
		LastName:   d.LastName,
		Role:       rbac.Role(role),
	}
}

// Handler receives lifecycle deliveries and applies them to the user mirror
type Handler struct {
	verifier *Verifier
	store    UserMirror
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewHandler creates the webhook handler
func NewHandler(verifier *Verifier, store UserMirror, logger *observability.Logger) *Handler {
	return &Handler{
		verifier: verifier,
		store:    store,
		logger:   logger,
	}
}

// WithMetrics attaches webhook event metrics
func (h *Handler) WithMetrics(metrics *observability.Metrics) *Handler {
	h.metrics = metrics
	return h
}

// ServeHTTP verifies the delivery signature, then dispatches by event type.
// Unknown event types are acknowledged so the provider does not retry them.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read request body")
		return
	}

	id := r.Header.Get(HeaderID)
	timestamp := r.Header.Get(HeaderTimestamp)
	signature := r.Header.Get(HeaderSignature)

	if err := h.verifier.Verify(id, timestamp, signature, body); err != nil {
		h.observe("unknown", "rejected")
		h.logger.WithError(err).WithField("delivery_id", id).Warn("Webhook signature verification failed")
		httputil.WriteBadRequest(w, "webhook verification failed")
		return
	}

	var evt event
	if err := json.Unmarshal(body, &evt); err != nil {
		h.observe("unknown", "malformed")
		httputil.WriteBadRequest(w, "invalid webhook payload")
		return
	}

	log := h.logger.WithFields(map[string]interface{}{
		"delivery_id": id,
		"event_type":  evt.Type,
		"external_id": evt.Data.ID,
	})

	if evt.Data.ID == "" {
		h.observe(evt.Type, "malformed")
		httputil.WriteBadRequest(w, "webhook payload missing user id")
		return
	}

	ctx := r.Context()
	switch evt.Type {
	case EventUserCreated:
		err = h.store.Upsert(ctx, evt.Data.record())
	case EventUserUpdated:
		err = h.store.Update(ctx, evt.Data.record())
	case EventUserDeleted:
		err = h.store.Delete(ctx, evt.Data.ID)
	default:
		h.observe(evt.Type, "ignored")
		log.Debug("Ignoring unhandled webhook event type")
		httputil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if err != nil {
		h.observe(evt.Type, "error")
		log.WithError(err).Error("Failed to apply webhook event")
		// 500 makes the provider redeliver; the mirror writes are
		// idempotent so the retry is safe
		httputil.WriteErrorMessage(w, http.StatusInternalServerError, "failed to process webhook event")
		return
	}

	h.observe(evt.Type, "processed")
	log.Info("Webhook event applied")
	httputil.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) observe(eventType, result string) {
	if h.metrics != nil {
		h.metrics.ObserveWebhookEvent(eventType, result)
	}
}
