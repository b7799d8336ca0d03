// Package api exposes the manual single-item triggers over HTTP. Unlike the
// scheduled jobs, every failure is reported back to the caller.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/palma21/linkedin-outreach-bot/internal/dispatch"
	"github.com/palma21/linkedin-outreach-bot/internal/leads"
	"github.com/palma21/linkedin-outreach-bot/internal/linkedapi"
	"github.com/palma21/linkedin-outreach-bot/internal/models"
	"github.com/palma21/linkedin-outreach-bot/internal/poller"
	"github.com/palma21/linkedin-outreach-bot/internal/ratelimit"
	"github.com/palma21/linkedin-outreach-bot/internal/scheduler"
	"github.com/palma21/linkedin-outreach-bot/internal/storage"
)

// jobRunTimeout bounds a manually triggered job run
const jobRunTimeout = 2 * time.Hour

// Store is what the handlers read directly
type Store interface {
	storage.PostStore
	storage.LeadStore
	storage.QueueStore
	Ping(ctx context.Context) error
}

// Deps groups the handler's collaborators. The dispatcher and poller should
// be built without pacing; they share the account gate with the scheduled ones.
type Deps struct {
	Store      Store
	Clients    linkedapi.ClientSource
	Poller     *poller.Poller
	Dispatcher *dispatch.Dispatcher
	Leads      *leads.Service
	Limiter    *ratelimit.Limiter
	Jobs       *scheduler.Jobs
}

// Handler serves the manual trigger routes
type Handler struct {
	Deps
}

// NewHandler creates the handler
func NewHandler(deps Deps) *Handler {
	return &Handler{Deps: deps}
}

// Router registers every route
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.HandleFunc("/metrics", h.metrics).Methods(http.MethodGet)

	router.HandleFunc("/posts/{id}/poll", h.pollPost).Methods(http.MethodPost)

	router.HandleFunc("/leads/{id}/check-connection", h.checkConnection).Methods(http.MethodPost)
	router.HandleFunc("/leads/{id}/send-connection", h.sendConnection).Methods(http.MethodPost)
	router.HandleFunc("/leads/{id}/send-dm", h.sendDM).Methods(http.MethodPost)
	router.HandleFunc("/leads/{id}/preview-dm", h.previewDM).Methods(http.MethodPost)
	router.HandleFunc("/leads/{id}/queue-dm", h.queueDM).Methods(http.MethodPost)
	router.HandleFunc("/leads/{id}/mark-sent", h.markSent).Methods(http.MethodPost)

	router.HandleFunc("/pending-dms/{id}", h.editPendingDM).Methods(http.MethodPut)
	router.HandleFunc("/pending-dms/{id}/reject", h.rejectPendingDM).Methods(http.MethodPost)
	router.HandleFunc("/pending-replies/{id}/send", h.sendPendingReply).Methods(http.MethodPost)
	router.HandleFunc("/pending-replies/{id}/reject", h.rejectPendingReply).Methods(http.MethodPost)

	router.HandleFunc("/accounts/{id}/usage", h.usage).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{name}/run", h.runJob).Methods(http.MethodPost)

	return router
}

type textRequest struct {
	Text string `json:"text"`
}

type outcomeResponse struct {
	Outcome dispatch.Outcome `json:"outcome"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Jobs.Metrics.Snapshot())
}

func (h *Handler) pollPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	post, err := h.Store.GetPost(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.Poller.PollPost(ctx, h.Jobs.Settings(ctx), *post)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// leadClient loads the lead and its account's automation client
func (h *Handler) leadClient(ctx context.Context, leadID string) (*models.Lead, linkedapi.Automation, error) {
	lead, err := h.Store.GetLead(ctx, leadID)
	if err != nil {
		return nil, nil, err
	}
	client, err := h.Clients.ClientFor(ctx, lead.AccountID)
	if err != nil {
		return nil, nil, err
	}
	return lead, client, nil
}

func (h *Handler) checkConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lead, client, err := h.leadClient(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := client.CheckConnection(ctx, lead.LinkedInURL)
	if stampErr := h.Store.TouchLeadCheck(ctx, lead.ID, time.Now().UTC()); stampErr != nil {
		logrus.WithError(stampErr).WithField("lead_id", lead.ID).Warn("Failed to stamp lead check")
	}
	if err != nil {
		writeError(w, err)
		return
	}
	updated, changed, err := h.Leads.UpdateConnectionStatus(ctx, lead, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"observed": status, "changed": changed, "lead": updated})
}

func (h *Handler) sendConnection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lead, client, err := h.leadClient(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	outcome, err := h.Dispatcher.SendConnectionRequest(ctx, h.Jobs.Settings(ctx), client, lead.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Outcome: outcome})
}

func (h *Handler) sendDM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lead, client, err := h.leadClient(ctx, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	outcome, err := h.Dispatcher.SendDM(ctx, h.Jobs.Settings(ctx), client, lead.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Outcome: outcome})
}

func (h *Handler) previewDM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	text, err := h.Dispatcher.PreviewDM(ctx, h.Jobs.Settings(ctx), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, text)
}

func (h *Handler) queueDM(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dm, created, err := h.Dispatcher.QueueDM(ctx, h.Jobs.Settings(ctx), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dm)
}

func (h *Handler) markSent(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Join(models.ErrValidation, err))
		return
	}
	if err := h.Dispatcher.MarkDMSentManually(r.Context(), mux.Vars(r)["id"], req.Text); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Outcome: dispatch.OutcomeSent})
}

func (h *Handler) editPendingDM(w http.ResponseWriter, r *http.Request) {
	var req textRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Join(models.ErrValidation, err))
		return
	}
	dm, err := h.Dispatcher.EditPendingDM(r.Context(), mux.Vars(r)["id"], req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dm)
}

func (h *Handler) rejectPendingDM(w http.ResponseWriter, r *http.Request) {
	if err := h.Dispatcher.RejectPendingDM(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sendPendingReply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	reply, err := h.Store.GetPendingReply(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	post, err := h.Store.GetPost(ctx, reply.PostID)
	if err != nil {
		writeError(w, err)
		return
	}
	client, err := h.Clients.ClientFor(ctx, post.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	outcome, err := h.Dispatcher.SendPendingReply(ctx, h.Jobs.Settings(ctx), client, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeResponse{Outcome: outcome})
}

func (h *Handler) rejectPendingReply(w http.ResponseWriter, r *http.Request) {
	if err := h.Dispatcher.RejectPendingReply(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	usage, err := h.Limiter.GetUsage(ctx, ratelimit.LimitsFrom(h.Jobs.Settings(ctx)), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"day": h.Limiter.Today(), "usage": usage})
}

func (h *Handler) runJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if !scheduler.IsJob(name) {
		writeError(w, models.ErrNotFound)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobRunTimeout)
		defer cancel()
		if _, err := h.Jobs.Run(ctx, name); err != nil {
			logrus.WithError(err).WithField("job", name).Error("Manual job run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Job triggered", "job": name})
}

// StatusFor maps the error taxonomy onto HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrAuth), errors.Is(err, models.ErrNoCredential):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrProviderRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, models.ErrWorkflow):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrQuotaExhausted), errors.Is(err, models.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logrus.WithError(err).Error("Manual request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("Failed to write response")
	}
}
