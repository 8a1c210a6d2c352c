// Package api отдаёт REST API управления сценариями.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/evil-zenix/business-bot-project/internal/domain"
	httpinfra "github.com/evil-zenix/business-bot-project/internal/infra/http"
	"github.com/evil-zenix/business-bot-project/internal/usecase/scenarios"
)

// ScenarioJSON описывает сценарий в ответах API.
type ScenarioJSON struct {
	ID                   int64           `json:"id"`
	TriggerType          string          `json:"trigger_type"`
	TriggerValue         string          `json:"trigger_value"`
	ResponseText         string          `json:"response_text"`
	Buttons              []domain.Button `json:"buttons"`
	ReminderDelayMinutes *int            `json:"reminder_delay_minutes"`
	IsActive             bool            `json:"is_active"`
	CreatedAt            time.Time       `json:"created_at"`
}

// CreateRequest описывает тело POST /scenarios.
type CreateRequest struct {
	TriggerType          string          `json:"trigger_type"`
	TriggerValue         string          `json:"trigger_value"`
	ResponseText         string          `json:"response_text"`
	Buttons              []domain.Button `json:"buttons"`
	ReminderDelayMinutes *int            `json:"reminder_delay_minutes"`
}

// PatchRequest описывает тело PATCH /scenarios/{id}. Отсутствующие поля не меняются,
// reminder_delay_minutes = 0 отключает напоминание.
type PatchRequest struct {
	TriggerType          *string          `json:"trigger_type"`
	TriggerValue         *string          `json:"trigger_value"`
	ResponseText         *string          `json:"response_text"`
	Buttons              *[]domain.Button `json:"buttons"`
	ReminderDelayMinutes *int             `json:"reminder_delay_minutes"`
}

// ReminderDispatchJSON описывает запись журнала напоминаний в API.
type ReminderDispatchJSON struct {
	ScenarioID   int64     `json:"scenario_id"`
	ChatID       int64     `json:"chat_id"`
	ConnectionID string    `json:"connection_id"`
	SentAt       time.Time `json:"sent_at"`
}

// Handler обслуживает /api/v1/scenarios и журнал напоминаний.
type Handler struct {
	scenarios *scenarios.Service
	history   domain.ReminderHistoryRepo
	log       zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(svc *scenarios.Service, history domain.ReminderHistoryRepo, logger zerolog.Logger) *Handler {
	return &Handler{scenarios: svc, history: history, log: logger.With().Str("component", "api").Logger()}
}

// Routes монтирует маршруты под защитой токена.
func (h *Handler) Routes(r chi.Router, token string) {
	r.Route("/api/v1/scenarios", func(r chi.Router) {
		r.Use(httpinfra.TokenAuthMiddleware(token))
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Patch("/{id}", h.patch)
		r.Delete("/{id}", h.delete)
		r.Post("/{id}/toggle", h.toggle)
	})
	r.Route("/api/v1/reminders", func(r chi.Router) {
		r.Use(httpinfra.TokenAuthMiddleware(token))
		r.Get("/", h.reminders)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	items, err := h.scenarios.List(r.Context(), activeOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]ScenarioJSON, 0, len(items))
	for _, sc := range items {
		out = append(out, toJSON(sc))
	}
	httpinfra.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !decode(w, r, &req) {
		return
	}
	draft := domain.ScenarioDraft{
		TriggerKind:  domain.TriggerKind(req.TriggerType),
		TriggerValue: req.TriggerValue,
		ResponseText: req.ResponseText,
		Buttons:      req.Buttons,
	}
	if req.ReminderDelayMinutes != nil {
		draft.Reminder = &domain.Reminder{DelayMinutes: *req.ReminderDelayMinutes}
	}
	sc, err := h.scenarios.Create(r.Context(), draft)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusCreated, toJSON(sc))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sc, err := h.scenarios.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toJSON(sc))
}

func (h *Handler) patch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req PatchRequest
	if !decode(w, r, &req) {
		return
	}
	patch := domain.ScenarioPatch{
		TriggerValue:  req.TriggerValue,
		ResponseText:  req.ResponseText,
		Buttons:       req.Buttons,
		ReminderDelay: req.ReminderDelayMinutes,
	}
	if req.TriggerType != nil {
		kind := domain.TriggerKind(*req.TriggerType)
		patch.TriggerKind = &kind
	}
	sc, changed, err := h.scenarios.Update(r.Context(), id, patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !changed {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toJSON(sc))
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.scenarios.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) toggle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sc, err := h.scenarios.Toggle(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, toJSON(sc))
}

func (h *Handler) reminders(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	if err != nil || chatID == 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	items, err := h.history.ListReminderDispatches(r.Context(), chatID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]ReminderDispatchJSON, 0, len(items))
	for _, rec := range items {
		out = append(out, ReminderDispatchJSON{
			ScenarioID:   rec.ScenarioID,
			ChatID:       rec.ChatID,
			ConnectionID: rec.ConnectionID,
			SentAt:       rec.SentAt,
		})
	}
	httpinfra.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *domain.ValidationError
	switch {
	case errors.As(err, &vErr):
		httpinfra.WriteJSON(w, http.StatusUnprocessableEntity, httpinfra.ErrorResponse{Error: vErr.Reason, Field: vErr.Field})
	case errors.Is(err, domain.ErrNotFound):
		httpinfra.WriteError(w, http.StatusNotFound, "scenario not found")
	default:
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("api: ошибка запроса")
		httpinfra.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpinfra.WriteError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func toJSON(sc domain.Scenario) ScenarioJSON {
	out := ScenarioJSON{
		ID:           sc.ID,
		TriggerType:  string(sc.TriggerKind),
		TriggerValue: sc.TriggerValue,
		ResponseText: sc.ResponseText,
		Buttons:      sc.Buttons,
		IsActive:     sc.Active,
		CreatedAt:    sc.CreatedAt,
	}
	if out.Buttons == nil {
		out.Buttons = []domain.Button{}
	}
	if sc.HasReminder() {
		delay := sc.Reminder.DelayMinutes
		out.ReminderDelayMinutes = &delay
	}
	return out
}
