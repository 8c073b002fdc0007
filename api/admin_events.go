package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/gather-app/gather/internal/tokens"
	"github.com/gather-app/gather/pkg/models"
	"github.com/gather-app/gather/pkg/repository"
	"github.com/gorilla/mux"
)

type AdminEventsHandler struct {
	events      repository.EventRepo
	surveys     repository.SurveyRepo
	submissions repository.SubmissionRepo
	bcryptCost  int
}

func NewAdminEventsHandler(events repository.EventRepo, surveys repository.SurveyRepo, submissions repository.SubmissionRepo, bcryptCost int) *AdminEventsHandler {
	return &AdminEventsHandler{
		events:      events,
		surveys:     surveys,
		submissions: submissions,
		bcryptCost:  bcryptCost,
	}
}

type eventAdminResponse struct {
	ID              int64   `json:"id"`
	Title           string  `json:"title"`
	Description     *string `json:"description"`
	Date            string  `json:"date"`
	Location        *string `json:"location"`
	InvitationToken string  `json:"invitation_token"`
	HasAccessCode   bool    `json:"has_access_code"`
	ShowRSVPList    bool    `json:"show_rsvp_list"`
	SurveyID        int64   `json:"survey_id"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

func eventToAdminResponse(e *models.Event) eventAdminResponse {
	return eventAdminResponse{
		ID:              e.ID,
		Title:           e.Title,
		Description:     e.Description,
		Date:            isoTime(e.Date),
		Location:        e.Location,
		InvitationToken: e.InvitationToken,
		HasAccessCode:   e.AccessCodeHash != nil,
		ShowRSVPList:    e.ShowRSVPList,
		SurveyID:        e.SurveyID,
		CreatedAt:       isoTime(e.CreatedAt),
		UpdatedAt:       isoTime(e.UpdatedAt),
	}
}

type eventCreateRequest struct {
	Title             string                  `json:"title"`
	Description       *string                 `json:"description"`
	Date              time.Time               `json:"date"`
	Location          *string                 `json:"location"`
	AccessCode        string                  `json:"access_code"`
	ShowRSVPList      bool                    `json:"show_rsvp_list"`
	SurveyID          *int64                  `json:"survey_id"`
	SurveyDescription *string                 `json:"survey_description"`
	SurveyQuestions   []questionCreateRequest `json:"survey_questions"`
}

type eventUpdateRequest struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Date         *time.Time `json:"date"`
	Location     *string    `json:"location"`
	AccessCode   *string    `json:"access_code"`
	ShowRSVPList *bool      `json:"show_rsvp_list"`
	SurveyID     *int64     `json:"survey_id"`
}

// eventByID resolves the path id or writes the error response.
func (h *AdminEventsHandler) eventByID(w http.ResponseWriter, r *http.Request) *models.Event {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, "Invalid event id", http.StatusBadRequest)
		return nil
	}
	ev, err := h.events.GetEventByID(r.Context(), id)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return nil
	}
	if ev == nil {
		writeError(w, "Event not found", http.StatusNotFound)
		return nil
	}
	return ev
}

func (h *AdminEventsHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]eventAdminResponse, 0, len(events))
	for i := range events {
		out = append(out, eventToAdminResponse(&events[i]))
	}
	writeJSON(w, out, http.StatusOK)
}

// Create makes an event with its survey. The survey is either an existing
// one referenced by survey_id, a new one built from survey_questions, or a
// fresh empty one; events never exist without a survey.
func (h *AdminEventsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req eventCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if msg := validateEventFields(req.Title, req.Description, req.Location, req.AccessCode); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}
	if req.Date.IsZero() {
		writeError(w, "date is required", http.StatusBadRequest)
		return
	}
	if req.SurveyID != nil && (req.SurveyDescription != nil || len(req.SurveyQuestions) > 0) {
		writeError(w, "Cannot specify both survey_id and survey creation fields. Use either survey_id to link existing survey, or survey_description/survey_questions to create new survey.", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	invitationToken, err := tokens.NewUnique(ctx, func(ctx context.Context, token string) (bool, error) {
		ev, err := h.events.GetByInvitationToken(ctx, token)
		return ev != nil, err
	})
	if err != nil {
		writeError(w, "Failed to create event", http.StatusInternalServerError)
		return
	}

	adminID, _ := ctx.Value(CtxAdminID).(int64)
	ev := &models.Event{
		Title:           req.Title,
		Description:     req.Description,
		Date:            req.Date.UTC(),
		Location:        req.Location,
		InvitationToken: invitationToken,
		ShowRSVPList:    req.ShowRSVPList,
		CreatedBy:       adminID,
	}
	if req.AccessCode != "" {
		hash, err := tokens.Hash(req.AccessCode, h.bcryptCost)
		if err != nil {
			writeError(w, "Failed to create event", http.StatusInternalServerError)
			return
		}
		ev.AccessCodeHash = &hash
	}

	var sv *models.Survey
	var questions []models.Question
	if req.SurveyID != nil {
		existing, err := h.surveys.GetSurveyByID(ctx, *req.SurveyID)
		if err != nil {
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if existing == nil {
			writeError(w, "Survey with id "+strconv.FormatInt(*req.SurveyID, 10)+" not found", http.StatusNotFound)
			return
		}
		ev.SurveyID = existing.ID
	} else {
		surveyToken, err := tokens.NewUnique(ctx, func(ctx context.Context, token string) (bool, error) {
			s, err := h.surveys.GetBySurveyToken(ctx, token)
			return s != nil, err
		})
		if err != nil {
			writeError(w, "Failed to create event", http.StatusInternalServerError)
			return
		}
		sv = &models.Survey{
			Title:       req.Title + " - RSVP Survey",
			Description: req.SurveyDescription,
			SurveyToken: surveyToken,
		}
		for idx, qreq := range req.SurveyQuestions {
			if msg := validateQuestionFields(ctx, qreq.Type, qreq.Text, qreq.Options); msg != "" {
				writeError(w, msg, http.StatusBadRequest)
				return
			}
			questions = append(questions, questionFromRequest(&qreq, int64(idx+1)))
		}
	}

	if _, err := h.events.CreateEventWithSurvey(ctx, ev, sv, questions); err != nil {
		logger.Error("create event", slog.Any("err", err))
		writeError(w, "Failed to create event", http.StatusInternalServerError)
		return
	}

	writeJSON(w, eventToAdminResponse(ev), http.StatusCreated)
}

func (h *AdminEventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev := h.eventByID(w, r)
	if ev == nil {
		return
	}
	writeJSON(w, eventToAdminResponse(ev), http.StatusOK)
}

// Update applies the provided fields. An empty access_code clears the code;
// a non-empty one is re-hashed.
func (h *AdminEventsHandler) Update(w http.ResponseWriter, r *http.Request) {
	ev := h.eventByID(w, r)
	if ev == nil {
		return
	}

	var req eventUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if req.Title != nil {
		ev.Title = *req.Title
	}
	if req.Description != nil {
		ev.Description = req.Description
	}
	if req.Date != nil {
		ev.Date = req.Date.UTC()
	}
	if req.Location != nil {
		ev.Location = req.Location
	}
	if req.ShowRSVPList != nil {
		ev.ShowRSVPList = *req.ShowRSVPList
	}

	title := ev.Title
	var accessCode string
	if req.AccessCode != nil {
		accessCode = *req.AccessCode
	}
	if msg := validateEventFields(title, ev.Description, ev.Location, accessCode); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	if req.AccessCode != nil {
		if *req.AccessCode == "" {
			ev.AccessCodeHash = nil
		} else {
			hash, err := tokens.Hash(*req.AccessCode, h.bcryptCost)
			if err != nil {
				writeError(w, "Failed to update event", http.StatusInternalServerError)
				return
			}
			ev.AccessCodeHash = &hash
		}
	}

	if req.SurveyID != nil {
		existing, err := h.surveys.GetSurveyByID(ctx, *req.SurveyID)
		if err != nil {
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if existing == nil {
			writeError(w, "Survey with id "+strconv.FormatInt(*req.SurveyID, 10)+" not found", http.StatusNotFound)
			return
		}
		ev.SurveyID = existing.ID
	}

	if err := h.events.UpdateEvent(ctx, ev); err != nil {
		logger.Error("update event", slog.Any("err", err))
		writeError(w, "Failed to update event", http.StatusInternalServerError)
		return
	}

	writeJSON(w, eventToAdminResponse(ev), http.StatusOK)
}

// Delete removes the event only. Its survey is unlinked and stays reachable
// by survey token, with questions and submissions intact.
func (h *AdminEventsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ev := h.eventByID(w, r)
	if ev == nil {
		return
	}

	if err := h.events.DeleteEvent(r.Context(), ev.ID); err != nil {
		logger.Error("delete event", slog.Any("err", err))
		writeError(w, "Failed to delete event", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListRSVPs returns the event's submissions that carry an RSVP response,
// newest first.
func (h *AdminEventsHandler) ListRSVPs(w http.ResponseWriter, r *http.Request) {
	ev := h.eventByID(w, r)
	if ev == nil {
		return
	}

	subs, err := h.submissions.ListSubmissionsBySurvey(r.Context(), ev.SurveyID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]rsvpResponse, 0, len(subs))
	for i := range subs {
		if subs[i].RSVP == nil {
			continue
		}
		out = append(out, rsvpFromSubmission(&subs[i]))
	}
	writeJSON(w, out, http.StatusOK)
}

func (h *AdminEventsHandler) DeleteRSVP(w http.ResponseWriter, r *http.Request) {
	ev := h.eventByID(w, r)
	if ev == nil {
		return
	}

	rsvpID, err := strconv.ParseInt(mux.Vars(r)["rsvpID"], 10, 64)
	if err != nil {
		writeError(w, "Invalid RSVP id", http.StatusBadRequest)
		return
	}

	sub, err := h.submissions.GetSubmissionByID(r.Context(), rsvpID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if sub == nil || sub.SurveyID != ev.SurveyID {
		writeError(w, "RSVP not found", http.StatusNotFound)
		return
	}

	if err := h.submissions.DeleteSubmission(r.Context(), sub.ID); err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func validateEventFields(title string, description, location *string, accessCode string) string {
	if title == "" {
		return "title is required"
	}
	if len(title) > 500 {
		return "title must be at most 500 characters"
	}
	if description != nil && len(*description) > 5000 {
		return "description must be at most 5000 characters"
	}
	if location != nil && len(*location) > 500 {
		return "location must be at most 500 characters"
	}
	if len(accessCode) > 72 {
		return "access_code must be at most 72 characters"
	}
	return ""
}
