package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"

	"log/slog"

	"github.com/gather-app/gather/internal/notify"
	"github.com/gather-app/gather/internal/survey"
	"github.com/gather-app/gather/internal/tokens"
	"github.com/gather-app/gather/pkg/models"
	"github.com/gather-app/gather/pkg/repository"
	"github.com/gorilla/mux"
)

// Enqueuer hands jobs to the background queue. Satisfied by the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, typ string, payload any, priority int, maxAttempts int) (int64, error)
}

type EventsHandler struct {
	events    repository.EventRepo
	surveys   repository.SurveyRepo
	questions repository.QuestionRepo
	service   *survey.Service
	queue     Enqueuer
	baseURL   string
}

// NewEventsHandler wires the public event endpoints. queue may be nil, in
// which case no confirmation notifications are sent.
func NewEventsHandler(events repository.EventRepo, surveys repository.SurveyRepo, questions repository.QuestionRepo, service *survey.Service, queue Enqueuer, baseURL string) *EventsHandler {
	return &EventsHandler{
		events:    events,
		surveys:   surveys,
		questions: questions,
		service:   service,
		queue:     queue,
		baseURL:   baseURL,
	}
}

type questionPublic struct {
	ID         int64               `json:"id"`
	Type       models.QuestionType `json:"question_type"`
	Text       string              `json:"question_text"`
	Options    json.RawMessage     `json:"options"`
	AllowOther bool                `json:"allow_other"`
	Required   bool                `json:"required"`
	Order      int64               `json:"order"`
}

func questionToPublic(q *models.Question) questionPublic {
	return questionPublic{
		ID:         q.ID,
		Type:       q.Type,
		Text:       q.Text,
		Options:    q.Options,
		AllowOther: q.AllowOther,
		Required:   q.Required,
		Order:      q.Order,
	}
}

type surveyPublicResponse struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description *string          `json:"description"`
	Questions   []questionPublic `json:"questions"`
}

type eventPublicResponse struct {
	ID            int64                 `json:"id"`
	Title         string                `json:"title"`
	Description   *string               `json:"description"`
	Date          string                `json:"date"`
	Location      *string               `json:"location"`
	HasAccessCode bool                  `json:"has_access_code"`
	ShowRSVPList  bool                  `json:"show_rsvp_list"`
	Survey        *surveyPublicResponse `json:"survey"`
}

type eventStatsResponse struct {
	EventTitle       string  `json:"event_title"`
	EventDescription *string `json:"event_description"`
	EventDate        string  `json:"event_date"`
	EventLocation    *string `json:"event_location"`
	TotalRSVPs       int64   `json:"total_rsvps"`
	YesCount         int64   `json:"yes_count"`
	YesAttendees     int64   `json:"yes_attendees"`
	NoCount          int64   `json:"no_count"`
	MaybeCount       int64   `json:"maybe_count"`
	MaybeAttendees   int64   `json:"maybe_attendees"`
	HasSurvey        bool    `json:"has_survey"`
	ShowRSVPList     bool    `json:"show_rsvp_list"`

	Attendees *survey.AttendeeBreakdown `json:"attendees,omitempty"`
}

type rsvpRequest struct {
	Identity        string        `json:"identity"`
	Response        string        `json:"response"`
	NumAttendees    *int64        `json:"num_attendees"`
	Email           *string       `json:"email"`
	Phone           *string       `json:"phone"`
	Comment         *string       `json:"comment"`
	AccessCode      string        `json:"access_code"`
	SurveyResponses map[int64]any `json:"survey_responses"`
}

type rsvpResponse struct {
	ID           int64               `json:"id"`
	SurveyID     int64               `json:"survey_id"`
	Identity     string              `json:"identity"`
	Response     models.RSVPResponse `json:"response"`
	NumAttendees *int64              `json:"num_attendees"`
	Email        *string             `json:"email"`
	Phone        *string             `json:"phone"`
	Comment      *string             `json:"comment"`
	SubmittedAt  string              `json:"submitted_at"`
}

type rsvpWithEditToken struct {
	rsvpResponse
	EditToken string `json:"edit_token"`
}

func rsvpFromSubmission(sub *models.Submission) rsvpResponse {
	identity := ""
	if sub.Identity != nil {
		identity = *sub.Identity
	}
	var response models.RSVPResponse
	if sub.RSVP != nil {
		response = *sub.RSVP
	}
	return rsvpResponse{
		ID:           sub.ID,
		SurveyID:     sub.SurveyID,
		Identity:     identity,
		Response:     response,
		NumAttendees: sub.NumAttendees,
		Email:        sub.Email,
		Phone:        sub.Phone,
		Comment:      sub.Comment,
		SubmittedAt:  isoTime(sub.SubmittedAt),
	}
}

// eventByToken resolves the invitation token or writes a 404.
func (h *EventsHandler) eventByToken(w http.ResponseWriter, r *http.Request) *models.Event {
	token := mux.Vars(r)["token"]
	ev, err := h.events.GetByInvitationToken(r.Context(), token)
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

// authorize checks the event's access code when one is set. Writes a 403
// with msg on rejection.
func authorize(w http.ResponseWriter, ev *models.Event, code, msg string) bool {
	if ev.AccessCodeHash == nil {
		return true
	}
	if !tokens.VerifyAccessCode(code, *ev.AccessCodeHash) {
		writeError(w, msg, http.StatusForbidden)
		return false
	}
	return true
}

// Get returns the event with its survey and ordered questions for guests
// holding the invitation link.
func (h *EventsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ev := h.eventByToken(w, r)
	if ev == nil {
		return
	}
	if !authorize(w, ev, r.URL.Query().Get("access_code"), "Access code required") {
		return
	}

	ctx := r.Context()
	resp := eventPublicResponse{
		ID:            ev.ID,
		Title:         ev.Title,
		Description:   ev.Description,
		Date:          isoTime(ev.Date),
		Location:      ev.Location,
		HasAccessCode: ev.AccessCodeHash != nil,
		ShowRSVPList:  ev.ShowRSVPList,
	}

	sv, err := h.surveys.GetSurveyByID(ctx, ev.SurveyID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if sv != nil {
		qs, err := h.questions.ListQuestionsBySurvey(ctx, sv.ID)
		if err != nil {
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		pub := make([]questionPublic, 0, len(qs))
		for i := range qs {
			pub = append(pub, questionToPublic(&qs[i]))
		}
		resp.Survey = &surveyPublicResponse{ID: sv.ID, Title: sv.Title, Description: sv.Description, Questions: pub}
	}

	writeJSON(w, resp, http.StatusOK)
}

// Stats returns aggregate RSVP counts, with the attendee breakdown only when
// the event publishes its list.
func (h *EventsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ev := h.eventByToken(w, r)
	if ev == nil {
		return
	}
	if !authorize(w, ev, r.URL.Query().Get("access_code"), "Access code required") {
		return
	}

	st, err := h.service.Stats(r.Context(), ev.SurveyID, ev.ShowRSVPList)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, eventStatsResponse{
		EventTitle:       ev.Title,
		EventDescription: ev.Description,
		EventDate:        isoTime(ev.Date),
		EventLocation:    ev.Location,
		TotalRSVPs:       st.TotalRSVPs,
		YesCount:         st.YesCount,
		YesAttendees:     st.YesAttendees,
		NoCount:          st.NoCount,
		MaybeCount:       st.MaybeCount,
		MaybeAttendees:   st.MaybeAttendees,
		HasSurvey:        true,
		ShowRSVPList:     ev.ShowRSVPList,
		Attendees:        st.Attendees,
	}, http.StatusOK)
}

// CreateRSVP stores a guest's RSVP with any survey answers and returns the
// one-time edit token. A confirmation notification is queued when the guest
// left an email; queue trouble never fails the request.
func (h *EventsHandler) CreateRSVP(w http.ResponseWriter, r *http.Request) {
	ev := h.eventByToken(w, r)
	if ev == nil {
		return
	}

	var req rsvpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if !authorize(w, ev, req.AccessCode, "Invalid or missing access code") {
		return
	}

	if msg := validateRSVP(&req); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	fields := rsvpFields(&req)
	result, err := h.service.CreateSubmission(r.Context(), ev.SurveyID, req.SurveyResponses, fields)
	if err != nil {
		writeSubmissionError(w, err)
		return
	}

	h.queueConfirmation(r.Context(), ev, result)

	writeJSON(w, rsvpWithEditToken{
		rsvpResponse: rsvpFromSubmission(result.Submission),
		EditToken:    result.EditToken,
	}, http.StatusCreated)
}

// MyRSVP looks up the caller's submission by edit token.
func (h *EventsHandler) MyRSVP(w http.ResponseWriter, r *http.Request) {
	ev := h.eventByToken(w, r)
	if ev == nil {
		return
	}

	sub, err := h.service.GetByEditToken(r.Context(), ev.SurveyID, r.URL.Query().Get("edit_token"))
	if err != nil {
		if errors.Is(err, survey.ErrNotFound) {
			writeError(w, "RSVP not found or invalid edit token", http.StatusNotFound)
			return
		}
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, rsvpFromSubmission(sub), http.StatusOK)
}

// UpdateRSVP replaces the RSVP fields of the caller's submission and, when
// survey_responses is present, every stored answer.
func (h *EventsHandler) UpdateRSVP(w http.ResponseWriter, r *http.Request) {
	ev := h.eventByToken(w, r)
	if ev == nil {
		return
	}

	var req rsvpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if msg := validateRSVP(&req); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	sub, err := h.service.UpdateSubmission(r.Context(), ev.SurveyID, r.URL.Query().Get("edit_token"), rsvpFields(&req), req.SurveyResponses)
	if err != nil {
		writeSubmissionError(w, err)
		return
	}

	writeJSON(w, rsvpFromSubmission(sub), http.StatusOK)
}

func (h *EventsHandler) queueConfirmation(ctx context.Context, ev *models.Event, result *survey.CreateResult) {
	if h.queue == nil {
		return
	}
	sub := result.Submission
	if sub.Email == nil || *sub.Email == "" {
		return
	}

	identity := ""
	if sub.Identity != nil {
		identity = *sub.Identity
	}
	response := ""
	if sub.RSVP != nil {
		response = string(*sub.RSVP)
	}
	params := notify.ConfirmationParams{
		To:           *sub.Email,
		GuestName:    identity,
		EventTitle:   ev.Title,
		Response:     response,
		NumAttendees: sub.NumAttendees,
		EditURL:      notify.EditURL(h.baseURL, ev.InvitationToken, result.EditToken),
	}
	if _, err := h.queue.Enqueue(ctx, notify.JobTypeRSVPConfirmation, params, 100, 0); err != nil {
		logger.Warn("enqueue rsvp confirmation", slog.Any("err", err), slog.Int64("submission_id", sub.ID))
	}
}

func rsvpFields(req *rsvpRequest) *survey.RSVPFields {
	return &survey.RSVPFields{
		Identity:     req.Identity,
		Response:     models.RSVPResponse(req.Response),
		NumAttendees: req.NumAttendees,
		Email:        req.Email,
		Phone:        req.Phone,
		Comment:      req.Comment,
	}
}

// validateRSVP enforces the request field bounds. The semantic rules
// (attendee counts per response kind, answer validity) live in the
// submission service.
func validateRSVP(req *rsvpRequest) string {
	if req.Identity == "" {
		return "identity is required"
	}
	if len(req.Identity) > 500 {
		return "identity must be at most 500 characters"
	}
	if req.NumAttendees != nil && *req.NumAttendees > 1000 {
		return "num_attendees must be at most 1000"
	}
	if req.Email != nil && *req.Email != "" {
		if _, err := mail.ParseAddress(*req.Email); err != nil || len(*req.Email) > 254 {
			return "invalid email address"
		}
	}
	if req.Phone != nil && len(*req.Phone) > 50 {
		return "phone must be at most 50 characters"
	}
	if req.Comment != nil && len(*req.Comment) > 2000 {
		return "comment must be at most 2000 characters"
	}
	if len(req.AccessCode) > 100 {
		return "access_code must be at most 100 characters"
	}
	return ""
}

// writeSubmissionError maps submission service failures onto API statuses.
func writeSubmissionError(w http.ResponseWriter, err error) {
	var verr *survey.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, survey.ErrBadRSVP),
		errors.Is(err, survey.ErrAttendeesRequired),
		errors.Is(err, survey.ErrAttendeesInvalid):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, survey.ErrNotFound):
		writeError(w, "RSVP not found or invalid edit token", http.StatusNotFound)
	default:
		writeError(w, "Internal server error", http.StatusInternalServerError)
	}
}
