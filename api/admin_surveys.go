package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/gather-app/gather/internal/survey"
	"github.com/gather-app/gather/internal/tokens"
	"github.com/gather-app/gather/pkg/models"
	"github.com/gather-app/gather/pkg/repository"
	"github.com/gorilla/mux"
)

type AdminSurveysHandler struct {
	surveys     repository.SurveyRepo
	questions   repository.QuestionRepo
	submissions repository.SubmissionRepo
	answers     repository.AnswerRepo
}

func NewAdminSurveysHandler(surveys repository.SurveyRepo, questions repository.QuestionRepo, submissions repository.SubmissionRepo, answers repository.AnswerRepo) *AdminSurveysHandler {
	return &AdminSurveysHandler{
		surveys:     surveys,
		questions:   questions,
		submissions: submissions,
		answers:     answers,
	}
}

type questionAdminResponse struct {
	ID         int64               `json:"id"`
	SurveyID   int64               `json:"survey_id"`
	Type       models.QuestionType `json:"question_type"`
	Text       string              `json:"question_text"`
	Options    json.RawMessage     `json:"options"`
	AllowOther bool                `json:"allow_other"`
	Required   bool                `json:"required"`
	Order      int64               `json:"order"`
	CreatedAt  string              `json:"created_at"`
	UpdatedAt  string              `json:"updated_at"`
}

func questionToAdminResponse(q *models.Question) questionAdminResponse {
	return questionAdminResponse{
		ID:         q.ID,
		SurveyID:   q.SurveyID,
		Type:       q.Type,
		Text:       q.Text,
		Options:    q.Options,
		AllowOther: q.AllowOther,
		Required:   q.Required,
		Order:      q.Order,
		CreatedAt:  isoTime(q.CreatedAt),
		UpdatedAt:  isoTime(q.UpdatedAt),
	}
}

type surveyAdminResponse struct {
	ID          int64                   `json:"id"`
	EventID     *int64                  `json:"event_id"`
	Title       string                  `json:"title"`
	Description *string                 `json:"description"`
	SurveyToken string                  `json:"survey_token"`
	Questions   []questionAdminResponse `json:"questions"`
	CreatedAt   string                  `json:"created_at"`
	UpdatedAt   string                  `json:"updated_at"`
}

func surveyToAdminResponse(s *models.Survey, qs []models.Question) surveyAdminResponse {
	out := surveyAdminResponse{
		ID:          s.ID,
		EventID:     s.EventID,
		Title:       s.Title,
		Description: s.Description,
		SurveyToken: s.SurveyToken,
		Questions:   []questionAdminResponse{},
		CreatedAt:   isoTime(s.CreatedAt),
		UpdatedAt:   isoTime(s.UpdatedAt),
	}
	for i := range qs {
		out.Questions = append(out.Questions, questionToAdminResponse(&qs[i]))
	}
	return out
}

type surveyCreateRequest struct {
	EventID     *int64                  `json:"event_id"`
	Title       string                  `json:"title"`
	Description *string                 `json:"description"`
	Questions   []questionCreateRequest `json:"questions"`
}

type surveyUpdateRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	EventID     *int64  `json:"event_id"`
}

type questionCreateRequest struct {
	Type       models.QuestionType `json:"question_type"`
	Text       string              `json:"question_text"`
	Options    json.RawMessage     `json:"options"`
	AllowOther bool                `json:"allow_other"`
	Required   bool                `json:"required"`
	Order      int64               `json:"order"`
}

type questionUpdateRequest struct {
	Type       *models.QuestionType `json:"question_type"`
	Text       *string              `json:"question_text"`
	Options    json.RawMessage      `json:"options"`
	AllowOther *bool                `json:"allow_other"`
	Required   *bool                `json:"required"`
	Order      *int64               `json:"order"`
}

// questionFromRequest builds the model, falling back to the given position
// when no explicit order was sent.
func questionFromRequest(req *questionCreateRequest, fallbackOrder int64) models.Question {
	order := req.Order
	if order <= 0 {
		order = fallbackOrder
	}
	return models.Question{
		Type:       req.Type,
		Text:       req.Text,
		Options:    normalizeOptions(req.Options),
		AllowOther: req.AllowOther,
		Required:   req.Required,
		Order:      order,
	}
}

func normalizeOptions(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func validateQuestionFields(ctx context.Context, qt models.QuestionType, text string, options json.RawMessage) string {
	if !qt.Valid() {
		return "invalid question type"
	}
	if text == "" {
		return "question_text is required"
	}
	if len(text) > 2000 {
		return "question_text must be at most 2000 characters"
	}
	if err := survey.ValidateOptions(ctx, qt, normalizeOptions(options)); err != nil {
		return err.Error()
	}
	return ""
}

func validateSurveyFields(title string, description *string) string {
	if title == "" {
		return "title is required"
	}
	if len(title) > 500 {
		return "title must be at most 500 characters"
	}
	if description != nil && len(*description) > 5000 {
		return "description must be at most 5000 characters"
	}
	return ""
}

// surveyByID resolves the path id or writes the error response.
func (h *AdminSurveysHandler) surveyByID(w http.ResponseWriter, r *http.Request) *models.Survey {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, "Invalid survey id", http.StatusBadRequest)
		return nil
	}
	sv, err := h.surveys.GetSurveyByID(r.Context(), id)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return nil
	}
	if sv == nil {
		writeError(w, "Survey not found", http.StatusNotFound)
		return nil
	}
	return sv
}

func (h *AdminSurveysHandler) withQuestions(w http.ResponseWriter, r *http.Request, sv *models.Survey, status int) {
	qs, err := h.questions.ListQuestionsBySurvey(r.Context(), sv.ID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, surveyToAdminResponse(sv, qs), status)
}

func (h *AdminSurveysHandler) List(w http.ResponseWriter, r *http.Request) {
	surveys, err := h.surveys.ListSurveys(r.Context())
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]surveyAdminResponse, 0, len(surveys))
	for i := range surveys {
		qs, err := h.questions.ListQuestionsBySurvey(r.Context(), surveys[i].ID)
		if err != nil {
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		out = append(out, surveyToAdminResponse(&surveys[i], qs))
	}
	writeJSON(w, out, http.StatusOK)
}

// Create stores a standalone survey with its questions.
func (h *AdminSurveysHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req surveyCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if msg := validateSurveyFields(req.Title, req.Description); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	for i := range req.Questions {
		if msg := validateQuestionFields(ctx, req.Questions[i].Type, req.Questions[i].Text, req.Questions[i].Options); msg != "" {
			writeError(w, msg, http.StatusBadRequest)
			return
		}
	}

	surveyToken, err := tokens.NewUnique(ctx, func(ctx context.Context, token string) (bool, error) {
		s, err := h.surveys.GetBySurveyToken(ctx, token)
		return s != nil, err
	})
	if err != nil {
		writeError(w, "Failed to create survey", http.StatusInternalServerError)
		return
	}

	sv := &models.Survey{
		EventID:     req.EventID,
		Title:       req.Title,
		Description: req.Description,
		SurveyToken: surveyToken,
	}
	if _, err := h.surveys.CreateSurvey(ctx, sv); err != nil {
		logger.Error("create survey", slog.Any("err", err))
		writeError(w, "Failed to create survey", http.StatusInternalServerError)
		return
	}

	for idx := range req.Questions {
		q := questionFromRequest(&req.Questions[idx], int64(idx+1))
		q.SurveyID = sv.ID
		if _, err := h.questions.CreateQuestion(ctx, &q); err != nil {
			logger.Error("create survey question", slog.Any("err", err), slog.Int64("survey_id", sv.ID))
			writeError(w, "Failed to create survey", http.StatusInternalServerError)
			return
		}
	}

	h.withQuestions(w, r, sv, http.StatusCreated)
}

func (h *AdminSurveysHandler) Get(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByID(w, r)
	if sv == nil {
		return
	}
	h.withQuestions(w, r, sv, http.StatusOK)
}

// Update changes survey metadata; questions are managed separately.
func (h *AdminSurveysHandler) Update(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByID(w, r)
	if sv == nil {
		return
	}

	var req surveyUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Title != nil {
		sv.Title = *req.Title
	}
	if req.Description != nil {
		sv.Description = req.Description
	}
	if req.EventID != nil {
		sv.EventID = req.EventID
	}

	if msg := validateSurveyFields(sv.Title, sv.Description); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	if err := h.surveys.UpdateSurvey(r.Context(), sv); err != nil {
		logger.Error("update survey", slog.Any("err", err))
		writeError(w, "Failed to update survey", http.StatusInternalServerError)
		return
	}

	h.withQuestions(w, r, sv, http.StatusOK)
}

// Delete removes the survey with its questions, submissions and answers.
// Surveys still linked to an event are refused; delete the event first.
func (h *AdminSurveysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByID(w, r)
	if sv == nil {
		return
	}

	if sv.EventID != nil {
		writeError(w, "Survey is linked to an event", http.StatusConflict)
		return
	}

	if err := h.surveys.DeleteSurvey(r.Context(), sv.ID); err != nil {
		logger.Error("delete survey", slog.Any("err", err))
		writeError(w, "Failed to delete survey", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminSurveysHandler) ListQuestions(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByID(w, r)
	if sv == nil {
		return
	}

	qs, err := h.questions.ListQuestionsBySurvey(r.Context(), sv.ID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]questionAdminResponse, 0, len(qs))
	for i := range qs {
		out = append(out, questionToAdminResponse(&qs[i]))
	}
	writeJSON(w, out, http.StatusOK)
}

// CreateQuestion appends a question. Order zero means "after the last one".
func (h *AdminSurveysHandler) CreateQuestion(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByID(w, r)
	if sv == nil {
		return
	}

	var req questionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if msg := validateQuestionFields(ctx, req.Type, req.Text, req.Options); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	fallback := int64(1)
	if req.Order <= 0 {
		qs, err := h.questions.ListQuestionsBySurvey(ctx, sv.ID)
		if err != nil {
			writeError(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		for i := range qs {
			if qs[i].Order >= fallback {
				fallback = qs[i].Order + 1
			}
		}
	}

	q := questionFromRequest(&req, fallback)
	q.SurveyID = sv.ID
	if _, err := h.questions.CreateQuestion(ctx, &q); err != nil {
		logger.Error("create question", slog.Any("err", err), slog.Int64("survey_id", sv.ID))
		writeError(w, "Failed to create question", http.StatusInternalServerError)
		return
	}

	writeJSON(w, questionToAdminResponse(&q), http.StatusCreated)
}

// questionInSurvey resolves the question path id scoped to the survey.
func (h *AdminSurveysHandler) questionInSurvey(w http.ResponseWriter, r *http.Request, sv *models.Survey) *models.Question {
	qid, err := strconv.ParseInt(mux.Vars(r)["qid"], 10, 64)
	if err != nil {
		writeError(w, "Invalid question id", http.StatusBadRequest)
		return nil
	}
	q, err := h.questions.GetQuestionByID(r.Context(), qid)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return nil
	}
	if q == nil || q.SurveyID != sv.ID {
		writeError(w, "Question not found", http.StatusNotFound)
		return nil
	}
	return q
}

func (h *AdminSurveysHandler) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByID(w, r)
	if sv == nil {
		return
	}
	q := h.questionInSurvey(w, r, sv)
	if q == nil {
		return
	}

	var req questionUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Type != nil {
		q.Type = *req.Type
	}
	if req.Text != nil {
		q.Text = *req.Text
	}
	if opts := normalizeOptions(req.Options); opts != nil {
		q.Options = opts
	}
	if req.AllowOther != nil {
		q.AllowOther = *req.AllowOther
	}
	if req.Required != nil {
		q.Required = *req.Required
	}
	if req.Order != nil {
		q.Order = *req.Order
	}

	ctx := r.Context()
	if msg := validateQuestionFields(ctx, q.Type, q.Text, q.Options); msg != "" {
		writeError(w, msg, http.StatusBadRequest)
		return
	}

	if err := h.questions.UpdateQuestion(ctx, q); err != nil {
		logger.Error("update question", slog.Any("err", err), slog.Int64("question_id", q.ID))
		writeError(w, "Failed to update question", http.StatusInternalServerError)
		return
	}

	writeJSON(w, questionToAdminResponse(q), http.StatusOK)
}

func (h *AdminSurveysHandler) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByID(w, r)
	if sv == nil {
		return
	}
	q := h.questionInSurvey(w, r, sv)
	if q == nil {
		return
	}

	if err := h.questions.DeleteQuestion(r.Context(), q.ID); err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListSubmissions returns every submission with its answers, newest first.
func (h *AdminSurveysHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByID(w, r)
	if sv == nil {
		return
	}

	ctx := r.Context()
	subs, err := h.submissions.ListSubmissionsBySurvey(ctx, sv.ID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	answers, err := h.answers.ListBySurvey(ctx, sv.ID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	bySubmission := make(map[int64][]models.Answer, len(subs))
	for _, a := range answers {
		bySubmission[a.SubmissionID] = append(bySubmission[a.SubmissionID], a)
	}

	out := make([]submissionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, submissionToResponse(&subs[i], bySubmission[subs[i].ID]))
	}
	writeJSON(w, out, http.StatusOK)
}

// ListAnswers returns the survey's individual answers as a flat list.
func (h *AdminSurveysHandler) ListAnswers(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByID(w, r)
	if sv == nil {
		return
	}

	answers, err := h.answers.ListBySurvey(r.Context(), sv.ID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	out := make([]answerResponse, 0, len(answers))
	for i := range answers {
		out = append(out, answerToResponse(&answers[i]))
	}
	writeJSON(w, out, http.StatusOK)
}

type questionAnswersGroup struct {
	QuestionID   int64               `json:"question_id"`
	QuestionText string              `json:"question_text"`
	QuestionType models.QuestionType `json:"question_type"`
	Responses    []answerResponse    `json:"responses"`
}

// AnswersByQuestion groups the survey's answers under their questions, in
// question order.
func (h *AdminSurveysHandler) AnswersByQuestion(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByID(w, r)
	if sv == nil {
		return
	}

	ctx := r.Context()
	qs, err := h.questions.ListQuestionsBySurvey(ctx, sv.ID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	answers, err := h.answers.ListBySurvey(ctx, sv.ID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	byQuestion := make(map[int64][]answerResponse, len(qs))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = append(byQuestion[answers[i].QuestionID], answerToResponse(&answers[i]))
	}

	out := make([]questionAnswersGroup, 0, len(qs))
	for i := range qs {
		group := questionAnswersGroup{
			QuestionID:   qs[i].ID,
			QuestionText: qs[i].Text,
			QuestionType: qs[i].Type,
			Responses:    byQuestion[qs[i].ID],
		}
		if group.Responses == nil {
			group.Responses = []answerResponse{}
		}
		out = append(out, group)
	}
	writeJSON(w, out, http.StatusOK)
}
