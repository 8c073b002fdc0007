package api

import (
	"encoding/json"
	"net/http"

	"github.com/gather-app/gather/internal/survey"
	"github.com/gather-app/gather/pkg/models"
	"github.com/gather-app/gather/pkg/repository"
	"github.com/gorilla/mux"
)

type SurveysHandler struct {
	surveys   repository.SurveyRepo
	questions repository.QuestionRepo
	answers   repository.AnswerRepo
	service   *survey.Service
}

func NewSurveysHandler(surveys repository.SurveyRepo, questions repository.QuestionRepo, answers repository.AnswerRepo, service *survey.Service) *SurveysHandler {
	return &SurveysHandler{
		surveys:   surveys,
		questions: questions,
		answers:   answers,
		service:   service,
	}
}

type answerResponse struct {
	ID           int64           `json:"id"`
	SubmissionID int64           `json:"submission_id"`
	QuestionID   int64           `json:"question_id"`
	Answer       json.RawMessage `json:"answer"`
}

func answerToResponse(a *models.Answer) answerResponse {
	return answerResponse{ID: a.ID, SubmissionID: a.SubmissionID, QuestionID: a.QuestionID, Answer: a.Value}
}

type submissionResponse struct {
	ID                int64                `json:"id"`
	SurveyID          int64                `json:"survey_id"`
	SubmittedAt       string               `json:"submitted_at"`
	Identity          *string              `json:"identity"`
	RSVP              *models.RSVPResponse `json:"rsvp_response"`
	NumAttendees      *int64               `json:"num_attendees"`
	Email             *string              `json:"email"`
	Phone             *string              `json:"phone"`
	Comment           *string              `json:"comment"`
	QuestionResponses []answerResponse     `json:"question_responses"`
}

func submissionToResponse(sub *models.Submission, answers []models.Answer) submissionResponse {
	out := submissionResponse{
		ID:                sub.ID,
		SurveyID:          sub.SurveyID,
		SubmittedAt:       isoTime(sub.SubmittedAt),
		Identity:          sub.Identity,
		RSVP:              sub.RSVP,
		NumAttendees:      sub.NumAttendees,
		Email:             sub.Email,
		Phone:             sub.Phone,
		Comment:           sub.Comment,
		QuestionResponses: []answerResponse{},
	}
	for i := range answers {
		out.QuestionResponses = append(out.QuestionResponses, answerToResponse(&answers[i]))
	}
	return out
}

type submitAnswersRequest struct {
	Answers map[int64]any `json:"answers"`
}

// surveyByToken resolves the survey token or writes a 404.
func (h *SurveysHandler) surveyByToken(w http.ResponseWriter, r *http.Request) *models.Survey {
	token := mux.Vars(r)["token"]
	sv, err := h.surveys.GetBySurveyToken(r.Context(), token)
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

// Get returns the survey and its ordered questions for respondents holding
// the survey link.
func (h *SurveysHandler) Get(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByToken(w, r)
	if sv == nil {
		return
	}

	qs, err := h.questions.ListQuestionsBySurvey(r.Context(), sv.ID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pub := make([]questionPublic, 0, len(qs))
	for i := range qs {
		pub = append(pub, questionToPublic(&qs[i]))
	}
	writeJSON(w, surveyPublicResponse{ID: sv.ID, Title: sv.Title, Description: sv.Description, Questions: pub}, http.StatusOK)
}

// SubmitResponses stores a plain survey submission: no RSVP fields and no
// edit token, answers validated against the survey's questions.
func (h *SurveysHandler) SubmitResponses(w http.ResponseWriter, r *http.Request) {
	sv := h.surveyByToken(w, r)
	if sv == nil {
		return
	}

	var req submitAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	qs, err := h.questions.ListQuestionsBySurvey(ctx, sv.ID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if len(qs) == 0 {
		writeError(w, survey.ErrNoQuestions.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.service.CreateSubmission(ctx, sv.ID, req.Answers, nil)
	if err != nil {
		writeSubmissionError(w, err)
		return
	}

	stored, err := h.answers.ListBySubmission(ctx, result.Submission.ID)
	if err != nil {
		writeError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, submissionToResponse(result.Submission, stored), http.StatusCreated)
}
