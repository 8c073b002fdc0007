package repository

import (
	"context"

	"github.com/gather-app/gather/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
// Method names are unique across the set so one store can satisfy them all.

type AdminRepo interface {
	CreateAdmin(ctx context.Context, a *models.Admin) (int64, error)
	GetAdminByID(ctx context.Context, id int64) (*models.Admin, error)
	GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error)
	ListAdmins(ctx context.Context) ([]models.Admin, error)
	CountAdmins(ctx context.Context) (int64, error)
	DeleteAdminByEmail(ctx context.Context, email string) error
}

type EventRepo interface {
	// CreateEventWithSurvey persists the event and, when survey is non-nil,
	// the survey plus its questions in the same transaction. The created
	// survey's event_id back-reference is set before commit.
	CreateEventWithSurvey(ctx context.Context, e *models.Event, survey *models.Survey, questions []models.Question) (int64, error)
	GetEventByID(ctx context.Context, id int64) (*models.Event, error)
	GetByInvitationToken(ctx context.Context, token string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	UpdateEvent(ctx context.Context, e *models.Event) error
	// DeleteEvent clears the survey's event back-reference, then removes the
	// event row. The survey itself survives.
	DeleteEvent(ctx context.Context, id int64) error
}

type SurveyRepo interface {
	CreateSurvey(ctx context.Context, s *models.Survey) (int64, error)
	GetSurveyByID(ctx context.Context, id int64) (*models.Survey, error)
	GetBySurveyToken(ctx context.Context, token string) (*models.Survey, error)
	ListSurveys(ctx context.Context) ([]models.Survey, error)
	UpdateSurvey(ctx context.Context, s *models.Survey) error
	// DeleteSurvey removes the survey together with its questions,
	// submissions and answers.
	DeleteSurvey(ctx context.Context, id int64) error
}

type QuestionRepo interface {
	CreateQuestion(ctx context.Context, q *models.Question) (int64, error)
	GetQuestionByID(ctx context.Context, id int64) (*models.Question, error)
	// ListQuestionsBySurvey returns the survey's questions ordered by
	// sort_order ascending, id as tiebreak.
	ListQuestionsBySurvey(ctx context.Context, surveyID int64) ([]models.Question, error)
	UpdateQuestion(ctx context.Context, q *models.Question) error
	DeleteQuestion(ctx context.Context, id int64) error
}

type SubmissionRepo interface {
	// CreateWithAnswers persists the submission and all answer rows in one
	// transaction; on any failure nothing is written.
	CreateWithAnswers(ctx context.Context, s *models.Submission, answers []models.Answer) (int64, error)
	// UpdateWithAnswers rewrites the submission's RSVP fields and, when
	// replaceAnswers is true, deletes every existing answer row and inserts
	// the given ones, all in one transaction.
	UpdateWithAnswers(ctx context.Context, s *models.Submission, answers []models.Answer, replaceAnswers bool) error
	GetSubmissionByID(ctx context.Context, id int64) (*models.Submission, error)
	ListSubmissionsBySurvey(ctx context.Context, surveyID int64) ([]models.Submission, error)
	// ListEditableBySurvey returns the survey's submissions carrying an edit
	// token hash, the candidate set for token verification scans.
	ListEditableBySurvey(ctx context.Context, surveyID int64) ([]models.Submission, error)
	DeleteSubmission(ctx context.Context, id int64) error
}

type AnswerRepo interface {
	ListBySubmission(ctx context.Context, submissionID int64) ([]models.Answer, error)
	ListBySurvey(ctx context.Context, surveyID int64) ([]models.Answer, error)
	ListByQuestion(ctx context.Context, questionID int64) ([]models.Answer, error)
}
