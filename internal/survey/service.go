package survey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/gather-app/gather/internal/tokens"
	"github.com/gather-app/gather/pkg/models"
	"github.com/gather-app/gather/pkg/repository"
)

// package-level logger for the submission service; can be replaced by callers
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger sets the logger used by the survey package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// ErrNotFound is returned when no submission matches the presented edit
// token, or a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ErrNoQuestions marks a survey with nothing to answer.
var ErrNoQuestions = errors.New("survey has no questions")

// ErrAttendeesRequired rejects a yes RSVP without a head count.
var ErrAttendeesRequired = errors.New("number of attendees is required and must be at least 1 for yes responses")

// ErrAttendeesInvalid rejects a non-positive head count.
var ErrAttendeesInvalid = errors.New("number of attendees must be at least 1 when provided")

// ErrBadRSVP rejects an unrecognized RSVP response value.
var ErrBadRSVP = errors.New("rsvp_response must be yes, no or maybe")

// ValidationError reports an unacceptable answer. It names the offending
// question and never echoes the submitted value.
type ValidationError struct {
	QuestionID int64
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("question %d: %s", e.QuestionID, e.Reason)
}

// RSVPFields carries the event-flow attributes of a submission. Identity is
// the respondent's display name; NumAttendees is meaningful only for yes and
// maybe responses.
type RSVPFields struct {
	Identity     string
	Response     models.RSVPResponse
	NumAttendees *int64
	Email        *string
	Phone        *string
	Comment      *string
}

// CreateResult pairs a stored submission with its plaintext edit token. The
// token is populated only for RSVP submissions and is never recoverable
// afterwards; only its bcrypt hash is stored.
type CreateResult struct {
	Submission *models.Submission
	EditToken  string
}

// Service implements submission lifecycle on top of the repositories. All
// writes that touch a submission and its answers go through single
// repository transactions.
type Service struct {
	questions   repository.QuestionRepo
	submissions repository.SubmissionRepo
	bcryptCost  int
}

// NewService wires a submission service. bcryptCost zero selects the bcrypt
// default.
func NewService(questions repository.QuestionRepo, submissions repository.SubmissionRepo, bcryptCost int) *Service {
	return &Service{
		questions:   questions,
		submissions: submissions,
		bcryptCost:  bcryptCost,
	}
}

// CreateSubmission validates answers against the survey's questions and
// stores the submission with all its answers in one transaction. A nil rsvp
// creates a plain survey response with no identity and no edit token.
//
// Required questions must be answered. Every answered question must belong
// to the survey. The first violation aborts the whole submission and nothing
// is stored.
func (s *Service) CreateSubmission(ctx context.Context, surveyID int64, answers map[int64]any, rsvp *RSVPFields) (*CreateResult, error) {
	qs, err := s.questions.ListQuestionsBySurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("loading questions for survey %d: %w", surveyID, err)
	}

	for _, q := range qs {
		if !q.Required {
			continue
		}
		if _, ok := answers[q.ID]; !ok {
			return nil, &ValidationError{QuestionID: q.ID, Reason: "required question was not answered"}
		}
	}

	rows, err := s.buildAnswers(qs, answers)
	if err != nil {
		return nil, err
	}

	sub := &models.Submission{
		SurveyID:    surveyID,
		SubmittedAt: time.Now().UTC(),
	}

	var editToken string
	if rsvp != nil {
		if err := applyRSVPFields(sub, rsvp); err != nil {
			return nil, err
		}
		editToken, err = tokens.New()
		if err != nil {
			return nil, fmt.Errorf("minting edit token: %w", err)
		}
		hash, err := tokens.Hash(editToken, s.bcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hashing edit token: %w", err)
		}
		sub.EditTokenHash = &hash
	}

	id, err := s.submissions.CreateWithAnswers(ctx, sub, rows)
	if err != nil {
		return nil, fmt.Errorf("storing submission for survey %d: %w", surveyID, err)
	}
	sub.ID = id

	logger.Info("submission created",
		"survey_id", surveyID,
		"submission_id", id,
		"answers", len(rows),
		"rsvp", rsvp != nil)
	return &CreateResult{Submission: sub, EditToken: editToken}, nil
}

// UpdateSubmission locates a submission by its edit token and overwrites the
// RSVP fields. A nil answers map leaves stored answers untouched; a non-nil
// map (even an empty one) replaces them wholesale after validation. Last
// write wins; there is no conflict detection.
func (s *Service) UpdateSubmission(ctx context.Context, surveyID int64, editToken string, rsvp *RSVPFields, answers map[int64]any) (*models.Submission, error) {
	sub, err := s.GetByEditToken(ctx, surveyID, editToken)
	if err != nil {
		return nil, err
	}
	if rsvp == nil {
		return nil, ErrBadRSVP
	}
	if err := applyRSVPFields(sub, rsvp); err != nil {
		return nil, err
	}

	var rows []models.Answer
	replace := answers != nil
	if replace {
		qs, err := s.questions.ListQuestionsBySurvey(ctx, surveyID)
		if err != nil {
			return nil, fmt.Errorf("loading questions for survey %d: %w", surveyID, err)
		}
		rows, err = s.buildAnswers(qs, answers)
		if err != nil {
			return nil, err
		}
	}

	if err := s.submissions.UpdateWithAnswers(ctx, sub, rows, replace); err != nil {
		return nil, fmt.Errorf("updating submission %d: %w", sub.ID, err)
	}

	logger.Info("submission updated",
		"survey_id", surveyID,
		"submission_id", sub.ID,
		"answers_replaced", replace)
	return sub, nil
}

// GetByEditToken resolves a plaintext edit token to its submission by
// checking the token against every editable submission of the survey.
// Returns ErrNotFound when nothing matches; the caller cannot distinguish a
// wrong token from a missing submission.
func (s *Service) GetByEditToken(ctx context.Context, surveyID int64, editToken string) (*models.Submission, error) {
	if strings.TrimSpace(editToken) == "" {
		return nil, ErrNotFound
	}
	subs, err := s.submissions.ListEditableBySurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("listing editable submissions for survey %d: %w", surveyID, err)
	}
	for i := range subs {
		if subs[i].EditTokenHash == nil {
			continue
		}
		if tokens.Verify(editToken, *subs[i].EditTokenHash) {
			return &subs[i], nil
		}
	}
	return nil, ErrNotFound
}

// buildAnswers validates and normalizes one answers map against the survey's
// question list, in ascending question id order so the first reported
// violation is deterministic.
func (s *Service) buildAnswers(qs []models.Question, answers map[int64]any) ([]models.Answer, error) {
	byID := make(map[int64]*models.Question, len(qs))
	for i := range qs {
		byID[qs[i].ID] = &qs[i]
	}

	ids := make([]int64, 0, len(answers))
	for qid := range answers {
		ids = append(ids, qid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	rows := make([]models.Answer, 0, len(ids))
	for _, qid := range ids {
		q, ok := byID[qid]
		if !ok {
			return nil, &ValidationError{QuestionID: qid, Reason: "question does not belong to this survey"}
		}
		norm := NormalizeAnswer(q, answers[qid])
		if !Validate(q.Type, norm, q.OptionStrings(), q.Required, q.AllowOther) {
			return nil, &ValidationError{QuestionID: q.ID, Reason: "answer is not valid for this question"}
		}
		value, err := json.Marshal(norm)
		if err != nil {
			return nil, &ValidationError{QuestionID: q.ID, Reason: "answer is not representable"}
		}
		rows = append(rows, models.Answer{QuestionID: q.ID, Value: value})
	}
	return rows, nil
}

// applyRSVPFields validates and copies the event-flow attributes onto a
// submission. The head count is kept only for yes and maybe responses and
// must be positive; a yes without one is rejected.
func applyRSVPFields(sub *models.Submission, rsvp *RSVPFields) error {
	if !rsvp.Response.Valid() {
		return ErrBadRSVP
	}
	switch rsvp.Response {
	case models.RSVPYes:
		if rsvp.NumAttendees == nil || *rsvp.NumAttendees < 1 {
			return ErrAttendeesRequired
		}
		sub.NumAttendees = rsvp.NumAttendees
	case models.RSVPMaybe:
		if rsvp.NumAttendees != nil && *rsvp.NumAttendees < 1 {
			return ErrAttendeesInvalid
		}
		sub.NumAttendees = rsvp.NumAttendees
	default:
		sub.NumAttendees = nil
	}

	identity := strings.TrimSpace(rsvp.Identity)
	sub.Identity = &identity
	resp := rsvp.Response
	sub.RSVP = &resp
	sub.Email = rsvp.Email
	sub.Phone = rsvp.Phone
	sub.Comment = rsvp.Comment
	return nil
}
