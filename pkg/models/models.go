package models

import (
	"encoding/json"
	"time"
)

// Domain models matching the database schema in db/migrations/0001_base.sql

// QuestionType is the closed set of supported question kinds.
type QuestionType string

const (
	QuestionTypeText           QuestionType = "text"
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeCheckbox       QuestionType = "checkbox"
	QuestionTypeYesNo          QuestionType = "yes_no"
	QuestionTypeDateTime       QuestionType = "date_time"
	QuestionTypeMatrix         QuestionType = "matrix"
	QuestionTypeMatrixSingle   QuestionType = "matrix_single"
)

// Valid reports whether t is one of the seven known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeText, QuestionTypeMultipleChoice, QuestionTypeCheckbox,
		QuestionTypeYesNo, QuestionTypeDateTime, QuestionTypeMatrix,
		QuestionTypeMatrixSingle:
		return true
	}
	return false
}

// RSVPResponse is an attendee's answer to an event invitation.
type RSVPResponse string

const (
	RSVPYes   RSVPResponse = "yes"
	RSVPNo    RSVPResponse = "no"
	RSVPMaybe RSVPResponse = "maybe"
)

func (r RSVPResponse) Valid() bool {
	switch r {
	case RSVPYes, RSVPNo, RSVPMaybe:
		return true
	}
	return false
}

type Admin struct {
	ID             int64     `json:"id" db:"id"`
	Email          string    `json:"email" db:"email" validate:"required,email"`
	HashedPassword string    `json:"-" db:"hashed_password"`
	IsActive       bool      `json:"is_active" db:"is_active"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

type Event struct {
	ID              int64     `json:"id" db:"id"`
	Title           string    `json:"title" db:"title" validate:"required"`
	Description     *string   `json:"description,omitempty" db:"description"`
	Date            time.Time `json:"date" db:"date"`
	Location        *string   `json:"location,omitempty" db:"location"`
	InvitationToken string    `json:"invitation_token" db:"invitation_token"`
	AccessCodeHash  *string   `json:"-" db:"access_code"`
	ShowRSVPList    bool      `json:"show_rsvp_list" db:"show_rsvp_list"`
	SurveyID        int64     `json:"survey_id" db:"survey_id"`
	CreatedBy       int64     `json:"created_by" db:"created_by"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

type Survey struct {
	ID          int64     `json:"id" db:"id"`
	EventID     *int64    `json:"event_id,omitempty" db:"event_id"`
	Title       string    `json:"title" db:"title" validate:"required"`
	Description *string   `json:"description,omitempty" db:"description"`
	SurveyToken string    `json:"survey_token" db:"survey_token"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

type Question struct {
	ID         int64           `json:"id" db:"id"`
	SurveyID   int64           `json:"survey_id" db:"survey_id"`
	Type       QuestionType    `json:"question_type" db:"question_type"`
	Text       string          `json:"question_text" db:"question_text" validate:"required"`
	Options    json.RawMessage `json:"options,omitempty" db:"options"`
	AllowOther bool            `json:"allow_other" db:"allow_other"`
	Required   bool            `json:"required" db:"required"`
	Order      int64           `json:"order" db:"sort_order"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// OptionStrings decodes Options as a flat list of strings. Matrix-style
// option payloads (row/column objects) and absent options return nil; the
// answer validator treats nil as "no membership restriction".
func (q *Question) OptionStrings() []string {
	if len(q.Options) == 0 {
		return nil
	}
	var opts []string
	if err := json.Unmarshal(q.Options, &opts); err != nil {
		return nil
	}
	return opts
}

// Submission is one respondent's complete act of answering a survey. RSVP
// fields are set for event submissions and nil for standalone surveys.
type Submission struct {
	ID            int64         `json:"id" db:"id"`
	SurveyID      int64         `json:"survey_id" db:"survey_id"`
	SubmittedAt   time.Time     `json:"submitted_at" db:"submitted_at"`
	Identity      *string       `json:"identity,omitempty" db:"identity"`
	RSVP          *RSVPResponse `json:"rsvp_response,omitempty" db:"rsvp_response"`
	NumAttendees  *int64        `json:"num_attendees,omitempty" db:"num_attendees"`
	Email         *string       `json:"email,omitempty" db:"email"`
	Phone         *string       `json:"phone,omitempty" db:"phone"`
	Comment       *string       `json:"comment,omitempty" db:"comment"`
	EditTokenHash *string       `json:"-" db:"edit_token_hash"`
}

// Answer is one validated value for one question within one submission.
// Value keeps the client's JSON shape verbatim; only the validator ever
// interprets it.
type Answer struct {
	ID           int64           `json:"id" db:"id"`
	SubmissionID int64           `json:"submission_id" db:"submission_id"`
	QuestionID   int64           `json:"question_id" db:"question_id"`
	Value        json.RawMessage `json:"answer" db:"answer"`
}
