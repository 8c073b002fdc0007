package sqlite

import (
	"context"
	"encoding/json"

	"github.com/gather-app/gather/pkg/models"
)

func (r *SQLiteRepo) ListBySubmission(ctx context.Context, submissionID int64) ([]models.Answer, error) {
	return r.listAnswers(ctx, `SELECT id, submission_id, question_id, answer FROM question_responses WHERE submission_id = ? ORDER BY question_id, id`, submissionID)
}

func (r *SQLiteRepo) ListBySurvey(ctx context.Context, surveyID int64) ([]models.Answer, error) {
	return r.listAnswers(ctx, `SELECT qr.id, qr.submission_id, qr.question_id, qr.answer FROM question_responses qr JOIN survey_submissions ss ON ss.id = qr.submission_id WHERE ss.survey_id = ? ORDER BY qr.submission_id, qr.question_id`, surveyID)
}

func (r *SQLiteRepo) ListByQuestion(ctx context.Context, questionID int64) ([]models.Answer, error) {
	return r.listAnswers(ctx, `SELECT id, submission_id, question_id, answer FROM question_responses WHERE question_id = ? ORDER BY submission_id`, questionID)
}

func (r *SQLiteRepo) listAnswers(ctx context.Context, query string, args ...any) ([]models.Answer, error) {
	rows, err := r.conn.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Answer
	for rows.Next() {
		var a models.Answer
		var value string
		if err := rows.Scan(&a.ID, &a.SubmissionID, &a.QuestionID, &value); err != nil {
			return nil, err
		}
		a.Value = json.RawMessage(value)

		out = append(out, a)
	}

	return out, rows.Err()
}
