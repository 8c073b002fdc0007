package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/gather-app/gather/pkg/models"
)

const questionColumns = `id, survey_id, question_type, question_text, options, allow_other, required, sort_order, created_at, updated_at`

func (r *SQLiteRepo) CreateQuestion(ctx context.Context, q *models.Question) (int64, error) {
	if q == nil {
		return 0, fmt.Errorf("question is nil")
	}

	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO questions (survey_id, question_type, question_text, options, allow_other, required, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.SurveyID, string(q.Type), q.Text, optionsArg(q.Options), q.AllowOther, q.Required, q.Order, ts, ts)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	q.ID = id
	q.CreatedAt = fromMillis(ts)
	q.UpdatedAt = fromMillis(ts)
	return id, nil
}

func (r *SQLiteRepo) GetQuestionByID(ctx context.Context, id int64) (*models.Question, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = ?`, id)

	q, err := scanQuestion(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return q, nil
}

func (r *SQLiteRepo) ListQuestionsBySurvey(ctx context.Context, surveyID int64) ([]models.Question, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+questionColumns+` FROM questions WHERE survey_id = ? ORDER BY sort_order, id`, surveyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Question
	for rows.Next() {
		q, err := scanQuestion(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) UpdateQuestion(ctx context.Context, q *models.Question) error {
	if q == nil {
		return fmt.Errorf("question is nil")
	}

	ts := now()
	_, err := r.conn.Exec(ctx, `UPDATE questions SET question_type = ?, question_text = ?, options = ?, allow_other = ?, required = ?, sort_order = ?, updated_at = ? WHERE id = ?`,
		string(q.Type), q.Text, optionsArg(q.Options), q.AllowOther, q.Required, q.Order, ts, q.ID)
	if err != nil {
		return err
	}
	q.UpdatedAt = fromMillis(ts)
	return nil
}

func (r *SQLiteRepo) DeleteQuestion(ctx context.Context, id int64) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM questions WHERE id = ?`, id)
	return err
}

func scanQuestion(scan func(dest ...any) error) (*models.Question, error) {
	var q models.Question
	var qt string
	var options sql.NullString
	var created, updated int64
	if err := scan(&q.ID, &q.SurveyID, &qt, &q.Text, &options, &q.AllowOther, &q.Required, &q.Order, &created, &updated); err != nil {
		return nil, err
	}
	q.Type = models.QuestionType(qt)
	if options.Valid {
		q.Options = json.RawMessage(options.String)
	}
	q.CreatedAt = fromMillis(created)
	q.UpdatedAt = fromMillis(updated)
	return &q, nil
}
