package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gather-app/gather/pkg/models"
)

const surveyColumns = `id, event_id, title, description, survey_token, created_at, updated_at`

func (r *SQLiteRepo) CreateSurvey(ctx context.Context, s *models.Survey) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("survey is nil")
	}

	ts := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO surveys (event_id, title, description, survey_token, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		s.EventID, s.Title, s.Description, s.SurveyToken, ts, ts)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.ID = id
	s.CreatedAt = fromMillis(ts)
	s.UpdatedAt = fromMillis(ts)
	return id, nil
}

func (r *SQLiteRepo) GetSurveyByID(ctx context.Context, id int64) (*models.Survey, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE id = ?`, id)
	return scanSurvey(row)
}

func (r *SQLiteRepo) GetBySurveyToken(ctx context.Context, token string) (*models.Survey, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE survey_token = ?`, token)
	return scanSurvey(row)
}

func (r *SQLiteRepo) ListSurveys(ctx context.Context) ([]models.Survey, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+surveyColumns+` FROM surveys ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Survey
	for rows.Next() {
		var s models.Survey
		var eventID sql.NullInt64
		var desc sql.NullString
		var created, updated int64
		if err := rows.Scan(&s.ID, &eventID, &s.Title, &desc, &s.SurveyToken, &created, &updated); err != nil {
			return nil, err
		}
		s.EventID = intPtr(eventID)
		s.Description = strPtr(desc)
		s.CreatedAt = fromMillis(created)
		s.UpdatedAt = fromMillis(updated)

		out = append(out, s)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) UpdateSurvey(ctx context.Context, s *models.Survey) error {
	if s == nil {
		return fmt.Errorf("survey is nil")
	}

	ts := now()
	_, err := r.conn.Exec(ctx, `UPDATE surveys SET event_id = ?, title = ?, description = ?, updated_at = ? WHERE id = ?`,
		s.EventID, s.Title, s.Description, ts, s.ID)
	if err != nil {
		return err
	}
	s.UpdatedAt = fromMillis(ts)
	return nil
}

// DeleteSurvey removes the survey and everything hanging off it. Questions
// and submissions cascade; answers cascade off their submissions.
func (r *SQLiteRepo) DeleteSurvey(ctx context.Context, id int64) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM surveys WHERE id = ?`, id)
	return err
}

func scanSurvey(row *sql.Row) (*models.Survey, error) {
	var s models.Survey
	var eventID sql.NullInt64
	var desc sql.NullString
	var created, updated int64
	if err := row.Scan(&s.ID, &eventID, &s.Title, &desc, &s.SurveyToken, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	s.EventID = intPtr(eventID)
	s.Description = strPtr(desc)
	s.CreatedAt = fromMillis(created)
	s.UpdatedAt = fromMillis(updated)
	return &s, nil
}
