package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gather-app/gather/pkg/models"
)

const eventColumns = `id, title, description, date, location, invitation_token, access_code, show_rsvp_list, survey_id, created_by, created_at, updated_at`

// CreateEventWithSurvey inserts the event and, when survey is non-nil, the
// survey with its questions first, all in one transaction. The survey's
// event_id back-reference is always pointed at the new event before commit,
// whether the survey was created here or already existed.
func (r *SQLiteRepo) CreateEventWithSurvey(ctx context.Context, e *models.Event, survey *models.Survey, questions []models.Question) (int64, error) {
	if e == nil {
		return 0, fmt.Errorf("event is nil")
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	ts := now()

	if survey != nil {
		res, err := tx.ExecContext(ctx, `INSERT INTO surveys (event_id, title, description, survey_token, created_at, updated_at) VALUES (NULL, ?, ?, ?, ?, ?)`,
			survey.Title, survey.Description, survey.SurveyToken, ts, ts)
		if err != nil {
			return 0, fmt.Errorf("insert survey: %w", err)
		}
		surveyID, err := res.LastInsertId()
		if err != nil {
			return 0, err
		}
		survey.ID = surveyID
		survey.CreatedAt = fromMillis(ts)
		survey.UpdatedAt = fromMillis(ts)
		e.SurveyID = surveyID

		for i := range questions {
			q := &questions[i]
			res, err := tx.ExecContext(ctx, `INSERT INTO questions (survey_id, question_type, question_text, options, allow_other, required, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				surveyID, string(q.Type), q.Text, optionsArg(q.Options), q.AllowOther, q.Required, q.Order, ts, ts)
			if err != nil {
				return 0, fmt.Errorf("insert question %d: %w", i, err)
			}
			q.ID, err = res.LastInsertId()
			if err != nil {
				return 0, err
			}
			q.SurveyID = surveyID
		}
	}

	res, err := tx.ExecContext(ctx, `INSERT INTO events (title, description, date, location, invitation_token, access_code, show_rsvp_list, survey_id, created_by, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Title, e.Description, millis(e.Date), e.Location, e.InvitationToken, e.AccessCodeHash, e.ShowRSVPList, e.SurveyID, e.CreatedBy, ts, ts)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	eventID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE surveys SET event_id = ?, updated_at = ? WHERE id = ?`, eventID, ts, e.SurveyID); err != nil {
		return 0, fmt.Errorf("link survey to event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	e.ID = eventID
	e.CreatedAt = fromMillis(ts)
	e.UpdatedAt = fromMillis(ts)
	if survey != nil {
		survey.EventID = &eventID
	}
	return eventID, nil
}

func (r *SQLiteRepo) GetEventByID(ctx context.Context, id int64) (*models.Event, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	return scanEvent(row)
}

func (r *SQLiteRepo) GetByInvitationToken(ctx context.Context, token string) (*models.Event, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE invitation_token = ?`, token)
	return scanEvent(row)
}

func (r *SQLiteRepo) ListEvents(ctx context.Context) ([]models.Event, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+eventColumns+` FROM events ORDER BY date DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Event
	for rows.Next() {
		e, err := scanEventRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) UpdateEvent(ctx context.Context, e *models.Event) error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}

	ts := now()
	_, err := r.conn.Exec(ctx, `UPDATE events SET title = ?, description = ?, date = ?, location = ?, access_code = ?, show_rsvp_list = ?, survey_id = ?, updated_at = ? WHERE id = ?`,
		e.Title, e.Description, millis(e.Date), e.Location, e.AccessCodeHash, e.ShowRSVPList, e.SurveyID, ts, e.ID)
	if err != nil {
		return err
	}
	e.UpdatedAt = fromMillis(ts)
	return nil
}

// DeleteEvent unlinks the event's survey and removes the event row. The
// survey with its questions and submissions stays behind.
func (r *SQLiteRepo) DeleteEvent(ctx context.Context, id int64) error {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE surveys SET event_id = NULL, updated_at = ? WHERE event_id = ?`, now(), id); err != nil {
		return fmt.Errorf("unlink survey: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}

	return tx.Commit()
}

// optionsArg passes question options through as TEXT, mapping absent
// payloads to NULL.
func optionsArg(raw []byte) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return string(raw)
}

func scanEvent(row *sql.Row) (*models.Event, error) {
	var e models.Event
	var desc, location, accessCode sql.NullString
	var date, created, updated int64
	if err := row.Scan(&e.ID, &e.Title, &desc, &date, &location, &e.InvitationToken, &accessCode, &e.ShowRSVPList, &e.SurveyID, &e.CreatedBy, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	e.Description = strPtr(desc)
	e.Location = strPtr(location)
	e.AccessCodeHash = strPtr(accessCode)
	e.Date = fromMillis(date)
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return &e, nil
}

func scanEventRow(rows *sql.Rows) (*models.Event, error) {
	var e models.Event
	var desc, location, accessCode sql.NullString
	var date, created, updated int64
	if err := rows.Scan(&e.ID, &e.Title, &desc, &date, &location, &e.InvitationToken, &accessCode, &e.ShowRSVPList, &e.SurveyID, &e.CreatedBy, &created, &updated); err != nil {
		return nil, err
	}
	e.Description = strPtr(desc)
	e.Location = strPtr(location)
	e.AccessCodeHash = strPtr(accessCode)
	e.Date = fromMillis(date)
	e.CreatedAt = fromMillis(created)
	e.UpdatedAt = fromMillis(updated)
	return &e, nil
}
