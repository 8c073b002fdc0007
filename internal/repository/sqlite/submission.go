package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gather-app/gather/pkg/models"
)

const submissionColumns = `id, survey_id, submitted_at, identity, rsvp_response, num_attendees, email, phone, comment, edit_token_hash`

// CreateWithAnswers inserts the submission row and every answer row in one
// transaction. Either everything lands or nothing does.
func (r *SQLiteRepo) CreateWithAnswers(ctx context.Context, s *models.Submission, answers []models.Answer) (int64, error) {
	if s == nil {
		return 0, fmt.Errorf("submission is nil")
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `INSERT INTO survey_submissions (survey_id, submitted_at, identity, rsvp_response, num_attendees, email, phone, comment, edit_token_hash) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.SurveyID, millis(s.SubmittedAt), s.Identity, s.RSVP, s.NumAttendees, s.Email, s.Phone, s.Comment, s.EditTokenHash)
	if err != nil {
		return 0, fmt.Errorf("insert submission: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i := range answers {
		a := &answers[i]
		res, err := tx.ExecContext(ctx, `INSERT INTO question_responses (submission_id, question_id, answer) VALUES (?, ?, ?)`,
			id, a.QuestionID, string(a.Value))
		if err != nil {
			return 0, fmt.Errorf("insert answer for question %d: %w", a.QuestionID, err)
		}
		a.ID, err = res.LastInsertId()
		if err != nil {
			return 0, err
		}
		a.SubmissionID = id
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	s.ID = id
	return id, nil
}

// UpdateWithAnswers rewrites the submission's RSVP fields. When
// replaceAnswers is set the stored answers are deleted and the given rows
// inserted in the same transaction; otherwise they are left alone. The
// original submitted_at and edit token hash are preserved.
func (r *SQLiteRepo) UpdateWithAnswers(ctx context.Context, s *models.Submission, answers []models.Answer, replaceAnswers bool) error {
	if s == nil {
		return fmt.Errorf("submission is nil")
	}

	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `UPDATE survey_submissions SET identity = ?, rsvp_response = ?, num_attendees = ?, email = ?, phone = ?, comment = ? WHERE id = ?`,
		s.Identity, s.RSVP, s.NumAttendees, s.Email, s.Phone, s.Comment, s.ID); err != nil {
		return fmt.Errorf("update submission: %w", err)
	}

	if replaceAnswers {
		if _, err := tx.ExecContext(ctx, `DELETE FROM question_responses WHERE submission_id = ?`, s.ID); err != nil {
			return fmt.Errorf("clear answers: %w", err)
		}
		for i := range answers {
			a := &answers[i]
			res, err := tx.ExecContext(ctx, `INSERT INTO question_responses (submission_id, question_id, answer) VALUES (?, ?, ?)`,
				s.ID, a.QuestionID, string(a.Value))
			if err != nil {
				return fmt.Errorf("insert answer for question %d: %w", a.QuestionID, err)
			}
			a.ID, err = res.LastInsertId()
			if err != nil {
				return err
			}
			a.SubmissionID = s.ID
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepo) GetSubmissionByID(ctx context.Context, id int64) (*models.Submission, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+submissionColumns+` FROM survey_submissions WHERE id = ?`, id)

	s, err := scanSubmission(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func (r *SQLiteRepo) ListSubmissionsBySurvey(ctx context.Context, surveyID int64) ([]models.Submission, error) {
	return r.listSubmissions(ctx, `SELECT `+submissionColumns+` FROM survey_submissions WHERE survey_id = ? ORDER BY submitted_at DESC, id DESC`, surveyID)
}

func (r *SQLiteRepo) ListEditableBySurvey(ctx context.Context, surveyID int64) ([]models.Submission, error) {
	return r.listSubmissions(ctx, `SELECT `+submissionColumns+` FROM survey_submissions WHERE survey_id = ? AND edit_token_hash IS NOT NULL ORDER BY id`, surveyID)
}

// DeleteSubmission removes the submission and its answers.
func (r *SQLiteRepo) DeleteSubmission(ctx context.Context, id int64) error {
	tx, err := r.conn.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM question_responses WHERE submission_id = ?`, id); err != nil {
		return fmt.Errorf("delete answers: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM survey_submissions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete submission: %w", err)
	}

	return tx.Commit()
}

func (r *SQLiteRepo) listSubmissions(ctx context.Context, query string, args ...any) ([]models.Submission, error) {
	rows, err := r.conn.QueryRows(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Submission
	for rows.Next() {
		s, err := scanSubmission(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}

	return out, rows.Err()
}

func scanSubmission(scan func(dest ...any) error) (*models.Submission, error) {
	var s models.Submission
	var submitted int64
	var identity, rsvp, email, phone, comment, editHash sql.NullString
	var attendees sql.NullInt64
	if err := scan(&s.ID, &s.SurveyID, &submitted, &identity, &rsvp, &attendees, &email, &phone, &comment, &editHash); err != nil {
		return nil, err
	}
	s.SubmittedAt = fromMillis(submitted)
	s.Identity = strPtr(identity)
	if rsvp.Valid {
		v := models.RSVPResponse(rsvp.String)
		s.RSVP = &v
	}
	s.NumAttendees = intPtr(attendees)
	s.Email = strPtr(email)
	s.Phone = strPtr(phone)
	s.Comment = strPtr(comment)
	s.EditTokenHash = strPtr(editHash)
	return &s, nil
}
