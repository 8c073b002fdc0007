package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gather-app/gather/pkg/models"
)

func (r *SQLiteRepo) CreateAdmin(ctx context.Context, a *models.Admin) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("admin is nil")
	}

	res, err := r.conn.Exec(ctx, `INSERT INTO admins (email, hashed_password, is_active, created_at) VALUES (?, ?, ?, ?)`,
		a.Email, a.HashedPassword, a.IsActive, millis(a.CreatedAt))
	if err != nil {
		return 0, err
	}

	return res.LastInsertId()
}

func (r *SQLiteRepo) GetAdminByID(ctx context.Context, id int64) (*models.Admin, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, email, hashed_password, is_active, created_at FROM admins WHERE id = ?`, id)
	return scanAdmin(row)
}

func (r *SQLiteRepo) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	row := r.conn.QueryRow(ctx, `SELECT id, email, hashed_password, is_active, created_at FROM admins WHERE email = ?`, email)
	return scanAdmin(row)
}

func (r *SQLiteRepo) ListAdmins(ctx context.Context) ([]models.Admin, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT id, email, hashed_password, is_active, created_at FROM admins ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Admin
	for rows.Next() {
		var a models.Admin
		var created int64
		if err := rows.Scan(&a.ID, &a.Email, &a.HashedPassword, &a.IsActive, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = fromMillis(created)

		out = append(out, a)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) CountAdmins(ctx context.Context) (int64, error) {
	row := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM admins`)
	var cnt int64
	if err := row.Scan(&cnt); err != nil {
		return 0, err
	}
	return cnt, nil
}

func (r *SQLiteRepo) DeleteAdminByEmail(ctx context.Context, email string) error {
	_, err := r.conn.Exec(ctx, `DELETE FROM admins WHERE email = ?`, email)
	return err
}

func scanAdmin(row *sql.Row) (*models.Admin, error) {
	var a models.Admin
	var created int64
	if err := row.Scan(&a.ID, &a.Email, &a.HashedPassword, &a.IsActive, &created); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	a.CreatedAt = fromMillis(created)
	return &a, nil
}
