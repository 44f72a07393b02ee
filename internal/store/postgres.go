// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"visa-tracker/internal/common/errors"
	"visa-tracker/internal/models"
)

// PostgresStore implements Store on PostgreSQL. The applications table holds
// a unique index on user_id; the upsert below is what makes concurrent saves
// for the same user safe.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const saveApplicationQuery = `
INSERT INTO applications (id, user_id, personal, address, employment, visa_start, visa_end, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
ON CONFLICT (user_id) DO UPDATE SET
	personal   = EXCLUDED.personal,
	address    = EXCLUDED.address,
	employment = EXCLUDED.employment,
	visa_start = EXCLUDED.visa_start,
	visa_end   = EXCLUDED.visa_end,
	status     = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at
RETURNING id, created_at, updated_at`

func (s *PostgresStore) SaveApplication(ctx context.Context, app *models.Application) (*models.Application, error) {
	personal, err := json.Marshal(app.Personal)
	if err != nil {
		return nil, err
	}
	address, err := json.Marshal(app.Address)
	if err != nil {
		return nil, err
	}
	employment, err := json.Marshal(app.Employment)
	if err != nil {
		return nil, err
	}

	status := app.Status
	if status == "" {
		status = models.StatusPending
	}

	stored := *app
	stored.Status = status

	err = s.db.QueryRowContext(ctx, saveApplicationQuery,
		uuid.New().String(), app.UserID, personal, address, employment,
		nullTime(app.VisaStart), nullTime(app.VisaEnd), status, time.Now().UTC(),
	).Scan(&stored.ID, &stored.CreatedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, errors.NewStorageUnavailableError(err)
	}

	return &stored, nil
}

const findApplicationQuery = `
SELECT id, user_id, personal, address, employment, visa_start, visa_end, status, created_at, updated_at
FROM applications
WHERE user_id = $1`

func (s *PostgresStore) FindApplicationByUserID(ctx context.Context, userID string) (*models.Application, bool, error) {
	row := s.db.QueryRowContext(ctx, findApplicationQuery, userID)

	app, err := scanApplication(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewStorageUnavailableError(err)
	}
	return app, true, nil
}

const listApplicationsQuery = `
SELECT id, user_id, personal, address, employment, visa_start, visa_end, status, created_at, updated_at
FROM applications
ORDER BY seq`

func (s *PostgresStore) GetApplications(ctx context.Context) ([]models.Application, error) {
	rows, err := s.db.QueryContext(ctx, listApplicationsQuery)
	if err != nil {
		return nil, errors.NewStorageUnavailableError(err)
	}
	defer rows.Close()

	var out []models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, errors.NewStorageUnavailableError(err)
		}
		out = append(out, *app)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorageUnavailableError(err)
	}
	return out, nil
}

const saveUserQuery = `
INSERT INTO users (id, name, email, phone, role, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`

func (s *PostgresStore) SaveUser(ctx context.Context, user *models.User) (*models.User, error) {
	stored := *user
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Role == "" {
		stored.Role = models.RoleUser
	}

	err := s.db.QueryRowContext(ctx, saveUserQuery,
		stored.ID, stored.Name, stored.Email, stored.Phone, stored.Role, time.Now().UTC(),
	).Scan(&stored.ID, &stored.CreatedAt)
	if err != nil {
		return nil, errors.NewStorageUnavailableError(err)
	}
	return &stored, nil
}

func (s *PostgresStore) FindUserByID(ctx context.Context, id string) (*models.User, bool, error) {
	return s.findUser(ctx, `SELECT id, name, email, phone, role, created_at FROM users WHERE id = $1`, id)
}

// FindUserByEmail is a case-sensitive exact match; the column comparison is
// deliberately not lowered.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*models.User, bool, error) {
	return s.findUser(ctx, `SELECT id, name, email, phone, role, created_at FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) findUser(ctx context.Context, query, arg string) (*models.User, bool, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Name, &user.Email, &user.Phone, &user.Role, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewStorageUnavailableError(err)
	}
	return &user, true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		app        models.Application
		personal   []byte
		address    []byte
		employment []byte
		visaStart  sql.NullTime
		visaEnd    sql.NullTime
	)

	err := row.Scan(&app.ID, &app.UserID, &personal, &address, &employment,
		&visaStart, &visaEnd, &app.Status, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(personal, &app.Personal); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(address, &app.Address); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(employment, &app.Employment); err != nil {
		return nil, err
	}

	if visaStart.Valid {
		t := visaStart.Time
		app.VisaStart = &t
	}
	if visaEnd.Valid {
		t := visaEnd.Time
		app.VisaEnd = &t
	}

	return &app, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
