package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/nsyszr/notify/pkg/model"
	"github.com/nsyszr/notify/pkg/storage"
	"github.com/pkg/errors"
)

func newUserStore(db *sqlx.DB) *userStore {
	return &userStore{
		db: db,
	}
}

type userStore struct {
	db *sqlx.DB
}

type sqlDataUser struct {
	ID                   int64     `db:"id"`
	Username             string    `db:"username"`
	NotificationsEnabled bool      `db:"notifications_enabled"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}

var sqlParamsUser = []string{
	"id",
	"username",
	"notifications_enabled",
	"created_at",
	"updated_at",
}

func (d *sqlDataUser) Scan(m *model.User) error {
	var createdAt, updatedAt = m.CreatedAt, m.UpdatedAt

	if m.CreatedAt.IsZero() {
		createdAt = time.Now().Round(time.Second).UTC()
	}

	if m.UpdatedAt.IsZero() {
		updatedAt = time.Now().Round(time.Second).UTC()
	}

	d.ID = m.ID
	d.Username = m.Username
	d.NotificationsEnabled = m.NotificationsEnabled
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt

	return nil
}

func (d *sqlDataUser) Model() (*model.User, error) {
	m := &model.User{
		ID:                   d.ID,
		Username:             d.Username,
		NotificationsEnabled: d.NotificationsEnabled,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}

	return m, nil
}

func (s *userStore) FetchAll() ([]model.User, error) {
	rows := make([]sqlDataUser, 0)
	query := "SELECT * FROM users ORDER BY id"
	if err := s.db.Select(&rows, query); err != nil {
		return nil, errors.Wrap(err, "failed to fetch all users")
	}

	models := make([]model.User, 0, len(rows))
	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to user model")
		}
		models = append(models, *m)
	}

	return models, nil
}

func (s *userStore) FindByUsername(username string) (*model.User, error) {
	d := sqlDataUser{}
	query := "SELECT * FROM users WHERE username=$1"
	if err := s.db.Get(&d, query, username); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find user")
	}

	return d.Model()
}

func (s *userStore) Create(m *model.User) error {
	d := sqlDataUser{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert user model to SQL data")
	}

	// Remove the id column because it's of SQL type serial
	sqlParamsWithoutID := make([]string, 0)
	for _, s := range sqlParamsUser {
		if s != "id" {
			sqlParamsWithoutID = append(sqlParamsWithoutID, s)
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO users (%s) VALUES (%s) RETURNING id",
		strings.Join(sqlParamsWithoutID, ", "),
		":"+strings.Join(sqlParamsWithoutID, ", :"),
	)
	rows, err := s.db.NamedQuery(query, d)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return storage.ErrExists
		}
		return errors.Wrap(err, "failed to create user")
	}
	defer rows.Close()
	if rows.Next() {
		rows.Scan(&m.ID)
	}

	return nil
}

func (s *userStore) Count() (int64, error) {
	var count int64
	if err := s.db.Get(&count, "SELECT COUNT(*) FROM users"); err != nil {
		return 0, errors.Wrap(err, "failed to count users")
	}

	return count, nil
}
