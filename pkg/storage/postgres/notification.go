package postgres

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/nsyszr/notify/pkg/model"
	"github.com/nsyszr/notify/pkg/storage"
	"github.com/pkg/errors"
)

func newNotificationStore(db *sqlx.DB) *notificationStore {
	return &notificationStore{
		db: db,
	}
}

type notificationStore struct {
	db *sqlx.DB
}

type sqlDataNotification struct {
	ID                int64          `db:"id"`
	Message           string         `db:"message"`
	Priority          string         `db:"priority"`
	RecipientUsername sql.NullString `db:"recipient_username"`
	Status            string         `db:"status"`
	Timestamp         time.Time      `db:"timestamp"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
}

var sqlParamsNotification = []string{
	"id",
	"message",
	"priority",
	"recipient_username",
	"status",
	"timestamp",
	"created_at",
	"updated_at",
}

func (d *sqlDataNotification) Scan(m *model.Notification) error {
	var createdAt, updatedAt = m.CreatedAt, m.UpdatedAt

	if m.CreatedAt.IsZero() {
		createdAt = time.Now().Round(time.Second).UTC()
	}

	if m.UpdatedAt.IsZero() {
		updatedAt = time.Now().Round(time.Second).UTC()
	}

	d.ID = m.ID
	d.Message = m.Message
	d.Priority = string(m.Priority)
	d.RecipientUsername = sql.NullString{}
	if m.Recipient != nil {
		d.RecipientUsername = sql.NullString{String: m.Recipient.Username, Valid: true}
	}
	d.Status = string(m.Status)
	d.Timestamp = m.Timestamp
	d.CreatedAt = createdAt
	d.UpdatedAt = updatedAt

	return nil
}

func (d *sqlDataNotification) Model() (*model.Notification, error) {
	m := &model.Notification{
		ID:        d.ID,
		Message:   d.Message,
		Priority:  model.Priority(d.Priority),
		Status:    model.Status(d.Status),
		Timestamp: d.Timestamp,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.RecipientUsername.Valid {
		m.Recipient = &model.User{Username: d.RecipientUsername.String}
	}

	return m, nil
}

func (s *notificationStore) FetchAll() ([]model.Notification, error) {
	query := "SELECT * FROM notifications ORDER BY timestamp DESC, id DESC"
	return selectNotifications(s.db, query)
}

func (s *notificationStore) FetchByRecipient(username string) ([]model.Notification, error) {
	query := `SELECT * FROM notifications
		WHERE recipient_username IS NULL OR recipient_username=$1
		ORDER BY timestamp DESC, id DESC`
	return selectNotifications(s.db, query, username)
}

func (s *notificationStore) FindByID(id int64) (*model.Notification, error) {
	d := sqlDataNotification{}
	query := "SELECT * FROM notifications WHERE id=$1"
	if err := s.db.Get(&d, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to find notification")
	}

	return d.Model()
}

func (s *notificationStore) Create(m *model.Notification) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().Round(time.Second).UTC()
	}

	d := sqlDataNotification{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert notification model to SQL data")
	}

	// Remove the id column because it's of SQL type serial
	sqlParamsWithoutID := make([]string, 0)
	for _, s := range sqlParamsNotification {
		if s != "id" {
			sqlParamsWithoutID = append(sqlParamsWithoutID, s)
		}
	}

	query := fmt.Sprintf(
		"INSERT INTO notifications (%s) VALUES (%s) RETURNING id",
		strings.Join(sqlParamsWithoutID, ", "),
		":"+strings.Join(sqlParamsWithoutID, ", :"),
	)
	rows, err := s.db.NamedQuery(query, d)
	if err != nil {
		return errors.Wrap(err, "failed to create notification")
	}
	defer rows.Close()
	if rows.Next() {
		rows.Scan(&m.ID)
	}

	return nil
}

func (s *notificationStore) Update(m *model.Notification) error {
	m.UpdatedAt = time.Now().Round(time.Second).UTC()

	d := sqlDataNotification{}
	if err := d.Scan(m); err != nil {
		return errors.Wrap(err, "failed to convert notification model to SQL data")
	}

	query := `UPDATE notifications SET message=:message, priority=:priority,
		recipient_username=:recipient_username, status=:status,
		timestamp=:timestamp, updated_at=:updated_at WHERE id=:id`
	res, err := s.db.NamedExec(query, d)
	if err != nil {
		return errors.Wrap(err, "failed to update notification")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s *notificationStore) Delete(id int64) error {
	res, err := s.db.Exec("DELETE FROM notifications WHERE id=$1", id)
	if err != nil {
		return errors.Wrap(err, "failed to delete notification")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (s *notificationStore) Count() (int64, error) {
	var count int64
	if err := s.db.Get(&count, "SELECT COUNT(*) FROM notifications"); err != nil {
		return 0, errors.Wrap(err, "failed to count notifications")
	}

	return count, nil
}

func selectNotifications(db *sqlx.DB, query string, args ...interface{}) ([]model.Notification, error) {
	rows := make([]sqlDataNotification, 0)
	if err := db.Select(&rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to fetch notifications")
	}

	models := make([]model.Notification, 0, len(rows))
	for _, d := range rows {
		m, err := d.Model()
		if err != nil {
			return nil, errors.Wrap(err, "failed to convert SQL data to notification model")
		}
		models = append(models, *m)
	}

	return models, nil
}
