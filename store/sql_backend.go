package store

import (
	"database/sql"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/mbolis/leadbox/model"
)

// SQLBackend keeps submissions and the visit counter in a SQLite database
// opened through the database package.
type SQLBackend struct {
	db *sql.DB
}

func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db}
}

func (b *SQLBackend) LoadSubmissions() ([]model.FormSubmission, error) {
	rows, err := b.db.Query(`SELECT id, form_type, timestamp, data FROM submission`)
	if err != nil {
		return nil, errors.Wrap(err, "query submissions")
	}
	defer rows.Close()

	var skipped *multierror.Error
	subs := []model.FormSubmission{}
	for rows.Next() {
		var sub model.FormSubmission
		var data string
		err = rows.Scan(&sub.ID, &sub.FormType, &sub.Timestamp, &data)
		if err != nil {
			return nil, errors.Wrap(err, "scan submission")
		}

		if err := json.Unmarshal([]byte(data), &sub.Data); err != nil {
			skipped = multierror.Append(skipped, errors.Wrapf(err, "decode data of %s", sub.ID))
			continue
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate submissions")
	}

	return subs, skipped.ErrorOrNil()
}

func (b *SQLBackend) SaveSubmission(sub model.FormSubmission) error {
	data, err := json.Marshal(sub.Data)
	if err != nil {
		return errors.Wrapf(err, "encode data of %s", sub.ID)
	}

	_, err = b.db.Exec(`
		INSERT INTO submission (id, form_type, timestamp, data)
		VALUES (?, ?, ?, ?)`,
		sub.ID,
		sub.FormType,
		sub.Timestamp,
		string(data),
	)
	return errors.Wrapf(err, "insert submission %s", sub.ID)
}

func (b *SQLBackend) DeleteSubmission(id string) (bool, error) {
	res, err := b.db.Exec(`DELETE FROM submission WHERE id = ?`, id)
	if err != nil {
		return false, errors.Wrapf(err, "delete submission %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "delete submission %s", id)
	}
	return n > 0, nil
}

func (b *SQLBackend) LoadCounter() (*model.VisitCounter, error) {
	var c model.VisitCounter
	var by, reason sql.NullString
	err := b.db.QueryRow(`
		SELECT
			total_visits, daily_visits, last_reset_date,
			last_reset_by, last_reset_reason,
			created_at, updated_at
		FROM visit_counter
		WHERE id = 1`,
	).Scan(
		&c.TotalVisits, &c.DailyVisits, &c.LastResetDate,
		&by, &reason,
		&c.CreatedAt, &c.UpdatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(err, "select visit counter")
	}

	if by.Valid {
		c.LastResetBy = &by.String
	}
	if reason.Valid {
		c.LastResetReason = &reason.String
	}
	return &c, nil
}

func (b *SQLBackend) SaveCounter(c model.VisitCounter) error {
	_, err := b.db.Exec(`
		INSERT INTO visit_counter (
			id, total_visits, daily_visits, last_reset_date,
			last_reset_by, last_reset_reason, created_at, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			total_visits = excluded.total_visits,
			daily_visits = excluded.daily_visits,
			last_reset_date = excluded.last_reset_date,
			last_reset_by = excluded.last_reset_by,
			last_reset_reason = excluded.last_reset_reason,
			updated_at = excluded.updated_at`,
		c.TotalVisits,
		c.DailyVisits,
		c.LastResetDate,
		nullString(c.LastResetBy),
		nullString(c.LastResetReason),
		c.CreatedAt,
		c.UpdatedAt,
	)
	return errors.Wrap(err, "upsert visit counter")
}

func (b *SQLBackend) Close() error {
	return b.db.Close()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
