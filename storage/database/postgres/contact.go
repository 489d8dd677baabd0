package pgrepos

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/ecolehq/ecole/core/contact"
)

type contactRepository struct {
	db *sqlx.DB
}

var _ contact.Repository = (*contactRepository)(nil) // interface compliance check

func NewContactRepository(db *sqlx.DB) contact.Repository {
	return &contactRepository{db: db}
}

type messageRow struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Message   string    `db:"message"`
	Responded bool      `db:"responded"`
	CreatedAt time.Time `db:"created_at"`
}

func (repo *contactRepository) CreateMessage(msg contact.Message) (contact.Message, error) {
	query := `
INSERT INTO contact_messages (id, name, email, message, responded, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := repo.db.Exec(query, msg.ID, msg.Name, msg.Email, msg.Message, msg.Responded, msg.CreatedAt)
	if err != nil {
		return contact.Message{}, errors.Wrap(err, "inserting contact message")
	}
	return msg, nil
}

func (repo *contactRepository) QueryAllMessages() ([]contact.Message, error) {
	var rows []messageRow
	if err := repo.db.Select(&rows, `SELECT * FROM contact_messages ORDER BY created_at DESC`); err != nil {
		return nil, errors.Wrap(err, "querying contact messages")
	}
	msgs := make([]contact.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, contact.Message(row))
	}
	return msgs, nil
}

func (repo *contactRepository) GetMessageByID(id string) (contact.Message, error) {
	var row messageRow
	if err := repo.db.Get(&row, `SELECT * FROM contact_messages WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return contact.Message{}, contact.ErrNotFound
		}
		return contact.Message{}, errors.Wrap(err, "getting contact message")
	}
	return contact.Message(row), nil
}

func (repo *contactRepository) UpdateMessage(msg contact.Message) (contact.Message, error) {
	res, err := repo.db.Exec(`UPDATE contact_messages SET responded = $1 WHERE id = $2`, msg.Responded, msg.ID)
	if err != nil {
		return contact.Message{}, errors.Wrap(err, "updating contact message")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return contact.Message{}, contact.ErrNotFound
	}
	return msg, nil
}
