package dummydb

import (
	"sort"

	"github.com/ecolehq/ecole/core/contact"
)

type contactRepository struct {
	db *contactTable
}

var _ contact.Repository = (*contactRepository)(nil) // interface compliance check

func NewContactRepository(db *DB) contact.Repository {
	return &contactRepository{db: db.contact}
}

func (repo *contactRepository) CreateMessage(msg contact.Message) (contact.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	cp := msg
	repo.db.messages[msg.ID] = &cp
	return msg, nil
}

func (repo *contactRepository) QueryAllMessages() ([]contact.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	msgs := make([]contact.Message, 0, len(repo.db.messages))
	for _, msg := range repo.db.messages {
		msgs = append(msgs, *msg)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.After(msgs[j].CreatedAt) })
	return msgs, nil
}

func (repo *contactRepository) GetMessageByID(id string) (contact.Message, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if msg, ok := repo.db.messages[id]; ok {
		return *msg, nil
	}
	return contact.Message{}, contact.ErrNotFound
}

func (repo *contactRepository) UpdateMessage(msg contact.Message) (contact.Message, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.messages[msg.ID]; !ok {
		return contact.Message{}, contact.ErrNotFound
	}
	cp := msg
	repo.db.messages[msg.ID] = &cp
	return msg, nil
}
