package contact

import (
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ecolehq/ecole/core"
)

var ErrNotFound = errors.New("contact message not found")

type (
	Repository interface {
		CreateMessage(msg Message) (Message, error)
		QueryAllMessages() ([]Message, error)
		GetMessageByID(id string) (Message, error)
		UpdateMessage(msg Message) (Message, error)
	}

	ServiceInterface interface {
		Create(nm NewMessage) (Message, error)
		QueryAll() ([]Message, error)
		GetByID(id string) (Message, error)
		SetResponded(id string, responded bool) (Message, error)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService) *service {
	return &service{repo: repo, mailSvc: mailSvc}
}

func (svc *service) Create(nm NewMessage) (Message, error) {
	msg := Message{
		ID:        uuid.New().String(),
		Name:      nm.Name,
		Email:     nm.Email,
		Message:   nm.Message,
		CreatedAt: time.Now().UTC(),
	}
	msg, err := svc.repo.CreateMessage(msg)
	if err != nil {
		return Message{}, err
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: core.Conf.ContactEmail}},
		Subject:      "New contact message",
		TemplateName: "contact-message",
		TemplateData: msg,
	})
	return msg, nil
}

func (svc *service) QueryAll() ([]Message, error) {
	return svc.repo.QueryAllMessages()
}

func (svc *service) GetByID(id string) (Message, error) {
	return svc.repo.GetMessageByID(id)
}

func (svc *service) SetResponded(id string, responded bool) (Message, error) {
	msg, err := svc.repo.GetMessageByID(id)
	if err != nil {
		return Message{}, err
	}
	msg.Responded = responded
	return svc.repo.UpdateMessage(msg)
}
