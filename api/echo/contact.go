package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ecolehq/ecole/core/contact"
)

type contactApi struct {
	svc      contact.ServiceInterface
	validate *validator.Validate
}

func registerContactAPI(g *echo.Group, svc contact.ServiceInterface, validate *validator.Validate) {
	api := contactApi{svc: svc, validate: validate}

	// write-only from the public site; triage lives under /admin
	g.POST("/contact", api.create)
}

func (api *contactApi) create(ctx echo.Context) error {
	var data contact.NewMessage
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMessage")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.Create(data)
	if err != nil {
		return errors.Wrap(err, "creating contact message")
	}
	return ctx.JSON(http.StatusCreated, msg)
}
