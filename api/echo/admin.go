package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ecolehq/ecole/core"
	"github.com/ecolehq/ecole/core/contact"
	"github.com/ecolehq/ecole/core/user"
)

// adminApi is the back-office surface: user management, invitations and
// contact-message triage. Everything here sits behind adminMiddleware.
type adminApi struct {
	usrSvc     user.ServiceInterface
	contactSvc contact.ServiceInterface
	validate   *validator.Validate
}

func registerAdminAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	usrSvc user.ServiceInterface,
	contactSvc contact.ServiceInterface,
	validate *validator.Validate,
) {
	api := adminApi{usrSvc: usrSvc, contactSvc: contactSvc, validate: validate}

	ag := g.Group("/admin", jwt, adminMiddleware(usrSvc))

	ag.GET("/users", api.queryUsers)
	ag.POST("/users", api.createUser)
	ag.POST("/users/invite", api.inviteUsers)
	ag.PUT("/users/:id", api.updateUser)
	ag.DELETE("/users/:id", api.destroyProfile)
	ag.DELETE("/users/:id/identity", api.destroyIdentity)
	ag.GET("/roles", api.queryRoles)

	ag.GET("/contact-messages", api.queryMessages)
	ag.PUT("/contact-messages/:id", api.updateMessage)
}

// Users

func (api *adminApi) queryUsers(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx, "email", "role", "is_active", "created_at", "last_login")

	users, err := api.usrSvc.Query(filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *adminApi) createUser(ctx echo.Context) error {
	var data AdminNewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AdminNewUser")
	}
	if err := data.Validate(api.validate, api.usrSvc); err != nil {
		return err
	}

	role := data.Role
	if role == "" {
		role = user.RoleStudent
	}
	active := true
	if data.IsActive != nil {
		active = *data.IsActive
	}

	usr, err := api.usrSvc.Create(data.NewUser, role, active)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

// inviteUsers creates inactive accounts and emails set-password links. Each
// email is processed independently; failures are reported per address.
func (api *adminApi) inviteUsers(ctx echo.Context) error {
	var data InviteRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to InviteRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	res := InviteResponse{
		Invited: make([]user.User, 0, len(data.Emails)),
		Failed:  make(map[string]string),
	}
	for _, email := range data.Emails {
		usr, err := api.usrSvc.Invite(email)
		if err != nil {
			res.Failed[email] = errors.Cause(err).Error()
			continue
		}
		res.Invited = append(res.Invited, usr)
	}

	code := http.StatusCreated
	if len(res.Invited) == 0 && len(res.Failed) > 0 {
		code = http.StatusBadRequest
	}
	return ctx.JSON(code, res)
}

func (api *adminApi) updateUser(ctx echo.Context) error {
	usr, err := api.usrSvc.GetByID(ctx.Param("id"))
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err := data.Validate(usr, api.validate, api.usrSvc); err != nil {
		return err
	}

	usr, err = api.usrSvc.Update(usr, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

// destroyProfile removes the user's profile but keeps the identity so the
// account history remains auditable.
func (api *adminApi) destroyProfile(ctx echo.Context) error {
	if err := api.noSelfTarget(ctx); err != nil {
		return err
	}
	if err := api.usrSvc.DeleteProfile(ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// destroyIdentity removes the identity (and the profile with it); the account
// is gone for good.
func (api *adminApi) destroyIdentity(ctx echo.Context) error {
	if err := api.noSelfTarget(ctx); err != nil {
		return err
	}
	id := ctx.Param("id")
	if err := api.usrSvc.DeleteProfile(id); err != nil && errors.Cause(err) != user.ErrNotFound {
		return err
	}
	if err := api.usrSvc.DeleteIdentity(id); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Say No to Suicide! admins cannot delete themselves.
func (api *adminApi) noSelfTarget(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if claims.Subject == ctx.Param("id") {
		return errHttpForbidden
	}
	return nil
}

func (api *adminApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

// Contact messages

func (api *adminApi) queryMessages(ctx echo.Context) error {
	msgs, err := api.contactSvc.QueryAll()
	if err != nil {
		return errors.Wrap(err, "querying contact messages")
	}
	if msgs == nil {
		msgs = []contact.Message{}
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *adminApi) updateMessage(ctx echo.Context) error {
	var data RespondedRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RespondedRequest")
	}

	msg, err := api.contactSvc.SetResponded(ctx.Param("id"), data.Responded)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, msg)
}

type (
	AdminNewUser struct {
		user.NewUser
		Role     string `json:"role" validate:"omitempty,oneof=student instructor admin"`
		IsActive *bool  `json:"is_active"`
	}

	InviteRequest struct {
		Emails []string `json:"emails" validate:"required,min=1,dive,email"`
	}

	InviteResponse struct {
		Invited []user.User       `json:"invited"`
		Failed  map[string]string `json:"failed,omitempty"`
	}

	RespondedRequest struct {
		Responded bool `json:"responded"`
	}
)

func (anu *AdminNewUser) Validate(validate *validator.Validate, svc user.ServiceInterface) error {
	anu.FirstName = core.CleanString(anu.FirstName)
	anu.LastName = core.CleanString(anu.LastName)
	anu.Email = core.CleanString(anu.Email, true /* lower */)

	if err := validate.Struct(anu); err != nil {
		return err
	}
	return svc.CheckUniqueness(anu.Email)
}

func (ir *InviteRequest) Validate(validate *validator.Validate) error {
	for i, email := range ir.Emails {
		ir.Emails[i] = core.CleanString(email, true /* lower */)
	}
	return validate.Struct(ir)
}
