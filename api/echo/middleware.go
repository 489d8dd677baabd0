package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ecolehq/ecole/core/user"
)

// adminMiddleware re-reads the caller's role from the database on every
// request so a role change takes effect immediately, stale tokens included.
func adminMiddleware(svc user.ServiceInterface) echo.MiddlewareFunc {
	return roleMiddleware(svc, user.User.IsAdmin)
}

// staffMiddleware admits admins and instructors.
func staffMiddleware(svc user.ServiceInterface) echo.MiddlewareFunc {
	return roleMiddleware(svc, user.User.IsStaff)
}

func roleMiddleware(svc user.ServiceInterface, allowed func(user.User) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, svc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if !ctxUsr.IsActive || !allowed(ctxUsr) {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}
