package user

import (
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/ecolehq/ecole/core"
)

var (
	// errors
	ErrNotFound    = errors.New("user not found")
	ErrEmailExists = errors.New("a user with this email already exists")
)

type (
	Repository interface {
		CheckEmailUniqueness(email string, excludedUsers ...User) error
		// CreateIdentity persists the auth half of a User (email, password,
		// active flag). CreateProfile is a separate, independently-failable
		// write; a User can exist with an identity and no profile.
		CreateIdentity(usr User) (User, error)
		CreateProfile(usr User) (User, error)
		GetUserByID(id string) (User, error)
		GetUserByEmail(email string) (User, error)
		// FilterUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of
		// User.FirstName, User.LastName or User.Email.
		FilterUsers(filter QueryFilter, orderings ...core.DBOrdering) ([]User, error)
		UpdateUser(usr User, isActive *bool) (User, error)
		SetLastLogin(usr User) (User, error)
		DeleteProfile(id string) error
		DeleteIdentity(id string) error
	}

	ServiceInterface interface {
		CheckUniqueness(email string, exclUsers ...User) error
		Register(nu NewUser) (User, error)
		Create(nu NewUser, role string, active bool) (User, error)
		GetByID(id string) (User, error)
		GetByEmail(email string) (User, error)
		EnsureProfile(usr User) (User, error)
		Query(filter *QueryFilter, orderings []core.DBOrdering) ([]User, error)
		Update(origUsr User, uu UpdateUser) (User, error)
		SetAvatar(usr User, avatarURL string) (User, error)
		SetLastLogin(usr User) (User, error)
		DeleteProfile(id string) error
		DeleteIdentity(id string) error
		RequestPasswordReset(email string) error
		ResetPassword(rp ResetUserPassword) (User, error)
		Invite(email string) (User, error)
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

func (svc *service) CheckUniqueness(email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(email, exclUsers...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return err
	}
	return nil
}

// Register creates a student account: identity first, then the profile as a
// secondary write. A profile write failure is returned but leaves the identity
// in place; login repairs the missing profile.
func (svc *service) Register(nu NewUser) (User, error) {
	usr, err := svc.Create(nu, RoleStudent, true)
	if err != nil {
		return usr, err
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: usr.Email}},
		Subject:      "Welcome to " + core.Conf.AppName,
		TemplateName: "welcome",
		TemplateData: struct{ FirstName string }{usr.FirstName.String},
	})
	return usr, nil
}

func (svc *service) Create(nu NewUser, role string, active bool) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:        uuid.New().String(),
		FirstName: null.NewString(nu.FirstName, nu.FirstName != ""),
		LastName:  null.NewString(nu.LastName, nu.LastName != ""),
		Email:     nu.Email,
		Role:      role,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if nu.Password != "" {
		if err := usr.SetPassword(nu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	// CreateIdentity's return has the profile half masked; the profile write
	// needs the populated struct.
	if _, err := svc.repo.CreateIdentity(usr); err != nil {
		return User{}, errors.Wrap(err, "creating identity")
	}
	res, err := svc.repo.CreateProfile(usr)
	if err != nil {
		return res, errors.Wrap(err, "creating profile")
	}
	return res, nil
}

func (svc *service) GetByID(id string) (User, error) {
	return svc.repo.GetUserByID(id)
}

func (svc *service) GetByEmail(email string) (User, error) {
	return svc.repo.GetUserByEmail(core.CleanString(email, true /* lower */))
}

// EnsureProfile lazily creates the profile row for an identity that lost (or
// never got) one.
func (svc *service) EnsureProfile(usr User) (User, error) {
	if usr.HasProfile() {
		return usr, nil
	}
	usr.Role = RoleStudent
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.CreateProfile(usr)
}

func (svc *service) Query(filter *QueryFilter, orderings []core.DBOrdering) ([]User, error) {
	if filter == nil {
		filter = new(QueryFilter)
	}
	return svc.repo.FilterUsers(*filter, orderings...)
}

func (svc *service) Update(origUsr User, uu UpdateUser) (User, error) {
	usr := origUsr
	if uu.FirstName != "" {
		usr.FirstName = null.StringFrom(uu.FirstName)
	}
	if uu.LastName != "" {
		usr.LastName = null.StringFrom(uu.LastName)
	}
	if uu.Bio != nil {
		usr.Bio = null.NewString(*uu.Bio, *uu.Bio != "")
	}
	if uu.Email != "" {
		usr.Email = uu.Email
	}
	if uu.Role != "" {
		usr.Role = uu.Role
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(usr, uu.IsActive)
}

func (svc *service) SetAvatar(usr User, avatarURL string) (User, error) {
	usr.AvatarURL = null.StringFrom(avatarURL)
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(usr, nil)
}

func (svc *service) SetLastLogin(usr User) (User, error) {
	usr.LastLogin = null.TimeFrom(time.Now().UTC())
	return svc.repo.SetLastLogin(usr)
}

func (svc *service) DeleteProfile(id string) error {
	return svc.repo.DeleteProfile(id)
}

func (svc *service) DeleteIdentity(id string) error {
	return svc.repo.DeleteIdentity(id)
}

func (svc *service) RequestPasswordReset(email string) error {
	usr, err := svc.GetByEmail(email)
	if err != nil {
		return err
	}
	token, err := MakeToken(usr)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password-reset",
		TemplateData: struct{ UID, Token string }{EncodeUID(usr), token},
	})
	return nil
}

func (svc *service) ResetPassword(rp ResetUserPassword) (User, error) {
	id, err := decodeUID(rp.UID)
	if err != nil {
		return User{}, core.NewValidationError(errInvalidToken)
	}
	usr, err := svc.repo.GetUserByID(id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, core.NewValidationError(errInvalidToken)
		}
		return User{}, err
	}
	if err = verifyToken(usr, rp.Token); err != nil {
		return User{}, core.NewValidationError(err)
	}
	if err = usr.SetPassword(rp.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	// an invited account becomes active once its password is set
	active := true
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(usr, &active)
}

// Invite creates an inactive account for the email and sends a set-password
// link. The account activates when the invitee sets their password.
func (svc *service) Invite(email string) (User, error) {
	nu := NewUser{Email: core.CleanString(email, true /* lower */)}
	usr, err := svc.Create(nu, RoleStudent, false)
	if err != nil {
		return usr, err
	}
	token, err := MakeToken(usr)
	if err != nil {
		return usr, errors.Wrap(err, "generating token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Address: usr.Email}},
		Subject:      "You have been invited to " + core.Conf.AppName,
		TemplateName: "invitation",
		TemplateData: struct{ UID, Token string }{EncodeUID(usr), token},
	})
	return usr, nil
}
