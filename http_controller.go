package auth

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// RegisterAuthRoutes mounts every page of the application on app
func RegisterAuthRoutes[T any](app router.Router[T], controller *AuthController) {
	auth := controller.Auth
	loginRequired := auth.LoginRequired()
	freshLoginRequired := auth.FreshLoginRequired()

	app.Get(controller.Routes.Home, controller.Home, loginRequired).SetName("general.home")

	app.Get(controller.Routes.Login, controller.LoginShow).SetName("auth.login.get")
	app.Post(controller.Routes.Login, controller.LoginPost).SetName("auth.login.post")
	app.Get(controller.Routes.Logout, controller.LogOut, loginRequired).SetName("auth.logout")

	app.Get(controller.Routes.Reauthenticate, controller.ReauthenticateShow, loginRequired).
		SetName("auth.reauthenticate.get")
	app.Post(controller.Routes.Reauthenticate, controller.ReauthenticatePost, loginRequired).
		SetName("auth.reauthenticate.post")

	app.Get(controller.Routes.ForgotPassword, controller.ForgotPasswordShow).SetName("auth.forgot_password.get")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost).SetName("auth.forgot_password.post")

	app.Get(controller.Routes.ResetPassword+"/:token", controller.ResetPasswordShow).
		SetName("auth.reset_password.get")
	app.Post(controller.Routes.ResetPassword+"/:token", controller.ResetPasswordPost).
		SetName("auth.reset_password.post")

	app.Get(controller.Routes.Invite, controller.InviteShow, loginRequired).SetName("auth.invite.get")
	app.Post(controller.Routes.Invite, controller.InvitePost, freshLoginRequired).SetName("auth.invite.post")

	app.Get(controller.Routes.Signup+"/:token", controller.SignupShow).SetName("auth.signup.get")
	app.Post(controller.Routes.Signup+"/:token", controller.SignupPost).SetName("auth.signup.post")
}

type AuthControllerRoutes struct {
	Home           string
	Login          string
	Logout         string
	Reauthenticate string
	ForgotPassword string
	ResetPassword  string
	Invite         string
	Signup         string
}

type AuthControllerViews struct {
	Home           string
	Login          string
	Reauthenticate string
	ForgotPassword string
	ResetPassword  string
	Invite         string
	Signup         string
}

type AuthController struct {
	Debug         bool
	Logger        Logger
	Routes        *AuthControllerRoutes
	Views         *AuthControllerViews
	Auth          *RouteAuthenticator
	Auther        *Auther
	ResetInit     *InitializePasswordResetHandler
	ResetFinalize *FinalizePasswordResetHandler
	Invite        *IssueInvitationHandler
	Signup        *SignupHandler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerDebug logs request payloads
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// WithControllerLogger overrides the controller logger
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = normalizeLogger(logger)
		return c
	}
}

func NewAuthController(auth *RouteAuthenticator, auther *Auther, resetInit *InitializePasswordResetHandler, resetFinalize *FinalizePasswordResetHandler, invite *IssueInvitationHandler, signup *SignupHandler, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:        defLogger{},
		Auth:          auth,
		Auther:        auther,
		ResetInit:     resetInit,
		ResetFinalize: resetFinalize,
		Invite:        invite,
		Signup:        signup,
		Routes: &AuthControllerRoutes{
			Home:           "/",
			Login:          "/login",
			Logout:         "/logout",
			Reauthenticate: "/reauthenticate",
			ForgotPassword: "/forgot-password",
			ResetPassword:  "/reset-password",
			Invite:         "/invite",
			Signup:         "/signup",
		},
		Views: &AuthControllerViews{
			Home:           "general/home",
			Login:          "auth/login",
			Reauthenticate: "auth/reauthenticate",
			ForgotPassword: "auth/forgot_password",
			ResetPassword:  "auth/reset_password",
			Invite:         "auth/invite",
			Signup:         "auth/signup",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Auth == nil {
		panic("Missing RouteAuthenticator in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	return c
}

func (a *AuthController) render(ctx router.Context, view string, data router.ViewContext) error {
	binding := a.Auth.TemplateHelpers(ctx)
	for k, v := range data {
		binding[k] = v
	}
	return ctx.Render(view, binding)
}

// notice shows a message on the page being rendered
func (a *AuthController) notice(ctx router.Context, level, key string) router.ViewContext {
	return a.Auth.Message(ctx, level, key)
}

// redirect sends the visitor to another page, carrying a flash message
// when level is set.
func (a *AuthController) redirect(ctx router.Context, to, level, key string) error {
	if level == "" {
		return ctx.Redirect(to, fiber.StatusFound)
	}
	return a.Auth.Flash(ctx, level, key).Redirect(to, fiber.StatusFound)
}

// logoutVisitor ends the session of a logged in visitor on anonymous-only pages
func (a *AuthController) logoutVisitor(ctx router.Context) error {
	if _, ok := CurrentUser(ctx); ok {
		return a.Auth.Logout(ctx)
	}
	return nil
}

func (a *AuthController) debugPayload(name string, payload any) {
	if a.Debug {
		a.Logger.Debug("request payload", "form", name, "payload", print.MaybePrettyJSON(payload))
	}
}

func (a *AuthController) Home(ctx router.Context) error {
	user, _ := CurrentUser(ctx)
	return a.render(ctx, a.Views.Home, router.ViewContext{
		"user":   user,
		"joined": FormatDatetime(user.JoinedAt, user.Timezone),
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identity   string `form:"identity" json:"identity"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identity,
			validation.Required.Error("Identity is required"),
		),
		validation.Field(
			&r.Password,
			validation.Required.Error("Password is required"),
		),
	)
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return a.render(ctx, a.Views.Login, router.ViewContext{
		"errors": map[string]string{},
		"record": LoginRequest{},
		"next":   ctx.Query("next", ""),
	})
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return fiber.ErrBadRequest
	}

	a.debugPayload("login", map[string]any{"identity": payload.Identity, "remember_me": payload.RememberMe})

	next := ctx.Query("next", "")
	view := router.ViewContext{
		"record": payload,
		"next":   next,
	}

	if err := payload.Validate(); err != nil {
		view["errors"] = FormatValidationErrorToMap(err)
		return a.render(ctx, a.Views.Login, view)
	}

	result, err := a.Auther.Login(ctx.Context(), payload.Identity, payload.Password, payload.RememberMe)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			a.Logger.Error("login failed", "error", err)
		}
		view["errors"] = map[string]string{}
		view["flash"] = a.notice(ctx, FlashError, "Invalid credentials")
		return a.render(ctx, a.Views.Login, view)
	}

	if err := a.Auth.Login(ctx, result); err != nil {
		return err
	}

	return a.redirect(ctx, a.Auth.SafeRedirect(ctx, next, a.Routes.Home), FlashSuccess, "Logged in successfully")
}

func (a *AuthController) LogOut(ctx router.Context) error {
	if err := a.Auth.Logout(ctx); err != nil {
		return err
	}
	return a.redirect(ctx, a.Routes.Login, "", "")
}

// ReauthenticateRequest payload
type ReauthenticateRequest struct {
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r ReauthenticateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Password, validation.Required.Error("Password is required")),
	)
}

func (a *AuthController) forceLogout(ctx router.Context) error {
	if err := a.Auth.Logout(ctx); err != nil {
		return err
	}
	return a.redirect(ctx, a.Routes.Login, FlashWarning, "User is not active")
}

func (a *AuthController) ReauthenticateShow(ctx router.Context) error {
	if user, _ := CurrentUser(ctx); !user.IsActive {
		return a.forceLogout(ctx)
	}

	return a.render(ctx, a.Views.Reauthenticate, router.ViewContext{
		"errors": map[string]string{},
		"next":   ctx.Query("next", ""),
	})
}

func (a *AuthController) ReauthenticatePost(ctx router.Context) error {
	user, _ := CurrentUser(ctx)

	payload := new(ReauthenticateRequest)
	if err := ctx.Bind(payload); err != nil {
		return fiber.ErrBadRequest
	}

	next := ctx.Query("next", "")
	view := router.ViewContext{
		"errors": map[string]string{},
		"next":   next,
	}

	if err := payload.Validate(); err != nil {
		if !user.IsActive {
			return a.forceLogout(ctx)
		}
		view["errors"] = FormatValidationErrorToMap(err)
		return a.render(ctx, a.Views.Reauthenticate, view)
	}

	if err := a.Auther.Reauthenticate(ctx.Context(), user, payload.Password); err != nil {
		if errors.Is(err, ErrInactiveUser) {
			return a.forceLogout(ctx)
		}
		view["flash"] = a.notice(ctx, FlashError, "Invalid credentials")
		return a.render(ctx, a.Views.Reauthenticate, view)
	}

	a.Auth.MarkFresh(ctx)
	return a.redirect(ctx, a.Auth.SafeRedirect(ctx, next, a.Routes.Home), "", "")
}

func (a *AuthController) ForgotPasswordShow(ctx router.Context) error {
	if err := a.logoutVisitor(ctx); err != nil {
		return err
	}

	return a.render(ctx, a.Views.ForgotPassword, router.ViewContext{
		"errors": map[string]string{},
		"record": InitializePasswordResetMessage{},
	})
}

func (a *AuthController) ForgotPasswordPost(ctx router.Context) error {
	if err := a.logoutVisitor(ctx); err != nil {
		return err
	}

	payload := new(InitializePasswordResetMessage)
	if err := ctx.Bind(payload); err != nil {
		return fiber.ErrBadRequest
	}

	view := router.ViewContext{
		"errors": map[string]string{},
		"record": payload,
	}

	if err := a.ResetInit.Execute(ctx.Context(), *payload); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			view["errors"] = verr.Fields
			return a.render(ctx, a.Views.ForgotPassword, view)
		}
		return err
	}

	view["flash"] = a.notice(ctx, FlashSuccess, PasswordResetRequestedMessage)
	return a.render(ctx, a.Views.ForgotPassword, view)
}

func (a *AuthController) ResetPasswordShow(ctx router.Context) error {
	if err := a.logoutVisitor(ctx); err != nil {
		return err
	}

	token := ctx.Param("token")
	if _, err := a.ResetFinalize.VerifyResetToken(ctx.Context(), token); err != nil {
		if !errors.Is(err, ErrInvalidOrExpiredToken) {
			a.Logger.Error("failed to verify reset token", "error", err)
		}
		return a.redirect(ctx, a.Routes.Login, FlashError, "Invalid password reset token provided")
	}

	return a.render(ctx, a.Views.ResetPassword, router.ViewContext{
		"errors": map[string]string{},
		"token":  token,
	})
}

func (a *AuthController) ResetPasswordPost(ctx router.Context) error {
	if err := a.logoutVisitor(ctx); err != nil {
		return err
	}

	token := ctx.Param("token")
	payload := new(FinalizePasswordResetMessage)
	if err := ctx.Bind(payload); err != nil {
		return fiber.ErrBadRequest
	}
	payload.Token = token

	view := router.ViewContext{
		"errors": map[string]string{},
		"token":  token,
	}

	err := a.ResetFinalize.Execute(ctx.Context(), *payload)
	if err == nil {
		return a.redirect(ctx, a.Routes.Login, FlashSuccess, "Password updated, you may now login")
	}

	var verr *ValidationError
	switch {
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return a.redirect(ctx, a.Routes.Login, FlashError, "Invalid password reset token provided")
	case errors.As(err, &verr):
		if _, terr := a.ResetFinalize.VerifyResetToken(ctx.Context(), token); terr != nil {
			return a.redirect(ctx, a.Routes.Login, FlashError, "Invalid password reset token provided")
		}
		view["errors"] = verr.Fields
	default:
		a.Logger.Error("failed to reset user password", "error", err)
		view["flash"] = a.notice(ctx, FlashError, "Error updating password, contact an admin")
	}

	return a.render(ctx, a.Views.ResetPassword, view)
}

func (a *AuthController) InviteShow(ctx router.Context) error {
	if user, _ := CurrentUser(ctx); !user.IsActive {
		if err := a.Auth.Logout(ctx); err != nil {
			return err
		}
		return a.redirect(ctx, a.Routes.Login, "", "")
	}

	return a.render(ctx, a.Views.Invite, router.ViewContext{
		"errors": map[string]string{},
		"record": IssueInvitationMessage{},
	})
}

func (a *AuthController) InvitePost(ctx router.Context) error {
	user, _ := CurrentUser(ctx)

	payload := new(IssueInvitationMessage)
	if err := ctx.Bind(payload); err != nil {
		return fiber.ErrBadRequest
	}
	payload.Owner = user

	a.debugPayload("invite", map[string]any{"owner": user.Username, "email": payload.Email})

	view := router.ViewContext{
		"errors": map[string]string{},
		"record": payload,
	}

	err := a.Invite.Execute(ctx.Context(), *payload)
	if err == nil {
		return a.redirect(ctx, a.Routes.Invite, FlashSuccess, "Invitation sent!")
	}

	var verr *ValidationError
	switch {
	case errors.Is(err, ErrInactiveUser):
		if err := a.Auth.Logout(ctx); err != nil {
			return err
		}
		return a.redirect(ctx, a.Routes.Login, "", "")
	case errors.Is(err, ErrNoInvitationsLeft):
		view["flash"] = a.notice(ctx, FlashError, "You have no invitations left")
	case errors.As(err, &verr):
		view["errors"] = verr.Fields
	default:
		view["flash"] = a.notice(ctx, FlashError, "Failed to create or send invitation")
	}

	return a.render(ctx, a.Views.Invite, view)
}

func (a *AuthController) signupView(ctx router.Context, token string, record SignupMessage, errs map[string]string) router.ViewContext {
	if record.Locale == "" {
		record.Locale = a.Auth.Translator().Locale(ctx, ctx.Header(fiber.HeaderAcceptLanguage))
	}
	if record.Timezone == "" {
		record.Timezone = a.Auth.defaultTimezone
	}
	return router.ViewContext{
		"errors":    errs,
		"record":    record,
		"token":     token,
		"timezones": CommonTimezones,
	}
}

func (a *AuthController) SignupShow(ctx router.Context) error {
	if err := a.logoutVisitor(ctx); err != nil {
		return err
	}

	token := ctx.Param("token")
	if _, err := a.Signup.VerifyInvitation(ctx.Context(), token); err != nil {
		if !errors.Is(err, ErrInvalidToken) {
			a.Logger.Error("failed to verify invitation", "error", err)
		}
		return a.redirect(ctx, a.Routes.Login, FlashError, "Token is not valid")
	}

	return a.render(ctx, a.Views.Signup, a.signupView(ctx, token, SignupMessage{}, map[string]string{}))
}

func (a *AuthController) SignupPost(ctx router.Context) error {
	if err := a.logoutVisitor(ctx); err != nil {
		return err
	}

	token := ctx.Param("token")
	payload := new(SignupMessage)
	if err := ctx.Bind(payload); err != nil {
		return fiber.ErrBadRequest
	}
	payload.Token = token

	a.debugPayload("signup", map[string]any{
		"username": payload.Username,
		"email":    payload.Email,
		"locale":   payload.Locale,
		"timezone": payload.Timezone,
	})

	err := a.Signup.Execute(ctx.Context(), *payload)
	if err == nil {
		return a.redirect(ctx, a.Routes.Login, FlashSuccess, "User created correctly, please login")
	}

	errs := map[string]string{}
	var notice router.ViewContext
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrInvalidToken):
		return a.redirect(ctx, a.Routes.Login, FlashError, "Token is not valid")
	case errors.As(err, &verr):
		if _, terr := a.Signup.VerifyInvitation(ctx.Context(), token); terr != nil {
			return a.redirect(ctx, a.Routes.Login, FlashError, "Token is not valid")
		}
		errs = verr.Fields
	case errors.Is(err, ErrDuplicateUser):
		notice = a.notice(ctx, FlashError, "A user with those details already exists")
	default:
		notice = a.notice(ctx, FlashError, "Failed to create user")
	}

	view := a.signupView(ctx, token, *payload, errs)
	if notice != nil {
		view["flash"] = notice
	}
	return a.render(ctx, a.Views.Signup, view)
}

// CommonTimezones is offered as suggestions on the signup form
var CommonTimezones = []string{
	"UTC",
	"America/Los_Angeles",
	"America/Denver",
	"America/Chicago",
	"America/New_York",
	"America/Mexico_City",
	"America/Bogota",
	"America/Sao_Paulo",
	"America/Argentina/Buenos_Aires",
	"Europe/London",
	"Europe/Madrid",
	"Europe/Paris",
	"Europe/Berlin",
	"Africa/Lagos",
	"Asia/Kolkata",
	"Asia/Shanghai",
	"Asia/Tokyo",
	"Australia/Sydney",
}
