package accounts

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

const (
	dateLayout      = "2006-01-02"
	defaultPageSize = 50
	maxPageSize     = 200

	minPasswordLength = 8
	// MaxPasswordBytes is the longest secret bcrypt accepts
	MaxPasswordBytes = 72
)

// AccountController exposes the Lifecycle as JSON endpoints
type AccountController struct {
	Debug      bool
	Logger     Logger
	Lifecycle  *Lifecycle
	Cookies    *SessionCookies
	ContextKey string
}

type AccountControllerOption func(*AccountController) *AccountController

func WithControllerDebug(debug bool) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		c.Debug = debug
		return c
	}
}

func WithControllerLogger(logger Logger) AccountControllerOption {
	return func(c *AccountController) *AccountController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func NewAccountController(lifecycle *Lifecycle, cfg Config, opts ...AccountControllerOption) *AccountController {
	if lifecycle == nil {
		panic("Missing Lifecycle in account controller...")
	}

	c := &AccountController{
		Logger:     defLogger{},
		Lifecycle:  lifecycle,
		Cookies:    NewSessionCookies(cfg),
		ContextKey: DefaultContextKey,
	}

	for _, opt := range opts {
		c = opt(c)
	}

	return c
}

// RegisterRequest payload
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLength, MaxPasswordBytes)),
	)
}

func (a *AccountController) Register(c router.Context) error {
	payload := new(RegisterRequest)
	if err := a.bind(c, payload); err != nil {
		return a.writeError(c, err)
	}

	resp, err := a.Lifecycle.Register(c.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"message":           "registration completed, check your email to verify the account",
		"account":           resp.Account,
		"verification_sent": resp.NotificationSent,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AccountController) Login(c router.Context) error {
	payload := new(LoginRequest)
	if err := a.bind(c, payload); err != nil {
		return a.writeError(c, err)
	}

	account, err := a.Lifecycle.Authenticate(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.writeError(c, err)
	}

	result, err := a.Lifecycle.Login(c.Context(), account, payload.RememberMe)
	if err != nil {
		return a.writeError(c, err)
	}

	a.Cookies.SetLogin(c, result)

	return c.JSON(router.StatusOK, map[string]any{
		"message": "logged in",
		"account": result.Account,
	})
}

// TokenRequest payload
type TokenRequest struct {
	Token string `json:"token"`
}

// Validate will run validation rules
func (r TokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *AccountController) VerifyEmail(c router.Context) error {
	payload := new(TokenRequest)
	if err := a.bind(c, payload); err != nil {
		return a.writeError(c, err)
	}

	if err := a.Lifecycle.VerifyEmail(c.Context(), payload.Token); err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(router.StatusOK, map[string]any{"message": "email verified"})
}

// TokenPasswordRequest payload used to activate accounts and reset passwords
type TokenPasswordRequest struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password,omitempty"`
}

// Validate will run validation rules. The confirmation is optional but
// must match when sent.
func (r TokenPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(minPasswordLength, MaxPasswordBytes)),
		validation.Field(&r.ConfirmPassword, validation.By(optional(ValidateStringEquals(r.Password)))),
	)
}

func (a *AccountController) ActivateAccount(c router.Context) error {
	payload := new(TokenPasswordRequest)
	if err := a.bind(c, payload); err != nil {
		return a.writeError(c, err)
	}

	if err := a.Lifecycle.ActivateAccount(c.Context(), payload.Token, payload.Password); err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(router.StatusOK, map[string]any{"message": "account activated"})
}

// EmailRequest payload
type EmailRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AccountController) ForgotPassword(c router.Context) error {
	payload := new(EmailRequest)
	if err := a.bind(c, payload); err != nil {
		return a.writeError(c, err)
	}

	message, err := a.Lifecycle.ForgotPassword(c.Context(), payload.Email)
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(router.StatusOK, map[string]any{"message": message})
}

func (a *AccountController) ResetPassword(c router.Context) error {
	payload := new(TokenPasswordRequest)
	if err := a.bind(c, payload); err != nil {
		return a.writeError(c, err)
	}

	if err := a.Lifecycle.ResetPassword(c.Context(), payload.Token, payload.Password); err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(router.StatusOK, map[string]any{"message": "password reset"})
}

func (a *AccountController) ResendVerification(c router.Context) error {
	payload := new(EmailRequest)
	if err := a.bind(c, payload); err != nil {
		return a.writeError(c, err)
	}

	if err := a.Lifecycle.ResendVerification(c.Context(), payload.Email); err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(router.StatusOK, map[string]any{"message": "verification email sent"})
}

// Refresh reads the refresh cookie and re-sets the access cookie
func (a *AccountController) Refresh(c router.Context) error {
	result, err := a.Lifecycle.Refresh(c.Context(), c.Cookies(RefreshTokenCookie))
	if err != nil {
		return a.writeError(c, err)
	}

	a.Cookies.SetAccess(c, result.AccessToken)

	return c.JSON(router.StatusOK, map[string]any{"message": "token refreshed"})
}

func (a *AccountController) Logout(c router.Context) error {
	account, ok := CurrentAccount(c, a.ContextKey)
	if !ok {
		return a.writeError(c, ErrUnauthorized)
	}

	if err := a.Lifecycle.Logout(c.Context(), account.ID); err != nil {
		return a.writeError(c, err)
	}

	a.Cookies.Clear(c)

	return c.JSON(router.StatusOK, map[string]any{"message": "logged out"})
}

func (a *AccountController) Me(c router.Context) error {
	account, ok := CurrentAccount(c, a.ContextKey)
	if !ok {
		return a.writeError(c, ErrUnauthorized)
	}

	view, err := a.Lifecycle.GetAccount(c.Context(), account.ID)
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(router.StatusOK, map[string]any{"account": view})
}

// ProfileRequest payload. Absent fields are left untouched.
type ProfileRequest struct {
	Name       *string `json:"name"`
	BirthDate  *string `json:"birth_date"`
	Address    *string `json:"address"`
	FiscalCode *string `json:"fiscal_code"`
	Role       *string `json:"role,omitempty"`
}

// Validate will run validation rules
func (r ProfileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&r.BirthDate, validation.NilOrNotEmpty, validation.Date(dateLayout)),
		validation.Field(&r.Address, validation.Length(0, 500)),
		validation.Field(&r.FiscalCode, validation.Length(0, 32)),
		validation.Field(&r.Role, validation.NilOrNotEmpty, validation.In(roleNames()...)),
	)
}

// ToUpdate converts the payload. Role is only honoured when allowRole is set.
func (r ProfileRequest) ToUpdate(allowRole bool) (ProfileUpdate, error) {
	update := ProfileUpdate{
		Name:       r.Name,
		Address:    r.Address,
		FiscalCode: r.FiscalCode,
	}

	if r.BirthDate != nil {
		t, err := parseDate(*r.BirthDate)
		if err != nil {
			return update, err
		}
		update.BirthDate = &t
	}

	if allowRole && r.Role != nil {
		role, ok := ParseRole(*r.Role)
		if !ok {
			return update, goerrors.New("unknown role", goerrors.CategoryValidation).
				WithCode(goerrors.CodeBadRequest).
				WithTextCode(TextCodeValidationFailed)
		}
		update.Role = &role
	}

	return update, nil
}

func (a *AccountController) UpdateProfile(c router.Context) error {
	account, ok := CurrentAccount(c, a.ContextKey)
	if !ok {
		return a.writeError(c, ErrUnauthorized)
	}
	return a.updateProfile(c, account.ID, false)
}

func (a *AccountController) ListAccounts(c router.Context) error {
	limit := queryInt(c, "limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}

	offset := queryInt(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	views, total, err := a.Lifecycle.ListAccounts(c.Context(), limit, offset)
	if err != nil {
		return a.writeError(c, err)
	}

	c.SetHeader("X-Total-Count", strconv.Itoa(total))

	return c.JSON(router.StatusOK, map[string]any{
		"data":   views,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// InviteRequest payload
type InviteRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Validate will run validation rules
func (r InviteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Role, validation.In(roleNames()...)),
	)
}

func (a *AccountController) Invite(c router.Context) error {
	payload := new(InviteRequest)
	if err := a.bind(c, payload); err != nil {
		return a.writeError(c, err)
	}

	role := RoleUser
	if payload.Role != "" {
		role = Role(payload.Role)
	}

	invitedBy := ""
	if admin, ok := CurrentAccount(c, a.ContextKey); ok {
		invitedBy = admin.ID
	}

	resp, err := a.Lifecycle.Invite(c.Context(), payload.Name, payload.Email, role, invitedBy)
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, map[string]any{
		"message":         "invitation sent",
		"account":         resp.Account,
		"invitation_sent": resp.NotificationSent,
	})
}

func (a *AccountController) GetAccount(c router.Context) error {
	view, err := a.Lifecycle.GetAccount(c.Context(), c.Param("id"))
	if err != nil {
		return a.writeError(c, err)
	}
	return c.JSON(router.StatusOK, map[string]any{"account": view})
}

func (a *AccountController) UpdateAccountProfile(c router.Context) error {
	return a.updateProfile(c, c.Param("id"), true)
}

func (a *AccountController) DeleteAccount(c router.Context) error {
	actorID := ""
	if admin, ok := CurrentAccount(c, a.ContextKey); ok {
		actorID = admin.ID
	}

	if err := a.Lifecycle.DeleteAccount(c.Context(), c.Param("id"), actorID); err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(router.StatusOK, map[string]any{"deleted": true})
}

func (a *AccountController) updateProfile(c router.Context, accountID string, allowRole bool) error {
	payload := new(ProfileRequest)
	if err := a.bind(c, payload); err != nil {
		return a.writeError(c, err)
	}

	update, err := payload.ToUpdate(allowRole)
	if err != nil {
		return a.writeError(c, err)
	}

	view, err := a.Lifecycle.UpdateProfile(c.Context(), accountID, update)
	if err != nil {
		return a.writeError(c, err)
	}

	return c.JSON(router.StatusOK, map[string]any{
		"message": "profile updated",
		"account": view,
	})
}

type validatable interface {
	Validate() error
}

func (a *AccountController) bind(c router.Context, payload validatable) error {
	if err := c.Bind(payload); err != nil {
		var verrs validation.Errors
		if errors.As(err, &verrs) {
			return validationError(verrs)
		}
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidationFailed)
	}

	if a.Debug {
		fmt.Println("======= ACCOUNTS " + c.Path() + " ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	if err := payload.Validate(); err != nil {
		return validationError(err)
	}

	return nil
}

func validationError(err error) *goerrors.Error {
	return goerrors.New("invalid request payload", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidationFailed).
		WithMetadata(map[string]any{
			"fields": FormatValidationErrorToMap(err),
		})
}

func queryInt(c router.Context, key string, def int) int {
	raw := c.Query(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// writeError renders err as JSON. Internal failures are logged and
// reported with a generic message.
func (a *AccountController) writeError(c router.Context, err error) error {
	return WriteError(c, a.Logger, err)
}

// WriteError renders err with the status and text code it carries
func WriteError(c router.Context, logger Logger, err error) error {
	richErr := AsRichError(err)

	status := richErr.Code
	if status < 400 || status > 599 {
		status = router.StatusInternalServerError
	}

	body := map[string]any{
		"error": richErr.Message,
		"code":  richErr.TextCode,
	}

	if richErr.Category == goerrors.CategoryInternal || status >= router.StatusInternalServerError {
		logger.Error("request failed",
			"path", c.Path(),
			"error", err,
		)
		body["error"] = "an unexpected server error occurred"
		body["code"] = TextCodeInternalServerError
		return c.JSON(router.StatusInternalServerError, body)
	}

	if fields, ok := richErr.Metadata["fields"]; ok {
		body["fields"] = fields
	}

	return c.JSON(status, body)
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field to message map
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr == nil {
				continue
			}
			out[field] = ferr.Error()
		}
		return out
	}

	out["form"] = err.Error()
	return out
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

func parseDate(value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, goerrors.Wrap(err, goerrors.CategoryValidation, "birth_date must be YYYY-MM-DD").
			WithCode(goerrors.CodeBadRequest).
			WithTextCode(TextCodeValidationFailed)
	}
	return t, nil
}

// optional skips rule for empty strings
func optional(rule validation.RuleFunc) validation.RuleFunc {
	return func(value any) error {
		if s, _ := value.(string); s == "" {
			return nil
		}
		return rule(value)
	}
}

func roleNames() []any {
	roles := GetAllRoles()
	out := make([]any, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}
