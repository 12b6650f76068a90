// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/shopauth/internal/platform/middleware"
	requestutil "github.com/taibuivan/shopauth/internal/platform/request"
	"github.com/taibuivan/shopauth/internal/platform/respond"
	"github.com/taibuivan/shopauth/internal/platform/validate"
	"github.com/taibuivan/shopauth/internal/users/otp"
	"github.com/taibuivan/shopauth/internal/users/session"
	"github.com/taibuivan/shopauth/internal/users/signin"
	"github.com/taibuivan/shopauth/internal/users/token"
)

// # Definitions & Constructors

// Handler implements the /auth endpoints.
//
// # Scope
//
// Public routes cover registration, every sign-in step, refresh and password
// reset. Routes that act on the caller's own account require a bearer token.
type Handler struct {
	service  *Service
	machine  *signin.Machine
	tokens   *token.Service
	sessions *session.Registry
}

// NewHandler constructs a new [Handler].
func NewHandler(service *Service, machine *signin.Machine, tokens *token.Service, sessions *session.Registry) *Handler {
	return &Handler{service: service, machine: machine, tokens: tokens, sessions: sessions}
}

// Routes returns a [chi.Router] configured with authentication routes.
//
// # Endpoints
//   - POST /register, /sign-in, /sign-in/mfa/*, /sign-in/cancel, /refresh
//   - POST /forgot-password, /reset-password
//   - POST /logout, /verify-email, /verify-email/resend, /change-password, /change-email (auth)
//   - GET  /me (auth)
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	// Public endpoints
	router.Post("/register", handler.register)
	router.Post("/sign-in", handler.signIn)
	router.Post("/sign-in/mfa/select", handler.selectMethod)
	router.Post("/sign-in/mfa/totp", handler.completeTOTP)
	router.Post("/sign-in/mfa/email", handler.completeEmail)
	router.Post("/sign-in/mfa/email/resend", handler.resendEmail)
	router.Post("/sign-in/mfa/recovery", handler.completeRecovery)
	router.Post("/sign-in/cancel", handler.cancel)
	router.Post("/refresh", handler.refresh)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)

	// Protected endpoints
	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/logout", handler.logout)
		r.Get("/me", handler.me)
		r.Post("/verify-email", handler.verifyEmail)
		r.Post("/verify-email/resend", handler.resendVerification)
		r.Post("/change-password", handler.changePassword)
		r.Post("/change-email", handler.changeEmail)
	})

	return router
}

func (handler *Handler) fail(writer http.ResponseWriter, request *http.Request, err error) {
	respond.Error(writer, request, ToAppError(err))
}

// # Request Payloads

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type signInRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	DeviceName string `json:"deviceName"`
}

type stepRequest struct {
	TempToken string `json:"tempToken"`
	Method    string `json:"method"`
	Code      string `json:"code"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type changeEmailRequest struct {
	Password string `json:"password"`
	NewEmail string `json:"newEmail"`
}

// # Registration

/*
POST /api/v1/auth/register.

Request:
  - Body: registerRequest (Username, Email, Password, DisplayName)

Response:
  - 201: account.User: Created profile; a verification code is mailed
  - 400: Validation failure
  - 409: Username or email already exists
  - 422: Password rejected by the policy
*/
func (handler *Handler) register(writer http.ResponseWriter, request *http.Request) {
	var input registerRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldUsername, input.Username).
		MinLen(FieldUsername, input.Username, usernameMinLength).
		MaxLen(FieldUsername, input.Username, usernameMaxLength).
		Username(FieldUsername, input.Username).
		Required(FieldEmail, input.Email).
		MaxLen(FieldEmail, input.Email, emailMaxLength).
		Email(FieldEmail, input.Email).
		Required(FieldPassword, input.Password).
		MaxLen(FieldDisplayName, input.DisplayName, displayNameMaxLength)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.Register(request.Context(), RegisterInput{
		Username:    input.Username,
		Email:       input.Email,
		Password:    input.Password,
		DisplayName: input.DisplayName,
	})
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.Created(writer, user)
}

// # Sign-In

/*
POST /api/v1/auth/sign-in.

Description: Credentials come from the JSON body or from an
"Authorization: Basic" header.

Response:
  - 200: SignInResponse: tokens, or a tempToken and the pending step
  - 400: Missing identifier or password
  - 401: INVALID_CREDENTIALS
  - 429: ACCOUNT_LOCKED with Retry-After
*/
func (handler *Handler) signIn(writer http.ResponseWriter, request *http.Request) {
	var input signInRequest

	// ── 1. Credential Source ──────────────────────────────────────────
	if credentials, ok := requestutil.BasicCredentials(request); ok {
		input.Identifier, input.Password = credentials.Identifier, credentials.Password
		input.DeviceName = credentials.DeviceName
	} else if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 2. Shape Validation ───────────────────────────────────────────
	validator := &validate.Validator{}
	validator.Required(FieldIdentifier, input.Identifier).
		MaxLen(FieldIdentifier, input.Identifier, emailMaxLength).
		Required(FieldPassword, input.Password).
		MaxLen(FieldPassword, input.Password, passwordMaxLength)

	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	// ── 3. State Machine ──────────────────────────────────────────────
	outcome, err := handler.machine.SignIn(request.Context(), signin.Credentials{
		Identifier: input.Identifier,
		Password:   input.Password,
		Device:     DeviceOf(request, input.DeviceName),
	})
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	WriteOutcome(writer, outcome)
}

// decodeStep reads a continuation payload and insists on a state token.
func decodeStep(writer http.ResponseWriter, request *http.Request, needCode bool) (stepRequest, bool) {
	var input stepRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return input, false
	}
	input.TempToken = StateToken(request, input.TempToken)

	validator := &validate.Validator{}
	validator.Required(FieldTempToken, input.TempToken)
	if needCode {
		validator.Required(FieldCode, input.Code).MaxLen(FieldCode, input.Code, codeMaxLength)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return input, false
	}
	return input, true
}

/*
POST /api/v1/auth/sign-in/mfa/select.

Request:
  - Body: {tempToken, method: totp|email|recovery_code}

Response:
  - 200: SignInResponse for the selected step
  - 400: MFA_METHOD_NOT_AVAILABLE
  - 401: INVALID_STATE_TOKEN
*/
func (handler *Handler) selectMethod(writer http.ResponseWriter, request *http.Request) {
	input, ok := decodeStep(writer, request, false)
	if !ok {
		return
	}

	validator := &validate.Validator{}
	validator.OneOf(FieldMethod, input.Method,
		string(signin.MethodTOTP), string(signin.MethodEmail), string(signin.MethodRecovery))
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	outcome, err := handler.machine.SelectMethod(request.Context(), input.TempToken, signin.Method(input.Method))
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	WriteOutcome(writer, outcome)
}

// POST /api/v1/auth/sign-in/mfa/totp: {tempToken, code} completes with an authenticator code.
func (handler *Handler) completeTOTP(writer http.ResponseWriter, request *http.Request) {
	input, ok := decodeStep(writer, request, true)
	if !ok {
		return
	}

	outcome, err := handler.machine.CompleteTOTP(request.Context(), input.TempToken, input.Code)
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	WriteOutcome(writer, outcome)
}

// POST /api/v1/auth/sign-in/mfa/email: {tempToken, code} completes with an emailed code.
func (handler *Handler) completeEmail(writer http.ResponseWriter, request *http.Request) {
	input, ok := decodeStep(writer, request, true)
	if !ok {
		return
	}

	outcome, err := handler.machine.CompleteEmailCode(request.Context(), input.TempToken, input.Code)
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	WriteOutcome(writer, outcome)
}

// POST /api/v1/auth/sign-in/mfa/email/resend: {tempToken} mails a new code (cooldown applies).
func (handler *Handler) resendEmail(writer http.ResponseWriter, request *http.Request) {
	input, ok := decodeStep(writer, request, false)
	if !ok {
		return
	}

	outcome, err := handler.machine.ResendEmailCode(request.Context(), input.TempToken)
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	WriteOutcome(writer, outcome)
}

// POST /api/v1/auth/sign-in/mfa/recovery: {tempToken, code} completes with a recovery code.
func (handler *Handler) completeRecovery(writer http.ResponseWriter, request *http.Request) {
	input, ok := decodeStep(writer, request, true)
	if !ok {
		return
	}

	outcome, err := handler.machine.CompleteRecoveryCode(request.Context(), input.TempToken, input.Code, OriginOf(request))
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	WriteOutcome(writer, outcome)
}

// POST /api/v1/auth/sign-in/cancel: {tempToken} abandons the pending sign-in. 204.
func (handler *Handler) cancel(writer http.ResponseWriter, request *http.Request) {
	input, ok := decodeStep(writer, request, false)
	if !ok {
		return
	}

	if err := handler.machine.Cancel(request.Context(), input.TempToken); err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// # Token Lifecycle

/*
POST /api/v1/auth/refresh.

Description: Rotates a refresh token. Presenting an already-rotated token
revokes the whole family.

Response:
  - 200: token.Pair
  - 401: TOKEN_INVALID (expired, blacklisted, revoked, replayed)
*/
func (handler *Handler) refresh(writer http.ResponseWriter, request *http.Request) {
	var input refreshRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	if strings.TrimSpace(input.RefreshToken) == "" {
		respond.Error(writer, request, validate.RequiredError(FieldRefreshToken, "This field is required"))
		return
	}

	pair, err := handler.tokens.Refresh(request.Context(), input.RefreshToken)
	if err != nil {
		respond.Error(writer, request, token.ToAppError(err))
		return
	}

	if err := handler.sessions.Touch(request.Context(), pair.SessionID, middleware.RealIP(request)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	WritePair(writer, pair)
}

/*
POST /api/v1/auth/logout.

Description: Blacklists the presented access token, revokes its refresh
family and ends the session.

Response:
  - 204: No Content
  - 401: Authentication required
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.tokens.Logout(request.Context(), claims); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.sessions.End(request.Context(), claims.UserID, claims.SessionID); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

// GET /api/v1/auth/me returns the caller's profile.
func (handler *Handler) me(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.Me(request.Context(), userID)
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

// # Email Verification

// POST /api/v1/auth/verify-email: {code} confirms the caller's address.
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input codeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	validator := &validate.Validator{}
	validator.Required(FieldCode, input.Code).Digits(FieldCode, input.Code, otp.CodeLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.VerifyEmail(request.Context(), userID, input.Code); err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldMessage: "Email verified successfully"})
}

// POST /api/v1/auth/verify-email/resend mails a new code. 429 inside the cooldown.
func (handler *Handler) resendVerification(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ResendVerification(request.Context(), userID); err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldMessage: "Verification code sent"})
}

// # Password Recovery

/*
POST /api/v1/auth/forgot-password.

Response:
  - 200: Generic message whether or not the address is registered
  - 400: Invalid email format
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).Email(FieldEmail, input.Email)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.RequestPasswordReset(request.Context(), input.Email); err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{
		FieldMessage: "If this email is registered, a reset code has been sent.",
	})
}

/*
POST /api/v1/auth/reset-password.

Request:
  - Body: resetPasswordRequest (Email, Code, NewPassword)

Response:
  - 200: Password updated, every device signed out
  - 400: INVALID_RESET_CODE or validation failure
  - 401: CODE_MISMATCH with attemptsRemaining
  - 422: Password rejected by the policy
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldEmail, input.Email).
		Email(FieldEmail, input.Email).
		Required(FieldCode, input.Code).
		MaxLen(FieldCode, input.Code, codeMaxLength).
		Required(FieldNewPassword, input.NewPassword)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err := handler.service.ResetPassword(request.Context(), ResetPasswordInput{
		Email:       input.Email,
		Code:        input.Code,
		NewPassword: input.NewPassword,
	})
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldMessage: "Password updated successfully"})
}

// # Credential Changes

/*
POST /api/v1/auth/change-password.

Description: Every existing token stops working, including the caller's.

Response:
  - 200: Password changed
  - 401: INVALID_PASSWORD
  - 422: Password rejected by the policy
*/
func (handler *Handler) changePassword(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changePasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldCurrentPassword, input.CurrentPassword).
		Required(FieldNewPassword, input.NewPassword)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ChangePassword(request.Context(), claims, input.CurrentPassword, input.NewPassword); err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldMessage: "Password changed, sign in again"})
}

/*
POST /api/v1/auth/change-email.

Response:
  - 200: Email changed, verification code sent to the new address
  - 401: INVALID_PASSWORD
  - 409: Email already registered
*/
func (handler *Handler) changeEmail(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredClaims(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	var input changeEmailRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}

	validator := &validate.Validator{}
	validator.Required(FieldPassword, input.Password).
		Required(FieldNewEmail, input.NewEmail).
		MaxLen(FieldNewEmail, input.NewEmail, emailMaxLength).
		Email(FieldNewEmail, input.NewEmail)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	err = handler.service.ChangeEmail(request.Context(), claims, ChangeEmailInput{
		Password: input.Password,
		NewEmail: input.NewEmail,
	})
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{FieldMessage: "Email changed, check the new inbox for a verification code"})
}
