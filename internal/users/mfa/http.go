// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mfa

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/shopauth/internal/platform/middleware"
	requestutil "github.com/taibuivan/shopauth/internal/platform/request"
	"github.com/taibuivan/shopauth/internal/platform/respond"
	"github.com/taibuivan/shopauth/internal/platform/validate"
	"github.com/taibuivan/shopauth/internal/users/auth"
	"github.com/taibuivan/shopauth/internal/users/otp"
	"github.com/taibuivan/shopauth/internal/users/recovery"
	"github.com/taibuivan/shopauth/internal/users/signin"
)

// # Definitions & Constructors

// Handler serves /mfa and /recovery-codes.
type Handler struct {
	service *Service
	machine *signin.Machine
}

// NewHandler constructs a new MFA [Handler].
func NewHandler(service *Service, machine *signin.Machine) *Handler {
	return &Handler{service: service, machine: machine}
}

// Routes returns the /mfa router. Every route requires authentication.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequireAuth)

	router.Post("/totp/setup", handler.setupTOTP)
	router.Post("/totp/verify", handler.verifyTOTP)
	router.Post("/totp/disable", handler.disableTOTP)

	router.Post("/email/enable", handler.enableEmail)
	router.Post("/email/resend", handler.resendEmail)
	router.Post("/email/verify", handler.verifyEmail)
	router.Post("/email/disable", handler.disableEmail)

	return router
}

// RecoveryRoutes returns the /recovery-codes router.
//
// verify is public: it completes a pending sign-in with the state token.
func (handler *Handler) RecoveryRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/verify", handler.verifyRecoveryCode)

	router.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Post("/generate", handler.generateRecoveryCodes)
		r.Post("/regenerate", handler.regenerateRecoveryCodes)
		r.Get("/status", handler.recoveryStatus)
	})

	return router
}

func (handler *Handler) fail(writer http.ResponseWriter, request *http.Request, err error) {
	respond.Error(writer, request, ToAppError(err))
}

// # Payloads

type codeRequest struct {
	Code string `json:"code"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

type recoveryVerifyRequest struct {
	TempToken string `json:"tempToken"`
	Code      string `json:"code"`
}

type codeSentResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type recoveryCodesResponse struct {
	Codes  []string        `json:"codes"`
	Status recovery.Status `json:"status"`
}

func decodeCode(writer http.ResponseWriter, request *http.Request) (string, bool) {
	var input codeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return "", false
	}
	code := strings.TrimSpace(input.Code)
	validator := &validate.Validator{}
	validator.Required(auth.FieldCode, code).Digits(auth.FieldCode, code, otp.CodeLength)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return "", false
	}
	return code, true
}

func decodePassword(writer http.ResponseWriter, request *http.Request) (string, bool) {
	var input passwordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return "", false
	}
	if input.Password == "" {
		respond.Error(writer, request, validate.RequiredError(auth.FieldPassword, "This field is required"))
		return "", false
	}
	return input.Password, true
}

// # Authenticator App

/*
POST /api/v1/mfa/totp/setup.

Response:
  - 200: totp.Provisioning: secret and otpauth:// URI, valid for 10 minutes
  - 409: TOTP already enabled
*/
func (handler *Handler) setupTOTP(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	provisioning, err := handler.service.SetupTOTP(request.Context(), userID)
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, provisioning)
}

/*
POST /api/v1/mfa/totp/verify.

Request:
  - Body: {code}

Response:
  - 200: TOTP enabled
  - 400: TOTP_SETUP_EXPIRED
  - 401: INVALID_TOTP_CODE with attemptsRemaining
  - 429: TOO_MANY_ATTEMPTS
*/
func (handler *Handler) verifyTOTP(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	code, ok := decodeCode(writer, request)
	if !ok {
		return
	}

	if err := handler.service.EnableTOTP(request.Context(), userID, code); err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{auth.FieldMessage: "Authenticator app enabled"})
}

// POST /api/v1/mfa/totp/disable: {password}.
func (handler *Handler) disableTOTP(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	password, ok := decodePassword(writer, request)
	if !ok {
		return
	}

	if err := handler.service.DisableTOTP(request.Context(), userID, password); err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{auth.FieldMessage: "Authenticator app disabled"})
}

// # Email Codes

/*
POST /api/v1/mfa/email/enable.

Description: Mails a confirmation code. Email MFA turns on once the code is
submitted to /mfa/email/verify.

Response:
  - 200: codeSentResponse
  - 400: EMAIL_NOT_VERIFIED
  - 409: Already enabled
  - 429: CODE_COOLDOWN with Retry-After
*/
func (handler *Handler) enableEmail(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	issued, err := handler.service.EnableEmail(request.Context(), userID)
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, codeSentResponse{Message: "Verification code sent", ExpiresAt: issued.ExpiresAt})
}

// POST /api/v1/mfa/email/resend: another confirmation code, subject to the cooldown.
func (handler *Handler) resendEmail(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	issued, err := handler.service.ResendEmail(request.Context(), userID)
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, codeSentResponse{Message: "Verification code sent", ExpiresAt: issued.ExpiresAt})
}

/*
POST /api/v1/mfa/email/verify.

Response:
  - 200: Email MFA enabled
  - 400: CODE_NOT_FOUND or CODE_EXPIRED
  - 401: CODE_MISMATCH with attemptsRemaining, TOO_MANY_ATTEMPTS
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	code, ok := decodeCode(writer, request)
	if !ok {
		return
	}

	if err := handler.service.VerifyEmail(request.Context(), userID, code); err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{auth.FieldMessage: "Email codes enabled"})
}

// POST /api/v1/mfa/email/disable: {password}.
func (handler *Handler) disableEmail(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	password, ok := decodePassword(writer, request)
	if !ok {
		return
	}

	if err := handler.service.DisableEmail(request.Context(), userID, password); err != nil {
		handler.fail(writer, request, err)
		return
	}

	respond.OK(writer, map[string]string{auth.FieldMessage: "Email codes disabled"})
}

// # Recovery Codes

/*
POST /api/v1/recovery-codes/generate.

Description: Returns the cleartext codes exactly once. Any previous batch
stops working.

Response:
  - 200: recoveryCodesResponse
  - 400: MFA_NOT_ENABLED
*/
func (handler *Handler) generateRecoveryCodes(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	codes, err := handler.service.GenerateRecoveryCodes(request.Context(), userID)
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	handler.writeCodes(writer, request, userID, codes)
}

// POST /api/v1/recovery-codes/regenerate: {password}.
func (handler *Handler) regenerateRecoveryCodes(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	password, ok := decodePassword(writer, request)
	if !ok {
		return
	}

	codes, err := handler.service.RegenerateRecoveryCodes(request.Context(), userID, password)
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	handler.writeCodes(writer, request, userID, codes)
}

func (handler *Handler) writeCodes(writer http.ResponseWriter, request *http.Request, userID string, codes []string) {
	status, err := handler.service.RecoveryStatus(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}
	respond.OK(writer, recoveryCodesResponse{Codes: codes, Status: status})
}

// GET /api/v1/recovery-codes/status.
func (handler *Handler) recoveryStatus(writer http.ResponseWriter, request *http.Request) {
	userID, err := requestutil.RequiredUserID(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	status, err := handler.service.RecoveryStatus(request.Context(), userID)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, status)
}

/*
POST /api/v1/recovery-codes/verify.

Description: Completes a pending sign-in with a recovery code. Authenticated
by the sign-in state token, not by a bearer token.

Request:
  - Body: {tempToken, code} (tempToken may also come in X-Sign-In-State)

Response:
  - 200: auth.SignInResponse with tokens
  - 400: INVALID_RECOVERY_CODE_FORMAT
  - 401: INVALID_STATE_TOKEN, INVALID_RECOVERY_CODE, RECOVERY_CODE_USED
  - 429: TOO_MANY_ATTEMPTS
*/
func (handler *Handler) verifyRecoveryCode(writer http.ResponseWriter, request *http.Request) {
	var input recoveryVerifyRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, err)
		return
	}
	input.TempToken = auth.StateToken(request, input.TempToken)

	validator := &validate.Validator{}
	validator.Required(auth.FieldTempToken, input.TempToken).
		Required(auth.FieldCode, input.Code)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	outcome, err := handler.machine.CompleteRecoveryCode(request.Context(), input.TempToken, input.Code, auth.OriginOf(request))
	if err != nil {
		handler.fail(writer, request, err)
		return
	}

	auth.WriteOutcome(writer, outcome)
}
