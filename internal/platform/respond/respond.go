// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package respond writes the service's JSON envelopes.
//
// Success bodies are {"data": ...}. Every error leaves the service as
//
//	{"error": {"message": "...", "code": "...", "details": [...], "retryAfter": 30, "attemptsRemaining": 2}}
//
// with a Retry-After header whenever retryAfter is set.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/taibuivan/shopauth/internal/platform/apperr"
	"github.com/taibuivan/shopauth/internal/platform/constants"
	"github.com/taibuivan/shopauth/internal/platform/ctxutil"
)

// SuccessEnvelope wraps every successful payload.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// ErrorBody is the inner object of an error response.
type ErrorBody struct {
	Message           string              `json:"message"`
	Code              string              `json:"code"`
	Details           []apperr.FieldError `json:"details,omitempty"`
	RetryAfter        int                 `json:"retryAfter,omitempty"`
	AttemptsRemaining *int                `json:"attemptsRemaining,omitempty"`
}

// ErrorEnvelope wraps an [ErrorBody].
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// JSON writes payload as-is with statusCode. Auth responses are never cached.
func JSON(writer http.ResponseWriter, statusCode int, payload any) {
	header := writer.Header()
	header.Set("Content-Type", "application/json; charset=utf-8")
	header.Set("Cache-Control", "no-store")
	writer.WriteHeader(statusCode)
	_ = json.NewEncoder(writer).Encode(payload)
}

// OK writes 200 with data in the success envelope.
func OK(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusOK, SuccessEnvelope{Data: data})
}

// Created writes 201 with data in the success envelope.
func Created(writer http.ResponseWriter, data any) {
	JSON(writer, http.StatusCreated, SuccessEnvelope{Data: data})
}

// NoContent writes 204.
func NoContent(writer http.ResponseWriter) {
	writer.WriteHeader(http.StatusNoContent)
}

// Error renders err. Errors without an [apperr.AppError] in their chain
// become a generic 500; every 5xx is logged with its cause.
func Error(writer http.ResponseWriter, request *http.Request, err error) {
	appError := apperr.As(err)
	if appError == nil {
		appError = apperr.Internal(err)
	}

	if appError.HTTPStatus >= http.StatusInternalServerError {
		ctxutil.GetLogger(request.Context()).ErrorContext(request.Context(), "api_server_error",
			slog.String("code", appError.Code),
			slog.String("request_id", ctxutil.GetRequestID(request.Context())),
			slog.Any("cause", appError.Cause),
		)
	}

	if appError.RetryAfter > 0 {
		writer.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(appError.RetryAfter))
	}

	JSON(writer, appError.HTTPStatus, ErrorEnvelope{Error: ErrorBody{
		Message:           appError.Message,
		Code:              appError.Code,
		Details:           appError.Details,
		RetryAfter:        appError.RetryAfter,
		AttemptsRemaining: appError.AttemptsRemaining,
	}})
}
