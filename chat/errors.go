package chat

import (
	"errors"
	"net/http"
)

// 可回復、只回給發起者的錯誤分類
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidOTP        = errors.New("invalid or expired meetup otp")
	ErrConflict          = errors.New("conflict")
)

// Code 將錯誤轉為用戶端可辨識的代碼，未知錯誤一律視為 internal
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrInvalidOTP):
		return "invalid_otp"
	case errors.Is(err, ErrConflict):
		return "conflict"
	}
	return "internal"
}

// HTTPStatus 將錯誤轉為 HTTP 狀態碼
func HTTPStatus(err error) int {
	switch Code(err) {
	case "not_found":
		return http.StatusNotFound
	case "forbidden":
		return http.StatusForbidden
	case "invalid_input":
		return http.StatusBadRequest
	case "invalid_transition", "conflict":
		return http.StatusConflict
	case "invalid_otp":
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// Message 回傳給用戶端的錯誤說明；內部錯誤不外洩細節
func Message(err error) string {
	if Code(err) == "internal" {
		return "Internal server error"
	}
	return err.Error()
}
