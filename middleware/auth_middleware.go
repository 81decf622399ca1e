package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"campus-kart/backend/chat"
	"campus-kart/backend/models"
	"campus-kart/backend/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// TokenCookie 登入服務寫入的 JWT cookie 名稱
const TokenCookie = "token"

var (
	ErrMissingToken = errors.New("authentication token required")
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrBanned       = errors.New("account is banned")
)

// Auth 驗證 JWT 並檢查使用者是否仍可使用 (存在且未被封鎖)
type Auth struct {
	secret string
	users  chat.UserDirectory
}

// NewAuth 創建 Auth；JWT Secret 由 config 傳入，不在每個請求重新讀取
func NewAuth(secret string, users chat.UserDirectory) *Auth {
	return &Auth{secret: secret, users: users}
}

// TokenFromRequest 依序從 Authorization: Bearer 標頭與 token cookie 取出 JWT
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		// Authorization: Bearer <token>
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
		return ""
	}
	if cookie, err := r.Cookie(TokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// Identify 驗證 token 並回傳使用者 ID；封鎖狀態每次都重新查詢
func (a *Auth) Identify(ctx context.Context, token string) (primitive.ObjectID, error) {
	if token == "" {
		return primitive.NilObjectID, ErrMissingToken
	}
	userID, err := utils.GetUserIDFromToken(token, a.secret)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	active, err := a.users.Active(ctx, userID)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("check user status: %w", err)
	}
	if !active {
		return primitive.NilObjectID, ErrBanned
	}
	return userID, nil
}

// StatusFor 將 Identify 的錯誤轉為 HTTP 狀態碼
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrBanned):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Middleware 驗證 JWT Token 並將使用者 ID 放入 context
func (a *Auth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.Identify(r.Context(), TokenFromRequest(r))
		if err != nil {
			status := StatusFor(err)
			message := err.Error()
			if status == http.StatusInternalServerError {
				zap.L().Error("auth lookup failed", zap.Error(err))
				message = "Internal server error"
			} else {
				zap.L().Debug("request rejected", zap.Int("status", status), zap.Error(err))
				if errors.Is(err, ErrInvalidToken) {
					message = ErrInvalidToken.Error()
				}
			}
			WriteError(w, message, status)
			return
		}

		next.ServeHTTP(w, r.WithContext(utils.WithUserID(r.Context(), userID)))
	})
}

// WriteError 以 ErrorResponse JSON 回應驗證失敗
func WriteError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(models.ErrorResponse{Message: message}); err != nil {
		zap.L().Warn("failed to write error response", zap.Error(err))
	}
}
