package utils

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserIDKey 是儲存在 context 中的使用者 ID 的鍵
type contextKey string

const UserIDKey contextKey = "userID"

// WithUserID 將已驗證的使用者 ID 放入 context
func WithUserID(ctx context.Context, userID primitive.ObjectID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserIDFromContext 從 context 中提取使用者 ID
func GetUserIDFromContext(ctx context.Context) (primitive.ObjectID, error) {
	userID, ok := ctx.Value(UserIDKey).(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("user ID not found in context")
	}
	return userID, nil
}

// GetUserIDFromToken 從 JWT token 中提取使用者 ID (claim 名稱為 "id")
func GetUserIDFromToken(tokenString string, jwtSecret string) (primitive.ObjectID, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})

	if err != nil {
		return primitive.NilObjectID, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return primitive.NilObjectID, errors.New("invalid token claims")
	}

	userIDStr, ok := claims["id"].(string)
	if !ok {
		return primitive.NilObjectID, errors.New("user ID not found in token claims")
	}

	userID, err := primitive.ObjectIDFromHex(userIDStr)
	if err != nil {
		return primitive.NilObjectID, errors.New("invalid user ID format in token")
	}

	return userID, nil
}

// GenerateJWT 為用戶生成 JWT Token，只供各套件測試簽發 token；正式簽發由登入服務負責
func GenerateJWT(userID primitive.ObjectID, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"id":  userID.Hex(), // 將 ObjectID 轉換為 Hex 字串儲存
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.New("failed to sign token")
	}
	return tokenString, nil
}

// CanonicalPair 將兩位參與者依 Hex 字串排序，並回傳唯一索引用的鍵
// 不論由哪一方發起，同一對參與者都會得到相同的結果
func CanonicalPair(a, b primitive.ObjectID) ([]primitive.ObjectID, string) {
	if b.Hex() < a.Hex() {
		a, b = b, a
	}
	return []primitive.ObjectID{a, b}, a.Hex() + ":" + b.Hex()
}
