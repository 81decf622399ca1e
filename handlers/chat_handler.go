package handlers

import (
	"encoding/json"
	"net/http"

	"campus-kart/backend/chat"
	"campus-kart/backend/models"
	"campus-kart/backend/utils"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// AccessChatRequest 定義開啟對話的請求體
type AccessChatRequest struct {
	ProductID string `json:"productId"`
	SellerID  string `json:"sellerId"` // 對方的使用者 ID (由買家發起時為賣家)
}

// ChatHandler 對話相關的 HTTP API
type ChatHandler struct {
	service *chat.Service
}

// NewChatHandler 創建 ChatHandler
func NewChatHandler(service *chat.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

// sendJSONError 統一發送 JSON 格式錯誤響應
func sendJSONError(w http.ResponseWriter, message, code string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(models.ErrorResponse{Message: message, Code: code}); err != nil {
		zap.L().Warn("failed to write error response", zap.Error(err))
	}
}

// sendChatError 將 chat 套件的錯誤轉為對應的 HTTP 狀態碼
func sendChatError(w http.ResponseWriter, r *http.Request, err error) {
	status := chat.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		zap.L().Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	sendJSONError(w, chat.Message(err), chat.Code(err), status)
}

func sendJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to write response", zap.Error(err))
	}
}

// AccessChat 處理 POST /api/chat：取得或建立與對方針對商品的對話
// 已存在時回傳 200，新建立時回傳 201
func (h *ChatHandler) AccessChat(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		sendJSONError(w, "Unauthorized: User ID not found in context", "", http.StatusUnauthorized)
		return
	}

	var req AccessChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, "Invalid request body", "invalid_input", http.StatusBadRequest)
		return
	}
	if req.ProductID == "" || req.SellerID == "" {
		sendJSONError(w, "productId and sellerId are required", "invalid_input", http.StatusBadRequest)
		return
	}
	productID, err := primitive.ObjectIDFromHex(req.ProductID)
	if err != nil {
		sendJSONError(w, "Invalid product ID format", "invalid_input", http.StatusBadRequest)
		return
	}
	counterparty, err := primitive.ObjectIDFromHex(req.SellerID)
	if err != nil {
		sendJSONError(w, "Invalid seller ID format", "invalid_input", http.StatusBadRequest)
		return
	}

	conv, created, err := h.service.Access(r.Context(), userID, productID, counterparty)
	if err != nil {
		sendChatError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		zap.L().Info("conversation created",
			zap.String("chatId", conv.ID.Hex()),
			zap.String("product", productID.Hex()))
	}
	sendJSON(w, status, conv)
}

// GetUserChats 處理 GET /api/chat：使用者的收件匣，最新活動在前
func (h *ChatHandler) GetUserChats(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		sendJSONError(w, "Unauthorized: User ID not found in context", "", http.StatusUnauthorized)
		return
	}

	inbox, err := h.service.Inbox(r.Context(), userID)
	if err != nil {
		sendChatError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, inbox)
}

// GetChat 處理 GET /api/chat/{id}：對話內容與完整訊息歷史，只有參與者可讀取
func (h *ChatHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r.Context())
	if err != nil {
		sendJSONError(w, "Unauthorized: User ID not found in context", "", http.StatusUnauthorized)
		return
	}

	chatID, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		sendJSONError(w, "Invalid chat ID format", "invalid_input", http.StatusBadRequest)
		return
	}

	conv, err := h.service.Conversation(r.Context(), userID, chatID)
	if err != nil {
		sendChatError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, conv)
}

// Health 處理 GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
