package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// EventType 定義 WebSocket 事件類型
type EventType string

const (
	// 用戶端 -> 伺服器
	EventJoinChat     EventType = "join_chat"
	EventLeaveChat    EventType = "leave_chat"
	EventSendMessage  EventType = "send_message"
	EventUpdateStatus EventType = "update_meetup_status"

	// 伺服器 -> 房間內所有連線
	EventReceiveMessage EventType = "receive_message"
	EventStatusChanged  EventType = "status_changed"

	// 伺服器 -> 只回給發送者
	EventJoined      EventType = "joined"
	EventChatHistory EventType = "chat_history"
	EventMessageAck  EventType = "message_ack"
	EventMeetupOTP   EventType = "meetup_otp"
	EventError       EventType = "error_message"
)

// AckStatus 送出訊息的回執狀態
type AckStatus string

const (
	AckSent   AckStatus = "sent"
	AckFailed AckStatus = "failed"
)

// InboundFrame 用戶端透過 WebSocket 送來的訊框
type InboundFrame struct {
	Type     EventType `json:"type"`
	ChatID   string    `json:"chatId"`
	Text     string    `json:"text,omitempty"`
	TempID   string    `json:"tempId,omitempty"` // 用戶端樂觀更新用的暫時 ID，原樣帶回 ack
	Status   string    `json:"status,omitempty"`
	Location string    `json:"location,omitempty"`
	OTP      string    `json:"otp,omitempty"`
}

// Event 伺服器送往用戶端的訊框；沒有對應的對話時不輸出 chatId
type Event struct {
	Type     EventType           `json:"type"`
	ChatID   *primitive.ObjectID `json:"chatId,omitempty"`
	Message  *Message            `json:"message,omitempty"`
	Status   Status              `json:"status,omitempty"`
	Location Location            `json:"location,omitempty"`
	OTP      string              `json:"otp,omitempty"`
	Ack      AckStatus           `json:"ack,omitempty"`
	TempID   string              `json:"tempId,omitempty"`
	Code     string              `json:"code,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// HistoryEvent chat_history 訊框，沒有訊息時輸出空陣列
type HistoryEvent struct {
	Type     EventType           `json:"type"`
	ChatID   *primitive.ObjectID `json:"chatId,omitempty"`
	Messages []Message           `json:"messages"`
}

// ChatRef 將對話 ID 轉為訊框欄位，零值代表沒有對應的對話
func ChatRef(id primitive.ObjectID) *primitive.ObjectID {
	if id.IsZero() {
		return nil
	}
	return &id
}
