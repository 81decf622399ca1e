package chat

import (
	"context"

	"campus-kart/backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// SendInput 一則由連線送入的訊息
type SendInput struct {
	ConversationID primitive.ObjectID
	SenderID       primitive.ObjectID
	Text           string
	TempID         string
}

// Ack 只回給發送者的送達回執，與房間廣播是不同的訊號
type Ack struct {
	Status         models.AckStatus
	ConversationID primitive.ObjectID
	TempID         string
	Message        *models.Message
	Code           string
	Error          string
}

// Event 將回執轉為 WebSocket 訊框
func (a Ack) Event() models.Event {
	return models.Event{
		Type:    models.EventMessageAck,
		ChatID:  models.ChatRef(a.ConversationID),
		Ack:     a.Status,
		TempID:  a.TempID,
		Message: a.Message,
		Code:    a.Code,
		Error:   a.Error,
	}
}

// Pipeline 負責訊息的 持久化 -> 廣播 -> 回執
// 訊息在寫入儲存之前絕不會出現在任何連線上
type Pipeline struct {
	store       Store
	broadcaster Broadcaster
}

// NewPipeline 創建訊息管線
func NewPipeline(store Store, broadcaster Broadcaster) *Pipeline {
	return &Pipeline{store: store, broadcaster: broadcaster}
}

// Send 處理一則訊息。寫入失敗時只回傳失敗回執，不做任何廣播，也不重試
func (p *Pipeline) Send(ctx context.Context, in SendInput) Ack {
	ack := Ack{ConversationID: in.ConversationID, TempID: in.TempID}

	// 參與者與內容的驗證完全交給 Store.AppendMessage
	msg, err := p.store.AppendMessage(ctx, in.ConversationID, in.SenderID, in.Text)
	if err != nil {
		ack.Status = models.AckFailed
		ack.Code = Code(err)
		ack.Error = Message(err)
		if ack.Code == "internal" {
			zap.L().Error("message persist failed",
				zap.String("chatId", in.ConversationID.Hex()),
				zap.String("sender", in.SenderID.Hex()),
				zap.Error(err))
		} else {
			zap.L().Debug("message rejected",
				zap.String("chatId", in.ConversationID.Hex()),
				zap.String("code", ack.Code))
		}
		return ack
	}

	event := models.Event{
		Type:    models.EventReceiveMessage,
		ChatID:  models.ChatRef(in.ConversationID),
		Message: msg,
	}
	if err := p.broadcaster.Broadcast(ctx, in.ConversationID, event); err != nil {
		// 訊息已寫入，重新載入時仍會看到，因此回執仍為 sent
		zap.L().Warn("broadcast after persist failed",
			zap.String("chatId", in.ConversationID.Hex()),
			zap.String("messageId", msg.ID.Hex()),
			zap.Error(err))
	}

	ack.Status = models.AckSent
	ack.Message = msg
	return ack
}
