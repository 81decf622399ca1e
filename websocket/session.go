package websocket

import (
	"context"
	"encoding/json"
	"errors"

	"campus-kart/backend/chat"
	"campus-kart/backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var errBadChatID = errors.New("chatId is not a valid conversation id")

// Session 處理一條已驗證連線送來的訊框
// 回覆 (ack、確認碼、錯誤) 只寫回這條連線，房間廣播走 Broadcaster
type Session struct {
	userID   primitive.ObjectID
	sub      Subscriber
	router   *Router
	service  *chat.Service
	pipeline *chat.Pipeline
}

// NewSession 創建 Session
func NewSession(userID primitive.ObjectID, sub Subscriber, router *Router, service *chat.Service, pipeline *chat.Pipeline) *Session {
	return &Session{userID: userID, sub: sub, router: router, service: service, pipeline: pipeline}
}

// Handle 依序處理一個訊框；同一條連線的訊框不會並行處理
func (s *Session) Handle(ctx context.Context, raw []byte) {
	var frame models.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		s.replyError(primitive.NilObjectID, "invalid_input", "Invalid message format")
		return
	}

	chatID, err := primitive.ObjectIDFromHex(frame.ChatID)
	if err != nil {
		chatID = primitive.NilObjectID
	}

	switch frame.Type {
	case models.EventJoinChat:
		if err != nil {
			s.replyError(chatID, "invalid_input", errBadChatID.Error())
			return
		}
		s.join(ctx, chatID)

	case models.EventLeaveChat:
		if err != nil {
			s.replyError(chatID, "invalid_input", errBadChatID.Error())
			return
		}
		s.router.Leave(s.sub, chatID)

	case models.EventSendMessage:
		if err != nil {
			s.reply(chat.Ack{
				Status: models.AckFailed, TempID: frame.TempID,
				Code: "invalid_input", Error: errBadChatID.Error(),
			}.Event())
			return
		}
		ack := s.pipeline.Send(ctx, chat.SendInput{
			ConversationID: chatID,
			SenderID:       s.userID,
			Text:           frame.Text,
			TempID:         frame.TempID,
		})
		s.reply(ack.Event())

	case models.EventUpdateStatus:
		if err != nil {
			s.replyError(chatID, "invalid_input", errBadChatID.Error())
			return
		}
		s.updateStatus(ctx, chatID, frame)

	default:
		s.replyError(chatID, "invalid_input", "Unknown event type")
	}
}

// join 只有參與者可以加入房間，加入後回傳完整的訊息歷史
// 先加入房間再讀取歷史：期間寫入的訊息至少會從其中一邊送達，用戶端依 message.id 去重
func (s *Session) join(ctx context.Context, chatID primitive.ObjectID) {
	if _, err := s.service.Conversation(ctx, s.userID, chatID); err != nil {
		s.replyErr(chatID, err)
		return
	}
	s.router.Join(s.sub, chatID)

	conv, err := s.service.Conversation(ctx, s.userID, chatID)
	if err != nil {
		s.router.Leave(s.sub, chatID)
		s.replyErr(chatID, err)
		return
	}

	s.reply(models.Event{
		Type:     models.EventJoined,
		ChatID:   models.ChatRef(chatID),
		Status:   conv.Status,
		Location: conv.MeetupLocation,
	})
	messages := conv.Messages
	if messages == nil {
		messages = []models.Message{}
	}
	s.reply(models.HistoryEvent{Type: models.EventChatHistory, ChatID: models.ChatRef(chatID), Messages: messages})
}

func (s *Session) updateStatus(ctx context.Context, chatID primitive.ObjectID, frame models.InboundFrame) {
	result, err := s.service.UpdateStatus(ctx, s.userID, chat.StatusRequest{
		ConversationID: chatID,
		Status:         frame.Status,
		Location:       frame.Location,
		OTP:            frame.OTP,
	})
	if err != nil {
		s.replyErr(chatID, err)
		return
	}
	// 確認碼只給提議者，由提議者當面告訴對方
	if result.OTP != "" {
		s.reply(models.Event{
			Type:     models.EventMeetupOTP,
			ChatID:   models.ChatRef(chatID),
			OTP:      result.OTP,
			Location: result.Conversation.MeetupLocation,
		})
	}
}

func (s *Session) replyErr(chatID primitive.ObjectID, err error) {
	code := chat.Code(err)
	if code == "internal" {
		zap.L().Error("websocket request failed",
			zap.String("user", s.userID.Hex()),
			zap.String("chatId", chatID.Hex()),
			zap.Error(err))
	}
	s.replyError(chatID, code, chat.Message(err))
}

func (s *Session) replyError(chatID primitive.ObjectID, code, message string) {
	s.reply(models.Event{Type: models.EventError, ChatID: models.ChatRef(chatID), Code: code, Error: message})
}

func (s *Session) reply(frame interface{}) {
	payload, err := json.Marshal(frame)
	if err != nil {
		zap.L().Error("marshal reply", zap.Error(err))
		return
	}
	if err := s.sub.Send(payload); err != nil {
		zap.L().Debug("reply dropped", zap.String("subscriber", s.sub.ID()), zap.Error(err))
	}
}
