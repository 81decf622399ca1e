package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"campus-kart/backend/clock"
	"campus-kart/backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultOTPTTL 面交確認碼有效時間，與註冊驗證碼相同
const DefaultOTPTTL = 10 * time.Minute

// ServiceConfig 建立 Service 所需的依賴
type ServiceConfig struct {
	Store       Store
	Products    ProductDirectory
	Users       UserDirectory
	Broadcaster Broadcaster
	Clock       clock.Clock
	OTPTTL      time.Duration // 0 表示使用 DefaultOTPTTL
	OTPHashCost int           // 0 表示使用 bcrypt.DefaultCost
}

// Service 提供對話存取、收件匣與面交狀態機
type Service struct {
	store       Store
	products    ProductDirectory
	users       UserDirectory
	broadcaster Broadcaster
	clock       clock.Clock
	otpTTL      time.Duration
	hashCost    int
}

// NewService 創建 Service
func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		store:       cfg.Store,
		products:    cfg.Products,
		users:       cfg.Users,
		broadcaster: cfg.Broadcaster,
		clock:       cfg.Clock,
		otpTTL:      cfg.OTPTTL,
		hashCost:    cfg.OTPHashCost,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.otpTTL <= 0 {
		s.otpTTL = DefaultOTPTTL
	}
	if s.hashCost == 0 {
		s.hashCost = bcrypt.DefaultCost
	}
	return s
}

// Access 取得或建立 actor 與 counterparty 針對商品的對話
// 兩人之中必須有一位是商品的賣家；回傳的 bool 表示是否為新建立
func (s *Service) Access(ctx context.Context, actor, productID, counterparty primitive.ObjectID) (*models.Conversation, bool, error) {
	if actor == counterparty {
		return nil, false, fmt.Errorf("%w: you cannot start a chat with yourself", ErrInvalidInput)
	}

	seller, err := s.products.Seller(ctx, productID)
	if err != nil {
		return nil, false, err
	}
	if seller != actor && seller != counterparty {
		return nil, false, fmt.Errorf("%w: neither participant sells product %s", ErrForbidden, productID.Hex())
	}

	return s.store.GetOrCreate(ctx, productID, actor, counterparty)
}

// Conversation 讀取對話 (含訊息歷史)，只有參與者可以讀取
func (s *Service) Conversation(ctx context.Context, actor, id primitive.ObjectID) (*models.Conversation, error) {
	conv, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(actor) {
		return nil, fmt.Errorf("%w: not a participant of %s", ErrForbidden, id.Hex())
	}
	return conv, nil
}

// Inbox 列出 actor 參與的所有對話，最新活動在前
func (s *Service) Inbox(ctx context.Context, actor primitive.ObjectID) ([]models.ConversationSummary, error) {
	convs, err := s.store.ListForParticipant(ctx, actor)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return []models.ConversationSummary{}, nil
	}

	productIDs := make([]primitive.ObjectID, 0, len(convs))
	userIDs := make([]primitive.ObjectID, 0, len(convs)*2)
	for _, c := range convs {
		productIDs = append(productIDs, c.ProductID)
		userIDs = append(userIDs, c.Participants...)
	}

	products, err := s.products.Products(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve inbox products: %w", err)
	}
	users, err := s.users.Users(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve inbox participants: %w", err)
	}

	out := make([]models.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		product, ok := products[c.ProductID]
		if !ok {
			product = models.ProductSummary{ID: c.ProductID}
		}
		participants := make([]models.UserSummary, 0, len(c.Participants))
		for _, p := range c.Participants {
			u, ok := users[p]
			if !ok {
				u = models.UserSummary{ID: p}
			}
			participants = append(participants, u)
		}
		summary := models.ConversationSummary{
			ID:             c.ID,
			Product:        product,
			Participants:   participants,
			Status:         c.Status,
			MeetupLocation: c.MeetupLocation,
			UpdatedAt:      c.UpdatedAt,
		}
		if n := len(c.Messages); n > 0 {
			last := c.Messages[n-1]
			summary.LastMessage = &last
		}
		out = append(out, summary)
	}
	return out, nil
}

// StatusRequest 用戶端要求的狀態變更
type StatusRequest struct {
	ConversationID primitive.ObjectID
	Status         string
	Location       string
	OTP            string
}

// StatusResult 狀態變更結果；OTP 只在安排面交時有值，且只回給提議者
type StatusResult struct {
	Conversation *models.Conversation
	OTP          string
}

// UpdateStatus 執行面交狀態機的一次轉換，成功後廣播 status_changed 到房間
func (s *Service) UpdateStatus(ctx context.Context, actor primitive.ObjectID, req StatusRequest) (*StatusResult, error) {
	to, err := models.ParseStatus(req.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	conv, err := s.Conversation(ctx, actor, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(conv.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, conv.Status, to)
	}

	change := StatusChange{From: conv.Status, To: to}
	result := &StatusResult{}

	switch to {
	case models.StatusMeetupArranged:
		loc, err := models.ParseLocation(req.Location)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		code, err := generateOTP()
		if err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
		if err != nil {
			return nil, fmt.Errorf("hash meetup otp: %w", err)
		}
		change.Location = loc
		change.OTP = &models.MeetupOTP{
			Hash:        string(hash),
			ExpiresAt:   s.clock.Now().Add(s.otpTTL),
			GeneratedBy: actor,
		}
		result.OTP = code

	case models.StatusCompleted:
		stored, err := s.store.MeetupOTP(ctx, req.ConversationID)
		if err != nil {
			return nil, err
		}
		if stored == nil {
			return nil, ErrInvalidOTP
		}
		// 確認碼必須由另一方輸入，才代表雙方當面完成交接
		if stored.GeneratedBy == actor {
			return nil, fmt.Errorf("%w: the meetup code must be entered by the other participant", ErrForbidden)
		}
		now := s.clock.Now()
		if req.OTP == "" || stored.Expired(now) {
			return nil, ErrInvalidOTP
		}
		if err := bcrypt.CompareHashAndPassword([]byte(stored.Hash), []byte(req.OTP)); err != nil {
			return nil, ErrInvalidOTP
		}
		change.OTPHash = stored.Hash
		change.Now = now
	}

	updated, err := s.store.SetStatus(ctx, req.ConversationID, change)
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrInvalidOTP) && !errors.Is(err, ErrNotFound) {
			zap.L().Error("status update failed",
				zap.String("chatId", req.ConversationID.Hex()),
				zap.String("to", string(to)),
				zap.Error(err))
		}
		return nil, err
	}
	result.Conversation = updated

	zap.L().Info("meetup status changed",
		zap.String("chatId", updated.ID.Hex()),
		zap.String("from", string(change.From)),
		zap.String("to", string(updated.Status)),
		zap.String("actor", actor.Hex()))

	event := models.Event{
		Type:     models.EventStatusChanged,
		ChatID:   models.ChatRef(updated.ID),
		Status:   updated.Status,
		Location: updated.MeetupLocation,
	}
	if err := s.broadcaster.Broadcast(ctx, updated.ID, event); err != nil {
		zap.L().Warn("status broadcast failed", zap.String("chatId", updated.ID.Hex()), zap.Error(err))
	}
	return result, nil
}
