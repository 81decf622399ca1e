package chat

//go:generate mockgen -source=ports.go -destination=mock_ports_test.go -package=chat

import (
	"context"
	"time"

	"campus-kart/backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StatusChange 描述一次有前置條件的狀態更新
// 只有在目前狀態仍為 From 時才會寫入 To
type StatusChange struct {
	From     models.Status
	To       models.Status
	Location models.Location   // 轉為 Meetup Arranged 時寫入
	OTP      *models.MeetupOTP // 轉為 Meetup Arranged 時寫入
	OTPHash  string            // 轉為 Completed 時必須與儲存的雜湊相同
	Now      time.Time         // 轉為 Completed 時用來判斷確認碼是否過期
}

// Store 對話的持久化儲存，所有變更都必須依賴儲存端的原子操作
type Store interface {
	GetOrCreate(ctx context.Context, productID, a, b primitive.ObjectID) (*models.Conversation, bool, error)
	Get(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error)
	AppendMessage(ctx context.Context, id, senderID primitive.ObjectID, text string) (*models.Message, error)
	SetStatus(ctx context.Context, id primitive.ObjectID, change StatusChange) (*models.Conversation, error)
	MeetupOTP(ctx context.Context, id primitive.ObjectID) (*models.MeetupOTP, error)
	ListForParticipant(ctx context.Context, participantID primitive.ObjectID) ([]models.Conversation, error)
}

// Broadcaster 將事件送到房間內所有連線 (本機或透過 Redis 跨實例)
type Broadcaster interface {
	Broadcast(ctx context.Context, conversationID primitive.ObjectID, event models.Event) error
}

// ProductDirectory 商品服務，用於授權建立對話與收件匣顯示
type ProductDirectory interface {
	Seller(ctx context.Context, productID primitive.ObjectID) (primitive.ObjectID, error)
	Products(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.ProductSummary, error)
}

// UserDirectory 使用者服務，用於收件匣顯示與驗證邊界的封鎖檢查
type UserDirectory interface {
	Users(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error)
	Active(ctx context.Context, id primitive.ObjectID) (bool, error)
}
