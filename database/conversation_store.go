package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"campus-kart/backend/chat"
	"campus-kart/backend/clock"
	"campus-kart/backend/models"
	"campus-kart/backend/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ConversationsCollection 對話集合名稱 (與原本 mongoose 的 Chat model 相同)
const ConversationsCollection = "chats"

// defaultProjection 預設讀取不帶出面交確認碼
var defaultProjection = bson.M{"meetupOTP": 0}

// ConversationStore 以 MongoDB 實作 chat.Store
// 正確性只依賴唯一索引與條件式更新，可以多個實例同時使用
type ConversationStore struct {
	coll  *mongo.Collection
	clock clock.Clock
}

var _ chat.Store = (*ConversationStore)(nil)

// NewConversationStore 創建 ConversationStore
func NewConversationStore(db *mongo.Database, clk clock.Clock) *ConversationStore {
	return &ConversationStore{coll: db.Collection(ConversationsCollection), clock: clk}
}

// EnsureIndexes 建立 (product, pairKey) 唯一索引與收件匣查詢索引
func (s *ConversationStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "product", Value: 1}, {Key: "pairKey", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("product_pair_unique"),
		},
		{
			Keys:    bson.D{{Key: "participants", Value: 1}, {Key: "updatedAt", Value: -1}},
			Options: options.Index().SetName("participant_inbox"),
		},
	})
	if err != nil {
		return fmt.Errorf("create conversation indexes: %w", err)
	}
	return nil
}

// now Mongo 只保存到毫秒，先截斷讓廣播出去的時間戳與重新載入時一致
func (s *ConversationStore) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Millisecond)
}

func (s *ConversationStore) GetOrCreate(ctx context.Context, productID, a, b primitive.ObjectID) (*models.Conversation, bool, error) {
	if a == b {
		return nil, false, fmt.Errorf("%w: participants must be distinct", chat.ErrInvalidInput)
	}
	pair, pairKey := utils.CanonicalPair(a, b)
	filter := bson.M{"product": productID, "pairKey": pairKey}

	existing, err := s.findOne(ctx, filter)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("find conversation: %w", err)
	}

	now := s.now()
	conv := models.Conversation{
		ID:             primitive.NewObjectID(),
		ProductID:      productID,
		Participants:   pair,
		PairKey:        pairKey,
		Messages:       []models.Message{},
		MeetupLocation: models.DefaultLocation,
		Status:         models.StatusChatting,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.coll.InsertOne(ctx, conv); err != nil {
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, fmt.Errorf("insert conversation: %w", err)
		}
		// 同時建立時輸給了另一個請求，改為讀取勝出的那一筆
		winner, err := s.findOne(ctx, filter)
		if err != nil {
			return nil, false, fmt.Errorf("%w: conversation created concurrently but not readable: %v", chat.ErrConflict, err)
		}
		return winner, false, nil
	}
	return &conv, true, nil
}

func (s *ConversationStore) Get(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	conv, err := s.findOne(ctx, bson.M{"_id": id})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (s *ConversationStore) AppendMessage(ctx context.Context, id, senderID primitive.ObjectID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message text is empty", chat.ErrInvalidInput)
	}

	msg := models.Message{
		ID:        primitive.NewObjectID(),
		SenderID:  senderID,
		Text:      text,
		Timestamp: s.now(),
	}
	// 參與者檢查與寫入在同一個原子更新中完成
	result, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "participants": senderID},
		bson.M{
			"$push": bson.M{"messages": msg},
			"$set":  bson.M{"updatedAt": msg.Timestamp},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	if result.MatchedCount == 0 {
		n, err := s.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
		if err != nil {
			return nil, fmt.Errorf("append message: %w", err)
		}
		if n == 0 {
			return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, id.Hex())
		}
		return nil, fmt.Errorf("%w: %s is not a participant", chat.ErrForbidden, senderID.Hex())
	}
	return &msg, nil
}

func (s *ConversationStore) SetStatus(ctx context.Context, id primitive.ObjectID, change chat.StatusChange) (*models.Conversation, error) {
	if !models.CanTransition(change.From, change.To) {
		return nil, fmt.Errorf("%w: %s -> %s", chat.ErrInvalidTransition, change.From, change.To)
	}

	filter := bson.M{"_id": id, "status": change.From}
	set := bson.M{"status": change.To, "updatedAt": s.now()}
	update := bson.M{"$set": set}

	switch change.To {
	case models.StatusMeetupArranged:
		set["meetupLocation"] = change.Location
		if change.OTP != nil {
			set["meetupOTP"] = change.OTP
		}
	case models.StatusCompleted:
		filter["meetupOTP.hash"] = change.OTPHash
		filter["meetupOTP.expiresAt"] = bson.M{"$gt": change.Now}
		update["$unset"] = bson.M{"meetupOTP": ""}
	case models.StatusCancelled:
		update["$unset"] = bson.M{"meetupOTP": ""}
	}

	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(defaultProjection)

	var conv models.Conversation
	err := s.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, s.explainStatusMiss(ctx, id, change)
	}
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	return &conv, nil
}

// explainStatusMiss 條件式更新沒有命中時，判斷是哪一個前置條件不成立
func (s *ConversationStore) explainStatusMiss(ctx context.Context, id primitive.ObjectID, change chat.StatusChange) error {
	var current struct {
		Status models.Status `bson:"status"`
	}
	err := s.coll.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"status": 1})).Decode(&current)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: conversation %s", chat.ErrNotFound, id.Hex())
	}
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if current.Status != change.From {
		return fmt.Errorf("%w: status is %s, expected %s", chat.ErrInvalidTransition, current.Status, change.From)
	}
	if change.To == models.StatusCompleted {
		return chat.ErrInvalidOTP
	}
	return fmt.Errorf("%w: %s -> %s", chat.ErrInvalidTransition, change.From, change.To)
}

func (s *ConversationStore) MeetupOTP(ctx context.Context, id primitive.ObjectID) (*models.MeetupOTP, error) {
	var doc struct {
		OTP *models.MeetupOTP `bson:"meetupOTP"`
	}
	err := s.coll.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"meetupOTP": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: conversation %s", chat.ErrNotFound, id.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("read meetup otp: %w", err)
	}
	return doc.OTP, nil
}

func (s *ConversationStore) ListForParticipant(ctx context.Context, participantID primitive.ObjectID) ([]models.Conversation, error) {
	findOptions := options.Find().
		SetSort(bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: -1}}).
		// 收件匣只需要最後一則訊息
		SetProjection(bson.M{"meetupOTP": 0, "messages": bson.M{"$slice": -1}})

	cursor, err := s.coll.Find(ctx, bson.M{"participants": participantID}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer cursor.Close(ctx)

	convs := []models.Conversation{}
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	return convs, nil
}

func (s *ConversationStore) findOne(ctx context.Context, filter bson.M) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.coll.FindOne(ctx, filter, options.FindOne().SetProjection(defaultProjection)).Decode(&conv)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
