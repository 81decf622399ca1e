package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"campus-kart/backend/clock"
	"campus-kart/backend/models"
	"campus-kart/backend/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore 是 Store 的記憶體實作，只適用於單一行程 (測試與本機開發)
type MemoryStore struct {
	mu    sync.Mutex
	clock clock.Clock
	byID  map[primitive.ObjectID]*models.Conversation
	byKey map[string]primitive.ObjectID // product hex + pairKey -> conversation ID
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore 創建空的記憶體儲存
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock: clk,
		byID:  make(map[primitive.ObjectID]*models.Conversation),
		byKey: make(map[string]primitive.ObjectID),
	}
}

func (s *MemoryStore) GetOrCreate(ctx context.Context, productID, a, b primitive.ObjectID) (*models.Conversation, bool, error) {
	if a == b {
		return nil, false, fmt.Errorf("%w: participants must be distinct", ErrInvalidInput)
	}
	pair, pairKey := utils.CanonicalPair(a, b)
	key := productID.Hex() + "/" + pairKey

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[key]; ok {
		return snapshot(s.byID[id]), false, nil
	}

	now := s.clock.Now()
	c := &models.Conversation{
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
	s.byID[c.ID] = c
	s.byKey[key] = c.ID
	return snapshot(c), true, nil
}

func (s *MemoryStore) Get(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id.Hex())
	}
	return snapshot(c), nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, id, senderID primitive.ObjectID, text string) (*models.Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: message text is empty", ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id.Hex())
	}
	if !c.HasParticipant(senderID) {
		return nil, fmt.Errorf("%w: %s is not a participant", ErrForbidden, senderID.Hex())
	}

	msg := models.Message{
		ID:        primitive.NewObjectID(),
		SenderID:  senderID,
		Text:      text,
		Timestamp: s.clock.Now(),
	}
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.Timestamp
	return &msg, nil
}

func (s *MemoryStore) SetStatus(ctx context.Context, id primitive.ObjectID, change StatusChange) (*models.Conversation, error) {
	if !models.CanTransition(change.From, change.To) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, change.From, change.To)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id.Hex())
	}
	if c.Status != change.From {
		return nil, fmt.Errorf("%w: status is %s, expected %s", ErrInvalidTransition, c.Status, change.From)
	}

	switch change.To {
	case models.StatusMeetupArranged:
		c.MeetupLocation = change.Location
		if change.OTP != nil {
			otp := *change.OTP
			c.MeetupOTP = &otp
		}
	case models.StatusCompleted:
		if c.MeetupOTP == nil || c.MeetupOTP.Hash != change.OTPHash || c.MeetupOTP.Expired(change.Now) {
			return nil, ErrInvalidOTP
		}
		c.MeetupOTP = nil
	case models.StatusCancelled:
		c.MeetupOTP = nil
	}
	c.Status = change.To
	c.UpdatedAt = s.clock.Now()
	return snapshot(c), nil
}

func (s *MemoryStore) MeetupOTP(ctx context.Context, id primitive.ObjectID) (*models.MeetupOTP, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %s", ErrNotFound, id.Hex())
	}
	if c.MeetupOTP == nil {
		return nil, nil
	}
	otp := *c.MeetupOTP
	return &otp, nil
}

func (s *MemoryStore) ListForParticipant(ctx context.Context, participantID primitive.ObjectID) ([]models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Conversation
	for _, c := range s.byID {
		if c.HasParticipant(participantID) {
			out = append(out, *snapshot(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID.Hex() > out[j].ID.Hex()
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// snapshot 複製對話供外部讀取，確認碼欄位不會被帶出
func snapshot(c *models.Conversation) *models.Conversation {
	cp := *c
	cp.Participants = append([]primitive.ObjectID(nil), c.Participants...)
	cp.Messages = append([]models.Message{}, c.Messages...)
	cp.MeetupOTP = nil
	return &cp
}
