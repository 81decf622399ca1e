package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"campus-kart/backend/chat"
	"campus-kart/backend/clock"
	"campus-kart/backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// fakeSubscriber 記錄收到的訊框；full 為 true 時模擬緩衝區已滿
type fakeSubscriber struct {
	id     string
	mu     sync.Mutex
	frames [][]byte
	full   bool
	closed bool
}

func newFakeSubscriber() *fakeSubscriber {
	return &fakeSubscriber{id: uuid.NewString()}
}

func (f *fakeSubscriber) ID() string { return f.id }

func (f *fakeSubscriber) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClientClosed
	}
	if f.full {
		f.closed = true
		return ErrSlowConsumer
	}
	f.frames = append(f.frames, payload)
	return nil
}

func (f *fakeSubscriber) events(t *testing.T) []models.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Event, 0, len(f.frames))
	for _, raw := range f.frames {
		var e models.Event
		require.NoError(t, json.Unmarshal(raw, &e))
		out = append(out, e)
	}
	return out
}

func (f *fakeSubscriber) last(t *testing.T) models.Event {
	t.Helper()
	events := f.events(t)
	require.NotEmpty(t, events)
	return events[len(events)-1]
}

// history 解析最後一個 chat_history 訊框
func (f *fakeSubscriber) history(t *testing.T) models.HistoryEvent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		var h models.HistoryEvent
		require.NoError(t, json.Unmarshal(f.frames[i], &h))
		if h.Type == models.EventChatHistory {
			return h
		}
	}
	t.Fatal("no chat_history frame received")
	return models.HistoryEvent{}
}

// raw 回傳第 i 個訊框的原始 JSON
func (f *fakeSubscriber) raw(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return string(f.frames[i])
}

func (f *fakeSubscriber) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

type failingBroadcaster struct{}

func (failingBroadcaster) Broadcast(context.Context, primitive.ObjectID, models.Event) error {
	return errors.New("redis unavailable")
}

// fixture 買家、賣家、商品與一條已建立的對話
type fixture struct {
	clock     *clock.FakeClock
	router    *Router
	store     *chat.MemoryStore
	directory *chat.MemoryDirectory
	service   *chat.Service
	pipeline  *chat.Pipeline

	buyer, seller, stranger, product primitive.ObjectID
	conv                             *models.Conversation
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:     clock.Fake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		router:    NewRouter(),
		directory: chat.NewMemoryDirectory(),
		buyer:     primitive.NewObjectID(),
		seller:    primitive.NewObjectID(),
		stranger:  primitive.NewObjectID(),
		product:   primitive.NewObjectID(),
	}
	f.store = chat.NewMemoryStore(f.clock)
	f.directory.AddUser(models.User{ID: f.buyer, FullName: "Buyer"})
	f.directory.AddUser(models.User{ID: f.seller, FullName: "Seller"})
	f.directory.AddUser(models.User{ID: f.stranger, FullName: "Stranger"})
	f.directory.AddProduct(models.Product{ID: f.product, SellerID: f.seller, Title: "Lab Coat", Price: 200})

	broadcaster := NewLocalBroadcaster(f.router)
	f.service = chat.NewService(chat.ServiceConfig{
		Store:       f.store,
		Products:    f.directory,
		Users:       f.directory,
		Broadcaster: broadcaster,
		Clock:       f.clock,
		OTPHashCost: bcrypt.MinCost,
	})
	f.pipeline = chat.NewPipeline(f.store, broadcaster)

	conv, _, err := f.service.Access(context.Background(), f.buyer, f.product, f.seller)
	require.NoError(t, err)
	f.conv = conv
	return f
}

func (f *fixture) session(userID primitive.ObjectID) (*Session, *fakeSubscriber) {
	sub := newFakeSubscriber()
	return NewSession(userID, sub, f.router, f.service, f.pipeline), sub
}

func frame(t *testing.T, in models.InboundFrame) []byte {
	t.Helper()
	raw, err := json.Marshal(in)
	require.NoError(t, err)
	return raw
}
