package chat

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"campus-kart/backend/clock"
	"campus-kart/backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

// broadcastRecord 記錄一次廣播以及廣播當下觀察到的時間
type broadcastRecord struct {
	conversationID primitive.ObjectID
	event          models.Event
	observedAt     time.Time
}

type recordingBroadcaster struct {
	mu      sync.Mutex
	records []broadcastRecord
	hook    func(conversationID primitive.ObjectID, event models.Event)
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, conversationID primitive.ObjectID, event models.Event) error {
	if b.hook != nil {
		b.hook(conversationID, event)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, broadcastRecord{conversationID: conversationID, event: event, observedAt: time.Now()})
	return nil
}

func (b *recordingBroadcaster) events() []broadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]broadcastRecord(nil), b.records...)
}

type fakeProducts struct {
	sellers map[primitive.ObjectID]primitive.ObjectID
	titles  map[primitive.ObjectID]string
}

func (f *fakeProducts) Seller(ctx context.Context, productID primitive.ObjectID) (primitive.ObjectID, error) {
	seller, ok := f.sellers[productID]
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("%w: product %s", ErrNotFound, productID.Hex())
	}
	return seller, nil
}

func (f *fakeProducts) Products(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.ProductSummary, error) {
	out := make(map[primitive.ObjectID]models.ProductSummary)
	for _, id := range ids {
		if title, ok := f.titles[id]; ok {
			out[id] = models.ProductSummary{ID: id, Title: title}
		}
	}
	return out, nil
}

type fakeUsers struct {
	names  map[primitive.ObjectID]string
	banned map[primitive.ObjectID]bool
}

func (f *fakeUsers) Users(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	out := make(map[primitive.ObjectID]models.UserSummary)
	for _, id := range ids {
		if name, ok := f.names[id]; ok {
			out[id] = models.UserSummary{ID: id, FullName: name}
		}
	}
	return out, nil
}

func (f *fakeUsers) Active(ctx context.Context, id primitive.ObjectID) (bool, error) {
	_, ok := f.names[id]
	return ok && !f.banned[id], nil
}

// fixture 買家 u1、賣家 u2、商品 p1
type fixture struct {
	clock       *clock.FakeClock
	store       *MemoryStore
	broadcaster *recordingBroadcaster
	service     *Service
	pipeline    *Pipeline

	buyer, seller, product primitive.ObjectID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		clock:       clock.Fake(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		broadcaster: &recordingBroadcaster{},
		buyer:       primitive.NewObjectID(),
		seller:      primitive.NewObjectID(),
		product:     primitive.NewObjectID(),
	}
	f.store = NewMemoryStore(f.clock)
	products := &fakeProducts{
		sellers: map[primitive.ObjectID]primitive.ObjectID{f.product: f.seller},
		titles:  map[primitive.ObjectID]string{f.product: "Scientific Calculator"},
	}
	users := &fakeUsers{names: map[primitive.ObjectID]string{f.buyer: "Buyer", f.seller: "Seller"}}

	f.service = NewService(ServiceConfig{
		Store:       f.store,
		Products:    products,
		Users:       users,
		Broadcaster: f.broadcaster,
		Clock:       f.clock,
		OTPHashCost: bcrypt.MinCost,
	})
	f.pipeline = NewPipeline(f.store, f.broadcaster)
	return f
}

func (f *fixture) conversation(t *testing.T) *models.Conversation {
	t.Helper()
	conv, _, err := f.service.Access(context.Background(), f.buyer, f.product, f.seller)
	if err != nil {
		t.Fatalf("access chat: %v", err)
	}
	return conv
}
