package websocket

import (
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Subscriber 房間內的一個接收端 (通常是一條 WebSocket 連線)
// Send 必須是非阻塞的：緩衝區滿時由實作自行關閉連線並回傳錯誤
type Subscriber interface {
	ID() string
	Send(payload []byte) error
}

// Router 管理連線與對話房間的對應關係
// 加入房間不做任何授權檢查，授權由呼叫端 (Session) 負責
type Router struct {
	mu           sync.RWMutex
	rooms        map[primitive.ObjectID]map[string]Subscriber // conversationID -> subscriberID -> subscriber
	sessionRooms map[string]map[primitive.ObjectID]struct{}   // subscriberID -> set of conversationIDs
}

// NewRouter 創建 Router
func NewRouter() *Router {
	return &Router{
		rooms:        make(map[primitive.ObjectID]map[string]Subscriber),
		sessionRooms: make(map[string]map[primitive.ObjectID]struct{}),
	}
}

// Join 將連線加入對話房間，重複加入不會有任何效果
func (r *Router) Join(sub Subscriber, conversationID primitive.ObjectID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[string]Subscriber)
		r.rooms[conversationID] = room
	}
	room[sub.ID()] = sub

	memberships := r.sessionRooms[sub.ID()]
	if memberships == nil {
		memberships = make(map[primitive.ObjectID]struct{})
		r.sessionRooms[sub.ID()] = memberships
	}
	memberships[conversationID] = struct{}{}
}

// Leave 將連線移出對話房間
func (r *Router) Leave(sub Subscriber, conversationID primitive.ObjectID) {
	r.mu.Lock()
	r.leaveLocked(conversationID, sub.ID())
	r.mu.Unlock()
}

// Detach 連線中斷時移除它在所有房間的成員資格
func (r *Router) Detach(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conversationID := range r.sessionRooms[sub.ID()] {
		r.leaveLocked(conversationID, sub.ID())
	}
	delete(r.sessionRooms, sub.ID())
}

// Broadcast 將 payload 送給房間內所有連線，回傳成功放入佇列的數量
// 不會等待任何一條連線寫出；慢速連線由 Subscriber.Send 自行關閉
func (r *Router) Broadcast(conversationID primitive.ObjectID, payload []byte) int {
	r.mu.RLock()
	room := r.rooms[conversationID]
	subs := make([]Subscriber, 0, len(room))
	for _, sub := range room {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, sub := range subs {
		if err := sub.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// Rooms 回傳連線目前所在的房間
func (r *Router) Rooms(sub Subscriber) []primitive.ObjectID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]primitive.ObjectID, 0, len(r.sessionRooms[sub.ID()]))
	for conversationID := range r.sessionRooms[sub.ID()] {
		out = append(out, conversationID)
	}
	return out
}

// Members 回傳房間內的連線數
func (r *Router) Members(conversationID primitive.ObjectID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[conversationID])
}

// InRoom 回傳連線是否在房間內
func (r *Router) InRoom(sub Subscriber, conversationID primitive.ObjectID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessionRooms[sub.ID()][conversationID]
	return ok
}

func (r *Router) leaveLocked(conversationID primitive.ObjectID, subscriberID string) {
	room := r.rooms[conversationID]
	if room == nil {
		return
	}
	delete(room, subscriberID)
	if len(room) == 0 {
		delete(r.rooms, conversationID)
	}
	if memberships, ok := r.sessionRooms[subscriberID]; ok {
		delete(memberships, conversationID)
		if len(memberships) == 0 {
			delete(r.sessionRooms, subscriberID)
		}
	}
}
