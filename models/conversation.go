package models

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Status 代表交易對話的狀態機狀態
type Status string

const (
	StatusChatting       Status = "Chatting"        // 初始狀態：議價中
	StatusMeetupArranged Status = "Meetup Arranged" // 已約定面交地點
	StatusCompleted      Status = "Completed"       // 面交完成 (終態)
	StatusCancelled      Status = "Cancelled"       // 已取消 (終態)
)

// transitions 合法的狀態轉換表
var transitions = map[Status][]Status{
	StatusChatting:       {StatusMeetupArranged, StatusCancelled},
	StatusMeetupArranged: {StatusCompleted, StatusCancelled},
}

// ParseStatus 將用戶端字串轉為 Status，不在列舉內則回傳錯誤
func ParseStatus(s string) (Status, error) {
	switch s {
	case string(StatusChatting):
		return StatusChatting, nil
	case string(StatusMeetupArranged), "MeetupArranged":
		return StatusMeetupArranged, nil
	case string(StatusCompleted):
		return StatusCompleted, nil
	case string(StatusCancelled):
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// IsTerminal 回傳該狀態是否為終態
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition 回傳 from -> to 是否為合法轉換
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Location 校園內可面交的地點
type Location string

// DefaultLocation 未指定地點時的預設值
const DefaultLocation Location = "Snackers"

// Locations 可選的面交地點 (與商品的 preferredMeetupSpot 同步)
var Locations = []Location{
	"BH-1", "BH-2", "BH-5", "BH-6", "BH-7",
	"Mega Boys Block A", "Mega Boys Block B", "Mega Boys Block F",
	"GH-1", "GH-2", "Mega Girls Hostel",
	"Nescafe", "Night Canteen", "Snackers", "Yadav Canteen",
	"Campus Cafe", "Rim Jhim Bakery", "Central Library", "Department Building",
}

// ParseLocation 驗證地點是否在允許的集合中；空字串使用預設地點
func ParseLocation(s string) (Location, error) {
	if s == "" {
		return DefaultLocation, nil
	}
	for _, l := range Locations {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown meetup location %q", s)
}

// Message 代表對話中的一則訊息，內嵌於 Conversation
type Message struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	SenderID  primitive.ObjectID `bson:"sender" json:"sender"`
	Text      string             `bson:"text" json:"text"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"` // 寫入資料庫當下由伺服器指定
}

// MeetupOTP 面交確認碼，只存雜湊值，預設讀取不會帶出
type MeetupOTP struct {
	Hash        string             `bson:"hash" json:"-"`
	ExpiresAt   time.Time          `bson:"expiresAt" json:"-"`
	GeneratedBy primitive.ObjectID `bson:"generatedBy" json:"-"`
}

// Expired 回傳確認碼在 now 時是否已過期
func (o *MeetupOTP) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}

// Conversation 代表買家與賣家針對某商品的對話
type Conversation struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"id,omitempty"`
	ProductID      primitive.ObjectID   `bson:"product" json:"product"`
	Participants   []primitive.ObjectID `bson:"participants" json:"participants"` // 依 Hex 排序的兩位參與者
	PairKey        string               `bson:"pairKey" json:"-"`                 // 唯一索引用的標準化鍵
	Messages       []Message            `bson:"messages" json:"messages"`
	MeetupLocation Location             `bson:"meetupLocation" json:"meetupLocation"`
	MeetupOTP      *MeetupOTP           `bson:"meetupOTP,omitempty" json:"-"`
	Status         Status               `bson:"status" json:"status"`
	CreatedAt      time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time            `bson:"updatedAt" json:"updatedAt"`
}

// HasParticipant 回傳 id 是否為此對話的參與者
func (c *Conversation) HasParticipant(id primitive.ObjectID) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Counterparty 回傳另一位參與者
func (c *Conversation) Counterparty(id primitive.ObjectID) primitive.ObjectID {
	for _, p := range c.Participants {
		if p != id {
			return p
		}
	}
	return primitive.NilObjectID
}
