package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrorResponse 結構體用於返回 JSON 格式的錯誤訊息
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// User 對應 users 集合中本系統需要讀取的欄位 (註冊、封鎖由其他服務負責)
type User struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	FullName string             `bson:"fullName" json:"fullName"`
	Email    string             `bson:"email" json:"email"`
	IsBanned bool               `bson:"isBanned" json:"-"`
}

// Product 對應 products 集合中聊天功能需要的欄位
type Product struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	SellerID primitive.ObjectID `bson:"seller" json:"seller"`
	Title    string             `bson:"title" json:"title"`
	Price    float64            `bson:"price" json:"price"`
	Images   []string           `bson:"images" json:"images"`
}

// UserSummary 收件匣中顯示的參與者資訊
type UserSummary struct {
	ID       primitive.ObjectID `json:"id"`
	FullName string             `json:"fullName"`
	Email    string             `json:"email"`
}

// ProductSummary 收件匣中顯示的商品資訊
type ProductSummary struct {
	ID     primitive.ObjectID `json:"id"`
	Title  string             `json:"title"`
	Price  float64            `json:"price"`
	Images []string           `json:"images"`
}

// ConversationSummary 收件匣中的一筆對話
type ConversationSummary struct {
	ID             primitive.ObjectID `json:"id"`
	Product        ProductSummary     `json:"product"`
	Participants   []UserSummary      `json:"participants"`
	Status         Status             `json:"status"`
	MeetupLocation Location           `json:"meetupLocation"`
	LastMessage    *Message           `json:"lastMessage,omitempty"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}
