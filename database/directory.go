package database

import (
	"context"
	"errors"
	"fmt"

	"campus-kart/backend/chat"
	"campus-kart/backend/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Directory 讀取 users 與 products 集合，提供聊天功能需要的外部資料
// 這兩個集合由商品與帳號服務維護，這裡只讀不寫
type Directory struct {
	users    *mongo.Collection
	products *mongo.Collection
}

var (
	_ chat.ProductDirectory = (*Directory)(nil)
	_ chat.UserDirectory    = (*Directory)(nil)
)

// NewDirectory 創建 Directory
func NewDirectory(db *mongo.Database) *Directory {
	return &Directory{
		users:    db.Collection("users"),
		products: db.Collection("products"),
	}
}

// Seller 回傳商品的賣家 ID
func (d *Directory) Seller(ctx context.Context, productID primitive.ObjectID) (primitive.ObjectID, error) {
	var product models.Product
	err := d.products.FindOne(ctx, bson.M{"_id": productID}, options.FindOne().SetProjection(bson.M{"seller": 1})).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return primitive.NilObjectID, fmt.Errorf("%w: product %s", chat.ErrNotFound, productID.Hex())
	}
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("find product seller: %w", err)
	}
	return product.SellerID, nil
}

// Products 批次取得商品的標題、價格與圖片
func (d *Directory) Products(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.ProductSummary, error) {
	out := make(map[primitive.ObjectID]models.ProductSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	findOptions := options.Find().SetProjection(bson.M{"title": 1, "price": 1, "images": 1})
	cursor, err := d.products.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	defer cursor.Close(ctx)

	var products []models.Product
	if err := cursor.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	for _, p := range products {
		out[p.ID] = models.ProductSummary{ID: p.ID, Title: p.Title, Price: p.Price, Images: p.Images}
	}
	return out, nil
}

// Users 批次取得使用者的姓名與 Email
func (d *Directory) Users(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	out := make(map[primitive.ObjectID]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	findOptions := options.Find().SetProjection(bson.M{"fullName": 1, "email": 1})
	cursor, err := d.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, findOptions)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	for _, u := range users {
		out[u.ID] = models.UserSummary{ID: u.ID, FullName: u.FullName, Email: u.Email}
	}
	return out, nil
}

// Active 回傳使用者是否存在且未被封鎖
func (d *Directory) Active(ctx context.Context, id primitive.ObjectID) (bool, error) {
	var user models.User
	err := d.users.FindOne(ctx, bson.M{"_id": id}, options.FindOne().SetProjection(bson.M{"isBanned": 1})).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find user: %w", err)
	}
	return !user.IsBanned, nil
}
