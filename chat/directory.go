package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"campus-kart/backend/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryDirectory 記憶體中的使用者與商品資料
// 用於不連 MongoDB 的本機模式 (STORE_BACKEND=memory) 與測試
type MemoryDirectory struct {
	mu       sync.RWMutex
	users    map[primitive.ObjectID]models.User
	products map[primitive.ObjectID]models.Product
}

var (
	_ ProductDirectory = (*MemoryDirectory)(nil)
	_ UserDirectory    = (*MemoryDirectory)(nil)
)

// NewMemoryDirectory 創建空的 MemoryDirectory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:    make(map[primitive.ObjectID]models.User),
		products: make(map[primitive.ObjectID]models.Product),
	}
}

// LoadSeed 從 JSON 讀入使用者與商品，欄位名稱與 users、products 集合相同
// User 的 isBanned 不對外輸出，因此在這裡另外解析
func (d *MemoryDirectory) LoadSeed(r io.Reader) error {
	var seed struct {
		Users []struct {
			models.User
			IsBanned bool `json:"isBanned"`
		} `json:"users"`
		Products []models.Product `json:"products"`
	}
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	for _, u := range seed.Users {
		user := u.User
		user.IsBanned = u.IsBanned
		d.AddUser(user)
	}
	for _, p := range seed.Products {
		d.AddProduct(p)
	}
	return nil
}

func (d *MemoryDirectory) AddUser(u models.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *MemoryDirectory) AddProduct(p models.Product) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.products[p.ID] = p
}

func (d *MemoryDirectory) Seller(_ context.Context, productID primitive.ObjectID) (primitive.ObjectID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.products[productID]
	if !ok {
		return primitive.NilObjectID, fmt.Errorf("%w: product %s", ErrNotFound, productID.Hex())
	}
	return p.SellerID, nil
}

func (d *MemoryDirectory) Products(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.ProductSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[primitive.ObjectID]models.ProductSummary, len(ids))
	for _, id := range ids {
		if p, ok := d.products[id]; ok {
			out[id] = models.ProductSummary{ID: p.ID, Title: p.Title, Price: p.Price, Images: p.Images}
		}
	}
	return out, nil
}

func (d *MemoryDirectory) Users(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]models.UserSummary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[primitive.ObjectID]models.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = models.UserSummary{ID: u.ID, FullName: u.FullName, Email: u.Email}
		}
	}
	return out, nil
}

// Active 不存在的使用者視為不可用
func (d *MemoryDirectory) Active(_ context.Context, id primitive.ObjectID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	return ok && !u.IsBanned, nil
}
