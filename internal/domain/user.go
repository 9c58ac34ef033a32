package domain

import "time"

// User 记录用户当前所在的房间。一个用户同一时间最多只有一个 ActiveRoomID。
type User struct {
	ID           string    `gorm:"primaryKey;size:128" json:"id"`     // 认证系统提供的 uid
	DisplayName  string    `gorm:"size:64" json:"displayName"`        // 最近一次使用的昵称
	ActiveRoomID *string   `gorm:"size:36;index" json:"activeRoomId"` // nil 表示不在任何房间
	Version      uint      `gorm:"not null;default:0" json:"-"`       // 乐观锁版本号，0 表示尚未持久化
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"-"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"-"`
}

// Clone 返回用户的深拷贝。
func (u User) Clone() User {
	if u.ActiveRoomID != nil {
		id := *u.ActiveRoomID
		u.ActiveRoomID = &id
	}
	return u
}
