package domain

import "time"

// RoomState 房间生命周期状态，只允许 waiting -> playing。
type RoomState string

const (
	RoomStateWaiting RoomState = "waiting" // 等待玩家加入
	RoomStatePlaying RoomState = "playing" // 游戏已开始，不再接受加入
)

// StaleMaxPlayers 清理任务只处理人数不超过该值的房间。
const StaleMaxPlayers = 1

// Room 表示一个派对游戏房间。
type Room struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`                                                             // 房间 ID (UUID 字符串)
	HostUID      string     `gorm:"size:128;not null" json:"hostUid"`                                                         // 创建者 (房主) 的用户 ID
	State        RoomState  `gorm:"size:16;not null;index:idx_rooms_state_created,priority:1" json:"state"`                   // waiting | playing
	PlayerCount  int        `gorm:"not null;default:0;index:idx_rooms_cleanup,priority:1" json:"playerCount"`                 // 由事务内重新计数维护
	CreatedAt    time.Time  `gorm:"not null;index:idx_rooms_state_created,priority:2,sort:desc" json:"createdAt"`             // 创建时间，不可变
	LastActiveAt time.Time  `gorm:"not null" json:"lastActiveAt"`                                                             // 最近一次成员或状态变更
	WaitingSince *time.Time `gorm:"index:idx_rooms_cleanup,priority:2" json:"waitingSince"`                                   // 人数降到 <=1 时开始计时，nil 表示不在空闲窗口
	Version      uint       `gorm:"not null;default:0" json:"-"`                                                              // 乐观锁版本号
}

// IsStale 判断房间是否已在空闲窗口中停留到 cutoff 之前。
func (r *Room) IsStale(cutoff time.Time) bool {
	if r.PlayerCount > StaleMaxPlayers || r.WaitingSince == nil {
		return false
	}
	return !r.WaitingSince.After(cutoff)
}

// Clone 返回房间的深拷贝 (WaitingSince 指针不共享)。
func (r Room) Clone() Room {
	if r.WaitingSince != nil {
		ws := *r.WaitingSince
		r.WaitingSince = &ws
	}
	return r
}

// Player 是房间内的一个玩家条目，主键 (RoomID, UID) 保证每个用户在一个房间里最多一条。
type Player struct {
	RoomID     string    `gorm:"primaryKey;size:36" json:"-"`
	UID        string    `gorm:"primaryKey;column:user_id;size:128" json:"id"`
	Name       string    `gorm:"size:64;not null" json:"name"`
	IsHost     bool      `gorm:"not null;default:false" json:"isHost"`
	JoinedAt   time.Time `gorm:"not null;index" json:"joinedAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
}

// TableName 玩家表名
func (Player) TableName() string { return "room_players" }
