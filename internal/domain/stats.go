package domain

import "time"

// RoomStatsID 统计表里唯一一行的主键 (对应 stats/rooms)。
const RoomStatsID = "rooms"

// RoomStats 房间数量的累计计数，通过原子增减维护，不保证与实际房间数完全一致。
type RoomStats struct {
	ID        string    `gorm:"primaryKey;size:32" json:"-"`
	Count     int64     `gorm:"not null;default:0" json:"count"`
	UpdatedAt time.Time `json:"updatedAt"`
}
