package repository

import "errors"

// 通用的存储库错误
var (
	// ErrNotFound 表示请求的记录未找到
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateEntry 表示尝试插入的数据违反了唯一约束
	ErrDuplicateEntry = errors.New("repository: duplicate entry")
	// ErrTxConflict 表示事务与并发写入冲突 (版本号不匹配、死锁、序列化失败)，整个事务体可以重试
	ErrTxConflict = errors.New("repository: transaction conflict")
)

// 特定资源的错误
var (
	ErrUserNotFound   = ErrNotFound
	ErrRoomNotFound   = ErrNotFound
	ErrPlayerNotFound = ErrNotFound
)
