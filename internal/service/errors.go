package service

import (
	"errors"

	"github.com/sirupsen/logrus"

	"party-lobby/internal/repository"
)

var (
	ErrNotSignedIn        = errors.New("not signed in")
	ErrAlreadyInRoom      = errors.New("you are already in a room")
	ErrRoomNotFound       = errors.New("room not found")
	ErrRoomNotJoinable    = errors.New("room is no longer accepting players")
	ErrForbidden          = errors.New("only the host can do that")
	ErrInvalidOperation   = errors.New("host cannot kick themselves")
	ErrInvalidDisplayName = errors.New("display name is required")
	ErrConflict           = errors.New("room was modified concurrently, please retry")
	ErrInternalServer     = errors.New("internal server error")
)

// businessErrors 这些错误原样返回给调用方，不重试
var businessErrors = []error{
	ErrNotSignedIn,
	ErrAlreadyInRoom,
	ErrRoomNotFound,
	ErrRoomNotJoinable,
	ErrForbidden,
	ErrInvalidOperation,
	ErrInvalidDisplayName,
}

func isBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// mapRepoError 将仓库层的错误映射到服务层定义的错误，无法识别的错误记录日志后返回 ErrInternalServer。
func mapRepoError(logCtx *logrus.Entry, err error) error {
	switch {
	case err == nil:
		return nil
	case isBusinessError(err):
		return err
	case errors.Is(err, repository.ErrTxConflict):
		logCtx.WithError(err).Warn("Transaction conflict retries exhausted")
		return ErrConflict
	case errors.Is(err, repository.ErrNotFound):
		return ErrRoomNotFound
	default:
		logCtx.WithError(err).Error("Repository error")
		return ErrInternalServer
	}
}
