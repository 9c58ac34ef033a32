package service

import (
	"strings"
	"unicode/utf8"
)

// Session 是调用方的身份，由 HTTP 层从 JWT 中取出后显式传入每个操作。
type Session struct {
	UID string
}

// NewSession 创建 Session
func NewSession(uid string) Session {
	return Session{UID: strings.TrimSpace(uid)}
}

func (s Session) validate() error {
	if s.UID == "" {
		return ErrNotSignedIn
	}
	return nil
}

// maxDisplayNameLength 与 players.name 列长度一致
const maxDisplayNameLength = 64

// normalizeDisplayName 去掉首尾空白，空字符串视为无效，过长时截断
func normalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidDisplayName
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLength {
		name = string([]rune(name)[:maxDisplayNameLength])
	}
	return name, nil
}
