package models

import (
	"errors"
)

// 领域哨兵错误：上层通过 errors.Is 做类型化判断，
// 返回时用 fmt.Errorf("%w: ...") 附带出错的 id / 字段
var (
	// ErrNotFound 未知的会话 / 读数 / 报警 id
	ErrNotFound = errors.New("not found")

	// ErrNoOpenSession 传感器当前没有打开的会话，读数无法归属
	ErrNoOpenSession = errors.New("no open session")

	// ErrConflictingSession 传感器已存在打开的会话
	ErrConflictingSession = errors.New("conflicting open session")

	// ErrAlreadyClosed 会话已关闭（关闭是终态，不可重开）
	ErrAlreadyClosed = errors.New("session already closed")

	// ErrInvalidEndTime 结束时间早于开始时间
	ErrInvalidEndTime = errors.New("invalid end time")

	// ErrAlreadyAcknowledged 报警已被确认（确认只允许一次）
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")

	// ErrInvalidRange 查询区间无效（from >= to）
	ErrInvalidRange = errors.New("invalid time range")
)
