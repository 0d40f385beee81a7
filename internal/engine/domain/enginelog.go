package domain

import "time"

// HeartbeatFinishedMsg 每次心跳提交前写入引擎日志的消息，
// 外部校验者靠统计该消息的条数判断订单是否全部处理完毕
const HeartbeatFinishedMsg = "Heartbeat finished"

// maxLogMsgLen 日志消息的最大长度，超出部分截断
const maxLogMsgLen = 1024

// EngineLog 引擎活动日志，记录产生日志的主机与进程
type EngineLog struct {
	// 日志 ID
	LogID int64 `gorm:"column:log_id;primaryKey;autoIncrement" json:"log_id"`
	// 主机名
	Hostname string `gorm:"column:hostname;type:varchar(256);not null" json:"hostname"`
	// 进程号
	PID int `gorm:"column:pid;not null" json:"pid"`
	// 记录时间
	LogDttm time.Time `gorm:"column:log_dttm;not null;autoCreateTime" json:"log_dttm"`
	// 日志内容
	LogMsg string `gorm:"column:log_msg;type:varchar(1024);not null" json:"log_msg"`
	// 关联的外部表名
	ExtRef *string `gorm:"column:ext_ref;type:varchar(64)" json:"ext_ref"`
	// 关联的外部记录 ID
	ExtRefID *int64 `gorm:"column:ext_ref_id" json:"ext_ref_id"`
}

// TableName 指定表名
func (EngineLog) TableName() string {
	return "me_logs"
}

// NewEngineLog 构造一条引擎日志，消息超过 1024 个字符时截断
func NewEngineLog(hostname string, pid int, msg string) *EngineLog {
	if runes := []rune(msg); len(runes) > maxLogMsgLen {
		msg = string(runes[:maxLogMsgLen])
	}
	return &EngineLog{
		Hostname: hostname,
		PID:      pid,
		LogMsg:   msg,
	}
}
