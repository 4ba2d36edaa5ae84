package gateway

import (
	"sync"

	"github.com/ceyewan/genesis/clog"
)

// Manager 管理所有 WebSocket 连接
// 按连接 ID 索引，同一用户的多个连接各自独立
type Manager struct {
	connections sync.Map // conn id -> *Conn
	logger      clog.Logger
}

// NewManager 创建连接管理器
func NewManager(logger clog.Logger) *Manager {
	return &Manager{
		logger: logger.WithNamespace("connmgr"),
	}
}

// AddConnection 添加连接
func (m *Manager) AddConnection(conn *Conn) {
	m.connections.Store(conn.ID(), conn)
	m.logger.Info("user connected",
		clog.Int64("user_id", conn.UserID()),
		clog.String("conn_id", conn.ID()),
		clog.String("remote_addr", conn.RemoteAddr()))
}

// RemoveConnection 移除连接
func (m *Manager) RemoveConnection(connID string) {
	if value, ok := m.connections.LoadAndDelete(connID); ok {
		conn := value.(*Conn)
		m.logger.Info("user disconnected",
			clog.Int64("user_id", conn.UserID()),
			clog.String("conn_id", connID))
	}
}

// UserConnectionCount 某用户当前的连接数
func (m *Manager) UserConnectionCount(userID int64) int {
	count := 0
	m.connections.Range(func(key, value any) bool {
		if value.(*Conn).UserID() == userID {
			count++
		}
		return true
	})
	return count
}

// OnlineCount 获取在线连接数
func (m *Manager) OnlineCount() int {
	count := 0
	m.connections.Range(func(key, value any) bool {
		count++
		return true
	})
	return count
}

// Close 关闭所有连接
func (m *Manager) Close() error {
	m.connections.Range(func(key, value any) bool {
		value.(*Conn).Close()
		return true
	})
	return nil
}
