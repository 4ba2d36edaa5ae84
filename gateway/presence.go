package gateway

import (
	"sort"
	"sync"

	"github.com/ceyewan/genesis/clog"
)

// Presence 频道在线状态注册表
// 纯内存结构，每个频道一把独立的锁，任何操作都不持有全局锁，
// 热门频道的高频进出不会阻塞其他频道。
type Presence struct {
	channels sync.Map // channelID int64 -> *channelSet
	logger   clog.Logger
}

// channelSet 单个频道的在线用户集合
// dead 标记该集合已从注册表摘除，持有旧引用的并发 Join 需要重试
type channelSet struct {
	mu    sync.RWMutex
	users map[int64]struct{}
	dead  bool
}

// NewPresence 创建在线状态注册表
func NewPresence(logger clog.Logger) *Presence {
	return &Presence{
		logger: logger.WithNamespace("presence"),
	}
}

// Join 将用户加入频道的在线集合，重复加入幂等
func (p *Presence) Join(channelID, userID int64) {
	for {
		value, _ := p.channels.LoadOrStore(channelID, &channelSet{users: make(map[int64]struct{})})
		set := value.(*channelSet)

		set.mu.Lock()
		if set.dead {
			set.mu.Unlock()
			continue // 集合已被并发摘除，重试拿新集合
		}
		set.users[userID] = struct{}{}
		set.mu.Unlock()

		p.logger.Debug("用户加入频道",
			clog.Int64("channel_id", channelID),
			clog.Int64("user_id", userID))
		return
	}
}

// Leave 将用户移出频道的在线集合，用户不在集合中时为空操作
func (p *Presence) Leave(channelID, userID int64) {
	value, ok := p.channels.Load(channelID)
	if !ok {
		return
	}
	set := value.(*channelSet)

	set.mu.Lock()
	delete(set.users, userID)
	if len(set.users) == 0 && !set.dead {
		set.dead = true
		p.channels.Delete(channelID)
	}
	set.mu.Unlock()

	p.logger.Debug("用户离开频道",
		clog.Int64("channel_id", channelID),
		clog.Int64("user_id", userID))
}

// Disconnect 将用户从所有频道的在线集合中移除，返回受影响的频道 ID
// 连接断开时由网关调用一次，调用方用返回值对相关频道做在线状态广播
func (p *Presence) Disconnect(userID int64) []int64 {
	var affected []int64
	p.channels.Range(func(key, value any) bool {
		channelID := key.(int64)
		set := value.(*channelSet)

		set.mu.Lock()
		if _, ok := set.users[userID]; ok {
			delete(set.users, userID)
			affected = append(affected, channelID)
			if len(set.users) == 0 && !set.dead {
				set.dead = true
				p.channels.Delete(channelID)
			}
		}
		set.mu.Unlock()
		return true
	})

	if len(affected) > 0 {
		p.logger.Debug("用户断开，清理在线状态",
			clog.Int64("user_id", userID),
			clog.Int("channels", len(affected)))
	}
	return affected
}

// Snapshot 返回频道在线集合的一致性快照
// 返回值是副本，调用方可安全迭代；不存在的频道返回空快照
func (p *Presence) Snapshot(channelID int64) ([]int64, int) {
	value, ok := p.channels.Load(channelID)
	if !ok {
		return []int64{}, 0
	}
	set := value.(*channelSet)

	set.mu.RLock()
	users := make([]int64, 0, len(set.users))
	for userID := range set.users {
		users = append(users, userID)
	}
	set.mu.RUnlock()

	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	return users, len(users)
}
