package chat

import (
	"sort"
	"sync"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/lk2023060901/danmu-chat-go/pkg/metrics"
	"github.com/lk2023060901/danmu-chat-go/pkg/util/merr"
)

// MinUsernameLength 为用户名的最小字符数。
const MinUsernameLength = 6

// Registry 维护用户名到投递端点的映射，是在线用户的唯一事实来源。
//
// 所有方法并发安全。检查与插入在同一把写锁内完成，
// 两个并发的同名登录恰好一个成功。
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

// NewRegistry 创建一个空的 Registry。
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]Endpoint)}
}

// Register 以 username 登记 ep。
//
// 用户名少于 MinUsernameLength 个字符时返回 merr.ErrUsernameInvalid，
// 已被占用时返回 merr.ErrUsernameTaken。
func (r *Registry) Register(username string, ep Endpoint) error {
	if utf8.RuneCountInString(username) < MinUsernameLength {
		return merr.WrapErrUsernameInvalid(username, MinUsernameLength)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[username]; ok {
		return merr.WrapErrUsernameTaken(username)
	}
	r.endpoints[username] = ep
	metrics.RegisteredUsers.Inc()
	return nil
}

// Unregister 注销 username，不存在时什么也不做。返回是否确实删除了记录。
func (r *Registry) Unregister(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.endpoints[username]; !ok {
		return false
	}
	delete(r.endpoints, username)
	metrics.RegisteredUsers.Dec()
	return true
}

// IsRegistered 判断 username 是否在线。
func (r *Registry) IsRegistered(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.endpoints[username]
	return ok
}

// Lookup 返回 username 对应的投递端点，不在线时返回 merr.ErrRecipientNotFound。
func (r *Registry) Lookup(username string) (Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ep, ok := r.endpoints[username]
	if !ok {
		return nil, merr.WrapErrRecipientNotFound(username)
	}
	return ep, nil
}

// Roster 返回当前在线用户名的快照，按字典序排列。
func (r *Registry) Roster() []string {
	r.mu.RLock()
	names := lo.Keys(r.endpoints)
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Count 返回在线用户数。
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}
