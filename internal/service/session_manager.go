// Package service 包含了应用的业务逻辑层。
package service

import "sync"

// SessionManager 管理一个调用方（一条聊天连接）名下的全部内存会话，
// 以及"当前活跃会话"的切换。跨调用方之间不共享任何状态。
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*SessionState
	activeID string
}

// NewSessionManager 创建一个空的 SessionManager。
func NewSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*SessionState)}
}

// Active 返回当前活跃会话；没有时创建一个新的 ephemeral 会话。
func (m *SessionManager) Active() *SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.sessions[m.activeID]; ok {
		return st
	}
	st := NewSessionState()
	m.sessions[st.ID()] = st
	m.activeID = st.ID()
	return st
}

// Get 按 id 查找会话。
func (m *SessionManager) Get(id string) (*SessionState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[id]
	return st, ok
}

// Adopt 登记一个（通常是从记录存储恢复的）会话并将其设为活跃。
// 切换前的活跃会话若是零消息的 ephemeral 会话则直接丢弃。
func (m *SessionManager) Adopt(st *SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discardEmptyActiveLocked()
	m.sessions[st.ID()] = st
	m.activeID = st.ID()
}

// Switch 切换到指定会话；id 为空表示开启一个新的 ephemeral 会话。
// 切换前的活跃会话若是零消息的 ephemeral 会话则直接丢弃（不会被持久化）。
func (m *SessionManager) Switch(id string) *SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if st, ok := m.sessions[id]; ok {
			if id != m.activeID {
				m.discardEmptyActiveLocked()
			}
			m.activeID = id
			return st
		}
	}

	m.discardEmptyActiveLocked()
	st := NewSessionState()
	m.sessions[st.ID()] = st
	m.activeID = st.ID()
	return st
}

// Rekey 在会话被提升、id 被改写后更新索引。
func (m *SessionManager) Rekey(oldID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.sessions[oldID]
	if !ok {
		return
	}
	newID := st.ID()
	if newID == oldID {
		return
	}
	delete(m.sessions, oldID)
	m.sessions[newID] = st
	if m.activeID == oldID {
		m.activeID = newID
	}
}

func (m *SessionManager) discardEmptyActiveLocked() {
	st, ok := m.sessions[m.activeID]
	if !ok {
		return
	}
	if st.IsEphemeral() && st.MessageCount() == 0 {
		delete(m.sessions, m.activeID)
	}
	m.activeID = ""
}
