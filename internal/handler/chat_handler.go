// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"dietchat-go/internal/model"
	"dietchat-go/internal/service"
	"dietchat-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源
	},
}

// clientFrame 是客户端发来的控制帧。
//   - chat:   content 必填，sessionId 可选（缺省为当前活跃会话）
//   - stop:   中断指定会话（缺省为当前活跃会话）的在途回复
//   - switch: 切换活跃会话，sessionId 为空表示新建会话
type clientFrame struct {
	Type      string `json:"type"`
	Content   string `json:"content"`
	SessionID string `json:"sessionId"`
}

// ChatHandler 负责处理 WebSocket 聊天连接。
// 每条连接持有自己的 SessionManager，会话状态不跨连接共享。
type ChatHandler struct {
	chatService service.ChatService
	syncService service.SyncService
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, syncService service.SyncService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		syncService: syncService,
	}
}

// wsSink 把一轮对话的增量事件序列化为服务端帧写回连接。
// gorilla/websocket 不允许并发写，所有写操作经 mu 串行化。
type wsSink struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	manager *service.SessionManager
}

func (s *wsSink) send(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Errorf("服务端帧序列化失败: %v", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Warnf("向 WebSocket 写入失败: %v", err)
	}
}

func (s *wsSink) OnChunk(sessionID, messageID, chunk string) {
	s.send(gin.H{
		"type":      "chunk",
		"sessionId": sessionID,
		"messageId": messageID,
		"content":   chunk,
	})
}

func (s *wsSink) OnStatusChange(sessionID string, msg model.ChatMessage) {
	s.send(gin.H{
		"type":      "status",
		"sessionId": sessionID,
		"message":   msg,
	})
}

func (s *wsSink) OnSessionPromoted(oldID, newID string) {
	// 会话提升后本连接的索引跟着改键，后续帧按新 id 定位会话
	s.manager.Rekey(oldID)
	s.send(gin.H{
		"type":      "session",
		"oldId":     oldID,
		"sessionId": newID,
	})
}

func (s *wsSink) sendError(sessionID, message string) {
	s.send(gin.H{
		"type":      "error",
		"sessionId": sessionID,
		"message":   message,
		"timestamp": time.Now().UnixMilli(),
	})
}

// Handle 处理一个传入的 WebSocket 连接。
// 认证是可选的：携带有效 token 的用户会话会被持久化，访客会话只活在连接内。
func (h *ChatHandler) Handle(c *gin.Context) {
	var userID uint
	username := "guest"
	if userValue, ok := c.Get("user"); ok {
		if user, ok := userValue.(*model.User); ok {
			userID = user.ID
			username = user.Username
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %s", username)

	manager := service.NewSessionManager()
	sink := &wsSink{conn: conn, manager: manager}

	// 读循环保持响应，每轮对话在独立协程中执行，
	// stop 与 switch 指令才能在流式期间被及时处理。
	var turns sync.WaitGroup
	defer turns.Wait()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("从 WebSocket 读取消息失败: %v", err)
			break
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			// 裸文本按 chat 处理，兼容不发控制帧的客户端
			frame = clientFrame{Type: "chat", Content: string(message)}
		}

		switch frame.Type {
		case "chat":
			st, ok := h.resolveSession(manager, frame.SessionID, userID)
			if !ok {
				sink.sendError(frame.SessionID, "会话不存在")
				continue
			}
			turns.Add(1)
			go func(st *service.SessionState, content string) {
				defer turns.Done()
				if err := h.chatService.HandleTurn(c.Request.Context(), st, userID, content, sink); err != nil {
					log.Errorf("处理对话轮次失败 session=%s: %v", st.ID(), err)
					sink.sendError(st.ID(), "AI服务暂时不可用，请稍后重试")
				}
				sink.send(gin.H{
					"type":      "completion",
					"sessionId": st.ID(),
					"timestamp": time.Now().UnixMilli(),
				})
			}(st, frame.Content)

		case "stop":
			st, ok := h.resolveSession(manager, frame.SessionID, userID)
			if !ok {
				sink.sendError(frame.SessionID, "会话不存在")
				continue
			}
			h.chatService.CancelActive(st)
			sink.send(gin.H{
				"type":      "stop",
				"sessionId": st.ID(),
				"message":   "响应已停止",
				"timestamp": time.Now().UnixMilli(),
			})

		case "switch":
			st, ok := h.switchSession(manager, frame.SessionID, userID)
			if !ok {
				sink.sendError(frame.SessionID, "会话不存在")
				continue
			}
			sink.send(gin.H{
				"type":      "session",
				"sessionId": st.ID(),
				"session":   st.Snapshot(),
			})

		default:
			sink.sendError(frame.SessionID, "未知的指令类型")
		}
	}
}

// resolveSession 定位一轮操作的目标会话。
// sessionId 为空取当前活跃会话（没有则新建）；给定 id 先查本连接，
// 再尝试从记录存储恢复认证用户的历史会话。
func (h *ChatHandler) resolveSession(manager *service.SessionManager, sessionID string, userID uint) (*service.SessionState, bool) {
	if sessionID == "" {
		return manager.Active(), true
	}
	if st, ok := manager.Get(sessionID); ok {
		return st, true
	}
	return h.restoreSession(manager, sessionID, userID)
}

// switchSession 切换活跃会话，必要时从记录存储恢复。
func (h *ChatHandler) switchSession(manager *service.SessionManager, sessionID string, userID uint) (*service.SessionState, bool) {
	if sessionID == "" {
		return manager.Switch(""), true
	}
	if _, ok := manager.Get(sessionID); ok {
		return manager.Switch(sessionID), true
	}
	st, ok := h.restoreSession(manager, sessionID, userID)
	if !ok {
		return nil, false
	}
	return manager.Switch(st.ID()), true
}

func (h *ChatHandler) restoreSession(manager *service.SessionManager, sessionID string, userID uint) (*service.SessionState, bool) {
	if userID == 0 {
		return nil, false
	}
	sessions, err := h.syncService.LoadSessions(userID)
	if err != nil {
		log.Errorf("恢复历史会话失败 user=%d: %v", userID, err)
		return nil, false
	}
	for _, sess := range sessions {
		if sess.ID == sessionID {
			st := service.RestoreSessionState(sess)
			manager.Adopt(st)
			return st, true
		}
	}
	return nil, false
}
