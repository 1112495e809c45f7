package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/yoockh/mockinterview/internal/jobs"
	"github.com/yoockh/mockinterview/internal/services"
)

// WSHandler streams interview status events (prompt generation, session,
// feedback) published on the interview's Redis channel.
type WSHandler struct {
	interviews services.InterviewService
	redis      *redis.Client
	upgrader   websocket.Upgrader
}

func NewWSHandler(interviews services.InterviewService, rdb *redis.Client, allowedOrigins []string) *WSHandler {
	allow := map[string]bool{}
	for _, o := range allowedOrigins {
		allow[o] = true
	}
	return &WSHandler{
		interviews: interviews,
		redis:      rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allow) == 0 || origin == "" || allow[origin]
			},
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) write(mt int, b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(mt, b)
}

func (h *WSHandler) InterviewStatus(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	interviewID := c.Param("id")
	iv, err := h.interviews.Get(c.Request.Context(), userID, interviewID)
	if err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.redis.Subscribe(ctx, jobs.StatusChannel(interviewID))
	defer pubsub.Close()

	// current state first so late subscribers don't miss a settled status
	for _, ev := range []jobs.StatusEvent{
		{Type: "prompt_status", InterviewID: iv.ID, Status: string(iv.PromptStatus)},
		{Type: "feedback_status", InterviewID: iv.ID, Status: string(iv.FeedbackProcessingStatus)},
	} {
		b, _ := json.Marshal(ev)
		if err := wc.write(websocket.TextMessage, b); err != nil {
			return
		}
	}

	// reader: only keeps the connection alive and notices close
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		defer cancel()
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	msgs := pubsub.Channel()
	for {
		select {
		case <-readDone:
			return
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := wc.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case m, ok := <-msgs:
			if !ok {
				return
			}
			// forward as-is (publishers send JSON)
			if err := wc.write(websocket.TextMessage, []byte(m.Payload)); err != nil {
				return
			}
		}
	}
}
