package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"sable/internal/logger"
	"sable/internal/market"

	"github.com/gorilla/websocket"
)

// wsFrame 覆盖 combined streams 可能下发的三种帧：
// 数据帧（Stream 非空）、订阅确认（只有 ID）、错误（Code 非 0）。
type wsFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
	ID     int64           `json:"id"`
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
}

// wsClient 维护一条 combined streams 连接：按 stream 名分发数据帧、
// 断线自动重连并重放全部订阅。
type wsClient struct {
	baseURL   string
	batchSize int

	mu       sync.RWMutex
	conn     *websocket.Conn
	sinks    map[string]chan []byte
	active   map[string]bool
	inflight map[int64][]string
	closed   bool
	stats    market.SourceStats

	done chan struct{}

	onConnect    func()
	onDisconnect func(error)
}

func newWSClient(baseURL string, batchSize int) *wsClient {
	if batchSize <= 0 {
		batchSize = 150
	}
	return &wsClient{
		baseURL:   strings.TrimSpace(baseURL),
		batchSize: batchSize,
		sinks:     make(map[string]chan []byte),
		active:    make(map[string]bool),
		inflight:  make(map[int64][]string),
		done:      make(chan struct{}),
	}
}

func (c *wsClient) SetCallbacks(onConnect func(), onDisconnect func(error)) {
	c.onConnect = onConnect
	c.onDisconnect = onDisconnect
}

func (c *wsClient) Connect() error {
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := d.Dial(c.baseURL, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	go c.readLoop()
	if c.onConnect != nil {
		c.onConnect()
	}
	return nil
}

func (c *wsClient) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	for _, ch := range c.sinks {
		close(ch)
	}
	c.sinks = make(map[string]chan []byte)
	c.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	close(c.done)
}

// AddSubscriber 注册某个 stream 的数据通道；满了就丢帧，不阻塞读循环。
func (c *wsClient) AddSubscriber(stream string, buf int) <-chan []byte {
	ch := make(chan []byte, buf)
	c.mu.Lock()
	c.sinks[stream] = ch
	c.mu.Unlock()
	return ch
}

// BatchSubscribe 分批发送 SUBSCRIBE，避免单条消息参数过多被拒。
func (c *wsClient) BatchSubscribe(streams []string) error {
	for len(streams) > 0 {
		n := c.batchSize
		if n > len(streams) {
			n = len(streams)
		}
		if err := c.sendSubscribe(streams[:n]); err != nil {
			return err
		}
		streams = streams[n:]
		time.Sleep(100 * time.Millisecond)
	}
	return nil
}

func (c *wsClient) sendSubscribe(params []string) error {
	if len(params) == 0 {
		return nil
	}
	id := time.Now().UnixNano()
	msg := map[string]any{"method": "SUBSCRIBE", "params": params, "id": id}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(200 * time.Millisecond)
		}
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			return fmt.Errorf("ws not connected")
		}
		if lastErr = conn.WriteJSON(msg); lastErr != nil {
			continue
		}
		c.mu.Lock()
		for _, p := range params {
			c.active[p] = true
		}
		c.inflight[id] = params
		c.mu.Unlock()
		return nil
	}
	return fmt.Errorf("subscribe failed: %w", lastErr)
}

func (c *wsClient) readLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil {
			time.Sleep(time.Second)
			continue
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !c.handleReadError(err) {
				return
			}
			continue
		}
		c.dispatch(message)
	}
}

// handleReadError 记录错误并尝试重连；返回 false 表示客户端已关闭。
func (c *wsClient) handleReadError(err error) bool {
	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
	c.mu.Lock()
	c.stats.Reconnects++
	c.stats.LastError = err.Error()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}
	time.Sleep(2 * time.Second)
	if err := c.Connect(); err != nil {
		logger.Warnf("[binance] WS 重连失败: %v", err)
		return true
	}
	c.replay()
	return true
}

func (c *wsClient) dispatch(b []byte) {
	var f wsFrame
	if err := json.Unmarshal(b, &f); err != nil {
		return
	}
	switch {
	case f.Stream != "":
		c.mu.RLock()
		ch := c.sinks[f.Stream]
		c.mu.RUnlock()
		if ch != nil {
			select {
			case ch <- f.Data:
			default:
			}
		}
	case f.Code != 0:
		c.mu.Lock()
		c.stats.SubscribeErrors++
		c.stats.LastError = f.Msg
		params := c.inflight[f.ID]
		delete(c.inflight, f.ID)
		c.mu.Unlock()
		if len(params) > 0 {
			_ = c.sendSubscribe(params)
		}
	case f.ID != 0:
		c.mu.Lock()
		delete(c.inflight, f.ID)
		c.mu.Unlock()
	}
}

// replay 重连后重放全部已知订阅。
func (c *wsClient) replay() {
	c.mu.RLock()
	streams := make([]string, 0, len(c.active))
	for s := range c.active {
		streams = append(streams, s)
	}
	c.mu.RUnlock()
	if err := c.BatchSubscribe(streams); err != nil {
		logger.Warnf("[binance] 重放订阅失败: %v", err)
	}
}

func (c *wsClient) Stats() market.SourceStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}
