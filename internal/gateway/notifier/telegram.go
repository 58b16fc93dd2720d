package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"sable/internal/logger"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram 推送告警到指定会话。零值不可用，必须经 NewTelegram 创建。
type Telegram struct {
	token      string
	chatID     string
	httpClient *http.Client
}

func NewTelegram(token, chatID string) (*Telegram, error) {
	token = strings.TrimSpace(token)
	chatID = strings.TrimSpace(chatID)
	if token == "" || chatID == "" {
		return nil, fmt.Errorf("telegram token 和 chat_id 不能为空")
	}
	return &Telegram{
		token:      token,
		chatID:     chatID,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// SendText 以 Markdown 形式发送一条消息。
func (t *Telegram) SendText(ctx context.Context, text string) error {
	if t == nil {
		return fmt.Errorf("telegram notifier 未初始化")
	}
	payload := map[string]any{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPIBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req)
}

// SendPhoto 发送一张图片（例如行情快照），caption 可为空。
func (t *Telegram) SendPhoto(ctx context.Context, name string, photo []byte, caption string) error {
	if t == nil {
		return fmt.Errorf("telegram notifier 未初始化")
	}
	if len(photo) == 0 {
		return fmt.Errorf("图片内容为空")
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", t.chatID); err != nil {
		return err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("photo", name)
	if err != nil {
		return err
	}
	if _, err := part.Write(photo); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendPhoto", telegramAPIBase, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return t.do(req)
}

func (t *Telegram) do(req *http.Request) error {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		logger.Warnf("[telegram] 推送失败 %s: %s", resp.Status, string(body))
		return fmt.Errorf("telegram 返回 %s", resp.Status)
	}
	return nil
}
