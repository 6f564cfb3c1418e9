package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cityalert/internal/failure"
)

// ProxyClient calls the backend's Gemini relay at {base}/chat/gemini. The
// backend holds the model key and prepends the system instructions.
type ProxyClient struct {
	http    *http.Client
	baseURL string
}

func NewProxyClient(baseURL string, timeout time.Duration) *ProxyClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ProxyClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (p *ProxyClient) Name() string { return "Proxy:" + p.baseURL }
func (p *ProxyClient) Close() error { return nil }

type proxyReq struct {
	ChatHistory []proxyContent `json:"chatHistory"`
}

type proxyContent struct {
	Role  string      `json:"role"`
	Parts []proxyPart `json:"parts"`
}

type proxyPart struct {
	Text       string       `json:"text,omitempty"`
	InlineData *proxyInline `json:"inlineData,omitempty"`
}

type proxyInline struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type proxyResp struct {
	Response string `json:"response"`
	Error    string `json:"error"`
}

func (p *ProxyClient) Reply(ctx context.Context, history []Turn) (string, error) {
	const op = "llm.proxy"
	b, err := json.Marshal(proxyReq{ChatHistory: toProxyContents(history)})
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/gemini", bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", failure.Network(op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", failure.Network(op, err)
	}

	var out proxyResp
	if err := json.Unmarshal(body, &out); err != nil {
		return "", failure.Protocol(op, resp.StatusCode, fmt.Errorf("decode reply: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", failure.Remote(op, resp.StatusCode, msg)
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", failure.Protocol(op, resp.StatusCode, ErrEmptyReply)
	}
	return out.Response, nil
}

func toProxyContents(history []Turn) []proxyContent {
	out := make([]proxyContent, 0, len(history))
	for _, t := range history {
		role := "user"
		if t.Role == RoleAssistant {
			role = "model"
		}
		parts := []proxyPart{{Text: t.Content}}
		if t.Image.Inline() {
			parts = append(parts, proxyPart{InlineData: &proxyInline{
				MIMEType: mimeOrDefault(t.Image.MIMEType),
				Data:     base64.StdEncoding.EncodeToString(t.Image.Data),
			}})
		}
		out = append(out, proxyContent{Role: role, Parts: parts})
	}
	return out
}
