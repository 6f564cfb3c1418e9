// Package llm is the Conversational API: a chat client that maps the intake
// history to the next assistant reply.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is either an opaque reference (placeholder or URL) or inline bytes.
// Clients send inline bytes to the model; references travel only in the
// incident payload.
type Image struct {
	Ref      string `json:"ref"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"-"`
}

func (i *Image) Inline() bool { return i != nil && len(i.Data) > 0 }

// DataURL renders inline bytes as a data: URL; empty when not inline.
func (i *Image) DataURL() string {
	if !i.Inline() {
		return ""
	}
	mime := i.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Image   *Image `json:"image,omitempty"`
}

func UserTurn(text string, img *Image) Turn {
	return Turn{Role: RoleUser, Content: text, Image: img}
}

func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Content: text}
}

type ChatClient interface {
	Name() string
	Reply(ctx context.Context, history []Turn) (string, error)
	Close() error
}

var ErrEmptyReply = errors.New("llm: empty reply from model")

func joinText(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, ""))
}
