// Package handler serves the chat gateway: intake sessions over JSON and
// websocket, and the public alerts feed.
package handler

import (
	"strings"

	"cityalert/internal/attachment"
	"cityalert/internal/failure"
	"cityalert/internal/incident"
	"cityalert/internal/intake"
	"cityalert/internal/llm"
)

type turnResponse struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// replyResponse is the wire form of one engine call. A conversational
// failure is still a 200: the apology is in Turns and the kind in Error.
type replyResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	Turns     []turnResponse     `json:"turns"`
	Phase     intake.Phase       `json:"phase"`
	Draft     intake.Draft       `json:"draft"`
	Outcome   intake.Outcome     `json:"outcome"`
	Incident  *incident.Incident `json:"incident,omitempty"`
	Choices   []intake.Choice    `json:"choices,omitempty"`
	Error     *errorResponse     `json:"error,omitempty"`
}

func toReplyResponse(sessionID string, r intake.Reply) replyResponse {
	resp := replyResponse{
		SessionID: sessionID,
		Turns:     make([]turnResponse, 0, len(r.Turns)),
		Phase:     r.Phase,
		Draft:     r.Draft,
		Outcome:   r.Outcome,
		Incident:  r.Incident,
		Choices:   r.Choices,
	}
	for _, t := range r.Turns {
		resp.Turns = append(resp.Turns, turnResponse{Role: string(t.Role), Content: t.Content})
	}
	if r.Err != nil {
		resp.Error = &errorResponse{Kind: failure.KindOf(r.Err).String(), Message: r.Err.Error()}
	}
	return resp
}

// parseImage reads the optional image field of a request. Empty means no
// image.
func parseImage(raw string) (*llm.Image, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	return attachment.Parse(raw)
}
