// Package intake runs one incident-reporting conversation: it forwards user
// turns to the chat model, reads structured fields out of the replies and
// submits the finished draft to the Incident API.
package intake

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"cityalert/internal/attachment"
	"cityalert/internal/failure"
	"cityalert/internal/incident"
	"cityalert/internal/incidentapi"
	"cityalert/internal/llm"
	"cityalert/internal/logger"
)

// Submitter is the slice of the Incident API the engine needs.
type Submitter interface {
	CreateIncident(ctx context.Context, req incidentapi.CreateRequest) (*incident.Incident, error)
}

// ImageStore turns an attached image into the reference sent as image_url.
type ImageStore interface {
	Save(ctx context.Context, sessionID string, img *llm.Image) (string, error)
}

type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeSubmitted
	OutcomeDuplicate
	OutcomeValidationFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeValidationFailed:
		return "validation_failed"
	default:
		return "none"
	}
}

func (o Outcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

type Choice string

const (
	ChoiceViewAlerts Choice = "view_alerts"
	ChoiceRestart    Choice = "restart"
)

// Reply is what one engine call produced. Incident is the created incident,
// or the existing one on a duplicate.
type Reply struct {
	Turns    []llm.Turn
	Phase    Phase
	Draft    Draft
	Outcome  Outcome
	Incident *incident.Incident
	Choices  []Choice
	Err      error
}

func (r *Reply) say(text string) {
	r.Turns = append(r.Turns, llm.AssistantTurn(text))
}

type Option func(*Engine)

func WithImageStore(s ImageStore) Option {
	return func(e *Engine) {
		if s != nil {
			e.images = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithSessionID(id string) Option {
	return func(e *Engine) { e.sessionID = id }
}

// WithImageHint sets the local turn shown after the assistant asks for an
// image. Empty disables it.
func WithImageHint(hint string) Option {
	return func(e *Engine) { e.imageHint = hint }
}

// Engine holds one session. It is not safe for concurrent use; hosts
// serialize calls per session.
type Engine struct {
	chat      llm.ChatClient
	submitter Submitter
	images    ImageStore
	now       func() time.Time
	sessionID string
	imageHint string

	phase      Phase
	draft      Draft
	history    []llm.Turn
	transcript []llm.Turn
	pending    *llm.Image
}

func New(chat llm.ChatClient, submitter Submitter, opts ...Option) *Engine {
	e := &Engine{
		chat:      chat,
		submitter: submitter,
		now:       time.Now,
		imageHint: DefaultImageHint,
		phase:     AwaitingDescription,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.images == nil {
		e.images = attachment.PlaceholderStore{Now: e.now}
	}
	return e
}

func (e *Engine) Phase() Phase { return e.phase }

func (e *Engine) Draft() Draft { return e.draft.Clone() }

func (e *Engine) SessionID() string { return e.sessionID }

// History is what the model has seen so far.
func (e *Engine) History() []llm.Turn { return append([]llm.Turn(nil), e.history...) }

// Transcript is everything shown to the user, local turns included.
func (e *Engine) Transcript() []llm.Turn { return append([]llm.Turn(nil), e.transcript...) }

// Start begins a fresh session with the greeting. Calling it on an active
// session is the same as Reset.
func (e *Engine) Start(ctx context.Context) Reply {
	ctx = e.logContext(ctx)
	var r Reply
	e.restart(ctx, &r)
	return e.finish(&r)
}

func (e *Engine) Reset(ctx context.Context) Reply {
	return e.Start(ctx)
}

// SubmitUserTurn handles one user message. Blank text without an image is
// ignored.
func (e *Engine) SubmitUserTurn(ctx context.Context, text string, img *llm.Image) Reply {
	ctx = e.logContext(ctx)
	text = strings.TrimSpace(text)
	var r Reply

	if img != nil {
		if !e.bindImage(ctx, img, &r) {
			return e.finish(&r)
		}
		if text == "" {
			text = msgImageSent
		}
	}
	if text == "" {
		return e.finish(&r)
	}

	if e.phase.AwaitsConfirmation() {
		switch {
		case IsAffirmative(text):
			e.show(llm.UserTurn(text, nil))
			e.affirm(ctx, &r)
			return e.finish(&r)
		case IsNegative(text):
			e.show(llm.UserTurn(text, nil))
			e.fire(ctx, TriggerDenied)
			e.local(&r, msgClarify)
			return e.finish(&r)
		}
	}

	e.forward(ctx, text, &r)
	return e.finish(&r)
}

// AttachImage stores the image, binds its reference to the draft and sends
// it along with the next forwarded user turn. The phase does not move.
func (e *Engine) AttachImage(ctx context.Context, img *llm.Image) Reply {
	ctx = e.logContext(ctx)
	var r Reply
	e.bindImage(ctx, img, &r)
	return e.finish(&r)
}

// DetachImage drops a pending image and records the image as declined.
func (e *Engine) DetachImage() {
	e.pending = nil
	e.draft.Image = Declined()
}

func (e *Engine) bindImage(ctx context.Context, img *llm.Image, r *Reply) bool {
	if img == nil {
		r.Err = attachment.ErrEmpty
		e.local(r, msgImageUploadError)
		return false
	}
	ref, err := e.images.Save(ctx, e.sessionID, img)
	if err != nil {
		slog.WarnContext(ctx, "image attach failed", "error", err)
		r.Err = err
		e.local(r, msgImageUploadError)
		return false
	}
	bound := *img
	bound.Ref = ref
	e.pending = &bound
	e.draft.Image = Attached(ref)
	slog.DebugContext(ctx, "image attached", "ref", logger.Truncate(ref, 80), "inline", bound.Inline())
	return true
}

func (e *Engine) affirm(ctx context.Context, r *Reply) {
	switch e.phase {
	case AwaitingSummaryConfirmation:
		e.fire(ctx, TriggerAffirmed)
		e.local(r, msgAskSubmit)
	case AwaitingSubmitConfirmation:
		e.fire(ctx, TriggerAffirmed)
		e.local(r, msgSubmitting)
		e.submit(ctx, r)
	}
}

// forward sends the history plus the new turn to the chat model. On
// failure the turn is taken back out of the history.
func (e *Engine) forward(ctx context.Context, text string, r *Reply) {
	turn := llm.UserTurn(text, e.pending)
	e.pending = nil
	e.history = append(e.history, turn)
	e.transcript = append(e.transcript, turn)

	reply, err := e.chat.Reply(ctx, e.History())
	if err != nil {
		e.history = e.history[:len(e.history)-1]
		e.pending = turn.Image
		r.Err = err
		if errors.Is(ctx.Err(), context.Canceled) {
			slog.DebugContext(ctx, "chat reply abandoned by caller", "error", err)
			return
		}
		msg := msgChatUnavailable
		if failure.Is(err, failure.KindNetwork) {
			msg = msgChatNetwork
		}
		slog.WarnContext(ctx, "chat reply failed", "kind", failure.KindOf(err).String(), "error", err)
		e.local(r, msg)
		return
	}

	e.history = append(e.history, llm.AssistantTurn(reply))
	a := Analyze(reply)
	if a.Visible != "" {
		e.local(r, a.Visible)
	}
	e.apply(ctx, a, r)
}

// apply folds an analysis into the draft and phase.
func (e *Engine) apply(ctx context.Context, a Analysis, r *Reply) {
	if a.HasMarker {
		e.draft.Departments = a.Departments.Clone()
		slog.DebugContext(ctx, "classification marker", "departments", a.Departments.String())
	}

	if a.Summary != nil && e.phase != Submitting {
		e.draft.Description = a.Summary.Description
		e.draft.Location = a.Summary.Location
		if !a.HasMarker {
			if d, ok := FirstDepartment(a.Summary.Classification); ok {
				e.draft.Departments = incident.DepartmentSet{d}
			}
		}
		if e.draft.Image.State == ImageUnset && IsNegative(e.lastUserText()) {
			e.draft.Image = Declined()
		}
		e.fire(ctx, TriggerSummarized)
		return
	}

	switch {
	case e.phase == AwaitingDescription && a.MentionsLocation:
		if e.draft.Description == "" {
			e.draft.Description = e.lastUserText()
		}
		e.fire(ctx, TriggerAskedLocation)
	case e.phase == AwaitingLocation && a.MentionsImage:
		if e.draft.Location == "" {
			e.draft.Location = e.lastUserText()
		}
		e.fire(ctx, TriggerAskedImage)
		if e.imageHint != "" && e.draft.Image.State != ImageAttached {
			e.local(r, e.imageHint)
		}
	case e.phase == AwaitingSummaryConfirmation && a.AsksSubmit:
		e.fire(ctx, TriggerAskedSubmit)
	}
}

// submit is the only call into the Incident API.
func (e *Engine) submit(ctx context.Context, r *Reply) {
	const op = "intake.submit"
	if missing := e.draft.Missing(); len(missing) > 0 {
		r.Err = failure.Validation(op, "missing "+strings.Join(missing, ", "))
		r.Outcome = OutcomeValidationFailed
		slog.WarnContext(ctx, "submission refused", "missing", missing)
		e.local(r, msgValidation(missing))
		e.restart(ctx, r)
		return
	}

	created, err := e.submitter.CreateIncident(ctx, e.draft.Request())
	var dup *incidentapi.DuplicateError
	switch {
	case err == nil:
		r.Outcome = OutcomeSubmitted
		r.Incident = created
		slog.InfoContext(logger.WithLogFields(ctx, logger.LogFields{IncidentID: logger.Ptr(created.ID)}),
			"incident submitted", "departments", e.draft.Departments.String())
		e.local(r, msgSubmitted(created.ID))
		e.restart(ctx, r)
	case errors.As(err, &dup):
		r.Outcome = OutcomeDuplicate
		r.Incident = dup.Existing
		r.Choices = []Choice{ChoiceViewAlerts, ChoiceRestart}
		r.Err = err
		slog.InfoContext(ctx, "duplicate incident", "message", dup.Message)
		e.clear(ctx)
		e.local(r, msgDuplicate(dup.Existing))
	default:
		r.Err = err
		slog.ErrorContext(ctx, "submission failed", "kind", failure.KindOf(err).String(), "error", err)
		e.fire(ctx, TriggerRetry)
		var ferr *failure.Error
		switch {
		case failure.Is(err, failure.KindNetwork):
			e.local(r, msgSubmitNetwork)
		case errors.As(err, &ferr):
			e.local(r, msgSubmitRemote(ferr.Message))
		default:
			e.local(r, msgSubmitRemote(""))
		}
	}
}

// restart clears the session and greets.
func (e *Engine) restart(ctx context.Context, r *Reply) {
	e.clear(ctx)
	e.local(r, msgGreeting)
}

func (e *Engine) clear(ctx context.Context) {
	e.fire(ctx, TriggerReset)
	e.draft = Draft{}
	e.history = nil
	e.transcript = nil
	e.pending = nil
}

func (e *Engine) fire(ctx context.Context, t Trigger) {
	to, err := Next(e.phase, t)
	if err != nil {
		slog.DebugContext(ctx, "transition rejected", "error", err)
		return
	}
	if to != e.phase {
		slog.DebugContext(ctx, "phase changed", "from", e.phase.String(), "to", to.String(), "trigger", t.String())
	}
	e.phase = to
}

// local appends an assistant turn that is shown but never sent to the model.
func (e *Engine) local(r *Reply, text string) {
	r.say(text)
	e.transcript = append(e.transcript, llm.AssistantTurn(text))
}

func (e *Engine) show(t llm.Turn) {
	e.transcript = append(e.transcript, t)
}

// lastUserText is the user turn that prompted the latest reply.
func (e *Engine) lastUserText() string {
	for i := len(e.history) - 1; i >= 0; i-- {
		if e.history[i].Role == llm.RoleUser {
			return strings.TrimSpace(e.history[i].Content)
		}
	}
	return ""
}

func (e *Engine) finish(r *Reply) Reply {
	r.Phase = e.phase
	r.Draft = e.Draft()
	return *r
}

func (e *Engine) logContext(ctx context.Context) context.Context {
	return logger.WithLogFields(ctx, logger.LogFields{
		SessionID: logger.Ptr(e.sessionID),
		Phase:     logger.Ptr(e.phase.String()),
		Component: "cityalert.intake.engine",
	})
}
