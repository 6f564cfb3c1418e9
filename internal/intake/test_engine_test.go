package intake

import (
	"context"
	"errors"
	"testing"
	"time"

	"cityalert/internal/failure"
	"cityalert/internal/incident"
	"cityalert/internal/incidentapi"
	"cityalert/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const canonicalSummary = "Okay, so I have that there is a fire near 5th St at 5th St and Main. This will be classified under FIRE. Is this information correct and complete?"

const inlineMarkerSummary = "Okay, so I have that there is a fire near 5th St at 5th St and Main. This will be classified under DEPARTMENT_CLASSIFICATION: [FIRE, MEDICAL]. Is this information correct and complete?"

const (
	replyAskLocation = "Thank you for reporting this. What is the location of the incident?"
	replyAskImage    = "If it's safe for you to do so, an image can be very helpful for the response team. Would you like to upload one?"
)

type fakeSubmitter struct {
	calls  []incidentapi.CreateRequest
	errs   []error
	result *incident.Incident
}

func (f *fakeSubmitter) CreateIncident(_ context.Context, req incidentapi.CreateRequest) (*incident.Incident, error) {
	f.calls = append(f.calls, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.result != nil {
		return f.result, nil
	}
	return &incident.Incident{ID: 42, Description: req.Description, Location: req.Location, Status: incident.StatusReported}, nil
}

type failingStore struct{}

func (failingStore) Save(context.Context, string, *llm.Image) (string, error) {
	return "", errors.New("bucket unavailable")
}

func newEngine(t *testing.T, replies ...string) (*Engine, *llm.FakeClient, *fakeSubmitter) {
	t.Helper()
	chat := llm.NewFakeClient(replies...)
	sub := &fakeSubmitter{}
	e := New(chat, sub,
		WithSessionID("test-session"),
		WithClock(func() time.Time { return time.UnixMilli(1000) }),
	)
	e.Start(context.Background())
	return e, chat, sub
}

// toSubmitConfirmation drives a fresh engine to AwaitingSubmitConfirmation.
func toSubmitConfirmation(t *testing.T, e *Engine) {
	t.Helper()
	ctx := context.Background()
	e.SubmitUserTurn(ctx, "There's a fire near 5th St", nil)
	e.SubmitUserTurn(ctx, "5th St and Main", nil)
	e.SubmitUserTurn(ctx, "no", nil)
	require.Equal(t, AwaitingSummaryConfirmation, e.Phase())
	e.SubmitUserTurn(ctx, "yes", nil)
	require.Equal(t, AwaitingSubmitConfirmation, e.Phase())
}

func TestStart_Greets(t *testing.T) {
	e := New(llm.NewFakeClient(), &fakeSubmitter{})
	r := e.Start(context.Background())

	require.Len(t, r.Turns, 1)
	assert.Equal(t, msgGreeting, r.Turns[0].Content)
	assert.Equal(t, llm.RoleAssistant, r.Turns[0].Role)
	assert.Equal(t, AwaitingDescription, r.Phase)
	assert.Empty(t, e.History())
	assert.Len(t, e.Transcript(), 1)
}

func TestReset_Idempotent(t *testing.T) {
	e, _, _ := newEngine(t, replyAskLocation)
	ctx := context.Background()
	e.SubmitUserTurn(ctx, "a burst water main", nil)
	require.Equal(t, AwaitingLocation, e.Phase())

	e.Reset(ctx)
	phase1, draft1, hist1, tr1 := e.Phase(), e.Draft(), e.History(), e.Transcript()
	e.Reset(ctx)

	assert.Equal(t, phase1, e.Phase())
	assert.Equal(t, draft1, e.Draft())
	assert.Equal(t, hist1, e.History())
	assert.Equal(t, tr1, e.Transcript())
	assert.True(t, e.Draft().IsZero())
	assert.Equal(t, AwaitingDescription, e.Phase())
}

func TestHappyPath_SubmitsAndResets(t *testing.T) {
	e, chat, sub := newEngine(t,
		replyAskLocation,
		replyAskImage,
		canonicalSummary+"\nDEPARTMENT_CLASSIFICATION: [FIRE]",
	)
	ctx := context.Background()

	r := e.SubmitUserTurn(ctx, "There's a fire near 5th St", nil)
	assert.Equal(t, AwaitingLocation, r.Phase)
	assert.Equal(t, "There's a fire near 5th St", r.Draft.Description)

	r = e.SubmitUserTurn(ctx, "5th St and Main", nil)
	assert.Equal(t, AwaitingImageDecision, r.Phase)
	assert.Equal(t, "5th St and Main", r.Draft.Location)
	require.Len(t, r.Turns, 2)
	assert.Equal(t, DefaultImageHint, r.Turns[1].Content)

	r = e.SubmitUserTurn(ctx, "no", nil)
	assert.Equal(t, AwaitingSummaryConfirmation, r.Phase)
	assert.Equal(t, "a fire near 5th St", r.Draft.Description)
	assert.Equal(t, incident.DepartmentSet{incident.Fire}, r.Draft.Departments)
	assert.Equal(t, ImageDeclined, r.Draft.Image.State)
	require.Len(t, r.Turns, 1)
	assert.NotContains(t, r.Turns[0].Content, "DEPARTMENT_CLASSIFICATION")

	r = e.SubmitUserTurn(ctx, "yes", nil)
	assert.Equal(t, AwaitingSubmitConfirmation, r.Phase)
	assert.Equal(t, 3, chat.CallCount())

	r = e.SubmitUserTurn(ctx, "Yes!", nil)
	require.NoError(t, r.Err)
	assert.Equal(t, OutcomeSubmitted, r.Outcome)
	require.NotNil(t, r.Incident)
	assert.Equal(t, int64(42), r.Incident.ID)
	assert.Equal(t, msgSubmitting, r.Turns[0].Content)
	assert.Contains(t, r.Turns[1].Content, "ID: 42")
	assert.Equal(t, msgGreeting, r.Turns[2].Content)

	require.Len(t, sub.calls, 1)
	assert.Equal(t, incidentapi.CreateRequest{
		Description:              "a fire near 5th St",
		Location:                 "5th St and Main",
		DepartmentClassification: "FIRE",
	}, sub.calls[0])

	assert.Equal(t, AwaitingDescription, e.Phase())
	assert.True(t, e.Draft().IsZero())
	assert.Empty(t, e.History())
	assert.Equal(t, 3, chat.CallCount())
}

func TestCanonicalSummary_PopulatesDraft(t *testing.T) {
	e, _, _ := newEngine(t, canonicalSummary)
	r := e.SubmitUserTurn(context.Background(), "fire by the station", nil)

	assert.Equal(t, AwaitingSummaryConfirmation, r.Phase)
	assert.Equal(t, "a fire near 5th St", r.Draft.Description)
	assert.Equal(t, "5th St and Main", r.Draft.Location)
	assert.Equal(t, incident.DepartmentSet{incident.Fire}, r.Draft.Departments)
	assert.Equal(t, ImageUnset, r.Draft.Image.State)
}

func TestYesAtSummary_NoChatCall(t *testing.T) {
	e, chat, _ := newEngine(t, canonicalSummary)
	ctx := context.Background()
	e.SubmitUserTurn(ctx, "fire", nil)
	before := chat.CallCount()

	r := e.SubmitUserTurn(ctx, "  YES. ", nil)
	assert.Equal(t, AwaitingSubmitConfirmation, r.Phase)
	assert.Equal(t, before, chat.CallCount())
	require.Len(t, r.Turns, 1)
	assert.Equal(t, msgAskSubmit, r.Turns[0].Content)
}

func TestModelAsksSubmit_AdvancesPhase(t *testing.T) {
	e, _, _ := newEngine(t, canonicalSummary, "Great. Shall I submit this report now?")
	ctx := context.Background()
	e.SubmitUserTurn(ctx, "fire", nil)

	r := e.SubmitUserTurn(ctx, "that's all right", nil)
	assert.Equal(t, AwaitingSubmitConfirmation, r.Phase)
}

func TestNoAtSubmit_PreservesDraft(t *testing.T) {
	e, chat, _ := newEngine(t, replyAskLocation, replyAskImage, canonicalSummary)
	toSubmitConfirmation(t, e)
	calls := chat.CallCount()

	r := e.SubmitUserTurn(context.Background(), "no", nil)
	assert.Equal(t, AwaitingDescription, r.Phase)
	assert.Equal(t, "a fire near 5th St", r.Draft.Description)
	assert.Equal(t, "5th St and Main", r.Draft.Location)
	require.Len(t, r.Turns, 1)
	assert.Equal(t, msgClarify, r.Turns[0].Content)
	assert.Equal(t, calls, chat.CallCount())
}

func TestAmbiguousConfirmation_IsForwarded(t *testing.T) {
	e, chat, _ := newEngine(t, canonicalSummary, "Okay, I'll update that.")
	ctx := context.Background()
	e.SubmitUserTurn(ctx, "fire", nil)

	r := e.SubmitUserTurn(ctx, "actually it is on Oak Ave", nil)
	assert.Equal(t, 2, chat.CallCount())
	assert.Equal(t, AwaitingSummaryConfirmation, r.Phase)
}

func TestSubmitWithoutDepartments_NeverCallsAPI(t *testing.T) {
	e, _, sub := newEngine(t, "I have that there is a broken bench at Dolores Park. This will be classified under the appropriate team. Is this information correct and complete?")
	ctx := context.Background()
	e.SubmitUserTurn(ctx, "broken bench", nil)
	require.Equal(t, AwaitingSummaryConfirmation, e.Phase())
	require.True(t, e.Draft().Departments.Empty())

	e.SubmitUserTurn(ctx, "yes", nil)
	r := e.SubmitUserTurn(ctx, "yes", nil)

	assert.Empty(t, sub.calls)
	assert.Equal(t, OutcomeValidationFailed, r.Outcome)
	assert.Equal(t, failure.KindValidation, failure.KindOf(r.Err))
	assert.Equal(t, AwaitingDescription, r.Phase)
	assert.True(t, r.Draft.IsZero())
	assert.Empty(t, e.History())

	var texts []string
	for _, turn := range r.Turns {
		texts = append(texts, turn.Content)
	}
	assert.Contains(t, texts, msgValidation([]string{"department classification"}))
	assert.Equal(t, msgGreeting, texts[len(texts)-1])
}

func TestDuplicate_ClearsDraftAndOffersChoices(t *testing.T) {
	e, _, sub := newEngine(t, replyAskLocation, replyAskImage, canonicalSummary)
	existing := &incident.Incident{ID: 7, Description: "pothole on Oak Ave", Location: "Oak Ave and 3rd", Status: incident.StatusInProgress}
	sub.errs = []error{&incidentapi.DuplicateError{Message: "Similar incident already reported", Existing: existing}}
	toSubmitConfirmation(t, e)

	r := e.SubmitUserTurn(context.Background(), "submit", nil)

	assert.Equal(t, OutcomeDuplicate, r.Outcome)
	assert.Equal(t, failure.KindConflict, failure.KindOf(r.Err))
	assert.Equal(t, []Choice{ChoiceViewAlerts, ChoiceRestart}, r.Choices)
	assert.Same(t, existing, r.Incident)
	assert.True(t, r.Draft.IsZero())
	assert.Equal(t, AwaitingDescription, r.Phase)
	assert.Empty(t, e.History())

	last := r.Turns[len(r.Turns)-1].Content
	assert.Contains(t, last, "pothole on Oak Ave")
	assert.Contains(t, last, "in progress")
}

func TestChatFailure_RollsBackTurn(t *testing.T) {
	chat := llm.NewFakeClient()
	chat.PushError(failure.Network("llm.proxy", errors.New("connection refused")))
	chat.PushError(errors.New("boom"))
	e := New(chat, &fakeSubmitter{})
	ctx := context.Background()
	e.Start(ctx)

	r := e.SubmitUserTurn(ctx, "a fire", nil)
	require.Error(t, r.Err)
	require.Len(t, r.Turns, 1)
	assert.Equal(t, msgChatNetwork, r.Turns[0].Content)
	assert.Equal(t, AwaitingDescription, r.Phase)
	assert.True(t, r.Draft.IsZero())
	assert.Empty(t, e.History())

	r = e.SubmitUserTurn(ctx, "a fire", nil)
	assert.Equal(t, msgChatUnavailable, r.Turns[0].Content)
	assert.Empty(t, e.History())

	// greeting, then two user turns each followed by an apology
	assert.Len(t, e.Transcript(), 5)
}

func TestSubmitFailure_ReturnsToSubmitConfirmation(t *testing.T) {
	e, _, sub := newEngine(t, replyAskLocation, replyAskImage, canonicalSummary)
	sub.errs = []error{failure.Network("incidentapi.create", errors.New("dial tcp: refused"))}
	toSubmitConfirmation(t, e)
	ctx := context.Background()

	r := e.SubmitUserTurn(ctx, "yes", nil)
	assert.Equal(t, AwaitingSubmitConfirmation, r.Phase)
	assert.Equal(t, OutcomeNone, r.Outcome)
	assert.Equal(t, msgSubmitNetwork, r.Turns[len(r.Turns)-1].Content)
	assert.Equal(t, "a fire near 5th St", r.Draft.Description)

	r = e.SubmitUserTurn(ctx, "yes", nil)
	require.NoError(t, r.Err)
	assert.Equal(t, OutcomeSubmitted, r.Outcome)
	assert.Len(t, sub.calls, 2)
}

func TestSubmitRemoteFailure_ShowsBackendMessage(t *testing.T) {
	e, _, sub := newEngine(t, replyAskLocation, replyAskImage, canonicalSummary)
	sub.errs = []error{failure.Remote("incidentapi.create", 500, "database is locked")}
	toSubmitConfirmation(t, e)

	r := e.SubmitUserTurn(context.Background(), "yes", nil)
	assert.Equal(t, AwaitingSubmitConfirmation, r.Phase)
	assert.Contains(t, r.Turns[len(r.Turns)-1].Content, "database is locked")
}

func TestNoSpuriousExtraction(t *testing.T) {
	e, _, _ := newEngine(t,
		"I understand. Could you tell me a bit more about what happened?",
		"Thank you. Is anyone hurt?",
		"I'm here only to help you report incidents or access CityAlert safety resources.",
	)
	ctx := context.Background()
	for _, text := range []string{"help", "there is smoke", "what's the weather?"} {
		r := e.SubmitUserTurn(ctx, text, nil)
		assert.Equal(t, AwaitingDescription, r.Phase)
		assert.True(t, r.Draft.IsZero())
	}
}

func TestBlankTurn_Ignored(t *testing.T) {
	e, chat, _ := newEngine(t)
	r := e.SubmitUserTurn(context.Background(), "   ", nil)
	assert.Empty(t, r.Turns)
	assert.Equal(t, 0, chat.CallCount())
	assert.Len(t, e.Transcript(), 1)
}

func TestAttachImage_ForwardedWithNextTurn(t *testing.T) {
	e, chat, sub := newEngine(t, replyAskLocation, replyAskImage, "Thanks for the photo.", canonicalSummary)
	ctx := context.Background()
	e.SubmitUserTurn(ctx, "There's a fire near 5th St", nil)
	e.SubmitUserTurn(ctx, "5th St and Main", nil)

	r := e.AttachImage(ctx, &llm.Image{MIMEType: "image/png", Data: []byte{1, 2, 3}})
	require.NoError(t, r.Err)
	assert.Empty(t, r.Turns)
	assert.Equal(t, AwaitingImageDecision, r.Phase)
	assert.Equal(t, Attached("image_attached_1000"), r.Draft.Image)

	e.SubmitUserTurn(ctx, "here it is", nil)
	calls := chat.Calls()
	last := calls[len(calls)-1]
	sent := last[len(last)-1]
	require.NotNil(t, sent.Image)
	assert.Equal(t, []byte{1, 2, 3}, sent.Image.Data)
	assert.Equal(t, "image_attached_1000", sent.Image.Ref)

	e.SubmitUserTurn(ctx, "that's it", nil)
	require.Equal(t, AwaitingSummaryConfirmation, e.Phase())
	assert.Equal(t, ImageAttached, e.Draft().Image.State)

	e.SubmitUserTurn(ctx, "yes", nil)
	e.SubmitUserTurn(ctx, "yes", nil)
	require.Len(t, sub.calls, 1)
	require.NotNil(t, sub.calls[0].ImageURL)
	assert.Equal(t, "image_attached_1000", *sub.calls[0].ImageURL)
}

func TestSubmitUserTurn_ImageOnlySendsNotice(t *testing.T) {
	e, chat, _ := newEngine(t, "Thank you, that helps.")
	e.SubmitUserTurn(context.Background(), "", &llm.Image{Ref: "https://cdn.example/photo.jpg"})

	calls := chat.Calls()
	require.Len(t, calls, 1)
	sent := calls[0][len(calls[0])-1]
	assert.Equal(t, msgImageSent, sent.Content)
	assert.Equal(t, "https://cdn.example/photo.jpg", e.Draft().Image.Ref)
}

func TestAttachImage_StoreFailure(t *testing.T) {
	e := New(llm.NewFakeClient(), &fakeSubmitter{}, WithImageStore(failingStore{}))
	e.Start(context.Background())

	r := e.AttachImage(context.Background(), &llm.Image{Data: []byte("x")})
	require.Error(t, r.Err)
	assert.Equal(t, msgImageUploadError, r.Turns[0].Content)
	assert.Equal(t, ImageUnset, r.Draft.Image.State)
}

func TestDetachImage(t *testing.T) {
	e, chat, _ := newEngine(t, "ok")
	ctx := context.Background()
	e.AttachImage(ctx, &llm.Image{Data: []byte("x")})
	e.DetachImage()

	assert.Equal(t, ImageDeclined, e.Draft().Image.State)
	e.SubmitUserTurn(ctx, "a fire", nil)
	sent := chat.Calls()[0][0]
	assert.Nil(t, sent.Image)
}

func TestMarkerOnlyReply_NoVisibleTurn(t *testing.T) {
	e, _, _ := newEngine(t, "DEPARTMENT_CLASSIFICATION: [FIRE, medical, bogus]")
	r := e.SubmitUserTurn(context.Background(), "smoke and an injured person", nil)

	assert.Empty(t, r.Turns)
	assert.Equal(t, incident.DepartmentSet{incident.Fire, incident.Medical}, r.Draft.Departments)
	assert.Equal(t, AwaitingDescription, r.Phase)
	assert.Len(t, e.History(), 2, "the raw reply stays in the model history")
}

func TestSummaryMarkerWinsOverSentence(t *testing.T) {
	e, _, _ := newEngine(t, canonicalSummary+"\nDEPARTMENT_CLASSIFICATION: [FIRE,MEDICAL]")
	r := e.SubmitUserTurn(context.Background(), "fire with injuries", nil)
	assert.Equal(t, incident.DepartmentSet{incident.Fire, incident.Medical}, r.Draft.Departments)
}

func TestInlineMarkerSummary_ReachesConfirmation(t *testing.T) {
	e, _, _ := newEngine(t, inlineMarkerSummary)
	r := e.SubmitUserTurn(context.Background(), "fire by the station", nil)

	assert.Equal(t, AwaitingSummaryConfirmation, r.Phase)
	assert.Equal(t, "a fire near 5th St", r.Draft.Description)
	assert.Equal(t, "5th St and Main", r.Draft.Location)
	assert.Equal(t, incident.DepartmentSet{incident.Fire, incident.Medical}, r.Draft.Departments)
	require.Len(t, r.Turns, 1)
	assert.Contains(t, r.Turns[0].Content, "classified under [FIRE, MEDICAL]. Is this")
}

func TestCancelledTurn_NoNetworkApology(t *testing.T) {
	e, _, _ := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := e.SubmitUserTurn(ctx, "there is a fire", nil)
	require.Error(t, r.Err)
	assert.ErrorIs(t, r.Err, context.Canceled)
	assert.Empty(t, r.Turns)
	assert.Equal(t, AwaitingDescription, r.Phase)
	assert.Empty(t, e.History())
}
