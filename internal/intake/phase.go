package intake

import (
	"errors"
	"fmt"
)

// Phase is the engine's position in the reporting flow.
type Phase int

const (
	AwaitingDescription Phase = iota
	AwaitingLocation
	AwaitingImageDecision
	AwaitingSummaryConfirmation
	AwaitingSubmitConfirmation
	Submitting
)

var phaseNames = [...]string{
	AwaitingDescription:         "awaiting_description",
	AwaitingLocation:            "awaiting_location",
	AwaitingImageDecision:       "awaiting_image_decision",
	AwaitingSummaryConfirmation: "awaiting_summary_confirmation",
	AwaitingSubmitConfirmation:  "awaiting_submit_confirmation",
	Submitting:                  "submitting",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// AwaitsConfirmation reports whether a yes/no answer is handled locally.
func (p Phase) AwaitsConfirmation() bool {
	return p == AwaitingSummaryConfirmation || p == AwaitingSubmitConfirmation
}

// Trigger is the closed set of events that move the phase.
type Trigger int

const (
	TriggerAskedLocation Trigger = iota + 1
	TriggerAskedImage
	TriggerSummarized
	TriggerAskedSubmit
	TriggerAffirmed
	TriggerDenied
	TriggerRetry
	TriggerReset
)

func (t Trigger) String() string {
	switch t {
	case TriggerAskedLocation:
		return "asked_location"
	case TriggerAskedImage:
		return "asked_image"
	case TriggerSummarized:
		return "summarized"
	case TriggerAskedSubmit:
		return "asked_submit"
	case TriggerAffirmed:
		return "affirmed"
	case TriggerDenied:
		return "denied"
	case TriggerRetry:
		return "retry"
	case TriggerReset:
		return "reset"
	}
	return fmt.Sprintf("trigger(%d)", int(t))
}

var ErrInvalidTransition = errors.New("intake: invalid phase transition")

type edge struct {
	from    Phase
	trigger Trigger
}

var transitions = map[edge]Phase{
	{AwaitingDescription, TriggerAskedLocation}:       AwaitingLocation,
	{AwaitingLocation, TriggerAskedImage}:             AwaitingImageDecision,
	{AwaitingSummaryConfirmation, TriggerAskedSubmit}: AwaitingSubmitConfirmation,
	{AwaitingSummaryConfirmation, TriggerAffirmed}:    AwaitingSubmitConfirmation,
	{AwaitingSubmitConfirmation, TriggerAffirmed}:     Submitting,
	{AwaitingSummaryConfirmation, TriggerDenied}:      AwaitingDescription,
	{AwaitingSubmitConfirmation, TriggerDenied}:       AwaitingDescription,
	{Submitting, TriggerRetry}:                        AwaitingSubmitConfirmation,
}

// Next returns the phase reached from `from` on t. Summaries are accepted in
// every phase but Submitting; reset is accepted everywhere.
func Next(from Phase, t Trigger) (Phase, error) {
	switch t {
	case TriggerReset:
		return AwaitingDescription, nil
	case TriggerSummarized:
		if from == Submitting {
			break
		}
		return AwaitingSummaryConfirmation, nil
	default:
		if to, ok := transitions[edge{from, t}]; ok {
			return to, nil
		}
	}
	return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, t)
}
