package intake

import (
	"fmt"
	"strings"

	"cityalert/internal/incident"
)

const (
	msgGreeting         = "Hi there! I'm CityAlert, your AI assistant. I'm here to help you report incidents. Please tell me what happened."
	msgAskSubmit        = "Thank you. Shall I submit this report now?"
	msgSubmitting       = "Thank you for confirming. Your report is being submitted to the relevant city department via the CityAlert system."
	msgClarify          = "Okay, let's clarify. What information needs to be corrected or added?"
	msgChatNetwork      = "A network error occurred. Please check your connection and try again."
	msgChatUnavailable  = "I apologize, I couldn't get a response from the AI. Please try again."
	msgSubmitNetwork    = "A network error occurred while submitting your report. Please check your connection and answer 'yes' to try again."
	msgImageUploadError = "Sorry, I couldn't attach that image. Please try again or continue without it."
	msgImageSent        = "I have attached an image."

	// DefaultImageHint follows the assistant's image question.
	DefaultImageHint = "To attach an image, use the attachment option or type 'no' if you don't have an image to share."
)

func msgValidation(missing []string) string {
	return fmt.Sprintf("Error: Missing incident details for submission (%s). Please restart the reporting process.", strings.Join(missing, ", "))
}

func msgSubmitted(id int64) string {
	return fmt.Sprintf("✨ Your report (ID: %d) has been successfully submitted to the relevant city department! Thank you for helping keep our city safe.", id)
}

func msgSubmitRemote(detail string) string {
	if detail == "" {
		detail = "the server rejected the request"
	}
	return fmt.Sprintf("Oops! There was an error submitting your report: %s. Please answer 'yes' to try again.", strings.TrimRight(detail, "."))
}

func msgDuplicate(existing *incident.Incident) string {
	if existing == nil {
		return "A similar incident has already been reported. Would you like to view the existing alerts or restart your report?"
	}
	return fmt.Sprintf("A similar incident has already been reported: %s at %s (status: %s). Would you like to view the existing alerts or restart your report?",
		strings.TrimSpace(existing.Description), strings.TrimSpace(existing.Location), existing.Status.Label())
}
