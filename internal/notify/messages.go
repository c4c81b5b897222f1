package notify

import (
	"fmt"
	"strings"

	"voxcam/internal/domain"
)

var statusText = map[domain.StatusKey]string{
	domain.StatusInitializing:         "Initializing...",
	domain.StatusSetupRecognizer:      "Setting up speech recognizer...",
	domain.StatusReady:                "Recognizer ready",
	domain.StatusListening:            "Listening for commands...",
	domain.StatusHearingSpeech:        "Hearing speech...",
	domain.StatusProcessingSpeech:     "Processing speech...",
	domain.StatusHeardPartial:         "Heard: %s",
	domain.StatusNoClearAudio:         "No clear command heard",
	domain.StatusRecognizerIssue:      "Recognizer issue, try again",
	domain.StatusRecognizerNotReady:   "Recognizer not ready",
	domain.StatusErrorStarting:        "Error starting recognizer",
	domain.StatusErrorRecognition:     "Recognition error, retrying...",
	domain.StatusTimeoutListenAgain:   "Timed out, listening again...",
	domain.StatusErrorRecognizerStuck: "Recognizer stuck, restarting...",
	domain.StatusErrorInit:            "Failed to initialize recognizer",
	domain.StatusErrorMaxRetries:      "Voice recognition stopped after repeated errors",
	domain.StatusOpeningCamera:        "Opening camera...",
	domain.StatusRecordingVideo:       "Starting video recording...",
	domain.StatusErrorNoCamera:        "No camera app found",
	domain.StatusErrorNoVideo:         "No video recorder found",
	domain.StatusMessageCommand:       "Message command received",
	domain.StatusUnrecognizedCommand:  "Command not recognized: %s",
	domain.StatusSuspended:            "Paused",
}

var speechText = map[domain.SpeechKey]string{
	domain.SpeechSystemReady:        "System ready",
	domain.SpeechInitFailed:         "Failed to initialize voice recognition",
	domain.SpeechFailedPermanently:  "Voice recognition failed. Please restart the app",
	domain.SpeechOpeningCamera:      "Opening camera",
	domain.SpeechStartingVideo:      "Starting video recording",
	domain.SpeechNoCameraApp:        "No camera app found",
	domain.SpeechNoVideoApp:         "No video recording app found",
	domain.SpeechMessagePlaceholder: "Message feature is not available yet",
	domain.SpeechUnrecognized:       "Command not recognized: %s",
}

// StatusText renders a status line. Unknown keys render as the key itself.
func StatusText(key domain.StatusKey, args ...any) string {
	return render(statusText[key], string(key), args)
}

// SpeechText renders a spoken message.
func SpeechText(key domain.SpeechKey, args ...any) string {
	return render(speechText[key], string(key), args)
}

func render(format, fallback string, args []any) string {
	if format == "" {
		return fallback
	}
	if !strings.Contains(format, "%") {
		return format
	}
	if len(args) == 0 {
		args = []any{""}
	}
	return strings.TrimSpace(fmt.Sprintf(format, args...))
}
