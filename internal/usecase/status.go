package usecase

// Texts shown in the status line and on the toggle control.
const (
	StatusUnsupported = "Status: Speech recognition not supported on this system."
	StatusIdle        = "Status: Idle"
	StatusStarting    = "Status: Starting to listen..."
	StatusListening   = "Status: Listening... please speak"
	StatusStopping    = "Status: Stopping..."
	StatusFinished    = "Status: Finished recording"
	StatusSending     = "Status: Sending to server..."
	StatusDone        = "Status: Done"
	StatusServerError = "Status: Error talking to server"

	statusRecognitionErrorPrefix = "Status: Speech recognition error: "

	LabelStart = "🎙️ Start Recording"
	LabelStop  = "⏹️ Stop Recording"

	AlertUnsupported = "Speech recognition not supported on this system."

	historyTimeLayout = "15:04:05"
)

// RecognitionErrorStatus is the status line shown for a recognizer error code.
func RecognitionErrorStatus(code string) string {
	return statusRecognitionErrorPrefix + code
}
