package dialog

// CallControl is the dialog control-plane signal exchanged between a
// Call and its application.
type CallControl int

const (
	// ControlHangup is sent by the application (Call.Hangup) to request
	// that the dialog end. The call handler does not send it back to
	// the application; the end of the dialog is announced by
	// ControlFinished only.
	ControlHangup CallControl = iota
	// ControlAudioOutEmpty is a defined control value that nothing in
	// this package emits: the RTP session's OutputEmpty latch is
	// delivered only on the media channel (Call.RecvMedia).
	ControlAudioOutEmpty
	// ControlFinished is emitted exactly once, when the dialog has
	// fully terminated for any reason.
	ControlFinished
)

func (c CallControl) String() string {
	switch c {
	case ControlHangup:
		return "Hangup"
	case ControlAudioOutEmpty:
		return "AudioOutEmpty"
	case ControlFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}
