package gigsync

// NearBottomThreshold is the distance, in logical pixels, under which the
// viewer counts as looking at the latest message.
const NearBottomThreshold = 150.0

// ScrollAction tells the UI how to move the message viewport.
type ScrollAction int

const (
	ScrollNone ScrollAction = iota
	// ScrollInstant jumps to the latest message without animation.
	ScrollInstant
	// ScrollSmooth animates to the latest message.
	ScrollSmooth
)

func (a ScrollAction) String() string {
	switch a {
	case ScrollInstant:
		return "instant"
	case ScrollSmooth:
		return "smooth"
	}
	return "none"
}

// ViewState is the scroll and read state of the open conversation. It is
// view-local, lives outside the Store, and is plain data so a UI can persist
// or inspect it. Methods are not goroutine-safe.
type ViewState struct {
	ConversationID     string  `json:"conversationId"`
	DistanceFromBottom float64 `json:"distanceFromBottom"`
	NearBottom         bool    `json:"nearBottom"`
	PendingIndicator   bool    `json:"pendingIndicator"`
	AwaitingHistory    bool    `json:"awaitingHistory"`
}

// Switch opens conversationID, or closes the view when it is empty. The
// viewer is assumed to be at the bottom until told otherwise.
func (v *ViewState) Switch(conversationID string) {
	*v = ViewState{
		ConversationID:  conversationID,
		NearBottom:      true,
		AwaitingHistory: conversationID != "",
	}
}

// IsOpen reports whether conversationID is the one on screen.
func (v *ViewState) IsOpen(conversationID string) bool {
	return conversationID != "" && v.ConversationID == conversationID
}

// Sees reports whether a message arriving for conversationID lands in front
// of an attentive viewer.
func (v *ViewState) Sees(conversationID string) bool {
	return v.IsOpen(conversationID) && v.NearBottom
}

// HistoryLoaded is called when a history fetch for conversationID has been
// applied. Only the first load of the open conversation scrolls, without
// animation; late responses for another conversation do nothing.
func (v *ViewState) HistoryLoaded(conversationID string) ScrollAction {
	if !v.IsOpen(conversationID) || !v.AwaitingHistory {
		return ScrollNone
	}
	v.AwaitingHistory = false
	v.NearBottom = true
	v.DistanceFromBottom = 0
	return ScrollInstant
}

// MessageArrived decides what a new message for conversationID does to the
// viewport. A viewer near the bottom follows it; one reading history is left
// in place and gets the new-message indicator instead.
func (v *ViewState) MessageArrived(conversationID string) ScrollAction {
	if !v.IsOpen(conversationID) || v.AwaitingHistory {
		return ScrollNone
	}
	if v.NearBottom {
		return ScrollSmooth
	}
	v.PendingIndicator = true
	return ScrollNone
}

// Scrolled records the viewport's distance from the bottom. It reports
// whether this scroll cleared a pending indicator.
func (v *ViewState) Scrolled(distanceFromBottom float64) (caughtUp bool) {
	if distanceFromBottom < 0 {
		distanceFromBottom = 0
	}
	v.DistanceFromBottom = distanceFromBottom
	v.NearBottom = distanceFromBottom < NearBottomThreshold
	if v.NearBottom && v.PendingIndicator {
		v.PendingIndicator = false
		return true
	}
	return false
}

// IndicatorClicked scrolls to the latest message and clears the indicator.
func (v *ViewState) IndicatorClicked() ScrollAction {
	if v.ConversationID == "" {
		return ScrollNone
	}
	v.PendingIndicator = false
	v.NearBottom = true
	v.DistanceFromBottom = 0
	return ScrollSmooth
}

// MessageSent follows the viewer's own message to the bottom, wherever the
// viewport was.
func (v *ViewState) MessageSent(conversationID string) ScrollAction {
	if !v.IsOpen(conversationID) {
		return ScrollNone
	}
	v.PendingIndicator = false
	v.NearBottom = true
	v.DistanceFromBottom = 0
	return ScrollSmooth
}
