package models

// FlowState is the coordinator's position in a single donation flow.
type FlowState string

const (
	StateIdle                     FlowState = "idle"
	StateSubmitting               FlowState = "submitting"
	StateAwaitingExternalCallback FlowState = "awaiting_external_callback"
	StateResolvingStatus          FlowState = "resolving_status"
	StateResolved                 FlowState = "resolved"
	StateFailed                   FlowState = "failed"
)

// ViewKind tells the UI which screen to render.
type ViewKind string

const (
	ShowForm    ViewKind = "show_form"
	ShowLoading ViewKind = "show_loading"
	ShowResult  ViewKind = "show_result"
	ShowError   ViewKind = "show_error"
)

// View is one emission from the coordinator to the presentation layer.
type View struct {
	Kind    ViewKind           `json:"kind"`
	Message string             `json:"message,omitempty"`
	Result  *TransactionStatus `json:"result,omitempty"`
}

// FlowSnapshot is a point-in-time copy of the coordinator state.
type FlowSnapshot struct {
	FlowID     string    `json:"flow_id,omitempty"`
	Generation uint64    `json:"generation"`
	State      FlowState `json:"state"`
	View       View      `json:"view"`
}

// Notification is a callback that matched the donation deep link.
type Notification struct {
	Raw           string `json:"raw"`
	TransactionID string `json:"transaction_id,omitempty"`
}
