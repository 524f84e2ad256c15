package status

import "errors"

// Error kinds surfaced by the donation flow. Callers match them with errors.Is;
// concrete causes are joined to the kind with %w.
var (
	ErrValidation      = errors.New("validation: invalid donation input")
	ErrTransport       = errors.New("transport: donation service unreachable")
	ErrService         = errors.New("service: incomplete donation service response")
	ErrCallbackParse   = errors.New("callback: unparseable notification")
	ErrForeignCallback = errors.New("callback: notification does not belong to the donation flow")
	ErrNoTransaction   = errors.New("callback: notification carries no transaction id")

	ErrFlowBusy   = errors.New("flow: a submission is already in progress")
	ErrStaleFlow  = errors.New("flow: response belongs to an abandoned flow")
	ErrNotWaiting = errors.New("flow: no payment page is waiting for a callback")
)
