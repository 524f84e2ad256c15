package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"donation-agent/internal/services/donation"
	"donation-agent/internal/status"
	"donation-agent/models"
	"donation-agent/monitoring"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Messages shown to the donor.
const (
	MsgSubmitting        = "Sending your donation..."
	MsgWaitingForPayment = "Waiting for payment confirmation..."
	MsgResolving         = "Checking the transaction status..."
	MsgNoPaymentURL      = "No payment URL was provided."
	MsgSubmitFailed      = "An error occurred while sending the donation. Please try again later."
	MsgPageNotOpened     = "The payment page could not be opened."
	MsgStatusUnavailable = "Unable to retrieve the transaction status. Please try again later."
)

type DonationClient interface {
	CreateSession(ctx context.Context, req *models.DonationRequest) (*models.DonationSession, error)
	FetchStatus(ctx context.Context, transactionID string) (*models.TransactionStatus, error)
}

type Redirector interface {
	Open(ctx context.Context, rawURL string) error
	Dismiss(ctx context.Context) error
}

// Presenter renders views. Render is called with the flow lock held and must
// not block or call back into the service.
type Presenter interface {
	Render(v models.View)
}

// HandoffService drives a single donation from the form, through the external
// payment page, to the reconciled transaction status.
//
// Every transition happens under mu. Network calls and the redirector run
// without it; their results are applied only if the flow generation has not
// moved on in the meantime.
type HandoffService struct {
	client     DonationClient
	redirector Redirector
	presenter  Presenter
	monitor    *monitoring.Monitor
	log        zerolog.Logger
	newFlowID  func() string

	// pageMu serializes redirector calls. It is taken before mu, never after.
	pageMu sync.Mutex

	mu            sync.Mutex
	generation    uint64
	flowID        string
	state         models.FlowState
	request       *models.DonationRequest
	paymentURL    string
	transactionID string
	result        *models.TransactionStatus
	view          models.View
}

type HandoffOption func(*HandoffService)

func WithHandoffMonitor(m *monitoring.Monitor) HandoffOption {
	return func(s *HandoffService) { s.monitor = m }
}

func WithHandoffLogger(l zerolog.Logger) HandoffOption {
	return func(s *HandoffService) { s.log = l }
}

func NewHandoffService(client DonationClient, redirector Redirector, presenter Presenter, opts ...HandoffOption) *HandoffService {
	s := &HandoffService{
		client:     client,
		redirector: redirector,
		presenter:  presenter,
		log:        zerolog.Nop(),
		newFlowID:  uuid.NewString,
		state:      models.StateIdle,
		view:       models.View{Kind: models.ShowForm},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current flow as the UI should see it.
func (s *HandoffService) Snapshot() models.FlowSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Submit validates the form, creates a donation session and opens the payment
// page. A flow that is not idle is abandoned first, except one that is still
// submitting, which is refused with status.ErrFlowBusy.
//
// Invalid input never touches a flow in progress: the error view is rendered
// only when the coordinator is idle, otherwise it is returned in the snapshot
// and the live flow carries on.
//
// The returned error is the reason the flow did not reach the payment page.
func (s *HandoffService) Submit(ctx context.Context, form donation.Form) (models.FlowSnapshot, error) {
	req, validationErr := form.Validate()

	s.mu.Lock()
	if s.state == models.StateSubmitting {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, fmt.Errorf("submit: %w", status.ErrFlowBusy)
	}

	if validationErr != nil {
		errView := models.View{Kind: models.ShowError, Message: validationMessage(validationErr)}
		if s.state == models.StateIdle {
			s.setViewLocked(errView)
		}
		snap := s.snapshotLocked()
		s.mu.Unlock()

		snap.View = errView
		return snap, validationErr
	}

	abandoned := s.state == models.StateAwaitingExternalCallback
	if s.state != models.StateIdle {
		s.log.Info().Str("flow_id", s.flowID).Str("state", string(s.state)).Msg("abandoning flow for a new submission")
		s.resetLocked()
	}

	s.generation++
	gen := s.generation
	s.flowID = s.newFlowID()
	s.request = req
	s.transitionLocked(models.StateSubmitting)
	s.setViewLocked(models.View{Kind: models.ShowLoading, Message: MsgSubmitting})
	log := s.log.With().Str("flow_id", s.flowID).Uint64("generation", gen).Logger()
	s.mu.Unlock()

	if abandoned {
		s.dismiss(ctx)
	}

	session, err := s.client.CreateSession(ctx, req)

	s.mu.Lock()
	if s.generation != gen {
		snap := s.staleLocked(log, "create session")
		s.mu.Unlock()
		return snap, fmt.Errorf("submit: %w", status.ErrStaleFlow)
	}
	if err == nil && (session == nil || strings.TrimSpace(session.PaymentURL) == "") {
		err = fmt.Errorf("submit: session has no payment url: %w", status.ErrService)
	}
	if err != nil {
		snap := s.failLocked(log, err, submitFailureMessage(err))
		s.mu.Unlock()
		return snap, err
	}
	paymentURL := strings.TrimSpace(session.PaymentURL)
	s.mu.Unlock()

	err = s.open(ctx, paymentURL)

	s.mu.Lock()
	if s.generation != gen {
		snap := s.staleLocked(log, "open payment page")
		s.mu.Unlock()
		if err == nil {
			s.dismissOrphan(ctx)
		}
		return snap, fmt.Errorf("submit: %w", status.ErrStaleFlow)
	}
	defer s.mu.Unlock()

	if err != nil {
		err = fmt.Errorf("submit: redirector.Open: %w: %w", status.ErrService, err)
		return s.failLocked(log, err, MsgPageNotOpened), err
	}

	s.paymentURL = paymentURL
	s.transitionLocked(models.StateAwaitingExternalCallback)
	s.setViewLocked(models.View{Kind: models.ShowLoading, Message: MsgWaitingForPayment})
	log.Info().Msg("payment page opened, waiting for callback")

	return s.snapshotLocked(), nil
}

// HandleCallback reconciles a matching deep link with the flow. It only acts
// while the payment page is open; otherwise it returns status.ErrNotWaiting and
// changes nothing. A link without a transaction id closes the page but leaves
// the flow waiting.
func (s *HandoffService) HandleCallback(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	if s.state != models.StateAwaitingExternalCallback {
		state := s.state
		s.mu.Unlock()

		s.monitor.TrackCallback(monitoring.CallbackIgnored)
		s.log.Debug().Str("state", string(state)).Str("uri", n.Raw).Msg("ignoring callback outside the payment page")
		return fmt.Errorf("handleCallback: state %s: %w", state, status.ErrNotWaiting)
	}

	if n.TransactionID == "" {
		flowID := s.flowID
		s.mu.Unlock()

		s.monitor.TrackCallback(monitoring.CallbackNoID)
		s.log.Warn().Str("flow_id", flowID).Str("uri", n.Raw).Msg("callback without transaction id")
		s.dismiss(ctx)
		return fmt.Errorf("handleCallback: %w", status.ErrNoTransaction)
	}

	gen := s.generation
	s.transactionID = n.TransactionID
	s.transitionLocked(models.StateResolvingStatus)
	s.setViewLocked(models.View{Kind: models.ShowLoading, Message: MsgResolving})
	log := s.log.With().Str("flow_id", s.flowID).Uint64("generation", gen).Str("transaction_id", n.TransactionID).Logger()
	s.mu.Unlock()

	s.monitor.TrackCallback(monitoring.CallbackAccepted)
	s.dismiss(ctx)

	tx, err := s.client.FetchStatus(ctx, n.TransactionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.generation != gen {
		s.staleLocked(log, "fetch status")
		return fmt.Errorf("handleCallback: %w", status.ErrStaleFlow)
	}

	if err == nil && tx == nil {
		err = fmt.Errorf("handleCallback: empty status reply: %w", status.ErrService)
	}
	reported := ""
	if err != nil {
		log.Warn().Err(err).Msg("transaction status unavailable")
		tx = models.FailedLookup(MsgStatusUnavailable)
	} else {
		reported = tx.Status
		tx = tx.Normalized()
	}
	s.result = tx
	s.transitionLocked(models.StateResolved)
	s.setViewLocked(models.View{Kind: models.ShowResult, Result: tx})
	log.Info().Str("status", tx.Status).Str("reported_status", reported).Bool("lookup_failed", tx.IsError()).Msg("donation resolved")

	return nil
}

// Reset abandons whatever flow is in progress and shows the form again.
// Late responses for the abandoned flow are dropped.
func (s *HandoffService) Reset(ctx context.Context) models.FlowSnapshot {
	s.mu.Lock()
	pageOpen := s.state == models.StateAwaitingExternalCallback
	s.resetLocked()
	s.setViewLocked(models.View{Kind: models.ShowForm})
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if pageOpen {
		s.dismiss(ctx)
	}
	return snap
}

func (s *HandoffService) open(ctx context.Context, rawURL string) error {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()
	return s.redirector.Open(ctx, rawURL)
}

func (s *HandoffService) dismiss(ctx context.Context) {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()
	s.dismissPageLocked(ctx)
}

// dismissOrphan closes a page opened by an abandoned flow unless a newer flow
// already owns the page.
func (s *HandoffService) dismissOrphan(ctx context.Context) {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()

	s.mu.Lock()
	owned := s.state == models.StateSubmitting || s.state == models.StateAwaitingExternalCallback
	s.mu.Unlock()
	if owned {
		return
	}
	s.dismissPageLocked(ctx)
}

func (s *HandoffService) dismissPageLocked(ctx context.Context) {
	if err := s.redirector.Dismiss(ctx); err != nil {
		s.log.Warn().Err(err).Msg("dismiss payment page")
	}
}

func (s *HandoffService) resetLocked() {
	s.generation++
	s.flowID = ""
	s.request = nil
	s.paymentURL = ""
	s.transactionID = ""
	s.result = nil
	s.transitionLocked(models.StateIdle)
}

func (s *HandoffService) failLocked(log zerolog.Logger, err error, message string) models.FlowSnapshot {
	log.Error().Err(err).Msg("donation flow failed")
	s.transitionLocked(models.StateFailed)
	s.setViewLocked(models.View{Kind: models.ShowError, Message: message})
	return s.snapshotLocked()
}

func (s *HandoffService) staleLocked(log zerolog.Logger, step string) models.FlowSnapshot {
	s.monitor.TrackStaleResponse()
	log.Info().Str("step", step).Msg("dropping response for abandoned flow")
	return s.snapshotLocked()
}

func (s *HandoffService) transitionLocked(to models.FlowState) {
	if s.state == to {
		return
	}
	s.monitor.TrackTransition(string(s.state), string(to))
	s.log.Debug().Str("from", string(s.state)).Str("to", string(to)).Msg("flow transition")
	s.state = to
}

func (s *HandoffService) setViewLocked(v models.View) {
	s.view = v
	if s.presenter != nil {
		s.presenter.Render(v)
	}
}

func (s *HandoffService) snapshotLocked() models.FlowSnapshot {
	return models.FlowSnapshot{
		FlowID:     s.flowID,
		Generation: s.generation,
		State:      s.state,
		View:       s.view,
	}
}

func submitFailureMessage(err error) string {
	if errors.Is(err, status.ErrService) {
		return MsgNoPaymentURL
	}
	return MsgSubmitFailed
}

func validationMessage(err error) string {
	var fieldErr *donation.FieldError
	if errors.As(err, &fieldErr) {
		return fieldErr.Message
	}
	return donation.MsgMissingFields
}
