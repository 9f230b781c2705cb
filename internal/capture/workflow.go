// Package capture orchestrates one daily DTF capture: fetch, persist, send,
// with the processing state advanced at every step.
package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dtfcapture/internal/artifact"
	"dtfcapture/internal/downstream"
	"dtfcapture/internal/flow"
	"dtfcapture/internal/logger"
	"dtfcapture/internal/notification"
	"dtfcapture/internal/prices"
	"dtfcapture/internal/series"
	"dtfcapture/internal/state"
	pkgerrors "dtfcapture/pkg/errors"
	"dtfcapture/pkg/metrics"
	"dtfcapture/pkg/tracing"
)

const (
	modeProcess   = "process"
	modeReprocess = "reprocess"
)

type Source interface {
	StreamDaily(ctx context.Context, start, end *time.Time, fn func(series.Observation) error) error
}

type Persister interface {
	Persist(ctx context.Context, flowID uuid.UUID, payloads []prices.Payload) error
}

type PayloadReader interface {
	GetPayloadsByFlowID(ctx context.Context, flowID uuid.UUID) ([]prices.Payload, error)
}

type Dependencies struct {
	Source    Source
	Persister Persister
	Prices    PayloadReader
	States    state.Repository
	Artifacts artifact.Store
	Uploader  artifact.Uploader
	Sender    downstream.Sender
	Notifier  notification.Notifier
	Logger    logger.Logger
}

type Workflow struct {
	source    Source
	persister Persister
	prices    PayloadReader
	states    state.Repository
	artifacts artifact.Store
	uploader  artifact.Uploader
	sender    downstream.Sender
	notifier  notification.Notifier
	logger    logger.Logger
}

func NewWorkflow(deps Dependencies) *Workflow {
	return &Workflow{
		source:    deps.Source,
		persister: deps.Persister,
		prices:    deps.Prices,
		states:    deps.States,
		artifacts: deps.Artifacts,
		uploader:  deps.Uploader,
		sender:    deps.Sender,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
	}
}

// Process runs the flow unless the latest flow of the same capture date is
// already complete, in which case nothing is fetched, persisted or sent.
func (w *Workflow) Process(ctx context.Context, fc flow.Context) (err error) {
	started := time.Now()
	ctx = flow.Attach(ctx, fc)
	ctx, span := tracing.StartSpan(ctx, "capture.Process")
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	w.logger.InfowCtx(ctx, "Starting daily capture", "method", "capture.Process")

	last, err := w.states.GetLastByCaptureDate(ctx, fc.CaptureDate)
	if err != nil && !pkgerrors.IsNotFound(err) {
		return fmt.Errorf("failed to read processing state: %w", err)
	}
	if last.IsComplete() {
		w.logger.InfowCtx(ctx, "Capture already sent, skipping",
			"method", "capture.Process", "detail", "completed_flow_id="+last.FlowID.String())
		metrics.ObserveFlow(modeProcess, "skipped", time.Since(started))
		return nil
	}

	err = w.execute(ctx, fc, false)
	metrics.ObserveFlow(modeProcess, outcome(err), time.Since(started))
	return err
}

// Reprocess replays a flow identified by flow id, capture date or both. It
// never skips a complete flow, and reuses the flow's artifact or persisted
// payloads before falling back to the source.
func (w *Workflow) Reprocess(ctx context.Context, captureDate *time.Time, flowID *uuid.UUID) (flow.Context, error) {
	fc, err := w.Resolve(ctx, captureDate, flowID)
	if err != nil {
		return flow.Context{}, err
	}
	return fc, w.ReprocessFlow(ctx, fc)
}

// Resolve fills the missing identifier from the flow's state, or from the
// latest flow of the capture date. A new flow id is minted when the date has
// no flow yet.
func (w *Workflow) Resolve(ctx context.Context, captureDate *time.Time, flowID *uuid.UUID) (flow.Context, error) {
	if captureDate == nil && flowID == nil {
		return flow.Context{}, pkgerrors.ErrValidation.WithDetail("message", "capture date or flow id is required")
	}
	return w.resolve(ctx, captureDate, flowID)
}

// ReprocessFlow runs a resolved flow without duplicate-trigger suppression.
func (w *Workflow) ReprocessFlow(ctx context.Context, fc flow.Context) (err error) {
	started := time.Now()
	ctx = flow.Attach(ctx, fc)
	ctx, span := tracing.StartSpan(ctx, "capture.Reprocess")
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	w.logger.InfowCtx(ctx, "Starting reprocess", "method", "capture.Reprocess")

	err = w.execute(ctx, fc, true)
	metrics.ObserveFlow(modeReprocess, outcome(err), time.Since(started))
	return err
}

func (w *Workflow) resolve(ctx context.Context, captureDate *time.Time, flowID *uuid.UUID) (flow.Context, error) {
	var st *state.State
	var err error

	if flowID != nil {
		st, err = w.states.GetByFlowID(ctx, *flowID)
		if err != nil && !pkgerrors.IsNotFound(err) {
			return flow.Context{}, fmt.Errorf("failed to read processing state: %w", err)
		}
	}
	if st == nil && captureDate != nil {
		st, err = w.states.GetLastByCaptureDate(ctx, flow.Date(*captureDate))
		if err != nil && !pkgerrors.IsNotFound(err) {
			return flow.Context{}, fmt.Errorf("failed to read processing state: %w", err)
		}
	}

	var id uuid.UUID
	switch {
	case flowID != nil:
		id = *flowID
	case st != nil:
		id = st.FlowID
	default:
		id = uuid.New()
	}

	var date time.Time
	switch {
	case captureDate != nil:
		date = *captureDate
	case st != nil:
		date = st.CaptureDate
	default:
		return flow.Context{}, pkgerrors.ErrNotFound.
			WithDetail("flow_id", id.String()).
			WithDetail("message", "unknown flow, capture date is required")
	}

	return flow.New(id, date), nil
}

func (w *Workflow) execute(ctx context.Context, fc flow.Context, usePersisted bool) error {
	if err := w.states.CreateIfNotExists(ctx, fc.CaptureDate, fc.ID); err != nil {
		return fmt.Errorf("failed to create processing state: %w", err)
	}
	if err := w.states.UpdateStatus(ctx, fc.ID, state.StatusProcessing, nil); err != nil {
		return fmt.Errorf("failed to mark flow processing: %w", err)
	}

	if err := w.run(ctx, fc, usePersisted); err != nil {
		detail := err.Error()
		if stateErr := w.states.UpdateStatus(context.WithoutCancel(ctx), fc.ID, state.StatusFailed, &detail); stateErr != nil {
			w.logger.ErrorwCtx(ctx, "Failed to mark flow failed", "method", "capture.execute", "error", stateErr)
		}
		return err
	}
	return nil
}

func (w *Workflow) run(ctx context.Context, fc flow.Context, usePersisted bool) error {
	payloads, reused, err := w.loadPayloads(ctx, fc, usePersisted)
	if err != nil {
		return err
	}

	if len(payloads) == 0 {
		w.logger.InfowCtx(ctx, "No observations found", "method", "capture.run")
	}

	if reused {
		w.logger.InfowCtx(ctx, "Reprocessing with stored payloads", "method", "capture.run", "records", len(payloads))
	} else {
		if err := w.persister.Persist(ctx, fc.ID, payloads); err != nil {
			return err
		}
		w.logger.InfowCtx(ctx, "Persistence completed", "method", "capture.run", "records", len(payloads))
	}

	w.tryUpload(ctx, fc)

	if err := w.states.UpdateStatus(ctx, fc.ID, state.StatusPersisted, nil); err != nil {
		return fmt.Errorf("failed to mark flow persisted: %w", err)
	}

	sendID, err := w.sender.Send(ctx, fc, payloads)
	if err != nil {
		return err
	}
	if err := w.states.RecordDownstreamSend(ctx, fc.ID, sendID); err != nil {
		return fmt.Errorf("failed to record downstream send: %w", err)
	}
	if err := w.states.UpdateStatus(ctx, fc.ID, state.StatusSent, nil); err != nil {
		return fmt.Errorf("failed to mark flow sent: %w", err)
	}

	w.logger.InfowCtx(ctx, "Downstream send completed", "method", "capture.run", "send_id", sendID.String())
	return nil
}

// loadPayloads returns the flow's payloads and whether they were already
// stored, in which case they are not persisted again.
func (w *Workflow) loadPayloads(ctx context.Context, fc flow.Context, usePersisted bool) ([]prices.Payload, bool, error) {
	if !usePersisted {
		payloads, err := w.fetch(ctx, fc)
		return payloads, false, err
	}

	exists, err := w.artifacts.Exists(ctx, fc)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check artifact: %w", err)
	}
	if exists {
		var payloads []prices.Payload
		err := w.artifacts.Read(ctx, fc, func(o series.Observation) error {
			payloads = append(payloads, prices.NewPayload(o))
			return nil
		})
		if err != nil {
			return nil, false, fmt.Errorf("failed to read artifact: %w", err)
		}
		return payloads, true, nil
	}

	stored, err := w.prices.GetPayloadsByFlowID(ctx, fc.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load persisted payloads: %w", err)
	}
	if len(stored) > 0 {
		return stored, true, nil
	}

	payloads, err := w.fetch(ctx, fc)
	return payloads, false, err
}

// fetch streams the source into the artifact and derives payloads in the same
// pass. The artifact only becomes visible once the whole stream succeeded.
func (w *Workflow) fetch(ctx context.Context, fc flow.Context) ([]prices.Payload, error) {
	writer, err := w.artifacts.Create(ctx, fc)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact: %w", err)
	}

	end := fc.CaptureDate
	var payloads []prices.Payload
	err = w.source.StreamDaily(ctx, nil, &end, func(o series.Observation) error {
		if err := writer.Append(o); err != nil {
			return err
		}
		payloads = append(payloads, prices.NewPayload(o))
		return nil
	})
	if err != nil {
		if abortErr := writer.Abort(); abortErr != nil {
			w.logger.WarnwCtx(ctx, "Failed to discard partial artifact", "method", "capture.fetch", "error", abortErr)
		}
		return nil, err
	}
	if err := writer.Commit(); err != nil {
		return nil, err
	}

	metrics.AddObservationsFetched(len(payloads))
	w.logger.InfowCtx(ctx, "Artifact written", "method", "capture.fetch", "records", len(payloads))
	return payloads, nil
}

// tryUpload copies the artifact to external storage. Failures only warn.
func (w *Workflow) tryUpload(ctx context.Context, fc flow.Context) {
	if w.uploader == nil {
		return
	}

	exists, err := w.artifacts.Exists(ctx, fc)
	if err != nil || !exists {
		w.logger.WarnwCtx(ctx, "Artifact not found for upload", "method", "capture.tryUpload", "error", err)
		return
	}

	content, err := w.artifacts.Open(ctx, fc)
	if err != nil {
		w.logger.WarnwCtx(ctx, "Failed to open artifact for upload", "method", "capture.tryUpload", "error", err)
		return
	}
	defer content.Close()

	if err := w.uploader.Upload(ctx, fc, content); err != nil {
		w.logger.WarnwCtx(ctx, "Failed to upload artifact", "method", "capture.tryUpload", "error", err)
	}
}

// NotifyCritical reports a failure that stopped the capture service itself.
func (w *Workflow) NotifyCritical(ctx context.Context, fc flow.Context, cause error) {
	ctx = flow.Attach(ctx, fc)
	w.logger.ErrorwCtx(ctx, "Critical failure in daily capture", "method", "capture.NotifyCritical", "error", cause)
	if w.notifier == nil {
		return
	}
	if err := w.notifier.Error(ctx, notification.Critical(fc, cause.Error()), cause); err != nil {
		w.logger.ErrorwCtx(ctx, "Failed to send critical notification", "method", "capture.NotifyCritical", "error", err)
	}
}

func outcome(err error) string {
	if err != nil {
		return "failed"
	}
	return "sent"
}
