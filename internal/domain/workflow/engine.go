// Package workflow moves patients through the blood-test process states.
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/domain/patient"
	"github.com/bloodlink/bloodlink/internal/domain/process"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/internal/platform/events"
	"github.com/bloodlink/bloodlink/internal/platform/telemetry"
	"github.com/bloodlink/bloodlink/internal/platform/websocket"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

// EventProcessChanged is pushed to websocket subscribers of the patients topic.
const EventProcessChanged = "process.changed"

// Notifier tells responsible staff about a new state.
type Notifier interface {
	Dispatch(ctx context.Context, hn, state, displayName string) (int, error)
}

// ListInvalidator drops cached patient listings.
type ListInvalidator interface {
	InvalidateList(ctx context.Context)
}

type Options struct {
	Note            string     `json:"note"`
	AppointmentDate *time.Time `json:"appointment_date"`
	AppointmentTime string     `json:"appointment_time"`
	ExpectedVersion *int       `json:"expected_version"`
}

// Deps collects the Engine's collaborators. Only the repositories and Tx
// are required; the rest default to no-ops.
type Deps struct {
	Tx        db.TxRunner
	Patients  patient.Repository
	LabTests  patient.LabTestRepository
	Events    patient.EventRepository
	Policy    *TransitionPolicy
	Notifier  Notifier
	Publisher events.Publisher
	Push      websocket.EventPublisher
	Cache     ListInvalidator
	Metrics   *telemetry.TelemetryProvider
	Logger    zerolog.Logger
}

type Engine struct {
	tx        db.TxRunner
	patients  patient.Repository
	labs      patient.LabTestRepository
	events    patient.EventRepository
	policy    *TransitionPolicy
	notifier  Notifier
	publisher events.Publisher
	push      websocket.EventPublisher
	cache     ListInvalidator
	metrics   *telemetry.TelemetryProvider
	logger    zerolog.Logger
}

func NewEngine(d Deps) *Engine {
	e := &Engine{
		tx:        d.Tx,
		patients:  d.Patients,
		labs:      d.LabTests,
		events:    d.Events,
		policy:    d.Policy,
		notifier:  d.Notifier,
		publisher: d.Publisher,
		push:      d.Push,
		cache:     d.Cache,
		metrics:   d.Metrics,
		logger:    d.Logger.With().Str("component", "workflow").Logger(),
	}
	if e.policy == nil {
		e.policy = Permissive()
	}
	if e.publisher == nil {
		e.publisher = events.NopPublisher{}
	}
	if e.push == nil {
		e.push = websocket.NopPublisher{}
	}
	return e
}

func (e *Engine) Policy() *TransitionPolicy {
	return e.policy
}

// committed carries what the post-commit side effects need.
type committed struct {
	patient *patient.Patient
	from    process.Process
	labTest *patient.LabTest
}

// Transition moves a patient to target. The row lock, version check and
// all writes share one transaction; notifications and event publishing run
// after commit and never fail the call.
func (e *Engine) Transition(ctx context.Context, hn, target string, actor access.Actor, opts Options) (*patient.Patient, error) {
	if !access.CanUpdateStatus(actor.Role) {
		e.metrics.RecordTransition(metricState(target), telemetry.ResultForbidden)
		return nil, apperr.Forbidden("update_status_denied", "role %q cannot update process status", actor.Role)
	}
	to, err := process.Parse(target)
	if err != nil {
		e.metrics.RecordTransition("unknown", telemetry.ResultInvalid)
		return nil, err
	}
	hn = strings.TrimSpace(hn)
	if err := patient.ValidateHN(hn); err != nil {
		e.metrics.RecordTransition(string(to), telemetry.ResultInvalid)
		return nil, err
	}

	var res committed
	err = e.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := e.patients.GetForUpdate(ctx, hn)
		if err != nil {
			return err
		}
		if opts.ExpectedVersion != nil && *opts.ExpectedVersion != p.Version {
			return apperr.Conflict("version_mismatch",
				"patient %s is at version %d, expected %d", hn, p.Version, *opts.ExpectedVersion)
		}
		if !e.policy.Allowed(p.Process, to) {
			return apperr.InvalidState("transition_not_allowed",
				"cannot move from %q to %q under %s policy", p.Process, to, e.policy.Name())
		}

		res.from = p.Process
		p.Process = to
		p.Version++
		p.UpdatedAt = time.Now().UTC()
		if to == process.Scheduled {
			if opts.AppointmentDate != nil {
				p.AppointmentDate = opts.AppointmentDate
			}
			if opts.AppointmentTime != "" {
				p.AppointmentTime = opts.AppointmentTime
			}
		}
		if err := e.patients.SetProcess(ctx, p); err != nil {
			return err
		}

		if to == process.Completed {
			t := &patient.LabTest{HN: hn, Note: opts.Note, RecordedBy: actor.Email}
			if err := e.labs.Append(ctx, t); err != nil {
				return err
			}
			res.labTest = t
		}

		if err := e.events.Append(ctx, &patient.Event{
			HN:         hn,
			From:       res.from,
			To:         to,
			ActorEmail: actor.Email,
			Note:       opts.Note,
		}); err != nil {
			return err
		}
		res.patient = p
		return nil
	})
	if err != nil {
		e.metrics.RecordTransition(string(to), resultFor(err))
		return nil, err
	}

	e.metrics.RecordTransition(string(to), telemetry.ResultOK)
	e.afterCommit(ctx, res, actor)
	return res.patient, nil
}

func (e *Engine) afterCommit(ctx context.Context, res committed, actor access.Actor) {
	p := res.patient
	log := e.logger.With().Str("hn", p.HN).Str("from", string(res.from)).Str("to", string(p.Process)).Logger()

	if e.cache != nil {
		e.cache.InvalidateList(ctx)
	}

	if e.notifier != nil {
		sent, err := e.notifier.Dispatch(ctx, p.HN, string(p.Process), p.DisplayName())
		if err != nil {
			log.Error().Err(err).Msg("status notification failed")
		} else {
			log.Debug().Int("sent", sent).Msg("status notifications sent")
		}
	}

	ev := events.Transitioned{
		Type:       events.TypeTransitioned,
		HN:         p.HN,
		From:       string(res.from),
		To:         string(p.Process),
		Actor:      actor.Email,
		Version:    p.Version,
		OccurredAt: p.UpdatedAt,
	}
	if res.labTest != nil {
		ev.LabTestID = res.labTest.ID.String()
	}
	if err := e.publisher.PublishTransition(ctx, ev); err != nil {
		log.Error().Err(err).Msg("publish transition event failed")
	}

	wsEvent, err := websocket.NewEvent(websocket.PatientsTopic, EventProcessChanged, p.HN, ev)
	if err == nil {
		err = e.push.Publish(ctx, wsEvent)
	}
	if err != nil {
		log.Warn().Err(err).Msg("push transition to websocket failed")
	}

	log.Info().Str("actor", actor.Email).Int("version", p.Version).Msg("process transitioned")
}

// metricState keeps free-form input out of metric labels.
func metricState(raw string) string {
	if p, err := process.Parse(raw); err == nil {
		return string(p)
	}
	return "unknown"
}

func resultFor(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindForbidden:
		return telemetry.ResultForbidden
	case apperr.KindInvalidState, apperr.KindNotFound:
		return telemetry.ResultInvalid
	case apperr.KindConflict:
		return telemetry.ResultConflict
	default:
		return telemetry.ResultError
	}
}
