// Package gate composes rate limiting, authorization and auditing around
// every protected operation. One call through the gate produces exactly one
// audit entry, whatever happens.
package gate

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medgate/internal/access"
	auditmodels "medgate/internal/audit/models"
	id "medgate/pkg/domain"
	dErrors "medgate/pkg/domainerrors"
)

// Request identifies one protected attempt.
type Request struct {
	Actor    id.Principal
	Patient  id.Principal
	RecordID *id.RecordID
	Action   auditmodels.Action
}

// Operation is the guarded work. It only runs once the attempt has been
// admitted and authorized.
type Operation func(ctx context.Context) error

// RateLimiter admits or denies one attempt; denial carries
// CodeRateLimitExceeded.
type RateLimiter interface {
	CheckAndIncrement(ctx context.Context, principal id.Principal, operation string) error
}

// AdminChecker answers whether a principal holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, principal id.Principal) (bool, error)
}

// AccessChecker returns the actor's current grant level on the patient's
// records.
type AccessChecker interface {
	Check(ctx context.Context, patient, grantee id.Principal) (access.Level, error)
}

// EmergencyChecker reports whether the actor holds a usable emergency grant.
type EmergencyChecker interface {
	HasActiveGrant(ctx context.Context, patient, requester id.Principal) (bool, error)
}

// RecordChecker reports whether the subject record exists.
type RecordChecker interface {
	Exists(ctx context.Context, recordID id.RecordID) (bool, error)
}

// AuditAppender writes the attempt's single audit entry.
type AuditAppender interface {
	Append(ctx context.Context, entry auditmodels.Entry) (auditmodels.Entry, error)
}

type Gate struct {
	limiter   RateLimiter
	admin     AdminChecker
	grants    AccessChecker
	emergency EmergencyChecker
	records   RecordChecker
	auditor   AuditAppender
	logger    *slog.Logger
	tracer    trace.Tracer
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func New(limiter RateLimiter, admin AdminChecker, grants AccessChecker, emergency EmergencyChecker, records RecordChecker, auditor AuditAppender, opts ...Option) (*Gate, error) {
	if limiter == nil || admin == nil || grants == nil || emergency == nil || auditor == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "gate requires limiter, admin, access, emergency and audit dependencies")
	}
	g := &Gate{
		limiter:   limiter,
		admin:     admin,
		grants:    grants,
		emergency: emergency,
		records:   records,
		auditor:   auditor,
		logger:    slog.Default(),
		tracer:    otel.Tracer("medgate/gate"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// requiredLevel maps an audit action to the grant level an ordinary grant
// must carry for it.
func requiredLevel(action auditmodels.Action) access.Level {
	switch action {
	case auditmodels.ActionRead, auditmodels.ActionQuery:
		return access.LevelRead
	case auditmodels.ActionWrite, auditmodels.ActionGrantAccess, auditmodels.ActionRevokeAccess:
		return access.LevelWrite
	default:
		return access.LevelFull
	}
}

// Protected runs op under the full pipeline: rate limit first, then
// authorization, then the operation, and finally the one audit entry
// describing how the attempt ended. A denied attempt still consumed its
// slot in the rate window; a failed operation does not give it back.
func (g *Gate) Protected(ctx context.Context, req Request, operation string, op Operation) error {
	ctx, span := g.tracer.Start(ctx, "gate.Protected",
		trace.WithAttributes(
			attribute.String("gate.operation", operation),
			attribute.String("gate.action", req.Action.String()),
		),
	)
	defer span.End()

	if req.Actor.IsZero() || req.Patient.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "protected call requires an actor and a patient")
	}
	if !req.Action.IsValid() {
		return dErrors.Newf(dErrors.CodeInvalidInput, "invalid audit action %q", req.Action)
	}

	if err := g.limiter.CheckAndIncrement(ctx, req.Actor, operation); err != nil {
		if dErrors.Is(err, dErrors.CodeRateLimitExceeded) {
			g.append(ctx, req, auditmodels.ResultDenied, "rate limit exceeded")
			span.SetAttributes(attribute.String("gate.outcome", "rate_limited"))
			return err
		}
		g.append(ctx, req, auditmodels.ResultFailure, "rate limiter unavailable")
		return err
	}

	authorized, err := g.authorize(ctx, req)
	if err != nil {
		g.append(ctx, req, auditmodels.ResultFailure, "authorization check failed")
		return err
	}
	if !authorized {
		g.append(ctx, req, auditmodels.ResultDenied, "not authorized")
		span.SetAttributes(attribute.String("gate.outcome", "denied"))
		return dErrors.Newf(dErrors.CodeUnauthorized, "%s is not authorized to %s records of %s",
			req.Actor, req.Action, req.Patient)
	}

	if req.RecordID != nil && g.records != nil {
		exists, err := g.records.Exists(ctx, *req.RecordID)
		if err != nil {
			g.append(ctx, req, auditmodels.ResultFailure, "record lookup failed")
			return err
		}
		if !exists {
			g.append(ctx, req, auditmodels.ResultNotFound, "record not found")
			span.SetAttributes(attribute.String("gate.outcome", "not_found"))
			return dErrors.Newf(dErrors.CodeNotFound, "record %d not found", *req.RecordID)
		}
	}

	if err := op(ctx); err != nil {
		if dErrors.Is(err, dErrors.CodeNotFound) {
			g.append(ctx, req, auditmodels.ResultNotFound, err.Error())
		} else {
			g.append(ctx, req, auditmodels.ResultFailure, err.Error())
		}
		span.SetAttributes(attribute.String("gate.outcome", "failure"))
		return err
	}

	g.append(ctx, req, auditmodels.ResultSuccess, "")
	span.SetAttributes(attribute.String("gate.outcome", "success"))
	return nil
}

// authorize admits the actor if they are the patient, an admin, hold an
// ordinary grant at a sufficient level, or hold an active emergency grant.
func (g *Gate) authorize(ctx context.Context, req Request) (bool, error) {
	if req.Actor == req.Patient {
		return true, nil
	}

	isAdmin, err := g.admin.IsAdmin(ctx, req.Actor)
	if err != nil {
		return false, err
	}
	if isAdmin {
		return true, nil
	}

	level, err := g.grants.Check(ctx, req.Patient, req.Actor)
	if err != nil {
		return false, err
	}
	if level.Covers(requiredLevel(req.Action)) {
		return true, nil
	}

	return g.emergency.HasActiveGrant(ctx, req.Patient, req.Actor)
}

// append writes the attempt's single audit entry. An audit storage failure
// is logged loudly but does not change the attempt's outcome.
func (g *Gate) append(ctx context.Context, req Request, result auditmodels.Result, reason string) {
	entry := auditmodels.Entry{
		Actor:    req.Actor,
		Patient:  req.Patient,
		RecordID: req.RecordID,
		Action:   req.Action,
		Result:   result,
		Reason:   reason,
	}
	if _, err := g.auditor.Append(ctx, entry); err != nil {
		g.logger.ErrorContext(ctx, "gate audit append failed",
			"actor", req.Actor,
			"action", req.Action,
			"result", result,
			"error", err,
		)
	}
}
