package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/acra-collector/internal/logging"
	"github.com/JakeFAU/acra-collector/internal/metrics"
	"github.com/JakeFAU/acra-collector/internal/notify"
	"github.com/JakeFAU/acra-collector/internal/report"
)

const tracerName = "github.com/JakeFAU/acra-collector/internal/ingest"

// PipelineConfig carries the notification addresses.
type PipelineConfig struct {
	EmailFrom string
	EmailTo   string
}

// Pipeline persists, parses and forwards one crash report per call.
type Pipeline struct {
	cfg    PipelineConfig
	log    Persister
	sender Sender
	hasher Hasher
	clock  Clock
	tracer trace.Tracer
	logger *zap.Logger
}

// NewPipeline constructs a Pipeline.
func NewPipeline(
	cfg PipelineConfig,
	log Persister,
	sender Sender,
	hasher Hasher,
	clock Clock,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:    cfg,
		log:    log,
		sender: sender,
		hasher: hasher,
		clock:  clock,
		tracer: otel.Tracer(tracerName),
		logger: logger,
	}
}

// Process runs receive → persist → parse → compose → deliver over body and
// stops at the first failure, returning a *StageError. Nothing is retried
// and a persisted payload stays persisted whatever happens afterwards.
func (p *Pipeline) Process(ctx context.Context, body io.Reader) (err error) {
	start := p.clock.Now()
	ctx, span := p.tracer.Start(ctx, "ingest.process")
	logger := p.logger.With(logging.RequestField(ctx))
	defer func() {
		outcome := metrics.OutcomeAccepted
		if err != nil {
			outcome = string(StageOf(err))
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.ObserveReport(outcome)
		span.SetAttributes(attribute.String("acra.outcome", outcome))
		span.End()
	}()

	logger.Info("incoming report")

	var payload []byte
	if err := p.runStage(ctx, StageReceive, func(context.Context) error {
		var readErr error
		payload, readErr = io.ReadAll(body)
		if readErr != nil {
			return fmt.Errorf("read body: %w", readErr)
		}
		if !utf8.Valid(payload) {
			return ErrNotText
		}
		return nil
	}); err != nil {
		logger.Error("ingestion failed: unreadable payload", zap.Error(err))
		return err
	}

	logger = logger.With(zap.String("payload_sha256", p.digest(payload)))

	if err := p.runStage(ctx, StagePersist, func(ctx context.Context) error {
		return p.log.Append(ctx, payload)
	}); err != nil {
		logger.Error("could not write crash to log", zap.Error(err))
		return err
	}
	logger.Info("saved to crash log", zap.Int("bytes", len(payload)))

	var r report.Report
	if err := p.runStage(ctx, StageParse, func(context.Context) error {
		var parseErr error
		r, parseErr = report.Parse(payload)
		return parseErr
	}); err != nil {
		logger.Error("could not parse report; payload is logged but no notification will be sent",
			zap.Error(err))
		return err
	}
	logger = logger.With(zap.String("report_id", r.ReportID))
	span.SetAttributes(
		attribute.String("acra.report_id", r.ReportID),
		attribute.String("acra.package_name", r.PackageName),
	)
	logger.Info("parsed report")

	msg := notify.Compose(r, p.cfg.EmailFrom, p.cfg.EmailTo)

	sendStart := p.clock.Now()
	if err := p.runStage(ctx, StageDeliver, func(ctx context.Context) error {
		sendErr := p.sender.Send(ctx, msg)
		metrics.ObserveMailDelivery(sendErr, p.clock.Now().Sub(sendStart))
		if errors.Is(sendErr, notify.ErrInvalidMessage) {
			return &StageError{Stage: StageCompose, Err: sendErr}
		}
		return sendErr
	}); err != nil {
		logger.Error("could not send report email; report is logged but not notified",
			zap.String("stage", string(StageOf(err))),
			zap.Error(err),
		)
		return err
	}

	logger.Info("sent report email", zap.Duration("duration", p.clock.Now().Sub(start)))
	return nil
}

// runStage executes fn inside a child span and tags any failure with stage,
// unless fn already returned a *StageError.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "ingest."+string(stage))
	defer span.End()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

func (p *Pipeline) digest(payload []byte) string {
	if p.hasher == nil {
		return ""
	}
	sum, err := p.hasher.Hash(payload)
	if err != nil {
		return ""
	}
	return sum
}
