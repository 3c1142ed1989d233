package enrichment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/AniketPatel148/CivicLens/llm"
	"github.com/AniketPatel148/CivicLens/metrics"
	"github.com/AniketPatel148/CivicLens/models"
	"github.com/AniketPatel148/CivicLens/parser"
)

const (
	ModeBackground = "background"
	ModeSequential = "sequential"

	SourceFallback = "Fallback"

	DefaultTimeout = 30 * time.Second
)

var errEmptyResult = errors.New("provider returned no result")

// Options configures an Orchestrator.
type Options struct {
	Mode    string
	Timeout time.Duration
}

// Orchestrator turns a submitted image and description into a complete
// enrichment record. Enrich never fails: provider errors, timeouts and
// panics all produce a fallback record with the matching failure flag.
type Orchestrator struct {
	classifier llm.Classifier
	enricher   llm.Enricher
	mode       string
	timeout    time.Duration

	wg sync.WaitGroup
}

// New creates an orchestrator. Either provider may be nil, which is
// handled like an unconfigured provider.
func New(classifier llm.Classifier, enricher llm.Enricher, opts Options) *Orchestrator {
	if opts.Mode != ModeSequential {
		opts.Mode = ModeBackground
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Orchestrator{
		classifier: classifier,
		enricher:   enricher,
		mode:       opts.Mode,
		timeout:    opts.Timeout,
	}
}

func (o *Orchestrator) Mode() string {
	return o.mode
}

// Fallback returns the deterministic record used when the enricher fails.
func Fallback() models.EnrichmentRecord {
	return models.EnrichmentRecord{
		IssueType:        models.IssueTypeOther,
		Confidence:       0,
		Summary:          parser.FallbackSummary,
		Severity:         parser.DefaultSeverity,
		Department:       models.DepartmentGeneral,
		Reason:           parser.FallbackReason,
		EnrichmentFailed: true,
		Source:           SourceFallback,
	}
}

// Enrich runs the configured pipeline and returns the record to persist.
func (o *Orchestrator) Enrich(ctx context.Context, img llm.Image, description string) models.EnrichmentRecord {
	if o.mode == ModeSequential {
		return o.enrichSequential(ctx, img, description)
	}

	o.classifyInBackground(img)

	result, err := o.callEnricher(ctx, img, description, "")
	if err != nil {
		return Fallback()
	}
	return fromEnrichment(result, o.enricher.SourceName())
}

func (o *Orchestrator) enrichSequential(ctx context.Context, img llm.Image, description string) models.EnrichmentRecord {
	classification, classifyErr := o.callClassifier(ctx, img)
	if classifyErr != nil {
		metrics.FallbackTotal.WithLabelValues(metrics.RoleClassifier).Inc()
	}

	var hint models.IssueType
	if classification != nil {
		hint = classification.IssueType
	}

	result, err := o.callEnricher(ctx, img, description, hint)
	if err == nil {
		record := fromEnrichment(result, o.enricher.SourceName())
		record.ClassificationFailed = classifyErr != nil
		return record
	}

	record := Fallback()
	if classification != nil {
		record.IssueType = classification.IssueType
		record.Confidence = classification.Confidence
		record.Source = o.classifier.SourceName()
	} else {
		record.ClassificationFailed = true
	}
	return record
}

// Wait blocks until every detached classifier call has returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// classifyInBackground starts a classifier call that outlives the request.
// Its outcome is only logged and counted.
func (o *Orchestrator) classifyInBackground(img llm.Image) {
	if o.classifier == nil {
		return
	}

	o.wg.Add(1)
	metrics.BackgroundInFlight.Inc()
	go func() {
		defer o.wg.Done()
		defer metrics.BackgroundInFlight.Dec()

		result, err := o.callClassifier(context.Background(), img)
		if err != nil {
			return
		}
		log.WithFields(log.Fields{
			"provider":   o.classifier.SourceName(),
			"issueType":  result.IssueType,
			"confidence": result.Confidence,
		}).Info("background classification")
	}()
}

func (o *Orchestrator) callClassifier(ctx context.Context, img llm.Image) (result *parser.Classification, err error) {
	if o.classifier == nil {
		return nil, &models.ProviderError{Provider: metrics.RoleClassifier, Err: llm.ErrNotConfigured}
	}
	name := o.classifier.SourceName()

	err = o.guard(ctx, name, metrics.RoleClassifier, func(ctx context.Context) error {
		var callErr error
		result, callErr = o.classifier.Classify(ctx, img)
		if callErr == nil && result == nil {
			callErr = errEmptyResult
		}
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) callEnricher(ctx context.Context, img llm.Image, description string, hint models.IssueType) (result *parser.Enrichment, err error) {
	if o.enricher == nil {
		metrics.FallbackTotal.WithLabelValues(metrics.RoleEnricher).Inc()
		log.Warn("enricher not configured, using fallback")
		return nil, &models.ProviderError{Provider: metrics.RoleEnricher, Err: llm.ErrNotConfigured}
	}
	name := o.enricher.SourceName()

	err = o.guard(ctx, name, metrics.RoleEnricher, func(ctx context.Context) error {
		var callErr error
		result, callErr = o.enricher.Enrich(ctx, img, description, hint)
		if callErr == nil && result == nil {
			callErr = errEmptyResult
		}
		return callErr
	})
	if err != nil {
		metrics.FallbackTotal.WithLabelValues(metrics.RoleEnricher).Inc()
		return nil, err
	}
	return result, nil
}

// guard runs one provider call under the configured timeout, converts a
// panic into an error and records the outcome.
func (o *Orchestrator) guard(ctx context.Context, provider, role string, call func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}

		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultError
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				result = metrics.ResultTimeout
			}
			err = &models.ProviderError{Provider: provider, Err: err}
			log.WithFields(log.Fields{
				"provider": provider,
				"role":     role,
				"result":   result,
			}).WithError(err).Warn("provider call failed")
		}
		metrics.ObserveProviderCall(provider, role, result, time.Since(start))
	}()

	return call(ctx)
}

func fromEnrichment(e *parser.Enrichment, source string) models.EnrichmentRecord {
	return models.EnrichmentRecord{
		IssueType:  e.IssueType,
		Confidence: e.Confidence,
		Summary:    e.Summary,
		Severity:   e.Severity,
		Department: e.Department,
		Reason:     e.Reason,
		Source:     source,
	}
}
