// Package extract turns search results into structured field values with a
// language model and attaches a per-field confidence.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
	"github.com/sells-group/enrich-cli/internal/resilience"
)

// Option configures an Engine.
type Option func(*Engine)

// WithScorer sets the confidence scorer. Default: SelfReported.
func WithScorer(s Scorer) Option {
	return func(e *Engine) { e.scorer = s }
}

// WithRetry sets the retry policy for model calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(e *Engine) { e.retry = cfg }
}

// WithTimeout bounds a single model call.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) { e.timeout = d }
}

// WithGeneration sets the completion budget and sampling temperature.
func WithGeneration(maxTokens int, temperature float64) Option {
	return func(e *Engine) {
		if maxTokens > 0 {
			e.maxTokens = maxTokens
		}
		e.temperature = temperature
	}
}

// WithContextLimits caps the characters taken from each result and from
// all results together. Zero means no cap.
func WithContextLimits(perResult, total int) Option {
	return func(e *Engine) {
		e.maxPerResult = perResult
		e.maxTotal = total
	}
}

// WithVerify enables a second model pass that checks extracted values
// against the sources.
func WithVerify(on bool) Option {
	return func(e *Engine) { e.verify = on }
}

// Engine is the extraction engine. It is safe for concurrent use.
type Engine struct {
	llm          LLM
	scorer       Scorer
	retry        resilience.RetryConfig
	timeout      time.Duration
	maxTokens    int
	temperature  float64
	maxPerResult int
	maxTotal     int
	verify       bool

	validators sync.Map // specKey -> *Validator
}

// New creates an Engine around llm.
func New(llm LLM, opts ...Option) *Engine {
	e := &Engine{
		llm:          llm,
		scorer:       SelfReported{},
		retry:        resilience.DefaultRetryConfig(),
		timeout:      60 * time.Second,
		maxTokens:    1000,
		temperature:  0.1,
		maxPerResult: 5000,
		maxTotal:     20000,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract asks the model for the fields of spec about rec, using the
// snippets of res as the only source. It never returns an error: failures
// are recorded on the outcome with their category.
func (e *Engine) Extract(ctx context.Context, rec model.EntityRecord, res *model.SearchResult, spec model.QuerySpec) model.ExtractionOutcome {
	out := model.NewOutcome(rec, spec.FieldNames())
	if res != nil {
		for _, s := range res.Snippets {
			if s.URL != "" {
				out.Sources = append(out.Sources, s.URL)
			}
		}
	}
	if res.Empty() {
		out.ErrorCategory = model.CategoryNoResults
		out.Error = "search returned no results"
		return out
	}

	validator := e.validatorFor(spec.Fields)
	contextText := buildContext(rec.Value, spec.Fields, res, e.maxPerResult, e.maxTotal)

	raw, err := e.complete(ctx, rec.Value, renderPrompt(rec.Value, spec, contextText))
	if err != nil {
		return failed(out, err)
	}
	out.RawResponse = raw

	result := Parse(raw, spec.Fields, validator)
	if u, ok := result.(Unparseable); ok {
		zap.L().Info("extract: unparseable response, asking again",
			zap.String("entity", rec.Value),
			zap.String("reason", u.Reason),
		)
		raw, err = e.complete(ctx, rec.Value, buildReformatPrompt(rec.Value, spec, contextText, u.Reason, u.Raw))
		if err != nil {
			return failed(out, err)
		}
		out.RawResponse = raw
		result = Parse(raw, spec.Fields, validator)
	}

	var parsed Parsed
	switch r := result.(type) {
	case Unparseable:
		return failed(out, &model.ExtractionError{Reason: r.Reason, Raw: r.Raw})
	case Parsed:
		parsed = r
	}

	if e.verify {
		parsed = e.verifyPass(ctx, rec, spec, parsed, contextText, validator)
	}

	evidence := strings.ToLower(contextText)
	for _, f := range spec.Fields {
		val := parsed.Fields[f.Name]
		if model.IsEmptyValue(val) {
			out.Fields[f.Name] = nil
			out.Confidence[f.Name] = 0
			continue
		}
		self, has := parsed.Confidence[f.Name]
		out.Fields[f.Name] = val
		out.Confidence[f.Name] = clamp(e.scorer.Score(ScoreInput{
			Field:           f.Name,
			Value:           val,
			SelfReported:    self,
			HasSelfReported: has,
			Evidence:        evidence,
		}))
	}
	out.ResolveStatus()
	return out
}

// verifyPass asks the model to check parsed against the sources. The
// original values are kept when the check fails or cannot be read.
func (e *Engine) verifyPass(ctx context.Context, rec model.EntityRecord, spec model.QuerySpec, parsed Parsed, contextText string, v *Validator) Parsed {
	doc := make(map[string]any, len(parsed.Fields)+1)
	for k, val := range parsed.Fields {
		doc[k] = val
	}
	doc[confidenceKey] = parsed.Confidence
	extracted, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return parsed
	}

	raw, err := e.complete(ctx, rec.Value, buildVerifyPrompt(rec.Value, spec, string(extracted), contextText))
	if err != nil {
		zap.L().Warn("extract: verification failed, keeping extracted values",
			zap.String("entity", rec.Value),
			zap.Error(err),
		)
		return parsed
	}
	verified, ok := Parse(raw, spec.Fields, v).(Parsed)
	if !ok {
		return parsed
	}
	return verified
}

// complete runs one prompt with retry. Errors that survive retries are
// returned as *model.LLMError.
func (e *Engine) complete(ctx context.Context, entity, prompt string) (string, error) {
	cfg := e.retry
	cfg.OnRetry = resilience.RetryLogger("llm", e.llm.Name(), zap.String("entity", entity))

	text, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		resp, err := e.llm.Complete(callCtx, Request{
			System:      systemPrompt,
			Prompt:      prompt,
			MaxTokens:   e.maxTokens,
			Temperature: e.temperature,
			Entity:      entity,
		})
		if err != nil {
			if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return "", resilience.NewTransientError(eris.Wrap(err, "llm: call timed out"), 0)
			}
			return "", err
		}
		if strings.TrimSpace(resp.Text) == "" {
			return "", resilience.NewTransientError(eris.New("llm: empty completion"), 0)
		}
		return resp.Text, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "llm: cancelled")
		}
		kind := model.CategoryTransient
		if resilience.Classify(err) == model.CategoryQuotaExceeded {
			kind = model.CategoryQuotaExceeded
		}
		return "", &model.LLMError{Kind: kind, Err: err}
	}
	return text, nil
}

func (e *Engine) validatorFor(fields []model.FieldSpec) *Validator {
	key := specKey(fields)
	if v, ok := e.validators.Load(key); ok {
		return v.(*Validator)
	}
	v, err := NewValidator(fields)
	if err != nil {
		zap.L().Warn("extract: schema unavailable, skipping validation", zap.Error(err))
		return nil
	}
	actual, _ := e.validators.LoadOrStore(key, v)
	return actual.(*Validator)
}

func failed(out model.ExtractionOutcome, err error) model.ExtractionOutcome {
	out.Status = model.StatusFailed
	out.ErrorCategory = model.CategoryOf(err)
	out.Error = err.Error()
	for k := range out.Fields {
		out.Fields[k] = nil
		out.Confidence[k] = 0
	}
	return out
}
