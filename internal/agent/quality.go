package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
	"k8s.io/utils/ptr"

	"agilemeter.shikanime.studio/internal/agent/openai"
	"agilemeter.shikanime.studio/internal/config"
)

const (
	DefaultBatchSize = 10
	maxTextRunes     = 2000
)

const systemPrompt = `You review software contributions for an agile maturity assessment.
You receive a JSON object mapping ids to texts. Reply with a single JSON object mapping every id
to a quality score between 0 and 1, or null when the text cannot be judged. Reply with JSON only.`

var rubrics = map[Category]string{
	CategoryCommit: "Texts are commit messages. Reward a concise imperative subject, a body explaining the intent of the change, and references to issues.",
	CategoryIssue:  "Texts are issues. Reward a clear problem statement, reproduction steps or acceptance criteria, and a scope small enough for one iteration.",
	CategoryReview: "Texts are code review comments. Reward specific, actionable and respectful feedback that explains its reasoning.",
}

var categories = []Category{CategoryCommit, CategoryIssue, CategoryReview}

// Quality rates contribution texts with an OpenAI-compatible chat model.
type Quality struct {
	c     *sdk.Client
	model string
	l     *rate.Limiter
	batch int
}

type QualityOptions struct {
	limiter   *rate.Limiter
	batchSize int
}

type QualityOption func(*QualityOptions)

func WithLimiter(l *rate.Limiter) QualityOption { return func(o *QualityOptions) { o.limiter = l } }

func WithBatchSize(n int) QualityOption { return func(o *QualityOptions) { o.batchSize = n } }

// NewQualityForConfig returns the oracle configured by cfg, or Disabled when AI scoring is off.
func NewQualityForConfig(cfg *config.Config, opts ...QualityOption) QualityOracle {
	if cfg.GetDisableAI() {
		slog.Info("Quality oracle disabled")
		return Disabled{}
	}
	opts = append([]QualityOption{WithLimiter(openai.NewOracleLimiterForConfig(cfg))}, opts...)
	return NewQualityWithOpenAI(cfg, openai.NewClientForConfig(cfg), opts...)
}

// NewQualityWithOpenAI constructs Quality by using the provided OpenAI client.
func NewQualityWithOpenAI(cfg *config.Config, c *sdk.Client, opts ...QualityOption) *Quality {
	o := QualityOptions{batchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize <= 0 || o.batchSize > DefaultBatchSize {
		o.batchSize = DefaultBatchSize
	}
	q := &Quality{c: c, model: cfg.GetOracleModel(), l: o.limiter, batch: o.batchSize}
	slog.Debug("Quality oracle configured", "model", q.model, "limiter", q.l != nil, "batch", q.batch)
	return q
}

func (q *Quality) Enabled() bool { return true }

// Assess rates artifacts per category in batches. A failed batch leaves its
// artifacts unscored and the failure is reported as ErrOracleUnavailable.
func (q *Quality) Assess(ctx context.Context, artifacts []Artifact) (map[string]Assessment, error) {
	tracer := otel.Tracer("agilemeter/agent")
	ctx, span := tracer.Start(ctx, "Oracle.Assess")
	span.SetAttributes(attribute.Int("artifacts", len(artifacts)))
	defer span.End()

	out := unscored(artifacts)
	groups := make(map[Category][]Artifact)
	for _, a := range artifacts {
		if Assessable(a.Text) {
			groups[a.Category] = append(groups[a.Category], a)
		}
	}

	var errs []error
	scored := 0
assess:
	for _, cat := range categories {
		items := groups[cat]
		for start := 0; start < len(items); start += q.batch {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				break assess
			}
			batch := items[start:min(start+q.batch, len(items))]
			scores, err := q.assessBatch(ctx, cat, batch)
			if err != nil {
				slog.WarnContext(ctx, "Quality assessment failed", "kind", cat, "artifacts", len(batch), "error", err)
				errs = append(errs, err)
				continue
			}
			for id, s := range scores {
				out[id] = Assessment{Score: s, Scored: true}
				scored++
			}
		}
	}
	span.SetAttributes(attribute.Int("scored", scored))

	if len(errs) > 0 {
		err := fmt.Errorf("%w: %w", ErrOracleUnavailable, errors.Join(errs...))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}
	return out, nil
}

func (q *Quality) assessBatch(ctx context.Context, cat Category, batch []Artifact) (map[string]float64, error) {
	payload := "{}"
	ids := make(map[string]string, len(batch))
	for i, a := range batch {
		key := "a" + strconv.Itoa(i+1)
		ids[key] = a.ID
		var err error
		if payload, err = sjson.Set(payload, key, truncate(strings.TrimSpace(a.Text), maxTextRunes)); err != nil {
			return nil, err
		}
	}

	if q.l != nil {
		if err := q.l.Wait(ctx); err != nil {
			return nil, err
		}
	}
	slog.DebugContext(ctx, "Quality request", "kind", cat, "model", q.model, "artifacts", len(batch))
	res, err := q.c.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Model: shared.ChatModel(q.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(systemPrompt),
			sdk.UserMessage(rubrics[cat] + "\n\n" + payload),
		},
		Temperature:         sdk.Float(0),
		MaxCompletionTokens: sdk.Int(int64(24*len(batch) + 64)),
		ResponseFormat: sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: ptr.To(shared.NewResponseFormatJSONObjectParam()),
		},
	})
	if err != nil {
		return nil, err
	}
	if len(res.Choices) == 0 {
		return nil, errors.New("empty completion")
	}

	local, err := ParseScores(res.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(local))
	for key, s := range local {
		if id, ok := ids[key]; ok {
			out[id] = s
		}
	}
	slog.DebugContext(ctx, "Quality response", "kind", cat, "scored", len(out))
	return out, nil
}

// ParseScores extracts id to score pairs from a model reply. The first JSON
// object found in reply is used; null, non-numeric and non-finite values are
// skipped and numbers are clamped to [0,1].
func ParseScores(reply string) (map[string]float64, error) {
	start, end := strings.Index(reply, "{"), strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object in reply %q", truncate(reply, 80))
	}
	obj := reply[start : end+1]
	if !gjson.Valid(obj) {
		return nil, fmt.Errorf("malformed JSON object in reply %q", truncate(obj, 80))
	}

	out := make(map[string]float64)
	gjson.Parse(obj).ForEach(func(key, value gjson.Result) bool {
		var v float64
		switch value.Type {
		case gjson.Number:
			v = value.Num
		case gjson.String:
			f, err := strconv.ParseFloat(strings.TrimSpace(value.Str), 64)
			if err != nil {
				return true
			}
			v = f
		default:
			return true
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return true
		}
		out[key.String()] = min(1, max(0, v))
		return true
	})
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
