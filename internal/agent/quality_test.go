package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"agilemeter.shikanime.studio/internal/config"
)

const completion = `{"id":"chatcmpl-1","object":"chat.completion","created":0,"model":"test-model",` +
	`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":""}}]}`

// newOracleServer scores every text 0.8, answers null for texts mentioning
// "unjudgeable" and fails requests for the categories listed in failing.
func newOracleServer(t *testing.T, calls *atomic.Int32, failing ...Category) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "test-model", gjson.GetBytes(body, "model").String())
		assert.Equal(t, "json_object", gjson.GetBytes(body, "response_format.type").String())

		prompt := gjson.GetBytes(body, "messages.1.content").String()
		for _, cat := range failing {
			if strings.HasPrefix(prompt, rubrics[cat]) {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
		}
		_, payload, _ := strings.Cut(prompt, "\n\n")
		reply := "{}"
		gjson.Parse(payload).ForEach(func(key, value gjson.Result) bool {
			var v any = 0.8
			if strings.Contains(value.String(), "unjudgeable") {
				v = nil
			}
			reply, err = sjson.Set(reply, key.String(), v)
			require.NoError(t, err)
			return true
		})
		out, err := sjson.Set(completion, "choices.0.message.content", reply)
		require.NoError(t, err)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, out)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestQuality(t *testing.T, srv *httptest.Server) *Quality {
	t.Helper()
	cfg := config.New()
	cfg.Set("oracle_model", "test-model")
	c := sdk.NewClient(
		option.WithAPIKey("test"),
		option.WithBaseURL(srv.URL+"/v1/"),
		option.WithMaxRetries(0),
	)
	return NewQualityWithOpenAI(cfg, &c)
}

func TestAssess(t *testing.T) {
	var calls atomic.Int32
	q := newTestQuality(t, newOracleServer(t, &calls))
	require.True(t, q.Enabled())

	got, err := q.Assess(context.Background(), []Artifact{
		{ID: "c1", Category: CategoryCommit, Text: "feat: add login form with validation"},
		{ID: "c2", Category: CategoryCommit, Text: "some unjudgeable text"},
		{ID: "c3", Category: CategoryCommit, Text: "wip"},
		{ID: "i1", Category: CategoryIssue, Text: "Crash when saving an empty profile"},
		{ID: "r1", Category: CategoryReview, Text: "Could you extract this into a helper?"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]Assessment{
		"c1": {Score: 0.8, Scored: true},
		"c2": {},
		"c3": {},
		"i1": {Score: 0.8, Scored: true},
		"r1": {Score: 0.8, Scored: true},
	}, got)
	assert.EqualValues(t, 3, calls.Load())
}

func TestAssessBatches(t *testing.T) {
	var calls atomic.Int32
	q := newTestQuality(t, newOracleServer(t, &calls))

	var artifacts []Artifact
	for i := range 23 {
		artifacts = append(artifacts, Artifact{
			ID:       fmt.Sprintf("c%d", i),
			Category: CategoryCommit,
			Text:     fmt.Sprintf("fix: handle case number %d", i),
		})
	}
	got, err := q.Assess(context.Background(), artifacts)
	require.NoError(t, err)
	assert.EqualValues(t, 3, calls.Load())
	for _, a := range artifacts {
		assert.True(t, got[a.ID].Scored, a.ID)
	}
}

func TestAssessFailureLeavesBatchUnscored(t *testing.T) {
	var calls atomic.Int32
	q := newTestQuality(t, newOracleServer(t, &calls, CategoryIssue))

	got, err := q.Assess(context.Background(), []Artifact{
		{ID: "c1", Category: CategoryCommit, Text: "docs: describe the release process"},
		{ID: "i1", Category: CategoryIssue, Text: "Crash when saving an empty profile"},
	})
	require.ErrorIs(t, err, ErrOracleUnavailable)
	assert.Equal(t, Assessment{Score: 0.8, Scored: true}, got["c1"])
	assert.Equal(t, Assessment{}, got["i1"])
}

func TestAssessCancelled(t *testing.T) {
	var calls atomic.Int32
	q := newTestQuality(t, newOracleServer(t, &calls))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	got, err := q.Assess(ctx, []Artifact{{ID: "c1", Category: CategoryCommit, Text: "refactor: split the parser"}})
	require.ErrorIs(t, err, ErrOracleUnavailable)
	assert.Equal(t, map[string]Assessment{"c1": {}}, got)
	assert.Zero(t, calls.Load())
}

func TestParseScores(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		expected map[string]float64
		wantErr  bool
	}{
		{
			name:     "plain object",
			reply:    `{"a1":0.5,"a2":1}`,
			expected: map[string]float64{"a1": 0.5, "a2": 1},
		},
		{
			name:     "fenced reply with prose",
			reply:    "Here you go:\n```json\n{\"a1\": 0.25}\n```",
			expected: map[string]float64{"a1": 0.25},
		},
		{
			name:     "null and garbage values are skipped",
			reply:    `{"a1":null,"a2":"n/a","a3":"0.4","a4":[1]}`,
			expected: map[string]float64{"a3": 0.4},
		},
		{
			name:     "out of range values are clamped",
			reply:    `{"a1":7,"a2":-0.2}`,
			expected: map[string]float64{"a1": 1, "a2": 0},
		},
		{
			name:     "non finite values are left unscored",
			reply:    `{"a1":"Infinity","a2":"-inf","a3":"NaN","a4":1e999,"a5":0.6}`,
			expected: map[string]float64{"a5": 0.6},
		},
		{name: "no object", reply: "I cannot help with that", wantErr: true},
		{name: "malformed object", reply: `{"a1": 0.5,}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseScores(tt.reply)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDisabled(t *testing.T) {
	var o QualityOracle = Disabled{}
	assert.False(t, o.Enabled())
	got, err := o.Assess(context.Background(), []Artifact{{ID: "x", Text: "a perfectly fine commit message"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]Assessment{"x": {}}, got)
}

func TestAssessable(t *testing.T) {
	assert.False(t, Assessable("   fix   "))
	assert.False(t, Assessable("1234567"))
	assert.True(t, Assessable("12345678"))
}

func TestNewQualityForConfigDisabled(t *testing.T) {
	cfg := config.New()
	cfg.Set("disable_ai", true)
	assert.IsType(t, Disabled{}, NewQualityForConfig(cfg))
}
