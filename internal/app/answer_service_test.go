package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"hybridrag/internal/model"
	"hybridrag/internal/retrieval"
)

func TestAsk_EmptyCorpus(t *testing.T) {
	f := newFixture(t, zap.NewNop())

	res, err := f.answers.Ask(context.Background(), AskInput{UserID: 1, Question: "What is attention?"})
	require.NoError(t, err)
	assert.Equal(t, RouteEmpty, res.Route)
	assert.Equal(t, EmptyCorpusAnswer, res.Answer)
	assert.Empty(t, res.Sources)
	assert.Zero(t, f.generator.calls())
}

func TestAsk_RejectsBlankQuestion(t *testing.T) {
	f := newFixture(t, zap.NewNop())

	_, err := f.answers.Ask(context.Background(), AskInput{UserID: 1, Question: "  \n"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAsk_KnowledgeGraphAnswer(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	f.ingestAndProcess(t)

	res, err := f.answers.Ask(context.Background(), AskInput{UserID: 1, Question: "What is the Transformer?"})
	require.NoError(t, err)
	assert.Equal(t, RouteKG, res.Route)
	assert.Equal(t, "KG Lookup: MODEL", res.Answer)
	assert.False(t, res.Ambiguous)
	assert.Zero(t, f.generator.calls())
}

func TestAsk_KnowledgeGraphWinsOverFallback(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture(t, zap.New(core))
	f.ingestAndProcess(t)

	res, err := f.answers.Ask(context.Background(), AskInput{UserID: 1, Question: "Does the Transformer use sin(x)?"})
	require.NoError(t, err)
	assert.Equal(t, RouteKG, res.Route)
	assert.True(t, res.Ambiguous)
	assert.Zero(t, f.generator.calls())

	warnings := logs.FilterMessageSnippet("both kg and fallback").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "Transformer", warnings[0].ContextMap()["entity"])
}

func TestAsk_FallbackLiteralMatch(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	doc := f.ingestAndProcess(t)

	res, err := f.answers.Ask(context.Background(), AskInput{UserID: 1, Question: "what does sin(x) mean here"})
	require.NoError(t, err)
	assert.Equal(t, RouteFallback, res.Route)
	assert.Equal(t, "generated answer", res.Answer)
	assert.Equal(t, []Source{{DocumentID: doc.ID, DocumentName: "attention.pdf", Page: 1}}, res.Sources)

	require.Equal(t, 1, f.generator.calls())
	prompt := f.generator.prompts[0]
	assert.Equal(t, "what does sin(x) mean here", prompt.Query)
	assert.Contains(t, prompt.Context, "---\nContent: The Transformer architecture")
	assert.Contains(t, prompt.Context, "Source: attention.pdf p.1")
	assert.NotContains(t, prompt.Context, "Recurrent networks")
}

func TestAsk_FallbackWithoutMatchesFallsThroughToHybrid(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	f.ingestAndProcess(t)

	res, err := f.answers.Ask(context.Background(), AskInput{UserID: 1, Question: "why do recurrent networks use cos(theta)"})
	require.NoError(t, err)
	assert.Equal(t, RouteHybrid, res.Route)
	require.NotEmpty(t, res.Sources)
	assert.Equal(t, 2, res.Sources[0].Page)
}

func TestAsk_HybridRetrieval(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	f.ingestAndProcess(t)

	res, err := f.answers.Ask(context.Background(), AskInput{UserID: 1, Question: "Why do recurrent networks struggle?"})
	require.NoError(t, err)
	assert.Equal(t, RouteHybrid, res.Route)
	require.NotEmpty(t, res.Sources)
	assert.Equal(t, 2, res.Sources[0].Page)
	require.Equal(t, 1, f.generator.calls())
	assert.Contains(t, f.generator.prompts[0].Context, "Recurrent networks process tokens")
}

func TestAsk_GenerationFailureThenRetry(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	f.ingestAndProcess(t)
	ctx := context.Background()
	session := f.session(t, 1)

	f.generator.err = errBoom
	_, err := f.answers.Ask(ctx, AskInput{UserID: 1, SessionID: session.ID, Question: "Why do recurrent networks struggle?"})
	require.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, errBoom)

	var genErr *GenerationError
	require.True(t, errors.As(err, &genErr))
	require.NotEmpty(t, genErr.RetryID)

	history, err := f.chat.GetHistory(1, session.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, history, "failed generations record nothing")

	_, err = f.answers.Retry(ctx, 2, genErr.RetryID)
	assert.ErrorIs(t, err, ErrRetryNotFound)

	_, err = f.answers.Retry(ctx, 1, genErr.RetryID)
	var again *GenerationError
	require.True(t, errors.As(err, &again))
	assert.Equal(t, genErr.RetryID, again.RetryID)

	f.generator.err = nil
	res, err := f.answers.Retry(ctx, 1, genErr.RetryID)
	require.NoError(t, err)
	assert.Equal(t, RouteHybrid, res.Route)
	assert.Equal(t, "generated answer", res.Answer)
	require.Len(t, res.History, 2)
	assert.Equal(t, "Why do recurrent networks struggle?", res.History[0].Content)

	for _, p := range f.generator.prompts {
		assert.Equal(t, f.generator.prompts[0].Context, p.Context, "retry must not re-run retrieval")
	}

	_, err = f.answers.Retry(ctx, 1, genErr.RetryID)
	assert.ErrorIs(t, err, ErrRetryNotFound)
}

func TestAsk_SessionHistoryWindow(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	f.ingestAndProcess(t)
	ctx := context.Background()
	session := f.session(t, 1)

	questions := []string{
		"What is the Transformer?",
		"Why do recurrent networks struggle?",
		"what does sin(x) mean here",
		"Why do recurrent networks struggle?",
		"What is the Transformer?",
		"Why do recurrent networks struggle?",
	}
	var last *AskResult
	for _, q := range questions {
		res, err := f.answers.Ask(ctx, AskInput{UserID: 1, SessionID: session.ID, Question: q})
		require.NoError(t, err)
		last = res
	}

	require.Len(t, last.History, 10)
	assert.Equal(t, model.RoleUser, last.History[0].Role)
	assert.Equal(t, questions[1], last.History[0].Content)
	assert.Equal(t, model.RoleAssistant, last.History[9].Role)
	assert.Equal(t, RouteHybrid, last.History[9].Route)

	prompts := f.generator.prompts
	lastPrompt := prompts[len(prompts)-1]
	assert.Len(t, lastPrompt.History, 10)
	assert.Equal(t, "KG Lookup: MODEL", lastPrompt.History[1].Content)

	stored, err := f.chat.GetHistory(1, session.ID, 0)
	require.NoError(t, err)
	assert.Len(t, stored, 12)
}

func TestAsk_BackToBackExchangesStayOrdered(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	f.ingestAndProcess(t)
	ctx := context.Background()
	session := f.session(t, 1)

	for _, q := range []string{"What is the Transformer?", "Why do recurrent networks struggle?", "What is the Transformer?"} {
		_, err := f.answers.Ask(ctx, AskInput{UserID: 1, SessionID: session.ID, Question: q})
		require.NoError(t, err)
	}

	turns, err := f.chat.RecentTurns(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, turns, 6)
	for i, turn := range turns {
		want := model.RoleUser
		if i%2 == 1 {
			want = model.RoleAssistant
		}
		assert.Equal(t, want, turn.Role, "turn %d", i)
	}
	assert.Equal(t, "Why do recurrent networks struggle?", turns[2].Content)
	assert.Equal(t, RouteHybrid, turns[3].Route)
}

func TestAsk_ForeignSession(t *testing.T) {
	f := newFixture(t, zap.NewNop())
	f.ingestAndProcess(t)
	session := f.session(t, 1)

	_, err := f.answers.Ask(context.Background(), AskInput{UserID: 2, SessionID: session.ID, Question: "What is the Transformer?"})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBuildContextAndCitations(t *testing.T) {
	chunks := []retrieval.Chunk{
		{ID: 0, DocumentID: 1, DocumentName: "a.pdf", Page: 3, Text: "alpha"},
		{ID: 1, DocumentID: 1, DocumentName: "a.pdf", Page: 3, Text: "beta"},
		{ID: 2, DocumentID: 2, DocumentName: "b.pdf", Page: 1, Text: "gamma"},
	}

	assert.Equal(t,
		"---\nContent: alpha\nSource: a.pdf p.3\n---\nContent: beta\nSource: a.pdf p.3\n---\nContent: gamma\nSource: b.pdf p.1\n",
		BuildContext(chunks))
	assert.Equal(t, []Source{
		{DocumentID: 1, DocumentName: "a.pdf", Page: 3},
		{DocumentID: 2, DocumentName: "b.pdf", Page: 1},
	}, citations(chunks))
	assert.Empty(t, BuildContext(nil))
}
