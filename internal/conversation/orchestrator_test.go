package conversation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echodoc/internal/domain"
)

type fakeRetriever struct {
	results []domain.RetrievalResult
	err     error
	query   string
	k       int
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	f.query, f.k = query, k
	return f.results, f.err
}

type fakeCompleter struct {
	reply string
	err   error
	turns []domain.Turn
	block bool
}

func (f *fakeCompleter) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	f.turns = turns
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

func newOrchestrator(t *testing.T, r Retriever, c domain.Completer, opts Options) *Orchestrator {
	t.Helper()
	o, err := New(r, c, opts, nil)
	require.NoError(t, err)
	return o
}

func history() domain.History {
	return domain.History{
		{Role: domain.RoleUser, Content: "What is the refund window?"},
		{Role: domain.RoleAssistant, Content: "Which product?"},
		{Role: domain.RoleUser, Content: "The annual plan."},
	}
}

func TestContinue_AppendsExactlyOneAssistantTurn(t *testing.T) {
	r := &fakeRetriever{results: []domain.RetrievalResult{{ChunkID: "d:0", Text: "Refunds within 30 days."}}}
	c := &fakeCompleter{reply: "30 days."}
	o := newOrchestrator(t, r, c, Options{TopK: 3})

	in := history()
	out, err := o.Continue(context.Background(), in)
	require.NoError(t, err)

	require.Len(t, out, len(in)+1)
	assert.Equal(t, in, out[:len(in)])
	assert.Equal(t, domain.Turn{Role: domain.RoleAssistant, Content: "30 days."}, out[len(in)])
	assert.Equal(t, history(), in, "input history must not change")
}

func TestContinue_RetrievesWithLatestUserTurnOnly(t *testing.T) {
	r := &fakeRetriever{}
	o := newOrchestrator(t, r, &fakeCompleter{reply: "ok"}, Options{TopK: 2})

	_, err := o.Continue(context.Background(), history())
	require.NoError(t, err)
	assert.Equal(t, "The annual plan.", r.query)
	assert.Equal(t, 2, r.k)
}

func TestContinue_PrependsEphemeralSystemTurn(t *testing.T) {
	r := &fakeRetriever{results: []domain.RetrievalResult{
		{Text: "First passage."},
		{Text: "Second passage."},
	}}
	c := &fakeCompleter{reply: "ok"}
	o := newOrchestrator(t, r, c, Options{})

	out, err := o.Continue(context.Background(), history())
	require.NoError(t, err)

	require.Len(t, c.turns, len(history())+1)
	system := c.turns[0]
	assert.Equal(t, domain.RoleSystem, system.Role)
	assert.Contains(t, system.Content, "- First passage.\n\n- Second passage.")
	assert.Equal(t, []domain.Turn(history()), c.turns[1:])
	for _, turn := range out {
		assert.NotEqual(t, domain.RoleSystem, turn.Role)
	}
}

func TestContinue_NoPassagesRendersEmptyList(t *testing.T) {
	c := &fakeCompleter{reply: "I don't know."}
	o := newOrchestrator(t, &fakeRetriever{}, c, Options{})

	_, err := o.Continue(context.Background(), history())
	require.NoError(t, err)
	assert.NotContains(t, c.turns[0].Content, "- ")
	assert.True(t, strings.HasPrefix(c.turns[0].Content, "You are a helpful assistant"))
}

func TestContinue_MissingUserTurn(t *testing.T) {
	c := &fakeCompleter{reply: "ok"}
	o := newOrchestrator(t, &fakeRetriever{}, c, Options{})
	in := domain.History{
		{Role: domain.RoleSystem, Content: "be nice"},
		{Role: domain.RoleAssistant, Content: "hello"},
	}

	out, err := o.Continue(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrMissingUserTurn)
	assert.Equal(t, in, out)
	assert.Nil(t, c.turns)
}

func TestContinue_CompletionErrorKeepsHistory(t *testing.T) {
	cause := errors.New("upstream 500")
	o := newOrchestrator(t, &fakeRetriever{}, &fakeCompleter{err: cause}, Options{})

	in := history()
	out, err := o.Continue(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrCompletion)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, in, out)
}

func TestContinue_RetrieveErrorPropagates(t *testing.T) {
	r := &fakeRetriever{err: &domain.ProviderError{Kind: domain.ErrEmbeddingProvider, Attempts: 5, Err: errors.New("429")}}
	c := &fakeCompleter{reply: "ok"}
	o := newOrchestrator(t, r, c, Options{})

	_, err := o.Continue(context.Background(), history())
	assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
	assert.Nil(t, c.turns)
}

func TestContinue_Timeout(t *testing.T) {
	o := newOrchestrator(t, &fakeRetriever{}, &fakeCompleter{block: true}, Options{Timeout: 20 * time.Millisecond})

	in := history()
	out, err := o.Continue(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrTimeout)
	assert.Equal(t, in, out)
}

func TestContinue_CanceledBeforeCompletion(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := &fakeCompleter{reply: "ok"}
	o := newOrchestrator(t, &fakeRetriever{}, c, Options{})

	_, err := o.Continue(ctx, history())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, c.turns)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, &fakeCompleter{}, Options{}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = New(&fakeRetriever{}, &fakeCompleter{}, Options{SystemTemplate: "{{.Nope"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestSystemPrompt_CustomTemplate(t *testing.T) {
	o := newOrchestrator(t, &fakeRetriever{}, &fakeCompleter{}, Options{
		SystemTemplate: "n={{len .Passages}}\n{{.Excerpts}}",
	})
	got, err := o.SystemPrompt([]domain.RetrievalResult{{Text: "a"}, {Text: "b"}})
	require.NoError(t, err)
	assert.Equal(t, "n=2\n- a\n\n- b", got)
}
