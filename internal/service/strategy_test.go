package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/Sofia/internal/domain"
	"github.com/Strob0t/Sofia/internal/domain/agent"
	"github.com/Strob0t/Sofia/internal/domain/execution"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/port/llm"
)

func seedAgents(s *memStore, agents ...agent.Agent) {
	for _, a := range agents {
		s.addAgent(a)
	}
}

var (
	upperAgent = agent.Agent{ID: "ag-upper", Name: "Shouter", Model: "openai/gpt-4o-mini", SystemPrompt: "upper", Temperature: 0.2}
	wordsAgent = agent.Agent{ID: "ag-words", Name: "Counter", Model: "anthropic/claude-3-haiku", SystemPrompt: "words", Temperature: 0}
)

func newTestExecutor(store *memStore, gw llm.Gateway) *StrategyExecutor {
	return NewStrategyExecutor(gw, NewAgentLookup(store, nil, 0), 2048)
}

func TestStrategySequentialChainsOutputs(t *testing.T) {
	store := newMemStore()
	seedAgents(store, upperAgent, wordsAgent)
	gw := scriptedGateway(nil)
	e := newTestExecutor(store, gw)

	orch := &orchestration.Orchestration{
		Strategy: orchestration.StrategySequential,
		Agents: []orchestration.AgentStep{
			{AgentID: "ag-upper", Role: "shout"},
			{AgentID: "ag-words", Role: "count"},
		},
	}
	res, err := e.Run(context.Background(), orch, execution.TextInput("hello world"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != "2" {
		t.Errorf("output = %v, want %q", res.Output, "2")
	}
	if len(res.AgentResults) != 2 {
		t.Fatalf("agent results = %d, want 2", len(res.AgentResults))
	}
	if res.AgentResults[0].Output != "HELLO WORLD" || res.AgentResults[1].Input != "HELLO WORLD" {
		t.Errorf("step chaining broken: %+v", res.AgentResults)
	}
	if res.AgentResults[0].AgentName != "Shouter" || res.AgentResults[0].Role != "shout" {
		t.Errorf("unexpected first result: %+v", res.AgentResults[0])
	}
	if res.TokensUsed != 10 {
		t.Errorf("tokens = %d, want 10", res.TokensUsed)
	}

	reqs := gw.requests()
	if reqs[0].Model != "openai/gpt-4o-mini" || reqs[0].Temperature != 0.2 || reqs[0].MaxOutputTokens != 2048 {
		t.Errorf("first request params = %+v", reqs[0])
	}
	if reqs[0].UserMessage != "hello world" {
		t.Errorf("first user message = %q", reqs[0].UserMessage)
	}
}

func TestStrategyPromptOverride(t *testing.T) {
	store := newMemStore()
	seedAgents(store, wordsAgent)
	gw := scriptedGateway(map[string]string{"be brief": "ok"})
	e := newTestExecutor(store, gw)

	orch := &orchestration.Orchestration{
		Strategy: orchestration.StrategySequential,
		Agents:   []orchestration.AgentStep{{AgentID: "ag-words", Role: "r", Prompt: "be brief"}},
	}
	res, err := e.Run(context.Background(), orch, execution.TextInput("x"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Output != "ok" {
		t.Errorf("output = %v, want ok", res.Output)
	}
	if got := gw.requests()[0].SystemPrompt; got != "be brief" {
		t.Errorf("system prompt = %q, want override", got)
	}
}

func TestStrategySequentialMissingAgent(t *testing.T) {
	store := newMemStore()
	seedAgents(store, upperAgent)
	gw := scriptedGateway(nil)
	e := newTestExecutor(store, gw)

	orch := &orchestration.Orchestration{
		Strategy: orchestration.StrategySequential,
		Agents: []orchestration.AgentStep{
			{AgentID: "ag-upper", Role: "a"},
			{AgentID: "ghost", Role: "b"},
			{AgentID: "ag-upper", Role: "c"},
		},
	}
	res, err := e.Run(context.Background(), orch, execution.TextInput("hi"), nil)

	var nf *agent.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *agent.NotFoundError, got %v", err)
	}
	if err.Error() != "Agent ghost not found" {
		t.Errorf("message = %q", err.Error())
	}
	if res == nil || len(res.AgentResults) != 1 {
		t.Fatalf("expected exactly the step before the missing one, got %+v", res)
	}
	if len(gw.requests()) != 1 {
		t.Errorf("LLM calls = %d, want 1 (nothing after the missing agent)", len(gw.requests()))
	}
}

func TestStrategyParallelSameInput(t *testing.T) {
	store := newMemStore()
	seedAgents(store, upperAgent, wordsAgent)
	gw := scriptedGateway(nil)
	e := newTestExecutor(store, gw)

	orch := &orchestration.Orchestration{
		Strategy: orchestration.StrategyParallel,
		Agents: []orchestration.AgentStep{
			{AgentID: "ag-upper", Role: "shout"},
			{AgentID: "ag-words", Role: "count"},
		},
	}
	input := json.RawMessage(`{"text":"a b c"}`)
	res, err := e.Run(context.Background(), orch, input, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, r := range gw.requests() {
		if r.UserMessage != `{"text":"a b c"}` {
			t.Errorf("user message = %q, want the compact JSON input", r.UserMessage)
		}
	}

	out, ok := res.Output.(ParallelOutput)
	if !ok {
		t.Fatalf("output type = %T", res.Output)
	}
	if len(out.Results) != 2 || out.Results[0]["shout"] != `{"TEXT":"A B C"}` || out.Results[1]["count"] != "3" {
		t.Errorf("results = %+v", out.Results)
	}
	want := "shout: {\"TEXT\":\"A B C\"}\n\ncount: 3"
	if out.Summary != want {
		t.Errorf("summary = %q, want %q", out.Summary, want)
	}
}

func TestStrategyParallelFailFast(t *testing.T) {
	store := newMemStore()
	seedAgents(store, upperAgent)
	e := newTestExecutor(store, scriptedGateway(nil))

	orch := &orchestration.Orchestration{
		Strategy: orchestration.StrategyParallel,
		Agents: []orchestration.AgentStep{
			{AgentID: "ag-upper", Role: "a"},
			{AgentID: "missing", Role: "b"},
		},
	}
	res, err := e.Run(context.Background(), orch, execution.TextInput("x"), nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if res != nil && len(res.AgentResults) != 0 {
		t.Errorf("parallel failure must not carry partial results, got %d", len(res.AgentResults))
	}
}

func TestStrategyParallelCancelsSiblings(t *testing.T) {
	store := newMemStore()
	seedAgents(store,
		agent.Agent{ID: "slow", Name: "slow", Model: "m", SystemPrompt: "slow"},
		agent.Agent{ID: "bad", Name: "bad", Model: "m", SystemPrompt: "bad"},
	)
	var cancelled atomic.Bool
	gw := &fakeGateway{}
	gw.reply = func(req llm.CompletionRequest) (llm.Completion, error) {
		if req.SystemPrompt == "bad" {
			return llm.Completion{}, &llm.ProviderError{Model: "m", StatusCode: 500, Err: errors.New("boom")}
		}
		return llm.Completion{Text: "late"}, nil
	}
	slowGW := &ctxGateway{inner: gw, onCancel: func() { cancelled.Store(true) }}
	e := NewStrategyExecutor(slowGW, NewAgentLookup(store, nil, 0), 10)

	orch := &orchestration.Orchestration{
		Strategy: orchestration.StrategyConsensus,
		Agents:   []orchestration.AgentStep{{AgentID: "slow"}, {AgentID: "bad"}},
	}
	_, err := e.Run(context.Background(), orch, execution.TextInput("x"), nil)
	var pe *llm.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if !cancelled.Load() {
		t.Error("slow sibling was not cancelled")
	}
}

// ctxGateway blocks the "slow" agent until its context is cancelled.
type ctxGateway struct {
	inner    *fakeGateway
	onCancel func()
}

func (g *ctxGateway) Complete(ctx context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	if req.SystemPrompt == "slow" {
		select {
		case <-ctx.Done():
			g.onCancel()
			return llm.Completion{}, ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	return g.inner.Complete(ctx, req)
}

func TestStrategyConsensusPlurality(t *testing.T) {
	store := newMemStore()
	seedAgents(store,
		agent.Agent{ID: "a1", Name: "One", Model: "m", SystemPrompt: "p1"},
		agent.Agent{ID: "a2", Name: "Two", Model: "m", SystemPrompt: "p2"},
		agent.Agent{ID: "a3", Name: "Three", Model: "m", SystemPrompt: "p3"},
	)
	gw := scriptedGateway(map[string]string{"p1": "Yes", "p2": " yes\n", "p3": "No"})
	e := newTestExecutor(store, gw)

	orch := &orchestration.Orchestration{
		Strategy: orchestration.StrategyConsensus,
		Agents:   []orchestration.AgentStep{{AgentID: "a1"}, {AgentID: "a2"}, {AgentID: "a3"}},
	}
	res, err := e.Run(context.Background(), orch, execution.TextInput("agree?"), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	out, ok := res.Output.(ConsensusOutput)
	if !ok {
		t.Fatalf("output type = %T", res.Output)
	}
	if out.Consensus != "yes" {
		t.Errorf("consensus = %q, want yes", out.Consensus)
	}
	if out.Votes["yes"] != 2 || out.Votes["no"] != 1 || len(out.Votes) != 2 {
		t.Errorf("votes = %v", out.Votes)
	}
	if len(out.AllResponses) != 3 || out.AllResponses[0] != (ConsensusAnswer{Agent: "One", Response: "Yes"}) {
		t.Errorf("allResponses = %+v", out.AllResponses)
	}
}

func TestAggregateConsensusTieGoesToFirstSeen(t *testing.T) {
	results := []execution.AgentResult{
		{Output: "blue"}, {Output: "Red"}, {Output: "red"}, {Output: "BLUE "},
	}
	if got := aggregateConsensus(results).Consensus; got != "blue" {
		t.Errorf("consensus = %q, want blue", got)
	}
}

func TestStrategyRejectsEmptySteps(t *testing.T) {
	e := newTestExecutor(newMemStore(), scriptedGateway(nil))
	_, err := e.Run(context.Background(), &orchestration.Orchestration{Strategy: orchestration.StrategySequential}, nil, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

type countingObserver struct {
	started, finished atomic.Int32
}

func (o *countingObserver) StepStarted(context.Context, orchestration.AgentStep) { o.started.Add(1) }
func (o *countingObserver) StepFinished(context.Context, orchestration.AgentStep, execution.AgentResult) {
	o.finished.Add(1)
}

func TestStrategyNotifiesObserver(t *testing.T) {
	store := newMemStore()
	seedAgents(store, upperAgent, wordsAgent)
	e := newTestExecutor(store, scriptedGateway(nil))

	for _, strat := range []orchestration.Strategy{orchestration.StrategySequential, orchestration.StrategyParallel} {
		obs := &countingObserver{}
		orch := &orchestration.Orchestration{
			Strategy: strat,
			Agents:   []orchestration.AgentStep{{AgentID: "ag-upper"}, {AgentID: "ag-words"}},
		}
		if _, err := e.Run(context.Background(), orch, execution.TextInput("a"), obs); err != nil {
			t.Fatalf("%s: %v", strat, err)
		}
		if obs.started.Load() != 2 || obs.finished.Load() != 2 {
			t.Errorf("%s: started=%d finished=%d, want 2/2", strat, obs.started.Load(), obs.finished.Load())
		}
	}
}
