package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/Sofia/internal/domain"
	"github.com/Strob0t/Sofia/internal/domain/agent"
	"github.com/Strob0t/Sofia/internal/domain/execution"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/port/database"
	"github.com/Strob0t/Sofia/internal/port/llm"
	"github.com/Strob0t/Sofia/internal/port/messagequeue"
	"github.com/Strob0t/Sofia/internal/port/notifier"
)

// memStore is an in-memory database.Store. It applies execution patches
// with execution.Patch.Apply so lifecycle rules are enforced as in Postgres.
type memStore struct {
	mu      sync.Mutex
	agents  map[string]*agent.Agent
	orchs   map[string]*orchestration.Orchestration
	execs   map[string]*execution.Execution
	patches []execution.Patch

	getAgentCalls int
}

var _ database.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		agents: make(map[string]*agent.Agent),
		orchs:  make(map[string]*orchestration.Orchestration),
		execs:  make(map[string]*execution.Execution),
	}
}

func (m *memStore) addAgent(a agent.Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agents[a.ID] = &a
}

func (m *memStore) addOrchestration(o orchestration.Orchestration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orchs[o.ID] = &o
}

func (m *memStore) CreateAgent(_ context.Context, req agent.CreateRequest) (*agent.Agent, error) {
	a := agent.Agent{ID: uuid.NewString(), Name: req.Name, Model: req.Model, SystemPrompt: req.SystemPrompt, Temperature: req.Temperature}
	m.addAgent(a)
	return &a, nil
}

func (m *memStore) GetAgent(_ context.Context, id string) (*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAgentCalls++
	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("agent %s: %w", id, domain.ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListAgents(_ context.Context) ([]agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]agent.Agent, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, *a)
	}
	return out, nil
}

func (m *memStore) DeleteAgent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.agents[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.agents, id)
	return nil
}

func (m *memStore) CreateOrchestration(_ context.Context, req orchestration.CreateRequest) (*orchestration.Orchestration, error) {
	o := orchestration.Orchestration{
		ID: uuid.NewString(), Name: req.Name, Description: req.Description, Agents: req.Agents,
		Strategy: req.Strategy, Status: req.Status, Config: req.Config,
	}
	m.addOrchestration(o)
	return &o, nil
}

func (m *memStore) GetOrchestration(_ context.Context, id string) (*orchestration.Orchestration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orchs[id]
	if !ok {
		return nil, fmt.Errorf("orchestration %s: %w", id, domain.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) ListOrchestrations(_ context.Context) ([]orchestration.Orchestration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]orchestration.Orchestration, 0, len(m.orchs))
	for _, o := range m.orchs {
		out = append(out, *o)
	}
	return out, nil
}

func (m *memStore) UpdateOrchestration(_ context.Context, o *orchestration.Orchestration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orchs[o.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *o
	m.orchs[o.ID] = &cp
	return nil
}

func (m *memStore) CreateExecution(_ context.Context, req execution.CreateRequest) (*execution.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &execution.Execution{
		ID:              uuid.NewString(),
		OrchestrationID: req.OrchestrationID,
		ConversationID:  req.ConversationID,
		Input:           req.Input,
		Status:          execution.StatusRunning,
		AgentResults:    []execution.AgentResult{},
		StartedAt:       time.Now().UTC(),
	}
	m.execs[e.ID] = e
	cp := *e
	return &cp, nil
}

func (m *memStore) UpdateExecution(_ context.Context, id string, patch execution.Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.execs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if err := patch.Apply(e); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrConflict, err)
	}
	m.patches = append(m.patches, patch)
	return nil
}

func (m *memStore) GetExecution(_ context.Context, id string) (*execution.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.execs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memStore) ListExecutions(_ context.Context, orchestrationID string, _ int) ([]execution.Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []execution.Execution
	for _, e := range m.execs {
		if e.OrchestrationID == orchestrationID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memStore) onlyExecution() *execution.Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.execs {
		cp := *e
		return &cp
	}
	return nil
}

func (m *memStore) executionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.execs)
}

// fakeGateway answers completions with a function of the request.
type fakeGateway struct {
	mu    sync.Mutex
	calls []llm.CompletionRequest
	reply func(req llm.CompletionRequest) (llm.Completion, error)
}

func (g *fakeGateway) Complete(_ context.Context, req llm.CompletionRequest) (llm.Completion, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req)
	g.mu.Unlock()
	return g.reply(req)
}

func (g *fakeGateway) requests() []llm.CompletionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]llm.CompletionRequest, len(g.calls))
	copy(out, g.calls)
	return out
}

// scriptedGateway replies by system prompt, which identifies the agent.
func scriptedGateway(answers map[string]string) *fakeGateway {
	return &fakeGateway{reply: func(req llm.CompletionRequest) (llm.Completion, error) {
		if strings.HasPrefix(req.SystemPrompt, "upper") {
			return llm.Completion{Text: strings.ToUpper(req.UserMessage), TokensIn: 3, TokensOut: 2}, nil
		}
		if strings.HasPrefix(req.SystemPrompt, "words") {
			return llm.Completion{Text: fmt.Sprint(len(strings.Fields(req.UserMessage))), TokensIn: 4, TokensOut: 1}, nil
		}
		if a, ok := answers[req.SystemPrompt]; ok {
			return llm.Completion{Text: a, TokensIn: 1, TokensOut: 1}, nil
		}
		return llm.Completion{}, &llm.ProviderError{Model: req.Model, StatusCode: 500, Err: fmt.Errorf("no answer for %q", req.SystemPrompt)}
	}}
}

// fakeNotifier records notifications and returns a fixed error.
type fakeNotifier struct {
	name  orchestration.OutputType
	err   error
	delay time.Duration

	mu   sync.Mutex
	sent []notifier.Notification
}

func (f *fakeNotifier) Name() orchestration.OutputType { return f.name }

func (f *fakeNotifier) Send(ctx context.Context, _ orchestration.Output, n notifier.Notification) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.sent = append(f.sent, n)
	f.mu.Unlock()
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeQueue records published messages and lets tests deliver to a
// subscriber synchronously.
type fakeQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
	handlers  map[string]messagequeue.Handler
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{published: make(map[string][][]byte), handlers: make(map[string]messagequeue.Handler)}
}

func (q *fakeQueue) Publish(_ context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *fakeQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[subject] = h
	return func() {}, nil
}

func (q *fakeQueue) Close() error { return nil }

func (q *fakeQueue) messages(subject string) [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.published[subject]
}

func (q *fakeQueue) deliver(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	h := q.handlers[subject]
	q.mu.Unlock()
	if h == nil {
		return fmt.Errorf("no subscriber for %s", subject)
	}
	return h(ctx, subject, data)
}

// recBroadcaster records broadcast event types.
type recBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *recBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

func (b *recBroadcaster) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, e := range b.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// memCache is an in-memory cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	err  error
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
