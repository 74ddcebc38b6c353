package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/Sofia/internal/adapter/otel"
	"github.com/Strob0t/Sofia/internal/domain"
	"github.com/Strob0t/Sofia/internal/domain/agent"
	"github.com/Strob0t/Sofia/internal/domain/execution"
	"github.com/Strob0t/Sofia/internal/domain/orchestration"
	"github.com/Strob0t/Sofia/internal/port/llm"
)

// AgentSource resolves the agent referenced by a step. A missing agent is
// reported as *agent.NotFoundError.
type AgentSource interface {
	Get(ctx context.Context, id string) (*agent.Agent, error)
}

// StepObserver is notified around every LLM call. In parallel and
// consensus mode the callbacks arrive from concurrent goroutines.
type StepObserver interface {
	StepStarted(ctx context.Context, step orchestration.AgentStep)
	StepFinished(ctx context.Context, step orchestration.AgentStep, result execution.AgentResult)
}

// StrategyResult is the aggregated outcome of one strategy run.
type StrategyResult struct {
	Output       any
	AgentResults []execution.AgentResult
	TokensUsed   int
}

// ParallelOutput is the aggregate produced by the parallel strategy.
type ParallelOutput struct {
	Results []map[string]string `json:"results"`
	Summary string              `json:"summary"`
}

// ConsensusOutput is the aggregate produced by the consensus strategy.
type ConsensusOutput struct {
	Consensus    string            `json:"consensus"`
	Votes        map[string]int    `json:"votes"`
	AllResponses []ConsensusAnswer `json:"allResponses"`
}

// ConsensusAnswer is one agent's raw answer in a consensus run.
type ConsensusAnswer struct {
	Agent    string `json:"agent"`
	Response string `json:"response"`
}

// StrategyExecutor runs the steps of an orchestration against the LLM
// gateway and aggregates their outputs according to the strategy.
type StrategyExecutor struct {
	llm             llm.Gateway
	agents          AgentSource
	maxOutputTokens int
	now             func() time.Time
}

// NewStrategyExecutor creates a StrategyExecutor.
func NewStrategyExecutor(gw llm.Gateway, agents AgentSource, maxOutputTokens int) *StrategyExecutor {
	return &StrategyExecutor{
		llm:             gw,
		agents:          agents,
		maxOutputTokens: maxOutputTokens,
		now:             time.Now,
	}
}

// Run executes orch against input. On a sequential failure the returned
// result carries the steps completed before the failing one; parallel and
// consensus failures return no partial results.
func (e *StrategyExecutor) Run(ctx context.Context, orch *orchestration.Orchestration, input []byte, obs StepObserver) (*StrategyResult, error) {
	if len(orch.Agents) == 0 {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, orchestration.ErrNoAgents)
	}
	if obs == nil {
		obs = nopObserver{}
	}

	text, err := execution.NormalizeInput(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}

	switch orch.Strategy {
	case orchestration.StrategySequential:
		return e.runSequential(ctx, orch.Agents, text, obs)
	case orchestration.StrategyParallel:
		res, err := e.runAll(ctx, orch.Agents, text, obs)
		if err != nil {
			return &StrategyResult{}, err
		}
		res.Output = aggregateParallel(orch.Agents, res.AgentResults)
		return res, nil
	case orchestration.StrategyConsensus:
		res, err := e.runAll(ctx, orch.Agents, text, obs)
		if err != nil {
			return &StrategyResult{}, err
		}
		res.Output = aggregateConsensus(res.AgentResults)
		return res, nil
	default:
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, orchestration.ErrInvalidStrategy)
	}
}

func (e *StrategyExecutor) runSequential(ctx context.Context, steps []orchestration.AgentStep, input string, obs StepObserver) (*StrategyResult, error) {
	res := &StrategyResult{AgentResults: make([]execution.AgentResult, 0, len(steps))}
	current := input
	for _, step := range steps {
		out, tokens, err := e.runStep(ctx, step, current, obs)
		if err != nil {
			return res, err
		}
		res.AgentResults = append(res.AgentResults, out)
		res.TokensUsed += tokens
		current = out.Output
	}
	res.Output = current
	return res, nil
}

// runAll issues every step concurrently with the same input. The first
// failure cancels the siblings and rejects the whole batch.
func (e *StrategyExecutor) runAll(ctx context.Context, steps []orchestration.AgentStep, input string, obs StepObserver) (*StrategyResult, error) {
	results := make([]execution.AgentResult, len(steps))
	tokens := make([]int, len(steps))

	g, gctx := errgroup.WithContext(ctx)
	for i := range steps {
		g.Go(func() error {
			out, n, err := e.runStep(gctx, steps[i], input, obs)
			if err != nil {
				return err
			}
			results[i] = out
			tokens[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &StrategyResult{AgentResults: results}
	for _, n := range tokens {
		res.TokensUsed += n
	}
	return res, nil
}

func (e *StrategyExecutor) runStep(ctx context.Context, step orchestration.AgentStep, input string, obs StepObserver) (execution.AgentResult, int, error) {
	ag, err := e.agents.Get(ctx, step.AgentID)
	if err != nil {
		var nf *agent.NotFoundError
		if errors.As(err, &nf) || errors.Is(err, domain.ErrNotFound) {
			return execution.AgentResult{}, 0, &agent.NotFoundError{ID: step.AgentID}
		}
		return execution.AgentResult{}, 0, fmt.Errorf("load agent %s: %w", step.AgentID, err)
	}

	ctx, span := cfotel.StartStepSpan(ctx, ag.ID, step.Role)
	defer span.End()

	obs.StepStarted(ctx, step)

	system := ag.SystemPrompt
	if step.Prompt != "" {
		system = step.Prompt
	}
	comp, err := e.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt:    system,
		UserMessage:     input,
		Model:           ag.Model,
		Temperature:     ag.Temperature,
		MaxOutputTokens: e.maxOutputTokens,
	})
	if err != nil {
		span.RecordError(err)
		return execution.AgentResult{}, 0, err
	}

	out := execution.AgentResult{
		AgentID:   ag.ID,
		AgentName: ag.Name,
		Role:      step.Role,
		Input:     input,
		Output:    comp.Text,
		Timestamp: e.now().UTC(),
	}
	obs.StepFinished(ctx, step, out)
	return out, comp.TotalTokens(), nil
}

func aggregateParallel(steps []orchestration.AgentStep, results []execution.AgentResult) ParallelOutput {
	out := ParallelOutput{Results: make([]map[string]string, len(results))}
	parts := make([]string, len(results))
	for i := range results {
		role := steps[i].Role
		out.Results[i] = map[string]string{role: results[i].Output}
		parts[i] = role + ": " + results[i].Output
	}
	out.Summary = strings.Join(parts, "\n\n")
	return out
}

// aggregateConsensus picks the plurality of the normalized answers. Ties
// go to the answer seen first in step order.
func aggregateConsensus(results []execution.AgentResult) ConsensusOutput {
	out := ConsensusOutput{
		Votes:        make(map[string]int, len(results)),
		AllResponses: make([]ConsensusAnswer, len(results)),
	}
	order := make([]string, 0, len(results))
	for i := range results {
		norm := strings.ToLower(strings.TrimSpace(results[i].Output))
		if _, seen := out.Votes[norm]; !seen {
			order = append(order, norm)
		}
		out.Votes[norm]++
		out.AllResponses[i] = ConsensusAnswer{Agent: results[i].AgentName, Response: results[i].Output}
	}

	best := -1
	for _, answer := range order {
		if n := out.Votes[answer]; n > best {
			best = n
			out.Consensus = answer
		}
	}
	return out
}

type nopObserver struct{}

func (nopObserver) StepStarted(context.Context, orchestration.AgentStep) {}
func (nopObserver) StepFinished(context.Context, orchestration.AgentStep, execution.AgentResult) {}
