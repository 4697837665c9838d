// Package agent defines the shared request/result envelope used by every
// role in the MultiAgent pipeline (Planner, Coder, Reviewer, Tester).
// Every role receives a task plus its file context and an LLM client, and
// returns a uniform domain.AgentResult; there are no tool calls or
// multi-turn awaits because each role is a single LLM exchange.
package agent

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/codes"

	"github.com/coderun/orchestrator/domain"
	"github.com/coderun/orchestrator/llm"
	"github.com/coderun/orchestrator/strategy"
	"github.com/coderun/orchestrator/telemetry"
)

// Request carries everything a role needs to produce its AgentResult.
type Request struct {
	Task    *domain.CodingTask
	Context strategy.TaskExecutionContext

	// SubTask is set for Coder invocations: the specific work item this
	// Coder call implements. Nil for Planner/Reviewer/Tester, which operate
	// on the whole task.
	SubTask *domain.SubTask

	// Plan is set for Reviewer/Tester invocations needing the full plan for
	// context. Nil for Planner (it produces the plan) and Coder (it only
	// needs its own SubTask).
	Plan *domain.TaskPlan

	// MergedChanges is set for Reviewer/Tester: the conflict-resolved
	// change set produced after all Coders complete.
	MergedChanges []domain.CodeChange

	Model string
}

// Deps are the collaborators every role needs: an LLM client to call and a
// logger to record what happened. Tracer is optional; a no-op is used if
// nil.
type Deps struct {
	LLM    llm.Client
	Logger telemetry.Logger
	Tracer telemetry.Tracer
}

// Role is implemented by Planner, Coder, Reviewer, and Tester.
type Role interface {
	// Name identifies the role for AgentResult.AgentName and span naming.
	Name() string
	// Run executes one LLM exchange and returns a uniform AgentResult.
	Run(ctx context.Context, deps Deps, req Request) domain.AgentResult
}

// RunTraced wraps role.Run in a telemetry.Tracer span named after the role,
// so a MultiAgent run produces a full span tree.
func RunTraced(ctx context.Context, role Role, deps Deps, req Request) domain.AgentResult {
	tracer := deps.Tracer
	if tracer == nil {
		tracer = telemetry.NewNoopTracer()
	}
	ctx, span := tracer.Start(ctx, role.Name())
	defer span.End()
	result := role.Run(ctx, deps, req)
	if !result.Success {
		msg := "agent role reported failure"
		if len(result.Errors) > 0 {
			msg = result.Errors[0]
		}
		span.SetStatus(codes.Error, msg)
		span.RecordError(errors.New(msg))
	}
	return result
}
