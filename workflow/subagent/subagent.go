// Package subagent expands parallel_foreach steps into isolated per-item
// task instances and provides reference drivers (DriveSerial, DriveParallel)
// that pump a queue.Executor's get_next_step/step_complete loop to
// completion for callers that want a single in-process call instead of
// driving the polling protocol themselves.
//
// Per original_source/subagent_manager.py, the engine itself runs no
// internal worker pool for sub-agent tasks: it only constructs the isolated
// step sequences and hands them out (tagged with a task instance ID) for
// whatever is polling get_next_step to execute, possibly concurrently,
// possibly one external agent per task. DriveParallel is the one place in
// this package that actually runs task instances concurrently, and it does
// so the same way the teacher's ProcessParallel does: a bounded worker pool
// over an item slice, aggregating ordered results.
package subagent

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/flowkernel/engine/workflow/config"
	"github.com/flowkernel/engine/workflow/expr"
	"github.com/flowkernel/engine/workflow/model"
	"github.com/flowkernel/engine/workflow/queue"
	"github.com/flowkernel/engine/workflow/steps"
	"github.com/flowkernel/engine/workflow/wfstate"
)

// Manager tracks each run's declared sub-agent task templates and expands
// parallel_foreach steps against them. It is wired into a queue.Executor via
// SetSubAgentExpander(m.Expand) once per Executor.
type Manager struct {
	mu    sync.Mutex
	tasks map[string]map[string]model.SubAgentTaskDefinition
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{tasks: make(map[string]map[string]model.SubAgentTaskDefinition)}
}

// RegisterRun indexes a workflow's declared sub-agent tasks by name under
// its run ID, so Expand can resolve a parallel_foreach step's
// SubAgentTask reference. Call once, right after queue.Executor.Start.
func (m *Manager) RegisterRun(runID string, def *model.WorkflowDefinition) {
	byName := make(map[string]model.SubAgentTaskDefinition, len(def.SubAgentTasks))
	for _, t := range def.SubAgentTasks {
		byName[t.Name] = t
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[runID] = byName
}

// Forget drops a finished run's task index.
func (m *Manager) Forget(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, runID)
}

// Expand satisfies queue.SubAgentExpander: it resolves def's item list,
// builds one isolated copy of the referenced task's steps per item — bound
// to that item via ScopeThis/ScopeLoop and tagged with a per-item
// SubAgentID ("<step id>.item<index>") — and concatenates them. The queue
// drains task instances in that flattened order; true concurrency across
// task instances is the caller's responsibility (multiple pollers routing
// on ClientStep.TaskID, or DriveParallel below for a single in-process
// caller).
func (m *Manager) Expand(def model.StepDefinition, scope expr.Context, state wfstate.WorkflowState) ([]model.StepDefinition, error) {
	m.mu.Lock()
	byName := m.tasks[state.RunID]
	m.mu.Unlock()

	task, ok := byName[def.SubAgentTask]
	if !ok {
		return nil, fmt.Errorf("parallel_foreach %s: unknown sub_agent_task %q", def.ID, def.SubAgentTask)
	}

	items, err := steps.ResolveItemsExpression(def.Items, scope)
	if err != nil {
		return nil, fmt.Errorf("parallel_foreach %s: %w", def.ID, err)
	}

	var flattened []model.StepDefinition
	for i, item := range items {
		taskID := fmt.Sprintf("%s.item%d", def.ID, i)

		frameThis := map[string]any{"item": item}
		if def.VarName != "" {
			frameThis[def.VarName] = item
		}
		frameLoop := map[string]any{"index": i, "total": len(items)}

		for _, s := range task.Steps {
			bound := s.WithScope(frameThis, frameLoop)
			bound.SubAgentID = taskID
			flattened = append(flattened, bound)
		}
	}

	return flattened, nil
}

// DriveResult is what DriveSerial/DriveParallel return for one processed
// client step.
type DriveResult struct {
	StepID string
	TaskID string
	Err    error
}

// StepHandler executes one client-visible step (the caller's agent/tool
// logic) and returns the state updates to report back.
type StepHandler func(ctx context.Context, step queue.ClientStep) ([]wfstate.Update, error)

// DriveSerial pumps get_next_step/step_complete until the run finishes,
// processing each batch's steps in order — adapted from ProcessChain's
// fold-with-fail-fast shape, specialized to a client step's updates instead
// of an accumulated TContext.
func DriveSerial(ctx context.Context, exec *queue.Executor, runID string, handle StepHandler) ([]DriveResult, error) {
	var results []DriveResult

	for {
		batch, _, done, err := exec.GetNextStep(ctx, runID)
		if err != nil {
			return results, err
		}
		if done {
			return results, nil
		}

		for _, step := range batch {
			updates, herr := handle(ctx, step)
			result := DriveResult{StepID: step.StepID, TaskID: step.TaskID, Err: herr}
			results = append(results, result)

			errMsg := ""
			if herr != nil {
				errMsg = herr.Error()
			}
			if cerr := exec.StepComplete(ctx, runID, step.StepID, queue.StepResult{
				StepID: step.StepID, Updates: updates, Error: errMsg,
			}); cerr != nil {
				return results, cerr
			}
			if herr != nil {
				return results, fmt.Errorf("step %s: %w", step.StepID, herr)
			}
		}
	}
}

// DriveParallel pumps get_next_step/step_complete, processing each batch's
// steps concurrently through a bounded worker pool — adapted from
// ProcessParallel's worker-count resolution (min(MaxWorkers, len(batch)) if
// MaxWorkers>0, else min(NumCPU*2, WorkerCap, len(batch))) and
// ordered-result aggregation.
// FailFast mirrors ParallelConfig.FailFast(): true cancels outstanding
// workers on first error, false collects every error and only fails the
// batch if every step in it failed.
func DriveParallel(ctx context.Context, exec *queue.Executor, runID string, cfg config.ParallelConfig, handle StepHandler) ([]DriveResult, error) {
	var all []DriveResult

	for {
		batch, _, done, err := exec.GetNextStep(ctx, runID)
		if err != nil {
			return all, err
		}
		if done {
			return all, nil
		}

		results, err := runBatchParallel(ctx, exec, runID, cfg, batch, handle)
		all = append(all, results...)
		if err != nil {
			return all, err
		}
	}
}

func runBatchParallel(ctx context.Context, exec *queue.Executor, runID string, cfg config.ParallelConfig, batch []queue.ClientStep, handle StepHandler) ([]DriveResult, error) {
	workers := resolveWorkerCount(cfg, len(batch))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]DriveResult, len(batch))
	items := make(chan int, len(batch))
	for i := range batch {
		items <- i
	}
	close(items)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range items {
				if runCtx.Err() != nil {
					return
				}
				step := batch[i]
				updates, herr := handle(runCtx, step)

				errMsg := ""
				if herr != nil {
					errMsg = herr.Error()
				}
				cerr := exec.StepComplete(ctx, runID, step.StepID, queue.StepResult{
					StepID: step.StepID, Updates: updates, Error: errMsg,
				})

				results[i] = DriveResult{StepID: step.StepID, TaskID: step.TaskID, Err: herr}

				if herr == nil && cerr == nil {
					continue
				}
				mu.Lock()
				if firstErr == nil {
					if herr != nil {
						firstErr = herr
					} else {
						firstErr = cerr
					}
				}
				mu.Unlock()
				if cfg.FailFast() {
					cancel()
					return
				}
			}
		}()
	}

	wg.Wait()

	if firstErr != nil && cfg.FailFast() {
		return results, firstErr
	}
	if firstErr != nil && allFailed(results) {
		return results, firstErr
	}
	return results, nil
}

func allFailed(results []DriveResult) bool {
	for _, r := range results {
		if r.Err == nil {
			return false
		}
	}
	return len(results) > 0
}

func resolveWorkerCount(cfg config.ParallelConfig, items int) int {
	if items == 0 {
		return 0
	}
	if cfg.MaxWorkers > 0 {
		return min(cfg.MaxWorkers, items)
	}
	auto := runtime.NumCPU() * 2
	if cfg.WorkerCap > 0 && cfg.WorkerCap < auto {
		auto = cfg.WorkerCap
	}
	return min(auto, items)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
