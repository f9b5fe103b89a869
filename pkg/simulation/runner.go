package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linem-davton/graphdraw/pkg/client"
	"github.com/linem-davton/graphdraw/pkg/generator"
	"github.com/linem-davton/graphdraw/pkg/model"
)

// RunScenario runs every editor of s against the daemon at apiURL until the
// scenario duration elapses or ctx ends.
func RunScenario(ctx context.Context, s Scenario, apiURL string, logger *slog.Logger) SimulationResult {
	if s.Seed == 0 {
		s.Seed = uint64(time.Now().UnixNano())
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Running scenario", "name", s.Name, "seed", s.Seed, "duration", s.Duration)

	ctx, cancel := context.WithTimeout(ctx, s.Duration)
	defer cancel()

	res := SimulationResult{
		ScenarioName: s.Name,
		Duration:     s.Duration,
		EditorStats:  make(map[string]*EditorStats),
		Actions:      make(map[Action]uint64),
	}
	for _, e := range s.Editors {
		if _, ok := res.EditorStats[e.Name]; !ok {
			res.EditorStats[e.Name] = &EditorStats{}
		}
	}

	var actionsMu sync.Mutex
	countAction := func(a Action) {
		actionsMu.Lock()
		res.Actions[a]++
		actionsMu.Unlock()
	}

	c := client.NewClient(apiURL)
	var wg sync.WaitGroup
	for groupIdx, cfg := range s.Editors {
		stats := res.EditorStats[cfg.Name] // Stats are grouped by editor config name
		for i := 0; i < cfg.Count; i++ {
			wg.Add(1)
			e := &editor{
				id:      fmt.Sprintf("%s-%d", cfg.Name, i),
				cfg:     cfg,
				client:  c,
				rng:     rand.New(rand.NewPCG(s.Seed, uint64(groupIdx)<<32|uint64(i))),
				global:  &res,
				stats:   stats,
				counted: countAction,
				logger:  logger,
			}
			go func() {
				defer wg.Done()
				e.run(ctx)
			}()
		}
	}
	wg.Wait()

	evaluateInvariants(&res, s.Invariants)

	res.Success = true
	for _, inv := range res.Invariants {
		if !inv.Passed {
			res.Success = false
			break
		}
	}
	return res
}

type editor struct {
	id      string
	cfg     EditorConfig
	client  *client.Client
	rng     *rand.Rand
	global  *SimulationResult
	stats   *EditorStats
	counted func(Action)
	logger  *slog.Logger

	session string
}

func (e *editor) run(ctx context.Context) {
	key := e.cfg.Key
	if key == "" {
		key = "sim-" + e.id
	}
	st, err := e.client.CreateSession(ctx, key, false)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Warn("Failed to create session", "editor", e.id, "error", err)
			e.track(err)
		}
		return
	}
	e.session = st.ID
	defer func() {
		// The scenario context is done by now.
		cleanup, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.client.DeleteSession(cleanup, e.session); err != nil {
			e.logger.Debug("Failed to delete session", "editor", e.id, "error", err)
		}
	}()

	action := func() {
		err := e.act(ctx)
		if ctx.Err() != nil {
			// Requests cut short by the end of the scenario are not counted.
			return
		}
		e.track(err)
	}

	switch e.cfg.Behavior {
	case BehaviorGreedy:
		for ctx.Err() == nil {
			action()
		}
	case BehaviorPoisson:
		lambda := float64(e.cfg.Rate)
		for {
			interval := -math.Log(1-e.rng.Float64()) / lambda
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(interval * float64(time.Second))):
				action()
			}
		}
	case BehaviorBursty:
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for k := 0; k < e.cfg.Burst && ctx.Err() == nil; k++ {
					action()
				}
			}
		}
	case BehaviorPeriodic:
		fallthrough
	default:
		interval := time.Second / time.Duration(max(e.cfg.Rate, 1))
		if interval == 0 {
			interval = time.Millisecond * 10
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if e.cfg.Jitter > 0 {
					time.Sleep(time.Duration(e.rng.Int64N(int64(e.cfg.Jitter))))
				}
				action()
			}
		}
	}
}

func (e *editor) track(err error) {
	atomic.AddUint64(&e.global.TotalRequests, 1)
	atomic.AddUint64(&e.stats.Requests, 1)
	var apiErr *client.APIError
	switch {
	case err == nil:
		atomic.AddUint64(&e.global.TotalSucceeded, 1)
		atomic.AddUint64(&e.stats.Succeeded, 1)
	case errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500:
		atomic.AddUint64(&e.global.TotalRejected, 1)
		atomic.AddUint64(&e.stats.Rejected, 1)
	default:
		atomic.AddUint64(&e.global.TotalErrors, 1)
		atomic.AddUint64(&e.stats.Errors, 1)
	}
}

func (e *editor) pick() Action {
	mix := e.cfg.Actions
	if len(mix) == 0 {
		mix = defaultMix
	}
	return mix[e.rng.IntN(len(mix))]
}

// act performs one random action. Endpoints are drawn from the current
// session state, so some edits are expected to be rejected (duplicates,
// self loops, endpoint rules).
func (e *editor) act(ctx context.Context) error {
	a := e.pick()
	e.counted(a)

	switch a {
	case ActionAddTask:
		_, err := e.client.AddTask(ctx, e.session, client.TaskSpec{
			WCET:     client.Float(float64(1 + e.rng.IntN(100))),
			Deadline: client.Float(float64(100 + e.rng.IntN(900))),
		})
		return err
	case ActionAddNode:
		_, err := e.client.AddNode(ctx, e.session, model.NodeTypes[e.rng.IntN(len(model.NodeTypes))])
		return err
	case ActionGenerate:
		ap := generator.DefaultApplicationParams()
		ap.N = 2 + e.rng.IntN(6)
		if _, err := e.client.GenerateApplication(ctx, e.session, ap); err != nil {
			return err
		}
		pp := generator.DefaultPlatformParams()
		pp.Compute, pp.Routers = 1+e.rng.IntN(4), 1+e.rng.IntN(3)
		_, err := e.client.GeneratePlatform(ctx, e.session, pp)
		return err
	case ActionExportModel:
		_, err := e.client.Export(ctx, e.session)
		return err
	}

	st, err := e.client.GetSession(ctx, e.session)
	if err != nil {
		return err
	}
	tasks := st.Model.Application.Tasks
	nodes := st.Model.Platform.Nodes

	switch a {
	case ActionAddMessage:
		if len(tasks) == 0 {
			return e.addTaskInstead(ctx)
		}
		_, err = e.client.AddMessage(ctx, e.session, client.MessageSpec{
			Sender:   tasks[e.rng.IntN(len(tasks))].ID,
			Receiver: tasks[e.rng.IntN(len(tasks))].ID,
		})
	case ActionDeleteTask:
		if len(tasks) == 0 {
			return e.addTaskInstead(ctx)
		}
		err = e.client.DeleteTask(ctx, e.session, tasks[e.rng.IntN(len(tasks))].ID)
	case ActionUpdateTask:
		if len(tasks) == 0 {
			return e.addTaskInstead(ctx)
		}
		err = e.client.UpdateTask(ctx, e.session, tasks[e.rng.IntN(len(tasks))].ID, "wcet", float64(1+e.rng.IntN(100)))
	case ActionAddLink:
		if len(nodes) == 0 {
			_, err = e.client.AddNode(ctx, e.session, model.NodeRouter)
			return err
		}
		_, err = e.client.AddLink(ctx, e.session, client.LinkSpec{
			StartNode: nodes[e.rng.IntN(len(nodes))].ID,
			EndNode:   nodes[e.rng.IntN(len(nodes))].ID,
		})
	case ActionDeleteNode:
		if len(nodes) == 0 {
			_, err = e.client.AddNode(ctx, e.session, model.NodeCompute)
			return err
		}
		err = e.client.DeleteNode(ctx, e.session, nodes[e.rng.IntN(len(nodes))].ID)
	}
	return err
}

func (e *editor) addTaskInstead(ctx context.Context) error {
	_, err := e.client.AddTask(ctx, e.session, client.TaskSpec{})
	return err
}

func evaluateInvariants(res *SimulationResult, invariants []Invariant) {
	for _, inv := range invariants {
		var stats EditorStats
		if inv.Scope == "global" || inv.Scope == "" {
			stats = EditorStats{
				Requests:  atomic.LoadUint64(&res.TotalRequests),
				Succeeded: atomic.LoadUint64(&res.TotalSucceeded),
				Rejected:  atomic.LoadUint64(&res.TotalRejected),
				Errors:    atomic.LoadUint64(&res.TotalErrors),
			}
		} else if s, ok := res.EditorStats[inv.Scope]; ok {
			stats = EditorStats{
				Requests:  atomic.LoadUint64(&s.Requests),
				Succeeded: atomic.LoadUint64(&s.Succeeded),
				Rejected:  atomic.LoadUint64(&s.Rejected),
				Errors:    atomic.LoadUint64(&s.Errors),
			}
		} else {
			res.Invariants = append(res.Invariants, InvariantResult{
				Metric: inv.Metric, Scope: inv.Scope, Expected: fmt.Sprintf("%s %.2f", inv.Condition, inv.Value), Actual: "N/A", Passed: false,
			})
			continue
		}

		var actual float64
		if stats.Requests > 0 {
			switch inv.Metric {
			case "success_rate":
				actual = float64(stats.Succeeded) / float64(stats.Requests)
			case "rejection_rate":
				actual = float64(stats.Rejected) / float64(stats.Requests)
			case "error_rate":
				actual = float64(stats.Errors) / float64(stats.Requests)
			}
		}

		var passed bool
		switch inv.Condition {
		case ">":
			passed = actual > inv.Value
		case ">=":
			passed = actual >= inv.Value
		case "<":
			passed = actual < inv.Value
		case "<=":
			passed = actual <= inv.Value
		case "==":
			passed = math.Abs(actual-inv.Value) < 0.0001
		}

		res.Invariants = append(res.Invariants, InvariantResult{
			Metric:   inv.Metric,
			Scope:    inv.Scope,
			Expected: fmt.Sprintf("%s %.2f", inv.Condition, inv.Value),
			Actual:   fmt.Sprintf("%.4f", actual),
			Passed:   passed,
		})
	}
}
