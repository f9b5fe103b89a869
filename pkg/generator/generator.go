// Package generator produces random application and platform models that
// satisfy the same invariants the editor enforces.
package generator

import (
	"math/rand/v2"

	"github.com/linem-davton/graphdraw/pkg/model"
)

// GenerateApplicationModel draws p.N tasks and forward-only messages.
// Message i->j is added with probability LinkProb/(j-i), so the graph is
// acyclic by construction. Invalid params yield an empty model and an error
// wrapping model.ErrInvalidParameters.
func GenerateApplicationModel(p ApplicationParams, r *rand.Rand) (model.ApplicationModel, error) {
	if err := p.Validate(); err != nil {
		return model.NewApplicationModel(), err
	}

	app := model.NewApplicationModel()
	for i := 0; i < p.N; i++ {
		wcet := intIn(r, p.MinWCET, p.MaxWCET)
		mcet := intFrom(r, p.MinMCET, p.MinMCET+wcet)
		deadline := wcet + p.MinDeadlineOffset + intFrom(r, 0, p.MaxDeadline)
		app.Tasks = append(app.Tasks, model.Task{
			ID:       model.TaskID(i),
			WCET:     float64(wcet),
			MCET:     float64(mcet),
			Deadline: float64(deadline),
		})
	}

	for i := 0; i < p.N; i++ {
		for j := i + 1; j < p.N; j++ {
			if r.Float64() >= p.LinkProb/float64(j-i) {
				continue
			}
			app.Messages = append(app.Messages, model.Message{
				ID:       model.MessageID(len(app.Messages)),
				Sender:   model.TaskID(i),
				Receiver: model.TaskID(j),
				Size:     float64(intIn(r, 1, p.MaxMessageSize)),
			})
		}
	}
	return app, nil
}

// GeneratePlatformModel lays out compute, router, sensor and actuator nodes
// in that id order. Routers form a ring; every other node links to one
// random router.
func GeneratePlatformModel(p PlatformParams, r *rand.Rand) (model.PlatformModel, error) {
	if err := p.Validate(); err != nil {
		return model.NewPlatformModel(), err
	}

	platform := model.NewPlatformModel()
	add := func(count int, t model.NodeType) {
		for i := 0; i < count; i++ {
			platform.Nodes = append(platform.Nodes, model.PlatformNode{
				ID:   model.NodeID(len(platform.Nodes)),
				Type: t,
			})
		}
	}
	add(p.Compute, model.NodeCompute)
	add(p.Routers, model.NodeRouter)
	add(p.Sensors, model.NodeSensor)
	add(p.Actuators, model.NodeActuator)

	firstRouter := p.Compute
	link := func(start, end int) {
		platform.Links = append(platform.Links, model.Link{
			ID:        model.LinkID(len(platform.Links)),
			StartNode: model.NodeID(start),
			EndNode:   model.NodeID(end),
			LinkDelay: float64(intIn(r, p.MinDelay, p.MaxDelay)),
			Bandwidth: float64(intIn(r, p.MinBandwidth, p.MaxBandwidth)),
			Type:      model.LinkTypeEthernet,
		})
	}

	// A single router would close the ring on itself.
	if p.Routers > 1 {
		for k := 0; k < p.Routers; k++ {
			link(firstRouter+k, firstRouter+(k+1)%p.Routers)
		}
	}
	for _, n := range platform.Nodes {
		if n.Type == model.NodeRouter {
			continue
		}
		link(int(n.ID), firstRouter+r.IntN(p.Routers))
	}
	return platform, nil
}

// GenerateCombined runs both generators.
func GenerateCombined(ap ApplicationParams, pp PlatformParams, r *rand.Rand) (model.CombinedModel, error) {
	app, err := GenerateApplicationModel(ap, r)
	if err != nil {
		return model.NewCombinedModel(), err
	}
	platform, err := GeneratePlatformModel(pp, r)
	if err != nil {
		return model.NewCombinedModel(), err
	}
	return model.CombinedModel{Application: app, Platform: platform}, nil
}

// intIn draws from [lo, hi].
func intIn(r *rand.Rand, lo, hi int) int {
	return lo + r.IntN(hi-lo+1)
}

// intFrom draws from [lo, hi).
func intFrom(r *rand.Rand, lo, hi int) int {
	return lo + r.IntN(hi-lo)
}
