package generator

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linem-davton/graphdraw/pkg/model"
)

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func TestApplicationOnlyForwardEdges(t *testing.T) {
	p := DefaultApplicationParams()
	p.N = 30
	p.LinkProb = 1

	for seed := uint64(1); seed <= 20; seed++ {
		app, err := GenerateApplicationModel(p, seeded(seed))
		require.NoError(t, err)
		require.Len(t, app.Tasks, 30)

		for _, m := range app.Messages {
			assert.Less(t, m.Sender, m.Receiver)
		}
		assert.NoError(t, model.ValidateCombined(model.CombinedModel{Application: app, Platform: model.NewPlatformModel()}))
	}
}

func TestApplicationDrawsWithinRanges(t *testing.T) {
	p := DefaultApplicationParams()
	p.N = 50
	app, err := GenerateApplicationModel(p, seeded(7))
	require.NoError(t, err)

	for i, task := range app.Tasks {
		assert.Equal(t, model.TaskID(i), task.ID)
		assert.GreaterOrEqual(t, task.WCET, float64(p.MinWCET))
		assert.LessOrEqual(t, task.WCET, float64(p.MaxWCET))
		assert.GreaterOrEqual(t, task.MCET, float64(p.MinMCET))
		assert.Less(t, task.MCET, float64(p.MinMCET)+task.WCET)
		assert.GreaterOrEqual(t, task.Deadline, task.WCET+float64(p.MinDeadlineOffset))
		assert.Less(t, task.Deadline, task.WCET+float64(p.MinDeadlineOffset+p.MaxDeadline))
	}
	for i, m := range app.Messages {
		assert.Equal(t, model.MessageID(i), m.ID)
		assert.GreaterOrEqual(t, m.Size, float64(1))
		assert.LessOrEqual(t, m.Size, float64(p.MaxMessageSize))
		assert.Zero(t, m.MessageInjectionTime)
	}
}

func TestApplicationZeroLinkProbHasNoMessages(t *testing.T) {
	p := DefaultApplicationParams()
	p.LinkProb = 0
	app, err := GenerateApplicationModel(p, seeded(3))
	require.NoError(t, err)
	assert.Empty(t, app.Messages)
}

func TestApplicationRejectsInvalidParameters(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*ApplicationParams)
	}{
		{"max wcet below min wcet", func(p *ApplicationParams) { p.MaxWCET, p.MinWCET = 10, 20 }},
		{"min mcet above min wcet", func(p *ApplicationParams) { p.MinMCET = p.MinWCET + 1 }},
		{"deadline span too small", func(p *ApplicationParams) { p.MaxDeadline = p.MaxWCET + p.MinDeadlineOffset - 1 }},
		{"negative offset", func(p *ApplicationParams) { p.MinDeadlineOffset = -1 }},
		{"link prob above one", func(p *ApplicationParams) { p.LinkProb = 1.5 }},
		{"negative link prob", func(p *ApplicationParams) { p.LinkProb = -0.1 }},
		{"zero min wcet", func(p *ApplicationParams) { p.MinWCET, p.MinMCET = 0, 0 }},
		{"zero max message size", func(p *ApplicationParams) { p.MaxMessageSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultApplicationParams()
			tt.mut(&p)
			app, err := GenerateApplicationModel(p, seeded(1))
			assert.ErrorIs(t, err, model.ErrInvalidParameters)
			assert.Empty(t, app.Tasks)
			assert.Empty(t, app.Messages)
		})
	}
}

func TestApplicationPositionalRejection(t *testing.T) {
	p := ApplicationParams{
		N:                 5,
		MaxWCET:           10,
		MinWCET:           20,
		MinMCET:           1,
		MinDeadlineOffset: 10,
		MaxDeadline:       1000,
		LinkProb:          0.5,
		MaxMessageSize:    50,
	}
	app, err := GenerateApplicationModel(p, seeded(1))
	require.ErrorIs(t, err, model.ErrInvalidParameters)
	assert.Contains(t, err.Error(), "max_wcet")
	assert.Equal(t, model.NewApplicationModel(), app)
}

func TestPlatformRingTopology(t *testing.T) {
	p := DefaultPlatformParams()
	platform, err := GeneratePlatformModel(p, seeded(11))
	require.NoError(t, err)
	require.Len(t, platform.Nodes, 13)

	types := map[model.NodeType]int{}
	for i, n := range platform.Nodes {
		assert.Equal(t, model.NodeID(i), n.ID)
		types[n.Type]++
	}
	assert.Equal(t, map[model.NodeType]int{
		model.NodeCompute: 6, model.NodeRouter: 3, model.NodeSensor: 2, model.NodeActuator: 2,
	}, types)

	for k := 0; k < 3; k++ {
		start := model.NodeID(6 + k)
		end := model.NodeID(6 + (k+1)%3)
		assert.GreaterOrEqual(t, platform.LinkIndex(start, end), 0, "ring link %d->%d", start, end)
	}

	outgoing := map[model.NodeID]int{}
	for i, l := range platform.Links {
		assert.Equal(t, model.LinkID(i), l.ID)
		assert.Equal(t, model.LinkTypeEthernet, l.Type)
		assert.GreaterOrEqual(t, l.LinkDelay, float64(p.MinDelay))
		assert.LessOrEqual(t, l.Bandwidth, float64(p.MaxBandwidth))
		outgoing[l.StartNode]++
	}
	for _, n := range platform.Nodes {
		if n.Type != model.NodeRouter {
			assert.Equal(t, 1, outgoing[n.ID], "node %d links to exactly one router", n.ID)
		}
	}
	assert.Len(t, platform.Links, 3+10)
	assert.NoError(t, model.ValidateCombined(model.CombinedModel{Application: model.NewApplicationModel(), Platform: platform}))
}

func TestPlatformSingleRouterSkipsRing(t *testing.T) {
	p := DefaultPlatformParams()
	p.Routers = 1
	platform, err := GeneratePlatformModel(p, seeded(5))
	require.NoError(t, err)
	assert.Len(t, platform.Links, 10)
	for _, l := range platform.Links {
		assert.Equal(t, model.NodeID(6), l.EndNode)
	}
}

func TestPlatformRejectsInvalidParameters(t *testing.T) {
	for name, mut := range map[string]func(*PlatformParams){
		"no compute":            func(p *PlatformParams) { p.Compute = 0 },
		"no routers":            func(p *PlatformParams) { p.Routers = 0 },
		"no sensors":            func(p *PlatformParams) { p.Sensors = 0 },
		"no actuators":          func(p *PlatformParams) { p.Actuators = 0 },
		"delay range inverted":  func(p *PlatformParams) { p.MaxDelay, p.MinDelay = 1, 5 },
		"bandwidth range empty": func(p *PlatformParams) { p.MaxBandwidth, p.MinBandwidth = 0, 1 },
	} {
		t.Run(name, func(t *testing.T) {
			p := DefaultPlatformParams()
			mut(&p)
			platform, err := GeneratePlatformModel(p, seeded(1))
			assert.ErrorIs(t, err, model.ErrInvalidParameters)
			assert.Empty(t, platform.Nodes)
		})
	}
}

func TestGenerateCombinedIsSchedulable(t *testing.T) {
	m, err := GenerateCombined(DefaultApplicationParams(), DefaultPlatformParams(), seeded(42))
	require.NoError(t, err)
	assert.True(t, m.Schedulable())
	assert.NoError(t, model.ValidateCombined(m))
}
