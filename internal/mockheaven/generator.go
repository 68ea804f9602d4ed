package mockheaven

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

type mockPort struct {
	label   string
	stages  []string
	outcome Status
	stage   int
	line    int
	idle    int
}

var junosStages = []string{"SwitchDetect", "JunosWaitForBootloader", "JunosBootloaderRecovery", "JunosInstall", "JunosZeroize", "Finish"}
var aristaStages = []string{"SwitchDetect", "AristaWaitForAboot", "AristaZTP", "AristaUpgrade", "Finish"}

// Generator drives the mock ports through provisioning jobs, producing
// serial output and stage changes.
type Generator struct {
	store *Store
	tick  time.Duration
	ports []*mockPort
	rng   *rand.Rand
}

func NewGenerator(store *Store, tick time.Duration) *Generator {
	if tick <= 0 {
		tick = 500 * time.Millisecond
	}
	return &Generator{
		store: store,
		tick:  tick,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed registers the demo ports.
func (g *Generator) Seed() {
	seeds := []struct {
		label   string
		info    []string
		stages  []string
		outcome Status
	}{
		{"sw1-ge-0-0-1", []string{"Juniper", "EX2300-C-12P", "SN JW3619AV0123"}, junosStages, FinishSuccess},
		{"sw1-ge-0-0-2", []string{"Juniper", "EX3400-48P", "SN NX3620AF0456"}, junosStages, FinishWarning},
		{"sw1-ge-0-0-3", []string{"Arista", "DCS-7050SX3-48YC8", "SN JPE21170789"}, aristaStages, FinishError},
		{"sw1-ge-0-0-4", []string{"Arista", "DCS-7010T-48", "SN HSH19420012"}, aristaStages, FinishSuccess},
		{"sw1-ge-0-0-5", []string{"Juniper", "QFX5120-48Y", "SN WS3721AK0099"}, junosStages, Fatal},
	}
	for _, s := range seeds {
		g.store.Add(s.label, s.info...)
		g.ports = append(g.ports, &mockPort{label: s.label, stages: s.stages, outcome: s.outcome})
	}
}

// Start runs the generator until ctx is cancelled.
func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, mp := range g.ports {
				g.advance(mp)
			}
		}
	}
}

func (g *Generator) advance(mp *mockPort) {
	p, ok := g.store.Get(mp.label)
	if !ok {
		return
	}

	// An abort resets the store entry; restart the scripted job.
	if p.Status == Idle && p.Stage == "" && mp.stage > 0 {
		mp.stage, mp.line, mp.idle = 0, 0, 0
	}

	if mp.stage >= len(mp.stages) {
		mp.idle++
		if mp.idle > 20 {
			g.store.Abort(mp.label)
		}
		return
	}

	stage := mp.stages[mp.stage]
	status := Busy
	if mp.line > 6 {
		status = RunningLong
	}
	if stage == "Finish" {
		status = mp.outcome
	}
	g.store.SetStage(mp.label, stage, status)

	line := fmt.Sprintf("[%s] %s: step %d\r\n", time.Now().Format(time.TimeOnly), stage, mp.line+1)
	if mp.line == 0 {
		line = fmt.Sprintf("\x1b[1m==> %s\x1b[0m\r\n", stage) + line
	}
	g.store.AppendSerial(mp.label, []byte(line))

	mp.line++
	if mp.line >= 3+g.rng.Intn(8) || stage == "Finish" {
		mp.stage++
		mp.line = 0
	}
}
