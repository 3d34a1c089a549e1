// Command callback runs the engine without any broker: a simulated CNC
// spindle is fed through Ingest and incidents are printed as they are reported.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ghalamif/AegisSentinel/pkg/sentinel"
)

func main() {
	dir, err := os.MkdirTemp("", "aegis-callback")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	cfg := &sentinel.Config{
		Journal:   sentinel.JournalConfig{Dir: dir},
		Metrics:   sentinel.MetricsConfig{Addr: "127.0.0.1:0"},
		Approvals: sentinel.ApprovalsConfig{Addr: "127.0.0.1:0"},
		Agents:    []sentinel.AgentSpec{{MachineID: "CNC-001", Type: "precision"}},
	}

	printer := func(_ context.Context, batch []sentinel.Incident) error {
		for _, inc := range batch {
			fmt.Printf("%s %s %-16s tier=%-6s %s\n",
				inc.Timestamp.Format(time.RFC3339), inc.ID, inc.Type, inc.Tier, inc.ActionDetail)
		}
		return nil
	}
	logCommands := sentinel.ActuatorFunc(func(_ context.Context, cmd sentinel.Command) error {
		fmt.Printf("command -> %s: %+v\n", cmd.MachineID, cmd)
		return nil
	})

	ctx := context.Background()
	rt, err := sentinel.NewRuntime(ctx, cfg,
		sentinel.WithSink(sentinel.NewCallbackSink("stdout", printer)),
		sentinel.WithActuator(logCommands),
	)
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	if err := rt.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}

	// a healthy spindle, then a bearing going bad
	for i, vib := range []float64{0.004, 0.005, 0.004, 0.025, 0.06} {
		t := &sentinel.Telemetry{
			Timestamp: time.Now().UTC(),
			MachineID: "CNC-001",
			Metrics:   map[string]float64{"vibration": vib, "temperature": 21, "load_percent": 55},
		}
		if err := rt.Ingest(ctx, t); err != nil {
			log.Printf("ingest %d: %v", i, err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	for _, p := range rt.PendingApprovals() {
		fmt.Printf("pending approval %s: %s\n", p.ID, p.Decision.Action.Describe())
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
