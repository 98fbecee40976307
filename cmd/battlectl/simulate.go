package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"idle-arena/internal/battle"
	"idle-arena/internal/config"
	"idle-arena/internal/event"
	"idle-arena/internal/eventlog"
	"idle-arena/internal/storage/memory"
)

// maxSimulatedTicks stops runaway simulations of unbounded battles
const maxSimulatedTicks = 1_000_000

// stepScheduler holds the single pending tick of an offline battle so the
// simulation can run it immediately instead of waiting on a timer.
type stepScheduler struct {
	mu   sync.Mutex
	next func(ctx context.Context)
}

func (s *stepScheduler) Schedule(_ string, _ time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	s.next = fn
	s.mu.Unlock()
}

func (s *stepScheduler) Cancel(string) {
	s.mu.Lock()
	s.next = nil
	s.mu.Unlock()
}

func (s *stepScheduler) take() func(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn := s.next
	s.next = nil
	return fn
}

// simClock is advanced by one tick interval per simulated tick
type simClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *simClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *simClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// notifierFunc adapts a function to battle.Notifier
type notifierFunc func(n battle.Notification)

func (f notifierFunc) Publish(n battle.Notification) { f(n) }

type simulateOptions struct {
	catalogPath string
	character   string
	enemy       string
	adds        []string
	kind        string
	policy      string
	revive      bool
	maxTurns    int
	tick        time.Duration
	record      bool
	events      bool
	verbose     bool
}

// simulationReport is what simulate prints
type simulationReport struct {
	Battle       battle.Battle        `json:"battle"`
	Result       *battle.Result       `json:"result,omitempty"`
	Participants []battle.Participant `json:"participants"`
	Ticks        int                  `json:"ticks"`
	FirstFrame   uint32               `json:"firstFrame"`
	LastFrame    uint32               `json:"lastFrame"`
	Records      int                  `json:"records"`
	Recorded     bool                 `json:"recorded"`
}

func newSimulateCmd(opts *globalOptions) *cobra.Command {
	sim := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one battle offline on a simulated clock",
		Long: `Run one battle to completion without waiting on real time.

The battle uses the catalog's characters and enemies and an in-memory battle
store. With --record its frames are appended to the configured frame store
after the last persisted frame.`,
		Example: `  battlectl simulate --character knight --enemy dragon --kind boss
  battlectl simulate --character ranger --enemy wolf --adds wolf,wolf --events
  battlectl simulate --character knight --enemy slime --record --db arena.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSimulation(cmd, opts, sim)
		},
	}
	f := cmd.Flags()
	f.StringVar(&sim.catalogPath, "catalog", "", "YAML catalog (default: built-in)")
	f.StringVar(&sim.character, "character", "knight", "character id")
	f.StringVar(&sim.enemy, "enemy", "slime", "enemy id")
	f.StringSliceVar(&sim.adds, "adds", nil, "extra enemy ids")
	f.StringVar(&sim.kind, "kind", "normal", "battle kind (normal, elite, boss, dungeon, raid)")
	f.StringVar(&sim.policy, "policy", "", "target policy (default: lowest_health)")
	f.BoolVar(&sim.revive, "revive", false, "revive the character's team on a wipe")
	f.IntVar(&sim.maxTurns, "max-turns", 0, "turn limit, 0 = unbounded")
	f.DurationVar(&sim.tick, "tick", 100*time.Millisecond, "simulated tick interval")
	f.BoolVar(&sim.record, "record", false, "persist frames to the configured frame store")
	f.BoolVar(&sim.events, "events", false, "print notifications as they happen")
	f.BoolVar(&sim.verbose, "verbose", false, "keep engine logs")
	return cmd
}

func runSimulation(cmd *cobra.Command, opts *globalOptions, sim *simulateOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if !sim.verbose {
		prev := log.Writer()
		log.SetOutput(io.Discard)
		defer log.SetOutput(prev)
	}
	if sim.tick <= 0 {
		return errors.New("tick must be positive")
	}
	kind, err := battle.ParseKind(sim.kind)
	if err != nil {
		return err
	}
	catalog, err := config.LoadCatalog(sim.catalogPath)
	if err != nil {
		return err
	}

	journal := eventlog.NewJournal(eventlog.NewMemoryStore(), eventlog.JournalConfig{})
	if sim.record {
		j, closeStore, err := opts.openJournal()
		if err != nil {
			return err
		}
		defer closeStore()
		journal = j
	}
	last, err := journal.LastFrame(ctx)
	if err != nil {
		return err
	}
	queue := event.NewQueue(event.QueueConfig{StartFrame: last + 1})
	pump := eventlog.NewPump(queue, journal, eventlog.PumpConfig{})

	records := 0
	pump.OnFrame(func(_ uint32, recs []event.Record) { records += len(recs) })

	var notifier battle.Notifier
	if sim.events {
		notifier = notifierFunc(func(n battle.Notification) {
			fmt.Fprintf(out, "  turn %-5d %-16s %s -> %s %d%s\n", n.Turn, n.Type, short(n.ActorID), short(n.TargetID), n.Amount, crit(n.Critical))
		})
	}

	clock := &simClock{now: time.Unix(0, 0).UTC()}
	sched := &stepScheduler{}
	engineOpts := battle.DefaultOptions()
	engineOpts.TickInterval = sim.tick
	engineOpts.Now = clock.Now
	engine := battle.NewEngine(battle.Deps{
		Storage:   memory.New(),
		Roster:    catalog,
		Notifier:  notifier,
		Scheduler: sched,
		Queue:     queue,
	}, engineOpts)

	id, err := engine.CreateBattle(ctx, battle.CreateParams{
		CharacterID:  sim.character,
		EnemyID:      sim.enemy,
		Adds:         sim.adds,
		Kind:         kind,
		Policy:       sim.policy,
		ReviveOnWipe: &sim.revive,
		MaxTurns:     sim.maxTurns,
	})
	if err != nil {
		return err
	}
	if err := engine.StartBattle(ctx, id); err != nil {
		return err
	}
	first := queue.Frame()
	pump.Step(ctx)

	ticks := 0
	for ; ticks < maxSimulatedTicks; ticks++ {
		if ctx.Err() != nil {
			engine.StopBattle(context.WithoutCancel(ctx), id)
			break
		}
		tick := sched.take()
		if tick == nil {
			break
		}
		clock.advance(sim.tick)
		tick(ctx)
		pump.Step(ctx)
	}
	if ticks == maxSimulatedTicks {
		engine.StopBattle(ctx, id)
		pump.Step(ctx)
	}

	snap, err := engine.GetStatus(ctx, id)
	if err != nil {
		return err
	}
	report := simulationReport{
		Battle:       snap.Battle,
		Result:       snap.Result,
		Participants: snap.Participants,
		Ticks:        ticks,
		FirstFrame:   first,
		LastFrame:    queue.LastClosed(),
		Records:      records,
		Recorded:     sim.record,
	}
	if opts.jsonOutput {
		return writeJSON(out, report)
	}
	printReport(out, report)
	return nil
}

func printReport(out io.Writer, r simulationReport) {
	b := r.Battle
	fmt.Fprintf(out, "battle %s (%s, policy %s): %s after %d turns\n", b.ID, b.Kind, b.Policy, b.Status, b.Turn)
	if r.Result != nil {
		res := r.Result
		fmt.Fprintf(out, "  outcome:  %s in %v simulated\n", res.Outcome, res.Duration)
		fmt.Fprintf(out, "  rewards:  %d xp, %d gold", res.Rewards.Experience, res.Rewards.Gold)
		if len(res.Rewards.Items) > 0 {
			fmt.Fprintf(out, ", items: %s", strings.Join(res.Rewards.Items, ", "))
		}
		fmt.Fprintln(out)
	}
	for _, p := range r.Participants {
		state := "alive"
		if !p.Alive {
			state = "dead"
		}
		fmt.Fprintf(out, "  team %d  %-14s %4d/%-4d hp  %s\n", p.Team, p.Name, p.Health, p.MaxHealth, state)
	}
	where := "discarded"
	if r.Recorded {
		where = "recorded"
	}
	fmt.Fprintf(out, "  frames:   %d..%d, %d records %s\n", r.FirstFrame, r.LastFrame, r.Records, where)
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}

func crit(c bool) string {
	if c {
		return " (crit)"
	}
	return ""
}
