// ecsbench seeds a registry with synthetic component sets and times
// insert/get/remove/defragment/view workloads against it, writing a JSON
// report. Grounded on tk-bench's shape (flags, a timed workload, a report
// file written to an output directory) with the hyperfine/subprocess
// machinery replaced by in-process timing, since there is no separate
// binary to shell out to here.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/pflag"
	"github.com/tailscale/hujson"

	"github.com/calvinalkan/ecss/pkg/ecss"
	"github.com/calvinalkan/ecss/pkg/fs"
)

// Position and Velocity are the synthetic component types exercised by
// every workload. Their shapes don't matter; only their count and size.
type Position struct{ X, Y, Z float64 }
type Velocity struct{ X, Y, Z float64 }

// config holds the tunables for one bench run. Flags set it first; an
// optional hujson profile file overrides whatever the flags didn't
// explicitly set.
type config struct {
	Entities      int     `json:"entities"`
	ChunkCapacity uint32  `json:"chunk_capacity"`
	DefragRatio   float64 `json:"defrag_ratio"`
	Iterations    int     `json:"iterations"`
	ThreadSafe    bool    `json:"thread_safe"`
	Out           string  `json:"-"`
	Profile       string  `json:"-"`
}

func defaultConfig() config {
	return config{
		Entities:      100_000,
		ChunkCapacity: 4096,
		DefragRatio:   0.2,
		Iterations:    3,
		ThreadSafe:    false,
	}
}

// report is the JSON document written to -out after a run.
type report struct {
	Config    config             `json:"config"`
	Timestamp string              `json:"timestamp"`
	Results   map[string]workload `json:"results"`
}

type workload struct {
	Ops      int     `json:"ops"`
	Elapsed  string  `json:"elapsed"`
	OpsPerMs float64 `json:"ops_per_ms"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "ecsbench: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg := defaultConfig()

	fset := pflag.NewFlagSet("ecsbench", pflag.ContinueOnError)
	fset.IntVar(&cfg.Entities, "entities", cfg.Entities, "number of entities to insert")
	fset.Uint32Var(&cfg.ChunkCapacity, "chunk-capacity", cfg.ChunkCapacity, "sectors per chunk")
	fset.Float64Var(&cfg.DefragRatio, "defrag-ratio", cfg.DefragRatio, "defragment threshold ratio")
	fset.IntVar(&cfg.Iterations, "iterations", cfg.Iterations, "repetitions per workload")
	fset.BoolVar(&cfg.ThreadSafe, "thread-safe", cfg.ThreadSafe, "benchmark the thread-safe container variant")
	fset.StringVar(&cfg.Out, "out", "", "report output path (default: stdout only)")
	fset.StringVar(&cfg.Profile, "profile", "", "optional hujson config file overriding these flags' defaults")

	if err := fset.Parse(args); err != nil {
		return err
	}

	if cfg.Profile != "" {
		overridden, err := applyProfile(cfg, cfg.Profile)
		if err != nil {
			return fmt.Errorf("loading profile %q: %w", cfg.Profile, err)
		}

		cfg = overridden

		// Re-apply the command line so explicitly set flags win over the profile.
		if err := fset.Parse(args); err != nil {
			return err
		}
	}

	rep, err := bench(cfg)
	if err != nil {
		return fmt.Errorf("running benchmark: %w", err)
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	fmt.Println(string(data))

	if cfg.Out == "" {
		return nil
	}

	writer := fs.NewAtomicWriter(fs.NewReal())

	if err := writer.WriteWithDefaults(cfg.Out, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("writing report to %q: %w", cfg.Out, err)
	}

	fmt.Fprintf(os.Stderr, "wrote %s\n", cfg.Out)

	return nil
}

// applyProfile standardizes the hujson file at path to plain JSON and
// unmarshals it over base, returning the merged config.
func applyProfile(base config, path string) (config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return config{}, err
	}

	std, err := hujson.Standardize(raw)
	if err != nil {
		return config{}, fmt.Errorf("parsing hujson: %w", err)
	}

	if err := json.Unmarshal(std, &base); err != nil {
		return config{}, fmt.Errorf("decoding profile: %w", err)
	}

	return base, nil
}

func bench(cfg config) (report, error) {
	rep := report{
		Config:    cfg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Results:   make(map[string]workload),
	}

	var reg ecss.Registry

	opts := ecss.Options{ChunkCapacity: cfg.ChunkCapacity, DefragThreshold: cfg.DefragRatio}

	c, err := reg.RegisterComponentSet(cfg.ThreadSafe, opts, ecss.Describe[Position](), ecss.Describe[Velocity]())
	if err != nil {
		return report{}, fmt.Errorf("registering component set: %w", err)
	}

	rng := rand.New(rand.NewSource(1))

	rep.Results["insert"] = timeOp(cfg.Entities, func(id uint32) {
		_, _ = ecss.Add(c, id, Position{X: float64(id)})
		_, _ = ecss.Add(c, id, Velocity{X: rng.Float64()})
	})

	rep.Results["get"] = timeOp(cfg.Entities, func(id uint32) {
		_, _ = ecss.Get[Position](c, id)
	})

	rep.Results["view"] = timeView(c, cfg.Iterations)

	rep.Results["remove_half"] = timeOp(cfg.Entities/2, func(id uint32) {
		c.RemoveEntity(id * 2)
	})

	start := time.Now()

	if err := c.Defragment(); err != nil {
		return report{}, fmt.Errorf("defragment: %w", err)
	}

	rep.Results["defragment"] = workload{Ops: 1, Elapsed: time.Since(start).String()}

	return rep, nil
}

func timeOp(n int, op func(id uint32)) workload {
	start := time.Now()

	for id := uint32(0); id < uint32(n); id++ {
		op(id)
	}

	elapsed := time.Since(start)

	return workload{
		Ops:      n,
		Elapsed:  elapsed.String(),
		OpsPerMs: float64(n) / float64(elapsed.Milliseconds()+1),
	}
}

func timeView(c *ecss.Container, iterations int) workload {
	start := time.Now()

	rows := 0

	for range iterations {
		v := ecss.NewView[Position](c, []ecss.ExtraMember{ecss.Extra[Velocity](c, true)}, nil)

		for row := range v.All() {
			row.Main().X += ecss.As[Velocity](row.Extra(0)).X
			rows++
		}

		v.Close()
	}

	elapsed := time.Since(start)

	return workload{
		Ops:      rows,
		Elapsed:  elapsed.String(),
		OpsPerMs: float64(rows) / float64(elapsed.Milliseconds()+1),
	}
}
