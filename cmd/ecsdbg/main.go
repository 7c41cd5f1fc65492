// ecsdbg is an interactive REPL over a live, in-memory registry for manual
// exploration during development. It never touches disk beyond its own
// command history file. Grounded on sloty's REPL loop (liner prompt,
// command dispatch, tab completion, a persisted history file) with
// put/get/scan against a slotcache replaced by insert/get/view against an
// ecss container.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/calvinalkan/ecss/pkg/ecss"
)

// Position and Velocity are the demo component types this REPL manipulates.
type Position struct{ X, Y float64 }
type Velocity struct{ X, Y float64 }

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var reg ecss.Registry

	c, err := reg.RegisterComponentSet(true, ecss.Options{}, ecss.Describe[Position](), ecss.Describe[Velocity]())
	if err != nil {
		return fmt.Errorf("registering component set: %w", err)
	}

	repl := &repl{container: c}

	return repl.run()
}

// repl is the interactive command loop.
type repl struct {
	container *ecss.Container
	liner     *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".ecsdbg_history")
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Println("ecsdbg - in-memory entity registry REPL")
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := r.liner.Prompt("ecsdbg> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")

				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			fmt.Println("Bye!")
			r.saveHistory()

			return nil
		case "help", "?":
			r.printHelp()
		case "insert":
			r.cmdInsert(args)
		case "get":
			r.cmdGet(args)
		case "remove":
			r.cmdRemove(args)
		case "pin":
			r.cmdPin(args)
		case "view":
			r.cmdView(args)
		case "stats":
			r.cmdStats()
		case "defragment", "defrag":
			r.cmdDefragment()
		case "bulk":
			r.cmdBulk(args)
		case "clear", "cls":
			fmt.Print("\033[H\033[2J")
		default:
			fmt.Printf("Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *repl) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}

	defer f.Close()

	r.liner.WriteHistory(f)
}

func (r *repl) completer(line string) []string {
	commands := []string{
		"insert", "get", "remove", "pin", "view", "stats",
		"defragment", "defrag", "bulk", "clear", "cls",
		"help", "exit", "quit", "q",
	}

	lower := strings.ToLower(line)

	var completions []string

	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

func (r *repl) printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  insert <id> <x> <y> [vx vy]   Insert Position (and optional Velocity)")
	fmt.Println("  get <id>                      Show id's Position/Velocity")
	fmt.Println("  remove <id>                   Remove id's whole entity")
	fmt.Println("  pin <id>                      Pin id's Position and print it")
	fmt.Println("  view [begin end]              Iterate Position joined with Velocity")
	fmt.Println("  stats                         Show container length")
	fmt.Println("  defragment                    Compact dead sectors out of storage")
	fmt.Println("  bulk <count>                  Insert N sequential entities")
	fmt.Println("  help                          Show this help")
	fmt.Println("  exit / quit / q               Exit")
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}

	return uint32(v), nil
}

func (r *repl) cmdInsert(args []string) {
	if len(args) < 3 {
		fmt.Println("Usage: insert <id> <x> <y> [vx vy]")

		return
	}

	id, err := parseUint32(args[0])
	if err != nil {
		fmt.Printf("Error parsing id: %v\n", err)

		return
	}

	x, errX := strconv.ParseFloat(args[1], 64)
	y, errY := strconv.ParseFloat(args[2], 64)

	if errX != nil || errY != nil {
		fmt.Println("Error: x and y must be numbers")

		return
	}

	if _, err := ecss.Add(r.container, id, Position{X: x, Y: y}); err != nil {
		fmt.Printf("Error inserting position: %v\n", err)

		return
	}

	if len(args) >= 5 {
		vx, errVX := strconv.ParseFloat(args[3], 64)
		vy, errVY := strconv.ParseFloat(args[4], 64)

		if errVX != nil || errVY != nil {
			fmt.Println("Error: vx and vy must be numbers")

			return
		}

		if _, err := ecss.Add(r.container, id, Velocity{X: vx, Y: vy}); err != nil {
			fmt.Printf("Error inserting velocity: %v\n", err)

			return
		}
	}

	fmt.Printf("OK: inserted entity %d\n", id)
}

func (r *repl) cmdGet(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: get <id>")

		return
	}

	id, err := parseUint32(args[0])
	if err != nil {
		fmt.Printf("Error parsing id: %v\n", err)

		return
	}

	pos, ok := ecss.Get[Position](r.container, id)
	if !ok {
		fmt.Println("(no position)")
	} else {
		fmt.Printf("Position: {X:%g Y:%g}\n", pos.X, pos.Y)
	}

	vel, ok := ecss.Get[Velocity](r.container, id)
	if !ok {
		fmt.Println("(no velocity)")
	} else {
		fmt.Printf("Velocity: {X:%g Y:%g}\n", vel.X, vel.Y)
	}
}

func (r *repl) cmdRemove(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: remove <id>")

		return
	}

	id, err := parseUint32(args[0])
	if err != nil {
		fmt.Printf("Error parsing id: %v\n", err)

		return
	}

	if r.container.RemoveEntity(id) {
		fmt.Printf("OK: removed entity %d\n", id)
	} else {
		fmt.Printf("entity %d had nothing to remove\n", id)
	}
}

func (r *repl) cmdPin(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: pin <id>")

		return
	}

	id, err := parseUint32(args[0])
	if err != nil {
		fmt.Printf("Error parsing id: %v\n", err)

		return
	}

	pin, err := ecss.PinSector[Position](r.container, id)
	if err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}
	defer pin.Release()

	if !pin.Live() {
		fmt.Printf("entity %d: sector exists but Position is not alive\n", id)

		return
	}

	fmt.Printf("pinned %d: Position{X:%g Y:%g}\n", pin.ID(), pin.Value().X, pin.Value().Y)
}

func (r *repl) cmdView(args []string) {
	var ranges []ecss.Range

	if len(args) >= 2 {
		begin, errB := parseUint32(args[0])
		end, errE := parseUint32(args[1])

		if errB != nil || errE != nil {
			fmt.Println("Error: begin and end must be integers")

			return
		}

		ranges = []ecss.Range{{Begin: begin, End: end}}
	}

	v := ecss.NewView[Position](r.container, []ecss.ExtraMember{ecss.Extra[Velocity](r.container, false)}, ranges)
	defer v.Close()

	n := 0

	for row := range v.All() {
		pos := row.Main()

		vel := ecss.As[Velocity](row.Extra(0))
		if vel == nil {
			fmt.Printf("%3d. Position{X:%g Y:%g}\n", row.ID(), pos.X, pos.Y)
		} else {
			fmt.Printf("%3d. Position{X:%g Y:%g} Velocity{X:%g Y:%g}\n", row.ID(), pos.X, pos.Y, vel.X, vel.Y)
		}

		n++
	}

	if n == 0 {
		fmt.Println("(empty)")
	}
}

func (r *repl) cmdStats() {
	fmt.Printf("Entities (occupied sectors): %d\n", r.container.Len())
}

func (r *repl) cmdDefragment() {
	if err := r.container.Defragment(); err != nil {
		fmt.Printf("Error: %v\n", err)

		return
	}

	fmt.Println("OK: defragmented")
}

func (r *repl) cmdBulk(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: bulk <count>")

		return
	}

	count, err := strconv.Atoi(args[0])
	if err != nil || count < 1 {
		fmt.Println("Error: count must be a positive integer")

		return
	}

	for i := range count {
		id := uint32(i)

		if _, err := ecss.Add(r.container, id, Position{X: float64(i), Y: float64(-i)}); err != nil {
			fmt.Printf("Error at entity %d: %v\n", i, err)

			return
		}
	}

	fmt.Printf("OK: inserted %d entities\n", count)
}
