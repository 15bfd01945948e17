// roll evaluates a dice formula against optional bindings.
//
// Usage:
//
//	go run ./cmd/roll '1d20 + @abilities.str.mod'
//	go run ./cmd/roll -data fighter.yaml -seed 7 -n 3 '2d6 + @bonus'
//	go run ./cmd/roll -json '4d6'
//
// The data file is YAML or JSON. An actor document ({_id, data, items})
// binds its data the way item rolls see it; any other document is
// flattened as is.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/d20core/internal/game/formula"
	"github.com/udisondev/d20core/internal/model"
)

func main() {
	dataPath := flag.String("data", "", "YAML or JSON file with bindings")
	seed := flag.Int64("seed", 0, "dice seed (0 = random)")
	times := flag.Int("n", 1, "number of rolls")
	asJSON := flag.Bool("json", false, "print results as JSON lines")
	flag.Parse()

	expr := strings.Join(flag.Args(), " ")
	if expr == "" {
		fmt.Fprintln(os.Stderr, "usage: roll [flags] <formula>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if err := run(os.Stdout, expr, *dataPath, *seed, *times, *asJSON); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(w io.Writer, expr, dataPath string, seed int64, times int, asJSON bool) error {
	b := formula.Bindings{}
	if dataPath != "" {
		var err error
		if b, err = loadBindings(dataPath); err != nil {
			return err
		}
	}

	src, err := diceSource(seed)
	if err != nil {
		return err
	}
	ev := formula.New(src)

	for range max(times, 1) {
		res, err := ev.Roll(expr, b)
		if err != nil {
			return err
		}
		if asJSON {
			line, err := json.Marshal(res)
			if err != nil {
				return fmt.Errorf("encoding result: %w", err)
			}
			fmt.Fprintln(w, string(line))
			continue
		}
		fmt.Fprintln(w, render(res))
	}
	return nil
}

func diceSource(seed int64) (formula.Source, error) {
	if seed != 0 {
		return formula.NewSource(seed), nil
	}
	return formula.NewRandomSource()
}

// loadBindings reads path and flattens it into bindings.
func loadBindings(path string) (formula.Bindings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("converting %s: %w", path, err)
	}

	_, hasID := doc["_id"]
	_, hasData := doc["data"]
	if hasID && hasData {
		var a model.Actor
		if err := json.Unmarshal(js, &a); err != nil {
			return nil, fmt.Errorf("decoding actor %s: %w", path, err)
		}
		a.Normalize()
		return a.RollData()
	}
	return formula.FlattenJSON(js), nil
}

// render prints "formula = substituted [dice] = total".
func render(res formula.Result) string {
	var sb strings.Builder
	sb.WriteString(res.Formula)
	if res.Substituted != "" && res.Substituted != res.Formula {
		sb.WriteString(" = ")
		sb.WriteString(res.Substituted)
	}
	for _, d := range res.Dice {
		fmt.Fprintf(&sb, " [%dd%d: %s]", d.Count, d.Sides, joinInts(d.Results))
	}
	sb.WriteString(" = ")
	sb.WriteString(formula.FormatNumber(res.Total, false))
	return sb.String()
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ",")
}
