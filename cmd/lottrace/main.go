// Command lottrace ingests, queries and exports lots on a local or DynamoDB
// backend.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/jacentio/lottrace/internal/config"
	"github.com/jacentio/lottrace/internal/logger"
	"github.com/jacentio/lottrace/internal/sheet"
	"github.com/jacentio/lottrace/lot"
	"github.com/jacentio/lottrace/registry"
)

const usage = `usage: lottrace [-config file] <command> [args]

commands:
  ingest <file.json|file.xlsx>   insert a Detail tree or Input list as one batch
  get <lot>                      print a lot
  update <lot> [flags]           overwrite the mutable fields of a lot
  parent <lot>                   print the parent id
  children <lot>                 list direct children
  flat <lot>                     list a lot and its descendants
  tree <lot>                     print a lot and its descendants nested
  code <code>                    list lots by item code
  type <type>                    list lots by item type
  chain [-limit N] <code>        walk the item code chain
  export <lot> <out.xlsx>        write a lot and its descendants to a workbook

<lot> is a lot label or a 0x-prefixed id.`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "lottrace:", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("lottrace", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { fmt.Fprintln(fs.Output(), usage) }
	configPath := fs.String("config", "", "config file (yaml, json or toml)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	backend, closeBackend, err := cfg.OpenBackend(ctx, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeBackend(); err != nil {
			log.Error("close backend", "error", err)
		}
	}()

	a := &app{
		reg:    registry.New(backend, log),
		out:    out,
		logger: log,
	}
	return a.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}

type app struct {
	reg    *registry.Registry
	out    io.Writer
	logger *slog.Logger
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "ingest":
		return a.ingest(ctx, args)
	case "get":
		return a.withLot(args, func(id lot.ID) (any, error) {
			rec, err := a.reg.Get(ctx, id)
			if err != nil {
				return nil, err
			}
			return lot.NewNode(rec), nil
		})
	case "update":
		return a.update(ctx, args)
	case "parent":
		return a.withLot(args, func(id lot.ID) (any, error) {
			return a.reg.Parent(ctx, id)
		})
	case "children":
		return a.withLot(args, func(id lot.ID) (any, error) {
			return a.reg.ChildrenOf(ctx, id)
		})
	case "flat":
		return a.withLot(args, func(id lot.ID) (any, error) {
			recs, err := a.reg.Flatten(ctx, id)
			if err != nil {
				return nil, err
			}
			nodes := make([]*lot.Node, len(recs))
			for i, rec := range recs {
				nodes[i] = lot.NewNode(rec)
			}
			return nodes, nil
		})
	case "tree":
		return a.withLot(args, func(id lot.ID) (any, error) {
			return a.reg.Tree(ctx, id)
		})
	case "code":
		return a.withKey(args, func(code string) (any, error) {
			return a.reg.ByCode(ctx, code)
		})
	case "type":
		return a.withKey(args, func(itemType string) (any, error) {
			return a.reg.ByType(ctx, itemType)
		})
	case "chain":
		return a.chain(ctx, args)
	case "export":
		return a.export(ctx, args)
	}
	return fmt.Errorf("unknown command %q\n%s", cmd, usage)
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) withKey(args []string, fn func(key string) (any, error)) error {
	if len(args) != 1 {
		return errors.New("expected exactly one argument")
	}
	v, err := fn(args[0])
	if err != nil {
		return err
	}
	return a.print(v)
}

func (a *app) withLot(args []string, fn func(id lot.ID) (any, error)) error {
	return a.withKey(args, func(ref string) (any, error) {
		return fn(lot.Resolve(ref))
	})
}

func (a *app) ingest(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("ingest: expected one file")
	}
	inputs, err := readInputs(args[0])
	if err != nil {
		return fmt.Errorf("ingest %s: %w", args[0], err)
	}
	ids, err := a.reg.BatchAdd(ctx, inputs)
	if err != nil {
		return err
	}
	a.logger.Info("ingested", "file", args[0], "count", len(ids))
	return a.print(ids)
}

func readInputs(path string) ([]lot.Input, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return sheet.ReadInputs(f)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return lot.DecodeInputs(data)
}

func (a *app) update(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("update", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var p lot.Patch
	fs.Uint64Var(&p.Amount, "amount", 0, "amount")
	fs.StringVar(&p.Per, "per", "", "unit of the amount")
	fs.StringVar(&p.ExternalLot, "external-lot", "", "external lot reference")
	fs.StringVar(&p.ExternalCode, "external-code", "", "external code reference")
	fs.StringVar(&p.ItemName, "name", "", "item name")

	// Accept the lot before or after the flags.
	var ref string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		ref, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if ref == "" && fs.NArg() == 1 {
		ref = fs.Arg(0)
	} else if ref == "" || fs.NArg() != 0 {
		return errors.New("update: expected one lot")
	}

	// Fields not given keep their stored value.
	id := lot.Resolve(ref)
	rec, err := a.reg.Get(ctx, id)
	if err != nil {
		return err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if !set["amount"] {
		p.Amount = rec.Amount
	}
	if !set["per"] {
		p.Per = rec.Per
	}
	if !set["external-lot"] {
		p.ExternalLot = rec.ExternalLot
	}
	if !set["external-code"] {
		p.ExternalCode = rec.ExternalCode
	}
	if !set["name"] {
		p.ItemName = rec.ItemName
	}

	if err := a.reg.Update(ctx, id, p); err != nil {
		return err
	}
	rec.Apply(p)
	return a.print(lot.NewNode(rec))
}

func (a *app) chain(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chain", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	limit := fs.Int("limit", 0, "maximum number of lots, 0 for all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("chain: expected one item code")
	}
	ids, names, err := a.reg.Traverse(ctx, fs.Arg(0), *limit)
	if err != nil {
		return err
	}
	return a.print(struct {
		LotIDs    []lot.ID `json:"lotIds"`
		ItemNames []string `json:"itemNames"`
	}{ids, names})
}

func (a *app) export(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("export: expected a lot and an output file")
	}
	recs, err := a.reg.Flatten(ctx, lot.Resolve(args[0]))
	if err != nil {
		return err
	}

	f, err := os.Create(args[1])
	if err != nil {
		return err
	}
	if err := sheet.WriteRecords(f, recs); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	a.logger.Info("exported", "file", args[1], "count", len(recs))
	return nil
}
