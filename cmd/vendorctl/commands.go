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
	"strings"

	"github.com/phrazzld/vendorflow/internal/app"
	"github.com/phrazzld/vendorflow/internal/config"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/domain/lifecycle"
	"github.com/phrazzld/vendorflow/internal/platform/postgres"
)

const usage = `usage: vendorctl <command> [arguments]

commands:
  migrate [up|down|reset|status|version]   run database migrations (postgres)
  seed -file vendors.json | -json '{...}'  create vendors from records
  show <vendor-id>                         print vendor, activities, and tasks
  approve <vendor-id>                      approve a vendor under review
  reject <vendor-id>                       reject a vendor
  reset <vendor-id>                        return a vendor to review, clearing its log
  event <vendor-id> <EVENT>                apply a lifecycle event
  verify <vendor-id> <COI|W9>              submit a document for verification
  chat <vendor-id> <message...>            submit an inbound vendor message
  purge <vendor-id>                        delete finished tasks
  run-once [-cycles N]                     run dispatch cycles until idle
  token <operator>                         mint an operator API token
`

// errUsage reports a malformed command line.
var errUsage = errors.New("invalid arguments")

type cli struct {
	out   io.Writer
	load  func() (*config.Config, error)
	setup func(config.ServerConfig) (*slog.Logger, error)
	build func(ctx context.Context, cfg *config.Config, log *slog.Logger, opts ...app.Option) (*app.Application, error)
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		fmt.Fprint(c.out, usage)
		if len(args) == 0 {
			return errUsage
		}
		return nil
	}

	cfg, err := c.load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log, err := c.setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	cmd, rest := args[0], args[1:]
	if cmd == "migrate" {
		return c.migrate(ctx, cfg, log, rest)
	}

	a, err := c.build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "seed":
		return c.seed(ctx, a, rest)
	case "show":
		return c.show(ctx, a, rest)
	case "approve", "reject":
		id, err := oneArg(cmd, rest)
		if err != nil {
			return err
		}
		event := lifecycle.EventApprove
		if cmd == "reject" {
			event = lifecycle.EventReject
		}
		return c.applyEvent(ctx, a, id, event)
	case "reset":
		id, err := oneArg(cmd, rest)
		if err != nil {
			return err
		}
		v, err := a.Vendors.ResetVendor(ctx, id)
		if err != nil {
			return err
		}
		return c.printJSON(v)
	case "event":
		if len(rest) != 2 {
			return fmt.Errorf("%w: event <vendor-id> <EVENT>", errUsage)
		}
		return c.applyEvent(ctx, a, rest[0], lifecycle.Event(strings.ToUpper(rest[1])))
	case "verify":
		if len(rest) != 2 {
			return fmt.Errorf("%w: verify <vendor-id> <COI|W9>", errUsage)
		}
		taskID, enqueued, err := a.Vendors.SubmitDocument(ctx, rest[0], domain.DocumentType(strings.ToUpper(rest[1])))
		if err != nil {
			return err
		}
		return c.printJSON(map[string]any{"taskId": taskID, "enqueued": enqueued})
	case "chat":
		if len(rest) < 2 {
			return fmt.Errorf("%w: chat <vendor-id> <message...>", errUsage)
		}
		taskID, err := a.Vendors.SubmitMessage(ctx, rest[0], strings.Join(rest[1:], " "))
		if err != nil {
			return err
		}
		return c.printJSON(map[string]any{"taskId": taskID, "enqueued": true})
	case "purge":
		id, err := oneArg(cmd, rest)
		if err != nil {
			return err
		}
		n, err := a.Vendors.PurgeTasks(ctx, id)
		if err != nil {
			return err
		}
		return c.printJSON(map[string]any{"deleted": n})
	case "run-once":
		return c.runOnce(ctx, a, rest)
	case "token":
		operator, err := oneArg(cmd, rest)
		if err != nil {
			return err
		}
		token, err := a.JWT.GenerateToken(ctx, operator)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, token)
		return nil
	default:
		fmt.Fprint(c.out, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (c *cli) migrate(ctx context.Context, cfg *config.Config, log *slog.Logger, args []string) error {
	if cfg.Store.Driver != app.DriverPostgres {
		return fmt.Errorf("migrate requires the postgres store driver, got %q", cfg.Store.Driver)
	}
	command := "up"
	if len(args) > 0 {
		command = args[0]
	}
	db, err := postgres.Open(ctx, cfg.Store.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return postgres.Migrate(ctx, db, command, log)
}

func (c *cli) seed(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(c.out)
	file := fs.String("file", "", "path to a JSON object or array of vendor records")
	inline := fs.String("json", "", "inline JSON object or array of vendor records")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var raw []byte
	switch {
	case *file != "" && *inline != "":
		return fmt.Errorf("%w: use either -file or -json", errUsage)
	case *file != "":
		b, err := os.ReadFile(*file)
		if err != nil {
			return fmt.Errorf("read %s: %w", *file, err)
		}
		raw = b
	case *inline != "":
		raw = []byte(*inline)
	default:
		return fmt.Errorf("%w: seed needs -file or -json", errUsage)
	}

	records, err := decodeRecords(raw)
	if err != nil {
		return err
	}

	seeded := make([]string, 0, len(records))
	var errs []error
	for i, rec := range records {
		v, err := a.Vendors.SeedVendor(ctx, rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i, err))
			continue
		}
		seeded = append(seeded, v.ID)
	}
	if err := c.printJSON(map[string]any{"seeded": seeded}); err != nil {
		return err
	}
	return errors.Join(errs...)
}

// decodeRecords accepts either one JSON object or an array of them.
func decodeRecords(raw []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var records []map[string]any
		if err := json.Unmarshal([]byte(trimmed), &records); err != nil {
			return nil, fmt.Errorf("parse vendor records: %w", err)
		}
		return records, nil
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(trimmed), &record); err != nil {
		return nil, fmt.Errorf("parse vendor record: %w", err)
	}
	return []map[string]any{record}, nil
}

func (c *cli) show(ctx context.Context, a *app.Application, args []string) error {
	id, err := oneArg("show", args)
	if err != nil {
		return err
	}
	v, err := a.Vendors.GetVendor(ctx, id)
	if err != nil {
		return err
	}
	acts, err := a.Vendors.ListActivities(ctx, id)
	if err != nil {
		return err
	}
	tasks, err := a.Vendors.ListTasks(ctx, id)
	if err != nil {
		return err
	}
	return c.printJSON(map[string]any{"vendor": v, "activities": acts, "tasks": tasks})
}

func (c *cli) applyEvent(ctx context.Context, a *app.Application, id string, event lifecycle.Event) error {
	v, err := a.Vendors.ApplyEvent(ctx, id, event)
	if err != nil {
		return err
	}
	return c.printJSON(v)
}

func (c *cli) runOnce(ctx context.Context, a *app.Application, args []string) error {
	fs := flag.NewFlagSet("run-once", flag.ContinueOnError)
	fs.SetOutput(c.out)
	cycles := fs.Int("cycles", 10, "maximum dispatch cycles to run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var total struct {
		Cycles, Fetched, Completed, Retried, Failed, Skipped, Replayed int
	}
	for i := 0; i < *cycles; i++ {
		stats, err := a.Dispatcher.RunCycle(ctx)
		if err != nil {
			return err
		}
		total.Cycles++
		total.Fetched += stats.Fetched
		total.Completed += stats.Completed
		total.Retried += stats.Retried
		total.Failed += stats.Failed
		total.Skipped += stats.Skipped
		total.Replayed += stats.Replayed
		if stats.Fetched == 0 {
			break
		}
	}
	return c.printJSON(total)
}

func oneArg(cmd string, args []string) (string, error) {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return "", fmt.Errorf("%w: %s <%s>", errUsage, cmd, argName(cmd))
	}
	return args[0], nil
}

func argName(cmd string) string {
	if cmd == "token" {
		return "operator"
	}
	return "vendor-id"
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
