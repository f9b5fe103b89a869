// Command graphdraw generates, checks and schedules model documents from the
// command line.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/linem-davton/graphdraw/pkg/blob"
	"github.com/linem-davton/graphdraw/pkg/config"
	"github.com/linem-davton/graphdraw/pkg/generator"
	"github.com/linem-davton/graphdraw/pkg/interchange"
	"github.com/linem-davton/graphdraw/pkg/model"
	"github.com/linem-davton/graphdraw/pkg/reports"
	"github.com/linem-davton/graphdraw/pkg/scheduler"
	"github.com/linem-davton/graphdraw/pkg/tui"
)

var (
	Version   = "v0.1.0"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

const usage = `Usage: graphdraw <command> [flags]

Commands:
  generate   write a random application and platform model
  schema     print the JSON Schema of a model document
  check      import a document and report problems
  schedule   send a document to the scheduler and print the result
  version    print version information

Run "graphdraw <command> -h" for the flags of a command.
`

// errUsage marks errors that should exit with the usage code.
var errUsage = errors.New("usage")

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFail)
	}
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	var err error
	switch args[0] {
	case "generate":
		err = runGenerate(args[1:], stdout)
	case "schema":
		err = runSchema(stdout)
	case "check":
		err = runCheck(args[1:], stdout)
	case "schedule":
		err = runSchedule(args[1:], stdout)
	case "version":
		fmt.Fprintf(stdout, "graphdraw %s (commit %s, built %s)\n", Version, Commit, BuildTime)
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return exitUsage
	}

	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintln(stderr, err)
		return exitUsage
	default:
		fmt.Fprintf(stderr, "Error: %s\n", model.UserMessage(err))
		return exitFail
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("config", config.Env("CONFIG"), "path to YAML config file")
	return fs
}

// parse wraps flag errors so they exit with the usage code.
func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fs.SetOutput(os.Stdout)
			fs.PrintDefaults()
			return err
		}
		return fmt.Errorf("%w: %s: %v", errUsage, fs.Name(), err)
	}
	return nil
}

func loadFile(fs *flag.FlagSet) (config.File, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.File{}, fmt.Errorf("failed to get cwd: %w", err)
	}
	return config.Load(fs.Lookup("config").Value.String(), cwd)
}

func runGenerate(args []string, stdout io.Writer) error {
	ap := generator.DefaultApplicationParams()
	pp := generator.DefaultPlatformParams()

	fs := newFlagSet("generate")
	fs.IntVar(&ap.N, "tasks", ap.N, "number of tasks")
	fs.Float64Var(&ap.LinkProb, "link-prob", ap.LinkProb, "probability of a message between two tasks")
	fs.IntVar(&ap.MaxWCET, "max-wcet", ap.MaxWCET, "largest worst-case execution time")
	fs.IntVar(&ap.MaxDeadline, "max-deadline", ap.MaxDeadline, "largest deadline")
	fs.IntVar(&ap.MaxMessageSize, "max-size", ap.MaxMessageSize, "largest message size")
	fs.IntVar(&pp.Compute, "compute", pp.Compute, "number of compute nodes")
	fs.IntVar(&pp.Routers, "routers", pp.Routers, "number of routers")
	fs.IntVar(&pp.Sensors, "sensors", pp.Sensors, "number of sensors")
	fs.IntVar(&pp.Actuators, "actuators", pp.Actuators, "number of actuators")
	seed := fs.Uint64("seed", 0, "random seed (0 picks one)")
	out := fs.String("o", "-", "output file, - for stdout")
	upload := fs.Bool("upload", false, "write "+interchange.ExportFileName+" to the configured file store instead")
	if err := parse(fs, args); err != nil {
		return err
	}

	s := *seed
	if s == 0 {
		s = uint64(time.Now().UnixNano())
	}
	m, err := generator.GenerateCombined(ap, pp, rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15)))
	if err != nil {
		return err
	}

	ctx := context.Background()
	if *upload {
		file, err := loadFile(fs)
		if err != nil {
			return err
		}
		files, err := file.Files.Open()
		if err != nil {
			return err
		}
		key, err := interchange.Download(ctx, files, m)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s to %s store\n", key, backendName(file.Files))
		return nil
	}

	data, err := interchange.Export(m)
	if err != nil {
		return err
	}
	if *out == "-" {
		_, err = fmt.Fprintf(stdout, "%s\n", data)
		return err
	}
	abs, err := filepath.Abs(*out)
	if err != nil {
		return err
	}
	return blob.NewLocal(filepath.Dir(abs)).Put(ctx, filepath.Base(abs), bytes.NewReader(data))
}

func backendName(c config.FilesConfig) string {
	if c.Backend == "" {
		return "local"
	}
	return c.Backend
}

func runSchema(stdout io.Writer) error {
	doc, err := interchange.Schema()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%s\n", doc)
	return err
}

// readDocument imports the file named by the single positional argument.
func readDocument(fs *flag.FlagSet, schemaPath string) (model.CombinedModel, error) {
	if fs.NArg() != 1 {
		return model.CombinedModel{}, fmt.Errorf("%w: %s needs exactly one file", errUsage, fs.Name())
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return model.CombinedModel{}, err
	}
	v, err := interchange.LoadValidator(schemaPath)
	if err != nil {
		return model.CombinedModel{}, err
	}
	return interchange.Import(data, interchange.ImportOptions{Validator: v})
}

func runCheck(args []string, stdout io.Writer) error {
	fs := newFlagSet("check")
	schemaPath := fs.String("schema", config.Env("SCHEMA"), "JSON Schema (default: bundled)")
	if err := parse(fs, args); err != nil {
		return err
	}
	m, err := readDocument(fs, *schemaPath)
	if err != nil {
		return err
	}

	for _, w := range model.CheckTimings(m.Application) {
		fmt.Fprintf(stdout, "warning: %s\n", w)
	}
	fmt.Fprintf(stdout, "ok: %d tasks, %d messages, %d nodes, %d links\n",
		len(m.Application.Tasks), len(m.Application.Messages),
		len(m.Platform.Nodes), len(m.Platform.Links))
	if !m.Schedulable() {
		fmt.Fprintln(stdout, "note: both models must be non-empty to schedule")
	}
	return nil
}

func runSchedule(args []string, stdout io.Writer) error {
	fs := newFlagSet("schedule")
	server := fs.String("server", "", "scheduler base URL (overrides the configured servers)")
	modeFlag := fs.String("mode", "", "configured server to use: remote|local")
	schemaPath := fs.String("schema", config.Env("SCHEMA"), "JSON Schema (default: bundled)")
	timeout := fs.Duration("timeout", 30*time.Second, "request timeout")
	asJSON := fs.Bool("json", false, "print the raw result")
	report := fs.String("report", "", "print a CSV report instead: jobs|missed|utilization")
	algorithms := fs.String("algorithms", "", "comma-separated algorithm keys for -report")
	width := fs.Int("width", 60, "Gantt chart width")
	if err := parse(fs, args); err != nil {
		return err
	}
	var gen reports.Generator
	if *report != "" {
		g, err := reports.NewReportGenerator(reports.ReportType(*report))
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		gen = g
	}
	m, err := readDocument(fs, *schemaPath)
	if err != nil {
		return err
	}
	if !m.Schedulable() {
		return model.ErrNothingToSchedule
	}

	file, err := loadFile(fs)
	if err != nil {
		return err
	}
	endpoints := file.Server.Endpoints
	mode := scheduler.ModeRemote
	switch {
	case *server != "":
		endpoints.Remote = strings.TrimRight(*server, "/")
	case *modeFlag != "":
		if mode, err = scheduler.ParseMode(*modeFlag); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	case file.Server.Mode != "":
		if mode, err = file.Server.ParsedMode(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	result, err := scheduler.NewClient(endpoints, mode).ScheduleJobs(ctx, m)
	if err != nil {
		return err
	}

	if gen != nil {
		r, err := gen.Generate(ctx, result, reports.ReportParams{Algorithms: splitList(*algorithms)})
		if err != nil {
			return err
		}
		_, err = io.Copy(stdout, r)
		return err
	}
	if *asJSON {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(stdout, "%s\n", data)
		return err
	}
	for _, line := range tui.MissedDeadlines(result) {
		fmt.Fprintln(stdout, line)
	}
	fmt.Fprint(stdout, tui.RenderGantt(result, *width))
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
