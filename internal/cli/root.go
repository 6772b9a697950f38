//go:build !windows

package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/Paintersrp/forkdemo/internal/config"
	"github.com/Paintersrp/forkdemo/internal/logging"
	"github.com/Paintersrp/forkdemo/internal/metrics"
	"github.com/Paintersrp/forkdemo/internal/proc"
	"github.com/Paintersrp/forkdemo/internal/report"
	"github.com/Paintersrp/forkdemo/internal/spawner"
)

const usageTemplate = `Usage: {{.CommandPath}} [OPTION]

Options:
  -v1, --unordered    Run version 1 (unordered)
  -v2, --sequential   Run version 2 (sequential ordered)
  -v3, --parallel     Run version 3 (parallel ordered with pipes)
  -a,  --all          Run all versions in sequence
  -b,  --bomb         Run safe fork bomb demo (2^3 = 8 processes)
  -h,  --help         Show this help message
{{if .HasAvailableLocalFlags}}
Settings:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}
If no option is provided, defaults to version 1.
`

// Flags that select a routine. They are documented by the usage template
// rather than by pflag, which cannot render the -v1 spelling.
var selectorFlags = []string{"variant", "unordered", "sequential", "parallel", "all", "bomb", "help"}

// variantValue backs -v. It keeps every value given so a repeated -vN is
// reported instead of silently overriding the earlier one.
type variantValue struct {
	values []int
}

func (v *variantValue) String() string {
	if len(v.values) == 0 {
		return "0"
	}
	return strconv.Itoa(v.values[len(v.values)-1])
}

func (v *variantValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	v.values = append(v.values, n)
	return nil
}

func (v *variantValue) Type() string { return "int" }

type context struct {
	cfg     *config.Config
	loadErr error
	stdout  *os.File
	stderr  *os.File

	variant    variantValue
	unordered  bool
	sequential bool
	parallel   bool
	all        bool
	bomb       bool
}

func newRootCommand(stdout, stderr *os.File) (*cobra.Command, *context) {
	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	ctx := &context{cfg: cfg, loadErr: err, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "forkdemo",
		Short:         "Demonstrate POSIX process creation semantics",
		Args:          rejectArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.run(cmd.Context())
		},
	}

	flags := root.Flags()
	flags.VarP(&ctx.variant, "variant", "v", "Run version N (1-3)")
	flags.BoolVar(&ctx.unordered, "unordered", false, "Run version 1 (unordered)")
	flags.BoolVar(&ctx.sequential, "sequential", false, "Run version 2 (sequential ordered)")
	flags.BoolVar(&ctx.parallel, "parallel", false, "Run version 3 (parallel ordered with pipes)")
	flags.BoolVarP(&ctx.all, "all", "a", false, "Run all versions in sequence")
	flags.BoolVarP(&ctx.bomb, "bomb", "b", false, "Run safe fork bomb demo")
	flags.BoolP("help", "h", false, "Show this help message")
	for _, name := range selectorFlags {
		_ = flags.MarkHidden(name)
	}

	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Diagnostic log level written to stderr")
	flags.BoolVar(&cfg.LogDev, "log-dev", cfg.LogDev, "Use human-readable console logs")
	flags.DurationVar(&cfg.BombPause, "bomb-pause", cfg.BombPause, "How long each fork bomb process lingers before exiting")
	flags.BoolVar(&cfg.Handshake, "handshake", cfg.Handshake, "Have version 3 children acknowledge blocking and printing")
	flags.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write Prometheus metrics to this file after the run")
	flags.StringVar(&cfg.Report, "report", cfg.Report, "Write a YAML report of the run to this file")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return flagError(err)
	})
	root.SetUsageTemplate(usageTemplate)
	root.SetHelpTemplate(`{{.UsageString}}`)
	root.SetOut(stdout)
	root.SetErr(stderr)

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx stdcontext.Context, args []string, stdout, stderr *os.File) int {
	root, _ := newRootCommand(stdout, stderr)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		var uerr *usageError
		if errors.As(err, &uerr) {
			fmt.Fprintln(stderr, uerr.Error())
			_ = root.Usage()
			return 1
		}
		fmt.Fprintf(stderr, "forkdemo: %v\n", err)
		return 1
	}
	return 0
}

func (c *context) routines() ([]spawner.Routine, error) {
	var chosen []string
	var routines []spawner.Routine
	pick := func(set bool, name string, selected ...spawner.Routine) {
		if !set {
			return
		}
		chosen = append(chosen, name)
		routines = selected
	}

	for _, n := range c.variant.values {
		name := fmt.Sprintf("-v%d", n)
		switch n {
		case 1:
			pick(true, name, spawner.Unordered)
		case 2:
			pick(true, name, spawner.Sequential)
		case 3:
			pick(true, name, spawner.Parallel)
		default:
			return nil, &usageError{msg: "unknown option: " + name}
		}
	}
	pick(c.unordered, "--unordered", spawner.Unordered)
	pick(c.sequential, "--sequential", spawner.Sequential)
	pick(c.parallel, "--parallel", spawner.Parallel)
	pick(c.all, "--all", spawner.All...)
	pick(c.bomb, "--bomb", spawner.Bomb)

	if len(chosen) > 1 {
		return nil, &usageError{msg: "conflicting options: " + strings.Join(chosen, ", ")}
	}
	if len(routines) == 0 {
		return []spawner.Routine{spawner.Unordered}, nil
	}
	return routines, nil
}

func (c *context) run(ctx stdcontext.Context) error {
	if c.loadErr != nil {
		return &usageError{msg: c.loadErr.Error()}
	}
	if err := c.cfg.Validate(); err != nil {
		return &usageError{msg: err.Error()}
	}
	routines, err := c.routines()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: c.cfg.LogLevel, Development: c.cfg.LogDev})
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	defer func() { _ = logger.Sync() }()

	var rep *report.Report
	if c.cfg.Report != "" {
		rep = report.New()
	}

	runner := &spawner.Runner{
		Forker: &proc.Forker{
			Env:    c.cfg.Environ(),
			Stdout: c.stdout,
			Stderr: c.stderr,
		},
		Out:       c.stdout,
		Logger:    logger,
		Handshake: c.cfg.Handshake,
		Pause:     c.cfg.BombPause,
		Report:    rep,
	}

	metrics.EmitBuildInfo()
	for _, routine := range routines {
		if err := runner.Run(ctx, routine); err != nil {
			return err
		}
	}

	if err := rep.WriteFile(c.cfg.Report); err != nil {
		return err
	}
	if c.cfg.MetricsFile != "" {
		if err := metrics.WriteFile(c.cfg.MetricsFile); err != nil {
			return errors.Wrap(err, "write metrics")
		}
		logger.Debug("metrics written", zap.String("path", c.cfg.MetricsFile))
	}
	return nil
}

type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func rejectArgs(cmd *cobra.Command, args []string) error {
	if cmd.ArgsLenAtDash() >= 0 {
		return &usageError{msg: "unknown option: --"}
	}
	if len(args) > 0 {
		return &usageError{msg: "unknown option: " + args[0]}
	}
	return nil
}

// flagError rewrites pflag parse failures into the unknown option message.
func flagError(err error) error {
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "unknown flag: "):
		return &usageError{msg: "unknown option: " + strings.TrimPrefix(msg, "unknown flag: ")}
	case strings.HasPrefix(msg, "unknown shorthand flag: "):
		if i := strings.LastIndex(msg, " in "); i >= 0 {
			return &usageError{msg: "unknown option: " + msg[i+len(" in "):]}
		}
	case errors.Is(err, pflag.ErrHelp):
		return err
	}
	return &usageError{msg: "unknown option: " + msg}
}
