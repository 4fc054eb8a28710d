// Command pwmlink-log is a tool for viewing and analyzing pwmlink binary
// command logs.
//
// Binary logs are written by pwmlink when it runs with --binary-log. Every
// setpoint change of a session (START, UP, DOWN, STOP, RELAY, EXIT) is one
// record.
//
// Usage:
//
//	pwmlink-log <command> [flags] <file.plog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	pwmlink-log view session.plog
//
//	# View only relay setpoints
//	pwmlink-log view --tag relay session.plog
//
//	# Export one session to CSV
//	pwmlink-log export --format csv --session 0f8fad5b-d9cb-469f-a165-70867728950e session.plog
//
//	# Keep only the operator's key presses
//	pwmlink-log filter --source local -o local.plog session.plog
//
//	# Show statistics
//	pwmlink-log stats session.plog
package main

import (
	"errors"
	"io"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/pwmlink/pwmlink-go/cmd/pwmlink-log/commands"
	"github.com/pwmlink/pwmlink-go/pkg/log"
)

// filterFlags are accepted by every command.
type filterFlags struct {
	Session   string `long:"session" description:"Filter by session ID"`
	Tag       string `long:"tag" choice:"start" choice:"up" choice:"down" choice:"stop" choice:"exit" choice:"relay" description:"Filter by event tag"`
	Source    string `long:"source" choice:"system" choice:"local" choice:"relay" description:"Filter by event source"`
	Peer      string `long:"peer" description:"Filter by relay peer ID"`
	TimeStart string `long:"time-start" description:"Filter by start time (RFC3339)"`
	TimeEnd   string `long:"time-end" description:"Filter by end time (RFC3339)"`
}

func (f filterFlags) options() commands.FilterOptions {
	return commands.FilterOptions{
		SessionID: f.Session,
		Tag:       f.Tag,
		Source:    f.Source,
		PeerID:    f.Peer,
		TimeStart: f.TimeStart,
		TimeEnd:   f.TimeEnd,
	}
}

func (f filterFlags) build() (log.Filter, error) {
	return f.options().Build()
}

type fileArg struct {
	File string `positional-arg-name:"file.plog" required:"yes"`
}

type viewCommand struct {
	filterFlags
	Args fileArg `positional-args:"yes" required:"yes"`

	out io.Writer
}

func (c *viewCommand) Execute(_ []string) error {
	filter, err := c.build()
	if err != nil {
		return err
	}
	return commands.RunView(c.Args.File, filter, c.out)
}

type exportCommand struct {
	filterFlags
	Format string  `short:"f" long:"format" default:"jsonl" choice:"jsonl" choice:"csv" description:"Output format"`
	Output string  `short:"o" long:"output" description:"Output file (default: stdout)"`
	Args   fileArg `positional-args:"yes" required:"yes"`
}

func (c *exportCommand) Execute(_ []string) error {
	filter, err := c.build()
	if err != nil {
		return err
	}
	return commands.RunExport(c.Args.File, c.Format, c.Output, filter)
}

type filterCommand struct {
	filterFlags
	Output string  `short:"o" long:"output" required:"yes" description:"Output file"`
	Args   fileArg `positional-args:"yes" required:"yes"`

	out io.Writer
}

func (c *filterCommand) Execute(_ []string) error {
	return commands.RunFilter(c.Args.File, c.Output, c.options(), c.out)
}

type statsCommand struct {
	filterFlags
	Args fileArg `positional-args:"yes" required:"yes"`

	out io.Writer
}

func (c *statsCommand) Execute(_ []string) error {
	filter, err := c.build()
	if err != nil {
		return err
	}
	return commands.RunStats(c.Args.File, filter, c.out)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	parser := flags.NewNamedParser("pwmlink-log", flags.Default)
	parser.ShortDescription = "pwmlink command log analyzer"

	mustAdd(parser.AddCommand("view", "View log file in human-readable format", "", &viewCommand{out: out}))
	mustAdd(parser.AddCommand("export", "Export log file to JSONL or CSV format", "", &exportCommand{}))
	mustAdd(parser.AddCommand("filter", "Filter log file and write to new file", "", &filterCommand{out: out}))
	mustAdd(parser.AddCommand("stats", "Show statistics about the log file", "", &statsCommand{out: out}))

	// go-flags prints the error, including those returned by Execute.
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 1
	}
	return 0
}

func mustAdd(_ *flags.Command, err error) {
	if err != nil {
		panic(err)
	}
}
