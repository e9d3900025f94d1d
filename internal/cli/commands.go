// Package cli implements the operator console and the table printers shared
// with the one-shot subcommands.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/tilewire-project/tilewire/internal/capture"
	"github.com/tilewire-project/tilewire/internal/config"
	"github.com/tilewire-project/tilewire/internal/events"
	"github.com/tilewire-project/tilewire/internal/guard"
	"github.com/tilewire-project/tilewire/internal/health"
	intnet "github.com/tilewire-project/tilewire/internal/network"
	"github.com/tilewire-project/tilewire/internal/protocol"
	"github.com/tilewire-project/tilewire/internal/stats"
)

// SessionSource is the live session view the console reads and kicks from.
type SessionSource interface {
	Snapshot() []intnet.SessionInfo
	Count() int
	Kick(id string) bool
}

// CaptureLister is the read side of the capture store.
type CaptureLister interface {
	List(ctx context.Context, f capture.Filter) ([]capture.Record, error)
}

// HealthSource reports the latest health check results.
type HealthSource interface {
	Status() health.Status
}

// Deps are the components the console inspects. Captures and Health may be
// nil.
type Deps struct {
	Codec    *protocol.Codec
	Sessions SessionSource
	Stats    *stats.Collector
	Captures CaptureLister
	Guard    *guard.Guard
	Health   HealthSource
}

// CLI provides an interactive command-line interface.
type CLI struct {
	cfg      *config.Config
	eventBus *events.EventBus
	deps     Deps
	in       io.Reader
	out      io.Writer
}

// NewCLI creates a console reading commands from in and writing to out.
func NewCLI(cfg *config.Config, eventBus *events.EventBus, deps Deps, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		cfg:      cfg,
		eventBus: eventBus,
		deps:     deps,
		in:       in,
		out:      out,
	}
}

// Start runs the console loop until ctx is cancelled or input ends.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\ntilewire console ready. Type 'help' for available commands.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("CLI: input closed")
		}
	}()

	for {
		fmt.Fprint(c.out, "tilewire> ")

		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}

			parts := strings.Fields(line)
			if len(parts) == 0 {
				continue
			}

			if err := c.execute(ctx, strings.ToLower(parts[0]), parts[1:]); err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "sessions", "ls":
		PrintSessions(c.out, c.deps.Sessions.Snapshot())
	case "kick":
		return c.cmdKick(args)
	case "stats":
		return c.cmdStats(args)
	case "types":
		PrintTypes(c.out, c.deps.Codec)
	case "captures":
		return c.cmdCaptures(ctx, args)
	case "decode":
		return c.cmdDecode(args)
	case "guard":
		c.printGuard()
	case "setconfig":
		return c.cmdSetConfig(args)
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down tilewire...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, `
Commands:
  status                         Relay summary
  sessions                       List live sessions
  kick <session>                 Close a session
  stats [n]                      Traffic counters and the n busiest types
  types                          Registered message catalog
  captures [n]                   Most recent captured frames
  decode <server|client> <hex>   Decode one frame
  guard                          Show guard rules
  setconfig <sec> <key> <value>  Update and save a config value
  quit                           Shut down tilewire
  help                           Show this help message`)
	fmt.Fprintln(c.out)
}

func (c *CLI) printStatus() {
	relay := c.cfg.GetRelay()
	fmt.Fprintf(c.out, "\n  Listen:    %s\n", relay.ListenAddress())
	fmt.Fprintf(c.out, "  Upstream:  %s\n", relay.Upstream)
	fmt.Fprintf(c.out, "  Sessions:  %d / %d\n", c.deps.Sessions.Count(), relay.MaxSessions)
	if c.deps.Stats != nil {
		snap := c.deps.Stats.Snapshot()
		fmt.Fprintf(c.out, "  Uptime:    %s\n", snap.Uptime.Round(time.Second))
		fmt.Fprintf(c.out, "  Frames:    %s\n", humanize.Comma(int64(snap.TotalFrames())))
		fmt.Fprintf(c.out, "  Traffic:   %s in, %s out\n", humanize.Bytes(snap.BytesIn), humanize.Bytes(snap.BytesOut))
	}
	if c.deps.Health != nil {
		st := c.deps.Health.Status()
		switch {
		case st.Upstream == nil:
			fmt.Fprintln(c.out, "  Health:    not checked yet")
		case st.Upstream.Reachable:
			fmt.Fprintf(c.out, "  Health:    upstream reachable (%s)\n", st.Upstream.Latency.Round(time.Millisecond))
		default:
			fmt.Fprintf(c.out, "  Health:    upstream unreachable, %d failures (%s)\n", st.Upstream.Failures, st.Upstream.Error)
		}
		if st.Disk != nil {
			fmt.Fprintf(c.out, "  Disk:      %.1f%% used, %s free\n", st.Disk.UsedPercent, humanize.Bytes(st.Disk.Free))
		}
	}
	fmt.Fprintln(c.out)
}

func (c *CLI) cmdKick(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kick <session>")
	}
	if !c.deps.Sessions.Kick(args[0]) {
		return fmt.Errorf("session %s not found", args[0])
	}
	fmt.Fprintf(c.out, "Session %s closed\n", args[0])
	return nil
}

func (c *CLI) cmdStats(args []string) error {
	if c.deps.Stats == nil {
		return fmt.Errorf("statistics are not collected")
	}
	top, err := optionalCount(args, 10)
	if err != nil {
		return err
	}
	PrintStats(c.out, c.deps.Stats.Snapshot(), top)
	return nil
}

func (c *CLI) cmdCaptures(ctx context.Context, args []string) error {
	if c.deps.Captures == nil {
		return fmt.Errorf("capture store is disabled")
	}
	n, err := optionalCount(args, 20)
	if err != nil {
		return err
	}
	records, err := c.deps.Captures.List(ctx, capture.Filter{Limit: n})
	if err != nil {
		return err
	}
	PrintCaptures(c.out, records)
	return nil
}

func (c *CLI) cmdDecode(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: decode <server|client> <hex>")
	}
	pctx, err := protocol.ParseContext(strings.ToLower(args[0]))
	if err != nil {
		return err
	}
	frame, err := protocol.ParseHex(strings.Join(args[1:], ""))
	if err != nil {
		return err
	}
	return PrintDecode(c.out, c.deps.Codec, frame, pctx)
}

func (c *CLI) printGuard() {
	g := c.cfg.GetGuard()
	if c.deps.Guard != nil {
		g = c.deps.Guard.Config()
	}
	fmt.Fprintf(c.out, "\n  Spoof check:     %v\n", g.SpoofCheck)
	fmt.Fprintf(c.out, "  Max health cap:  %s\n", capString(g.MaxHealthCap))
	fmt.Fprintf(c.out, "  Max mana cap:    %s\n", capString(g.MaxManaCap))
	if c.deps.Guard != nil {
		fmt.Fprintf(c.out, "  Tracked slots:   %d\n", c.deps.Guard.Tracked())
	}
	fmt.Fprintln(c.out)
}

func (c *CLI) cmdSetConfig(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: setconfig <section> <key> <value>")
	}

	section, key := args[0], args[1]
	value := parseValue(strings.Join(args[2:], " "))

	if err := c.cfg.UpdateField(section, key, value); err != nil {
		return err
	}
	if section == "guard" && c.deps.Guard != nil {
		c.deps.Guard.SetConfig(c.cfg.GetGuard())
	}
	if err := c.cfg.Save(); err != nil {
		return err
	}

	c.eventBus.Emit(context.Background(), events.Event{
		Type:    events.EventConfigChanged,
		Source:  "cli",
		Payload: events.ConfigChangedPayload{Section: section, Key: key, Value: value},
	})

	fmt.Fprintf(c.out, "Config updated: %s.%s = %v\n", section, key, value)
	return nil
}

// parseValue turns console text into the JSON type a config field expects.
func parseValue(s string) interface{} {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}

func optionalCount(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid count: %s", args[0])
	}
	return n, nil
}

func capString(v int16) string {
	if v <= 0 {
		return "off"
	}
	return strconv.Itoa(int(v))
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(w)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}
