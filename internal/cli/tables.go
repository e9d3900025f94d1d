package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tilewire-project/tilewire/internal/capture"
	intnet "github.com/tilewire-project/tilewire/internal/network"
	"github.com/tilewire-project/tilewire/internal/protocol"
	"github.com/tilewire-project/tilewire/internal/stats"
)

// maxHexPreview bounds how much of a capture payload the table shows.
const maxHexPreview = 16

// PrintTypes renders the message catalog.
func PrintTypes(w io.Writer, codec *protocol.Codec) {
	tw := newTable(w, []string{"ID", "Hex", "Name", "Direction"})
	for _, e := range codec.Registry().Entries() {
		tw.Append([]string{
			strconv.Itoa(int(e.Type)),
			e.Type.String(),
			e.Name,
			e.Direction.String(),
		})
	}
	tw.Render()
}

// PrintSessions renders live sessions.
func PrintSessions(w io.Writer, sessions []intnet.SessionInfo) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No active sessions")
		return
	}

	tw := newTable(w, []string{"ID", "Remote", "Player", "State", "C>S", "S>C", "Opened", "Last Activity"})
	for _, s := range sessions {
		player := "-"
		if s.Player != nil {
			player = strconv.Itoa(int(*s.Player))
		}
		tw.Append([]string{
			s.ID,
			s.RemoteAddr,
			player,
			s.State.String(),
			humanize.Comma(int64(s.FramesIn)),
			humanize.Comma(int64(s.FramesOut)),
			humanize.Time(s.OpenedAt),
			humanize.Time(s.LastActivity),
		})
	}
	tw.Render()
}

// PrintStats renders the traffic totals and the top busiest message types.
func PrintStats(w io.Writer, snap stats.Snapshot, top int) {
	fmt.Fprintf(w, "\n  Uptime:     %s\n", snap.Uptime.Round(time.Second))
	fmt.Fprintf(w, "  Sessions:   %d active, %s total\n", snap.ActiveSessions, humanize.Comma(int64(snap.TotalSessions)))
	fmt.Fprintf(w, "  C>S:        %s frames, %s\n", humanize.Comma(int64(snap.FramesIn)), humanize.Bytes(snap.BytesIn))
	fmt.Fprintf(w, "  S>C:        %s frames, %s\n", humanize.Comma(int64(snap.FramesOut)), humanize.Bytes(snap.BytesOut))
	fmt.Fprintf(w, "  Vetoed:     %s\n", humanize.Comma(int64(snap.Vetoed)))
	fmt.Fprintf(w, "  Rewritten:  %s\n", humanize.Comma(int64(snap.Reencoded)))
	fmt.Fprintf(w, "  Dropped:    %s\n", humanize.Comma(int64(snap.Dropped)))
	fmt.Fprintf(w, "  Captured:   %s\n", humanize.Comma(int64(snap.Captured)))

	if len(snap.Errors) > 0 {
		kinds := make([]string, 0, len(snap.Errors))
		for k := range snap.Errors {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  Errors %-5s %s\n", k+":", humanize.Comma(int64(snap.Errors[k])))
		}
	}
	fmt.Fprintln(w)

	types := snap.Types
	if top > 0 && len(types) > top {
		types = types[:top]
	}
	if len(types) == 0 {
		return
	}

	tw := newTable(w, []string{"Type", "Name", "Direction", "Frames", "Bytes", "Vetoed", "Rewritten"})
	for _, t := range types {
		tw.Append([]string{
			protocol.MessageType(t.TypeID).String(),
			t.Name,
			t.Direction,
			humanize.Comma(int64(t.Frames)),
			humanize.Bytes(t.Bytes),
			humanize.Comma(int64(t.Vetoed)),
			humanize.Comma(int64(t.Reencoded)),
		})
	}
	tw.Render()
}

// PrintCaptures renders captured frames with a short payload preview.
func PrintCaptures(w io.Writer, records []capture.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No captured frames")
		return
	}

	tw := newTable(w, []string{"ID", "When", "Session", "Direction", "Type", "Reason", "Size", "Payload"})
	for _, r := range records {
		preview := r.Payload
		suffix := ""
		if len(preview) > maxHexPreview {
			preview = preview[:maxHexPreview]
			suffix = "..."
		}
		tw.Append([]string{
			strconv.FormatInt(r.ID, 10),
			humanize.Time(r.CapturedAt),
			r.SessionID,
			r.Direction,
			protocol.MessageType(r.TypeID).String(),
			string(r.Reason),
			humanize.Bytes(uint64(r.Size)),
			hex.EncodeToString(preview) + suffix,
		})
	}
	tw.Render()
}

// PrintDecode decodes frame under ctx and prints its fields as JSON.
func PrintDecode(w io.Writer, codec *protocol.Codec, frame []byte, ctx protocol.Context) error {
	in, err := codec.Inspect(frame, ctx)
	if err != nil {
		return err
	}

	body, err := json.MarshalIndent(in.Message, "  ", "  ")
	if err != nil {
		return fmt.Errorf("failed to render message: %w", err)
	}

	known := ""
	if !in.Known {
		known = " (unregistered)"
	}
	fmt.Fprintf(w, "%s %s%s, %d bytes, %s context\n", in.Type, in.Name, known, in.Size, in.Context)
	fmt.Fprintf(w, "  %s\n", body)
	return nil
}
