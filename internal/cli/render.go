package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/roach88/goalclock/internal/engine"
	"github.com/roach88/goalclock/internal/model"
)

const stampLayout = "2006-01-02 15:04"

func stamp(t time.Time) string {
	return t.UTC().Format(stampLayout)
}

func deadlineText(g model.Goal) string {
	if g.Deadline == nil {
		return "no deadline"
	}
	return stamp(*g.Deadline)
}

func writeGoalLine(w io.Writer, g model.Goal) {
	fmt.Fprintf(w, "  %s  %-20s %-6s %-16s %s\n", g.ID, g.Status, g.Kind, deadlineText(g), g.Title)
}

func writeGoals(w io.Writer, goals []model.Goal) {
	if len(goals) == 0 {
		fmt.Fprintln(w, "No goals.")
		return
	}
	for _, g := range goals {
		writeGoalLine(w, g)
	}
}

func writeGoalDetail(w io.Writer, g model.Goal, acks []model.PendingAck) {
	fmt.Fprintf(w, "%s  %s\n", g.ID, g.Title)
	fmt.Fprintf(w, "  Kind:     %s\n", g.Kind)
	fmt.Fprintf(w, "  Status:   %s\n", g.Status)
	if g.Status == model.StatusDraft {
		if g.TentativeDate != nil {
			fmt.Fprintf(w, "  Tentative: %s\n", stamp(*g.TentativeDate))
		}
	} else {
		fmt.Fprintf(w, "  Start:    %s\n", stamp(g.StartDate))
		fmt.Fprintf(w, "  Deadline: %s\n", deadlineText(g))
	}
	if g.ParentID != "" {
		fmt.Fprintf(w, "  Parent:   %s\n", g.ParentID)
	}
	if len(g.ChildIDs) > 0 {
		fmt.Fprintf(w, "  Children: %s\n", strings.Join(g.ChildIDs, ", "))
	}
	if g.RecurrenceID != "" {
		fmt.Fprintf(w, "  Recurrence: %s#%d\n", g.RecurrenceID, g.OccurrenceIndex)
	}

	switch g.Kind {
	case model.KindTime, model.KindEvent:
		fmt.Fprintf(w, "  Progress: %s of %s", g.Progress.Accumulated, g.CriteriaTime)
		if g.TightlyBound {
			fmt.Fprint(w, " (tightly bound)")
		}
		fmt.Fprintln(w)
	case model.KindTask:
		for i, item := range g.Progress.Checklist {
			mark := " "
			if item.Done {
				mark = "x"
			}
			fmt.Fprintf(w, "  [%s] %d. %s", mark, i, item.Text)
			if item.LinkedGoalID != "" {
				fmt.Fprintf(w, " -> %s", item.LinkedGoalID)
			}
			fmt.Fprintln(w)
		}
	case model.KindWindow:
		if g.Window != nil {
			fmt.Fprintf(w, "  Window:   %g per %s (%s, every %s)\n",
				g.Window.Threshold, g.Window.Duration, g.Window.Mode, g.Window.Interval)
		}
	}

	writeCallbackSet(w, model.SetSuccess, g.Callbacks.OnSuccess)
	writeCallbackSet(w, model.SetFailure, g.Callbacks.OnFailure)
	writeCallbackSet(w, model.SetFinally, g.Callbacks.OnFinally)

	if len(acks) > 0 {
		fmt.Fprintln(w, "  Awaiting acknowledgment:")
		writeAcks(w, acks)
	}
}

func writeCallbackSet(w io.Writer, set model.SetName, cbs []model.Callback) {
	for _, cb := range cbs {
		fmt.Fprintf(w, "  %-10s %s %s\n", set, cb.Kind, cb)
	}
}

func writeQueue(w io.Writer, entries []engine.QueueEntry) {
	for _, q := range entries {
		hint := ""
		if q.CriteriaMet {
			hint = "  (criteria met)"
		}
		fmt.Fprintf(w, "  %s  expired %s  %s%s\n", q.GoalID, stamp(q.ExpiresAt), q.Title, hint)
	}
}

func writeAcks(w io.Writer, acks []model.PendingAck) {
	for _, a := range acks {
		flag := ""
		if a.Blocking {
			flag = "  (blocking)"
		}
		fmt.Fprintf(w, "  %s#%d  %s: %s%s\n", a.GoalID, a.Index, a.Set, a.Text, flag)
	}
}

func writeResults(w io.Writer, results []model.ActionResult) {
	for _, r := range results {
		fmt.Fprintf(w, "  ran %s %s on %s: %s\n", r.Set, r.Action, r.GoalID, r.Data["status"])
	}
}

func writeFirings(w io.Writer, firings []engine.WindowFiring) {
	for _, f := range firings {
		fmt.Fprintf(w, "  %s %s x%g (%s to %s)\n", f.GoalID, f.Set, f.Units, stamp(f.From), stamp(f.To))
		writeResults(w, f.Execution.Results)
		writeAcks(w, f.Execution.Pending)
	}
}

func writeAttention(w io.Writer, att engine.Attention) {
	fmt.Fprintf(w, "Now: %s\n", stamp(att.Now))
	if len(att.Spawned) > 0 {
		fmt.Fprintf(w, "Spawned: %s\n", strings.Join(att.Spawned, ", "))
	}
	if att.Empty() {
		fmt.Fprintln(w, "Nothing needs attention.")
		return
	}
	if len(att.Queue) > 0 {
		fmt.Fprintf(w, "Resolution queue (%d):\n", len(att.Queue))
		writeQueue(w, att.Queue)
	}
	if len(att.Firings) > 0 {
		fmt.Fprintln(w, "Window callbacks:")
		writeFirings(w, att.Firings)
	}
	if len(att.DraftsDue) > 0 {
		fmt.Fprintln(w, "Drafts due for promotion:")
		for _, g := range att.DraftsDue {
			fmt.Fprintf(w, "  %s  tentative %s  %s\n", g.ID, stamp(*g.TentativeDate), g.Title)
		}
	}
	if len(att.Acks) > 0 {
		fmt.Fprintln(w, "Awaiting acknowledgment:")
		writeAcks(w, att.Acks)
	}
}

func writeDeleteResult(w io.Writer, res engine.DeleteResult) {
	fmt.Fprintf(w, "Removed %s\n", strings.Join(res.Removed, ", "))
	writeResults(w, res.Results)
	for _, n := range res.Notices {
		fmt.Fprintf(w, "  notice from %s %s: %s\n", n.GoalID, n.Set, n.Text)
	}
}

func writeResolveResult(w io.Writer, res engine.ResolveResult) {
	if res.Deleted != nil {
		writeDeleteResult(w, *res.Deleted)
		return
	}
	fmt.Fprintf(w, "%s is %s\n", res.GoalID, res.Status)
	if res.Requeued {
		fmt.Fprintln(w, "  still expired, back in the queue")
	}
	writeResults(w, res.Results)
	if len(res.Pending) > 0 {
		fmt.Fprintln(w, "Awaiting acknowledgment:")
		writeAcks(w, res.Pending)
	}
	if len(res.Killed) > 0 {
		fmt.Fprintf(w, "  killed %s\n", strings.Join(res.Killed, ", "))
	}
	if res.Respawned != "" {
		fmt.Fprintf(w, "  respawned %s\n", res.Respawned)
	}
}
