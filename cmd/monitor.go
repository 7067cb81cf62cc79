package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/nacholabs/nacho/pkg/emu/engine"
	"github.com/nacholabs/nacho/pkg/emu/ir"
)

const monitorRefresh = 100 * time.Millisecond

// startMonitor spawns a live text view of the engine state, refreshed on a
// ticker from published snapshots. The returned channel closes once the
// monitor UI has torn down the terminal.
func startMonitor(ctx context.Context, eng *engine.Engine) chan struct{} {
	app := tview.NewApplication()

	view := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	view.SetBorder(true).SetTitle(" nacho monitor ")

	done := make(chan struct{})

	go func() {
		ticker := time.NewTicker(monitorRefresh)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				app.Stop()
				return
			case <-ticker.C:
				snap := eng.Snapshot()
				app.QueueUpdateDraw(func() {
					view.SetText(renderSnapshot(snap))
				})
			}
		}
	}()

	go func() {
		defer close(done)
		_ = app.SetRoot(view, true).Run()
	}()

	return done
}

func renderSnapshot(snap engine.Snapshot) string {
	var sb strings.Builder

	stateColor := "green"
	if snap.Fault != nil {
		stateColor = "red"
	}
	fmt.Fprintf(&sb, "[yellow]state:[-]    [%s]%s[-]\n", stateColor, snap.State)
	fmt.Fprintf(&sb, "[yellow]executed:[-] %d\n", snap.Executed)
	fmt.Fprintf(&sb, "[yellow]blocks:[-]   %d\n\n", snap.Blocks)

	for id := ir.RegisterID(0); id < ir.TOTAL_REGISTERS; id++ {
		fmt.Fprintf(&sb, "[yellow]%-6s[-] 0x%08X\n", id.String(), snap.Regs[id])
	}

	if snap.Fault != nil {
		fmt.Fprintf(&sb, "\n[red]fault:[-] %v\n", snap.Fault)
	}

	return sb.String()
}
