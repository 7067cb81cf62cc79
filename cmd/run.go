package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nacholabs/nacho/pkg/emu/display"
	"github.com/nacholabs/nacho/pkg/emu/display/term"
	"github.com/nacholabs/nacho/pkg/emu/engine"
	"github.com/nacholabs/nacho/pkg/emu/hle"
	"github.com/nacholabs/nacho/pkg/emu/image"
	"github.com/nacholabs/nacho/pkg/emu/lifter"
	"github.com/nacholabs/nacho/pkg/emu/router"
	"github.com/nacholabs/nacho/pkg/emu/translate"
)

var runFlags struct {
	lenient bool
	display string
	monitor bool
	memory  uint32
	resync  bool
	width   int
	height  int
	post    bool
}

var runCmd = &cobra.Command{
	Use:   "run <image>",
	Short: "Run a program image",
	Long: `Run loads a program image, translates its entry region, and executes it
until the program halts, faults, or the process is interrupted.

An optional YAML manifest next to the image ("<image>.yaml") can override the
entry point, strictness, and display backend.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImage(cmd, args[0])
	},
}

func init() {
	RootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runFlags.lenient, "lenient", false, "substitute zero for unresolved call targets instead of faulting")
	runCmd.Flags().StringVar(&runFlags.display, "display", "term", "display backend (term, none)")
	runCmd.Flags().BoolVar(&runFlags.monitor, "monitor", false, "show a live engine monitor instead of the display")
	runCmd.Flags().Uint32Var(&runFlags.memory, "mem", 64*1024, "guest memory size in bytes")
	runCmd.Flags().BoolVar(&runFlags.resync, "resync", false, "skip undecodable bytes instead of aborting the block")
	runCmd.Flags().IntVar(&runFlags.width, "width", 128, "framebuffer width in pixels")
	runCmd.Flags().IntVar(&runFlags.height, "height", 96, "framebuffer height in pixels")
	runCmd.Flags().BoolVar(&runFlags.post, "post", false, "enable gamma correction and dithering stages")
}

func runImage(cmd *cobra.Command, path string) error {
	logger, closeLog, err := buildLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	img, err := image.Parse(data)
	if err != nil {
		return err
	}

	manifest, err := image.LoadManifest(path + ".yaml")
	if err != nil {
		return err
	}
	manifest.Apply(img)

	strictness := router.Strictness_Strict
	if runFlags.lenient || (manifest != nil && manifest.Strict != nil && !*manifest.Strict) {
		strictness = router.Strictness_Lenient
	}

	displayBackend := runFlags.display
	if manifest != nil && manifest.Display != "" && !cmd.Flags().Changed("display") {
		displayBackend = manifest.Display
	}
	if runFlags.monitor {
		// The monitor owns the terminal; frames are computed but not painted.
		displayBackend = "none"
	}

	var presenter display.Presenter
	switch displayBackend {
	case "term":
		presenter = term.New()
	case "none":
		presenter = display.Discard{}
	default:
		return fmt.Errorf("unknown display backend %q", displayBackend)
	}

	var stages []display.Stage
	if runFlags.post {
		stages = append(stages, display.GammaCorrect, display.Dither)
	}

	delivery, err := display.NewDelivery(presenter, runFlags.width, runFlags.height, display.WithStages(stages...))
	if err != nil {
		return err
	}

	registry := hle.NewRegistry()
	if err := hle.RegisterPlatform(registry); err != nil {
		return err
	}
	registry.Freeze()

	env := hle.NewEnv(logger, delivery, runFlags.width, runFlags.height)

	policy := lifter.RecoveryPolicy_AbortBlock
	if runFlags.resync {
		policy = lifter.RecoveryPolicy_Resync
	}

	translator := translate.New(img, policy)
	rt := router.New(translator, registry, env)

	eng := engine.New(translator, rt,
		engine.WithConfig(engine.Config{
			Strictness: strictness,
			MemorySize: runFlags.memory,
		}),
		engine.WithLogger(logger),
		engine.WithDelivery(delivery),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var monitorDone chan struct{}
	if runFlags.monitor {
		monitorDone = startMonitor(ctx, eng)
	}

	runErr := eng.Run(ctx)

	if monitorDone != nil {
		stop()
		<-monitorDone
	}

	if err := eng.Shutdown(); err != nil {
		logger.Warn("display shutdown failed", "error", err)
	}

	printSummary(eng, delivery, env)
	return runErr
}

func printSummary(eng *engine.Engine, delivery *display.Delivery, env *hle.Env) {
	snap := eng.Snapshot()
	painted, dropped := delivery.Stats()

	state := color.GreenString("%s", snap.State)
	if snap.Fault != nil {
		state = color.RedString("%s", snap.State)
	}

	fmt.Printf("%s %s\n", color.New(color.Bold).Sprint("state:"), state)
	fmt.Printf("%s %d instructions, %d blocks\n", color.New(color.Bold).Sprint("executed:"), snap.Executed, snap.Blocks)
	fmt.Printf("%s %d painted, %d dropped\n", color.New(color.Bold).Sprint("frames:"), painted, dropped)

	if env.Finished() {
		fmt.Printf("%s program finished itself\n", color.New(color.Bold).Sprint("exit:"))
	}
	if snap.Fault != nil {
		fmt.Printf("%s %v\n", color.New(color.Bold).Sprint("fault:"), snap.Fault)
	}
}
