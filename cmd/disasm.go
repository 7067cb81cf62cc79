package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nacholabs/nacho/pkg/emu/decoder"
	"github.com/nacholabs/nacho/pkg/emu/image"
	"github.com/nacholabs/nacho/pkg/emu/lifter"
)

var disasmFlags struct {
	lift bool
}

var disasmCmd = &cobra.Command{
	Use:   "disasm <image>",
	Short: "Disassemble the code section of a program image",
	Long: `Disasm decodes the full code section of a program image and prints one
instruction per line. With --lift, the lifted intermediate representation of
each instruction is printed alongside it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return disasmImage(args[0])
	},
}

func init() {
	RootCmd.AddCommand(disasmCmd)

	disasmCmd.Flags().BoolVar(&disasmFlags.lift, "lift", false, "print the lifted intermediate representation")
}

func disasmImage(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	img, err := image.Parse(data)
	if err != nil {
		return err
	}

	addrColor := color.New(color.FgCyan)
	instrColor := color.New(color.FgWhite, color.Bold)
	irColor := color.New(color.FgYellow)
	badColor := color.New(color.FgRed)

	dec := decoder.New(img.Code, img.CodeBase)
	lift := lifter.New(img, lifter.RecoveryPolicy_Resync)

	for {
		addr := dec.Addr()

		raw, err := dec.Next()
		if errors.Is(err, decoder.ErrEndOfCode) {
			return nil
		}
		if err != nil {
			badColor.Printf("0x%08X  ?? undecodable: %v\n", addr, err)
			dec.Skip(1)
			continue
		}

		fmt.Printf("%s  %s", addrColor.Sprintf("0x%08X", raw.Addr), instrColor.Sprint(raw.String()))

		if disasmFlags.lift {
			lifted, err := lift.Lift(raw)
			if err != nil {
				fmt.Printf("  %s", badColor.Sprintf("; %v", err))
			}
			for _, instr := range lifted {
				fmt.Printf("  %s", irColor.Sprintf("; %s", instr.String()))
			}
		}

		fmt.Println()
	}
}
