package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nacholabs/nacho/pkg/emu/image"
)

var infoCmd = &cobra.Command{
	Use:   "info <image>",
	Short: "Print the header and import table of a program image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printInfo(args[0])
	},
}

func init() {
	RootCmd.AddCommand(infoCmd)
}

func printInfo(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	img, err := image.Parse(data)
	if err != nil {
		return err
	}

	label := color.New(color.Bold)

	fmt.Printf("%s 0x%08X\n", label.Sprint("entry:"), img.Entry)
	fmt.Printf("%s 0x%08X (%d bytes)\n", label.Sprint("code:"), img.CodeBase, len(img.Code))
	fmt.Printf("%s 0x%08X (%d bytes)\n", label.Sprint("data:"), img.DataBase, len(img.Data))
	fmt.Printf("%s %d\n", label.Sprint("imports:"), len(img.Imports))

	for slot, name := range img.Imports {
		fmt.Printf("  %s %s\n", color.CyanString("[%d]", slot), name)
	}

	manifest, err := image.LoadManifest(path + ".yaml")
	if err != nil {
		return err
	}
	if manifest != nil {
		fmt.Printf("%s %s.yaml\n", label.Sprint("manifest:"), path)
		if manifest.Entry != nil {
			fmt.Printf("  entry override: 0x%08X\n", *manifest.Entry)
		}
		if manifest.Strict != nil {
			fmt.Printf("  strict: %v\n", *manifest.Strict)
		}
		if manifest.Display != "" {
			fmt.Printf("  display: %s\n", manifest.Display)
		}
	}

	return nil
}
