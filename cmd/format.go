package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pelicanproject/go-pelican/internal/machine"
)

var formatCmd = &cobra.Command{
	Use:   "format",
	Short: "Create and format a disk image",
	Long: `Create the disk image, stamp a fresh identity into it and lay out an
empty file system: the free-sector bitmap, its file header at sector 0,
and the root directory with its header at sector 1.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(runFormat())
	},
}

func init() {
	rootCmd.AddCommand(formatCmd)
}

func runFormat() error {
	k, err := bootKernel(true)
	if err != nil {
		return err
	}
	defer k.Close()

	fmt.Printf("Formatted %s (%d sectors of %d bytes)\n",
		k.Config.DiskPath, machine.NumSectors, machine.SectorSize)
	fmt.Printf("Disk identity: %s\n", k.Disk.Identity())
	return nil
}
