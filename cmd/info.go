package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var infoDump bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show disk identity and file-system contents",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(runInfo())
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&infoDump, "dump", false, "dump headers, free map and directory details")
}

func runInfo() error {
	k, err := bootKernel(false)
	if err != nil {
		return err
	}
	defer k.Close()

	fmt.Printf("Disk image:    %s\n", k.Config.DiskPath)
	fmt.Printf("Disk identity: %s\n", k.Disk.Identity())
	fmt.Println("Files:")
	k.FileSystem.List(os.Stdout, "/", true)

	if infoDump {
		k.FileSystem.Dump(os.Stdout)
	}
	return nil
}
