package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	lsRecursive bool
	rmRecursive bool
)

var cpCmd = &cobra.Command{
	Use:   "cp [host-file] [path]",
	Short: "Copy a host file into the simulated file system",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(runCp(args[0], args[1]))
	},
}

var catCmd = &cobra.Command{
	Use:   "cat [path]",
	Short: "Print a file's contents",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(runCat(args[0]))
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "/"
		if len(args) == 1 {
			path = args[0]
		}
		cobra.CheckErr(runLs(path))
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir [path]",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(runMkdir(args[0]))
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm [path]",
	Short: "Remove a file or directory tree",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cobra.CheckErr(runRm(args[0]))
	},
}

func init() {
	rootCmd.AddCommand(cpCmd, catCmd, lsCmd, mkdirCmd, rmCmd)

	lsCmd.Flags().BoolVarP(&lsRecursive, "recursive", "r", false, "descend into subdirectories")
	rmCmd.Flags().BoolVarP(&rmRecursive, "recursive", "r", false, "remove directories and their contents")
}

func runCp(hostFile, path string) error {
	data, err := os.ReadFile(hostFile)
	if err != nil {
		return fmt.Errorf("failed to read host file: %w", err)
	}

	k, err := bootKernel(false)
	if err != nil {
		return err
	}
	defer k.Close()

	if !k.FileSystem.Create(path, len(data), false) {
		return fmt.Errorf("failed to create %s", path)
	}
	of := k.FileSystem.Open(path)
	if of == nil {
		return fmt.Errorf("failed to reopen %s", path)
	}
	if n := of.WriteAt(data, 0); n != len(data) {
		return fmt.Errorf("short write to %s: %d of %d bytes", path, n, len(data))
	}

	fmt.Printf("Copied %s -> %s (%d bytes)\n", hostFile, path, len(data))
	return nil
}

func runCat(path string) error {
	k, err := bootKernel(false)
	if err != nil {
		return err
	}
	defer k.Close()

	of := k.FileSystem.Open(path)
	if of == nil {
		return fmt.Errorf("%s: no such file", path)
	}

	data := make([]byte, of.Length())
	of.ReadAt(data, 0)
	os.Stdout.Write(data)
	return nil
}

func runLs(path string) error {
	k, err := bootKernel(false)
	if err != nil {
		return err
	}
	defer k.Close()

	k.FileSystem.List(os.Stdout, path, lsRecursive)
	return nil
}

func runMkdir(path string) error {
	k, err := bootKernel(false)
	if err != nil {
		return err
	}
	defer k.Close()

	if !k.FileSystem.Create(path, 0, true) {
		return fmt.Errorf("failed to create directory %s", path)
	}
	return nil
}

func runRm(path string) error {
	k, err := bootKernel(false)
	if err != nil {
		return err
	}
	defer k.Close()

	if !k.FileSystem.Remove(path, rmRecursive) {
		return fmt.Errorf("failed to remove %s (directories need --recursive)", path)
	}
	return nil
}
