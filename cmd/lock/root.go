package lock

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/lbraun/sKV/cmd/util"
	"github.com/lbraun/sKV/lib/filelock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// LockCommands represents the lock command group
	LockCommands = &cobra.Command{
		Use:   "lock",
		Short: "Perform file lock operations",
	}

	// runCmd represents the run command
	runCmd = &cobra.Command{
		Use:   "run [command] [args...]",
		Short: "Run a command while holding the store file lock",
		Long: util.WrapString("Acquires the advisory lock guarding the store file, runs the given command " +
			"and releases the lock afterwards. Use this to update the store file with external tools " +
			"without racing concurrent skv invocations."),
		Args: cobra.MinimumNArgs(1),
		RunE: runLocked,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitCLIConfig)

	// Add subcommands to lock command
	LockCommands.AddCommand(runCmd)

	// Add common store flags to the lock command
	util.SetupStoreFlags(LockCommands)
}

// runLocked executes the given command under the store file lock
func runLocked(cmd *cobra.Command, args []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	path := viper.GetString("file") + ".lock"
	locker := filelock.New(path)

	if err := locker.Acquire(util.GetLockTimeout()); err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", path, err)
	}

	fmt.Printf("lock %s acquired\n", path)

	// run the command with the lock held
	child := exec.Command(args[0], args[1:]...)
	child.Stdin = os.Stdin
	child.Stdout = os.Stdout
	child.Stderr = os.Stderr

	if err := child.Run(); err != nil {
		_ = locker.Release()
		return fmt.Errorf("command failed: %w", err)
	}

	if err := locker.Release(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", path, err)
	}

	fmt.Printf("lock %s released\n", path)
	return nil
}
