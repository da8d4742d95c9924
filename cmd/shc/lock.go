package main

import (
	"time"

	"github.com/franz/shelf-curator/internal/lock"
	"github.com/franz/shelf-curator/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Inspect run locks",
	Long: `Show the holder of each run lock.

A lock whose metadata is older than the staleness threshold is reported
as likely stale, with the holder's pid and host so an operator can
verify the process is really gone. Stale locks are never removed
automatically; remove the lock file by hand once you are sure.`,
	RunE: runLock,
}

func init() {
	rootCmd.AddCommand(lockCmd)

	lockCmd.Flags().Duration("stale-after", lock.DefaultStaleAfter, "Age after which a lock is reported stale")
	lockCmd.Flags().Bool("clear", false, "Print the file paths to remove for stale locks (never deletes)")

	viper.BindPFlag("lock_stale_after", lockCmd.Flags().Lookup("stale-after"))
}

func runLock(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	staleAfter := staleThreshold()
	clear, _ := cmd.Flags().GetBool("clear")

	locks, err := lock.NewFileManager(viper.GetString("lock_dir"))
	if err != nil {
		return err
	}

	for _, scope := range []lock.Scope{lock.ScopeApply, lock.ScopeMigrate} {
		held, err := locks.Held(scope)
		if err != nil {
			util.ErrorLog("%s: %v", scope, err)
			continue
		}

		info, err := locks.Inspect(scope)
		if err != nil {
			util.ErrorLog("%s: %v", scope, err)
			continue
		}

		stale := false
		switch {
		case !held && info == nil:
			util.InfoLog("%s: free", scope)
		case !held && info != nil:
			util.WarnLog("%s: free, but stale metadata remains (pid %d on %s since %s)",
				scope, info.PID, info.Hostname, info.AcquiredAt.Format(time.RFC3339))
			stale = true
		case info == nil:
			util.WarnLog("%s: held, holder unknown (no metadata)", scope)
		case info.Stale(staleAfter):
			util.WarnLog("%s: held by pid %d on %s since %s, older than %s, likely stale",
				scope, info.PID, info.Hostname, info.AcquiredAt.Format(time.RFC3339), staleAfter)
			stale = true
		default:
			util.InfoLog("%s: held by pid %d on %s since %s",
				scope, info.PID, info.Hostname, info.AcquiredAt.Format(time.RFC3339))
		}

		if clear && stale {
			lockFile, metaFile := locks.Paths(scope)
			util.InfoLog("%s: verify pid %d is gone, then remove %s and %s",
				scope, info.PID, lockFile, metaFile)
		}
	}

	return nil
}
