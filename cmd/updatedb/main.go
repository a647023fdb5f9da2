// Command updatedb rescans a filesystem subtree and writes a new mlocate
// database, reusing directories from the previous database whose timestamps
// haven't changed (spec §4.6).
package main

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mlocate-go/mlocate/cmd"
	"github.com/mlocate-go/mlocate/internal/build"
	"github.com/mlocate-go/mlocate/internal/codec"
	"github.com/mlocate-go/mlocate/internal/config"
	"github.com/mlocate-go/mlocate/internal/logging"
	"github.com/mlocate-go/mlocate/internal/mount"
	"github.com/mlocate-go/mlocate/internal/publish"
)

func updatedbMain(command *cobra.Command, arguments []string) error {
	file, err := config.LoadFile(rootConfiguration.configFile)
	if err != nil {
		return errors.Wrap(err, "unable to load configuration file")
	}

	overrides := config.Overrides{
		ScanRoot:      rootConfiguration.databaseRoot,
		OutputPath:    rootConfiguration.output,
		AddPruneFS:    rootConfiguration.addPruneFS,
		AddPruneNames: rootConfiguration.addPruneNames,
		AddPrunePaths: rootConfiguration.addPrunePaths,
		Verbose:       rootConfiguration.verbose,
		DebugPruning:  rootConfiguration.debugPruning,
	}
	if command.Flags().Changed("prunefs") {
		overrides.PruneFS = rootConfiguration.pruneFS
	}
	if command.Flags().Changed("prunenames") {
		overrides.PruneNames = rootConfiguration.pruneNames
	}
	if command.Flags().Changed("prunepaths") {
		overrides.PrunePaths = rootConfiguration.prunePaths
	}
	if command.Flags().Changed("prune-bind-mounts") {
		overrides.PruneBindMounts = &rootConfiguration.pruneBindMounts
	}
	if command.Flags().Changed("require-visibility") {
		v := rootConfiguration.requireVisibility
		overrides.CheckVisibility = &v
	}

	snapshot, err := config.Build(file, overrides)
	if err != nil {
		return errors.Wrap(err, "unable to build configuration")
	}

	level := logging.LevelWarn
	if snapshot.Verbose {
		level = logging.LevelInfo
	}
	if snapshot.DebugPruning {
		level = logging.LevelDebug
	}
	logger := logging.NewRoot(level).Sublogger("updatedb")

	oracle := mount.New(mount.DefaultMountinfoPath)

	publisher, err := publish.New(snapshot.OutputPath)
	if err != nil {
		return errors.Wrap(err, "unable to begin publishing new database")
	}

	var oldReader *codec.Reader
	if oldFile, err := os.Open(snapshot.OutputPath); err == nil {
		defer oldFile.Close()
		r := codec.NewReader(oldFile)
		if header, err := r.ReadHeader(); err != nil {
			logger.Warn(errors.Wrap(err, "ignoring unreadable previous database"))
		} else if !bytes.Equal(header.Config, snapshot.ConfigBlock()) {
			logger.Print("previous database was built with a different configuration; rescanning everything")
		} else {
			oldReader = r
		}
	}

	if err := publisher.LockOldDatabase(snapshot.OutputPath); err != nil {
		publisher.Abort()
		return err
	}

	w := codec.NewWriter(publisher.File())
	if err := w.WriteHeader(&codec.Header{
		CheckVisibility: snapshot.CheckVisibility,
		ScanRoot:        snapshot.ScanRoot,
		Config:          snapshot.ConfigBlock(),
	}); err != nil {
		publisher.Abort()
		return errors.Wrap(err, "unable to write database header")
	}

	builder := build.New(snapshot, oldReader, oracle, logger)
	stats, err := builder.Run(w)
	if err != nil {
		publisher.Abort()
		return errors.Wrap(err, "unable to build database")
	}
	if err := w.Flush(); err != nil {
		publisher.Abort()
		return errors.Wrap(err, "unable to flush database")
	}

	gid := -1
	if snapshot.CheckVisibility {
		gid = os.Getgid()
	}
	if err := publisher.Finalize(snapshot.CheckVisibility, gid); err != nil {
		return errors.Wrap(err, "unable to install new database")
	}

	if snapshot.Verbose {
		logger.Printf(
			"scanned %d, reused %d, pruned %d directories; wrote %d entries",
			stats.DirectoriesScanned, stats.DirectoriesReused,
			stats.DirectoriesPruned, stats.EntriesWritten,
		)
	}

	return nil
}

var rootCommand = &cobra.Command{
	Use:   "updatedb",
	Short: "Update the mlocate database",
	Args:  cmd.DisallowArguments,
	Run:   cmd.Mainify(updatedbMain),
}

var rootConfiguration struct {
	help              bool
	configFile        string
	output            string
	databaseRoot      string
	pruneFS           []string
	addPruneFS        []string
	pruneNames        []string
	addPruneNames     []string
	prunePaths        []string
	addPrunePaths     []string
	pruneBindMounts   bool
	requireVisibility bool
	verbose           bool
	debugPruning      bool
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVarP(&rootConfiguration.configFile, "config", "c", config.DefaultConfigPath, "Configuration file to load")
	flags.StringVarP(&rootConfiguration.output, "output", "o", "", "Database file to write (default "+config.DefaultOutputPath+")")
	flags.StringVar(&rootConfiguration.databaseRoot, "database-root", "", "Root of the subtree to index (default /)")
	flags.StringSliceVar(&rootConfiguration.pruneFS, "prunefs", nil, "Replace the set of pruned filesystem types")
	flags.StringSliceVar(&rootConfiguration.addPruneFS, "add-prunefs", nil, "Add to the set of pruned filesystem types")
	flags.StringSliceVar(&rootConfiguration.pruneNames, "prunenames", nil, "Replace the set of pruned directory basenames")
	flags.StringSliceVar(&rootConfiguration.addPruneNames, "add-prunenames", nil, "Add to the set of pruned directory basenames")
	flags.StringSliceVar(&rootConfiguration.prunePaths, "prunepaths", nil, "Replace the set of pruned absolute paths")
	flags.StringSliceVar(&rootConfiguration.addPrunePaths, "add-prunepaths", nil, "Add to the set of pruned absolute paths")
	flags.BoolVar(&rootConfiguration.pruneBindMounts, "prune-bind-mounts", false, "Prune no-op bind mount targets")
	flags.BoolVar(&rootConfiguration.requireVisibility, "require-visibility", true, "Record visibility metadata in the database")
	flags.BoolVarP(&rootConfiguration.verbose, "verbose", "v", false, "Print progress and a final summary")
	flags.BoolVar(&rootConfiguration.debugPruning, "debug-pruning", false, "Print why each pruned directory was skipped")

	cobra.EnableCommandSorting = false
	cobra.MousetrapHelpText = ""
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
