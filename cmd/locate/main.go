// Command locate searches the mlocate database for paths matching a set of
// patterns (spec §4.7).
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mlocate-go/mlocate/cmd"
	"github.com/mlocate-go/mlocate/internal/codec"
	"github.com/mlocate-go/mlocate/internal/config"
	"github.com/mlocate-go/mlocate/internal/match"
)

// resolveDatabases builds the locator's database path list (spec §6
// "Locator CLI" / "Environment"): --database, if given, is colon-separated
// with an empty segment meaning "use the compiled-in default"; otherwise the
// list starts as just the default. LOCATE_PATH, parsed the same way, is
// then appended unconditionally.
func resolveDatabases(flagValue string) []string {
	var paths []string
	if flagValue == "" {
		paths = []string{config.DefaultOutputPath}
	} else {
		paths = splitDatabaseList(flagValue)
	}
	if env := os.Getenv("LOCATE_PATH"); env != "" {
		paths = append(paths, splitDatabaseList(env)...)
	}
	return paths
}

func splitDatabaseList(s string) []string {
	segments := strings.Split(s, ":")
	out := make([]string, len(segments))
	for i, seg := range segments {
		if seg == "" {
			out[i] = config.DefaultOutputPath
		} else {
			out[i] = seg
		}
	}
	return out
}

// compilePatterns compiles the positional patterns (globs, or extended
// regexes under --regex) together with any --regexp basic regular
// expressions into one OR'd set (spec §6: "Positional arguments are
// patterns").
func compilePatterns(arguments []string) (*match.PatternSet, error) {
	patterns := make([]*match.Pattern, 0, len(arguments)+len(rootConfiguration.regexp))
	for _, raw := range arguments {
		var p *match.Pattern
		var err error
		if rootConfiguration.regex {
			p, err = match.CompileRegex(raw, rootConfiguration.ignoreCase)
		} else {
			p, err = match.CompileGlob(raw, rootConfiguration.ignoreCase)
		}
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}
	for _, raw := range rootConfiguration.regexp {
		p, err := match.CompileBasicRegex(raw, rootConfiguration.ignoreCase)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, p)
	}

	basename := rootConfiguration.basename && !rootConfiguration.wholename
	return match.NewPatternSet(basename, patterns...), nil
}

func locateMain(command *cobra.Command, arguments []string) error {
	if len(arguments) == 0 && len(rootConfiguration.regexp) == 0 && !rootConfiguration.statistics {
		return errors.New("locate requires at least one pattern")
	}

	var patterns *match.PatternSet
	if !rootConfiguration.statistics {
		var err error
		patterns, err = compilePatterns(arguments)
		if err != nil {
			return err
		}
	}

	existence := match.ExistenceIgnore
	if rootConfiguration.existing {
		existence = match.ExistenceStat
		if rootConfiguration.nofollow {
			existence = match.ExistenceLstat
		}
	}

	opts := match.Options{
		Patterns:         patterns,
		CountOnly:        rootConfiguration.countOnly,
		Statistics:       rootConfiguration.statistics,
		Terminal:         match.IsTerminal(os.Stdout),
		IgnoreVisibility: rootConfiguration.all,
		Existence:        existence,
	}
	if rootConfiguration.null {
		opts.Separator = match.SeparatorNUL
	} else {
		opts.Separator = match.SeparatorNewline
	}

	databases := resolveDatabases(rootConfiguration.database)

	// totalMatches is shared across every database in the list so --limit
	// caps the combined result count, not a per-database one (spec §6).
	totalMatches := 0
	for _, dbPath := range databases {
		f, err := os.Open(dbPath)
		if err != nil {
			if rootConfiguration.quiet {
				continue
			}
			return errors.Wrap(err, "unable to open database")
		}

		dbOpts := opts
		if rootConfiguration.limit > 0 {
			remaining := rootConfiguration.limit - totalMatches
			if remaining <= 0 {
				f.Close()
				break
			}
			dbOpts.Limit = remaining
		}

		reader := codec.NewReader(f)
		m := match.New(reader, os.Stdout, dbOpts)
		stats, err := m.Run()
		f.Close()
		if err != nil {
			return errors.Wrap(err, "unable to search database")
		}
		totalMatches += stats.Matches
	}

	if rootConfiguration.countOnly {
		fmt.Println(totalMatches)
	}

	return nil
}

var rootCommand = &cobra.Command{
	Use:   "locate [pattern...]",
	Short: "Find paths matching a pattern in the mlocate database",
	Args:  cobra.ArbitraryArgs,
	Run:   cmd.Mainify(locateMain),
}

var rootConfiguration struct {
	help       bool
	database   string
	ignoreCase bool
	regex      bool
	regexp     []string
	basename   bool
	wholename  bool
	countOnly  bool
	limit      int
	null       bool
	existing   bool
	nofollow   bool
	all        bool
	statistics bool
	quiet      bool
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVarP(&rootConfiguration.database, "database", "d", "", "Colon-separated list of database files to search (default "+config.DefaultOutputPath+")")
	flags.BoolVarP(&rootConfiguration.ignoreCase, "ignore-case", "i", false, "Match case-insensitively")
	flags.BoolVarP(&rootConfiguration.regex, "regex", "r", false, "Treat positional patterns as extended regular expressions instead of globs")
	flags.StringArrayVar(&rootConfiguration.regexp, "regexp", nil, "Match against a basic regular expression (repeatable)")
	flags.BoolVarP(&rootConfiguration.basename, "basename", "b", false, "Match only against the last path component")
	flags.BoolVar(&rootConfiguration.wholename, "wholename", false, "Match against the whole path (default; overrides --basename)")
	flags.BoolVarP(&rootConfiguration.countOnly, "count", "c", false, "Print only the number of matches")
	flags.IntVarP(&rootConfiguration.limit, "limit", "n", 0, "Stop after this many matches across all databases (0 means unbounded)")
	flags.BoolVar(&rootConfiguration.null, "null", false, "Separate matches with a NUL byte instead of a newline")
	flags.BoolVarP(&rootConfiguration.existing, "existing", "e", false, "Only print entries that currently exist on disk")
	flags.BoolVar(&rootConfiguration.nofollow, "nofollow", false, "With --existing, do not follow a trailing symbolic link")
	flags.BoolVarP(&rootConfiguration.all, "all", "a", false, "Ignore recorded visibility and print every stored match")
	flags.BoolVarP(&rootConfiguration.statistics, "statistics", "S", false, "Print database statistics instead of searching")
	flags.BoolVarP(&rootConfiguration.quiet, "quiet", "q", false, "Silence per-database I/O errors")

	cobra.EnableCommandSorting = false
	cobra.MousetrapHelpText = ""
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
