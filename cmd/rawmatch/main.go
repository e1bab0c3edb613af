package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"rawmatch/internal/app"
	"rawmatch/internal/config"
	"rawmatch/internal/raw"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by defaults["config_path"]. When no
// config file exists yet, built-in defaults are used.
func loadConfig(defaults map[string]string) (*config.Config, error) {
	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		return config.NewConfig(defaults["base_dir"]), nil
	}
	cfg.ApplyDefaults(defaults["base_dir"])
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(verbose bool) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := loadConfig(defaults)
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(cfg, verbose)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "rawmatch",
	Short: "Index RAW photo files and copy the ones matching selected JPEGs",
}

// index command
var indexCmd = &cobra.Command{
	Use:   "index DIRECTORY",
	Short: "Build or update the RAW file index for a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noRecursive, _ := cmd.Flags().GetBool("no-recursive")
		force, _ := cmd.Flags().GetBool("force-rebuild")
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := newApp(verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		absDir, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		idx, err := a.BuildIndex(cmd.Context(), absDir, !noRecursive, force)
		if err != nil {
			return fmt.Errorf("indexing failed: %w", err)
		}

		fmt.Printf("Indexed %d RAW file(s) in %s\n", idx.Len(), absDir)
		return nil
	},
}

// match command
var matchCmd = &cobra.Command{
	Use:   "match DIRECTORY",
	Short: "Copy RAW files matching the JPEGs found in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noRecursive, _ := cmd.Flags().GetBool("no-recursive")
		sourceFilter, _ := cmd.Flags().GetString("source-filter")
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := newApp(verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		absDir, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		report, err := a.MatchAndCopy(cmd.Context(), absDir, !noRecursive, sourceFilter)
		if err != nil {
			var nie *raw.NoIndexError
			if errors.As(err, &nie) {
				fmt.Fprintf(os.Stderr, "%s\nBuild one first with: rawmatch index DIRECTORY\n", nie.Error())
				a.Close()
				os.Exit(1)
			}
			return fmt.Errorf("matching failed: %w", err)
		}

		printReport(report, verbose || app.StdoutIsTerminal())
		return nil
	},
}

func printReport(r *raw.MatchReport, detail bool) {
	if r.JpegsFound == 0 {
		fmt.Println("No JPEG files found.")
		return
	}

	if detail {
		for _, m := range r.Matches {
			fmt.Printf("%s  <-  %s  (%s)\n", filepath.Base(m.JpegPath), m.RawPath, m.Method)
		}
	}

	fmt.Printf("JPEGs: %d  Matched: %d (timestamp: %d, basename only: %d)  Unmatched: %d\n",
		r.JpegsFound,
		r.Stats.Total,
		r.Stats.BasenameAndTimestamp,
		r.Stats.BasenameOnly,
		r.JpegsFound-r.Stats.Total,
	)
	fmt.Printf("Copied: %d  Skipped: %d  Failed: %d\n",
		r.Outcome.Copied, r.Outcome.Skipped, r.Outcome.Failed)

	for _, e := range r.Outcome.Errors {
		fmt.Fprintf(os.Stderr, "copy failed: %s: %s\n", e.Path, e.Reason)
	}
}

// list-index command
var listIndexCmd = &cobra.Command{
	Use:   "list-index",
	Short: "List indexed source directories",
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := newApp(verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		summaries, err := a.ListIndexed()
		if err != nil {
			return err
		}

		if len(summaries) == 0 {
			fmt.Println("No indexed directories.")
			return nil
		}

		for _, s := range summaries {
			fmt.Printf("%s  %6d file(s)  %s\n",
				s.LastUpdated.Format("2006-01-02 15:04:05"),
				s.RecordCount,
				s.SourceDirectory,
			)
			if verbose {
				idx, err := a.LoadIndex(s.SourceDirectory)
				if err != nil || idx == nil {
					continue
				}
				counts := idx.ExtensionCounts()
				exts := make([]string, 0, len(counts))
				for ext := range counts {
					exts = append(exts, ext)
				}
				sort.Strings(exts)
				for _, ext := range exts {
					fmt.Printf("    %s: %d\n", ext, counts[ext])
				}
				for _, rec := range idx.AllRecords() {
					ts := "-"
					if rec.CaptureTime != nil {
						ts = rec.CaptureTime.Format("2006-01-02 15:04:05")
					}
					fmt.Printf("    %s  %s  %d\n", ts, rec.Path, rec.Size)
				}
			}
		}
		return nil
	},
}

// clear-cache command
var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Remove stored indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		source, _ := cmd.Flags().GetString("source")
		verbose, _ := cmd.Flags().GetBool("verbose")

		a, err := newApp(verbose)
		if err != nil {
			return err
		}
		defer a.Close()

		removed, err := a.ClearCache(source)
		if err != nil {
			return err
		}

		switch {
		case !removed && source != "":
			fmt.Printf("No index found for %s\n", source)
		case source != "":
			fmt.Printf("Removed index for %s\n", source)
		default:
			fmt.Println("Removed all indexes.")
		}
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := loadConfig(defaults)
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Cache Dir:       %s\n", cfg.CacheDir)
		fmt.Printf("Log Dir:         %s\n", cfg.LogDir)
		fmt.Printf("Metadata Reader: %s\n", cfg.Metadata.Type)
		if cfg.Metadata.ExiftoolPath != "" {
			fmt.Printf("Exiftool Path:   %s\n", cfg.Metadata.ExiftoolPath)
		}
		fmt.Printf("Workers:         %d\n", cfg.Index.Workers)
		fmt.Printf("Safety Margin:   %d bytes\n", cfg.Copy.SafetyMarginBytes)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output and debug logging")

	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().Bool("no-recursive", false, "Do not recurse into subdirectories")
	indexCmd.Flags().Bool("force-rebuild", false, "Discard the stored index and rebuild from scratch")

	rootCmd.AddCommand(matchCmd)
	matchCmd.Flags().Bool("no-recursive", false, "Do not recurse into subdirectories")
	matchCmd.Flags().String("source-filter", "", "Only match against the index of this source directory")

	rootCmd.AddCommand(listIndexCmd)
	rootCmd.AddCommand(clearCacheCmd)
	clearCacheCmd.Flags().String("source", "", "Remove only the index for this source directory")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
}
