package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/tailfeed/internal/config"
	"github.com/pders01/tailfeed/internal/tui"
)

type globalFlags struct {
	configPath string
	dbPath     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "tailfeed",
		Short:         "Terminal client for tailored, discover and search feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&g.configPath, "config", "", "Path to configuration file")
	flags.StringVar(&g.dbPath, "db", "", "Path to session database (overrides config)")
	flags.StringVar(&g.logLevel, "log-level", "", "Log level: debug, info, warn, error, off")

	root.AddCommand(
		newVersionCmd(),
		newConfigCmd(),
		newLoginCmd(g),
		newLogoutCmd(g),
		newFeedCmd(g),
		newSearchCmd(g),
		newLikeCmd(g),
		newCommentCmd(g),
		newBrowseCmd(g),
		newSyndicateCmd(g),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	var banner bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			if banner {
				fmt.Fprintln(out, tui.Banner(Version))
			}
			fmt.Fprintf(out, "%s %s\n", tui.AppName, Version)
			fmt.Fprintln(out, "feed client")
			fmt.Fprintln(out, "github.com/pders01/tailfeed")
		},
	}
	cmd.Flags().BoolVar(&banner, "banner", false, "Show the logo")
	return cmd
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var path string
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Write a default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = config.DefaultPath()
			}
			if err := config.GenerateDefaultConfig(path); err != nil {
				return fmt.Errorf("generating config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated default configuration at: %s\n", path)
			return nil
		},
	}
	generate.Flags().StringVar(&path, "path", "", "Where to write the file")

	cmd.AddCommand(generate, &cobra.Command{
		Use:   "path",
		Short: "Print the default configuration path",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.DefaultPath())
		},
	})
	return cmd
}
