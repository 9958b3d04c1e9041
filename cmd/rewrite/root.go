package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/rewrite/config"
)

var log = commonlog.GetLogger("rewrite.cmd")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "rewrite",
	Short:         "Rewrite compiled units through a pass pipeline.",
	Long:          "Screens, rewrites and re-emits compiled units, and inspects them.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		verbosity := 0
		if err == nil {
			verbosity = cfg.Log.Verbosity
		}
		if n := GetCount(cmd, "verbose"); n > 0 {
			verbosity = n
		}
		commonlog.Configure(verbosity, nil)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the configuration named by --config, or searches
// upwards from the working directory. Environment overrides are applied
// last.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if dir := GetString(cmd, "config"); dir != "" {
		cfg, err = config.Load(dir)
	} else {
		cfg, err = config.FindAndLoad(".")
	}
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// GetString gets an expected string flag, or panic if an error arises.
func GetString(cmd *cobra.Command, flag string) string {
	r, err := cmd.Flags().GetString(flag)
	if err != nil {
		panic(err)
	}
	return r
}

// GetFlag gets an expected boolean flag, or panic if an error arises.
func GetFlag(cmd *cobra.Command, flag string) bool {
	r, err := cmd.Flags().GetBool(flag)
	if err != nil {
		panic(err)
	}
	return r
}

// GetInt gets an expected int flag, or panic if an error arises.
func GetInt(cmd *cobra.Command, flag string) int {
	r, err := cmd.Flags().GetInt(flag)
	if err != nil {
		panic(err)
	}
	return r
}

// GetCount gets an expected count flag, or panic if an error arises.
func GetCount(cmd *cobra.Command, flag string) int {
	r, err := cmd.Flags().GetCount(flag)
	if err != nil {
		panic(err)
	}
	return r
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase logging verbosity")
	rootCmd.PersistentFlags().StringP("config", "c", "", "directory containing rewrite.toml")
}
