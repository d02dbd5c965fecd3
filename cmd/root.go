package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/classcount/classcount-go/cmd/analyze"
	"github.com/classcount/classcount-go/cmd/report"
	"github.com/classcount/classcount-go/cmd/serve"
	"github.com/classcount/classcount-go/internal/conf"
	"github.com/classcount/classcount-go/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "classcount",
		Short: "ClassCount CLI",
		Long:  "Classroom image ingestion and head-count analysis service",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		serve.Command(settings),
		analyze.Command(settings),
		report.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		settings.Debug = viper.GetBool("debug")
		logging.Init(settings.Debug)
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().Float64VarP(&settings.Detector.MinConfidence, "threshold", "t", viper.GetFloat64("detector.minconfidence"), "Confidence threshold for detections, value between 0.0 and 1.0")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		cobra.CheckErr(fmt.Errorf("error binding flags: %w", err))
	}
}
