package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tile-regen",
	Short: "Split an image into overlapping tiles, regenerate them, and merge seamlessly",
	Long: `tile-regen turns one large raster image into a grid of overlapping tiles,
regenerates each tile through an external image-generation command, and
reassembles the results into a single seamless output, optionally keyed
against a background color for transparency.

Examples:
  # Plan the tile grid without touching anything
  tile-regen plan --input photo.jpg --max-tile 1024 --overlap 0.1

  # Regenerate through an external command and write a transparent PNG
  tile-regen run --input photo.jpg --output out.png \
    --generator-cmd ./regen.sh --subject "product shot" \
    --key-color green --tolerance 10 --remove-background

  # Keep the key color as a flat background and export a layered bundle
  tile-regen run --input photo.jpg --output out.jpg \
    --generator-cmd ./regen.sh --layered`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	// Logging goes to stderr; stdout is reserved for command output.
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tile-regen.yaml)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tile-regen")
	}

	viper.SetEnvPrefix("TILE_REGEN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
