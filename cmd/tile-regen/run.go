package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ironsheep/tile-regen/internal/imaging"
	"github.com/ironsheep/tile-regen/internal/pipeline"
	"github.com/ironsheep/tile-regen/internal/tiling"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the full split-regenerate-merge-export pipeline",
	RunE:  runPipeline,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the tile grid that would be used, as JSON",
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)

	for _, cmd := range []*cobra.Command{runCmd, planCmd} {
		cmd.Flags().StringP("input", "i", "", "source image (png, jpeg, gif, webp; required)")
		cmd.Flags().Int("max-tile", 1024, "largest acceptable tile edge length in pixels")
		cmd.Flags().Float64("overlap", 0.1, "overlap ratio between adjacent tiles (0 <= r < 1)")
	}

	runCmd.Flags().StringP("output", "o", "", "output raster path; extension picks png or jpeg (required)")
	runCmd.Flags().String("generator-cmd", "", "external command invoked per tile (required)")
	runCmd.Flags().IntP("concurrency", "c", 2, "parallel generation calls (1-8)")
	runCmd.Flags().String("subject", "", "subject description substituted into the prompt")
	runCmd.Flags().String("prompt-template", "", "prompt template with {subject}, {row}/{col}, ... placeholders")
	runCmd.Flags().String("key-color", "white", "background key color: named, #RRGGBB, or 'auto'")
	runCmd.Flags().Int("tolerance", 10, "key color tolerance, 0-100")
	runCmd.Flags().Bool("remove-background", false, "key the background to transparency in the merge")
	runCmd.Flags().Bool("reference-mode", false, "attach the full source image to every generation call")
	runCmd.Flags().Bool("match-output-size", true, "resize generation results back onto their tile geometry")
	runCmd.Flags().Duration("generate-timeout", 2*time.Minute, "per-tile generation timeout")
	runCmd.Flags().Bool("layered", false, "also export a layered zip bundle for manual touch-up")
	runCmd.Flags().String("work-dir", "", "scratch directory, never deleted (default: UUID-scoped temp dir, removed after the run)")
	runCmd.Flags().Bool("keep-work-dir", false, "keep the auto-created scratch directory after the run")

	viper.BindPFlag("input", runCmd.Flags().Lookup("input"))
	viper.BindPFlag("output", runCmd.Flags().Lookup("output"))
	viper.BindPFlag("generator-cmd", runCmd.Flags().Lookup("generator-cmd"))
	viper.BindPFlag("max-tile", runCmd.Flags().Lookup("max-tile"))
	viper.BindPFlag("overlap", runCmd.Flags().Lookup("overlap"))
	viper.BindPFlag("concurrency", runCmd.Flags().Lookup("concurrency"))
	viper.BindPFlag("subject", runCmd.Flags().Lookup("subject"))
	viper.BindPFlag("prompt-template", runCmd.Flags().Lookup("prompt-template"))
	viper.BindPFlag("key-color", runCmd.Flags().Lookup("key-color"))
	viper.BindPFlag("tolerance", runCmd.Flags().Lookup("tolerance"))
	viper.BindPFlag("remove-background", runCmd.Flags().Lookup("remove-background"))
	viper.BindPFlag("reference-mode", runCmd.Flags().Lookup("reference-mode"))
	viper.BindPFlag("match-output-size", runCmd.Flags().Lookup("match-output-size"))
	viper.BindPFlag("generate-timeout", runCmd.Flags().Lookup("generate-timeout"))
	viper.BindPFlag("layered", runCmd.Flags().Lookup("layered"))
	viper.BindPFlag("work-dir", runCmd.Flags().Lookup("work-dir"))
	viper.BindPFlag("keep-work-dir", runCmd.Flags().Lookup("keep-work-dir"))
}

func runPipeline(cmd *cobra.Command, args []string) error {
	input := viper.GetString("input")
	output := viper.GetString("output")
	generatorCmd := viper.GetString("generator-cmd")
	if input == "" || output == "" || generatorCmd == "" {
		return fmt.Errorf("--input, --output, and --generator-cmd are required")
	}

	gen := newExecGenerator(generatorCmd)

	result, err := pipeline.Run(cmd.Context(), gen, pipeline.Config{
		InputPath:        input,
		OutputPath:       output,
		MaxTileDim:       viper.GetInt("max-tile"),
		OverlapRatio:     viper.GetFloat64("overlap"),
		Concurrency:      viper.GetInt("concurrency"),
		Subject:          viper.GetString("subject"),
		PromptTemplate:   viper.GetString("prompt-template"),
		KeyColor:         viper.GetString("key-color"),
		Tolerance:        viper.GetInt("tolerance"),
		RemoveBackground: viper.GetBool("remove-background"),
		ReferenceMode:    viper.GetBool("reference-mode"),
		MatchOutputSize:  viper.GetBool("match-output-size"),
		GenerateTimeout:  viper.GetDuration("generate-timeout"),
		Layered:          viper.GetBool("layered"),
		WorkDir:          viper.GetString("work-dir"),
		KeepWorkDir:      viper.GetBool("keep-work-dir"),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Merged output: %s\n", result.Export.MergedPath)
	if result.Export.BundlePath != "" {
		fmt.Fprintf(os.Stderr, "Layered bundle: %s\n", result.Export.BundlePath)
	}
	if result.Summary.Failed > 0 {
		fmt.Fprintf(os.Stderr, "%d tile(s) fell back to their original crops\n", result.Summary.Failed)
	}
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	input, _ := cmd.Flags().GetString("input")
	if input == "" {
		return fmt.Errorf("--input is required")
	}
	maxTile, _ := cmd.Flags().GetInt("max-tile")
	overlap, _ := cmd.Flags().GetFloat64("overlap")

	img, err := imaging.Load(input)
	if err != nil {
		return err
	}
	b := img.Bounds()
	plan := tiling.PlanGrid(b.Dx(), b.Dy(), maxTile, overlap)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Plan  tiling.GridPlan       `json:"plan"`
		Tiles []tiling.TileGeometry `json:"tiles"`
	}{plan, plan.Geometries()})
}
