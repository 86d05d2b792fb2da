package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"colmap2nerf/pkg/config"
	"colmap2nerf/pkg/conversion"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s <input_dir> [output_filename]\n\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "Reads <input_dir>/transformations_colmap.json and <input_dir>/../../colmap/points3D.bin\n")
		fmt.Fprintf(flag.CommandLine.Output(), "and writes <input_dir>/<output_filename> (default transforms.json).\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Set %s to a YAML file to override file locations.\n", config.EnvConfigPath)
	}
	flag.Parse()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := zap.NewNop()
	if cfg.Output.Verbose {
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatalf("Failed to create logger: %v", err)
		}
	}
	defer func() { _ = logger.Sync() }()

	params := &conversion.Params{
		InputDir:       flag.Arg(0),
		OutputFilename: flag.Arg(1),
	}

	converter := conversion.NewConverter(params, cfg, logger.Sugar())
	outputPath, err := converter.Process()
	if err != nil {
		log.Fatalf("Conversion failed: %v", err)
	}

	fmt.Printf("Transformed data saved to %s\n", outputPath)
}
