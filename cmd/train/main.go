package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	config "kicks-forecast-api/configs"
	"kicks-forecast-api/pkg/logger"
	"kicks-forecast-api/pkg/services"

	"github.com/joho/godotenv"
)

func main() {
	// .envファイルを読み込み
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	dataFile := flag.String("data", cfg.Training.DataFile, "historical sales file (.csv or .xlsx)")
	outDir := flag.String("out", cfg.ModelDir, "directory for units_predictor.json and metadata.json")
	seed := flag.Int64("seed", cfg.Training.Seed, "random seed for the split and the forest")
	testSize := flag.Float64("test-size", cfg.Training.TestSize, "holdout fraction in (0, 1)")
	numTrees := flag.Int("trees", cfg.Training.NumTrees, "number of random forest trees")
	maxDepth := flag.Int("max-depth", cfg.Training.MaxDepth, "maximum tree depth (0 = unlimited)")
	flag.Parse()

	zl, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zl.Sync()

	trainer := services.NewTrainer(services.TrainingConfig{
		Seed:     *seed,
		TestSize: *testSize,
		NumTrees: *numTrees,
		MaxDepth: *maxDepth,
	}, zl)

	res, err := trainer.TrainFile(*dataFile, *outDir)
	if err != nil {
		zl.Error("training failed", "data", *dataFile, "error", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(res.Report, "", "  ")
	if err != nil {
		zl.Error("failed to encode training report", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}
