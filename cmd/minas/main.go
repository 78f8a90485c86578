// Package main provides the MINAS CLI entry point.
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/asoliveira/minas/pkg/clustering"
	"github.com/asoliveira/minas/pkg/config"
	"github.com/asoliveira/minas/pkg/engine"
	"github.com/asoliveira/minas/pkg/events"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "minas",
		Short: "MINAS - online novelty detection for evolving data streams",
		Long: `MINAS trains an initial classifier offline, then classifies a
data stream instance by instance, buffering what it does not recognize and
periodically re-clustering that buffer to discover new, extended, or
revived classes.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("minas v%s\n", version)
		},
	})

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Run offline training and report the resulting model",
		RunE:  runTrain,
	}
	trainCmd.Flags().String("training-csv", "", "CSV file of labelled training instances (last column is the label)")
	trainCmd.Flags().String("config", "", "Path to a YAML config file (defaults used if omitted)")
	trainCmd.MarkFlagRequired("training-csv")
	rootCmd.AddCommand(trainCmd)

	streamCmd := &cobra.Command{
		Use:   "stream",
		Short: "Train, then classify a stream of unlabelled instances",
		RunE:  runStream,
	}
	streamCmd.Flags().String("training-csv", "", "CSV file of labelled training instances (last column is the label)")
	streamCmd.Flags().String("stream-csv", "", "CSV file of unlabelled stream instances")
	streamCmd.Flags().String("config", "", "Path to a YAML config file (defaults used if omitted)")
	streamCmd.MarkFlagRequired("training-csv")
	streamCmd.MarkFlagRequired("stream-csv")
	rootCmd.AddCommand(streamCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildEngine(cfg *config.Config, trainingCSV string) (*engine.Engine, error) {
	xTrain, yTrain, err := readLabelled(trainingCSV)
	if err != nil {
		return nil, fmt.Errorf("reading training csv: %w", err)
	}

	adaptor := clustering.NewKMeans(cfg.Seed)
	e := engine.New(adaptor, cfg.Evaluate, cfg)
	if err := e.InitialTraining(xTrain, yTrain); err != nil {
		return nil, fmt.Errorf("initial training: %w", err)
	}
	return e, nil
}

func runTrain(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	trainingCSV, _ := cmd.Flags().GetString("training-csv")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	fmt.Printf("training from %s\n", trainingCSV)
	e, err := buildEngine(cfg, trainingCSV)
	if err != nil {
		return err
	}

	fmt.Printf("trained: %d classes, %d micro-clusters\n", len(e.Classes()), len(e.GetModel()))
	return nil
}

func runStream(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	trainingCSV, _ := cmd.Flags().GetString("training-csv")
	streamCSV, _ := cmd.Flags().GetString("stream-csv")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	e, err := buildEngine(cfg, trainingCSV)
	if err != nil {
		return err
	}
	fmt.Printf("trained: %d classes, %d micro-clusters\n", len(e.Classes()), len(e.GetModel()))

	e.Events.Subscribe(func(ev events.Event) {
		fmt.Printf("   event: kind=%s label=%d t=%d n=%d\n", ev.Kind, ev.Label, ev.T, ev.N)
	})

	stream, err := readUnlabelled(streamCSV)
	if err != nil {
		return fmt.Errorf("reading stream csv: %w", err)
	}

	fmt.Printf("streaming %d instances from %s\n", len(stream), streamCSV)
	for i, x := range stream {
		pred, err := e.OnlineStep(x)
		if err != nil {
			return fmt.Errorf("instance %d: %w", i, err)
		}
		if pred.Unknown {
			fmt.Printf("%d: unknown\n", i)
		} else {
			fmt.Printf("%d: label=%d\n", i, pred.Label)
		}
		if e.LastStepWasNovelty() {
			fmt.Printf("   novelty detected, classes now %v\n", e.Classes())
		}
	}

	fmt.Printf("done: %d novelties, %d classes\n", e.NoveltyCount(), len(e.Classes()))
	return nil
}

func readLabelled(path string) ([][]float64, []int, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, nil, err
	}
	x := make([][]float64, 0, len(rows))
	y := make([]int, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, nil, fmt.Errorf("row %d: need at least one feature and a label", i)
		}
		features, err := parseFloats(row[:len(row)-1])
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: %w", i, err)
		}
		label, err := strconv.Atoi(row[len(row)-1])
		if err != nil {
			return nil, nil, fmt.Errorf("row %d: parsing label: %w", i, err)
		}
		x = append(x, features)
		y = append(y, label)
	}
	return x, y, nil
}

func readUnlabelled(path string) ([][]float64, error) {
	rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	x := make([][]float64, 0, len(rows))
	for i, row := range rows {
		features, err := parseFloats(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		x = append(x, features)
	}
	return x, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, v := range fields {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}
