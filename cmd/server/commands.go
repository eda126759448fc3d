package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/spam-detection/backend/internal/dataset"
	"github.com/spam-detection/backend/internal/model"
	"github.com/spam-detection/backend/internal/textclean"
)

var wordStatsLimit int

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the model from the dataset and save it",
	Long: `Reads DATASET_PATH, trains the TF-IDF + naive Bayes model and writes it
atomically to MODEL_PATH.`,
	RunE: runTrain,
}

var wordStatsCmd = &cobra.Command{
	Use:   "word-stats",
	Short: "Print the most indicative spam and ham words of the saved model",
	RunE:  runWordStats,
}

func init() {
	wordStatsCmd.Flags().IntVarP(&wordStatsLimit, "limit", "n", 20, "Rows per table")
}

func runTrain(cmd *cobra.Command, args []string) error {
	start := time.Now()

	var clean dataset.Cleaner
	if cfg.Model.StripHTML {
		clean = textclean.Clean
	}
	examples, err := dataset.Load(cfg.Model.DatasetPath, clean)
	if err != nil {
		return err
	}

	m, err := model.Train(examples)
	if err != nil {
		return err
	}
	if err := m.Save(cfg.Model.ModelPath); err != nil {
		return err
	}

	entry.WithField("duration", time.Since(start).String()).Info("Training complete")
	fmt.Fprintf(cmd.OutOrStdout(), "documents:  %d\nvocabulary: %d\nsaved to:   %s\n",
		m.NumDocuments(), m.VocabularySize(), cfg.Model.ModelPath)
	return nil
}

func runWordStats(cmd *cobra.Command, args []string) error {
	m, err := model.Load(cfg.Model.ModelPath)
	if err != nil {
		return err
	}
	stats := m.GlobalWordStats()

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Top spam words")
	printWeights(out, stats.SpamWords, wordStatsLimit)
	fmt.Fprintln(out, "\nTop ham words")
	printWeights(out, stats.HamWords, wordStatsLimit)
	return nil
}

func printWeights(out io.Writer, words []model.WordWeight, limit int) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Rank", "Word", "Weight"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	for i, w := range words {
		if i >= limit {
			break
		}
		table.Append([]string{strconv.Itoa(i + 1), w.Word, strconv.FormatFloat(w.Weight, 'f', 4, 64)})
	}
	table.Render()
}
