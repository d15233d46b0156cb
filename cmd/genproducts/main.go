package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"catalog/internal/model"
)

var (
	count      int
	outputFile string
	seed       int64
)

var rootCmd = &cobra.Command{
	Use:   "genproducts",
	Short: "Generate random catalog products as JSON lines for `catalog seed`",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("create file: %w", err)
		}
		defer file.Close()
		if err := generateProducts(file, count, rand.New(rand.NewSource(seed))); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "generated %d products to %s\n", count, outputFile)
		return nil
	},
}

func init() {
	rootCmd.Flags().IntVar(&count, "count", 100, "number of products to generate")
	rootCmd.Flags().StringVar(&outputFile, "output", "products.jsonl", "output file")
	rootCmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var (
	types    = []string{"Article", "Bundle"}
	markets  = []string{"fr", "be", "lu", "ch"}
	cultures = map[string][]string{
		"fr": {"fr-FR"},
		"be": {"fr-BE", "nl-BE"},
		"lu": {"fr-LU", "de-LU"},
		"ch": {"fr-CH", "de-CH", "it-CH"},
	}
)

func generateProducts(w io.Writer, count int, rnd *rand.Rand) error {
	enc := json.NewEncoder(w)
	for i := 0; i < count; i++ {
		pid := 100 + i
		p := model.Product{
			ID:           fmt.Sprintf("%d::%d", 1+rnd.Intn(3), pid),
			Type:         types[rnd.Intn(len(types))],
			ProductID:    pid,
			MarketInfo:   make(map[string]model.MarketInfo),
			LanguageInfo: make(map[string]model.LanguageInfo),
		}
		for _, m := range markets {
			// roughly one market in four is not sold
			if rnd.Intn(4) == 0 {
				continue
			}
			p.MarketInfo[m] = model.MarketInfo{
				Price:        float64(500+rnd.Intn(50000)) / 100, // 5.00-504.99
				Availability: rnd.Intn(300),
			}
			for _, c := range cultures[m] {
				p.LanguageInfo[c] = model.LanguageInfo{
					Title:    fmt.Sprintf("Title %s %d", c, pid),
					SubTitle: fmt.Sprintf("sub title %s %d", c, pid),
				}
			}
		}
		if err := enc.Encode(&p); err != nil {
			return fmt.Errorf("encode product %d: %w", i+1, err)
		}
	}
	return nil
}
