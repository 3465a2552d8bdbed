package cli

import (
	"fmt"

	"agrirec/internal/domain"
	"github.com/spf13/cobra"
)

var (
	recCategory string
	recProduct  string
	recPrice    string
	recQuantity string
	recLat      float64
	recLon      float64
	recAddress  string
	recTopK     int
	recExplain  bool
)

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Rank listings for a query",
	Long: `Rank stored listings by semantic similarity, price, quantity and distance.

Examples:
  agrirec recommend --category "Rau củ" --product "cà chua" --price "10.000 đ/kg"
  agrirec recommend --product "xoài" --lat 10.0 --lon 106.0 --top-k 5 --json
  agrirec recommend --product "lúa" --explain`,
	RunE: runRecommend,
}

func init() {
	rootCmd.AddCommand(recommendCmd)
	recommendCmd.Flags().StringVar(&recCategory, "category", "", "category name")
	recommendCmd.Flags().StringVarP(&recProduct, "product", "p", "", "product name")
	recommendCmd.Flags().StringVar(&recPrice, "price", "", `price text, e.g. "14.952 đ/kg"`)
	recommendCmd.Flags().StringVar(&recQuantity, "quantity", "", `quantity text, e.g. "4.779 kg"`)
	recommendCmd.Flags().Float64Var(&recLat, "lat", 0, "latitude")
	recommendCmd.Flags().Float64Var(&recLon, "lon", 0, "longitude")
	recommendCmd.Flags().StringVar(&recAddress, "address", "", "address (the last two comma-separated segments form the province)")
	recommendCmd.Flags().IntVarP(&recTopK, "top-k", "k", 0, "number of results (default from config)")
	recommendCmd.Flags().BoolVar(&recExplain, "explain", false, "show the individual similarity terms")
}

func runRecommend(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	p := domain.QueryPayload{
		CategoryName: recCategory,
		ProductName:  recProduct,
		Price:        recPrice,
		Quantity:     recQuantity,
		Address:      recAddress,
	}
	if cmd.Flags().Changed("lat") {
		p.Latitude = &recLat
	}
	if cmd.Flags().Changed("lon") {
		p.Longitude = &recLon
	}
	q := domain.NewQuery(p)
	for _, problem := range q.Problems {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %v\n", problem)
	}

	uc := a.recommendUseCase()

	if recExplain {
		ranked, err := uc.Explain(cmd.Context(), q, recTopK)
		if err != nil {
			return fmt.Errorf("recommend failed: %w", err)
		}
		if jsonOutput {
			return printJSON(ranked)
		}
		if len(ranked) == 0 {
			fmt.Println("No results found.")
			return nil
		}
		fmt.Printf("Found %d results for: %s\n\n", len(ranked), q.Text())
		for i, r := range ranked {
			fmt.Printf("[%d] %s (score: %.4f)\n", i+1, r.ID, r.Score)
			fmt.Printf("    semantic=%.4f price=%.4f location=%.4f quantity=%.4f\n",
				r.Components.Semantic, r.Components.Price, r.Components.Location, r.Components.Quantity)
		}
		return nil
	}

	results, err := uc.Recommend(cmd.Context(), q, recTopK)
	if err != nil {
		return fmt.Errorf("recommend failed: %w", err)
	}
	if jsonOutput {
		return printJSON(map[string]any{"top_results": results})
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	fmt.Printf("Found %d results for: %s\n\n", len(results), q.Text())
	for i, r := range results {
		fmt.Printf("[%d] %s (score: %.4f)\n", i+1, r.ID, r.Score)
	}
	return nil
}
