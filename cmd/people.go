package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/facegate/facegate/internal/config"
)

var peopleCmd = &cobra.Command{
	Use:   "people",
	Short: "List enrolled people",
	RunE:  runPeople,
}

func init() {
	rootCmd.AddCommand(peopleCmd)
}

func runPeople(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	// Listing never embeds, so no embedder is wired.
	store, err := openStore(cfg, nil)
	if err != nil {
		return err
	}

	people := store.People()
	if len(people) == 0 {
		fmt.Println("No people enrolled")
		return nil
	}

	for _, p := range people {
		fmt.Printf("%-30s %d embedding(s)\n", p.Name, p.EmbeddingCount)
	}
	fmt.Printf("Total: %d\n", len(people))
	return nil
}
