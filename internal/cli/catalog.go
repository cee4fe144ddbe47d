package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/matzehuels/tessera/pkg/catalog"
	"github.com/matzehuels/tessera/pkg/tiles"
)

// catalogCommand creates the catalog command, which lists the candidates
// of a processed tile directory.
func (c *CLI) catalogCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog <processedImageDir>",
		Short: "List the tiles of a processed directory with their colors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tiles.Open(args[0], loggerFromContext(cmd.Context()))
			if err != nil {
				return err
			}
			cat, err := store.Catalog()
			if err != nil {
				return err
			}
			if asJSON {
				return writeCatalogJSON(os.Stdout, store, cat)
			}
			printCatalog(store, cat)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

// catalogJSON is the JSON form of a tile directory listing.
type catalogJSON struct {
	Dir        string              `json:"dir"`
	CellSize   int                 `json:"cell_size"`
	Legacy     bool                `json:"legacy,omitempty"`
	Candidates []catalog.Candidate `json:"candidates"`
}

func writeCatalogJSON(w io.Writer, store *tiles.Store, cat *catalog.Catalog) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(catalogJSON{
		Dir:        store.Dir(),
		CellSize:   store.CellSize(),
		Legacy:     store.Legacy(),
		Candidates: cat.Candidates(),
	})
}

func printCatalog(store *tiles.Store, cat *catalog.Catalog) {
	fmt.Println(StyleTitle.Render(store.Dir()))
	printKeyValue("Tiles", fmt.Sprintf("%d", cat.Len()))
	printKeyValue("Cell size", fmt.Sprintf("%dpx", store.CellSize()))
	if store.Legacy() {
		printWarning("No manifest; colors were read from file names")
	}
	fmt.Println(catalogTable(cat.Candidates()).Render())
}

func catalogTable(cands []catalog.Candidate) *table.Table {
	rows := make([][]string, len(cands))
	for i, cand := range cands {
		rows[i] = []string{cand.ID, cand.Color.Key(), cand.Source}
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorMuted).Bold(true)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorFaint)).
		Headers("ID", "Color", "Source").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return headerStyle
			case col == 0:
				return StyleHighlight
			case col == 2:
				return StyleDim
			}
			return StyleValue
		})
}
