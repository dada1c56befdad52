package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/voxroom/internal/tts"
)

func voicesCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "voices [query]",
		Short: "List or search the voice catalog",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			voices := tts.SearchVoices(query, limit)

			if jsonOutput {
				data, _ := json.MarshalIndent(voices, "", "  ")
				fmt.Println(string(data))
				return
			}
			if len(voices) == 0 {
				fmt.Println("No voices match.")
				return
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ID\tNAME\tPROVIDER\n")
			for _, v := range voices {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, voiceLabel(v.Name), v.Provider)
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of voices (0 = all)")
	return cmd
}

// voiceNameWidth caps the NAME column in terminal cells.
const voiceNameWidth = 36

// voiceLabel truncates by display width so wide scripts keep the table aligned.
func voiceLabel(name string) string {
	return runewidth.Truncate(name, voiceNameWidth, "...")
}
