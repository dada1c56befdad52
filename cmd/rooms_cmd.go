package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/voxroom/internal/room"
	"github.com/nextlevelbuilder/voxroom/pkg/protocol"
)

var apiURL string

func roomsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "Inspect and drive live rooms through the HTTP API",
	}
	cmd.PersistentFlags().StringVar(&apiURL, "api", "", "API base URL (default http://<http.listen>)")
	cmd.AddCommand(roomsListCmd())
	cmd.AddCommand(roomsSpeakCmd())
	return cmd
}

func roomsListCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rooms with a live voice session",
		Run: func(cmd *cobra.Command, args []string) {
			var result struct {
				Rooms []room.SessionInfo `json:"rooms"`
			}
			if err := apiCall(http.MethodGet, "/v1/rooms", nil, &result); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			if jsonOutput {
				data, _ := json.MarshalIndent(result.Rooms, "", "  ")
				fmt.Println(string(data))
				return
			}
			if len(result.Rooms) == 0 {
				fmt.Println("No live rooms.")
				return
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "ROOM\tCHANNEL\tSTATE\tQUEUED\tPLAYED\tSKIPPED\tDROPPED\tIDLE\n")
			for _, r := range result.Rooms {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
					r.RoomID, r.Channel, r.Worker.State, r.Queue.Len,
					r.Worker.Played, r.Worker.Skipped, r.Queue.Dropped,
					time.Since(r.LastActivity).Round(time.Second))
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func roomsSpeakCmd() *cobra.Command {
	var voice string
	cmd := &cobra.Command{
		Use:   "speak <room> <text...>",
		Short: "Speak text in a room",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			req := protocol.SpeakRequest{
				RoomID:      args[0],
				Text:        strings.Join(args[1:], " "),
				Voice:       voice,
				SourceID:    "cli",
				DisplayName: "CLI",
			}
			var resp protocol.SpeakResponse
			if err := apiCall(http.MethodPost, "/v1/speak", req, &resp); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("Accepted %s in room %s\n", resp.ID, resp.RoomID)
		},
	}
	cmd.Flags().StringVar(&voice, "voice", "", "voice id (default: room's voice for the CLI speaker)")
	return cmd
}

// apiCall sends a JSON request to the local API and decodes the response
// into out. API errors come back as their message.
func apiCall(method, path string, body, out any) error {
	cfg := loadConfig()
	base := apiURL
	if base == "" {
		base = "http://" + cfg.HTTP.Listen
	}

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.HTTP.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.HTTP.Token)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("API unreachable (is `voxroom serve` running with http.enabled?): %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var eb protocol.ErrorBody
		if json.Unmarshal(data, &eb) == nil && eb.Error.Message != "" {
			return fmt.Errorf("%s: %s", eb.Error.Code, eb.Error.Message)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}
