package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maxbates/molecular-design-toolkit/pkg/api"
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Inspect jobs on a running orchestrator",
	Long: `Query the status API of an orchestrator started with 'mdtk serve'.
Without arguments, lists retained jobs; with a job id, shows its detail.

The endpoint comes from --url or MDTK_URL.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		base := viper.GetString("url")
		client := &http.Client{Timeout: 10 * time.Second}

		if len(args) == 0 {
			var list api.JobList
			if err := getJSON(client, base+"/jobs", &list); err != nil {
				return err
			}
			if len(list.Jobs) == 0 {
				cmd.Println("no jobs")
				return nil
			}
			cmd.Printf("%-36s %-10s %-10s %-8s %s\n", "ID", "METHOD", "STATE", "RETRIES", "CREATED")
			for _, j := range list.Jobs {
				cmd.Printf("%-36s %-10s %-10s %-8d %s\n",
					j.ID, j.Method, j.State, j.Retries, j.CreatedAt.Format(time.RFC3339))
			}
			return nil
		}

		var job api.JobStatus
		if err := getJSON(client, base+"/jobs/"+args[0], &job); err != nil {
			return err
		}
		b, err := json.MarshalIndent(job, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(b))
		return nil
	},
}

func getJSON(client *http.Client, url string, out any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("api returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("api returned status %d", resp.StatusCode)
	}
	return json.Unmarshal(body, out)
}

func init() {
	statusCmd.SilenceUsage = true
}
