package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xeonx/timeago"
	sigsyaml "sigs.k8s.io/yaml"

	"github.com/slipway-ci/slipway/pkg/match"
	"github.com/slipway-ci/slipway/pkg/store"
)

var runsLimit int
var runsFilter string
var runsQuiet bool

func newRunsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect pipeline run history",
	}
	cmd.AddCommand(newRunsListCommand(), newRunsShowCommand())
	return cmd
}

func newRunsListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List recent runs",
		RunE:    runsList,
		Args:    cobra.NoArgs,
		Aliases: []string{"ls"},
	}
	cmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "How many runs to list")
	cmd.Flags().StringVar(&runsFilter, "filter", "", `Query document runs must match, e.g. '{status: failed}'`)
	cmd.Flags().BoolVarP(&runsQuiet, "quiet", "q", false, "Quiet output, only display run IDs")
	return cmd
}

func runsList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), runsLimit)
	if err != nil {
		return err
	}
	runs, err = filterRuns(runs, runsFilter)
	if err != nil {
		return err
	}

	if runsQuiet {
		for _, run := range runs {
			fmt.Println(run.ID)
		}
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREPO\tTAG\tSTATUS\tSTEP\tSTARTED")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(run.ID), run.Repo, run.Tag, run.Status, run.Step, timeago.English.Format(run.StartedAt))
	}
	return w.Flush()
}

// filterRuns keeps the runs matching the --filter query document, given
// as YAML or JSON.
func filterRuns(runs []*store.Run, filter string) ([]*store.Run, error) {
	if filter == "" {
		return runs, nil
	}
	var doc map[string]interface{}
	if err := sigsyaml.Unmarshal([]byte(filter), &doc); err != nil {
		return nil, fmt.Errorf("invalid --filter: %w", err)
	}
	query := match.NewQuery(doc)
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid --filter: %w", err)
	}

	var kept []*store.Run
	for _, run := range runs {
		matched, err := query.Match(run.Document())
		if err != nil {
			return nil, err
		}
		if matched {
			kept = append(kept, run)
		}
	}
	return kept, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func newRunsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run and its artifacts",
		RunE:  runsShow,
		Args:  cobra.ExactArgs(1),
	}
}

func runsShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	artifacts, err := st.RunArtifacts(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID:\t"+run.ID)
	fmt.Fprintln(w, "Repo:\t"+run.Repo)
	fmt.Fprintln(w, "Tag:\t"+run.Tag)
	if run.Revision != "" {
		fmt.Fprintln(w, "Revision:\t"+run.Revision)
	}
	if run.Fingerprint != "" {
		fmt.Fprintln(w, "Fingerprint:\t"+run.Fingerprint)
	}
	fmt.Fprintln(w, "Status:\t"+run.Status)
	fmt.Fprintln(w, "Step:\t"+run.Step)
	fmt.Fprintln(w, "Started:\t"+timeago.English.Format(run.StartedAt))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintln(w, "Finished:\t"+timeago.English.Format(run.FinishedAt))
	}
	if run.Error != "" {
		fmt.Fprintln(w, "Error:\t"+run.Error)
	}
	w.Flush()

	fmt.Println()
	fmt.Println("Artifacts:")
	if len(artifacts) == 0 {
		fmt.Println("  [No artifacts]")
		return nil
	}
	aw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, artifact := range artifacts {
		uploaded := ""
		if artifact.Uploaded {
			uploaded = "uploaded"
		}
		fmt.Fprintf(aw, "* %s\t(%s)\t%s\n", artifact.Filename, artifact.Kind, uploaded)
	}
	return aw.Flush()
}
