package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kon-rad/wuhistory/internal/app"
	"github.com/kon-rad/wuhistory/internal/history"
	"github.com/kon-rad/wuhistory/internal/queries"
)

var (
	queryWhere []string
	querySave  string
	queryList  bool
)

var queryCmd = &cobra.Command{
	Use:   "query [saved-query]",
	Short: "List history records matching a query",
	Long: `Query prints the records matching a saved query or the --where
predicates given on the command line. Predicates are ANDed together.

Each predicate is "Column Operator Value", for example:
  wuhistory query --where "ProjectID Equal 2669" --where "Name Like Rig%"
  wuhistory query --where "Assigned GreaterThan 2012-06-01" --save june
  wuhistory query june --bonus FrameTime
  wuhistory query --list`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringArrayVar(&queryWhere, "where", nil, `predicate "Column Operator Value" (repeatable)`)
	queryCmd.Flags().StringVar(&querySave, "save", "", "save the --where predicates under this name")
	queryCmd.Flags().BoolVar(&queryList, "list", false, "list saved query names")
}

func runQuery(cmd *cobra.Command, args []string) error {
	saved, err := queries.Open(cfg.QueriesPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if queryList {
		for _, name := range saved.Names() {
			fmt.Fprintln(out, name)
		}
		return nil
	}

	q, err := resolveQuery(saved, args, queryWhere)
	if err != nil {
		return err
	}
	if querySave != "" {
		q.Name = querySave
		if err := saved.Upsert(q); err != nil {
			return err
		}
		if err := saved.Save(); err != nil {
			return err
		}
	}

	repo, err := app.OpenRepository(cmd.Context(), cfg, logger, cfg.AutoUpgrade)
	if err != nil {
		return err
	}
	defer repo.Close()

	records, err := repo.Fetch(cmd.Context(), q, cfg.Bonus())
	if err != nil {
		return err
	}
	if flagJSON {
		output, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal records: %w", err)
		}
		fmt.Fprintln(out, string(output))
		return nil
	}
	printRecordTable(out, records)
	return nil
}

// resolveQuery picks the saved query named in args, or builds one from the
// --where predicates. With neither, every record is selected.
func resolveQuery(saved *queries.Store, args, where []string) (history.Query, error) {
	if len(args) == 1 {
		if len(where) > 0 {
			return history.Query{}, fmt.Errorf("use either a saved query or --where, not both")
		}
		q, ok := saved.Get(args[0])
		if !ok {
			return history.Query{}, fmt.Errorf("unknown query %q (have: %s)", args[0], strings.Join(saved.Names(), ", "))
		}
		return q, nil
	}
	q := history.Query{Name: "command line"}
	if len(where) == 0 {
		return history.SelectAll, nil
	}
	for _, w := range where {
		p, err := parsePredicate(w)
		if err != nil {
			return history.Query{}, err
		}
		q = q.Where(p.Column, p.Operator, p.Value)
	}
	if _, err := history.Translate(q); err != nil {
		return history.Query{}, err
	}
	return q, nil
}

func parsePredicate(s string) (history.Predicate, error) {
	fields := strings.SplitN(strings.TrimSpace(s), " ", 3)
	if len(fields) != 3 {
		return history.Predicate{}, fmt.Errorf("invalid predicate %q (expected \"Column Operator Value\")", s)
	}
	col, err := history.ParseColumn(fields[0])
	if err != nil {
		return history.Predicate{}, err
	}
	op, err := history.ParseOperator(fields[1])
	if err != nil {
		return history.Predicate{}, err
	}
	return history.Predicate{Column: col, Operator: op, Value: strings.TrimSpace(fields[2])}, nil
}

func printRecordTable(out io.Writer, records []history.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No records found.")
		return
	}

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROJECT\tNAME\tRESULT\tASSIGNED\tFINISHED\tFRAME\tCREDIT\tPPD")
	for _, r := range records {
		fmt.Fprintf(w, "%d\tP%d (R%d, C%d, G%d)\t%s\t%s\t%s\t%s\t%s\t%.2f\t%.2f\n",
			r.ID,
			r.ProjectID, r.ProjectRun, r.ProjectClone, r.ProjectGen,
			r.Name,
			r.Result,
			history.FormatTime(r.Assigned),
			history.FormatTime(r.Finished),
			r.FrameTime,
			r.Production.Credit,
			r.Production.PPD,
		)
	}
	w.Flush()

	for _, line := range strings.Split(strings.TrimRight(sb.String(), "\n"), "\n") {
		fmt.Fprintln(out, strings.TrimRight(line, " "))
	}
	fmt.Fprintf(out, "Total: %d record(s)\n", len(records))
}
