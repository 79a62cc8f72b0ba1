package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perry-go/perry/internal/cli/ui"
	"github.com/perry-go/perry/internal/orm/record"
)

var (
	findIncludes []string
	findJSON     bool
)

// NewFindCommand creates the find command
func NewFindCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find MODEL ID [ID...]",
		Short: "Fetch records by primary key",
		Long: `Fetch one or more MODEL records by primary key. Finding a single id
that does not exist is an error; with several ids every one must exist.`,
		Example: `  perry find crm.Person 1
  perry find crm.Person 1 2 3 --includes team`,
		Args:              cobra.MinimumNArgs(2),
		ValidArgsFunction: completeModels,
		RunE:              runFind,
	}

	cmd.Flags().StringSliceVarP(&findIncludes, "includes", "i", nil, "Associations to eager load, dotted for nesting")
	cmd.Flags().BoolVar(&findJSON, "json", false, "Print records as JSON")

	return cmd
}

func runFind(cmd *cobra.Command, args []string) error {
	_, env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer closeEnvironment(env)

	m, err := lookupModel(cmd, env, args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rel := m.Scoped()
	if len(findIncludes) > 0 {
		rel = rel.Includes(findIncludes)
	}

	ids := make([]interface{}, len(args)-1)
	for i, arg := range args[1:] {
		ids[i] = parseValue(arg)
	}

	var records []*record.Record
	if len(ids) == 1 {
		rec, err := rel.Find(ctx, ids[0])
		if err != nil {
			return err
		}
		records = []*record.Record{rec}
	} else {
		records, err = rel.FindMany(ctx, ids...)
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if findJSON || len(records) != 1 {
		return printRecords(ctx, out, m, records, rel.IncludesValue(), findJSON)
	}

	doc, err := recordDocument(ctx, records[0], rel.IncludesValue())
	if err != nil {
		return err
	}
	ui.Header(out, fmt.Sprintf("%s %s", m.Name(), ui.FormatValue(records[0].ID())), noColorFlag)
	printAttributes(out, m, doc)
	return nil
}
