package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perry-go/perry/internal/cli/ui"
	"github.com/perry-go/perry/internal/orm/query"
	"github.com/perry-go/perry/internal/orm/record"
	"github.com/perry-go/perry/internal/orm/relationships"
	"github.com/perry-go/perry/internal/orm/schema"
)

var (
	queryWhere      []string
	queryConditions []string
	queryScopes     []string
	queryOrder      []string
	querySelect     []string
	queryIncludes   []string
	queryLimit      int
	queryOffset     int
	queryFresh      bool
	queryJSON       bool
	queryPayload    bool
)

// NewQueryCommand creates the query command
func NewQueryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query MODEL",
		Short: "Run a query against a model's service",
		Long: `Build a query for MODEL, dispatch it through the model's read adapter
and print the records.

Where values are typed: integers, floats, true, false and null are parsed
and comma separated values become lists (an IN match).`,
		Example: `  # Everyone on team 1, oldest first
  perry query crm.Person --where team_id=1 --order "age desc"

  # A dynamic condition and eager loaded associations
  perry query crm.Person --condition age_gt=30 --includes team,pets

  # Print the payload the adapter would receive without sending it
  perry query crm.Person --where name=Ada --limit 1 --payload`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeModels,
		RunE:              runQuery,
	}

	cmd.Flags().StringArrayVarP(&queryWhere, "where", "w", nil, "Where fragment as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&queryConditions, "condition", nil, "Dynamic condition as field_condition=value, e.g. age_gt=5 (repeatable)")
	cmd.Flags().StringArrayVar(&queryScopes, "scope", nil, "Named scope to apply (repeatable)")
	cmd.Flags().StringSliceVar(&queryOrder, "order", nil, "Order terms, e.g. \"age desc\"")
	cmd.Flags().StringSliceVar(&querySelect, "select", nil, "Fields to select")
	cmd.Flags().StringSliceVarP(&queryIncludes, "includes", "i", nil, "Associations to eager load, dotted for nesting")
	cmd.Flags().IntVarP(&queryLimit, "limit", "l", -1, "Maximum number of records")
	cmd.Flags().IntVar(&queryOffset, "offset", -1, "Number of records to skip")
	cmd.Flags().BoolVar(&queryFresh, "fresh", false, "Bypass cached results")
	cmd.Flags().BoolVar(&queryJSON, "json", false, "Print records as JSON")
	cmd.Flags().BoolVar(&queryPayload, "payload", false, "Print the query payload instead of running it")

	return cmd
}

func runQuery(cmd *cobra.Command, args []string) error {
	_, env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer closeEnvironment(env)

	m, err := lookupModel(cmd, env, args[0])
	if err != nil {
		return err
	}

	rel, err := buildRelation(m)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	if queryPayload {
		payload, err := rel.ToHash(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, payload.Map())
	}

	records, err := rel.All(ctx)
	if err != nil {
		return err
	}
	return printRecords(ctx, out, m, records, rel.IncludesValue(), queryJSON)
}

// buildRelation applies the query flags to the model's default scope
func buildRelation(m *schema.Model) (*query.Relation, error) {
	rel := m.Scoped()

	for _, name := range queryScopes {
		scoped, err := rel.Scope(name)
		if err != nil {
			return nil, err
		}
		rel = scoped
	}

	if len(queryWhere) > 0 {
		where, err := parseAssignments(queryWhere)
		if err != nil {
			return nil, err
		}
		rel = rel.Where(where)
	}

	conditions, err := parseAssignments(queryConditions)
	if err != nil {
		return nil, err
	}
	for _, method := range sortedKeys(conditions) {
		rel, err = rel.Condition(method, conditions[method])
		if err != nil {
			return nil, err
		}
	}

	if len(queryOrder) > 0 {
		rel = rel.Order(queryOrder...)
	}
	if len(querySelect) > 0 {
		rel = rel.Select(querySelect...)
	}
	if len(queryIncludes) > 0 {
		rel = rel.Includes(queryIncludes)
	}
	if queryLimit >= 0 {
		rel = rel.Limit(queryLimit)
	}
	if queryOffset >= 0 {
		rel = rel.Offset(queryOffset)
	}
	if queryFresh {
		rel = rel.Fresh()
	}
	return rel, nil
}

func printRecords(ctx context.Context, out io.Writer, m *schema.Model, records []*record.Record, includes *query.Includes, asJSON bool) error {
	if asJSON {
		docs := make([]map[string]interface{}, 0, len(records))
		for _, rec := range records {
			doc, err := recordDocument(ctx, rec, includes)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return writeJSON(out, docs)
	}

	if len(records) == 0 {
		fmt.Fprint(out, ui.Warning(fmt.Sprintf("no %s records matched", m.Name()), noColorFlag))
		return nil
	}

	rows := make([]map[string]interface{}, len(records))
	for i, rec := range records {
		rows[i] = rec.Attributes()
	}
	columns := ui.Columns(m.Fields(), rows)

	var names []string
	if includes != nil {
		names = includes.Names()
	}
	for i, rec := range records {
		for _, name := range names {
			ids, err := associatedIDs(ctx, rec, name)
			if err != nil {
				return err
			}
			rows[i][name] = ids
		}
	}
	ui.RenderRecords(out, append(columns, names...), rows, noColorFlag)
	return nil
}

// recordDocument is rec's attributes with the included associations nested
// under their names
func recordDocument(ctx context.Context, rec *record.Record, includes *query.Includes) (map[string]interface{}, error) {
	doc := rec.Attributes()
	if includes == nil {
		return doc, nil
	}

	for _, name := range includes.Names() {
		related, err := associated(ctx, rec, name)
		if err != nil {
			return nil, err
		}
		nested := includes.Child(name)

		switch v := related.(type) {
		case nil:
			doc[name] = nil
		case *record.Record:
			d, err := recordDocument(ctx, v, nested)
			if err != nil {
				return nil, err
			}
			doc[name] = d
		case []*record.Record:
			list := make([]map[string]interface{}, 0, len(v))
			for _, r := range v {
				d, err := recordDocument(ctx, r, nested)
				if err != nil {
					return nil, err
				}
				list = append(list, d)
			}
			doc[name] = list
		}
	}
	return doc, nil
}

// associated loads an association as nil, a record or a list of records
func associated(ctx context.Context, rec *record.Record, name string) (interface{}, error) {
	v, err := relationships.Load(ctx, rec, name)
	if err != nil || v == nil {
		return nil, err
	}
	switch val := v.(type) {
	case *record.Record:
		return val, nil
	case *query.Relation:
		return val.All(ctx)
	}
	return nil, fmt.Errorf("unexpected %T for association %s", v, name)
}

// associatedIDs summarizes an association for a table cell
func associatedIDs(ctx context.Context, rec *record.Record, name string) (string, error) {
	related, err := associated(ctx, rec, name)
	if err != nil {
		return "", err
	}
	switch v := related.(type) {
	case *record.Record:
		return ui.FormatValue(v.ID()), nil
	case []*record.Record:
		ids := make([]string, len(v))
		for i, r := range v {
			ids[i] = ui.FormatValue(r.ID())
		}
		return "[" + strings.Join(ids, " ") + "]", nil
	}
	return "", nil
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
