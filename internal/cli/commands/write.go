package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/perry-go/perry/internal/cli/config"
	"github.com/perry-go/perry/internal/cli/ui"
	"github.com/perry-go/perry/internal/orm/record"
	"github.com/perry-go/perry/internal/orm/schema"
)

var writeAsJSON bool

// NewCreateCommand creates the create command
func NewCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create MODEL FIELD=VALUE...",
		Short: "Create a record",
		Long: `Create a MODEL record from FIELD=VALUE pairs. The model's validations
run first; a record they or the service reject is reported with its errors.`,
		Example:           `  perry create crm.Person name=Ada age=36 team_id=1`,
		Args:              cobra.MinimumNArgs(2),
		ValidArgsFunction: completeModels,
		RunE:              runCreate,
	}
	cmd.Flags().BoolVar(&writeAsJSON, "json", false, "Print the saved record as JSON")
	return cmd
}

// NewUpdateCommand creates the update command
func NewUpdateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "update MODEL ID FIELD=VALUE...",
		Short:             "Update a record",
		Example:           `  perry update crm.Person 2 age=46`,
		Args:              cobra.MinimumNArgs(3),
		ValidArgsFunction: completeModels,
		RunE:              runUpdate,
	}
	cmd.Flags().BoolVar(&writeAsJSON, "json", false, "Print the saved record as JSON")
	return cmd
}

// NewDestroyCommand creates the destroy command
func NewDestroyCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "destroy MODEL ID",
		Short:             "Delete a record",
		Example:           `  perry destroy crm.Person 2`,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeModels,
		RunE:              runDestroy,
	}
}

func runCreate(cmd *cobra.Command, args []string) error {
	attrs, err := parseAssignments(args[1:])
	if err != nil {
		return err
	}
	return withModel(cmd, args[0], func(ctx context.Context, env *config.Environment, m *schema.Model) error {
		rec := m.New(attrs)
		saved, err := env.Operations(m.Name()).Save(ctx, rec)
		if err != nil {
			return err
		}
		return reportWrite(cmd, m, rec, saved, "Created")
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	attrs, err := parseAssignments(args[2:])
	if err != nil {
		return err
	}
	return withModel(cmd, args[0], func(ctx context.Context, env *config.Environment, m *schema.Model) error {
		rec, err := m.Find(ctx, parseValue(args[1]))
		if err != nil {
			return err
		}
		saved, err := env.Operations(m.Name()).UpdateAttributes(ctx, rec, attrs)
		if err != nil {
			return err
		}
		return reportWrite(cmd, m, rec, saved, "Updated")
	})
}

func runDestroy(cmd *cobra.Command, args []string) error {
	return withModel(cmd, args[0], func(ctx context.Context, env *config.Environment, m *schema.Model) error {
		rec, err := m.Find(ctx, parseValue(args[1]))
		if err != nil {
			return err
		}
		destroyed, err := env.Operations(m.Name()).Destroy(ctx, rec)
		if err != nil {
			return err
		}
		if !destroyed {
			fmt.Fprint(cmd.ErrOrStderr(), ui.RecordNotSavedError(m.Name(), rec.Errors(), noColorFlag))
			return fmt.Errorf("%s %s was not destroyed", m.Name(), ui.FormatValue(rec.ID()))
		}
		ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Destroyed %s %s", m.Name(), ui.FormatValue(rec.ID())), noColorFlag)
		return nil
	})
}

// withModel builds the environment, resolves the model and runs fn
func withModel(cmd *cobra.Command, name string, fn func(context.Context, *config.Environment, *schema.Model) error) error {
	_, env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer closeEnvironment(env)

	m, err := lookupModel(cmd, env, name)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, env, m)
}

func reportWrite(cmd *cobra.Command, m *schema.Model, rec *record.Record, saved bool, verb string) error {
	if !saved {
		fmt.Fprint(cmd.ErrOrStderr(), ui.RecordNotSavedError(m.Name(), rec.Errors(), noColorFlag))
		return fmt.Errorf("%s was not saved", m.Name())
	}

	out := cmd.OutOrStdout()
	if writeAsJSON {
		return writeJSON(out, rec.Attributes())
	}
	ui.WriteSuccess(out, fmt.Sprintf("%s %s %s", verb, m.Name(), ui.FormatValue(rec.ID())), noColorFlag)
	printAttributes(out, m, rec.Attributes())
	return nil
}

func printAttributes(out io.Writer, m *schema.Model, attrs map[string]interface{}) {
	table := ui.NewKeyValueTable(out, noColorFlag)
	for _, field := range ui.Columns(m.Fields(), []map[string]interface{}{attrs}) {
		table.AddRow(field, ui.FormatValue(attrs[field]))
	}
	table.Render()
}
