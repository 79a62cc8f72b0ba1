package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/perry-go/perry/internal/cli/config"
	"github.com/perry-go/perry/internal/cli/ui"
	"github.com/perry-go/perry/internal/transport/memory"
)

// NewModelsCommand creates the models command
func NewModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the configured models",
		Long: `List every model declared in perry.yaml with the transport and service
behind it, its associations and its middleware stack.`,
		Args: cobra.NoArgs,
		RunE: runModels,
	}
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	defer closeEnvironment(env)

	out := cmd.OutOrStdout()
	if len(cfg.Models) == 0 {
		fmt.Fprint(out, ui.Warning("no models configured", noColorFlag))
		return nil
	}

	table := ui.NewTable(out, []string{"MODEL", "TRANSPORT", "SERVICE", "KEY", "ASSOCIATIONS", "STACK"}, &ui.TableOptions{NoColor: noColorFlag})
	for _, name := range cfg.ModelNames() {
		mc, _ := cfg.Model(name)
		m, _ := env.Registry.Get(name)

		transport := mc.Adapter.Type
		if transport == "" {
			transport = memory.TypeName
		}

		var assocs []string
		for _, a := range m.Associations() {
			assocs = append(assocs, fmt.Sprintf("%s %s", a.Kind(), a.Name()))
		}

		table.AddRow(name, transport, mc.Adapter.Service, m.PrimaryKey(), strings.Join(assocs, ", "), stack(mc))
	}
	table.Render()
	return nil
}

// stack describes the pipeline from the outermost processor down to the
// innermost middleware
func stack(mc config.ModelConfig) string {
	var names []string
	for _, s := range mc.Processors {
		names = append(names, s.Name)
	}
	for _, s := range mc.Middlewares {
		names = append(names, s.Name)
	}
	return strings.Join(names, " > ")
}
