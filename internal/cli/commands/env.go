package commands

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/perry-go/perry/internal/cli/config"
	"github.com/perry-go/perry/internal/cli/ui"
	"github.com/perry-go/perry/internal/orm/schema"
)

// configPath is the --config flag, or the nearest perry.yaml above the
// working directory. An empty result makes config.Load use defaults.
func configPath() string {
	if configFlag != "" {
		return configFlag
	}
	path, err := config.FindConfigFile()
	if err != nil {
		return ""
	}
	return path
}

// loadEnvironment loads the configuration and builds its models. Failures
// are reported on stderr before being returned.
func loadEnvironment(cmd *cobra.Command) (*config.Config, *config.Environment, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err, noColorFlag))
		return nil, nil, err
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err, noColorFlag))
		return nil, nil, err
	}

	env, err := config.Build(cfg, logger)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ConfigError(err, noColorFlag))
		logger.Sync()
		return nil, nil, err
	}
	return cfg, env, nil
}

// closeEnvironment releases the environment and flushes its logger
func closeEnvironment(env *config.Environment) {
	if err := env.Close(); err != nil {
		env.Logger.Warn("failed to close environment", zap.Error(err))
	}
	env.Logger.Sync()
}

func lookupModel(cmd *cobra.Command, env *config.Environment, name string) (*schema.Model, error) {
	m, ok := env.Registry.Get(name)
	if !ok {
		fmt.Fprint(cmd.ErrOrStderr(), ui.ModelNotFoundError(name, env.Registry.List(), noColorFlag))
		return nil, fmt.Errorf("unknown model %s", name)
	}
	return m, nil
}

// parseValue reads a command line value: integers, floats, booleans and
// null are typed, a comma separated value is a list and anything else is
// a string
func parseValue(s string) interface{} {
	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		list := make([]interface{}, len(parts))
		for i, p := range parts {
			list[i] = parseValue(strings.TrimSpace(p))
		}
		return list
	}
	if s == "null" {
		return nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// parseAssignments turns key=value arguments into a fragment map
func parseAssignments(args []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", arg)
		}
		out[key] = parseValue(value)
	}
	return out, nil
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
