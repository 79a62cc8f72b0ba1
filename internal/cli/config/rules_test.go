package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/transport/memory"
)

const validatedConfig = `
logging:
  level: error
models:
  - name: crm.Contact
    fields: [id, name, email, age, status, site]
    adapter:
      service: config_test_contacts
    validations:
      - field: name
        presence: true
        min_length: 2
        max_length: 20
      - field: email
        format: email
      - field: age
        min: 0
        max: 130
      - field: status
        in: [lead, customer]
      - field: site
        format: url
        pattern: ^https://
`

func TestRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validatedConfig), 0644))
	cfg, err := Load(path)
	require.NoError(t, err)

	mc, ok := cfg.Model("crm.Contact")
	require.True(t, ok)
	require.Len(t, mc.Validations, 5)
	require.NotNil(t, mc.Validations[2].Min)
	assert.Equal(t, 130.0, *mc.Validations[2].Max)

	set, err := Rules(mc)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "email", "age", "status", "site"}, set.Fields())

	errs := set.Check(map[string]interface{}{
		"name": "Ada", "email": "ada@example.com", "age": 36, "status": "lead", "site": "https://ada.dev",
	})
	assert.False(t, errs.HasErrors(), errs.Error())

	errs = set.Check(map[string]interface{}{
		"name": "A", "email": "nope", "age": 200, "status": "churned", "site": "http://ada.dev",
	})
	assert.Len(t, errs.Fields, 5)
	assert.Equal(t, []string{"does not match required pattern"}, errs.Fields["site"])
}

func TestRules_None(t *testing.T) {
	set, err := Rules(ModelConfig{Name: "crm.Team"})
	require.NoError(t, err)
	assert.Nil(t, set)
}

func TestRules_BadPattern(t *testing.T) {
	_, err := Rules(ModelConfig{Name: "crm.Team", Validations: []ValidationConfig{{Field: "label", Pattern: "("}}})
	assert.Error(t, err)

	_, err = Build(&Config{Models: []ModelConfig{{
		Name:        "crm.Team",
		Fields:      []string{"id", "label"},
		Validations: []ValidationConfig{{Field: "label", Pattern: "("}},
	}}}, nil)
	assert.Error(t, err)
}

func TestEnvironment_Operations(t *testing.T) {
	store := memory.Default()
	store.Clear()
	store.Seed("config_test_contacts", adapter.Row{"id": 1, "name": "Ada", "status": "lead"})

	path := filepath.Join(t.TempDir(), "perry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validatedConfig), 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	env, err := Build(cfg, nil)
	require.NoError(t, err)
	defer env.Close()

	_, ok := env.Rules("crm.Contact")
	assert.True(t, ok)

	m, _ := env.Registry.Get("crm.Contact")
	ctx := context.Background()
	ops := env.Operations("crm.Contact")

	rec := m.New(map[string]interface{}{"name": "Grace", "status": "prospect"})
	saved, err := ops.Save(ctx, rec)
	require.NoError(t, err)
	assert.False(t, saved)
	assert.Contains(t, rec.Errors(), "status")
	assert.Equal(t, 0, store.CallCount(adapter.ModeWrite))

	require.NoError(t, rec.Set("status", "customer"))
	saved, err = ops.Save(ctx, rec)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Len(t, store.Rows("config_test_contacts"), 2)

	_, ok = env.Rules("crm.Unknown")
	assert.False(t, ok)
	assert.NotNil(t, env.Operations("crm.Unknown"))
}
