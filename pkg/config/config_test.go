package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
model:
  base_url: https://llm.example.com/v1
  api_key: test-key
  name: gpt-test
classifier:
  instructions: classify the message
agents:
  information_gathering:
    instructions: help the client
`

func TestParse_MinimalWithDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 1024, cfg.Model.MaxOutputTokens)
	assert.Equal(t, 120*time.Second, cfg.Model.Timeout.Std())
	assert.Equal(t, "information_gathering", cfg.Classifier.FallbackStage)
	assert.Equal(t, 10, cfg.Agents["information_gathering"].MaxRounds)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "simple", cfg.Logging.Format)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret-from-env")
	t.Setenv("TEST_COMPANY", "12345")

	cfg, err := Parse([]byte(`
model:
  base_url: ${TEST_BASE_URL:-https://fallback.example.com}
  api_key: ${TEST_API_KEY}
  name: gpt-test
classifier:
  instructions: classify
agents:
  information_gathering:
    instructions: help
yclients:
  partner_token: pt
  user_token: ut
  company_id: $TEST_COMPANY
`))
	require.NoError(t, err)

	assert.Equal(t, "secret-from-env", cfg.Model.APIKey)
	assert.Equal(t, "https://fallback.example.com", cfg.Model.BaseURL)
	assert.Equal(t, "12345", cfg.YClients.CompanyID)
	assert.Equal(t, "Bearer pt, User ut", cfg.YClients.AuthHeader())
}

func TestParse_ValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing api key", `
model: {base_url: u, name: n}
classifier: {instructions: c}
agents: {information_gathering: {instructions: i}}`},
		{"unknown agent stage", `
model: {base_url: u, api_key: k, name: n}
classifier: {instructions: c}
agents: {smalltalk: {instructions: i}}`},
		{"agent without instructions", `
model: {base_url: u, api_key: k, name: n}
classifier: {instructions: c}
agents: {information_gathering: {}}`},
		{"fallback without agent", `
model: {base_url: u, api_key: k, name: n}
classifier: {instructions: c, fallback_stage: booking}
agents: {information_gathering: {instructions: i}}`},
		{"sqlite without path", `
model: {base_url: u, api_key: k, name: n}
classifier: {instructions: c}
agents: {information_gathering: {instructions: i}}
store: {driver: sqlite}`},
		{"unknown store driver", `
model: {base_url: u, api_key: k, name: n}
classifier: {instructions: c}
agents: {information_gathering: {instructions: i}}
store: {driver: redis}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_DurationsAndTools(t *testing.T) {
	cfg, err := Parse([]byte(`
model:
  base_url: u
  api_key: k
  name: n
  timeout: 45s
classifier:
  instructions: c
  temperature: 0
agents:
  booking:
    instructions: book things
    max_rounds: 5
    max_output_tokens: 512
    temperature: 0.7
    tools: [get_categories, create_booking, call_manager]
  information_gathering:
    instructions: i
retry:
  max_attempts: 5
  base_delay: 500ms
`))
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Model.Timeout.Std())
	assert.Equal(t, 5, cfg.Agents["booking"].MaxRounds)
	assert.Equal(t, 512, cfg.Agents["booking"].MaxOutputTokens)
	require.NotNil(t, cfg.Agents["booking"].Temperature)
	assert.Equal(t, 0.7, *cfg.Agents["booking"].Temperature)
	assert.Equal(t, []string{"get_categories", "create_booking", "call_manager"}, cfg.Agents["booking"].Tools)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay.Std())

	// Explicit zero is distinct from unset.
	require.NotNil(t, cfg.Classifier.Temperature)
	assert.Equal(t, 0.0, *cfg.Classifier.Temperature)
	assert.Nil(t, cfg.Agents["information_gathering"].Temperature)
}
