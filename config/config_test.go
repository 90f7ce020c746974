package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests loading from defaults, files and the environment.
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	suite.tempDir = suite.T().TempDir()
	require.NoError(suite.T(), os.Chdir(suite.tempDir))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		_ = os.Chdir(suite.origDir)
	}
}

func (suite *ConfigTestSuite) writeConfig(content string) string {
	path := filepath.Join(suite.tempDir, "config.yaml")
	require.NoError(suite.T(), os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")

	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)
	assert.Equal(suite.T(), Default(), *cfg)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	path := suite.writeConfig(`
engine:
  budget: 4000
  max_rounds: 3
store:
  backend: sql
  dsn: "file:test.db"
  op_timeout: 2s
log:
  backend: zerolog
  level: debug
tools:
  fetch_timeout: 1m
  retrieval:
    exclude: ["vendor", ".*"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), 4000, cfg.Engine.Budget)
	assert.Equal(suite.T(), 3, cfg.Engine.MaxRounds)
	assert.Equal(suite.T(), 120, cfg.Engine.ExcerptLength)
	assert.Equal(suite.T(), "sql", cfg.Store.Backend)
	assert.Equal(suite.T(), "file:test.db", cfg.Store.DSN)
	assert.Equal(suite.T(), 2*time.Second, cfg.Store.OpTimeout)
	assert.Equal(suite.T(), "zerolog", cfg.Log.Backend)
	assert.Equal(suite.T(), "debug", cfg.Log.Level)
	assert.Equal(suite.T(), time.Minute, cfg.Tools.FetchTimeout)
	assert.Equal(suite.T(), []string{"vendor", ".*"}, cfg.Tools.Retrieval.Exclude)
	assert.Equal(suite.T(), 4, cfg.Tools.Retrieval.Workers)
}

func (suite *ConfigTestSuite) TestConfigFileInWorkingDirectory() {
	suite.writeConfig("engine:\n  budget: 123\n")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 123, cfg.Engine.Budget)
}

func (suite *ConfigTestSuite) TestEnvironmentOverrides() {
	suite.T().Setenv("TASKMESH_ENGINE_BUDGET", "250")
	suite.T().Setenv("TASKMESH_LOG_FORMAT", "text")
	suite.T().Setenv("TASKMESH_TOOLS_DRAFT_PROVIDER", "anthropic")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 250, cfg.Engine.Budget)
	assert.Equal(suite.T(), "text", cfg.Log.Format)
	assert.Equal(suite.T(), "anthropic", cfg.Tools.DraftProvider)
}

func (suite *ConfigTestSuite) TestInvalidValues() {
	for name, content := range map[string]string{
		"budget":   "engine:\n  budget: 0\n",
		"backend":  "store:\n  backend: redis\n",
		"dsn":      "store:\n  backend: sql\n  dsn: \"\"\n",
		"logger":   "log:\n  backend: logrus\n",
		"provider": "tools:\n  draft_provider: local\n",
	} {
		path := suite.writeConfig(content)
		_, err := LoadConfig(path)
		assert.Error(suite.T(), err, name)
	}
}

func (suite *ConfigTestSuite) TestMalformedFile() {
	path := suite.writeConfig("engine: [unclosed\n")

	_, err := LoadConfig(path)
	assert.Error(suite.T(), err)
}
