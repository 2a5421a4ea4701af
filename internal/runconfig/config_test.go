package runconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequiresTargetAndSeedDir(t *testing.T) {
	cfg := Default()
	require.Error(t, cfg.Validate())

	cfg.Target = "/bin/true"
	require.Error(t, cfg.Validate())

	cfg.SeedDir = "seeds"
	require.Error(t, cfg.Validate()) // no backend chosen yet

	cfg.Backend = BackendForkserver
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Target = "/bin/true"
	cfg.SeedDir = "seeds"
	cfg.Backend = "ptrace"
	require.Error(t, cfg.Validate())
}

func TestLoadDataStripsCommentsAndRejectsUnknownFields(t *testing.T) {
	data := []byte(`{
		# this is a comment
		"target": "/bin/target",
		"backend": "forkserver",
		"seed_dir": "seeds",
		"timeout": 1000000000
	}`)
	var cfg RunConfig
	require.NoError(t, LoadData(data, &cfg))
	assert.Equal(t, "/bin/target", cfg.Target)
	assert.Equal(t, time.Second, cfg.Timeout)

	bad := []byte(`{"target": "x", "unknown_field": 1}`)
	var cfg2 RunConfig
	assert.Error(t, LoadData(bad, &cfg2))
}

func TestMergeFlagsWinOverFile(t *testing.T) {
	fileCfg := RunConfig{
		Target:    "/file/target",
		SeedDir:   "file-seeds",
		OutputDir: "output",
		Verbose:   1,
	}
	flagCfg := RunConfig{
		Target:  "/flag/target",
		Verbose: 3,
	}
	merged := fileCfg.Merge(flagCfg)
	assert.Equal(t, "/flag/target", merged.Target)
	assert.Equal(t, "file-seeds", merged.SeedDir)
	assert.Equal(t, 3, merged.Verbose)
}
