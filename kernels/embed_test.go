package kernels

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgram(t *testing.T) {
	t.Run("embedded multiply source", func(t *testing.T) {
		src, err := Program("", MultiplyFile)
		require.NoError(t, err)
		assert.Contains(t, src, "clsmm_atomic_add")
		assert.Contains(t, src, "__kernel void "+MultiplyEntry)
	})

	t.Run("embedded transpose source", func(t *testing.T) {
		src, err := Program("", TransposeFile)
		require.NoError(t, err)
		assert.Contains(t, src, "__kernel void "+TransposeEntry)
	})

	t.Run("override directory wins", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, TransposeFile), []byte("// custom"), 0o644))

		src, err := Program(dir, TransposeFile)
		require.NoError(t, err)
		assert.Contains(t, src, "// custom")
		// common header still comes from the embedded copy
		assert.Contains(t, src, "clsmm_atomic_add")
	})

	t.Run("unknown file", func(t *testing.T) {
		_, err := Program("", "missing.cl")
		assert.Error(t, err)
	})
}

func TestBuildOptions(t *testing.T) {
	assert.Equal(t, "-D__ACC", BuildOptions())
	assert.Equal(t, "-D__ACC -DSMM_M=23 -DSMM_N=5", BuildOptions(Define{"SMM_M", 23}, Define{"SMM_N", 5}))
}
