// Package kernels provides the OpenCL sources of the small-matrix kernels.
package kernels

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	CommonFile    = "clsmm_common.cl"
	MultiplyFile  = "clsmm_dnt_largeDB.cl"
	TransposeFile = "clsmm_transpose.cl"
)

// Entry points defined by the sources.
const (
	MultiplyEntry  = "clsmm_dnt_largeDB"
	TransposeEntry = "clsmm_transpose_d"
)

//go:embed *.cl
var files embed.FS

// Program returns the common header followed by the named kernel source.
// When dir is non-empty, files found there take precedence over the
// embedded copies.
func Program(dir, file string) (string, error) {
	common, err := read(dir, CommonFile)
	if err != nil {
		return "", err
	}
	body, err := read(dir, file)
	if err != nil {
		return "", err
	}
	return common + "\n" + body, nil
}

func read(dir, file string) (string, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, file))
		if err == nil {
			return string(data), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
	}
	data, err := fs.ReadFile(files, file)
	if err != nil {
		return "", fmt.Errorf("kernel source %s: %w", file, err)
	}
	return string(data), nil
}

// BuildOptions returns the compiler flags that specialize a kernel source.
func BuildOptions(defines ...Define) string {
	opts := "-D__ACC"
	for _, d := range defines {
		opts += fmt.Sprintf(" -D%s=%d", d.Name, d.Value)
	}
	return opts
}

// Define is a -D macro passed to the OpenCL compiler.
type Define struct {
	Name  string
	Value int
}
