package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// defaultLibraryName is the ONNX Runtime shared library name for the host OS.
func defaultLibraryName() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}

// resolveLibraryPath returns the library to load. An explicit path must
// exist; otherwise lib/<name> next to the working directory is preferred and
// the bare name is left to the dynamic loader's search path.
func resolveLibraryPath(configured string) (string, error) {
	if configured != "" {
		abs, err := filepath.Abs(configured)
		if err != nil {
			return "", errors.Wrap(err, "resolve ONNX Runtime library path")
		}
		if _, err := os.Stat(abs); err != nil {
			return "", errors.Wrapf(err, "ONNX Runtime library not found: %s", abs)
		}
		return abs, nil
	}

	local := filepath.Join("lib", defaultLibraryName())
	if _, err := os.Stat(local); err == nil {
		return filepath.Abs(local)
	}
	return defaultLibraryName(), nil
}

// initRuntime loads the shared library and initializes the ONNX Runtime
// environment. The returned function tears it down.
func initRuntime(configured string) (func(), error) {
	libPath, err := resolveLibraryPath(configured)
	if err != nil {
		return nil, err
	}

	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, errors.Wrapf(err, "initialize ONNX Runtime from %s", libPath)
	}
	return func() { ort.DestroyEnvironment() }, nil
}
