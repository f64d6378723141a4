//go:build !edgetpu

package tflite

import (
	"fmt"

	"github.com/mattn/go-tflite"
	"go.uber.org/zap"
)

func addAccelerator(_ *tflite.InterpreterOptions, _ *zap.Logger) error {
	return fmt.Errorf("EdgeTPU support not compiled in, rebuild with -tags edgetpu")
}
