//go:build edgetpu

package tflite

import (
	"fmt"

	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"go.uber.org/zap"
)

func addAccelerator(options *tflite.InterpreterOptions, log *zap.Logger) error {
	devices, err := edgetpu.DeviceList()
	if err != nil {
		return fmt.Errorf("could not list EdgeTPU devices: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("no EdgeTPU detected")
	}
	log.Info("using EdgeTPU", zap.String("Path", devices[0].Path), zap.Int("Devices", len(devices)))
	options.AddDelegate(edgetpu.New(devices[0]))
	return nil
}
