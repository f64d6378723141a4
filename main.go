package main

import (
	"fmt"
	"os"

	"CamDetLoop/config"
	"CamDetLoop/logger"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	flagConfig        = "config"
	flagModel         = "model"
	flagCameraID      = "cameraId"
	flagFrameWidth    = "frameWidth"
	flagFrameHeight   = "frameHeight"
	flagNumThreads    = "numThreads"
	flagEnableEdgeTPU = "enableEdgeTPU"
	flagDev           = "dev"
)

// newApp parses flags over the config file and hands the result to run.
func newApp(run func(c *cli.Context, cfg *config.Config) error) *cli.App {
	return &cli.App{
		Name:  "camdet",
		Usage: "run object detection on camera frames that changed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "load configuration from `FILE`",
			},
			&cli.StringFlag{
				Name:  flagModel,
				Usage: "path of the object detection model",
			},
			&cli.StringFlag{
				Name:  flagCameraID,
				Usage: "camera device index or stream URL",
			},
			&cli.IntFlag{
				Name:  flagFrameWidth,
				Usage: "width of the main camera stream",
			},
			&cli.IntFlag{
				Name:  flagFrameHeight,
				Usage: "height of the main camera stream",
			},
			&cli.IntFlag{
				Name:  flagNumThreads,
				Usage: "number of CPU threads for the detector",
			},
			&cli.BoolFlag{
				Name:  flagEnableEdgeTPU,
				Usage: "run the model on an EdgeTPU",
			},
			&cli.BoolFlag{
				Name:  flagDev,
				Usage: "human readable debug logging",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String(flagConfig))
			if err != nil {
				return err
			}
			applyFlags(c, cfg)
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(c, cfg)
		},
	}
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet(flagModel) {
		cfg.Model = c.String(flagModel)
	}
	if c.IsSet(flagCameraID) {
		cfg.Camera.ID = c.String(flagCameraID)
	}
	if c.IsSet(flagFrameWidth) {
		cfg.Camera.MainWidth = c.Int(flagFrameWidth)
	}
	if c.IsSet(flagFrameHeight) {
		cfg.Camera.MainHeight = c.Int(flagFrameHeight)
	}
	if c.IsSet(flagNumThreads) {
		cfg.Detector.NumThreads = c.Int(flagNumThreads)
	}
	if c.IsSet(flagEnableEdgeTPU) {
		cfg.Detector.EnableEdgeTPU = c.Bool(flagEnableEdgeTPU)
	}
	if c.IsSet(flagDev) {
		cfg.Log.Development = c.Bool(flagDev)
	}
}

func main() {
	if err := newApp(run).Run(os.Args); err != nil {
		logger.Log().Error("camdet stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
