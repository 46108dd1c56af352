package config

import (
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

// FileFlag names the flag pointing at a YAML file with defaults for any other
// flag. Keys are flag names, e.g. "valid-iters: 7". Relative paths in the file
// are resolved against the file's directory.
const FileFlag = "config"

// Flags binds the run options to cfg. Each flag starts from cfg's current
// value, so cfg should hold DefaultConfig() before the flags are parsed.
// Hidden dims and the color range are copied by Apply.
func Flags(cfg *Config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  FileFlag,
			Usage: "YAML file with values for any of the other flags",
		},
		altsrc.NewPathFlag(&cli.PathFlag{
			Name:        "restore-ckpt",
			Usage:       "ONNX export of the stereo network",
			Value:       cfg.Checkpoint,
			Destination: &cfg.Checkpoint,
		}),
		altsrc.NewPathFlag(&cli.PathFlag{
			Name:        "metadata",
			Usage:       "checkpoint metadata JSON (default: <restore-ckpt>.json)",
			Destination: &cfg.MetadataPath,
		}),
		altsrc.NewPathFlag(&cli.PathFlag{
			Name:        "output-directory",
			Usage:       "directory to save output",
			Value:       cfg.OutputDirectory,
			Destination: &cfg.OutputDirectory,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "folder",
			Usage:       "run folder created under the output directory",
			Value:       cfg.Folder,
			Destination: &cfg.Folder,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "left-imgs",
			Aliases:     []string{"l"},
			Usage:       "path glob of all left frames",
			Value:       cfg.LeftImgs,
			Destination: &cfg.LeftImgs,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "right-imgs",
			Aliases:     []string{"r"},
			Usage:       "path glob of all right frames",
			Value:       cfg.RightImgs,
			Destination: &cfg.RightImgs,
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:        "manifest",
			Usage:       "read pairs from a split file instead of globs",
			Value:       cfg.Manifest,
			Destination: &cfg.Manifest,
		}),
		altsrc.NewPathFlag(&cli.PathFlag{
			Name:        "manifest-file",
			Usage:       "split file with one \"<View> <index>\" entry per line",
			Value:       cfg.ManifestFile,
			Destination: &cfg.ManifestFile,
		}),
		altsrc.NewPathFlag(&cli.PathFlag{
			Name:        "manifest-root",
			Usage:       "directory holding the Left/ and Right/ renders named in the split file",
			Value:       cfg.ManifestRoot,
			Destination: &cfg.ManifestRoot,
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:        "save-numpy",
			Usage:       "save output as numpy arrays",
			Value:       cfg.SaveNumpy,
			Destination: &cfg.SaveNumpy,
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:        "mixed-precision",
			Usage:       "use mixed precision",
			Value:       cfg.Architecture.MixedPrecision,
			Destination: &cfg.Architecture.MixedPrecision,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:        "valid-iters",
			Usage:       "number of flow-field updates during forward pass",
			Value:       cfg.ValidIters,
			Destination: &cfg.ValidIters,
		}),
		altsrc.NewIntSliceFlag(&cli.IntSliceFlag{
			Name:  "hidden-dims",
			Usage: "hidden state and context dimensions",
			Value: cli.NewIntSlice(cfg.Architecture.HiddenDims...),
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "corr-implementation",
			Usage:       "correlation volume implementation: reg, alt, reg_cuda or alt_cuda",
			Value:       string(cfg.Architecture.CorrImplementation),
			Destination: (*string)(&cfg.Architecture.CorrImplementation),
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:        "shared-backbone",
			Usage:       "use a single backbone for the context and feature encoders",
			Value:       cfg.Architecture.SharedBackbone,
			Destination: &cfg.Architecture.SharedBackbone,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:        "corr-levels",
			Usage:       "number of levels in the correlation pyramid",
			Value:       cfg.Architecture.CorrLevels,
			Destination: &cfg.Architecture.CorrLevels,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:        "corr-radius",
			Usage:       "width of the correlation pyramid",
			Value:       cfg.Architecture.CorrRadius,
			Destination: &cfg.Architecture.CorrRadius,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:        "n-downsample",
			Usage:       "resolution of the disparity field (1/2^K)",
			Value:       cfg.Architecture.NDownsample,
			Destination: &cfg.Architecture.NDownsample,
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:        "slow-fast-gru",
			Usage:       "iterate the low-res GRUs more frequently",
			Value:       cfg.Architecture.SlowFastGRU,
			Destination: &cfg.Architecture.SlowFastGRU,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:        "n-gru-layers",
			Usage:       "number of hidden GRU levels",
			Value:       cfg.Architecture.NGRULayers,
			Destination: &cfg.Architecture.NGRULayers,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:        "divis-by",
			Usage:       "pad inputs so height and width are multiples of this",
			Value:       cfg.DivisBy,
			Destination: &cfg.DivisBy,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "pad-mode",
			Usage:       "where padding goes: sintel or kitti",
			Value:       string(cfg.PadMode),
			Destination: (*string)(&cfg.PadMode),
		}),
		altsrc.NewFloat64Flag(&cli.Float64Flag{
			Name:        "scale",
			Usage:       "downscale inputs by this factor before inference (0 < scale <= 1)",
			Value:       cfg.Scale,
			Destination: &cfg.Scale,
		}),
		altsrc.NewFloat64Flag(&cli.Float64Flag{
			Name:  "vmin",
			Usage: "fixed lower bound of the color range (default: per-image minimum)",
		}),
		altsrc.NewFloat64Flag(&cli.Float64Flag{
			Name:  "vmax",
			Usage: "fixed upper bound of the color range (default: per-image maximum)",
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:        "allow-count-mismatch",
			Usage:       "pair up to the shorter image list instead of failing",
			Value:       cfg.AllowCountMismatch,
			Destination: &cfg.AllowCountMismatch,
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "backend",
			Usage:       "inference engine: ort or go",
			Value:       string(cfg.Backend),
			Destination: (*string)(&cfg.Backend),
		}),
		altsrc.NewStringFlag(&cli.StringFlag{
			Name:        "device",
			Usage:       "execution device for the ort backend: cpu or cuda",
			Value:       string(cfg.Device),
			Destination: (*string)(&cfg.Device),
		}),
		altsrc.NewPathFlag(&cli.PathFlag{
			Name:        "onnxruntime-library",
			Usage:       "path to the onnxruntime shared library",
			EnvVars:     []string{"ONNXRUNTIME_SHARED_LIBRARY_PATH"},
			Destination: &cfg.LibraryPath,
		}),
		altsrc.NewIntFlag(&cli.IntFlag{
			Name:        "threads",
			Usage:       "intra-op threads for the ort backend (0: runtime default)",
			Value:       cfg.Threads,
			Destination: &cfg.Threads,
		}),
		altsrc.NewBoolFlag(&cli.BoolFlag{
			Name:        "verbose",
			Usage:       "log every stage of every pair",
			Value:       cfg.Verbose,
			Destination: &cfg.Verbose,
		}),
	}
}

// Before loads the file named by --config into any flag not set on the
// command line.
func Before(flags []cli.Flag) cli.BeforeFunc {
	return altsrc.InitInputSourceWithContext(flags, altsrc.NewYamlSourceFromFlagFunc(FileFlag))
}

// Apply copies the values that have no flag destination into cfg and
// validates the result.
func Apply(ctx *cli.Context, cfg *Config) error {
	if dims := ctx.IntSlice("hidden-dims"); len(dims) > 0 {
		cfg.Architecture.HiddenDims = append([]int(nil), dims...)
	}
	if ctx.IsSet("vmin") {
		v := ctx.Float64("vmin")
		cfg.VMin = &v
	}
	if ctx.IsSet("vmax") {
		v := ctx.Float64("vmax")
		cfg.VMax = &v
	}
	return cfg.Validate()
}
