package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Brownie44l1/stereodepth/internal/config"
	"github.com/Brownie44l1/stereodepth/internal/handlers"
	"github.com/Brownie44l1/stereodepth/internal/model"
	"github.com/Brownie44l1/stereodepth/internal/runner"
	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:     "stereodepth",
		Usage:    "Run a stereo disparity network over left/right image pairs",
		Commands: []*cli.Command{runCommand(), serveCommand(), inspectCommand()},
	}
}

func runCommand() *cli.Command {
	cfg := config.DefaultConfig()
	flags := config.Flags(&cfg)
	return &cli.Command{
		Name:  "run",
		Usage: "Predict disparity for every image pair and save the results",
		Description: `Pairs come from the --left-imgs/--right-imgs globs, or from --manifest-file when
--manifest is set. Results are written to <output-directory>/<folder>/<group>/, where group is
the name of the directory holding the left image: a jet-colored PNG named after the left image
and, with --save-numpy, the raw disparity as <left stem>.npy.`,
		Flags:  flags,
		Before: config.Before(flags),
		Action: func(ctx *cli.Context) (err error) {
			if err := config.Apply(ctx, &cfg); err != nil {
				return err
			}

			predictor, err := model.Load(ctx.Context, cfg.ModelOptions())
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, predictor.Close())
			}()

			stats, err := runner.New(cfg, predictor).Run(ctx.Context)
			if err != nil {
				return err
			}
			log.Printf("Processed %d of %d pairs", stats.Processed, stats.Pairs)
			return nil
		},
	}
}

func serveCommand() *cli.Command {
	cfg := config.DefaultConfig()
	flags := config.Flags(&cfg)
	var port string
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve single-pair predictions over HTTP",
		Before: config.Before(flags),
		Flags: append(flags, &cli.StringFlag{
			Name:        "port",
			Usage:       "port to listen on",
			EnvVars:     []string{"PORT"},
			Value:       "8080",
			Destination: &port,
		}),
		Action: func(ctx *cli.Context) (err error) {
			if err := config.Apply(ctx, &cfg); err != nil {
				return err
			}

			log.Printf("Loading model from: %s", cfg.Checkpoint)
			predictor, err := model.Load(ctx.Context, cfg.ModelOptions())
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, predictor.Close())
			}()

			srv := &http.Server{
				Addr:              ":" + port,
				Handler:           handlers.NewHandler(predictor, cfg).Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				<-ctx.Context.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Printf("Shutdown error: %v", err)
				}
			}()

			log.Printf("Server starting on port %s", port)
			log.Println("Endpoints:")
			log.Println("  GET /health - Health check")
			log.Println("  POST /predict - Disparity map from a left/right upload (?format=json for a summary)")
			log.Printf("Upload test: curl -X POST -F left=@im0.png -F right=@im1.png http://localhost:%s/predict -o disp.png", port)

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		},
	}
}

func inspectCommand() *cli.Command {
	opts := model.Options{}
	return &cli.Command{
		Name:  "inspect",
		Usage: "Print the inputs and outputs of an exported checkpoint and its metadata",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:        "restore-ckpt",
				Usage:       "ONNX export of the stereo network",
				Value:       config.DefaultConfig().Checkpoint,
				Destination: &opts.CheckpointPath,
			},
			&cli.PathFlag{
				Name:        "metadata",
				Usage:       "checkpoint metadata JSON (default: <restore-ckpt>.json)",
				Destination: &opts.MetadataPath,
			},
			&cli.PathFlag{
				Name:        "onnxruntime-library",
				Usage:       "path to the onnxruntime shared library",
				EnvVars:     []string{"ONNXRUNTIME_SHARED_LIBRARY_PATH"},
				Destination: &opts.LibraryPath,
			},
		},
		Action: func(ctx *cli.Context) error {
			w := ctx.App.Writer

			inputs, outputs, err := model.Describe(opts.CheckpointPath, opts.LibraryPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\n", opts.CheckpointPath)
			printInfo(w, "inputs", inputs)
			printInfo(w, "outputs", outputs)

			meta, err := model.ReadMetadata(opts.MetadataFile())
			if err != nil {
				return err
			}
			arch := meta.Architecture
			fmt.Fprintf(w, "metadata %s\n", opts.MetadataFile())
			fmt.Fprintf(w, "  hidden_dims=%v corr_implementation=%s corr_levels=%d corr_radius=%d\n",
				arch.HiddenDims, arch.CorrImplementation, arch.CorrLevels, arch.CorrRadius)
			fmt.Fprintf(w, "  n_downsample=%d n_gru_layers=%d shared_backbone=%t slow_fast_gru=%t mixed_precision=%t\n",
				arch.NDownsample, arch.NGRULayers, arch.SharedBackbone, arch.SlowFastGRU, arch.MixedPrecision)
			fmt.Fprintf(w, "  input_names=%s output_names=%s\n",
				strings.Join(meta.InputNames, ","), strings.Join(meta.OutputNames, ","))
			if meta.ItersInput != "" {
				fmt.Fprintf(w, "  iters_input=%s\n", meta.ItersInput)
			} else if meta.Iters > 0 {
				fmt.Fprintf(w, "  iters=%d (fixed)\n", meta.Iters)
			}
			return nil
		},
	}
}

func printInfo(w io.Writer, label string, infos []model.IOInfo) {
	fmt.Fprintf(w, "%s:\n", label)
	for _, info := range infos {
		fmt.Fprintf(w, "  %-12s %-10s %v\n", info.Name, info.DataType, info.Dimensions)
	}
}

func main() {
	log.SetFlags(log.Ldate | log.Ltime)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp().RunContext(ctx, os.Args)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stereodepth: %v\n", err)
		os.Exit(1)
	}
}
