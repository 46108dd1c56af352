// Package runner drives batch inference: it discovers left/right pairs, runs
// the predictor on each one in order and writes the results.
package runner

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/Brownie44l1/stereodepth/internal/config"
	"github.com/Brownie44l1/stereodepth/internal/discovery"
	"github.com/Brownie44l1/stereodepth/internal/imageio"
	"github.com/Brownie44l1/stereodepth/internal/model"
	"github.com/Brownie44l1/stereodepth/internal/output"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v2"
)

// Stats summarizes a run.
type Stats struct {
	Pairs     int
	Processed int
}

// Runner processes every discovered pair sequentially with one predictor.
type Runner struct {
	cfg       config.Config
	predictor model.Predictor
	layout    *output.Layout

	// Progress receives the progress bar. Nil disables it; New sets it to
	// stderr when stderr is a terminal.
	Progress io.Writer
}

// New returns a runner for cfg. The predictor is borrowed, not closed.
func New(cfg config.Config, predictor model.Predictor) *Runner {
	r := &Runner{
		cfg:       cfg,
		predictor: predictor,
		layout:    output.NewLayout(cfg.OutputDirectory, cfg.Folder),
	}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		r.Progress = os.Stderr
	}
	return r
}

// Discover lists the pairs to process, from the manifest when enabled and
// from the two globs otherwise.
func (r *Runner) Discover() ([]discovery.Pair, error) {
	var left, right []string
	var err error
	if r.cfg.Manifest {
		left, right, err = discovery.ReadManifest(r.cfg.ManifestFile, r.cfg.ManifestRoot)
	} else {
		left, right, err = discovery.Glob(r.cfg.LeftImgs, r.cfg.RightImgs)
	}
	if err != nil {
		return nil, err
	}

	pairs, err := discovery.Zip(left, right, !r.cfg.AllowCountMismatch)
	if err != nil {
		return nil, err
	}
	if len(left) != len(right) {
		log.Printf("warning: %d left and %d right images, only the first %d pairs are used",
			len(left), len(right), len(pairs))
	}
	return pairs, nil
}

// Run processes every pair in order and stops at the first error. Results
// written for earlier pairs are kept.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	if err := r.layout.EnsureRoot(ctx); err != nil {
		return Stats{}, err
	}
	pairs, err := r.Discover()
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{Pairs: len(pairs)}
	log.Printf("Found %d images. Saving files to %s", len(pairs), r.layout.Dir(""))
	if len(pairs) == 0 {
		log.Printf("warning: no image pairs found, nothing to do")
		return stats, nil
	}

	var bar *progressbar.ProgressBar
	if r.Progress != nil {
		bar = progressbar.NewOptions(len(pairs),
			progressbar.OptionSetWriter(r.Progress),
			progressbar.OptionSetDescription(r.cfg.Folder),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	for i, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := r.process(ctx, pair); err != nil {
			return stats, fmt.Errorf("pair %d (%s, %s): %w", i, pair.Left, pair.Right, err)
		}
		stats.Processed++

		if bar != nil {
			_ = bar.Add(1)
		} else if r.cfg.Verbose {
			log.Printf("[%d/%d] %s", i+1, len(pairs), pair.Left)
		}
	}
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(r.Progress)
	}
	return stats, nil
}

func (r *Runner) process(ctx context.Context, pair discovery.Pair) error {
	left, err := imageio.Open(pair.Left)
	if err != nil {
		return err
	}
	right, err := imageio.Open(pair.Right)
	if err != nil {
		return err
	}
	r.debugf("loaded %s and %s (%dx%d)", pair.Left, pair.Right, left.Bounds().Dx(), left.Bounds().Dy())

	pred, err := Infer(ctx, r.predictor, left, right, InferOptionsFrom(r.cfg))
	if err != nil {
		return err
	}
	r.debugf("predicted %dx%d field", pred.Width, pred.Height)

	if _, err := r.layout.EnsureDir(ctx, output.Group(pair.Left)); err != nil {
		return err
	}

	if r.cfg.SaveNumpy {
		path := r.layout.ArrayPath(pair.Left)
		if err := r.layout.WriteArray(ctx, path, pred.Data, pred.Height, pred.Width); err != nil {
			return err
		}
		r.debugf("wrote %s", path)
	}

	img, err := pred.Render(r.cfg.VMin, r.cfg.VMax)
	if err != nil {
		return err
	}
	path := r.layout.ImagePath(pair.Left)
	if err := r.layout.WriteImage(ctx, path, img); err != nil {
		return err
	}
	r.debugf("wrote %s", path)
	return nil
}

func (r *Runner) debugf(format string, args ...any) {
	if r.cfg.Verbose {
		log.Printf(format, args...)
	}
}
