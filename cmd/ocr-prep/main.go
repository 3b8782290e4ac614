package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	ocrprep "github.com/menta2k/ocr-prep"
	"github.com/menta2k/ocr-prep/internal/config"
	"github.com/menta2k/ocr-prep/internal/utils"
	"github.com/menta2k/ocr-prep/pkg/orientation"
	"github.com/menta2k/ocr-prep/pkg/processing"
	"github.com/menta2k/ocr-prep/pkg/recognition"
	"github.com/menta2k/ocr-prep/pkg/recognition/tesseract"
	"github.com/menta2k/ocr-prep/pkg/types"
)

// edits holds the manual adjustments applied after orientation correction
type edits struct {
	rotate     int
	contrast   int
	brightness int
	grayscale  int
	invert     bool
	flipH      bool
	flipV      bool
	zoom       float64
	panX, panY float64
}

func main() {
	var in, configPath, saveConfig string
	var verbose bool
	var ed edits

	// overrides, applied only when set on the command line
	var outDir, orientBackend, orientURL, model, ocrBackend, ocrURL, langs string
	var minConf float64
	var timeoutMS int
	var debug, noOrient bool

	flag.StringVar(&in, "in", "", "input image path, URL or directory (jpg/png/webp)")
	flag.StringVar(&configPath, "config", "", "config file (default ~/.config/ocr-prep/config.json if present)")
	flag.StringVar(&saveConfig, "save-config", "", "write the effective config to this path and exit")
	flag.BoolVar(&verbose, "v", false, "verbose logging")

	flag.StringVar(&outDir, "out", "", "output directory")
	flag.StringVar(&orientBackend, "orient", "", "orientation backend: none|exif|service|ollama|llamacpp|chain")
	flag.StringVar(&orientURL, "orient-url", "", "orientation server URL (empty = backend default)")
	flag.StringVar(&model, "model", "", "vision model name for ollama/llamacpp orientation")
	flag.Float64Var(&minConf, "min-confidence", 0, "lowest confidence applied automatically (0..1)")
	flag.IntVar(&timeoutMS, "orient-timeout", 0, "orientation timeout in milliseconds")
	flag.BoolVar(&noOrient, "no-orient", false, "skip orientation detection")
	flag.StringVar(&ocrBackend, "ocr", "", "recognition backend: none|paddle|tesseract")
	flag.StringVar(&ocrURL, "ocr-url", "", "recognition server URL")
	flag.StringVar(&langs, "lang", "", "tesseract languages, comma separated")
	flag.BoolVar(&debug, "debug", false, "write a block overlay next to the export")

	flag.IntVar(&ed.rotate, "rotate", 0, "extra clockwise rotation in degrees, applied after correction")
	flag.IntVar(&ed.contrast, "contrast", types.NeutralTone, "contrast percent (50..200)")
	flag.IntVar(&ed.brightness, "brightness", types.NeutralTone, "brightness percent (50..200)")
	flag.IntVar(&ed.grayscale, "grayscale", 0, "grayscale percent (0..100)")
	flag.BoolVar(&ed.invert, "invert", false, "invert colors")
	flag.BoolVar(&ed.flipH, "fliph", false, "mirror horizontally")
	flag.BoolVar(&ed.flipV, "flipv", false, "mirror vertically")
	flag.Float64Var(&ed.zoom, "zoom", 1.0, "crop to the frame at this zoom (1..5); 1 keeps the whole image")
	flag.Float64Var(&ed.panX, "panx", 0, "horizontal pan in frame pixels when cropping")
	flag.Float64Var(&ed.panY, "pany", 0, "vertical pan in frame pixels when cropping")

	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Output.OutputDir = outDir
		case "orient":
			cfg.Orientation.Backend = orientBackend
		case "orient-url":
			cfg.Orientation.URL = orientURL
		case "model":
			cfg.Orientation.Model = model
		case "min-confidence":
			cfg.Orientation.MinConfidence = minConf
		case "orient-timeout":
			cfg.Orientation.TimeoutMS = timeoutMS
		case "no-orient":
			cfg.Orientation.Enabled = !noOrient
		case "ocr":
			cfg.Recognition.Backend = ocrBackend
		case "ocr-url":
			cfg.Recognition.URL = ocrURL
		case "lang":
			cfg.Recognition.Languages = strings.Split(langs, ",")
		case "debug":
			cfg.Output.DebugOverlay = debug
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if saveConfig != "" {
		if err := cfg.SaveToFile(saveConfig); err != nil {
			log.Fatal(err)
		}
		return
	}

	if in == "" {
		log.Fatalf("usage: %s -in input.jpg|URL|dir [-orient chain|exif|service|ollama|llamacpp|none] [-ocr paddle|tesseract|none] [-out outdir] [-rotate 90] [-contrast 140] [-grayscale 100] [-zoom 1.5]", filepath.Base(os.Args[0]))
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	inputs := []string{in}
	if !utils.IsURL(in) && utils.DirExists(in) {
		inputs, err = utils.ListImageFiles(in)
		if err != nil {
			log.Fatal(err)
		}
		logger.Info("batch", slog.String("dir", in), slog.Int("files", len(inputs)))
	}

	failed := 0
	for _, input := range inputs {
		if ctx.Err() != nil {
			break
		}
		// one workbench per input, so state never leaks between images
		wb, err := newWorkbench(cfg, logger)
		if err != nil {
			log.Fatal(err)
		}
		if err := process(ctx, wb, cfg, ed, input, logger); err != nil {
			logger.Error("processing failed", slog.String("input", input), slog.Any("error", err))
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	if def := config.GetConfigPath(); fileExists(def) {
		return config.LoadFromFile(def)
	}
	return config.Default(), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func newWorkbench(cfg *config.Config, logger *slog.Logger) (*ocrprep.Workbench, error) {
	opts := ocrprep.Options{
		Frame:              cfg.Viewport.Frame(),
		ZoomStep:           cfg.Viewport.ZoomStep,
		OrientationTimeout: cfg.Orientation.Timeout(),
		MinConfidence:      cfg.Orientation.MinConfidence,
		Logger:             logger,
	}

	if cfg.Orientation.Enabled {
		d, err := orientation.NewDetector(cfg.Orientation.Backend, cfg.Orientation.URL, cfg.Orientation.Model)
		if err != nil {
			return nil, fmt.Errorf("orientation: %w", err)
		}
		opts.Detector = d
	}

	switch cfg.Recognition.Backend {
	case config.RecognitionPaddle:
		opts.Recognizer = recognition.NewClient(cfg.Recognition.URL)
	case config.RecognitionTesseract:
		opts.Recognizer = tesseract.New(cfg.Recognition.Languages...)
	}

	return ocrprep.New(opts), nil
}

func process(ctx context.Context, wb *ocrprep.Workbench, cfg *config.Config, ed edits, input string, logger *slog.Logger) error {
	res, err := wb.OpenFile(ctx, input)
	if err != nil {
		return err
	}
	logger.Info("orientation",
		slog.String("input", input),
		slog.String("method", res.Method),
		slog.Int("angle", res.Angle),
		slog.Float64("confidence", res.Confidence))

	ctl := wb.Controller()
	f := ctl.Filters()
	f.Rotation += ed.rotate
	f.Contrast = ed.contrast
	f.Brightness = ed.brightness
	f.Grayscale = ed.grayscale
	f.Invert = ed.invert
	f.FlipHorizontal = f.FlipHorizontal != ed.flipH
	f.FlipVertical = ed.flipV
	f = ctl.SetFilters(f)
	logger.Debug("filters", slog.Any("state", f))

	if ed.zoom > types.MinZoom {
		view := ctl.SetZoom(ed.zoom)
		if ed.panX != 0 || ed.panY != 0 {
			// drag from the frame centre, exactly as a pointer would
			c := ctl.State().Frame.Center()
			if ctl.PointerDown(c) {
				ctl.PointerMove(c.Add(types.Point{X: ed.panX, Y: ed.panY}))
				ctl.PointerUp()
			}
			view = ctl.View()
		}
		crop, err := ctl.CommitCrop(ctx)
		if err != nil {
			return err
		}
		logger.Info("crop committed",
			slog.Float64("zoom", view.Zoom),
			slog.Int("width", crop.Width),
			slog.Int("height", crop.Height))
	}

	proc := processing.NewProcessor()
	out := cfg.Output
	if cfg.Recognition.Backend == config.RecognitionNone {
		payload, err := wb.Export(ctx)
		if err != nil {
			return err
		}
		return writePayload(proc, payload, input, out, logger)
	}

	result, payload, err := wb.Recognize(ctx)
	if err != nil {
		if !payload.Empty() {
			_ = writePayload(proc, payload, input, out, logger)
		}
		return err
	}
	if err := writePayload(proc, payload, input, out, logger); err != nil {
		return err
	}

	txtPath := utils.GenerateOutputFilename(input, out.OutputDir, out.Prefix, out.Suffix, "txt")
	if err := os.WriteFile(txtPath, []byte(result.Text+"\n"), 0o644); err != nil {
		return err
	}
	js, _ := json.MarshalIndent(result, "", "  ")
	jsonPath := utils.GenerateOutputFilename(input, out.OutputDir, out.Prefix, out.Suffix, "json")
	if err := os.WriteFile(jsonPath, js, 0o644); err != nil {
		return err
	}
	logger.Info("wrote recognition output", slog.String("text", txtPath), slog.Int("blocks", len(result.Blocks)))

	if out.DebugOverlay {
		img, err := proc.DecodePayload(payload)
		if err != nil {
			return err
		}
		dbgPath := utils.GenerateOutputFilename(input, out.OutputDir, out.Prefix, out.Suffix+"_debug", processing.FormatPNG)
		if err := proc.SaveImage(recognition.DrawOverlay(img, result), dbgPath, processing.FormatPNG, 0, false); err != nil {
			logger.Warn("debug overlay save failed", slog.Any("error", err))
		} else {
			logger.Info("wrote debug overlay", slog.String("path", dbgPath))
		}
	}
	return nil
}

func writePayload(proc *processing.Processor, payload types.Payload, input string, out config.OutputConfig, logger *slog.Logger) error {
	path := utils.GenerateOutputFilename(input, out.OutputDir, out.Prefix, out.Suffix, "jpg")
	if err := proc.SavePayload(payload, path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	logger.Info("wrote export",
		slog.String("path", path),
		slog.Int("width", payload.Width),
		slog.Int("height", payload.Height),
		slog.String("size", utils.FormatFileSize(int64(len(payload.Data)))))
	return nil
}
