package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pspoerri/xcftiles/internal/applog"
	"github.com/pspoerri/xcftiles/internal/canvas"
	"github.com/pspoerri/xcftiles/internal/encode"
	"github.com/pspoerri/xcftiles/internal/i18n"
	"github.com/pspoerri/xcftiles/internal/tile"
	"github.com/pspoerri/xcftiles/internal/xcf"
	"golang.org/x/text/language"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

type config struct {
	enc     encode.Encoder
	maxSize int
	outDir  string
	verbose bool
	lang    language.Tag
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		format      string
		quality     int
		maxSize     int
		concurrency int
		outDir      string
		cacheMB     int
		verbose     bool
		showVersion bool
		cpuProfile  string
	)

	flag.StringVar(&format, "format", "png", "Output format: png, jpeg, webp, tiff")
	flag.IntVar(&quality, "quality", 85, "JPEG/WebP quality 1-100")
	flag.IntVar(&maxSize, "max-size", 0, "Scale the output to fit in NxN pixels (0 = full size)")
	flag.IntVar(&concurrency, "concurrency", runtime.NumCPU(), "Number of files converted in parallel")
	flag.StringVar(&outDir, "out", "", "Output directory (default: next to each input)")
	flag.IntVar(&cacheMB, "cache", 0, "Tile memory in MB before swapping to disk (0 = auto, -1 = never swap)")
	flag.BoolVar(&verbose, "verbose", false, "Verbose progress output")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.StringVar(&cpuProfile, "cpuprofile", "", "Write CPU profile to file")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: xcf2img [flags] <file.xcf...>\n\n")
		fmt.Fprintf(os.Stderr, "Flatten XCF files and export them as flat images.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("xcf2img %s (commit %s, built %s)\n", version, commit, buildDate)
		return 0
	}
	inputs := flag.Args()
	if len(inputs) == 0 {
		flag.Usage()
		return 1
	}
	if verbose {
		applog.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	concurrency = max(1, min(concurrency, len(inputs)))

	if cpuProfile != "" {
		f, err := os.Create(cpuProfile)
		if err != nil {
			log.Fatalf("Creating CPU profile: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("Starting CPU profile: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	enc, err := encode.NewEncoder(strings.ToLower(format), quality)
	if err != nil {
		log.Fatalf("Encoder: %v", err)
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			log.Fatalf("Creating output directory: %v", err)
		}
	}

	var (
		swap  *tile.Swap
		limit int64
	)
	if cacheMB >= 0 {
		limit = int64(cacheMB) << 20
		if cacheMB == 0 {
			limit = tile.ComputeCacheLimit(tile.DefaultCacheFraction)
		}
	}
	if limit > 0 {
		swap, err = tile.NewSwap(tile.SwapConfig{})
		if err != nil {
			log.Fatalf("Tile swap: %v", err)
		}
		defer swap.Close()
	}

	cfg := config{
		enc:     enc,
		maxSize: maxSize,
		outDir:  outDir,
		verbose: verbose,
		lang:    i18n.FromEnv(),
	}

	start := time.Now()
	jobs := make(chan string, concurrency*2)
	var (
		wg         sync.WaitGroup
		failed     atomic.Int64
		totalBytes atomic.Int64
	)
	bar := newProgressBar("Converting", int64(len(inputs)))

	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each worker owns its context and cache; images are never
			// shared between goroutines.
			var opts []canvas.ContextOption
			opts = append(opts, canvas.WithPrinter(i18n.Printer(cfg.lang)))
			if swap != nil {
				opts = append(opts, canvas.WithCache(tile.NewCache(limit/int64(concurrency), swap)))
			}
			ctx := canvas.NewContext(opts...)
			for path := range jobs {
				n, err := convert(ctx, cfg, path)
				bar.Increment()
				if err != nil {
					failed.Add(1)
					log.Print(err)
					continue
				}
				totalBytes.Add(n)
			}
		}()
	}
	for _, p := range inputs {
		jobs <- p
	}
	close(jobs)
	wg.Wait()
	bar.Finish()

	if verbose && swap != nil {
		log.Printf("Tile swap: %s", swap.Stats())
	}
	ok := int64(len(inputs)) - failed.Load()
	fmt.Printf("Done: %d of %d file(s), %s, %v\n",
		ok, len(inputs), humanSize(totalBytes.Load()), time.Since(start).Round(time.Millisecond))
	if failed.Load() > 0 {
		return 1
	}
	return 0
}

// convert loads one XCF file, flattens it and writes the export. It returns
// the size of the written file.
func convert(ctx *canvas.Context, cfg config, path string) (int64, error) {
	img, err := xcf.Load(ctx, path)
	if err != nil {
		return 0, errors.New(ctx.Printer().Sprintf(i18n.MsgOpenFailed, path, err))
	}
	defer img.Delete()

	flat := encode.Thumbnail(img, cfg.maxSize)
	data, err := cfg.enc.Encode(flat)
	if err != nil {
		return 0, fmt.Errorf("%s: encoding %s: %w", path, cfg.enc.Format(), err)
	}

	out := outputPath(path, cfg.outDir, cfg.enc.FileExtension())
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return 0, fmt.Errorf("%s: writing output: %w", path, err)
	}
	if cfg.verbose {
		b := flat.Bounds()
		log.Printf("%s → %s (%dx%d, %s)", path, out, b.Dx(), b.Dy(), humanSize(int64(len(data))))
	}
	return int64(len(data)), nil
}

// outputPath replaces the extension of path with ext, placing the result in
// dir when one is given.
func outputPath(path, dir, ext string) string {
	base := strings.TrimSuffix(path, filepath.Ext(path)) + ext
	if dir == "" {
		return base
	}
	return filepath.Join(dir, filepath.Base(base))
}

func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
