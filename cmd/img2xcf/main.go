package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/pspoerri/xcftiles/internal/applog"
	"github.com/pspoerri/xcftiles/internal/canvas"
	"github.com/pspoerri/xcftiles/internal/encode"
	"github.com/pspoerri/xcftiles/internal/i18n"
	"github.com/pspoerri/xcftiles/internal/xcf"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		rle         bool
		dpi         float64
		verbose     bool
		showVersion bool
	)

	flag.BoolVar(&rle, "rle", true, "RLE compress tiles (false = uncompressed)")
	flag.Float64Var(&dpi, "dpi", 72, "Resolution stored in the file")
	flag.BoolVar(&verbose, "verbose", false, "Verbose progress output")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: img2xcf [flags] <input.png|jpg|webp|tif|bmp> <output.xcf>\n\n")
		fmt.Fprintf(os.Stderr, "Import a flat image as a single-layer XCF file.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("img2xcf %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}
	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		os.Exit(1)
	}
	if verbose {
		applog.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}
	if dpi <= 0 {
		log.Fatalf("Invalid -dpi %v", dpi)
	}

	inputPath, outputPath := args[0], args[1]
	start := time.Now()

	data, err := os.ReadFile(inputPath)
	if err != nil {
		log.Fatalf("Reading input: %v", err)
	}
	src, format, err := encode.Decode(data)
	if err != nil {
		log.Fatalf("%s: %v", inputPath, err)
	}
	if verbose {
		b := src.Bounds()
		log.Printf("Decoded %s: %dx%d %s", inputPath, b.Dx(), b.Dy(), format)
	}

	printer := i18n.Printer(i18n.FromEnv())
	ctx := canvas.NewContext(canvas.WithPrinter(printer))
	img, err := encode.Import(ctx, src)
	if err != nil {
		log.Fatalf("Import: %v", err)
	}
	defer img.Delete()

	img.XResolution, img.YResolution = dpi, dpi
	img.Compression = canvas.CompressNone
	if rle {
		img.Compression = canvas.CompressRLE
	}
	if err := xcf.Save(outputPath, img, xcf.SaveOptions{}); err != nil {
		log.Fatal(printer.Sprintf(i18n.MsgSaveFailed, outputPath, err))
	}

	fi, err := os.Stat(outputPath)
	if err != nil {
		log.Fatalf("Stat output: %v", err)
	}
	fmt.Printf("Done: %dx%d %s, %s, %v → %s\n", img.Width(), img.Height(), img.Base(),
		humanSize(fi.Size()), time.Since(start).Round(time.Millisecond), outputPath)
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
