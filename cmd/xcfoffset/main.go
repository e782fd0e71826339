package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pspoerri/xcftiles/internal/applog"
	"github.com/pspoerri/xcftiles/internal/canvas"
	"github.com/pspoerri/xcftiles/internal/i18n"
	"github.com/pspoerri/xcftiles/internal/tile"
	"github.com/pspoerri/xcftiles/internal/xcf"
)

// Set via -ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		layerName   string
		layerIndex  int
		mask        bool
		dx, dy      int
		wrap        bool
		fill        string
		bgColor     string
		rle         bool
		cacheMB     int
		verbose     bool
		showVersion bool
	)

	flag.StringVar(&layerName, "layer", "", "Name of the layer to offset")
	flag.IntVar(&layerIndex, "index", -1, "Stack position of the layer to offset (0 = top)")
	flag.BoolVar(&mask, "mask", false, "Offset the layer's mask instead of the layer")
	flag.IntVar(&dx, "dx", 0, "Horizontal shift in pixels")
	flag.IntVar(&dy, "dy", 0, "Vertical shift in pixels")
	flag.BoolVar(&wrap, "wrap", false, "Wrap pixels around the edges")
	flag.StringVar(&fill, "fill", "bg", "Fill for vacated pixels without -wrap: bg, transparent")
	flag.StringVar(&bgColor, "bg", "#ffffff", "Background color, e.g. \"255,255,255\" or \"#ffffff\"")
	flag.BoolVar(&rle, "rle", false, "Save RLE compressed regardless of the input's compression")
	flag.IntVar(&cacheMB, "cache", -1, "Tile memory in MB before swapping to disk (-1 = never swap)")
	flag.BoolVar(&verbose, "verbose", false, "Verbose progress output")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: xcfoffset [flags] <input.xcf> <output.xcf>\n\n")
		fmt.Fprintf(os.Stderr, "Shift the pixels of one layer of an XCF file and save the result.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("xcfoffset %s (commit %s, built %s)\n", version, commit, buildDate)
		return 0
	}
	args := flag.Args()
	if len(args) != 2 {
		flag.Usage()
		return 1
	}
	if (layerName == "") == (layerIndex < 0) {
		log.Print("Exactly one of -layer and -index is required")
		return 1
	}
	if verbose {
		applog.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	var policy canvas.FillPolicy
	switch fill {
	case "bg", "background":
		policy = canvas.FillBackground
	case "transparent":
		policy = canvas.FillTransparent
	default:
		log.Printf("Unknown fill %q (supported: bg, transparent)", fill)
		return 1
	}
	bg, err := parseColor(bgColor)
	if err != nil {
		log.Printf("Invalid -bg: %v", err)
		return 1
	}

	printer := i18n.Printer(i18n.FromEnv())
	opts := []canvas.ContextOption{
		canvas.WithPrinter(printer),
		canvas.WithColors(canvas.StaticColors{FG: color.NRGBA{A: 255}, BG: bg}),
	}
	if cacheMB > 0 {
		swap, err := tile.NewSwap(tile.SwapConfig{})
		if err != nil {
			log.Printf("Tile swap: %v", err)
			return 1
		}
		defer swap.Close()
		opts = append(opts, canvas.WithCache(tile.NewCache(int64(cacheMB)<<20, swap)))
	}
	ctx := canvas.NewContext(opts...)

	inputPath, outputPath := args[0], args[1]
	start := time.Now()
	img, err := xcf.Load(ctx, inputPath)
	if err != nil {
		log.Print(printer.Sprintf(i18n.MsgOpenFailed, inputPath, err))
		return 1
	}
	defer img.Delete()

	var layer *canvas.Layer
	if layerName != "" {
		layer = img.LayerByName(layerName)
		if layer == nil {
			log.Print(printer.Sprintf(i18n.MsgNoLayer, layerName))
			return 1
		}
	} else {
		layers := img.Layers()
		if layerIndex >= len(layers) {
			log.Printf("Layer index %d out of range (image has %d layers)", layerIndex, len(layers))
			return 1
		}
		layer = layers[layerIndex]
	}

	var target canvas.Drawable = layer
	if mask {
		if layer.Mask() == nil {
			log.Printf("Layer %q has no mask", layer.Name())
			return 1
		}
		target = layer.Mask()
	}

	if err := canvas.Offset(img, target, wrap, policy, dx, dy); err != nil {
		log.Printf("Offset: %v", err)
		return 1
	}
	if verbose {
		log.Printf("%s %q by %+d,%+d (wrap=%t)", printer.Sprintf(i18n.MsgOffset), target.Name(), dx, dy, wrap)
	}

	if rle {
		img.Compression = canvas.CompressRLE
	}
	if err := xcf.Save(outputPath, img, xcf.SaveOptions{}); err != nil {
		log.Print(printer.Sprintf(i18n.MsgSaveFailed, outputPath, err))
		return 1
	}

	fi, err := os.Stat(outputPath)
	if err != nil {
		log.Printf("Stat output: %v", err)
		return 1
	}
	fmt.Printf("Done: %s, %v → %s\n", humanSize(fi.Size()), time.Since(start).Round(time.Millisecond), outputPath)
	return 0
}

// parseColor accepts "R,G,B", "R,G,B,A", "#RRGGBB" or "#RRGGBBAA".
func parseColor(s string) (color.NRGBA, error) {
	if strings.HasPrefix(s, "#") {
		return parseHexColor(s)
	}

	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 4 {
		return color.NRGBA{}, fmt.Errorf("expected R,G,B or R,G,B,A format (e.g. \"255,255,255\"), got %q", s)
	}

	vals := []uint8{0, 0, 0, 255}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			return color.NRGBA{}, fmt.Errorf("invalid color component %q (must be 0-255)", p)
		}
		vals[i] = uint8(v)
	}
	return color.NRGBA{R: vals[0], G: vals[1], B: vals[2], A: vals[3]}, nil
}

func parseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(s, "#")
	switch len(s) {
	case 6:
		s += "ff" // default alpha
	case 8:
		// full RRGGBBAA
	default:
		return color.NRGBA{}, fmt.Errorf("hex color must be #RRGGBB or #RRGGBBAA, got %q", "#"+s)
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid hex color: %w", err)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
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
