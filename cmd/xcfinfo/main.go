package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

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
	var (
		showTiles   bool
		verbose     bool
		showVersion bool
	)
	flag.BoolVar(&showTiles, "tiles", false, "Print per-drawable tile statistics")
	flag.BoolVar(&verbose, "verbose", false, "Log loader warnings and progress")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: xcfinfo [flags] <file.xcf>\n\n")
		fmt.Fprintf(os.Stderr, "Print the structure of an XCF file.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if showVersion {
		fmt.Printf("xcfinfo %s (commit %s, built %s)\n", version, commit, buildDate)
		os.Exit(0)
	}
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	if verbose {
		applog.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	path := flag.Arg(0)
	printer := i18n.Printer(i18n.FromEnv())
	ctx := canvas.NewContext(canvas.WithPrinter(printer))
	img, err := xcf.Load(ctx, path)
	if err != nil {
		log.Fatal(printer.Sprintf(i18n.MsgOpenFailed, path, err))
	}
	defer img.Delete()

	fmt.Printf("File: %s\n", path)
	fmt.Printf("Size: %d x %d, %s\n", img.Width(), img.Height(), img.Base())
	fmt.Printf("Resolution: %.1f x %.1f dpi (unit %d)\n", img.XResolution, img.YResolution, img.Unit)
	fmt.Printf("Compression: %s\n", img.Compression)
	if cmap := img.Colormap(); cmap != nil {
		fmt.Printf("Colormap: %d entries\n", len(cmap)/3)
	}
	fmt.Printf("Tattoo state: %d\n", img.TattooState())

	layers := img.Layers()
	fmt.Printf("\nLayers: %d\n", len(layers))
	for i, l := range layers {
		x, y := l.Offsets()
		flags := ""
		if l == img.ActiveLayer() {
			flags += " active"
		}
		if !l.Visible() {
			flags += " hidden"
		}
		fmt.Printf("  %d: %q %dx%d%+d%+d %s, %s, opacity %d%s\n",
			i, l.Name(), l.Width(), l.Height(), x, y, l.Type(), l.Mode, l.Opacity, flags)
		if m := l.Mask(); m != nil {
			fmt.Printf("     mask %q apply=%t edit=%t show=%t\n", m.Name(), l.ApplyMask, l.EditMask, l.ShowMask)
		}
		if showTiles {
			printTiles("     ", l.Tiles())
		}
	}
	if fs := img.Floating(); fs != nil {
		fmt.Printf("  floating: %q attached to %q\n", fs.Name(), fs.FloatingTarget().Name())
	}

	channels := img.Channels()
	fmt.Printf("\nChannels: %d\n", len(channels))
	for i, c := range channels {
		fmt.Printf("  %d: %q opacity %d color #%02x%02x%02x visible=%t\n",
			i, c.Name(), c.Opacity, c.Color[0], c.Color[1], c.Color[2], c.Visible())
		if showTiles {
			printTiles("     ", c.Tiles())
		}
	}

	if guides := img.Guides(); len(guides) > 0 {
		fmt.Printf("\nGuides: %d\n", len(guides))
		for _, g := range guides {
			fmt.Printf("  %s at %d\n", g.Orientation, g.Position)
		}
	}
	if paths := img.Paths(); len(paths) > 0 {
		fmt.Printf("\nPaths: %d (active %d)\n", len(paths), img.ActivePath())
		for _, p := range paths {
			fmt.Printf("  %q %d points closed=%t\n", p.Name, len(p.Points), p.Closed)
		}
	}
	if ps := img.Parasites().List(); len(ps) > 0 {
		fmt.Printf("\nParasites: %d\n", len(ps))
		for _, p := range ps {
			fmt.Printf("  %q flags %d, %s\n", p.Name, p.Flags, humanSize(int64(len(p.Data))))
		}
	}
}

// printTiles reports the tile grid of m and how much of it the loader could
// share between identical neighbours.
func printTiles(indent string, m *tile.Manager) {
	uniform := 0
	for i := range m.NumTiles() {
		t := m.TileAt(tile.Coord{Col: i % m.Cols(), Row: i / m.Cols()})
		if _, ok := t.Uniform(); ok {
			uniform++
		}
	}
	fmt.Printf("%stiles %dx%d (%d total, %d shared, %d uniform), %d levels\n",
		indent, m.Cols(), m.Rows(), m.NumTiles(), m.SharedTiles(), uniform, tile.NumLevels(m.Width(), m.Height()))
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
