// Package icons resolves an application resource class to a key-sized
// image: the class names a .desktop entry, the entry names a theme
// icon, and the icon file is decoded (or rasterized, for SVG) and
// scaled to the deck's key resolution.
package icons

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	"gopkg.in/ini.v1"
)

// iconSizes is the resolution ladder searched inside theme
// directories, smallest first.
var iconSizes = []int{16, 20, 22, 24, 28, 32, 36, 48, 64, 72, 96, 128, 192, 256, 480, 512, 1024}

// Config holds resolver configuration.
type Config struct {
	// DesktopDirs are searched for <class>.desktop entries.
	DesktopDirs []string
	// IconDirs are theme roots (hicolor-style size subdirectories) or
	// flat directories like /usr/share/pixmaps.
	IconDirs []string
	// Size is the key image side length in pixels.
	Size   int
	Logger *slog.Logger
}

// Resolver resolves resource classes to key images.
type Resolver struct {
	cfg Config
}

// NewResolver creates a resolver.
func NewResolver(cfg Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve returns the icon for the given resource class scaled to the
// key size, or (nil, nil) when the class has no resolvable icon.
func (r *Resolver) Resolve(resourceClass string) (image.Image, error) {
	if resourceClass == "" {
		return nil, nil
	}
	name, err := r.iconName(resourceClass)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}
	path := r.findIconFile(name)
	if path == "" {
		r.cfg.Logger.Debug("no icon file found", "icon", name, "class", resourceClass)
		return nil, nil
	}
	img, err := r.decode(path)
	if err != nil {
		return nil, fmt.Errorf("decode icon %s: %w", path, err)
	}
	return r.scale(img), nil
}

// iconName looks up the Icon entry of the class's desktop file.
func (r *Resolver) iconName(resourceClass string) (string, error) {
	for _, dir := range r.cfg.DesktopDirs {
		path := filepath.Join(dir, resourceClass+".desktop")
		if _, err := os.Stat(path); err != nil {
			continue
		}
		f, err := ini.Load(path)
		if err != nil {
			return "", fmt.Errorf("parse desktop entry %s: %w", path, err)
		}
		return f.Section("Desktop Entry").Key("Icon").String(), nil
	}
	return "", nil
}

// findIconFile locates the icon file for a theme icon name. Absolute
// paths in the Icon entry are used as-is.
func (r *Resolver) findIconFile(name string) string {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name
		}
		return ""
	}
	for _, dir := range r.cfg.IconDirs {
		if path := probe(filepath.Join(dir, "scalable", "apps"), name, ".svg"); path != "" {
			return path
		}
		for _, size := range iconSizes {
			sub := filepath.Join(dir, fmt.Sprintf("%dx%d", size, size), "apps")
			if path := probe(sub, name, ".png", ".svg"); path != "" {
				return path
			}
		}
		// Flat directories (pixmaps).
		if path := probe(dir, name, ".png", ".svg"); path != "" {
			return path
		}
	}
	return ""
}

func probe(dir, name string, exts ...string) string {
	for _, ext := range exts {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (r *Resolver) decode(path string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".svg") {
		return r.rasterize(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}

// rasterize renders an SVG straight at the key resolution.
func (r *Resolver) rasterize(path string) (image.Image, error) {
	icon, err := oksvg.ReadIcon(path, oksvg.WarnErrorMode)
	if err != nil {
		return nil, err
	}
	size := r.cfg.Size
	icon.SetTarget(0, 0, float64(size), float64(size))
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, out, out.Bounds())
	icon.Draw(rasterx.NewDasher(size, size, scanner), 1.0)
	return out, nil
}

// scale resamples img to the key size if it is not already there.
func (r *Resolver) scale(img image.Image) image.Image {
	size := r.cfg.Size
	b := img.Bounds()
	if b.Dx() == size && b.Dy() == size {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}
