// Command uidetect detects clickable UI elements in a screen image and
// prints them as JSON.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"ui-recognizer/internal/classify"
	"ui-recognizer/internal/config"
	"ui-recognizer/internal/frame"
	"ui-recognizer/internal/recognize"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

func main() {
	imagePath := flag.String("image", "", "Path to screen image (PNG, JPEG, GIF, BMP, or TIFF)")
	configPath := flag.String("config", "", "Path to JSON configuration file")
	preset := flag.String("preset", "", "Configuration preset: fast, balanced, or accurate")
	types := flag.String("types", "", "Comma-separated element types to detect (default all)")
	diagnose := flag.Bool("diagnose", false, "Print per-stage timings instead of plain results")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	if *imagePath == "" {
		fmt.Println("Usage: uidetect -image <path> [-config file | -preset name] [-types button,icon] [-diagnose]")
		os.Exit(1)
	}

	log := logrus.New()
	log.SetOutput(os.Stderr)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := resolveConfig(*configPath, *preset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open image: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	decoded, format, err := image.Decode(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decode image: %v\n", err)
		os.Exit(1)
	}
	log.WithFields(logrus.Fields{
		"format": format,
		"width":  decoded.Bounds().Dx(),
		"height": decoded.Bounds().Dy(),
	}).Debug("image loaded")

	img, err := frame.FromImage(decoded)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to convert image: %v\n", err)
		os.Exit(1)
	}
	defer img.Close()

	rec, err := recognize.New(cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create recognizer: %v\n", err)
		os.Exit(1)
	}
	defer rec.Close()

	var output any
	if *diagnose {
		output, err = rec.Diagnose(img)
	} else if *types != "" {
		output, err = rec.DetectMultipleTypes(img, parseTypes(*types))
	} else {
		output, err = rec.DetectClickableElements(img)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Detection failed: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(output); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode results: %v\n", err)
		os.Exit(1)
	}
}

func resolveConfig(path, preset string) (config.RecognitionConfig, error) {
	switch {
	case path != "" && preset != "":
		return config.RecognitionConfig{}, fmt.Errorf("-config and -preset are mutually exclusive")
	case path != "":
		return config.LoadFile(path)
	case preset != "":
		return config.Preset(preset)
	default:
		return config.Default(), nil
	}
}

func parseTypes(s string) []classify.ElementType {
	var types []classify.ElementType
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			types = append(types, classify.ElementType(part))
		}
	}
	return types
}
