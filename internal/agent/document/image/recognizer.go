package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// Recognizer turns a cleaned bitmap into text.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, opts RecognizeOptions) (string, error)
}

// RecognizeOptions carries the per-call engine settings.
type RecognizeOptions struct {
	// Language is a tesseract language string such as "eng" or "deu+eng".
	Language string
	// Config is a tesseract style option string, e.g. "--psm 6 -c preserve_interword_spaces=1".
	Config string
	// DPI is the effective resolution of the image, 0 if unknown.
	DPI int
}

// Languages splits a "+" separated language string.
func (o RecognizeOptions) Languages() []string {
	var langs []string
	for _, l := range strings.Split(o.Language, "+") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

// PageSegModeSingleBlock assumes a single uniform block of text.
const PageSegModeSingleBlock = 6

const maxPageSegMode = 13

// EngineConfig is the parsed form of RecognizeOptions.Config.
type EngineConfig struct {
	// PageSegMode is -1 when the config leaves it to the engine.
	PageSegMode int
	// EngineMode is -1 when unset.
	EngineMode int
	Variables  map[string]string
}

// ParseEngineConfig understands --psm N, --oem N, --dpi N and -c key=value,
// in both "--flag N" and "--flag=N" spellings.
func ParseEngineConfig(s string) (EngineConfig, error) {
	cfg := EngineConfig{
		PageSegMode: -1,
		EngineMode:  -1,
		Variables:   make(map[string]string),
	}

	tokens := strings.Fields(s)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		name, value, hasValue := strings.Cut(tok, "=")
		if tok == "-c" || strings.HasPrefix(tok, "-c") && !strings.HasPrefix(tok, "--") {
			name, value, hasValue = "-c", strings.TrimPrefix(tok, "-c"), tok != "-c"
		}

		switch name {
		case "--psm", "--oem", "--dpi", "-c":
		default:
			return EngineConfig{}, fmt.Errorf("unsupported OCR option %q", tok)
		}

		if !hasValue {
			if i+1 >= len(tokens) {
				return EngineConfig{}, fmt.Errorf("OCR option %s requires a value", name)
			}
			i++
			value = tokens[i]
		}

		switch name {
		case "-c":
			key, val, ok := strings.Cut(value, "=")
			if !ok || key == "" {
				return EngineConfig{}, fmt.Errorf("invalid OCR variable %q, want key=value", value)
			}
			cfg.Variables[key] = val
		case "--dpi":
			n, err := strconv.Atoi(value)
			if err != nil || n <= 0 {
				return EngineConfig{}, fmt.Errorf("invalid --dpi value %q", value)
			}
			cfg.Variables["user_defined_dpi"] = value
		case "--psm":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > maxPageSegMode {
				return EngineConfig{}, fmt.Errorf("invalid --psm value %q", value)
			}
			cfg.PageSegMode = n
		case "--oem":
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 || n > 3 {
				return EngineConfig{}, fmt.Errorf("invalid --oem value %q", value)
			}
			cfg.EngineMode = n
		}
	}

	return cfg, nil
}

// EncodePNG serializes img for engines that take encoded bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
