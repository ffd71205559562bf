// Package capture writes per-run diagnostic bundles: the exact prompt, the
// model's raw output, and the final result. Bundles exist so an operator can
// see what the model actually said after the fact; they are opt-in and never
// contain credentials.
package capture

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/ssomangili/medextract/internal/schema"
)

// Bundle is everything needed to replay one extraction run by hand.
type Bundle struct {
	RunID       string                   `json:"run_id"`
	PatientID   string                   `json:"patient_id"`
	Question    string                   `json:"question"`
	Prompt      string                   `json:"prompt"`
	RawResponse string                   `json:"raw_response"`
	Result      *schema.ExtractionResult `json:"result"`
	CreatedAt   time.Time                `json:"created_at"`
}

// Write stores the bundle as dir/{run-id}.json, zstd-compressed to .json.zst
// when compress is set. Returns the written path.
func Write(dir string, b Bundle, compress bool) (string, error) {
	if b.RunID == "" {
		return "", fmt.Errorf("bundle has no run ID")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create capture dir: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode bundle: %w", err)
	}

	path := filepath.Join(dir, b.RunID+".json")
	if !compress {
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return "", fmt.Errorf("write bundle: %w", err)
		}
		return path, nil
	}

	path += ".zst"
	dest, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create bundle: %w", err)
	}
	defer dest.Close()

	encoder, err := zstd.NewWriter(dest)
	if err != nil {
		return "", fmt.Errorf("create zstd encoder: %w", err)
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return "", fmt.Errorf("compress bundle: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("finalize compression: %w", err)
	}
	return path, nil
}

// Read loads a bundle written by Write, decompressing if the path ends in
// .zst.
func Read(path string) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open bundle: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		decoder, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("create zstd decoder: %w", err)
		}
		defer decoder.Close()
		r = decoder
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	return &b, nil
}
