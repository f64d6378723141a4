package engine

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	iface "CamDetLoop/interface"
)

const UNREGISTERED = 0x0001
const REGISTERED = 0x0002
const IDLE = 0x0003
const BUSY = 0x0004

func StateName(state int) string {
	switch state {
	case UNREGISTERED:
		return "unregistered"
	case REGISTERED:
		return "registered"
	case IDLE:
		return "idle"
	case BUSY:
		return "busy"
	default:
		return fmt.Sprintf("state(0x%04x)", state)
	}
}

// ReadLinesReadFile reads a label file, one label per line. CRLF endings and
// blank lines are dropped.
func ReadLinesReadFile(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return splitLines(string(b)), nil
}

func splitLines(s string) []string {
	raw := strings.Split(s, "\n")
	var lines []string
	for _, l := range raw {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// ModelLabels reads the label file packed into a model's metadata. TFLite
// models with metadata carry a zip archive after the flatbuffer; labelmap.txt
// is preferred, otherwise the first .txt entry. A model without an archive
// or without a label entry yields no labels.
func ModelLabels(modelPath string) ([]string, error) {
	r, err := zip.OpenReader(modelPath)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, nil
		}
		return nil, err
	}
	defer r.Close()
	var pick *zip.File
	for _, f := range r.File {
		name := path.Base(f.Name)
		if name == "labelmap.txt" {
			pick = f
			break
		}
		if pick == nil && strings.HasSuffix(name, ".txt") {
			pick = f
		}
	}
	if pick == nil {
		return nil, nil
	}
	rc, err := pick.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s in model: %w", pick.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s in model: %w", pick.Name, err)
	}
	return splitLines(string(b)), nil
}

// LoadNames resolves a NamesConf. An empty conf yields no names; labels are
// then synthesized from class ids.
func LoadNames(names iface.NamesConf) ([]string, error) {
	if names.File != "" {
		lines, err := ReadLinesReadFile(names.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read labels: %w", err)
		}
		return lines, nil
	}
	out := make([]string, len(names.Data))
	copy(out, names.Data)
	return out, nil
}

func LabelFor(names []string, classID int) string {
	if classID >= 0 && classID < len(names) {
		return names[classID]
	}
	return fmt.Sprintf("class_%d", classID)
}

// Select keeps results scoring at least threshold, highest score first, and
// at most maxResults of them. maxResults <= 0 keeps all.
func Select(results []iface.Result, maxResults int, threshold float32) []iface.Result {
	out := make([]iface.Result, 0, len(results))
	for _, r := range results {
		if r.Conf >= threshold {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Conf > out[j].Conf })
	if maxResults > 0 && len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}
