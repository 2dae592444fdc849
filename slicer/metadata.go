package slicer

import (
	"archive/zip"
	"bufio"
	"fmt"
	"strings"
)

// ParseMetadata extracts slicer configuration from a 3MF package, which is a
// plain zip. Bambu/Orca slicers ship key=value config files under Metadata/;
// both slice_info and project_settings are collected when present.
func ParseMetadata(path string) (map[string]map[string]string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	defer r.Close()

	meta := make(map[string]map[string]string)
	for _, f := range r.File {
		var section string
		switch {
		case strings.Contains(f.Name, "slice_info"):
			section = "slice_info"
		case strings.Contains(f.Name, "project_settings"):
			section = "project_settings"
		default:
			continue
		}
		kv, err := parseConfig(f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		meta[section] = kv
	}
	return meta, nil
}

func parseConfig(f *zip.File) (map[string]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	kv := make(map[string]string)
	scanner := bufio.NewScanner(rc)
	for scanner.Scan() {
		line := scanner.Text()
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		kv[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return kv, scanner.Err()
}
