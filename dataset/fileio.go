package dataset

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// ReadPointCloud parses a whitespace-separated text file with one point per
// line: x y z [feat...] label. featDim gives the number of feature columns
// between the position and the label; pass 0 for "x y z label" files.
func ReadPointCloud(path string, featDim int) (*PointCloud, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open point cloud: %w", err)
	}
	defer f.Close()

	pc := &PointCloud{}
	wantCols := 4 + featDim

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cols := strings.Fields(line)
		if len(cols) != wantCols {
			return nil, fmt.Errorf("%s:%d: expected %d columns, got %d", path, lineNo, wantCols, len(cols))
		}

		for i := 0; i < 3; i++ {
			v, err := strconv.ParseFloat(cols[i], 32)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad coordinate %q: %w", path, lineNo, cols[i], err)
			}
			pc.Points = append(pc.Points, float32(v))
		}
		for i := 3; i < 3+featDim; i++ {
			v, err := strconv.ParseFloat(cols[i], 32)
			if err != nil {
				return nil, fmt.Errorf("%s:%d: bad feature %q: %w", path, lineNo, cols[i], err)
			}
			pc.Feats = append(pc.Feats, float32(v))
		}
		label, err := strconv.ParseInt(cols[wantCols-1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad label %q: %w", path, lineNo, cols[wantCols-1], err)
		}
		pc.Labels = append(pc.Labels, int32(label))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read point cloud: %w", err)
	}
	if pc.NumPoints() == 0 {
		return nil, fmt.Errorf("%s: no points", path)
	}
	return pc, nil
}

// LoadDirectory builds an in-memory dataset from a directory laid out as
// <root>/{train,validation,test}/*.txt. Splits without a directory are
// simply absent. Cloud names come from the file names.
func LoadDirectory(root, name string, featDim int, labelToNames map[int]string) (*InMemory, error) {
	d := NewInMemory(name, labelToNames)

	loaded := 0
	for _, split := range []string{SplitTrain, SplitValidation, SplitTest} {
		dir := filepath.Join(root, split)
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read split dir: %w", err)
		}

		var paths []string
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".txt") {
				continue
			}
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
		sort.Strings(paths)
		if len(paths) == 0 {
			continue
		}

		clouds := make([]*PointCloud, 0, len(paths))
		for _, p := range paths {
			pc, err := ReadPointCloud(p, featDim)
			if err != nil {
				return nil, err
			}
			clouds = append(clouds, pc)
		}
		if err := d.AddSplit(split, clouds); err != nil {
			return nil, err
		}

		// Carry real file names into the attrs so results map back to files.
		ms := d.splits[split]
		for i, p := range paths {
			base := strings.TrimSuffix(filepath.Base(p), ".txt")
			ms.attrs[i].Name = base
			ms.attrs[i].Path = p
		}
		loaded += len(paths)
	}

	if loaded == 0 {
		return nil, fmt.Errorf("no point cloud files under %s", root)
	}
	return d, nil
}
