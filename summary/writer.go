// Package summary writes TensorBoard event files so training runs can be
// inspected with standard TensorBoard tooling.
package summary

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// maskCRC applies the TFRecord CRC mask.
func maskCRC(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

// frameRecord wraps payload in TFRecord framing: length, masked CRC of the
// length bytes, payload, masked CRC of the payload.
func frameRecord(payload []byte) []byte {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(payload)))

	out := make([]byte, 0, len(payload)+16)
	out = append(out, lenBuf[:]...)
	out = binary.LittleEndian.AppendUint32(out, maskCRC(crc32.Checksum(lenBuf[:], crcTable)))
	out = append(out, payload...)
	out = binary.LittleEndian.AppendUint32(out, maskCRC(crc32.Checksum(payload, crcTable)))
	return out
}

// Writer appends events to a single TensorBoard event file.
type Writer struct {
	file *os.File
	now  func() time.Time
}

// NewWriter creates an event file named events.out.tfevents.<time>.<host>
// under dir and writes the version header event.
func NewWriter(dir string) (*Writer, error) {
	return newWriterAt(dir, time.Now)
}

func newWriterAt(dir string, now func() time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create summary directory: %v", err)
	}
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	path := filepath.Join(dir, fmt.Sprintf("events.out.tfevents.%d.%s", now().Unix(), host))
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event file: %v", err)
	}

	w := &Writer{file: file, now: now}
	wallTime := float64(now().UnixNano()) / 1e9
	if err := w.writeEvent(encodeEvent(wallTime, 0, "brain.Event:2", nil)); err != nil {
		file.Close()
		return nil, err
	}
	return w, nil
}

// Path returns the event file path.
func (w *Writer) Path() string {
	return w.file.Name()
}

func (w *Writer) writeEvent(event []byte) error {
	if _, err := w.file.Write(frameRecord(event)); err != nil {
		return fmt.Errorf("failed to write event: %v", err)
	}
	return nil
}

// AddScalar records a single scalar value under tag at the given step.
func (w *Writer) AddScalar(tag string, step int64, value float32) error {
	wallTime := float64(w.now().UnixNano()) / 1e9
	return w.writeEvent(encodeEvent(wallTime, step, "", encodeScalarValue(tag, value)))
}

// AddText records a text snippet under tag, rendered by the text plugin.
func (w *Writer) AddText(tag string, step int64, text string) error {
	wallTime := float64(w.now().UnixNano()) / 1e9
	return w.writeEvent(encodeEvent(wallTime, step, "", encodeTextValue(tag, text)))
}

// labelMapContent serializes a class id to name mapping for the plugin data
// attached to label tensors.
func labelMapContent(names map[int]string) []byte {
	if len(names) == 0 {
		return nil
	}
	keyed := make(map[string]string, len(names))
	for id, name := range names {
		keyed[strconv.Itoa(id)] = name
	}
	content, err := json.Marshal(map[string]map[string]string{"label_to_names": keyed})
	if err != nil {
		return nil
	}
	return content
}

// Add3D records point positions with ground-truth and predicted per-point
// labels for tag. Points are flattened xyz triples; nil points reference
// geometry written at an earlier step, and either label tensor may be nil.
// labelNames, when present, rides along with the label tensors so viewers
// can show class names.
func (w *Writer) Add3D(tag string, step int64, points, gtLabels, predLabels []float32, labelNames map[int]string) error {
	if points != nil && len(points)%3 != 0 {
		return fmt.Errorf("points length %d is not a multiple of 3", len(points))
	}
	n := int64(len(points) / 3)
	if points == nil {
		switch {
		case gtLabels != nil:
			n = int64(len(gtLabels))
		case predLabels != nil:
			n = int64(len(predLabels))
		default:
			return fmt.Errorf("3D summary %q carries no tensors", tag)
		}
	}
	labelTensors := []struct {
		suffix string
		data   []float32
	}{
		{"_vertex_gt_labels", gtLabels},
		{"_vertex_predict_labels", predLabels},
	}
	for _, labels := range labelTensors {
		if labels.data != nil && int64(len(labels.data)) != n {
			return fmt.Errorf("labels length %d does not match %d points", len(labels.data), n)
		}
	}
	wallTime := float64(w.now().UnixNano()) / 1e9

	if points != nil {
		msg := encodeFloatTensorValue(tag+"_vertex_positions", "Open3D", nil, points, []int64{1, n, 3})
		if err := w.writeEvent(encodeEvent(wallTime, step, "", msg)); err != nil {
			return err
		}
	}
	content := labelMapContent(labelNames)
	for _, labels := range labelTensors {
		if labels.data == nil {
			continue
		}
		msg := encodeFloatTensorValue(tag+labels.suffix, "Open3D", content, labels.data, []int64{1, n, 1})
		if err := w.writeEvent(encodeEvent(wallTime, step, "", msg)); err != nil {
			return err
		}
	}
	return nil
}

// Flush forces buffered events to disk.
func (w *Writer) Flush() error {
	return w.file.Sync()
}

// Close flushes and closes the event file.
func (w *Writer) Close() error {
	return w.file.Close()
}

var runPrefix = regexp.MustCompile(`^(\d+)_`)

// NextRunID scans dir for entries with a numeric NNNNN_ prefix and returns
// the next ordinal as a zero-padded five digit string followed by an
// underscore. The first run in an empty or absent directory gets "00001_".
func NextRunID(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "00001_"
	}
	max := 0
	for _, e := range entries {
		m := runPrefix.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		var id int
		fmt.Sscanf(m[1], "%d", &id)
		if id > max {
			max = id
		}
	}
	return fmt.Sprintf("%05d_", max+1)
}

// RunDirs lists run directories under dir sorted by name.
func RunDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read summary directory: %v", err)
	}
	var runs []string
	for _, e := range entries {
		if e.IsDir() && runPrefix.MatchString(e.Name()) {
			runs = append(runs, e.Name())
		}
	}
	sort.Strings(runs)
	return runs, nil
}
