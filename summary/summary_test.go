package summary

import (
	"encoding/binary"
	"hash/crc32"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// readRecords parses TFRecord framing, verifying both CRCs.
func readRecords(t *testing.T, path string) [][]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read event file: %v", err)
	}
	var records [][]byte
	for len(data) > 0 {
		if len(data) < 12 {
			t.Fatalf("truncated record header, %d bytes left", len(data))
		}
		length := binary.LittleEndian.Uint64(data[:8])
		lenCRC := binary.LittleEndian.Uint32(data[8:12])
		if want := maskCRC(crc32.Checksum(data[:8], crcTable)); lenCRC != want {
			t.Fatalf("length CRC mismatch: got %08x want %08x", lenCRC, want)
		}
		payload := data[12 : 12+length]
		dataCRC := binary.LittleEndian.Uint32(data[12+length : 16+length])
		if want := maskCRC(crc32.Checksum(payload, crcTable)); dataCRC != want {
			t.Fatalf("payload CRC mismatch: got %08x want %08x", dataCRC, want)
		}
		records = append(records, payload)
		data = data[16+length:]
	}
	return records
}

// eventFields extracts the fields this writer emits from an Event message.
type eventFields struct {
	wallTime    float64
	step        int64
	fileVersion string
	summary     []byte
}

func parseEvent(t *testing.T, msg []byte) eventFields {
	t.Helper()
	var ev eventFields
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			t.Fatal("bad tag in event message")
		}
		msg = msg[n:]
		switch num {
		case eventWallTime:
			v, n := protowire.ConsumeFixed64(msg)
			ev.wallTime = math.Float64frombits(v)
			msg = msg[n:]
		case eventStep:
			v, n := protowire.ConsumeVarint(msg)
			ev.step = int64(v)
			msg = msg[n:]
		case eventFileVersion:
			v, n := protowire.ConsumeBytes(msg)
			ev.fileVersion = string(v)
			msg = msg[n:]
		case eventSummary:
			v, n := protowire.ConsumeBytes(msg)
			ev.summary = v
			msg = msg[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				t.Fatalf("bad field %d in event message", num)
			}
			msg = msg[n:]
		}
	}
	return ev
}

// parseScalar pulls tag and simple_value out of a Summary message.
func parseScalar(t *testing.T, msg []byte) (string, float32) {
	t.Helper()
	_, _, n := protowire.ConsumeTag(msg)
	value, vn := protowire.ConsumeBytes(msg[n:])
	if vn < 0 {
		t.Fatal("bad summary value")
	}
	var tag string
	var simple float32
	for len(value) > 0 {
		num, typ, n := protowire.ConsumeTag(value)
		value = value[n:]
		switch num {
		case valueTag:
			v, n := protowire.ConsumeBytes(value)
			tag = string(v)
			value = value[n:]
		case valueSimpleValue:
			v, n := protowire.ConsumeFixed32(value)
			simple = math.Float32frombits(v)
			value = value[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, value)
			value = value[n:]
		}
	}
	return tag, simple
}

func fixedClock() func() time.Time {
	t := time.Unix(1700000000, 0)
	return func() time.Time { return t }
}

func TestWriterVersionHeader(t *testing.T) {
	dir := t.TempDir()
	w, err := newWriterAt(dir, fixedClock())
	if err != nil {
		t.Fatalf("newWriterAt failed: %v", err)
	}
	defer w.Close()

	base := filepath.Base(w.Path())
	if got, want := base[:len("events.out.tfevents.")], "events.out.tfevents."; got != want {
		t.Errorf("unexpected event file name %q", base)
	}

	w.Close()
	records := readRecords(t, w.Path())
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	ev := parseEvent(t, records[0])
	if ev.fileVersion != "brain.Event:2" {
		t.Errorf("expected file version brain.Event:2, got %q", ev.fileVersion)
	}
	if ev.wallTime != 1700000000 {
		t.Errorf("expected wall time 1700000000, got %f", ev.wallTime)
	}
}

func TestAddScalar(t *testing.T) {
	dir := t.TempDir()
	w, err := newWriterAt(dir, fixedClock())
	if err != nil {
		t.Fatalf("newWriterAt failed: %v", err)
	}
	if err := w.AddScalar("Training loss", 3, 0.25); err != nil {
		t.Fatalf("AddScalar failed: %v", err)
	}
	w.Close()

	records := readRecords(t, w.Path())
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	ev := parseEvent(t, records[1])
	if ev.step != 3 {
		t.Errorf("expected step 3, got %d", ev.step)
	}
	tag, value := parseScalar(t, ev.summary)
	if tag != "Training loss" {
		t.Errorf("expected tag %q, got %q", "Training loss", tag)
	}
	if value != 0.25 {
		t.Errorf("expected value 0.25, got %f", value)
	}
}

func TestAddText(t *testing.T) {
	dir := t.TempDir()
	w, err := newWriterAt(dir, fixedClock())
	if err != nil {
		t.Fatalf("newWriterAt failed: %v", err)
	}
	if err := w.AddText("Configuration", 0, "pipeline config"); err != nil {
		t.Fatalf("AddText failed: %v", err)
	}
	w.Close()

	records := readRecords(t, w.Path())
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	// The raw summary bytes must carry both the text and the plugin name.
	summary := string(parseEvent(t, records[1]).summary)
	if !strings.Contains(summary, "pipeline config") || !strings.Contains(summary, "text") {
		t.Error("text summary missing payload or plugin name")
	}
}

func TestAdd3D(t *testing.T) {
	dir := t.TempDir()
	w, err := newWriterAt(dir, fixedClock())
	if err != nil {
		t.Fatalf("newWriterAt failed: %v", err)
	}
	points := []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
	gt := []float32{0, 1, 1}
	pred := []float32{0, 1, 0}
	names := map[int]string{0: "ground", 1: "tree"}
	if err := w.Add3D("test/semseg", 1, points, gt, pred, names); err != nil {
		t.Fatalf("Add3D failed: %v", err)
	}
	if err := w.Add3D("bad", 1, []float32{1, 2}, nil, nil, nil); err == nil {
		t.Error("expected error for non-triple point data")
	}
	if err := w.Add3D("bad", 1, points, []float32{0}, nil, nil); err == nil {
		t.Error("expected error for label/point length mismatch")
	}
	if err := w.Add3D("bad", 1, nil, nil, nil, nil); err == nil {
		t.Error("expected error for empty summary")
	}
	w.Close()

	// version header + positions + ground truth + predictions
	records := readRecords(t, w.Path())
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	positions := string(parseEvent(t, records[1]).summary)
	if !strings.Contains(positions, "test/semseg_vertex_positions") || !strings.Contains(positions, "Open3D") {
		t.Error("positions summary missing tag or plugin name")
	}
	gtSummary := string(parseEvent(t, records[2]).summary)
	if !strings.Contains(gtSummary, "test/semseg_vertex_gt_labels") {
		t.Error("ground-truth summary missing tag")
	}
	if !strings.Contains(gtSummary, "label_to_names") || !strings.Contains(gtSummary, "tree") {
		t.Error("ground-truth summary missing label map")
	}
	if !strings.Contains(string(parseEvent(t, records[3]).summary), "test/semseg_vertex_predict_labels") {
		t.Error("prediction summary missing tag")
	}
}

func TestAdd3DReferencedGeometry(t *testing.T) {
	dir := t.TempDir()
	w, err := newWriterAt(dir, fixedClock())
	if err != nil {
		t.Fatalf("newWriterAt failed: %v", err)
	}
	// labels only, geometry referenced from an earlier step
	if err := w.Add3D("valid/000", 2, nil, []float32{1, 0}, []float32{1, 1}, nil); err != nil {
		t.Fatalf("Add3D failed: %v", err)
	}
	w.Close()

	records := readRecords(t, w.Path())
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for _, rec := range records[1:] {
		if strings.Contains(string(parseEvent(t, rec).summary), "_vertex_positions") {
			t.Error("geometry written for a label-only summary")
		}
	}
}

func TestNextRunID(t *testing.T) {
	dir := t.TempDir()
	if got := NextRunID(dir); got != "00001_" {
		t.Errorf("expected 00001_ for empty dir, got %q", got)
	}
	for _, name := range []string{"00001_train", "00007_train", "notes.txt"} {
		if err := os.MkdirAll(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if got := NextRunID(dir); got != "00008_" {
		t.Errorf("expected 00008_, got %q", got)
	}
	if got := NextRunID(filepath.Join(dir, "absent")); got != "00001_" {
		t.Errorf("expected 00001_ for absent dir, got %q", got)
	}
}

func TestRunDirs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"00002_b", "00001_a", "scratch"} {
		if err := os.MkdirAll(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := RunDirs(dir)
	if err != nil {
		t.Fatalf("RunDirs failed: %v", err)
	}
	if len(runs) != 2 || runs[0] != "00001_a" || runs[1] != "00002_b" {
		t.Errorf("unexpected runs: %v", runs)
	}
}
