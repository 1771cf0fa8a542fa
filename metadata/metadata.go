// Package metadata maps camera IP addresses to deployment metadata
// loaded from the operator-maintained camera inventory CSV.
package metadata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
)

// Record holds the inventory row for a single camera.
type Record struct {
	CameraIP      string
	OldDistrict   string
	NewDistrict   string
	Mandal        string
	LocationName  string
	Latitude      string
	Longitude     string
	CameraType    string
	AnalyticsType string
}

// UnknownRecord returns the placeholder metadata used when a camera is
// not present in the inventory.
func UnknownRecord(ip string) Record {
	return Record{
		CameraIP:      ip,
		OldDistrict:   "Unknown",
		NewDistrict:   "Unknown",
		Mandal:        "Unknown",
		LocationName:  "Unknown",
		Latitude:      "",
		Longitude:     "",
		CameraType:    "Unknown",
		AnalyticsType: "Unknown",
	}
}

// Table is an in-memory camera inventory keyed by IP address.
type Table struct {
	records map[string]Record
}

// NewTable builds an empty inventory. Lookups against it return the
// Unknown placeholder, so the pipeline still runs without a CSV.
func NewTable() *Table {
	return &Table{records: make(map[string]Record)}
}

// Load reads the inventory CSV from path. The file must carry a header
// row; column order follows the operator export.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer f.Close()

	t, err := Parse(f)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"path":    path,
		"cameras": t.Len(),
	}).Info("camera metadata loaded")
	return t, nil
}

// Parse reads the inventory CSV from r.
func Parse(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata CSV: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("metadata CSV is empty")
	}

	idx := columnIndex(rows[0])
	ipCol, ok := idx["camera ip"]
	if !ok {
		return nil, fmt.Errorf("metadata CSV is missing the CAMERA IP column")
	}

	t := NewTable()
	for _, row := range rows[1:] {
		ip := strings.TrimSpace(field(row, ipCol))
		if ip == "" {
			continue
		}
		t.records[ip] = Record{
			CameraIP:      ip,
			OldDistrict:   fieldOr(row, col(idx, "old district"), "Unknown"),
			NewDistrict:   fieldOr(row, col(idx, "new district"), "Unknown"),
			Mandal:        fieldOr(row, col(idx, "mandal"), "Unknown"),
			LocationName:  fieldOr(row, col(idx, "location name"), "Unknown"),
			Latitude:      field(row, col(idx, "latitude")),
			Longitude:     field(row, col(idx, "longitude")),
			CameraType:    fieldOr(row, col(idx, "type of camera"), "Unknown"),
			AnalyticsType: fieldOr(row, col(idx, "type of analytics"), "Unknown"),
		}
	}
	return t, nil
}

// Lookup returns the metadata for ip, or the Unknown placeholder when
// the camera is not in the inventory.
func (t *Table) Lookup(ip string) Record {
	if rec, ok := t.records[ip]; ok {
		return rec
	}
	return UnknownRecord(ip)
}

func (t *Table) Len() int {
	return len(t.records)
}

// ExtractCameraIP recovers the camera IP from an image filename of the
// form {Location}_{oct1}_{oct2}_{oct3}_{oct4}_{date}_{time}.jpg. The
// location prefix may contain underscores or be absent entirely, so the
// octets are taken by position from the end.
func ExtractCameraIP(filename string) (string, bool) {
	name := filename
	if idx := strings.LastIndex(name, "."); idx != -1 {
		name = name[:idx]
	}
	parts := strings.Split(name, "_")
	if len(parts) < 6 {
		return "", false
	}
	octets := parts[len(parts)-6 : len(parts)-2]
	for _, o := range octets {
		if !isOctet(o) {
			return "", false
		}
	}
	return strings.Join(octets, "."), true
}

func isOctet(s string) bool {
	if len(s) == 0 || len(s) > 3 {
		return false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
		n = n*10 + int(c-'0')
	}
	return n <= 255
}

func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}

// col resolves a header name to its column, or -1 when the export does
// not carry that column.
func col(idx map[string]int, name string) int {
	if i, ok := idx[name]; ok {
		return i
	}
	return -1
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func fieldOr(row []string, i int, fallback string) string {
	v := field(row, i)
	if v == "" {
		return fallback
	}
	return v
}
