package metadata

import (
	"strings"
	"testing"
)

const sampleCSV = `CAMERA IP,Old DISTRICT,NEW DISTRICT,MANDAL,Location Name,LATITUDE,LONGITUDE,TYPE OF CAMERA,TYPE OF Analytics
10.80.12.5,Warangal,Hanamkonda,Elkathurthy,Main Market Junction,18.0123,79.5611,PTZ,ANPR
10.80.14.9,Warangal,Warangal,Wardhannapet,Bus Stand,,,Fixed,FRS
`

func TestParse(t *testing.T) {
	table, err := Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Len() != 2 {
		t.Fatalf("len = %d, want 2", table.Len())
	}

	rec := table.Lookup("10.80.12.5")
	if rec.LocationName != "Main Market Junction" {
		t.Errorf("location = %q", rec.LocationName)
	}
	if rec.NewDistrict != "Hanamkonda" {
		t.Errorf("new district = %q", rec.NewDistrict)
	}
	if rec.Latitude != "18.0123" || rec.Longitude != "79.5611" {
		t.Errorf("coords = %q,%q", rec.Latitude, rec.Longitude)
	}
}

func TestParseMissingIPColumn(t *testing.T) {
	csv := `Location Name,NEW DISTRICT
Main Market Junction,Hanamkonda
`
	if _, err := Parse(strings.NewReader(csv)); err == nil {
		t.Error("expected error for header without CAMERA IP column")
	}
}

func TestParseMissingOptionalColumns(t *testing.T) {
	csv := `CAMERA IP,Location Name
10.80.12.5,Main Market Junction
`
	table, err := Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := table.Lookup("10.80.12.5")
	if rec.LocationName != "Main Market Junction" {
		t.Errorf("location = %q", rec.LocationName)
	}
	if rec.NewDistrict != "Unknown" || rec.Mandal != "Unknown" {
		t.Errorf("expected Unknown for absent columns, got %+v", rec)
	}
	if rec.Latitude != "" {
		t.Errorf("expected empty latitude, got %q", rec.Latitude)
	}
}

func TestLookupUnknown(t *testing.T) {
	table, err := Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec := table.Lookup("192.168.1.1")
	if rec.CameraIP != "192.168.1.1" {
		t.Errorf("ip = %q", rec.CameraIP)
	}
	if rec.LocationName != "Unknown" || rec.Mandal != "Unknown" {
		t.Errorf("expected Unknown placeholders, got %+v", rec)
	}
	if rec.Latitude != "" {
		t.Errorf("expected empty latitude, got %q", rec.Latitude)
	}
}

func TestExtractCameraIP(t *testing.T) {
	tests := []struct {
		filename string
		ip       string
		ok       bool
	}{
		{"Main_Market_Junction_10_80_12_5_20250114_093045.jpg", "10.80.12.5", true},
		{"BusStand_10_80_14_9_20250114_120000.jpeg", "10.80.14.9", true},
		{"10_80_14_9_20250114_120000.jpg", "10.80.14.9", true},
		{"80_14_9_20250114_120000.jpg", "", false},
		{"short.jpg", "", false},
		{"Junction_10_80_999_5_20250114_093045.jpg", "", false},
		{"Junction_10_80_ab_5_20250114_093045.jpg", "", false},
	}

	for _, tt := range tests {
		ip, ok := ExtractCameraIP(tt.filename)
		if ok != tt.ok || ip != tt.ip {
			t.Errorf("ExtractCameraIP(%q) = %q,%v; want %q,%v", tt.filename, ip, ok, tt.ip, tt.ok)
		}
	}
}
