/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"errors"
	"testing"
	"time"

	"annotate/internal/domain"
	"annotate/internal/geom"
)

func sampleContent() ([]domain.Marker, []domain.Tag) {
	tags := []domain.Tag{
		{ID: "t1", Name: "roads", Color: "#ff0000"},
		{ID: "t2", Name: "rivers", Color: "#0000ff"},
	}
	markers := []domain.Marker{
		{ID: "m1", Name: "Point 1", Geom: domain.PointGeom{P: geom.Pt(12.5, 7)}, TagIDs: []string{"t2", "t1"}},
		{ID: "m2", Name: "X: 0 100", Geom: domain.LineGeom{P1: geom.Pt(100, 3), P2: geom.Pt(0.125, 3)}},
		{ID: "m3", Name: "Rect 1", Geom: domain.NewRect(geom.Pt(1, 2), geom.Pt(30, 40)), TagIDs: []string{"t1", "gone"}},
	}
	return markers, tags
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	markers, tags := sampleContent()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	doc, err := Encode(markers, tags, "plot.png", now)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if doc.Metadata.Image != "plot.png" || doc.Metadata.Exported != "2025-03-01T12:00:00Z" {
		t.Fatalf("unexpected metadata %+v", doc.Metadata)
	}
	data, err := doc.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	back, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	gotMarkers, gotTags, err := back.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(gotTags) != 2 || gotTags[0].Name != "roads" || gotTags[1].Color != "#0000ff" {
		t.Fatalf("tags not preserved: %+v", gotTags)
	}
	if gotTags[0].ID == "t1" {
		t.Fatalf("ids must be regenerated")
	}
	names := map[string]string{}
	for _, tg := range gotTags {
		names[tg.ID] = tg.Name
	}
	if len(gotMarkers) != len(markers) {
		t.Fatalf("marker count %d", len(gotMarkers))
	}
	for i, m := range gotMarkers {
		want := markers[i]
		if m.Name != want.Name || m.Kind() != want.Kind() {
			t.Fatalf("marker %d: got %q/%v want %q/%v", i, m.Name, m.Kind(), want.Name, want.Kind())
		}
		gp, wp := m.Geom.Points(), want.Geom.Points()
		for k := range wp {
			if gp[k] != wp[k] {
				t.Fatalf("marker %d point %d: got %v want %v", i, k, gp[k], wp[k])
			}
		}
	}
	if n := []string{names[gotMarkers[0].TagIDs[0]], names[gotMarkers[0].TagIDs[1]]}; n[0] != "rivers" || n[1] != "roads" {
		t.Fatalf("tag order not preserved: %v", n)
	}
	if len(gotMarkers[2].TagIDs) != 1 {
		t.Fatalf("dangling tag id should not be exported: %v", gotMarkers[2].TagIDs)
	}
}

func TestDecodeLegacyArray(t *testing.T) {
	data := []byte(`[{"type":"point","name":"a","coords":[1,2],"tags":["nope"]},
		{"type":"rect","name":"r","coords":[[10,10],[0,0]]}]`)
	doc, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode legacy: %v", err)
	}
	markers, tags, err := doc.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tags) != 0 || len(markers) != 2 {
		t.Fatalf("unexpected content: %d markers %d tags", len(markers), len(tags))
	}
	if len(markers[0].TagIDs) != 0 {
		t.Fatalf("unknown tag names must be dropped")
	}
	r := markers[1].Geom.(domain.RectGeom)
	if r.P1 != geom.Pt(0, 0) || r.P2 != geom.Pt(10, 10) {
		t.Fatalf("rect corners not ordered: %+v", r)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"annotations": [`,
		"missing coords":   `{"annotations":[{"type":"point","name":"x"}]}`,
		"bad type":         `{"annotations":[{"type":"circle","coords":[1,2]}]}`,
		"three numbers":    `{"annotations":[{"type":"point","coords":[1,2,3]}]}`,
		"no annotations":   `{"tags":[]}`,
		"string coords":    `[{"type":"line","coords":"0,0,1,1"}]`,
		"tag without name": `{"tags":[{"color":"#fff"}],"annotations":[]}`,
	}
	for name, in := range cases {
		if _, err := Decode([]byte(in)); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestBuildShapeMismatch(t *testing.T) {
	// schema allows either coordinate shape; Build checks it against the type
	doc, err := Decode([]byte(`{"annotations":[{"type":"line","name":"l","coords":[1,2]}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, _, err := doc.Build(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestBuildSanitizesColors(t *testing.T) {
	doc, err := Decode([]byte(`{"tags":[{"name":"a","color":"bogus"},{"name":"b","color":"#ABC"}],"annotations":[]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	_, tags, err := doc.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tags[0].Color != domain.DefaultTagColor || tags[1].Color != "#aabbcc" {
		t.Fatalf("colors not sanitized: %+v", tags)
	}
}

func TestBuildDuplicateTagNamesResolveToFirst(t *testing.T) {
	doc, err := Decode([]byte(`{"tags":[{"name":"dup","color":"#ff0000"},{"name":"dup","color":"#00ff00"}],
		"annotations":[{"type":"point","name":"p","coords":[1,2],"tags":["dup"]}]}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	markers, tags, err := doc.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("both tags should be imported, got %d", len(tags))
	}
	if len(markers) != 1 || len(markers[0].TagIDs) != 1 || markers[0].TagIDs[0] != tags[0].ID {
		t.Fatalf("annotation should reference the first tag named dup: %+v", markers)
	}
}
