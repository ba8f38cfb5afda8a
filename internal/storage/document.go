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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"annotate/internal/domain"
	"annotate/internal/geom"
)

// ErrMalformed wraps every decode or validation failure of a document.
var ErrMalformed = errors.New("malformed annotation document")

// Document is the on-disk JSON form of one image's annotations.
type Document struct {
	Metadata    Metadata     `json:"metadata"`
	Tags        []TagDoc     `json:"tags"`
	Annotations []Annotation `json:"annotations"`
}

type Metadata struct {
	Image    string `json:"image"`
	Exported string `json:"exported"` // RFC 3339
}

type TagDoc struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Annotation is one marker. Coords is [x,y] for points and [[x1,y1],[x2,y2]] otherwise.
type Annotation struct {
	Type   string          `json:"type"`
	Name   string          `json:"name"`
	Coords json.RawMessage `json:"coords"`
	Tags   []string        `json:"tags"`
}

// Encode builds a document from store content. Tag ids are written as tag names; ids that
// match no tag are dropped.
func Encode(markers []domain.Marker, tags []domain.Tag, image string, now time.Time) (*Document, error) {
	names := make(map[string]string, len(tags))
	d := &Document{
		Metadata:    Metadata{Image: image, Exported: now.UTC().Format(time.RFC3339)},
		Tags:        make([]TagDoc, 0, len(tags)),
		Annotations: make([]Annotation, 0, len(markers)),
	}
	for _, t := range tags {
		names[t.ID] = t.Name
		d.Tags = append(d.Tags, TagDoc{Name: t.Name, Color: t.Color})
	}
	for _, m := range markers {
		a := Annotation{Type: m.Kind().String(), Name: m.Name, Tags: []string{}}
		for _, id := range m.TagIDs {
			if n, ok := names[id]; ok {
				a.Tags = append(a.Tags, n)
			}
		}
		pts := m.Geom.Points()
		var coords any
		if len(pts) == 1 {
			coords = [2]float64{pts[0].X, pts[0].Y}
		} else {
			coords = [2][2]float64{{pts[0].X, pts[0].Y}, {pts[1].X, pts[1].Y}}
		}
		raw, err := json.Marshal(coords)
		if err != nil {
			return nil, fmt.Errorf("encode %s %q: %w", a.Type, m.Name, err)
		}
		a.Coords = raw
		d.Annotations = append(d.Annotations, a)
	}
	return d, nil
}

// Marshal renders the document as indented JSON.
func (d *Document) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode validates data against the document schema and parses it. A bare array of
// annotations is accepted as a document without tags or metadata.
func Decode(data []byte) (*Document, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	var d Document
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &d.Annotations); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &d, nil
	}
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &d, nil
}

// Build converts the document into candidate markers and tags with fresh ids. Nothing is
// committed anywhere; callers replace store content only when Build succeeds. Tag references
// resolve by name to the first tag carrying it; unknown names are dropped.
func (d *Document) Build() ([]domain.Marker, []domain.Tag, error) {
	tags := make([]domain.Tag, 0, len(d.Tags))
	byName := make(map[string]string, len(d.Tags))
	for _, td := range d.Tags {
		t := domain.Tag{ID: domain.NewID(), Name: td.Name, Color: domain.SanitizeColor(td.Color)}
		tags = append(tags, t)
		if _, dup := byName[td.Name]; !dup {
			byName[td.Name] = t.ID
		}
	}
	markers := make([]domain.Marker, 0, len(d.Annotations))
	for i, a := range d.Annotations {
		g, err := a.geometry()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: annotation %d: %v", ErrMalformed, i, err)
		}
		m := domain.Marker{ID: domain.NewID(), Name: a.Name, Geom: g}
		for _, n := range a.Tags {
			id, ok := byName[n]
			if !ok || m.HasTag(id) {
				continue
			}
			m.TagIDs = append(m.TagIDs, id)
		}
		markers = append(markers, m)
	}
	return markers, tags, nil
}

func (a Annotation) geometry() (domain.Geometry, error) {
	k, ok := domain.ParseKind(a.Type)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", a.Type)
	}
	if k == domain.KindPoint {
		var p [2]float64
		if err := json.Unmarshal(a.Coords, &p); err != nil {
			return nil, fmt.Errorf("point coords: %v", err)
		}
		return domain.PointGeom{P: geom.Pt(p[0], p[1])}, nil
	}
	var pp [2][2]float64
	if err := json.Unmarshal(a.Coords, &pp); err != nil {
		return nil, fmt.Errorf("%s coords: %v", a.Type, err)
	}
	p1, p2 := geom.Pt(pp[0][0], pp[0][1]), geom.Pt(pp[1][0], pp[1][1])
	if k == domain.KindLine {
		return domain.LineGeom{P1: p1, P2: p2}, nil
	}
	return domain.NewRect(p1, p2), nil
}
