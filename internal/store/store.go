/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package store owns the markers and tags of one annotated image. It knows nothing about
// undo; callers record a history entry before each mutation.
package store

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"annotate/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDegenerate   = errors.New("degenerate geometry")
	ErrKindMismatch = errors.New("geometry kind does not match marker")
)

// State is a deep copy of the undoable part of a store.
type State struct {
	Markers  []domain.Marker
	Tags     []domain.Tag
	Counters map[domain.Kind]int
}

// Store holds markers in creation order together with tags and per-kind name counters.
// Active and hidden tag sets are view state and are not part of State.
type Store struct {
	markers  []domain.Marker
	tags     []domain.Tag
	counters map[domain.Kind]int
	active   []string
	hidden   map[string]bool
}

func New() *Store {
	return &Store{counters: map[domain.Kind]int{}, hidden: map[string]bool{}}
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.markers, func(m domain.Marker) bool { return m.ID == id })
}

func (s *Store) tagIndex(id string) int {
	return slices.IndexFunc(s.tags, func(t domain.Tag) bool { return t.ID == id })
}

// CreateMarker appends a marker carrying a copy of the active tags and returns its id.
// An empty name is replaced by "<Kind> <n>". Degenerate lines and rectangles are rejected.
func (s *Store) CreateMarker(g domain.Geometry, name string) (string, error) {
	if g == nil {
		return "", fmt.Errorf("create marker: %w", ErrDegenerate)
	}
	if g.Degenerate() {
		return "", fmt.Errorf("create %s: %w", g.Kind(), ErrDegenerate)
	}
	k := g.Kind()
	s.counters[k]++
	if strings.TrimSpace(name) == "" {
		name = fmt.Sprintf("%s %d", k.Title(), s.counters[k])
	}
	m := domain.Marker{ID: domain.NewID(), Name: name, Geom: g, TagIDs: slices.Clone(s.active)}
	s.markers = append(s.markers, m)
	return m.ID, nil
}

func (s *Store) DeleteMarker(id string) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("marker %s: %w", id, ErrNotFound)
	}
	s.markers = slices.Delete(s.markers, i, i+1)
	return nil
}

// DeleteMarkers removes every listed marker; unknown ids are ignored. It returns the number removed.
func (s *Store) DeleteMarkers(ids []string) int {
	before := len(s.markers)
	s.markers = slices.DeleteFunc(s.markers, func(m domain.Marker) bool { return slices.Contains(ids, m.ID) })
	return before - len(s.markers)
}

// Clear removes all markers. Tags and counters are kept.
func (s *Store) Clear() { s.markers = nil }

// SetMarkerGeometry replaces the geometry in place. No size check is applied.
func (s *Store) SetMarkerGeometry(id string, g domain.Geometry) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("marker %s: %w", id, ErrNotFound)
	}
	if g == nil || g.Kind() != s.markers[i].Kind() {
		return fmt.Errorf("marker %s: %w", id, ErrKindMismatch)
	}
	s.markers[i].Geom = g
	return nil
}

func (s *Store) RenameMarker(id, name string) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("marker %s: %w", id, ErrNotFound)
	}
	s.markers[i].Name = name
	return nil
}

// ToggleMarkerTag attaches tagID to the marker or detaches it when already present.
func (s *Store) ToggleMarkerTag(id, tagID string) error {
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("marker %s: %w", id, ErrNotFound)
	}
	if s.tagIndex(tagID) < 0 {
		return fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
	}
	m := &s.markers[i]
	if j := slices.Index(m.TagIDs, tagID); j >= 0 {
		m.TagIDs = slices.Delete(slices.Clone(m.TagIDs), j, j+1)
	} else {
		m.TagIDs = append(slices.Clone(m.TagIDs), tagID)
	}
	return nil
}

// AddTag creates a tag. An empty colour picks the next palette swatch.
func (s *Store) AddTag(name, color string) string {
	if strings.TrimSpace(color) == "" {
		color = domain.PaletteColor(len(s.tags))
	}
	t := domain.Tag{ID: domain.NewID(), Name: name, Color: domain.SanitizeColor(color)}
	s.tags = append(s.tags, t)
	return t.ID
}

func (s *Store) RenameTag(id, name string) error {
	i := s.tagIndex(id)
	if i < 0 {
		return fmt.Errorf("tag %s: %w", id, ErrNotFound)
	}
	s.tags[i].Name = name
	return nil
}

func (s *Store) SetTagColor(id, color string) error {
	i := s.tagIndex(id)
	if i < 0 {
		return fmt.Errorf("tag %s: %w", id, ErrNotFound)
	}
	s.tags[i].Color = domain.SanitizeColor(color)
	return nil
}

// DeleteTag removes the tag and every reference to it.
func (s *Store) DeleteTag(id string) error {
	i := s.tagIndex(id)
	if i < 0 {
		return fmt.Errorf("tag %s: %w", id, ErrNotFound)
	}
	s.tags = slices.Delete(s.tags, i, i+1)
	for j := range s.markers {
		if s.markers[j].HasTag(id) {
			s.markers[j].TagIDs = slices.DeleteFunc(slices.Clone(s.markers[j].TagIDs), func(t string) bool { return t == id })
		}
	}
	s.pruneViewSets()
	return nil
}

// ToggleActiveTag flips membership of tagID in the set applied to new markers.
func (s *Store) ToggleActiveTag(tagID string) error {
	if s.tagIndex(tagID) < 0 {
		return fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
	}
	if j := slices.Index(s.active, tagID); j >= 0 {
		s.active = slices.Delete(s.active, j, j+1)
	} else {
		s.active = append(s.active, tagID)
	}
	return nil
}

// ToggleHiddenTag flips whether markers carrying tagID are hidden.
func (s *Store) ToggleHiddenTag(tagID string) error {
	if s.tagIndex(tagID) < 0 {
		return fmt.Errorf("tag %s: %w", tagID, ErrNotFound)
	}
	if s.hidden[tagID] {
		delete(s.hidden, tagID)
	} else {
		s.hidden[tagID] = true
	}
	return nil
}

func (s *Store) ActiveTagIDs() []string { return slices.Clone(s.active) }

func (s *Store) HiddenTagIDs() []string {
	out := make([]string, 0, len(s.hidden))
	for _, t := range s.tags {
		if s.hidden[t.ID] {
			out = append(out, t.ID)
		}
	}
	return out
}

func (s *Store) IsTagHidden(tagID string) bool { return s.hidden[tagID] }

// IsHidden reports whether m is excluded from hit-testing and rendering: it must carry at
// least one tag and every one of its tags must be hidden.
func (s *Store) IsHidden(m domain.Marker) bool {
	if len(m.TagIDs) == 0 {
		return false
	}
	for _, t := range m.TagIDs {
		if !s.hidden[t] {
			return false
		}
	}
	return true
}

// HiddenFunc returns IsHidden as a predicate.
func (s *Store) HiddenFunc() func(domain.Marker) bool { return s.IsHidden }

// Markers returns copies of all markers in creation order.
func (s *Store) Markers() []domain.Marker {
	out := make([]domain.Marker, len(s.markers))
	for i, m := range s.markers {
		out[i] = m.Clone()
	}
	return out
}

func (s *Store) Len() int { return len(s.markers) }

func (s *Store) Marker(id string) (domain.Marker, bool) {
	i := s.indexOf(id)
	if i < 0 {
		return domain.Marker{}, false
	}
	return s.markers[i].Clone(), true
}

func (s *Store) Tags() []domain.Tag { return slices.Clone(s.tags) }

func (s *Store) Tag(id string) (domain.Tag, bool) {
	i := s.tagIndex(id)
	if i < 0 {
		return domain.Tag{}, false
	}
	return s.tags[i], true
}

// TagByName returns the first tag with the given name.
func (s *Store) TagByName(name string) (domain.Tag, bool) {
	for _, t := range s.tags {
		if t.Name == name {
			return t, true
		}
	}
	return domain.Tag{}, false
}

// Counter returns the current default-name counter of k.
func (s *Store) Counter(k domain.Kind) int { return s.counters[k] }

// Capture returns a deep copy of markers, tags and counters.
func (s *Store) Capture() State {
	c := make(map[domain.Kind]int, len(s.counters))
	for k, v := range s.counters {
		c[k] = v
	}
	return State{Markers: s.Markers(), Tags: s.Tags(), Counters: c}
}

// Restore replaces markers, tags and counters with a copy of st and prunes view sets.
func (s *Store) Restore(st State) {
	s.markers = make([]domain.Marker, len(st.Markers))
	for i, m := range st.Markers {
		s.markers[i] = m.Clone()
	}
	s.tags = slices.Clone(st.Tags)
	s.counters = make(map[domain.Kind]int, len(st.Counters))
	for k, v := range st.Counters {
		s.counters[k] = v
	}
	s.pruneViewSets()
}

// Replace swaps in imported content and resynchronises the name counters.
func (s *Store) Replace(markers []domain.Marker, tags []domain.Tag) {
	s.markers = make([]domain.Marker, len(markers))
	for i, m := range markers {
		s.markers[i] = m.Clone()
	}
	s.tags = slices.Clone(tags)
	s.pruneViewSets()
	s.ResyncCounters()
}

var defaultName = map[domain.Kind]*regexp.Regexp{}

func init() {
	for _, k := range domain.Kinds {
		defaultName[k] = regexp.MustCompile(`^` + k.Title() + ` (\d+)$`)
	}
}

// ResyncCounters raises each kind's counter to the largest suffix among default-style names.
// Counters are never lowered.
func (s *Store) ResyncCounters() {
	for _, m := range s.markers {
		k := m.Kind()
		sub := defaultName[k].FindStringSubmatch(m.Name)
		if sub == nil {
			continue
		}
		n, err := strconv.Atoi(sub[1])
		if err != nil {
			continue
		}
		if n > s.counters[k] {
			s.counters[k] = n
		}
	}
}

// Reset empties the store for a new image.
func (s *Store) Reset() {
	s.markers = nil
	s.tags = nil
	s.counters = map[domain.Kind]int{}
	s.active = nil
	s.hidden = map[string]bool{}
}

func (s *Store) pruneViewSets() {
	s.active = slices.DeleteFunc(s.active, func(id string) bool { return s.tagIndex(id) < 0 })
	for id := range s.hidden {
		if s.tagIndex(id) < 0 {
			delete(s.hidden, id)
		}
	}
}
