package tree

import (
	"errors"
	"fmt"
)

type fixtureRow struct {
	id         string
	label      string
	expandable bool
	image      *Image
	kids       []*fixtureRow
}

func row(id string, kids ...*fixtureRow) *fixtureRow {
	return &fixtureRow{id: id, expandable: len(kids) > 0, kids: kids}
}

type fixtureModel struct {
	roots      []*fixtureRow
	childCalls map[string]int
}

func newFixtureModel(roots ...*fixtureRow) *fixtureModel {
	return &fixtureModel{roots: roots, childCalls: map[string]int{}}
}

func (m *fixtureModel) at(pos Position) *fixtureRow {
	sibs := m.roots
	var cur *fixtureRow
	for _, i := range pos {
		if i < 0 || i >= len(sibs) {
			return nil
		}
		cur = sibs[i]
		sibs = cur.kids
	}
	return cur
}

func (m *fixtureModel) ChildCount(pos Position) int {
	m.childCalls[pos.String()]++
	if len(pos) == 0 {
		return len(m.roots)
	}
	if r := m.at(pos); r != nil {
		return len(r.kids)
	}
	return 0
}

func (m *fixtureModel) ItemID(pos Position) string {
	if r := m.at(pos); r != nil {
		return r.id
	}
	return ""
}

func (m *fixtureModel) IsExpandable(pos Position) bool {
	r := m.at(pos)
	return r != nil && r.expandable
}

func (m *fixtureModel) Image(pos Position) *Image {
	if r := m.at(pos); r != nil {
		return r.image
	}
	return nil
}

func (m *fixtureModel) Label(pos Position) string {
	if r := m.at(pos); r != nil {
		return r.label
	}
	return ""
}

// locatingModel adds Locator to fixtureModel.
type locatingModel struct {
	*fixtureModel
}

func (m locatingModel) Locate(id string) (Position, bool) {
	var found Position
	var walk func(rows []*fixtureRow, pos Position) bool
	walk = func(rows []*fixtureRow, pos Position) bool {
		for i, r := range rows {
			p := pos.Child(i)
			if r.id == id {
				found = p
				return true
			}
			if walk(r.kids, p) {
				return true
			}
		}
		return false
	}
	if walk(m.roots, nil) {
		return found, true
	}
	return nil, false
}

type recordingWarner struct {
	msgs []string
}

func (w *recordingWarner) Warningf(format string, args ...any) {
	w.msgs = append(w.msgs, fmt.Sprintf(format, args...))
}

// sampleModel:
//
//	a            [0]
//	  a1         [0,0]
//	  a2         [0,1]
//	    a2x      [0,1,0]
//	b            [1]
//	c            [2]
//	  c0         [2,0]
//	  c1         [2,1]
//	    c1a      [2,1,0]
//	      c1a1   [2,1,0,0]
func sampleModel() *fixtureModel {
	return newFixtureModel(
		row("a", row("a1"), row("a2", row("a2x"))),
		row("b"),
		row("c", row("c0"), row("c1", row("c1a", row("c1a1")))),
	)
}

func asProtocolError(err error) (*ProtocolError, bool) {
	var pe *ProtocolError
	ok := errors.As(err, &pe)
	return pe, ok
}
