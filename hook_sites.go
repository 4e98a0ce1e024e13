// hook_sites.go: versioned table of host methods that receive hooks
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

// Position selects how a sequence is spliced into a method body.
type Position int

const (
	// PositionPrepend clears the body and rewrites it, keeping the
	// method's original terminal call where the site names one.
	PositionPrepend Position = iota

	// PositionAppend removes the trailing return and appends the sequence,
	// which ends in a fresh return.
	PositionAppend
)

func (p Position) String() string {
	if p == PositionAppend {
		return "append"
	}
	return "prepend"
}

// Stable hook site identifiers.
const (
	SiteEntry = "entry"
	SiteQuit  = "quit"
)

// InjectionPoint names a method in the host that receives a hook.
type InjectionPoint struct {
	ID         string
	TypeName   string
	MethodName string
	Position   Position
}

// HookSiteTable is the complete set of injection points for one host
// layout. Every site is resolved before any mutation happens.
type HookSiteTable struct {
	Version string
	Sites   []InjectionPoint

	// LabelType and LabelField locate the version label decorated by the
	// entry hook.
	LabelType  string
	LabelField string

	// Terminal is the call re-appended after the quit hook sequence.
	Terminal MemberRef
}

// DefaultHookSites returns the table for the supported game build.
func DefaultHookSites() HookSiteTable {
	return HookSiteTable{
		Version: HookSiteVersion,
		Sites: []InjectionPoint{
			{ID: SiteEntry, TypeName: "GameVersionLabelUI", MethodName: "Awake", Position: PositionAppend},
			{ID: SiteQuit, TypeName: "Utils", MethodName: "QuitGame", Position: PositionPrepend},
		},
		LabelType:  "GameVersionLabelUI",
		LabelField: "versionLabelText",
		Terminal: MemberRef{
			Kind:          RefMethod,
			Assembly:      "UnityEngine.CoreModule",
			DeclaringType: "UnityEngine.Application",
			Name:          "Quit",
		},
	}
}

// Site returns the injection point with the given id.
func (t HookSiteTable) Site(id string) (InjectionPoint, bool) {
	for _, s := range t.Sites {
		if s.ID == id {
			return s, true
		}
	}
	return InjectionPoint{}, false
}

// ResolvedSite binds an injection point to the method it names.
type ResolvedSite struct {
	Point  InjectionPoint
	Type   *TypeDef
	Method *MethodDef
}

// Resolve locates every site in m. Each must match exactly one type and
// one method; any miss or ambiguity fails the whole table.
func (t HookSiteTable) Resolve(m *Module) ([]ResolvedSite, error) {
	resolved := make([]ResolvedSite, 0, len(t.Sites))
	for _, site := range t.Sites {
		typ, err := m.SingleType(site.TypeName)
		if err != nil {
			return nil, NewSiteNotFoundError(site.ID, err)
		}
		method, err := typ.SingleMethod(site.MethodName)
		if err != nil {
			return nil, NewSiteNotFoundError(site.ID, err)
		}
		resolved = append(resolved, ResolvedSite{Point: site, Type: typ, Method: method})
	}
	return resolved, nil
}
