// testing_helpers_test.go: fixtures shared by the package tests
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	timeoutShort = 2 * time.Second
	tickShort    = 10 * time.Millisecond
)

func enumStorage() *FieldDef {
	return &FieldDef{
		Name:       EnumStorageField,
		Attributes: FieldAttrPublic | FieldAttrSpecialName | FieldAttrRTSpecialName,
		FieldType:  "System.Int32",
	}
}

func enumMember(enum, name string, value int64) *FieldDef {
	return &FieldDef{
		Name:        name,
		Attributes:  EnumMemberAttrs,
		FieldType:   enum,
		Constant:    value,
		HasConstant: true,
	}
}

func enumType(name string, members ...string) *TypeDef {
	t := &TypeDef{
		Name:     name,
		Flags:    TypeAttrPublic | TypeAttrNested | TypeAttrSealed,
		BaseType: "System.Enum",
		Fields:   []*FieldDef{enumStorage()},
	}
	for i, m := range members {
		t.Fields = append(t.Fields, enumMember(name, m, int64(i)))
	}
	return t
}

// newHostModule builds a host with both hook sites and an Enums container.
func newHostModule() *Module {
	return &Module{
		Name:           "Assembly-CSharp",
		RuntimeVersion: "v4.0.30319",
		AssemblyRefs:   []string{CoreLibrary, "UnityEngine.CoreModule"},
		MemberRefs: []*MemberRef{
			{Kind: RefMethod, Assembly: "UnityEngine.CoreModule", DeclaringType: "UnityEngine.Application", Name: "Quit"},
		},
		Types: []*TypeDef{
			{
				Name:     "GameVersionLabelUI",
				Flags:    TypeAttrPublic,
				BaseType: "UnityEngine.MonoBehaviour",
				Fields: []*FieldDef{
					{Name: "versionLabelText", Attributes: FieldAttrPrivate, FieldType: "UnityEngine.UI.Text"},
				},
				Methods: []*MethodDef{
					{Name: "Awake", Body: []Instruction{{Op: OpNop}, {Op: OpRet}}, MaxStack: 8},
				},
			},
			{
				Name:     "Utils",
				Flags:    TypeAttrPublic | TypeAttrAbstract | TypeAttrSealed,
				BaseType: "System.Object",
				Methods: []*MethodDef{
					{Name: "QuitGame", Body: []Instruction{{Op: OpCall, Token: 1}, {Op: OpRet}}, MaxStack: 8},
				},
			},
			{
				Name:     HostEnumContainer,
				Flags:    TypeAttrPublic,
				BaseType: "System.Object",
				Nested: []*TypeDef{
					enumType("BusinessType", "Airline", "Cargo"),
					enumType("ProductType", "Coffee"),
				},
			},
		},
	}
}

// newEnumMod builds a mod library declaring <name>.EnumAdditions.
func newEnumMod(name string, exts ...EnumExtension) *Module {
	additions := &TypeDef{
		Namespace: name,
		Name:      EnumAdditionsType,
		Flags:     TypeAttrPublic,
		BaseType:  "System.Object",
	}
	for _, ext := range exts {
		additions.Nested = append(additions.Nested, enumType(ext.Target, ext.Fields...))
	}
	return &Module{
		Name:         name,
		AssemblyRefs: []string{CoreLibrary},
		Types:        []*TypeDef{additions},
	}
}

func writeModule(t *testing.T, path string, m *Module) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0750))
	require.NoError(t, os.WriteFile(path, EncodeModule(m), 0600))
}

func readModule(t *testing.T, path string) *Module {
	t.Helper()
	data, err := os.ReadFile(path) // #nosec G304 -- test fixture
	require.NoError(t, err)
	m, err := DecodeModule(data)
	require.NoError(t, err)
	return m
}

func findMethod(t *testing.T, m *Module, typeName, method string) *MethodDef {
	t.Helper()
	typ, err := m.SingleType(typeName)
	require.NoError(t, err)
	md, err := typ.SingleMethod(method)
	require.NoError(t, err)
	return md
}

func fieldValues(t *TypeDef) map[string]int64 {
	out := make(map[string]int64)
	for _, f := range t.Fields {
		if f.IsStorage() {
			continue
		}
		out[f.Name] = f.Constant
	}
	return out
}

// gameFixture lays out a game install with a host assembly in a temp dir.
type gameFixture struct {
	Root   string
	Config PatchConfig
}

func newGameFixture(t *testing.T) *gameFixture {
	t.Helper()
	root := t.TempDir()

	cfg := DefaultPatchConfig()
	cfg.GameDirectory = filepath.Join(root, "game")
	cfg.SteamDirectory = filepath.Join(root, "steam")
	cfg.EnumModsPath = filepath.Join(root, "enum-mods")
	cfg.CompanionSource = filepath.Join(root, "dist")
	cfg.LaunchGame = false
	cfg.Launch.PollInterval = 5 * time.Millisecond
	cfg.Launch.ExitPollInterval = 5 * time.Millisecond

	writeModule(t, cfg.AssemblyPath(), newHostModule())
	return &gameFixture{Root: root, Config: cfg}
}

func (g *gameFixture) writeCompanions(t *testing.T) {
	t.Helper()
	opts := DefaultInjectorOptions(PlatformLibExtension())
	require.NoError(t, os.MkdirAll(g.Config.CompanionSource, 0750))
	for _, name := range CompanionFiles(opts) {
		require.NoError(t, os.WriteFile(filepath.Join(g.Config.CompanionSource, name), []byte(name), 0600))
	}
}

func (g *gameFixture) addEnumMod(t *testing.T, name string, exts ...EnumExtension) {
	t.Helper()
	path := filepath.Join(g.Config.EnumModsPath, name, name+PlatformLibExtension())
	writeModule(t, path, newEnumMod(name, exts...))
}

// fakeLoader serves LoadedPlugins from factories keyed by mod name. A mod
// without a factory fails its contract check.
type fakeLoader struct {
	ext  string
	kind string

	mu        sync.Mutex
	factories map[string]func() (*LoadedPlugin, error)
	loads     []string
}

func newFakeLoader(ext, kind string) *fakeLoader {
	return &fakeLoader{
		ext:       ext,
		kind:      kind,
		factories: make(map[string]func() (*LoadedPlugin, error)),
	}
}

func (f *fakeLoader) Kind() string      { return f.kind }
func (f *fakeLoader) Extension() string { return f.ext }

func (f *fakeLoader) Load(name, path string) (*LoadedPlugin, error) {
	f.mu.Lock()
	factory := f.factories[name]
	f.loads = append(f.loads, name)
	f.mu.Unlock()
	if factory == nil {
		return nil, NewPluginContractError(name, EntrySymbol)
	}
	return factory()
}

func (f *fakeLoader) serve(name string, factory func() (*LoadedPlugin, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.factories[name] = factory
}

// callLog records callback invocations across mods in call order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *callLog) recorder(call string) Callback {
	return func() error {
		c.add(call)
		return nil
	}
}

func (c *callLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// recordingPlugin returns a plugin whose callbacks and close are logged as
// "<name>.<callback>".
func recordingPlugin(log *callLog, name string) *LoadedPlugin {
	return &LoadedPlugin{
		Callbacks: Callbacks{
			GameLoading: log.recorder(name + "." + CallbackGameLoading),
			GameLoaded:  log.recorder(name + "." + CallbackGameLoaded),
			GameExiting: log.recorder(name + "." + CallbackGameExiting),
		},
		closer: func() error {
			log.add(name + ".Close")
			return nil
		},
	}
}
