// injection.go: splices loader hooks into the host's instruction streams
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

// InjectorOptions names the companion files and entry points the injected
// sequences reach for.
type InjectorOptions struct {
	// Extension is the platform library extension, e.g. ".dll".
	Extension string

	// Debug is passed to the loader entry point as its only argument.
	Debug bool

	// CompanionDir is the directory, relative to the game, holding the
	// runtime libraries.
	CompanionDir string

	LoaderLibrary    string
	InterceptLibrary string
	LoaderType       string
	EntryMethod      string
	ExitMethod       string
}

// DefaultInjectorOptions returns the options matching the shipped runtime.
func DefaultInjectorOptions(extension string) InjectorOptions {
	return InjectorOptions{
		Extension:        extension,
		CompanionDir:     "ModLoader",
		LoaderLibrary:    "MLL",
		InterceptLibrary: "Intercept",
		LoaderType:       "ModLoaderLibrary.ModLoader",
		EntryMethod:      "Entry",
		ExitMethod:       "Exit",
	}
}

func (o InjectorOptions) loaderPath() string {
	return o.CompanionDir + "/" + o.LoaderLibrary + o.Extension
}

func (o InjectorOptions) interceptPath() string {
	return o.CompanionDir + "/" + o.InterceptLibrary + o.Extension
}

// Reflection and runtime members the hooks call.
var (
	refLoadFile = MemberRef{Kind: RefMethod, Assembly: CoreLibrary,
		DeclaringType: "System.Reflection.Assembly", Name: "LoadFile", Params: 1, Returns: true}
	refAssemblyGetType = MemberRef{Kind: RefMethod, Assembly: CoreLibrary,
		DeclaringType: "System.Reflection.Assembly", Name: "GetType", Params: 1, HasThis: true, Returns: true}
	refTypeGetMethod = MemberRef{Kind: RefMethod, Assembly: CoreLibrary,
		DeclaringType: "System.Type", Name: "GetMethod", Params: 1, HasThis: true, Returns: true}
	refMethodInvoke = MemberRef{Kind: RefMethod, Assembly: CoreLibrary,
		DeclaringType: "System.Reflection.MethodBase", Name: "Invoke", Params: 2, HasThis: true, Returns: true}
	refStringConcat = MemberRef{Kind: RefMethod, Assembly: CoreLibrary,
		DeclaringType: "System.String", Name: "Concat", Params: 2, Returns: true}
	refObjectType  = MemberRef{Kind: RefType, Assembly: CoreLibrary, DeclaringType: "System.Object"}
	refBooleanType = MemberRef{Kind: RefType, Assembly: CoreLibrary, DeclaringType: "System.Boolean"}
	refGetText     = MemberRef{Kind: RefMethod, Assembly: "UnityEngine.UI",
		DeclaringType: "UnityEngine.UI.Text", Name: "get_text", HasThis: true, Returns: true}
	refSetText = MemberRef{Kind: RefMethod, Assembly: "UnityEngine.UI",
		DeclaringType: "UnityEngine.UI.Text", Name: "set_text", Params: 1, HasThis: true}
)

// InjectionReport summarises a successful injection.
type InjectionReport struct {
	TableVersion string
	Sites        []string
	Instructions int
}

// Injector plants the entry and quit hooks described by a HookSiteTable.
type Injector struct {
	table  HookSiteTable
	opts   InjectorOptions
	logger Logger
}

// NewInjector creates an injector for table.
func NewInjector(table HookSiteTable, opts InjectorOptions, logger Logger) *Injector {
	if logger == nil {
		logger = DefaultLogger()
	}
	return &Injector{table: table, opts: opts, logger: logger}
}

type plannedEdit struct {
	site     ResolvedSite
	body     []Instruction
	maxStack int
	added    int
}

// Inject resolves every hook site, builds and verifies all sequences, and
// only then rewrites the method bodies. A lookup failure, an existing hook
// or an unbalanced sequence leaves the method bodies untouched.
func (in *Injector) Inject(m *Module) (InjectionReport, error) {
	report := InjectionReport{TableVersion: in.table.Version}

	sites, err := in.table.Resolve(m)
	if err != nil {
		return report, err
	}

	labelType, err := m.SingleType(in.table.LabelType)
	if err != nil {
		return report, NewSiteNotFoundError(SiteEntry, err)
	}
	if labelType.FindField(in.table.LabelField) == nil {
		return report, NewFieldNotFoundError(in.table.LabelType, in.table.LabelField)
	}

	for _, s := range sites {
		if containsCompanionLoad(s.Method.Body, in.opts.CompanionDir) {
			return report, NewAlreadyPatchedError(s.Point.ID)
		}
	}

	// Planning imports member references; drop them again if any site fails.
	refCount, asmCount := len(m.MemberRefs), len(m.AssemblyRefs)
	edits := make([]plannedEdit, 0, len(sites))
	for _, s := range sites {
		var edit plannedEdit
		switch s.Point.Position {
		case PositionAppend:
			edit, err = in.planAppend(m, s)
		default:
			edit, err = in.planPrepend(m, s)
		}
		if err != nil {
			m.MemberRefs = m.MemberRefs[:refCount]
			m.AssemblyRefs = m.AssemblyRefs[:asmCount]
			return report, err
		}
		edits = append(edits, edit)
	}

	for _, e := range edits {
		e.site.Method.Body = e.body
		if e.maxStack > e.site.Method.MaxStack {
			e.site.Method.MaxStack = e.maxStack
		}
		report.Sites = append(report.Sites, e.site.Point.ID)
		report.Instructions += e.added
		in.logger.Debug("Hook injected",
			"site", e.site.Point.ID,
			"method", e.site.Type.FullName()+"::"+e.site.Method.Name,
			"position", e.site.Point.Position.String(),
			"instructions", e.added)
	}
	return report, nil
}

// planAppend drops the trailing return and appends the label decoration,
// the intercept library preload and the loader entry call.
func (in *Injector) planAppend(m *Module, s ResolvedSite) (plannedEdit, error) {
	last := -1
	for i := len(s.Method.Body) - 1; i >= 0; i-- {
		if s.Method.Body[i].Op == OpRet {
			last = i
			break
		}
	}
	if last < 0 {
		return plannedEdit{}, NewInvalidSequenceError(s.Point.ID, len(s.Method.Body), "method has no return to extend")
	}

	blocks := [][]Instruction{
		in.labelSequence(m),
		in.preloadSequence(m, in.opts.interceptPath()),
		append(in.loaderCallSequence(m, in.opts.EntryMethod, true), Instruction{Op: OpRet}),
	}

	body := make([]Instruction, 0, len(s.Method.Body)+32)
	body = append(body, s.Method.Body[:last]...)
	body = append(body, s.Method.Body[last+1:]...)

	edit := plannedEdit{site: s}
	for _, block := range blocks {
		depth, err := VerifyStack(m, s.Point.ID, block)
		if err != nil {
			return plannedEdit{}, err
		}
		if depth > edit.maxStack {
			edit.maxStack = depth
		}
		body = append(body, block...)
		edit.added += len(block)
	}
	edit.body = body
	return edit, nil
}

// planPrepend replaces the body with the loader exit call followed by the
// site's terminal call.
func (in *Injector) planPrepend(m *Module, s ResolvedSite) (plannedEdit, error) {
	seq := in.loaderCallSequence(m, in.opts.ExitMethod, false)
	seq = append(seq,
		Instruction{Op: OpCall, Token: m.ImportReference(in.table.Terminal)},
		Instruction{Op: OpRet},
	)
	depth, err := VerifyStack(m, s.Point.ID, seq)
	if err != nil {
		return plannedEdit{}, err
	}
	return plannedEdit{site: s, body: seq, maxStack: depth, added: len(seq)}, nil
}

// labelSequence appends " - ModLoader <version>" to the version label.
func (in *Injector) labelSequence(m *Module) []Instruction {
	field := MemberRef{
		Kind:          RefField,
		DeclaringType: in.table.LabelType,
		Name:          in.table.LabelField,
	}
	return []Instruction{
		{Op: OpLdarg0},
		{Op: OpLdfld, Token: m.ImportReference(field)},
		{Op: OpDup},
		{Op: OpCallvirt, Token: m.ImportReference(refGetText)},
		{Op: OpLdstr, Str: " - ModLoader " + Version},
		{Op: OpCall, Token: m.ImportReference(refStringConcat)},
		{Op: OpCallvirt, Token: m.ImportReference(refSetText)},
	}
}

// preloadSequence loads a library and discards the handle.
func (in *Injector) preloadSequence(m *Module, path string) []Instruction {
	return []Instruction{
		{Op: OpLdstr, Str: path},
		{Op: OpCall, Token: m.ImportReference(refLoadFile)},
		{Op: OpPop},
	}
}

// loaderCallSequence loads the runtime library, looks up the loader type
// and method, and invokes it with a null receiver. withDebugArg passes a
// single boxed boolean; otherwise no arguments are passed.
func (in *Injector) loaderCallSequence(m *Module, method string, withDebugArg bool) []Instruction {
	seq := []Instruction{
		{Op: OpLdstr, Str: in.opts.loaderPath()},
		{Op: OpCall, Token: m.ImportReference(refLoadFile)},
		{Op: OpLdstr, Str: in.opts.LoaderType},
		{Op: OpCallvirt, Token: m.ImportReference(refAssemblyGetType)},
		{Op: OpLdstr, Str: method},
		{Op: OpCallvirt, Token: m.ImportReference(refTypeGetMethod)},
		{Op: OpLdnull},
	}
	if withDebugArg {
		debug := int64(0)
		if in.opts.Debug {
			debug = 1
		}
		seq = append(seq,
			Instruction{Op: OpLdcI4, Int: 1},
			Instruction{Op: OpNewarr, Token: m.ImportReference(refObjectType)},
			Instruction{Op: OpDup},
			Instruction{Op: OpLdcI4, Int: 0},
			Instruction{Op: OpLdcI4, Int: debug},
			Instruction{Op: OpBox, Token: m.ImportReference(refBooleanType)},
			Instruction{Op: OpStelemRef},
		)
	} else {
		seq = append(seq, Instruction{Op: OpLdnull})
	}
	return append(seq,
		Instruction{Op: OpCallvirt, Token: m.ImportReference(refMethodInvoke)},
		Instruction{Op: OpPop},
	)
}
