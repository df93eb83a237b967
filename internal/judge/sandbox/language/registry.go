package language

import (
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/internal/judge/sandbox/runner"
)

// Registry holds one adapter per supported language.
type Registry struct {
	adapters map[model.Language]Adapter
	profiles Profiles
}

// NewRegistry builds the JAVA, PYTHON and CPP adapters over r. Overrides are
// keyed by the wire language name.
func NewRegistry(r runner.Runner, profiles Profiles, overrides map[string]Override) *Registry {
	builtins := []struct {
		lang     model.Language
		spec     profile.LanguageSpec
		scaffold string
	}{
		{model.LanguageJava, javaSpec(), javaScaffold},
		{model.LanguagePython, pythonSpec(), pythonScaffold},
		{model.LanguageCPP, cppSpec(), cppScaffold},
	}
	reg := &Registry{adapters: make(map[model.Language]Adapter, len(builtins)), profiles: profiles}
	for _, b := range builtins {
		o := overrides[string(b.lang)]
		reg.adapters[b.lang] = &adapter{
			lang:     b.lang,
			spec:     o.apply(b.spec),
			scaffold: b.scaffold,
			runner:   r,
			profiles: profiles,
			limits:   o.CompileLimits,
		}
	}
	return reg
}

// Get returns the adapter for lang.
func (r *Registry) Get(lang model.Language) (Adapter, bool) {
	a, ok := r.adapters[lang]
	return a, ok
}

// All returns the adapters in display order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, lang := range model.SupportedLanguages {
		if a, ok := r.adapters[lang]; ok {
			out = append(out, a)
		}
	}
	return out
}

// RegisterProfiles binds the compile and run isolation settings of every
// language on resolver.
func (r *Registry) RegisterProfiles(resolver *profile.StaticResolver) {
	for lang := range r.adapters {
		resolver.Register(string(lang), r.profiles.Compile)
		resolver.Register(string(lang), r.profiles.Run)
	}
}
