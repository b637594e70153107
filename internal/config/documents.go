package config

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/optimization"
	"github.com/aristath/advisor/internal/modules/questionnaire"
	"github.com/aristath/advisor/internal/modules/scoring"
	"github.com/aristath/advisor/internal/modules/statistics"
	"github.com/aristath/advisor/internal/modules/universe"
	"github.com/aristath/advisor/pkg/embedded"
	"github.com/aristath/advisor/pkg/formulas"
)

// Paths of the embedded default documents
const (
	DefaultQuestionnairesDir    = "questionnaires"
	DefaultQuestionnairePath    = "questionnaires/risk_tolerance_v1.json"
	DefaultProfilesPath         = "defaults/risk_profiles.json"
	DefaultWeightedProfilesPath = "defaults/weighted_scoring.json"
	DefaultFundsPath            = "defaults/funds.json"
	DefaultOptimizationPath     = "defaults/optimization.json"
	DefaultPresetsPath          = "defaults/preset_portfolios.json"
)

// Documents is the validated configuration the engine runs on.
// It is built once at startup and shared read-only.
type Documents struct {
	Questionnaire  *questionnaire.Questionnaire
	Questionnaires *questionnaire.Library
	Profiles       *scoring.ProfileSet
	// MethodProfiles classify each scoring method's raw scores; the section
	// method uses Profiles.
	MethodProfiles map[scoring.Method]*scoring.ProfileSet
	ScoringMethod  scoring.Method
	Universe       *universe.Universe
	Optimization   optimization.Params
	Presets        *optimization.PresetSet
	Estimation     statistics.Options
}

// estimationSection is the optional "estimation" block of the optimization document
type estimationSection struct {
	Estimation *struct {
		ReturnKind      string   `json:"return_kind"`
		Frequency       string   `json:"frequency"`
		MinObservations int      `json:"min_observations"`
		Shrinkage       *float64 `json:"shrinkage"`
	} `json:"estimation"`
}

// LoadDocuments reads every document, falling back to the embedded defaults
func LoadDocuments(cfg *Config) (*Documents, error) {
	return loadDocuments(cfg, embedded.Files)
}

func loadDocuments(cfg *Config, defaults fs.FS) (*Documents, error) {
	var read readFunc = func(source, override, fallback string) ([]byte, error) {
		var (
			data []byte
			err  error
		)
		if override != "" {
			data, err = os.ReadFile(override)
		} else {
			data, err = fs.ReadFile(defaults, fallback)
		}
		if err != nil {
			return nil, &domain.ConfigurationError{Source: source, Msg: "cannot read document", Err: err}
		}
		return data, nil
	}

	data, err := read("questionnaire", cfg.QuestionnaireFile, DefaultQuestionnairePath)
	if err != nil {
		return nil, err
	}
	q, err := questionnaire.Parse(data)
	if err != nil {
		return nil, err
	}

	library, err := loadLibrary(cfg, defaults)
	if err != nil {
		return nil, err
	}
	library.Add(q)

	if data, err = read("risk_profiles", cfg.ProfilesFile, DefaultProfilesPath); err != nil {
		return nil, err
	}
	profiles, err := scoring.ParseProfiles(data)
	if err != nil {
		return nil, err
	}
	if err := profiles.CheckCoverage(q); err != nil {
		return nil, err
	}
	methodProfiles, err := loadMethodProfiles(cfg, q, profiles, read)
	if err != nil {
		return nil, err
	}

	if data, err = read("funds", cfg.FundsFile, DefaultFundsPath); err != nil {
		return nil, err
	}
	u, err := universe.Parse(data)
	if err != nil {
		return nil, err
	}

	if data, err = read("optimization", cfg.OptimizationFile, DefaultOptimizationPath); err != nil {
		return nil, err
	}
	params, err := optimization.ParseParams(data)
	if err != nil {
		return nil, err
	}
	// every method's profile set must name the profiles the equity bounds use
	for m, ps := range methodProfiles {
		if err := params.CheckProfiles(ps.Names()); err != nil {
			if m == scoring.MethodSection || cfg.profilesOverride(m) {
				return nil, err
			}
			delete(methodProfiles, m)
		}
	}

	method, err := scoring.ParseMethod(cfg.ScoringMethod)
	if err != nil {
		return nil, domain.ConfigErrorf("scoring", "SCORING_METHOD %q is not one of section, simple, weighted", cfg.ScoringMethod)
	}
	if method == "" {
		method = scoring.DefaultMethod
	}
	if _, ok := methodProfiles[method]; !ok {
		return nil, domain.ConfigErrorf("scoring", "SCORING_METHOD %q has no profile set covering questionnaire %q", method, q.ID)
	}

	if err := params.CheckCategories(u.Categories()); err != nil {
		return nil, err
	}

	estimation, err := parseEstimation(data, cfg)
	if err != nil {
		return nil, err
	}

	// The embedded presets allocate across the embedded universe only
	var presets *optimization.PresetSet
	if cfg.PresetsFile != "" || cfg.FundsFile == "" {
		presetData, err := read("presets", cfg.PresetsFile, DefaultPresetsPath)
		if err != nil {
			return nil, err
		}
		if presets, err = optimization.ParsePresets(presetData); err != nil {
			return nil, err
		}
		if err := presets.CheckFunds(u.Names()); err != nil {
			return nil, err
		}
	}
	if presets == nil && params.Method == optimization.MethodPreset {
		return nil, domain.ConfigErrorf("optimization", "method %q needs PRESETS_FILE with a custom fund universe", optimization.MethodPreset)
	}

	return &Documents{
		Questionnaire:  q,
		Questionnaires: library,
		Profiles:       profiles,
		MethodProfiles: methodProfiles,
		ScoringMethod:  method,
		Universe:       u,
		Optimization:   *params,
		Presets:        presets,
		Estimation:     estimation,
	}, nil
}

// profilesOverride reports whether m's profile set comes from a configured file
func (c *Config) profilesOverride(m scoring.Method) bool {
	switch m {
	case scoring.MethodSimple:
		return c.SimpleProfilesFile != ""
	case scoring.MethodWeighted:
		return c.WeightedProfilesFile != ""
	}
	return c.ProfilesFile != ""
}

type readFunc func(source, override, fallback string) ([]byte, error)

// loadMethodProfiles resolves the profile set of every scoring method.
// Configured files must cover the questionnaire; a default set that does not
// is left out and its method is unavailable.
func loadMethodProfiles(cfg *Config, q *questionnaire.Questionnaire, section *scoring.ProfileSet, read readFunc) (map[scoring.Method]*scoring.ProfileSet, error) {
	out := map[scoring.Method]*scoring.ProfileSet{scoring.MethodSection: section}

	add := func(m scoring.Method, source, override, fallback string, fallbackSet *scoring.ProfileSet) error {
		ps := fallbackSet
		if override != "" || fallbackSet == nil {
			data, err := read(source, override, fallback)
			if err != nil {
				return err
			}
			if ps, err = scoring.ParseProfiles(data); err != nil {
				return err
			}
		}
		if err := ps.CheckCoverageFor(q, m); err != nil {
			if cfg.profilesOverride(m) {
				return err
			}
			return nil
		}
		out[m] = ps
		return nil
	}

	if err := add(scoring.MethodSimple, "simple_profiles", cfg.SimpleProfilesFile, "", section); err != nil {
		return nil, err
	}
	if err := add(scoring.MethodWeighted, "weighted_profiles", cfg.WeightedProfilesFile, DefaultWeightedProfilesPath, nil); err != nil {
		return nil, err
	}
	return out, nil
}

// loadLibrary reads the embedded questionnaires, then layers QUESTIONNAIRES_DIR over them
func loadLibrary(cfg *Config, defaults fs.FS) (*questionnaire.Library, error) {
	library, err := questionnaire.LoadLibrary(defaults, DefaultQuestionnairesDir)
	if err != nil {
		return nil, err
	}
	if cfg.QuestionnairesDir == "" {
		return library, nil
	}
	if _, err := os.Stat(cfg.QuestionnairesDir); err != nil {
		return nil, &domain.ConfigurationError{Source: "questionnaire", Msg: "cannot read QUESTIONNAIRES_DIR", Err: err}
	}
	extra, err := questionnaire.LoadLibrary(os.DirFS(cfg.QuestionnairesDir), ".")
	if err != nil {
		return nil, err
	}
	library.Overlay(extra)
	return library, nil
}

func parseEstimation(data []byte, cfg *Config) (statistics.Options, error) {
	opts := statistics.DefaultOptions()
	if cfg.CacheExpiry > 0 {
		opts.CacheTTL = cfg.CacheExpiry
	}

	var section estimationSection
	if err := json.Unmarshal(data, &section); err != nil {
		return opts, &domain.ConfigurationError{Source: "optimization", Msg: "invalid estimation section", Err: err}
	}
	if e := section.Estimation; e != nil {
		if e.ReturnKind != "" {
			opts.ReturnKind = formulas.ReturnKind(e.ReturnKind)
		}
		if e.Frequency != "" {
			opts.Frequency = statistics.Frequency(e.Frequency)
		}
		if e.MinObservations != 0 {
			opts.MinObservations = e.MinObservations
		}
		if e.Shrinkage != nil {
			opts.Shrinkage = *e.Shrinkage
		}
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("estimation section: %w", err)
	}
	return opts, nil
}
