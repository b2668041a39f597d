// Package tutor routes a student question to a subject and streams the
// answer of the matching subject tutor.
package tutor

import "strings"

type Subject string

const (
	SubjectMath    Subject = "MATH"
	SubjectPhysics Subject = "PHYSICS"
	SubjectEnglish Subject = "ENGLISH"
	SubjectGeneral Subject = "GENERAL"
)

// Subjects lists every subject in routing priority order.
var Subjects = []Subject{SubjectMath, SubjectPhysics, SubjectEnglish, SubjectGeneral}

// ParseSubject accepts config keys such as "math" or "Physics". Unknown
// names map to GENERAL.
func ParseSubject(name string) Subject {
	switch Subject(strings.ToUpper(strings.TrimSpace(name))) {
	case SubjectMath:
		return SubjectMath
	case SubjectPhysics:
		return SubjectPhysics
	case SubjectEnglish:
		return SubjectEnglish
	default:
		return SubjectGeneral
	}
}

// Profile is the agent, model and prompt used for one subject.
type Profile struct {
	Agent  string
	Model  string
	Prompt string
}

// DefaultProfiles returns the built-in models and French system prompts.
func DefaultProfiles() map[Subject]Profile {
	return map[Subject]Profile{
		SubjectMath: {
			Agent:  "MATH",
			Model:  "qwen2.5:1.5b",
			Prompt: "Tu es un professeur de Mathématiques. Sois CONCIS. Utilise des phrases COURTES. Va droit au but.",
		},
		SubjectPhysics: {
			Agent:  "PHYSICS",
			Model:  "llama3.2:1b",
			Prompt: "Tu es un professeur de Physique. Sois CONCIS. Utilise des phrases COURTES. Va droit au but.",
		},
		SubjectEnglish: {
			Agent:  "ENGLISH",
			Model:  "gemma:2b",
			Prompt: "Tu es un professeur d'Anglais. Sois CONCIS. Utilise des phrases COURTES. Donne des exemples.",
		},
		SubjectGeneral: {
			Agent:  "GENERAL",
			Model:  "qwen2.5:1.5b",
			Prompt: "Tu es un assistant. Sois CONCIS. Utilise des phrases COURTES. Va droit au but.",
		},
	}
}

// MergeProfiles overlays per-subject model and prompt overrides keyed by
// subject name on top of base.
func MergeProfiles(base map[Subject]Profile, models, prompts map[string]string) map[Subject]Profile {
	out := make(map[Subject]Profile, len(base))
	for k, v := range base {
		out[k] = v
	}
	for name, model := range models {
		if strings.TrimSpace(model) == "" {
			continue
		}
		s := ParseSubject(name)
		p := out[s]
		p.Model = model
		out[s] = p
	}
	for name, prompt := range prompts {
		if strings.TrimSpace(prompt) == "" {
			continue
		}
		s := ParseSubject(name)
		p := out[s]
		p.Prompt = prompt
		out[s] = p
	}
	return out
}
