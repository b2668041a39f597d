package tutor

import (
	"context"
	"errors"
	"testing"

	"github.com/harunnryd/tutorvoice/pkg/llm"
	"github.com/harunnryd/tutorvoice/pkg/providers/mock"
)

func TestRouteKeywords(t *testing.T) {
	gen := mock.NewGenerator(mock.LLMConfig{ResponseText: "ENGLISH"})
	r := NewRouter(gen, "router")
	cases := []struct {
		text string
		want Subject
	}{
		{"Comment résoudre cette équation ?", SubjectMath},
		{"Explique la gravité", SubjectPhysics},
		{"What is the past tense of go?", SubjectEnglish},
		{"La FORCE d'un nombre", SubjectMath},
		{"Calcule x^2", SubjectMath},
	}
	for _, tc := range cases {
		got, method := r.Route(context.Background(), tc.text)
		if got != tc.want || method != RouteKeyword {
			t.Fatalf("%q: got %s via %s, want %s", tc.text, got, method, tc.want)
		}
	}
	if n := len(gen.Requests()); n != 0 {
		t.Fatalf("keyword routes must not call the model, got %d calls", n)
	}
}

func TestRouteLLMFallback(t *testing.T) {
	gen := mock.NewGenerator(mock.LLMConfig{StreamChunks: []string{" phy", "sics\n"}})
	r := NewRouter(gen, "qwen2.5:1.5b")
	got, method := r.Route(context.Background(), "Pourquoi le ciel est bleu ?")
	if got != SubjectPhysics || method != RouteLLM {
		t.Fatalf("got %s via %s", got, method)
	}
	reqs := gen.Requests()
	if len(reqs) != 1 || reqs[0].Model != "qwen2.5:1.5b" || reqs[0].Messages[0].Role != llm.RoleSystem {
		t.Fatalf("unexpected classifier request %+v", reqs)
	}
}

func TestRouteDefaults(t *testing.T) {
	failing := mock.NewGenerator(mock.LLMConfig{Err: errors.New("down")})
	if got, method := NewRouter(failing, "m").Route(context.Background(), "Bonjour"); got != SubjectGeneral || method != RouteDefault {
		t.Fatalf("error must route to GENERAL, got %s via %s", got, method)
	}
	if got, method := NewRouter(nil, "").Route(context.Background(), "Bonjour"); got != SubjectGeneral || method != RouteDefault {
		t.Fatalf("no generator must route to GENERAL, got %s via %s", got, method)
	}
	unsure := mock.NewGenerator(mock.LLMConfig{ResponseText: "je ne sais pas"})
	if got, _ := NewRouter(unsure, "m").Route(context.Background(), "Bonjour"); got != SubjectGeneral {
		t.Fatalf("unrecognised answer must route to GENERAL, got %s", got)
	}
}

func TestWithKeywords(t *testing.T) {
	r := NewRouter(nil, "", WithKeywords(SubjectEnglish, []string{"Shakespeare"}))
	if got, _ := r.Route(context.Background(), "parle-moi de shakespeare"); got != SubjectEnglish {
		t.Fatalf("got %s", got)
	}
}

func TestParseAndMergeProfiles(t *testing.T) {
	if ParseSubject(" physics ") != SubjectPhysics || ParseSubject("history") != SubjectGeneral {
		t.Fatalf("unexpected subject parsing")
	}
	p := MergeProfiles(DefaultProfiles(), map[string]string{"math": "mistral"}, map[string]string{"english": "Be brief."})
	if p[SubjectMath].Model != "mistral" || p[SubjectEnglish].Prompt != "Be brief." || p[SubjectEnglish].Model != "gemma:2b" {
		t.Fatalf("unexpected merge %+v", p)
	}
	if DefaultProfiles()[SubjectMath].Model != "qwen2.5:1.5b" {
		t.Fatalf("merge must not mutate defaults")
	}
}
