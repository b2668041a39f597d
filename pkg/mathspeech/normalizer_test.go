package mathspeech

import (
	"sync"
	"testing"
)

func TestConvertQuadraticWithoutPauses(t *testing.T) {
	got := New(WithoutPauses()).Convert("x² + 2x - 4 = 0")
	if want := "x au carré plus 2x moins 4 égale 0"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestConvert(t *testing.T) {
	n := New()
	cases := []struct {
		in   string
		want string
	}{
		{"x² + 2x - 4 = 0", "x au carré plus 2x moins 4 égale, 0"},
		{"1/2 + 1/4 = 3/4", "un demi plus un quart égale, 3 sur 4"},
		{"hello", "hello"},
		{"  plusieurs   espaces  ", "plusieurs espaces"},
		{"La formule est E = mc²", "La formule est E égale, mc au carré"},
		{"√16 = 4", "racine carrée de 16 égale, 4"},
		{"π ≈ 3.14159", "pi environ égal à 3.14159"},
		{"x³ - 8 = 0", "x au cube moins 8 égale, 0"},
		{"x⁴ et yⁿ", "x puissance 4 et y puissance n"},
		{"x₁ + x₂ = 10", "x indice 1 plus x indice 2 égale, 10"},
		{"a^2 + b^2 = c^2", "a au carré plus b au carré égale, c au carré"},
		{"2^10", "2 puissance 10"},
		{"½ + ¾", "un demi plus trois quarts"},
		{"1/3 de 7 / 8", "un tiers de 7 sur 8"},
		{"2*3", "2 multiplié par 3"},
		{"Δ ≥ 0 ⇒ x ∈ ∅", "delta supérieur ou égal à 0 implique x appartient à ensemble vide"},
		{"Bon.Fin", "Bon. Fin"},
		{"on a x donc y", "on a x donc, y"},
		{"f où x", "f, où x"},
		{"x égale donc y", "x égale, donc, y"},
		{"y = 2 donc où", "y égale, 2 donc, où"},
		{"50% à 20°", "50 pourcent à 20 degrés"},
		{"a ← b", "a b"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := n.Convert(tc.in); got != tc.want {
			t.Errorf("Convert(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConvertFractionVectorMentionsNamedFractions(t *testing.T) {
	got := New(WithoutPauses()).Convert("1/2 + 1/4 = 3/4")
	if want := "un demi plus un quart égale 3 sur 4"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestConvertWithReplacements(t *testing.T) {
	n := New(WithReplacements(map[string]string{
		"cf":  "confer",
		"cfg": "configuration",
	}))
	if got := n.Convert("voir cfg et cf"); got != "voir configuration et confer" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestConvertIsDeterministicAndConcurrent(t *testing.T) {
	n := New()
	in := "∑ α × β ÷ γ ≠ ∞ ∧ ¬ θ"
	want := n.Convert(in)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if got := n.Convert(in); got != want {
					t.Errorf("non deterministic output %q vs %q", got, want)
					return
				}
			}
		}()
	}
	wg.Wait()
	if want != "somme de alpha multiplié par bêta divisé par gamma différent de infini et non thêta" {
		t.Fatalf("unexpected %q", want)
	}
}
