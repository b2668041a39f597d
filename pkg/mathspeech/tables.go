package mathspeech

// Tables are ordered slices so that replacement order never depends on map
// iteration.

type pair struct{ from, to string }

var fractionGlyphs = []pair{
	{"½", "un demi"},
	{"⅓", "un tiers"},
	{"⅔", "deux tiers"},
	{"¼", "un quart"},
	{"¾", "trois quarts"},
	{"⅕", "un cinquième"},
	{"⅖", "deux cinquièmes"},
	{"⅗", "trois cinquièmes"},
	{"⅘", "quatre cinquièmes"},
	{"⅙", "un sixième"},
	{"⅚", "cinq sixièmes"},
	{"⅛", "un huitième"},
	{"⅜", "trois huitièmes"},
	{"⅝", "cinq huitièmes"},
	{"⅞", "sept huitièmes"},
}

var superscriptDigits = map[rune]rune{
	'⁰': '0', '¹': '1', '²': '2', '³': '3', '⁴': '4',
	'⁵': '5', '⁶': '6', '⁷': '7', '⁸': '8', '⁹': '9',
	'ⁿ': 'n',
}

var subscriptDigits = map[rune]rune{
	'₀': '0', '₁': '1', '₂': '2', '₃': '3', '₄': '4',
	'₅': '5', '₆': '6', '₇': '7', '₈': '8', '₉': '9',
	'ₙ': 'n', 'ₓ': 'x',
}

var slashFractions = map[string]string{
	"1/2": "un demi",
	"1/3": "un tiers",
	"1/4": "un quart",
}

var symbols = []pair{
	// operators
	{"+", "plus"},
	{"-", "moins"},
	{"−", "moins"},
	{"×", "multiplié par"},
	{"÷", "divisé par"},
	{"=", "égale"},
	{"≠", "différent de"},
	{"≈", "environ égal à"},

	// comparisons
	{"<", "inférieur à"},
	{">", "supérieur à"},
	{"≤", "inférieur ou égal à"},
	{"≥", "supérieur ou égal à"},
	{"≪", "très inférieur à"},
	{"≫", "très supérieur à"},

	{"√", "racine carrée de"},
	{"∛", "racine cubique de"},
	{"∞", "infini"},
	{"∑", "somme de"},
	{"∏", "produit de"},
	{"∫", "intégrale de"},
	{"π", "pi"},
	{"θ", "thêta"},
	{"α", "alpha"},
	{"β", "bêta"},
	{"γ", "gamma"},
	{"δ", "delta"},
	{"Δ", "delta"},
	{"λ", "lambda"},
	{"μ", "mu"},
	{"σ", "sigma"},
	{"ω", "oméga"},

	// sets
	{"∈", "appartient à"},
	{"∉", "n'appartient pas à"},
	{"⊂", "inclus dans"},
	{"∪", "union"},
	{"∩", "intersection"},
	{"∅", "ensemble vide"},

	// logic
	{"∀", "pour tout"},
	{"∃", "il existe"},
	{"¬", "non"},
	{"∧", "et"},
	{"∨", "ou"},
	{"⇒", "implique"},
	{"⇔", "équivaut à"},

	// arrows
	{"→", "tend vers"},
	{"←", ""},
	{"↔", ""},

	{"°", "degrés"},
	{"%", "pourcent"},
	{"±", "plus ou moins"},
	{"∓", "moins ou plus"},
}
