package crawl

import "strings"

type branchKind int

const (
	kindStandard   branchKind = iota // "on level L of the X" / "in the X"
	kindHell                         // "on level L of X"
	kindZiggurat                     // "on level L of a X"
	kindIndefinite                   // "in a X"
	kindVowel                        // "in an X"
	kindDefinite                     // "in the X"
	kindProper                       // "in X"
)

type branch struct {
	Name string
	Kind branchKind
}

var branches = map[string]branch{
	"D":      {"Dungeon", kindStandard},
	"Orc":    {"Orcish Mines", kindStandard},
	"Elf":    {"Elven Halls", kindStandard},
	"Lair":   {"Lair of Beasts", kindStandard},
	"Depths": {"Depths", kindStandard},
	"Swamp":  {"Swamp", kindStandard},
	"Shoals": {"Shoals", kindStandard},
	"Slime":  {"Slime Pits", kindStandard},
	"Snake":  {"Snake Pit", kindStandard},
	"Spider": {"Spider Nest", kindStandard},
	"Vaults": {"Vaults", kindStandard},
	"Crypt":  {"Crypt", kindStandard},
	"Tomb":   {"Tomb of the Ancients", kindStandard},
	"Dis":    {"Iron City of Dis", kindStandard},
	"Zot":    {"Realm of Zot", kindStandard},
	"Abyss":  {"Abyss", kindStandard},

	"Tar": {"Tartarus", kindHell},
	"Geh": {"Gehenna", kindHell},
	"Coc": {"Cocytus", kindHell},

	"Zig": {"Ziggurat", kindZiggurat},

	"Lab":     {"Labyrinth", kindIndefinite},
	"Bazaar":  {"Bazaar", kindIndefinite},
	"WizLab":  {"Wizard's Laboratory", kindIndefinite},
	"Sewer":   {"Sewer", kindIndefinite},
	"Bailey":  {"Bailey", kindIndefinite},
	"Volcano": {"Volcano", kindIndefinite},
	"Trove":   {"Treasure Trove", kindIndefinite},
	"Salt":    {"Desolation of Salt", kindIndefinite},

	"Ossuary": {"Ossuary", kindVowel},
	"IceCv":   {"Ice Cave", kindVowel},

	"Hell":   {"Vestibule of Hell", kindDefinite},
	"Temple": {"Ecumenical Temple", kindDefinite},

	"Pan": {"Pandemonium", kindProper},
}

// Place is a decoded location code.
type Place struct {
	Branch string
	Level  string
	Phrase string
}

// DecodePlace turns a "Branch" or "Branch:Level" code into a readable phrase.
// It never fails: unknown branches keep their code as the name and get an
// "at <code>" phrase.
func DecodePlace(code string) Place {
	abbr, level, found := strings.Cut(code, ":")
	if !found || level == "" {
		level = "0"
	}

	b, ok := branches[abbr]
	if !ok {
		return Place{Branch: abbr, Level: level, Phrase: "at " + code}
	}

	p := Place{Branch: b.Name, Level: level}
	switch b.Kind {
	case kindStandard:
		if level == "0" {
			p.Phrase = "in the " + b.Name
		} else {
			p.Phrase = "on level " + level + " of the " + b.Name
		}
	case kindHell:
		if level == "0" {
			p.Phrase = "in " + b.Name
		} else {
			p.Phrase = "on level " + level + " of " + b.Name
		}
	case kindZiggurat:
		if level == "0" {
			p.Phrase = "in a " + b.Name
		} else {
			p.Phrase = "on level " + level + " of a " + b.Name
		}
	case kindIndefinite:
		p.Phrase = "in a " + b.Name
	case kindVowel:
		p.Phrase = "in an " + b.Name
	case kindDefinite:
		p.Phrase = "in the " + b.Name
	case kindProper:
		p.Phrase = "in " + b.Name
	}
	return p
}
