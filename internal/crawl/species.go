package crawl

// Species abbreviations as they appear in the first half of a "char" code.
var species = map[string]string{
	"At": "Armataur",
	"Bb": "Barachi",
	"Ce": "Centaur",
	"Co": "Coglin",
	"DD": "Deep Dwarf",
	"DE": "Deep Elf",
	"Dg": "Demigod",
	"Dj": "Djinni",
	"Dr": "Draconian",
	"Ds": "Demonspawn",
	"El": "Elf",
	"Fe": "Felid",
	"Fo": "Formicid",
	"Gh": "Ghoul",
	"Gn": "Gnoll",
	"Gr": "Gargoyle",
	"Ha": "Halfling",
	"HE": "High Elf",
	"HO": "Hill Orc",
	"Hu": "Human",
	"Ko": "Kobold",
	"MD": "Mountain Dwarf",
	"Mf": "Merfolk",
	"Mi": "Minotaur",
	"Mu": "Mummy",
	"Na": "Naga",
	"Og": "Ogre",
	"On": "Oni",
	"Op": "Octopode",
	"Po": "Poltergeist",
	"Re": "Revenant",
	"SE": "Sludge Elf",
	"Sp": "Spriggan",
	"Te": "Tengu",
	"Tr": "Troll",
	"VS": "Vine Stalker",
	"Vp": "Vampire",
}

// SpeciesName expands a species abbreviation. Unknown codes are returned as is.
func SpeciesName(abbr string) string {
	if name, ok := species[abbr]; ok {
		return name
	}
	return abbr
}
