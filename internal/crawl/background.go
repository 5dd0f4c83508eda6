package crawl

// Background abbreviations as they appear in the second half of a "char" code.
var backgrounds = map[string]string{
	"AE": "Air Elementalist",
	"AK": "Abyssal Knight",
	"Al": "Alchemist",
	"AM": "Arcane Marksman",
	"Ar": "Artificer",
	"As": "Assassin",
	"Be": "Berserker",
	"Br": "Brigand",
	"CA": "Cinder Acolyte",
	"CK": "Chaos Knight",
	"Cj": "Conjurer",
	"DK": "Death Knight",
	"EE": "Earth Elementalist",
	"En": "Enchanter",
	"FE": "Fire Elementalist",
	"Fi": "Fighter",
	"Gl": "Gladiator",
	"He": "Healer",
	"Hs": "Hexslinger",
	"Hu": "Hunter",
	"IE": "Ice Elementalist",
	"Mo": "Monk",
	"Ne": "Necromancer",
	"Pr": "Priest",
	"Re": "Reaver",
	"Sh": "Shapeshifter",
	"Sk": "Skald",
	"Su": "Summoner",
	"Tm": "Transmuter",
	"VM": "Venom Mage",
	"Wn": "Wanderer",
	"Wr": "Warper",
	"Wz": "Wizard",
}

// BackgroundName expands a background abbreviation. Unknown codes are
// returned as is.
func BackgroundName(abbr string) string {
	if name, ok := backgrounds[abbr]; ok {
		return name
	}
	return abbr
}
