package dict

// Hardcoded canonical vocabularies for the closed categorical domains.
// These are compiled-in on purpose: the code sets change with legislation,
// not with deployments, and a new code observed in data is backfilled into
// the dictionary automatically so nothing is ever un-encodable.

// VocabEntry is one canonical (code, description) pair.
type VocabEntry struct {
	Code        string
	Description string
}

// classificationSeed lists the vehicle classification codes used by the
// registry across all extract years.
var classificationSeed = []VocabEntry{
	{"PAU", "Promenade - Automobile"},
	{"PCY", "Promenade - Cyclomoteur"},
	{"PMC", "Promenade - Motocyclette"},
	{"PHR", "Promenade - Véhicule hors réseau"},
	{"PHA", "Promenade - Habitation motorisée"},
	{"CAU", "Commercial - Automobile"},
	{"CCA", "Commercial - Camion"},
	{"CTC", "Commercial - Tracteur routier"},
	{"IAU", "Institutionnel - Automobile"},
	{"ICA", "Institutionnel - Camion"},
	{"TTX", "Transport - Taxi"},
	{"TAB", "Transport - Autobus"},
	{"TAS", "Transport - Autobus scolaire"},
	{"REM", "Remorque"},
	{"SRE", "Semi-remorque"},
	{"VOU", "Véhicule-outil"},
	{"FER", "Véhicule de ferme"},
}

// fuelTypeSeed lists the fuel type codes introduced by the later extract
// format (16-column vehicle files).
var fuelTypeSeed = []VocabEntry{
	{"ES", "Essence"},
	{"DI", "Diesel"},
	{"EL", "Électrique"},
	{"HY", "Hybride"},
	{"HR", "Hybride rechargeable"},
	{"PR", "Propane"},
	{"GN", "Gaz naturel"},
	{"AU", "Autre"},
	{"NP", "Non précisé"},
}

// genderSeed lists license holder gender codes.
var genderSeed = []VocabEntry{
	{"M", "Masculin"},
	{"F", "Féminin"},
	{"X", "Autre"},
}

// ageGroupSeed lists license holder age buckets as published.
var ageGroupSeed = []VocabEntry{
	{"16-19", "16 à 19 ans"},
	{"20-24", "20 à 24 ans"},
	{"25-34", "25 à 34 ans"},
	{"35-44", "35 à 44 ans"},
	{"45-54", "45 à 54 ans"},
	{"55-64", "55 à 64 ans"},
	{"65-74", "65 à 74 ans"},
	{"75+", "75 ans et plus"},
}

// licenseTypeSeed lists license types.
var licenseTypeSeed = []VocabEntry{
	{"APP", "Permis d'apprenti conducteur"},
	{"PRO", "Permis probatoire"},
	{"REG", "Permis de conduire"},
	{"RES", "Permis restreint"},
}
