package datasets

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/roadregistry/importer/internal/core"
	"github.com/roadregistry/importer/internal/dict"
	"github.com/roadregistry/importer/internal/parse"
)

func init() {
	registerLicenses()
}

// licenseClassColumns maps each class indicator column to its position in
// the insert statement, in schema order.
var licenseClassColumns = []string{
	"IND_CLASSE_1", "IND_CLASSE_2", "IND_CLASSE_3",
	"IND_CLASSE_4A", "IND_CLASSE_4B", "IND_CLASSE_4C",
	"IND_CLASSE_5",
	"IND_CLASSE_6A", "IND_CLASSE_6B", "IND_CLASSE_6C", "IND_CLASSE_6D",
	"IND_CLASSE_8",
}

func registerLicenses() {
	core.Register(core.Definition{
		Key:          "licenses",
		Label:        "Driver licenses",
		Table:        "licenses",
		ColumnCounts: []int{20},
		InsertSQL: `INSERT INTO licenses (year, gender_id, age_group_id, license_type_id,
			admin_region_id, mrc_id, municipality_id,
			has_class_1, has_class_2, has_class_3, has_class_4a, has_class_4b, has_class_4c,
			has_class_5, has_class_6a, has_class_6b, has_class_6c, has_class_6d, has_class_8,
			demerit_points)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		BuildArgs: buildLicenseArgs,
	})
}

func buildLicenseArgs(ctx context.Context, rec parse.Record, year int, dicts *dict.Store) ([]any, error) {
	an, err := strconv.Atoi(strings.TrimSpace(rec["AN"]))
	if err != nil || an != year {
		return nil, fmt.Errorf("%w: AN=%q, importing %d", core.ErrYearMismatch, rec["AN"], year)
	}

	genderID, err := dicts.GetOrCreate(ctx, dict.Gender, rec["SEXE"])
	if err != nil {
		return nil, err
	}
	ageGroupID, err := dicts.GetOrCreate(ctx, dict.AgeGroup, rec["GROUPE_AGE"])
	if err != nil {
		return nil, err
	}
	licenseTypeID, err := dicts.GetOrCreate(ctx, dict.LicenseType, rec["TYP_PERMIS"])
	if err != nil {
		return nil, err
	}

	regionID, err := optionalID(ctx, dicts, dict.AdminRegion, NormalizeGeography(rec["REG_ADM"]))
	if err != nil {
		return nil, err
	}
	mrcID, err := optionalID(ctx, dicts, dict.MRC, NormalizeGeography(rec["MRC"]))
	if err != nil {
		return nil, err
	}
	municipalityID, err := optionalID(ctx, dicts, dict.Municipality, NormalizeGeography(rec["MUNCP"]))
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, 20)
	args = append(args, year, genderID, ageGroupID, licenseTypeID,
		regionID, mrcID, municipalityID)
	for _, col := range licenseClassColumns {
		args = append(args, FlagValue(rec[col]))
	}
	args = append(args, intOrNil(rec["NB_POINTS_INAPT"]))
	return args, nil
}
