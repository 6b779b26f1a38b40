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
	registerVehicles()
}

// Vehicle extracts come in two layouts: 15 columns for older years, 16
// from the year the TYP_CARBU column was added. A missing fuel column
// stores NULL; a present but empty one stores the documented default.
func registerVehicles() {
	core.Register(core.Definition{
		Key:          "vehicles",
		Label:        "Vehicle registrations",
		Table:        "vehicles",
		ColumnCounts: []int{15, 16},
		InsertSQL: `INSERT INTO vehicles (year, classification_id, make_id, model_id, model_year_id,
			color_id, fuel_type_id, cylinder_count_id, axle_count_id, net_mass_kg,
			commercial_lease, acquired_rights, admin_region_id, mrc_id, municipality_id, postal_prefix)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		BuildArgs: buildVehicleArgs,
	})
}

func buildVehicleArgs(ctx context.Context, rec parse.Record, year int, dicts *dict.Store) ([]any, error) {
	an, err := strconv.Atoi(strings.TrimSpace(rec["AN"]))
	if err != nil || an != year {
		return nil, fmt.Errorf("%w: AN=%q, importing %d", core.ErrYearMismatch, rec["AN"], year)
	}

	classID, err := dicts.GetOrCreate(ctx, dict.Classification, rec["CLAS"])
	if err != nil {
		return nil, err
	}

	makeID, err := dicts.GetOrCreate(ctx, dict.Make, rec["MARQ_VEH"])
	if err != nil {
		return nil, err
	}

	var modelID any
	if v := strings.TrimSpace(rec["MODEL_VEH"]); v != "" {
		id, err := dicts.GetOrCreateModel(ctx, v, makeID)
		if err != nil {
			return nil, err
		}
		modelID = id
	}

	modelYearID, err := optionalID(ctx, dicts, dict.ModelYear, rec["ANNEE_MOD"])
	if err != nil {
		return nil, err
	}

	var colorID int64
	if v := strings.TrimSpace(rec["COULEUR"]); v != "" {
		colorID, err = dicts.GetOrCreate(ctx, dict.Color, v)
	} else {
		colorID, err = defaultID(ctx, dicts, dict.Color, "INCONNUE")
	}
	if err != nil {
		return nil, err
	}

	var fuelID any
	if v, present := rec["TYP_CARBU"]; present {
		if strings.TrimSpace(v) != "" {
			id, err := dicts.GetOrCreate(ctx, dict.FuelType, v)
			if err != nil {
				return nil, err
			}
			fuelID = id
		} else {
			id, err := defaultID(ctx, dicts, dict.FuelType, "NP")
			if err != nil {
				return nil, err
			}
			fuelID = id
		}
	}

	cylID, err := optionalID(ctx, dicts, dict.CylinderCount, rec["NB_CYL"])
	if err != nil {
		return nil, err
	}
	axleID, err := optionalID(ctx, dicts, dict.AxleCount, rec["NB_ESIEU"])
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

	var postal any
	if v := strings.TrimSpace(rec["CODE_POSTL"]); v != "" {
		postal = v
	}

	return []any{
		year, classID, makeID, modelID, modelYearID,
		colorID, fuelID, cylID, axleID, intOrNil(rec["MASSE_NETTE"]),
		FlagValue(rec["IND_LOC_COMM"]), FlagValue(rec["IND_DROIT_ACQ"]),
		regionID, mrcID, municipalityID, postal,
	}, nil
}
